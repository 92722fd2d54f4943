package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-ai/finsight/pkg/models"
	"github.com/finsight-ai/finsight/pkg/provider"
)

func testSpec(stream bool) models.ModelSpec {
	return models.ModelSpec{
		Name:            "deepseek-v3",
		Provider:        models.ProviderGateway,
		Kind:            models.KindGeneral,
		CostPer1KTokens: 0.0006,
		MaxOutputTokens: 8192,
		SupportsStream:  stream,
	}
}

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	a, err := New("test-key", srv.URL, []models.ModelSpec{testSpec(true)})
	require.NoError(t, err)
	return a
}

func TestGatewayAdapter(t *testing.T) {
	ctx := context.Background()

	t.Run("missing key rejected at construction", func(t *testing.T) {
		_, err := New("", "http://gateway", nil)
		assert.Equal(t, models.ErrKindAPIKeyMissing, provider.KindOf(err))
	})

	t.Run("blocking execution", func(t *testing.T) {
		a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/chat/completions", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			fmt.Fprint(w, `{
				"choices": [{"message": {"content": "BUY with target 210"}}],
				"usage": {"prompt_tokens": 120, "completion_tokens": 40, "total_tokens": 160}
			}`)
		})

		res, err := a.ExecuteTask(ctx, testSpec(false), "analyze AAPL", models.TaskSpec{}, provider.Options{})
		require.NoError(t, err)
		assert.Equal(t, "BUY with target 210", res.Text)
		assert.Equal(t, 160, res.Usage.TotalTokens)
	})

	t.Run("streaming reassembles split utf8 and skips malformed fragments", func(t *testing.T) {
		// "苹果" is six bytes; split mid-character across two SSE events.
		word := []byte("苹果")
		a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", string(word[:3]))
			fmt.Fprint(w, "data: {not json at all\n\n")
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", string(word[3:]))
			fmt.Fprint(w, `data: {"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`+"\n\n")
			fmt.Fprint(w, "data: [DONE]\n\n")
		})

		var tokens []string
		res, err := a.ExecuteTask(ctx, testSpec(true), "translate", models.TaskSpec{}, provider.Options{
			Stream:  true,
			OnToken: func(tok string) { tokens = append(tokens, tok) },
		})
		require.NoError(t, err)
		assert.Equal(t, "苹果", res.Text)
		assert.Equal(t, 7, res.Usage.TotalTokens)
		// Every emitted token is valid UTF-8 despite the mid-rune split.
		for _, tok := range tokens {
			assert.True(t, utf8.ValidString(tok), "token %q is not valid UTF-8", tok)
		}
	})

	t.Run("empty response classified", func(t *testing.T) {
		a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"choices": [{"message": {"content": "   "}}]}`)
		})

		_, err := a.ExecuteTask(ctx, testSpec(false), "p", models.TaskSpec{}, provider.Options{})
		assert.Equal(t, models.ErrKindEmptyResponse, provider.KindOf(err))
	})

	t.Run("http statuses translate to taxonomy", func(t *testing.T) {
		tests := []struct {
			status int
			want   models.ErrorKind
		}{
			{http.StatusUnauthorized, models.ErrKindAPIKeyInvalid},
			{http.StatusTooManyRequests, models.ErrKindRateLimited},
			{http.StatusNotFound, models.ErrKindModelUnavailable},
			{http.StatusInternalServerError, models.ErrKindHTTPError},
		}
		for _, tt := range tests {
			a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := a.ExecuteTask(ctx, testSpec(false), "p", models.TaskSpec{}, provider.Options{})
			assert.Equal(t, tt.want, provider.KindOf(err), "status %d", tt.status)
		}
	})

	t.Run("health check round trip", func(t *testing.T) {
		healthy := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/models", r.URL.Path)
			fmt.Fprint(w, `{"data": []}`)
		})
		assert.NoError(t, healthy.HealthCheck(ctx))

		sick := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
		assert.Error(t, sick.HealthCheck(ctx))
	})

	t.Run("panicking token callback does not abort the call", func(t *testing.T) {
		a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n")
			fmt.Fprint(w, "data: [DONE]\n\n")
		})

		res, err := a.ExecuteTask(ctx, testSpec(true), "p", models.TaskSpec{}, provider.Options{
			Stream:  true,
			OnToken: func(string) { panic("broken observer") },
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", res.Text)
	})
}
