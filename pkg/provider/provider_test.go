package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/finsight-ai/finsight/pkg/models"
)

func TestEffectiveTimeout(t *testing.T) {
	general := models.ModelSpec{Name: "gpt-4o", Kind: models.KindGeneral}
	thinking := models.ModelSpec{Name: "deepseek-r1", Kind: models.KindThinking}

	assert.Equal(t, 60*time.Second, EffectiveTimeout(general, Options{}))
	assert.Equal(t, 120*time.Second, EffectiveTimeout(thinking, Options{}))
	assert.Equal(t, 5*time.Second, EffectiveTimeout(thinking, Options{Timeout: 5 * time.Second}))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 1, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("a"))
	assert.Equal(t, 5, EstimateTokens("hello world")) // 11 chars / 2
}

func TestCostFor(t *testing.T) {
	spec := models.ModelSpec{CostPer1KTokens: 0.002}
	assert.InDelta(t, 0.003, CostFor(spec, 1500), 1e-9)
}

func TestSafeEmit(t *testing.T) {
	t.Run("panicking callback does not abort", func(t *testing.T) {
		assert.NotPanics(t, func() {
			SafeEmit(func(string) { panic("observer bug") }, "token")
		})
	})

	t.Run("nil callback and empty token are no-ops", func(t *testing.T) {
		SafeEmit(nil, "token")
		called := false
		SafeEmit(func(string) { called = true }, "")
		assert.False(t, called)
	})
}

func TestFillUsage(t *testing.T) {
	t.Run("reported usage kept", func(t *testing.T) {
		u := FillUsage(models.TokenUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30}, "p", "t")
		assert.Equal(t, 30, u.TotalTokens)
	})

	t.Run("missing usage estimated from text", func(t *testing.T) {
		u := FillUsage(models.TokenUsage{}, "four char prompt", "and some response")
		assert.Equal(t, EstimateTokens("four char prompt"), u.PromptTokens)
		assert.Equal(t, EstimateTokens("and some response"), u.CompletionTokens)
		assert.Equal(t, u.PromptTokens+u.CompletionTokens, u.TotalTokens)
	})
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, models.ErrKindNone, KindOf(nil))
	assert.Equal(t, models.ErrKindTimeout, KindOf(context.DeadlineExceeded))
	assert.Equal(t, models.ErrKindCancelled, KindOf(context.Canceled))
	assert.Equal(t, models.ErrKindInternal, KindOf(errors.New("mystery")))

	wrapped := NewError(models.ErrKindRateLimited, models.ProviderOpenAI, "gpt-4o", errors.New("429"))
	assert.Equal(t, models.ErrKindRateLimited, KindOf(wrapped))
}

func TestKindFromHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		want   models.ErrorKind
	}{
		{401, models.ErrKindAPIKeyInvalid},
		{403, models.ErrKindAPIKeyInvalid},
		{429, models.ErrKindRateLimited},
		{408, models.ErrKindTimeout},
		{504, models.ErrKindTimeout},
		{404, models.ErrKindModelUnavailable},
		{500, models.ErrKindHTTPError},
		{400, models.ErrKindHTTPError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindFromHTTPStatus(tt.status), "status %d", tt.status)
	}
}
