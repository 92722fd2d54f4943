// Package gateway implements the provider adapter for multi-model gateway
// endpoints speaking the OpenAI wire protocol over plain HTTP. The SSE
// decoder is hand-rolled so token fragments that split multi-byte UTF-8
// sequences are reassembled instead of corrupted.
package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/finsight-ai/finsight/pkg/models"
	"github.com/finsight-ai/finsight/pkg/provider"
)

// Adapter executes tasks against an OpenAI-protocol gateway serving many
// upstream models (DeepSeek, Qwen, Gemini, ...).
type Adapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	specs      []models.ModelSpec
	logger     *slog.Logger
}

// New creates the adapter. baseURL points at the gateway root, e.g.
// "https://gateway.example.com/v1".
func New(apiKey, baseURL string, specs []models.ModelSpec) (*Adapter, error) {
	if apiKey == "" {
		return nil, provider.NewError(models.ErrKindAPIKeyMissing, models.ProviderGateway, "",
			errors.New("GATEWAY_API_KEY is not set"))
	}
	if baseURL == "" {
		return nil, fmt.Errorf("gateway base URL is required")
	}
	return &Adapter{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		specs:      specs,
		logger:     slog.With("component", "gateway_adapter"),
	}, nil
}

// Name implements provider.Adapter.
func (a *Adapter) Name() models.Provider {
	return models.ProviderGateway
}

// SupportedModels implements provider.Adapter.
func (a *Adapter) SupportedModels() []models.ModelSpec {
	out := make([]models.ModelSpec, len(a.specs))
	copy(out, a.specs)
	return out
}

// EstimateCost implements provider.Adapter.
func (a *Adapter) EstimateCost(spec models.ModelSpec, tokens int) float64 {
	return provider.CostFor(spec, tokens)
}

// HealthCheck implements provider.Adapter with a GET /models round trip.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/models", nil)
	if err != nil {
		return provider.NewError(models.ErrKindInternal, models.ProviderGateway, "", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return a.translateTransport("", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return provider.NewError(provider.KindFromHTTPStatus(resp.StatusCode), models.ProviderGateway, "",
			fmt.Errorf("gateway /models returned %d", resp.StatusCode))
	}
	return nil
}

// chat wire types, OpenAI protocol.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage chatUsage `json:"usage"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *chatUsage `json:"usage,omitempty"`
}

// ExecuteTask implements provider.Adapter.
func (a *Adapter) ExecuteTask(ctx context.Context, spec models.ModelSpec, prompt string, task models.TaskSpec, opts provider.Options) (*provider.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, provider.EffectiveTimeout(spec, opts))
	defer cancel()

	streaming := opts.Stream && spec.SupportsStream
	body := chatRequest{
		Model:       spec.Name,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   provider.EffectiveMaxTokens(spec, opts),
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		Stream:      streaming,
	}

	resp, err := a.post(ctx, "/chat/completions", body)
	if err != nil {
		return nil, a.translateTransport(spec.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, provider.NewError(provider.KindFromHTTPStatus(resp.StatusCode), models.ProviderGateway, spec.Name,
			fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload))))
	}

	var (
		text  string
		usage models.TokenUsage
	)
	if streaming {
		text, usage, err = a.readStream(resp.Body, opts)
	} else {
		text, usage, err = a.readBlocking(resp.Body)
	}
	if err != nil {
		return nil, a.translateTransport(spec.Name, err)
	}

	if strings.TrimSpace(text) == "" {
		return nil, provider.NewError(models.ErrKindEmptyResponse, models.ProviderGateway, spec.Name,
			errors.New("gateway returned no text content"))
	}

	return &provider.Result{
		Text:  text,
		Usage: provider.FillUsage(usage, prompt, text),
	}, nil
}

func (a *Adapter) post(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	return a.httpClient.Do(req)
}

func (a *Adapter) readBlocking(body io.Reader) (string, models.TokenUsage, error) {
	var resp chatResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return "", models.TokenUsage{}, fmt.Errorf("decode gateway response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", models.TokenUsage{}, nil
	}
	usage := models.TokenUsage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	return resp.Choices[0].Message.Content, usage, nil
}

// readStream consumes the SSE body line by line. Malformed fragments are
// skipped silently; delta text goes through the UTF-8 coalescer so a
// multi-byte character split across events is emitted whole.
func (a *Adapter) readStream(body io.Reader, opts provider.Options) (string, models.TokenUsage, error) {
	var (
		b         strings.Builder
		usage     models.TokenUsage
		coalescer utf8Coalescer
	)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			break
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Malformed fragment: drop it and keep reading.
			continue
		}
		if len(chunk.Choices) > 0 {
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				b.WriteString(delta)
				if complete := coalescer.Write([]byte(delta)); complete != "" {
					provider.SafeEmit(opts.OnToken, complete)
				}
			}
		}
		if chunk.Usage != nil && chunk.Usage.TotalTokens > 0 {
			usage.PromptTokens = chunk.Usage.PromptTokens
			usage.CompletionTokens = chunk.Usage.CompletionTokens
			usage.TotalTokens = chunk.Usage.TotalTokens
		}
	}
	if err := scanner.Err(); err != nil {
		return "", models.TokenUsage{}, err
	}

	// Flush whatever the coalescer still holds, even if invalid, so no
	// bytes are lost at end of stream.
	if tail := coalescer.Flush(); tail != "" {
		provider.SafeEmit(opts.OnToken, tail)
	}
	return b.String(), usage, nil
}

// translateTransport maps transport-level failures into the error taxonomy.
func (a *Adapter) translateTransport(model string, err error) error {
	if cerr := provider.TranslateContextErr(models.ProviderGateway, model, err); cerr != nil {
		return cerr
	}
	return provider.NewError(models.ErrKindHTTPError, models.ProviderGateway, model, err)
}
