// Package openaicompat implements the provider adapter for OpenAI and any
// endpoint speaking the OpenAI Chat Completions protocol, via the official
// SDK with a configurable base URL.
package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/finsight-ai/finsight/pkg/models"
	"github.com/finsight-ai/finsight/pkg/provider"
)

// Adapter executes tasks against OpenAI-protocol endpoints.
type Adapter struct {
	client openai.Client
	name   models.Provider
	specs  []models.ModelSpec
	logger *slog.Logger
}

// New creates the adapter. baseURL is optional; when empty the official
// OpenAI endpoint is used.
func New(apiKey, baseURL string, specs []models.ModelSpec) (*Adapter, error) {
	if apiKey == "" {
		return nil, provider.NewError(models.ErrKindAPIKeyMissing, models.ProviderOpenAI, "",
			errors.New("OPENAI_API_KEY is not set"))
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	return &Adapter{
		client: openai.NewClient(reqOpts...),
		name:   models.ProviderOpenAI,
		specs:  specs,
		logger: slog.With("component", "openai_adapter"),
	}, nil
}

// Name implements provider.Adapter.
func (a *Adapter) Name() models.Provider {
	return a.name
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

// HealthCheck implements provider.Adapter.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	if _, err := a.client.Models.List(ctx); err != nil {
		return a.translate("", err)
	}
	return nil
}

// ExecuteTask implements provider.Adapter.
func (a *Adapter) ExecuteTask(ctx context.Context, spec models.ModelSpec, prompt string, task models.TaskSpec, opts provider.Options) (*provider.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, provider.EffectiveTimeout(spec, opts))
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(spec.Name),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		MaxTokens: openai.Int(int64(provider.EffectiveMaxTokens(spec, opts))),
	}
	if opts.Temperature != nil {
		params.Temperature = openai.Float(*opts.Temperature)
	}
	if opts.TopP != nil {
		params.TopP = openai.Float(*opts.TopP)
	}

	var (
		text  string
		usage models.TokenUsage
		err   error
	)
	if opts.Stream && spec.SupportsStream {
		text, usage, err = a.executeStreaming(ctx, params, opts)
	} else {
		text, usage, err = a.executeBlocking(ctx, params)
	}
	if err != nil {
		return nil, a.translate(spec.Name, err)
	}

	if strings.TrimSpace(text) == "" {
		return nil, provider.NewError(models.ErrKindEmptyResponse, a.name, spec.Name,
			errors.New("model returned no text content"))
	}

	return &provider.Result{
		Text:  text,
		Usage: provider.FillUsage(usage, prompt, text),
	}, nil
}

func (a *Adapter) executeBlocking(ctx context.Context, params openai.ChatCompletionNewParams) (string, models.TokenUsage, error) {
	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", models.TokenUsage{}, err
	}
	if len(resp.Choices) == 0 {
		return "", models.TokenUsage{}, nil
	}
	usage := models.TokenUsage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	return resp.Choices[0].Message.Content, usage, nil
}

func (a *Adapter) executeStreaming(ctx context.Context, params openai.ChatCompletionNewParams, opts provider.Options) (string, models.TokenUsage, error) {
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	stream := a.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var (
		b     strings.Builder
		usage models.TokenUsage
	)
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) > 0 {
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				b.WriteString(delta)
				provider.SafeEmit(opts.OnToken, delta)
			}
		}
		if chunk.Usage.TotalTokens > 0 {
			usage.PromptTokens = int(chunk.Usage.PromptTokens)
			usage.CompletionTokens = int(chunk.Usage.CompletionTokens)
			usage.TotalTokens = int(chunk.Usage.TotalTokens)
		}
	}
	if err := stream.Err(); err != nil {
		return "", models.TokenUsage{}, err
	}
	return b.String(), usage, nil
}

// translate maps SDK and transport failures into the error taxonomy.
func (a *Adapter) translate(model string, err error) error {
	if cerr := provider.TranslateContextErr(a.name, model, err); cerr != nil {
		return cerr
	}
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		kind := provider.KindFromHTTPStatus(apierr.StatusCode)
		return provider.NewError(kind, a.name, model,
			fmt.Errorf("openai API status %d: %w", apierr.StatusCode, err))
	}
	return provider.NewError(models.ErrKindHTTPError, a.name, model, err)
}
