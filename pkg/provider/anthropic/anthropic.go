// Package anthropic implements the provider adapter for the Anthropic
// Messages API via the official SDK.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/finsight-ai/finsight/pkg/models"
	"github.com/finsight-ai/finsight/pkg/provider"
)

// Adapter executes tasks against Anthropic Claude models.
type Adapter struct {
	client sdk.Client
	specs  []models.ModelSpec
	logger *slog.Logger
}

// New creates the adapter. The key is required; specs enumerate the Claude
// models this deployment offers.
func New(apiKey string, specs []models.ModelSpec) (*Adapter, error) {
	if apiKey == "" {
		return nil, provider.NewError(models.ErrKindAPIKeyMissing, models.ProviderAnthropic, "",
			errors.New("ANTHROPIC_API_KEY is not set"))
	}
	return &Adapter{
		client: sdk.NewClient(option.WithAPIKey(apiKey)),
		specs:  specs,
		logger: slog.With("component", "anthropic_adapter"),
	}, nil
}

// Name implements provider.Adapter.
func (a *Adapter) Name() models.Provider {
	return models.ProviderAnthropic
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

// HealthCheck implements provider.Adapter by listing models, the cheapest
// authenticated call the API offers.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	if _, err := a.client.Models.List(ctx, sdk.ModelListParams{}); err != nil {
		return a.translate("", err)
	}
	return nil
}

// ExecuteTask implements provider.Adapter.
func (a *Adapter) ExecuteTask(ctx context.Context, spec models.ModelSpec, prompt string, task models.TaskSpec, opts provider.Options) (*provider.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, provider.EffectiveTimeout(spec, opts))
	defer cancel()

	params := sdk.MessageNewParams{
		Model:     sdk.Model(spec.Name),
		MaxTokens: int64(provider.EffectiveMaxTokens(spec, opts)),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	}
	if opts.Temperature != nil {
		params.Temperature = sdk.Float(*opts.Temperature)
	}
	if opts.TopP != nil {
		params.TopP = sdk.Float(*opts.TopP)
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
		return nil, provider.NewError(models.ErrKindEmptyResponse, models.ProviderAnthropic, spec.Name,
			errors.New("model returned no text content"))
	}

	return &provider.Result{
		Text:  text,
		Usage: provider.FillUsage(usage, prompt, text),
	}, nil
}

func (a *Adapter) executeBlocking(ctx context.Context, params sdk.MessageNewParams) (string, models.TokenUsage, error) {
	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", models.TokenUsage{}, err
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	usage := models.TokenUsage{
		PromptTokens:     int(msg.Usage.InputTokens),
		CompletionTokens: int(msg.Usage.OutputTokens),
		TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}
	return b.String(), usage, nil
}

func (a *Adapter) executeStreaming(ctx context.Context, params sdk.MessageNewParams, opts provider.Options) (string, models.TokenUsage, error) {
	stream := a.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	var (
		b     strings.Builder
		usage models.TokenUsage
	)
	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case sdk.MessageStartEvent:
			usage.PromptTokens = int(ev.Message.Usage.InputTokens)
		case sdk.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(sdk.TextDelta); ok && delta.Text != "" {
				b.WriteString(delta.Text)
				provider.SafeEmit(opts.OnToken, delta.Text)
			}
		case sdk.MessageDeltaEvent:
			usage.CompletionTokens = int(ev.Usage.OutputTokens)
		}
	}
	if err := stream.Err(); err != nil {
		return "", models.TokenUsage{}, err
	}

	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	return b.String(), usage, nil
}

// translate maps SDK and transport failures into the error taxonomy.
func (a *Adapter) translate(model string, err error) error {
	if cerr := provider.TranslateContextErr(models.ProviderAnthropic, model, err); cerr != nil {
		return cerr
	}
	var apierr *sdk.Error
	if errors.As(err, &apierr) {
		kind := provider.KindFromHTTPStatus(apierr.StatusCode)
		return provider.NewError(kind, models.ProviderAnthropic, model,
			fmt.Errorf("anthropic API status %d: %w", apierr.StatusCode, err))
	}
	return provider.NewError(models.ErrKindHTTPError, models.ProviderAnthropic, model, err)
}
