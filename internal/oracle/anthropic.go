package oracle

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/cognicore/redline/pkg/redline/internalerr"
	"github.com/cognicore/redline/pkg/redline/suggest"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-sonnet-4-5-20250929"

const anthropicMaxTokens = 1024

// Anthropic implements suggest.Oracle over the Anthropic Messages API.
type Anthropic struct {
	client  anthropic.Client
	model   string
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

// NewAnthropic builds the adapter. The logger may be nil.
func NewAnthropic(apiKey, model string, log *zap.Logger) *Anthropic {
	if model == "" {
		model = DefaultAnthropicModel
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Anthropic{
		client:  anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		breaker: newBreaker("anthropic", log),
		log:     log,
	}
}

// Suggest implements suggest.Oracle.
func (a *Anthropic) Suggest(ctx context.Context, text string, req suggest.Request, max int) ([]suggest.Candidate, error) {
	return a.call(ctx, suggestPrompt(text, req, max))
}

// Alternatives implements suggest.Oracle.
func (a *Anthropic) Alternatives(ctx context.Context, rule suggest.ReplaceRule, window string, max int) ([]suggest.Candidate, error) {
	return a.call(ctx, alternativesPrompt(rule, window, max))
}

func (a *Anthropic) call(ctx context.Context, userPrompt string) ([]suggest.Candidate, error) {
	out, err := a.breaker.Execute(func() (any, error) {
		message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(a.model),
			MaxTokens: anthropicMaxTokens,
			System: []anthropic.TextBlockParam{
				{Text: systemPrompt},
			},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
			},
		})
		if err != nil {
			return nil, err
		}
		for _, block := range message.Content {
			if block.Type == "text" {
				a.log.Debug("anthropic reply",
					zap.Int("chars", len(block.Text)),
					zap.Int64("tokensIn", message.Usage.InputTokens),
					zap.Int64("tokensOut", message.Usage.OutputTokens))
				return parseCandidates(block.Text)
			}
		}
		return nil, fmt.Errorf("no text content in response")
	})
	if err != nil {
		return nil, fmt.Errorf("%w: anthropic: %v", internalerr.ErrOracleUnavailable, err)
	}
	return out.([]suggest.Candidate), nil
}
