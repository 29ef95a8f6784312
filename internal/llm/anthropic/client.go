// Package anthropic adapts the Anthropic Messages API to the llm.Provider
// surface, grounded on the teacher's internal/llm/anthropic/client.go
// (client construction, context-scoped span + structured logging around one
// call) but trimmed to this system's needs: no streaming, no tool-call
// accumulation, no extended-thinking bookkeeping, since the observer runner
// only ever issues one-shot completions.
package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"sentinel/internal/config"
	"sentinel/internal/model"
	"sentinel/internal/observability"
)

const defaultMaxTokens int64 = 1024

// Client is an llm.Provider backed by the Anthropic Messages API.
type Client struct {
	sdk       sdk.Client
	model     string
	maxTokens int64
}

// New constructs a Client from the configured Anthropic block.
func New(cfg config.AnthropicConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	m := strings.TrimSpace(cfg.Model)
	if m == "" {
		m = string(sdk.ModelClaude3_7SonnetLatest)
	}
	return &Client{sdk: sdk.NewClient(opts...), model: m, maxTokens: defaultMaxTokens}
}

// Complete issues one non-streaming Messages call.
func (c *Client) Complete(ctx context.Context, req model.ChatRequest) (model.Response, error) {
	var system []sdk.TextBlockParam
	var messages []sdk.MessageParam
	for _, m := range req.Messages {
		switch strings.ToLower(m.Role) {
		case "system":
			if strings.TrimSpace(m.Content) != "" {
				system = append(system, sdk.TextBlockParam{Text: m.Content})
			}
		case "assistant":
			messages = append(messages, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			messages = append(messages, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}

	modelName := req.Model
	if modelName == "" {
		modelName = c.model
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(modelName),
		Messages:  messages,
		System:    system,
		MaxTokens: c.maxTokens,
	}

	ctx, span := observability.StartSpan(ctx, "anthropic.complete", modelName)
	defer span.End()

	l := observability.LoggerWithTrace(ctx).With().Str("model", modelName).Logger()

	start := time.Now()
	resp, err := c.sdk.Messages.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		detail, _ := json.Marshal(map[string]string{"error": err.Error()})
		l.Error().RawJSON("detail", observability.RedactJSON(detail)).Dur("duration", dur).Msg("anthropic_complete_error")
		return model.Response{}, err
	}
	if body, merr := json.Marshal(resp); merr == nil {
		l.Debug().RawJSON("response", observability.RedactJSON(body)).Dur("duration", dur).Msg("anthropic_complete_ok")
	} else {
		l.Debug().Dur("duration", dur).Msg("anthropic_complete_ok")
	}

	var blocks []model.Block
	for _, b := range resp.Content {
		if tb, ok := b.AsAny().(sdk.TextBlock); ok {
			text := tb.Text
			blocks = append(blocks, model.Block{Text: &text})
		}
	}
	return model.Response{Content: blocks}, nil
}
