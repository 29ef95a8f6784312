// Package openai adapts the OpenAI Chat Completions API to the llm.Provider
// surface, grounded on the teacher's internal/llm/openai/client.go client
// construction but trimmed to a single non-streaming call: this system
// never streams and never needs the teacher's self-hosted-transport or
// image-generation branches.
package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"sentinel/internal/config"
	"sentinel/internal/model"
	"sentinel/internal/observability"
)

// Client is an llm.Provider backed by the OpenAI Chat Completions API.
type Client struct {
	sdk   sdk.Client
	model string
}

// New constructs a Client from the configured OpenAI block.
func New(cfg config.OpenAIConfig, httpClient *http.Client) *Client {
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
		m = "gpt-4o-mini"
	}
	return &Client{sdk: sdk.NewClient(opts...), model: m}
}

// Complete issues one non-streaming Chat Completions call.
func (c *Client) Complete(ctx context.Context, req model.ChatRequest) (model.Response, error) {
	var messages []sdk.ChatCompletionMessageParamUnion
	for _, m := range req.Messages {
		switch strings.ToLower(m.Role) {
		case "system":
			messages = append(messages, sdk.SystemMessage(m.Content))
		case "assistant":
			messages = append(messages, sdk.AssistantMessage(m.Content))
		default:
			messages = append(messages, sdk.UserMessage(m.Content))
		}
	}

	modelName := req.Model
	if modelName == "" {
		modelName = c.model
	}
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(modelName),
		Messages: messages,
	}

	ctx, span := observability.StartSpan(ctx, "openai.complete", modelName)
	defer span.End()

	l := observability.LoggerWithTrace(ctx).With().Str("model", modelName).Logger()

	start := time.Now()
	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		detail, _ := json.Marshal(map[string]string{"error": err.Error()})
		l.Error().RawJSON("detail", observability.RedactJSON(detail)).Dur("duration", dur).Msg("openai_complete_error")
		return model.Response{}, err
	}
	if body, merr := json.Marshal(comp); merr == nil {
		l.Debug().RawJSON("response", observability.RedactJSON(body)).Dur("duration", dur).Msg("openai_complete_ok")
	} else {
		l.Debug().Dur("duration", dur).Msg("openai_complete_ok")
	}

	var blocks []model.Block
	if len(comp.Choices) > 0 {
		text := comp.Choices[0].Message.Content
		blocks = append(blocks, model.Block{Text: &text})
	}
	return model.Response{Content: blocks}, nil
}
