// Package google adapts the Gemini API (google.golang.org/genai) to the
// llm.Provider surface, grounded on the teacher's internal/llm/google/
// client.go client construction, trimmed to a single non-streaming call.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	genai "google.golang.org/genai"

	"sentinel/internal/config"
	"sentinel/internal/model"
	"sentinel/internal/observability"
)

// Client is an llm.Provider backed by the Gemini GenerateContent API.
type Client struct {
	client *genai.Client
	model  string
}

// New constructs a Client from the configured Google block.
func New(cfg config.GoogleConfig, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	m := strings.TrimSpace(cfg.Model)
	if m == "" {
		m = "gemini-1.5-flash"
	}
	httpOpts := genai.HTTPOptions{}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		httpOpts.BaseURL = strings.TrimSuffix(base, "/") + "/"
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      strings.TrimSpace(cfg.APIKey),
		HTTPClient:  httpClient,
		HTTPOptions: httpOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("init google client: %w", err)
	}
	return &Client{client: client, model: m}, nil
}

// Complete issues one non-streaming GenerateContent call.
func (c *Client) Complete(ctx context.Context, req model.ChatRequest) (model.Response, error) {
	var systemParts []string
	var contents []*genai.Content
	for _, m := range req.Messages {
		switch strings.ToLower(m.Role) {
		case "system":
			systemParts = append(systemParts, m.Content)
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	modelName := req.Model
	if modelName == "" {
		modelName = c.model
	}
	var cfg *genai.GenerateContentConfig
	if len(systemParts) > 0 {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(strings.Join(systemParts, "\n"), genai.RoleUser),
		}
	}

	ctx, span := observability.StartSpan(ctx, "google.complete", modelName)
	defer span.End()

	l := observability.LoggerWithTrace(ctx).With().Str("model", modelName).Logger()

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, modelName, contents, cfg)
	dur := time.Since(start)
	if err != nil {
		detail, _ := json.Marshal(map[string]string{"error": err.Error()})
		l.Error().RawJSON("detail", observability.RedactJSON(detail)).Dur("duration", dur).Msg("google_complete_error")
		return model.Response{}, err
	}
	if body, merr := json.Marshal(resp); merr == nil {
		l.Debug().RawJSON("response", observability.RedactJSON(body)).Dur("duration", dur).Msg("google_complete_ok")
	} else {
		l.Debug().Dur("duration", dur).Msg("google_complete_ok")
	}

	var blocks []model.Block
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" {
				text := part.Text
				blocks = append(blocks, model.Block{Text: &text})
			}
		}
	}
	return model.Response{Content: blocks}, nil
}
