// Package providers selects and constructs an llm.Provider from
// configuration, grounded on the teacher's internal/llm/providers/
// factory.go switch-on-name shape.
package providers

import (
	"fmt"
	"net/http"

	"sentinel/internal/config"
	"sentinel/internal/llm"
	"sentinel/internal/llm/anthropic"
	"sentinel/internal/llm/google"
	"sentinel/internal/llm/openai"
)

// Build constructs an llm.Provider based on the configured provider name.
func Build(cfg config.Config, httpClient *http.Client) (llm.Provider, error) {
	switch cfg.LLMProvider.Provider {
	case "", "anthropic":
		return anthropic.New(cfg.LLMProvider.Anthropic, httpClient), nil
	case "openai":
		return openai.New(cfg.LLMProvider.OpenAI, httpClient), nil
	case "google":
		return google.New(cfg.LLMProvider.Google, httpClient)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.LLMProvider.Provider)
	}
}
