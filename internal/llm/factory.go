package llm

import (
	"fmt"
	"strings"

	"github.com/Veraticus/kasa/internal/common"
)

// Provider base URLs.
const (
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	OpenAIBaseURL     = "https://api.openai.com/v1"
)

// NewClient creates a raw chat client based on the provided configuration.
func NewClient(cfg Config) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openrouter":
		if cfg.BaseURL == "" {
			cfg.BaseURL = OpenRouterBaseURL
		}
		if cfg.Model == "" {
			cfg.Model = "openai/gpt-oss-120b"
		}
	case "openai":
		if cfg.BaseURL == "" {
			cfg.BaseURL = OpenAIBaseURL
		}
		if cfg.Model == "" {
			cfg.Model = "gpt-4o-mini"
		}
	default:
		return nil, fmt.Errorf("%w: unsupported LLM provider: %s", common.ErrInvalidConfig, cfg.Provider)
	}
	client, err := newChatClient(cfg)
	if err != nil {
		return nil, err
	}
	return client, nil
}
