package config

import (
	"strconv"
	"strings"

	aicore "github.com/stake-plus/fitbet/src/ai/core"
)

// AIConfig holds AI-related configuration
type AIConfig struct {
	Provider      string
	Model         string
	OpenRouterKey string
	ClaudeKey     string
	BaseURL       string
	MaxTokens     int
}

// LoadAIConfig loads AI configuration. The provider defaults to whichever
// key is present, OpenRouter first.
func LoadAIConfig() AIConfig {
	cfg := AIConfig{
		OpenRouterKey: GetSetting("openrouter_api_key", "OPENROUTER_API_KEY", ""),
		ClaudeKey:     GetSetting("claude_api_key", "CLAUDE_API_KEY", ""),
		BaseURL:       GetSetting("ai_base_url", "AI_BASE_URL", ""),
	}

	provider := strings.ToLower(GetSetting("ai_provider", "AI_PROVIDER", ""))
	if provider == "" {
		switch {
		case cfg.OpenRouterKey != "":
			provider = "openrouter"
		case cfg.ClaudeKey != "":
			provider = "anthropic"
		}
	}
	cfg.Provider = provider
	cfg.Model = aicore.ResolveModelName(provider, GetSetting("ai_model", "AI_MODEL", ""))

	if n, err := strconv.Atoi(GetSetting("ai_max_tokens", "AI_MAX_TOKENS", "600")); err == nil && n > 0 {
		cfg.MaxTokens = n
	}
	return cfg
}

// Enabled reports whether the selected provider has a key.
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case "openrouter":
		return c.OpenRouterKey != ""
	case "anthropic", "claude":
		return c.ClaudeKey != ""
	}
	return false
}

// Factory maps the configuration onto the provider registry input.
func (c AIConfig) Factory() aicore.FactoryConfig {
	return aicore.FactoryConfig{
		Provider:            c.Provider,
		Model:               c.Model,
		MaxCompletionTokens: c.MaxTokens,
		OpenRouterKey:       c.OpenRouterKey,
		ClaudeKey:           c.ClaudeKey,
		BaseURL:             c.BaseURL,
	}
}
