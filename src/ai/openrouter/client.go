package openrouter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stake-plus/fitbet/src/ai/core"
	"github.com/stake-plus/fitbet/src/webclient"
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

func init() {
	core.RegisterProvider("openrouter", newClient)
}

type client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	defaults   core.Options
}

func newClient(cfg core.FactoryConfig) (core.Client, error) {
	if cfg.OpenRouterKey == "" {
		return nil, fmt.Errorf("openrouter: API key not configured")
	}
	return &client{
		apiKey:     cfg.OpenRouterKey,
		baseURL:    strings.TrimRight(valueOrDefault(cfg.BaseURL, defaultBaseURL), "/"),
		httpClient: webclient.NewDefault(90 * time.Second),
		defaults: core.Options{
			Model:               core.ResolveModelName("openrouter", cfg.Model),
			Temperature:         orFloat(cfg.Temperature, 0.3),
			MaxCompletionTokens: cfg.MaxCompletionTokens,
			SystemPrompt:        cfg.SystemPrompt,
		},
	}, nil
}

func (c *client) Complete(ctx context.Context, prompt string, opts core.Options) (core.Completion, error) {
	merged := c.merge(opts)
	messages := []map[string]string{}
	if merged.SystemPrompt != "" {
		messages = append(messages, map[string]string{"role": "system", "content": merged.SystemPrompt})
	}
	messages = append(messages, map[string]string{"role": "user", "content": prompt})
	reqBody := map[string]interface{}{
		"model":       merged.Model,
		"messages":    messages,
		"temperature": merged.Temperature,
	}
	if merged.MaxCompletionTokens > 0 {
		reqBody["max_tokens"] = merged.MaxCompletionTokens
	}
	bodyBytes, _ := json.Marshal(reqBody)

	body, err := webclient.PostJSON(ctx, c.httpClient, c.baseURL+"/chat/completions", map[string]string{
		"Authorization": "Bearer " + c.apiKey,
	}, bodyBytes, 3)
	if err != nil {
		return core.Completion{}, fmt.Errorf("openrouter API error: %w", err)
	}

	var result struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return core.Completion{}, fmt.Errorf("openrouter: decode: %w", err)
	}
	if len(result.Choices) == 0 {
		return core.Completion{}, fmt.Errorf("openrouter: no choices in response")
	}
	return core.Completion{
		Text:       result.Choices[0].Message.Content,
		Model:      valueOrDefault(result.Model, merged.Model),
		TokensUsed: result.Usage.TotalTokens,
	}, nil
}

func (c *client) merge(opts core.Options) core.Options {
	out := c.defaults
	if opts.Model != "" {
		out.Model = opts.Model
	}
	if opts.Temperature != 0 {
		out.Temperature = opts.Temperature
	}
	if opts.SystemPrompt != "" {
		out.SystemPrompt = opts.SystemPrompt
	}
	if opts.MaxCompletionTokens != 0 {
		out.MaxCompletionTokens = opts.MaxCompletionTokens
	}
	return out
}

func valueOrDefault(val, def string) string {
	if val != "" {
		return val
	}
	return def
}

func orFloat(v, d float64) float64 {
	if v != 0 {
		return v
	}
	return d
}
