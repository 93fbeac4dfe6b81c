package anthropic

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

const defaultBaseURL = "https://api.anthropic.com/v1"

func init() {
	core.RegisterProvider("anthropic", newClient, "claude")
}

type client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	defaults   core.Options
}

func newClient(cfg core.FactoryConfig) (core.Client, error) {
	if cfg.ClaudeKey == "" {
		return nil, fmt.Errorf("anthropic: Claude/Anthropic API key not configured")
	}
	maxTokens := cfg.MaxCompletionTokens
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &client{
		apiKey:     cfg.ClaudeKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: webclient.NewDefault(60 * time.Second),
		defaults: core.Options{
			Model:               core.ResolveModelName("anthropic", cfg.Model),
			Temperature:         cfg.Temperature,
			MaxCompletionTokens: maxTokens,
			SystemPrompt:        cfg.SystemPrompt,
		},
	}, nil
}

func (c *client) Complete(ctx context.Context, prompt string, opts core.Options) (core.Completion, error) {
	merged := c.defaults
	if opts.Model != "" {
		merged.Model = opts.Model
	}
	if opts.Temperature != 0 {
		merged.Temperature = opts.Temperature
	}
	if opts.SystemPrompt != "" {
		merged.SystemPrompt = opts.SystemPrompt
	}
	if opts.MaxCompletionTokens != 0 {
		merged.MaxCompletionTokens = opts.MaxCompletionTokens
	}

	reqBody := map[string]interface{}{
		"model": merged.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"max_tokens":  merged.MaxCompletionTokens,
		"temperature": merged.Temperature,
	}
	if merged.SystemPrompt != "" {
		reqBody["system"] = merged.SystemPrompt
	}
	bodyBytes, _ := json.Marshal(reqBody)

	body, err := webclient.PostJSON(ctx, c.httpClient, c.baseURL+"/messages", map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": "2023-06-01",
	}, bodyBytes, 3)
	if err != nil {
		return core.Completion{}, fmt.Errorf("anthropic API error: %w", err)
	}

	var result struct {
		Model   string `json:"model"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return core.Completion{}, fmt.Errorf("anthropic: decode: %w", err)
	}
	var text strings.Builder
	for _, part := range result.Content {
		if part.Type == "" || part.Type == "text" {
			text.WriteString(part.Text)
		}
	}
	if text.Len() == 0 {
		return core.Completion{}, fmt.Errorf("no response from Claude")
	}
	model := result.Model
	if model == "" {
		model = merged.Model
	}
	return core.Completion{
		Text:       text.String(),
		Model:      model,
		TokensUsed: result.Usage.InputTokens + result.Usage.OutputTokens,
	}, nil
}
