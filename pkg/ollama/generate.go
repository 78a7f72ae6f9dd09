package ollama

import (
	"context"
	"errors"
	"strings"
)

type generateReq struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResp struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Complete runs a non-streaming generation.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	var result generateResp
	req := generateReq{Model: c.model, Prompt: prompt, Options: map[string]any{"temperature": 0.2}}
	if err := c.post(ctx, "/api/generate", req, &result); err != nil {
		return "", err
	}
	text := strings.TrimSpace(result.Response)
	if text == "" {
		return "", errors.New("ollama generate: empty response")
	}
	return text, nil
}
