// Package ai asks an OpenAI-compatible chat endpoint for tags and a
// summary of a captured tweet. It backs the dashboard's analyze route
// only; the capture pipeline never touches it.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"apex/internal/config"
)

// Result is the analysis contract the dashboard consumes.
type Result struct {
	Tags    []string `json:"tags"`
	Summary string   `json:"summary"`
}

const systemPrompt = `You are a tweet archivist. Given a tweet's text, respond with a JSON object {"tags": [...], "summary": "..."}. Tags are 1-5 lowercase topic keywords. The summary is one sentence. Respond with JSON only.`

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type Client struct {
	cfg  config.AIConfig
	http *http.Client
}

func NewClient(cfg config.AIConfig) *Client {
	return &Client{cfg: cfg, http: &http.Client{Timeout: 60 * time.Second}}
}

// Analyze returns tags and a one-line summary for the tweet text.
func (c *Client) Analyze(ctx context.Context, text string) (Result, error) {
	if c.cfg.APIKey == "" {
		return Result{}, fmt.Errorf("ai: no api key configured")
	}
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: text},
		},
		ResponseFormat: &respFormat{Type: "json_object"},
	})
	if err != nil {
		return Result{}, err
	}
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("ai request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Result{}, fmt.Errorf("ai status %d", resp.StatusCode)
	}
	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return Result{}, fmt.Errorf("decode ai response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return Result{}, fmt.Errorf("ai returned no choices")
	}
	var out Result
	if err := json.Unmarshal([]byte(cr.Choices[0].Message.Content), &out); err != nil {
		return Result{}, fmt.Errorf("ai returned non-JSON content: %w", err)
	}
	return out, nil
}
