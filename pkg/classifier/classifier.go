// Package classifier tags activities with a UN Sustainable Development Goal
// through an OpenAI-compatible chat completions endpoint.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("classifier api key not configured")

const systemPrompt = `You classify student activities against the 17 UN Sustainable Development Goals (SDGs).

Rules:
1. Decide whether the activity is community service, environmental, educational, health related or otherwise helps others.
2. If it is, set "is_sdg" to true (clean-up drives, tree planting, teaching, blood donation, charity).
3. If it is not, set "is_sdg" to false (gaming tournaments, concerts, parties, general meetings).
4. When "is_sdg" is true, set "sdg_category" to the most relevant goal, e.g. "SDG 4: Quality Education". Otherwise use null.

Respond with a JSON object only: {"is_sdg": boolean, "sdg_category": string or null}`

// Result is the classification of one activity.
type Result struct {
	IsSDG    bool    `json:"is_sdg"`
	Category *string `json:"sdg_category"`
}

// Options configures the client.
type Options struct {
	APIURL  string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client calls the chat completions API.
type Client struct {
	opts Options
	http *http.Client
}

// New constructs a client; a nil http client gets one with opts.Timeout.
func New(opts Options, httpClient *http.Client) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{opts: opts, http: httpClient}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Classify asks the model for an SDG annotation of the activity.
func (c *Client) Classify(ctx context.Context, title, description string) (Result, error) {
	if c.opts.APIKey == "" {
		return Result{}, ErrNotConfigured
	}

	payload, err := json.Marshal(chatRequest{
		Model: c.opts.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("Activity Title: %q\nDescription: %q", title, description)},
		},
		Temperature:    0.1,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return Result{}, fmt.Errorf("encode classifier request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.APIURL, bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("build classifier request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("classifier request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("classifier status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("decode classifier response: %w", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return Result{}, errors.New("classifier response has no content")
	}

	var result Result
	if err := json.Unmarshal([]byte(out.Choices[0].Message.Content), &result); err != nil {
		return Result{}, fmt.Errorf("parse classifier content: %w", err)
	}
	if !result.IsSDG {
		result.Category = nil
	} else if result.Category != nil && strings.TrimSpace(*result.Category) == "" {
		result.Category = nil
	}
	return result, nil
}
