// Package llm talks to an OpenAI-compatible chat completions endpoint.
// Calls are never retried; every call is bounded by the client timeout.
package llm

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

	"digestbot/internal/config"
	"digestbot/internal/model"
)

// ErrEmptyResponse is returned when the model produced no usable content.
var ErrEmptyResponse = errors.New("empty model response")

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// System builds a system message.
func System(content string) Message { return Message{Role: "system", Content: content} }

// User builds a user message.
func User(content string) Message { return Message{Role: "user", Content: content} }

// ScoreResult is the structured relevance verdict for one article.
type ScoreResult struct {
	Score     int
	Reasoning string
}

// Client is a chat completions client bound to one model.
type Client struct {
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	httpClient  *http.Client
}

// New builds a client from configuration.
func New(cfg config.LLMConfig) *Client {
	return &Client{
		endpoint:    cfg.Endpoint,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
	}
}

// WithModel returns a copy of c using model and temperature where set.
func (c *Client) WithModel(model string, temperature *float64) *Client {
	cp := *c
	if model != "" {
		cp.model = model
	}
	if temperature != nil {
		cp.temperature = *temperature
	}
	return &cp
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *jsonSchema `json:"json_schema,omitempty"`
}

type jsonSchema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

var scoreFormat = &responseFormat{
	Type: "json_schema",
	JSONSchema: &jsonSchema{
		Name:   "relevance_score",
		Strict: true,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"score": map[string]any{
					"type":        "integer",
					"minimum":     model.MinScore,
					"maximum":     model.MaxScore,
					"description": "Relevance from 1 (unrelated) to 100 (essential)",
				},
				"reasoning": map[string]any{
					"type":        "string",
					"description": "One or two sentences explaining the score",
				},
			},
			"required":             []string{"score", "reasoning"},
			"additionalProperties": false,
		},
	},
}

// Complete returns the trimmed text of the first choice.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	text, err := c.do(ctx, chatRequest{Model: c.model, Messages: messages, Temperature: c.temperature})
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Score asks for a structured {score, reasoning} answer and validates it.
func (c *Client) Score(ctx context.Context, messages []Message) (ScoreResult, error) {
	text, err := c.do(ctx, chatRequest{
		Model:          c.model,
		Messages:       messages,
		Temperature:    c.temperature,
		ResponseFormat: scoreFormat,
	})
	if err != nil {
		return ScoreResult{}, err
	}
	return ParseScore(text)
}

// ParseScore decodes a structured score answer. The score is required
// and must be within the accepted range.
func ParseScore(text string) (ScoreResult, error) {
	var raw struct {
		Score     *int    `json:"score"`
		Reasoning *string `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &raw); err != nil {
		return ScoreResult{}, fmt.Errorf("decode score: %w", err)
	}
	if raw.Score == nil {
		return ScoreResult{}, fmt.Errorf("decode score: missing score field")
	}
	if *raw.Score < model.MinScore || *raw.Score > model.MaxScore {
		return ScoreResult{}, fmt.Errorf("decode score: %d outside %d-%d", *raw.Score, model.MinScore, model.MaxScore)
	}
	res := ScoreResult{Score: *raw.Score}
	if raw.Reasoning != nil {
		res.Reasoning = strings.TrimSpace(*raw.Reasoning)
	}
	return res, nil
}

func (c *Client) do(ctx context.Context, payload chatRequest) (string, error) {
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", fmt.Errorf("llm client misconfigured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("chat completion %s after %s: %s",
			resp.Status, time.Since(start).Round(time.Millisecond), truncate(strings.TrimSpace(string(raw)), 512))
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("chat completion: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	msg := out.Choices[0].Message
	if msg.Refusal != "" {
		return "", fmt.Errorf("model refused: %s", msg.Refusal)
	}
	return msg.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
