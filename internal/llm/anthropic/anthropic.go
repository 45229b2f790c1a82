// Package anthropic implements llm.Provider for the Anthropic Messages API.
// Anthropic has no embedding endpoint: GenerateEmbedding returns (nil, nil)
// so the orchestrator falls back to the default embedding provider.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/selimacar/sage/internal/llm"
)

const defaultBaseURL = "https://api.anthropic.com/v1"

const tagsSystemPrompt = "You extract topic tags. Given a text, respond with 3-8 short lowercase tags, comma-separated, nothing else."

// Client implements llm.Provider for the Anthropic Messages API.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

// New creates an Anthropic provider.
func New(apiKey, model, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 120 * time.Second},
	}
}

func (c *Client) Name() string { return "anthropic" }

func (c *Client) GenerateResponse(ctx context.Context, systemPrompt, userMessage string, history []llm.Message, opts *llm.RequestOptions) (*llm.Response, error) {
	maxTokens := 1024
	if opts != nil && opts.MaxTokens != nil {
		maxTokens = *opts.MaxTokens
	}

	// The Messages API accepts only user/assistant turns; system-role history
	// content is folded into the system block so nothing is dropped.
	system := systemPrompt
	var msgs []map[string]string
	for _, m := range history {
		if m.Role == llm.RoleSystem {
			system = strings.TrimSpace(system + "\n\n" + m.Content)
			continue
		}
		msgs = append(msgs, map[string]string{"role": string(m.Role), "content": m.Content})
	}
	msgs = append(msgs, map[string]string{"role": "user", "content": userMessage})

	body := map[string]any{
		"model":      c.model,
		"max_tokens": maxTokens,
		"messages":   msgs,
	}
	if system != "" {
		body["system"] = system
	}
	if opts != nil {
		if opts.Temperature != nil {
			body["temperature"] = *opts.Temperature
		}
		if opts.TopP != nil {
			body["top_p"] = *opts.TopP
		}
		if len(opts.StopSeqs) > 0 {
			body["stop_sequences"] = opts.StopSeqs
		}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		var retryAfter time.Duration
		if secs, err := strconv.Atoi(resp.Header.Get("retry-after")); err == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
		return nil, &llm.RateLimitError{Provider: c.Name(), RetryAfter: retryAfter, Message: string(respBody)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &llm.UpstreamError{Provider: c.Name(), Status: resp.Status, Body: string(respBody)}
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		Model string `json:"model"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("anthropic: decode response: %w", err)
	}

	text := ""
	if len(result.Content) > 0 {
		text = result.Content[0].Text
	}

	return &llm.Response{
		Content: text,
		Model:   result.Model,
		Tokens: llm.TokenUsage{
			Prompt:     result.Usage.InputTokens,
			Completion: result.Usage.OutputTokens,
			Total:      result.Usage.InputTokens + result.Usage.OutputTokens,
		},
	}, nil
}

// GenerateEmbedding reports the capability as unsupported.
func (c *Client) GenerateEmbedding(_ context.Context, _ string) ([]float32, error) {
	return nil, nil
}

func (c *Client) GenerateTags(ctx context.Context, text string) ([]string, error) {
	resp, err := c.GenerateResponse(ctx, tagsSystemPrompt, text, nil, nil)
	if err != nil {
		return nil, err
	}
	return llm.ParseTagList(resp.Content), nil
}
