// Package openai implements llm.Provider for OpenAI-compatible APIs
// (OpenAI, Groq, Together, vLLM, Ollama, etc. via BaseURL).
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/selimacar/sage/internal/llm"
)

const defaultBaseURL = "https://api.openai.com/v1"

const tagsSystemPrompt = "You extract topic tags. Given a text, respond with 3-8 short lowercase tags, comma-separated, nothing else."

// Client implements llm.Provider for the OpenAI API surface.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	embedModel string
	http       *http.Client
}

// New creates an OpenAI-compatible provider.
func New(apiKey, model, baseURL, embedModel string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if embedModel == "" {
		embedModel = "text-embedding-3-small"
	}
	return &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
		embedModel: embedModel,
		http:       &http.Client{Timeout: 120 * time.Second},
	}
}

func (c *Client) Name() string { return "openai" }

func (c *Client) GenerateResponse(ctx context.Context, systemPrompt, userMessage string, history []llm.Message, opts *llm.RequestOptions) (*llm.Response, error) {
	var msgs []map[string]string
	if systemPrompt != "" {
		msgs = append(msgs, map[string]string{"role": "system", "content": systemPrompt})
	}
	for _, m := range history {
		msgs = append(msgs, map[string]string{"role": string(m.Role), "content": m.Content})
	}
	msgs = append(msgs, map[string]string{"role": "user", "content": userMessage})

	body := map[string]any{
		"model":    c.model,
		"messages": msgs,
	}
	applyOptions(body, opts)

	respBody, err := c.post(ctx, "/chat/completions", body)
	if err != nil {
		return nil, err
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Model string `json:"model"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}

	text := ""
	if len(result.Choices) > 0 {
		text = result.Choices[0].Message.Content
	}

	return &llm.Response{
		Content: text,
		Model:   result.Model,
		Tokens: llm.TokenUsage{
			Prompt:     result.Usage.PromptTokens,
			Completion: result.Usage.CompletionTokens,
			Total:      result.Usage.TotalTokens,
		},
	}, nil
}

func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	body := map[string]any{
		"model": c.embedModel,
		"input": text,
	}

	respBody, err := c.post(ctx, "/embeddings", body)
	if err != nil {
		return nil, err
	}

	var result struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("openai: decode embedding: %w", err)
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("openai: empty embedding response")
	}
	return result.Data[0].Embedding, nil
}

func (c *Client) GenerateTags(ctx context.Context, text string) ([]string, error) {
	resp, err := c.GenerateResponse(ctx, tagsSystemPrompt, text, nil, nil)
	if err != nil {
		return nil, err
	}
	return llm.ParseTagList(resp.Content), nil
}

func applyOptions(body map[string]any, opts *llm.RequestOptions) {
	if opts == nil {
		return
	}
	if opts.MaxTokens != nil {
		body["max_tokens"] = *opts.MaxTokens
	}
	if opts.Temperature != nil {
		body["temperature"] = *opts.Temperature
	}
	if opts.TopP != nil {
		body["top_p"] = *opts.TopP
	}
	if len(opts.StopSeqs) > 0 {
		body["stop"] = opts.StopSeqs
	}
}

func (c *Client) post(ctx context.Context, path string, body map[string]any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

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
		return nil, &llm.RateLimitError{
			Provider:   c.Name(),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Message:    string(respBody),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &llm.UpstreamError{Provider: c.Name(), Status: resp.Status, Body: string(respBody)}
	}
	return respBody, nil
}

func parseRetryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
