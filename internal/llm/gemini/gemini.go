// Package gemini implements llm.Provider for the Google Generative Language
// API (Gemini).
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/selimacar/sage/internal/llm"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

const tagsSystemPrompt = "You extract topic tags. Given a text, respond with 3-8 short lowercase tags, comma-separated, nothing else."

// Client implements llm.Provider for Gemini.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	embedModel string
	http       *http.Client
}

// New creates a Gemini provider.
func New(apiKey, model, baseURL, embedModel string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if embedModel == "" {
		embedModel = "text-embedding-004"
	}
	return &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
		embedModel: embedModel,
		http:       &http.Client{Timeout: 120 * time.Second},
	}
}

func (c *Client) Name() string { return "gemini" }

type geminiContent struct {
	Role  string `json:"role,omitempty"`
	Parts []struct {
		Text string `json:"text"`
	} `json:"parts"`
}

func textContent(role, text string) geminiContent {
	gc := geminiContent{Role: role}
	gc.Parts = []struct {
		Text string `json:"text"`
	}{{Text: text}}
	return gc
}

func (c *Client) GenerateResponse(ctx context.Context, systemPrompt, userMessage string, history []llm.Message, opts *llm.RequestOptions) (*llm.Response, error) {
	// Gemini turns are "user"/"model"; system content goes in a dedicated
	// systemInstruction block.
	var contents []geminiContent
	for _, m := range history {
		role := "user"
		if m.Role == llm.RoleAssistant {
			role = "model"
		}
		contents = append(contents, textContent(role, m.Content))
	}
	contents = append(contents, textContent("user", userMessage))

	body := map[string]any{"contents": contents}
	if systemPrompt != "" {
		body["systemInstruction"] = textContent("", systemPrompt)
	}
	if opts != nil {
		genCfg := map[string]any{}
		if opts.MaxTokens != nil {
			genCfg["maxOutputTokens"] = *opts.MaxTokens
		}
		if opts.Temperature != nil {
			genCfg["temperature"] = *opts.Temperature
		}
		if opts.TopP != nil {
			genCfg["topP"] = *opts.TopP
		}
		if len(opts.StopSeqs) > 0 {
			genCfg["stopSequences"] = opts.StopSeqs
		}
		if len(genCfg) > 0 {
			body["generationConfig"] = genCfg
		}
	}

	path := fmt.Sprintf("/models/%s:generateContent", c.model)
	respBody, err := c.post(ctx, path, body)
	if err != nil {
		return nil, err
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
		UsageMetadata struct {
			PromptTokenCount     int `json:"promptTokenCount"`
			CandidatesTokenCount int `json:"candidatesTokenCount"`
			TotalTokenCount      int `json:"totalTokenCount"`
		} `json:"usageMetadata"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("gemini: decode response: %w", err)
	}

	text := ""
	if len(result.Candidates) > 0 && len(result.Candidates[0].Content.Parts) > 0 {
		text = result.Candidates[0].Content.Parts[0].Text
	}

	return &llm.Response{
		Content: text,
		Model:   c.model,
		Tokens: llm.TokenUsage{
			Prompt:     result.UsageMetadata.PromptTokenCount,
			Completion: result.UsageMetadata.CandidatesTokenCount,
			Total:      result.UsageMetadata.TotalTokenCount,
		},
	}, nil
}

func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	body := map[string]any{
		"model":   "models/" + c.embedModel,
		"content": textContent("", text),
	}

	path := fmt.Sprintf("/models/%s:embedContent", c.embedModel)
	respBody, err := c.post(ctx, path, body)
	if err != nil {
		return nil, err
	}

	var result struct {
		Embedding struct {
			Values []float32 `json:"values"`
		} `json:"embedding"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("gemini: decode embedding: %w", err)
	}
	if len(result.Embedding.Values) == 0 {
		return nil, fmt.Errorf("gemini: empty embedding response")
	}
	return result.Embedding.Values, nil
}

func (c *Client) GenerateTags(ctx context.Context, text string) ([]string, error) {
	resp, err := c.GenerateResponse(ctx, tagsSystemPrompt, text, nil, nil)
	if err != nil {
		return nil, err
	}
	return llm.ParseTagList(resp.Content), nil
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
	req.Header.Set("x-goog-api-key", c.apiKey)

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
		return nil, &llm.RateLimitError{Provider: c.Name(), Message: string(respBody)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &llm.UpstreamError{Provider: c.Name(), Status: resp.Status, Body: string(respBody)}
	}
	return respBody, nil
}
