package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

const defaultHuggingFaceURL = "https://router.huggingface.co/v1"

// HuggingFaceClient calls the OpenAI compatible chat completions endpoint of
// the Hugging Face inference router.
type HuggingFaceClient struct {
	model       string
	baseURL     string
	token       string
	temperature *float64
	maxTokens   int
	httpClient  *http.Client
	tracker     *UsageTracker
}

// NewHuggingFaceClient creates a router client. The token falls back to HF_TOKEN.
func NewHuggingFaceClient(cfg Config) (*HuggingFaceClient, error) {
	token := cfg.APIKey
	if token == "" {
		token = os.Getenv("HF_TOKEN")
	}
	if token == "" {
		return nil, fmt.Errorf("HF_TOKEN environment variable is not set")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("huggingface backend requires a model name")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultHuggingFaceURL
	}

	return &HuggingFaceClient{
		model:       cfg.Model,
		baseURL:     baseURL,
		token:       token,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient:  &http.Client{Timeout: cfg.timeout()},
		tracker:     NewUsageTracker(),
	}, nil
}

// Model returns the configured model name.
func (c *HuggingFaceClient) Model() string {
	return c.model
}

// Usage returns the token tracker for this client.
func (c *HuggingFaceClient) Usage() *UsageTracker {
	return c.tracker
}

// Chat sends the conversation and returns the first choice's content.
func (c *HuggingFaceClient) Chat(ctx context.Context, messages []Message) (string, error) {
	payload := map[string]any{
		"model":    c.model,
		"messages": convertChatMessages(messages),
	}
	if c.temperature != nil {
		payload["temperature"] = *c.temperature
	}
	if c.maxTokens > 0 {
		payload["max_tokens"] = c.maxTokens
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("huggingface request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("huggingface request failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var response chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("huggingface response has no choices")
	}

	c.tracker.Add(response.Usage.PromptTokens, response.Usage.CompletionTokens)
	return response.Choices[0].Message.Content, nil
}

// convertChatMessages renders messages in the OpenAI wire shape. Images are
// sent as inline data URLs next to the text part.
func convertChatMessages(messages []Message) []map[string]any {
	out := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		if len(m.Images) == 0 {
			out = append(out, map[string]any{"role": string(m.Role), "content": m.Content})
			continue
		}
		parts := []map[string]any{{"type": "text", "text": m.Content}}
		for _, img := range m.Images {
			parts = append(parts, map[string]any{
				"type":      "image_url",
				"image_url": map[string]any{"url": "data:image/png;base64," + img},
			})
		}
		out = append(out, map[string]any{"role": string(m.Role), "content": parts})
	}
	return out
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}
