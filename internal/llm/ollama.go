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

var _ ToolCaller = (*OllamaClient)(nil)

// OllamaClient talks to an Ollama server's non-streaming chat endpoint.
type OllamaClient struct {
	model       string
	baseURL     string
	temperature *float64
	maxTokens   int
	httpClient  *http.Client
	tracker     *UsageTracker
}

// NewOllamaClient creates a client for an Ollama server. The base URL falls
// back to OLLAMA_HOST and then to localhost.
func NewOllamaClient(cfg Config) *OllamaClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = strings.TrimRight(os.Getenv("OLLAMA_HOST"), "/")
	}
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	if !strings.HasSuffix(baseURL, "/api") {
		baseURL += "/api"
	}

	model := cfg.Model
	if model == "" {
		model = "llama3.1"
	}

	return &OllamaClient{
		model:       model,
		baseURL:     baseURL,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient:  &http.Client{Timeout: cfg.timeout()},
		tracker:     NewUsageTracker(),
	}
}

// Model returns the configured model name.
func (c *OllamaClient) Model() string {
	return c.model
}

// Usage returns the token tracker for this client.
func (c *OllamaClient) Usage() *UsageTracker {
	return c.tracker
}

// Chat sends the conversation and returns the reply text.
func (c *OllamaClient) Chat(ctx context.Context, messages []Message) (string, error) {
	resp, err := c.do(ctx, messages, nil)
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

// ChatWithTools sends the conversation with tool definitions attached.
func (c *OllamaClient) ChatWithTools(ctx context.Context, messages []Message, tools []Tool) (*ToolReply, error) {
	resp, err := c.do(ctx, messages, tools)
	if err != nil {
		return nil, err
	}

	reply := &ToolReply{Content: resp.Message.Content}
	for i, call := range resp.Message.ToolCalls {
		reply.Calls = append(reply.Calls, ToolCall{
			ID:        fmt.Sprintf("call_%d", i),
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return reply, nil
}

func (c *OllamaClient) do(ctx context.Context, messages []Message, tools []Tool) (*ollamaResponse, error) {
	request := ollamaRequest{
		Model:    c.model,
		Messages: make([]ollamaMessage, 0, len(messages)),
		Stream:   false,
	}
	for _, m := range messages {
		request.Messages = append(request.Messages, ollamaMessage{
			Role:    string(m.Role),
			Content: m.Content,
			Images:  m.Images,
		})
	}
	for _, t := range tools {
		request.Tools = append(request.Tools, ollamaTool{
			Type: "function",
			Function: ollamaFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toolSchema(t),
			},
		})
	}

	options := make(map[string]any)
	if c.temperature != nil {
		options["temperature"] = *c.temperature
	}
	if c.maxTokens > 0 {
		options["num_predict"] = c.maxTokens
	}
	if len(options) > 0 {
		request.Options = options
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama request failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var response ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode ollama response: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("ollama error: %s", response.Error)
	}

	c.tracker.Add(int64(response.PromptEvalCount), int64(response.EvalCount))
	return &response, nil
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	Images    []string         `json:"images,omitempty"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaTool struct {
	Type     string         `json:"type"`
	Function ollamaFunction `json:"function"`
}

type ollamaFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type ollamaResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	DoneReason      string        `json:"done_reason"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
	Error           string        `json:"error"`
}
