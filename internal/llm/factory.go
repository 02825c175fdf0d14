package llm

import (
	"fmt"
	"strings"
	"time"
)

// Backend names accepted by New.
const (
	BackendOllama      = "ollama"
	BackendHuggingFace = "huggingface"
	BackendAnthropic   = "anthropic"
)

// Config selects and configures a model backend.
type Config struct {
	// Backend is one of ollama, huggingface or anthropic.
	Backend string
	// Model is the backend specific model name.
	Model string
	// BaseURL overrides the backend endpoint.
	BaseURL string
	// APIKey is the bearer token or Anthropic API key. Falls back to the
	// backend's environment variable when empty.
	APIKey string
	// Temperature is sent when non-nil; nil leaves the backend default.
	Temperature *float64
	MaxTokens   int
	Timeout     time.Duration

	// UseAWSBedrock routes anthropic calls through AWS Bedrock.
	UseAWSBedrock bool
	AWSRegion     string
	AWSProfile    string
}

// New creates a client for cfg.Backend.
func New(cfg Config) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendOllama, "":
		return NewOllamaClient(cfg), nil
	case BackendHuggingFace, "hf":
		return NewHuggingFaceClient(cfg)
	case BackendAnthropic, "claude":
		return NewAnthropicClient(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, cfg.Backend)
	}
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 120 * time.Second
	}
	return c.Timeout
}
