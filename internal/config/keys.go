package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ShayCichocki/hydra/internal/llm"
)

// ErrNoAPIKey is returned when the selected backend needs a key and none is configured.
var ErrNoAPIKey = errors.New("no API key configured")

// KeySource represents where an API key was loaded from.
type KeySource string

const (
	KeySourceEnv         KeySource = "environment"
	KeySourceConfig      KeySource = "config_file"
	KeySourceNotRequired KeySource = "not_required"
	KeySourceNone        KeySource = "none"
)

// backendKey describes the credential a hosted backend expects.
type backendKey struct {
	env    string
	prefix string
}

var backendKeys = map[string]backendKey{
	llm.BackendAnthropic:   {env: "ANTHROPIC_API_KEY", prefix: "sk-ant-"},
	"claude":               {env: "ANTHROPIC_API_KEY", prefix: "sk-ant-"},
	llm.BackendHuggingFace: {env: "HF_TOKEN", prefix: "hf_"},
	"hf":                   {env: "HF_TOKEN", prefix: "hf_"},
}

const minKeyLen = 20

// KeyEnvVar returns the environment variable holding the key for backend.
// Ollama needs no key and returns "".
func KeyEnvVar(backend string) string {
	return backendKeys[strings.ToLower(backend)].env
}

// resolveKey looks for the backend's key in the environment, then in the
// config file. Unexpanded ${VAR} references count as unset.
func resolveKey(cfg *Config) (string, KeySource) {
	if cfg == nil {
		return "", KeySourceNone
	}
	env := KeyEnvVar(cfg.Model.Backend)
	if env == "" {
		return "", KeySourceNotRequired
	}
	if key := os.Getenv(env); key != "" {
		return key, KeySourceEnv
	}
	if key := os.ExpandEnv(cfg.Model.APIKey); key != "" && !strings.HasPrefix(key, "${") {
		return key, KeySourceConfig
	}
	return "", KeySourceNone
}

// GetAPIKey returns the API key for the configured backend. Backends that
// need no key, and Bedrock which uses the AWS credential chain, return "".
func GetAPIKey(cfg *Config) (string, error) {
	key, src := resolveKey(cfg)
	if src == KeySourceNone && (cfg == nil || !cfg.Model.AWSBedrock) {
		return "", ErrNoAPIKey
	}
	return key, nil
}

// GetAPIKeySource returns where the API key was sourced from.
func GetAPIKeySource(cfg *Config) KeySource {
	_, src := resolveKey(cfg)
	return src
}

// ValidateAPIKey checks the shape of key for backend without contacting the
// provider.
func ValidateAPIKey(backend, key string) error {
	bk, ok := backendKeys[strings.ToLower(backend)]
	if !ok {
		return nil
	}
	if key == "" {
		return ErrNoAPIKey
	}
	if !strings.HasPrefix(key, bk.prefix) {
		return fmt.Errorf("invalid %s format: expected %q prefix", bk.env, bk.prefix)
	}
	if len(key) < minKeyLen {
		return fmt.Errorf("invalid %s format: key too short", bk.env)
	}
	return nil
}

// MaskAPIKey shows the first 7 and last 4 characters of key.
func MaskAPIKey(key string) string {
	switch {
	case key == "":
		return "(not set)"
	case len(key) <= 15:
		return "***"
	}
	return key[:7] + "..." + key[len(key)-4:]
}
