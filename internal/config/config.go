// Package config handles configuration loading and management for hydra.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/hydra/internal/llm"
	"github.com/ShayCichocki/hydra/internal/logging"
	"github.com/ShayCichocki/hydra/internal/transport"
)

// EnvPrefix is the prefix of environment overrides, e.g. HYDRA_MODEL_BACKEND.
const EnvPrefix = "HYDRA"

// Config holds all configuration for hydra.
type Config struct {
	Model        ModelConfig        `mapstructure:"model"`
	Classifier   ClassifierConfig   `mapstructure:"classifier"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Transport    TransportConfig    `mapstructure:"transport"`
	State        StateConfig        `mapstructure:"state"`
	Log          LogConfig          `mapstructure:"log"`
	Status       StatusConfig       `mapstructure:"status"`

	// DevicesFile is the JSON device inventory.
	DevicesFile string `mapstructure:"devices_file"`
	// DefaultClass is given to inventory entries without a class. Empty
	// means such entries are skipped.
	DefaultClass string `mapstructure:"default_class"`
	// PromptsFile overrides the built-in prompts.
	PromptsFile string `mapstructure:"prompts_file"`
}

// ModelConfig selects the language model backend.
type ModelConfig struct {
	Backend     string        `mapstructure:"backend"`
	Name        string        `mapstructure:"name"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Temperature float64       `mapstructure:"temperature"` // negative: backend default
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	AWSBedrock  bool          `mapstructure:"aws_bedrock"`
	AWSRegion   string        `mapstructure:"aws_region"`
	AWSProfile  string        `mapstructure:"aws_profile"`
}

// ClassifierConfig holds classifier settings.
type ClassifierConfig struct {
	// Mode is per_task or batch.
	Mode        string `mapstructure:"mode"`
	MaxAttempts int    `mapstructure:"max_attempts"`
	CacheSize   int    `mapstructure:"cache_size"`
}

// OrchestratorConfig holds dispatch cycle settings.
type OrchestratorConfig struct {
	MaxClassifyAttempts int `mapstructure:"max_classify_attempts"`
}

// TransportConfig holds ZeroMQ settings.
type TransportConfig struct {
	// Mode is bind (the sender binds the PUB socket) or connect.
	Mode              string        `mapstructure:"mode"`
	BindHost          string        `mapstructure:"bind_host"`
	PublishPort       int           `mapstructure:"publish_port"`
	DefaultTopic      string        `mapstructure:"default_topic"`
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
	Repeat            int           `mapstructure:"repeat"`
	RepeatInterval    time.Duration `mapstructure:"repeat_interval"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	InactivityTimeout time.Duration `mapstructure:"inactivity_timeout"`
}

// StateConfig holds audit database settings.
type StateConfig struct {
	// Path of the SQLite file. Empty means .hydra/state.db in the project.
	Path     string `mapstructure:"path"`
	Disabled bool   `mapstructure:"disabled"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	DebugFile string `mapstructure:"debug_file"`
}

// StatusConfig holds the status server settings.
type StatusConfig struct {
	// Addr is the listen address, e.g. ":8080". Empty disables the server.
	Addr string `mapstructure:"addr"`
}

// temperature returns nil for a negative setting so the backend keeps its
// own default. Zero is passed through.
func (c *Config) temperature() *float64 {
	if c.Model.Temperature < 0 {
		return nil
	}
	t := c.Model.Temperature
	return &t
}

// LLM converts the model section into a client configuration. The API key is
// resolved through GetAPIKey.
func (c *Config) LLM() llm.Config {
	key, _ := GetAPIKey(c)
	return llm.Config{
		Backend:       c.Model.Backend,
		Model:         c.Model.Name,
		BaseURL:       c.Model.BaseURL,
		APIKey:        key,
		Temperature:   c.temperature(),
		MaxTokens:     c.Model.MaxTokens,
		Timeout:       c.Model.Timeout,
		UseAWSBedrock: c.Model.AWSBedrock,
		AWSRegion:     c.Model.AWSRegion,
		AWSProfile:    c.Model.AWSProfile,
	}
}

// Logging converts the log section into a logger configuration.
func (c *Config) Logging() logging.Config {
	return logging.Config{
		Level:     c.Log.Level,
		Format:    c.Log.Format,
		DebugFile: c.Log.DebugFile,
	}
}

// PublisherConfig builds the publisher settings. Peers are only used in
// connect mode.
func (c *Config) PublisherConfig(peers []string) transport.PublisherConfig {
	return transport.PublisherConfig{
		Mode:           c.Transport.Mode,
		BindEndpoint:   transport.TCPEndpoint(c.Transport.BindHost, c.Transport.PublishPort),
		Peers:          peers,
		SettleDelay:    c.Transport.SettleDelay,
		Repeat:         c.Transport.Repeat,
		RepeatInterval: c.Transport.RepeatInterval,
	}
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (HYDRA_*, plus ANTHROPIC_API_KEY and HF_TOKEN for keys)
// 2. Project config (.hydra.yaml in current directory or parent)
// 3. User config (~/.config/hydra/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := newViper()

	// Load user config from XDG path
	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Load project config if present
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		// Merge project config (takes precedence)
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path on top of the
// defaults. Environment overrides still apply.
func LoadFromPath(path string) (*Config, error) {
	v := newViper()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Model.APIKey = expandEnv(cfg.Model.APIKey)
	cfg.DevicesFile = expandEnv(cfg.DevicesFile)
	cfg.PromptsFile = expandEnv(cfg.PromptsFile)
	cfg.State.Path = expandEnv(cfg.State.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Model.Backend {
	case llm.BackendOllama, llm.BackendHuggingFace, llm.BackendAnthropic, "hf", "claude":
	default:
		return fmt.Errorf("model.backend: %w: %q", llm.ErrUnsupportedBackend, c.Model.Backend)
	}
	switch c.Classifier.Mode {
	case "per_task", "batch":
	default:
		return fmt.Errorf("classifier.mode: unknown mode %q", c.Classifier.Mode)
	}
	if _, err := transport.ParseMode(c.Transport.Mode); err != nil {
		return fmt.Errorf("transport.mode: %w", err)
	}
	if c.Model.Temperature > 2 {
		return fmt.Errorf("model.temperature: %g is above 2", c.Model.Temperature)
	}
	switch c.DefaultClass {
	case "", "regular_model", "thinking_model":
	default:
		return fmt.Errorf("default_class: unknown class %q", c.DefaultClass)
	}
	return nil
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return SaveTo(cfg, filepath.Join(userConfigDir, "config.yaml"))
}

// SaveTo writes the configuration to path.
func SaveTo(cfg *Config, path string) error {
	v := viper.New()
	v.SetConfigFile(path)

	v.Set("model.backend", cfg.Model.Backend)
	v.Set("model.name", cfg.Model.Name)
	v.Set("model.base_url", cfg.Model.BaseURL)
	v.Set("model.api_key", cfg.Model.APIKey)
	v.Set("model.temperature", cfg.Model.Temperature)
	v.Set("model.max_tokens", cfg.Model.MaxTokens)
	v.Set("model.timeout", cfg.Model.Timeout.String())
	v.Set("model.aws_bedrock", cfg.Model.AWSBedrock)
	v.Set("model.aws_region", cfg.Model.AWSRegion)
	v.Set("model.aws_profile", cfg.Model.AWSProfile)
	v.Set("classifier.mode", cfg.Classifier.Mode)
	v.Set("classifier.max_attempts", cfg.Classifier.MaxAttempts)
	v.Set("classifier.cache_size", cfg.Classifier.CacheSize)
	v.Set("orchestrator.max_classify_attempts", cfg.Orchestrator.MaxClassifyAttempts)
	v.Set("transport.mode", cfg.Transport.Mode)
	v.Set("transport.bind_host", cfg.Transport.BindHost)
	v.Set("transport.publish_port", cfg.Transport.PublishPort)
	v.Set("transport.default_topic", cfg.Transport.DefaultTopic)
	v.Set("transport.handshake_timeout", cfg.Transport.HandshakeTimeout.String())
	v.Set("transport.settle_delay", cfg.Transport.SettleDelay.String())
	v.Set("transport.repeat", cfg.Transport.Repeat)
	v.Set("transport.repeat_interval", cfg.Transport.RepeatInterval.String())
	v.Set("transport.poll_interval", cfg.Transport.PollInterval.String())
	v.Set("transport.inactivity_timeout", cfg.Transport.InactivityTimeout.String())
	v.Set("state.path", cfg.State.Path)
	v.Set("state.disabled", cfg.State.Disabled)
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.format", cfg.Log.Format)
	v.Set("log.debug_file", cfg.Log.DebugFile)
	v.Set("status.addr", cfg.Status.Addr)
	v.Set("devices_file", cfg.DevicesFile)
	v.Set("default_class", cfg.DefaultClass)
	v.Set("prompts_file", cfg.PromptsFile)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("model.backend", d.Model.Backend)
	v.SetDefault("model.name", d.Model.Name)
	v.SetDefault("model.base_url", "")
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.temperature", d.Model.Temperature)
	v.SetDefault("model.max_tokens", d.Model.MaxTokens)
	v.SetDefault("model.timeout", d.Model.Timeout.String())
	v.SetDefault("model.aws_bedrock", false)
	v.SetDefault("model.aws_region", "")
	v.SetDefault("model.aws_profile", "")

	v.SetDefault("classifier.mode", d.Classifier.Mode)
	v.SetDefault("classifier.max_attempts", d.Classifier.MaxAttempts)
	v.SetDefault("classifier.cache_size", d.Classifier.CacheSize)

	v.SetDefault("orchestrator.max_classify_attempts", d.Orchestrator.MaxClassifyAttempts)

	v.SetDefault("transport.mode", d.Transport.Mode)
	v.SetDefault("transport.bind_host", d.Transport.BindHost)
	v.SetDefault("transport.publish_port", d.Transport.PublishPort)
	v.SetDefault("transport.default_topic", d.Transport.DefaultTopic)
	v.SetDefault("transport.handshake_timeout", d.Transport.HandshakeTimeout.String())
	v.SetDefault("transport.settle_delay", d.Transport.SettleDelay.String())
	v.SetDefault("transport.repeat", d.Transport.Repeat)
	v.SetDefault("transport.repeat_interval", d.Transport.RepeatInterval.String())
	v.SetDefault("transport.poll_interval", d.Transport.PollInterval.String())
	v.SetDefault("transport.inactivity_timeout", d.Transport.InactivityTimeout.String())

	v.SetDefault("state.path", "")
	v.SetDefault("state.disabled", false)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.debug_file", "")

	v.SetDefault("status.addr", "")

	v.SetDefault("devices_file", d.DevicesFile)
	v.SetDefault("default_class", "")
	v.SetDefault("prompts_file", "")
}

// getUserConfigDir returns the XDG config directory for hydra.
func getUserConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "hydra")
	}

	// Fall back to ~/.config/hydra
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "hydra")
	}
	return filepath.Join(home, ".config", "hydra")
}

// findProjectConfig searches for .hydra.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".hydra.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Backend:     llm.BackendOllama,
			Name:        "phi4",
			Temperature: -1,
			MaxTokens:   1000,
			Timeout:     2 * time.Minute,
		},
		Classifier: ClassifierConfig{
			Mode:        "per_task",
			MaxAttempts: 3,
			CacheSize:   256,
		},
		Orchestrator: OrchestratorConfig{
			MaxClassifyAttempts: 10,
		},
		Transport: TransportConfig{
			Mode:              transport.ModeBind,
			BindHost:          "*",
			PublishPort:       5555,
			DefaultTopic:      "default",
			HandshakeTimeout:  transport.DefaultHandshakeTimeout,
			SettleDelay:       transport.DefaultSettleDelay,
			Repeat:            1,
			RepeatInterval:    time.Second,
			PollInterval:      transport.DefaultPollInterval,
			InactivityTimeout: transport.DefaultInactivityTimeout,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		DevicesFile: "ip.json",
	}
}
