package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/hydra/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify hydra configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/hydra/config.yaml
Project-specific overrides can be placed in .hydra.yaml
Any key can be overridden from the environment, e.g. HYDRA_MODEL_BACKEND.`,
	Args: cobra.MaximumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// configKeys lists the keys shown by 'hydra config', in display order.
var configKeys = []string{
	"model.backend",
	"model.name",
	"model.base_url",
	"model.api_key",
	"model.temperature",
	"model.max_tokens",
	"model.timeout",
	"model.aws_bedrock",
	"model.aws_region",
	"classifier.mode",
	"classifier.max_attempts",
	"classifier.cache_size",
	"orchestrator.max_classify_attempts",
	"transport.mode",
	"transport.bind_host",
	"transport.publish_port",
	"transport.default_topic",
	"transport.handshake_timeout",
	"transport.settle_delay",
	"transport.repeat",
	"transport.inactivity_timeout",
	"state.path",
	"state.disabled",
	"log.level",
	"log.format",
	"log.debug_file",
	"status.addr",
	"devices_file",
	"default_class",
	"prompts_file",
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	for _, key := range configKeys {
		value, _ := getConfigValue(cfg, key)
		fmt.Printf("%s: %s\n", key, value)
	}
	fmt.Printf("(api key source: %s)\n", config.GetAPIKeySource(cfg))
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "model.backend":
		return cfg.Model.Backend, nil
	case "model.name":
		return cfg.Model.Name, nil
	case "model.base_url":
		return cfg.Model.BaseURL, nil
	case "model.api_key":
		if cfg.Model.APIKey == "" {
			return "(not set)", nil
		}
		return config.MaskAPIKey(cfg.Model.APIKey), nil
	case "model.temperature":
		return strconv.FormatFloat(cfg.Model.Temperature, 'g', -1, 64), nil
	case "model.max_tokens":
		return strconv.Itoa(cfg.Model.MaxTokens), nil
	case "model.timeout":
		return cfg.Model.Timeout.String(), nil
	case "model.aws_bedrock":
		return strconv.FormatBool(cfg.Model.AWSBedrock), nil
	case "model.aws_region":
		return cfg.Model.AWSRegion, nil
	case "classifier.mode":
		return cfg.Classifier.Mode, nil
	case "classifier.max_attempts":
		return strconv.Itoa(cfg.Classifier.MaxAttempts), nil
	case "classifier.cache_size":
		return strconv.Itoa(cfg.Classifier.CacheSize), nil
	case "orchestrator.max_classify_attempts":
		return strconv.Itoa(cfg.Orchestrator.MaxClassifyAttempts), nil
	case "transport.mode":
		return cfg.Transport.Mode, nil
	case "transport.bind_host":
		return cfg.Transport.BindHost, nil
	case "transport.publish_port":
		return strconv.Itoa(cfg.Transport.PublishPort), nil
	case "transport.default_topic":
		return cfg.Transport.DefaultTopic, nil
	case "transport.handshake_timeout":
		return cfg.Transport.HandshakeTimeout.String(), nil
	case "transport.settle_delay":
		return cfg.Transport.SettleDelay.String(), nil
	case "transport.repeat":
		return strconv.Itoa(cfg.Transport.Repeat), nil
	case "transport.inactivity_timeout":
		return cfg.Transport.InactivityTimeout.String(), nil
	case "state.path":
		return cfg.State.Path, nil
	case "state.disabled":
		return strconv.FormatBool(cfg.State.Disabled), nil
	case "log.level":
		return cfg.Log.Level, nil
	case "log.format":
		return cfg.Log.Format, nil
	case "log.debug_file":
		return cfg.Log.DebugFile, nil
	case "status.addr":
		return cfg.Status.Addr, nil
	case "devices_file":
		return cfg.DevicesFile, nil
	case "default_class":
		return cfg.DefaultClass, nil
	case "prompts_file":
		return cfg.PromptsFile, nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "model.backend":
		cfg.Model.Backend = value
	case "model.name":
		cfg.Model.Name = value
	case "model.base_url":
		cfg.Model.BaseURL = value
	case "model.api_key":
		cfg.Model.APIKey = value
	case "model.temperature":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid value for model.temperature: %w", err)
		}
		cfg.Model.Temperature = f
	case "model.max_tokens":
		return setInt(&cfg.Model.MaxTokens, key, value)
	case "model.timeout":
		return setDuration(&cfg.Model.Timeout, key, value)
	case "model.aws_bedrock":
		return setBool(&cfg.Model.AWSBedrock, key, value)
	case "model.aws_region":
		cfg.Model.AWSRegion = value
	case "classifier.mode":
		cfg.Classifier.Mode = value
	case "classifier.max_attempts":
		return setInt(&cfg.Classifier.MaxAttempts, key, value)
	case "classifier.cache_size":
		return setInt(&cfg.Classifier.CacheSize, key, value)
	case "orchestrator.max_classify_attempts":
		return setInt(&cfg.Orchestrator.MaxClassifyAttempts, key, value)
	case "transport.mode":
		cfg.Transport.Mode = value
	case "transport.bind_host":
		cfg.Transport.BindHost = value
	case "transport.publish_port":
		return setInt(&cfg.Transport.PublishPort, key, value)
	case "transport.default_topic":
		cfg.Transport.DefaultTopic = value
	case "transport.handshake_timeout":
		return setDuration(&cfg.Transport.HandshakeTimeout, key, value)
	case "transport.settle_delay":
		return setDuration(&cfg.Transport.SettleDelay, key, value)
	case "transport.repeat":
		return setInt(&cfg.Transport.Repeat, key, value)
	case "transport.inactivity_timeout":
		return setDuration(&cfg.Transport.InactivityTimeout, key, value)
	case "state.path":
		cfg.State.Path = value
	case "state.disabled":
		return setBool(&cfg.State.Disabled, key, value)
	case "log.level":
		cfg.Log.Level = value
	case "log.format":
		cfg.Log.Format = value
	case "log.debug_file":
		cfg.Log.DebugFile = value
	case "status.addr":
		cfg.Status.Addr = value
	case "devices_file":
		cfg.DevicesFile = value
	case "default_class":
		cfg.DefaultClass = value
	case "prompts_file":
		cfg.PromptsFile = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

func setInt(dst *int, key, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	*dst = d
	return nil
}

func setBool(dst *bool, key, value string) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid boolean for %s: %w", key, err)
	}
	*dst = b
	return nil
}
