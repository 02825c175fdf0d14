package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ShayCichocki/hydra/internal/classify"
	"github.com/ShayCichocki/hydra/internal/config"
	"github.com/ShayCichocki/hydra/internal/devices"
	"github.com/ShayCichocki/hydra/internal/extract"
	"github.com/ShayCichocki/hydra/internal/llm"
	"github.com/ShayCichocki/hydra/internal/logging"
	"github.com/ShayCichocki/hydra/internal/prompts"
	"github.com/ShayCichocki/hydra/internal/state"
	"github.com/ShayCichocki/hydra/internal/transport"
	"github.com/ShayCichocki/hydra/pkg/models"
)

// app holds the configuration and logger shared by every command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	closer io.Closer
}

// loadApp loads configuration, applies the global flag overrides and opens
// the logger.
func loadApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	if flagDevices != "" {
		cfg.DevicesFile = flagDevices
	}

	logger, closer, err := logging.New(cfg.Logging())
	if err != nil {
		return nil, fmt.Errorf("open logger: %w", err)
	}
	return &app{cfg: cfg, logger: logger, closer: closer}, nil
}

func loadConfig() (*config.Config, error) {
	if flagConfig != "" {
		return config.LoadFromPath(flagConfig)
	}
	return config.Load()
}

func (a *app) Close() error {
	return a.closer.Close()
}

// inventory reads the device file.
func (a *app) inventory() (*devices.Inventory, error) {
	return devices.LoadFile(a.cfg.DevicesFile, devices.LoadOptions{
		DefaultClass: models.CapabilityClass(a.cfg.DefaultClass),
		Logger:       a.logger,
	})
}

// client creates the model client for the configured backend.
func (a *app) client() (llm.Client, error) {
	key, err := config.GetAPIKey(a.cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: set %s or model.api_key", err, config.KeyEnvVar(a.cfg.Model.Backend))
	}
	if key != "" {
		if err := config.ValidateAPIKey(a.cfg.Model.Backend, key); err != nil {
			a.logger.Warn("api key looks malformed", "backend", a.cfg.Model.Backend, "error", err)
		}
	}
	return llm.New(a.cfg.LLM())
}

// classifier builds a classifier over client. obs may be nil.
func (a *app) classifier(client llm.Client, set prompts.Set, obs extract.Observer) (*classify.Classifier, error) {
	mode, err := classify.ParseMode(a.cfg.Classifier.Mode)
	if err != nil {
		return nil, err
	}
	opts := []classify.Option{classify.WithLogger(a.logger)}
	if obs != nil {
		opts = append(opts, classify.WithObserver(obs))
	}
	return classify.New(client, classify.Config{
		Mode:        mode,
		MaxAttempts: a.cfg.Classifier.MaxAttempts,
		CacheSize:   a.cfg.Classifier.CacheSize,
		Prompts:     set,
	}, opts...)
}

// openState opens and migrates the audit database. It returns nil when the
// state store is disabled.
func (a *app) openState() (*state.DB, error) {
	if a.cfg.State.Disabled {
		return nil, nil
	}
	path := a.cfg.State.Path
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("get working directory: %w", err)
		}
		path = state.ProjectDBPath(cwd)
	}

	db, err := state.Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

// publisherConfig resolves the publisher settings. A sender entry in the
// device file overrides the configured publish port; in connect mode every
// pooled device's data endpoint is dialed.
func (a *app) publisherConfig(inv *devices.Inventory) transport.PublisherConfig {
	var peers []string
	for _, d := range inv.Pool.All() {
		peers = append(peers, d.Endpoint())
	}
	pcfg := a.cfg.PublisherConfig(peers)
	if sender, err := inv.SenderDevice(); err == nil && sender.Port != 0 {
		pcfg.BindEndpoint = transport.TCPEndpoint(a.cfg.Transport.BindHost, sender.Port)
	}
	return pcfg
}

// reportUsage prints token totals for clients that track them.
func reportUsage(client llm.Client) {
	reporter, ok := client.(llm.UsageReporter)
	if !ok || reporter.Usage() == nil {
		return
	}
	prompt, completion := reporter.Usage().Total()
	if prompt == 0 && completion == 0 {
		return
	}
	fmt.Printf("Tokens: %d prompt, %d completion (%d calls)\n", prompt, completion, reporter.Usage().Calls())
}
