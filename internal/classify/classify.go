// Package classify assigns a capability class to each task by asking a
// language model. Tasks the model cannot classify are dropped and reported,
// never guessed.
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ShayCichocki/hydra/internal/extract"
	"github.com/ShayCichocki/hydra/internal/llm"
	"github.com/ShayCichocki/hydra/internal/logging"
	"github.com/ShayCichocki/hydra/internal/prompts"
	"github.com/ShayCichocki/hydra/pkg/models"
)

// Mode selects how tasks are presented to the model.
type Mode string

const (
	// ModePerTask asks for one category token per task.
	ModePerTask Mode = "per_task"
	// ModeBatch asks for a single JSON object covering every task.
	ModeBatch Mode = "batch"
)

// ParseMode converts a config value into a Mode. Empty means ModePerTask.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModePerTask:
		return ModePerTask, nil
	case ModeBatch:
		return ModeBatch, nil
	default:
		return "", fmt.Errorf("unknown classifier mode %q", s)
	}
}

// Config holds classifier settings.
type Config struct {
	Mode        Mode
	MaxAttempts int
	// CacheSize bounds the description cache. Zero disables caching.
	CacheSize int
	Prompts   prompts.Set
}

// Failure records a task the classifier could not place.
type Failure struct {
	TaskID       models.TaskID `json:"task_id"`
	Description  string        `json:"description"`
	Reason       string        `json:"reason"`
	Attempts     int           `json:"attempts"`
	LastResponse string        `json:"last_response,omitempty"`
}

// Report is the outcome of one Classify call.
type Report struct {
	Result   models.ClassificationResult
	Failures []Failure
	// Calls is the number of model calls made.
	Calls     int
	CacheHits int
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLogger sets the classifier's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Classifier) { c.logger = logging.Component(l, "classifier") }
}

// WithObserver receives every model attempt, e.g. for an interaction log.
func WithObserver(obs extract.Observer) Option {
	return func(c *Classifier) { c.observer = obs }
}

// Classifier partitions tasks by capability class.
type Classifier struct {
	client   llm.Client
	cfg      Config
	cache    *lru.Cache[string, models.CapabilityClass]
	logger   *slog.Logger
	observer extract.Observer
}

// New creates a classifier backed by client.
func New(client llm.Client, cfg Config, opts ...Option) (*Classifier, error) {
	if client == nil {
		return nil, fmt.Errorf("classifier requires a model client")
	}
	if cfg.Mode == "" {
		cfg.Mode = ModePerTask
	}
	if cfg.Mode != ModePerTask && cfg.Mode != ModeBatch {
		return nil, fmt.Errorf("unknown classifier mode %q", cfg.Mode)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = extract.DefaultMaxAttempts
	}
	if cfg.Prompts == (prompts.Set{}) {
		cfg.Prompts = prompts.Default()
	}

	c := &Classifier{
		client: client,
		cfg:    cfg,
		logger: logging.Discard(),
	}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, models.CapabilityClass](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create classification cache: %w", err)
		}
		c.cache = cache
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Mode returns the configured mode.
func (c *Classifier) Mode() Mode {
	return c.cfg.Mode
}

// Classify assigns a class to each task it can. The result holds a subset of
// the input, each task at most once; everything else is listed in Failures.
// Tasks in each queue keep their input order.
func (c *Classifier) Classify(ctx context.Context, tasks []models.Task) *Report {
	report := &Report{}
	classes := make(map[models.TaskID]models.CapabilityClass, len(tasks))

	seen := make(map[models.TaskID]bool, len(tasks))
	unique := make([]models.Task, 0, len(tasks))
	pending := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if seen[t.ID] {
			report.Failures = append(report.Failures, Failure{TaskID: t.ID, Description: t.Description, Reason: "duplicate task id"})
			continue
		}
		seen[t.ID] = true
		unique = append(unique, t)

		if class, ok := c.cached(t.Description); ok {
			report.CacheHits++
			classes[t.ID] = class
			c.logger.Debug("classification cache hit", "task", t.ID, "class", class)
			continue
		}
		pending = append(pending, t)
	}

	if len(pending) > 0 {
		var fresh map[models.TaskID]models.CapabilityClass
		if c.cfg.Mode == ModeBatch {
			fresh = c.classifyBatch(ctx, pending, report)
		} else {
			fresh = c.classifyEach(ctx, pending, report)
		}
		for id, class := range fresh {
			classes[id] = class
		}
	}

	for _, t := range unique {
		if class, ok := classes[t.ID]; ok {
			report.Result.Add(t.WithClass(class))
		}
	}

	c.logger.Info("classification finished",
		"tasks", len(tasks),
		"regular", len(report.Result.Regular),
		"thinking", len(report.Result.Thinking),
		"failed", len(report.Failures),
		"calls", report.Calls,
		"cache_hits", report.CacheHits)
	return report
}

func (c *Classifier) classifyEach(ctx context.Context, tasks []models.Task, report *Report) map[models.TaskID]models.CapabilityClass {
	classified := make(map[models.TaskID]models.CapabilityClass, len(tasks))
	correction := c.cfg.Prompts.Correction
	if correction == "" {
		correction = extract.CorrectionCategory
	}

	for i, task := range tasks {
		if err := ctx.Err(); err != nil {
			for _, rest := range tasks[i:] {
				report.Failures = append(report.Failures, Failure{
					TaskID:      rest.ID,
					Description: rest.Description,
					Reason:      err.Error(),
				})
			}
			break
		}

		user, err := prompts.Render(c.cfg.Prompts.ClassifyTask, prompts.TaskData{
			ID:          string(task.ID),
			Description: task.Description,
		})
		if err != nil {
			report.Failures = append(report.Failures, Failure{TaskID: task.ID, Description: task.Description, Reason: err.Error()})
			continue
		}

		out := extract.Extract(ctx, c.client, extract.Request[string]{
			Conversation: extract.Seed(c.cfg.Prompts.ClassifySystem, user),
			Validate:     extract.Category(string(models.ClassRegular), string(models.ClassThinking)),
			Correction:   correction,
			MaxAttempts:  c.cfg.MaxAttempts,
			Observer:     c.observer,
		})
		report.Calls += out.Attempts

		class, ok := models.ParseCapabilityClass(out.Value)
		if !out.OK || !ok {
			reason := "no valid category"
			if out.Err != nil {
				reason = out.Err.Error()
			}
			report.Failures = append(report.Failures, Failure{
				TaskID:       task.ID,
				Description:  task.Description,
				Reason:       reason,
				Attempts:     out.Attempts,
				LastResponse: out.LastResponse,
			})
			c.logger.Warn("task not classified", "task", task.ID, "attempts", out.Attempts, "reason", reason)
			continue
		}

		classified[task.ID] = class
		c.remember(task.Description, class)
		c.logger.Debug("task classified", "task", task.ID, "class", class, "attempts", out.Attempts)
	}
	return classified
}

func (c *Classifier) cached(description string) (models.CapabilityClass, bool) {
	if c.cache == nil {
		return "", false
	}
	return c.cache.Get(description)
}

func (c *Classifier) remember(description string, class models.CapabilityClass) {
	if c.cache != nil {
		c.cache.Add(description, class)
	}
}
