// Package analyze asks a language model about code changes: which files a
// task touches, what to modify, create or delete, and whether proposed code
// fulfils the task.
package analyze

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ShayCichocki/hydra/internal/extract"
	"github.com/ShayCichocki/hydra/internal/llm"
	"github.com/ShayCichocki/hydra/internal/logging"
	"github.com/ShayCichocki/hydra/internal/prompts"
)

// ChangePlan lists file paths by intended action.
type ChangePlan struct {
	Modify []string `json:"modify"`
	Create []string `json:"create"`
	Delete []string `json:"delete"`
}

// Empty reports whether the plan touches no files.
func (p ChangePlan) Empty() bool {
	return len(p.Modify) == 0 && len(p.Create) == 0 && len(p.Delete) == 0
}

// Verdict is a reviewer's answer for one file.
type Verdict struct {
	File     string `json:"file,omitempty"`
	Approved bool   `json:"approved"`
	// Problem is the reviewer's explanation when the code was rejected.
	Problem string `json:"problem,omitempty"`
}

// Analyzer runs change-analysis prompts against a model.
type Analyzer struct {
	client      llm.Client
	prompts     prompts.Set
	maxAttempts int
	observer    extract.Observer
	logger      *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithPrompts replaces the default prompt set.
func WithPrompts(p prompts.Set) Option {
	return func(a *Analyzer) { a.prompts = p }
}

// WithMaxAttempts bounds model calls per question.
func WithMaxAttempts(n int) Option {
	return func(a *Analyzer) { a.maxAttempts = n }
}

// WithObserver receives every model attempt.
func WithObserver(obs extract.Observer) Option {
	return func(a *Analyzer) { a.observer = obs }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = logging.Component(l, "analyzer") }
}

// New creates an Analyzer.
func New(client llm.Client, opts ...Option) *Analyzer {
	a := &Analyzer{
		client:      client,
		prompts:     prompts.Default(),
		maxAttempts: extract.DefaultMaxAttempts,
		logger:      logging.Discard(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RelevantFiles returns the paths in tree the model considers relevant to
// task. The model reasons inside a <thinking> block and ends with a JSON
// array; when the closing tag is missing the first array in the reply is used.
func (a *Analyzer) RelevantFiles(ctx context.Context, tree, task string) ([]string, error) {
	user, err := prompts.Render(a.prompts.AnalyzeUser, prompts.AnalyzeData{Tree: tree, Task: task})
	if err != nil {
		return nil, err
	}

	out := extract.Extract(ctx, a.client, extract.Request[[]string]{
		Conversation: extract.Seed(a.prompts.AnalyzeSystem, user),
		Validate: extract.PreferDelimited("</thinking>", "",
			extract.JSONArray[string](),
			extract.ScanArray[string]()),
		Correction:  a.correction(extract.CorrectionJSONArray),
		MaxAttempts: a.maxAttempts,
		Default:     []string{},
		Observer:    a.observer,
	})
	if !out.OK {
		return []string{}, fmt.Errorf("relevant files after %d attempts: %w", out.Attempts, out.Err)
	}

	files := cleanPaths(out.Value)
	a.logger.Debug("relevant files", "task", task, "files", len(files), "attempts", out.Attempts)
	return files, nil
}

// PlanChanges asks for the files to modify, create and delete for task.
// The "modify" and "create" keys are required; "delete" may be omitted.
func (a *Analyzer) PlanChanges(ctx context.Context, tree, task string) (ChangePlan, error) {
	user, err := prompts.Render(a.prompts.PlanUser, prompts.AnalyzeData{Tree: tree, Task: task})
	if err != nil {
		return ChangePlan{}, err
	}

	out := extract.Extract(ctx, a.client, extract.Request[ChangePlan]{
		Conversation: extract.Seed(a.prompts.PlanSystem, user),
		Validate:     extract.Object[ChangePlan]("modify", "create"),
		Correction:   a.correction(extract.CorrectionJSONObject),
		MaxAttempts:  a.maxAttempts,
		Observer:     a.observer,
	})
	if !out.OK {
		return ChangePlan{}, fmt.Errorf("change plan after %d attempts: %w", out.Attempts, out.Err)
	}

	plan := ChangePlan{
		Modify: cleanPaths(out.Value.Modify),
		Create: cleanPaths(out.Value.Create),
		Delete: cleanPaths(out.Value.Delete),
	}
	a.logger.Debug("change plan", "task", task,
		"modify", len(plan.Modify), "create", len(plan.Create), "delete", len(plan.Delete))
	return plan, nil
}

// Review asks whether code proposed for file fulfils task.
func (a *Analyzer) Review(ctx context.Context, task, file, code string) (Verdict, error) {
	user, err := prompts.Render(a.prompts.ReviewUser, prompts.ReviewData{Task: task, File: file, Code: code})
	if err != nil {
		return Verdict{}, err
	}

	out := extract.Extract(ctx, a.client, extract.Request[Verdict]{
		Conversation: extract.Seed(a.prompts.ReviewSystem, user),
		Validate:     ParseVerdict,
		Correction:   a.correction(correctionVerdict),
		MaxAttempts:  a.maxAttempts,
		Observer:     a.observer,
	})
	if !out.OK {
		return Verdict{File: file}, fmt.Errorf("review of %s after %d attempts: %w", file, out.Attempts, out.Err)
	}

	v := out.Value
	v.File = file
	a.logger.Debug("review", "file", file, "approved", v.Approved)
	return v, nil
}

// ShouldMerge is true when there is at least one verdict and all approve.
func ShouldMerge(verdicts []Verdict) bool {
	if len(verdicts) == 0 {
		return false
	}
	for _, v := range verdicts {
		if !v.Approved {
			return false
		}
	}
	return true
}

func (a *Analyzer) correction(fallback string) string {
	if a.prompts.Correction != "" {
		return a.prompts.Correction
	}
	return fallback
}

// cleanPaths trims entries, drops empties and duplicates, keeping order.
func cleanPaths(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, p := range in {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
