package orchestrator

import (
	"log/slog"
	"sync"

	"github.com/ShayCichocki/hydra/internal/extract"
	"github.com/ShayCichocki/hydra/internal/logging"
	"github.com/ShayCichocki/hydra/internal/state"
)

// InteractionLog writes every model attempt to the interaction store. Its
// Observe method is meant to be handed to the classifier as an
// extract.Observer; the orchestrator sets the run id around each run.
type InteractionLog struct {
	store  state.InteractionStore
	agent  string
	model  string
	logger *slog.Logger

	mu    sync.Mutex
	runID string
}

// NewInteractionLog creates a log for the named agent and model.
func NewInteractionLog(store state.InteractionStore, agent, model string, logger *slog.Logger) *InteractionLog {
	return &InteractionLog{
		store:  store,
		agent:  agent,
		model:  model,
		logger: logging.Component(logger, "interactions"),
	}
}

// SetRun tags subsequent interactions with runID. Empty clears it.
func (l *InteractionLog) SetRun(runID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runID = runID
}

// Observe records one attempt. Storage errors are logged and dropped.
func (l *InteractionLog) Observe(a extract.Attempt) {
	l.mu.Lock()
	runID := l.runID
	l.mu.Unlock()

	rec := &state.Interaction{
		RunID:      runID,
		Agent:      l.agent,
		Model:      l.model,
		UserPrompt: a.Prompt,
		Output:     a.Response,
		Attempt:    a.Number,
		DurationMS: a.Duration.Milliseconds(),
	}
	if a.Err != nil {
		rec.Error = a.Err.Error()
	}
	if err := l.store.RecordInteraction(rec); err != nil {
		l.logger.Error("record interaction", "agent", l.agent, "error", err)
	}
}

// Observer returns Observe as an extract.Observer.
func (l *InteractionLog) Observer() extract.Observer {
	return l.Observe
}
