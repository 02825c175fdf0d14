package orchestrator

import (
	"time"

	"github.com/ShayCichocki/hydra/internal/classify"
	"github.com/ShayCichocki/hydra/internal/state"
	"github.com/ShayCichocki/hydra/pkg/models"
)

// Dispatch outcomes.
const (
	OutcomeDelivered   = "delivered"
	OutcomeUnreachable = "unreachable"
	OutcomeClosed      = "closed"
	OutcomeNoDevice    = "no_device"
	OutcomeError       = "error"
)

// Dispatch is the pairing of one task with the device chosen for it.
type Dispatch struct {
	Task   models.Task   `json:"task"`
	Device models.Device `json:"device"`
	// Index is the task's position in its class queue.
	Index     int    `json:"index"`
	Outcome   string `json:"outcome"`
	Delivered bool   `json:"delivered"`
	Error     string `json:"error,omitempty"`
}

// Report is the result of one Run.
type Report struct {
	RunID string `json:"run_id"`
	// Classified is true once a classification round produced at least one task.
	Classified       bool                        `json:"classified"`
	ClassifyAttempts int                         `json:"classify_attempts"`
	Classification   models.ClassificationResult `json:"classification"`
	Failures         []classify.Failure          `json:"classification_failures,omitempty"`
	Dispatches       []Dispatch                  `json:"dispatches"`
	// Undelivered lists every dispatch that did not reach its device.
	Undelivered []Dispatch    `json:"undelivered,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// OK reports whether the run got past classification and handed every
// classified task to the dispatcher.
func (r *Report) OK() bool {
	if r == nil || !r.Classified {
		return false
	}
	return len(r.Dispatches) == r.Classification.Len()
}

// AllDelivered reports whether every dispatch reached its device.
func (r *Report) AllDelivered() bool {
	return r.OK() && len(r.Undelivered) == 0
}

// Delivered returns the number of successful dispatches.
func (r *Report) Delivered() int {
	if r == nil {
		return 0
	}
	return len(r.Dispatches) - len(r.Undelivered)
}

func (r *Report) status(err error) state.RunStatus {
	switch {
	case err == nil:
		return state.RunSucceeded
	case isCancel(err):
		return state.RunCanceled
	default:
		return state.RunFailed
	}
}
