// Package state keeps hydra's audit trail in SQLite.
package state

import "io"

// RunStore handles orchestration run records.
type RunStore interface {
	CreateRun(r *Run) error
	UpdateRun(r *Run) error
	GetRun(id string) (*Run, error)
	ListRuns(limit int) ([]Run, error)
}

// AssignmentStore records task to device pairings.
type AssignmentStore interface {
	RecordAssignment(a *Assignment) error
	ListAssignments(runID string) ([]Assignment, error)
}

// FailureStore records tasks the classifier could not place.
type FailureStore interface {
	RecordClassificationFailure(f *ClassificationFailure) error
	ListClassificationFailures(runID string) ([]ClassificationFailure, error)
}

// InteractionStore records model prompts and replies.
type InteractionStore interface {
	RecordInteraction(i *Interaction) error
	ListInteractions(runID string) ([]Interaction, error)
}

// Migrator handles database schema migrations.
// Separating this allows clients to depend only on migration functionality.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// AuditStore defines the interface for audit persistence.
// The orchestrator depends on this rather than on the SQLite implementation.
type AuditStore interface {
	io.Closer
	Migrator
	RunStore
	AssignmentStore
	FailureStore
	InteractionStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ AuditStore       = (*DB)(nil)
	_ Migrator         = (*DB)(nil)
	_ RunStore         = (*DB)(nil)
	_ AssignmentStore  = (*DB)(nil)
	_ FailureStore     = (*DB)(nil)
	_ InteractionStore = (*DB)(nil)
)
