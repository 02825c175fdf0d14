package orchestrator

import (
	"context"
	"log/slog"

	"github.com/ShayCichocki/hydra/internal/classify"
	"github.com/ShayCichocki/hydra/internal/devices"
	"github.com/ShayCichocki/hydra/internal/state"
	"github.com/ShayCichocki/hydra/internal/transport"
	"github.com/ShayCichocki/hydra/pkg/models"
)

// DefaultMaxClassifyAttempts bounds how many times a run re-classifies a task
// list that produced no usable result.
const DefaultMaxClassifyAttempts = 10

// Classifier partitions tasks by capability class.
type Classifier interface {
	Classify(ctx context.Context, tasks []models.Task) *classify.Report
}

// Publisher puts a wire message on the broadcast socket.
type Publisher interface {
	Publish(ctx context.Context, msg models.WireMessage) error
}

// AuditLog is the subset of the state store a run writes to.
type AuditLog interface {
	state.RunStore
	state.AssignmentStore
	state.FailureStore
}

// RequiredConfig contains the collaborators every Orchestrator needs.
type RequiredConfig struct {
	// Classifier assigns capability classes.
	Classifier Classifier
	// Pool holds the worker devices.
	Pool *devices.Pool
	// Publisher delivers task payloads.
	Publisher Publisher
}

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

type orchestratorOptions struct {
	maxClassifyAttempts int
	handshaker          transport.Handshaker
	audit               AuditLog
	metrics             *Metrics
	logger              *slog.Logger
	interactions        *InteractionLog
	newRunID            func() string
}

// WithMaxClassifyAttempts sets the global classification retry budget.
func WithMaxClassifyAttempts(n int) Option {
	return func(o *orchestratorOptions) { o.maxClassifyAttempts = n }
}

// WithHandshaker probes devices before their first task. Without one every
// device is assumed reachable.
func WithHandshaker(h transport.Handshaker) Option {
	return func(o *orchestratorOptions) { o.handshaker = h }
}

// WithAuditLog persists runs, pairings and classification failures.
func WithAuditLog(a AuditLog) Option {
	return func(o *orchestratorOptions) { o.audit = a }
}

// WithMetrics sets the Prometheus collectors. Nil uses the shared default set.
func WithMetrics(m *Metrics) Option {
	return func(o *orchestratorOptions) { o.metrics = m }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *orchestratorOptions) { o.logger = l }
}

// WithInteractionLog tags recorded model interactions with the current run id.
func WithInteractionLog(l *InteractionLog) Option {
	return func(o *orchestratorOptions) { o.interactions = l }
}

// WithRunIDs overrides run id generation. Used by tests.
func WithRunIDs(fn func() string) Option {
	return func(o *orchestratorOptions) { o.newRunID = fn }
}
