package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/hydra/internal/classify"
	"github.com/ShayCichocki/hydra/internal/devices"
	"github.com/ShayCichocki/hydra/internal/logging"
	"github.com/ShayCichocki/hydra/internal/state"
	"github.com/ShayCichocki/hydra/internal/transport"
	"github.com/ShayCichocki/hydra/pkg/models"
)

// ErrClassificationExhausted is returned when every classification round in
// the budget came back empty.
var ErrClassificationExhausted = errors.New("classification attempts exhausted")

// Orchestrator classifies task lists and dispatches them to devices.
type Orchestrator struct {
	classifier   Classifier
	pool         *devices.Pool
	publisher    Publisher
	handshaker   transport.Handshaker
	audit        AuditLog
	metrics      *Metrics
	interactions *InteractionLog
	logger       *slog.Logger
	maxAttempts  int
	newRunID     func() string
}

// New creates an Orchestrator.
func New(req RequiredConfig, opts ...Option) (*Orchestrator, error) {
	if req.Classifier == nil {
		return nil, fmt.Errorf("orchestrator requires a classifier")
	}
	if req.Pool == nil {
		return nil, fmt.Errorf("orchestrator requires a device pool")
	}
	if req.Publisher == nil {
		return nil, fmt.Errorf("orchestrator requires a publisher")
	}

	o := &orchestratorOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.maxClassifyAttempts <= 0 {
		o.maxClassifyAttempts = DefaultMaxClassifyAttempts
	}
	if o.metrics == nil {
		o.metrics = defaultMetrics()
	}
	if o.newRunID == nil {
		o.newRunID = func() string { return uuid.New().String() }
	}

	return &Orchestrator{
		classifier:   req.Classifier,
		pool:         req.Pool,
		publisher:    req.Publisher,
		handshaker:   o.handshaker,
		audit:        o.audit,
		metrics:      o.metrics,
		interactions: o.interactions,
		logger:       logging.Component(o.logger, "orchestrator"),
		maxAttempts:  o.maxClassifyAttempts,
		newRunID:     o.newRunID,
	}, nil
}

// Run executes one classify and dispatch cycle over tasks.
//
// It returns ErrClassificationExhausted when no classification round produced
// a usable result, and the context error if ctx ends first. Individual dispatch
// failures never abort the run; they are listed in Report.Undelivered.
func (o *Orchestrator) Run(ctx context.Context, tasks []models.Task) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: o.newRunID()}
	log := o.logger.With("run", report.RunID)

	run := &state.Run{ID: report.RunID, StartedAt: start, Tasks: len(tasks)}
	o.recordRun(log, run)
	if o.interactions != nil {
		o.interactions.SetRun(report.RunID)
		defer o.interactions.SetRun("")
	}

	log.Info("run started", "tasks", len(tasks), "devices", len(o.pool.All()))

	err := o.classifyUntilUsable(ctx, log, tasks, report)
	if err == nil {
		err = o.dispatchAll(ctx, log, report)
	}

	report.Duration = time.Since(start)
	o.finishRun(log, run, report, err)
	return report, err
}

// classifyUntilUsable re-runs classification until at least one task is
// placed, spending one unit of the budget per empty round.
func (o *Orchestrator) classifyUntilUsable(ctx context.Context, log *slog.Logger, tasks []models.Task, report *Report) error {
	var last *classify.Report
	for remaining := o.maxAttempts; remaining > 0; remaining-- {
		if err := ctx.Err(); err != nil {
			return err
		}

		report.ClassifyAttempts++
		last = o.classifier.Classify(ctx, tasks)
		usable := !last.Result.Empty()
		o.metrics.ObserveClassifyAttempt(usable)

		if usable {
			report.Classified = true
			report.Classification = last.Result
			report.Failures = last.Failures
			for _, class := range models.Classes {
				o.metrics.AddClassified(class.Short(), len(last.Result.Queue(class)))
			}
			log.Info("classification usable",
				"attempt", report.ClassifyAttempts,
				"regular", len(last.Result.Regular),
				"thinking", len(last.Result.Thinking),
				"failed", len(last.Failures))
			o.recordFailures(log, report.RunID, last.Failures)
			return nil
		}

		log.Warn("classification produced no tasks",
			"attempt", report.ClassifyAttempts,
			"remaining", remaining-1)
	}

	if last != nil {
		report.Failures = last.Failures
		o.recordFailures(log, report.RunID, last.Failures)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%w after %d attempts", ErrClassificationExhausted, report.ClassifyAttempts)
}

// dispatchAll walks each class queue and hands every task to its device.
func (o *Orchestrator) dispatchAll(ctx context.Context, log *slog.Logger, report *Report) error {
	o.pool.ReopenAll()
	probed := make(map[string]bool)

	for _, class := range models.Classes {
		queue := report.Classification.Queue(class)
		if len(queue) == 0 {
			continue
		}
		if o.pool.Len(class) == 0 {
			log.Warn("no devices for class", "class", class, "tasks", len(queue))
		}

		for i, task := range queue {
			if err := ctx.Err(); err != nil {
				return err
			}
			d := o.dispatch(ctx, log, class, i, task, probed)
			report.Dispatches = append(report.Dispatches, d)
			if !d.Delivered {
				report.Undelivered = append(report.Undelivered, d)
			}
			o.metrics.ObserveDispatch(class.Short(), d.Outcome)
			o.recordDispatch(log, report.RunID, d)
		}
	}
	return nil
}

func (o *Orchestrator) dispatch(ctx context.Context, log *slog.Logger, class models.CapabilityClass, i int, task models.Task, probed map[string]bool) Dispatch {
	d := Dispatch{Task: task, Index: i}

	device, ok := o.pool.Assign(class, i)
	if !ok {
		d.Outcome = OutcomeNoDevice
		d.Error = fmt.Sprintf("no %s devices", class)
		log.Warn("task undelivered", "task", task.ID, "description", task.Description, "reason", d.Error)
		return d
	}
	d.Device = device

	if device.Status == models.DeviceClosed {
		d.Outcome = OutcomeClosed
		d.Error = fmt.Sprintf("device %s closed for this cycle", device.ID)
		log.Warn("task undelivered", "task", task.ID, "description", task.Description, "device", device.ID, "reason", d.Error)
		return d
	}

	if o.handshaker != nil && !probed[device.ID] {
		probed[device.ID] = true
		if err := o.handshaker.Handshake(ctx, device); err != nil {
			o.closeDevice(log, device.ID)
			d.Outcome = OutcomeUnreachable
			d.Error = err.Error()
			log.Warn("device unreachable", "task", task.ID, "device", device.ID, "error", err)
			return d
		}
	}

	payload, err := task.Payload()
	if err != nil {
		d.Outcome = OutcomeError
		d.Error = err.Error()
		log.Error("encode task", "task", task.ID, "error", err)
		return d
	}

	msg := models.WireMessage{Topic: device.Topic(), Payload: payload}
	if err := o.publisher.Publish(ctx, msg); err != nil {
		if !isCancel(err) {
			o.closeDevice(log, device.ID)
		}
		d.Outcome = OutcomeError
		d.Error = err.Error()
		log.Warn("publish failed", "task", task.ID, "device", device.ID, "error", err)
		return d
	}

	d.Outcome = OutcomeDelivered
	d.Delivered = true
	log.Info("task dispatched",
		"task", task.ID,
		"description", task.Description,
		"class", class,
		"device", device.ID,
		"address", device.Address,
		"index", i)
	return d
}

func (o *Orchestrator) closeDevice(log *slog.Logger, id string) {
	if err := o.pool.MarkClosed(id); err != nil {
		log.Error("close device", "device", id, "error", err)
	}
}

func (o *Orchestrator) recordRun(log *slog.Logger, run *state.Run) {
	if o.audit == nil {
		return
	}
	if err := o.audit.CreateRun(run); err != nil {
		log.Error("audit: create run", "error", err)
	}
}

func (o *Orchestrator) finishRun(log *slog.Logger, run *state.Run, report *Report, err error) {
	status := report.status(err)
	o.metrics.ObserveRun(string(status), report.Duration)

	attrs := []any{
		"status", status,
		"classify_attempts", report.ClassifyAttempts,
		"dispatched", len(report.Dispatches),
		"undelivered", len(report.Undelivered),
		"duration", report.Duration,
	}
	if err != nil {
		log.Error("run finished", append(attrs, "error", err)...)
	} else {
		log.Info("run finished", attrs...)
	}

	if o.audit == nil {
		return
	}
	finished := time.Now()
	run.FinishedAt = &finished
	run.Status = status
	run.Classified = report.Classification.Len()
	run.Delivered = report.Delivered()
	run.Undelivered = len(report.Undelivered)
	run.ClassifyAttempts = report.ClassifyAttempts
	if err != nil {
		run.Error = err.Error()
	}
	if uerr := o.audit.UpdateRun(run); uerr != nil {
		log.Error("audit: update run", "error", uerr)
	}
}

func (o *Orchestrator) recordDispatch(log *slog.Logger, runID string, d Dispatch) {
	if o.audit == nil {
		return
	}
	err := o.audit.RecordAssignment(&state.Assignment{
		RunID:         runID,
		TaskID:        string(d.Task.ID),
		Description:   d.Task.Description,
		Class:         string(d.Task.Class),
		DeviceID:      d.Device.ID,
		DeviceAddress: d.Device.Address,
		QueueIndex:    d.Index,
		Delivered:     d.Delivered,
		Error:         d.Error,
	})
	if err != nil {
		log.Error("audit: record assignment", "task", d.Task.ID, "error", err)
	}
}

func (o *Orchestrator) recordFailures(log *slog.Logger, runID string, failures []classify.Failure) {
	if o.audit == nil {
		return
	}
	for _, f := range failures {
		err := o.audit.RecordClassificationFailure(&state.ClassificationFailure{
			RunID:        runID,
			TaskID:       string(f.TaskID),
			Description:  f.Description,
			Reason:       f.Reason,
			Attempts:     f.Attempts,
			LastResponse: f.LastResponse,
		})
		if err != nil {
			log.Error("audit: record classification failure", "task", f.TaskID, "error", err)
		}
	}
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
