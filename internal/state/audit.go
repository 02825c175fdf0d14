package state

import (
	"database/sql"
	"fmt"
	"time"
)

// RunStatus represents the outcome of an orchestration run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunCanceled  RunStatus = "canceled"
)

// Run is one orchestration cycle.
type Run struct {
	ID               string     `json:"id"`
	StartedAt        time.Time  `json:"started_at"`
	FinishedAt       *time.Time `json:"finished_at"`
	Status           RunStatus  `json:"status"`
	Tasks            int        `json:"tasks"`
	Classified       int        `json:"classified"`
	Delivered        int        `json:"delivered"`
	Undelivered      int        `json:"undelivered"`
	ClassifyAttempts int        `json:"classify_attempts"`
	Error            string     `json:"error,omitempty"`
}

// Assignment is the audit record of a task sent, or meant to be sent, to a device.
type Assignment struct {
	ID            int64     `json:"id"`
	RunID         string    `json:"run_id"`
	TaskID        string    `json:"task_id"`
	Description   string    `json:"description"`
	Class         string    `json:"class"`
	DeviceID      string    `json:"device_id"`
	DeviceAddress string    `json:"device_address"`
	QueueIndex    int       `json:"queue_index"`
	Delivered     bool      `json:"delivered"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ClassificationFailure records a task left out of a classification result.
type ClassificationFailure struct {
	ID           int64     `json:"id"`
	RunID        string    `json:"run_id"`
	TaskID       string    `json:"task_id"`
	Description  string    `json:"description"`
	Reason       string    `json:"reason"`
	Attempts     int       `json:"attempts"`
	LastResponse string    `json:"last_response,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Interaction is a single model call.
type Interaction struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id,omitempty"`
	Agent      string    `json:"agent"`
	Model      string    `json:"model,omitempty"`
	UserPrompt string    `json:"user_prompt"`
	Output     string    `json:"output"`
	Error      string    `json:"error,omitempty"`
	Attempt    int       `json:"attempt"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Run CRUD operations

// CreateRun creates a new run.
func (db *DB) CreateRun(r *Run) error {
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	if r.Status == "" {
		r.Status = RunRunning
	}
	_, err := db.Exec(`
		INSERT INTO runs (id, started_at, status, tasks)
		VALUES (?, ?, ?, ?)
	`, r.ID, formatTime(r.StartedAt), string(r.Status), r.Tasks)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// UpdateRun updates a run's status and counters.
func (db *DB) UpdateRun(r *Run) error {
	var finishedAt any
	if r.FinishedAt != nil {
		finishedAt = formatTime(*r.FinishedAt)
	}
	_, err := db.Exec(`
		UPDATE runs SET finished_at = ?, status = ?, tasks = ?, classified = ?, delivered = ?,
			undelivered = ?, classify_attempts = ?, error = ?
		WHERE id = ?
	`, finishedAt, string(r.Status), r.Tasks, r.Classified, r.Delivered, r.Undelivered,
		r.ClassifyAttempts, nullString(r.Error), r.ID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID. It returns nil when the run does not exist.
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.QueryRow(`
		SELECT id, started_at, finished_at, status, tasks, classified, delivered, undelivered,
			classify_attempts, error
		FROM runs WHERE id = ?
	`, id)

	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs, newest first.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`
		SELECT id, started_at, finished_at, status, tasks, classified, delivered, undelivered,
			classify_attempts, error
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var r Run
	var startedAt string
	var finishedAt, errText sql.NullString
	if err := s.Scan(&r.ID, &startedAt, &finishedAt, &r.Status, &r.Tasks, &r.Classified,
		&r.Delivered, &r.Undelivered, &r.ClassifyAttempts, &errText); err != nil {
		return nil, err
	}
	r.StartedAt, _ = parseTime(startedAt)
	r.FinishedAt = parseNullableTime(finishedAt)
	r.Error = errText.String
	return &r, nil
}

// Assignment operations

// RecordAssignment stores a pairing and sets its ID.
func (db *DB) RecordAssignment(a *Assignment) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	result, err := db.Exec(`
		INSERT INTO assignments (run_id, task_id, description, class, device_id, device_address,
			queue_index, delivered, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.RunID, a.TaskID, a.Description, a.Class, a.DeviceID, a.DeviceAddress, a.QueueIndex,
		boolToInt(a.Delivered), nullString(a.Error), formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("record assignment: %w", err)
	}
	a.ID, _ = result.LastInsertId()
	return nil
}

// ListAssignments returns a run's pairings in the order they were made.
func (db *DB) ListAssignments(runID string) ([]Assignment, error) {
	rows, err := db.Query(`
		SELECT id, run_id, task_id, description, class, device_id, device_address, queue_index,
			delivered, error, created_at
		FROM assignments WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		var a Assignment
		var delivered int
		var errText sql.NullString
		var createdAt string
		if err := rows.Scan(&a.ID, &a.RunID, &a.TaskID, &a.Description, &a.Class, &a.DeviceID,
			&a.DeviceAddress, &a.QueueIndex, &delivered, &errText, &createdAt); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		a.Delivered = delivered != 0
		a.Error = errText.String
		a.CreatedAt, _ = parseTime(createdAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Classification failure operations

// RecordClassificationFailure stores a failure and sets its ID.
func (db *DB) RecordClassificationFailure(f *ClassificationFailure) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	result, err := db.Exec(`
		INSERT INTO classification_failures (run_id, task_id, description, reason, attempts,
			last_response, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, f.RunID, f.TaskID, f.Description, f.Reason, f.Attempts, nullString(f.LastResponse),
		formatTime(f.CreatedAt))
	if err != nil {
		return fmt.Errorf("record classification failure: %w", err)
	}
	f.ID, _ = result.LastInsertId()
	return nil
}

// ListClassificationFailures returns a run's failures in insertion order.
func (db *DB) ListClassificationFailures(runID string) ([]ClassificationFailure, error) {
	rows, err := db.Query(`
		SELECT id, run_id, task_id, description, reason, attempts, last_response, created_at
		FROM classification_failures WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list classification failures: %w", err)
	}
	defer rows.Close()

	var out []ClassificationFailure
	for rows.Next() {
		var f ClassificationFailure
		var last sql.NullString
		var createdAt string
		if err := rows.Scan(&f.ID, &f.RunID, &f.TaskID, &f.Description, &f.Reason, &f.Attempts,
			&last, &createdAt); err != nil {
			return nil, fmt.Errorf("scan classification failure: %w", err)
		}
		f.LastResponse = last.String
		f.CreatedAt, _ = parseTime(createdAt)
		out = append(out, f)
	}
	return out, rows.Err()
}

// Interaction operations

// RecordInteraction stores a model call and sets its ID.
func (db *DB) RecordInteraction(i *Interaction) error {
	if i.CreatedAt.IsZero() {
		i.CreatedAt = time.Now()
	}
	result, err := db.Exec(`
		INSERT INTO interactions (run_id, agent, model, user_prompt, output, error, attempt,
			duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, nullString(i.RunID), i.Agent, nullString(i.Model), i.UserPrompt, nullString(i.Output),
		nullString(i.Error), i.Attempt, i.DurationMS, formatTime(i.CreatedAt))
	if err != nil {
		return fmt.Errorf("record interaction: %w", err)
	}
	i.ID, _ = result.LastInsertId()
	return nil
}

// ListInteractions returns the model calls of a run in insertion order.
func (db *DB) ListInteractions(runID string) ([]Interaction, error) {
	rows, err := db.Query(`
		SELECT id, run_id, agent, model, user_prompt, output, error, attempt, duration_ms, created_at
		FROM interactions WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		var i Interaction
		var run, model, output, errText sql.NullString
		var createdAt string
		if err := rows.Scan(&i.ID, &run, &i.Agent, &model, &i.UserPrompt, &output, &errText,
			&i.Attempt, &i.DurationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		i.RunID = run.String
		i.Model = model.String
		i.Output = output.String
		i.Error = errText.String
		i.CreatedAt, _ = parseTime(createdAt)
		out = append(out, i)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
