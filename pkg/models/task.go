package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// TaskID identifies a task within a batch. Task lists written by hand often
// use numeric ids, so it decodes from both JSON strings and numbers.
type TaskID string

// UnmarshalJSON accepts either a JSON string or a JSON number.
func (id *TaskID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = TaskID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("task id must be a string or number: %w", err)
	}
	*id = TaskID(n.String())
	return nil
}

// Task is a unit of work handed to a worker device.
type Task struct {
	// ID is unique within a batch; uniqueness is not enforced globally.
	ID TaskID `json:"id"`
	// Description is the free-form work request.
	Description string `json:"description"`
	// Class is set by the classifier. Empty means unset.
	Class CapabilityClass `json:"capability_class,omitempty"`
}

// Classified returns true once the classifier assigned a valid class.
func (t Task) Classified() bool {
	return t.Class.Valid()
}

// WithClass returns a copy of the task carrying the given class. The class is
// the only field that changes after a task is created.
func (t Task) WithClass(c CapabilityClass) Task {
	t.Class = c
	return t
}

// Payload returns the compact single-line JSON form sent over the wire.
func (t Task) Payload() (string, error) {
	data, err := json.Marshal(struct {
		ID          TaskID `json:"id"`
		Description string `json:"description"`
	}{t.ID, t.Description})
	if err != nil {
		return "", fmt.Errorf("encode task %s: %w", t.ID, err)
	}
	return string(data), nil
}

// ParseTaskPayload decodes a payload produced by Task.Payload. Payloads that
// are not JSON are treated as a bare description.
func ParseTaskPayload(payload string) Task {
	var t Task
	trimmed := strings.TrimSpace(payload)
	if strings.HasPrefix(trimmed, "{") && json.Unmarshal([]byte(trimmed), &t) == nil {
		return t
	}
	return Task{Description: payload}
}

// ClassificationResult partitions classified tasks by capability class.
// A task appears in at most one sequence.
type ClassificationResult struct {
	Regular  []Task `json:"regular_model"`
	Thinking []Task `json:"thinking_model"`
}

// Add appends the task to the queue of its class. Unclassified tasks are ignored.
func (r *ClassificationResult) Add(t Task) {
	switch t.Class {
	case ClassRegular:
		r.Regular = append(r.Regular, t)
	case ClassThinking:
		r.Thinking = append(r.Thinking, t)
	}
}

// Queue returns the ordered tasks for a class.
func (r ClassificationResult) Queue(c CapabilityClass) []Task {
	switch c {
	case ClassRegular:
		return r.Regular
	case ClassThinking:
		return r.Thinking
	default:
		return nil
	}
}

// Len returns the number of classified tasks across both queues.
func (r ClassificationResult) Len() int {
	return len(r.Regular) + len(r.Thinking)
}

// Empty reports whether no task was classified.
func (r ClassificationResult) Empty() bool {
	return r.Len() == 0
}

// IsPartitionOf reports whether every classified id comes from input and
// appears exactly once across both queues.
func (r ClassificationResult) IsPartitionOf(input []Task) bool {
	known := make(map[TaskID]bool, len(input))
	for _, t := range input {
		known[t.ID] = true
	}
	seen := make(map[TaskID]bool, r.Len())
	for _, c := range Classes {
		for _, t := range r.Queue(c) {
			if !known[t.ID] || seen[t.ID] || t.Class != c {
				return false
			}
			seen[t.ID] = true
		}
	}
	return true
}
