package orchestrator

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/ShayCichocki/hydra/pkg/models"
)

// LoadTasks reads a task list from a JSON file. See ParseTasks.
func LoadTasks(path string) ([]models.Task, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open task list: %w", err)
	}
	defer f.Close()

	tasks, err := ParseTasks(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tasks, nil
}

// ParseTasks decodes a JSON array of tasks. Tasks without an id get a fresh
// uuid; duplicate ids and empty descriptions are rejected. A capability class
// already present in the input is discarded, classification decides it.
func ParseTasks(r io.Reader) ([]models.Task, error) {
	var tasks []models.Task
	if err := json.NewDecoder(r).Decode(&tasks); err != nil {
		return nil, fmt.Errorf("decode task list: %w", err)
	}

	seen := make(map[models.TaskID]int, len(tasks))
	for i := range tasks {
		t := &tasks[i]
		t.Description = strings.TrimSpace(t.Description)
		if t.Description == "" {
			return nil, fmt.Errorf("task %d has no description", i)
		}
		if t.ID == "" {
			t.ID = models.TaskID(uuid.New().String())
		}
		if prev, dup := seen[t.ID]; dup {
			return nil, fmt.Errorf("tasks %d and %d share id %q", prev, i, t.ID)
		}
		seen[t.ID] = i
		t.Class = ""
	}
	return tasks, nil
}
