package orchestrator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/hydra/pkg/models"
)

func TestParseTasks(t *testing.T) {
	tasks, err := ParseTasks(strings.NewReader(`[
		{"id": 1, "description": "fix login bug"},
		{"id": "b", "description": "  set up project skeleton  ", "capability_class": "thinking_model"},
		{"description": "write docs"}
	]`))
	require.NoError(t, err)
	require.Len(t, tasks, 3)

	assert.Equal(t, models.TaskID("1"), tasks[0].ID)
	assert.Equal(t, "set up project skeleton", tasks[1].Description)
	assert.Empty(t, tasks[1].Class)
	assert.NotEmpty(t, tasks[2].ID)
}

func TestParseTasks_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not an array", `{"id": 1}`},
		{"duplicate id", `[{"id": 1, "description": "a"}, {"id": "1", "description": "b"}]`},
		{"empty description", `[{"id": 1, "description": "   "}]`},
		{"malformed", `[{"id": 1,`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTasks(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestLoadTasks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id": 1, "description": "fix login bug"}]`), 0o644))

	tasks, err := LoadTasks(path)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	_, err = LoadTasks(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
