package state

import (
	"testing"
	"time"
)

func TestRunLifecycle(t *testing.T) {
	db := setupTestDB(t)

	run := &Run{ID: "run-1", Tasks: 4}
	if err := db.CreateRun(run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if run.Status != RunRunning {
		t.Errorf("Status = %q, want %q", run.Status, RunRunning)
	}

	got, err := db.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got == nil {
		t.Fatal("GetRun returned nil for existing run")
	}
	if got.Tasks != 4 || got.FinishedAt != nil {
		t.Errorf("GetRun = %+v, want 4 tasks and no finish time", got)
	}

	finished := time.Now()
	run.FinishedAt = &finished
	run.Status = RunFailed
	run.Classified = 4
	run.Delivered = 3
	run.Undelivered = 1
	run.ClassifyAttempts = 2
	run.Error = "device d2 unreachable"
	if err := db.UpdateRun(run); err != nil {
		t.Fatalf("UpdateRun failed: %v", err)
	}

	got, err = db.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Status != RunFailed {
		t.Errorf("Status = %q, want %q", got.Status, RunFailed)
	}
	if got.FinishedAt == nil {
		t.Error("FinishedAt not persisted")
	}
	if got.Delivered != 3 || got.Undelivered != 1 || got.ClassifyAttempts != 2 {
		t.Errorf("counters = %+v", got)
	}
	if got.Error != "device d2 unreachable" {
		t.Errorf("Error = %q", got.Error)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	db := setupTestDB(t)

	got, err := db.GetRun("missing")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got != nil {
		t.Errorf("GetRun = %+v, want nil", got)
	}
}

func TestListRuns(t *testing.T) {
	db := setupTestDB(t)

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"a", "b", "c"} {
		run := &Run{ID: id, StartedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := db.CreateRun(run); err != nil {
			t.Fatalf("CreateRun(%s) failed: %v", id, err)
		}
	}

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{"all newest first", 10, []string{"c", "b", "a"}},
		{"limited", 2, []string{"c", "b"}},
		{"default limit", 0, []string{"c", "b", "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := db.ListRuns(tt.limit)
			if err != nil {
				t.Fatalf("ListRuns failed: %v", err)
			}
			if len(runs) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(runs), len(tt.want))
			}
			for i, id := range tt.want {
				if runs[i].ID != id {
					t.Errorf("runs[%d] = %q, want %q", i, runs[i].ID, id)
				}
			}
		})
	}
}

func TestAssignments(t *testing.T) {
	db := setupTestDB(t)
	if err := db.CreateRun(&Run{ID: "run-1"}); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	records := []*Assignment{
		{RunID: "run-1", TaskID: "t1", Description: "Resize images", Class: "gpu", DeviceID: "d1", DeviceAddress: "10.0.0.1", QueueIndex: 0, Delivered: true},
		{RunID: "run-1", TaskID: "t2", Description: "Format a date", Class: "cpu", DeviceID: "d2", DeviceAddress: "10.0.0.2", QueueIndex: 0, Error: "device unreachable"},
	}
	for _, a := range records {
		if err := db.RecordAssignment(a); err != nil {
			t.Fatalf("RecordAssignment failed: %v", err)
		}
		if a.ID == 0 {
			t.Error("RecordAssignment did not set ID")
		}
	}

	got, err := db.ListAssignments("run-1")
	if err != nil {
		t.Fatalf("ListAssignments failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].TaskID != "t1" || !got[0].Delivered || got[0].Error != "" {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[1].TaskID != "t2" || got[1].Delivered || got[1].Error != "device unreachable" {
		t.Errorf("got[1] = %+v", got[1])
	}

	other, err := db.ListAssignments("run-2")
	if err != nil {
		t.Fatalf("ListAssignments failed: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("unrelated run has %d assignments", len(other))
	}
}

func TestClassificationFailures(t *testing.T) {
	db := setupTestDB(t)
	if err := db.CreateRun(&Run{ID: "run-1"}); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	f := &ClassificationFailure{
		RunID:        "run-1",
		TaskID:       "t3",
		Description:  "???",
		Reason:       "no category in reply",
		Attempts:     3,
		LastResponse: "I am not sure",
	}
	if err := db.RecordClassificationFailure(f); err != nil {
		t.Fatalf("RecordClassificationFailure failed: %v", err)
	}

	got, err := db.ListClassificationFailures("run-1")
	if err != nil {
		t.Fatalf("ListClassificationFailures failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Reason != f.Reason || got[0].Attempts != 3 || got[0].LastResponse != "I am not sure" {
		t.Errorf("got = %+v", got[0])
	}
}

func TestInteractions(t *testing.T) {
	db := setupTestDB(t)

	i := &Interaction{
		RunID:      "run-1",
		Agent:      "classifier",
		Model:      "llama3.1",
		UserPrompt: "Classify: resize images",
		Output:     "GPU",
		Attempt:    1,
		DurationMS: 42,
	}
	if err := db.RecordInteraction(i); err != nil {
		t.Fatalf("RecordInteraction failed: %v", err)
	}

	got, err := db.ListInteractions("run-1")
	if err != nil {
		t.Fatalf("ListInteractions failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Agent != "classifier" || got[0].Output != "GPU" || got[0].DurationMS != 42 {
		t.Errorf("got = %+v", got[0])
	}
}

func TestPurgeOldRuns(t *testing.T) {
	db := setupTestDB(t)

	old := &Run{ID: "old", StartedAt: time.Now().Add(-48 * time.Hour)}
	recent := &Run{ID: "recent"}
	for _, r := range []*Run{old, recent} {
		if err := db.CreateRun(r); err != nil {
			t.Fatalf("CreateRun failed: %v", err)
		}
	}
	if err := db.RecordAssignment(&Assignment{RunID: "old", TaskID: "t1", Description: "x", Class: "cpu", DeviceID: "d1", DeviceAddress: "a"}); err != nil {
		t.Fatalf("RecordAssignment failed: %v", err)
	}

	n, err := db.PurgeOldRuns(24 * time.Hour)
	if err != nil {
		t.Fatalf("PurgeOldRuns failed: %v", err)
	}
	if n != 1 {
		t.Errorf("purged = %d, want 1", n)
	}

	if got, _ := db.GetRun("old"); got != nil {
		t.Error("old run still present")
	}
	if got, _ := db.GetRun("recent"); got == nil {
		t.Error("recent run was purged")
	}
	assignments, err := db.ListAssignments("old")
	if err != nil {
		t.Fatalf("ListAssignments failed: %v", err)
	}
	if len(assignments) != 0 {
		t.Errorf("%d assignments survived purge", len(assignments))
	}
}
