package models

import (
	"encoding/json"
	"testing"
)

func TestCapabilityClass_Valid(t *testing.T) {
	tests := []struct {
		name  string
		class CapabilityClass
		want  bool
	}{
		{"regular is valid", ClassRegular, true},
		{"thinking is valid", ClassThinking, true},
		{"empty string is invalid", CapabilityClass(""), false},
		{"short form is invalid", CapabilityClass("regular"), false},
		{"uppercase is invalid", CapabilityClass("REGULAR_MODEL"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.class.Valid(); got != tt.want {
				t.Errorf("CapabilityClass(%q).Valid() = %v, want %v", tt.class, got, tt.want)
			}
		})
	}
}

func TestParseCapabilityClass(t *testing.T) {
	tests := []struct {
		in     string
		want   CapabilityClass
		wantOK bool
	}{
		{"regular_model", ClassRegular, true},
		{"thinking_model", ClassThinking, true},
		{"  Thinking_Model\n", ClassThinking, true},
		{`"regular_model"`, ClassRegular, true},
		{"`thinking_model`", ClassThinking, true},
		{"'REGULAR'", ClassRegular, true},
		{"complex", "", false},
		{"", "", false},
		{"regular_model because it is simple", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseCapabilityClass(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseCapabilityClass(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestTaskID_UnmarshalJSON(t *testing.T) {
	var tasks []Task
	data := `[{"id": 1, "description": "fix login bug"}, {"id": "b-2", "description": "set up project skeleton"}]`
	if err := json.Unmarshal([]byte(data), &tasks); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if tasks[0].ID != "1" {
		t.Errorf("numeric id decoded as %q, want %q", tasks[0].ID, "1")
	}
	if tasks[1].ID != "b-2" {
		t.Errorf("string id decoded as %q, want %q", tasks[1].ID, "b-2")
	}
	if tasks[0].Classified() {
		t.Error("freshly decoded task should not be classified")
	}
}

func TestTaskID_RejectsObjects(t *testing.T) {
	var task Task
	if err := json.Unmarshal([]byte(`{"id": {"x": 1}}`), &task); err == nil {
		t.Error("expected error for object id")
	}
}

func TestTask_WithClassLeavesOriginal(t *testing.T) {
	task := Task{ID: "1", Description: "fix login bug"}
	classified := task.WithClass(ClassThinking)

	if task.Class != "" {
		t.Errorf("original task class changed to %q", task.Class)
	}
	if classified.Class != ClassThinking {
		t.Errorf("classified task class = %q, want %q", classified.Class, ClassThinking)
	}
	if classified.ID != task.ID || classified.Description != task.Description {
		t.Error("WithClass changed fields other than Class")
	}
}

func TestTask_PayloadRoundTrip(t *testing.T) {
	task := Task{ID: "7", Description: "add a\nmultiline description", Class: ClassRegular}

	payload, err := task.Payload()
	if err != nil {
		t.Fatalf("Payload: %v", err)
	}
	for _, r := range payload {
		if r == '\n' {
			t.Fatalf("payload must be a single line, got %q", payload)
		}
	}

	got := ParseTaskPayload(payload)
	if got.ID != task.ID || got.Description != task.Description {
		t.Errorf("ParseTaskPayload = %+v, want id/description of %+v", got, task)
	}
}

func TestParseTaskPayload_PlainText(t *testing.T) {
	got := ParseTaskPayload("what if the payload is plain text")
	if got.ID != "" {
		t.Errorf("expected empty id, got %q", got.ID)
	}
	if got.Description != "what if the payload is plain text" {
		t.Errorf("unexpected description %q", got.Description)
	}
}

func TestClassificationResult_AddAndQueue(t *testing.T) {
	var r ClassificationResult
	r.Add(Task{ID: "1", Class: ClassThinking})
	r.Add(Task{ID: "2", Class: ClassRegular})
	r.Add(Task{ID: "3"})

	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
	if got := r.Queue(ClassThinking); len(got) != 1 || got[0].ID != "1" {
		t.Errorf("thinking queue = %+v", got)
	}
	if got := r.Queue(ClassRegular); len(got) != 1 || got[0].ID != "2" {
		t.Errorf("regular queue = %+v", got)
	}
	if r.Queue(CapabilityClass("other")) != nil {
		t.Error("unknown class should have no queue")
	}
}

func TestClassificationResult_IsPartitionOf(t *testing.T) {
	input := []Task{{ID: "1"}, {ID: "2"}, {ID: "3"}}

	tests := []struct {
		name   string
		result ClassificationResult
		want   bool
	}{
		{"empty result", ClassificationResult{}, true},
		{"subset", ClassificationResult{Regular: []Task{{ID: "1", Class: ClassRegular}}}, true},
		{"unknown id", ClassificationResult{Regular: []Task{{ID: "9", Class: ClassRegular}}}, false},
		{"duplicate across queues", ClassificationResult{
			Regular:  []Task{{ID: "1", Class: ClassRegular}},
			Thinking: []Task{{ID: "1", Class: ClassThinking}},
		}, false},
		{"class mismatch", ClassificationResult{Thinking: []Task{{ID: "2", Class: ClassRegular}}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.IsPartitionOf(input); got != tt.want {
				t.Errorf("IsPartitionOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassificationResult_JSONKeys(t *testing.T) {
	r := ClassificationResult{Regular: []Task{{ID: "2", Description: "skeleton"}}}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"regular_model", "thinking_model"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing key %q in %s", key, data)
		}
	}
}
