// Package prompts holds the model instructions used by the classifier and the
// change analyzer. Defaults can be overridden from a YAML or JSON file.
package prompts

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"go.yaml.in/yaml/v3"
)

// Set is a complete collection of prompt templates. Templates use
// text/template syntax.
type Set struct {
	// ClassifySystem and ClassifyTask drive per-task classification.
	// ClassifyTask receives a TaskData.
	ClassifySystem string `yaml:"classify_system" json:"classify_system"`
	ClassifyTask   string `yaml:"classify_task" json:"classify_task"`

	// BatchSystem is the rubric for batch classification. BatchTasks receives
	// a BatchData.
	BatchSystem string `yaml:"sys_prompt" json:"sys_prompt"`
	BatchTasks  string `yaml:"batch_tasks" json:"batch_tasks"`

	// Correction overrides the extractor's default correction prompt.
	Correction string `yaml:"correction_prompt" json:"correction_prompt"`

	// AnalyzeSystem and AnalyzeUser select relevant files from a tree.
	// AnalyzeUser receives an AnalyzeData.
	AnalyzeSystem string `yaml:"analyze_system" json:"analyze_system"`
	AnalyzeUser   string `yaml:"analyze_user" json:"analyze_user"`

	// PlanSystem and PlanUser produce a modify/create/delete plan.
	PlanSystem string `yaml:"plan_system" json:"plan_system"`
	PlanUser   string `yaml:"plan_user" json:"plan_user"`

	// ReviewSystem and ReviewUser ask for a verdict on proposed code.
	// ReviewUser receives a ReviewData.
	ReviewSystem string `yaml:"review_system" json:"review_system"`
	ReviewUser   string `yaml:"review_user" json:"review_user"`
}

// TaskData is passed to ClassifyTask.
type TaskData struct {
	ID          string
	Description string
}

// BatchData is passed to BatchTasks.
type BatchData struct {
	TasksJSON string
}

// AnalyzeData is passed to AnalyzeUser and PlanUser.
type AnalyzeData struct {
	Tree string
	Task string
}

// ReviewData is passed to ReviewUser.
type ReviewData struct {
	Task string
	File string
	Code string
}

// Default returns the built-in prompt set.
func Default() Set {
	return Set{
		ClassifySystem: defaultClassifySystem,
		ClassifyTask:   defaultClassifyTask,
		BatchSystem:    defaultBatchSystem,
		BatchTasks:     defaultBatchTasks,
		AnalyzeSystem:  defaultAnalyzeSystem,
		AnalyzeUser:    defaultAnalyzeUser,
		PlanSystem:     defaultPlanSystem,
		PlanUser:       defaultAnalyzeUser,
		ReviewSystem:   defaultReviewSystem,
		ReviewUser:     defaultReviewUser,
	}
}

// Load reads a prompt file and overlays its non-empty entries onto the
// defaults. An empty path returns the defaults. JSON is valid YAML, so both
// formats are accepted.
func Load(path string) (Set, error) {
	set := Default()
	if path == "" {
		return set, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return set, fmt.Errorf("read prompts file: %w", err)
	}

	var override Set
	if err := yaml.Unmarshal(data, &override); err != nil {
		return set, fmt.Errorf("parse prompts file %s: %w", path, err)
	}
	set.merge(override)

	if err := set.Validate(); err != nil {
		return set, fmt.Errorf("prompts file %s: %w", path, err)
	}
	return set, nil
}

func (s *Set) merge(o Set) {
	overlay := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	overlay(&s.ClassifySystem, o.ClassifySystem)
	overlay(&s.ClassifyTask, o.ClassifyTask)
	overlay(&s.BatchSystem, o.BatchSystem)
	overlay(&s.BatchTasks, o.BatchTasks)
	overlay(&s.Correction, o.Correction)
	overlay(&s.AnalyzeSystem, o.AnalyzeSystem)
	overlay(&s.AnalyzeUser, o.AnalyzeUser)
	overlay(&s.PlanSystem, o.PlanSystem)
	overlay(&s.PlanUser, o.PlanUser)
	overlay(&s.ReviewSystem, o.ReviewSystem)
	overlay(&s.ReviewUser, o.ReviewUser)
}

// Validate checks that every template parses.
func (s Set) Validate() error {
	templates := map[string]string{
		"classify_task": s.ClassifyTask,
		"batch_tasks":   s.BatchTasks,
		"analyze_user":  s.AnalyzeUser,
		"plan_user":     s.PlanUser,
		"review_user":   s.ReviewUser,
	}
	for name, text := range templates {
		if _, err := template.New(name).Parse(text); err != nil {
			return fmt.Errorf("template %s: %w", name, err)
		}
	}
	return nil
}

// Render executes tmpl with data.
func Render(tmpl string, data any) (string, error) {
	t, err := template.New("prompt").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return buf.String(), nil
}
