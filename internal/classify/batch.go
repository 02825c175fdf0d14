package classify

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/ShayCichocki/hydra/internal/extract"
	"github.com/ShayCichocki/hydra/internal/prompts"
	"github.com/ShayCichocki/hydra/pkg/models"
)

// batchAnswer maps each id named in the model's answer to the keys it
// appeared under.
type batchAnswer map[models.TaskID]map[models.CapabilityClass]bool

func (c *Classifier) classifyBatch(ctx context.Context, tasks []models.Task, report *Report) map[models.TaskID]models.CapabilityClass {
	fail := func(reason string, attempts int, last string) {
		for _, t := range tasks {
			report.Failures = append(report.Failures, Failure{
				TaskID:       t.ID,
				Description:  t.Description,
				Reason:       reason,
				Attempts:     attempts,
				LastResponse: last,
			})
		}
	}

	listing := make([]struct {
		ID          models.TaskID `json:"id"`
		Description string        `json:"description"`
	}, len(tasks))
	known := make(map[models.TaskID]bool, len(tasks))
	for i, t := range tasks {
		listing[i].ID = t.ID
		listing[i].Description = t.Description
		known[t.ID] = true
	}
	tasksJSON, err := json.MarshalIndent(listing, "", "  ")
	if err != nil {
		fail(err.Error(), 0, "")
		return nil
	}

	user, err := prompts.Render(c.cfg.Prompts.BatchTasks, prompts.BatchData{TasksJSON: string(tasksJSON)})
	if err != nil {
		fail(err.Error(), 0, "")
		return nil
	}

	correction := c.cfg.Prompts.Correction
	if correction == "" {
		correction = extract.CorrectionJSONObject
	}

	keys := []string{string(models.ClassRegular), string(models.ClassThinking)}
	validate := extract.Map(extract.JSONObject(keys...), func(raw string, obj map[string]json.RawMessage) (batchAnswer, error) {
		answer := make(batchAnswer)
		for _, class := range models.Classes {
			ids, err := decodeTaskRefs(obj[string(class)])
			if err != nil {
				return nil, extract.Failf(raw, "%s: %v", class, err)
			}
			for _, id := range ids {
				if !known[id] {
					continue
				}
				if answer[id] == nil {
					answer[id] = make(map[models.CapabilityClass]bool, 2)
				}
				answer[id][class] = true
			}
		}
		if len(answer) == 0 {
			return nil, extract.Failf(raw, "answer names none of the given task ids")
		}
		return answer, nil
	})

	out := extract.Extract(ctx, c.client, extract.Request[batchAnswer]{
		Conversation: extract.Seed(c.cfg.Prompts.BatchSystem, user),
		Validate:     validate,
		Correction:   correction,
		MaxAttempts:  c.cfg.MaxAttempts,
		Observer:     c.observer,
	})
	report.Calls += out.Attempts

	if !out.OK {
		reason := "batch classification failed"
		if out.Err != nil {
			reason = out.Err.Error()
		}
		c.logger.Warn("batch not classified", "tasks", len(tasks), "attempts", out.Attempts, "reason", reason)
		fail(reason, out.Attempts, out.LastResponse)
		return nil
	}

	classified := make(map[models.TaskID]models.CapabilityClass, len(tasks))
	for _, t := range tasks {
		got := out.Value[t.ID]
		switch len(got) {
		case 0:
			report.Failures = append(report.Failures, Failure{
				TaskID: t.ID, Description: t.Description, Reason: "missing from answer",
				Attempts: out.Attempts, LastResponse: out.LastResponse,
			})
		case 1:
			for class := range got {
				classified[t.ID] = class
				c.remember(t.Description, class)
			}
		default:
			report.Failures = append(report.Failures, Failure{
				TaskID: t.ID, Description: t.Description, Reason: "listed under both classes",
				Attempts: out.Attempts, LastResponse: out.LastResponse,
			})
		}
	}
	return classified
}

// decodeTaskRefs reads a list whose entries are task objects with an "id"
// field or bare ids. A missing or null list is empty.
func decodeTaskRefs(raw json.RawMessage) ([]models.TaskID, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}

	ids := make([]models.TaskID, 0, len(entries))
	for _, e := range entries {
		e = bytes.TrimSpace(e)
		if len(e) > 0 && e[0] == '{' {
			var obj struct {
				ID models.TaskID `json:"id"`
			}
			if err := json.Unmarshal(e, &obj); err != nil {
				return nil, err
			}
			ids = append(ids, obj.ID)
			continue
		}
		var id models.TaskID
		if err := json.Unmarshal(e, &id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
