package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/hydra/internal/classify"
	"github.com/ShayCichocki/hydra/internal/devices"
	"github.com/ShayCichocki/hydra/internal/llm"
	"github.com/ShayCichocki/hydra/internal/state"
	"github.com/ShayCichocki/hydra/internal/transport"
	"github.com/ShayCichocki/hydra/pkg/models"
)

type recordingPublisher struct {
	mu   sync.Mutex
	sent []models.WireMessage
	fail map[string]error
}

func (p *recordingPublisher) Publish(_ context.Context, msg models.WireMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail[msg.Topic]; err != nil {
		return err
	}
	p.sent = append(p.sent, msg)
	return nil
}

func (p *recordingPublisher) byTopic() map[string][]models.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string][]models.Task)
	for _, m := range p.sent {
		out[m.Topic] = append(out[m.Topic], models.ParseTaskPayload(m.Payload))
	}
	return out
}

type fakeHandshaker struct {
	down  map[string]bool
	calls map[string]int
}

func (h *fakeHandshaker) Handshake(_ context.Context, d models.Device) error {
	if h.calls == nil {
		h.calls = make(map[string]int)
	}
	h.calls[d.ID]++
	if h.down[d.ID] {
		return fmt.Errorf("device %s: %w", d.ID, transport.ErrDeviceUnreachable)
	}
	return nil
}

type classifierFunc func(ctx context.Context, tasks []models.Task) *classify.Report

func (f classifierFunc) Classify(ctx context.Context, tasks []models.Task) *classify.Report {
	return f(ctx, tasks)
}

// allAs classifies every task into class.
func allAs(class models.CapabilityClass) classifierFunc {
	return func(_ context.Context, tasks []models.Task) *classify.Report {
		r := &classify.Report{}
		for _, t := range tasks {
			r.Result.Add(t.WithClass(class))
		}
		return r
	}
}

func newPool(t *testing.T, devs ...models.Device) *devices.Pool {
	t.Helper()
	pool := devices.NewPool()
	for _, d := range devs {
		require.NoError(t, pool.Register(d))
	}
	return pool
}

func newTasks(n int) []models.Task {
	tasks := make([]models.Task, n)
	for i := range tasks {
		tasks[i] = models.Task{ID: models.TaskID(fmt.Sprint(i)), Description: fmt.Sprintf("task %d", i)}
	}
	return tasks
}

func newOrchestrator(t *testing.T, c Classifier, pool *devices.Pool, pub Publisher, opts ...Option) *Orchestrator {
	t.Helper()
	opts = append([]Option{WithMetrics(MustNewMetrics(prometheus.NewRegistry()))}, opts...)
	orch, err := New(RequiredConfig{Classifier: c, Pool: pool, Publisher: pub}, opts...)
	require.NoError(t, err)
	return orch
}

func TestNew_RequiresCollaborators(t *testing.T) {
	pool := devices.NewPool()
	pub := &recordingPublisher{}
	c := allAs(models.ClassRegular)

	tests := []struct {
		name string
		req  RequiredConfig
	}{
		{"no classifier", RequiredConfig{Pool: pool, Publisher: pub}},
		{"no pool", RequiredConfig{Classifier: c, Publisher: pub}},
		{"no publisher", RequiredConfig{Classifier: c, Pool: pool}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.req)
			assert.Error(t, err)
		})
	}
}

func TestRun_EndToEnd(t *testing.T) {
	client := llm.NewFuncClient(func(_ int, msgs []llm.Message) (string, error) {
		if strings.Contains(msgs[len(msgs)-1].Content, "fix login bug") {
			return "thinking_model", nil
		}
		return "regular_model", nil
	})
	classifier, err := classify.New(client, classify.Config{})
	require.NoError(t, err)

	pool := newPool(t,
		models.Device{ID: "regular-0", Address: "10.0.0.1", Port: 5001, Class: models.ClassRegular},
		models.Device{ID: "thinking-0", Address: "10.0.0.2", Port: 5001, Class: models.ClassThinking},
	)
	pub := &recordingPublisher{}
	orch := newOrchestrator(t, classifier, pool, pub, WithHandshaker(&fakeHandshaker{}))

	tasks := []models.Task{
		{ID: "1", Description: "fix login bug"},
		{ID: "2", Description: "set up project skeleton"},
	}
	report, err := orch.Run(context.Background(), tasks)
	require.NoError(t, err)

	assert.True(t, report.OK())
	assert.True(t, report.AllDelivered())
	assert.Equal(t, 1, report.ClassifyAttempts)
	assert.Equal(t, 2, client.Calls())

	sent := pub.byTopic()
	require.Len(t, sent["10.0.0.1"], 1)
	require.Len(t, sent["10.0.0.2"], 1)
	assert.Equal(t, models.TaskID("2"), sent["10.0.0.1"][0].ID)
	assert.Equal(t, "set up project skeleton", sent["10.0.0.1"][0].Description)
	assert.Equal(t, models.TaskID("1"), sent["10.0.0.2"][0].ID)
	assert.Equal(t, "fix login bug", sent["10.0.0.2"][0].Description)
}

func TestRun_RoundRobin(t *testing.T) {
	tests := []struct {
		name    string
		tasks   int
		devices int
	}{
		{"more tasks than devices", 7, 3},
		{"even split", 6, 2},
		{"fewer tasks than devices", 2, 4},
		{"single device", 5, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var devs []models.Device
			for i := 0; i < tt.devices; i++ {
				devs = append(devs, models.Device{
					ID:      fmt.Sprintf("d%d", i),
					Address: fmt.Sprintf("10.0.0.%d", i+1),
					Port:    5001,
					Class:   models.ClassRegular,
				})
			}
			pub := &recordingPublisher{}
			orch := newOrchestrator(t, allAs(models.ClassRegular), newPool(t, devs...), pub)

			report, err := orch.Run(context.Background(), newTasks(tt.tasks))
			require.NoError(t, err)
			require.True(t, report.AllDelivered())

			for i, d := range report.Dispatches {
				assert.Equal(t, devs[i%tt.devices].ID, d.Device.ID, "task %d", i)
				assert.Equal(t, i, d.Index)
			}

			lo, hi := tt.tasks/tt.devices, (tt.tasks+tt.devices-1)/tt.devices
			sent := pub.byTopic()
			for _, d := range devs {
				n := len(sent[d.Address])
				assert.True(t, n == lo || n == hi, "device %s got %d tasks, want %d or %d", d.ID, n, lo, hi)
			}
		})
	}
}

func TestRun_ClassificationExhausted(t *testing.T) {
	calls := 0
	empty := classifierFunc(func(_ context.Context, tasks []models.Task) *classify.Report {
		calls++
		return &classify.Report{Failures: []classify.Failure{{TaskID: tasks[0].ID, Reason: "no valid category"}}}
	})
	pub := &recordingPublisher{}
	pool := newPool(t, models.Device{ID: "d0", Address: "10.0.0.1", Port: 5001, Class: models.ClassRegular})

	tests := []struct {
		name   string
		budget int
		want   int
	}{
		{"default budget", 0, DefaultMaxClassifyAttempts},
		{"custom budget", 3, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls = 0
			orch := newOrchestrator(t, empty, pool, pub, WithMaxClassifyAttempts(tt.budget))

			report, err := orch.Run(context.Background(), newTasks(1))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrClassificationExhausted))
			assert.False(t, report.OK())
			assert.Equal(t, tt.want, calls)
			assert.Equal(t, tt.want, report.ClassifyAttempts)
			assert.Len(t, report.Failures, 1)
			assert.Empty(t, pub.sent)
		})
	}
}

func TestRun_RetriesUntilUsable(t *testing.T) {
	calls := 0
	flaky := classifierFunc(func(ctx context.Context, tasks []models.Task) *classify.Report {
		calls++
		if calls < 3 {
			return &classify.Report{}
		}
		return allAs(models.ClassThinking)(ctx, tasks)
	})
	pool := newPool(t, models.Device{ID: "t0", Address: "10.0.0.9", Port: 5001, Class: models.ClassThinking})
	reg := prometheus.NewRegistry()
	metrics := MustNewMetrics(reg)
	orch := newOrchestrator(t, flaky, pool, &recordingPublisher{}, WithMetrics(metrics))

	report, err := orch.Run(context.Background(), newTasks(2))
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, 3, report.ClassifyAttempts)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.classifyAttempts.WithLabelValues("empty")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.classifyAttempts.WithLabelValues("usable")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.classifiedTasks.WithLabelValues("thinking")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.dispatches.WithLabelValues("thinking", OutcomeDelivered)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues(string(state.RunSucceeded))))
}

func TestRun_UnreachableDeviceClosedForCycle(t *testing.T) {
	pool := newPool(t,
		models.Device{ID: "a", Address: "10.0.0.1", Port: 5001, HandshakePort: 5002, Class: models.ClassRegular},
		models.Device{ID: "b", Address: "10.0.0.2", Port: 5001, HandshakePort: 5002, Class: models.ClassRegular},
	)
	hs := &fakeHandshaker{down: map[string]bool{"b": true}}
	pub := &recordingPublisher{}
	orch := newOrchestrator(t, allAs(models.ClassRegular), pool, pub, WithHandshaker(hs))

	report, err := orch.Run(context.Background(), newTasks(4))
	require.NoError(t, err)

	assert.True(t, report.OK(), "dispatch failures do not fail the run")
	assert.False(t, report.AllDelivered())
	assert.Equal(t, 2, report.Delivered())

	require.Len(t, report.Undelivered, 2)
	assert.Equal(t, models.TaskID("1"), report.Undelivered[0].Task.ID)
	assert.Equal(t, OutcomeUnreachable, report.Undelivered[0].Outcome)
	assert.Equal(t, models.TaskID("3"), report.Undelivered[1].Task.ID)
	assert.Equal(t, OutcomeClosed, report.Undelivered[1].Outcome)

	assert.Equal(t, 1, hs.calls["a"])
	assert.Equal(t, 1, hs.calls["b"])

	b, _ := pool.Get("b")
	assert.Equal(t, models.DeviceClosed, b.Status)

	// The next cycle starts with every device open again.
	hs.down = nil
	report, err = orch.Run(context.Background(), newTasks(2))
	require.NoError(t, err)
	assert.True(t, report.AllDelivered())
}

func TestRun_PublishFailureIsIsolated(t *testing.T) {
	pool := newPool(t,
		models.Device{ID: "a", Address: "10.0.0.1", Port: 5001, Class: models.ClassRegular},
		models.Device{ID: "b", Address: "10.0.0.2", Port: 5001, Class: models.ClassRegular},
	)
	pub := &recordingPublisher{fail: map[string]error{"10.0.0.1": errors.New("socket closed")}}
	orch := newOrchestrator(t, allAs(models.ClassRegular), pool, pub)

	report, err := orch.Run(context.Background(), newTasks(3))
	require.NoError(t, err)

	require.Len(t, report.Dispatches, 3)
	assert.Equal(t, OutcomeError, report.Dispatches[0].Outcome)
	assert.Equal(t, OutcomeDelivered, report.Dispatches[1].Outcome)
	assert.Equal(t, OutcomeClosed, report.Dispatches[2].Outcome)
	assert.Len(t, pub.sent, 1)
}

func TestRun_NoDevicesForClass(t *testing.T) {
	pool := newPool(t, models.Device{ID: "a", Address: "10.0.0.1", Port: 5001, Class: models.ClassRegular})
	orch := newOrchestrator(t, allAs(models.ClassThinking), pool, &recordingPublisher{})

	report, err := orch.Run(context.Background(), newTasks(2))
	require.NoError(t, err)
	assert.True(t, report.OK())
	require.Len(t, report.Undelivered, 2)
	for _, d := range report.Undelivered {
		assert.Equal(t, OutcomeNoDevice, d.Outcome)
	}
}

func TestRun_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pool := newPool(t, models.Device{ID: "a", Address: "10.0.0.1", Port: 5001, Class: models.ClassRegular})
	orch := newOrchestrator(t, allAs(models.ClassRegular), pool, &recordingPublisher{})

	report, err := orch.Run(ctx, newTasks(1))
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, report.OK())
}

func TestRun_WritesAuditTrail(t *testing.T) {
	db, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	partial := classifierFunc(func(_ context.Context, tasks []models.Task) *classify.Report {
		r := &classify.Report{}
		r.Result.Add(tasks[0].WithClass(models.ClassRegular))
		r.Failures = append(r.Failures, classify.Failure{TaskID: tasks[1].ID, Description: tasks[1].Description, Reason: "no valid category", Attempts: 3})
		return r
	})
	pool := newPool(t, models.Device{ID: "a", Address: "10.0.0.1", Port: 5001, Class: models.ClassRegular})
	orch := newOrchestrator(t, partial, pool, &recordingPublisher{},
		WithAuditLog(db),
		WithRunIDs(func() string { return "run-1" }))

	report, err := orch.Run(context.Background(), newTasks(2))
	require.NoError(t, err)
	assert.Equal(t, "run-1", report.RunID)

	run, err := db.GetRun("run-1")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, state.RunSucceeded, run.Status)
	assert.Equal(t, 2, run.Tasks)
	assert.Equal(t, 1, run.Classified)
	assert.Equal(t, 1, run.Delivered)
	assert.NotNil(t, run.FinishedAt)

	assignments, err := db.ListAssignments("run-1")
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.Equal(t, "0", assignments[0].TaskID)
	assert.Equal(t, "a", assignments[0].DeviceID)
	assert.True(t, assignments[0].Delivered)

	failures, err := db.ListClassificationFailures("run-1")
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "1", failures[0].TaskID)
}

func TestInteractionLog_TagsRun(t *testing.T) {
	db, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	interactions := NewInteractionLog(db, "classifier", "scripted", nil)
	client := llm.NewScriptedClient("maybe", "regular_model")
	classifier, err := classify.New(client, classify.Config{}, classify.WithObserver(interactions.Observer()))
	require.NoError(t, err)

	pool := newPool(t, models.Device{ID: "a", Address: "10.0.0.1", Port: 5001, Class: models.ClassRegular})
	orch := newOrchestrator(t, classifier, pool, &recordingPublisher{},
		WithInteractionLog(interactions),
		WithRunIDs(func() string { return "run-7" }))

	_, err = orch.Run(context.Background(), newTasks(1))
	require.NoError(t, err)

	got, err := db.ListInteractions("run-7")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "maybe", got[0].Output)
	assert.NotEmpty(t, got[0].Error)
	assert.Equal(t, "regular_model", got[1].Output)
	assert.Empty(t, got[1].Error)
	assert.Equal(t, 2, got[1].Attempt)
}
