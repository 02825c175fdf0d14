package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/hydra/internal/devices"
	"github.com/ShayCichocki/hydra/internal/state"
	"github.com/ShayCichocki/hydra/pkg/models"
)

func testPool(t *testing.T) *devices.Pool {
	t.Helper()
	pool := devices.NewPool()
	require.NoError(t, pool.Register(models.Device{ID: "r0", Address: "10.0.0.1", Port: 5001, Class: models.ClassRegular}))
	require.NoError(t, pool.Register(models.Device{ID: "t0", Address: "10.0.0.2", Port: 5001, Class: models.ClassThinking}))
	return pool
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	pool := testPool(t)
	s := New(Config{Pool: pool, Gatherer: prometheus.NewRegistry()})

	rec := get(t, s, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var h Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, ClassHealth{Total: 1, Open: 1}, h.Devices["regular_model"])

	require.NoError(t, pool.MarkClosed("r0"))
	require.NoError(t, pool.MarkClosed("t0"))
	rec = get(t, s, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "degraded")
}

func TestDevices(t *testing.T) {
	s := New(Config{Pool: testPool(t), Gatherer: prometheus.NewRegistry()})

	rec := get(t, s, "/devices")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Devices []models.Device `json:"devices"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Devices, 2)
	assert.Equal(t, "r0", body.Devices[0].ID)
	assert.Equal(t, "10.0.0.1", body.Devices[0].Address)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "hydra_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	s := New(Config{Pool: testPool(t), Gatherer: reg})
	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "hydra_test_total 1"))
}

func TestRuns(t *testing.T) {
	db, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	require.NoError(t, db.CreateRun(&state.Run{ID: "run-1", Tasks: 1}))
	require.NoError(t, db.RecordAssignment(&state.Assignment{
		RunID: "run-1", TaskID: "1", Description: "fix login bug", Class: "thinking_model",
		DeviceID: "t0", DeviceAddress: "10.0.0.2", Delivered: true,
	}))

	s := New(Config{Pool: testPool(t), Audit: db, Gatherer: prometheus.NewRegistry()})

	rec := get(t, s, "/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "run-1")

	rec = get(t, s, "/runs/run-1")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Run         state.Run          `json:"run"`
		Assignments []state.Assignment `json:"assignments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "run-1", body.Run.ID)
	require.Len(t, body.Assignments, 1)
	assert.Equal(t, "t0", body.Assignments[0].DeviceID)

	assert.Equal(t, http.StatusNotFound, get(t, s, "/runs/missing").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/runs?limit=zero").Code)
}

func TestRuns_WithoutAudit(t *testing.T) {
	s := New(Config{Pool: testPool(t), Gatherer: prometheus.NewRegistry()})
	assert.Equal(t, http.StatusNotFound, get(t, s, "/runs").Code)
}
