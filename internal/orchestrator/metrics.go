package orchestrator

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report dispatch activity.
type Metrics struct {
	classifyAttempts *prometheus.CounterVec
	classifiedTasks  *prometheus.CounterVec
	dispatches       *prometheus.CounterVec
	runs             *prometheus.CounterVec
	runDuration      prometheus.Histogram
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// defaultMetrics returns the instance registered with the global registry.
// The collectors are created once so that several orchestrators in one
// process do not panic on duplicate registration.
func defaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs a Metrics instance using the provided registerer.
// Collectors already registered under the same names are reused; any other
// registration error panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		classifyAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hydra",
				Subsystem: "orchestrator",
				Name:      "classify_attempts_total",
				Help:      "Classification rounds by outcome (usable or empty).",
			},
			[]string{"outcome"},
		),
		classifiedTasks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hydra",
				Subsystem: "orchestrator",
				Name:      "classified_tasks_total",
				Help:      "Tasks placed in a capability class.",
			},
			[]string{"class"},
		),
		dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hydra",
				Subsystem: "orchestrator",
				Name:      "dispatches_total",
				Help:      "Task dispatches by class and outcome.",
			},
			[]string{"class", "outcome"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hydra",
				Subsystem: "orchestrator",
				Name:      "runs_total",
				Help:      "Completed runs by status.",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "hydra",
				Subsystem: "orchestrator",
				Name:      "run_duration_seconds",
				Help:      "Wall time of a full classify and dispatch cycle.",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}

	m.classifyAttempts = register(reg, m.classifyAttempts)
	m.classifiedTasks = register(reg, m.classifiedTasks)
	m.dispatches = register(reg, m.dispatches)
	m.runs = register(reg, m.runs)
	m.runDuration = register(reg, m.runDuration)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ObserveClassifyAttempt counts one classification round.
func (m *Metrics) ObserveClassifyAttempt(usable bool) {
	if m == nil {
		return
	}
	outcome := "empty"
	if usable {
		outcome = "usable"
	}
	m.classifyAttempts.WithLabelValues(outcome).Inc()
}

// AddClassified counts n tasks placed in class.
func (m *Metrics) AddClassified(class string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.classifiedTasks.WithLabelValues(class).Add(float64(n))
}

// ObserveDispatch counts one dispatch with outcome delivered, unreachable,
// closed, no_device or error.
func (m *Metrics) ObserveDispatch(class, outcome string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(class, outcome).Inc()
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
	m.runDuration.Observe(d.Seconds())
}
