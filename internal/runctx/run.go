// Package runctx holds the state of one documentation run.
//
// A Run is created once per process invocation and passed explicitly to every
// component. It carries the logger, the clock, and the per-unit outcomes that
// make up the end-of-run summary. Nothing in it is process-global: metrics are
// registered on a private prometheus registry.
package runctx

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tordrt/schemadocs/internal/apperr"
)

// Phase names a stage of the pipeline.
type Phase string

const (
	PhaseConnect    Phase = "connect"
	PhaseCatalog    Phase = "catalog"
	PhaseDictionary Phase = "dictionary"
	PhaseDiagram    Phase = "diagram"
	PhasePublish    Phase = "publish"
	PhasePrune      Phase = "prune"
)

// Phases lists every phase in pipeline order.
var Phases = []Phase{PhaseConnect, PhaseCatalog, PhaseDictionary, PhaseDiagram, PhasePublish, PhasePrune}

// Status is the result of one unit of work.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

var statuses = []Status{StatusSucceeded, StatusFailed, StatusSkipped}

// Outcome records what happened to one unit (a table, schema, database or
// document family) in one phase.
type Outcome struct {
	Phase  Phase
	Unit   string
	Status Status
	Kind   apperr.Kind
	Reason string
}

// Run is the explicit run context.
type Run struct {
	ID      string
	Started time.Time
	Logger  *slog.Logger

	now      func() time.Time
	outcomes []Outcome

	registry *prometheus.Registry
	units    *prometheus.CounterVec
	duration prometheus.Gauge
}

// Option configures a Run.
type Option func(*Run)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Run) {
		r.now = now
	}
}

// New creates a run context logging to logger.
func New(logger *slog.Logger, opts ...Option) *Run {
	r := &Run{
		ID:       uuid.NewString(),
		now:      time.Now,
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.Started = r.now()
	r.Logger = logger.With("run_id", r.ID)

	r.units = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "schemadocs",
		Name:      "units_total",
		Help:      "Units of work processed, by phase and status.",
	}, []string{"phase", "status"})
	r.duration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "schemadocs",
		Name:      "run_duration_seconds",
		Help:      "Wall-clock duration of the last run.",
	})
	r.registry.MustRegister(r.units, r.duration)

	for _, p := range Phases {
		for _, s := range statuses {
			r.units.WithLabelValues(string(p), string(s))
		}
	}

	return r
}

// Now returns the run's current time.
func (r *Run) Now() time.Time {
	return r.now()
}

// Succeeded records a successful unit.
func (r *Run) Succeeded(phase Phase, unit string, attrs ...any) {
	r.record(Outcome{Phase: phase, Unit: unit, Status: StatusSucceeded})
	r.Logger.Info(fmt.Sprintf("%s succeeded", phase), append([]any{"unit", unit}, attrs...)...)
}

// Skipped records a unit that was deliberately not processed.
func (r *Run) Skipped(phase Phase, unit, reason string) {
	r.record(Outcome{Phase: phase, Unit: unit, Status: StatusSkipped, Reason: reason})
	r.Logger.Warn(fmt.Sprintf("%s skipped", phase), "unit", unit, "reason", reason)
}

// Failed records a unit whose processing failed with err.
func (r *Run) Failed(phase Phase, unit string, err error) {
	kind := apperr.KindOf(err)
	r.record(Outcome{Phase: phase, Unit: unit, Status: StatusFailed, Kind: kind, Reason: err.Error()})
	r.Logger.Error(fmt.Sprintf("%s failed", phase), "unit", unit, "kind", kind.String(), "error", err)
}

func (r *Run) record(o Outcome) {
	r.outcomes = append(r.outcomes, o)
	r.units.WithLabelValues(string(o.Phase), string(o.Status)).Inc()
}

// Outcomes returns a copy of every recorded outcome in order.
func (r *Run) Outcomes() []Outcome {
	out := make([]Outcome, len(r.outcomes))
	copy(out, r.outcomes)
	return out
}

// Registry exposes the run's metrics registry.
func (r *Run) Registry() *prometheus.Registry {
	return r.registry
}

// WriteMetrics writes the registry in text exposition format to path.
func (r *Run) WriteMetrics(path string) error {
	r.duration.Set(r.now().Sub(r.Started).Seconds())
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
