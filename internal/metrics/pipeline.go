package metrics

import (
	"time"

	"dabflow/internal/ingress"
)

// PipelineMetrics holds the metrics recorded by a stroke pipeline session.
type PipelineMetrics struct {
	registry *Registry

	// Counters
	Batches          *Counter
	Samples          *Counter
	AcceptedEvents   *Counter
	Dabs             *Counter
	SecondaryDabs    *Counter
	StrokesStarted   *Counter
	StrokesCompleted *Counter
	ShadowDynamics   *Counter

	MixedSourceRejects     *Counter
	DownWithoutSeed        *Counter
	TailDrops              *Counter
	SeqRewindRecoveryFails *Counter
	GestureBlockDrops      *Counter
	StaleSeqDrops          *Counter

	// Gauges
	ActiveStroke *Gauge
	SourceLocks  *Gauge

	// Histograms
	BatchDuration *Histogram
	StrokeSpeed   *Histogram
}

// NewPipelineMetrics creates and registers the pipeline metrics. A nil
// registry gets a fresh "dabflow" registry.
func NewPipelineMetrics(registry *Registry) *PipelineMetrics {
	if registry == nil {
		registry = NewRegistry("dabflow", "")
	}
	counter := func(name, help string) *Counter {
		return registry.RegisterCounter(name, help, nil)
	}
	diag := func(kind, help string) *Counter {
		return registry.RegisterCounter("router_drops_total", help, Labels{"reason": kind})
	}

	return &PipelineMetrics{
		registry: registry,

		Batches:          counter("batches_total", "Input batches processed"),
		Samples:          counter("samples_total", "Raw samples received"),
		AcceptedEvents:   counter("accepted_events_total", "Stroke events accepted by the router"),
		Dabs:             counter("dabs_total", "Primary dabs emitted"),
		SecondaryDabs:    counter("secondary_dabs_total", "Dual brush dabs emitted"),
		StrokesStarted:   counter("strokes_started_total", "Strokes opened by a down event"),
		StrokesCompleted: counter("strokes_completed_total", "Strokes closed by an up event"),
		ShadowDynamics:   counter("shadow_dynamics_total", "Dynamics evaluations in shadow mode"),

		MixedSourceRejects:     diag("mixed_source", "Samples rejected by the router"),
		DownWithoutSeed:        diag("down_without_seed", "Samples rejected by the router"),
		TailDrops:              diag("tail_drop", "Samples rejected by the router"),
		SeqRewindRecoveryFails: counter("seq_rewind_recovery_fail_total", "Epoch changes that did not resume on a down"),
		GestureBlockDrops:      diag("gesture_block", "Samples rejected by the router"),
		StaleSeqDrops:          diag("stale_seq", "Samples rejected by the router"),

		ActiveStroke: registry.RegisterGauge("active_stroke", "1 while a stroke is being drawn", nil),
		SourceLocks:  registry.RegisterGauge("source_locks", "Live stroke source locks", nil),

		BatchDuration: registry.RegisterHistogram("batch_duration_seconds", "Time to process one input batch", nil, LatencyBuckets),
		StrokeSpeed:   registry.RegisterHistogram("stroke_speed_px_per_ms", "Smoothed pointer speed", nil, SpeedBuckets),
	}
}

// Registry returns the registry the metrics are registered in.
func (m *PipelineMetrics) Registry() *Registry {
	return m.registry
}

// RecordBatch records one routed batch.
func (m *PipelineMetrics) RecordBatch(samples, accepted int, d ingress.Diagnostics, elapsed time.Duration) {
	m.Batches.Inc()
	m.Samples.Add(uint64(samples))
	m.AcceptedEvents.Add(uint64(accepted))
	m.MixedSourceRejects.Add(d.MixedSourceRejects)
	m.DownWithoutSeed.Add(d.DownWithoutSeed)
	m.TailDrops.Add(d.TailDrops)
	m.SeqRewindRecoveryFails.Add(d.SeqRewindRecoveryFails)
	m.GestureBlockDrops.Add(d.GestureBlockDrops)
	m.StaleSeqDrops.Add(d.StaleSeqDrops)
	m.BatchDuration.ObserveDuration(elapsed)
}

// RecordDabs records emitted dabs.
func (m *PipelineMetrics) RecordDabs(primary, secondary int) {
	m.Dabs.Add(uint64(primary))
	m.SecondaryDabs.Add(uint64(secondary))
}

// StrokeStarted marks a stroke as active.
func (m *PipelineMetrics) StrokeStarted() {
	m.StrokesStarted.Inc()
	m.ActiveStroke.Set(1)
}

// StrokeEnded marks the active stroke as closed.
func (m *PipelineMetrics) StrokeEnded() {
	m.StrokesCompleted.Inc()
	m.ActiveStroke.Set(0)
}

// Snapshot returns the registry snapshot.
func (m *PipelineMetrics) Snapshot() map[string]any {
	return m.registry.Snapshot()
}
