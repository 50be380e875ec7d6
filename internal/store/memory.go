package store

import (
	"context"
	"sync"
	"time"

	"dabflow/internal/pipeline"
)

// Memory is an in-process pipeline.DiagnosticsSink for tests and for runs
// without storage configured.
type Memory struct {
	mu      sync.Mutex
	batches []Batch
}

// NewMemory returns an empty memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

// Record implements pipeline.DiagnosticsSink.
func (m *Memory) Record(_ context.Context, rec pipeline.BatchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, Batch{
		Ordinal:       int64(len(m.batches)),
		RecordedAt:    time.Now(),
		BufferEpoch:   rec.BufferEpoch,
		Samples:       int64(rec.Samples),
		Accepted:      int64(rec.Accepted),
		Dabs:          int64(rec.Dabs),
		SecondaryDabs: int64(rec.SecondaryDabs),
		Diagnostics:   rec.Diagnostics,
	})
	return nil
}

// Batches returns a copy of the recorded batches.
func (m *Memory) Batches() []Batch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Batch(nil), m.batches...)
}

// Totals sums the recorded batches.
func (m *Memory) Totals() Totals {
	m.mu.Lock()
	defer m.mu.Unlock()
	var t Totals
	for _, b := range m.batches {
		t.add(b)
	}
	return t
}

var _ pipeline.DiagnosticsSink = (*Memory)(nil)
