package store

import (
	"time"

	"dabflow/internal/ingress"
)

// SessionInfo describes a session when it is created.
type SessionInfo struct {
	Name         string
	Source       string // trace path or live device name
	TraceDigest  string
	DynamicsMode string
	Blend        string
}

// Session is a stored session row.
type Session struct {
	ID           int64
	CreatedAt    time.Time
	Name         string
	Source       string
	TraceDigest  string
	DynamicsMode string
	Blend        string
}

// Batch is one stored per-batch diagnostics row.
type Batch struct {
	SessionID     int64
	Ordinal       int64
	RecordedAt    time.Time
	BufferEpoch   uint64
	Samples       int64
	Accepted      int64
	Dabs          int64
	SecondaryDabs int64
	Diagnostics   ingress.Diagnostics
}

// Totals aggregates batches.
type Totals struct {
	Batches       int64
	Samples       int64
	Accepted      int64
	Dabs          int64
	SecondaryDabs int64
	Diagnostics   ingress.Diagnostics
}

func (t *Totals) add(b Batch) {
	t.Batches++
	t.Samples += b.Samples
	t.Accepted += b.Accepted
	t.Dabs += b.Dabs
	t.SecondaryDabs += b.SecondaryDabs
	t.Diagnostics.Add(b.Diagnostics)
}
