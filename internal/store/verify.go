package store

import (
	"context"
	"fmt"
)

// Anomaly is a batch row that violates a recording invariant.
type Anomaly struct {
	Ordinal int64
	Reason  string
}

func (a Anomaly) String() string {
	return fmt.Sprintf("batch %d: %s", a.Ordinal, a.Reason)
}

// VerifyBatches checks rows in ordinal order: ordinals are contiguous from
// zero, buffer epochs never decrease, and a batch never accepts more
// samples than it carried.
func VerifyBatches(batches []Batch) []Anomaly {
	var out []Anomaly
	var prevEpoch uint64
	for i, b := range batches {
		if b.Ordinal != int64(i) {
			out = append(out, Anomaly{b.Ordinal, fmt.Sprintf("expected ordinal %d", i)})
		}
		if i > 0 && b.BufferEpoch < prevEpoch {
			out = append(out, Anomaly{b.Ordinal, fmt.Sprintf("buffer epoch went back from %d to %d", prevEpoch, b.BufferEpoch)})
		}
		if b.Accepted > b.Samples {
			out = append(out, Anomaly{b.Ordinal, fmt.Sprintf("accepted %d of %d samples", b.Accepted, b.Samples)})
		}
		if b.Samples < 0 || b.Dabs < 0 || b.SecondaryDabs < 0 {
			out = append(out, Anomaly{b.Ordinal, "negative count"})
		}
		prevEpoch = b.BufferEpoch
	}
	return out
}

// VerifySession loads a session's batches and checks them with
// VerifyBatches.
func (s *Store) VerifySession(ctx context.Context, sessionID int64) ([]Anomaly, error) {
	if _, err := s.Session(ctx, sessionID); err != nil {
		return nil, err
	}
	batches, err := s.Batches(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load batches for session %d: %w", sessionID, err)
	}
	return VerifyBatches(batches), nil
}
