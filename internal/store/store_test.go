package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"dabflow/internal/ingress"
	"dabflow/internal/pipeline"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenAndClose(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close should not error: %v", err)
	}
}

func TestOpenCreatesDirectory(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "subdir", "nested", "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()
}

func TestOpenMemory(t *testing.T) {
	s, err := Open(MemoryPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	rec, err := s.CreateSession(ctx, SessionInfo{Name: "mem"})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := rec.Record(ctx, pipeline.BatchRecord{Samples: 2, Accepted: 2}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	totals, err := s.Totals(ctx, rec.SessionID())
	if err != nil {
		t.Fatalf("Totals failed: %v", err)
	}
	if totals.Samples != 2 {
		t.Errorf("expected 2 samples, got %d", totals.Samples)
	}
}

func TestMigrations(t *testing.T) {
	s := openTemp(t)

	if err := ValidateSchema(s.db); err != nil {
		t.Fatalf("ValidateSchema failed: %v", err)
	}
	status, err := GetMigrationStatus(s.db)
	if err != nil {
		t.Fatalf("GetMigrationStatus failed: %v", err)
	}
	if status.CurrentVersion != len(migrations) {
		t.Errorf("expected version %d, got %d", len(migrations), status.CurrentVersion)
	}
	if len(status.Pending) != 0 {
		t.Errorf("expected no pending migrations, got %d", len(status.Pending))
	}

	// Migrating again is a no-op.
	if err := MigrateDB(s.db); err != nil {
		t.Fatalf("second MigrateDB failed: %v", err)
	}

	if err := RollbackMigration(s.db); err != nil {
		t.Fatalf("RollbackMigration failed: %v", err)
	}
	status, err = GetMigrationStatus(s.db)
	if err != nil {
		t.Fatalf("GetMigrationStatus failed: %v", err)
	}
	if status.CurrentVersion != len(migrations)-1 || len(status.Pending) != 1 {
		t.Errorf("after rollback: version %d, pending %d", status.CurrentVersion, len(status.Pending))
	}
	if err := MigrateDB(s.db); err != nil {
		t.Fatalf("re-apply failed: %v", err)
	}
}

func TestCreateAndListSessions(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	first, err := s.CreateSession(ctx, SessionInfo{Name: "a", Source: "a.json", TraceDigest: "abc"})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	second, err := s.CreateSession(ctx, SessionInfo{Name: "b", DynamicsMode: "shadow", Blend: "erase"})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	sessions, err := s.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != second.SessionID() {
		t.Errorf("expected newest first")
	}
	if sessions[0].DynamicsMode != "shadow" || sessions[0].Blend != "erase" {
		t.Errorf("unexpected modes: %+v", sessions[0])
	}
	if sessions[0].TraceDigest != "" {
		t.Errorf("expected empty digest, got %q", sessions[0].TraceDigest)
	}
	if sessions[1].DynamicsMode != "primary" || sessions[1].Blend != "normal" {
		t.Errorf("expected default modes, got %+v", sessions[1])
	}

	got, err := s.Session(ctx, first.SessionID())
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if got.Name != "a" || got.Source != "a.json" || got.TraceDigest != "abc" {
		t.Errorf("unexpected session: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	byDigest, err := s.SessionsByDigest(ctx, "abc")
	if err != nil {
		t.Fatalf("SessionsByDigest failed: %v", err)
	}
	if len(byDigest) != 1 || byDigest[0].ID != first.SessionID() {
		t.Errorf("unexpected digest match: %+v", byDigest)
	}
}

func TestSessionNotFound(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	if _, err := s.Session(ctx, 42); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := s.Recorder(ctx, 42); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if err := s.DeleteSession(ctx, 42); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRecordAndTotals(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	rec, err := s.CreateSession(ctx, SessionInfo{Name: "replay"})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	records := []pipeline.BatchRecord{
		{BufferEpoch: 0, Samples: 4, Accepted: 2, Dabs: 5, Diagnostics: ingress.Diagnostics{MixedSourceRejects: 1, StaleSeqDrops: 1}},
		{BufferEpoch: 0, Samples: 3, Accepted: 1, Dabs: 2, SecondaryDabs: 4, Diagnostics: ingress.Diagnostics{TailDrops: 1, DownWithoutSeed: 1}},
		{BufferEpoch: 1, Samples: 2, Accepted: 0, Diagnostics: ingress.Diagnostics{SeqRewindRecoveryFails: 1, GestureBlockDrops: 2}},
	}
	for _, r := range records {
		if err := rec.Record(ctx, r); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	batches, err := s.Batches(ctx, rec.SessionID())
	if err != nil {
		t.Fatalf("Batches failed: %v", err)
	}
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	for i, b := range batches {
		if b.Ordinal != int64(i) {
			t.Errorf("batch %d has ordinal %d", i, b.Ordinal)
		}
		if b.Diagnostics != records[i].Diagnostics {
			t.Errorf("batch %d diagnostics: got %+v, want %+v", i, b.Diagnostics, records[i].Diagnostics)
		}
	}
	if batches[2].BufferEpoch != 1 {
		t.Errorf("expected epoch 1, got %d", batches[2].BufferEpoch)
	}

	totals, err := s.Totals(ctx, rec.SessionID())
	if err != nil {
		t.Fatalf("Totals failed: %v", err)
	}
	want := Totals{
		Batches: 3, Samples: 9, Accepted: 3, Dabs: 7, SecondaryDabs: 4,
		Diagnostics: ingress.Diagnostics{
			MixedSourceRejects:     1,
			DownWithoutSeed:        1,
			TailDrops:              1,
			SeqRewindRecoveryFails: 1,
			GestureBlockDrops:      2,
			StaleSeqDrops:          1,
		},
	}
	if totals != want {
		t.Errorf("totals: got %+v, want %+v", totals, want)
	}

	empty, err := s.Totals(ctx, 999)
	if err != nil {
		t.Fatalf("Totals failed: %v", err)
	}
	if empty != (Totals{}) {
		t.Errorf("expected zero totals, got %+v", empty)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	a, _ := s.CreateSession(ctx, SessionInfo{Name: "a"})
	b, _ := s.CreateSession(ctx, SessionInfo{Name: "b"})
	a.Record(ctx, pipeline.BatchRecord{Samples: 1})
	b.Record(ctx, pipeline.BatchRecord{Samples: 10})
	a.Record(ctx, pipeline.BatchRecord{Samples: 1})

	ta, _ := s.Totals(ctx, a.SessionID())
	tb, _ := s.Totals(ctx, b.SessionID())
	if ta.Batches != 2 || ta.Samples != 2 {
		t.Errorf("session a: %+v", ta)
	}
	if tb.Batches != 1 || tb.Samples != 10 {
		t.Errorf("session b: %+v", tb)
	}

	// A recorder for an existing session continues its ordinals.
	again, err := s.Recorder(ctx, b.SessionID())
	if err != nil {
		t.Fatalf("Recorder failed: %v", err)
	}
	again.Record(ctx, pipeline.BatchRecord{Samples: 1})
	batches, _ := s.Batches(ctx, b.SessionID())
	if len(batches) != 2 || batches[1].Ordinal != 1 {
		t.Errorf("unexpected batches: %+v", batches)
	}

	if err := s.DeleteSession(ctx, a.SessionID()); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	batches, _ = s.Batches(ctx, a.SessionID())
	if len(batches) != 0 {
		t.Errorf("expected batches deleted with session, got %d", len(batches))
	}
}

func TestOperationsAfterClose(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	ctx := context.Background()
	rec, err := s.CreateSession(ctx, SessionInfo{})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	s.Close()

	if err := rec.Record(ctx, pipeline.BatchRecord{}); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Record: expected ErrStoreClosed, got %v", err)
	}
	if _, err := s.Sessions(ctx); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Sessions: expected ErrStoreClosed, got %v", err)
	}
	if _, err := s.Totals(ctx, rec.SessionID()); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Totals: expected ErrStoreClosed, got %v", err)
	}
	if _, err := s.CreateSession(ctx, SessionInfo{}); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("CreateSession: expected ErrStoreClosed, got %v", err)
	}
}

func TestVerifyBatches(t *testing.T) {
	clean := []Batch{
		{Ordinal: 0, BufferEpoch: 0, Samples: 3, Accepted: 3},
		{Ordinal: 1, BufferEpoch: 2, Samples: 1, Accepted: 0},
	}
	if got := VerifyBatches(clean); len(got) != 0 {
		t.Errorf("expected no anomalies, got %v", got)
	}

	bad := []Batch{
		{Ordinal: 0, BufferEpoch: 3, Samples: 1, Accepted: 2},
		{Ordinal: 2, BufferEpoch: 1, Samples: 1},
	}
	got := VerifyBatches(bad)
	if len(got) != 3 {
		t.Fatalf("expected 3 anomalies, got %v", got)
	}
	if got[0].Ordinal != 0 || got[1].Ordinal != 2 {
		t.Errorf("unexpected ordinals: %v", got)
	}
}

func TestVerifySession(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	rec, _ := s.CreateSession(ctx, SessionInfo{})
	rec.Record(ctx, pipeline.BatchRecord{BufferEpoch: 1, Samples: 2, Accepted: 1})
	rec.Record(ctx, pipeline.BatchRecord{BufferEpoch: 1, Samples: 2, Accepted: 2})

	anomalies, err := s.VerifySession(ctx, rec.SessionID())
	if err != nil {
		t.Fatalf("VerifySession failed: %v", err)
	}
	if len(anomalies) != 0 {
		t.Errorf("expected no anomalies, got %v", anomalies)
	}
	if _, err := s.VerifySession(ctx, 404); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestMemorySink(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.Record(ctx, pipeline.BatchRecord{Samples: 3, Accepted: 2, Dabs: 4, Diagnostics: ingress.Diagnostics{TailDrops: 1}})
	m.Record(ctx, pipeline.BatchRecord{BufferEpoch: 1, Samples: 1, Diagnostics: ingress.Diagnostics{TailDrops: 2}})

	batches := m.Batches()
	if len(batches) != 2 || batches[1].Ordinal != 1 || batches[1].BufferEpoch != 1 {
		t.Errorf("unexpected batches: %+v", batches)
	}
	totals := m.Totals()
	if totals.Batches != 2 || totals.Samples != 4 || totals.Dabs != 4 || totals.Diagnostics.TailDrops != 3 {
		t.Errorf("unexpected totals: %+v", totals)
	}
	if len(VerifyBatches(batches)) != 0 {
		t.Error("memory batches should verify")
	}
}
