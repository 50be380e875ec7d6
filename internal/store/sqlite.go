package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"dabflow/internal/pipeline"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

var (
	// ErrStoreClosed is returned by every operation after Close.
	ErrStoreClosed = errors.New("store: closed")
	// ErrSessionNotFound is returned for an unknown session id.
	ErrSessionNotFound = errors.New("store: session not found")
)

const batchColumns = `session_id, ordinal, recorded_at, buffer_epoch, samples, accepted, dabs, secondary_dabs,
	mixed_source_rejects, down_without_seed, tail_drops, seq_rewind_recovery_fails, gesture_block_drops, stale_seq_drops`

// Store represents the SQLite diagnostics store.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// Open opens or creates the SQLite database at the given path and runs
// migrations. MemoryPath opens a database that lives until Close.
func Open(path string) (*Store, error) {
	dsn := path
	if path != MemoryPath {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = path + "?_foreign_keys=on&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite serializes writers; one connection also keeps :memory: a
	// single database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection. Closing twice is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.db == nil {
		s.closed = true
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) conn() (*sql.DB, error) {
	if s.closed || s.db == nil {
		return nil, ErrStoreClosed
	}
	return s.db, nil
}

// CreateSession inserts a session row and returns a recorder bound to it.
func (s *Store) CreateSession(ctx context.Context, info SessionInfo) (*Recorder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	mode, blend := info.DynamicsMode, info.Blend
	if mode == "" {
		mode = pipeline.DynamicsPrimary.String()
	}
	if blend == "" {
		blend = pipeline.BlendNormal.String()
	}

	var digest any
	if info.TraceDigest != "" {
		digest = info.TraceDigest
	}

	result, err := db.ExecContext(ctx, `
		INSERT INTO sessions (created_at, name, source, trace_digest, dynamics_mode, blend)
		VALUES (?, ?, ?, ?, ?, ?)`,
		time.Now().UnixNano(), info.Name, info.Source, digest, mode, blend,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return &Recorder{store: s, id: id}, nil
}

// Recorder returns a recorder for an existing session.
func (s *Store) Recorder(ctx context.Context, sessionID int64) (*Recorder, error) {
	if _, err := s.Session(ctx, sessionID); err != nil {
		return nil, err
	}
	return &Recorder{store: s, id: sessionID}, nil
}

// Session retrieves a session by ID.
func (s *Store) Session(ctx context.Context, id int64) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx, `
		SELECT id, created_at, name, source, trace_digest, dynamics_mode, blend
		FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// Sessions lists sessions, newest first.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, created_at, name, source, trace_digest, dynamics_mode, blend
		FROM sessions ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

// SessionsByDigest lists sessions replayed from the trace with the given
// digest, oldest first.
func (s *Store) SessionsByDigest(ctx context.Context, digest string) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, created_at, name, source, trace_digest, dynamics_mode, blend
		FROM sessions WHERE trace_digest = ? ORDER BY id ASC`, digest)
	if err != nil {
		return nil, fmt.Errorf("query sessions by digest: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var sess Session
	var createdAt int64
	var digest sql.NullString
	if err := row.Scan(&sess.ID, &createdAt, &sess.Name, &sess.Source, &digest, &sess.DynamicsMode, &sess.Blend); err != nil {
		return nil, err
	}
	sess.CreatedAt = time.Unix(0, createdAt)
	sess.TraceDigest = digest.String
	return &sess, nil
}

// DeleteSession removes a session and its batches.
func (s *Store) DeleteSession(ctx context.Context, id int64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	db, err := s.conn()
	if err != nil {
		return err
	}

	result, err := db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrSessionNotFound, id)
	}
	return nil
}

func (s *Store) insertBatch(ctx context.Context, sessionID int64, rec pipeline.BatchRecord) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	db, err := s.conn()
	if err != nil {
		return err
	}

	d := rec.Diagnostics
	_, err = db.ExecContext(ctx, `
		INSERT INTO batches (`+batchColumns+`)
		VALUES (?, (SELECT COALESCE(MAX(ordinal) + 1, 0) FROM batches WHERE session_id = ?), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, sessionID, time.Now().UnixNano(), int64(rec.BufferEpoch),
		rec.Samples, rec.Accepted, rec.Dabs, rec.SecondaryDabs,
		int64(d.MixedSourceRejects), int64(d.DownWithoutSeed), int64(d.TailDrops),
		int64(d.SeqRewindRecoveryFails), int64(d.GestureBlockDrops), int64(d.StaleSeqDrops),
	)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

// Batches returns a session's batches in ordinal order.
func (s *Store) Batches(ctx context.Context, sessionID int64) ([]Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT `+batchColumns+`
		FROM batches WHERE session_id = ?
		ORDER BY ordinal ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	return scanBatches(rows)
}

func scanBatches(rows *sql.Rows) ([]Batch, error) {
	var batches []Batch
	for rows.Next() {
		var b Batch
		var recordedAt, epoch int64
		d := &b.Diagnostics
		if err := rows.Scan(
			&b.SessionID, &b.Ordinal, &recordedAt, &epoch,
			&b.Samples, &b.Accepted, &b.Dabs, &b.SecondaryDabs,
			&d.MixedSourceRejects, &d.DownWithoutSeed, &d.TailDrops,
			&d.SeqRewindRecoveryFails, &d.GestureBlockDrops, &d.StaleSeqDrops,
		); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		b.RecordedAt = time.Unix(0, recordedAt)
		b.BufferEpoch = uint64(epoch)
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batches: %w", err)
	}
	return batches, nil
}

// Totals sums a session's batches.
func (s *Store) Totals(ctx context.Context, sessionID int64) (Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	db, err := s.conn()
	if err != nil {
		return Totals{}, err
	}

	var t Totals
	d := &t.Diagnostics
	err = db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(samples), 0), COALESCE(SUM(accepted), 0),
			COALESCE(SUM(dabs), 0), COALESCE(SUM(secondary_dabs), 0),
			COALESCE(SUM(mixed_source_rejects), 0), COALESCE(SUM(down_without_seed), 0),
			COALESCE(SUM(tail_drops), 0), COALESCE(SUM(seq_rewind_recovery_fails), 0),
			COALESCE(SUM(gesture_block_drops), 0), COALESCE(SUM(stale_seq_drops), 0)
		FROM batches WHERE session_id = ?`, sessionID,
	).Scan(
		&t.Batches, &t.Samples, &t.Accepted, &t.Dabs, &t.SecondaryDabs,
		&d.MixedSourceRejects, &d.DownWithoutSeed, &d.TailDrops,
		&d.SeqRewindRecoveryFails, &d.GestureBlockDrops, &d.StaleSeqDrops,
	)
	if err != nil {
		return Totals{}, fmt.Errorf("sum batches: %w", err)
	}
	return t, nil
}

// Recorder is a pipeline.DiagnosticsSink that appends batches to one
// session.
type Recorder struct {
	store *Store
	id    int64
}

// SessionID returns the session the recorder writes to.
func (r *Recorder) SessionID() int64 {
	return r.id
}

// Record implements pipeline.DiagnosticsSink.
func (r *Recorder) Record(ctx context.Context, rec pipeline.BatchRecord) error {
	return r.store.insertBatch(ctx, r.id, rec)
}

var _ pipeline.DiagnosticsSink = (*Recorder)(nil)
