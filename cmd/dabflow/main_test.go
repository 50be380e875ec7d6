package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dabflow/internal/logging"
)

var fixture = filepath.Join("..", "..", "internal", "trace", "testdata", "mixed.json")

// isolate keeps config discovery and default paths inside a temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(dir, "state"))
	t.Setenv("DABFLOW_DATA_DIR", filepath.Join(dir, "data"))
	return dir
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestUsage(t *testing.T) {
	code, out, _ := runCLI(t, "help")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "replay <trace>")

	code, _, errOut := runCLI(t, "paint")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "Unknown command: paint")

	code, _, _ = runCLI(t)
	assert.Equal(t, 2, code)
}

func TestReplayInMemory(t *testing.T) {
	dir := isolate(t)
	dabs := filepath.Join(dir, "dabs.jsonl")

	code, out, errOut := runCLI(t, "replay", "-memory", "-metrics", "-dabs", dabs, fixture)
	require.Equal(t, 0, code, errOut)

	assert.Contains(t, out, "Storage:   memory")
	assert.Contains(t, out, "Batches:   2")
	assert.Contains(t, out, "Samples:   7 (accepted 4)")
	assert.Contains(t, out, "Strokes:   1 in trace")
	assert.Regexp(t, `mixed_source_reject_count\s+1`, out)
	assert.Regexp(t, `stale_seq_drop_count\s+1`, out)
	assert.Contains(t, out, "dabflow_samples_total 7")
	assert.Contains(t, errOut, "replay started")
	assert.Contains(t, errOut, "run_id=")

	f, err := os.Open(dabs)
	require.NoError(t, err)
	defer f.Close()
	lines := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &line))
		assert.Equal(t, "primary", line["brush"])
		assert.Contains(t, line, "x_px")
		lines++
	}
	require.NoError(t, sc.Err())
	assert.Positive(t, lines)
}

func TestReplayThenDiag(t *testing.T) {
	dir := isolate(t)
	db := filepath.Join(dir, "diag", "diagnostics.db")

	code, out, errOut := runCLI(t, "replay", "-db", db, "-mode", "shadow", fixture)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Storage:   session 1 in "+db)

	code, out, errOut = runCLI(t, "diag", "-db", db)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "wintab stroke with a pointerevent intrusion")
	assert.Contains(t, out, "shadow")

	code, out, errOut = runCLI(t, "diag", "-db", db, "-session", "1")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Samples:   7 (accepted 4)")
	assert.Contains(t, out, "Integrity: ok")

	code, out, errOut = runCLI(t, "diag", "-db", db, "-session", "1", "-json")
	require.Equal(t, 0, code, errOut)
	var report struct {
		Session struct{ ID int64 } `json:"session"`
		Totals  struct {
			Batches  int64
			Accepted int64
		} `json:"totals"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, int64(1), report.Session.ID)
	assert.Equal(t, int64(2), report.Totals.Batches)
	assert.Equal(t, int64(4), report.Totals.Accepted)

	code, _, errOut = runCLI(t, "diag", "-db", db, "-session", "42")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Error:")
}

func TestReplayRejectsBadInput(t *testing.T) {
	dir := isolate(t)

	code, _, errOut := runCLI(t, "replay", "-memory", filepath.Join(dir, "missing.json"))
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Error:")

	code, _, errOut = runCLI(t, "replay", "-memory", "-mode", "loud", fixture)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "dynamics.mode")

	code, _, _ = runCLI(t, "replay")
	assert.Equal(t, 1, code)
}

func TestValidateCommand(t *testing.T) {
	dir := isolate(t)
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"version": 2, "batches": []}`), 0600))

	code, out, _ := runCLI(t, "validate", fixture)
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "ok   config defaults")
	assert.Contains(t, out, "ok   trace "+fixture+": 2 batches, 7 samples, 1 strokes")

	code, out, errOut := runCLI(t, "validate", fixture, bad)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "FAIL trace "+bad)
	assert.Contains(t, errOut, "1 file(s) failed validation")
}

func TestConfigCommand(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "dabflow.toml")

	code, out, errOut := runCLI(t, "config", "-init", "-config", path)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Created "+path)

	code, out, _ = runCLI(t, "config", "-init", "-config", path)
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "Config already exists")

	code, out, errOut = runCLI(t, "config", "-config", path, "-format", "json")
	require.Equal(t, 0, code, errOut)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Contains(t, decoded, "stamper")
	assert.Contains(t, decoded, "dynamics")

	code, out, _ = runCLI(t, "config", "-config", path)
	assert.Equal(t, 0, code)
	assert.True(t, strings.Contains(out, "[stamper]"), out)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchConfigAppliesLogLevel(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "dabflow.toml")
	require.NoError(t, os.WriteFile(path, []byte("[logging]\nlevel = \"info\"\n"), 0600))

	var out syncBuffer
	logger, err := logging.New(&logging.Config{Level: logging.LevelInfo, Writer: &out})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loader, err := watchConfig(ctx, path, logger, false)
	require.NoError(t, err)
	defer loader.Close()

	require.NoError(t, os.WriteFile(path, []byte("[logging]\nlevel = \"debug\"\n"), 0600))
	assert.Eventually(t, func() bool {
		return logger.Level() == logging.LevelDebug
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("[logging]\nlevel = \"loud\"\n"), 0600))
	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "config reload rejected")
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, logging.LevelDebug, logger.Level())
	assert.Contains(t, out.String(), "config reloaded")
}

func TestWatchConfigRejectsInvalidFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "dabflow.toml")
	require.NoError(t, os.WriteFile(path, []byte("[logging]\nlevel = \"loud\"\n"), 0600))

	logger, err := logging.New(&logging.Config{Level: logging.LevelInfo, Writer: &syncBuffer{}})
	require.NoError(t, err)
	_, err = watchConfig(context.Background(), path, logger, false)
	assert.ErrorContains(t, err, "logging.level")
}
