package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"dabflow/internal/config"
	"dabflow/internal/logging"
	"dabflow/internal/metrics"
	"dabflow/internal/pipeline"
	"dabflow/internal/stamper"
	"dabflow/internal/store"
	"dabflow/internal/trace"
)

func cmdReplay(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Config file (default: search standard locations)")
	dabsPath := fs.String("dabs", "", "Write emitted dabs as JSON lines to this file (- for stdout)")
	dbPath := fs.String("db", "", "Diagnostics database (overrides storage.path)")
	memory := fs.Bool("memory", false, "Keep diagnostics in memory instead of the database")
	mode := fs.String("mode", "", "Dynamics mode: primary, shadow, off (overrides dynamics.mode)")
	name := fs.String("name", "", "Session name (default: trace name)")
	showMetrics := fs.Bool("metrics", false, "Print pipeline metrics after the replay")
	metricsAddr := fs.String("metrics-addr", "", "Serve metrics on this address after the replay until interrupted")
	verbose := fs.Bool("v", false, "Debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: dabflow replay [options] <trace.json>")
	}
	tracePath := fs.Arg(0)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	switch {
	case *memory:
		cfg.Storage.Type = "memory"
		cfg.Storage.Path = ""
	case *dbPath != "":
		cfg.Storage.Type = "sqlite"
		cfg.Storage.Path = *dbPath
	}
	if *mode != "" {
		cfg.Dynamics.Mode = *mode
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, err := setupLogger(cfg, stderr, *verbose)
	if err != nil {
		return err
	}
	defer logger.Close()

	tr, err := trace.Load(tracePath)
	if err != nil {
		return err
	}
	digest, err := tr.Digest()
	if err != nil {
		return err
	}
	if *name == "" {
		*name = tr.Name
	}

	runID := logger.NewRunID()
	ctx = logging.ContextWithRunID(ctx, runID)
	log := logger.WithComponent("replay").WithContext(ctx)

	opts, err := cfg.ToPipelineOptions()
	if err != nil {
		return err
	}
	opts.Logger = log.Logger

	var registry *metrics.Registry
	if cfg.Metrics.Enabled {
		registry = metrics.NewRegistry(cfg.Metrics.Namespace, "")
		opts.Metrics = metrics.NewPipelineMetrics(registry)
	}

	diag, err := openDiagnostics(ctx, cfg, store.SessionInfo{
		Name:         *name,
		Source:       tracePath,
		TraceDigest:  digest,
		DynamicsMode: opts.DynamicsMode.String(),
		Blend:        opts.Blend.String(),
	})
	if err != nil {
		return err
	}
	defer diag.Close()
	opts.Sink = diag.sink()

	renderer, err := newDabWriter(*dabsPath, stdout)
	if err != nil {
		return err
	}
	defer renderer.Close()
	opts.Renderer = renderer

	session := pipeline.NewSession(opts)
	log.Info("replay started",
		"trace", tracePath,
		"batches", len(tr.Batches),
		"samples", tr.SampleCount(),
		"digest", digest,
		"storage", cfg.Storage.Type,
	)

	start := time.Now()
	for _, b := range tr.Batches {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("replay interrupted: %w", err)
		}
		session.ProcessBatch(ctx, b.Samples, b.BufferEpoch, b.Gate)
	}
	if err := renderer.Flush(); err != nil {
		return fmt.Errorf("write dabs: %w", err)
	}

	totals, err := diag.totals(ctx)
	if err != nil {
		return err
	}
	anomalies, err := diag.verify(ctx)
	if err != nil {
		return err
	}
	log.Info("replay finished",
		"elapsed", time.Since(start),
		"dabs", totals.Dabs,
		"secondary_dabs", totals.SecondaryDabs,
		"diagnostics", totals.Diagnostics,
	)
	for _, a := range anomalies {
		log.Warn("stored batch anomaly", "ordinal", a.Ordinal, "reason", a.Reason)
	}

	out := stdout
	if *dabsPath == "-" {
		out = stderr
	}
	fmt.Fprintf(out, "Trace:     %s (%s)\n", tr.Name, tracePath)
	fmt.Fprintf(out, "Digest:    %s\n", digest)
	fmt.Fprintf(out, "Run:       %s\n", runID)
	fmt.Fprintf(out, "Storage:   %s\n", diag.describe())
	fmt.Fprintf(out, "Batches:   %d\n", totals.Batches)
	fmt.Fprintf(out, "Samples:   %d (accepted %d)\n", totals.Samples, totals.Accepted)
	fmt.Fprintf(out, "Strokes:   %d in trace\n", tr.Strokes())
	fmt.Fprintf(out, "Dabs:      %d primary, %d secondary\n", totals.Dabs, totals.SecondaryDabs)
	printDiagnostics(out, totals.Diagnostics)

	if registry != nil && *showMetrics {
		fmt.Fprintln(out)
		if err := registry.Write(out, cfg.Metrics.Format); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	if registry != nil && *metricsAddr != "" {
		if file := configFile(*configPath); file != "" {
			loader, err := watchConfig(ctx, file, logger, *verbose)
			if err != nil {
				return err
			}
			defer loader.Close()
		}
		return serveMetrics(ctx, *metricsAddr, registry, log)
	}
	return nil
}

// serveMetrics exposes the registry until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string, registry *metrics.Registry, log *logging.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", registry.HTTPHandler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("serving metrics", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve metrics: %w", err)
	}
	return nil
}

// diagnostics is the replay's DiagnosticsSink: a session in the SQLite
// store or an in-memory sink.
type diagnostics struct {
	path     string
	store    *store.Store
	recorder *store.Recorder
	memory   *store.Memory
}

func openDiagnostics(ctx context.Context, cfg *config.Config, info store.SessionInfo) (*diagnostics, error) {
	if cfg.Storage.Type == "memory" {
		return &diagnostics{memory: store.NewMemory()}, nil
	}
	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	rec, err := st.CreateSession(ctx, info)
	if err != nil {
		st.Close()
		return nil, err
	}
	return &diagnostics{path: cfg.Storage.Path, store: st, recorder: rec}, nil
}

func (d *diagnostics) sink() pipeline.DiagnosticsSink {
	if d.memory != nil {
		return d.memory
	}
	return d.recorder
}

func (d *diagnostics) totals(ctx context.Context) (store.Totals, error) {
	if d.memory != nil {
		return d.memory.Totals(), nil
	}
	return d.store.Totals(ctx, d.recorder.SessionID())
}

func (d *diagnostics) verify(ctx context.Context) ([]store.Anomaly, error) {
	if d.memory != nil {
		return store.VerifyBatches(d.memory.Batches()), nil
	}
	return d.store.VerifySession(ctx, d.recorder.SessionID())
}

func (d *diagnostics) describe() string {
	if d.memory != nil {
		return "memory"
	}
	return fmt.Sprintf("session %d in %s", d.recorder.SessionID(), d.path)
}

func (d *diagnostics) Close() error {
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// dabWriter is the replay Renderer. It writes every dab as one JSON line,
// or discards them when no output was requested.
type dabWriter struct {
	file *os.File
	buf  *bufio.Writer
	err  error
}

type dabLine struct {
	Brush string `json:"brush"`
	stamper.Dab
}

func newDabWriter(path string, stdout io.Writer) (*dabWriter, error) {
	w := &dabWriter{}
	switch path {
	case "":
	case "-":
		w.buf = bufio.NewWriter(stdout)
	default:
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("create dabs file: %w", err)
		}
		w.file = f
		w.buf = bufio.NewWriter(f)
	}
	return w, nil
}

// Render implements pipeline.Renderer.
func (w *dabWriter) Render(_ context.Context, batch pipeline.RenderBatch) error {
	if w.buf == nil || w.err != nil {
		return w.err
	}
	enc := json.NewEncoder(w.buf)
	for _, d := range batch.Primary {
		if w.err = enc.Encode(dabLine{Brush: "primary", Dab: d}); w.err != nil {
			return w.err
		}
	}
	for _, d := range batch.Secondary {
		if w.err = enc.Encode(dabLine{Brush: "secondary", Dab: d}); w.err != nil {
			return w.err
		}
	}
	return nil
}

// Flush writes buffered dabs and reports the first write error.
func (w *dabWriter) Flush() error {
	if w.err != nil {
		return w.err
	}
	if w.buf != nil {
		return w.buf.Flush()
	}
	return nil
}

func (w *dabWriter) Close() error {
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}
