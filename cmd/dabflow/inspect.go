package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"dabflow/internal/config"
	"dabflow/internal/store"
	"dabflow/internal/trace"
)

func cmdValidate(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Config file to check (default: search standard locations)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	failed := 0

	path := *configPath
	if path == "" {
		path = config.FindConfigFile()
	}
	cfg := config.LoadFromEnv()
	label := "defaults"
	if path != "" {
		label = path
		c, err := config.Load(path)
		if err != nil {
			fmt.Fprintf(stdout, "FAIL config %s: %v\n", label, err)
			failed++
		} else {
			cfg = c
		}
	}
	if failed == 0 {
		findings := config.Check(cfg)
		for _, w := range findings.Warnings() {
			fmt.Fprintf(stdout, "WARN config %s: %s: %s\n", label, w.Field, w.Message)
		}
		if findings.HasErrors() {
			for _, e := range findings.Errors() {
				fmt.Fprintf(stdout, "FAIL config %s: %s: %s\n", label, e.Field, e.Message)
			}
			failed++
		} else {
			fmt.Fprintf(stdout, "ok   config %s\n", label)
		}
	}

	for _, p := range fs.Args() {
		tr, err := trace.Load(p)
		if err != nil {
			fmt.Fprintf(stdout, "FAIL trace %s: %v\n", p, err)
			failed++
			continue
		}
		digest, err := tr.Digest()
		if err != nil {
			fmt.Fprintf(stdout, "FAIL trace %s: %v\n", p, err)
			failed++
			continue
		}
		fmt.Fprintf(stdout, "ok   trace %s: %d batches, %d samples, %d strokes, digest %s\n",
			p, len(tr.Batches), tr.SampleCount(), tr.Strokes(), digest[:16])
	}

	if failed > 0 {
		return fmt.Errorf("%d file(s) failed validation", failed)
	}
	return nil
}

func cmdDiag(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("diag", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Config file (default: search standard locations)")
	dbPath := fs.String("db", "", "Diagnostics database (overrides storage.path)")
	sessionID := fs.Int64("session", 0, "Show totals for this session")
	digest := fs.String("digest", "", "Only list sessions replayed from this trace digest")
	deleteID := fs.Int64("delete", 0, "Delete this session and its batches")
	asJSON := fs.Bool("json", false, "JSON output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := *dbPath
	if path == "" {
		cfg, err := loadConfig(*configPath)
		if err != nil {
			return err
		}
		if cfg.Storage.Type != "sqlite" {
			return fmt.Errorf("diag needs sqlite storage (configured: %s)", cfg.Storage.Type)
		}
		path = cfg.Storage.Path
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("open diagnostics database: %w", err)
	}

	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()

	switch {
	case *deleteID != 0:
		if err := st.DeleteSession(ctx, *deleteID); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Deleted session %d\n", *deleteID)
		return nil
	case *sessionID != 0:
		return showSession(ctx, st, *sessionID, *asJSON, stdout)
	default:
		return listSessions(ctx, st, *digest, *asJSON, stdout)
	}
}

func listSessions(ctx context.Context, st *store.Store, digest string, asJSON bool, w io.Writer) error {
	var (
		sessions []store.Session
		err      error
	)
	if digest != "" {
		sessions, err = st.SessionsByDigest(ctx, digest)
	} else {
		sessions, err = st.Sessions(ctx)
	}
	if err != nil {
		return err
	}

	if asJSON {
		return writeJSON(w, sessions)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tNAME\tMODE\tBLEND\tDIGEST")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.CreatedAt.Format(time.DateTime), s.Name, s.DynamicsMode, s.Blend, shortDigest(s.TraceDigest))
	}
	return tw.Flush()
}

type sessionReport struct {
	Session   *store.Session `json:"session"`
	Totals    store.Totals   `json:"totals"`
	Anomalies []string       `json:"anomalies,omitempty"`
}

func showSession(ctx context.Context, st *store.Store, id int64, asJSON bool, w io.Writer) error {
	s, err := st.Session(ctx, id)
	if err != nil {
		return err
	}
	totals, err := st.Totals(ctx, id)
	if err != nil {
		return err
	}
	anomalies, err := st.VerifySession(ctx, id)
	if err != nil {
		return err
	}

	report := sessionReport{Session: s, Totals: totals}
	for _, a := range anomalies {
		report.Anomalies = append(report.Anomalies, a.String())
	}
	if asJSON {
		return writeJSON(w, report)
	}

	fmt.Fprintf(w, "Session:   %d %s\n", s.ID, s.Name)
	fmt.Fprintf(w, "Created:   %s\n", s.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Source:    %s\n", s.Source)
	fmt.Fprintf(w, "Digest:    %s\n", s.TraceDigest)
	fmt.Fprintf(w, "Mode:      %s, blend %s\n", s.DynamicsMode, s.Blend)
	fmt.Fprintf(w, "Batches:   %d\n", totals.Batches)
	fmt.Fprintf(w, "Samples:   %d (accepted %d)\n", totals.Samples, totals.Accepted)
	fmt.Fprintf(w, "Dabs:      %d primary, %d secondary\n", totals.Dabs, totals.SecondaryDabs)
	printDiagnostics(w, totals.Diagnostics)
	if len(report.Anomalies) == 0 {
		fmt.Fprintln(w, "Integrity: ok")
		return nil
	}
	fmt.Fprintf(w, "Integrity: %d anomalies\n", len(report.Anomalies))
	for _, a := range report.Anomalies {
		fmt.Fprintf(w, "  %s\n", a)
	}
	return nil
}

func shortDigest(d string) string {
	if len(d) > 16 {
		return d[:16]
	}
	if d == "" {
		return "-"
	}
	return d
}

func cmdConfig(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Config file (default: search standard locations)")
	initFile := fs.Bool("init", false, "Write a default config file if none exists")
	format := fs.String("format", "toml", "Output format: toml, json, yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *initFile {
		path := *configPath
		if path == "" {
			path = config.ConfigPath()
		}
		_, created, err := config.LoadOrCreate(path)
		if err != nil {
			return err
		}
		if created {
			fmt.Fprintf(stdout, "Created %s\n", path)
		} else {
			fmt.Fprintf(stdout, "Config already exists: %s\n", path)
		}
		return nil
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	data, err := config.Marshal(cfg, *format)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	_, err = stdout.Write(data)
	return err
}
