// dabflow - Stylus input ingestion and dab emission
//
// dabflow replays recorded tablet input through the ingestion pipeline:
//
//	dabflow replay <trace.json>   Route, smooth and stamp a recorded trace
//	dabflow validate <trace...>   Check traces and the configuration
//	dabflow diag                  Inspect stored diagnostics sessions
//	dabflow config                Show or create the configuration file
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"dabflow/internal/config"
	"dabflow/internal/ingress"
	"dabflow/internal/logging"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		usage(stderr)
		return 2
	}

	var err error
	switch args[0] {
	case "replay":
		err = cmdReplay(ctx, args[1:], stdout, stderr)
	case "validate":
		err = cmdValidate(args[1:], stdout, stderr)
	case "diag":
		err = cmdDiag(ctx, args[1:], stdout, stderr)
	case "config":
		err = cmdConfig(args[1:], stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "dabflow %s\n", version)
	case "help", "-h", "--help":
		usage(stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", args[0])
		usage(stderr)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `dabflow - Stylus input ingestion and dab emission

USAGE:
    dabflow <command> [options]

COMMANDS:
    replay <trace>      Replay a recorded trace through the pipeline
    validate <trace...> Validate trace files and the configuration
    diag                List stored sessions or show one session's totals
    config              Print the effective configuration
    version             Print the version
    help                Show this help message

EXAMPLES:
    dabflow replay -dabs out.jsonl -metrics session.json
    dabflow replay -memory -mode shadow session.json
    dabflow diag -session 3
    dabflow config -init

Configuration is read from -config, ./config.{toml,json,yaml} or the
platform config directory. DABFLOW_* environment variables override it.`)
}

// configFile returns path, or the first file FindConfigFile locates.
func configFile(path string) string {
	if path == "" {
		return config.FindConfigFile()
	}
	return path
}

// loadConfig loads and validates the configuration named by path, or the
// first one FindConfigFile locates.
func loadConfig(path string) (*config.Config, error) {
	path = configFile(path)
	if path == "" {
		cfg := config.LoadFromEnv()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("validation failed: %w", err)
		}
		return cfg, nil
	}
	cfg, err := config.NewLoader(path).Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// setupLogger builds the process logger from the logging section. Console
// output goes to the command's stderr.
func setupLogger(cfg *config.Config, stderr io.Writer, verbose bool) (*logging.Logger, error) {
	lc, err := cfg.ToLoggingConfig()
	if err != nil {
		return nil, err
	}
	if verbose {
		lc.Level = logging.LevelDebug
	}
	switch lc.Output {
	case "", "stderr":
		lc.Writer = stderr
	}
	logger, err := logging.New(lc)
	if err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}
	logging.SetDefault(logger)
	return logger, nil
}

// watchConfig hot-reloads path until ctx ends or the returned loader is
// closed. Reloads apply the logging level unless keepLevel is set; rejected
// reloads are logged and leave the running config alone.
func watchConfig(ctx context.Context, path string, logger *logging.Logger, keepLevel bool) (*config.Loader, error) {
	loader := config.NewLoader(path)
	if _, err := loader.Load(); err != nil {
		loader.Close()
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	loader.OnChange(func(cfg *config.Config) {
		if !keepLevel {
			if level, err := logging.ParseLevel(cfg.Logging.Level); err == nil {
				logger.SetLevel(level)
			}
		}
		logger.Info("config reloaded", "path", path, "level", logging.LevelString(logger.Level()))
	})
	if err := loader.Watch(); err != nil {
		loader.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-loader.Errors():
				logger.Warn("config reload rejected", "path", path, "error", err)
			}
		}
	}()
	return loader, nil
}

type diagRow struct {
	name  string
	value uint64
}

func diagnosticRows(d ingress.Diagnostics) []diagRow {
	return []diagRow{
		{"mixed_source_reject_count", d.MixedSourceRejects},
		{"native_down_without_seed_count", d.DownWithoutSeed},
		{"stroke_tail_drop_count", d.TailDrops},
		{"seq_rewind_recovery_fail_count", d.SeqRewindRecoveryFails},
		{"gesture_block_drop_count", d.GestureBlockDrops},
		{"stale_seq_drop_count", d.StaleSeqDrops},
	}
}

func printDiagnostics(w io.Writer, d ingress.Diagnostics) {
	fmt.Fprintln(w, "Diagnostics:")
	for _, row := range diagnosticRows(d) {
		fmt.Fprintf(w, "  %-32s %d\n", row.name, row.value)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
