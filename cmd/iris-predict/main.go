package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"iris-predict/internal/config"
	"iris-predict/internal/logging"
)

const usage = `usage: iris-predict <command> [flags]

commands:
  predict   send one prediction and print the result
  history   list or clear the recorded predictions
  chart     draw the per-model history chart (text or PNG)
  health    ping the prediction service
  version   print the prediction service version
  link      print a shareable link for a form state
  watch     redraw the chart whenever the history changes
  serve     run the prediction console in a browser
`

type command func(app *app, args []string) error

var commands = map[string]command{
	"predict": runPredict,
	"history": runHistory,
	"chart":   runChart,
	"health":  runHealth,
	"version": runVersion,
	"link":    runLink,
	"watch":   runWatch,
	"serve":   runServe,
}

// app carries what every command needs.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	stdout io.Writer
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	name := os.Args[1]
	if name == "-h" || name == "--help" || name == "help" {
		fmt.Fprint(os.Stdout, usage)
		return
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", name, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(2)
	}

	// Only the server logs to stdout; other commands keep it for their output.
	console := io.Writer(os.Stderr)
	if name == "serve" {
		console = os.Stdout
	}
	logger := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Console:    console,
	})

	a := &app{cfg: cfg, logger: logger, stdout: os.Stdout}
	if err := cmd(a, os.Args[2:]); err != nil {
		if err != errSilent {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func logConfig(logger *slog.Logger, cfg config.Config) {
	logger.Info("configuration",
		"api_base", cfg.APIBase,
		"model", cfg.Model,
		"first_attempt_timeout", cfg.FirstAttemptTimeout,
		"retry_timeout", cfg.RetryTimeout,
		"retry_backoff", cfg.RetryBackoff,
		"retry_client_errors", cfg.RetryClientErrors,
		"response_max_bytes", cfg.ResponseMaxBytes,
		"history_enabled", cfg.HistoryEnabled,
		"storage", string(cfg.Storage),
		"history_dir", cfg.HistoryDir,
		"listen_addr", cfg.ListenAddr,
		"page_url", cfg.PageURL,
		"health_check_interval", cfg.HealthCheckInterval,
		"version_cache_ttl", cfg.VersionCacheTTL,
		"cors_allow_origin", cfg.CORSAllowOrigin,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)
}
