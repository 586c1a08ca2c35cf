// QR transaction benchmark driver.
// Runs N sequential trials: generate payload, broadcast via the worker
// process, optionally confirm against contract state, record one CSV row.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yamalog/qrtxbench/internal/broadcast"
	"github.com/yamalog/qrtxbench/internal/chain"
	"github.com/yamalog/qrtxbench/internal/config"
	"github.com/yamalog/qrtxbench/internal/confirm"
	"github.com/yamalog/qrtxbench/internal/display"
	"github.com/yamalog/qrtxbench/internal/experiment"
	"github.com/yamalog/qrtxbench/internal/metrics"
	"github.com/yamalog/qrtxbench/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}

	logger := newLogger()
	slog.SetDefault(logger)

	var prom *metrics.PrometheusMetrics
	if cfg.MetricsAddr != "" {
		prom = metrics.NewPrometheusMetrics(nil)
		go func() {
			logger.Info("metrics listening", "addr", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, promhttp.Handler()); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	var store storage.Storage
	if cfg.DatabasePath != "" {
		s, err := storage.NewSQLiteStorage(cfg.DatabasePath)
		if err != nil {
			logger.Error("failed to open history database", "error", err, "path", cfg.DatabasePath)
			os.Exit(2)
		}
		defer s.Close()
		store = s
		logger.Info("history database ready", "path", cfg.DatabasePath)
	}

	recorder, err := metrics.NewRecorder(cfg.CSVFilename)
	if err != nil {
		logger.Error("failed to open experiment log", "error", err, "path", cfg.CSVFilename)
		os.Exit(2)
	}
	defer recorder.Close()

	var poller experiment.Confirmer
	if cfg.ConfirmEnabled {
		reader := chain.NewHTTPClient(chain.ClientConfig{
			RPCURL: cfg.RPCURL,
			LCDURL: cfg.LCDURL,
			Logger: logger,
		})
		var watcher *chain.TxWatcher
		if cfg.WSURL != "" {
			watcher = chain.NewTxWatcher(cfg.WSURL, logger)
		}
		poller = confirm.New(confirm.Config{
			Client:   reader,
			Contract: cfg.Contract,
			Polls:    cfg.ConfirmPolls,
			Interval: cfg.ConfirmInterval,
			Watcher:  watcher,
			Logger:   logger,
		})
	}

	var disp display.Display = display.NoopDisplay{}
	if cfg.DisplayURL != "" {
		disp = display.NewHTTPDisplay(cfg.DisplayURL, logger)
	}

	client := broadcast.NewClient(broadcast.Config{
		Runner:  broadcast.NewProcessRunner(cfg.WorkerBin, logger),
		Timeout: cfg.WorkerTimeout,
		Prom:    prom,
		Logger:  logger,
	})

	loop := experiment.New(experiment.Options{
		Config:   cfg,
		Client:   client,
		Poller:   poller,
		Display:  disp,
		Recorder: recorder,
		Store:    store,
		Prom:     prom,
		Logger:   logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting experiment",
		"run_id", loop.RunID(),
		"node_id", cfg.NodeID,
		"trials", cfg.NTrials,
		"contract", cfg.Contract,
		"out", cfg.CSVFilename)

	if err := loop.Run(ctx); err != nil {
		logger.Error("experiment aborted", "error", err)
		os.Exit(1)
	}

	logSummary(logger, loop.Summary())
}

func newLogger() *slog.Logger {
	var level slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func logSummary(logger *slog.Logger, sum experiment.Summary) {
	args := []any{
		"trials", sum.Trials,
		"ok", sum.OK,
		"failed", sum.Failed,
		"unconfirmed", sum.Unconfirmed,
	}
	if b := sum.Broadcast; b != nil {
		args = append(args,
			"broadcast_avg_ms", fmt.Sprintf("%.1f", b.Avg),
			"broadcast_p50_ms", fmt.Sprintf("%.1f", b.P50),
			"broadcast_p99_ms", fmt.Sprintf("%.1f", b.P99))
	}
	if t := sum.Total; t != nil {
		args = append(args,
			"total_avg_ms", fmt.Sprintf("%.1f", t.Avg),
			"total_p99_ms", fmt.Sprintf("%.1f", t.P99))
	}
	logger.Info("experiment complete", args...)
}
