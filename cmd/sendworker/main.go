// Broadcast worker process.
// Reads one JSON request from stdin, signs and submits one contract
// execute transaction, writes one JSON response to stdout. Exits
// non-zero on any failure; a handled failure still emits {ok:false,...}
// while a crash emits nothing.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/yamalog/qrtxbench/internal/config"
	"github.com/yamalog/qrtxbench/internal/worker"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.LoadWorker()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}

	w, err := worker.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "worker init error: %v\n", err)
		os.Exit(2)
	}

	if err := w.Run(context.Background(), os.Stdin, os.Stdout); err != nil {
		logger.Error("broadcast worker failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
