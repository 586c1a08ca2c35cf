// Package broadcast invokes the worker process and applies the retry
// policy around it.
package broadcast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/yamalog/qrtxbench/internal/metrics"
	"github.com/yamalog/qrtxbench/pkg/types"
)

// maxAttempts bounds submissions per trial.
const maxAttempts = 3

// Runner executes one worker invocation.
type Runner interface {
	// Run delivers the request to the worker and returns its response.
	// A handled failure comes back as a response with OK=false; an
	// error means the worker produced no usable output.
	Run(ctx context.Context, req *types.WorkerRequest) (*types.WorkerResponse, error)
}

// ProcessRunner runs the worker binary as a child process, speaking the
// one-document JSON protocol over stdin/stdout. The context deadline is
// the orchestrator's own ceiling on the invocation: a hung worker is
// killed rather than stalling the trial forever.
type ProcessRunner struct {
	bin    string
	logger *slog.Logger
}

// NewProcessRunner creates a runner for the given worker binary.
func NewProcessRunner(bin string, logger *slog.Logger) *ProcessRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessRunner{bin: bin, logger: logger}
}

// Run implements Runner.
func (r *ProcessRunner) Run(ctx context.Context, req *types.WorkerRequest) (*types.WorkerResponse, error) {
	input, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal worker request: %w", err)
	}

	cmd := exec.CommandContext(ctx, r.bin)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 {
		// Exit before emitting output: unhandled failure (malformed
		// input, credential load failure, kill by deadline).
		if ctx.Err() != nil {
			return nil, fmt.Errorf("worker timed out: %w", ctx.Err())
		}
		return nil, fmt.Errorf("worker produced no output (exit: %v, stderr: %s)", runErr, truncate(stderr.Bytes(), 2000))
	}

	var resp types.WorkerResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, fmt.Errorf("worker output not JSON: %s", truncate(out, 200))
	}

	// A non-zero exit with a parsed {ok:false} document is the handled
	// failure path; the response carries the error.
	if runErr != nil && resp.OK {
		r.logger.Warn("worker exited non-zero but reported success",
			slog.String("error", runErr.Error()))
	}
	return &resp, nil
}

// Client applies the bounded retry policy over a Runner and surfaces
// one final TransactionResult per trial.
type Client struct {
	runner  Runner
	timeout time.Duration
	prom    *metrics.PrometheusMetrics
	logger  *slog.Logger
	sleep   func(context.Context, time.Duration) error
}

// Config for creating a Client.
type Config struct {
	Runner  Runner
	Timeout time.Duration              // per-invocation ceiling
	Prom    *metrics.PrometheusMetrics // optional
	Logger  *slog.Logger
}

// NewClient creates a Client.
func NewClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		runner:  cfg.Runner,
		timeout: cfg.Timeout,
		prom:    cfg.Prom,
		logger:  logger,
		sleep:   sleepCtx,
	}
}

// recordAttempt counts one attempt by outcome: "ok" or the classified
// error kind.
func (c *Client) recordAttempt(outcome string) {
	if c.prom != nil {
		c.prom.RecordAttempt(outcome)
	}
}

// Send submits the request, retrying per policy: at most 3 attempts,
// backoff 1200ms*attempt after a sequence race, 400ms*attempt after
// anything else, no delay after the final attempt. A success at any
// attempt is final; a successful submission is never retried.
func (c *Client) Send(ctx context.Context, req *types.WorkerRequest) types.TransactionResult {
	var lastErr string

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := c.invoke(ctx, req)

		switch {
		case err == nil && resp.OK:
			c.recordAttempt("ok")
			return types.TransactionResult{
				OK:          true,
				TxHash:      resp.TxHash,
				BroadcastMs: resp.BroadcastMs,
				Height:      resp.Height,
				Code:        resp.Code,
				GasWanted:   resp.GasWanted,
				GasUsed:     resp.GasUsed,
				Timestamp:   resp.Timestamp,
				Attempts:    attempt,
			}
		case err == nil:
			lastErr = resp.Error
		default:
			lastErr = err.Error()
		}

		kind := Classify(lastErr)
		c.recordAttempt(kind.String())
		c.logger.Warn("broadcast attempt failed",
			slog.Int("attempt", attempt),
			slog.String("kind", kind.String()),
			slog.String("error", lastErr),
		)

		if attempt < maxAttempts {
			if err := c.sleep(ctx, Backoff(kind, attempt)); err != nil {
				return types.TransactionResult{OK: false, Attempts: attempt, Error: lastErr}
			}
		}
	}

	return types.TransactionResult{OK: false, Attempts: maxAttempts, Error: lastErr}
}

// invoke runs one attempt under the per-invocation ceiling.
func (c *Client) invoke(ctx context.Context, req *types.WorkerRequest) (*types.WorkerResponse, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.runner.Run(ctx, req)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}

var _ Runner = (*ProcessRunner)(nil)
