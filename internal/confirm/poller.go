// Package confirm observes contract state until a written value appears.
package confirm

import (
	"context"
	"log/slog"
	"time"

	"github.com/yamalog/qrtxbench/internal/chain"
)

// Poller repeatedly queries the contract until the expected value is
// observed or the poll budget runs out. Purely observational: it never
// resubmits and a non-matching read is expected steady-state, not an
// error.
type Poller struct {
	client   chain.Client
	contract string
	polls    int
	interval time.Duration
	watcher  *chain.TxWatcher // optional fast path
	logger   *slog.Logger
}

// Config for creating a Poller.
type Config struct {
	Client   chain.Client
	Contract string
	Polls    int
	Interval time.Duration
	Watcher  *chain.TxWatcher // nil = poll only
	Logger   *slog.Logger
}

// New creates a Poller.
func New(cfg Config) *Poller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		client:   cfg.Client,
		contract: cfg.Contract,
		polls:    cfg.Polls,
		interval: cfg.Interval,
		watcher:  cfg.Watcher,
		logger:   logger,
	}
}

// getValueQuery is the contract's read query.
var getValueQuery = map[string]any{"get_value": map[string]any{}}

// WaitFor polls until the contract returns expected. The bool result is
// confirmation; exhausting the budget returns (false, nil). Errors are
// reserved for context cancellation.
//
// When a watcher and txHash are available, a websocket inclusion event
// short-circuits the wait between polls; state is still re-read before
// reporting confirmation, so the poll remains the source of truth.
func (p *Poller) WaitFor(ctx context.Context, expected, txHash string) (bool, error) {
	budget := time.Duration(p.polls) * p.interval
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	included := p.watchInclusion(ctx, txHash)

	for i := 0; i < p.polls; i++ {
		var out struct {
			Value string `json:"value"`
		}
		err := p.client.SmartQuery(ctx, p.contract, getValueQuery, &out)
		if err == nil && out.Value == expected {
			return true, nil
		}
		if err != nil {
			// Absence of a match is not an error; neither is a
			// transient read failure mid-budget.
			p.logger.Debug("confirmation poll failed",
				slog.Int("poll", i+1),
				slog.String("error", err.Error()),
			)
		}

		if i == p.polls-1 {
			break
		}
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return false, nil // budget exhausted
			}
			return false, ctx.Err()
		case <-included:
			// Inclusion observed; re-read immediately and stop
			// selecting on the fired channel.
			included = nil
		case <-time.After(p.interval):
		}
	}
	return false, nil
}

// watchInclusion starts the optional websocket watcher. The returned
// channel fires at most once, when the transaction's inclusion event
// arrives; it never fires when the watcher is absent or fails.
func (p *Poller) watchInclusion(ctx context.Context, txHash string) <-chan struct{} {
	ch := make(chan struct{})
	if p.watcher == nil || txHash == "" {
		return ch
	}
	go func() {
		if err := p.watcher.WaitForTx(ctx, txHash); err != nil {
			p.logger.Debug("inclusion watch unavailable, polling only",
				slog.String("error", err.Error()))
			return
		}
		close(ch)
	}()
	return ch
}
