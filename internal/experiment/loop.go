// Package experiment drives the trial loop: payload generation, broadcast,
// confirmation, display, and durable recording, strictly one trial at a time.
package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/yamalog/qrtxbench/internal/config"
	"github.com/yamalog/qrtxbench/internal/display"
	"github.com/yamalog/qrtxbench/internal/metrics"
	"github.com/yamalog/qrtxbench/internal/payload"
	"github.com/yamalog/qrtxbench/internal/storage"
	"github.com/yamalog/qrtxbench/pkg/types"
)

// Broadcaster submits one payload and returns the final result after the
// retry policy has run its course.
type Broadcaster interface {
	Send(ctx context.Context, req *types.WorkerRequest) types.TransactionResult
}

// Confirmer waits for the contract to reflect the expected value.
type Confirmer interface {
	WaitFor(ctx context.Context, expected, txHash string) (bool, error)
}

// Recorder appends one durable row per trial.
type Recorder interface {
	Append(row types.ExperimentRow) error
}

// Loop runs N trials sequentially. Trials never overlap: the signer's
// account sequence is the contended resource, and each trial's row is
// appended before the next trial begins.
type Loop struct {
	cfg      *config.Config
	gen      *payload.Generator
	client   Broadcaster
	poller   Confirmer // nil = confirmation disabled
	disp     display.Display
	recorder Recorder
	store    storage.Storage // nil = no history
	prom     *metrics.PrometheusMetrics
	logger   *slog.Logger

	runID          string
	startedAt      time.Time
	broadcastStats *metrics.LatencyStats
	totalStats     *metrics.LatencyStats

	ok          int
	failed      int
	unconfirmed int

	sleep func(ctx context.Context, d time.Duration) error
}

// Options for creating a Loop. Client and Recorder are required; the rest
// degrade to no-ops when absent.
type Options struct {
	Config   *config.Config
	Client   Broadcaster
	Poller   Confirmer
	Display  display.Display
	Recorder Recorder
	Store    storage.Storage
	Prom     *metrics.PrometheusMetrics
	Logger   *slog.Logger
}

// New creates a Loop.
func New(opts Options) *Loop {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	disp := opts.Display
	if disp == nil {
		disp = display.NoopDisplay{}
	}

	return &Loop{
		cfg: opts.Config,
		gen: payload.New(payload.Config{
			NodeID:          opts.Config.NodeID,
			SendFullPayload: opts.Config.SendFullPayload,
		}),
		client:         opts.Client,
		poller:         opts.Poller,
		disp:           disp,
		recorder:       opts.Recorder,
		store:          opts.Store,
		prom:           opts.Prom,
		logger:         logger,
		runID:          uuid.NewString(),
		broadcastStats: metrics.NewLatencyStats(),
		totalStats:     metrics.NewLatencyStats(),
		sleep:          sleepCtx,
	}
}

// RunID identifies this run in the history database.
func (l *Loop) RunID() string {
	return l.runID
}

// Run executes trials until the configured count is reached or ctx is
// canceled. Cancellation takes effect between trials; a trial in flight
// finishes and its row is appended before the loop stops. Only recorder I/O
// failures abort the run.
func (l *Loop) Run(ctx context.Context) error {
	l.startedAt = time.Now()
	l.createRunRecord(ctx)

	for trial := 1; l.cfg.NTrials == 0 || trial <= l.cfg.NTrials; trial++ {
		if ctx.Err() != nil {
			l.logger.Info("interrupted, stopping between trials", "completed", trial-1)
			l.completeRunRecord("interrupted", "")
			return nil
		}
		if l.prom != nil {
			l.prom.SetCurrentTrial(trial)
		}

		if err := l.runTrial(ctx, trial); err != nil {
			l.completeRunRecord("error", err.Error())
			return err
		}

		if l.cfg.SleepBetween > 0 {
			if err := l.sleep(ctx, l.cfg.SleepBetween); err != nil {
				l.logger.Info("interrupted, stopping between trials", "completed", trial)
				l.completeRunRecord("interrupted", "")
				return nil
			}
		}
	}

	l.completeRunRecord("completed", "")
	return nil
}

// runTrial executes one trial end to end and appends its row. The returned
// error is non-nil only for unrecoverable log I/O; trial-level failures are
// recorded and absorbed.
func (l *Loop) runTrial(ctx context.Context, trial int) error {
	tm := metrics.StartTiming()

	p := l.gen.Generate(trial)
	value := l.gen.Value(p)
	req := &types.WorkerRequest{Value: value, Memo: l.gen.Memo(p)}

	result := l.client.Send(ctx, req)

	status := types.TrialFailed
	var confirmed *bool

	if result.OK {
		tm.MarkTxHash()
		status = types.TrialOK
	}

	// The frame is rendered for every trial, failed ones included; a
	// failed trial just carries no hash.
	displayMs := l.showFrame(ctx, trial, p, result.TxHash)
	tm.MarkDisplay()

	if result.OK && l.poller != nil {
		c, err := l.waitConfirmed(ctx, value, result.TxHash)
		if err == nil {
			confirmed = &c
			if !c {
				status = types.TrialNotConfirmed
			}
		}
	}

	tm.Finish()

	row := types.ExperimentRow{
		Trial:       trial,
		Value:       value,
		TxHashMs:    tm.TxHashMs(),
		DisplayMs:   displayMs,
		TotalMs:     tm.TotalMs(),
		BroadcastMs: result.BroadcastMs,
		TxHash:      result.TxHash,
		Code:        result.Code,
		Height:      result.Height,
		GasWanted:   result.GasWanted,
		GasUsed:     result.GasUsed,
		Timestamp:   result.Timestamp,
		Confirmed:   confirmed,
		Error:       result.Error,
	}
	if err := l.recorder.Append(row); err != nil {
		return fmt.Errorf("append trial %d: %w", trial, err)
	}

	l.record(trial, status, row, result)

	if l.cfg.DisplayHold > 0 && l.cfg.DisplayURL != "" {
		if err := l.sleep(ctx, l.cfg.DisplayHold); err != nil {
			return nil // row is already appended; the loop stops before the next trial
		}
	}
	return nil
}

// showFrame sends the QR frame to the display collaborator. Display failures
// never fail the trial; they only surface in display_ms and a warning.
func (l *Loop) showFrame(ctx context.Context, trial int, p types.Payload, txHash string) float64 {
	frame := types.DisplayFrame{
		PayloadValue: l.gen.Value(p),
		Metadata: map[string]string{
			"trial":   strconv.Itoa(trial),
			"qr_id":   p.QRID,
			"node_id": p.NodeID,
		},
	}
	if l.cfg.IncludeTxHashInQR {
		frame.TxHash = txHash
	}

	elapsed, err := l.disp.Show(ctx, frame)
	if err != nil {
		l.logger.Warn("display step failed", "trial", trial, "error", err)
	}
	if elapsed <= 0 {
		return 0
	}
	return float64(elapsed) / float64(time.Millisecond)
}

func (l *Loop) waitConfirmed(ctx context.Context, value, txHash string) (bool, error) {
	start := time.Now()
	confirmed, err := l.poller.WaitFor(ctx, value, txHash)
	if err != nil {
		return false, err
	}
	if confirmed && l.prom != nil {
		l.prom.RecordConfirmLatency(time.Since(start).Seconds())
	}
	return confirmed, nil
}

// record updates counters, stats, the status line, and the history store.
func (l *Loop) record(trial int, status types.TrialStatus, row types.ExperimentRow, result types.TransactionResult) {
	switch status {
	case types.TrialOK:
		l.ok++
	case types.TrialNotConfirmed:
		l.unconfirmed++
	default:
		l.failed++
	}

	l.totalStats.Add(row.TotalMs)
	if result.OK && row.BroadcastMs > 0 {
		l.broadcastStats.Add(row.BroadcastMs)
	}

	if l.prom != nil {
		l.prom.RecordTrial(string(status))
		if row.BroadcastMs > 0 {
			l.prom.RecordBroadcastLatency(row.BroadcastMs / 1000)
		}
		if row.DisplayMs > 0 {
			l.prom.RecordDisplayLatency(row.DisplayMs / 1000)
		}
	}

	if result.OK {
		l.logger.Info("trial ok",
			"trial", trial,
			"status", string(status),
			"total_ms", fmt.Sprintf("%.1f", row.TotalMs),
			"txhash", row.TxHash,
			"attempts", result.Attempts)
	} else {
		l.logger.Error("trial ERROR",
			"trial", trial,
			"total_ms", fmt.Sprintf("%.1f", row.TotalMs),
			"attempts", result.Attempts,
			"error", result.Error)
	}

	if l.store != nil {
		rec := storage.TrialRecord{
			Trial:       row.Trial,
			Value:       row.Value,
			TxHash:      row.TxHash,
			Code:        row.Code,
			Height:      row.Height,
			GasWanted:   row.GasWanted,
			GasUsed:     row.GasUsed,
			Timestamp:   row.Timestamp,
			TxHashMs:    row.TxHashMs,
			DisplayMs:   row.DisplayMs,
			TotalMs:     row.TotalMs,
			BroadcastMs: row.BroadcastMs,
			Confirmed:   row.Confirmed,
			Status:      string(status),
			Error:       row.Error,
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.store.InsertTrial(ctx, l.runID, rec); err != nil {
			l.logger.Warn("history insert failed", "trial", trial, "error", err)
		}
	}
}

func (l *Loop) createRunRecord(ctx context.Context) {
	if l.store == nil {
		return
	}
	run := &storage.ExperimentRun{
		ID:        l.runID,
		NodeID:    l.cfg.NodeID,
		StartedAt: l.startedAt,
		ChainID:   l.cfg.ChainID,
		Contract:  l.cfg.Contract,
		CSVPath:   l.cfg.CSVFilename,
		NTrials:   l.cfg.NTrials,
	}
	if err := l.store.CreateRun(ctx, run); err != nil {
		l.logger.Warn("history run create failed", "error", err)
	}
}

func (l *Loop) completeRunRecord(status, errMsg string) {
	if l.store == nil {
		return
	}
	run := &storage.ExperimentRun{
		TrialsOK:          l.ok,
		TrialsFailed:      l.failed,
		TrialsUnconfirmed: l.unconfirmed,
		BroadcastLatency:  l.broadcastStats.Compute(),
		TotalLatency:      l.totalStats.Compute(),
		Status:            status,
		ErrorMessage:      errMsg,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.store.CompleteRun(ctx, l.runID, run); err != nil {
		l.logger.Warn("history run complete failed", "error", err)
	}
}

// Summary reports the run's outcome counters and latency statistics.
type Summary struct {
	Trials      int
	OK          int
	Failed      int
	Unconfirmed int
	Broadcast   *metrics.Summary
	Total       *metrics.Summary
}

// Summary returns aggregate statistics for the run so far.
func (l *Loop) Summary() Summary {
	return Summary{
		Trials:      l.ok + l.failed + l.unconfirmed,
		OK:          l.ok,
		Failed:      l.failed,
		Unconfirmed: l.unconfirmed,
		Broadcast:   l.broadcastStats.Compute(),
		Total:       l.totalStats.Compute(),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
