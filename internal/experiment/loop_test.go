package experiment

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/yamalog/qrtxbench/internal/config"
	"github.com/yamalog/qrtxbench/pkg/types"
)

type fakeBroadcaster struct {
	events  *[]string
	results []types.TransactionResult
	calls   int
	onSend  func(call int)
}

func (f *fakeBroadcaster) Send(ctx context.Context, req *types.WorkerRequest) types.TransactionResult {
	f.calls++
	if f.events != nil {
		*f.events = append(*f.events, fmt.Sprintf("send:%d", f.calls))
	}
	if f.onSend != nil {
		f.onSend(f.calls)
	}
	if req.Value == "" {
		return types.TransactionResult{Error: "empty value"}
	}
	if f.calls <= len(f.results) {
		return f.results[f.calls-1]
	}
	return types.TransactionResult{OK: true, TxHash: "HASH", BroadcastMs: 100, Attempts: 1}
}

type fakeConfirmer struct {
	confirmed []bool
	calls     int
}

func (f *fakeConfirmer) WaitFor(ctx context.Context, expected, txHash string) (bool, error) {
	f.calls++
	if f.calls <= len(f.confirmed) {
		return f.confirmed[f.calls-1], nil
	}
	return true, nil
}

type fakeRecorder struct {
	events *[]string
	rows   []types.ExperimentRow
	failAt int // 0 = never fail
}

func (f *fakeRecorder) Append(row types.ExperimentRow) error {
	if f.failAt > 0 && row.Trial == f.failAt {
		return errors.New("disk full")
	}
	f.rows = append(f.rows, row)
	if f.events != nil {
		*f.events = append(*f.events, fmt.Sprintf("append:%d", row.Trial))
	}
	return nil
}

type recordingDisplay struct {
	frames []types.DisplayFrame
}

func (d *recordingDisplay) Show(ctx context.Context, frame types.DisplayFrame) (time.Duration, error) {
	d.frames = append(d.frames, frame)
	return 5 * time.Millisecond, nil
}

type failingDisplay struct{ calls int }

func (d *failingDisplay) Show(ctx context.Context, frame types.DisplayFrame) (time.Duration, error) {
	d.calls++
	return 5 * time.Millisecond, errors.New("display unreachable")
}

func testConfig(trials int) *config.Config {
	return &config.Config{
		NodeID:          "node-test",
		NTrials:         trials,
		SendFullPayload: true,
		ConfirmEnabled:  true,
	}
}

func TestLoopOneRowPerTrialInOrder(t *testing.T) {
	code := uint32(0)
	bc := &fakeBroadcaster{results: []types.TransactionResult{
		{OK: true, TxHash: "T1", BroadcastMs: 842.1, Code: &code, Height: 10, Attempts: 1},
		{Error: "timeout", Attempts: 3},
		{OK: true, TxHash: "T3", BroadcastMs: 900, Code: &code, Height: 12, Attempts: 1},
	}}
	cf := &fakeConfirmer{confirmed: []bool{true, false}}
	rec := &fakeRecorder{}

	l := New(Options{
		Config:   testConfig(3),
		Client:   bc,
		Poller:   cf,
		Recorder: rec,
	})

	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(rec.rows) != 3 {
		t.Fatalf("appended %d rows, want 3", len(rec.rows))
	}
	for i, row := range rec.rows {
		if row.Trial != i+1 {
			t.Errorf("row[%d].Trial = %d, want %d", i, row.Trial, i+1)
		}
	}

	if rec.rows[0].TxHash != "T1" || rec.rows[0].Error != "" {
		t.Errorf("trial 1 row = %+v", rec.rows[0])
	}
	if rec.rows[1].TxHash != "" || rec.rows[1].Error != "timeout" {
		t.Errorf("trial 2 row = %+v", rec.rows[1])
	}
	if rec.rows[2].Confirmed == nil || *rec.rows[2].Confirmed {
		t.Errorf("trial 3 Confirmed = %v, want false", rec.rows[2].Confirmed)
	}

	// Failed broadcast must not reach the confirmer.
	if cf.calls != 2 {
		t.Errorf("confirmer calls = %d, want 2", cf.calls)
	}

	sum := l.Summary()
	if sum.OK != 1 || sum.Failed != 1 || sum.Unconfirmed != 1 {
		t.Errorf("summary = %+v, want 1 ok / 1 failed / 1 unconfirmed", sum)
	}
	if sum.Broadcast == nil || sum.Broadcast.Count != 2 {
		t.Errorf("broadcast stats = %+v, want 2 samples", sum.Broadcast)
	}
}

func TestLoopRowDurableBeforeNextTrial(t *testing.T) {
	var events []string
	bc := &fakeBroadcaster{events: &events}
	rec := &fakeRecorder{events: &events}

	l := New(Options{Config: testConfig(3), Client: bc, Recorder: rec})
	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{"send:1", "append:1", "send:2", "append:2", "send:3", "append:3"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
}

func TestLoopRecorderFailureAborts(t *testing.T) {
	bc := &fakeBroadcaster{}
	rec := &fakeRecorder{failAt: 2}

	l := New(Options{Config: testConfig(5), Client: bc, Recorder: rec})
	err := l.Run(context.Background())
	if err == nil {
		t.Fatal("Run did not fail on recorder error")
	}
	if len(rec.rows) != 1 {
		t.Errorf("appended %d rows before abort, want 1", len(rec.rows))
	}
	if bc.calls != 2 {
		t.Errorf("broadcaster calls = %d, want 2", bc.calls)
	}
}

func TestLoopStopsBetweenTrialsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bc := &fakeBroadcaster{onSend: func(call int) {
		if call == 2 {
			cancel()
		}
	}}
	rec := &fakeRecorder{}

	// Unbounded run; only cancellation stops it.
	l := New(Options{Config: testConfig(0), Client: bc, Recorder: rec})
	if err := l.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Trial 2 was in flight when cancel hit; its row still lands.
	if len(rec.rows) != 2 {
		t.Errorf("appended %d rows, want 2", len(rec.rows))
	}
	if bc.calls != 2 {
		t.Errorf("broadcaster calls = %d, want 2", bc.calls)
	}
}

func TestLoopDisplayFailureDoesNotFailTrial(t *testing.T) {
	cfg := testConfig(1)
	cfg.DisplayURL = "http://display"
	cfg.IncludeTxHashInQR = true

	d := &failingDisplay{}
	rec := &fakeRecorder{}
	l := New(Options{Config: cfg, Client: &fakeBroadcaster{}, Recorder: rec, Display: d})

	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if d.calls != 1 {
		t.Errorf("display calls = %d, want 1", d.calls)
	}
	row := rec.rows[0]
	if row.Error != "" {
		t.Errorf("row error = %q, want empty", row.Error)
	}
	if row.DisplayMs <= 0 {
		t.Errorf("display_ms = %v, want > 0", row.DisplayMs)
	}
}

func TestLoopFailedTrialStillRendersFrame(t *testing.T) {
	cfg := testConfig(1)
	cfg.DisplayURL = "http://display"
	cfg.IncludeTxHashInQR = true

	bc := &fakeBroadcaster{results: []types.TransactionResult{
		{Error: "timeout", Attempts: 3},
	}}
	d := &recordingDisplay{}
	rec := &fakeRecorder{}
	l := New(Options{Config: cfg, Client: bc, Recorder: rec, Display: d})

	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(d.frames) != 1 {
		t.Fatalf("display calls = %d, want 1", len(d.frames))
	}
	if d.frames[0].TxHash != "" {
		t.Errorf("failed trial frame must carry no hash, got %q", d.frames[0].TxHash)
	}
	row := rec.rows[0]
	if row.Error != "timeout" {
		t.Errorf("row error = %q, want timeout", row.Error)
	}
	if row.DisplayMs <= 0 {
		t.Errorf("display_ms = %v, want > 0", row.DisplayMs)
	}
}

func TestLoopUniquePayloadValuesAcrossTrials(t *testing.T) {
	rec := &fakeRecorder{}
	l := New(Options{Config: testConfig(5), Client: &fakeBroadcaster{}, Recorder: rec})
	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	seen := map[string]bool{}
	for _, row := range rec.rows {
		if seen[row.Value] {
			t.Errorf("duplicate payload value %q", row.Value)
		}
		seen[row.Value] = true
	}
}
