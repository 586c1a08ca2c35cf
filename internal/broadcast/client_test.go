package broadcast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yamalog/qrtxbench/internal/metrics"
	"github.com/yamalog/qrtxbench/pkg/types"
)

// scriptedRunner returns one scripted outcome per attempt.
type scriptedRunner struct {
	responses []*types.WorkerResponse
	errs      []error
	calls     int
}

func (r *scriptedRunner) Run(ctx context.Context, req *types.WorkerRequest) (*types.WorkerResponse, error) {
	i := r.calls
	r.calls++
	if i >= len(r.responses) {
		return nil, errors.New("runner called too many times")
	}
	return r.responses[i], r.errs[i]
}

// newTestClient wires a client whose backoff sleeps are recorded
// instead of slept.
func newTestClient(runner Runner) (*Client, *[]time.Duration) {
	c := NewClient(Config{Runner: runner, Timeout: time.Second})
	var slept []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return c, &slept
}

func okResp(hash string) *types.WorkerResponse {
	code := uint32(0)
	return &types.WorkerResponse{OK: true, TxHash: hash, BroadcastMs: 842.1, Code: &code}
}

func failResp(msg string) *types.WorkerResponse {
	return &types.WorkerResponse{OK: false, Error: msg}
}

func TestSend_FirstAttemptSuccess(t *testing.T) {
	runner := &scriptedRunner{
		responses: []*types.WorkerResponse{okResp("ABC123")},
		errs:      []error{nil},
	}
	c, slept := newTestClient(runner)

	res := c.Send(context.Background(), &types.WorkerRequest{Value: "pi-exp-1700000000-1"})
	if !res.OK {
		t.Fatalf("expected success, got %q", res.Error)
	}
	if res.TxHash != "ABC123" {
		t.Errorf("expected txhash ABC123, got %s", res.TxHash)
	}
	if res.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", res.Attempts)
	}
	if runner.calls != 1 {
		t.Errorf("success must never be retried: %d calls", runner.calls)
	}
	if len(*slept) != 0 {
		t.Errorf("no backoff expected, slept %v", *slept)
	}
	if res.Error != "" {
		t.Errorf("expected empty error, got %q", res.Error)
	}
}

func TestSend_SequenceRaceThenSuccess(t *testing.T) {
	runner := &scriptedRunner{
		responses: []*types.WorkerResponse{
			failResp("account sequence mismatch, expected 5, got 4"),
			failResp("account sequence mismatch, expected 6, got 5"),
			okResp("FEED01"),
		},
		errs: []error{nil, nil, nil},
	}
	c, slept := newTestClient(runner)

	res := c.Send(context.Background(), &types.WorkerRequest{Value: "x"})
	if !res.OK {
		t.Fatalf("expected success, got %q", res.Error)
	}
	if res.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", res.Attempts)
	}

	want := []time.Duration{1200 * time.Millisecond, 2400 * time.Millisecond}
	if len(*slept) != len(want) {
		t.Fatalf("expected backoffs %v, got %v", want, *slept)
	}
	for i := range want {
		if (*slept)[i] != want[i] {
			t.Errorf("backoff %d: expected %v, got %v", i+1, want[i], (*slept)[i])
		}
	}
}

func TestSend_AllAttemptsFail(t *testing.T) {
	runner := &scriptedRunner{
		responses: []*types.WorkerResponse{
			failResp("timeout"),
			failResp("timeout"),
			failResp("timeout"),
		},
		errs: []error{nil, nil, nil},
	}
	c, slept := newTestClient(runner)

	res := c.Send(context.Background(), &types.WorkerRequest{Value: "x"})
	if res.OK {
		t.Fatal("expected failure")
	}
	if res.Error != "timeout" {
		t.Errorf("expected last error, got %q", res.Error)
	}
	if res.TxHash != "" {
		t.Errorf("failed result must carry no hash, got %s", res.TxHash)
	}
	if runner.calls != 3 {
		t.Errorf("retry bound is 3 attempts, got %d", runner.calls)
	}

	// 400*1, 400*2; no delay after the final attempt.
	want := []time.Duration{400 * time.Millisecond, 800 * time.Millisecond}
	if len(*slept) != len(want) {
		t.Fatalf("expected backoffs %v, got %v", want, *slept)
	}
}

func TestSend_CountsAttemptsByOutcome(t *testing.T) {
	runner := &scriptedRunner{
		responses: []*types.WorkerResponse{
			failResp("account sequence mismatch, expected 5, got 4"),
			failResp("timeout"),
			okResp("FEED01"),
		},
		errs: []error{nil, nil, nil},
	}
	prom := metrics.NewPrometheusMetrics(prometheus.NewRegistry())
	c := NewClient(Config{Runner: runner, Timeout: time.Second, Prom: prom})
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	res := c.Send(context.Background(), &types.WorkerRequest{Value: "x"})
	if !res.OK {
		t.Fatalf("expected success, got %q", res.Error)
	}

	for kind, want := range map[string]float64{"sequence": 1, "other": 1, "ok": 1} {
		got := testutil.ToFloat64(prom.AttemptsTotal.WithLabelValues(kind))
		if got != want {
			t.Errorf("attempts[%s]: expected %v, got %v", kind, want, got)
		}
	}
}

func TestSend_InterruptedBackoffReportsActualAttempts(t *testing.T) {
	runner := &scriptedRunner{
		responses: []*types.WorkerResponse{failResp("timeout")},
		errs:      []error{nil},
	}
	c, _ := newTestClient(runner)
	c.sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}

	res := c.Send(context.Background(), &types.WorkerRequest{Value: "x"})
	if res.OK {
		t.Fatal("expected failure")
	}
	if res.Attempts != 1 {
		t.Errorf("expected the one attempt actually made, got %d", res.Attempts)
	}
	if res.Error != "timeout" {
		t.Errorf("expected last broadcast error, got %q", res.Error)
	}
	if runner.calls != 1 {
		t.Errorf("cancellation must stop retrying, got %d calls", runner.calls)
	}
}

func TestSend_WorkerCrashCountsAsAttempt(t *testing.T) {
	runner := &scriptedRunner{
		responses: []*types.WorkerResponse{nil, okResp("CAFE02")},
		errs:      []error{errors.New("worker produced no output (exit: exit status 2)"), nil},
	}
	c, _ := newTestClient(runner)

	res := c.Send(context.Background(), &types.WorkerRequest{Value: "x"})
	if !res.OK {
		t.Fatalf("expected recovery on second attempt, got %q", res.Error)
	}
	if res.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", res.Attempts)
	}
}
