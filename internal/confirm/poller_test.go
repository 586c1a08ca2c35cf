package confirm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yamalog/qrtxbench/internal/chain"
)

// fakeReader serves scripted get_value results.
type fakeReader struct {
	values []string
	errs   []error
	calls  int
}

func (f *fakeReader) SmartQuery(ctx context.Context, contract string, query, result any) error {
	i := f.calls
	f.calls++
	if i >= len(f.values) {
		i = len(f.values) - 1
	}
	if f.errs != nil && f.errs[i] != nil {
		return f.errs[i]
	}
	if out, ok := result.(*struct {
		Value string `json:"value"`
	}); ok {
		out.Value = f.values[i]
	}
	return nil
}

func (f *fakeReader) BroadcastTxSync(ctx context.Context, txBytes []byte) (*chain.BroadcastResult, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeReader) Account(ctx context.Context, address string) (*chain.AccountInfo, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeReader) GetTx(ctx context.Context, txHash string) (*chain.TxInclusion, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeReader) Ping(ctx context.Context, contract string) error {
	return nil
}

func TestWaitFor_ImmediateMatch(t *testing.T) {
	reader := &fakeReader{values: []string{"expected-value"}}
	p := New(Config{Client: reader, Contract: "wasm1c", Polls: 5, Interval: 10 * time.Millisecond})

	ok, err := p.WaitFor(context.Background(), "expected-value", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected confirmation")
	}
	if reader.calls != 1 {
		t.Errorf("expected 1 poll, got %d", reader.calls)
	}
}

func TestWaitFor_MatchAfterSeveralPolls(t *testing.T) {
	reader := &fakeReader{values: []string{"old", "old", "new-value"}}
	p := New(Config{Client: reader, Contract: "wasm1c", Polls: 10, Interval: 5 * time.Millisecond})

	ok, err := p.WaitFor(context.Background(), "new-value", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected confirmation")
	}
	if reader.calls != 3 {
		t.Errorf("expected 3 polls, got %d", reader.calls)
	}
}

func TestWaitFor_BudgetExhausted(t *testing.T) {
	reader := &fakeReader{values: []string{"never-matches"}}
	p := New(Config{Client: reader, Contract: "wasm1c", Polls: 4, Interval: 5 * time.Millisecond})

	ok, err := p.WaitFor(context.Background(), "expected", "")
	if err != nil {
		t.Fatalf("budget exhaustion must not be an error: %v", err)
	}
	if ok {
		t.Fatal("expected not confirmed")
	}
	if reader.calls > 4 {
		t.Errorf("poll budget is 4, issued %d polls", reader.calls)
	}
}

func TestWaitFor_ReadErrorsAreNotFatal(t *testing.T) {
	reader := &fakeReader{
		values: []string{"", "", "target"},
		errs:   []error{errors.New("503"), errors.New("503"), nil},
	}
	p := New(Config{Client: reader, Contract: "wasm1c", Polls: 10, Interval: 5 * time.Millisecond})

	ok, err := p.WaitFor(context.Background(), "target", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected confirmation after transient read failures")
	}
}

func TestWaitFor_Cancellation(t *testing.T) {
	reader := &fakeReader{values: []string{"never"}}
	p := New(Config{Client: reader, Contract: "wasm1c", Polls: 100, Interval: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	ok, err := p.WaitFor(ctx, "expected", "")
	if ok {
		t.Fatal("cancelled wait must not confirm")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
