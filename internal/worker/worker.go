// Package worker implements the single-shot broadcast worker process.
//
// The worker is the sole owner of the signing credential and network
// session. It reads exactly one JSON request document from its input,
// signs and submits exactly one transaction, and writes exactly one
// JSON response document to its output. Submission is not idempotent:
// once the request reaches the network a transaction may exist on-chain
// even if the parent times out waiting for the response.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/yamalog/qrtxbench/internal/chain"
	"github.com/yamalog/qrtxbench/internal/config"
	"github.com/yamalog/qrtxbench/pkg/types"
)

// maxRequestBytes bounds the stdin read; a request is a small JSON document.
const maxRequestBytes = 1 << 20

// Inclusion lookups after a successful broadcast. Best effort: the
// result fields they fill are optional.
const (
	inclusionPolls    = 10
	inclusionInterval = 1500 * time.Millisecond
)

// ErrStructuredFailure indicates the worker produced an {ok:false}
// response document. The process must still exit non-zero so the parent
// can distinguish handled failures from crashes, which emit no output.
var ErrStructuredFailure = errors.New("broadcast failed")

// Worker turns one request into one submission attempt.
type Worker struct {
	cfg          *config.Config
	client       chain.Client
	signer       *chain.Signer
	logger       *slog.Logger
	pollInterval time.Duration
}

// New creates a Worker. Credential loading happens here; a bad
// credential fails the invocation before any input is consumed.
func New(cfg *config.Config, logger *slog.Logger) (*Worker, error) {
	if logger == nil {
		logger = slog.Default()
	}

	signer, err := chain.NewSigner(chain.SignerConfig{
		Mnemonic:     cfg.Mnemonic,
		PrivKeyHex:   cfg.PrivKeyHex,
		Bech32Prefix: cfg.Bech32Prefix,
		ChainID:      cfg.ChainID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load signing credential: %w", err)
	}

	client := chain.NewHTTPClient(chain.ClientConfig{
		RPCURL: cfg.RPCURL,
		LCDURL: cfg.LCDURL,
		Logger: logger,
	})

	return &Worker{cfg: cfg, client: client, signer: signer, logger: logger, pollInterval: inclusionInterval}, nil
}

// NewWithClient creates a Worker with an injected chain client and signer.
func NewWithClient(cfg *config.Config, client chain.Client, signer *chain.Signer, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{cfg: cfg, client: client, signer: signer, logger: logger, pollInterval: inclusionInterval}
}

// Run reads one request from in, performs the submission, and writes
// one response to out.
//
// Errors split three ways: a malformed or empty request returns an
// error without writing anything (the parent sees exit-before-output);
// a handled broadcast failure writes {ok:false,...} and returns
// ErrStructuredFailure; success writes {ok:true,...} and returns nil.
func (w *Worker) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	req, err := readRequest(in)
	if err != nil {
		return err
	}

	resp := w.submit(ctx, req)

	if err := json.NewEncoder(out).Encode(resp); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	if !resp.OK {
		return fmt.Errorf("%w: %s", ErrStructuredFailure, resp.Error)
	}
	return nil
}

// readRequest reads and validates the single request document.
func readRequest(in io.Reader) (*types.WorkerRequest, error) {
	data, err := io.ReadAll(io.LimitReader(in, maxRequestBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read request: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty request")
	}

	var req types.WorkerRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("malformed request: %w", err)
	}
	if req.Value == "" {
		return nil, fmt.Errorf("request value must be non-empty")
	}
	return &req, nil
}

// submit performs the one submission attempt.
func (w *Worker) submit(ctx context.Context, req *types.WorkerRequest) *types.WorkerResponse {
	fail := func(format string, args ...any) *types.WorkerResponse {
		return &types.WorkerResponse{OK: false, Error: fmt.Sprintf(format, args...)}
	}

	acc, err := w.client.Account(ctx, w.signer.Address())
	if err != nil {
		return fail("account query failed: %v", err)
	}

	txBytes, err := w.signer.BuildExecuteTx(chain.ExecuteParams{
		Contract: w.cfg.Contract,
		ExecMsg: map[string]any{
			"set_value": map[string]string{"value": req.Value},
		},
		Memo:          req.Memo,
		AccountNumber: acc.AccountNumber,
		Sequence:      acc.Sequence,
		FeeDenom:      w.cfg.Denom,
		FeeAmount:     w.cfg.FeeAmount,
		GasLimit:      w.cfg.GasLimit,
	})
	if err != nil {
		return fail("failed to build tx: %v", err)
	}

	// broadcast_ms covers strictly the submit call to acknowledgment,
	// on the monotonic clock.
	start := time.Now()
	res, err := w.client.BroadcastTxSync(ctx, txBytes)
	broadcastMs := float64(time.Since(start).Nanoseconds()) / 1e6

	if err != nil {
		return fail("broadcast failed: %v", err)
	}
	if res.Code != 0 {
		return fail("%s", res.Log)
	}

	code := res.Code
	resp := &types.WorkerResponse{
		OK:          true,
		TxHash:      res.Hash,
		BroadcastMs: broadcastMs,
		Code:        &code,
		Sender:      w.signer.Address(),
		Contract:    w.cfg.Contract,
		ValueLen:    len(req.Value),
	}

	w.fillInclusion(ctx, resp)
	return resp
}

// fillInclusion waits briefly for the transaction to be included so the
// response can carry height, gas, and chain timestamp. Best effort: the
// broadcast already succeeded, so giving up leaves those fields empty
// rather than failing the invocation.
func (w *Worker) fillInclusion(ctx context.Context, resp *types.WorkerResponse) {
	for i := 0; i < inclusionPolls; i++ {
		tx, err := w.client.GetTx(ctx, resp.TxHash)
		if err != nil {
			// Transient lookup errors burn one poll, not the whole wait.
			w.logger.Debug("inclusion lookup failed", slog.String("error", err.Error()))
		}
		if tx != nil {
			resp.Height = tx.Height
			resp.GasWanted = tx.GasWanted
			resp.GasUsed = tx.GasUsed
			resp.Timestamp = tx.Timestamp
			code := tx.Code
			resp.Code = &code
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.pollInterval):
		}
	}
}
