// Package chain provides Tendermint RPC and LCD REST client functionality.
package chain

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// Client is the interface for chain communication.
type Client interface {
	// BroadcastTxSync submits signed transaction bytes and returns the
	// CheckTx acknowledgment.
	BroadcastTxSync(ctx context.Context, txBytes []byte) (*BroadcastResult, error)

	// Account fetches the account number and sequence for an address.
	Account(ctx context.Context, address string) (*AccountInfo, error)

	// GetTx looks up a transaction by hash. Returns nil if not yet included.
	GetTx(ctx context.Context, txHash string) (*TxInclusion, error)

	// SmartQuery issues a read-only contract state query.
	SmartQuery(ctx context.Context, contract string, query, result any) error

	// Ping issues the contract's health-check query.
	Ping(ctx context.Context, contract string) error
}

// BroadcastResult is the CheckTx acknowledgment from broadcast_tx_sync.
type BroadcastResult struct {
	Code uint32
	Hash string
	Log  string
}

// AccountInfo holds the signing-relevant account state.
type AccountInfo struct {
	AccountNumber uint64
	Sequence      uint64
}

// TxInclusion is the on-chain record of an included transaction.
type TxInclusion struct {
	Height    int64
	Code      uint32
	GasWanted int64
	GasUsed   int64
	Timestamp string
	RawLog    string
}

// rpcRequest is the Tendermint JSON-RPC request envelope.
type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      int               `json:"id"`
	Method  string            `json:"method"`
	Params  map[string]string `json:"params"`
}

// rpcResponse is the Tendermint JSON-RPC response envelope.
type rpcResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    string `json:"data"`
	} `json:"error,omitempty"`
}

// ClientConfig holds configuration for the chain client.
type ClientConfig struct {
	RPCURL  string
	LCDURL  string
	Timeout time.Duration
	Logger  *slog.Logger
}

// HTTPClient implements Client over Tendermint JSON-RPC and LCD REST.
type HTTPClient struct {
	rpcURL     string
	lcdURL     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPClient creates a new HTTP-based chain client.
func NewHTTPClient(cfg ClientConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		rpcURL:     cfg.RPCURL,
		lcdURL:     cfg.LCDURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// BroadcastTxSync submits signed transaction bytes via the Tendermint
// broadcast_tx_sync JSON-RPC method. A non-zero CheckTx code is returned
// to the caller, not treated as a transport error; the caller decides
// whether the log text indicates a retryable condition.
func (c *HTTPClient) BroadcastTxSync(ctx context.Context, txBytes []byte) (*BroadcastResult, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "broadcast_tx_sync",
		Params:  map[string]string{"tx": base64.StdEncoding.EncodeToString(txBytes)},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal broadcast request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("broadcast request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read broadcast response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("broadcast HTTP %d: %s", resp.StatusCode, truncate(respBody, 512))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal broadcast response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("RPC error %d: %s: %s", rpcResp.Error.Code, rpcResp.Error.Message, rpcResp.Error.Data)
	}

	var result struct {
		Code uint32 `json:"code"`
		Hash string `json:"hash"`
		Log  string `json:"log"`
	}
	if err := json.Unmarshal(rpcResp.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal broadcast result: %w", err)
	}

	return &BroadcastResult{Code: result.Code, Hash: result.Hash, Log: result.Log}, nil
}

// Account fetches account number and sequence from the LCD auth endpoint.
func (c *HTTPClient) Account(ctx context.Context, address string) (*AccountInfo, error) {
	var raw struct {
		Account struct {
			AccountNumber string `json:"account_number"`
			Sequence      string `json:"sequence"`
			// Vesting and module accounts nest the base account.
			BaseAccount *struct {
				AccountNumber string `json:"account_number"`
				Sequence      string `json:"sequence"`
			} `json:"base_account"`
		} `json:"account"`
	}

	path := fmt.Sprintf("/cosmos/auth/v1beta1/accounts/%s", address)
	if err := c.lcdGet(ctx, path, &raw); err != nil {
		return nil, fmt.Errorf("account query failed: %w", err)
	}

	numStr, seqStr := raw.Account.AccountNumber, raw.Account.Sequence
	if raw.Account.BaseAccount != nil {
		numStr, seqStr = raw.Account.BaseAccount.AccountNumber, raw.Account.BaseAccount.Sequence
	}

	num, err := strconv.ParseUint(numStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse account number %q: %w", numStr, err)
	}
	seq, err := strconv.ParseUint(seqStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sequence %q: %w", seqStr, err)
	}

	return &AccountInfo{AccountNumber: num, Sequence: seq}, nil
}

// GetTx looks up an included transaction by hash via the LCD tx service.
// A transaction that is not yet included returns (nil, nil).
func (c *HTTPClient) GetTx(ctx context.Context, txHash string) (*TxInclusion, error) {
	var raw struct {
		TxResponse struct {
			Height    string `json:"height"`
			Code      uint32 `json:"code"`
			GasWanted string `json:"gas_wanted"`
			GasUsed   string `json:"gas_used"`
			Timestamp string `json:"timestamp"`
			RawLog    string `json:"raw_log"`
		} `json:"tx_response"`
	}

	path := fmt.Sprintf("/cosmos/tx/v1beta1/txs/%s", txHash)
	err := c.lcdGet(ctx, path, &raw)
	if err != nil {
		var nf *notFoundError
		if errors.As(err, &nf) {
			return nil, nil
		}
		return nil, fmt.Errorf("tx query failed: %w", err)
	}

	height, _ := strconv.ParseInt(raw.TxResponse.Height, 10, 64)
	gasWanted, _ := strconv.ParseInt(raw.TxResponse.GasWanted, 10, 64)
	gasUsed, _ := strconv.ParseInt(raw.TxResponse.GasUsed, 10, 64)

	return &TxInclusion{
		Height:    height,
		Code:      raw.TxResponse.Code,
		GasWanted: gasWanted,
		GasUsed:   gasUsed,
		Timestamp: raw.TxResponse.Timestamp,
		RawLog:    raw.TxResponse.RawLog,
	}, nil
}

// SmartQuery issues a read-only contract state query through the LCD
// wasm endpoint. The query document is base64-encoded into the path;
// the contract's reply is decoded into result.
func (c *HTTPClient) SmartQuery(ctx context.Context, contract string, query, result any) error {
	queryBytes, err := json.Marshal(query)
	if err != nil {
		return fmt.Errorf("failed to marshal smart query: %w", err)
	}

	var raw struct {
		Data json.RawMessage `json:"data"`
	}
	path := fmt.Sprintf("/cosmwasm/wasm/v1/contract/%s/smart/%s",
		contract, base64.URLEncoding.EncodeToString(queryBytes))
	if err := c.lcdGet(ctx, path, &raw); err != nil {
		return fmt.Errorf("smart query failed: %w", err)
	}

	if result != nil {
		if err := json.Unmarshal(raw.Data, result); err != nil {
			return fmt.Errorf("failed to unmarshal smart query data: %w", err)
		}
	}
	return nil
}

// Ping issues the contract's health-check query. The reply payload is
// opaque; reachability is all that matters.
func (c *HTTPClient) Ping(ctx context.Context, contract string) error {
	return c.SmartQuery(ctx, contract, map[string]any{"ping": map[string]any{}}, nil)
}

// lcdGet performs a GET against the LCD REST API and decodes the body.
func (c *HTTPClient) lcdGet(ctx context.Context, path string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.lcdURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return &notFoundError{path: path}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(body, 512))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// notFoundError marks an LCD 404, used to distinguish "not yet included"
// from transport failures.
type notFoundError struct {
	path string
}

func (e *notFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.path)
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
