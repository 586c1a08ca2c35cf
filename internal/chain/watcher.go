package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// TxWatcher waits for a transaction inclusion event over the Tendermint
// websocket. It is an optional fast path beside LCD polling; callers
// treat any watcher error as "fall back to polling".
type TxWatcher struct {
	wsURL  string
	logger *slog.Logger
}

// NewTxWatcher creates a watcher against a Tendermint /websocket endpoint.
func NewTxWatcher(wsURL string, logger *slog.Logger) *TxWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &TxWatcher{wsURL: wsURL, logger: logger}
}

// subscribeRequest is the Tendermint websocket subscribe envelope.
type subscribeRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      int               `json:"id"`
	Method  string            `json:"method"`
	Params  map[string]string `json:"params"`
}

// WaitForTx blocks until the chain emits a Tx event for txHash, the
// context is done, or the websocket fails. The hash must be the
// uppercase hex form returned by broadcast.
func (w *TxWatcher) WaitForTx(ctx context.Context, txHash string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to websocket: %w", err)
	}
	defer conn.Close()

	sub := subscribeRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "subscribe",
		Params:  map[string]string{"query": fmt.Sprintf("tm.event='Tx' AND tx.hash='%s'", txHash)},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	// Unblock the read loop when the context ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("websocket read failed: %w", err)
		}

		var event struct {
			Result struct {
				Query string          `json:"query"`
				Data  json.RawMessage `json:"data"`
			} `json:"result"`
		}
		if err := json.Unmarshal(msg, &event); err != nil {
			w.logger.Debug("skipping unparseable websocket message", slog.String("error", err.Error()))
			continue
		}

		// The first response is the empty subscribe ack; the event
		// itself carries data.
		if len(event.Result.Data) > 0 {
			return nil
		}
	}
}
