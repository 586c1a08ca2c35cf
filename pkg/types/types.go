// Package types contains public API types for the experiment driver.
// These types form the wire contracts between the orchestrator, the
// broadcast worker process, and the persisted trial log.
package types

// Payload is the unique value persisted on-chain for one trial.
type Payload struct {
	NodeID      string `json:"node_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	UniqueID    string `json:"unique_id"`
	QRID        string `json:"qr_id"`
	Timestamp   string `json:"timestamp"`
}

// WorkerRequest is the single JSON document delivered on the broadcast
// worker's stdin.
type WorkerRequest struct {
	Value string `json:"value"`
	Memo  string `json:"memo,omitempty"`
}

// WorkerResponse is the single JSON document the broadcast worker emits
// on stdout. On failure only OK and Error are meaningful.
type WorkerResponse struct {
	OK          bool    `json:"ok"`
	TxHash      string  `json:"txhash,omitempty"`
	BroadcastMs float64 `json:"broadcast_ms,omitempty"`
	Height      int64   `json:"height,omitempty"`
	Code        *uint32 `json:"code,omitempty"`
	GasWanted   int64   `json:"gasWanted,omitempty"`
	GasUsed     int64   `json:"gasUsed,omitempty"`
	Timestamp   string  `json:"timestamp,omitempty"`
	Sender      string  `json:"sender,omitempty"`
	Contract    string  `json:"contract,omitempty"`
	ValueLen    int     `json:"value_len,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// TransactionResult is the final outcome of one trial's broadcast,
// after the retry policy has run its course.
//
// Invariant: OK implies TxHash is non-empty. When OK is false none of
// the numeric or hash fields are guaranteed to be populated.
type TransactionResult struct {
	OK          bool
	TxHash      string
	BroadcastMs float64
	Height      int64
	Code        *uint32
	GasWanted   int64
	GasUsed     int64
	Timestamp   string
	Attempts    int
	Error       string
}

// TrialStatus classifies the terminal state of one trial.
type TrialStatus string

const (
	TrialOK           TrialStatus = "ok"
	TrialFailed       TrialStatus = "failed"
	TrialNotConfirmed TrialStatus = "not_confirmed"
)

// ExperimentRow is one durable log row, written exactly once per trial.
type ExperimentRow struct {
	Trial       int
	Value       string
	TxHashMs    float64
	DisplayMs   float64
	TotalMs     float64
	BroadcastMs float64
	TxHash      string
	Code        *uint32
	Height      int64
	GasWanted   int64
	GasUsed     int64
	Timestamp   string
	Confirmed   *bool
	Error       string
}

// DisplayFrame is what the external display collaborator consumes.
type DisplayFrame struct {
	TxHash       string            `json:"txHash"`
	PayloadValue string            `json:"payloadValue"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}
