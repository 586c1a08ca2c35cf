// Package storage provides persistence for experiment history.
package storage

import (
	"time"

	"github.com/yamalog/qrtxbench/internal/metrics"
)

// ExperimentRun represents one persisted experiment with summary statistics.
type ExperimentRun struct {
	ID          string     `json:"id"`
	NodeID      string     `json:"nodeId"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	ChainID     string     `json:"chainId"`
	Contract    string     `json:"contract"`
	CSVPath     string     `json:"csvPath"`

	NTrials           int `json:"nTrials"`
	TrialsOK          int `json:"trialsOk"`
	TrialsFailed      int `json:"trialsFailed"`
	TrialsUnconfirmed int `json:"trialsUnconfirmed"`

	BroadcastLatency *metrics.Summary `json:"broadcastLatency,omitempty"`
	TotalLatency     *metrics.Summary `json:"totalLatency,omitempty"`

	Status       string `json:"status"` // "running", "completed", "error"
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// TrialRecord represents a single trial row in the history database. It
// mirrors the CSV row but keeps trial status and confirmation outcome, which
// the CSV omits.
type TrialRecord struct {
	Trial       int     `json:"trial"`
	Value       string  `json:"value"`
	TxHash      string  `json:"txHash,omitempty"`
	Code        *uint32 `json:"code,omitempty"`
	Height      int64   `json:"height,omitempty"`
	GasWanted   int64   `json:"gasWanted,omitempty"`
	GasUsed     int64   `json:"gasUsed,omitempty"`
	Timestamp   string  `json:"timestamp,omitempty"`
	TxHashMs    float64 `json:"txhashMs,omitempty"`
	DisplayMs   float64 `json:"displayMs,omitempty"`
	TotalMs     float64 `json:"totalMs,omitempty"`
	BroadcastMs float64 `json:"broadcastMs,omitempty"`
	Confirmed   *bool   `json:"confirmed,omitempty"`
	Status      string  `json:"status"` // "ok", "failed", "not_confirmed"
	Error       string  `json:"error,omitempty"`
}

// PaginatedRuns represents a paginated list of experiment runs.
type PaginatedRuns struct {
	Runs   []ExperimentRun `json:"runs"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// PaginatedTrials represents a paginated list of trial records.
type PaginatedTrials struct {
	Trials []TrialRecord `json:"trials"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}
