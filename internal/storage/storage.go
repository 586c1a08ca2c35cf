package storage

import "context"

// Storage defines the persistence interface for experiment history.
type Storage interface {
	// Run lifecycle
	CreateRun(ctx context.Context, run *ExperimentRun) error
	CompleteRun(ctx context.Context, id string, run *ExperimentRun) error
	GetRun(ctx context.Context, id string) (*ExperimentRun, error)
	ListRuns(ctx context.Context, limit, offset int) (*PaginatedRuns, error)
	DeleteRun(ctx context.Context, id string) error

	// Trial records
	InsertTrial(ctx context.Context, runID string, trial TrialRecord) error
	GetTrials(ctx context.Context, runID string, limit, offset int) (*PaginatedTrials, error)
	GetTrialByHash(ctx context.Context, txHash string) (*TrialRecord, error)

	// Lifecycle
	Close() error
}
