package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/yamalog/qrtxbench/internal/metrics"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (creating if needed) the history database at dbPath.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode so the MCP server can read while a run is writing
	dsn := fmt.Sprintf("%s?_journal=WAL&_sync=NORMAL&_foreign_keys=ON", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	s := &SQLiteStorage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return s, nil
}

func (s *SQLiteStorage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS experiment_runs (
		id TEXT PRIMARY KEY,
		node_id TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		chain_id TEXT,
		contract TEXT,
		csv_path TEXT,
		n_trials INTEGER DEFAULT 0,
		trials_ok INTEGER DEFAULT 0,
		trials_failed INTEGER DEFAULT 0,
		trials_unconfirmed INTEGER DEFAULT 0,
		broadcast_latency TEXT,
		total_latency TEXT,
		status TEXT DEFAULT 'running',
		error_message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON experiment_runs(started_at DESC);

	CREATE TABLE IF NOT EXISTS trials (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		trial INTEGER NOT NULL,
		value TEXT NOT NULL,
		tx_hash TEXT,
		code INTEGER,
		height INTEGER,
		gas_wanted INTEGER,
		gas_used INTEGER,
		timestamp TEXT,
		txhash_ms REAL,
		display_ms REAL,
		total_ms REAL,
		broadcast_ms REAL,
		confirmed INTEGER,
		status TEXT,
		error TEXT,
		FOREIGN KEY (run_id) REFERENCES experiment_runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_trials_run ON trials(run_id);
	CREATE INDEX IF NOT EXISTS idx_trials_hash ON trials(tx_hash);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// CreateRun inserts a new experiment run record in the "running" state.
func (s *SQLiteStorage) CreateRun(ctx context.Context, run *ExperimentRun) error {
	status := run.Status
	if status == "" {
		status = "running"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO experiment_runs (id, node_id, started_at, chain_id, contract, csv_path, n_trials, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.NodeID, run.StartedAt, run.ChainID, run.Contract, run.CSVPath, run.NTrials, status)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// CompleteRun marks a run as finished with final counters and latency summaries.
func (s *SQLiteStorage) CompleteRun(ctx context.Context, id string, run *ExperimentRun) error {
	broadcastJSON, _ := json.Marshal(run.BroadcastLatency)
	totalJSON, _ := json.Marshal(run.TotalLatency)

	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE experiment_runs SET
			completed_at = ?,
			trials_ok = ?,
			trials_failed = ?,
			trials_unconfirmed = ?,
			broadcast_latency = ?,
			total_latency = ?,
			status = ?,
			error_message = ?
		WHERE id = ?
	`, now, run.TrialsOK, run.TrialsFailed, run.TrialsUnconfirmed,
		string(broadcastJSON), string(totalJSON), run.Status, run.ErrorMessage, id)
	if err != nil {
		return fmt.Errorf("complete run %s: %w", id, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// GetRun retrieves a single run by ID, or nil when not found.
func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (*ExperimentRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, node_id, started_at, completed_at, chain_id, contract, csv_path,
			n_trials, trials_ok, trials_failed, trials_unconfirmed,
			broadcast_latency, total_latency, status, error_message
		FROM experiment_runs WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit, offset int) (*PaginatedRuns, error) {
	if limit <= 0 {
		limit = 20
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM experiment_runs`).Scan(&total); err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, node_id, started_at, completed_at, chain_id, contract, csv_path,
			n_trials, trials_ok, trials_failed, trials_unconfirmed,
			broadcast_latency, total_latency, status, error_message
		FROM experiment_runs
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	out := &PaginatedRuns{Runs: []ExperimentRun{}, Total: total, Limit: limit, Offset: offset}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out.Runs = append(out.Runs, *run)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and its trials.
func (s *SQLiteStorage) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM experiment_runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// InsertTrial appends one trial record for a run.
func (s *SQLiteStorage) InsertTrial(ctx context.Context, runID string, trial TrialRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trials (run_id, trial, value, tx_hash, code, height, gas_wanted, gas_used,
			timestamp, txhash_ms, display_ms, total_ms, broadcast_ms, confirmed, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, trial.Trial, trial.Value, trial.TxHash, nullCode(trial.Code),
		nullInt64(trial.Height), nullInt64(trial.GasWanted), nullInt64(trial.GasUsed),
		trial.Timestamp, trial.TxHashMs, trial.DisplayMs, trial.TotalMs, trial.BroadcastMs,
		nullBool(trial.Confirmed), trial.Status, trial.Error)
	if err != nil {
		return fmt.Errorf("insert trial %d for run %s: %w", trial.Trial, runID, err)
	}
	return nil
}

// GetTrials returns the trials of a run in trial order.
func (s *SQLiteStorage) GetTrials(ctx context.Context, runID string, limit, offset int) (*PaginatedTrials, error) {
	if limit <= 0 {
		limit = 100
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trials WHERE run_id = ?`, runID).Scan(&total); err != nil {
		return nil, fmt.Errorf("count trials: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT trial, value, tx_hash, code, height, gas_wanted, gas_used, timestamp,
			txhash_ms, display_ms, total_ms, broadcast_ms, confirmed, status, error
		FROM trials WHERE run_id = ?
		ORDER BY trial ASC
		LIMIT ? OFFSET ?
	`, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list trials: %w", err)
	}
	defer rows.Close()

	out := &PaginatedTrials{Trials: []TrialRecord{}, Total: total, Limit: limit, Offset: offset}
	for rows.Next() {
		tr, err := scanTrial(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trial: %w", err)
		}
		out.Trials = append(out.Trials, *tr)
	}
	return out, rows.Err()
}

// GetTrialByHash looks up a trial by transaction hash, or nil when not found.
func (s *SQLiteStorage) GetTrialByHash(ctx context.Context, txHash string) (*TrialRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT trial, value, tx_hash, code, height, gas_wanted, gas_used, timestamp,
			txhash_ms, display_ms, total_ms, broadcast_ms, confirmed, status, error
		FROM trials WHERE tx_hash = ?
		ORDER BY id DESC LIMIT 1
	`, txHash)

	tr, err := scanTrial(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get trial by hash %s: %w", txHash, err)
	}
	return tr, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*ExperimentRun, error) {
	var run ExperimentRun
	var completedAt sql.NullTime
	var broadcastJSON, totalJSON, errMsg sql.NullString

	err := row.Scan(&run.ID, &run.NodeID, &run.StartedAt, &completedAt,
		&run.ChainID, &run.Contract, &run.CSVPath,
		&run.NTrials, &run.TrialsOK, &run.TrialsFailed, &run.TrialsUnconfirmed,
		&broadcastJSON, &totalJSON, &run.Status, &errMsg)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	run.ErrorMessage = errMsg.String
	run.BroadcastLatency = unmarshalSummary(broadcastJSON, "broadcast_latency", run.ID)
	run.TotalLatency = unmarshalSummary(totalJSON, "total_latency", run.ID)
	return &run, nil
}

func scanTrial(row scanner) (*TrialRecord, error) {
	var tr TrialRecord
	var txHash, timestamp, status, errText sql.NullString
	var code, height, gasWanted, gasUsed, confirmed sql.NullInt64

	err := row.Scan(&tr.Trial, &tr.Value, &txHash, &code, &height, &gasWanted, &gasUsed,
		&timestamp, &tr.TxHashMs, &tr.DisplayMs, &tr.TotalMs, &tr.BroadcastMs,
		&confirmed, &status, &errText)
	if err != nil {
		return nil, err
	}

	tr.TxHash = txHash.String
	tr.Timestamp = timestamp.String
	tr.Status = status.String
	tr.Error = errText.String
	if code.Valid {
		c := uint32(code.Int64)
		tr.Code = &c
	}
	if height.Valid {
		tr.Height = height.Int64
	}
	if gasWanted.Valid {
		tr.GasWanted = gasWanted.Int64
	}
	if gasUsed.Valid {
		tr.GasUsed = gasUsed.Int64
	}
	if confirmed.Valid {
		b := confirmed.Int64 != 0
		tr.Confirmed = &b
	}
	return &tr, nil
}

// unmarshalSummary decodes a latency summary column, tolerating corruption
// rather than failing the whole query.
func unmarshalSummary(col sql.NullString, field, runID string) *metrics.Summary {
	if !col.Valid || col.String == "" || col.String == "null" {
		return nil
	}
	var s metrics.Summary
	if err := json.Unmarshal([]byte(col.String), &s); err != nil {
		slog.Warn("corrupt latency summary in history database",
			"field", field, "runID", runID, "error", err)
		return nil
	}
	return &s
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func nullCode(code *uint32) sql.NullInt64 {
	if code == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*code), Valid: true}
}

func nullBool(b *bool) sql.NullInt64 {
	if b == nil {
		return sql.NullInt64{}
	}
	v := int64(0)
	if *b {
		v = 1
	}
	return sql.NullInt64{Int64: v, Valid: true}
}
