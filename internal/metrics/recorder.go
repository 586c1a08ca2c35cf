package metrics

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/yamalog/qrtxbench/pkg/types"
)

// csvHeader is the column layout of the experiment log. The header is written
// before any trial runs so a crash mid-experiment still leaves a parseable
// file containing only completed rows.
var csvHeader = []string{
	"i", "value", "txhash_ms", "display_ms", "total_ms", "broadcast_ms",
	"txhash", "code", "height", "gasWanted", "gasUsed", "timestamp", "error",
}

// Recorder appends one CSV row per trial to the experiment log file.
// Each row is flushed to the OS immediately after Append so the file stays
// consistent up to the last completed trial.
type Recorder struct {
	mu   sync.Mutex
	f    *os.File
	w    *csv.Writer
	rows int
}

// NewRecorder opens (or creates) the log file at path and writes the header
// row. An existing file is truncated: each run owns its log exclusively.
func NewRecorder(path string) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open experiment log: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush header: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, fmt.Errorf("sync header: %w", err)
	}

	return &Recorder{f: f, w: w}, nil
}

// Append writes one trial row and flushes it. Unrecoverable I/O errors here
// are fatal to the run and are returned to the caller.
func (r *Recorder) Append(row types.ExperimentRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record := []string{
		strconv.Itoa(row.Trial),
		row.Value,
		formatMs(row.TxHashMs),
		formatMs(row.DisplayMs),
		formatMs(row.TotalMs),
		formatMs(row.BroadcastMs),
		row.TxHash,
		formatCode(row.Code),
		formatInt(row.Height),
		formatInt(row.GasWanted),
		formatInt(row.GasUsed),
		row.Timestamp,
		row.Error,
	}

	if err := r.w.Write(record); err != nil {
		return fmt.Errorf("write row %d: %w", row.Trial, err)
	}
	r.w.Flush()
	if err := r.w.Error(); err != nil {
		return fmt.Errorf("flush row %d: %w", row.Trial, err)
	}
	if err := r.f.Sync(); err != nil {
		return fmt.Errorf("sync row %d: %w", row.Trial, err)
	}

	r.rows++
	return nil
}

// Rows returns the number of data rows appended so far.
func (r *Recorder) Rows() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows
}

// Close flushes and closes the underlying file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.w.Flush()
	if err := r.w.Error(); err != nil {
		r.f.Close()
		return fmt.Errorf("flush experiment log: %w", err)
	}
	return r.f.Close()
}

// formatMs renders a millisecond interval with sub-millisecond precision.
// Zero means the phase never happened and serializes to an empty field.
func formatMs(ms float64) string {
	if ms <= 0 {
		return ""
	}
	return strconv.FormatFloat(ms, 'f', 3, 64)
}

func formatInt(v int64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatInt(v, 10)
}

func formatCode(code *uint32) string {
	if code == nil {
		return ""
	}
	return strconv.FormatUint(uint64(*code), 10)
}
