// Package metrics provides per-trial timing, the durable CSV log, and
// aggregate latency statistics.
package metrics

import "time"

// Timing tracks the phases of one trial on the monotonic clock.
// Interval fields are only meaningful after the corresponding Mark call.
type Timing struct {
	start   time.Time
	txhash  time.Time
	display time.Time
	end     time.Time
}

// StartTiming begins timing a trial.
func StartTiming() *Timing {
	return &Timing{start: time.Now()}
}

// MarkTxHash records the moment the transaction hash became known.
func (t *Timing) MarkTxHash() {
	t.txhash = time.Now()
}

// MarkDisplay records the moment the display step completed.
func (t *Timing) MarkDisplay() {
	t.display = time.Now()
}

// Finish records the end of the trial.
func (t *Timing) Finish() {
	t.end = time.Now()
}

// TxHashMs returns elapsed milliseconds from trial start to hash acquisition.
func (t *Timing) TxHashMs() float64 {
	if t.txhash.IsZero() {
		return 0
	}
	return float64(t.txhash.Sub(t.start)) / float64(time.Millisecond)
}

// DisplayMs returns elapsed milliseconds from hash acquisition to the end of
// the display step. Zero when either mark is missing.
func (t *Timing) DisplayMs() float64 {
	if t.txhash.IsZero() || t.display.IsZero() {
		return 0
	}
	return float64(t.display.Sub(t.txhash)) / float64(time.Millisecond)
}

// TotalMs returns total elapsed milliseconds for the trial.
func (t *Timing) TotalMs() float64 {
	end := t.end
	if end.IsZero() {
		end = time.Now()
	}
	return float64(end.Sub(t.start)) / float64(time.Millisecond)
}
