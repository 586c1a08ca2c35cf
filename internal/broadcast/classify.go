package broadcast

import (
	"regexp"
	"time"
)

// ErrorKind classifies a failed submission attempt. The retry policy
// branches only on this enum, never on raw error text.
type ErrorKind int

const (
	// KindSequence is an out-of-date account sequence number: a known
	// race when multiple transactions from one signer are in flight.
	// It resolves with a short wait, so it gets the longer backoff.
	KindSequence ErrorKind = iota

	// KindOther covers everything else (network blips, rate limiting):
	// usually transient infra issues, retried on a shorter ramp.
	KindOther
)

func (k ErrorKind) String() string {
	switch k {
	case KindSequence:
		return "sequence"
	default:
		return "other"
	}
}

// sequencePattern matches the chain's sequence race error texts.
var sequencePattern = regexp.MustCompile(`(?i)account sequence mismatch|incorrect account sequence`)

// Classify maps an error message to its kind. The same message always
// yields the same kind.
func Classify(msg string) ErrorKind {
	if sequencePattern.MatchString(msg) {
		return KindSequence
	}
	return KindOther
}

// Backoff delays before retry, scaled by attempt number.
const (
	sequenceBackoffUnit = 1200 * time.Millisecond
	otherBackoffUnit    = 400 * time.Millisecond
)

// Backoff returns the delay to wait after the given failed attempt
// (1-based) before the next one.
func Backoff(kind ErrorKind, attempt int) time.Duration {
	unit := otherBackoffUnit
	if kind == KindSequence {
		unit = sequenceBackoffUnit
	}
	return unit * time.Duration(attempt)
}
