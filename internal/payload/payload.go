// Package payload generates the unique per-trial value persisted on-chain.
package payload

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yamalog/qrtxbench/pkg/types"
)

// Generator produces one Payload per trial. It is pure computation over
// in-memory state; it never fails and has no side effects.
type Generator struct {
	nodeID          string
	sendFullPayload bool
	now             func() time.Time
}

// Config for creating a Generator.
type Config struct {
	NodeID          string
	SendFullPayload bool
	Now             func() time.Time // test hook; defaults to time.Now
}

// New creates a new Generator.
func New(cfg Config) *Generator {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Generator{
		nodeID:          cfg.NodeID,
		sendFullPayload: cfg.SendFullPayload,
		now:             now,
	}
}

// Generate returns the Payload for one trial. The unique_id is the
// sha256 of the canonical JSON of {node_id, qr_id, timestamp}; the
// random qr_id guarantees uniqueness across the run even when two
// trials share a timestamp.
func (g *Generator) Generate(trial int) types.Payload {
	qrID := hex.EncodeToString(uuidBytes())
	ts := g.now().Format("2006-01-02 15:04:05")

	source, _ := json.Marshal(struct {
		NodeID    string `json:"node_id"`
		QRID      string `json:"qr_id"`
		Timestamp string `json:"timestamp"`
	}{g.nodeID, qrID, ts})
	sum := sha256.Sum256(source)

	return types.Payload{
		NodeID:      g.nodeID,
		Name:        "yama log e-paper",
		Description: "yama log QRe-paper",
		UniqueID:    hex.EncodeToString(sum[:]),
		QRID:        qrID,
		Timestamp:   ts,
	}
}

// Value returns the on-chain value for a payload: either the compact
// JSON of the whole payload or just the unique_id, per configuration.
func (g *Generator) Value(p types.Payload) string {
	if !g.sendFullPayload {
		return p.UniqueID
	}
	b, _ := json.Marshal(p)
	return string(b)
}

// Memo returns the transaction memo for a payload.
func (g *Generator) Memo(p types.Payload) string {
	return fmt.Sprintf("qr:%s", p.QRID[:12])
}

func uuidBytes() []byte {
	id := uuid.New()
	return id[:]
}
