package payload

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestGenerate_UniqueAcrossTrials(t *testing.T) {
	fixed := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	g := New(Config{
		NodeID:          "node-test",
		SendFullPayload: true,
		Now:             func() time.Time { return fixed },
	})

	seen := make(map[string]bool)
	for i := 1; i <= 100; i++ {
		p := g.Generate(i)
		if p.UniqueID == "" {
			t.Fatalf("trial %d: empty unique_id", i)
		}
		if seen[p.UniqueID] {
			t.Fatalf("trial %d: duplicate unique_id %s", i, p.UniqueID)
		}
		seen[p.UniqueID] = true
	}
}

func TestGenerate_Fields(t *testing.T) {
	fixed := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	g := New(Config{NodeID: "node-test", Now: func() time.Time { return fixed }})

	p := g.Generate(1)
	if p.NodeID != "node-test" {
		t.Errorf("expected node_id node-test, got %s", p.NodeID)
	}
	if p.Timestamp != "2026-08-30 12:00:00" {
		t.Errorf("unexpected timestamp %s", p.Timestamp)
	}
	if len(p.QRID) != 32 {
		t.Errorf("expected 32-char qr_id, got %d chars", len(p.QRID))
	}
	if len(p.UniqueID) != 64 {
		t.Errorf("expected 64-char unique_id, got %d chars", len(p.UniqueID))
	}
}

func TestValue_FullPayloadMode(t *testing.T) {
	g := New(Config{NodeID: "node-test", SendFullPayload: true})
	p := g.Generate(1)

	v := g.Value(p)
	var decoded map[string]any
	if err := json.Unmarshal([]byte(v), &decoded); err != nil {
		t.Fatalf("value is not JSON: %v", err)
	}
	if decoded["unique_id"] != p.UniqueID {
		t.Errorf("expected unique_id %s in value, got %v", p.UniqueID, decoded["unique_id"])
	}
}

func TestValue_MinimalMode(t *testing.T) {
	g := New(Config{NodeID: "node-test", SendFullPayload: false})
	p := g.Generate(1)

	if v := g.Value(p); v != p.UniqueID {
		t.Errorf("expected bare unique_id, got %s", v)
	}
}

func TestMemo(t *testing.T) {
	g := New(Config{NodeID: "node-test"})
	p := g.Generate(1)

	memo := g.Memo(p)
	if !strings.HasPrefix(memo, "qr:") {
		t.Errorf("expected qr: prefix, got %s", memo)
	}
	if memo != "qr:"+p.QRID[:12] {
		t.Errorf("unexpected memo %s", memo)
	}
}
