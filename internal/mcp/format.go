package mcp

import (
	"fmt"
	"strings"
	"time"

	"github.com/yamalog/qrtxbench/internal/metrics"
	"github.com/yamalog/qrtxbench/internal/storage"
)

// kv formats a key-value pair with aligned values (20 char key width).
func kv(key string, value any) string {
	return fmt.Sprintf("%-20s %v", key+":", value)
}

// section returns a markdown section header.
func section(title string) string {
	return "## " + title
}

// joinLines joins non-empty lines with newlines.
func joinLines(lines ...string) string {
	var result []string
	for _, l := range lines {
		if l != "" {
			result = append(result, l)
		}
	}
	return strings.Join(result, "\n")
}

// formatMs formats milliseconds with a "ms" suffix.
func formatMs(v float64) string {
	return fmt.Sprintf("%.1fms", v)
}

func formatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

func formatRunLine(run storage.ExperimentRun) string {
	when := formatTime(run.StartedAt)
	return fmt.Sprintf("  %s  %-11s  %d trials (%d ok / %d failed / %d unconfirmed)  %s",
		run.ID, run.Status, run.TrialsOK+run.TrialsFailed+run.TrialsUnconfirmed,
		run.TrialsOK, run.TrialsFailed, run.TrialsUnconfirmed, when)
}

func formatRunDetail(run *storage.ExperimentRun) string {
	lines := joinLines(
		section("Experiment Run "+run.ID),
		kv("Node", run.NodeID),
		kv("Chain", run.ChainID),
		kv("Contract", run.Contract),
		kv("Started", formatTime(run.StartedAt)),
		kv("Status", run.Status),
		kv("Trials OK", run.TrialsOK),
		kv("Trials Failed", run.TrialsFailed),
		kv("Unconfirmed", run.TrialsUnconfirmed),
		kv("CSV", run.CSVPath),
	)
	if run.CompletedAt != nil {
		lines += "\n" + kv("Completed", formatTime(*run.CompletedAt))
	}
	if run.ErrorMessage != "" {
		lines += "\n" + kv("Error", run.ErrorMessage)
	}
	if run.BroadcastLatency != nil {
		lines += "\n\n" + formatSummary("Broadcast Latency", run.BroadcastLatency)
	}
	if run.TotalLatency != nil {
		lines += "\n\n" + formatSummary("Trial Total Latency", run.TotalLatency)
	}
	return lines
}

func formatSummary(title string, s *metrics.Summary) string {
	return joinLines(
		section(title),
		kv("Samples", s.Count),
		kv("Min", formatMs(s.Min)),
		kv("Avg", formatMs(s.Avg)),
		kv("P50", formatMs(s.P50)),
		kv("P90", formatMs(s.P90)),
		kv("P99", formatMs(s.P99)),
		kv("Max", formatMs(s.Max)),
	)
}

func formatTrialLine(tr storage.TrialRecord) string {
	switch {
	case tr.Error != "":
		return fmt.Sprintf("  #%-4d %-13s %s  %s", tr.Trial, tr.Status, formatMs(tr.TotalMs), tr.Error)
	default:
		confirm := ""
		if tr.Confirmed != nil && !*tr.Confirmed {
			confirm = "  (not confirmed)"
		}
		return fmt.Sprintf("  #%-4d %-13s %s  %s  h=%d%s",
			tr.Trial, tr.Status, formatMs(tr.TotalMs), tr.TxHash, tr.Height, confirm)
	}
}

func formatTrialDetail(tr *storage.TrialRecord) string {
	lines := joinLines(
		section(fmt.Sprintf("Trial %d", tr.Trial)),
		kv("Status", tr.Status),
		kv("Value", tr.Value),
		kv("TxHash", tr.TxHash),
		kv("Height", tr.Height),
		kv("GasWanted", tr.GasWanted),
		kv("GasUsed", tr.GasUsed),
		kv("Broadcast", formatMs(tr.BroadcastMs)),
		kv("To TxHash", formatMs(tr.TxHashMs)),
		kv("Display", formatMs(tr.DisplayMs)),
		kv("Total", formatMs(tr.TotalMs)),
	)
	if tr.Timestamp != "" {
		lines += "\n" + kv("Block Time", tr.Timestamp)
	}
	if tr.Error != "" {
		lines += "\n" + kv("Error", tr.Error)
	}
	return lines
}
