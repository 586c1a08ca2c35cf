// Package mcp exposes experiment history and chain health over MCP.
package mcp

import (
	"context"
	"fmt"
	"time"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/yamalog/qrtxbench/internal/chain"
	"github.com/yamalog/qrtxbench/internal/storage"
)

// Deps are the resources the tools operate on. Reader and Contract are
// optional; without them the chain status tool is not registered.
type Deps struct {
	Store    storage.Storage
	Reader   chain.Client
	Contract string
}

// RegisterTools registers all experiment tools on the MCP server.
func RegisterTools(s *server.MCPServer, deps Deps) {
	registerHistory(s, deps.Store)
	registerRunDetail(s, deps.Store)
	registerTrials(s, deps.Store)
	registerTrialByHash(s, deps.Store)
	registerDeleteRun(s, deps.Store)
	if deps.Reader != nil && deps.Contract != "" {
		registerChainStatus(s, deps.Reader, deps.Contract)
	}
}

func registerHistory(s *server.MCPServer, store storage.Storage) {
	tool := gomcp.NewTool("experiment_history",
		gomcp.WithDescription("List experiment runs with outcome counters (paginated, newest first)."),
		gomcp.WithNumber("limit",
			gomcp.Description("Max results to return (default: 10, max: 100)"),
		),
		gomcp.WithNumber("offset",
			gomcp.Description("Results offset for pagination (default: 0)"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit > 100 {
			limit = 100
		}
		offset := req.GetInt("offset", 0)

		page, err := store.ListRuns(ctx, limit, offset)
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("History query failed: %v", err)), nil
		}
		if page.Total == 0 {
			return gomcp.NewToolResultText("No experiment runs recorded yet."), nil
		}

		lines := []string{section(fmt.Sprintf("Experiment Runs (%d-%d of %d)",
			offset+1, offset+len(page.Runs), page.Total))}
		for _, run := range page.Runs {
			lines = append(lines, formatRunLine(run))
		}
		return gomcp.NewToolResultText(joinLines(lines...)), nil
	})
}

func registerRunDetail(s *server.MCPServer, store storage.Storage) {
	tool := gomcp.NewTool("experiment_detail",
		gomcp.WithDescription("Get full details and latency summaries for one experiment run by ID."),
		gomcp.WithString("id",
			gomcp.Required(),
			gomcp.Description("Experiment run ID"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return gomcp.NewToolResultError("id is required"), nil
		}
		run, err := store.GetRun(ctx, id)
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Run lookup failed: %v", err)), nil
		}
		if run == nil {
			return gomcp.NewToolResultError("Run not found: " + id), nil
		}
		return gomcp.NewToolResultText(formatRunDetail(run)), nil
	})
}

func registerTrials(s *server.MCPServer, store storage.Storage) {
	tool := gomcp.NewTool("experiment_trials",
		gomcp.WithDescription("List the trial records of an experiment run in trial order (paginated)."),
		gomcp.WithString("id",
			gomcp.Required(),
			gomcp.Description("Experiment run ID"),
		),
		gomcp.WithNumber("limit",
			gomcp.Description("Max trials to return (default: 50, max: 1000)"),
		),
		gomcp.WithNumber("offset",
			gomcp.Description("Offset for pagination (default: 0)"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return gomcp.NewToolResultError("id is required"), nil
		}
		limit := req.GetInt("limit", 50)
		if limit > 1000 {
			limit = 1000
		}
		offset := req.GetInt("offset", 0)

		page, err := store.GetTrials(ctx, id, limit, offset)
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Trial query failed: %v", err)), nil
		}
		if page.Total == 0 {
			return gomcp.NewToolResultText("No trials recorded for run " + id), nil
		}

		lines := []string{section(fmt.Sprintf("Trials %d-%d of %d",
			offset+1, offset+len(page.Trials), page.Total))}
		for _, tr := range page.Trials {
			lines = append(lines, formatTrialLine(tr))
		}
		return gomcp.NewToolResultText(joinLines(lines...)), nil
	})
}

func registerTrialByHash(s *server.MCPServer, store storage.Storage) {
	tool := gomcp.NewTool("experiment_trial_by_hash",
		gomcp.WithDescription("Look up a single trial record by transaction hash."),
		gomcp.WithString("txhash",
			gomcp.Required(),
			gomcp.Description("Transaction hash"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		txHash, err := req.RequireString("txhash")
		if err != nil {
			return gomcp.NewToolResultError("txhash is required"), nil
		}
		tr, err := store.GetTrialByHash(ctx, txHash)
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Trial lookup failed: %v", err)), nil
		}
		if tr == nil {
			return gomcp.NewToolResultError("No trial found for hash " + txHash), nil
		}
		return gomcp.NewToolResultText(formatTrialDetail(tr)), nil
	})
}

func registerDeleteRun(s *server.MCPServer, store storage.Storage) {
	tool := gomcp.NewTool("experiment_delete_run",
		gomcp.WithDescription("Delete an experiment run and its trial records. This is a MUTATING operation."),
		gomcp.WithString("id",
			gomcp.Required(),
			gomcp.Description("Experiment run ID to delete"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return gomcp.NewToolResultError("id is required"), nil
		}
		if err := store.DeleteRun(ctx, id); err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Delete failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(joinLines(
			section("Run Deleted"),
			kv("ID", id),
		)), nil
	})
}

func registerChainStatus(s *server.MCPServer, reader chain.Client, contract string) {
	tool := gomcp.NewTool("chain_status",
		gomcp.WithDescription("Ping the contract and read its current stored value."),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()

		pingStart := time.Now()
		if err := reader.Ping(ctx, contract); err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Contract unreachable: %v", err)), nil
		}
		pingLatency := time.Since(pingStart)

		var out struct {
			Value string `json:"value"`
		}
		query := map[string]any{"get_value": map[string]any{}}
		if err := reader.SmartQuery(ctx, contract, query, &out); err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("State query failed: %v", err)), nil
		}

		return gomcp.NewToolResultText(joinLines(
			section("Chain Status"),
			kv("Contract", contract),
			kv("Ping", formatMs(float64(pingLatency)/float64(time.Millisecond))),
			kv("Stored Value", out.Value),
		)), nil
	})
}
