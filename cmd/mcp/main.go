// Experiment history MCP server.
// Exposes the trial history database and chain status over MCP stdio transport.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/yamalog/qrtxbench/internal/chain"
	mcptools "github.com/yamalog/qrtxbench/internal/mcp"
	"github.com/yamalog/qrtxbench/internal/storage"
)

func main() {
	dbPath := os.Getenv("QRTX_DB")
	if dbPath == "" {
		dbPath = "qrtxbench.db"
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open history database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	deps := mcptools.Deps{Store: store}

	// Chain status tool only when the read endpoints are configured.
	if contract := os.Getenv("CONTRACT"); contract != "" {
		lcdURL := os.Getenv("LCD_URL")
		if lcdURL == "" {
			lcdURL = "http://localhost:1317"
		}
		deps.Reader = chain.NewHTTPClient(chain.ClientConfig{LCDURL: lcdURL})
		deps.Contract = contract
	}

	s := server.NewMCPServer(
		"qrtxbench",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	mcptools.RegisterTools(s, deps)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}
