package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	apiURL := os.Getenv("JOBSNAP_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	// Optional: the API may run without auth.
	apiKey := os.Getenv("JOBSNAP_API_KEY")

	s := server.NewMCPServer(
		"jobsnap",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	runScrapeTool := mcp.NewTool("run_scrape",
		mcp.WithDescription("Scrape every configured job board with a headless browser and return the aggregated job listings. Optionally persists the batch as a timestamped snapshot."),
		mcp.WithBoolean("persist",
			mcp.Description("Store the batch as a new snapshot (default: true)"),
		),
		mcp.WithString("policy",
			mcp.Description("Failure policy: 'isolate' keeps going past failed sites, 'fail-fast' aborts the whole run on the first failure"),
			mcp.Enum("isolate", "fail-fast"),
		),
	)
	s.AddTool(runScrapeTool, handleRunScrape(apiURL, apiKey))

	fetchTool := mcp.NewTool("fetch_latest_jobs",
		mcp.WithDescription("Return the job listings of the most recently persisted snapshot without scraping."),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of listings to return (default: all)"),
		),
	)
	s.AddTool(fetchTool, handleFetchLatest(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
