package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// persistResponse mirrors the API body of a persisted run.
type persistResponse struct {
	Success bool   `json:"success"`
	RunID   string `json:"run_id"`
	Key     string `json:"key"`
	Message string `json:"message"`
	Records int    `json:"records"`
	Sites   []struct {
		Website string `json:"website"`
		Status  string `json:"status"`
		Records int    `json:"records"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"sites"`
}

// errorResponse mirrors the API JSON error body.
type errorResponse struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// apiGet sends a GET request to the API and returns the status and body.
func apiGet(ctx context.Context, client *http.Client, apiURL, apiKey, path string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+path, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// apiError renders a non-200 API response.
func apiError(status int, body []byte) string {
	var e errorResponse
	if json.Unmarshal(body, &e) == nil && e.Error != nil {
		return fmt.Sprintf("[%s] %s", e.Error.Code, e.Error.Message)
	}
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return msg
	}
	return fmt.Sprintf("API returned status %d", status)
}

func handleRunScrape(apiURL, apiKey string) server.ToolHandlerFunc {
	// A run drives one browser per site; give it room.
	client := &http.Client{Timeout: 15 * time.Minute}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		persist := request.GetBool("persist", true)

		q := url.Values{}
		q.Set("persist", strconv.FormatBool(persist))
		if policy := request.GetString("policy", ""); policy != "" {
			q.Set("policy", policy)
		}

		status, body, err := apiGet(ctx, client, apiURL, apiKey, "/scrape?"+q.Encode())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("scrape request failed: %v", err)), nil
		}
		if status != http.StatusOK {
			return mcp.NewToolResultError(apiError(status, body)), nil
		}

		if !persist {
			var records []json.RawMessage
			if err := json.Unmarshal(body, &records); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("failed to parse scrape response: %v", err)), nil
			}
			return mcp.NewToolResultText(formatJobs(fmt.Sprintf("Scraped %d jobs", len(records)), records)), nil
		}

		var pr persistResponse
		if err := json.Unmarshal(body, &pr); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse scrape response: %v", err)), nil
		}

		var sb strings.Builder
		sb.WriteString(pr.Message + "\n")
		sb.WriteString(fmt.Sprintf("Run: %s\nJobs: %d\n\n", pr.RunID, pr.Records))
		for _, s := range pr.Sites {
			sb.WriteString(fmt.Sprintf("- %s: %s (%d jobs)", s.Website, s.Status, s.Records))
			if s.Error != nil {
				sb.WriteString(fmt.Sprintf(" [%s] %s", s.Error.Code, s.Error.Message))
			}
			sb.WriteString("\n")
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleFetchLatest(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := request.GetInt("limit", 0)
		if limit < 0 {
			return mcp.NewToolResultError("limit must not be negative"), nil
		}

		status, body, err := apiGet(ctx, client, apiURL, apiKey, "/fetch")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("fetch request failed: %v", err)), nil
		}
		if status == http.StatusNotFound {
			return mcp.NewToolResultError("no snapshot has been persisted yet; call run_scrape first"), nil
		}
		if status != http.StatusOK {
			return mcp.NewToolResultError(apiError(status, body)), nil
		}

		var records []json.RawMessage
		if err := json.Unmarshal(body, &records); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse snapshot: %v", err)), nil
		}
		total := len(records)
		if limit > 0 && limit < total {
			records = records[:limit]
		}

		header := fmt.Sprintf("Showing %d of %d jobs", len(records), total)
		return mcp.NewToolResultText(formatJobs(header, records)), nil
	}
}

// formatJobs renders a header followed by the records as indented JSON.
func formatJobs(header string, records []json.RawMessage) string {
	if records == nil {
		records = []json.RawMessage{}
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return header
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		pretty.Write(raw)
	}
	return header + ":\n\n" + pretty.String()
}
