// Command browsecore-mcp exposes the Intelligent Fetch Pipeline's six
// operations as MCP tools, proxying each call over HTTP to a running
// browsecore-server instance.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	apiURL := os.Getenv("BROWSECORE_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("BROWSECORE_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "BROWSECORE_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"browsecore",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	fetchTool := mcp.NewTool("fetch",
		mcp.WithDescription("Fetch a URL through the tiered render cascade (intelligence → lightweight → playwright), validating and escalating as needed. Returns cleaned content, metadata, and a decision trace."),
		mcp.WithString("url", mcp.Required(), mcp.Description("The URL to fetch")),
		mcp.WithString("force_tier", mcp.Description("Force a specific tier instead of letting the cascade decide"), mcp.Enum("intelligence", "lightweight", "playwright")),
		mcp.WithString("wait_for_selector", mcp.Description("CSS selector to wait for before extracting content")),
		mcp.WithString("session_profile", mcp.Description("Named browser session profile to reuse cookies/storage across calls")),
	)
	s.AddTool(fetchTool, handleFetch(apiURL, apiKey))

	screenshotTool := mcp.NewTool("screenshot",
		mcp.WithDescription("Take a screenshot of a rendered page, optionally of a single element."),
		mcp.WithString("url", mcp.Required(), mcp.Description("The URL to screenshot")),
		mcp.WithString("element", mcp.Description("CSS selector of a single element to screenshot instead of the full viewport")),
		mcp.WithString("wait_for_selector", mcp.Description("CSS selector to wait for before capturing")),
	)
	s.AddTool(screenshotTool, handleScreenshot(apiURL, apiKey))

	harTool := mcp.NewTool("export_har",
		mcp.WithDescription("Render a page with network capture enabled and export the observed requests as a HAR 1.2 log."),
		mcp.WithString("url", mcp.Required(), mcp.Description("The URL to render")),
		mcp.WithString("include_bodies", mcp.Description("Set to 'true' to include response bodies up to max_body_bytes")),
	)
	s.AddTool(harTool, handleExportHAR(apiURL, apiKey))

	intelTool := mcp.NewTool("get_domain_intelligence",
		mcp.WithDescription("Return everything the pipeline has learned about a domain: known API patterns, selector chains, validators, pagination patterns, and recent failures."),
		mcp.WithString("domain", mcp.Required(), mcp.Description("The registrable domain, e.g. example.com")),
	)
	s.AddTool(intelTool, handleDomainIntelligence(apiURL, apiKey))

	capsTool := mcp.NewTool("get_domain_capabilities",
		mcp.WithDescription("Return a recommendation-oriented summary of a domain's capabilities, confidence, and performance history."),
		mcp.WithString("domain", mcp.Required(), mcp.Description("The registrable domain, e.g. example.com")),
	)
	s.AddTool(capsTool, handleDomainCapabilities(apiURL, apiKey))

	batchTool := mcp.NewTool("batch_fetch",
		mcp.WithDescription("Fetch multiple URLs with bounded concurrency, optionally stopping on the first error or rate limit."),
		mcp.WithArray("urls", mcp.Required(), mcp.Description("List of URLs to fetch")),
		mcp.WithNumber("concurrency", mcp.Description("Max concurrent fetches (default 3)")),
		mcp.WithString("stop_on_error", mcp.Description("Set to 'true' to stop the whole batch on the first error")),
	)
	s.AddTool(batchTool, handleBatchFetch(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiPost sends a POST request to the browsecore API and returns the body.
func apiPost(ctx context.Context, client *http.Client, apiURL, apiKey, path string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// apiGet sends a GET request to the browsecore API and returns the body.
func apiGet(ctx context.Context, client *http.Client, apiURL, apiKey, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

func handleFetch(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 120 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		options := map[string]interface{}{}
		if forceTier := request.GetString("force_tier", ""); forceTier != "" {
			options["force_tier"] = forceTier
		}
		if waitSel := request.GetString("wait_for_selector", ""); waitSel != "" {
			options["wait_for_selector"] = waitSel
		}
		if profile := request.GetString("session_profile", ""); profile != "" {
			options["session_profile"] = profile
		}

		payload := map[string]interface{}{"url": url, "options": options}

		respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/fetch", payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("fetch request failed: %v", err)), nil
		}

		var result struct {
			Success bool `json:"success"`
			Title   string `json:"title"`
			Content struct {
				Markdown string `json:"markdown"`
			} `json:"content"`
			Error *struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(respBody, &result); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse fetch response: %v", err)), nil
		}
		if !result.Success {
			errMsg := "fetch failed"
			if result.Error != nil {
				errMsg = fmt.Sprintf("[%s] %s", result.Error.Code, result.Error.Message)
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Title: %s\n\n%s", result.Title, result.Content.Markdown)), nil
	}
}

func handleScreenshot(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 60 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		options := map[string]interface{}{}
		if element := request.GetString("element", ""); element != "" {
			options["element"] = element
		}
		if waitSel := request.GetString("wait_for_selector", ""); waitSel != "" {
			options["wait_for_selector"] = waitSel
		}

		payload := map[string]interface{}{"url": url, "options": options}

		respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/screenshot", payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("screenshot request failed: %v", err)), nil
		}

		var result struct {
			OK        bool   `json:"ok"`
			PNGBase64 string `json:"png_base64"`
			Err       *struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"err"`
		}
		if err := json.Unmarshal(respBody, &result); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse screenshot response: %v", err)), nil
		}
		if !result.OK {
			errMsg := "screenshot failed"
			if result.Err != nil {
				errMsg = fmt.Sprintf("[%s] %s", result.Err.Code, result.Err.Message)
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		return mcp.NewToolResultImage("screenshot", result.PNGBase64, "image/png"), nil
	}
}

func handleExportHAR(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 120 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		options := map[string]interface{}{}
		if request.GetString("include_bodies", "") == "true" {
			options["include_bodies"] = true
		}

		payload := map[string]interface{}{"url": url, "options": options}

		respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/har", payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("export_har request failed: %v", err)), nil
		}

		var result struct {
			OK      bool            `json:"ok"`
			Har     json.RawMessage `json:"har"`
			Entries int             `json:"entries"`
			Err     *struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"err"`
		}
		if err := json.Unmarshal(respBody, &result); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse export_har response: %v", err)), nil
		}
		if !result.OK {
			errMsg := "export_har failed"
			if result.Err != nil {
				errMsg = fmt.Sprintf("[%s] %s", result.Err.Code, result.Err.Message)
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		var pretty bytes.Buffer
		if err := json.Indent(&pretty, result.Har, "", "  "); err != nil {
			pretty.Write(result.Har)
		}

		return mcp.NewToolResultText(fmt.Sprintf("%d entries captured\n\n%s", result.Entries, pretty.String())), nil
	}
}

func handleDomainIntelligence(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		domain, err := request.RequireString("domain")
		if err != nil {
			return mcp.NewToolResultError("domain is required"), nil
		}

		respBody, err := apiGet(ctx, client, apiURL, apiKey, "/api/v1/domain/"+domain+"/intelligence")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("get_domain_intelligence request failed: %v", err)), nil
		}

		var pretty bytes.Buffer
		if err := json.Indent(&pretty, respBody, "", "  "); err != nil {
			pretty.Write(respBody)
		}
		return mcp.NewToolResultText(pretty.String()), nil
	}
}

func handleDomainCapabilities(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		domain, err := request.RequireString("domain")
		if err != nil {
			return mcp.NewToolResultError("domain is required"), nil
		}

		respBody, err := apiGet(ctx, client, apiURL, apiKey, "/api/v1/domain/"+domain+"/capabilities")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("get_domain_capabilities request failed: %v", err)), nil
		}

		var pretty bytes.Buffer
		if err := json.Indent(&pretty, respBody, "", "  "); err != nil {
			pretty.Write(respBody)
		}
		return mcp.NewToolResultText(pretty.String()), nil
	}
}

func handleBatchFetch(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 300 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		urls, err := request.RequireStringSlice("urls")
		if err != nil {
			return mcp.NewToolResultError("urls is required"), nil
		}

		batchOpts := map[string]interface{}{}
		if args := request.GetArguments(); args != nil {
			if conc, ok := args["concurrency"]; ok {
				batchOpts["concurrency"] = conc
			}
		}
		if request.GetString("stop_on_error", "") == "true" {
			batchOpts["stop_on_error"] = true
		}

		payload := map[string]interface{}{"urls": urls, "batch_opts": batchOpts}

		respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/batch", payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("batch_fetch request failed: %v", err)), nil
		}

		var pretty bytes.Buffer
		if err := json.Indent(&pretty, respBody, "", "  "); err != nil {
			pretty.Write(respBody)
		}
		return mcp.NewToolResultText(pretty.String()), nil
	}
}
