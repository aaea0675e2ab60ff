// Package mcptools exposes the orchestrator's session operations as MCP
// tools so agent clients can drive generation pipelines with structured
// calls.
package mcptools

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewPipelineMCPServer creates an MCP server with the 5 session tools
// registered: create_session, run_session, get_status, cancel_session, and
// list_sessions. The version is the binary's build version, reported to MCP
// clients during initialization.
func NewPipelineMCPServer(svc *PipelineService, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "contentplan",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_session",
		Description: "Create a new generation session from business parameters. Returns the session ID and its stage list.",
	}, svc.CreateSession)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_session",
		Description: "Start executing a pending session. Idempotent: a session already running or finished returns its current status.",
	}, svc.RunSession)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_status",
		Description: "Get a session's status: overall state, per-stage progress, scores, and the final result once complete.",
	}, svc.GetStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cancel_session",
		Description: "Request cancellation of a session. A running session stops before its next stage; an in-flight generation call is allowed to finish.",
	}, svc.CancelSession)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_sessions",
		Description: "List all live sessions with their status and stage completion counts.",
	}, svc.ListSessions)

	return server
}

// RunMCPServerStdio runs the MCP server on stdio transport, blocking until
// stdin is closed or the context is cancelled.
func RunMCPServerStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

// RunMCPServer starts an HTTP server exposing the session tools.
func RunMCPServer(ctx context.Context, svc *PipelineService, addr, version string) error {
	server := NewPipelineMCPServer(svc, version)

	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Shutdown gracefully when context is cancelled.
	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background())
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
