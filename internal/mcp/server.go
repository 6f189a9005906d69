// Package mcp exposes the engine over the Model Context Protocol: a thin
// tool surface delegating to the session pool, the workflow engine, and the
// portal flows.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"portalflow-engine/internal/config"
	"portalflow-engine/internal/pool"
	"portalflow-engine/internal/portal"
	"portalflow-engine/internal/workflow"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Server wires the MCP runtime, the session pool, and the portal flows.
type Server struct {
	cfg        config.Config
	pool       *pool.Pool
	engine     *workflow.Engine
	booking    *portal.Booking
	bookingDef *workflow.Definition
	lookup     *portal.ContainerLookup
	status     *portal.StatusInquiry
	sink       EventSink
	tools      map[string]Tool
	mcpServer  *mcpserver.MCPServer
}

// Tool describes the contract for MCP tool implementations.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// EventSink receives tool-level events (see internal/recorder).
type EventSink interface {
	Log(eventType, sessionID string, data interface{})
}

// Option configures a Server.
type Option func(*Server)

// WithEventSink wires a flight recorder into the tool surface.
func WithEventSink(sink EventSink) Option {
	return func(s *Server) { s.sink = sink }
}

// NewServer constructs the portalflow MCP server and registers all tools.
func NewServer(cfg config.Config, p *pool.Pool, engine *workflow.Engine, opts ...Option) (*Server, error) {
	mcpSrv := mcpserver.NewMCPServer(
		cfg.Server.Name,
		cfg.Server.Version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithLogging(),
		mcpserver.WithRecovery(),
	)

	booking := portal.NewBooking(cfg)
	bookingDef, err := booking.Definition()
	if err != nil {
		return nil, fmt.Errorf("build booking workflow: %w", err)
	}

	server := &Server{
		cfg:        cfg,
		pool:       p,
		engine:     engine,
		booking:    booking,
		bookingDef: bookingDef,
		lookup:     portal.NewContainerLookup(cfg),
		status:     portal.NewStatusInquiry(cfg),
		tools:      make(map[string]Tool),
		mcpServer:  mcpSrv,
	}
	for _, opt := range opts {
		opt(server)
	}

	server.registerAllTools()
	return server, nil
}

// Start launches the stdio server.
func (s *Server) Start(ctx context.Context) error {
	stdio := mcpserver.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// StartSSE hosts the server over HTTP using SSE endpoints with graceful shutdown.
func (s *Server) StartSSE(ctx context.Context, port int) error {
	sseServer := mcpserver.NewSSEServer(s.mcpServer, mcpserver.WithBaseURL("http://localhost:"+strconv.Itoa(port)))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(port),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Printf("SSE server shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// ExecuteTool executes a tool directly (used by tests).
func (s *Server) ExecuteTool(name string, args map[string]interface{}) (interface{}, error) {
	tool, exists := s.tools[name]
	if !exists {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	return tool.Execute(context.Background(), args)
}

func (s *Server) registerAllTools() {
	// Session lifecycle
	s.registerTool(&AcquireSessionTool{pool: s.pool})
	s.registerTool(&ReleaseSessionTool{pool: s.pool})
	s.registerTool(&ListSessionsTool{pool: s.pool})

	// Portal flows
	s.registerTool(&BookingAdvanceTool{pool: s.pool, engine: s.engine, booking: s.booking, def: s.bookingDef})
	s.registerTool(&ContainerLookupTool{pool: s.pool, lookup: s.lookup})
	s.registerTool(&StatusInquiryTool{pool: s.pool, status: s.status, sink: s.sink})
}

func (s *Server) registerTool(tool Tool) {
	s.tools[tool.Name()] = tool

	schema, err := json.Marshal(tool.InputSchema())
	if err != nil {
		schema = json.RawMessage(`{"type":"object"}`)
	}

	mcpTool := mcp.NewToolWithRawSchema(tool.Name(), tool.Description(), schema)
	s.mcpServer.AddTool(mcpTool, s.wrapTool(tool))
}

func (s *Server) wrapTool(tool Tool) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		if args == nil {
			args = map[string]interface{}{}
		}

		result, err := tool.Execute(ctx, args)
		if err != nil {
			payload := marshalToolPayload(tool.Name(), map[string]interface{}{
				"success":    false,
				"error":      err.Error(),
				"error_code": errorCode(err),
			})
			return &mcp.CallToolResult{
				Content: []mcp.Content{mcp.NewTextContent(string(payload))},
				IsError: true,
			}, nil
		}

		payload := marshalToolPayload(tool.Name(), result)
		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.NewTextContent(string(payload))},
			IsError: false,
		}, nil
	}
}

func marshalToolPayload(toolName string, result interface{}) []byte {
	payload, marshalErr := json.Marshal(result)
	if marshalErr == nil {
		return payload
	}

	fallback := map[string]interface{}{
		"success": false,
		"error":   fmt.Sprintf("tool %s returned non-serializable payload: %v", toolName, marshalErr),
	}
	payload, fallbackErr := json.Marshal(fallback)
	if fallbackErr == nil {
		return payload
	}

	return []byte(fmt.Sprintf(`{"success":false,"error":"tool %s failed to encode payload"}`, toolName))
}
