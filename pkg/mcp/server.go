package mcp

import (
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/middleware"
)

// Server wraps the mcp-go MCPServer and the dictionary tool set.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates an MCP server with every dictionary tool registered.
func NewServer(name, version string, deps *tools.Deps, logger *zap.Logger) *Server {
	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s := &Server{
		mcp:    mcpServer,
		logger: logger.Named("mcp"),
	}
	if deps != nil {
		tools.Register(mcpServer, deps)
	}
	return s
}

// MCP returns the underlying MCPServer.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// RegisterTool registers an additional tool.
func (s *Server) RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
}

// RegisterRoutes mounts the stateless streamable HTTP transport at /mcp.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	transport := server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
	mux.Handle("/mcp", middleware.MCPRequestLogger(s.logger)(transport))
}
