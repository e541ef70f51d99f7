package tools

import (
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/services"
)

// Deps contains the services the dictionary tools call into.
type Deps struct {
	Queries    services.QueryService
	Schema     services.SchemaService
	Jobs       services.JobService
	Dictionary services.DictionaryService
	Logger     *zap.Logger
}

// Register adds every dictionary tool to s.
func Register(s *server.MCPServer, deps *Deps) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	registerExecuteQueryTool(s, deps)
	registerListTablesTool(s, deps)
	registerProfileTableTool(s, deps)
	registerSubmitAnalysisJobTool(s, deps)
	registerGetAnalysisJobTool(s, deps)
	registerSearchDictionaryTool(s, deps)
}
