package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/models"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/services"
)

type submitJobResult struct {
	JobID  string           `json:"job_id"`
	Status models.JobStatus `json:"status"`
	Stages int              `json:"stages"`
}

// registerSubmitAnalysisJobTool adds submit_analysis_job.
func registerSubmitAnalysisJobTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"submit_analysis_job",
		mcp.WithDescription(
			"Queue an AI analysis job. One stage runs per (table, analysis type); "+
				"column documentation results are written to the data dictionary. "+
				"Poll get_analysis_job for progress.",
		),
		mcp.WithString("connection_id", mcp.Required(), mcp.Description("Connection id from the registry")),
		mcp.WithArray("tables", mcp.Required(),
			mcp.Description(`Tables as "schema.table" strings`),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithArray("analysis_types", mcp.Required(),
			mcp.Description("column_documentation, data_quality, table_summary, pii_detection or a recipe action type"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithString("name", mcp.Description("Optional job name")),
		mcp.WithString("provider", mcp.Description("Optional LLM provider")),
		mcp.WithString("model", mcp.Description("Optional model")),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		connectionID, err := req.RequireString("connection_id")
		if err != nil {
			return NewErrorResult("invalid_input", err.Error()), nil
		}
		tables, err := parseTableRefs(getStringList(req, "tables"))
		if err != nil {
			return NewErrorResult("invalid_input", err.Error()), nil
		}

		job, err := deps.Jobs.Submit(ctx, &services.SubmitJobRequest{
			Name:          getOptionalString(req, "name"),
			DatabaseID:    connectionID,
			Tables:        tables,
			AnalysisTypes: getStringList(req, "analysis_types"),
			Provider:      getOptionalString(req, "provider"),
			Model:         getOptionalString(req, "model"),
		})
		if err != nil {
			if result := asErrorResult(err); result != nil {
				return result, nil
			}
			return nil, fmt.Errorf("failed to submit job: %w", err)
		}

		deps.Logger.Info("Analysis job submitted over MCP",
			zap.String("job_id", job.ID.String()),
			zap.String("connection_id", connectionID))
		return jsonResult(submitJobResult{JobID: job.ID.String(), Status: job.Status, Stages: job.StageCount()})
	})
}

// registerGetAnalysisJobTool adds get_analysis_job.
func registerGetAnalysisJobTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"get_analysis_job",
		mcp.WithDescription("Get the status, per-stage results and prompt metadata of an analysis job."),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("Job id returned by submit_analysis_job")),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := req.RequireString("job_id")
		if err != nil {
			return NewErrorResult("invalid_input", err.Error()), nil
		}
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			return NewErrorResult("invalid_input", "job_id must be a UUID"), nil
		}

		job, err := deps.Jobs.Get(ctx, id)
		if err != nil {
			if result := asErrorResult(err); result != nil {
				return result, nil
			}
			return nil, fmt.Errorf("failed to get job: %w", err)
		}
		return jsonResult(job)
	})
}

// parseTableRefs splits "schema.table" strings on the first dot.
func parseTableRefs(raw []string) ([]models.TableRef, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("tables must list at least one schema.table")
	}
	refs := make([]models.TableRef, 0, len(raw))
	for _, r := range raw {
		schema, table, ok := strings.Cut(r, ".")
		if !ok || schema == "" || table == "" {
			return nil, fmt.Errorf("table %q must be written as schema.table", r)
		}
		refs = append(refs, models.TableRef{Schema: schema, Table: table})
	}
	return refs, nil
}
