// Package mcpadapter exposes query, routing and expansion as MCP tools.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/construction-graphrag/internal/core/domain"
	"github.com/kirillkom/construction-graphrag/internal/core/ports"
)

const (
	serverName    = "construction-graphrag"
	serverVersion = "1.0.0"
)

type Server struct {
	query   ports.QueryService
	planner ports.QueryPlanner
	logger  *slog.Logger
}

func New(query ports.QueryService, planner ports.QueryPlanner, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{query: query, planner: planner, logger: logger}
}

// MCPServer builds the tool server. query is only registered when a query
// service is configured.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false))

	questionArg := mcp.WithString("question",
		mcp.Required(),
		mcp.Description("Natural-language question about the ingested construction documents."),
	)
	if s.query != nil {
		srv.AddTool(mcp.NewTool("query",
			mcp.WithDescription("Answer a question from drawings, schedules and the knowledge graph, citing sources."),
			questionArg,
		), s.handleQuery)
	}
	srv.AddTool(mcp.NewTool("route",
		mcp.WithDescription("Show whether a question maps to a structured graph template and the Cypher it would run."),
		questionArg,
	), s.handleRoute)
	srv.AddTool(mcp.NewTool("expand",
		mcp.WithDescription("List the synonym-expanded query variants used for retrieval."),
		questionArg,
	), s.handleExpand)
	return srv
}

// ServeStdio blocks serving MCP over stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.MCPServer())
}

func (s *Server) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, errResult := requireQuestion(req)
	if errResult != nil {
		return errResult, nil
	}
	answer, err := s.query.Answer(ctx, question)
	if err != nil {
		s.logger.Warn("mcp_tool_failed", "tool", "query", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return jsonResult(answer)
}

type routeResult struct {
	Decision domain.RouteDecision `json:"decision"`
	Query    *domain.GraphQuery   `json:"query,omitempty"`
}

func (s *Server) handleRoute(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, errResult := requireQuestion(req)
	if errResult != nil {
		return errResult, nil
	}
	out := routeResult{Decision: s.planner.Route(question)}
	if out.Decision.IsStructured() {
		query, err := s.planner.BuildQuery(out.Decision)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		out.Query = &query
	}
	return jsonResult(out)
}

func (s *Server) handleExpand(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, errResult := requireQuestion(req)
	if errResult != nil {
		return errResult, nil
	}
	return jsonResult(map[string]any{"variants": s.planner.Expand(question)})
}

func requireQuestion(req mcp.CallToolRequest) (string, *mcp.CallToolResult) {
	question, err := req.RequireString("question")
	if err != nil {
		return "", mcp.NewToolResultError(err.Error())
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return "", mcp.NewToolResultError("question must not be empty")
	}
	return question, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
