package hunt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers the prospect tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerStatusTool(srv)
	s.registerFindingsTool(srv)
	s.registerSearchTool(srv)
	s.registerFeedbackTool(srv)
	s.registerMissionsTool(srv)
	s.registerReportTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	sc := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sc["required"] = required
	}
	return sc
}

// registerTool wires a decode+handle pair as an MCP tool. Handler errors
// become tool errors rather than protocol errors so the caller sees them.
func registerTool(srv *mcp.Server, tool *mcp.Tool, decode func(*mcp.CallToolRequest) (any, error), handle func(context.Context, any) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		decoded, err := decode(req)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("invalid arguments: %w", err))
			return &res, nil
		}

		resp, err := handle(ctx, decoded)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(errors.New(err.Error()))
			return &res, nil
		}

		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

// --- status ---

func (s *Service) registerStatusTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "prospect_status",
		Description: "Pipeline status: queue depth, rate-limit budget, missions, finding counts, tactic weights.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	decode := func(_ *mcp.CallToolRequest) (any, error) { return nil, nil }
	handle := func(ctx context.Context, _ any) (any, error) {
		return s.Status(ctx)
	}

	registerTool(srv, tool, decode, handle)
}

// --- findings ---

type findingsReq struct {
	Mission string `json:"mission"`
	Status  string `json:"status"`
	Limit   int    `json:"limit"`
}

func (s *Service) registerFindingsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "prospect_findings",
		Description: "List discovered repositories, optionally filtered by mission and status (pending, liked, disliked, archived).",
		InputSchema: inputSchema(map[string]any{
			"mission": map[string]any{"type": "string", "description": "Mission name filter"},
			"status":  map[string]any{"type": "string", "description": "Status filter"},
			"limit":   map[string]any{"type": "integer", "description": "Max rows (default 50)"},
		}, nil),
	}

	decode := func(req *mcp.CallToolRequest) (any, error) {
		var r findingsReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &r, nil
	}
	handle := func(ctx context.Context, req any) (any, error) {
		r := req.(*findingsReq)
		if r.Limit <= 0 {
			r.Limit = 50
		}
		return s.Findings(ctx, FindingFilter{
			Mission: r.Mission,
			Status:  FindingStatus(r.Status),
			Limit:   r.Limit,
		})
	}

	registerTool(srv, tool, decode, handle)
}

// --- search ---

type searchReq struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func (s *Service) registerSearchTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "prospect_search",
		Description: "Full-text search over finding names, descriptions and summaries.",
		InputSchema: inputSchema(map[string]any{
			"query": map[string]any{"type": "string", "description": "Search terms"},
			"limit": map[string]any{"type": "integer", "description": "Max rows (default 20)"},
		}, []string{"query"}),
	}

	decode := func(req *mcp.CallToolRequest) (any, error) {
		var r searchReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		if r.Query == "" {
			return nil, errors.New("query is required")
		}
		return &r, nil
	}
	handle := func(ctx context.Context, req any) (any, error) {
		r := req.(*searchReq)
		if r.Limit <= 0 {
			r.Limit = 20
		}
		return s.SearchFindings(ctx, r.Query, r.Limit)
	}

	registerTool(srv, tool, decode, handle)
}

// --- feedback ---

type feedbackReq struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (s *Service) registerFeedbackTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "prospect_feedback",
		Description: "Mark a finding liked or disliked. Feedback feeds the next strategy evolution.",
		InputSchema: inputSchema(map[string]any{
			"id":     map[string]any{"type": "string", "description": "Finding ID"},
			"status": map[string]any{"type": "string", "description": "liked or disliked"},
		}, []string{"id", "status"}),
	}

	decode := func(req *mcp.CallToolRequest) (any, error) {
		var r feedbackReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &r, nil
	}
	handle := func(ctx context.Context, req any) (any, error) {
		r := req.(*feedbackReq)
		if err := s.Feedback(ctx, r.ID, FindingStatus(r.Status)); err != nil {
			return nil, err
		}
		return map[string]string{"id": r.ID, "status": r.Status}, nil
	}

	registerTool(srv, tool, decode, handle)
}

// --- missions ---

func (s *Service) registerMissionsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "prospect_missions",
		Description: "List configured missions with their goals and learned strategies.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	decode := func(_ *mcp.CallToolRequest) (any, error) { return nil, nil }
	handle := func(ctx context.Context, _ any) (any, error) {
		return s.Missions(ctx)
	}

	registerTool(srv, tool, decode, handle)
}

// --- report ---

type reportReq struct {
	Mission string `json:"mission"`
}

func (s *Service) registerReportTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "prospect_report",
		Description: "Analytics for a mission: per-tactic yields, language breakdown, top findings, feedback summary.",
		InputSchema: inputSchema(map[string]any{
			"mission": map[string]any{"type": "string", "description": "Mission name"},
		}, []string{"mission"}),
	}

	decode := func(req *mcp.CallToolRequest) (any, error) {
		var r reportReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		if r.Mission == "" {
			return nil, errors.New("mission is required")
		}
		return &r, nil
	}
	handle := func(ctx context.Context, req any) (any, error) {
		r := req.(*reportReq)
		return s.Report(ctx, r.Mission)
	}

	registerTool(srv, tool, decode, handle)
}
