package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers the manager's page tools on an MCP server.
func (m *Manager) RegisterMCP(srv *mcp.Server) {
	registerTool(srv, &mcp.Tool{
		Name:        "canary_pages",
		Description: "List open pages with their cycle counters, last cycle and observer state.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, func(_ context.Context, _ struct{}) (any, error) {
		return m.Sessions(), nil
	})

	registerTool(srv, &mcp.Tool{
		Name:        "canary_apply",
		Description: "Run one branding cycle on a page now. Returns the cycle report.",
		InputSchema: pageSchema,
	}, func(_ context.Context, req pageRequest) (any, error) {
		return m.Apply(req.PageID)
	})

	registerTool(srv, &mcp.Tool{
		Name:        "canary_observer",
		Description: "Describe the mutation observer of a page: target, options, counters and whether it is connected.",
		InputSchema: pageSchema,
	}, func(_ context.Context, req pageRequest) (any, error) {
		return m.Observer(req.PageID)
	})

	registerTool(srv, &mcp.Tool{
		Name:        "canary_disconnect",
		Description: "Disconnect the mutation observer of a page. The page stays open; later changes are no longer rebranded.",
		InputSchema: pageSchema,
	}, func(_ context.Context, req pageRequest) (any, error) {
		if err := m.Disconnect(req.PageID); err != nil {
			return nil, err
		}
		return map[string]string{"status": "disconnected", "page_id": req.PageID}, nil
	})
}

// WithMCP mounts the streamable HTTP transport of srv at /mcp.
func WithMCP(srv *mcp.Server) AdminOption {
	return func(a *admin) {
		a.mcp = mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil)
	}
}

type pageRequest struct {
	PageID string `json:"page_id"`
}

func (r pageRequest) validate() error {
	if r.PageID == "" {
		return errors.New("page_id is required")
	}
	return nil
}

var pageSchema = inputSchema(map[string]any{
	"page_id": map[string]any{"type": "string", "description": "Page ID as listed by canary_pages"},
}, []string{"page_id"})

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// registerTool decodes the arguments into Req, runs fn and returns its
// result as JSON text. Decode and call errors become tool errors.
func registerTool[Req any](srv *mcp.Server, tool *mcp.Tool, fn func(context.Context, Req) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var in Req
		if args := req.Params.Arguments; len(args) > 0 {
			if err := json.Unmarshal(args, &in); err != nil {
				return toolError(fmt.Errorf("invalid arguments: %w", err)), nil
			}
		}
		if v, ok := any(in).(interface{ validate() error }); ok {
			if err := v.validate(); err != nil {
				return toolError(fmt.Errorf("invalid arguments: %w", err)), nil
			}
		}
		resp, err := fn(ctx, in)
		if err != nil {
			return toolError(err), nil
		}
		data, err := json.Marshal(resp)
		if err != nil {
			return toolError(fmt.Errorf("marshal: %w", err)), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

func toolError(err error) *mcp.CallToolResult {
	var res mcp.CallToolResult
	res.SetError(err)
	return &res
}
