package gateway

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/restyle/changes"
	"github.com/hazyhaar/restyle/kit"
)

// RegisterMCP registers the gateway tools on srv.
func (g *Gateway) RegisterMCP(srv *mcp.Server) {
	g.registerSetEditModeTool(srv)
	g.registerSetPropertyTool(srv)
	g.registerTypedTool(srv, "restyle_color_scheme",
		"Report whether the page prefers a light or dark color scheme.", TypeGetColorScheme)
	g.registerTypedTool(srv, "restyle_reload_changes",
		"Replay the saved style changes for this origin into the page.", TypeReloadChanges)
	g.registerTypedTool(srv, "restyle_save_changes",
		"Persist every change recorded in this session.", TypeSaveChanges)
	g.registerTypedTool(srv, "restyle_changes",
		"List the style and text changes recorded in this session, keyed by element.", TypeGetChanges)
}

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

type setEditModeReq struct {
	Enabled bool `json:"enabled"`
}

func (g *Gateway) registerSetEditModeTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "restyle_set_edit_mode",
		Description: "Turn element edit mode on or off. Turning it off closes any open panel.",
		InputSchema: inputSchema(map[string]any{
			"enabled": map[string]any{"type": "boolean", "description": "true to enable edit mode"},
		}, []string{"enabled"}),
	}

	ep := g.endpoint(tool.Name)
	endpoint := func(ctx context.Context, req any) (any, error) {
		on := req.(*setEditModeReq).Enabled
		return ep(ctx, &Message{EditMode: &on})
	}
	kit.RegisterMCPTool(srv, tool, endpoint, kit.JSONArgs[setEditModeReq]())
}

func (g *Gateway) registerTypedTool(srv *mcp.Server, name, description, msgType string) {
	tool := &mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	ep := g.endpoint(name)
	endpoint := func(ctx context.Context, _ any) (any, error) {
		return ep(ctx, &Message{Type: msgType})
	}
	kit.RegisterMCPTool(srv, tool, endpoint, kit.NoArgs)
}

type setPropertyReq struct {
	Property string `json:"property"`
	Value    string `json:"value"`
}

func (g *Gateway) registerSetPropertyTool(srv *mcp.Server) {
	names := make([]any, 0, 8)
	for _, p := range changes.Properties() {
		names = append(names, p.Name)
	}
	tool := &mcp.Tool{
		Name:        "restyle_set_property",
		Description: "Set one property on the selected element through its open panel. The change is recorded, not saved.",
		InputSchema: inputSchema(map[string]any{
			"property": map[string]any{"type": "string", "enum": names},
			"value":    map[string]any{"type": "string", "description": "CSS value, or the new text for innerText"},
		}, []string{"property", "value"}),
	}

	ep := g.endpoint(tool.Name)
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*setPropertyReq)
		return ep(ctx, &Message{Type: TypeSetProperty, Property: r.Property, Value: r.Value})
	}
	kit.RegisterMCPTool(srv, tool, endpoint, kit.JSONArgs[setPropertyReq]())
}
