// CLAUDE:SUMMARY Registers feedcanon MCP tools: resolve, equivalent, resolutions, feed lookup.
package keeper

import (
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/feedcanon/kit"
)

// RegisterMCP registers feedcanon tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerResolveTool(srv)
	s.registerEquivalentTool(srv)
	s.registerResolutionsTool(srv)
	s.registerFeedTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
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

// decodeArgs unmarshals tool arguments into a fresh T.
func decodeArgs[T any](req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var r T
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
	}
	return &kit.MCPDecodeResult{Request: &r}, nil
}

func (s *Service) registerResolveTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name: "feedcanon_resolve",
		Description: "Find the canonical URL of a feed (RSS, Atom, JSON Feed). Strips tracking parameters, " +
			"follows redirects, validates the feed's self URL and prefers the cleanest URL serving the same content.",
		InputSchema: inputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "Feed URL, possibly dirty (tracking params, feed:// scheme, alias host)"},
		}, []string{"url"}),
	}
	kit.RegisterMCPTool(srv, tool, s.resolveEndpoint(), decodeArgs[resolveRequest])
}

func (s *Service) registerEquivalentTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "feedcanon_equivalent",
		Description: "Check whether two feed URLs serve the same feed. Returns the deciding method: normalize, redirect, hash or signature.",
		InputSchema: inputSchema(map[string]any{
			"a": map[string]any{"type": "string", "description": "First feed URL"},
			"b": map[string]any{"type": "string", "description": "Second feed URL"},
		}, []string{"a", "b"}),
	}
	kit.RegisterMCPTool(srv, tool, s.equivalentEndpoint(), decodeArgs[equivalentRequest])
}

func (s *Service) registerResolutionsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "feedcanon_resolutions",
		Description: "List recent resolutions, newest first.",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Max entries (default 50)"},
		}, nil),
	}
	kit.RegisterMCPTool(srv, tool, s.resolutionsEndpoint(), decodeArgs[resolutionsRequest])
}

func (s *Service) registerFeedTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "feedcanon_feed",
		Description: "Look up a known feed by its canonical URL or any alias. No network.",
		InputSchema: inputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "Canonical URL or alias"},
		}, []string{"url"}),
	}
	kit.RegisterMCPTool(srv, tool, s.feedEndpoint(), decodeArgs[feedRequest])
}
