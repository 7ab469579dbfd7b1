package lyceum

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/candlelight-ai/lyceum/schema"
)

// Version is reported through the MCP handshake.
const Version = "1.0.0"

const serverInstructions = `Query expansion and retrieval fusion for knowledge collections. Use expand-retrieve for question answering over a collection; use search for a single plain similarity lookup.`

// NewMCPServer exposes the client over the Model Context Protocol via
// stdio or any transport the caller attaches.
func NewMCPServer(c *Client, name string) *server.MCPServer {
	s := server.NewMCPServer(name, Version,
		server.WithInstructions(serverInstructions),
	)
	s.AddTool(
		mcp.NewToolWithRawSchema("expand-retrieve",
			"Expand a query through multiple methods, retrieve for each expansion, and fuse the ranked results",
			GetExpandRetrieveSchema()),
		c.HandleExpandRetrieve,
	)
	s.AddTool(
		mcp.NewToolWithRawSchema("search",
			"Similarity search in a collection without query expansion",
			GetSearchSchema()),
		c.HandleSearch,
	)
	return s
}

// ServeStdio runs the MCP server over stdin/stdout until the transport
// closes.
func ServeStdio(c *Client) error {
	return server.ServeStdio(NewMCPServer(c, "lyceum"))
}

// GetExpandRetrieveSchema returns the JSON schema of the expand-retrieve
// tool's arguments.
func GetExpandRetrieveSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "query": {
      "type": "string",
      "description": "The question or search query to expand and retrieve for"
    },
    "collection": {
      "type": "string",
      "description": "Name of the target collection"
    },
    "methods": {
      "type": "array",
      "items": {"type": "string", "enum": ["hyde", "rag_fusion", "self_ask", "prf"]},
      "description": "Expansion methods to run; defaults to the configured set"
    },
    "limit": {
      "type": "integer",
      "description": "Maximum number of fused results to return"
    },
    "refeed": {
      "type": "boolean",
      "description": "Whether to fold meta collection context into the query first"
    },
    "persona": {
      "type": "string",
      "description": "Optional system persona for the expansion LLM calls"
    }
  },
  "required": ["query", "collection"]
}`)
}

// GetSearchSchema returns the JSON schema of the search tool's arguments.
func GetSearchSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "query": {
      "type": "string",
      "description": "The text to search for"
    },
    "collection": {
      "type": "string",
      "description": "Name of the target collection"
    },
    "limit": {
      "type": "integer",
      "description": "Maximum number of results to return"
    }
  },
  "required": ["query", "collection"]
}`)
}

// HandleExpandRetrieve is the MCP handler for the expand-retrieve tool.
func (c *Client) HandleExpandRetrieve(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	collection, err := request.RequireString("collection")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var opts []RequestOption
	if raw, ok := request.GetArguments()["methods"]; ok {
		names, err := toStringSlice(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if len(names) > 0 {
			opts = append(opts, WithMethods(names...))
		}
	}
	if limit := request.GetInt("limit", 0); limit > 0 {
		opts = append(opts, WithLimit(limit))
	}
	if _, ok := request.GetArguments()["refeed"]; ok {
		opts = append(opts, WithRefeed(request.GetBool("refeed", true)))
	}
	if persona := request.GetString("persona", ""); persona != "" {
		opts = append(opts, WithPersona(persona))
	}

	result, err := c.ExpandAndRetrieve(ctx, query, collection, opts...)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return toolResultJSON(result)
}

// HandleSearch is the MCP handler for the plain search tool.
func (c *Client) HandleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	collection, err := request.RequireString("collection")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := request.GetInt("limit", 0)
	if limit <= 0 {
		limit = c.cfg.Fusion.Limit
	}

	nodes, err := c.store.Search(ctx, strings.TrimSpace(query), schema.SearchOptions{
		Collection: collection,
		Limit:      limit,
	})
	if err != nil {
		c.logger.Warn("plain search failed", zap.Error(err))
		nodes = []schema.RankedNode{}
	}
	return toolResultJSON(map[string]any{"results": nodes})
}

func toolResultJSON(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func toStringSlice(raw any) ([]string, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("methods must be an array of strings")
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("methods must be an array of strings")
		}
		out = append(out, s)
	}
	return out, nil
}
