package mcprun

import (
	"context"
	"fmt"
	"strings"

	"github.com/manishiitg/mcpx-chat-go/pkg/tools"
)

// SearchToolName is the in-process servlet search tool.
const SearchToolName = "mcp_run_search_servlets"

const searchDescription = `Search for tools that might help solve the user's problem. Use single-word searches first (like "image" or "pdf"). If no results match, try one more related word. Never combine multiple terms in the first search.

For each result found, tell the user to visit https://mcp.run/{owner}/{name} to install it.

If no tools are found, suggest the user create one at mcp.run.

Search proactively: anytime external code could help with the task, do a search.`

const queryDescription = `The query of terms to search the mcp.run API for servlets. Supports:
  * word search: 'fetch markdown' (documents containing both words)
  * phrase search: '"hello world"'
  * prefix search: 'fetch*'
  * negation: '!javascript'`

// SearchTool exposes Client.Search to the model.
func SearchTool(c *Client) tools.Builtin {
	return tools.Builtin{
		Descriptor: tools.Descriptor{
			Name:        SearchToolName,
			Description: searchDescription,
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"q": map[string]any{
						"type":        "string",
						"description": queryDescription,
					},
				},
				"required": []any{},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) (*tools.Result, error) {
			q, _ := args["q"].(string)
			results, err := c.Search(ctx, q)
			if err != nil {
				return nil, &tools.ToolError{Kind: tools.KindTransportFailure, Tool: SearchToolName, Err: err}
			}
			return searchResult(results)
		},
	}
}

func searchResult(results []SearchResult) (*tools.Result, error) {
	if len(results) == 0 {
		return &tools.Result{Content: []tools.Content{tools.Text("No servlets found.")}}, nil
	}
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "- %s: %s (install: %s)\n", r.Slug, r.Meta.Description, r.InstallURL())
	}
	structured, err := tools.Structured(results)
	if err != nil {
		return nil, err
	}
	return &tools.Result{Content: []tools.Content{tools.Text(strings.TrimRight(b.String(), "\n")), structured}}, nil
}
