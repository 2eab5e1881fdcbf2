package research

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/floegence/research-agent/internal/browser"
	"github.com/floegence/research-agent/internal/llm"
)

var searchTextSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"search_text": {
			"type": "string",
			"description": "The text to search for in the page."
		}
	},
	"required": ["search_text"]
}`)

var noArgsSchema = json.RawMessage(`{"type": "object", "properties": {}}`)

func searchTextArg(args map[string]any) string {
	s, _ := args["search_text"].(string)
	return strings.TrimSpace(s)
}

// browserTools is the complete tool catalog handed to a page-reading
// invocation: the current-window read, the two scroll operations, and the
// two text searches, all bound to one Navigator.
func browserTools(nav *browser.Navigator) []llm.Tool {
	return []llm.Tool{
		{
			Def: llm.ToolDef{
				Name:        "get_viewport_content",
				Description: "Get the text content of the current viewport only, without scrolling.",
				InputSchema: noArgsSchema,
			},
			Run: func(ctx context.Context, _ map[string]any) string {
				return nav.ReadWindow(ctx)
			},
		},
		{
			Def: llm.ToolDef{
				Name:        "page_up",
				Description: "Scroll up to the previous viewport, showing completely new content. Returns the content of the viewport after scrolling, or 'TOP OF PAGE REACHED' if already at the top.",
				InputSchema: noArgsSchema,
			},
			Run: func(ctx context.Context, _ map[string]any) string {
				return nav.PageUp(ctx).Text()
			},
		},
		{
			Def: llm.ToolDef{
				Name:        "page_down",
				Description: "Scroll down to the next viewport, showing completely new content. Returns the content of the viewport after scrolling, or 'END OF PAGE REACHED' if already at the bottom.",
				InputSchema: noArgsSchema,
			},
			Run: func(ctx context.Context, _ map[string]any) string {
				return nav.PageDown(ctx).Text()
			},
		},
		{
			Def: llm.ToolDef{
				Name:        "find_text",
				Description: "Search for text in the page, scrolling through it from the top until found or the end is reached. Returns the viewport content containing the text, or an empty result if not found.",
				InputSchema: searchTextSchema,
			},
			Run: func(ctx context.Context, args map[string]any) string {
				w := nav.FindFirst(ctx, searchTextArg(args))
				if w == nil {
					return ""
				}
				return w.Text
			},
		},
		{
			Def: llm.ToolDef{
				Name:        "find_text_next",
				Description: "Search for the next occurrence of text in the page, resuming after the previous match. Returns the viewport content containing the text, or 'END OF PAGE REACHED' when no occurrences remain.",
				InputSchema: searchTextSchema,
			},
			Run: func(ctx context.Context, args map[string]any) string {
				return nav.FindNext(ctx, searchTextArg(args)).Text()
			},
		},
	}
}
