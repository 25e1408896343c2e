package gateway

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// SearchInput is the ai_search tool's argument schema.
type SearchInput struct {
	// Query is the search query or follow-up question.
	Query string `json:"query"`

	// Language is the search interface language code, e.g. "en" or "zh-CN".
	Language string `json:"language,omitempty"`

	// FollowUp continues the conversation in an existing session.
	FollowUp bool `json:"follow_up,omitempty"`

	// SessionID selects the session to reuse; omit to start a new one.
	SessionID string `json:"session_id,omitempty"`
}

// SearchOutput is the ai_search tool's structured result.
type SearchOutput struct {
	SessionID string `json:"session_id"`
	Success   bool   `json:"success"`
}

// CloseInput is the close_session tool's argument schema.
type CloseInput struct {
	SessionID string `json:"session_id"`
}

// CloseOutput is the close_session tool's structured result.
type CloseOutput struct {
	Closed bool `json:"closed"`
}

// Register adds the gateway's tools to an MCP server.
func (g *Gateway) Register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name: "ai_search",
		Description: `Search with AI-generated answers. Returns the AI answer and its cited sources as markdown.

Pass the returned session_id with follow_up=true to ask follow-up questions in the same conversation context.`,
	}, g.handleSearch)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "close_session",
		Description: "Close a search session and release its browser.",
	}, g.handleClose)
}

func (g *Gateway) handleSearch(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	resp, err := g.Search(ctx, SearchRequest{
		Query:     input.Query,
		Language:  input.Language,
		FollowUp:  input.FollowUp,
		SessionID: input.SessionID,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("search failed: %v", err)), SearchOutput{}, nil
	}

	out := SearchOutput{SessionID: resp.SessionID, Success: resp.OK}
	result := &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: resp.Markdown}},
		IsError: !resp.OK,
	}
	return result, out, nil
}

func (g *Gateway) handleClose(ctx context.Context, req *mcp.CallToolRequest, input CloseInput) (*mcp.CallToolResult, CloseOutput, error) {
	if input.SessionID == "" {
		return errorResult("session_id is required"), CloseOutput{}, nil
	}

	closed := g.CloseSession(input.SessionID)
	text := fmt.Sprintf("Session %s closed.", input.SessionID)
	if !closed {
		text = fmt.Sprintf("Session %s not found; nothing to close.", input.SessionID)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, CloseOutput{Closed: closed}, nil
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}
