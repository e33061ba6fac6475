// Package mcpserver exposes the answer engine as an MCP tool.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"virtualta/internal/answer"
	"virtualta/internal/domain"
)

const Version = "0.1.0"

// Answerer is the engine behind the ask tool.
type Answerer interface {
	Answer(ctx context.Context, req answer.Request) (domain.Response, error)
}

type AskRequest struct {
	Question string `json:"question"`
	Image    string `json:"image"`
}

// NewServer creates an MCP server with the ask tool.
func NewServer(a Answerer) *server.MCPServer {
	s := server.NewMCPServer(
		"Virtual TA",
		Version,
		server.WithToolCapabilities(false),
	)
	askTool := mcp.NewTool("ask",
		mcp.WithDescription("Answer a course question from the indexed course notes and forum, with source links"),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The student's question"),
		),
		mcp.WithString("image",
			mcp.Description("Optional base64 PNG, JPEG or WEBP screenshot"),
		),
	)
	s.AddTool(askTool, mcp.NewTypedToolHandler(askHandler(a)))
	return s
}

func askHandler(a Answerer) func(ctx context.Context, request mcp.CallToolRequest, args AskRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest, args AskRequest) (*mcp.CallToolResult, error) {
		if args.Question == "" {
			return mcp.NewToolResultError("question is required"), nil
		}
		resp, err := a.Answer(ctx, answer.Request{Question: args.Question, Image: args.Image})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to answer: %v", err)), nil
		}
		data, err := json.Marshal(resp)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

// ServeStdio serves the MCP protocol on stdin/stdout until EOF.
func ServeStdio(a Answerer) error {
	return server.ServeStdio(NewServer(a))
}
