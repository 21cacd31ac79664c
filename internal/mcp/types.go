// Package mcp is a minimal Model Context Protocol client: enough to list a server's tools and
// call them on behalf of the chat assistant and the storefront.
package mcp

import (
	"context"
	"encoding/json"
	"strings"
)

const protocolVersion = "2024-11-05"

type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ToolResult is the envelope a tools/call returns.
type ToolResult struct {
	Content           []Content `json:"content"`
	StructuredContent any       `json:"structuredContent,omitempty"`
	IsError           bool      `json:"isError,omitempty"`
}

// Payload unwraps the envelope into the value the tool actually produced: structured content
// when present, otherwise the JSON held in the text parts, otherwise the text itself.
func (r ToolResult) Payload() any {
	if r.StructuredContent != nil {
		return r.StructuredContent
	}

	var texts []string
	var decoded []any
	for _, c := range r.Content {
		if c.Type != "text" || c.Text == "" {
			continue
		}
		texts = append(texts, c.Text)
		var v any
		if err := json.Unmarshal([]byte(c.Text), &v); err == nil {
			decoded = append(decoded, v)
		}
	}

	switch {
	case len(decoded) == 1 && len(texts) == 1:
		return decoded[0]
	case len(decoded) > 0 && len(decoded) == len(texts):
		return decoded
	case len(texts) > 0:
		return strings.Join(texts, "\n")
	}
	return nil
}

// Text joins the text parts, for results the caller only shows to a model or a user.
func (r ToolResult) Text() string {
	var parts []string
	for _, c := range r.Content {
		if c.Type == "text" && c.Text != "" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// ToolCaller is what the rest of the service needs from an MCP server. A tool-level failure is
// reported through ToolResult.IsError, not the error return.
type ToolCaller interface {
	ListTools(ctx context.Context) ([]Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (ToolResult, error)
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      ServerInfo     `json:"clientInfo"`
}

type initializeResult struct {
	ProtocolVersion string     `json:"protocolVersion"`
	ServerInfo      ServerInfo `json:"serverInfo"`
}

type listToolsParams struct {
	Cursor string `json:"cursor,omitempty"`
}

type listToolsResult struct {
	Tools      []Tool `json:"tools"`
	NextCursor string `json:"nextCursor,omitempty"`
}

type callToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}
