// Package mcpserver exposes the note capabilities as an MCP (Model Context
// Protocol) server over stdio, so external LLM clients can drive them
// without the built-in agent.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/quill/internal/capability"
	"github.com/starford/quill/internal/storage"
)

// Name and Version are reported in the MCP initialize handshake.
const (
	Name    = "Quill"
	Version = "1.0.0"
)

// ListNotes is an MCP-only tool; the agent never advertises it.
const ListNotes = "list_notes"

// Server wraps the MCP server with the note tools.
type Server struct {
	mcp   *server.MCPServer
	caps  *capability.Registry
	store storage.Provider
}

// New creates an MCP server with every registered capability plus
// list_notes.
func New(caps *capability.Registry, store storage.Provider) *Server {
	s := &Server{caps: caps, store: store}

	s.mcp = server.NewMCPServer(
		Name,
		Version,
		server.WithToolCapabilities(false),
	)

	for _, c := range caps.Capabilities() {
		s.mcp.AddTool(c.Tool, s.capabilityHandler(c))
	}

	s.mcp.AddTool(mcp.NewTool(ListNotes,
		mcp.WithDescription("List the notes stored in the notes directory."),
	), s.listNotes)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// capabilityHandler adapts a capability to an MCP tool handler. Failure
// results and malformed arguments both surface as tool errors so the
// client model can see them.
func (s *Server) capabilityHandler(c capability.Capability) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := json.Marshal(req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		res, err := s.caps.Invoke(ctx, c.Tool.Name, raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !res.OK() {
			return mcp.NewToolResultError(res.Text), nil
		}
		return mcp.NewToolResultText(res.Text), nil
	}
}

type noteEntry struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	infos, err := s.store.List()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(infos) == 0 {
		return mcp.NewToolResultText("no notes found"), nil
	}
	entries := make([]noteEntry, 0, len(infos))
	for _, n := range infos {
		entries = append(entries, noteEntry{Name: n.Name, Size: n.Size})
	}
	out, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcpserver: encode list: %w", err)
	}
	return mcp.NewToolResultText(string(out)), nil
}
