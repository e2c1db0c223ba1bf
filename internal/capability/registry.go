// Package capability holds the fixed set of capabilities advertised to a
// planner, each described by an MCP tool schema.
package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/notes"
)

// Capability names.
const (
	ReadNote  = "read_note"
	WriteNote = "write_note"
)

// Argument names.
const (
	ArgFilepath = "filepath"
	ArgContent  = "content"
)

// Handler executes a capability with already validated arguments.
type Handler func(ctx context.Context, req mcp.CallToolRequest) (notes.Result, error)

// Capability pairs an advertised descriptor with its implementation.
type Capability struct {
	Tool    mcp.Tool
	Handler Handler
}

// Registry is an immutable, ordered list of capabilities.
type Registry struct {
	caps   []Capability
	byName map[string]int
}

// NewRegistry returns the note capabilities: read_note and write_note.
func NewRegistry(nb *notes.Notebook) *Registry {
	return newRegistry(
		Capability{
			Tool: mcp.NewTool(ReadNote,
				mcp.WithDescription("Read the contents of a note stored in the notes directory."),
				mcp.WithString(ArgFilepath, mcp.Required(),
					mcp.Description("Name of the note to read, e.g. shopping.txt")),
			),
			Handler: func(ctx context.Context, req mcp.CallToolRequest) (notes.Result, error) {
				name, err := req.RequireString(ArgFilepath)
				if err != nil {
					return notes.Result{}, err
				}
				return nb.ReadNote(ctx, name), nil
			},
		},
		Capability{
			Tool: mcp.NewTool(WriteNote,
				mcp.WithDescription("Write content to a note in the notes directory. "+
					"Creates the note or replaces its existing content."),
				mcp.WithString(ArgFilepath, mcp.Required(),
					mcp.Description("Name of the note to write, e.g. shopping.txt")),
				mcp.WithString(ArgContent, mcp.Required(),
					mcp.Description("Full text content of the note")),
			),
			Handler: func(ctx context.Context, req mcp.CallToolRequest) (notes.Result, error) {
				name, err := req.RequireString(ArgFilepath)
				if err != nil {
					return notes.Result{}, err
				}
				content, err := req.RequireString(ArgContent)
				if err != nil {
					return notes.Result{}, err
				}
				return nb.WriteNote(ctx, name, content), nil
			},
		},
	)
}

func newRegistry(caps ...Capability) *Registry {
	r := &Registry{caps: caps, byName: make(map[string]int, len(caps))}
	for i, c := range caps {
		r.byName[c.Tool.Name] = i
	}
	return r
}

// Tools returns the advertised descriptors in registration order.
func (r *Registry) Tools() []mcp.Tool {
	out := make([]mcp.Tool, len(r.caps))
	for i, c := range r.caps {
		out[i] = c.Tool
	}
	return out
}

// Capabilities returns a copy of the registered capabilities.
func (r *Registry) Capabilities() []Capability {
	return append([]Capability(nil), r.caps...)
}

// Lookup finds a capability by name.
func (r *Registry) Lookup(name string) (Capability, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Capability{}, false
	}
	return r.caps[i], true
}

// Invoke decodes raw JSON arguments and runs the named capability. An
// unknown name or arguments that do not fit the schema yield an error
// wrapping apperr.ErrMalformedInvocation; capability-level failures are
// reported in the result instead.
func (r *Registry) Invoke(ctx context.Context, name string, raw json.RawMessage) (notes.Result, error) {
	c, ok := r.Lookup(name)
	if !ok {
		return notes.Result{}, fmt.Errorf("%w: unknown capability %q", apperr.ErrMalformedInvocation, name)
	}

	args := map[string]any{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return notes.Result{}, fmt.Errorf("%w: %s arguments: %v", apperr.ErrMalformedInvocation, name, err)
		}
	}

	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := c.Handler(ctx, req)
	if err != nil {
		return notes.Result{}, fmt.Errorf("%w: %s: %v", apperr.ErrMalformedInvocation, name, err)
	}
	return res, nil
}

// Parameters returns the JSON schema of a tool's input as a plain map, the
// shape planner SDKs expect.
func Parameters(tool mcp.Tool) (map[string]any, error) {
	data, err := json.Marshal(tool.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("capability: marshal %s schema: %w", tool.Name, err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("capability: unmarshal %s schema: %w", tool.Name, err)
	}
	return out, nil
}
