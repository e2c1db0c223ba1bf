package agent

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// Step is a planner decision: either a final answer (no invocations) or one
// or more capability invocations. Text may accompany invocations.
type Step struct {
	Text        string
	Invocations []Invocation
}

// Final reports whether the step ends the run.
func (s Step) Final() bool {
	return len(s.Invocations) == 0
}

// Planner decides the next step given the transcript so far and the
// advertised capabilities. Implementations wrap a language model; the loop
// treats them as a black box.
type Planner interface {
	NextTurn(ctx context.Context, transcript Transcript, tools []mcp.Tool) (Step, error)
}

// PlannerFunc adapts a function to the Planner interface.
type PlannerFunc func(ctx context.Context, transcript Transcript, tools []mcp.Tool) (Step, error)

// NextTurn calls f.
func (f PlannerFunc) NextTurn(ctx context.Context, transcript Transcript, tools []mcp.Tool) (Step, error) {
	return f(ctx, transcript, tools)
}
