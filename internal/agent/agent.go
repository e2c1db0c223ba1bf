// Package agent runs the planning loop: it alternates between asking a
// planner for its next step and executing the capabilities it requests,
// until the planner answers or the turn ceiling is reached.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/notes"
)

// DefaultMaxTurns bounds planner round trips per run.
const DefaultMaxTurns = 25

// DefaultSystemPrompt seeds every transcript.
const DefaultSystemPrompt = "You are a helpful note-taking assistant. " +
	"You can read and write text files to help users manage their notes. " +
	"Be concise and helpful."

// Capabilities is the capability set the loop advertises and executes.
type Capabilities interface {
	Tools() []mcp.Tool
	Invoke(ctx context.Context, name string, args json.RawMessage) (notes.Result, error)
}

// Outcome is the result of one run.
type Outcome struct {
	Reply    string
	Filename string // most recent successful write; empty if none
	Turns    int    // planner calls made
	Err      error  // set when the run failed; Reply then describes the error
}

// HasFile reports whether the run wrote a note worth linking.
func (o Outcome) HasFile() bool {
	return o.Filename != ""
}

// Option configures an Agent.
type Option func(*Agent)

// WithMaxTurns sets the round-trip ceiling. Values below 1 are ignored.
func WithMaxTurns(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxTurns = n
		}
	}
}

// WithSystemPrompt replaces the persona directive.
func WithSystemPrompt(prompt string) Option {
	return func(a *Agent) {
		if prompt != "" {
			a.systemPrompt = prompt
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// Agent drives a Planner over a fixed capability set. It holds no per-run
// state, so one Agent serves concurrent runs.
type Agent struct {
	planner      Planner
	caps         Capabilities
	maxTurns     int
	systemPrompt string
	logger       *slog.Logger
}

// New creates an Agent.
func New(planner Planner, caps Capabilities, opts ...Option) (*Agent, error) {
	if planner == nil {
		return nil, errors.New("agent: planner is required")
	}
	if caps == nil {
		return nil, errors.New("agent: capabilities are required")
	}
	a := &Agent{
		planner:      planner,
		caps:         caps,
		maxTurns:     DefaultMaxTurns,
		systemPrompt: DefaultSystemPrompt,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Run executes the loop for one prompt. It never returns a raw error:
// planner failures, malformed invocations, cancellation and the turn ceiling
// all end in an Outcome with Err set and no Filename.
//
// Capability calls run to completion even if ctx is cancelled mid-call;
// cancellation is honoured before the next planner turn.
func (a *Agent) Run(ctx context.Context, prompt string) Outcome {
	logger := a.logger.With(slog.String("run_id", uuid.NewString()))
	start := time.Now()
	logger.Info("agent run started", slog.Int("max_turns", a.maxTurns))

	transcript := Transcript{
		{Role: RoleSystem, Content: a.systemPrompt},
		{Role: RoleUser, Content: prompt},
	}
	tools := a.caps.Tools()

	var (
		writes  []notes.Write
		partial string
	)

	finish := func(out Outcome) Outcome {
		attrs := []any{
			slog.Int("turns", out.Turns),
			slog.String("filename", out.Filename),
			slog.Duration("duration", time.Since(start)),
		}
		if out.Err != nil {
			logger.Warn("agent run failed", append(attrs, slog.String("error", out.Err.Error()))...)
		} else {
			logger.Info("agent run finished", attrs...)
		}
		return out
	}

	for turn := 1; ; turn++ {
		if turn > a.maxTurns {
			err := fmt.Errorf("%w: no final answer after %d turns", apperr.ErrTurnLimit, a.maxTurns)
			return finish(failed(err, partial, turn-1))
		}
		if err := ctx.Err(); err != nil {
			return finish(failed(fmt.Errorf("agent: run cancelled: %w", err), "", turn-1))
		}

		logger.Debug("planner turn", slog.Int("turn", turn), slog.Int("transcript_len", len(transcript)))
		step, err := a.planner.NextTurn(ctx, transcript[:len(transcript):len(transcript)], tools)
		if err != nil {
			return finish(failed(fmt.Errorf("agent: planner: %w", err), "", turn))
		}

		transcript = append(transcript, Turn{
			Role:        RolePlanner,
			Content:     step.Text,
			Invocations: step.Invocations,
		})
		if step.Final() {
			filename := lastWrite(writes)
			if fromText, _ := extractWrittenFilename(transcript); fromText != filename {
				logger.Warn("write record disagrees with result text",
					slog.String("filename", filename),
					slog.String("text_filename", fromText))
			}
			return finish(Outcome{Reply: step.Text, Filename: filename, Turns: turn})
		}
		if step.Text != "" {
			partial = step.Text
		}

		for _, inv := range step.Invocations {
			res, err := a.caps.Invoke(context.WithoutCancel(ctx), inv.Name, inv.Arguments)
			if err != nil {
				return finish(failed(err, "", turn))
			}
			logger.Info("capability invoked",
				slog.Int("turn", turn),
				slog.String("capability", inv.Name),
				slog.String("status", res.Status.String()))

			transcript = append(transcript, Turn{
				Role:       RoleCapability,
				Content:    res.Text,
				CallID:     inv.ID,
				Capability: inv.Name,
				Failed:     !res.OK(),
			})
			if res.Written != nil {
				writes = append(writes, *res.Written)
			}
		}
	}
}

func failed(err error, partial string, turns int) Outcome {
	reply := "Error: " + err.Error()
	if partial != "" {
		reply = partial + "\n\n" + reply
	}
	return Outcome{Reply: reply, Turns: turns, Err: err}
}
