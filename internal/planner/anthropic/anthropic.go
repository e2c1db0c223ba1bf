// Package anthropic implements agent.Planner on the Anthropic messages API
// with tool use.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/quill/internal/agent"
	"github.com/starford/quill/internal/capability"
)

// DefaultModel is the Claude Haiku 3 model ID.
const DefaultModel = "claude-3-haiku-20240307"

// DefaultMaxTokens caps each planner response.
const DefaultMaxTokens = 1024

// Planner asks a Claude model for the next step.
type Planner struct {
	client      anthropic.Client
	model       string
	maxTokens   int
	temperature float64
	opts        []option.RequestOption
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithModel sets the model.
func WithModel(model string) PlannerOption {
	return func(p *Planner) {
		if model != "" {
			p.model = model
		}
	}
}

// WithAPIKey sets the API key. When unset the SDK reads ANTHROPIC_API_KEY.
func WithAPIKey(key string) PlannerOption {
	return func(p *Planner) {
		if key != "" {
			p.opts = append(p.opts, option.WithAPIKey(key))
		}
	}
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(baseURL string) PlannerOption {
	return func(p *Planner) {
		if baseURL != "" {
			p.opts = append(p.opts, option.WithBaseURL(baseURL))
		}
	}
}

// WithMaxTokens caps each response.
func WithMaxTokens(n int) PlannerOption {
	return func(p *Planner) {
		if n > 0 {
			p.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) PlannerOption {
	return func(p *Planner) {
		p.temperature = t
	}
}

// WithMaxRetries sets how often the SDK retries failed requests.
func WithMaxRetries(n int) PlannerOption {
	return func(p *Planner) {
		if n >= 0 {
			p.opts = append(p.opts, option.WithMaxRetries(n))
		}
	}
}

// NewPlanner creates a Planner.
func NewPlanner(opts ...PlannerOption) (*Planner, error) {
	p := &Planner{model: DefaultModel, maxTokens: DefaultMaxTokens}
	for _, opt := range opts {
		opt(p)
	}
	p.client = anthropic.NewClient(p.opts...)
	return p, nil
}

var _ agent.Planner = (*Planner)(nil)

// NextTurn sends the transcript and tool schemas and maps the response back
// to a Step. Text blocks are concatenated; tool_use blocks become invocations.
func (p *Planner) NextTurn(ctx context.Context, tr agent.Transcript, tools []mcp.Tool) (agent.Step, error) {
	toolParams, err := convertTools(tools)
	if err != nil {
		return agent.Step{}, err
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   int64(p.maxTokens),
		Messages:    convertTranscript(tr),
		Temperature: anthropic.Float(p.temperature),
	}
	if sys := tr.System(); sys != "" {
		params.System = []anthropic.TextBlockParam{{Text: sys}}
	}
	if len(toolParams) > 0 {
		params.Tools = toolParams
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return agent.Step{}, fmt.Errorf("anthropic: messages: %w", err)
	}

	var (
		step agent.Step
		text strings.Builder
	)
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			step.Invocations = append(step.Invocations, agent.Invocation{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: json.RawMessage(block.Input),
			})
		}
	}
	step.Text = text.String()
	return step, nil
}

func convertTools(tools []mcp.Tool) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema, err := capability.Parameters(t)
		if err != nil {
			return nil, fmt.Errorf("anthropic: %w", err)
		}
		input := anthropic.ToolInputSchemaParam{Properties: schema["properties"]}
		if req, ok := schema["required"].([]any); ok {
			for _, r := range req {
				if s, ok := r.(string); ok {
					input.Required = append(input.Required, s)
				}
			}
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: input,
		}})
	}
	return out, nil
}

// convertTranscript maps turns to alternating user/assistant messages.
// Consecutive capability results are grouped into one user message, as the
// API requires every tool_result to follow its tool_use turn directly.
func convertTranscript(tr agent.Transcript) []anthropic.MessageParam {
	var (
		msgs    []anthropic.MessageParam
		results []anthropic.ContentBlockParamUnion
	)
	flush := func() {
		if len(results) > 0 {
			msgs = append(msgs, anthropic.NewUserMessage(results...))
			results = nil
		}
	}

	for _, turn := range tr.Conversation() {
		switch turn.Role {
		case agent.RoleUser:
			flush()
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Content)))
		case agent.RolePlanner:
			flush()
			var blocks []anthropic.ContentBlockParamUnion
			if turn.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(turn.Content))
			}
			for _, inv := range turn.Invocations {
				input := inv.Arguments
				if len(input) == 0 {
					input = json.RawMessage(`{}`)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(inv.ID, input, inv.Name))
			}
			if len(blocks) > 0 {
				msgs = append(msgs, anthropic.NewAssistantMessage(blocks...))
			}
		case agent.RoleCapability:
			results = append(results, anthropic.NewToolResultBlock(turn.CallID, turn.Content, turn.Failed))
		}
	}
	flush()
	return msgs
}
