// Package openai implements agent.Planner on the OpenAI chat completions
// API with function tools.
//
// Example:
//
//	planner, err := openai.NewPlanner(
//	    openai.WithModel("gpt-4.1-nano-2025-04-14"),
//	    openai.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	)
package openai

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/starford/quill/internal/agent"
	"github.com/starford/quill/internal/capability"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4.1-nano-2025-04-14"

// Planner asks an OpenAI-compatible model for the next step.
type Planner struct {
	client      openai.Client
	model       string
	temperature float64
	opts        []option.RequestOption
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithModel sets the model to use for completions.
func WithModel(model string) PlannerOption {
	return func(p *Planner) {
		if model != "" {
			p.model = model
		}
	}
}

// WithAPIKey sets the API key. When unset the SDK reads OPENAI_API_KEY.
func WithAPIKey(key string) PlannerOption {
	return func(p *Planner) {
		if key != "" {
			p.opts = append(p.opts, option.WithAPIKey(key))
		}
	}
}

// WithBaseURL points the planner at an OpenAI-compatible API.
func WithBaseURL(baseURL string) PlannerOption {
	return func(p *Planner) {
		if baseURL != "" {
			p.opts = append(p.opts, option.WithBaseURL(baseURL))
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

// WithRequestOptions appends raw SDK request options.
func WithRequestOptions(opts ...option.RequestOption) PlannerOption {
	return func(p *Planner) {
		p.opts = append(p.opts, opts...)
	}
}

// NewPlanner creates a Planner. Temperature defaults to 0.
func NewPlanner(opts ...PlannerOption) (*Planner, error) {
	p := &Planner{model: DefaultModel}
	for _, opt := range opts {
		opt(p)
	}
	p.client = openai.NewClient(p.opts...)
	return p, nil
}

var _ agent.Planner = (*Planner)(nil)

// NextTurn sends the transcript and tool schemas and maps the first choice
// back to a Step.
func (p *Planner) NextTurn(ctx context.Context, tr agent.Transcript, tools []mcp.Tool) (agent.Step, error) {
	toolParams, err := convertTools(tools)
	if err != nil {
		return agent.Step{}, err
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(p.model),
		Messages:    convertTranscript(tr),
		Temperature: openai.Float(p.temperature),
	}
	if len(toolParams) > 0 {
		params.Tools = toolParams
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return agent.Step{}, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return agent.Step{}, fmt.Errorf("openai: response has no choices")
	}

	msg := resp.Choices[0].Message
	step := agent.Step{Text: msg.Content}
	for _, tc := range msg.ToolCalls {
		step.Invocations = append(step.Invocations, agent.Invocation{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: []byte(tc.Function.Arguments),
		})
	}
	return step, nil
}

func convertTools(tools []mcp.Tool) ([]openai.ChatCompletionToolParam, error) {
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		schema, err := capability.Parameters(t)
		if err != nil {
			return nil, fmt.Errorf("openai: %w", err)
		}
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  openai.FunctionParameters(schema),
			},
		})
	}
	return out, nil
}

func convertTranscript(tr agent.Transcript) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(tr))
	for _, turn := range tr {
		switch turn.Role {
		case agent.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(turn.Content))
		case agent.RoleUser:
			msgs = append(msgs, openai.UserMessage(turn.Content))
		case agent.RolePlanner:
			msgs = append(msgs, assistantMessage(turn))
		case agent.RoleCapability:
			msgs = append(msgs, openai.ToolMessage(turn.Content, turn.CallID))
		}
	}
	return msgs
}

func assistantMessage(turn agent.Turn) openai.ChatCompletionMessageParamUnion {
	if len(turn.Invocations) == 0 {
		return openai.AssistantMessage(turn.Content)
	}
	asst := openai.ChatCompletionAssistantMessageParam{}
	if turn.Content != "" {
		asst.Content.OfString = openai.String(turn.Content)
	}
	for _, inv := range turn.Invocations {
		args := string(inv.Arguments)
		if args == "" {
			args = "{}"
		}
		asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallParam{
			ID: inv.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      inv.Name,
				Arguments: args,
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &asst}
}
