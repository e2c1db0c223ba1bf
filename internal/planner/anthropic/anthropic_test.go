package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/quill/internal/agent"
	"github.com/starford/quill/internal/capability"
	"github.com/starford/quill/internal/notes"
	"github.com/starford/quill/internal/testutil"
)

const toolUseResponse = `{
  "id": "msg_1", "type": "message", "role": "assistant", "model": "claude-test",
  "content": [
    {"type": "text", "text": "Let me check."},
    {"type": "tool_use", "id": "toolu_1", "name": "read_note", "input": {"filepath": "nonexistent.txt"}}
  ],
  "stop_reason": "tool_use", "stop_sequence": null,
  "usage": {"input_tokens": 10, "output_tokens": 5}
}`

const textResponse = `{
  "id": "msg_2", "type": "message", "role": "assistant", "model": "claude-test",
  "content": [{"type": "text", "text": "That note does not exist."}],
  "stop_reason": "end_turn", "stop_sequence": null,
  "usage": {"input_tokens": 10, "output_tokens": 5}
}`

type capturedRequest struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	System    []struct {
		Text string `json:"text"`
	} `json:"system"`
	Messages []struct {
		Role    string           `json:"role"`
		Content []map[string]any `json:"content"`
	} `json:"messages"`
	Tools []struct {
		Name        string         `json:"name"`
		InputSchema map[string]any `json:"input_schema"`
	} `json:"tools"`
}

func mockServer(t *testing.T, responses ...string) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var reqs []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		body, _ := io.ReadAll(r.Body)
		var c capturedRequest
		if !assert.NoError(t, json.Unmarshal(body, &c)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		reqs = append(reqs, c)

		w.Header().Set("Content-Type", "application/json")
		if len(reqs) > len(responses) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"type":"error","error":{"type":"invalid_request_error","message":"no more responses"}}`)
			return
		}
		_, _ = io.WriteString(w, responses[len(reqs)-1])
	}))
	t.Cleanup(srv.Close)
	return srv, &reqs
}

func testPlanner(t *testing.T, srv *httptest.Server) *Planner {
	t.Helper()
	p, err := NewPlanner(
		WithModel("claude-test"),
		WithAPIKey("test-key"),
		WithBaseURL(srv.URL+"/"),
	)
	require.NoError(t, err)
	return p
}

func testTools(t *testing.T) *capability.Registry {
	t.Helper()
	_, store := testutil.TestNotes(t)
	return capability.NewRegistry(notes.NewNotebook(store, nil))
}

func TestNextTurnToolUse(t *testing.T) {
	srv, reqs := mockServer(t, toolUseResponse)
	p := testPlanner(t, srv)

	tr := agent.Transcript{
		{Role: agent.RoleSystem, Content: "be helpful"},
		{Role: agent.RoleUser, Content: "Read nonexistent.txt"},
	}
	step, err := p.NextTurn(context.Background(), tr, testTools(t).Tools())
	require.NoError(t, err)

	assert.Equal(t, "Let me check.", step.Text)
	require.Len(t, step.Invocations, 1)
	assert.Equal(t, "toolu_1", step.Invocations[0].ID)
	assert.Equal(t, capability.ReadNote, step.Invocations[0].Name)
	assert.JSONEq(t, `{"filepath":"nonexistent.txt"}`, string(step.Invocations[0].Arguments))

	got := (*reqs)[0]
	assert.Equal(t, "claude-test", got.Model)
	assert.Equal(t, DefaultMaxTokens, got.MaxTokens)
	require.Len(t, got.System, 1)
	assert.Equal(t, "be helpful", got.System[0].Text)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	require.Len(t, got.Tools, 2)
	assert.Equal(t, "write_note", got.Tools[1].Name)
	assert.ElementsMatch(t, []any{"filepath", "content"}, got.Tools[1].InputSchema["required"])
}

func TestConvertTranscriptGroupsToolResults(t *testing.T) {
	srv, reqs := mockServer(t, textResponse)
	p := testPlanner(t, srv)

	tr := agent.Transcript{
		{Role: agent.RoleSystem, Content: "sys"},
		{Role: agent.RoleUser, Content: "write two"},
		{Role: agent.RolePlanner, Invocations: []agent.Invocation{
			{ID: "t1", Name: "write_note", Arguments: []byte(`{"filepath":"a.txt","content":"a"}`)},
			{ID: "t2", Name: "read_note", Arguments: []byte(`{"filepath":"b.txt"}`)},
		}},
		{Role: agent.RoleCapability, CallID: "t1", Content: "Successfully wrote 1 characters to 'a.txt'."},
		{Role: agent.RoleCapability, CallID: "t2", Content: "Error: Note 'b.txt' not found.", Failed: true},
	}
	step, err := p.NextTurn(context.Background(), tr, testTools(t).Tools())
	require.NoError(t, err)
	assert.True(t, step.Final())
	assert.Equal(t, "That note does not exist.", step.Text)

	msgs := (*reqs)[0].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, "assistant", msgs[1].Role)
	require.Len(t, msgs[1].Content, 2)
	assert.Equal(t, "tool_use", msgs[1].Content[0]["type"])
	assert.Equal(t, "user", msgs[2].Role)
	require.Len(t, msgs[2].Content, 2)
	assert.Equal(t, "tool_result", msgs[2].Content[0]["type"])
	assert.Equal(t, "t1", msgs[2].Content[0]["tool_use_id"])
	assert.Equal(t, true, msgs[2].Content[1]["is_error"])
}

func TestPlannerDrivesAgent(t *testing.T) {
	srv, _ := mockServer(t, toolUseResponse, textResponse)
	p := testPlanner(t, srv)

	a, err := agent.New(p, testTools(t))
	require.NoError(t, err)

	out := a.Run(context.Background(), "Read nonexistent.txt")
	require.NoError(t, out.Err)
	assert.Equal(t, "That note does not exist.", out.Reply)
	assert.Empty(t, out.Filename)
}

func TestNextTurnAPIError(t *testing.T) {
	srv, _ := mockServer(t)
	p := testPlanner(t, srv)

	_, err := p.NextTurn(context.Background(), agent.Transcript{{Role: agent.RoleUser, Content: "hi"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic: messages")
}

func TestNewPlannerDefaults(t *testing.T) {
	p, err := NewPlanner(WithAPIKey("k"), WithMaxTokens(0))
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, p.model)
	assert.Equal(t, DefaultMaxTokens, p.maxTokens)
}
