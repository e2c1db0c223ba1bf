package openai

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

const toolCallResponse = `{
  "id": "chatcmpl-1", "object": "chat.completion", "created": 1700000000, "model": "gpt-test",
  "choices": [{
    "index": 0, "finish_reason": "tool_calls",
    "message": {
      "role": "assistant", "content": null,
      "tool_calls": [{
        "id": "call_1", "type": "function",
        "function": {"name": "write_note", "arguments": "{\"filepath\":\"shopping.txt\",\"content\":\"Buy milk\"}"}
      }]
    }
  }]
}`

const finalResponse = `{
  "id": "chatcmpl-2", "object": "chat.completion", "created": 1700000001, "model": "gpt-test",
  "choices": [{
    "index": 0, "finish_reason": "stop",
    "message": {"role": "assistant", "content": "Saved to shopping.txt."}
  }]
}`

type capturedRequest struct {
	Model       string           `json:"model"`
	Temperature *float64         `json:"temperature"`
	Messages    []map[string]any `json:"messages"`
	Tools       []struct {
		Type     string `json:"type"`
		Function struct {
			Name        string         `json:"name"`
			Description string         `json:"description"`
			Parameters  map[string]any `json:"parameters"`
		} `json:"function"`
	} `json:"tools"`
}

func mockServer(t *testing.T, responses ...string) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var reqs []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		var c capturedRequest
		if !assert.NoError(t, json.Unmarshal(body, &c)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		reqs = append(reqs, c)

		w.Header().Set("Content-Type", "application/json")
		if len(reqs) > len(responses) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"error":{"message":"no more responses"}}`)
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
		WithModel("gpt-test"),
		WithAPIKey("test-key"),
		WithBaseURL(srv.URL+"/"),
		WithMaxRetries(0),
	)
	require.NoError(t, err)
	return p
}

func testRegistry(t *testing.T) *capability.Registry {
	t.Helper()
	_, store := testutil.TestNotes(t)
	return capability.NewRegistry(notes.NewNotebook(store, nil))
}

func TestNextTurnToolCall(t *testing.T) {
	srv, reqs := mockServer(t, toolCallResponse)
	p := testPlanner(t, srv)
	reg := testRegistry(t)

	tr := agent.Transcript{
		{Role: agent.RoleSystem, Content: "sys"},
		{Role: agent.RoleUser, Content: "Save 'Buy milk' to shopping.txt"},
	}
	step, err := p.NextTurn(context.Background(), tr, reg.Tools())
	require.NoError(t, err)

	require.Len(t, step.Invocations, 1)
	inv := step.Invocations[0]
	assert.Equal(t, "call_1", inv.ID)
	assert.Equal(t, capability.WriteNote, inv.Name)
	assert.JSONEq(t, `{"filepath":"shopping.txt","content":"Buy milk"}`, string(inv.Arguments))
	assert.False(t, step.Final())

	require.Len(t, *reqs, 1)
	got := (*reqs)[0]
	assert.Equal(t, "gpt-test", got.Model)
	require.NotNil(t, got.Temperature)
	assert.Equal(t, 0.0, *got.Temperature)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0]["role"])
	assert.Equal(t, "user", got.Messages[1]["role"])
	require.Len(t, got.Tools, 2)
	assert.Equal(t, "read_note", got.Tools[0].Function.Name)
	assert.Equal(t, "write_note", got.Tools[1].Function.Name)
	assert.Equal(t, "object", got.Tools[1].Function.Parameters["type"])
}

func TestNextTurnSendsToolResults(t *testing.T) {
	srv, reqs := mockServer(t, finalResponse)
	p := testPlanner(t, srv)

	tr := agent.Transcript{
		{Role: agent.RoleSystem, Content: "sys"},
		{Role: agent.RoleUser, Content: "save it"},
		{Role: agent.RolePlanner, Invocations: []agent.Invocation{{
			ID: "call_1", Name: "write_note", Arguments: []byte(`{"filepath":"a.txt","content":"x"}`),
		}}},
		{Role: agent.RoleCapability, CallID: "call_1", Capability: "write_note",
			Content: "Successfully wrote 1 characters to 'a.txt'."},
	}
	step, err := p.NextTurn(context.Background(), tr, testRegistry(t).Tools())
	require.NoError(t, err)
	assert.True(t, step.Final())
	assert.Equal(t, "Saved to shopping.txt.", step.Text)

	msgs := (*reqs)[0].Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, "assistant", msgs[2]["role"])
	calls, _ := msgs[2]["tool_calls"].([]any)
	require.Len(t, calls, 1)
	assert.Equal(t, "tool", msgs[3]["role"])
	assert.Equal(t, "call_1", msgs[3]["tool_call_id"])
	assert.Equal(t, "Successfully wrote 1 characters to 'a.txt'.", msgs[3]["content"])
}

func TestNextTurnAPIError(t *testing.T) {
	srv, _ := mockServer(t)
	p := testPlanner(t, srv)

	_, err := p.NextTurn(context.Background(), agent.Transcript{{Role: agent.RoleUser, Content: "hi"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai: chat completion")
}

func TestPlannerDrivesAgent(t *testing.T) {
	srv, _ := mockServer(t, toolCallResponse, finalResponse)
	p := testPlanner(t, srv)

	root, store := testutil.TestNotes(t)
	a, err := agent.New(p, capability.NewRegistry(notes.NewNotebook(store, nil)))
	require.NoError(t, err)

	out := a.Run(context.Background(), "Save 'Buy milk' to shopping.txt")
	require.NoError(t, out.Err)
	assert.Equal(t, "shopping.txt", out.Filename)
	assert.Equal(t, "Saved to shopping.txt.", out.Reply)
	assert.FileExists(t, root+"/shopping.txt")
}

func TestDefaultModel(t *testing.T) {
	p, err := NewPlanner(WithAPIKey("k"))
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, p.model)
}
