package agent

import "encoding/json"

// Role identifies who produced a turn.
type Role string

const (
	RoleSystem     Role = "system"
	RoleUser       Role = "user"
	RolePlanner    Role = "assistant"
	RoleCapability Role = "tool"
)

// Invocation is a planner request to run one capability.
type Invocation struct {
	ID        string          // provider call id, echoed back on the result turn
	Name      string          // capability name
	Arguments json.RawMessage // JSON object
}

// Turn is one entry of a transcript.
type Turn struct {
	Role    Role
	Content string

	// Planner turns only.
	Invocations []Invocation

	// Capability turns only.
	CallID     string
	Capability string
	Failed     bool
}

// Transcript is the ordered record of one run. It is append-only while the
// loop runs and is discarded afterwards.
type Transcript []Turn

// System returns the content of the leading system turn, if any.
func (t Transcript) System() string {
	if len(t) > 0 && t[0].Role == RoleSystem {
		return t[0].Content
	}
	return ""
}

// Conversation returns the transcript without its system turn.
func (t Transcript) Conversation() Transcript {
	if len(t) > 0 && t[0].Role == RoleSystem {
		return t[1:]
	}
	return t
}
