// Package stream pushes persona chats and workflow phases to clients as
// server-sent events.
package stream

import (
	"encoding/json"
	"time"

	"github.com/kazz187/novelguild/internal/generation"
	"github.com/kazz187/novelguild/internal/persona"
	"github.com/kazz187/novelguild/internal/workflow"
)

type Type string

const (
	TypeChatStart        Type = "chat-start"
	TypePhaseStart       Type = "phase-start"
	TypeContentChunk     Type = "content-chunk"
	TypePhaseComplete    Type = "phase-complete"
	TypeWorkflowComplete Type = "workflow-complete"
	TypeChatComplete     Type = "chat-complete"
	TypeError            Type = "error"
)

// Terminal reports whether t ends a session.
func (t Type) Terminal() bool {
	switch t {
	case TypePhaseComplete, TypeWorkflowComplete, TypeChatComplete, TypeError:
		return true
	case TypeChatStart, TypePhaseStart, TypeContentChunk:
		return false
	default:
		return false
	}
}

// Error codes carried by TypeError events.
const (
	CodeRoleStream     = "ROLE_STREAM_ERROR"
	CodeWorkflowStream = "WORKFLOW_STREAM_ERROR"
)

type Event struct {
	Type      Type      `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Frame encodes e as a single "data:" block terminated by a blank line.
func (e *Event) Frame() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(b)+8)
	out = append(out, "data: "...)
	out = append(out, b...)
	out = append(out, "\n\n"...)
	return out, nil
}

type ChatStart struct {
	Role      persona.ID `json:"role"`
	Timestamp time.Time  `json:"timestamp"`
}

type ContentChunk struct {
	Content string         `json:"content"`
	Role    persona.ID     `json:"role"`
	Phase   workflow.Phase `json:"phase,omitempty"`
}

type ChatComplete struct {
	Role       persona.ID       `json:"role"`
	Content    string           `json:"content"`
	Timestamp  time.Time        `json:"timestamp"`
	TokenUsage generation.Usage `json:"tokenUsage"`
}

type PhaseStart struct {
	WorkflowID string         `json:"workflowId"`
	Phase      workflow.Phase `json:"phase"`
	PhaseName  string         `json:"phaseName"`
	Role       persona.ID     `json:"role"`
	Timestamp  time.Time      `json:"timestamp"`
}

type PhaseComplete struct {
	CurrentPhase workflow.Phase      `json:"currentPhase"`
	NextPhase    workflow.Phase      `json:"nextPhase,omitempty"`
	CanContinue  bool                `json:"canContinue"`
	Content      string              `json:"content"`
	Quality      int                 `json:"quality"`
	NextAction   workflow.NextAction `json:"nextAction"`
	Progress     workflow.Progress   `json:"progress"`
}

type WorkflowComplete struct {
	WorkflowID  string    `json:"workflowId"`
	Content     string    `json:"content"`
	CompletedAt time.Time `json:"completedAt"`
}

type ErrorData struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}
