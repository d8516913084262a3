package reasoning

import (
	"context"
	"encoding/json"

	"courserag/internal/tools"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Block is one piece of message content.
type Block interface{ isBlock() }

type TextBlock struct {
	Text string
}

// ToolUseBlock is an assistant's request to run a tool.
type ToolUseBlock struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResultBlock answers the ToolUseBlock with the same ID.
type ToolResultBlock struct {
	ToolUseID string
	Content   string
	IsError   bool
}

func (TextBlock) isBlock()       {}
func (ToolUseBlock) isBlock()    {}
func (ToolResultBlock) isBlock() {}

type Message struct {
	Role    Role
	Content []Block
}

func UserText(text string) Message {
	return Message{Role: RoleUser, Content: []Block{TextBlock{Text: text}}}
}

func AssistantText(text string) Message {
	return Message{Role: RoleAssistant, Content: []Block{TextBlock{Text: text}}}
}

type ToolChoice int

const (
	// ToolChoiceAuto lets the engine decide whether to call tools.
	ToolChoiceAuto ToolChoice = iota
	// ToolChoiceNone forbids tool calls; the engine must answer.
	ToolChoiceNone
)

type Request struct {
	System     string
	Messages   []Message
	Tools      []tools.Definition
	ToolChoice ToolChoice
}

// Response is either an Answer or ToolRequests.
type Response interface{ isResponse() }

// Answer is a terminal natural-language reply.
type Answer struct {
	Text string
}

// ToolCall is a single tool invocation requested by the engine.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolRequests asks the caller to run Calls and report their results.
// Text carries any prose the engine emitted alongside the calls.
type ToolRequests struct {
	Text  string
	Calls []ToolCall
}

func (Answer) isResponse()       {}
func (ToolRequests) isResponse() {}

// Engine is an external reasoning model.
type Engine interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// ResponseText returns the prose of any response.
func ResponseText(r Response) string {
	switch v := r.(type) {
	case Answer:
		return v.Text
	case ToolRequests:
		return v.Text
	}
	return ""
}
