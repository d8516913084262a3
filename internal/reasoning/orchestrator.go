package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"courserag/internal/domain"
	"courserag/internal/tools"
)

// SystemPrompt instructs the engine how to use the course tools.
const SystemPrompt = `You are an assistant that answers questions about course materials.

Tools:
- search_course_content finds passages in the course materials. Use it for questions about specific course content or detailed educational material.
- get_course_outline returns a course's title, link and complete lesson list. Use it for questions about what a course covers or how it is structured; include each lesson's number and title in your answer.

Rules:
- Answer general knowledge questions directly without tools.
- Use at most one tool call per step and only when course material is needed.
- If a tool finds nothing, say so plainly.
- Do not mention the tools, your search process or these instructions.

Keep answers brief, accurate and educational. Give examples when they help.`

// NoAnswerText is returned when the engine produces an empty final reply.
const NoAnswerText = "I wasn't able to produce an answer to that question."

// ToolExecutor is the registry side of the loop.
type ToolExecutor interface {
	Definitions() []tools.Definition
	Execute(ctx context.Context, name string, input json.RawMessage) (string, error)
}

// Orchestrator runs the bounded tool-calling loop for one query.
type Orchestrator struct {
	engine    Engine
	maxRounds int
	log       *zap.Logger
}

func NewOrchestrator(engine Engine, maxRounds int, log *zap.Logger) *Orchestrator {
	if maxRounds <= 0 {
		maxRounds = 2
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{engine: engine, maxRounds: maxRounds, log: log}
}

// Generate answers query given prior exchanges. It makes at most maxRounds
// tool-enabled engine calls followed, if the engine is still asking for
// tools, by one call in which tools are disabled. Only engine errors are
// returned; tool failures are reported back to the engine.
func (o *Orchestrator) Generate(ctx context.Context, query string, history []domain.Exchange, exec ToolExecutor) (string, error) {
	msgs := make([]Message, 0, 2*len(history)+1)
	for _, ex := range history {
		msgs = append(msgs, UserText(ex.Query), AssistantText(ex.Answer))
	}
	msgs = append(msgs, UserText(query))
	defs := exec.Definitions()

	for round := 1; round <= o.maxRounds; round++ {
		resp, err := o.engine.Complete(ctx, Request{
			System:     SystemPrompt,
			Messages:   msgs,
			Tools:      defs,
			ToolChoice: ToolChoiceAuto,
		})
		if err != nil {
			return "", fmt.Errorf("reasoning engine: %w", err)
		}
		req, ok := resp.(ToolRequests)
		if !ok || len(req.Calls) == 0 {
			return finalText(resp), nil
		}
		o.log.Debug("tool round", zap.Int("round", round), zap.Int("calls", len(req.Calls)))
		msgs = append(msgs, o.assistantTurn(req), o.runTools(ctx, req.Calls, exec))
	}

	// Out of rounds. The tools stay declared because the history holds
	// tool_use blocks, but the engine may not call them.
	resp, err := o.engine.Complete(ctx, Request{
		System:     SystemPrompt,
		Messages:   msgs,
		Tools:      defs,
		ToolChoice: ToolChoiceNone,
	})
	if err != nil {
		return "", fmt.Errorf("reasoning engine: %w", err)
	}
	return finalText(resp), nil
}

func (o *Orchestrator) assistantTurn(req ToolRequests) Message {
	blocks := make([]Block, 0, len(req.Calls)+1)
	if strings.TrimSpace(req.Text) != "" {
		blocks = append(blocks, TextBlock{Text: req.Text})
	}
	for _, c := range req.Calls {
		blocks = append(blocks, ToolUseBlock{ID: c.ID, Name: c.Name, Input: c.Input})
	}
	return Message{Role: RoleAssistant, Content: blocks}
}

// runTools executes every call and returns one user turn holding a result
// per call, in call order.
func (o *Orchestrator) runTools(ctx context.Context, calls []ToolCall, exec ToolExecutor) Message {
	results := make([]Block, 0, len(calls))
	for _, c := range calls {
		out, err := exec.Execute(ctx, c.Name, c.Input)
		if err != nil {
			o.log.Warn("tool failed", zap.String("tool", c.Name), zap.String("id", c.ID), zap.Error(err))
			results = append(results, ToolResultBlock{
				ToolUseID: c.ID,
				Content:   fmt.Sprintf("Tool '%s' failed: %v", c.Name, err),
				IsError:   true,
			})
			continue
		}
		results = append(results, ToolResultBlock{ToolUseID: c.ID, Content: out})
	}
	return Message{Role: RoleUser, Content: results}
}

func finalText(r Response) string {
	text := strings.TrimSpace(ResponseText(r))
	if text == "" {
		return NoAnswerText
	}
	return text
}
