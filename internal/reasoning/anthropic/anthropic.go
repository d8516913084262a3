package anthropic

import (
	"context"
	"fmt"
	"os"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"courserag/internal/reasoning"
	"courserag/internal/tools"
)

// MessagesClient is the subset of the SDK used here, so tests can substitute it.
type MessagesClient interface {
	New(ctx context.Context, params sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

type Config struct {
	APIKeyEnv   string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
}

// Engine adapts the Anthropic Messages API to reasoning.Engine.
type Engine struct {
	client      MessagesClient
	model       string
	maxTokens   int64
	temperature float64
}

var _ reasoning.Engine = (*Engine)(nil)

// New builds an engine backed by the real API.
func New(cfg Config) (*Engine, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	client := sdk.NewClient(opts...)
	return NewWithClient(&client.Messages, cfg), nil
}

// NewWithClient builds an engine around an existing messages client.
func NewWithClient(client MessagesClient, cfg Config) *Engine {
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 800
	}
	return &Engine{
		client:      client,
		model:       cfg.Model,
		maxTokens:   int64(cfg.MaxTokens),
		temperature: cfg.Temperature,
	}
}

func (e *Engine) Complete(ctx context.Context, req reasoning.Request) (reasoning.Response, error) {
	params, err := e.buildParams(req)
	if err != nil {
		return nil, err
	}
	msg, err := e.client.New(ctx, params)
	if err != nil {
		return nil, err
	}
	return convertResponse(msg), nil
}

func (e *Engine) buildParams(req reasoning.Request) (sdk.MessageNewParams, error) {
	msgs, err := convertMessages(req.Messages)
	if err != nil {
		return sdk.MessageNewParams{}, err
	}
	params := sdk.MessageNewParams{
		Model:       sdk.Model(e.model),
		MaxTokens:   e.maxTokens,
		Messages:    msgs,
		Temperature: sdk.Float(e.temperature),
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
		switch req.ToolChoice {
		case reasoning.ToolChoiceNone:
			params.ToolChoice = sdk.ToolChoiceUnionParam{OfNone: &sdk.ToolChoiceNoneParam{}}
		default:
			params.ToolChoice = sdk.ToolChoiceUnionParam{OfAuto: &sdk.ToolChoiceAutoParam{}}
		}
	}
	return params, nil
}

func convertMessages(messages []reasoning.Message) ([]sdk.MessageParam, error) {
	out := make([]sdk.MessageParam, 0, len(messages))
	for _, m := range messages {
		blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Content))
		for _, b := range m.Content {
			switch v := b.(type) {
			case reasoning.TextBlock:
				blocks = append(blocks, sdk.NewTextBlock(v.Text))
			case reasoning.ToolUseBlock:
				var input any = map[string]any{}
				if len(v.Input) > 0 {
					input = v.Input
				}
				blocks = append(blocks, sdk.ContentBlockParamUnion{
					OfToolUse: &sdk.ToolUseBlockParam{ID: v.ID, Name: v.Name, Input: input},
				})
			case reasoning.ToolResultBlock:
				blocks = append(blocks, sdk.NewToolResultBlock(v.ToolUseID, v.Content, v.IsError))
			default:
				return nil, fmt.Errorf("unsupported content block %T", b)
			}
		}
		switch m.Role {
		case reasoning.RoleUser:
			out = append(out, sdk.NewUserMessage(blocks...))
		case reasoning.RoleAssistant:
			out = append(out, sdk.NewAssistantMessage(blocks...))
		default:
			return nil, fmt.Errorf("unsupported role %q", m.Role)
		}
	}
	return out, nil
}

func convertTools(defs []tools.Definition) []sdk.ToolUnionParam {
	out := make([]sdk.ToolUnionParam, len(defs))
	for i, d := range defs {
		out[i] = sdk.ToolUnionParam{
			OfTool: &sdk.ToolParam{
				Name:        d.Name,
				Description: sdk.String(d.Description),
				InputSchema: sdk.ToolInputSchemaParam{
					Type:       "object",
					Properties: d.Parameters.Properties,
					Required:   d.Parameters.Required,
				},
			},
		}
	}
	return out
}

// convertResponse decodes the reply once into the tagged response type.
func convertResponse(msg *sdk.Message) reasoning.Response {
	var (
		text  string
		calls []reasoning.ToolCall
	)
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text += block.Text
		case "tool_use":
			calls = append(calls, reasoning.ToolCall{ID: block.ID, Name: block.Name, Input: block.Input})
		}
	}
	if msg.StopReason == sdk.StopReasonToolUse && len(calls) > 0 {
		return reasoning.ToolRequests{Text: text, Calls: calls}
	}
	return reasoning.Answer{Text: text}
}
