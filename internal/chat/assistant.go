// Package chat runs one turn of the shopping assistant: the model may call MCP tools, whose
// outputs are fed back to it and mined for products to show next to the reply.
package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"henry/internal/mcp"
	"henry/internal/models"
	"henry/internal/normalize"
)

const DefaultMaxSteps = 5

var ErrToolBudget = errors.New("assistant exceeded its tool call budget")

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

type Message struct {
	Role Role   `json:"role" validate:"required,oneof=user model"`
	Text string `json:"text" validate:"required"`
}

type ToolCall struct {
	Name string
	Args map[string]any
}

type ToolOutput struct {
	Name     string
	Response map[string]any
}

// Turn is what the model produced for one request: text, tool calls, or both.
type Turn struct {
	Text  string
	Calls []ToolCall
}

// Model opens a conversation primed with history and offering tools.
type Model interface {
	StartConversation(ctx context.Context, tools []mcp.Tool, history []Message) (Conversation, error)
}

type Conversation interface {
	Send(ctx context.Context, text string) (Turn, error)
	SendToolOutputs(ctx context.Context, outputs []ToolOutput) (Turn, error)
}

type Reply struct {
	Text     string           `json:"text"`
	Products []models.Product `json:"products"`
	Tools    []string         `json:"tools,omitempty"`
}

type Assistant struct {
	model    Model
	tools    mcp.ToolCaller
	maxSteps int
}

// NewAssistant builds an assistant. tools may be nil, in which case the model answers without
// tool access.
func NewAssistant(model Model, tools mcp.ToolCaller, maxSteps int) *Assistant {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Assistant{model: model, tools: tools, maxSteps: maxSteps}
}

func (a *Assistant) Reply(ctx context.Context, history []Message, message string) (Reply, error) {
	catalog := a.catalog(ctx)

	conv, err := a.model.StartConversation(ctx, catalog, history)
	if err != nil {
		return Reply{}, fmt.Errorf("start conversation: %w", err)
	}

	turn, err := conv.Send(ctx, message)
	if err != nil {
		return Reply{}, fmt.Errorf("send message: %w", err)
	}

	reply := Reply{Products: []models.Product{}}
	seen := make(map[string]bool)

	for step := 0; len(turn.Calls) > 0; step++ {
		if step >= a.maxSteps {
			logrus.WithField("steps", step).Warn("Assistant stopped after exhausting tool budget")
			return reply, ErrToolBudget
		}

		outputs := make([]ToolOutput, 0, len(turn.Calls))
		for _, call := range turn.Calls {
			reply.Tools = append(reply.Tools, call.Name)
			out, products := a.invoke(ctx, call)
			outputs = append(outputs, out)
			for _, p := range products {
				if !seen[p.ID] {
					seen[p.ID] = true
					reply.Products = append(reply.Products, p)
				}
			}
		}

		turn, err = conv.SendToolOutputs(ctx, outputs)
		if err != nil {
			return reply, fmt.Errorf("send tool outputs: %w", err)
		}
	}

	reply.Text = turn.Text
	return reply, nil
}

func (a *Assistant) catalog(ctx context.Context) []mcp.Tool {
	if a.tools == nil {
		return nil
	}
	tools, err := a.tools.ListTools(ctx)
	if err != nil {
		logrus.WithError(err).Warn("Tool catalog unavailable, answering without tools")
		return nil
	}
	return tools
}

// invoke runs one tool call. Failures are handed back to the model as an error payload.
func (a *Assistant) invoke(ctx context.Context, call ToolCall) (ToolOutput, []models.Product) {
	if a.tools == nil {
		return ToolOutput{Name: call.Name, Response: map[string]any{"error": "tools are not available"}}, nil
	}

	res, err := a.tools.CallTool(ctx, call.Name, call.Args)
	if err != nil {
		return ToolOutput{Name: call.Name, Response: map[string]any{"error": err.Error()}}, nil
	}
	if res.IsError {
		return ToolOutput{Name: call.Name, Response: map[string]any{"error": res.Text()}}, nil
	}

	payload := res.Payload()
	products, _ := normalize.NormalizeProducts(payload)
	return ToolOutput{Name: call.Name, Response: map[string]any{"result": payload}}, products
}
