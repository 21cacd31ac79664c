package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"henry/internal/mcp"
)

const systemPrompt = `You are Henry, a shopping assistant for an online storefront.
Use the available tools to search products and look up details before answering.
Keep answers short and mention prices when you know them.`

// Gemini is the Model backed by the Gemini API with function calling.
type Gemini struct {
	client    *genai.Client
	modelName string
}

var _ Model = (*Gemini)(nil)

func NewGemini(ctx context.Context, apiKey, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is not set")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Gemini{client: client, modelName: modelName}, nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

func (g *Gemini) StartConversation(_ context.Context, tools []mcp.Tool, history []Message) (Conversation, error) {
	model := g.client.GenerativeModel(g.modelName)
	model.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))
	if len(tools) > 0 {
		model.Tools = []*genai.Tool{{FunctionDeclarations: declarations(tools)}}
	}

	cs := model.StartChat()
	cs.History = contents(history)
	return &geminiConversation{cs: cs}, nil
}

type geminiConversation struct {
	cs *genai.ChatSession
}

func (c *geminiConversation) Send(ctx context.Context, text string) (Turn, error) {
	resp, err := c.cs.SendMessage(ctx, genai.Text(text))
	if err != nil {
		return Turn{}, err
	}
	return turnFrom(resp)
}

func (c *geminiConversation) SendToolOutputs(ctx context.Context, outputs []ToolOutput) (Turn, error) {
	parts := make([]genai.Part, 0, len(outputs))
	for _, out := range outputs {
		parts = append(parts, genai.FunctionResponse{Name: out.Name, Response: out.Response})
	}
	resp, err := c.cs.SendMessage(ctx, parts...)
	if err != nil {
		return Turn{}, err
	}
	return turnFrom(resp)
}

func turnFrom(resp *genai.GenerateContentResponse) (Turn, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Turn{}, errors.New("no content generated")
	}

	var turn Turn
	var text []string
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			text = append(text, string(p))
		case genai.FunctionCall:
			turn.Calls = append(turn.Calls, ToolCall{Name: p.Name, Args: p.Args})
		}
	}
	turn.Text = strings.TrimSpace(strings.Join(text, ""))
	return turn, nil
}

func contents(history []Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		role := string(RoleUser)
		if m.Role == RoleModel {
			role = string(RoleModel)
		}
		out = append(out, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Text)}})
	}
	return out
}

func declarations(tools []mcp.Tool) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decl := &genai.FunctionDeclaration{Name: t.Name, Description: t.Description}
		if len(t.InputSchema) > 0 {
			schema := toSchema(t.InputSchema)
			if schema.Type == genai.TypeObject && len(schema.Properties) > 0 {
				decl.Parameters = schema
			}
		}
		decls = append(decls, decl)
	}
	return decls
}

// toSchema converts the JSON Schema subset MCP tools advertise into a genai.Schema.
func toSchema(js map[string]any) *genai.Schema {
	s := &genai.Schema{}
	if d, ok := js["description"].(string); ok {
		s.Description = d
	}

	typ, _ := js["type"].(string)
	if list, ok := js["type"].([]any); ok {
		for _, v := range list {
			if name, ok := v.(string); ok && name != "null" {
				typ = name
				break
			}
		}
		if len(list) > 1 {
			s.Nullable = true
		}
	}
	if typ == "" {
		if _, ok := js["properties"]; ok {
			typ = "object"
		}
	}

	switch typ {
	case "object":
		s.Type = genai.TypeObject
		if props, ok := js["properties"].(map[string]any); ok {
			s.Properties = make(map[string]*genai.Schema, len(props))
			for name, raw := range props {
				if sub, ok := raw.(map[string]any); ok {
					s.Properties[name] = toSchema(sub)
				}
			}
		}
		if req, ok := js["required"].([]any); ok {
			for _, r := range req {
				if name, ok := r.(string); ok {
					s.Required = append(s.Required, name)
				}
			}
		}
	case "array":
		s.Type = genai.TypeArray
		items, _ := js["items"].(map[string]any)
		s.Items = toSchema(items)
	case "integer":
		s.Type = genai.TypeInteger
	case "number":
		s.Type = genai.TypeNumber
	case "boolean":
		s.Type = genai.TypeBoolean
	default:
		s.Type = genai.TypeString
		if enum, ok := js["enum"].([]any); ok {
			for _, e := range enum {
				if v, ok := e.(string); ok {
					s.Enum = append(s.Enum, v)
				}
			}
		}
	}
	return s
}
