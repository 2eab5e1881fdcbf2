package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicDefaultMaxOutputTokens = 4096

type anthropicProvider struct {
	client anthropic.Client
}

func newAnthropicProvider(apiKey string, baseURL string) *anthropicProvider {
	opts := []aoption.RequestOption{aoption.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, aoption.WithBaseURL(baseURL))
	}
	return &anthropicProvider{client: anthropic.NewClient(opts...)}
}

func (p *anthropicProvider) Complete(ctx context.Context, req Request) (Turn, error) {
	if p == nil {
		return Turn{}, errors.New("nil provider")
	}
	if strings.TrimSpace(req.Model) == "" {
		return Turn{}, errors.New("missing model")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(strings.TrimSpace(req.Model)),
		MaxTokens: anthropicDefaultMaxOutputTokens,
	}
	if req.MaxOutputTokens > 0 {
		params.MaxTokens = req.MaxOutputTokens
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if system := strings.TrimSpace(req.Instructions); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	tools, aliasToReal := buildAnthropicTools(req.Tools)
	if len(tools) > 0 {
		params.Tools = tools
	}
	params.Messages = buildAnthropicMessages(req.Messages)

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return Turn{}, fmt.Errorf("anthropic messages: %w", err)
	}

	var turn Turn
	var text strings.Builder
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			if txt := strings.TrimSpace(b.Text); txt != "" {
				if text.Len() > 0 {
					text.WriteString("\n")
				}
				text.WriteString(txt)
			}
		case anthropic.ToolUseBlock:
			name := strings.TrimSpace(b.Name)
			if real, ok := aliasToReal[name]; ok {
				name = real
			}
			args := map[string]any{}
			if len(b.Input) > 0 {
				_ = json.Unmarshal(b.Input, &args)
			}
			turn.ToolCalls = append(turn.ToolCalls, ToolCall{ID: strings.TrimSpace(b.ID), Name: name, Args: args})
		}
	}
	turn.Text = text.String()
	return turn, nil
}

func buildAnthropicTools(defs []ToolDef) ([]anthropic.ToolUnionParam, map[string]string) {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	aliasToReal := make(map[string]string, len(defs))
	for _, def := range defs {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			continue
		}
		schemaMap := map[string]any{}
		if len(def.InputSchema) > 0 {
			_ = json.Unmarshal(def.InputSchema, &schemaMap)
		}
		var required []string
		if raw, ok := schemaMap["required"].([]any); ok {
			for _, item := range raw {
				if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
					required = append(required, strings.TrimSpace(s))
				}
			}
		}
		alias := sanitizeToolName(name)
		aliasToReal[alias] = name
		param := anthropic.ToolParam{
			Name:        alias,
			Description: anthropic.String(strings.TrimSpace(def.Description)),
			InputSchema: anthropic.ToolInputSchemaParam{Type: "object", Properties: schemaMap["properties"], Required: required},
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &param})
	}
	return out, aliasToReal
}

func buildAnthropicMessages(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, 2)
		isAssistant := strings.ToLower(strings.TrimSpace(msg.Role)) == "assistant"
		if isAssistant {
			if txt := strings.TrimSpace(msg.Text); txt != "" {
				blocks = append(blocks, anthropic.NewTextBlock(txt))
			}
			for _, call := range msg.ToolCalls {
				callID := strings.TrimSpace(call.ID)
				name := sanitizeToolName(call.Name)
				if callID == "" || name == "" {
					continue
				}
				input := any(call.Args)
				if call.Args == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{ID: callID, Input: input, Name: name},
				})
			}
		} else {
			for _, o := range msg.ToolOutputs {
				callID := strings.TrimSpace(o.CallID)
				if callID == "" {
					continue
				}
				blocks = append(blocks, anthropic.NewToolResultBlock(callID, o.Content, false))
			}
			if txt := strings.TrimSpace(msg.Text); txt != "" {
				blocks = append(blocks, anthropic.NewTextBlock(txt))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		if isAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	if len(out) == 0 {
		out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock("Continue.")))
	}
	return out
}
