package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"
	ooption "github.com/openai/openai-go/option"
	oresponses "github.com/openai/openai-go/responses"
	oshared "github.com/openai/openai-go/shared"
)

const openAIDefaultMaxOutputTokens = 4096

// openAIProvider drives the Responses API. It also serves
// openai_compatible endpoints, which tend to reject strict tool schemas.
type openAIProvider struct {
	client           openai.Client
	strictToolSchema bool
}

func newOpenAIProvider(apiKey string, baseURL string, strict bool) *openAIProvider {
	opts := []ooption.RequestOption{ooption.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, ooption.WithBaseURL(baseURL))
	}
	return &openAIProvider{
		client:           openai.NewClient(opts...),
		strictToolSchema: strict,
	}
}

func (p *openAIProvider) Complete(ctx context.Context, req Request) (Turn, error) {
	if p == nil {
		return Turn{}, errors.New("nil provider")
	}
	if strings.TrimSpace(req.Model) == "" {
		return Turn{}, errors.New("missing model")
	}

	params := oresponses.ResponseNewParams{
		Model:             oshared.ResponsesModel(strings.TrimSpace(req.Model)),
		MaxOutputTokens:   openai.Int(openAIDefaultMaxOutputTokens),
		ParallelToolCalls: openai.Bool(false),
	}
	if req.MaxOutputTokens > 0 {
		params.MaxOutputTokens = openai.Int(req.MaxOutputTokens)
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if instructions := strings.TrimSpace(req.Instructions); instructions != "" {
		params.Instructions = openai.String(instructions)
	}

	items := buildOpenAIInput(req.Messages)
	if len(items) == 0 {
		items = append(items, oresponses.ResponseInputItemParamOfMessage("Continue.", oresponses.EasyInputMessageRoleUser))
	}
	params.Input = oresponses.ResponseNewParamsInputUnion{OfInputItemList: items}

	tools, aliasToReal := buildOpenAITools(req.Tools, p.strictToolSchema)
	if len(tools) > 0 {
		params.Tools = tools
	}

	resp, err := p.client.Responses.New(ctx, params)
	if err != nil {
		return Turn{}, fmt.Errorf("openai responses: %w", err)
	}

	turn := Turn{Text: extractOpenAIText(*resp)}
	for _, item := range resp.Output {
		if strings.TrimSpace(item.Type) != "function_call" {
			continue
		}
		callID := strings.TrimSpace(item.CallID)
		if callID == "" {
			callID = strings.TrimSpace(item.ID)
		}
		if callID == "" {
			callID = fmt.Sprintf("openai_call_%d", len(turn.ToolCalls)+1)
		}
		name := strings.TrimSpace(item.Name)
		if real, ok := aliasToReal[name]; ok {
			name = real
		}
		args := map[string]any{}
		if raw := strings.TrimSpace(item.Arguments); raw != "" {
			_ = json.Unmarshal([]byte(raw), &args)
		}
		turn.ToolCalls = append(turn.ToolCalls, ToolCall{ID: callID, Name: name, Args: args})
	}
	return turn, nil
}

func buildOpenAIInput(messages []Message) oresponses.ResponseInputParam {
	items := make(oresponses.ResponseInputParam, 0, len(messages))
	for _, msg := range messages {
		switch strings.ToLower(strings.TrimSpace(msg.Role)) {
		case "assistant":
			if txt := strings.TrimSpace(msg.Text); txt != "" {
				items = append(items, oresponses.ResponseInputItemParamOfMessage(txt, oresponses.EasyInputMessageRoleAssistant))
			}
			for _, call := range msg.ToolCalls {
				callID := strings.TrimSpace(call.ID)
				name := sanitizeToolName(call.Name)
				if callID == "" || name == "" {
					continue
				}
				argsRaw := "{}"
				if len(call.Args) > 0 {
					if b, err := json.Marshal(call.Args); err == nil {
						argsRaw = string(b)
					}
				}
				items = append(items, oresponses.ResponseInputItemParamOfFunctionCall(argsRaw, callID, name))
			}
		default:
			for _, out := range msg.ToolOutputs {
				callID := strings.TrimSpace(out.CallID)
				if callID == "" {
					continue
				}
				items = append(items, oresponses.ResponseInputItemParamOfFunctionCallOutput(callID, out.Content))
			}
			if txt := strings.TrimSpace(msg.Text); txt != "" {
				items = append(items, oresponses.ResponseInputItemParamOfMessage(txt, oresponses.EasyInputMessageRoleUser))
			}
		}
	}
	return items
}

func buildOpenAITools(defs []ToolDef, strict bool) ([]oresponses.ToolUnionParam, map[string]string) {
	out := make([]oresponses.ToolUnionParam, 0, len(defs))
	aliasToReal := make(map[string]string, len(defs))
	for _, def := range defs {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			continue
		}
		schema := map[string]any{}
		if len(def.InputSchema) > 0 {
			_ = json.Unmarshal(def.InputSchema, &schema)
		}
		alias := sanitizeToolName(name)
		aliasToReal[alias] = name
		out = append(out, oresponses.ToolParamOfFunction(alias, schema, strict))
	}
	return out, aliasToReal
}

func extractOpenAIText(resp oresponses.Response) string {
	var sb strings.Builder
	for _, item := range resp.Output {
		if strings.TrimSpace(item.Type) != "message" {
			continue
		}
		msg := item.AsMessage()
		for _, part := range msg.Content {
			if strings.TrimSpace(part.Type) != "output_text" {
				continue
			}
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(strings.TrimSpace(part.Text))
		}
	}
	return sb.String()
}
