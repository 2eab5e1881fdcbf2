package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Provider type identifiers accepted by NewProvider. They match the
// provider "type" field in config.json.
const (
	ProviderTypeOpenAI           = "openai"
	ProviderTypeOpenAICompatible = "openai_compatible"
	ProviderTypeAnthropic        = "anthropic"
)

// ToolDef describes one callable tool offered to the model.
type ToolDef struct {
	Name        string
	Description string
	// InputSchema is the JSON schema of the tool arguments; an object with
	// "properties" and "required" keys.
	InputSchema json.RawMessage
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolOutput is the result of executing one tool call, fed back to the model.
type ToolOutput struct {
	CallID  string
	Name    string
	Content string
}

// Message is one conversation entry. Role is "user" or "assistant"; tool
// calls ride on assistant messages and tool outputs on user messages, which
// is how both wire formats arrange them.
type Message struct {
	Role        string
	Text        string
	ToolCalls   []ToolCall
	ToolOutputs []ToolOutput
}

// Turn is a single model reply: free text, tool call requests, or both.
type Turn struct {
	Text      string
	ToolCalls []ToolCall
}

// Request is one completion call.
type Request struct {
	Model           string
	Instructions    string
	Messages        []Message
	Tools           []ToolDef
	MaxOutputTokens int64
	Temperature     *float64
}

// Provider is a model backend. Complete performs exactly one non-streaming
// completion turn.
type Provider interface {
	Complete(ctx context.Context, req Request) (Turn, error)
}

// NewProvider builds the adapter for a configured provider type.
// openai_compatible requires a base URL; openai and anthropic use their
// default endpoints unless one is given.
func NewProvider(providerType string, apiKey string, baseURL string) (Provider, error) {
	providerType = strings.TrimSpace(strings.ToLower(providerType))
	apiKey = strings.TrimSpace(apiKey)
	baseURL = strings.TrimSpace(baseURL)
	if apiKey == "" {
		return nil, errors.New("missing provider api key")
	}
	switch providerType {
	case ProviderTypeOpenAI:
		return newOpenAIProvider(apiKey, baseURL, true), nil
	case ProviderTypeOpenAICompatible:
		if baseURL == "" {
			return nil, errors.New("openai_compatible provider requires a base url")
		}
		return newOpenAIProvider(apiKey, baseURL, false), nil
	case ProviderTypeAnthropic:
		return newAnthropicProvider(apiKey, baseURL), nil
	default:
		return nil, fmt.Errorf("unsupported provider type %q", providerType)
	}
}

// sanitizeToolName maps a tool name onto the [A-Za-z0-9_-] alphabet both
// providers require.
func sanitizeToolName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var sb strings.Builder
	for _, ch := range name {
		switch {
		case ch >= 'a' && ch <= 'z':
			sb.WriteRune(ch)
		case ch >= 'A' && ch <= 'Z':
			sb.WriteRune(ch)
		case ch >= '0' && ch <= '9':
			sb.WriteRune(ch)
		case ch == '_' || ch == '-':
			sb.WriteRune(ch)
		default:
			sb.WriteRune('_')
		}
	}
	out := strings.Trim(sb.String(), "_-")
	if out == "" {
		return "tool"
	}
	return out
}
