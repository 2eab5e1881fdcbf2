package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrAttemptsExhausted is returned when every attempt produced an answer the
// validators rejected. The wrapping error carries the last feedback.
var ErrAttemptsExhausted = errors.New("invocation attempts exhausted")

// ErrToolStepsExhausted is returned when the model keeps requesting tools
// past the step cap without ever producing a final answer.
var ErrToolStepsExhausted = errors.New("tool step budget exhausted")

// Tool pairs a definition with its executor. Run returns the text handed back
// to the model; executors report their own failures in that text rather than
// aborting the conversation.
type Tool struct {
	Def ToolDef
	Run func(ctx context.Context, args map[string]any) string
}

// Validator inspects a candidate answer. A non-nil error rejects it; the
// error text is fed back to the model verbatim, so phrase it as an
// instruction the model can act on.
type Validator func(answer string) error

// InvokeRequest is one validated prompt round.
type InvokeRequest struct {
	Instructions    string
	Prompt          string
	Tools           []Tool
	Validators      []Validator
	MaxOutputTokens int64
	Temperature     *float64
}

type InvokerOptions struct {
	Log *slog.Logger

	// MaxAttempts bounds validation retries per Invoke call.
	MaxAttempts int

	// MaxToolSteps bounds tool rounds per Invoke call, across attempts.
	MaxToolSteps int
}

// Invoker runs prompts against a provider until the answer passes every
// validator, feeding rejection text back into the conversation between
// attempts. The conversation accumulates: the model sees its own rejected
// answers and the feedback on them.
type Invoker struct {
	log          *slog.Logger
	provider     Provider
	model        string
	maxAttempts  int
	maxToolSteps int
}

func NewInvoker(provider Provider, model string, opts InvokerOptions) *Invoker {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 20
	}
	maxToolSteps := opts.MaxToolSteps
	if maxToolSteps <= 0 {
		maxToolSteps = 24
	}
	return &Invoker{
		log:          log,
		provider:     provider,
		model:        strings.TrimSpace(model),
		maxAttempts:  maxAttempts,
		maxToolSteps: maxToolSteps,
	}
}

// Invoke runs the conversation to a validated answer. Provider transport
// errors abort immediately; validation failures retry with feedback; tool
// requests execute and loop. The returned answer is trimmed.
func (inv *Invoker) Invoke(ctx context.Context, req InvokeRequest) (string, error) {
	if inv == nil || inv.provider == nil {
		return "", errors.New("nil invoker")
	}

	tools := make([]ToolDef, 0, len(req.Tools))
	runners := make(map[string]func(context.Context, map[string]any) string, len(req.Tools))
	for _, t := range req.Tools {
		name := strings.TrimSpace(t.Def.Name)
		if name == "" || t.Run == nil {
			continue
		}
		tools = append(tools, t.Def)
		runners[name] = t.Run
	}

	messages := []Message{{Role: "user", Text: req.Prompt}}
	toolSteps := 0

	for attempt := 1; attempt <= inv.maxAttempts; attempt++ {
		var lastFeedback string
		for {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			turn, err := inv.provider.Complete(ctx, Request{
				Model:           inv.model,
				Instructions:    req.Instructions,
				Messages:        messages,
				Tools:           tools,
				MaxOutputTokens: req.MaxOutputTokens,
				Temperature:     req.Temperature,
			})
			if err != nil {
				return "", err
			}

			if len(turn.ToolCalls) > 0 {
				toolSteps++
				if toolSteps > inv.maxToolSteps {
					inv.log.Warn("tool step budget exhausted", "steps", toolSteps-1)
					return "", ErrToolStepsExhausted
				}
				messages = append(messages, Message{Role: "assistant", Text: turn.Text, ToolCalls: turn.ToolCalls})
				outputs := make([]ToolOutput, 0, len(turn.ToolCalls))
				for _, call := range turn.ToolCalls {
					run, ok := runners[call.Name]
					var content string
					if ok {
						content = run(ctx, call.Args)
					} else {
						content = fmt.Sprintf("Unknown tool %q.", call.Name)
					}
					outputs = append(outputs, ToolOutput{CallID: call.ID, Name: call.Name, Content: content})
				}
				messages = append(messages, Message{Role: "user", ToolOutputs: outputs})
				continue
			}

			answer := strings.TrimSpace(turn.Text)
			feedback := validate(answer, req.Validators)
			if feedback == "" {
				return answer, nil
			}
			lastFeedback = feedback
			inv.log.Debug("answer rejected", "attempt", attempt, "feedback", feedback)
			messages = append(messages,
				Message{Role: "assistant", Text: turn.Text},
				Message{Role: "user", Text: feedback},
			)
			break
		}
		if attempt == inv.maxAttempts {
			return "", fmt.Errorf("%w after %d attempts: %s", ErrAttemptsExhausted, inv.maxAttempts, lastFeedback)
		}
	}
	return "", ErrAttemptsExhausted
}

func validate(answer string, validators []Validator) string {
	for _, v := range validators {
		if v == nil {
			continue
		}
		if err := v(answer); err != nil {
			return err.Error()
		}
	}
	return ""
}
