package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedProvider replays a fixed sequence of turns and records every
// request it saw.
type scriptedProvider struct {
	turns    []Turn
	err      error
	requests []Request
}

func (p *scriptedProvider) Complete(_ context.Context, req Request) (Turn, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return Turn{}, p.err
	}
	if len(p.turns) == 0 {
		return Turn{Text: "out of script"}, nil
	}
	t := p.turns[0]
	p.turns = p.turns[1:]
	return t, nil
}

func TestInvokeReturnsValidAnswer(t *testing.T) {
	t.Parallel()
	p := &scriptedProvider{turns: []Turn{{Text: "  the answer  "}}}
	inv := NewInvoker(p, "m1", InvokerOptions{Log: discardLogger()})

	got, err := inv.Invoke(context.Background(), InvokeRequest{
		Prompt:     "q",
		Validators: []Validator{NonEmpty("empty, try again")},
	})
	if err != nil {
		t.Fatalf("invoke failed: %v", err)
	}
	if got != "the answer" {
		t.Fatalf("unexpected answer %q", got)
	}
	if len(p.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(p.requests))
	}
}

func TestInvokeRetriesWithFeedbackInConversation(t *testing.T) {
	t.Parallel()
	p := &scriptedProvider{turns: []Turn{
		{Text: "one\ntwo"},
		{Text: "one\ntwo\nthree"},
	}}
	inv := NewInvoker(p, "m1", InvokerOptions{Log: discardLogger(), MaxAttempts: 3})

	got, err := inv.Invoke(context.Background(), InvokeRequest{
		Prompt:     "list three",
		Validators: []Validator{LineCount(3, "queries")},
	})
	if err != nil {
		t.Fatalf("invoke failed: %v", err)
	}
	if len(SplitLines(got)) != 3 {
		t.Fatalf("unexpected answer %q", got)
	}
	if len(p.requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(p.requests))
	}
	// The retry conversation must contain the rejected answer and feedback.
	last := p.requests[1].Messages
	if len(last) != 3 {
		t.Fatalf("expected 3 messages on retry, got %d", len(last))
	}
	if last[1].Role != "assistant" || !strings.Contains(last[1].Text, "two") {
		t.Fatalf("rejected answer not in conversation: %+v", last[1])
	}
	if last[2].Role != "user" || !strings.Contains(last[2].Text, "you needed to generate 3") {
		t.Fatalf("feedback not in conversation: %+v", last[2])
	}
}

func TestInvokeExhaustsAttempts(t *testing.T) {
	t.Parallel()
	p := &scriptedProvider{turns: []Turn{{Text: ""}, {Text: ""}}}
	inv := NewInvoker(p, "m1", InvokerOptions{Log: discardLogger(), MaxAttempts: 2})

	_, err := inv.Invoke(context.Background(), InvokeRequest{
		Prompt:     "q",
		Validators: []Validator{NonEmpty("answer was empty")},
	})
	if !errors.Is(err, ErrAttemptsExhausted) {
		t.Fatalf("expected ErrAttemptsExhausted, got %v", err)
	}
	if !strings.Contains(err.Error(), "answer was empty") {
		t.Fatalf("error does not carry last feedback: %v", err)
	}
	if len(p.requests) != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", len(p.requests))
	}
}

func TestInvokeExecutesToolsThenAnswers(t *testing.T) {
	t.Parallel()
	p := &scriptedProvider{turns: []Turn{
		{ToolCalls: []ToolCall{{ID: "c1", Name: "read_page", Args: map[string]any{"n": 1.0}}}},
		{Text: "done"},
	}}
	inv := NewInvoker(p, "m1", InvokerOptions{Log: discardLogger()})

	var gotArgs map[string]any
	got, err := inv.Invoke(context.Background(), InvokeRequest{
		Prompt: "q",
		Tools: []Tool{{
			Def: ToolDef{Name: "read_page"},
			Run: func(_ context.Context, args map[string]any) string {
				gotArgs = args
				return "page text"
			},
		}},
	})
	if err != nil {
		t.Fatalf("invoke failed: %v", err)
	}
	if got != "done" {
		t.Fatalf("unexpected answer %q", got)
	}
	if gotArgs == nil || gotArgs["n"] != 1.0 {
		t.Fatalf("tool did not receive args: %v", gotArgs)
	}
	// Second request must carry the call and its output.
	msgs := p.requests[1].Messages
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if len(msgs[1].ToolCalls) != 1 || msgs[1].ToolCalls[0].ID != "c1" {
		t.Fatalf("tool call not recorded: %+v", msgs[1])
	}
	if len(msgs[2].ToolOutputs) != 1 || msgs[2].ToolOutputs[0].Content != "page text" {
		t.Fatalf("tool output not recorded: %+v", msgs[2])
	}
}

func TestInvokeUnknownToolReportsToModel(t *testing.T) {
	t.Parallel()
	p := &scriptedProvider{turns: []Turn{
		{ToolCalls: []ToolCall{{ID: "c1", Name: "nope"}}},
		{Text: "recovered"},
	}}
	inv := NewInvoker(p, "m1", InvokerOptions{Log: discardLogger()})

	got, err := inv.Invoke(context.Background(), InvokeRequest{Prompt: "q"})
	if err != nil {
		t.Fatalf("invoke failed: %v", err)
	}
	if got != "recovered" {
		t.Fatalf("unexpected answer %q", got)
	}
	out := p.requests[1].Messages[2].ToolOutputs[0]
	if !strings.Contains(out.Content, "Unknown tool") {
		t.Fatalf("unexpected tool output %q", out.Content)
	}
}

func TestInvokeToolStepCap(t *testing.T) {
	t.Parallel()
	var turns []Turn
	for i := 0; i < 10; i++ {
		turns = append(turns, Turn{ToolCalls: []ToolCall{{ID: "c", Name: "spin"}}})
	}
	p := &scriptedProvider{turns: turns}
	inv := NewInvoker(p, "m1", InvokerOptions{Log: discardLogger(), MaxToolSteps: 3})

	_, err := inv.Invoke(context.Background(), InvokeRequest{
		Prompt: "q",
		Tools: []Tool{{
			Def: ToolDef{Name: "spin"},
			Run: func(context.Context, map[string]any) string { return "again" },
		}},
	})
	if !errors.Is(err, ErrToolStepsExhausted) {
		t.Fatalf("expected ErrToolStepsExhausted, got %v", err)
	}
	if len(p.requests) != 4 {
		t.Fatalf("expected 4 requests (3 allowed steps + refusal), got %d", len(p.requests))
	}
}

func TestInvokePropagatesProviderError(t *testing.T) {
	t.Parallel()
	p := &scriptedProvider{err: errors.New("boom")}
	inv := NewInvoker(p, "m1", InvokerOptions{Log: discardLogger()})

	if _, err := inv.Invoke(context.Background(), InvokeRequest{Prompt: "q"}); err == nil {
		t.Fatal("expected provider error to propagate")
	}
}

func TestValidators(t *testing.T) {
	t.Parallel()
	if err := NonEmpty("empty")(" "); err == nil {
		t.Fatal("NonEmpty accepted blank")
	}
	if err := NonEmpty("empty")("x"); err != nil {
		t.Fatalf("NonEmpty rejected non-blank: %v", err)
	}
	if err := NoCodeFence("no fences")("```json\n{}\n```"); err == nil {
		t.Fatal("NoCodeFence accepted fenced answer")
	}
	if err := NoCodeFence("no fences")("plain"); err != nil {
		t.Fatalf("NoCodeFence rejected plain answer: %v", err)
	}
	if err := LineCount(2, "queries")("a\n\nb\n"); err != nil {
		t.Fatalf("LineCount rejected exact count: %v", err)
	}
	if err := LineCount(2, "queries")("a"); err == nil {
		t.Fatal("LineCount accepted wrong count")
	}
}

func TestSanitizeToolName(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"find_text":    "find_text",
		"page.down":    "page_down",
		"  spaced  ":   "spaced",
		"__":           "tool",
		"mixed/Name-1": "mixed_Name-1",
	}
	for in, want := range cases {
		if got := sanitizeToolName(in); got != want {
			t.Fatalf("sanitizeToolName(%q) = %q, want %q", in, got, want)
		}
	}
}
