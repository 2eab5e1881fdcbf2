package llm

import (
	"errors"
	"fmt"
	"strings"
)

// NonEmpty rejects blank answers with the given feedback.
func NonEmpty(feedback string) Validator {
	return func(answer string) error {
		if strings.TrimSpace(answer) == "" {
			return errors.New(feedback)
		}
		return nil
	}
}

// NoCodeFence rejects answers that open with a markdown code fence. Models
// sometimes wrap an answer in a fenced block instead of answering plainly.
func NoCodeFence(feedback string) Validator {
	return func(answer string) error {
		if strings.HasPrefix(strings.TrimSpace(answer), "```") {
			return errors.New(feedback)
		}
		return nil
	}
}

// LineCount requires exactly want non-empty lines. The feedback names the
// count the model produced so it can correct itself.
func LineCount(want int, noun string) Validator {
	return func(answer string) error {
		got := len(SplitLines(answer))
		if got == want {
			return nil
		}
		return fmt.Errorf("You generated %d %s, you needed to generate %d, try again", got, noun, want)
	}
}

// SplitLines returns the trimmed non-empty lines of an answer. List-valued
// prompts ask for one item per line; this is the matching parse.
func SplitLines(answer string) []string {
	var out []string
	for _, line := range strings.Split(answer, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
