package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSpec(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spec.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write spec: %v", err)
	}
	return path
}

func TestLoadBatchSpec(t *testing.T) {
	t.Parallel()
	path := writeSpec(t, `
version: "1"
questions:
  - id: wal
    question: "How does sqlite WAL mode work?"
  - question: "What is a B-tree?"
`)
	questions, err := loadBatchSpec(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}
	if questions[0].ID != "wal" {
		t.Fatalf("unexpected id %q", questions[0].ID)
	}
	// Missing ids get positional fallbacks.
	if questions[1].ID != "q2" {
		t.Fatalf("unexpected fallback id %q", questions[1].ID)
	}
}

func TestLoadBatchSpecRejectsEmpty(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"no questions":   `version: "1"`,
		"blank question": "questions:\n  - id: a\n    question: \"  \"\n",
	}
	for name, content := range cases {
		path := writeSpec(t, content)
		if _, err := loadBatchSpec(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadBatchSpecMissingFile(t *testing.T) {
	t.Parallel()
	if _, err := loadBatchSpec(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := loadBatchSpec("  "); err == nil {
		t.Fatal("expected error for blank path")
	}
}
