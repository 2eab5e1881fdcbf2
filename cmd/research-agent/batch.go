package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"gopkg.in/yaml.v3"
)

type batchSpecFile struct {
	Version   string          `yaml:"version"`
	Questions []batchQuestion `yaml:"questions"`
}

type batchQuestion struct {
	ID       string `yaml:"id"`
	Question string `yaml:"question"`
}

func loadBatchSpec(specPath string) ([]batchQuestion, error) {
	cleanPath := strings.TrimSpace(specPath)
	if cleanPath == "" {
		return nil, fmt.Errorf("missing batch spec path")
	}
	data, err := os.ReadFile(filepath.Clean(cleanPath))
	if err != nil {
		return nil, err
	}
	var spec batchSpecFile
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, err
	}
	if len(spec.Questions) == 0 {
		return nil, fmt.Errorf("batch spec has no questions")
	}
	out := make([]batchQuestion, 0, len(spec.Questions))
	for i, item := range spec.Questions {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			id = fmt.Sprintf("q%d", i+1)
		}
		q := strings.TrimSpace(item.Question)
		if q == "" {
			return nil, fmt.Errorf("question %s is empty", id)
		}
		out = append(out, batchQuestion{ID: id, Question: q})
	}
	return out, nil
}

func batchCmd(args []string) {
	fs := newAppFlags("batch")
	specPath := fs.fs.String("spec", "", "YAML file listing research questions")
	_ = fs.fs.Parse(args)

	if *specPath == "" {
		fs.fs.Usage()
		os.Exit(2)
	}

	questions, err := loadBatchSpec(*specPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "batch failed: %v\n", err)
		os.Exit(1)
	}

	a, err := buildApp(fs.configPath(), fs.secretsPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "batch failed: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	failures := 0
	for _, q := range questions {
		a.log.Info("batch question started", "id", q.ID)
		report, err := a.orch.Run(ctx, q.Question)
		if err != nil {
			failures++
			a.log.Warn("batch question failed", "id", q.ID, "error", err)
			fmt.Printf("## %s\n\nFAILED: %v\n\n", q.ID, err)
			continue
		}
		fmt.Printf("## %s\n\n%s\n\n", q.ID, report.FinalAnswer)
	}
	if failures > 0 {
		fmt.Fprintf(os.Stderr, "batch finished with %d failed question(s)\n", failures)
		os.Exit(1)
	}
}
