package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/floegence/research-agent/internal/config"
	"github.com/floegence/research-agent/internal/httpapi"
	"github.com/floegence/research-agent/internal/jobs"
)

var (
	// Version is set via -ldflags at build time.
	Version = "dev"
	// Commit is set via -ldflags at build time.
	Commit = "unknown"
	// BuildTime is set via -ldflags at build time.
	BuildTime = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "init":
		initCmd(os.Args[2:])
	case "serve":
		serveCmd(os.Args[2:])
	case "research":
		researchCmd(os.Args[2:])
	case "batch":
		batchCmd(os.Args[2:])
	case "version":
		fmt.Printf("research-agent %s (%s) %s\n", Version, Commit, BuildTime)
	default:
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `research-agent

Usage:
  research-agent init [flags]
  research-agent serve [flags]
  research-agent research -question "..." [flags]
  research-agent batch -spec tasks.yaml [flags]
  research-agent version

Commands:
  init        Write a starter config file.
  serve       Run the research job API server.
  research    Run a single research question to completion and print the answer.
  batch       Run every question in a YAML spec file sequentially.
  version     Print build information.

`)
}

func serveCmd(args []string) {
	fs := newAppFlags("serve")
	_ = fs.fs.Parse(args)

	a, err := buildApp(fs.configPath(), fs.secretsPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "serve failed: %v\n", err)
		os.Exit(1)
	}

	store, err := jobs.Open(a.cfg.EffectiveDBPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "serve failed: open job store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	runner, err := jobs.NewRunner(store, a.orch.Run, jobs.RunnerOptions{
		Log:           a.log,
		MaxConcurrent: a.cfg.Research.EffectiveMaxConcurrentTasks(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "serve failed: %v\n", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:    a.cfg.EffectiveHTTPAddr(),
		Handler: httpapi.NewServer(store, runner, a.log).Router(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	a.log.Info("http server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Fprintf(os.Stderr, "serve failed: %v\n", err)
		os.Exit(1)
	}
	runner.Wait()
}

func researchCmd(args []string) {
	fs := newAppFlags("research")
	question := fs.fs.String("question", "", "The research question to answer")
	_ = fs.fs.Parse(args)

	if *question == "" {
		fs.fs.Usage()
		os.Exit(2)
	}

	a, err := buildApp(fs.configPath(), fs.secretsPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "research failed: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := a.orch.Run(ctx, *question)
	if err != nil {
		fmt.Fprintf(os.Stderr, "research failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(report.FinalAnswer)
}

func initCmd(args []string) {
	fs := newAppFlags("init")
	_ = fs.fs.Parse(args)

	path := fs.configPath()
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(os.Stderr, "init failed: config already exists at %s\n", path)
		os.Exit(1)
	}

	cfg := &config.Config{
		Providers: []config.Provider{{
			ID:   "openai",
			Name: "OpenAI",
			Type: "openai",
			Models: []config.ProviderModel{
				{ModelName: "gpt-4o-mini", IsDefault: true},
			},
		}},
	}
	if err := config.Save(path, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "init failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Config written: %s\n", path)
	fmt.Printf("Put API keys in %s\n", config.DefaultSecretsPath())
}
