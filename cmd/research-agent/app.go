package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/floegence/research-agent/internal/browser"
	"github.com/floegence/research-agent/internal/config"
	"github.com/floegence/research-agent/internal/llm"
	"github.com/floegence/research-agent/internal/research"
	"github.com/floegence/research-agent/internal/websearch"
)

// appFlags are the flags every subcommand shares.
type appFlags struct {
	fs      *flag.FlagSet
	cfg     *string
	secrets *string
}

func newAppFlags(name string) *appFlags {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	return &appFlags{
		fs:      fs,
		cfg:     fs.String("config", config.DefaultConfigPath(), "Config file path"),
		secrets: fs.String("secrets", config.DefaultSecretsPath(), "Secrets file path"),
	}
}

func (f *appFlags) configPath() string  { return *f.cfg }
func (f *appFlags) secretsPath() string { return *f.secrets }

type app struct {
	cfg  *config.Config
	log  *slog.Logger
	orch *research.Orchestrator
}

// buildApp loads config and secrets and wires the full task pipeline.
func buildApp(cfgPath string, secretsPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	secrets, err := config.LoadSecrets(secretsPath)
	if err != nil {
		return nil, fmt.Errorf("load secrets %s: %w", secretsPath, err)
	}

	log := newLogger(cfg.LogFormat, cfg.LogLevel)

	modelID, ok := cfg.DefaultModelID()
	if !ok {
		return nil, fmt.Errorf("no default model configured")
	}
	providerID, modelName, _ := strings.Cut(modelID, "/")
	prov, ok := cfg.ProviderByID(providerID)
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", providerID)
	}
	apiKey, err := secrets.ProviderKey(providerID)
	if err != nil {
		return nil, fmt.Errorf("provider %q: %w", providerID, err)
	}
	provider, err := llm.NewProvider(prov.Type, apiKey, prov.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("provider %q: %w", providerID, err)
	}
	invoker := llm.NewInvoker(provider, modelName, llm.InvokerOptions{
		Log:          log,
		MaxAttempts:  cfg.Research.EffectiveMaxAttempts(),
		MaxToolSteps: cfg.Research.EffectiveMaxToolSteps(),
	})

	searcher, err := websearch.New(cfg.EffectiveSearchProvider(), secrets.BraveSearchAPIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}

	allowedHosts := cfg.Browser.AllowedHosts
	hostAllowed := func(host string) bool {
		if len(allowedHosts) == 0 {
			return true
		}
		host = strings.ToLower(strings.TrimSpace(host))
		for _, h := range allowedHosts {
			if strings.ToLower(strings.TrimSpace(h)) == host {
				return true
			}
		}
		return false
	}
	factory := func(ctx context.Context) (browser.Engine, error) {
		return browser.NewRodEngine(ctx, browser.RodOptions{
			Log:            log,
			Headless:       cfg.Browser.EffectiveHeadless(),
			ViewportWidth:  cfg.Browser.EffectiveViewportWidth(),
			ViewportHeight: cfg.Browser.EffectiveViewportHeight(),
			Settle:         time.Duration(cfg.Browser.EffectiveSettleMillis()) * time.Millisecond,
			HostAllowed:    hostAllowed,
		})
	}

	orch, err := research.NewOrchestrator(research.Deps{
		Log:                log,
		Invoker:            invoker,
		Searcher:           searcher,
		NewEngine:          factory,
		AllowedHosts:       allowedHosts,
		QueriesPerQuestion: cfg.Research.EffectiveQueriesPerQuestion(),
		SubQuestionsPerURL: cfg.Research.EffectiveSubQuestionsPerURL(),
		MaxURLs:            cfg.Research.EffectiveMaxURLs(),
		ResultsPerQuery:    cfg.EffectiveResultsPerQuery(),
	})
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, log: log, orch: orch}, nil
}

func newLogger(format string, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(strings.TrimSpace(format)) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
