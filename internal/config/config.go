package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Config is the on-disk configuration for research-agent.
//
// Secrets (API keys) must never be stored here. Keys live in a separate
// secrets file, see Secrets.
type Config struct {
	// Providers is the model provider registry. Exactly one provider model
	// must be marked as default via models[].is_default.
	Providers []Provider `json:"providers"`

	Search   SearchConfig   `json:"search,omitempty"`
	Research ResearchConfig `json:"research,omitempty"`
	Browser  BrowserConfig  `json:"browser,omitempty"`

	// HTTPAddr is the listen address for the job API (default ":8080").
	HTTPAddr string `json:"http_addr,omitempty"`

	// DBPath is the sqlite job store path. If empty, a default under the
	// user home dir is used.
	DBPath string `json:"db_path,omitempty"`

	// LogFormat is "json" or "text".
	LogFormat string `json:"log_format,omitempty"`
	// LogLevel is "debug|info|warn|error".
	LogLevel string `json:"log_level,omitempty"`
}

type Provider struct {
	// ID is a stable internal id (primary key). It must not change once used
	// for secrets/model routing.
	ID string `json:"id"`

	// Name is a human-friendly display name (safe to rename at any time).
	Name string `json:"name,omitempty"`

	// Type is one of: "openai" | "anthropic" | "openai_compatible".
	Type string `json:"type"`

	// BaseURL overrides the provider endpoint. Required for openai_compatible.
	BaseURL string `json:"base_url,omitempty"`

	Models []ProviderModel `json:"models,omitempty"`
}

type ProviderModel struct {
	ModelName string `json:"model_name"`

	// IsDefault marks the single default model across all providers.
	IsDefault bool `json:"is_default,omitempty"`
}

// SearchConfig selects the web search backend.
type SearchConfig struct {
	// Provider is "brave" (default) or "disabled".
	Provider string `json:"provider,omitempty"`

	// ResultsPerQuery caps results requested per search call (1..10).
	ResultsPerQuery int `json:"results_per_query,omitempty"`
}

// ResearchConfig bounds the orchestration pipeline.
type ResearchConfig struct {
	// QueriesPerQuestion is the exact number of search queries generated
	// per research question.
	QueriesPerQuestion int `json:"queries_per_question,omitempty"`

	// SubQuestionsPerURL is the exact number of sub-questions generated and
	// asked against each URL.
	SubQuestionsPerURL int `json:"sub_questions_per_url,omitempty"`

	// MaxURLs caps how many discovered URLs are interrogated.
	MaxURLs int `json:"max_urls,omitempty"`

	// MaxAttempts is the validated-invocation retry budget.
	MaxAttempts int `json:"max_attempts,omitempty"`

	// MaxToolSteps caps the tool-call loop inside one attempt.
	MaxToolSteps int `json:"max_tool_steps,omitempty"`

	// MaxConcurrentTasks bounds how many research jobs run at once.
	MaxConcurrentTasks int `json:"max_concurrent_tasks,omitempty"`
}

// BrowserConfig configures the page reading sessions.
type BrowserConfig struct {
	// AllowedHosts is the navigation allow-list. Empty allows all hosts.
	// Matching is exact-host only; subdomains must be listed explicitly.
	AllowedHosts []string `json:"allowed_hosts,omitempty"`

	ViewportWidth  int `json:"viewport_width,omitempty"`
	ViewportHeight int `json:"viewport_height,omitempty"`

	// SettleMillis is the wait applied after each scroll before reading.
	SettleMillis int `json:"settle_millis,omitempty"`

	// Headless controls the browser mode. Defaults to true.
	Headless *bool `json:"headless,omitempty"`
}

const (
	defaultHTTPAddr        = ":8080"
	defaultSearchProvider  = "brave"
	defaultResultsPerQuery = 5

	defaultQueriesPerQuestion = 3
	defaultSubQuestionsPerURL = 3
	defaultMaxURLs            = 20
	defaultMaxAttempts        = 20
	defaultMaxToolSteps       = 24
	defaultMaxConcurrent      = 2

	defaultViewportWidth  = 1024
	defaultViewportHeight = 768
	defaultSettleMillis   = 100
)

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if len(c.Providers) == 0 {
		return errors.New("missing providers")
	}
	seen := make(map[string]struct{}, len(c.Providers))
	defaultCount := 0
	for i := range c.Providers {
		p := c.Providers[i]
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return fmt.Errorf("providers[%d]: missing id", i)
		}
		if strings.Contains(id, "/") {
			return fmt.Errorf("providers[%d]: invalid id %q (must not contain /)", i, id)
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("providers[%d]: duplicate id %q", i, id)
		}
		seen[id] = struct{}{}

		switch strings.TrimSpace(p.Type) {
		case "openai", "anthropic", "openai_compatible":
		default:
			return fmt.Errorf("providers[%d]: invalid type %q", i, p.Type)
		}

		baseURL := strings.TrimSpace(p.BaseURL)
		if strings.TrimSpace(p.Type) == "openai_compatible" && baseURL == "" {
			return fmt.Errorf("providers[%d]: base_url is required for openai_compatible", i)
		}
		if baseURL != "" {
			u, err := url.Parse(baseURL)
			if err != nil || u == nil {
				return fmt.Errorf("providers[%d]: invalid base_url: %w", i, err)
			}
			scheme := strings.ToLower(strings.TrimSpace(u.Scheme))
			if scheme != "http" && scheme != "https" {
				return fmt.Errorf("providers[%d]: invalid base_url scheme %q", i, u.Scheme)
			}
			if strings.TrimSpace(u.Host) == "" {
				return fmt.Errorf("providers[%d]: invalid base_url host", i)
			}
		}

		if len(p.Models) == 0 {
			return fmt.Errorf("providers[%d]: missing models", i)
		}
		modelNames := make(map[string]struct{}, len(p.Models))
		for j := range p.Models {
			name := strings.TrimSpace(p.Models[j].ModelName)
			if name == "" {
				return fmt.Errorf("providers[%d].models[%d]: missing model_name", i, j)
			}
			if _, ok := modelNames[name]; ok {
				return fmt.Errorf("providers[%d].models[%d]: duplicate model_name %q", i, j, name)
			}
			modelNames[name] = struct{}{}
			if p.Models[j].IsDefault {
				defaultCount++
			}
		}
	}
	if defaultCount == 0 {
		return errors.New("missing default model (providers[].models[].is_default)")
	}
	if defaultCount > 1 {
		return errors.New("multiple default models (providers[].models[].is_default)")
	}

	switch strings.ToLower(strings.TrimSpace(c.Search.Provider)) {
	case "", "brave", "disabled":
	default:
		return fmt.Errorf("invalid search provider %q", c.Search.Provider)
	}
	if c.Search.ResultsPerQuery < 0 || c.Search.ResultsPerQuery > 10 {
		return fmt.Errorf("invalid results_per_query %d (must be in [0,10])", c.Search.ResultsPerQuery)
	}

	for i, host := range c.Browser.AllowedHosts {
		if strings.TrimSpace(host) == "" {
			return fmt.Errorf("browser.allowed_hosts[%d]: empty host", i)
		}
	}

	return nil
}

// DefaultModelID returns the default model wire id (<provider_id>/<model_name>).
//
// It assumes Validate() has passed; when config is incomplete it returns
// ("", false).
func (c *Config) DefaultModelID() (string, bool) {
	if c == nil {
		return "", false
	}
	for _, p := range c.Providers {
		pid := strings.TrimSpace(p.ID)
		if pid == "" {
			continue
		}
		for _, m := range p.Models {
			if !m.IsDefault {
				continue
			}
			mn := strings.TrimSpace(m.ModelName)
			if mn == "" {
				continue
			}
			return pid + "/" + mn, true
		}
	}
	return "", false
}

// ProviderByID returns the provider entry with the given id.
func (c *Config) ProviderByID(id string) (Provider, bool) {
	if c == nil {
		return Provider{}, false
	}
	id = strings.TrimSpace(id)
	for _, p := range c.Providers {
		if strings.TrimSpace(p.ID) == id {
			return p, true
		}
	}
	return Provider{}, false
}

func (c *Config) EffectiveHTTPAddr() string {
	if c == nil || strings.TrimSpace(c.HTTPAddr) == "" {
		return defaultHTTPAddr
	}
	return strings.TrimSpace(c.HTTPAddr)
}

func (c *Config) EffectiveSearchProvider() string {
	if c == nil {
		return defaultSearchProvider
	}
	v := strings.ToLower(strings.TrimSpace(c.Search.Provider))
	if v == "" {
		return defaultSearchProvider
	}
	return v
}

func (c *Config) EffectiveResultsPerQuery() int {
	if c == nil || c.Search.ResultsPerQuery <= 0 {
		return defaultResultsPerQuery
	}
	return c.Search.ResultsPerQuery
}

func (r ResearchConfig) EffectiveQueriesPerQuestion() int {
	if r.QueriesPerQuestion <= 0 {
		return defaultQueriesPerQuestion
	}
	return r.QueriesPerQuestion
}

func (r ResearchConfig) EffectiveSubQuestionsPerURL() int {
	if r.SubQuestionsPerURL <= 0 {
		return defaultSubQuestionsPerURL
	}
	return r.SubQuestionsPerURL
}

func (r ResearchConfig) EffectiveMaxURLs() int {
	if r.MaxURLs <= 0 {
		return defaultMaxURLs
	}
	return r.MaxURLs
}

func (r ResearchConfig) EffectiveMaxAttempts() int {
	if r.MaxAttempts <= 0 {
		return defaultMaxAttempts
	}
	return r.MaxAttempts
}

func (r ResearchConfig) EffectiveMaxToolSteps() int {
	if r.MaxToolSteps <= 0 {
		return defaultMaxToolSteps
	}
	return r.MaxToolSteps
}

func (r ResearchConfig) EffectiveMaxConcurrentTasks() int {
	if r.MaxConcurrentTasks <= 0 {
		return defaultMaxConcurrent
	}
	return r.MaxConcurrentTasks
}

func (b BrowserConfig) EffectiveViewportWidth() int {
	if b.ViewportWidth <= 0 {
		return defaultViewportWidth
	}
	return b.ViewportWidth
}

func (b BrowserConfig) EffectiveViewportHeight() int {
	if b.ViewportHeight <= 0 {
		return defaultViewportHeight
	}
	return b.ViewportHeight
}

func (b BrowserConfig) EffectiveSettleMillis() int {
	if b.SettleMillis <= 0 {
		return defaultSettleMillis
	}
	return b.SettleMillis
}

func (b BrowserConfig) EffectiveHeadless() bool {
	if b.Headless == nil {
		return true
	}
	return *b.Headless
}

// DefaultConfigPath returns the default config path:
//
//	~/.research-agent/config.json
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return "research-agent.config.json"
	}
	return filepath.Join(home, ".research-agent", "config.json")
}

// DefaultDBPath returns the default sqlite job store path.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return "research-agent.db"
	}
	return filepath.Join(home, ".research-agent", "jobs.db")
}

func (c *Config) EffectiveDBPath() string {
	if c == nil || strings.TrimSpace(c.DBPath) == "" {
		return DefaultDBPath()
	}
	return strings.TrimSpace(c.DBPath)
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	// Write atomically.
	tmp := path + ".tmp"
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
