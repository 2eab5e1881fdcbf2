package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/floegence/research-agent/internal/browser"
	"github.com/floegence/research-agent/internal/llm"
	"github.com/floegence/research-agent/internal/websearch"
)

// Invoker is the validated prompt runner the orchestrator drives. Satisfied
// by *llm.Invoker.
type Invoker interface {
	Invoke(ctx context.Context, req llm.InvokeRequest) (string, error)
}

// Deps bundles every capability a task run needs. Nothing here is global;
// the orchestrator touches the outside world only through this struct.
type Deps struct {
	Log       *slog.Logger
	Invoker   Invoker
	Searcher  websearch.Searcher
	NewEngine browser.EngineFactory

	AllowedHosts []string

	QueriesPerQuestion int
	SubQuestionsPerURL int
	MaxURLs            int
	ResultsPerQuery    int
}

// Orchestrator runs research tasks: query generation, URL discovery,
// sub-question generation, per-URL interrogation, and answer folding, in
// that order, each phase entered exactly once.
//
// Only the three invocation phases can fail a task. A search backend fault
// contributes zero URLs; a URL that cannot be opened or read is skipped and
// tagged in the report. A task whose every URL fails completes with an empty
// final answer.
type Orchestrator struct {
	log  *slog.Logger
	deps Deps
}

func NewOrchestrator(deps Deps) (*Orchestrator, error) {
	if deps.Invoker == nil {
		return nil, errors.New("missing invoker")
	}
	if deps.Searcher == nil {
		return nil, errors.New("missing searcher")
	}
	if deps.NewEngine == nil {
		return nil, errors.New("missing engine factory")
	}
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	if deps.QueriesPerQuestion <= 0 {
		deps.QueriesPerQuestion = 3
	}
	if deps.SubQuestionsPerURL <= 0 {
		deps.SubQuestionsPerURL = 3
	}
	if deps.MaxURLs <= 0 {
		deps.MaxURLs = 20
	}
	if deps.ResultsPerQuery <= 0 {
		deps.ResultsPerQuery = 5
	}
	return &Orchestrator{log: log, deps: deps}, nil
}

// Run executes one task to completion.
func (o *Orchestrator) Run(ctx context.Context, question string) (Report, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Report{}, errors.New("empty question")
	}
	report := Report{Question: question}
	o.log.Info("research task started", "question", question)

	queries, err := o.generateQueries(ctx, question)
	if err != nil {
		return report, fmt.Errorf("generate queries: %w", err)
	}
	report.Queries = queries

	report.URLs = o.discoverURLs(ctx, queries)
	o.log.Info("url discovery complete", "urls", len(report.URLs))

	subQuestions, err := o.generateSubQuestions(ctx, question)
	if err != nil {
		return report, fmt.Errorf("generate sub-questions: %w", err)
	}

	for _, u := range report.URLs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.URLReports = append(report.URLReports, o.interrogateURL(ctx, u, subQuestions))
	}

	final, err := o.fold(ctx, question, report.Contributors())
	if err != nil {
		return report, fmt.Errorf("fold answers: %w", err)
	}
	report.FinalAnswer = final
	o.log.Info("research task complete", "answer_chars", len(final))
	return report, nil
}

func (o *Orchestrator) generateQueries(ctx context.Context, question string) ([]string, error) {
	answer, err := o.deps.Invoker.Invoke(ctx, llm.InvokeRequest{
		Instructions: queryInstructions(),
		Prompt:       queryPrompt(question, o.deps.QueriesPerQuestion),
		Validators: []llm.Validator{
			llm.NoCodeFence("Invalid queries, do not include tool calls in your response"),
			llm.LineCount(o.deps.QueriesPerQuestion, "queries"),
		},
	})
	if err != nil {
		return nil, err
	}
	queries := llm.SplitLines(answer)
	for i, q := range queries {
		o.log.Info("search query generated", "index", i+1, "query", q)
	}
	return queries, nil
}

// discoverURLs searches every query and merges the results, deduplicating
// while preserving first-discovery order. A failed search contributes
// nothing.
func (o *Orchestrator) discoverURLs(ctx context.Context, queries []string) []string {
	seen := make(map[string]struct{})
	var urls []string
	for _, q := range queries {
		res, err := o.deps.Searcher.Search(ctx, websearch.SearchRequest{Query: q, Count: o.deps.ResultsPerQuery})
		if err != nil {
			o.log.Warn("search failed", "query", q, "error", err)
			continue
		}
		for _, u := range res.URLs() {
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			urls = append(urls, u)
			if len(urls) >= o.deps.MaxURLs {
				return urls
			}
		}
	}
	return urls
}

func (o *Orchestrator) generateSubQuestions(ctx context.Context, question string) ([]string, error) {
	answer, err := o.deps.Invoker.Invoke(ctx, llm.InvokeRequest{
		Instructions: subQuestionInstructions(),
		Prompt:       subQuestionPrompt(question, o.deps.SubQuestionsPerURL),
		Validators: []llm.Validator{
			llm.NoCodeFence("Invalid questions, do not include tool calls in your response"),
			llm.LineCount(o.deps.SubQuestionsPerURL, "questions"),
		},
	})
	if err != nil {
		return nil, err
	}
	questions := llm.SplitLines(answer)
	for i, q := range questions {
		o.log.Info("sub-question generated", "index", i+1, "question", q)
	}
	return questions, nil
}

// interrogateURL opens a fresh session for one URL and asks each
// sub-question against it. A session or navigation failure skips the URL
// wholly; an interrogation error abandons the remaining sub-questions for
// this URL only. The session is closed on every path.
func (o *Orchestrator) interrogateURL(ctx context.Context, url string, subQuestions []string) URLReport {
	report := URLReport{URL: url}
	o.log.Info("analyzing url", "url", url)

	engine, err := o.deps.NewEngine(ctx)
	if err != nil {
		o.log.Warn("browser session failed", "url", url, "error", err)
		report.Skipped = true
		report.SkipReason = "browser session failed: " + err.Error()
		return report
	}
	nav := browser.NewNavigator(engine, browser.NavigatorOptions{
		Log:          o.log,
		AllowedHosts: o.deps.AllowedHosts,
	})
	defer nav.Close()

	if !nav.Open(ctx, url) {
		report.Skipped = true
		report.SkipReason = "navigation failed"
		return report
	}

	for i, sub := range subQuestions {
		answer, err := o.deps.Invoker.Invoke(ctx, llm.InvokeRequest{
			Instructions: readingInstructions(),
			Prompt:       readingPrompt(sub),
			Tools:        browserTools(nav),
			Validators: []llm.Validator{
				llm.NoCodeFence("Invalid answer, do not include tool calls in your response"),
				llm.NonEmpty("No answer provided, try again but ensure you find the answer or provide context on why you couldn't find it."),
			},
		})
		if err != nil {
			o.log.Warn("interrogation failed", "url", url, "question", sub, "error", err)
			break
		}
		if answer != "" {
			o.log.Info("answer received", "url", url, "question_index", i+1, "chars", len(answer))
			report.Answers = append(report.Answers, answer)
		}
	}
	return report
}

// fold rewrites the final answer once per contributing URL, in discovery
// order. The current answer is embedded in each prompt between the START/END
// markers; the model returns the improved whole.
func (o *Orchestrator) fold(ctx context.Context, question string, contributors []URLReport) (string, error) {
	final := ""
	for _, ur := range contributors {
		o.log.Info("folding url answers", "url", ur.URL, "answers", len(ur.Answers))
		improved, err := o.deps.Invoker.Invoke(ctx, llm.InvokeRequest{
			Instructions: summarizeInstructions(),
			Prompt:       foldPrompt(question, ur.URL, ur.Answers, final),
			Validators: []llm.Validator{
				llm.NoCodeFence("Invalid summary, do not include tool calls in your response"),
				llm.NonEmpty("Invalid summary, try again"),
			},
		})
		if err != nil {
			return final, err
		}
		final = improved
	}
	return final, nil
}
