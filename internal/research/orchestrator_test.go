package research

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/floegence/research-agent/internal/browser"
	"github.com/floegence/research-agent/internal/llm"
	"github.com/floegence/research-agent/internal/websearch"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeInvoker answers by prompt kind: query generation, sub-question
// generation, page reading, and folding are told apart by their prompt text.
type fakeInvoker struct {
	queries      string
	subQuestions string
	readAnswer   string
	readErr      error
	foldCalls    []string
	invocations  int
}

func (f *fakeInvoker) Invoke(_ context.Context, req llm.InvokeRequest) (string, error) {
	f.invocations++
	switch {
	case strings.Contains(req.Prompt, "search engine queries"):
		return f.queries, nil
	case strings.Contains(req.Prompt, "list of questions"):
		return f.subQuestions, nil
	case strings.Contains(req.Prompt, "START FINAL ANSWER"):
		f.foldCalls = append(f.foldCalls, req.Prompt)
		return "improved answer (" + string(rune('0'+len(f.foldCalls))) + ")", nil
	default:
		if f.readErr != nil {
			return "", f.readErr
		}
		return f.readAnswer, nil
	}
}

type fakeSearcher struct {
	results map[string][]string
	err     error
}

func (f *fakeSearcher) Search(_ context.Context, req websearch.SearchRequest) (websearch.SearchResult, error) {
	if f.err != nil {
		return websearch.SearchResult{}, f.err
	}
	var items []websearch.ResultItem
	for _, u := range f.results[req.Query] {
		items = append(items, websearch.ResultItem{URL: u})
	}
	return websearch.SearchResult{Query: req.Query, Results: items}, nil
}

// navFailEngine refuses navigation to the listed URLs.
type navFailEngine struct {
	fakeDoc  string
	failURLs map[string]bool
}

func (e *navFailEngine) Navigate(_ context.Context, url string) error {
	if e.failURLs[url] {
		return errors.New("connection refused")
	}
	return nil
}

func (e *navFailEngine) Metrics(context.Context) (browser.Metrics, error) {
	return browser.Metrics{ScrollOffset: 0, ViewportHeight: 100, DocumentHeight: float64(len(e.fakeDoc))}, nil
}
func (e *navFailEngine) ScrollBy(context.Context, float64) error     { return nil }
func (e *navFailEngine) ScrollTo(context.Context, float64) error    { return nil }
func (e *navFailEngine) VisibleText(context.Context) (string, error) { return e.fakeDoc, nil }
func (e *navFailEngine) Close() error                                { return nil }

func testDeps(inv Invoker, s websearch.Searcher, factory browser.EngineFactory) Deps {
	return Deps{
		Log:                discardLogger(),
		Invoker:            inv,
		Searcher:           s,
		NewEngine:          factory,
		QueriesPerQuestion: 3,
		SubQuestionsPerURL: 2,
		MaxURLs:            20,
		ResultsPerQuery:    5,
	}
}

func TestRunPartialFailureScenario(t *testing.T) {
	t.Parallel()
	inv := &fakeInvoker{
		queries:      "q1\nq2\nq3",
		subQuestions: "Find the install steps.\nFind the version history.",
		readAnswer:   "an extracted answer",
	}
	search := &fakeSearcher{results: map[string][]string{
		"q1": {"https://a.example/one", "https://b.example/two"},
		"q2": {"https://b.example/two"},
		"q3": {},
	}}
	failing := map[string]bool{"https://b.example/two": true}
	factory := func(context.Context) (browser.Engine, error) {
		return &navFailEngine{fakeDoc: strings.Repeat("x", 300), failURLs: failing}, nil
	}

	o, err := NewOrchestrator(testDeps(inv, search, factory))
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	report, err := o.Run(context.Background(), "how do I install the thing?")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(report.Queries) != 3 {
		t.Fatalf("expected 3 queries, got %v", report.Queries)
	}
	// Dedup preserves first-discovery order.
	wantURLs := []string{"https://a.example/one", "https://b.example/two"}
	if len(report.URLs) != 2 || report.URLs[0] != wantURLs[0] || report.URLs[1] != wantURLs[1] {
		t.Fatalf("unexpected urls %v", report.URLs)
	}

	if len(report.URLReports) != 2 {
		t.Fatalf("expected 2 url reports, got %+v", report.URLReports)
	}
	good, bad := report.URLReports[0], report.URLReports[1]
	if good.Skipped || len(good.Answers) != 2 {
		t.Fatalf("healthy url not interrogated: %+v", good)
	}
	if !bad.Skipped || bad.SkipReason != "navigation failed" {
		t.Fatalf("failed url not tagged as skipped: %+v", bad)
	}

	// One contributor, so exactly one fold step and its output is the answer.
	if len(inv.foldCalls) != 1 {
		t.Fatalf("expected 1 fold call, got %d", len(inv.foldCalls))
	}
	if report.FinalAnswer != "improved answer (1)" {
		t.Fatalf("unexpected final answer %q", report.FinalAnswer)
	}
	if !strings.Contains(inv.foldCalls[0], "https://a.example/one") {
		t.Fatalf("fold prompt does not name the contributing url")
	}
	if !strings.Contains(inv.foldCalls[0], "an extracted answer") {
		t.Fatalf("fold prompt does not carry the url answers")
	}
}

func TestRunAllURLsFailIsSuccessWithEmptyAnswer(t *testing.T) {
	t.Parallel()
	inv := &fakeInvoker{
		queries:      "q1\nq2\nq3",
		subQuestions: "A?\nB?",
	}
	search := &fakeSearcher{results: map[string][]string{
		"q1": {"https://dead.example/x"},
	}}
	factory := func(context.Context) (browser.Engine, error) {
		return &navFailEngine{fakeDoc: "x", failURLs: map[string]bool{"https://dead.example/x": true}}, nil
	}

	o, _ := NewOrchestrator(testDeps(inv, search, factory))
	report, err := o.Run(context.Background(), "anything")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if report.FinalAnswer != "" {
		t.Fatalf("expected empty final answer, got %q", report.FinalAnswer)
	}
	if len(inv.foldCalls) != 0 {
		t.Fatalf("fold must not run without contributors")
	}
}

func TestRunSearchFailureContributesNothing(t *testing.T) {
	t.Parallel()
	inv := &fakeInvoker{queries: "q1\nq2\nq3", subQuestions: "A?\nB?"}
	search := &fakeSearcher{err: errors.New("backend down")}
	factory := func(context.Context) (browser.Engine, error) {
		return &navFailEngine{fakeDoc: "x"}, nil
	}

	o, _ := NewOrchestrator(testDeps(inv, search, factory))
	report, err := o.Run(context.Background(), "anything")
	if err != nil {
		t.Fatalf("search failure must not fail the task: %v", err)
	}
	if len(report.URLs) != 0 || len(report.URLReports) != 0 {
		t.Fatalf("expected no urls, got %+v", report)
	}
}

func TestRunInterrogationErrorStopsOnlyThatURL(t *testing.T) {
	t.Parallel()
	inv := &fakeInvoker{
		queries:      "q1\nq2\nq3",
		subQuestions: "A?\nB?",
		readErr:      llm.ErrAttemptsExhausted,
	}
	search := &fakeSearcher{results: map[string][]string{
		"q1": {"https://a.example/one", "https://c.example/three"},
	}}
	factory := func(context.Context) (browser.Engine, error) {
		return &navFailEngine{fakeDoc: strings.Repeat("x", 300)}, nil
	}

	o, _ := NewOrchestrator(testDeps(inv, search, factory))
	report, err := o.Run(context.Background(), "anything")
	if err != nil {
		t.Fatalf("interrogation failure must not fail the task: %v", err)
	}
	if len(report.URLReports) != 2 {
		t.Fatalf("expected both urls visited, got %+v", report.URLReports)
	}
	for _, ur := range report.URLReports {
		if ur.Skipped {
			t.Fatalf("interrogation error must not tag a skip: %+v", ur)
		}
		if len(ur.Answers) != 0 {
			t.Fatalf("unexpected answers: %+v", ur)
		}
	}
}

func TestRunQueryGenerationFailureFailsTask(t *testing.T) {
	t.Parallel()
	inv := &failingInvoker{}
	search := &fakeSearcher{}
	factory := func(context.Context) (browser.Engine, error) {
		return &navFailEngine{fakeDoc: "x"}, nil
	}

	o, _ := NewOrchestrator(testDeps(inv, search, factory))
	if _, err := o.Run(context.Background(), "anything"); !errors.Is(err, llm.ErrAttemptsExhausted) {
		t.Fatalf("expected attempts-exhausted failure, got %v", err)
	}
}

type failingInvoker struct{}

func (failingInvoker) Invoke(context.Context, llm.InvokeRequest) (string, error) {
	return "", llm.ErrAttemptsExhausted
}

func TestRunRejectsEmptyQuestion(t *testing.T) {
	t.Parallel()
	o, _ := NewOrchestrator(testDeps(&fakeInvoker{}, &fakeSearcher{}, func(context.Context) (browser.Engine, error) {
		return &navFailEngine{fakeDoc: "x"}, nil
	}))
	if _, err := o.Run(context.Background(), "   "); err == nil {
		t.Fatal("expected error for empty question")
	}
}
