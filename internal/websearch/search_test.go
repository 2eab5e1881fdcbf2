package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormalizeClampsCount(t *testing.T) {
	t.Parallel()
	if got := (SearchRequest{Query: " q "}).Normalize(); got.Query != "q" || got.Count != 5 {
		t.Fatalf("unexpected normalization: %+v", got)
	}
	if got := (SearchRequest{Query: "q", Count: 50}).Normalize(); got.Count != 10 {
		t.Fatalf("count not clamped: %+v", got)
	}
}

func TestNewRejectsMissingKeyAndUnknownProvider(t *testing.T) {
	t.Parallel()
	if _, err := New(ProviderBrave, "", nil); err == nil {
		t.Fatal("expected error for missing api key")
	}
	if _, err := New("bing", "key", nil); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
	if s, err := New("", "key", nil); err != nil || s == nil {
		t.Fatalf("expected default provider, got %v, %v", s, err)
	}
}

func TestNewDisabledProviderSearchesNothing(t *testing.T) {
	t.Parallel()
	s, err := New(ProviderDisabled, "", nil)
	if err != nil {
		t.Fatalf("disabled provider must not need a key: %v", err)
	}
	res, err := s.Search(context.Background(), SearchRequest{Query: "anything"})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(res.URLs()) != 0 {
		t.Fatalf("expected no urls, got %v", res.URLs())
	}
	if res.Provider != ProviderDisabled {
		t.Fatalf("unexpected provider %q", res.Provider)
	}
}

func TestBraveSearch(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Subscription-Token"); got != "secret" {
			t.Errorf("missing subscription token, got %q", got)
		}
		if got := r.URL.Query().Get("q"); got != "go runtime scheduler" {
			t.Errorf("unexpected query %q", got)
		}
		if got := r.URL.Query().Get("count"); got != "3" {
			t.Errorf("unexpected count %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"web":{"results":[
			{"title":"A","url":"https://example.com/a","description":"first"},
			{"title":"B","url":"  ","description":"blank url dropped"},
			{"title":"C","url":"https://example.com/c"}
		]}}`))
	}))
	defer srv.Close()

	client := NewBraveClient("secret", srv.Client())
	client.endpoint = srv.URL

	res, err := client.Search(context.Background(), SearchRequest{Query: "go runtime scheduler", Count: 3})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(res.Results) != 2 {
		t.Fatalf("expected 2 results, got %+v", res.Results)
	}
	urls := res.URLs()
	if len(urls) != 2 || urls[0] != "https://example.com/a" || urls[1] != "https://example.com/c" {
		t.Fatalf("unexpected urls %v", urls)
	}
}

func TestBraveSearchErrorStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewBraveClient("secret", srv.Client())
	client.endpoint = srv.URL

	if _, err := client.Search(context.Background(), SearchRequest{Query: "q"}); err == nil {
		t.Fatal("expected error on non-2xx status")
	}
}
