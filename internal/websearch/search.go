package websearch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Searcher is one web search backend. Implementations normalize the request
// before use.
type Searcher interface {
	Search(ctx context.Context, req SearchRequest) (SearchResult, error)
}

// New returns the searcher for a configured provider name. The disabled
// provider is a working searcher that finds nothing; no key is required.
func New(provider string, apiKey string, httpClient *http.Client) (Searcher, error) {
	provider = strings.TrimSpace(strings.ToLower(provider))
	if provider == "" {
		provider = ProviderBrave
	}
	switch provider {
	case ProviderDisabled:
		return disabledSearcher{}, nil
	case ProviderBrave:
		apiKey = strings.TrimSpace(apiKey)
		if apiKey == "" {
			return nil, errors.New("missing web search api key")
		}
		return NewBraveClient(apiKey, httpClient), nil
	default:
		return nil, fmt.Errorf("unsupported web search provider %q", provider)
	}
}

type disabledSearcher struct{}

func (disabledSearcher) Search(_ context.Context, req SearchRequest) (SearchResult, error) {
	req = req.Normalize()
	return SearchResult{Provider: ProviderDisabled, Query: req.Query}, nil
}
