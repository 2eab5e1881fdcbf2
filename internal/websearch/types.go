package websearch

import "strings"

const (
	ProviderBrave    = "brave"
	ProviderDisabled = "disabled"
)

type SearchRequest struct {
	Query string
	Count int
}

func (r SearchRequest) Normalize() SearchRequest {
	out := r
	out.Query = strings.TrimSpace(out.Query)
	if out.Count <= 0 {
		out.Count = 5
	}
	if out.Count > 10 {
		out.Count = 10
	}
	return out
}

type ResultItem struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

type SearchResult struct {
	Provider string       `json:"provider"`
	Query    string       `json:"query"`
	Results  []ResultItem `json:"results"`
}

// URLs returns the result URLs in rank order, empty entries dropped.
func (r SearchResult) URLs() []string {
	urls := make([]string, 0, len(r.Results))
	for _, item := range r.Results {
		u := strings.TrimSpace(item.URL)
		if u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}
