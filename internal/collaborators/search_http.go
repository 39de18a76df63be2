package collaborators

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/taipm/hdrp-go/internal/hdrptypes"
)

// HTTPSearch is a generic HTTP-backed Search collaborator used for the
// non-simulated providers named in spec.md §6 (`google`, `tavily`, …).
// Each provider differs only in endpoint and API-key query parameter, so
// one struct parameterised by those two things covers all of them,
// following the conditional-construction idiom used throughout the
// teacher's adapters package rather than one type per provider.
type HTTPSearch struct {
	Endpoint   string
	APIKey     string
	APIKeyParam string // query-param name the key is sent under
	Client     *http.Client
}

// NewGoogleSearch builds an HTTPSearch configured for a Google
// Programmable Search Engine-shaped endpoint.
func NewGoogleSearch(apiKey string) *HTTPSearch {
	return &HTTPSearch{
		Endpoint:    "https://www.googleapis.com/customsearch/v1",
		APIKey:      apiKey,
		APIKeyParam: "key",
		Client:      &http.Client{Timeout: CallTimeout(KindSearch)},
	}
}

// NewTavilySearch builds an HTTPSearch configured for the Tavily search
// API's query endpoint.
func NewTavilySearch(apiKey string) *HTTPSearch {
	return &HTTPSearch{
		Endpoint:    "https://api.tavily.com/search",
		APIKey:      apiKey,
		APIKeyParam: "api_key",
		Client:      &http.Client{Timeout: CallTimeout(KindSearch)},
	}
}

type httpSearchResponse struct {
	Results []struct {
		URL     string `json:"url"`
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
	} `json:"results"`
}

func (h *HTTPSearch) Search(ctx context.Context, query string) ([]hdrptypes.SearchResult, error) {
	u, err := url.Parse(h.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("search: invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	if h.APIKey != "" {
		q.Set(h.APIKeyParam, h.APIKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("search: build request: %w", err)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("search: provider returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("search: provider rejected request: %d", resp.StatusCode)
	}

	var parsed httpSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("search: decode response: %w", err)
	}

	results := make([]hdrptypes.SearchResult, 0, len(parsed.Results))
	for i, r := range parsed.Results {
		results = append(results, hdrptypes.SearchResult{
			URL:     r.URL,
			Title:   r.Title,
			Rank:    i + 1,
			Snippet: r.Snippet,
		})
	}
	return results, nil
}
