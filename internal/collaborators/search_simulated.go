package collaborators

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/taipm/hdrp-go/internal/hdrptypes"
)

// SimulatedSearch is the default (`provider=simulated`) Search
// collaborator: deterministic fixtures keyed by substring match against
// the query, used in tests and as the zero-config default (spec.md §6).
type SimulatedSearch struct {
	// Fixtures maps a lowercase substring to the hits returned when the
	// query contains it. Keys are tried longest first and the first
	// match wins; no match returns a single generic hit.
	Fixtures map[string][]hdrptypes.SearchResult
}

// NewSimulatedSearch returns a SimulatedSearch pre-loaded with the
// fixtures used by the end-to-end scenarios in spec.md §8 (S1, S2).
func NewSimulatedSearch() *SimulatedSearch {
	return &SimulatedSearch{
		Fixtures: map[string][]hdrptypes.SearchResult{
			"capital of france": {
				{URL: "https://example.org/france", Title: "France", Rank: 1, Snippet: "Paris is the capital of France."},
			},
			"quantum": {
				{URL: "https://example.org/quantum-1", Title: "Quantum computing overview", Rank: 1, Snippet: "Quantum computers use qubits in superposition."},
				{URL: "https://example.org/quantum-2", Title: "Quantum vs classical", Rank: 2, Snippet: "Classical bits are either 0 or 1, unlike qubits."},
			},
			"classical computing": {
				{URL: "https://example.org/classical-1", Title: "Classical computing basics", Rank: 1, Snippet: "Classical computers process bits sequentially."},
			},
		},
	}
}

// Search returns the fixture whose key is a substring of the
// lowercased query, or a single generic "no strong match" hit.
func (s *SimulatedSearch) Search(ctx context.Context, query string) ([]hdrptypes.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lower := strings.ToLower(query)

	keys := make([]string, 0, len(s.Fixtures))
	for k := range s.Fixtures {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })

	for _, k := range keys {
		if strings.Contains(lower, k) {
			return s.Fixtures[k], nil
		}
	}

	return []hdrptypes.SearchResult{
		{URL: "https://example.org/generic", Title: "General reference", Rank: 1, Snippet: fmt.Sprintf("General information related to: %s", query)},
	}, nil
}
