// Package collaborators defines the abstract external collaborators the
// pipeline consumes (search, LLM, entailment) and a token-bucket
// limiter shared across their concrete adapters.
package collaborators

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/taipm/hdrp-go/internal/hdrptypes"
)

// Search is the search-provider collaborator: free-text query in,
// ranked hits out. Ranks start at 1.
type Search interface {
	Search(ctx context.Context, query string) ([]hdrptypes.SearchResult, error)
}

// Subtask is one entry of a DecompositionResponse.
type Subtask struct {
	ID           string   `json:"id"`
	Query        string   `json:"query"`
	Dependencies []string `json:"dependencies"`
	Entities     []string `json:"entities"`
}

// DecompositionResponse is the LLM's raw decomposition output, parsed
// by the Planner (spec.md §4.1).
type DecompositionResponse struct {
	Subtasks  []Subtask `json:"subtasks"`
	Reasoning string    `json:"reasoning"`
}

// ExtractedClaim is one claim the LLM pulled out of a search snippet,
// before the researcher node attaches source metadata.
type ExtractedClaim struct {
	Statement   string `json:"statement"`
	SupportText string `json:"support_text"`
}

// LLM is the large-language-model collaborator used for query
// decomposition and claim extraction.
type LLM interface {
	// Decompose asks the model to break a query into a subtask graph.
	Decompose(ctx context.Context, query string) (*DecompositionResponse, error)
	// ExtractClaims asks the model to pull atomic claims out of a
	// single search hit's snippet, relative to the originating query.
	ExtractClaims(ctx context.Context, query string, hit hdrptypes.SearchResult) ([]ExtractedClaim, error)
}

// Relation is the entailment collaborator's verdict for one
// premise/hypothesis pair.
type Relation struct {
	Entailment    float64 `json:"entailment"`
	Contradiction float64 `json:"contradiction"`
	Neutral       float64 `json:"neutral"`
	Variant       string  `json:"variant"`
}

// Entailment is the NLI model server collaborator: POST /relation with
// an X-Model-Variant header (spec.md §6).
type Entailment interface {
	Relate(ctx context.Context, premise, hypothesis, variant string) (*Relation, error)
}

// Kind names which collaborator a rate limiter or call-timeout applies
// to, matching spec.md §5's per-call-timeout table.
type Kind string

const (
	KindSearch     Kind = "search"
	KindLLM        Kind = "llm"
	KindEntailment Kind = "entailment"
)

// CallTimeout returns the fixed per-call timeout for a collaborator
// kind (spec.md §5: search 30s, LLM 60s, NLI 10s). The caller must
// still clamp this to the run's remaining deadline.
func CallTimeout(kind Kind) time.Duration {
	switch kind {
	case KindSearch:
		return 30 * time.Second
	case KindLLM:
		return 60 * time.Second
	case KindEntailment:
		return 10 * time.Second
	default:
		return 30 * time.Second
	}
}

// Limiters holds one token-bucket limiter per collaborator kind, shared
// by every caller handed the same Limiters, in the idiom of the
// teacher's tokenBucketLimiter (global mode). The runner builds one
// Limiters per run, so concurrent runs do not share a rate budget.
type Limiters struct {
	perKind map[Kind]*rate.Limiter
}

// NewLimiters builds limiters with reasonable defaults for each kind:
// search and entailment calls are typically cheap and frequent, LLM
// calls are expensive and rarer.
func NewLimiters() *Limiters {
	return &Limiters{
		perKind: map[Kind]*rate.Limiter{
			KindSearch:     rate.NewLimiter(rate.Limit(10), 20),
			KindLLM:        rate.NewLimiter(rate.Limit(2), 4),
			KindEntailment: rate.NewLimiter(rate.Limit(20), 40),
		},
	}
}

// Wait blocks until kind's limiter admits one call, or ctx is done.
func (l *Limiters) Wait(ctx context.Context, kind Kind) error {
	lim, ok := l.perKind[kind]
	if !ok {
		return nil
	}
	return lim.Wait(ctx)
}

// WithDeadline returns a context bounded by the smaller of kind's fixed
// call timeout and the run's own deadline (spec.md §5).
func WithDeadline(ctx context.Context, kind Kind) (context.Context, context.CancelFunc) {
	timeout := CallTimeout(kind)
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	return context.WithTimeout(ctx, timeout)
}
