// Package critic implements the Claim Verifier: a two-test rule over
// an entailment collaborator, with lexical-overlap fallback, a bounded
// score cache, and run-level statistics (spec.md §4.3).
package critic

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/taipm/hdrp-go/internal/collaborators"
	"github.com/taipm/hdrp-go/internal/hdrptypes"
	"github.com/taipm/hdrp-go/internal/hlog"
)

// Cache is the entailment-score cache interface, implemented by both
// EntailmentCache (default, in-memory FIFO) and RedisEntailmentCache
// (optional backend, SPEC_FULL.md §B).
type Cache interface {
	Get(key string) (Relation, bool)
	Set(key string, rel Relation)
	Stats() CacheStats
}

// Thresholds are the two-test rule's acceptance bounds (spec.md §4.3,
// §9: "leave as configuration").
type Thresholds struct {
	TauGround    float64
	KappaContra  float64
	TauRelevance float64
}

// DefaultThresholds returns the spec's tuned defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{TauGround: 0.65, KappaContra: 0.35, TauRelevance: 0.45}
}

// Verifier is the Claim Verifier component.
type Verifier struct {
	entailment collaborators.Entailment
	limits     *collaborators.Limiters
	cache      Cache
	thresholds Thresholds
	variant    string
	log        hlog.Logger

	scoresMu sync.Mutex
	scores   []float64 // every entailment score observed this run, for RunStats
}

// New builds a Verifier. entailment may be nil, in which case every
// claim is judged purely by lexical overlap (spec.md §4.3's failure
// path, applied unconditionally).
func New(entailment collaborators.Entailment, limits *collaborators.Limiters, cache Cache, thresholds Thresholds, variant string, log hlog.Logger) *Verifier {
	if log == nil {
		log = hlog.NoopLogger{}
	}
	if cache == nil {
		cache = NewEntailmentCache(0)
	}
	return &Verifier{
		entailment: entailment,
		limits:     limits,
		cache:      cache,
		thresholds: thresholds,
		variant:    variant,
		log:        log,
	}
}

// Verify judges each claim in claims against task, preserving length
// and order (spec.md §4.3).
func (v *Verifier) Verify(ctx context.Context, claims []hdrptypes.AtomicClaim, task, runID string) []hdrptypes.CritiqueResult {
	results := make([]hdrptypes.CritiqueResult, len(claims))
	for i, claim := range claims {
		results[i] = v.verifyOne(ctx, claim, task)
	}

	stats := v.cache.Stats()
	v.log.Info(ctx, "verifier_cache_stats", hlog.F("hits", stats.Hits), hlog.F("misses", stats.Misses), hlog.F("size", stats.Size), hlog.F("evictions", stats.Evictions))
	return results
}

func (v *Verifier) verifyOne(ctx context.Context, claim hdrptypes.AtomicClaim, task string) hdrptypes.CritiqueResult {
	groundRel, groundErr := v.relate(ctx, claim.SupportText, claim.Statement)
	relevanceRel, relevanceErr := v.relate(ctx, claim.Statement, task)

	// Both tests fall back to lexical overlap when the entailment call
	// fails (spec.md §4.3): grounding via testGrounding's own >= 0.50
	// Jaccard bound, relevance via testRelevance's > 0.60 Jaccard bound.
	// Only when neither claim/task pair has any overlapping tokens at
	// all — nothing for either fallback to measure — is the claim
	// rejected outright as unevaluable.
	if groundErr != nil && relevanceErr != nil &&
		lexicalJaccard(claim.Statement, claim.SupportText) == 0 &&
		lexicalJaccard(claim.Statement, task) == 0 {
		return hdrptypes.CritiqueResult{Claim: claim, IsValid: false, Reasoning: "verifier_unavailable"}
	}

	groundPass, groundScore, groundReason := v.testGrounding(claim, groundRel, groundErr)
	relevancePass, relevanceScore, relevanceReason := v.testRelevance(claim, task, relevanceRel, relevanceErr)

	isValid := groundPass && relevancePass
	reasoning := groundReason
	if isValid {
		overlap := lexicalJaccard(claim.Statement, task)
		reasoning = v.acceptedReasoning(groundRel, groundScore, relevanceScore, overlap)
	} else if groundPass {
		reasoning = relevanceReason
	}

	return hdrptypes.CritiqueResult{
		Claim:           claim,
		IsValid:         isValid,
		Reasoning:       reasoning,
		EntailmentScore: groundScore,
	}
}

// acceptedReasoning builds the reasoning text for an accepted claim,
// including the optional govaluate-evaluated threshold diagnostic
// (SPEC_FULL §B) alongside the two raw scores. The diagnostic
// re-expresses the two-test accept rule as an operator-legible boolean
// expression and reports whether it, too, held.
func (v *Verifier) acceptedReasoning(rel *Relation, groundScore, relevanceScore, overlap float64) string {
	base := fmt.Sprintf("accepted: grounding entailment=%.2f, relevance entailment=%.2f", groundScore, relevanceScore)

	contradiction := 0.0
	if rel != nil {
		contradiction = rel.Contradiction
	}

	expr := fmt.Sprintf("entailment >= %.2f && contradiction <= %.2f && (relevance >= %.2f || overlap > 0.6)",
		v.thresholds.TauGround, v.thresholds.KappaContra, v.thresholds.TauRelevance)
	held, err := EvalThresholdExpr(expr, groundScore, contradiction, relevanceScore, overlap)
	if err != nil {
		return base
	}
	return fmt.Sprintf("%s; threshold expr %q held=%v", base, expr, held)
}

// testGrounding implements Test 1 (spec.md §4.3): entailment(support,
// statement) >= TauGround and contradiction <= KappaContra. On
// entailment failure, falls back to lexical overlap at a 0.5 bound.
func (v *Verifier) testGrounding(claim hdrptypes.AtomicClaim, rel *Relation, err error) (pass bool, score float64, reason string) {
	if err != nil {
		jaccard := lexicalJaccard(claim.Statement, claim.SupportText)
		pass = jaccard >= 0.5
		if !pass {
			return false, jaccard, fmt.Sprintf("grounding failed: entailment unavailable, lexical overlap %.2f < 0.50", jaccard)
		}
		return true, jaccard, ""
	}
	score = rel.Entailment
	if score < v.thresholds.TauGround {
		return false, score, fmt.Sprintf("grounding failed: entailment %.2f < %.2f", score, v.thresholds.TauGround)
	}
	if rel.Contradiction > v.thresholds.KappaContra {
		return false, score, fmt.Sprintf("grounding failed: contradiction %.2f > %.2f", rel.Contradiction, v.thresholds.KappaContra)
	}
	return true, score, ""
}

// testRelevance implements Test 2 (spec.md §4.3): entailment(statement,
// task) >= TauRelevance OR lexical Jaccard > 0.6. The lexical fallback
// also covers entailment-call failure.
func (v *Verifier) testRelevance(claim hdrptypes.AtomicClaim, task string, rel *Relation, err error) (pass bool, score float64, reason string) {
	jaccard := lexicalJaccard(claim.Statement, task)

	if err == nil && rel.Entailment >= v.thresholds.TauRelevance {
		return true, rel.Entailment, ""
	}
	if jaccard > 0.6 {
		return true, jaccard, ""
	}
	if err == nil {
		return false, rel.Entailment, fmt.Sprintf("relevance failed: entailment %.2f < %.2f and lexical overlap %.2f <= 0.60", rel.Entailment, v.thresholds.TauRelevance, jaccard)
	}
	return false, jaccard, fmt.Sprintf("relevance failed: entailment unavailable, lexical overlap %.2f <= 0.60", jaccard)
}

// relate queries the entailment collaborator, going through the cache
// first. Returns (nil, err) if the collaborator is unconfigured or the
// call fails; callers fall back to lexical overlap in that case.
func (v *Verifier) relate(ctx context.Context, premise, hypothesis string) (*Relation, error) {
	if v.entailment == nil {
		return nil, fmt.Errorf("critic: no entailment collaborator configured")
	}

	key := Key(premise, hypothesis, v.variant)
	if cached, ok := v.cache.Get(key); ok {
		v.recordScore(cached.Entailment)
		return &cached, nil
	}

	if v.limits != nil {
		if err := v.limits.Wait(ctx, collaborators.KindEntailment); err != nil {
			return nil, err
		}
	}
	callCtx, cancel := collaborators.WithDeadline(ctx, collaborators.KindEntailment)
	defer cancel()

	rel, err := v.entailment.Relate(callCtx, premise, hypothesis, v.variant)
	if err != nil {
		return nil, err
	}

	cacheRel := Relation{Entailment: rel.Entailment, Contradiction: rel.Contradiction, Neutral: rel.Neutral}
	v.cache.Set(key, cacheRel)
	v.recordScore(rel.Entailment)
	return &cacheRel, nil
}

func (v *Verifier) recordScore(score float64) {
	v.scoresMu.Lock()
	v.scores = append(v.scores, score)
	v.scoresMu.Unlock()
}

// RunStats is the gonum-computed summary of this run's entailment
// scores (SPEC_FULL.md §B: mean grounding confidence, score spread).
type RunStats struct {
	MeanEntailment   float64
	StdDevEntailment float64
	SampleCount      int
}

// Stats computes RunStats over every entailment score observed so far.
func (v *Verifier) Stats() RunStats {
	v.scoresMu.Lock()
	defer v.scoresMu.Unlock()

	if len(v.scores) == 0 {
		return RunStats{}
	}
	mean := stat.Mean(v.scores, nil)
	stddev := stat.StdDev(v.scores, nil)
	return RunStats{MeanEntailment: mean, StdDevEntailment: stddev, SampleCount: len(v.scores)}
}

// stopWords is the fixed stop-word list lexical overlap filters out
// before computing Jaccard similarity (spec.md §4.3).
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true, "were": true,
	"of": true, "in": true, "on": true, "at": true, "to": true, "for": true, "and": true,
	"or": true, "but": true, "with": true, "by": true, "from": true, "as": true, "it": true,
	"this": true, "that": true, "be": true, "been": true, "has": true, "have": true, "had": true,
	"what": true, "who": true, "why": true, "when": true, "where": true, "how": true,
	"which": true, "does": true, "do": true, "did": true, "can": true, "could": true,
	"will": true, "would": true, "should": true,
}

// tokenize lowercases, splits on non-letters/digits, and drops stop words.
func tokenize(s string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f == "" || stopWords[f] {
			continue
		}
		set[f] = true
	}
	return set
}

// lexicalJaccard computes the Jaccard similarity of a's and b's
// stop-word-filtered token sets (spec.md §4.3).
func lexicalJaccard(a, b string) float64 {
	ta, tb := tokenize(a), tokenize(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 0
	}
	inter := 0
	for tok := range ta {
		if tb[tok] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
