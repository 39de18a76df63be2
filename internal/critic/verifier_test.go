package critic

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taipm/hdrp-go/internal/collaborators"
	"github.com/taipm/hdrp-go/internal/hdrptypes"
)

// fakeEntailment is a scripted collaborators.Entailment fake, keyed by
// the (premise, hypothesis) pair it was called with.
type fakeEntailment struct {
	byPair map[[2]string]collaborators.Relation
	err    error
	calls  int
}

func (f *fakeEntailment) Relate(ctx context.Context, premise, hypothesis, variant string) (*collaborators.Relation, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	rel, ok := f.byPair[[2]string{premise, hypothesis}]
	if !ok {
		return &collaborators.Relation{}, nil
	}
	return &rel, nil
}

func claim(statement, support string) hdrptypes.AtomicClaim {
	return hdrptypes.AtomicClaim{Statement: statement, SupportText: support, SourceURL: "https://example.com"}
}

func TestVerifyAcceptsWellGroundedRelevantClaim(t *testing.T) {
	c := claim("The Eiffel Tower is in Paris.", "The Eiffel Tower, located in Paris, France, was completed in 1889.")
	task := "Where is the Eiffel Tower located?"

	fe := &fakeEntailment{byPair: map[[2]string]collaborators.Relation{
		{c.SupportText, c.Statement}: {Entailment: 0.9, Contradiction: 0.05},
		{c.Statement, task}:          {Entailment: 0.8},
	}}

	v := New(fe, collaborators.NewLimiters(), NewEntailmentCache(10), DefaultThresholds(), "v1", nil)
	results := v.Verify(context.Background(), []hdrptypes.AtomicClaim{c}, task, "run-1")

	require.Len(t, results, 1)
	assert.True(t, results[0].IsValid)
	assert.InDelta(t, 0.9, results[0].EntailmentScore, 0.0001)
}

func TestVerifyRejectsLowGroundingEntailment(t *testing.T) {
	c := claim("Paris has a population of 50 million.", "Paris is the capital of France.")
	task := "What is the population of Paris?"

	fe := &fakeEntailment{byPair: map[[2]string]collaborators.Relation{
		{c.SupportText, c.Statement}: {Entailment: 0.1, Contradiction: 0.2},
		{c.Statement, task}:          {Entailment: 0.9},
	}}

	v := New(fe, collaborators.NewLimiters(), NewEntailmentCache(10), DefaultThresholds(), "v1", nil)
	results := v.Verify(context.Background(), []hdrptypes.AtomicClaim{c}, task, "run-2")

	require.Len(t, results, 1)
	assert.False(t, results[0].IsValid)
}

func TestVerifyRejectsHighContradiction(t *testing.T) {
	c := claim("The treaty was signed in 1919.", "The treaty was never signed and negotiations collapsed.")
	task := "When was the treaty signed?"

	fe := &fakeEntailment{byPair: map[[2]string]collaborators.Relation{
		{c.SupportText, c.Statement}: {Entailment: 0.7, Contradiction: 0.9},
		{c.Statement, task}:          {Entailment: 0.9},
	}}

	v := New(fe, collaborators.NewLimiters(), NewEntailmentCache(10), DefaultThresholds(), "v1", nil)
	results := v.Verify(context.Background(), []hdrptypes.AtomicClaim{c}, task, "run-3")

	require.Len(t, results, 1)
	assert.False(t, results[0].IsValid)
}

func TestVerifyRejectsIrrelevantClaim(t *testing.T) {
	c := claim("Bananas are yellow.", "Bananas are yellow when ripe.")
	task := "What is the capital of France?"

	fe := &fakeEntailment{byPair: map[[2]string]collaborators.Relation{
		{c.SupportText, c.Statement}: {Entailment: 0.95, Contradiction: 0.0},
		{c.Statement, task}:          {Entailment: 0.02},
	}}

	v := New(fe, collaborators.NewLimiters(), NewEntailmentCache(10), DefaultThresholds(), "v1", nil)
	results := v.Verify(context.Background(), []hdrptypes.AtomicClaim{c}, task, "run-4")

	require.Len(t, results, 1)
	assert.False(t, results[0].IsValid)
}

func TestVerifyAcceptsOnLexicalRelevanceFallback(t *testing.T) {
	// Low relevance entailment, but the statement shares most of its
	// words with the task, so the lexical-overlap OR-branch accepts it.
	c := claim("capital france paris city", "Paris is the capital city of France.")
	task := "capital france paris city"

	fe := &fakeEntailment{byPair: map[[2]string]collaborators.Relation{
		{c.SupportText, c.Statement}: {Entailment: 0.9, Contradiction: 0.0},
		{c.Statement, task}:          {Entailment: 0.01},
	}}

	v := New(fe, collaborators.NewLimiters(), NewEntailmentCache(10), DefaultThresholds(), "v1", nil)
	results := v.Verify(context.Background(), []hdrptypes.AtomicClaim{c}, task, "run-5")

	require.Len(t, results, 1)
	assert.True(t, results[0].IsValid)
}

func TestVerifyFallsBackToLexicalOnEntailmentFailure(t *testing.T) {
	c := claim("capital france paris city located", "Paris capital france city located europe")
	task := "capital france paris city located"

	fe := &fakeEntailment{err: errors.New("nli server unreachable")}

	v := New(fe, collaborators.NewLimiters(), NewEntailmentCache(10), DefaultThresholds(), "v1", nil)
	results := v.Verify(context.Background(), []hdrptypes.AtomicClaim{c}, task, "run-6")

	require.Len(t, results, 1)
	assert.True(t, results[0].IsValid)
	assert.NotEmpty(t, results[0].Reasoning)
}

func TestVerifyNilEntailmentJudgesPurelyByLexicalOverlap(t *testing.T) {
	c := claim("unrelated statement about nothing relevant", "completely different support text")
	task := "some other topic entirely"

	v := New(nil, nil, NewEntailmentCache(10), DefaultThresholds(), "v1", nil)
	results := v.Verify(context.Background(), []hdrptypes.AtomicClaim{c}, task, "run-7")

	require.Len(t, results, 1)
	assert.False(t, results[0].IsValid)
}

func TestVerifyPreservesOrderAndLength(t *testing.T) {
	claims := []hdrptypes.AtomicClaim{
		claim("a", "a"),
		claim("b", "b"),
		claim("c", "c"),
	}
	v := New(nil, nil, NewEntailmentCache(10), DefaultThresholds(), "v1", nil)
	results := v.Verify(context.Background(), claims, "task", "run-8")

	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, claims[i].Statement, r.Claim.Statement)
	}
}

func TestVerifyUsesCacheOnRepeatedPair(t *testing.T) {
	c1 := claim("The sky is blue.", "The sky appears blue due to Rayleigh scattering.")
	c2 := claim("The sky is blue.", "The sky appears blue due to Rayleigh scattering.")
	task := "Why is the sky blue?"

	fe := &fakeEntailment{byPair: map[[2]string]collaborators.Relation{
		{c1.SupportText, c1.Statement}: {Entailment: 0.9, Contradiction: 0.0},
		{c1.Statement, task}:           {Entailment: 0.8},
	}}

	v := New(fe, collaborators.NewLimiters(), NewEntailmentCache(10), DefaultThresholds(), "v1", nil)
	v.Verify(context.Background(), []hdrptypes.AtomicClaim{c1}, task, "run-9")
	v.Verify(context.Background(), []hdrptypes.AtomicClaim{c2}, task, "run-9")

	// Two claims, two tests each = 4 potential calls if uncached;
	// the second claim is identical so its pairs should hit cache.
	assert.Equal(t, 2, fe.calls)

	stats := v.cache.Stats()
	assert.Equal(t, int64(2), stats.Hits)
}

func TestRunStatsComputesMeanAndStdDev(t *testing.T) {
	c := claim("The Eiffel Tower is in Paris.", "The Eiffel Tower, located in Paris, is a landmark.")
	task := "Where is the Eiffel Tower?"

	fe := &fakeEntailment{byPair: map[[2]string]collaborators.Relation{
		{c.SupportText, c.Statement}: {Entailment: 0.8, Contradiction: 0.0},
		{c.Statement, task}:          {Entailment: 0.6},
	}}

	v := New(fe, collaborators.NewLimiters(), NewEntailmentCache(10), DefaultThresholds(), "v1", nil)
	v.Verify(context.Background(), []hdrptypes.AtomicClaim{c}, task, "run-10")

	stats := v.Stats()
	assert.Equal(t, 2, stats.SampleCount)
	assert.InDelta(t, 0.7, stats.MeanEntailment, 0.0001)
	// Sample standard deviation of {0.8, 0.6}: sqrt(0.02 / 1).
	assert.InDelta(t, 0.141421, stats.StdDevEntailment, 0.0001)
}

func TestLexicalJaccardSymmetricAndBounded(t *testing.T) {
	j := lexicalJaccard("the quick brown fox", "quick brown fox jumps")
	assert.Greater(t, j, 0.0)
	assert.LessOrEqual(t, j, 1.0)
	assert.Equal(t, j, lexicalJaccard("quick brown fox jumps", "the quick brown fox"))
}

func TestLexicalJaccardIdenticalIsOne(t *testing.T) {
	j := lexicalJaccard("paris is the capital of france", "paris is the capital of france")
	assert.InDelta(t, 1.0, j, 0.0001)
}
