package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taipm/hdrp-go/internal/collaborators"
	"github.com/taipm/hdrp-go/internal/hdrptypes"
)

// fakeLLM is a minimal collaborators.LLM fake, in the style of the
// teacher's mockLLMGenerator: it returns a canned response or error.
type fakeLLM struct {
	decomposeResp *collaborators.DecompositionResponse
	decomposeErr  error
}

func (f *fakeLLM) Decompose(ctx context.Context, query string) (*collaborators.DecompositionResponse, error) {
	if f.decomposeErr != nil {
		return nil, f.decomposeErr
	}
	return f.decomposeResp, nil
}

func (f *fakeLLM) ExtractClaims(ctx context.Context, query string, hit hdrptypes.SearchResult) ([]collaborators.ExtractedClaim, error) {
	return nil, nil
}

func graphValid(t *testing.T, g *hdrptypes.Graph) {
	t.Helper()

	ids := make(map[string]bool)
	for _, n := range g.Nodes {
		assert.False(t, ids[n.ID], "duplicate node id %s", n.ID)
		ids[n.ID] = true
		assert.GreaterOrEqual(t, n.Depth, 0)
		assert.Less(t, n.Depth, hdrptypes.MaxDepth)
	}
	for _, e := range g.Edges {
		assert.True(t, ids[e.From], "edge references unknown node %s", e.From)
		assert.True(t, ids[e.To], "edge references unknown node %s", e.To)
		assert.NotEqual(t, e.From, e.To, "self-loop at %s", e.From)
	}

	var sinks, critics int
	hasOutgoing := make(map[string]bool)
	for _, e := range g.Edges {
		hasOutgoing[e.From] = true
	}
	for _, n := range g.Nodes {
		if !hasOutgoing[n.ID] {
			sinks++
			assert.Equal(t, hdrptypes.NodeSynthesiser, n.Type, "sink must be the synthesiser")
		}
		if n.Type == hdrptypes.NodeCritic {
			critics++
		}
	}
	assert.Equal(t, 1, sinks, "exactly one sink")
	assert.Equal(t, 1, critics, "exactly one critic")
}

func TestDecomposeNoLLMFallsBackToLinear(t *testing.T) {
	p := New(nil, nil, nil)
	g := p.Decompose(context.Background(), "What is the capital of France?", "run-1")

	require.Equal(t, hdrptypes.DecompositionFallback, g.Metadata.DecompositionMethod)
	require.Len(t, g.Nodes, 3)
	graphValid(t, g)
}

func TestDecomposeLLMErrorFallsBack(t *testing.T) {
	p := New(&fakeLLM{decomposeErr: errors.New("boom")}, nil, nil)
	g := p.Decompose(context.Background(), "query", "run-2")

	assert.Equal(t, hdrptypes.DecompositionFallback, g.Metadata.DecompositionMethod)
	graphValid(t, g)
}

func TestDecomposeEmptySubtasksFallsBack(t *testing.T) {
	p := New(&fakeLLM{decomposeResp: &collaborators.DecompositionResponse{Subtasks: nil}}, nil, nil)
	g := p.Decompose(context.Background(), "query", "run-3")

	assert.Equal(t, hdrptypes.DecompositionFallback, g.Metadata.DecompositionMethod)
}

func TestDecomposeLLMPathBuildsDAG(t *testing.T) {
	resp := &collaborators.DecompositionResponse{
		Subtasks: []collaborators.Subtask{
			{ID: "s1", Query: "Japan economy"},
			{ID: "s2", Query: "Germany economy"},
			{ID: "s3", Query: "Compare", Dependencies: []string{"s1", "s2"}},
		},
	}
	p := New(&fakeLLM{decomposeResp: resp}, nil, nil)
	g := p.Decompose(context.Background(), "Compare economies", "run-4")

	require.Equal(t, hdrptypes.DecompositionLLM, g.Metadata.DecompositionMethod)
	graphValid(t, g)

	// s3 depends on both s1 and s2, so only s3 (a leaf among researchers)
	// should have an edge into the critic.
	var criticPreds []string
	for _, e := range g.Edges {
		if e.To == "critic_1" {
			criticPreds = append(criticPreds, e.From)
		}
	}
	assert.Equal(t, []string{"researcher_s3"}, criticPreds)
}

func TestDecomposeDuplicateIDsKeepsFirst(t *testing.T) {
	resp := &collaborators.DecompositionResponse{
		Subtasks: []collaborators.Subtask{
			{ID: "s1", Query: "first"},
			{ID: "s1", Query: "second (duplicate id, dropped)"},
		},
	}
	p := New(&fakeLLM{decomposeResp: resp}, nil, nil)
	g := p.Decompose(context.Background(), "q", "run-5")

	var researcherCount int
	for _, n := range g.Nodes {
		if n.Type == hdrptypes.NodeResearcher {
			researcherCount++
			assert.Equal(t, "first", n.Config["query"])
		}
	}
	assert.Equal(t, 1, researcherCount)
}

func TestDecomposeDeepChainPrunesBeyondMaxDepth(t *testing.T) {
	// A chain of 5: s1 <- s2 <- s3 <- s4 <- s5, depths 0..4.
	// Only depth < MaxDepth (3) survive: s1(0), s2(1), s3(2).
	resp := &collaborators.DecompositionResponse{
		Subtasks: []collaborators.Subtask{
			{ID: "s1", Query: "q1"},
			{ID: "s2", Query: "q2", Dependencies: []string{"s1"}},
			{ID: "s3", Query: "q3", Dependencies: []string{"s2"}},
			{ID: "s4", Query: "q4", Dependencies: []string{"s3"}},
			{ID: "s5", Query: "q5", Dependencies: []string{"s4"}},
		},
	}
	p := New(&fakeLLM{decomposeResp: resp}, nil, nil)
	g := p.Decompose(context.Background(), "q", "run-6")

	var researcherIDs []string
	for _, n := range g.Nodes {
		if n.Type == hdrptypes.NodeResearcher {
			researcherIDs = append(researcherIDs, n.ID)
		}
	}
	assert.ElementsMatch(t, []string{"researcher_s1", "researcher_s2", "researcher_s3"}, researcherIDs)
}

func TestDecomposeUnknownDependencyIgnoredForDepth(t *testing.T) {
	resp := &collaborators.DecompositionResponse{
		Subtasks: []collaborators.Subtask{
			{ID: "s1", Query: "q1", Dependencies: []string{"ghost"}},
		},
	}
	p := New(&fakeLLM{decomposeResp: resp}, nil, nil)
	g := p.Decompose(context.Background(), "q", "run-7")

	n := g.NodeByID("researcher_s1")
	require.NotNil(t, n)
	assert.Equal(t, 0, n.Depth)
}
