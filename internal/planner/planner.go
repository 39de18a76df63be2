// Package planner decomposes a research query into a bounded DAG of
// researcher/critic/synthesiser nodes, falling back to a deterministic
// linear DAG whenever the LLM path cannot produce one.
package planner

import (
	"context"

	"github.com/taipm/hdrp-go/internal/collaborators"
	"github.com/taipm/hdrp-go/internal/hdrptypes"
	"github.com/taipm/hdrp-go/internal/hlog"
)

// Planner turns a query into a Graph. Decompose never returns an error:
// any internal failure is recovered by falling back to the linear DAG,
// per spec.md §4.1's failure semantics.
type Planner struct {
	llm    collaborators.LLM
	limits *collaborators.Limiters
	log    hlog.Logger
}

// New builds a Planner. llm may be nil, in which case every call goes
// straight to the fallback linear DAG (useful for tests and for
// degraded-mode operation without an LLM configured).
func New(llm collaborators.LLM, limits *collaborators.Limiters, log hlog.Logger) *Planner {
	if log == nil {
		log = hlog.NoopLogger{}
	}
	return &Planner{llm: llm, limits: limits, log: log}
}

// Decompose builds a Graph for query under runID. See spec.md §4.1.
func (p *Planner) Decompose(ctx context.Context, query, runID string) *hdrptypes.Graph {
	if p.llm == nil {
		p.log.Info(ctx, "decompose_fallback", hlog.F("query", query), hlog.F("reason", "no_llm_configured"))
		return fallbackLinearDAG(query, runID)
	}

	if p.limits != nil {
		if err := p.limits.Wait(ctx, collaborators.KindLLM); err != nil {
			p.log.Info(ctx, "decompose_fallback", hlog.F("query", query), hlog.F("error", err.Error()))
			return fallbackLinearDAG(query, runID)
		}
	}

	callCtx, cancel := collaborators.WithDeadline(ctx, collaborators.KindLLM)
	defer cancel()

	resp, err := p.llm.Decompose(callCtx, query)
	if err != nil {
		p.log.Info(ctx, "decompose_fallback", hlog.F("query", query), hlog.F("error", err.Error()), hlog.F("error_type", "llm_call_failed"))
		return fallbackLinearDAG(query, runID)
	}

	subtasks, err := validateSubtasks(resp.Subtasks)
	if err != nil {
		p.log.Info(ctx, "decompose_fallback", hlog.F("query", query), hlog.F("error", err.Error()), hlog.F("error_type", "invalid_subtasks"))
		return fallbackLinearDAG(query, runID)
	}

	graph := buildGraph(subtasks, query, runID)
	p.log.Info(ctx, "decompose_success", hlog.F("query", query), hlog.F("node_count", len(graph.Nodes)), hlog.F("edge_count", len(graph.Edges)))
	return graph
}

// subtask mirrors collaborators.Subtask after de-duplication.
type subtask = collaborators.Subtask

// validateSubtasks rejects an empty response and de-duplicates subtask
// ids, keeping the first occurrence (spec.md §4.1 step 1).
func validateSubtasks(raw []subtask) ([]subtask, error) {
	seen := make(map[string]bool, len(raw))
	out := make([]subtask, 0, len(raw))
	for _, s := range raw {
		if s.ID == "" || seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, errNoValidSubtasks
	}
	return out, nil
}

var errNoValidSubtasks = noValidSubtasksError{}

type noValidSubtasksError struct{}

func (noValidSubtasksError) Error() string { return "no valid subtasks in response" }

// buildGraph implements spec.md §4.1 steps 2-8, translating
// original_source/HDRP's _build_graph/_calculate_depths almost
// step-for-step into Go.
func buildGraph(subtasks []subtask, query, runID string) *hdrptypes.Graph {
	depths := calculateDepths(subtasks)

	nodes := make([]*hdrptypes.Node, 0, len(subtasks)+2)
	edges := make([]hdrptypes.Edge, 0, len(subtasks)+2)
	validIDs := make(map[string]bool, len(subtasks))

	for _, s := range subtasks {
		depth := depths[s.ID]
		if depth >= hdrptypes.MaxDepth {
			continue // dropped: depth_exceeded
		}
		validIDs[s.ID] = true
		nodes = append(nodes, &hdrptypes.Node{
			ID:             "researcher_" + s.ID,
			Type:           hdrptypes.NodeResearcher,
			Config:         map[string]string{"query": s.Query},
			Depth:          depth,
			Status:         hdrptypes.StatusCreated,
			RelevanceScore: 1.0,
		})
	}

	for _, s := range subtasks {
		if !validIDs[s.ID] {
			continue
		}
		for _, dep := range s.Dependencies {
			if validIDs[dep] {
				edges = append(edges, hdrptypes.Edge{From: "researcher_" + dep, To: "researcher_" + s.ID})
			}
		}
	}

	hasOutgoing := make(map[string]bool, len(edges))
	for _, e := range edges {
		hasOutgoing[e.From] = true
	}
	var leaves []string
	maxResearcherDepth := 0
	for _, n := range nodes {
		if n.Depth > maxResearcherDepth {
			maxResearcherDepth = n.Depth
		}
		if !hasOutgoing[n.ID] {
			leaves = append(leaves, n.ID)
		}
	}

	criticDepth := min(maxResearcherDepth+1, hdrptypes.MaxDepth-1)
	nodes = append(nodes, &hdrptypes.Node{
		ID:             "critic_1",
		Type:           hdrptypes.NodeCritic,
		Config:         map[string]string{"task": query},
		Depth:          criticDepth,
		Status:         hdrptypes.StatusCreated,
		RelevanceScore: 1.0,
	})
	for _, leaf := range leaves {
		edges = append(edges, hdrptypes.Edge{From: leaf, To: "critic_1"})
	}

	synthDepth := min(criticDepth+1, hdrptypes.MaxDepth-1)
	nodes = append(nodes, &hdrptypes.Node{
		ID:             "synthesiser_1",
		Type:           hdrptypes.NodeSynthesiser,
		Config:         map[string]string{"query": query},
		Depth:          synthDepth,
		Status:         hdrptypes.StatusCreated,
		RelevanceScore: 1.0,
	})
	edges = append(edges, hdrptypes.Edge{From: "critic_1", To: "synthesiser_1"})

	return &hdrptypes.Graph{
		ID:    runID,
		Nodes: nodes,
		Edges: edges,
		Metadata: hdrptypes.GraphMetadata{
			Goal:                query,
			RunID:               runID,
			DecompositionMethod: hdrptypes.DecompositionLLM,
		},
	}
}

// calculateDepths memoises depth(s) = 0 if no deps, else 1 + max(depth(d)),
// ignoring unknown dependency ids (spec.md §4.1 step 2).
func calculateDepths(subtasks []subtask) map[string]int {
	byID := make(map[string]subtask, len(subtasks))
	for _, s := range subtasks {
		byID[s.ID] = s
	}
	depths := make(map[string]int, len(subtasks))

	var get func(id string, visiting map[string]bool) int
	get = func(id string, visiting map[string]bool) int {
		if d, ok := depths[id]; ok {
			return d
		}
		if visiting[id] {
			depths[id] = 0 // cyclic dependency declared by the LLM: treat as depth 0
			return 0
		}
		s, ok := byID[id]
		if !ok || len(s.Dependencies) == 0 {
			depths[id] = 0
			return 0
		}
		visiting[id] = true
		maxDep := 0
		for _, dep := range s.Dependencies {
			if _, known := byID[dep]; known {
				if d := get(dep, visiting) + 1; d > maxDep {
					maxDep = d
				}
			}
		}
		delete(visiting, id)
		depths[id] = maxDep
		return maxDep
	}

	for _, s := range subtasks {
		get(s.ID, map[string]bool{})
	}
	return depths
}

// fallbackLinearDAG builds the canonical three-node chain
// researcher_1 -> critic_1 -> synthesiser_1 (spec.md §4.1 fallback path).
func fallbackLinearDAG(query, runID string) *hdrptypes.Graph {
	nodes := []*hdrptypes.Node{
		{ID: "researcher_1", Type: hdrptypes.NodeResearcher, Config: map[string]string{"query": query}, Depth: 0, Status: hdrptypes.StatusCreated, RelevanceScore: 1.0},
		{ID: "critic_1", Type: hdrptypes.NodeCritic, Config: map[string]string{"task": query}, Depth: 1, Status: hdrptypes.StatusCreated, RelevanceScore: 1.0},
		{ID: "synthesiser_1", Type: hdrptypes.NodeSynthesiser, Config: map[string]string{"query": query}, Depth: 2, Status: hdrptypes.StatusCreated, RelevanceScore: 1.0},
	}
	edges := []hdrptypes.Edge{
		{From: "researcher_1", To: "critic_1"},
		{From: "critic_1", To: "synthesiser_1"},
	}
	return &hdrptypes.Graph{
		ID:    runID,
		Nodes: nodes,
		Edges: edges,
		Metadata: hdrptypes.GraphMetadata{
			Goal:                query,
			RunID:               runID,
			DecompositionMethod: hdrptypes.DecompositionFallback,
		},
	}
}
