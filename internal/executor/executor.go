// Package executor implements the DAG Executor: a dispatcher loop over
// a bounded worker pool that schedules nodes once every predecessor
// reaches a terminal status (spec.md §4.2, §5).
package executor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/taipm/hdrp-go/internal/collaborators"
	"github.com/taipm/hdrp-go/internal/critic"
	"github.com/taipm/hdrp-go/internal/hdrptypes"
	"github.com/taipm/hdrp-go/internal/herrors"
	"github.com/taipm/hdrp-go/internal/hlog"
	"github.com/taipm/hdrp-go/internal/synthesiser"
)

// topK is how many search hits a researcher node extracts claims from.
const topK = 5

// cancellationGrace bounds how long the dispatcher waits for inflight
// nodes to unwind after the run deadline or caller cancellation fires
// (spec.md §4.2 "Cancellation").
const cancellationGrace = 5 * time.Second

// introduction is the fixed paragraph every synthesiser node attaches,
// adapted from the read-only dag_executor.go reference's synthesizer
// dispatch (same idea, reworded to this system's own voice).
const introduction = "This report was assembled by an automated multi-hop research pipeline: a query was decomposed into independent subtasks, each subtask's claims were checked against their cited source text, and only claims that passed verification are cited below."

// Deps bundles the external collaborators and shared infrastructure a
// node dispatch needs. Any field may be nil; dispatch degrades
// gracefully per spec.md's per-component failure semantics.
type Deps struct {
	Search     collaborators.Search
	LLM        collaborators.LLM
	Verifier   *critic.Verifier
	Limits     *collaborators.Limiters
	Log        hlog.Logger
	WorkerPool int
}

// Report is the Executor's return value: the assembled markdown
// report plus the statistics the artefact writer needs.
type Report struct {
	Query          string
	ReportTitle    string
	Report         string
	Sources        []synthesiser.Source
	TotalClaims    int
	VerifiedClaims int
	NodeStatuses   map[string]hdrptypes.NodeStatus
}

type completion struct {
	nodeID string
	output interface{}
	err    error
}

// Execute runs graph to completion under runID, respecting ctx's
// deadline (spec.md §4.2).
func Execute(ctx context.Context, graph *hdrptypes.Graph, deps Deps, runID string) (*Report, error) {
	if deps.Log == nil {
		deps.Log = hlog.NoopLogger{}
	}
	workers := deps.WorkerPool
	if workers <= 0 {
		workers = 4
	}

	indegree := make(map[string]int, len(graph.Nodes))
	for _, n := range graph.Nodes {
		indegree[n.ID] = len(graph.Predecessors(n.ID))
	}

	var ready []string
	for _, n := range graph.Nodes {
		if indegree[n.ID] == 0 {
			ready = append(ready, n.ID)
		}
	}

	outputs := make(map[string]interface{}, len(graph.Nodes))
	completions := make(chan completion, workers)
	inflight := 0
	query := graph.Metadata.Goal

	cancelled := false

	for len(ready) > 0 || inflight > 0 {
		if !cancelled {
			select {
			case <-ctx.Done():
				cancelled = true
				deps.Log.Warn(ctx, "run_cancelled", hlog.F("reason", ctx.Err().Error()))
			default:
			}
		}

		for !cancelled && len(ready) > 0 && inflight < workers {
			nodeID := ready[0]
			ready = ready[1:]
			node := graph.NodeByID(nodeID)
			node.Status = hdrptypes.StatusRunning
			inflight++

			deps.Log.Info(ctx, "node_dispatched", hlog.F("node_id", nodeID), hlog.F("node_type", string(node.Type)))
			go func(n *hdrptypes.Node) {
				out, err := dispatch(ctx, n, graph, outputs, deps, query, runID)
				completions <- completion{nodeID: n.ID, output: out, err: err}
			}(node)
		}

		if inflight == 0 {
			break
		}

		select {
		case c := <-completions:
			inflight--
			node := graph.NodeByID(c.nodeID)
			if c.err != nil {
				node.Status = hdrptypes.StatusFailed
				deps.Log.Warn(ctx, "node_failed", hlog.F("node_id", c.nodeID), hlog.F("error", c.err.Error()))
			} else {
				node.Status = hdrptypes.StatusSucceeded
				outputs[c.nodeID] = c.output
				deps.Log.Info(ctx, "node_succeeded", hlog.F("node_id", c.nodeID))
			}

			if node.Type == hdrptypes.NodeSynthesiser && c.err != nil {
				return nil, herrors.Wrap(herrors.Internal, "synthesiser node failed", c.err)
			}

			for _, succID := range graph.Successors(c.nodeID) {
				indegree[succID]--
				if indegree[succID] == 0 {
					if succ := graph.NodeByID(succID); succ.Status == hdrptypes.StatusCreated {
						ready = append(ready, succID)
					}
				}
			}

		case <-time.After(cancellationGrace):
			if cancelled {
				return nil, herrors.New(herrors.Timeout, "run deadline exceeded, inflight nodes did not unwind in time")
			}
		}
	}

	if cancelled {
		return nil, herrors.New(herrors.Timeout, "run cancelled before completion")
	}

	return buildReport(graph, outputs, query)
}

// dispatch routes a node to its type-specific handler.
func dispatch(ctx context.Context, node *hdrptypes.Node, graph *hdrptypes.Graph, outputs map[string]interface{}, deps Deps, query, runID string) (interface{}, error) {
	switch node.Type {
	case hdrptypes.NodeResearcher:
		return dispatchResearcher(ctx, node, deps)
	case hdrptypes.NodeCritic:
		return dispatchCritic(ctx, node, graph, outputs, deps, runID)
	case hdrptypes.NodeSynthesiser:
		return dispatchSynthesiser(node, graph, outputs, query)
	default:
		return nil, herrors.New(herrors.Internal, fmt.Sprintf("unknown node type %q", node.Type))
	}
}

// dispatchResearcher calls Search then extracts atomic claims from the
// top-k hits (spec.md §4.2). With no LLM configured, each hit's
// snippet is taken directly as both statement and support text — the
// same "degrade gracefully without the collaborator" idiom the
// Planner uses for decomposition.
func dispatchResearcher(ctx context.Context, node *hdrptypes.Node, deps Deps) ([]hdrptypes.AtomicClaim, error) {
	if deps.Search == nil {
		return nil, herrors.New(herrors.Internal, "no search collaborator configured")
	}
	query := node.Config["query"]

	if deps.Limits != nil {
		if err := deps.Limits.Wait(ctx, collaborators.KindSearch); err != nil {
			return nil, herrors.Wrap(herrors.Timeout, "search rate limit wait", err)
		}
	}
	callCtx, cancel := collaborators.WithDeadline(ctx, collaborators.KindSearch)
	hits, err := deps.Search.Search(callCtx, query)
	cancel()
	if err != nil {
		return nil, herrors.Wrap(herrors.ExternalUnavailable, "search failed", err)
	}

	if len(hits) > topK {
		hits = hits[:topK]
	}

	var claims []hdrptypes.AtomicClaim
	for _, hit := range hits {
		extracted, err := extractClaims(ctx, deps, query, hit)
		if err != nil {
			deps.Log.Warn(ctx, "claim_extraction_failed", hlog.F("node_id", node.ID), hlog.F("url", hit.URL), hlog.F("error", err.Error()))
			continue
		}
		for _, e := range extracted {
			if e.Statement == "" || e.SupportText == "" {
				continue
			}
			claims = append(claims, hdrptypes.AtomicClaim{
				Statement:    e.Statement,
				SupportText:  e.SupportText,
				SourceURL:    hit.URL,
				SourceTitle:  hit.Title,
				SourceRank:   hit.Rank,
				SourceNodeID: node.ID,
				Timestamp:    time.Now().UTC(),
			})
		}
	}
	return claims, nil
}

func extractClaims(ctx context.Context, deps Deps, query string, hit hdrptypes.SearchResult) ([]collaborators.ExtractedClaim, error) {
	if deps.LLM == nil {
		return []collaborators.ExtractedClaim{{Statement: hit.Snippet, SupportText: hit.Snippet}}, nil
	}

	if deps.Limits != nil {
		if err := deps.Limits.Wait(ctx, collaborators.KindLLM); err != nil {
			return nil, err
		}
	}
	callCtx, cancel := collaborators.WithDeadline(ctx, collaborators.KindLLM)
	defer cancel()
	return deps.LLM.ExtractClaims(callCtx, query, hit)
}

// dispatchCritic gathers claims from every researcher ancestor,
// transitively through researcher-to-researcher edges (spec.md §4.2:
// "gather the union of claims produced by predecessors, transitive
// through researcher nodes") even though the graph only wires direct
// edges from leaf researchers into the critic. Only successful
// researchers contribute.
func dispatchCritic(ctx context.Context, node *hdrptypes.Node, graph *hdrptypes.Graph, outputs map[string]interface{}, deps Deps, runID string) ([]hdrptypes.CritiqueResult, error) {
	ancestors := researcherAncestors(graph, node.ID)
	sort.Strings(ancestors)

	var claims []hdrptypes.AtomicClaim
	for _, id := range ancestors {
		researcher := graph.NodeByID(id)
		if researcher == nil || researcher.Status != hdrptypes.StatusSucceeded {
			continue
		}
		if rc, ok := outputs[id].([]hdrptypes.AtomicClaim); ok {
			claims = append(claims, rc...)
		}
	}

	task := node.Config["task"]
	if deps.Verifier == nil {
		return []hdrptypes.CritiqueResult{}, nil
	}
	return deps.Verifier.Verify(ctx, claims, task, runID), nil
}

// researcherAncestors walks backward from nodeID over every incoming
// edge, collecting every researcher-type node reachable, however deep.
func researcherAncestors(graph *hdrptypes.Graph, nodeID string) []string {
	visited := make(map[string]bool)
	var out []string

	var walk func(id string)
	walk = func(id string) {
		for _, predID := range graph.Predecessors(id) {
			if visited[predID] {
				continue
			}
			visited[predID] = true
			if pred := graph.NodeByID(predID); pred != nil && pred.Type == hdrptypes.NodeResearcher {
				out = append(out, predID)
			}
			walk(predID)
		}
	}
	walk(nodeID)
	return out
}

// dispatchSynthesiser gathers the unique critic predecessor's
// CritiqueResult list and invokes the Synthesiser.
func dispatchSynthesiser(node *hdrptypes.Node, graph *hdrptypes.Graph, outputs map[string]interface{}, query string) (synthesisOutput, error) {
	var results []hdrptypes.CritiqueResult
	for _, predID := range graph.Predecessors(node.ID) {
		if rc, ok := outputs[predID].([]hdrptypes.CritiqueResult); ok {
			results = rc
			break
		}
	}

	reportTitle := "HDRP Research Report: " + query
	report, sources := synthesiser.Synthesise(results, synthesiser.Context{ReportTitle: reportTitle, Introduction: introduction})

	verified := 0
	for _, r := range results {
		if r.IsValid {
			verified++
		}
	}

	return synthesisOutput{
		Report:         report,
		Sources:        sources,
		TotalClaims:    len(results),
		VerifiedClaims: verified,
		ReportTitle:    reportTitle,
	}, nil
}

type synthesisOutput struct {
	Report         string
	Sources        []synthesiser.Source
	TotalClaims    int
	VerifiedClaims int
	ReportTitle    string
}

// buildReport extracts the final Report from the synthesiser node's output.
func buildReport(graph *hdrptypes.Graph, outputs map[string]interface{}, query string) (*Report, error) {
	statuses := make(map[string]hdrptypes.NodeStatus, len(graph.Nodes))
	for _, n := range graph.Nodes {
		statuses[n.ID] = n.Status
	}

	for _, n := range graph.Nodes {
		if n.Type != hdrptypes.NodeSynthesiser {
			continue
		}
		out, ok := outputs[n.ID].(synthesisOutput)
		if !ok {
			continue
		}
		return &Report{
			Query:          query,
			ReportTitle:    out.ReportTitle,
			Report:         out.Report,
			Sources:        out.Sources,
			TotalClaims:    out.TotalClaims,
			VerifiedClaims: out.VerifiedClaims,
			NodeStatuses:   statuses,
		}, nil
	}

	return nil, herrors.New(herrors.Internal, "no synthesiser output produced")
}
