// Package ctxgraph implements the context graph executor from spec §4.C: a
// validated DAG of context-provider nodes, scheduled wave-by-wave with
// bounded parallelism.
//
// The wave-dispatch idiom is grounded on the teacher's semaphore+WaitGroup
// concurrency pattern in internal/agent/tool_exec.go, generalized to use
// golang.org/x/sync/errgroup (itself grounded on the pack's
// goadesign-goa-ai go.mod and other_examples orchestrator files, which use
// errgroup for the same bounded-fan-out shape the teacher hand-rolls).
package ctxgraph

import (
	"fmt"
	"sort"

	"github.com/agentic/runtime/internal/runtime/types"
)

// ValidationError reports one structural defect found before execution.
type ValidationError struct {
	Reason string
	NodeID string
}

func (e ValidationError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s: %s", e.Reason, e.NodeID)
	}
	return e.Reason
}

// Validate checks the closed set of structural defects from spec §4.C:
// duplicate ids, self-edges, unknown edge endpoints, budget-ceiling
// violations, dependsOn<->edge mismatches, and cycles (iterative DFS with
// temporary/permanent marks).
func Validate(graph types.AgentGraph, policy types.GraphPolicy) []ValidationError {
	var errs []ValidationError

	if graph.Version != types.CurrentGraphVersion {
		errs = append(errs, ValidationError{Reason: "unsupported graph version: " + graph.Version})
	}

	seen := map[string]bool{}
	for _, n := range graph.Nodes {
		if seen[n.ID] {
			errs = append(errs, ValidationError{Reason: "duplicate node id", NodeID: n.ID})
			continue
		}
		seen[n.ID] = true
	}

	for _, e := range graph.Edges {
		if e.From == e.To {
			errs = append(errs, ValidationError{Reason: "self edge", NodeID: e.From})
		}
		if !seen[e.From] {
			errs = append(errs, ValidationError{Reason: "edge references unknown node", NodeID: e.From})
		}
		if !seen[e.To] {
			errs = append(errs, ValidationError{Reason: "edge references unknown node", NodeID: e.To})
		}
	}

	for _, n := range graph.Nodes {
		if policy.MaxLatencyMs > 0 && int64(n.Budget.MaxLatencyMs) > policy.MaxLatencyMs.Milliseconds() {
			errs = append(errs, ValidationError{Reason: "node latency budget exceeds policy ceiling", NodeID: n.ID})
		}
		if policy.MaxRetries > 0 && n.Budget.MaxRetries > policy.MaxRetries {
			errs = append(errs, ValidationError{Reason: "node retry budget exceeds policy ceiling", NodeID: n.ID})
		}
	}

	if mismatch := dependsOnEdgeMismatch(graph); mismatch != "" {
		errs = append(errs, ValidationError{Reason: "dependsOn/edge mismatch", NodeID: mismatch})
	}

	if cyc := findCycle(graph); cyc != "" {
		errs = append(errs, ValidationError{Reason: "cycle detected", NodeID: cyc})
	}

	return errs
}

// dependsOnEdgeMismatch returns the first node id whose DependsOn set
// doesn't exactly match the set of edges pointing to it (spec requires
// edges maintained redundantly so validation can assert they agree).
func dependsOnEdgeMismatch(graph types.AgentGraph) string {
	edgeDeps := map[string]map[string]bool{}
	for _, e := range graph.Edges {
		if edgeDeps[e.To] == nil {
			edgeDeps[e.To] = map[string]bool{}
		}
		edgeDeps[e.To][e.From] = true
	}
	for _, n := range graph.Nodes {
		want := map[string]bool{}
		for _, d := range n.DependsOn {
			want[d] = true
		}
		got := edgeDeps[n.ID]
		if len(want) != len(got) {
			return n.ID
		}
		for d := range want {
			if !got[d] {
				return n.ID
			}
		}
	}
	return ""
}

// findCycle runs an iterative DFS with temporary/permanent marks and
// returns the id of a node found on a cycle, or "" if the graph is acyclic.
func findCycle(graph types.AgentGraph) string {
	adj := map[string][]string{}
	for _, e := range graph.Edges {
		adj[e.From] = append(adj[e.From], e.To)
	}
	// deterministic order for reproducible error messages
	ids := make([]string, 0, len(graph.Nodes))
	for _, n := range graph.Nodes {
		ids = append(ids, n.ID)
	}
	sort.Strings(ids)

	const (
		unvisited = 0
		temp      = 1
		perm      = 2
	)
	mark := map[string]int{}

	type frame struct {
		id        string
		childIdx  int
	}

	for _, start := range ids {
		if mark[start] != unvisited {
			continue
		}
		stack := []frame{{id: start}}
		mark[start] = temp
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			children := adj[top.id]
			if top.childIdx < len(children) {
				child := children[top.childIdx]
				top.childIdx++
				switch mark[child] {
				case unvisited:
					mark[child] = temp
					stack = append(stack, frame{id: child})
				case temp:
					return child
				case perm:
					// already fully explored, safe
				}
				continue
			}
			mark[top.id] = perm
			stack = stack[:len(stack)-1]
		}
	}
	return ""
}
