package ctxgraph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentic/runtime/internal/runtime/types"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// EventKind is the closed set of events the executor emits (spec §4.C).
type EventKind string

const (
	EventGraphStarted          EventKind = "graph_started"
	EventGraphValidationFailed EventKind = "graph_validation_failed"
	EventNodeStarted           EventKind = "node_started"
	EventNodeRetry             EventKind = "node_retry"
	EventNodeCompleted         EventKind = "node_completed"
	EventNodeFailed            EventKind = "node_failed"
	EventArtifactWritten       EventKind = "artifact_written"
	EventGraphCompleted        EventKind = "graph_completed"
)

// Event is one emitted execution event, carrying a monotonic per-trace id.
type Event struct {
	Seq     int64
	Kind    EventKind
	NodeID  string
	Attempt int
	Detail  string
}

// NodeAdapter runs one graph node's context-provider logic and returns the
// packets it produced. Per spec §4.C a packet may carry an embedded "error"
// field in its JSON map signalling a degraded (not fatal) result.
type NodeAdapter func(ctx context.Context, node types.Node) ([]types.ContextPacket, error)

// NodeRun is one node's final settled outcome, returned alongside the
// blackboard for trace building.
type NodeRun struct {
	NodeID   string
	Attempts int
	Failed   bool
	Error    string
}

// Result is execute()'s full return value.
type Result struct {
	Blackboard *types.Blackboard
	Events     []Event
	Packets    []types.ContextPacket
	NodeRuns   []NodeRun
}

// eventLog accumulates events with a monotonic sequence counter, safe for
// concurrent use from wave goroutines.
type eventLog struct {
	mu   sync.Mutex
	seq  int64
	list []Event
}

func (l *eventLog) emit(kind EventKind, nodeID string, attempt int, detail string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	l.list = append(l.list, Event{Seq: l.seq, Kind: kind, NodeID: nodeID, Attempt: attempt, Detail: detail})
}

// Execute implements spec §4.C's execute(traceId, graph, collaborators,
// maxParallel) contract. adapters maps a node's Agent field to the
// NodeAdapter that runs it; a node whose Agent has no registered adapter is
// treated as a fatal failure for that node only.
func Execute(ctx context.Context, traceID string, graph types.AgentGraph, adapters map[string]NodeAdapter, policy types.GraphPolicy, maxParallel int) Result {
	log := &eventLog{}
	log.emit(EventGraphStarted, "", 0, traceID)

	if errs := Validate(graph, policy); len(errs) > 0 {
		detail := ""
		for i, e := range errs {
			if i > 0 {
				detail += "; "
			}
			detail += e.Error()
		}
		log.emit(EventGraphValidationFailed, "", 0, detail)
		bb := types.NewBlackboard()
		bb.AddUnresolvedQuestion("graph validation failed: " + detail)
		return Result{Blackboard: bb, Events: log.list}
	}

	if maxParallel <= 0 {
		maxParallel = 1
	}

	bb := types.NewBlackboard()
	byID := map[string]types.Node{}
	for _, n := range graph.Nodes {
		byID[n.ID] = n
	}
	deps := map[string][]string{}
	for _, n := range graph.Nodes {
		deps[n.ID] = n.DependsOn
	}

	settled := map[string]bool{}
	var (
		mu       sync.Mutex
		packets  []types.ContextPacket
		nodeRuns []NodeRun
	)

	pending := map[string]bool{}
	for _, n := range graph.Nodes {
		pending[n.ID] = true
	}

	for len(pending) > 0 {
		wave := nextWave(pending, deps, settled)
		if len(wave) == 0 {
			bb.AddUnresolvedQuestion("unreachable dependency: graph has pending nodes with no runnable wave")
			break
		}

		for start := 0; start < len(wave); start += maxParallel {
			end := start + maxParallel
			if end > len(wave) {
				end = len(wave)
			}
			chunk := wave[start:end]

			g, gctx := errgroup.WithContext(ctx)
			for _, nodeID := range chunk {
				nodeID := nodeID
				node := byID[nodeID]
				g.Go(func() error {
					run, nodePackets := runNode(gctx, node, adapters[node.Agent], policy, log)
					mu.Lock()
					nodeRuns = append(nodeRuns, run)
					packets = append(packets, nodePackets...)
					for _, p := range nodePackets {
						confidence := confidenceFor(p, run.Failed)
						bb.AddArtifact(types.Artifact{
							ID:          uuid.NewString(),
							Kind:        types.ArtifactContextPacket,
							Label:       p.Name,
							Content:     p.Content,
							Confidence:  confidence,
							SourceAgent: node.Agent,
							Packet:      &p,
							JSON:        p.JSON,
						})
					}
					bb.RecordTaskResult(!run.Failed)
					mu.Unlock()
					return nil // dependents of a failed node still run
				})
			}
			_ = g.Wait()

			for _, nodeID := range chunk {
				settled[nodeID] = true
				delete(pending, nodeID)
			}
		}
	}

	for _, p := range packets {
		log.emit(EventArtifactWritten, "", 0, p.Name)
	}
	log.emit(EventGraphCompleted, "", 0, traceID)

	return Result{Blackboard: bb, Events: log.list, Packets: packets, NodeRuns: nodeRuns}
}

// nextWave returns all pending node ids whose dependencies are fully
// settled (completed or failed — spec §4.C: "dependents of a failed node
// still run").
func nextWave(pending map[string]bool, deps map[string][]string, settled map[string]bool) []string {
	var wave []string
	for id := range pending {
		ready := true
		for _, d := range deps[id] {
			if !settled[d] {
				ready = false
				break
			}
		}
		if ready {
			wave = append(wave, id)
		}
	}
	return wave
}

// runNode executes the per-node retry protocol from spec §4.C.
func runNode(ctx context.Context, node types.Node, adapter NodeAdapter, policy types.GraphPolicy, log *eventLog) (NodeRun, []types.ContextPacket) {
	maxRetries := node.Budget.MaxRetries
	if maxRetries <= 0 {
		maxRetries = policy.MaxRetries
	}
	deadline := time.Duration(node.Budget.MaxLatencyMs) * time.Millisecond
	if deadline <= 0 {
		deadline = policy.MaxLatencyMs
	}

	if adapter == nil {
		log.emit(EventNodeStarted, node.ID, 1, "")
		log.emit(EventNodeFailed, node.ID, 1, "no adapter registered for agent: "+node.Agent)
		return NodeRun{NodeID: node.ID, Attempts: 1, Failed: true, Error: "no adapter registered for agent: " + node.Agent}, nil
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		if attempt == 1 {
			log.emit(EventNodeStarted, node.ID, attempt, "")
		} else {
			log.emit(EventNodeRetry, node.ID, attempt, "")
		}

		attemptCtx, cancel := context.WithTimeout(ctx, deadline)
		packets, err := adapter(attemptCtx, node)
		cancel()

		if err == nil {
			log.emit(EventNodeCompleted, node.ID, attempt, "")
			return NodeRun{NodeID: node.ID, Attempts: attempt}, packets
		}
		lastErr = err
	}

	log.emit(EventNodeFailed, node.ID, maxRetries+1, fmt.Sprint(lastErr))
	return NodeRun{NodeID: node.ID, Attempts: maxRetries + 1, Failed: true, Error: fmt.Sprint(lastErr)}, nil
}

// confidenceFor implements spec §4.C's confidence defaulting: 0.8 on plain
// success, 0.4 when the packet embeds an "error" field, 0 on fatal failure.
func confidenceFor(p types.ContextPacket, fatal bool) float64 {
	if fatal {
		return 0
	}
	if p.JSON != nil {
		if _, hasErr := p.JSON["error"]; hasErr {
			return 0.4
		}
	}
	return 0.8
}
