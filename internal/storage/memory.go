package storage

import (
	"context"
	"sync"

	"github.com/agentic/runtime/internal/runtime/collab"
	"github.com/agentic/runtime/internal/runtime/types"
)

// MemoryCanaryStateRepo is an in-memory collab.CanaryStateRepo, grounded on
// the teacher's MemoryAgentStore (mutex-guarded map, copy-on-read).
type MemoryCanaryStateRepo struct {
	mu    sync.RWMutex
	state *types.CanaryState
}

var _ collab.CanaryStateRepo = (*MemoryCanaryStateRepo)(nil)

// NewMemoryCanaryStateRepo creates an empty in-memory canary state repo.
func NewMemoryCanaryStateRepo() *MemoryCanaryStateRepo {
	return &MemoryCanaryStateRepo{}
}

func (r *MemoryCanaryStateRepo) ReadPersistedCanaryState(ctx context.Context) (*types.CanaryState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.state == nil {
		return nil, nil
	}
	cp := *r.state
	cp.Window = append([]types.CanaryOutcome(nil), r.state.Window...)
	return &cp, nil
}

func (r *MemoryCanaryStateRepo) WritePersistedCanaryState(ctx context.Context, state types.CanaryState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := state
	cp.Window = append([]types.CanaryOutcome(nil), state.Window...)
	r.state = &cp
	return nil
}

func (r *MemoryCanaryStateRepo) ClearPersistedCanaryState(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = nil
	return nil
}

// memoryTraceRow holds one trace's accumulated fields, mirroring the
// teacher's MemoryAgentStore entry-plus-mutex shape.
type memoryTraceRow struct {
	traceID   string
	guildID   string
	channelID string
	route     types.Route
	start     map[string]any
	agentRuns []map[string]any
	end       map[string]any
}

// MemoryTraceRepo is an in-memory collab.TraceRepo.
type MemoryTraceRepo struct {
	mu     sync.RWMutex
	traces map[string]*memoryTraceRow
	order  []string
}

var _ collab.TraceRepo = (*MemoryTraceRepo)(nil)

// NewMemoryTraceRepo creates an empty in-memory trace repo.
func NewMemoryTraceRepo() *MemoryTraceRepo {
	return &MemoryTraceRepo{traces: make(map[string]*memoryTraceRow)}
}

func (r *MemoryTraceRepo) UpsertTraceStart(ctx context.Context, traceID string, fields map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, exists := r.traces[traceID]
	if !exists {
		row = &memoryTraceRow{traceID: traceID}
		r.traces[traceID] = row
		r.order = append(r.order, traceID)
	}
	row.start = fields
	if guildID, ok := fields["guildId"].(string); ok {
		row.guildID = guildID
	}
	if channelID, ok := fields["channelId"].(string); ok {
		row.channelID = channelID
	}
	if route, ok := fields["route"].(string); ok {
		row.route = types.Route(route)
	}
	return nil
}

func (r *MemoryTraceRepo) ReplaceAgentRuns(ctx context.Context, traceID string, rows []map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.traces[traceID]
	if !ok {
		return ErrNotFound
	}
	row.agentRuns = append([]map[string]any(nil), rows...)
	return nil
}

func (r *MemoryTraceRepo) UpdateTraceEnd(ctx context.Context, traceID string, fields map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.traces[traceID]
	if !ok {
		return ErrNotFound
	}
	row.end = fields
	return nil
}

func (r *MemoryTraceRepo) ListRecentTraces(ctx context.Context, limit int, guildID, channelID string) ([]collab.TraceRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := make([]*memoryTraceRow, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		row := r.traces[r.order[i]]
		if guildID != "" && row.guildID != guildID {
			continue
		}
		if channelID != "" && row.channelID != channelID {
			continue
		}
		matches = append(matches, row)
	}

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	out := make([]collab.TraceRecord, 0, len(matches))
	for _, row := range matches {
		out = append(out, collab.TraceRecord{
			TraceID:   row.traceID,
			GuildID:   row.guildID,
			ChannelID: row.channelID,
			RouteKind: row.route,
			Outcome:   row.end,
		})
	}
	return out, nil
}
