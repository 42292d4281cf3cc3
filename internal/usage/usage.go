// Package usage provides token usage tracking, a char-based token
// estimator, and budget enforcement against a graph node's NodeBudget.
// Kept and adapted from the teacher's internal/usage (token tracking,
// cost estimation, display formatting), retargeted from
// provider/user/channel usage records to turn/node/route usage records
// feeding Blackboard.Counters.TotalEstimatedTokens (SPEC_FULL.md ambient
// stack).
package usage

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Usage is token usage for a single call, kept verbatim in shape from the
// teacher's usage.Usage.
type Usage struct {
	InputTokens      int64 `json:"input_tokens"`
	OutputTokens     int64 `json:"output_tokens"`
	CacheReadTokens  int64 `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens int64 `json:"cache_write_tokens,omitempty"`
}

// Total returns the total token count.
func (u *Usage) Total() int64 {
	return u.InputTokens + u.OutputTokens + u.CacheReadTokens + u.CacheWriteTokens
}

// Add adds another usage record to this one.
func (u *Usage) Add(other *Usage) {
	if other == nil {
		return
	}
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheReadTokens += other.CacheReadTokens
	u.CacheWriteTokens += other.CacheWriteTokens
}

// Cost is pricing for a model, per million tokens.
type Cost struct {
	Input      float64
	Output     float64
	CacheRead  float64
	CacheWrite float64
}

// Estimate calculates the estimated dollar cost for the given usage.
func (c *Cost) Estimate(usage *Usage) float64 {
	if usage == nil {
		return 0
	}
	total := float64(usage.InputTokens)*c.Input +
		float64(usage.OutputTokens)*c.Output +
		float64(usage.CacheReadTokens)*c.CacheRead +
		float64(usage.CacheWriteTokens)*c.CacheWrite
	return total / 1_000_000
}

// Record is one usage record for tracking, retargeted from the teacher's
// provider/user/channel keying to traceID/nodeID/route keying.
type Record struct {
	TraceID   string    `json:"trace_id"`
	NodeID    string    `json:"node_id,omitempty"`
	Route     string    `json:"route"`
	Model     string    `json:"model"`
	Usage     Usage     `json:"usage"`
	Cost      float64   `json:"cost,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Tracker tracks usage across multiple calls, kept verbatim in shape from
// the teacher's usage.Tracker with totals now keyed by "route:model" and
// by traceID instead of by provider/user.
type Tracker struct {
	mu        sync.RWMutex
	records   []Record
	totals    map[string]*Usage // keyed by "route:model"
	byTrace   map[string]*Usage
	maxAge    time.Duration
	maxCount  int
}

// TrackerConfig configures the usage tracker.
type TrackerConfig struct {
	MaxAge   time.Duration
	MaxCount int
}

// DefaultTrackerConfig returns default tracker configuration.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{MaxAge: 24 * time.Hour, MaxCount: 10000}
}

// NewTracker creates a new usage tracker.
func NewTracker(config TrackerConfig) *Tracker {
	if config.MaxAge <= 0 {
		config.MaxAge = 24 * time.Hour
	}
	if config.MaxCount <= 0 {
		config.MaxCount = 10000
	}
	return &Tracker{
		records:  make([]Record, 0),
		totals:   make(map[string]*Usage),
		byTrace:  make(map[string]*Usage),
		maxAge:   config.MaxAge,
		maxCount: config.MaxCount,
	}
}

// Record adds a usage record.
func (t *Tracker) Record(r Record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	t.records = append(t.records, r)

	key := r.Route + ":" + r.Model
	if t.totals[key] == nil {
		t.totals[key] = &Usage{}
	}
	t.totals[key].Add(&r.Usage)

	if r.TraceID != "" {
		if t.byTrace[r.TraceID] == nil {
			t.byTrace[r.TraceID] = &Usage{}
		}
		t.byTrace[r.TraceID].Add(&r.Usage)
	}

	t.pruneOld()
}

func (t *Tracker) pruneOld() {
	cutoff := time.Now().Add(-t.maxAge)
	startIdx := 0
	for i, r := range t.records {
		if r.Timestamp.After(cutoff) {
			startIdx = i
			break
		}
		startIdx = i + 1
	}
	if startIdx > 0 {
		t.records = t.records[startIdx:]
	}
	if len(t.records) > t.maxCount {
		t.records = t.records[len(t.records)-t.maxCount:]
	}
}

// GetTotals returns usage totals for a route:model key.
func (t *Tracker) GetTotals(route, model string) *Usage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if usage := t.totals[route+":"+model]; usage != nil {
		u := *usage
		return &u
	}
	return nil
}

// GetTraceTotals returns usage totals for one trace.
func (t *Tracker) GetTraceTotals(traceID string) *Usage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if usage := t.byTrace[traceID]; usage != nil {
		u := *usage
		return &u
	}
	return nil
}

// GetRecentRecords returns recent usage records.
func (t *Tracker) GetRecentRecords(limit int) []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if limit <= 0 || limit > len(t.records) {
		limit = len(t.records)
	}
	start := len(t.records) - limit
	result := make([]Record, limit)
	copy(result, t.records[start:])
	return result
}

// EstimateTokens approximates token count from character count using the
// common ~4-chars-per-token heuristic; used to populate
// Blackboard.Counters.TotalEstimatedTokens from raw context-packet text
// before a real usage figure is available from the model response.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		return 1
	}
	return n
}

// BudgetExceeded reports whether estimatedInputTokens/estimatedOutputTokens
// would exceed the node's configured ceilings (zero ceiling means
// unbounded, matching NodeBudget's omitempty JSON fields).
func BudgetExceeded(maxInputTokens, maxOutputTokens, estimatedInputTokens, estimatedOutputTokens int) bool {
	if maxInputTokens > 0 && estimatedInputTokens > maxInputTokens {
		return true
	}
	if maxOutputTokens > 0 && estimatedOutputTokens > maxOutputTokens {
		return true
	}
	return false
}

// FormatTokenCount formats a token count for display.
func FormatTokenCount(count int64) string {
	if count <= 0 {
		return "0"
	}
	if count >= 1_000_000 {
		return fmt.Sprintf("%.1fm", float64(count)/1_000_000)
	}
	if count >= 10_000 {
		return fmt.Sprintf("%dk", count/1_000)
	}
	if count >= 1_000 {
		return fmt.Sprintf("%.1fk", float64(count)/1_000)
	}
	return fmt.Sprintf("%d", count)
}

// FormatUSD formats a dollar amount for display.
func FormatUSD(amount float64) string {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return ""
	}
	return fmt.Sprintf("$%.2f", amount)
}
