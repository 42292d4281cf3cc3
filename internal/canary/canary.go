// Package canary implements the admission controller described in spec
// §4.A: a deterministic rollout sampler layered with a rolling
// failure-budget cooldown, backed by a persisted singleton state row.
//
// The deterministic bucketing is grounded on the teacher's experiment
// manager (hash/fnv + modulo bucketing), generalized from N-variant
// allocation to a single admit/deny rollout percent.
package canary

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/agentic/runtime/internal/runtime/collab"
	"github.com/agentic/runtime/internal/runtime/types"
)

// Config is the canary admission policy (AGENTIC_CANARY_* env surface).
type Config struct {
	Enabled         bool
	RolloutPercent  float64
	RouteAllowlist  map[types.Route]bool
	MaxFailureRate  float64
	MinSamples      int
	CooldownMs      int64
	WindowSize      int
}

// Snapshot is the evaluate/record observability view (spec §4.A snapshot()).
type Snapshot struct {
	Total            int
	FailureRate      float64
	CooldownUntilMs  int64
	ReasonCounts     map[types.CanaryReasonCode]int
	LatestOutcome    *types.CanaryOutcome
	Persisted        bool
	Degraded         bool
}

// Controller is process-wide state (Design Notes §9: "model as process-wide
// state with an explicit init(config) and shutdown(); expose accessors;
// tests inject a fresh instance").
type Controller struct {
	mu      sync.Mutex
	state   types.CanaryState
	repo    collab.CanaryStateRepo
	logger  *slog.Logger
	hydrated bool
	degraded bool
	degradedLoggedOnce bool
}

// New constructs a Controller. repo may be nil, in which case the
// controller runs purely in-memory (degradedMode is never set because
// persistence was never requested).
func New(repo collab.CanaryStateRepo, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{repo: repo, logger: logger}
}

// Shutdown releases nothing today but exists so callers have a symmetric
// init/shutdown pair per Design Notes §9.
func (c *Controller) Shutdown() {}

func nowMs(now time.Time) int64 { return now.UnixMilli() }

// hydrate loads persisted state on first use. On any store error it
// downgrades to in-memory mode, sets degradedMode, logs once, and never
// retries the store again for the process lifetime (spec §4.A Persistence).
func (c *Controller) hydrate(ctx context.Context) {
	if c.hydrated || c.repo == nil {
		c.hydrated = true
		return
	}
	c.hydrated = true
	state, err := c.repo.ReadPersistedCanaryState(ctx)
	if err != nil {
		c.degraded = true
		if !c.degradedLoggedOnce {
			c.degradedLoggedOnce = true
			c.logger.Warn("canary: persistence unavailable, falling back to in-memory state", "error", err)
		}
		// Hydration failure is treated as an empty window, not an active
		// cooldown (spec §4.A Failure semantics).
		c.state = types.CanaryState{}
		return
	}
	if state != nil {
		c.state = *state
	}
}

func (c *Controller) persist(ctx context.Context) {
	if c.repo == nil || c.degraded {
		return
	}
	if err := c.repo.WritePersistedCanaryState(ctx, c.state); err != nil {
		c.degraded = true
		if !c.degradedLoggedOnce {
			c.degradedLoggedOnce = true
			c.logger.Warn("canary: persistence write failed, falling back to in-memory state", "error", err)
		}
	}
}

// fnvSample returns an integer in [0, 10000) deterministic in the inputs.
func fnvSample(guildID, route, traceID string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(guildID + "|" + route + "|" + traceID))
	return h.Sum32() % 10000
}

// Evaluate implements the admission order from spec §4.A.
func (c *Controller) Evaluate(ctx context.Context, traceID string, routeKind types.Route, guildID string, cfg Config, now time.Time) types.AdmissionDecision {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hydrate(ctx)

	if !cfg.Enabled {
		return types.AdmissionDecision{AllowAgentic: true, Reason: types.ReasonDisabled}
	}
	if len(cfg.RouteAllowlist) > 0 && !cfg.RouteAllowlist[routeKind] {
		return types.AdmissionDecision{AllowAgentic: false, Reason: types.ReasonRouteNotAllowlisted}
	}
	if nowMs(now) < c.state.CooldownUntilMs {
		return types.AdmissionDecision{AllowAgentic: false, Reason: types.ReasonErrorBudgetCooldown}
	}

	sample := float64(fnvSample(guildID, string(routeKind), traceID)) / 100.0
	if sample >= cfg.RolloutPercent {
		return types.AdmissionDecision{AllowAgentic: false, Reason: types.ReasonOutOfRolloutSample, SamplePercent: sample}
	}
	return types.AdmissionDecision{AllowAgentic: true, Reason: types.ReasonAllowed, SamplePercent: sample}
}

// Record appends an outcome to the rolling window and, once the window
// reaches minSamples, evaluates the failure budget and extends the
// cooldown if it's been tripped (spec §4.A Algorithm: failure-budget).
func (c *Controller) Record(ctx context.Context, success bool, reasonCodes []types.CanaryReasonCode, cfg Config, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hydrate(ctx)

	outcome := types.CanaryOutcome{Success: success, ReasonCodes: reasonCodes, RecordedAtMs: nowMs(now)}
	c.state.Window = append(c.state.Window, outcome)
	if cfg.WindowSize > 0 && len(c.state.Window) > cfg.WindowSize {
		c.state.Window = c.state.Window[len(c.state.Window)-cfg.WindowSize:]
	}

	if cfg.MinSamples > 0 && len(c.state.Window) >= cfg.MinSamples {
		failures := 0
		for _, o := range c.state.Window {
			if !o.Success {
				failures++
			}
		}
		rate := float64(failures) / float64(len(c.state.Window))
		if rate > cfg.MaxFailureRate {
			candidate := nowMs(now) + cfg.CooldownMs
			if candidate > c.state.CooldownUntilMs {
				c.state.CooldownUntilMs = candidate
			}
		}
	}
	c.persist(ctx)
}

// Snapshot reports totals, failure rate, cooldown, and persistence mode.
func (c *Controller) Snapshot(ctx context.Context, cfg Config, now time.Time) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hydrate(ctx)

	snap := Snapshot{
		Total:           len(c.state.Window),
		CooldownUntilMs: c.state.CooldownUntilMs,
		ReasonCounts:    map[types.CanaryReasonCode]int{},
		Persisted:       c.repo != nil && !c.degraded,
		Degraded:        c.degraded,
	}
	failures := 0
	for i := range c.state.Window {
		o := c.state.Window[i]
		if !o.Success {
			failures++
		}
		for _, rc := range o.ReasonCodes {
			snap.ReasonCounts[rc]++
		}
	}
	if snap.Total > 0 {
		snap.FailureRate = float64(failures) / float64(snap.Total)
		snap.LatestOutcome = &c.state.Window[len(c.state.Window)-1]
	}
	return snap
}

// ReasonCodesFromOutcome derives the closed-set canary reason codes from a
// turn's observed failures (spec §4.H: graphFailedTasks>0, hardGateUnmet,
// toolLoopFailed).
func ReasonCodesFromOutcome(graphFailedTasks int, hardGateUnmet, toolLoopFailed bool) []types.CanaryReasonCode {
	var codes []types.CanaryReasonCode
	if graphFailedTasks > 0 {
		codes = append(codes, types.ReasonGraphFailedTasks)
	}
	if hardGateUnmet {
		codes = append(codes, types.ReasonHardGateUnmet)
	}
	if toolLoopFailed {
		codes = append(codes, types.ReasonToolLoopFailed)
	}
	return codes
}
