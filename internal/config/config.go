// Package config loads the runtime's closed environment-variable surface
// (spec §6) into a typed Config, following the teacher's
// struct-of-structs + applyEnvOverrides idiom (internal/config/config.go).
//
// Unlike the teacher, this runtime's config is env-only: there is no
// YAML/$include project config file, since §6 defines the surface as a
// closed set of AGENTIC_*/SEARCH_*/TIMEOUT_* variables rather than a
// config file. The *_POLICY_JSON variables are the one place a file does
// enter the picture (see overlay.go) since a tool/validation policy is
// naturally document-shaped. The ambient logging/tracing/metrics section
// is carried the way the teacher always carries it, regardless of the
// spec's feature Non-goals.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/agentic/runtime/internal/canary"
	"github.com/agentic/runtime/internal/runtime/types"
)

// GraphConfig covers AGENTIC_GRAPH_*.
type GraphConfig struct {
	ParallelEnabled bool
	MaxParallel     int
}

// CriticConfig covers AGENTIC_CRITIC_*.
type CriticConfig struct {
	Enabled  bool
	MaxLoops int
	MinScore float64
}

// CanaryConfig covers AGENTIC_CANARY_*.
type CanaryConfig struct {
	Enabled          bool
	Percent          float64
	RouteAllowlistCSV string
	MaxFailureRate   float64
	MinSamples       int
	CooldownSec      int
	WindowSize       int
}

// ToolConfig covers AGENTIC_TOOL_*.
type ToolConfig struct {
	LoopEnabled               bool
	MaxRounds                 int
	MaxCallsPerRound          int
	TimeoutMs                 int
	ResultMaxChars            int
	ParallelReadOnlyEnabled   bool
	MaxParallelReadOnly       int
	HardGateEnabled           bool
	HardGateMinSuccessfulCalls int
	AllowNetworkRead          bool
	AllowExternalWrite        bool
	AllowHighRisk             bool
	BlocklistCSV              string
	PolicyJSON                string
}

// ValidationConfig covers AGENTIC_VALIDATION_*.
type ValidationConfig struct {
	Enabled             bool
	PolicyJSON          string
	AutoRepairEnabled   bool
	AutoRepairMaxAttempts int
}

// ManagerWorkerConfig covers AGENTIC_MANAGER_WORKER_*.
type ManagerWorkerConfig struct {
	Enabled          bool
	MaxWorkers       int
	MaxPlannerLoops  int
	MaxTokens        int
	MaxInputChars    int
	TimeoutMs        int
	MinComplexityScore float64
}

// SearchConfig covers SEARCH_MAX_ATTEMPTS_* and TIMEOUT_SEARCH*.
type SearchConfig struct {
	MaxAttemptsSimple  int
	MaxAttemptsComplex int
	TimeoutSearchMs        int
	TimeoutSearchScraperMs int
}

// TimeoutConfig covers the remaining TIMEOUT_* and *_MAX_OUTPUT_TOKENS vars.
type TimeoutConfig struct {
	ChatMs               int
	ChatMaxOutputTokens  int
	CodingMaxOutputTokens int
	SearchMaxOutputTokens int
	CriticMaxOutputTokens int
}

// ObservabilityConfig is the ambient logging/tracing/metrics surface the
// teacher always carries (internal/observability), independent of any
// feature Non-goal.
type ObservabilityConfig struct {
	LogLevel     string
	LogJSON      bool
	TraceEnabled bool
	MetricsPort  int
}

// Config is the full env-var-driven configuration surface.
type Config struct {
	Graph           GraphConfig
	Critic          CriticConfig
	Canary          CanaryConfig
	Tool            ToolConfig
	Validation      ValidationConfig
	ManagerWorker   ManagerWorkerConfig
	Search          SearchConfig
	Timeout         TimeoutConfig
	TenantPolicyJSON string
	Observability   ObservabilityConfig
}

// Load builds a Config from defaults with environment overrides applied,
// mirroring the teacher's Load(path)+applyDefaults+applyEnvOverrides
// sequencing but with no file layer (spec §6 config surface is env-only).
func Load() Config {
	cfg := defaults()
	applyEnvOverrides(&cfg)
	resolvePolicyOverlays(&cfg)
	return cfg
}

// resolvePolicyOverlays replaces any *_POLICY_JSON field that names a
// .json/.yaml/.yml overlay file with that file's content, so downstream
// consumers (registry.Policy, validator.RoutePolicy) always see inline JSON
// regardless of whether the operator authored the policy as YAML.
func resolvePolicyOverlays(cfg *Config) {
	for _, field := range []*string{&cfg.Tool.PolicyJSON, &cfg.Validation.PolicyJSON, &cfg.TenantPolicyJSON} {
		resolved, err := ResolvePolicyJSON(*field)
		if err == nil {
			*field = resolved
		}
	}
}

func defaults() Config {
	return Config{
		Graph: GraphConfig{ParallelEnabled: true, MaxParallel: 4},
		Critic: CriticConfig{Enabled: true, MaxLoops: 2, MinScore: 0.85},
		Canary: CanaryConfig{
			Enabled: true, Percent: 10, MaxFailureRate: 0.3,
			MinSamples: 10, CooldownSec: 300, WindowSize: 50,
		},
		Tool: ToolConfig{
			LoopEnabled: true, MaxRounds: 6, MaxCallsPerRound: 8,
			TimeoutMs: 15000, ResultMaxChars: 4000,
			ParallelReadOnlyEnabled: true, MaxParallelReadOnly: 4,
			HardGateEnabled: false, HardGateMinSuccessfulCalls: 1,
			AllowNetworkRead: true,
		},
		Validation: ValidationConfig{
			Enabled: true, AutoRepairEnabled: true, AutoRepairMaxAttempts: 2,
		},
		ManagerWorker: ManagerWorkerConfig{
			Enabled: false, MaxWorkers: 4, MaxPlannerLoops: 3,
			MaxTokens: 4000, MaxInputChars: 12000, TimeoutMs: 60000,
			MinComplexityScore: 0.6,
		},
		Search: SearchConfig{
			MaxAttemptsSimple: 3, MaxAttemptsComplex: 5,
			TimeoutSearchMs: 20000, TimeoutSearchScraperMs: 10000,
		},
		Timeout: TimeoutConfig{
			ChatMs: 30000, ChatMaxOutputTokens: 2000,
			CodingMaxOutputTokens: 4000, SearchMaxOutputTokens: 2000,
			CriticMaxOutputTokens: 500,
		},
		Observability: ObservabilityConfig{
			LogLevel: "info", LogJSON: true, TraceEnabled: true, MetricsPort: 9090,
		},
	}
}

func envStr(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func envBool(key string, dst *bool) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		}
	}
}

func envInt(key string, dst *int) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = parsed
		}
	}
}

// applyEnvOverrides mirrors the teacher's applyEnvOverrides(cfg *Config)
// shape: every var is independently optional, malformed values are
// silently ignored and the default/prior value is kept.
func applyEnvOverrides(cfg *Config) {
	envBool("AGENTIC_GRAPH_PARALLEL_ENABLED", &cfg.Graph.ParallelEnabled)
	envInt("AGENTIC_GRAPH_MAX_PARALLEL", &cfg.Graph.MaxParallel)

	envBool("AGENTIC_CRITIC_ENABLED", &cfg.Critic.Enabled)
	envInt("AGENTIC_CRITIC_MAX_LOOPS", &cfg.Critic.MaxLoops)
	envFloat("AGENTIC_CRITIC_MIN_SCORE", &cfg.Critic.MinScore)

	envBool("AGENTIC_CANARY_ENABLED", &cfg.Canary.Enabled)
	envFloat("AGENTIC_CANARY_PERCENT", &cfg.Canary.Percent)
	envStr("AGENTIC_CANARY_ROUTE_ALLOWLIST_CSV", &cfg.Canary.RouteAllowlistCSV)
	envFloat("AGENTIC_CANARY_MAX_FAILURE_RATE", &cfg.Canary.MaxFailureRate)
	envInt("AGENTIC_CANARY_MIN_SAMPLES", &cfg.Canary.MinSamples)
	envInt("AGENTIC_CANARY_COOLDOWN_SEC", &cfg.Canary.CooldownSec)
	envInt("AGENTIC_CANARY_WINDOW_SIZE", &cfg.Canary.WindowSize)

	envBool("AGENTIC_TOOL_LOOP_ENABLED", &cfg.Tool.LoopEnabled)
	envInt("AGENTIC_TOOL_MAX_ROUNDS", &cfg.Tool.MaxRounds)
	envInt("AGENTIC_TOOL_MAX_CALLS_PER_ROUND", &cfg.Tool.MaxCallsPerRound)
	envInt("AGENTIC_TOOL_TIMEOUT_MS", &cfg.Tool.TimeoutMs)
	envInt("AGENTIC_TOOL_RESULT_MAX_CHARS", &cfg.Tool.ResultMaxChars)
	envBool("AGENTIC_TOOL_PARALLEL_READ_ONLY_ENABLED", &cfg.Tool.ParallelReadOnlyEnabled)
	envInt("AGENTIC_TOOL_MAX_PARALLEL_READ_ONLY", &cfg.Tool.MaxParallelReadOnly)
	envBool("AGENTIC_TOOL_HARD_GATE_ENABLED", &cfg.Tool.HardGateEnabled)
	envInt("AGENTIC_TOOL_HARD_GATE_MIN_SUCCESSFUL_CALLS", &cfg.Tool.HardGateMinSuccessfulCalls)
	envBool("AGENTIC_TOOL_ALLOW_NETWORK_READ", &cfg.Tool.AllowNetworkRead)
	envBool("AGENTIC_TOOL_ALLOW_EXTERNAL_WRITE", &cfg.Tool.AllowExternalWrite)
	envBool("AGENTIC_TOOL_ALLOW_HIGH_RISK", &cfg.Tool.AllowHighRisk)
	envStr("AGENTIC_TOOL_BLOCKLIST_CSV", &cfg.Tool.BlocklistCSV)
	envStr("AGENTIC_TOOL_POLICY_JSON", &cfg.Tool.PolicyJSON)

	envBool("AGENTIC_VALIDATION_ENABLED", &cfg.Validation.Enabled)
	envStr("AGENTIC_VALIDATION_POLICY_JSON", &cfg.Validation.PolicyJSON)
	envBool("AGENTIC_VALIDATION_AUTO_REPAIR_ENABLED", &cfg.Validation.AutoRepairEnabled)
	envInt("AGENTIC_VALIDATION_AUTO_REPAIR_MAX_ATTEMPTS", &cfg.Validation.AutoRepairMaxAttempts)

	envBool("AGENTIC_MANAGER_WORKER_ENABLED", &cfg.ManagerWorker.Enabled)
	envInt("AGENTIC_MANAGER_WORKER_MAX_WORKERS", &cfg.ManagerWorker.MaxWorkers)
	envInt("AGENTIC_MANAGER_WORKER_MAX_PLANNER_LOOPS", &cfg.ManagerWorker.MaxPlannerLoops)
	envInt("AGENTIC_MANAGER_WORKER_MAX_TOKENS", &cfg.ManagerWorker.MaxTokens)
	envInt("AGENTIC_MANAGER_WORKER_MAX_INPUT_CHARS", &cfg.ManagerWorker.MaxInputChars)
	envInt("AGENTIC_MANAGER_WORKER_TIMEOUT_MS", &cfg.ManagerWorker.TimeoutMs)
	envFloat("AGENTIC_MANAGER_WORKER_MIN_COMPLEXITY_SCORE", &cfg.ManagerWorker.MinComplexityScore)

	envStr("AGENTIC_TENANT_POLICY_JSON", &cfg.TenantPolicyJSON)

	envInt("SEARCH_MAX_ATTEMPTS_SIMPLE", &cfg.Search.MaxAttemptsSimple)
	envInt("SEARCH_MAX_ATTEMPTS_COMPLEX", &cfg.Search.MaxAttemptsComplex)
	envInt("TIMEOUT_SEARCH_MS", &cfg.Search.TimeoutSearchMs)
	envInt("TIMEOUT_SEARCH_SCRAPER_MS", &cfg.Search.TimeoutSearchScraperMs)

	envInt("TIMEOUT_CHAT_MS", &cfg.Timeout.ChatMs)
	envInt("CHAT_MAX_OUTPUT_TOKENS", &cfg.Timeout.ChatMaxOutputTokens)
	envInt("CODING_MAX_OUTPUT_TOKENS", &cfg.Timeout.CodingMaxOutputTokens)
	envInt("SEARCH_MAX_OUTPUT_TOKENS", &cfg.Timeout.SearchMaxOutputTokens)
	envInt("CRITIC_MAX_OUTPUT_TOKENS", &cfg.Timeout.CriticMaxOutputTokens)

	envBool("TRACE_ENABLED", &cfg.Observability.TraceEnabled)
	envStr("AGENTIC_LOG_LEVEL", &cfg.Observability.LogLevel)
	envBool("AGENTIC_LOG_JSON", &cfg.Observability.LogJSON)
	envInt("AGENTIC_METRICS_PORT", &cfg.Observability.MetricsPort)
}

// RouteAllowlist parses Canary.RouteAllowlistCSV into a set, matching the
// teacher's comma-separated-list-to-set helpers used elsewhere in config.
func (c CanaryConfig) RouteAllowlist() map[string]bool {
	out := map[string]bool{}
	for _, part := range strings.Split(c.RouteAllowlistCSV, ",") {
		p := strings.TrimSpace(part)
		if p != "" {
			out[p] = true
		}
	}
	return out
}

// Blocklist parses Tool.BlocklistCSV into a set.
func (t ToolConfig) Blocklist() map[string]bool {
	out := map[string]bool{}
	for _, part := range strings.Split(t.BlocklistCSV, ",") {
		p := strings.TrimSpace(part)
		if p != "" {
			out[p] = true
		}
	}
	return out
}

// CooldownMs converts CooldownSec to the millisecond unit canary.Config
// expects.
func (c CanaryConfig) CooldownMs() int64 {
	return int64(time.Duration(c.CooldownSec) * time.Second / time.Millisecond)
}

// ToCanaryConfig adapts the env-sourced CanaryConfig into canary.Config,
// translating the string route allowlist into the types.Route-keyed map
// the controller's Evaluate expects.
func (c CanaryConfig) ToCanaryConfig() canary.Config {
	routes := map[types.Route]bool{}
	for route := range c.RouteAllowlist() {
		routes[types.Route(route)] = true
	}
	return canary.Config{
		Enabled:        c.Enabled,
		RolloutPercent: c.Percent,
		RouteAllowlist: routes,
		MaxFailureRate: c.MaxFailureRate,
		MinSamples:     c.MinSamples,
		CooldownMs:     c.CooldownMs(),
		WindowSize:     c.WindowSize,
	}
}
