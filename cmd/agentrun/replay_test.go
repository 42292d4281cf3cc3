package main

import (
	"context"
	"testing"

	"github.com/agentic/runtime/internal/canary"
	"github.com/agentic/runtime/internal/runtime/types"
	"github.com/agentic/runtime/internal/storage"
)

func TestEvaluateRecentTraceOutcomes_MixedSuccessAndFailure(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryTraceRepo()

	_ = repo.UpsertTraceStart(ctx, "t1", map[string]any{"guildId": "g1", "channelId": "c1", "route": "chat"})
	_ = repo.UpdateTraceEnd(ctx, "t1", map[string]any{"reasonCodes": []any{}})

	_ = repo.UpsertTraceStart(ctx, "t2", map[string]any{"guildId": "g1", "channelId": "c1", "route": "chat"})
	_ = repo.UpdateTraceEnd(ctx, "t2", map[string]any{"reasonCodes": []any{"hard_gate_unmet"}})

	cfg := canary.Config{Enabled: true, WindowSize: 10, MinSamples: 1, MaxFailureRate: 0.1, CooldownMs: 60000}
	outcomes, snapshot, err := evaluateRecentTraceOutcomes(ctx, repo, cfg, 10, "", "")
	if err != nil {
		t.Fatalf("evaluateRecentTraceOutcomes() error = %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 replayed outcomes, got %d", len(outcomes))
	}

	var successes, failures int
	for _, o := range outcomes {
		if o.Success {
			successes++
		} else {
			failures++
		}
	}
	if successes != 1 || failures != 1 {
		t.Fatalf("expected 1 success and 1 failure, got successes=%d failures=%d", successes, failures)
	}
	if snapshot.Total != 2 {
		t.Fatalf("expected snapshot total 2, got %d", snapshot.Total)
	}
}

func TestEvaluateRecentTraceOutcomes_EmptyRepo(t *testing.T) {
	repo := storage.NewMemoryTraceRepo()
	outcomes, snapshot, err := evaluateRecentTraceOutcomes(context.Background(), repo, canary.Config{}, 10, "", "")
	if err != nil {
		t.Fatalf("evaluateRecentTraceOutcomes() error = %v", err)
	}
	if len(outcomes) != 0 || snapshot.Total != 0 {
		t.Fatalf("expected no outcomes for an empty repo, got %d outcomes, snapshot=%+v", len(outcomes), snapshot)
	}
}

func TestReasonCodesFromTraceOutcome_MissingKeyIsNil(t *testing.T) {
	if codes := reasonCodesFromTraceOutcome(map[string]any{}); codes != nil {
		t.Fatalf("expected nil reason codes for missing key, got %v", codes)
	}
}

func TestReasonCodesFromTraceOutcome_ParsesStringList(t *testing.T) {
	codes := reasonCodesFromTraceOutcome(map[string]any{"reasonCodes": []any{"graph_failed_tasks", "tool_loop_failed"}})
	if len(codes) != 2 || codes[0] != types.ReasonGraphFailedTasks || codes[1] != types.ReasonToolLoopFailed {
		t.Fatalf("unexpected codes: %v", codes)
	}
}

func TestBuildRootCmd_HasReplayAndTracesSubcommands(t *testing.T) {
	root := buildRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	if !names["replay"] || !names["traces"] {
		t.Fatalf("expected replay and traces subcommands, got %v", names)
	}
}
