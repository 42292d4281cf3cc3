package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/agentic/runtime/internal/canary"
	"github.com/agentic/runtime/internal/config"
	"github.com/agentic/runtime/internal/runtime/collab"
	"github.com/agentic/runtime/internal/runtime/types"
	"github.com/agentic/runtime/internal/storage"
	"github.com/spf13/cobra"
)

// replayOutcome is one replayed trace's canary-relevant outcome.
type replayOutcome struct {
	TraceID     string
	RouteKind   types.Route
	Success     bool
	ReasonCodes []types.CanaryReasonCode
}

// evaluateRecentTraceOutcomes reads up to limit recent traces (optionally
// scoped to guildID/channelID) from repo and replays each one's recorded
// reasonCodes through a fresh canary.Controller, reproducing the admission
// snapshot an operator would have seen after that trace completed. A trace
// replays as a success when UpdateTraceEnd recorded no reasonCodes
// (orchestrator.Run's own success formula: !hardGateUnmet && !toolLoopFailed
// && graphFailedTasks == 0, which ReasonCodesFromOutcome mirrors by
// returning an empty slice only in that case).
func evaluateRecentTraceOutcomes(ctx context.Context, repo collab.TraceRepo, cfg canary.Config, limit int, guildID, channelID string) ([]replayOutcome, canary.Snapshot, error) {
	records, err := repo.ListRecentTraces(ctx, limit, guildID, channelID)
	if err != nil {
		return nil, canary.Snapshot{}, fmt.Errorf("list recent traces: %w", err)
	}

	controller := canary.New(storage.NewMemoryCanaryStateRepo(), slog.Default())
	outcomes := make([]replayOutcome, 0, len(records))
	now := time.Now()

	for _, rec := range records {
		reasonCodes := reasonCodesFromTraceOutcome(rec.Outcome)
		success := len(reasonCodes) == 0
		controller.Record(ctx, success, reasonCodes, cfg, now)
		outcomes = append(outcomes, replayOutcome{
			TraceID:     rec.TraceID,
			RouteKind:   rec.RouteKind,
			Success:     success,
			ReasonCodes: reasonCodes,
		})
	}

	return outcomes, controller.Snapshot(ctx, cfg, now), nil
}

func reasonCodesFromTraceOutcome(outcome map[string]any) []types.CanaryReasonCode {
	raw, ok := outcome["reasonCodes"]
	if !ok {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	codes := make([]types.CanaryReasonCode, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			codes = append(codes, types.CanaryReasonCode(s))
		}
	}
	return codes
}

func buildReplayCmd() *cobra.Command {
	var limit int
	var guildID, channelID string

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay recent trace outcomes through a fresh canary controller and print the resulting snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			repo, closeFn, err := openTraceRepo()
			if err != nil {
				return err
			}
			defer closeFn()

			outcomes, snapshot, err := evaluateRecentTraceOutcomes(cmd.Context(), repo, cfg.Canary.ToCanaryConfig(), limit, guildID, channelID)
			if err != nil {
				return err
			}

			for _, o := range outcomes {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\troute=%s\tsuccess=%v\treasons=%v\n", o.TraceID, o.RouteKind, o.Success, o.ReasonCodes)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nreplayed=%d windowTotal=%d failureRate=%.3f cooldownUntilMs=%d degraded=%v\n",
				len(outcomes), snapshot.Total, snapshot.FailureRate, snapshot.CooldownUntilMs, snapshot.Degraded)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum traces to replay")
	cmd.Flags().StringVar(&guildID, "guild", "", "restrict replay to one guild")
	cmd.Flags().StringVar(&channelID, "channel", "", "restrict replay to one channel")
	return cmd
}

func buildTracesCmd() *cobra.Command {
	var limit int
	var guildID, channelID string

	cmd := &cobra.Command{
		Use:   "traces",
		Short: "List recently persisted traces without replaying canary state",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, closeFn, err := openTraceRepo()
			if err != nil {
				return err
			}
			defer closeFn()

			records, err := repo.ListRecentTraces(cmd.Context(), limit, guildID, channelID)
			if err != nil {
				return err
			}
			for _, rec := range records {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tguild=%s\tchannel=%s\troute=%s\n", rec.TraceID, rec.GuildID, rec.ChannelID, rec.RouteKind)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum traces to list")
	cmd.Flags().StringVar(&guildID, "guild", "", "restrict to one guild")
	cmd.Flags().StringVar(&channelID, "channel", "", "restrict to one channel")
	return cmd
}

// openTraceRepo opens the Postgres trace store when AGENTRUN_DATABASE_URL is
// set, falling back to an empty in-memory store otherwise (useful for
// dry-running the CLI without a database).
func openTraceRepo() (collab.TraceRepo, func(), error) {
	dsn := os.Getenv("AGENTRUN_DATABASE_URL")
	if dsn == "" {
		return storage.NewMemoryTraceRepo(), func() {}, nil
	}
	stores, err := storage.NewPostgresStoresFromDSN(dsn, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("connect trace store: %w", err)
	}
	return stores.Trace, func() { _ = stores.Close() }, nil
}
