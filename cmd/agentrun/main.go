// Package main provides agentrun, a trace-replay CLI for the agent
// runtime: it reads recently persisted traces and recomputes canary
// admission statistics from their recorded outcomes, the way an operator
// would audit why the rollout percentage changed after the fact.
//
// Grounded on the teacher's cmd/nexus/main.go cobra root-command wiring;
// trimmed to the one concern this runtime's CLI/transport glue actually
// needs (spec.md §1 places broader CLI/transport glue out of scope).
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "agentrun",
		Short:        "Trace replay and canary audit CLI for the agent runtime",
		Version:      fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage: true,
	}
	root.AddCommand(buildReplayCmd(), buildTracesCmd())
	return root
}
