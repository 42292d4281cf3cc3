package types

import "github.com/agentic/runtime/pkg/models"

// DebugInfo carries the per-turn trace surfaced to downstream consumers.
type DebugInfo struct {
	Messages  []string
	TraceJSON []byte
}

// TurnResult is the final artifact the orchestrator hands back to the
// transport that called runTurn (spec §3, §6).
type TurnResult struct {
	ReplyText string
	StyleHint string
	Voice     string
	Files     []models.Attachment
	Debug     DebugInfo
}
