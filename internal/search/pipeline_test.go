package search

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/agentic/runtime/internal/runtime/collab"
)

func TestExtractURLs_Dedupes(t *testing.T) {
	text := "See https://example.com/a and https://example.com/a again, also https://example.com/b."
	urls := ExtractURLs(text)
	if len(urls) != 2 {
		t.Fatalf("expected 2 distinct urls, got %v", urls)
	}
}

func TestNormalize_AppendsSourceURLsAndCheckedOn(t *testing.T) {
	reply := "The answer is 42, see https://example.com/ref for details."
	out := Normalize(reply, "2026-07-30")
	if !strings.Contains(out, "Source URLs:") {
		t.Fatalf("expected Source URLs section, got %q", out)
	}
	if !strings.Contains(out, "Checked-on: 2026-07-30") {
		t.Fatalf("expected Checked-on line, got %q", out)
	}
}

func TestNormalize_DoesNotDuplicateExistingSections(t *testing.T) {
	reply := "Answer.\n\nSource URLs:\n- https://example.com\nChecked-on: 2026-07-30"
	out := Normalize(reply, "2026-07-30")
	if strings.Count(strings.ToLower(out), "source urls:") != 1 {
		t.Fatalf("expected exactly one Source URLs section, got %q", out)
	}
}

func TestMissingSourcesGuard(t *testing.T) {
	if MissingSourcesGuard("no links here") {
		t.Fatalf("expected guard to reject a reply with no URL")
	}
	if !MissingSourcesGuard("see https://example.com") {
		t.Fatalf("expected guard to accept a reply with a URL")
	}
}

func TestFreshnessGroundingGuard(t *testing.T) {
	tests := []struct {
		name        string
		reply       string
		needsFresh  bool
		minRequired int
		want        bool
	}{
		{"not freshness-sensitive, no checks applied", "anything", false, 2, true},
		{"freshness-sensitive, missing checked-on", "https://a https://b", true, 2, false},
		{"freshness-sensitive, too few sources", "Checked-on: today https://a", true, 2, false},
		{"freshness-sensitive, satisfied", "Checked-on: today https://a https://b", true, 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FreshnessGroundingGuard(tt.reply, tt.needsFresh, tt.minRequired)
			if got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDedupeAttemptChain(t *testing.T) {
	chain := DedupeAttemptChain("scraper", true, []string{"guard-a", "scraper"}, []string{"resolver-a", "guard-a"}, 10)
	want := []string{"scraper", "guard-a", "resolver-a"}
	if len(chain) != len(want) {
		t.Fatalf("got %v, want %v", chain, want)
	}
	for i := range want {
		if chain[i] != want[i] {
			t.Fatalf("got %v, want %v", chain, want)
		}
	}
}

func TestDedupeAttemptChain_CapsAtMaxAttempts(t *testing.T) {
	chain := DedupeAttemptChain("", false, []string{"a", "b", "c"}, nil, 2)
	if len(chain) != 2 {
		t.Fatalf("expected chain capped to 2, got %v", chain)
	}
}

type queuedClient struct {
	byModel map[string]collab.ChatResponse
	errs    map[string]error
}

func (q *queuedClient) Chat(ctx context.Context, req collab.ChatRequest) (collab.ChatResponse, error) {
	if err, ok := q.errs[req.Model]; ok {
		return collab.ChatResponse{}, err
	}
	return q.byModel[req.Model], nil
}

func TestRunGuardedChain_AcceptsFirstValidCandidate(t *testing.T) {
	client := &queuedClient{byModel: map[string]collab.ChatResponse{
		"guard-a": {Content: "no links"},
		"guard-b": {Content: "Answer with source https://example.com/x"},
	}}
	req := Request{UserRequest: "what happened today", GuardrailModels: []string{"guard-a", "guard-b"}, CurrentDate: "2026-07-30"}
	cfg := DefaultConfig()

	res, err := RunGuardedChain(context.Background(), client, req, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ModelUsed != "guard-b" {
		t.Fatalf("expected guard-b to be accepted, got %s", res.ModelUsed)
	}
}

func TestRunGuardedChain_ExhaustsChainWhenAllRejected(t *testing.T) {
	client := &queuedClient{byModel: map[string]collab.ChatResponse{
		"guard-a": {Content: "no links at all"},
	}, errs: map[string]error{"guard-b": errors.New("transport down")}}
	req := Request{UserRequest: "test", GuardrailModels: []string{"guard-a", "guard-b"}}
	cfg := DefaultConfig()
	cfg.RequiresToolEvidence = true

	res, err := RunGuardedChain(context.Background(), client, req, cfg)
	if err == nil {
		t.Fatalf("expected error when chain is exhausted")
	}
	if !res.HardGateUnmet {
		t.Fatalf("expected hard gate unmet to propagate when RequiresToolEvidence is set")
	}
}

func TestRunSummarizerPass_MergesURLsFromFindingsAndReply(t *testing.T) {
	client := &queuedClient{byModel: map[string]collab.ChatResponse{
		"synthesizer": {Content: "Summary text referencing https://example.com/reply-source"},
	}}
	findings := "Primary search findings:\nSee https://example.com/findings-source\n"
	out, err := RunSummarizerPass(context.Background(), client, "synthesizer", findings, "what happened", "", "2026-07-30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "findings-source") || !strings.Contains(out, "reply-source") {
		t.Fatalf("expected merged URLs from both findings and reply, got %q", out)
	}
}
