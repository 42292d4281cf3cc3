package critic

import (
	"context"
	"errors"
	"testing"

	"github.com/agentic/runtime/internal/runtime/types"
)

func TestEligible(t *testing.T) {
	tests := []struct {
		name       string
		route      types.Route
		voice      bool
		files      bool
		draft      string
		priorFail  bool
		want       bool
	}{
		{"eligible chat", types.RouteChat, false, false, "a real draft", false, true},
		{"ineligible route", types.RouteCreative, false, false, "a real draft", false, false},
		{"voice active", types.RouteChat, true, false, "a real draft", false, false},
		{"files attached", types.RouteChat, false, true, "a real draft", false, false},
		{"empty draft", types.RouteChat, false, false, "", false, false},
		{"silence marker", types.RouteChat, false, false, "[SILENCE]", false, false},
		{"terminal search fallback", types.RouteSearch, false, false, "a real draft", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Eligible(tt.route, tt.voice, tt.files, tt.draft, tt.priorFail)
			if got != tt.want {
				t.Fatalf("Eligible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseAssessment_Lenient(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		ok   bool
	}{
		{"plain json", `{"score":0.9,"verdict":"pass","issues":[],"rewritePrompt":"","model":"m"}`, true},
		{"fenced json", "```json\n{\"score\":0.9,\"verdict\":\"pass\"}\n```", true},
		{"trailing comma object", `{"score":0.9,"verdict":"pass",}`, true},
		{"trailing comma array", `{"score":0.9,"issues":["a","b",]}`, true},
		{"garbage", "not json at all", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ParseAssessment(tt.raw)
			if ok != tt.ok {
				t.Fatalf("ParseAssessment(%q) ok=%v, want %v", tt.raw, ok, tt.ok)
			}
		})
	}
}

func TestParseAssessment_EnforcesPassScoreInvariant(t *testing.T) {
	assessment, ok := ParseAssessment(`{"score":0.5,"verdict":"pass"}`)
	if !ok {
		t.Fatalf("expected successful parse")
	}
	if assessment.Verdict != types.VerdictRevise {
		t.Fatalf("expected low-score pass to be downgraded to revise, got %v", assessment.Verdict)
	}
}

func TestMatchesFactualityFreshness(t *testing.T) {
	if !MatchesFactualityFreshness([]string{"the date appears outdated"}) {
		t.Fatalf("expected outdated-date issue to match")
	}
	if MatchesFactualityFreshness([]string{"tone is too casual"}) {
		t.Fatalf("expected tone issue to not match factuality/freshness")
	}
}

func TestProvidersForIssues(t *testing.T) {
	providers := ProvidersForIssues([]string{"missing citation", "tone is off"})
	want := map[string]bool{"memory": true, "social_graph": true}
	if len(providers) != 2 {
		t.Fatalf("expected 2 providers, got %v", providers)
	}
	for _, p := range providers {
		if !want[p] {
			t.Fatalf("unexpected provider %s", p)
		}
	}
}

func TestRun_StopsOnPass(t *testing.T) {
	hooks := Hooks{
		Critique: func(ctx context.Context, route types.Route, draft string) (string, error) {
			return `{"score":0.95,"verdict":"pass","issues":[]}`, nil
		},
	}
	out := Run(context.Background(), types.RouteChat, "a draft", Config{MaxLoops: 2}, hooks)
	if out.Stopped != "pass" || out.Iterations != 1 {
		t.Fatalf("expected pass on first iteration, got %+v", out)
	}
}

func TestRun_StopsOnMaxLoops(t *testing.T) {
	calls := 0
	hooks := Hooks{
		Critique: func(ctx context.Context, route types.Route, draft string) (string, error) {
			calls++
			return `{"score":0.3,"verdict":"revise","issues":["tone"]}`, nil
		},
		Revise: func(ctx context.Context, route types.Route, draft, rewritePrompt, extraContext string) (string, error) {
			return draft + " revised", nil
		},
	}
	out := Run(context.Background(), types.RouteChat, "a draft", Config{MaxLoops: 2}, hooks)
	if out.Stopped != "max_loops" || out.Iterations != 2 {
		t.Fatalf("expected max_loops after 2 iterations, got %+v", out)
	}
	if calls != 2 {
		t.Fatalf("expected exactly 2 critique calls, got %d", calls)
	}
}

func TestRun_StopsOnRevisionFailure(t *testing.T) {
	hooks := Hooks{
		Critique: func(ctx context.Context, route types.Route, draft string) (string, error) {
			return `{"score":0.3,"verdict":"revise","issues":["tone"]}`, nil
		},
		Revise: func(ctx context.Context, route types.Route, draft, rewritePrompt, extraContext string) (string, error) {
			return "", errors.New("provider down")
		},
	}
	out := Run(context.Background(), types.RouteChat, "a draft", Config{MaxLoops: 2}, hooks)
	if out.Stopped != "revision_failed" {
		t.Fatalf("expected revision_failed, got %+v", out)
	}
}

func TestRun_SearchRefreshOnFactualityIssue(t *testing.T) {
	refreshCalled := false
	hooks := Hooks{
		Critique: func(ctx context.Context, route types.Route, draft string) (string, error) {
			if refreshCalled {
				return `{"score":0.9,"verdict":"pass","issues":[]}`, nil
			}
			return `{"score":0.5,"verdict":"revise","issues":["outdated information"]}`, nil
		},
		SearchRefresh: func(ctx context.Context, focus string) (string, error) {
			refreshCalled = true
			return "fresh findings Checked-on: today https://example.com", nil
		},
	}
	out := Run(context.Background(), types.RouteSearch, "stale draft", Config{MaxLoops: 2}, hooks)
	if !refreshCalled {
		t.Fatalf("expected search refresh to be invoked")
	}
	if out.Stopped != "pass" {
		t.Fatalf("expected eventual pass, got %+v", out)
	}
}

func TestRun_VerifiabilityIssueRoutesToToolLoop(t *testing.T) {
	toolLoopCalled := false
	hooks := Hooks{
		Critique: func(ctx context.Context, route types.Route, draft string) (string, error) {
			return `{"score":0.4,"verdict":"revise","issues":["unverified claim"]}`, nil
		},
		ReviseWithToolLoop: func(ctx context.Context, route types.Route, draft, rewritePrompt string) (string, error) {
			toolLoopCalled = true
			return "revised with tools", nil
		},
		Revise: func(ctx context.Context, route types.Route, draft, rewritePrompt, extraContext string) (string, error) {
			t.Fatalf("expected tool-loop revision path, not plain Revise")
			return "", nil
		},
	}
	Run(context.Background(), types.RouteChat, "a draft", Config{MaxLoops: 1}, hooks)
	if !toolLoopCalled {
		t.Fatalf("expected ReviseWithToolLoop to be invoked for a verifiability issue")
	}
}

func TestRun_NullParseEndsLoopForNonSearchRoute(t *testing.T) {
	hooks := Hooks{
		Critique: func(ctx context.Context, route types.Route, draft string) (string, error) {
			return "not json", nil
		},
	}
	out := Run(context.Background(), types.RouteChat, "a draft", Config{MaxLoops: 2}, hooks)
	if out.Stopped != "null_parse" {
		t.Fatalf("expected null_parse, got %+v", out)
	}
}
