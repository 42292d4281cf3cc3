// Package validator implements the response validator from spec §4.G: a
// per-route subset of structural checks gated by a strictness level, with
// auto-repair passes and a canonical safe-refusal fallback.
//
// Grounded on the teacher's internal/agent/tool_result_guard.go (the
// check-then-gate shape) and transcript_repair.go (the repair-attempt-loop
// idiom, generalized from transcript repair to draft repair).
package validator

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/agentic/runtime/internal/runtime/types"
	"github.com/agentic/runtime/internal/search"
)

// Check is the closed set of structural checks (spec §4.G).
type Check string

const (
	CheckEmptyReply               Check = "empty_reply"
	CheckToolEnvelopeLeak         Check = "tool_envelope_leak"
	CheckUnsupportedCertaintyPhrase Check = "unsupported_certainty_phrase"
	CheckMissingSourceURLs        Check = "missing_source_urls"
	CheckMissingCheckedOnDate     Check = "missing_checked_on_date"
	CheckInvalidCheckedOnDate     Check = "invalid_checked_on_date"
)

// Strictness is the closed set of enforcement levels.
type Strictness string

const (
	StrictnessOff     Strictness = "off"
	StrictnessWarn    Strictness = "warn"
	StrictnessEnforce Strictness = "enforce"
)

// SafeRefusal is the canonical validator-block sentinel (spec §7).
const SafeRefusal = "I couldn't safely validate this response against runtime checks, so I won't provide a potentially incorrect answer right now. Please try again."

// RoutePolicy selects which checks apply for one route and at what
// strictness.
type RoutePolicy struct {
	Checks              []Check
	Strictness          Strictness
	AutoRepairMaxAttempts int
}

// DefaultPolicies matches the routes named in spec §4.G, applying the
// checks that make sense for each (search gets the source/freshness
// checks; coding and chat get the envelope/certainty checks; creative is
// left mostly unconstrained).
func DefaultPolicies() map[types.Route]RoutePolicy {
	return map[types.Route]RoutePolicy{
		types.RouteChat: {
			Checks:                []Check{CheckEmptyReply, CheckToolEnvelopeLeak, CheckUnsupportedCertaintyPhrase},
			Strictness:            StrictnessEnforce,
			AutoRepairMaxAttempts: 1,
		},
		types.RouteCoding: {
			Checks:                []Check{CheckEmptyReply, CheckToolEnvelopeLeak},
			Strictness:            StrictnessEnforce,
			AutoRepairMaxAttempts: 1,
		},
		types.RouteSearch: {
			Checks: []Check{
				CheckEmptyReply, CheckToolEnvelopeLeak, CheckMissingSourceURLs,
				CheckMissingCheckedOnDate, CheckInvalidCheckedOnDate,
			},
			Strictness:            StrictnessEnforce,
			AutoRepairMaxAttempts: 2,
		},
		types.RouteCreative: {
			Checks:     []Check{CheckEmptyReply},
			Strictness: StrictnessWarn,
		},
	}
}

// certaintyPhrases are phrases that claim certainty the model cannot
// actually back (spec §4.G unsupported_certainty_phrase check).
var certaintyPhrases = []string{
	"i guarantee", "i am 100% certain", "this is definitely correct", "i am absolutely sure",
}

var checkedOnLine = regexp.MustCompile(`(?i)checked-on\s*:\s*(\S+)`)

// Finding is one failed check.
type Finding struct {
	Check   Check
	Detail  string
}

// Evaluate runs policy.Checks against reply and returns every failed check.
func Evaluate(reply string, policy RoutePolicy) []Finding {
	var findings []Finding
	has := func(c Check) bool {
		for _, x := range policy.Checks {
			if x == c {
				return true
			}
		}
		return false
	}

	trimmed := strings.TrimSpace(reply)
	if has(CheckEmptyReply) && trimmed == "" {
		findings = append(findings, Finding{Check: CheckEmptyReply})
	}
	if has(CheckToolEnvelopeLeak) {
		if leak, ok := DetectEnvelopeLeak(reply); ok {
			findings = append(findings, Finding{Check: CheckToolEnvelopeLeak, Detail: leak})
		}
	}
	if has(CheckUnsupportedCertaintyPhrase) {
		lower := strings.ToLower(reply)
		for _, phrase := range certaintyPhrases {
			if strings.Contains(lower, phrase) {
				findings = append(findings, Finding{Check: CheckUnsupportedCertaintyPhrase, Detail: phrase})
				break
			}
		}
	}
	if has(CheckMissingSourceURLs) && len(search.ExtractURLs(reply)) == 0 {
		findings = append(findings, Finding{Check: CheckMissingSourceURLs})
	}
	if has(CheckMissingCheckedOnDate) && !search.HasCheckedOn(reply) {
		findings = append(findings, Finding{Check: CheckMissingCheckedOnDate})
	}
	if has(CheckInvalidCheckedOnDate) {
		if m := checkedOnLine.FindStringSubmatch(reply); m != nil {
			if _, err := time.Parse("2006-01-02", m[1]); err != nil {
				findings = append(findings, Finding{Check: CheckInvalidCheckedOnDate, Detail: m[1]})
			}
		}
	}
	return findings
}

// envelopeFragment detects a literal leaked tool-call envelope fragment in
// otherwise-final text (spec §4.H final safety net / §4.G
// tool_envelope_leak check).
var envelopeFragment = regexp.MustCompile(`\{\s*"type"\s*:\s*"tool_calls"\s*,\s*"calls"\s*:\s*\[`)

// DetectEnvelopeLeak returns the matched fragment and true if reply
// contains a literal tool-call envelope.
func DetectEnvelopeLeak(reply string) (string, bool) {
	loc := envelopeFragment.FindStringIndex(reply)
	if loc == nil {
		return "", false
	}
	return reply[loc[0]:loc[1]], true
}

// StripEnvelopeLeak removes a leaked envelope fragment (from its opening
// brace to the end of the string, since a malformed trailing JSON blob has
// no clean closing point to resume prose after) and reports whether a
// non-empty residual remains.
func StripEnvelopeLeak(reply string) (string, bool) {
	loc := envelopeFragment.FindStringIndex(reply)
	if loc == nil {
		return reply, true
	}
	residual := strings.TrimSpace(reply[:loc[0]])
	return residual, residual != ""
}

// RepairFn is the per-route repair call: search uses the search pipeline,
// other routes use a direct LLM call with a repair instruction (spec
// §4.G). Both are modeled identically here as "draft in, draft out".
type RepairFn func(ctx context.Context, draft string, findings []Finding) (string, error)

// Validate runs Evaluate, and under enforce strictness repeatedly invokes
// repair up to policy.AutoRepairMaxAttempts times before falling back to
// the canonical safe-refusal sentence.
func Validate(ctx context.Context, draft string, policy RoutePolicy, repair RepairFn) (string, []Finding, bool) {
	findings := Evaluate(draft, policy)
	if len(findings) == 0 || policy.Strictness != StrictnessEnforce {
		return draft, findings, false
	}

	current := draft
	for attempt := 0; attempt < policy.AutoRepairMaxAttempts; attempt++ {
		repaired, err := repair(ctx, current, findings)
		if err != nil {
			break
		}
		current = repaired
		findings = Evaluate(current, policy)
		if len(findings) == 0 {
			return current, nil, false
		}
	}

	return SafeRefusal, findings, true
}
