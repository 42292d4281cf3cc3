// Package toolloop implements the tool-call loop from spec §4.D: envelope
// detection, round-by-round dispatch against the registry/policy layer,
// result caching, and the hard-evidence gate.
//
// Grounded on the teacher's internal/agent/tool_exec.go (concurrent
// dispatch shape) and internal/cache/dedupe.go (generalized from a
// TTL-dedup cache to an LRU result cache keyed on canonicalized args).
package toolloop

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/agentic/runtime/internal/runtime/types"
)

// fencePrefixes/fenceSuffix strip an optional ```json ... ``` code fence
// before parsing, matching how models commonly wrap structured replies.
var fencePrefixes = []string{"```json", "```JSON", "```"}

func stripFence(text string) string {
	t := strings.TrimSpace(text)
	for _, prefix := range fencePrefixes {
		if strings.HasPrefix(t, prefix) {
			t = strings.TrimPrefix(t, prefix)
			t = strings.TrimSpace(t)
			t = strings.TrimSuffix(t, "```")
			return strings.TrimSpace(t)
		}
	}
	return t
}

// ParseEnvelope attempts to parse text as a tool-call envelope after
// stripping an optional code fence. ok=false, ambiguous=false means the
// text is plain model output with no envelope markers at all. ok=false,
// ambiguous=true means the text looked like an attempted envelope (starts
// with { or [ and mentions type/name/calls) but failed to parse cleanly —
// the caller should retry once with a corrective instruction.
func ParseEnvelope(text string) (env types.ToolCallEnvelope, ok bool, ambiguous bool) {
	stripped := stripFence(text)
	if stripped == "" {
		return types.ToolCallEnvelope{}, false, false
	}

	looksStructured := strings.HasPrefix(stripped, "{") || strings.HasPrefix(stripped, "[")
	mentionsEnvelopeKeys := strings.Contains(stripped, `"type"`) ||
		strings.Contains(stripped, `"name"`) ||
		strings.Contains(stripped, `"calls"`)

	if !looksStructured || !mentionsEnvelopeKeys {
		return types.ToolCallEnvelope{}, false, false
	}

	var parsed types.ToolCallEnvelope
	if err := json.Unmarshal([]byte(stripped), &parsed); err != nil {
		return types.ToolCallEnvelope{}, false, true
	}
	if parsed.Type != types.EnvelopeType || parsed.Calls == nil {
		return types.ToolCallEnvelope{}, false, true
	}
	return parsed, true, false
}

// stableStringify canonicalizes object key order recursively before
// encoding; arrays preserve order (spec §4.D "stable argument hashing").
func stableStringify(raw json.RawMessage) (string, error) {
	var v any
	if len(raw) == 0 {
		v = map[string]any{}
	} else if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	var sb strings.Builder
	writeCanonical(&sb, v)
	return sb.String(), nil
}

func writeCanonical(sb *strings.Builder, v any) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			sb.Write(kb)
			sb.WriteByte(':')
			writeCanonical(sb, t[k])
		}
		sb.WriteByte('}')
	case []any:
		sb.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, e)
		}
		sb.WriteByte(']')
	default:
		b, _ := json.Marshal(t)
		sb.Write(b)
	}
}

// CacheKey computes name::stable_stringify(args).
func CacheKey(name string, args json.RawMessage) (string, error) {
	canonical, err := stableStringify(args)
	if err != nil {
		return "", err
	}
	return name + "::" + canonical, nil
}
