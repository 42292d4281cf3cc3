package registry

import (
	"encoding/json"

	"github.com/agentic/runtime/internal/runtime/types"
)

// Code is the closed set of evaluate() outcomes (spec §4.B).
type Code string

const (
	CodeAllow                      Code = "allow"
	CodeAllowUnconfigured          Code = "allow_unconfigured"
	CodeNetworkReadDisabled        Code = "network_read_disabled"
	CodeDataExfiltrationDisabled   Code = "data_exfiltration_risk_disabled"
	CodeExternalWriteDisabled      Code = "external_write_disabled"
	CodeHighRiskDisabled           Code = "high_risk_disabled"
	CodeToolBlocked                Code = "tool_blocked"
	CodeMaxCallsPerRoundTruncated  Code = "max_calls_per_round_truncated"
)

// riskCodes lists RiskClass -> deny code, ordered most-restrictive first.
// Evaluate walks this order so a tool that is disabled at multiple risk
// levels always reports its most restrictive applicable reason.
var riskCodeOrder = []struct {
	class RiskClass
	code  Code
}{
	{RiskHigh, CodeHighRiskDisabled},
	{RiskExternalWrite, CodeExternalWriteDisabled},
	{RiskDataExfiltration, CodeDataExfiltrationDisabled},
	{RiskNetworkRead, CodeNetworkReadDisabled},
}

type RiskClass = types.RiskClass

const (
	RiskBenign           = types.RiskBenign
	RiskNetworkRead      = types.RiskNetworkRead
	RiskDataExfiltration = types.RiskDataExfiltration
	RiskExternalWrite    = types.RiskExternalWrite
	RiskHigh             = types.RiskHigh
)

// RiskGates toggles whether a given risk class is permitted at all, for the
// active tenant/guild. Missing entries default to allowed (benign is always
// implicitly allowed and never appears here).
type RiskGates struct {
	NetworkRead      bool `json:"networkRead"`
	DataExfiltration bool `json:"dataExfiltration"`
	ExternalWrite    bool `json:"externalWrite"`
	HighRisk         bool `json:"highRisk"`
}

// Policy is the merged, effective policy for one evaluation: legacy env
// defaults, overlaid by a global JSON document, overlaid by a per-tenant
// JSON document (spec §4.B "policy merge: legacy env defaults <- global JSON
// <- tenant JSON, last writer wins per field").
type Policy struct {
	Blocklist        map[string]bool
	RouteAllowlists  map[types.Route]map[string]bool // empty map for a route = no restriction
	Gates            RiskGates
	MaxCallsPerRound int
}

// layerDoc is the shape both the global and tenant policy JSON documents
// share; absent fields leave the underlying layer's value untouched.
type layerDoc struct {
	Blocklist        []string                    `json:"blocklist"`
	RouteAllowlists  map[types.Route][]string    `json:"routeAllowlists"`
	Gates            *RiskGates                  `json:"riskGates"`
	MaxCallsPerRound *int                        `json:"maxCallsPerRound"`
}

// DefaultPolicy is the legacy env-default base layer (spec §4.B): every risk
// class above benign is disabled until explicitly turned on, no blocklist,
// no route restriction, and a conservative max-calls-per-round ceiling.
func DefaultPolicy() Policy {
	return Policy{
		Blocklist:       map[string]bool{},
		RouteAllowlists: map[types.Route]map[string]bool{},
		Gates: RiskGates{
			NetworkRead:      true,
			DataExfiltration: false,
			ExternalWrite:    false,
			HighRisk:         false,
		},
		MaxCallsPerRound: 8,
	}
}

// MergePolicyLayers applies globalJSON then tenantJSON on top of base, each
// layer only overriding fields it explicitly sets.
func MergePolicyLayers(base Policy, globalJSON, tenantJSON []byte) (Policy, error) {
	merged := base
	for _, raw := range [][]byte{globalJSON, tenantJSON} {
		if len(raw) == 0 {
			continue
		}
		var doc layerDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			return Policy{}, err
		}
		if doc.Blocklist != nil {
			bl := map[string]bool{}
			for _, name := range doc.Blocklist {
				bl[name] = true
			}
			merged.Blocklist = bl
		}
		if doc.RouteAllowlists != nil {
			ra := map[types.Route]map[string]bool{}
			for route, names := range doc.RouteAllowlists {
				set := map[string]bool{}
				for _, n := range names {
					set[n] = true
				}
				ra[route] = set
			}
			merged.RouteAllowlists = ra
		}
		if doc.Gates != nil {
			merged.Gates = *doc.Gates
		}
		if doc.MaxCallsPerRound != nil {
			merged.MaxCallsPerRound = *doc.MaxCallsPerRound
		}
	}
	return merged, nil
}

// Evaluate implements spec §4.B's evaluate(toolName, policy) -> {allowed,
// code} with the fixed deny ordering: blocklist first, then route
// allowlist, then risk class from most restrictive (high_risk) down to
// least (network_read). A tool with an unrecognized/empty risk class that
// clears every gate is reported allow_unconfigured rather than allow, so
// callers can distinguish "explicitly cleared" from "fell through".
func (r *Registry) Evaluate(name string, route types.Route, policy Policy) (bool, Code) {
	def, ok := r.Get(name)
	if !ok {
		return false, CodeToolBlocked
	}
	if policy.Blocklist[name] {
		return false, CodeToolBlocked
	}
	if allowset, scoped := policy.RouteAllowlists[route]; scoped && len(allowset) > 0 && !allowset[name] {
		return false, CodeToolBlocked
	}

	switch def.RiskClass {
	case RiskHigh:
		if !policy.Gates.HighRisk {
			return false, CodeHighRiskDisabled
		}
	case RiskExternalWrite:
		if !policy.Gates.ExternalWrite {
			return false, CodeExternalWriteDisabled
		}
	case RiskDataExfiltration:
		if !policy.Gates.DataExfiltration {
			return false, CodeDataExfiltrationDisabled
		}
	case RiskNetworkRead:
		if !policy.Gates.NetworkRead {
			return false, CodeNetworkReadDisabled
		}
	case RiskBenign:
		// always allowed
	default:
		return true, CodeAllowUnconfigured
	}
	return true, CodeAllow
}

// TruncateToRound applies the max-calls-per-round ceiling (spec §4.D), kept
// here because the ceiling itself is a policy-owned field. Returns the
// kept calls plus whether truncation occurred.
func TruncateToRound(calls []types.ToolCall, policy Policy) ([]types.ToolCall, bool) {
	if policy.MaxCallsPerRound <= 0 || len(calls) <= policy.MaxCallsPerRound {
		return calls, false
	}
	return calls[:policy.MaxCallsPerRound], true
}

// ClosedGates lists which risk-class gates are currently closed, in the
// same most-restrictive-first order Evaluate checks them — used by trace
// output to explain an allow_unconfigured/deny decision.
func ClosedGates(gates RiskGates) []Code {
	var out []Code
	for _, entry := range riskCodeOrder {
		switch entry.class {
		case RiskHigh:
			if !gates.HighRisk {
				out = append(out, entry.code)
			}
		case RiskExternalWrite:
			if !gates.ExternalWrite {
				out = append(out, entry.code)
			}
		case RiskDataExfiltration:
			if !gates.DataExfiltration {
				out = append(out, entry.code)
			}
		case RiskNetworkRead:
			if !gates.NetworkRead {
				out = append(out, entry.code)
			}
		}
	}
	return out
}
