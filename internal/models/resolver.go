package models

import (
	"context"
	"sort"

	"github.com/agentic/runtime/internal/runtime/collab"
	"github.com/agentic/runtime/internal/runtime/types"
)

// routeCapability is the capability the Resolver requires for a given
// route, grounded on the catalog's Filter.RequiredCapabilities idiom
// (catalog.go).
var routeCapability = map[types.Route]Capability{
	types.RouteChat:     CapStreaming,
	types.RouteCoding:   CapCode,
	types.RouteSearch:   CapTools,
	types.RouteCreative: CapStreaming,
}

// Resolver is a catalog-backed collab.ModelResolver: it narrows the
// catalog to non-deprecated models with the route's required capability,
// intersects with any caller-supplied allowlist, and falls back through
// the FallbackConfig candidate-ordering idiom (fallback.go) when the
// tenant allowlist excludes every catalog match.
type Resolver struct {
	catalog  *Catalog
	fallback FallbackConfig
}

var _ collab.ModelResolver = (*Resolver)(nil)

// NewResolver builds a Resolver over catalog, falling back to
// fallbackCfg's PrimaryProvider/PrimaryModel/Fallbacks chain when no
// catalog model survives route/allowlist narrowing.
func NewResolver(catalog *Catalog, fallbackCfg FallbackConfig) *Resolver {
	if catalog == nil {
		catalog = NewCatalog()
	}
	return &Resolver{catalog: catalog, fallback: fallbackCfg}
}

func (r *Resolver) Resolve(ctx context.Context, req collab.ResolveRequest) (collab.ResolveResponse, error) {
	var decisions []collab.ResolveDecision

	filter := &Filter{}
	if cap, ok := routeCapability[req.Route]; ok {
		filter.RequiredCapabilities = []Capability{cap}
	}
	candidates := r.catalog.List(filter)
	decisions = append(decisions, collab.ResolveDecision{
		Step: "route_capability_filter", Detail: string(req.Route),
	})

	allowlistApplied := false
	if len(req.AllowedModels) > 0 {
		allowlistApplied = true
		allowSet := make(map[string]bool, len(req.AllowedModels))
		for _, id := range req.AllowedModels {
			allowSet[id] = true
		}
		filtered := candidates[:0:0]
		for _, m := range candidates {
			if allowSet[m.ID] {
				filtered = append(filtered, m)
			}
		}
		candidates = filtered
		decisions = append(decisions, collab.ResolveDecision{
			Step: "tenant_allowlist", Detail: "narrowed to allowed models",
		})
	}

	ids := make([]string, 0, len(candidates))
	for _, m := range candidates {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)

	if len(ids) > 0 {
		return collab.ResolveResponse{
			Model:            ids[0],
			Candidates:       ids,
			Route:            req.Route,
			Decisions:        decisions,
			AllowlistApplied: allowlistApplied,
		}, nil
	}

	// No catalog candidate survived; fall back to the configured
	// primary/fallback chain (fallback.go's FallbackConfig), in order.
	chain := append([]string{ModelKey(r.fallback.PrimaryProvider, r.fallback.PrimaryModel)}, r.fallback.Fallbacks...)
	decisions = append(decisions, collab.ResolveDecision{
		Step: "fallback_chain", Detail: "no catalog candidate survived filtering",
	})
	return collab.ResolveResponse{
		Model:            chain[0],
		Candidates:       chain,
		Route:            req.Route,
		Decisions:        decisions,
		AllowlistApplied: allowlistApplied,
	}, nil
}
