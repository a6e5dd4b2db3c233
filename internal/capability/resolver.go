// Package capability decides what a user may see and do. Every rendering,
// action and route guard goes through Resolver.Allow so role checks live in
// one place.
package capability

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/xaviermatuz/formdesk/internal/observability"
	"github.com/xaviermatuz/formdesk/model"
)

type cacheEntry struct {
	caps    model.CapabilitySet
	expires time.Time
}

// Resolver implements model.PolicyEvaluator over another evaluator, caching
// resolved role sets.
type Resolver struct {
	evaluator model.PolicyEvaluator
	ttl       time.Duration
	metrics   *observability.Metrics
	now       func() time.Time

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewResolver creates a Resolver with the given evaluator and cache TTL.
// metrics may be nil.
func NewResolver(evaluator model.PolicyEvaluator, ttl time.Duration, metrics *observability.Metrics) *Resolver {
	return &Resolver{
		evaluator: evaluator,
		ttl:       ttl,
		metrics:   metrics,
		now:       time.Now,
		cache:     make(map[string]cacheEntry),
	}
}

func cacheKey(roles []string) string {
	norm := make([]string, len(roles))
	for i, r := range roles {
		norm[i] = strings.ToLower(r)
	}
	slices.Sort(norm)
	return strings.Join(slices.Compact(norm), ",")
}

// ResolveCapabilities returns the capability set for roles. Results are
// cached for the configured TTL.
func (r *Resolver) ResolveCapabilities(roles []string) model.CapabilitySet {
	key := cacheKey(roles)

	r.mu.RLock()
	if entry, ok := r.cache[key]; ok && r.now().Before(entry.expires) {
		r.mu.RUnlock()
		r.metrics.RecordCapabilityCacheHit()
		return entry.caps
	}
	r.mu.RUnlock()

	r.metrics.RecordCapabilityCacheMiss()
	caps := r.evaluator.ResolveCapabilities(roles)

	r.mu.Lock()
	r.cache[key] = cacheEntry{caps: caps, expires: r.now().Add(r.ttl)}
	r.mu.Unlock()

	return caps
}

// Allow reports whether roles grant capability.
func (r *Resolver) Allow(roles []string, capability model.Capability) bool {
	return r.ResolveCapabilities(roles).Has(capability)
}

// AllowAll reports whether roles grant every capability. An empty list is
// always allowed.
func (r *Resolver) AllowAll(roles []string, caps []model.Capability) bool {
	return r.ResolveCapabilities(roles).HasAll(caps...)
}

// Evaluate checks one capability for a request, consulting row-level
// ownership grants when the role set alone does not allow it.
func (r *Resolver) Evaluate(rctx *model.RequestContext, capability model.Capability, row map[string]any) bool {
	if rctx == nil {
		return false
	}
	if r.Allow(rctx.Roles, capability) {
		return true
	}
	return r.evaluator.Evaluate(rctx, capability, row)
}

// Invalidate drops every cached role set, typically after a policy reload.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.cache = make(map[string]cacheEntry)
	r.mu.Unlock()
}
