package model

import "strings"

// Capability names a permission in "<resource>:<verb>" form
// (e.g. "forms:delete"). Wildcards are only valid inside a CapabilitySet.
type Capability string

// Verbs understood by the action model.
const (
	VerbView     = "view"
	VerbCreate   = "create"
	VerbEdit     = "edit"
	VerbDelete   = "delete"
	VerbPurge    = "purge"
	VerbRestore  = "restore"
	VerbExport   = "export"
	VerbVersions = "versions"
	VerbAudit    = "audit"
)

// Cap builds the capability for a verb on a resource.
func Cap(resource, verb string) Capability {
	return Capability(resource + ":" + verb)
}

// Resource returns the resource half of the capability.
func (c Capability) Resource() string {
	s := string(c)
	if i := strings.IndexByte(s, ':'); i >= 0 {
		return s[:i]
	}
	return s
}

// CapabilitySet is a set of capabilities granted to a user. Each key is a
// capability string (e.g. "forms:view") and may include wildcards
// (e.g. "forms:*").
type CapabilitySet map[string]bool

// Has returns true if the set contains the exact capability or a wildcard
// that matches it.
func (cs CapabilitySet) Has(c Capability) bool {
	if cs[string(c)] {
		return true
	}
	for pattern := range cs {
		if matchWildcard(pattern, string(c)) {
			return true
		}
	}
	return false
}

// HasAll returns true if the set matches all given capabilities.
func (cs CapabilitySet) HasAll(caps ...Capability) bool {
	for _, c := range caps {
		if !cs.Has(c) {
			return false
		}
	}
	return true
}

// HasAny returns true if the set matches at least one of the given
// capabilities.
func (cs CapabilitySet) HasAny(caps ...Capability) bool {
	for _, c := range caps {
		if cs.Has(c) {
			return true
		}
	}
	return false
}

// matchWildcard returns true if pattern (which may end in "*") matches cap.
//
//	"*"        matches anything
//	"forms:*"  matches "forms:delete"
//	"forms"    does NOT match "forms:delete"
func matchWildcard(pattern, cap string) bool {
	if pattern == "*" {
		return true
	}
	if !strings.HasSuffix(pattern, ":*") {
		return false
	}
	prefix := pattern[:len(pattern)-1]
	return strings.HasPrefix(cap, prefix)
}

// PolicyEvaluator resolves capabilities from roles. Implementations must be
// safe for concurrent use.
type PolicyEvaluator interface {
	// ResolveCapabilities returns the union of capabilities for the roles.
	ResolveCapabilities(roles []string) CapabilitySet

	// Evaluate checks one capability for the request identity. The row, when
	// non-nil, is used for ownership-restricted grants.
	Evaluate(rctx *RequestContext, capability Capability, row map[string]any) bool
}
