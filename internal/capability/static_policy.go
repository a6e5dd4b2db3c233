package capability

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/xaviermatuz/formdesk/model"
)

//go:embed default_policy.yaml
var defaultPolicy []byte

type policyFile struct {
	Roles map[string][]string `yaml:"roles"`
	// Owned grants capabilities only on rows whose OwnerField names the
	// requesting user.
	Owned      map[string][]string `yaml:"owned"`
	OwnerField string              `yaml:"owner_field"`
}

// StaticPolicyEvaluator resolves capabilities from a YAML file mapping
// roles to capability strings. Role names are matched case-insensitively.
type StaticPolicyEvaluator struct {
	path   string
	mu     sync.RWMutex
	policy policyFile
}

// NewStaticPolicyEvaluator creates an evaluator that loads policies from
// path. An empty path selects the built-in policy.
func NewStaticPolicyEvaluator(path string) (*StaticPolicyEvaluator, error) {
	e := &StaticPolicyEvaluator{path: path}
	if err := e.Sync(); err != nil {
		return nil, err
	}
	return e, nil
}

// ResolveCapabilities returns the union of capabilities for roles.
func (e *StaticPolicyEvaluator) ResolveCapabilities(roles []string) model.CapabilitySet {
	e.mu.RLock()
	defer e.mu.RUnlock()

	caps := make(model.CapabilitySet)
	for _, role := range roles {
		for _, c := range e.policy.Roles[strings.ToLower(role)] {
			caps[c] = true
		}
	}
	return caps
}

// Evaluate checks one capability. A capability not granted by role is
// still allowed when an owned grant covers it and row belongs to the user.
func (e *StaticPolicyEvaluator) Evaluate(rctx *model.RequestContext, capability model.Capability, row map[string]any) bool {
	if rctx == nil {
		return false
	}
	if e.ResolveCapabilities(rctx.Roles).Has(capability) {
		return true
	}
	return e.ownedGrant(rctx, capability, row)
}

func (e *StaticPolicyEvaluator) ownedGrant(rctx *model.RequestContext, capability model.Capability, row map[string]any) bool {
	if row == nil {
		return false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.policy.OwnerField == "" {
		return false
	}
	owned := make(model.CapabilitySet)
	for _, role := range rctx.Roles {
		for _, c := range e.policy.Owned[strings.ToLower(role)] {
			owned[c] = true
		}
	}
	if !owned.Has(capability) {
		return false
	}
	return rctx.Owns(model.FormatValue(row[e.policy.OwnerField]))
}

// Sync reloads the policy from disk.
func (e *StaticPolicyEvaluator) Sync() error {
	data := defaultPolicy
	if e.path != "" {
		var err error
		data, err = os.ReadFile(e.path)
		if err != nil {
			return fmt.Errorf("capability: reading policy file %s: %w", e.path, err)
		}
	}

	var p policyFile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("capability: parsing policy file %s: %w", e.source(), err)
	}
	p.Roles = lowerKeys(p.Roles)
	p.Owned = lowerKeys(p.Owned)

	e.mu.Lock()
	e.policy = p
	e.mu.Unlock()

	return nil
}

func (e *StaticPolicyEvaluator) source() string {
	if e.path == "" {
		return "(built-in)"
	}
	return e.path
}

func lowerKeys(m map[string][]string) map[string][]string {
	out := make(map[string][]string, len(m))
	for k, v := range m {
		k = strings.ToLower(k)
		out[k] = append(out[k], v...)
	}
	return out
}
