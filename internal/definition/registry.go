package definition

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/xaviermatuz/formdesk/model"
)

// snapshot is an immutable view of all loaded definitions.
type snapshot struct {
	resources  map[string]model.ResourceDefinition
	names      []string
	navigation []model.NavigationDefinition
	checksum   string
}

// Registry is a read-optimized, thread-safe store of loaded definitions.
// Readers never block; Replace swaps the whole snapshot.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates a Registry from the given files.
func NewRegistry(files []model.DefinitionFile) *Registry {
	r := &Registry{}
	r.Replace(files)
	return r
}

// Replace atomically swaps the registry contents. Later files win on
// duplicate resource names; the validator reports duplicates beforehand.
func (r *Registry) Replace(files []model.DefinitionFile) {
	s := &snapshot{
		resources: make(map[string]model.ResourceDefinition),
	}

	var checksumParts []string
	for _, f := range files {
		checksumParts = append(checksumParts, f.Checksum)
		for _, res := range f.Resources {
			s.resources[res.Name] = res
		}
		s.navigation = append(s.navigation, f.Navigation...)
	}

	for name := range s.resources {
		s.names = append(s.names, name)
	}
	sort.Strings(s.names)
	sort.SliceStable(s.navigation, func(i, j int) bool {
		return s.navigation[i].Order < s.navigation[j].Order
	})

	sort.Strings(checksumParts)
	combined := strings.Join(checksumParts, ":")
	s.checksum = fmt.Sprintf("%x", sha256.Sum256([]byte(combined)))

	r.snap.Store(s)
}

func (r *Registry) current() *snapshot {
	return r.snap.Load()
}

// Resource returns the resource definition with the given name.
func (r *Registry) Resource(name string) (model.ResourceDefinition, bool) {
	d, ok := r.current().resources[name]
	return d, ok
}

// Resources returns every resource definition ordered by name.
func (r *Registry) Resources() []model.ResourceDefinition {
	s := r.current()
	defs := make([]model.ResourceDefinition, 0, len(s.names))
	for _, n := range s.names {
		defs = append(defs, s.resources[n])
	}
	return defs
}

// Navigation returns the navigation entries ordered by Order.
func (r *Registry) Navigation() []model.NavigationDefinition {
	nav := r.current().navigation
	out := make([]model.NavigationDefinition, len(nav))
	copy(out, nav)
	return out
}

// Count returns the number of resource definitions.
func (r *Registry) Count() int {
	return len(r.current().resources)
}

// Checksum returns the combined checksum of all loaded files.
func (r *Registry) Checksum() string {
	return r.current().checksum
}
