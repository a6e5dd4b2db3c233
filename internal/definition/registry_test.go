package definition

import (
	"sync"
	"testing"

	"github.com/xaviermatuz/formdesk/model"
)

func testFiles() []model.DefinitionFile {
	return []model.DefinitionFile{
		{
			Checksum: "abc123",
			Resources: []model.ResourceDefinition{
				{Name: "users", Kind: model.KindUsers},
				{Name: "forms", Kind: model.KindForms},
			},
		},
		{
			Checksum: "def456",
			Navigation: []model.NavigationDefinition{
				{ID: "logs", Order: 50},
				{ID: "home", Order: 10},
				{ID: "forms", Order: 20},
			},
		},
	}
}

func TestRegistry_Resource(t *testing.T) {
	r := NewRegistry(testFiles())

	d, ok := r.Resource("forms")
	if !ok {
		t.Fatal("Resource(forms) not found")
	}
	if d.Kind != model.KindForms {
		t.Errorf("Kind = %q", d.Kind)
	}
	if _, ok := r.Resource("missing"); ok {
		t.Error("Resource(missing) should return false")
	}
	if r.Count() != 2 {
		t.Errorf("Count() = %d, want 2", r.Count())
	}
}

func TestRegistry_Resources_sorted(t *testing.T) {
	defs := NewRegistry(testFiles()).Resources()
	if len(defs) != 2 || defs[0].Name != "forms" || defs[1].Name != "users" {
		t.Errorf("Resources() = %+v, want forms then users", defs)
	}
}

func TestRegistry_Navigation_ordered(t *testing.T) {
	r := NewRegistry(testFiles())
	nav := r.Navigation()

	want := []string{"home", "forms", "logs"}
	if len(nav) != len(want) {
		t.Fatalf("Navigation() = %d entries, want %d", len(nav), len(want))
	}
	for i, id := range want {
		if nav[i].ID != id {
			t.Errorf("nav[%d] = %q, want %q", i, nav[i].ID, id)
		}
	}

	nav[0].ID = "mutated"
	if r.Navigation()[0].ID != "home" {
		t.Error("Navigation() must return a copy")
	}
}

func TestRegistry_Checksum(t *testing.T) {
	a := NewRegistry(testFiles())
	files := testFiles()
	files[0], files[1] = files[1], files[0]
	b := NewRegistry(files)

	if a.Checksum() == "" {
		t.Fatal("Checksum() should not be empty")
	}
	if a.Checksum() != b.Checksum() {
		t.Error("Checksum() should not depend on file order")
	}
}

func TestRegistry_Replace(t *testing.T) {
	r := NewRegistry(testFiles())
	old := r.Checksum()

	r.Replace([]model.DefinitionFile{{
		Checksum:  "new",
		Resources: []model.ResourceDefinition{{Name: "audit_logs", Kind: model.KindAuditLogs}},
	}})

	if _, ok := r.Resource("forms"); ok {
		t.Error("forms should be gone after Replace")
	}
	if _, ok := r.Resource("audit_logs"); !ok {
		t.Error("audit_logs should exist after Replace")
	}
	if r.Checksum() == old {
		t.Error("Checksum() should change after Replace")
	}
	if len(r.Navigation()) != 0 {
		t.Error("navigation should be replaced too")
	}
}

func TestRegistry_ConcurrentReads(t *testing.T) {
	r := NewRegistry(testFiles())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Resource("forms")
			r.Navigation()
			r.Checksum()
		}()
		go func() {
			defer wg.Done()
			r.Replace(testFiles())
		}()
	}
	wg.Wait()

	if r.Count() != 2 {
		t.Errorf("Count() = %d after concurrent replaces", r.Count())
	}
}
