package metadata

import (
	"testing"

	"github.com/xaviermatuz/formdesk/internal/capability"
	"github.com/xaviermatuz/formdesk/internal/definition"
	"github.com/xaviermatuz/formdesk/model"
)

func testRegistry(t *testing.T) *definition.Registry {
	t.Helper()
	files, err := definition.NewLoader().LoadAll([]string{"../../definitions"})
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	return definition.NewRegistry(files)
}

func testPolicy(t *testing.T) Policy {
	t.Helper()
	e, err := capability.NewStaticPolicyEvaluator("")
	if err != nil {
		t.Fatalf("NewStaticPolicyEvaluator() error = %v", err)
	}
	return e
}

func user(role string) *model.RequestContext {
	return &model.RequestContext{SessionID: "s1", UserID: "7", Username: "ana", Roles: []string{role}}
}

func resource(t *testing.T, name string) model.ResourceDefinition {
	t.Helper()
	def, ok := testRegistry(t).Resource(name)
	if !ok {
		t.Fatalf("resource %q not defined", name)
	}
	return def
}
