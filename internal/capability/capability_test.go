package capability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/xaviermatuz/formdesk/internal/observability"
	"github.com/xaviermatuz/formdesk/model"
)

func testRctx(roles ...string) *model.RequestContext {
	return &model.RequestContext{
		SessionID: "sess-1",
		UserID:    "7",
		Username:  "ana",
		Roles:     roles,
	}
}

func loadTestPolicy(t *testing.T) *StaticPolicyEvaluator {
	t.Helper()
	e, err := NewStaticPolicyEvaluator("testdata/policies.yaml")
	if err != nil {
		t.Fatalf("NewStaticPolicyEvaluator() error = %v", err)
	}
	return e
}

// --- StaticPolicyEvaluator tests ---

func TestStaticPolicyEvaluator_ResolveCapabilities(t *testing.T) {
	caps := loadTestPolicy(t).ResolveCapabilities([]string{"viewer"})

	if !caps.Has("forms:view") {
		t.Error("viewer should have forms:view")
	}
	if caps.Has("forms:delete") {
		t.Error("viewer should not have forms:delete by role")
	}
}

func TestStaticPolicyEvaluator_MultipleRoles(t *testing.T) {
	caps := loadTestPolicy(t).ResolveCapabilities([]string{"viewer", "auditor"})

	if !caps.HasAll("forms:view", "audit_logs:view") {
		t.Errorf("combined roles = %v, want forms:view and audit_logs:view", caps)
	}
}

func TestStaticPolicyEvaluator_Wildcard(t *testing.T) {
	e := loadTestPolicy(t)

	if !e.ResolveCapabilities([]string{"admin"}).Has("users:delete") {
		t.Error("admin with * should match anything")
	}
	editor := e.ResolveCapabilities([]string{"editor"})
	if !editor.Has("forms:purge") {
		t.Error("editor with forms:* should match forms:purge")
	}
	if editor.Has("users:view") {
		t.Error("editor should not have users:view")
	}
}

func TestStaticPolicyEvaluator_RolesAreCaseInsensitive(t *testing.T) {
	caps := loadTestPolicy(t).ResolveCapabilities([]string{"ADMIN"})
	if !caps.Has("forms:view") {
		t.Error("ADMIN should resolve as admin")
	}
}

func TestStaticPolicyEvaluator_UnknownRole(t *testing.T) {
	caps := loadTestPolicy(t).ResolveCapabilities([]string{"nonexistent"})
	if len(caps) != 0 {
		t.Errorf("unknown role should return empty capabilities, got %v", caps)
	}
}

func TestStaticPolicyEvaluator_Evaluate(t *testing.T) {
	e := loadTestPolicy(t)

	if !e.Evaluate(testRctx("viewer"), "forms:view", nil) {
		t.Error("Evaluate(forms:view) = false, want true")
	}
	if e.Evaluate(testRctx("viewer"), "forms:restore", nil) {
		t.Error("Evaluate(forms:restore) = true, want false for viewer")
	}
	if e.Evaluate(nil, "forms:view", nil) {
		t.Error("Evaluate without a request context must deny")
	}
}

func TestStaticPolicyEvaluator_OwnedGrant(t *testing.T) {
	e := loadTestPolicy(t)
	rctx := testRctx("viewer")

	tests := []struct {
		name string
		row  map[string]any
		want bool
	}{
		{"no row", nil, false},
		{"own row by username", map[string]any{"created_by": "ana"}, true},
		{"own row by user id", map[string]any{"created_by": float64(7)}, true},
		{"someone else's row", map[string]any{"created_by": "bob"}, false},
		{"missing owner", map[string]any{"name": "x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Evaluate(rctx, "forms:delete", tt.row); got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}

	if e.Evaluate(rctx, "forms:purge", map[string]any{"created_by": "ana"}) {
		t.Error("ownership must not grant capabilities outside the owned list")
	}
}

func TestStaticPolicyEvaluator_BuiltIn(t *testing.T) {
	e, err := NewStaticPolicyEvaluator("")
	if err != nil {
		t.Fatalf("NewStaticPolicyEvaluator(\"\") error = %v", err)
	}

	viewer := e.ResolveCapabilities([]string{"viewer"})
	if !viewer.HasAll("forms:view", "submissions:view", "submissions:create") {
		t.Errorf("viewer = %v", viewer)
	}
	if viewer.HasAny("forms:delete", "users:view", "audit_logs:view") {
		t.Errorf("viewer has too much: %v", viewer)
	}

	editor := testRctx("editor")
	if !e.Evaluate(editor, "forms:delete", nil) {
		t.Error("editor should soft delete forms")
	}
	if e.Evaluate(editor, "forms:purge", map[string]any{"created_by": "bob"}) {
		t.Error("editor should not purge other users' forms")
	}
	if !e.Evaluate(editor, "forms:purge", map[string]any{"created_by": "ana"}) {
		t.Error("editor should purge own forms")
	}
	if !e.Evaluate(testRctx("admin"), "audit_logs:view", nil) {
		t.Error("admin should view audit logs")
	}
}

func TestStaticPolicyEvaluator_BadFile(t *testing.T) {
	if _, err := NewStaticPolicyEvaluator("testdata/nonexistent.yaml"); err == nil {
		t.Fatal("expected error for missing policy file")
	}
	if _, err := NewStaticPolicyEvaluator("testdata/malformed.yaml"); err == nil {
		t.Fatal("expected error for malformed policy file")
	}
}

// --- Resolver tests ---

func TestResolver_AllowAndCache(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.InitMetrics(reg)
	r := NewResolver(loadTestPolicy(t), 5*time.Minute, m)

	if !r.Allow([]string{"viewer"}, "forms:view") {
		t.Error("viewer should be allowed forms:view")
	}
	if r.Allow([]string{"Viewer"}, "users:view") {
		t.Error("viewer should not be allowed users:view")
	}

	if got := testutil.ToFloat64(m.CapabilityCacheMissesTotal); got != 1 {
		t.Errorf("misses = %v, want 1 (role case must not split the cache)", got)
	}
	if got := testutil.ToFloat64(m.CapabilityCacheHitsTotal); got != 1 {
		t.Errorf("hits = %v, want 1", got)
	}
}

func TestResolver_AllowAll(t *testing.T) {
	r := NewResolver(loadTestPolicy(t), time.Minute, nil)

	if !r.AllowAll([]string{"viewer"}, nil) {
		t.Error("empty requirement list should be allowed")
	}
	if r.AllowAll([]string{"viewer"}, []model.Capability{"forms:view", "forms:delete"}) {
		t.Error("viewer lacks forms:delete")
	}
}

func TestResolver_EvaluateFallsBackToOwnership(t *testing.T) {
	r := NewResolver(loadTestPolicy(t), time.Minute, nil)

	if !r.Evaluate(testRctx("viewer"), "forms:delete", map[string]any{"created_by": "ana"}) {
		t.Error("owned grant should pass through the resolver")
	}
	if r.Evaluate(nil, "forms:view", nil) {
		t.Error("nil request context must deny")
	}
}

func TestResolver_Invalidate(t *testing.T) {
	callCount := 0
	mock := &mockEvaluator{
		resolveFunc: func([]string) model.CapabilitySet {
			callCount++
			return model.CapabilitySet{"forms:view": true}
		},
	}
	r := NewResolver(mock, 5*time.Minute, nil)

	r.ResolveCapabilities([]string{"viewer"})
	if callCount != 1 {
		t.Fatalf("callCount = %d, want 1", callCount)
	}

	r.ResolveCapabilities([]string{"viewer", "viewer"})
	if callCount != 1 {
		t.Fatalf("callCount = %d after cache hit, want 1", callCount)
	}

	r.Invalidate()

	r.ResolveCapabilities([]string{"viewer"})
	if callCount != 2 {
		t.Fatalf("callCount = %d after invalidate, want 2", callCount)
	}
}

func TestResolver_TTLExpiry(t *testing.T) {
	callCount := 0
	mock := &mockEvaluator{
		resolveFunc: func([]string) model.CapabilitySet {
			callCount++
			return model.CapabilitySet{"forms:view": true}
		},
	}
	r := NewResolver(mock, time.Minute, nil)
	now := time.Unix(1_700_000_000, 0)
	r.now = func() time.Time { return now }

	r.ResolveCapabilities(nil)
	now = now.Add(2 * time.Minute)
	r.ResolveCapabilities(nil)

	if callCount != 2 {
		t.Fatalf("callCount = %d, want 2 (TTL expired)", callCount)
	}
}

// --- Mock PolicyEvaluator ---

type mockEvaluator struct {
	resolveFunc func(roles []string) model.CapabilitySet
}

func (m *mockEvaluator) ResolveCapabilities(roles []string) model.CapabilitySet {
	return m.resolveFunc(roles)
}

func (m *mockEvaluator) Evaluate(*model.RequestContext, model.Capability, map[string]any) bool {
	return false
}
