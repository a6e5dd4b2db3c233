package metadata

import (
	"net/http"
	"testing"

	"github.com/xaviermatuz/formdesk/model"
)

func actionIDs(descs []model.ActionDescriptor) []string {
	ids := make([]string, 0, len(descs))
	for _, d := range descs {
		ids = append(ids, d.ID)
	}
	return ids
}

func TestActionProvider_RowActions_adminPurges(t *testing.T) {
	ap := NewActionProvider(testPolicy(t))
	forms := resource(t, "forms")

	got := ap.RowActions(user("admin"), forms, map[string]any{"id": float64(12), "is_deleted": false})
	if len(got) != 2 || got[0].ID != "delete" || got[1].ID != "edit" {
		t.Fatalf("RowActions() = %v, want [delete edit]", actionIDs(got))
	}
	del := got[0]
	if del.Method != http.MethodDelete || del.Path != "/ui/resources/forms/12" {
		t.Errorf("delete = %s %s", del.Method, del.Path)
	}
	edit := got[1]
	if edit.Method != http.MethodPatch || edit.Path != "/ui/resources/forms/12" || edit.Form != "/ui/resources/forms/12/form?mode=edit" {
		t.Errorf("edit = %s %s form %s", edit.Method, edit.Path, edit.Form)
	}
	if del.Confirmation == nil || del.Confirmation.Title != "Delete form" {
		t.Fatalf("Confirmation = %+v", del.Confirmation)
	}
	if del.Confirmation.Message != PurgeConfirmMessage {
		t.Errorf("Confirmation.Message = %q, want purge wording", del.Confirmation.Message)
	}
}

func TestActionProvider_RowActions_editorSoftDeletesOthers(t *testing.T) {
	ap := NewActionProvider(testPolicy(t))
	forms := resource(t, "forms")

	others := ap.RowActions(user("editor"), forms, map[string]any{"id": "3", "is_deleted": false, "created_by": "bob"})
	if len(others) != 2 || others[0].Confirmation.Message != SoftConfirmMessage {
		t.Errorf("RowActions(bob's form) = %+v, want soft delete", others)
	}

	own := ap.RowActions(user("editor"), forms, map[string]any{"id": "4", "is_deleted": false, "created_by": "ana"})
	if len(own) != 2 || own[0].Confirmation.Message != PurgeConfirmMessage {
		t.Errorf("RowActions(own form) = %+v, want purge", own)
	}
}

func TestActionProvider_RowActions_restoreOnDeletedRows(t *testing.T) {
	ap := NewActionProvider(testPolicy(t))
	got := ap.RowActions(user("editor"), resource(t, "forms"), map[string]any{"id": float64(5), "is_deleted": true})

	if len(got) != 1 || got[0].ID != "restore" {
		t.Fatalf("RowActions() = %v, want restore only", actionIDs(got))
	}
	if got[0].Method != http.MethodPost || got[0].Path != "/ui/resources/forms/5/restore" {
		t.Errorf("restore = %s %s", got[0].Method, got[0].Path)
	}
	if got[0].Confirmation != nil {
		t.Error("restore has no confirmation")
	}
}

func TestActionProvider_RowActions_viewerHasNone(t *testing.T) {
	ap := NewActionProvider(testPolicy(t))
	if got := ap.RowActions(user("viewer"), resource(t, "forms"), map[string]any{"id": 1, "is_deleted": false}); len(got) != 0 {
		t.Errorf("RowActions() = %v, want none", actionIDs(got))
	}
}

func TestActionProvider_RowActions_rowWithoutID(t *testing.T) {
	ap := NewActionProvider(testPolicy(t))
	if got := ap.RowActions(user("admin"), resource(t, "forms"), map[string]any{"name": "x"}); got != nil {
		t.Errorf("RowActions() = %v, want nil", got)
	}
}

func TestActionProvider_RowActions_deactivateActiveUsers(t *testing.T) {
	ap := NewActionProvider(testPolicy(t))
	users := resource(t, "users")

	active := ap.RowActions(user("admin"), users, map[string]any{"id": 9, "is_active": true})
	if len(active) != 2 || active[0].Label != "Deactivate" || active[1].ID != "edit" {
		t.Errorf("active user actions = %+v", active)
	}
	inactive := ap.RowActions(user("admin"), users, map[string]any{"id": 9, "is_active": false})
	if len(inactive) != 1 || inactive[0].ID != "edit" {
		t.Errorf("inactive user actions = %v, want edit only", actionIDs(inactive))
	}
}

func TestActionProvider_BulkActions(t *testing.T) {
	ap := NewActionProvider(testPolicy(t))
	forms := resource(t, "forms")

	admin := ap.BulkActions(user("admin"), forms)
	if len(admin) != 3 {
		t.Fatalf("admin bulk = %v, want export, bulk_delete and create", actionIDs(admin))
	}
	if admin[0].Method != http.MethodGet || admin[0].Path != "/ui/tables/forms/export" {
		t.Errorf("export = %s %s", admin[0].Method, admin[0].Path)
	}
	if admin[1].Path != "/ui/resources/forms/bulk-delete" || admin[1].Confirmation.Message != "Delete every selected form?" {
		t.Errorf("bulk_delete = %+v", admin[1])
	}
	if c := admin[2]; c.ID != "create" || c.Method != http.MethodPost || c.Path != "/ui/resources/forms" || c.Form != "/ui/resources/forms/form" {
		t.Errorf("create = %+v", c)
	}

	viewer := ap.BulkActions(user("viewer"), forms)
	if len(viewer) != 1 || viewer[0].ID != "export" {
		t.Errorf("viewer bulk = %v, want export only", actionIDs(viewer))
	}
}

func TestActionProvider_DeleteStrategy(t *testing.T) {
	ap := NewActionProvider(testPolicy(t))
	forms := resource(t, "forms")

	purge := ap.DeleteStrategy(user("admin"), forms, nil)
	if !purge.Purge || purge.Method != http.MethodDelete || purge.Body != nil {
		t.Errorf("admin strategy = %+v", purge)
	}
	if purge.SuccessMessage != PurgeSuccessMessage {
		t.Errorf("SuccessMessage = %q", purge.SuccessMessage)
	}

	soft := ap.DeleteStrategy(user("editor"), forms, nil)
	if soft.Purge || soft.Method != http.MethodPatch || soft.Body["is_deleted"] != true {
		t.Errorf("editor strategy = %+v", soft)
	}
	if soft.SuccessMessage != SoftSuccessMessage {
		t.Errorf("SuccessMessage = %q", soft.SuccessMessage)
	}
}

func TestActionProvider_Find(t *testing.T) {
	ap := NewActionProvider(testPolicy(t))
	forms := resource(t, "forms")

	if _, ok := ap.Find(user("editor"), forms, model.ActionRestore, map[string]any{"is_deleted": true}); !ok {
		t.Error("editor should find restore on a deleted row")
	}
	if _, ok := ap.Find(user("editor"), forms, model.ActionRestore, map[string]any{"is_deleted": false}); ok {
		t.Error("restore does not apply to live rows")
	}
	if _, ok := ap.Find(user("viewer"), forms, model.ActionDelete, map[string]any{"is_deleted": false}); ok {
		t.Error("viewer may not delete")
	}
}

func TestActionProvider_RowActions_viewSubmissions(t *testing.T) {
	ap := NewActionProvider(testPolicy(t))
	got := ap.RowActions(user("viewer"), resource(t, "submissions"), map[string]any{"id": 10})

	if len(got) != 1 || got[0].ID != "view" {
		t.Fatalf("RowActions() = %v, want view only", actionIDs(got))
	}
	if got[0].Method != http.MethodGet || got[0].Path != "/ui/resources/submissions/10/form?mode=view" {
		t.Errorf("view = %s %s", got[0].Method, got[0].Path)
	}
}

func TestRestoreBody(t *testing.T) {
	if RestoreBody()["is_deleted"] != false {
		t.Errorf("RestoreBody() = %v", RestoreBody())
	}
}
