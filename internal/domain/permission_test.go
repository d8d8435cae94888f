package domain

import (
	"encoding/json"
	"testing"
)

func TestPermissionGrants(t *testing.T) {
	if !PermissionToggle(true).Grants("anything") {
		t.Fatalf("enabled toggle must grant every action")
	}
	if PermissionToggle(false).Grants("view") {
		t.Fatalf("disabled toggle must grant nothing")
	}

	all := PermissionLeveled(PermissionLevelAll, nil)
	if !all.Grants("delete") {
		t.Fatalf("level all must grant every action")
	}

	none := PermissionLeveled(PermissionLevelNone, map[string]bool{"view": true})
	if none.Grants("view") {
		t.Fatalf("level none must ignore details")
	}

	restricted := PermissionLeveled(PermissionLevelRestricted, map[string]bool{"view": true, "edit": false})
	if !restricted.Grants("view") {
		t.Fatalf("restricted must grant listed actions")
	}
	if restricted.Grants("edit") || restricted.Grants("delete") {
		t.Fatalf("restricted must deny unlisted or false actions")
	}
}

func TestPermissionJSONBothEncodings(t *testing.T) {
	var p Permission
	if err := json.Unmarshal([]byte(`true`), &p); err != nil {
		t.Fatalf("unmarshal toggle failed: %v", err)
	}
	if p.Leveled || !p.Allowed {
		t.Fatalf("expected enabled toggle, got %+v", p)
	}
	out, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal toggle failed: %v", err)
	}
	if string(out) != "true" {
		t.Fatalf("toggle must round-trip as a bare boolean, got %s", out)
	}

	raw := `{"level":"restricted","details":{"view":true,"adjust":true}}`
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal leveled failed: %v", err)
	}
	if !p.Leveled || p.Level != PermissionLevelRestricted || !p.Details["adjust"] {
		t.Fatalf("expected restricted grant, got %+v", p)
	}
	out, err = json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal leveled failed: %v", err)
	}
	var back Permission
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("re-unmarshal failed: %v", err)
	}
	if !back.Leveled || back.Level != PermissionLevelRestricted || !back.Details["view"] {
		t.Fatalf("leveled grant did not round-trip, got %+v", back)
	}
}

func TestPermissionRejectsUnknownLevel(t *testing.T) {
	var p Permission
	if err := json.Unmarshal([]byte(`{"level":"sometimes"}`), &p); err == nil {
		t.Fatalf("expected unknown level to be rejected")
	}
}

func TestDepartmentPermissionsDocument(t *testing.T) {
	raw := `{
		"id": "DEPT-1",
		"name": "Kỹ thuật",
		"permissions": {
			"service": {"level": "all"},
			"inventory": {"level": "restricted", "details": {"view": true}},
			"aiAssistant": true,
			"userManager": false
		}
	}`
	var dept Department
	if err := json.Unmarshal([]byte(raw), &dept); err != nil {
		t.Fatalf("unmarshal department failed: %v", err)
	}
	if !dept.Permissions["service"].Grants("create") {
		t.Fatalf("expected service level all to grant create")
	}
	if !dept.Permissions["inventory"].Grants("view") || dept.Permissions["inventory"].Grants("transfer") {
		t.Fatalf("expected inventory restricted to view only")
	}
	if !dept.Permissions["aiAssistant"].Grants("use") {
		t.Fatalf("expected aiAssistant toggle to grant use")
	}
	if dept.Permissions["userManager"].Grants("view") {
		t.Fatalf("expected userManager toggle off to deny")
	}
}
