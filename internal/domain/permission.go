package domain

import (
	"encoding/json"
	"fmt"
)

const (
	PermissionLevelAll        = "all"
	PermissionLevelRestricted = "restricted"
	PermissionLevelNone       = "none"
)

// Permission grants access to one application module. Two encodings exist in
// persisted department documents: a bare boolean toggle, and a leveled object
// with an optional per-action detail map. Both must round-trip unchanged.
type Permission struct {
	// Leveled is false for boolean toggles, true for {level, details} grants.
	Leveled bool            `json:"-"`
	Allowed bool            `json:"-"`
	Level   string          `json:"-"`
	Details map[string]bool `json:"-"`
}

// PermissionToggle returns a bare boolean grant.
func PermissionToggle(allowed bool) Permission {
	return Permission{Allowed: allowed}
}

// PermissionLeveled returns a leveled grant. Details may be nil.
func PermissionLeveled(level string, details map[string]bool) Permission {
	return Permission{Leveled: true, Level: level, Details: details}
}

// Grants reports whether the permission allows the named action. Boolean
// toggles ignore the action. Level "all" grants everything, "none" nothing,
// and "restricted" consults the detail map.
func (p Permission) Grants(action string) bool {
	if !p.Leveled {
		return p.Allowed
	}
	switch p.Level {
	case PermissionLevelAll:
		return true
	case PermissionLevelRestricted:
		return p.Details[action]
	default:
		return false
	}
}

func (p Permission) MarshalJSON() ([]byte, error) {
	if !p.Leveled {
		return json.Marshal(p.Allowed)
	}
	obj := struct {
		Level   string          `json:"level"`
		Details map[string]bool `json:"details,omitempty"`
	}{Level: p.Level, Details: p.Details}
	return json.Marshal(obj)
}

func (p *Permission) UnmarshalJSON(data []byte) error {
	var allowed bool
	if err := json.Unmarshal(data, &allowed); err == nil {
		*p = Permission{Allowed: allowed}
		return nil
	}
	var obj struct {
		Level   string          `json:"level"`
		Details map[string]bool `json:"details"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("permission must be a boolean or an object: %w", err)
	}
	switch obj.Level {
	case PermissionLevelAll, PermissionLevelRestricted, PermissionLevelNone:
	default:
		return fmt.Errorf("unknown permission level %q", obj.Level)
	}
	*p = Permission{Leveled: true, Level: obj.Level, Details: obj.Details}
	return nil
}
