// Package group resolves forum group names and lists the forum's groups.
package group

import "strings"

// systemNames are the display names of the forum's built-in groups.
// The forum stores these in upper case and translates them at render time.
var systemNames = map[string]string{
	"ADMINISTRATORS":    "Administrators",
	"BOTS":              "Bots",
	"GUESTS":            "Guests",
	"REGISTERED":        "Registered users",
	"REGISTERED_COPPA":  "Registered COPPA users",
	"GLOBAL_MODERATORS": "Global moderators",
	"NEWLY_REGISTERED":  "Newly registered users",
}

// Helper turns stored group names into display names.
type Helper struct {
	names map[string]string
}

// NewHelper returns a helper using the built-in names, with overrides applied
// on top (keyed by the stored upper-case name).
func NewHelper(overrides map[string]string) *Helper {
	names := make(map[string]string, len(systemNames)+len(overrides))
	for k, v := range systemNames {
		names[k] = v
	}
	for k, v := range overrides {
		names[strings.ToUpper(k)] = v
	}
	return &Helper{names: names}
}

// Name returns the display name for a stored group name.
// User-created groups are returned unchanged.
func (h *Helper) Name(raw string) string {
	if name, ok := h.names[raw]; ok {
		return name
	}
	return raw
}
