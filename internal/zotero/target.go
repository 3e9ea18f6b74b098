package zotero

import (
	"fmt"
	"strconv"
	"strings"

	"shelfscan/internal/access"
	"shelfscan/internal/services"
)

// Target is the library an upload goes to: the user's own library or one
// group library.
type Target struct {
	GroupID int
}

// Library targets the user's personal library.
func Library() Target { return Target{} }

// Group targets the group library with id.
func Group(id int) Target { return Target{GroupID: id} }

// IsGroup reports whether t names a group library.
func (t Target) IsGroup() bool { return t.GroupID > 0 }

// Scope returns the access scope that must grant Write for uploads to t.
func (t Target) Scope() int {
	if t.IsGroup() {
		return t.GroupID
	}
	return access.ScopeLibrary
}

func (t Target) String() string {
	if t.IsGroup() {
		return "group:" + strconv.Itoa(t.GroupID)
	}
	return "library"
}

func (t Target) path(userID string) string {
	if t.IsGroup() {
		return "groups/" + strconv.Itoa(t.GroupID)
	}
	return "users/" + userID
}

// ParseTarget is the inverse of Target.String. An empty string is the
// personal library.
func ParseTarget(s string) (Target, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "library" {
		return Library(), nil
	}
	raw, ok := strings.CutPrefix(s, "group:")
	if !ok {
		raw = s
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return Target{}, services.Wrap(services.ErrValidation, "zotero", "parse target", fmt.Sprintf("invalid target %q", s), nil)
	}
	return Group(id), nil
}
