package access

import (
	"maps"
	"slices"
	"strings"
)

// Perm is a combinable permission bitmask.
type Perm uint8

const (
	None  Perm = 0
	Note  Perm = 1
	Write Perm = 2
	Read  Perm = 4
)

// Has reports whether every bit of want is set.
func (p Perm) Has(want Perm) bool {
	return want != None && p&want == want
}

func (p Perm) String() string {
	if p == None {
		return "none"
	}
	var parts []string
	if p.Has(Read) {
		parts = append(parts, "read")
	}
	if p.Has(Write) {
		parts = append(parts, "write")
	}
	if p.Has(Note) {
		parts = append(parts, "note")
	}
	return strings.Join(parts, "|")
}

// Reserved scope identifiers. Real group ids are positive.
const (
	ScopeAllGroups = 0
	ScopeLibrary   = -1
	ScopeNoGroup   = -2
)

// NotPersisted marks a key that has no row in the record store yet.
const NotPersisted int64 = -1

// KeyRef identifies the API key an Access belongs to.
type KeyRef struct {
	ID  int64
	Key string
}

// UnpersistedKey references a key by its string only.
func UnpersistedKey(key string) KeyRef {
	return KeyRef{ID: NotPersisted, Key: key}
}

func (k KeyRef) Persisted() bool { return k.ID > 0 }

// Entry is one scope/permission pair.
type Entry struct {
	Scope int
	Perm  Perm
}

// Access is an immutable scope to permission mapping for one key. The zero
// value grants nothing.
type Access struct {
	key   KeyRef
	perms map[int]Perm
}

// New builds an Access. When a scope repeats, the last entry wins.
func New(key KeyRef, entries []Entry) Access {
	perms := make(map[int]Perm, len(entries))
	for _, e := range entries {
		perms[e.Scope] = e.Perm
	}
	return Access{key: key, perms: perms}
}

func (a Access) Key() KeyRef { return a.key }

func (a Access) Len() int { return len(a.perms) }

// WithKey returns a copy bound to key.
func (a Access) WithKey(key KeyRef) Access {
	return Access{key: key, perms: maps.Clone(a.perms)}
}

// Perm returns the mask for scope; None when there is no entry.
func (a Access) Perm(scope int) Perm { return a.perms[scope] }

// Entries returns the mapping sorted by scope.
func (a Access) Entries() []Entry {
	out := make([]Entry, 0, len(a.perms))
	for _, scope := range slices.Sorted(maps.Keys(a.perms)) {
		out = append(out, Entry{Scope: scope, Perm: a.perms[scope]})
	}
	return out
}

// GroupIDs returns the real group ids with an entry, ascending.
func (a Access) GroupIDs() []int {
	var ids []int
	for _, scope := range slices.Sorted(maps.Keys(a.perms)) {
		if scope > 0 {
			ids = append(ids, scope)
		}
	}
	return ids
}

// CanWriteLibrary reports whether the personal library scope grants Write.
func (a Access) CanWriteLibrary() bool {
	return a.perms[ScopeLibrary].Has(Write)
}

// CanWrite reports whether any scope grants Write.
func (a Access) CanWrite() bool {
	for _, p := range a.perms {
		if p.Has(Write) {
			return true
		}
	}
	return false
}

// CanWriteScope reports whether uploads to scope are authorized. A group is
// writable through its own entry or through the all-groups entry.
func (a Access) CanWriteScope(scope int) bool {
	if a.perms[scope].Has(Write) {
		return true
	}
	return scope > 0 && a.perms[ScopeAllGroups].Has(Write)
}

// SameEntries reports whether both values hold the same scope/permission set,
// ignoring the key.
func (a Access) SameEntries(other Access) bool {
	return maps.Equal(a.perms, other.perms)
}
