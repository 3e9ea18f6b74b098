package access

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"shelfscan/internal/services"
)

// ErrNoPermissions reports a descriptor from which no permissions can be
// determined. It matches services.ErrParse.
var ErrNoPermissions = fmt.Errorf("%w: no permissions determinable", services.ErrParse)

type descriptor struct {
	XMLName xml.Name
	Attrs   []xml.Attr   `xml:",any,attr"`
	Entries []scopeEntry `xml:"access"`
}

type scopeEntry struct {
	Attrs []xml.Attr `xml:",any,attr"`
}

func attr(attrs []xml.Attr, name string) (string, bool) {
	for _, a := range attrs {
		if a.Name.Local == name {
			return strings.TrimSpace(a.Value), true
		}
	}
	return "", false
}

// ParsePermissions decodes a key descriptor such as
//
//	<key key="abc"><access library="1" write="1"/><access group="all"/></key>
//
// Every entry grants Read; write="1" adds Write and notes="1" adds Note.
func ParsePermissions(payload []byte) (Access, error) {
	var doc descriptor
	if err := xml.NewDecoder(bytes.NewReader(payload)).Decode(&doc); err != nil {
		return Access{}, fmt.Errorf("%w: decode descriptor: %w", ErrNoPermissions, err)
	}
	key, ok := attr(doc.Attrs, "key")
	if !ok || key == "" {
		return Access{}, fmt.Errorf("%w: descriptor has no key attribute", ErrNoPermissions)
	}
	if len(doc.Entries) == 0 {
		return Access{}, fmt.Errorf("%w: descriptor lists no scopes", ErrNoPermissions)
	}

	entries := make([]Entry, 0, len(doc.Entries))
	for i, e := range doc.Entries {
		scope, err := entryScope(e)
		if err != nil {
			return Access{}, fmt.Errorf("%w: entry %d: %w", ErrNoPermissions, i, err)
		}
		perm := Read
		if scope == ScopeNoGroup {
			// An entry naming no scope grants nothing usable.
			entries = append(entries, Entry{Scope: scope, Perm: perm})
			continue
		}
		if v, _ := attr(e.Attrs, "write"); v == "1" {
			perm |= Write
		}
		if v, _ := attr(e.Attrs, "notes"); v == "1" {
			perm |= Note
		}
		entries = append(entries, Entry{Scope: scope, Perm: perm})
	}
	return New(UnpersistedKey(key), entries), nil
}

func entryScope(e scopeEntry) (int, error) {
	if group, ok := attr(e.Attrs, "group"); ok {
		if group == "all" {
			return ScopeAllGroups, nil
		}
		id, err := strconv.Atoi(group)
		if err != nil || id <= 0 {
			return 0, fmt.Errorf("invalid group %q", group)
		}
		return id, nil
	}
	if _, ok := attr(e.Attrs, "library"); ok {
		return ScopeLibrary, nil
	}
	return ScopeNoGroup, nil
}
