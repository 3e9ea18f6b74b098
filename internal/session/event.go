package session

import (
	"shelfscan/internal/access"
	"shelfscan/internal/records"
	"shelfscan/internal/zotero"
)

// EventKind classifies session events.
type EventKind int

const (
	EventPermissions EventKind = iota
	EventDenied
	EventGroups
	EventLookup
	EventUpload
	EventCollection
	EventFailure
)

func (k EventKind) String() string {
	switch k {
	case EventPermissions:
		return "permissions"
	case EventDenied:
		return "denied"
	case EventGroups:
		return "groups"
	case EventLookup:
		return "lookup"
	case EventUpload:
		return "upload"
	case EventCollection:
		return "collection"
	case EventFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Event is one observable change. Only the fields relevant to Kind are set.
type Event struct {
	Kind EventKind

	Access *access.Access
	// Targets maps upload scopes to display titles.
	Targets map[int]string
	// Fetching is set on EventGroups when a group listing was requested and
	// another EventGroups or EventFailure follows.
	Fetching bool

	ISBN   string
	Record *records.Record
	ItemID int64

	Upload *zotero.UploadResult

	Collection string
	// RequestID is the correlation identifier of a failed request.
	RequestID string
	Err       error
}
