package store

import (
	"encoding/json"
	"time"
)

// Key is a persisted API key and the account it belongs to.
type Key struct {
	ID        int64
	Key       string
	UserID    string
	Username  string
	CreatedAt time.Time
}

// ItemStatus tracks a scanned item through upload.
type ItemStatus string

const (
	ItemPending  ItemStatus = "pending"
	ItemUploaded ItemStatus = "uploaded"
	ItemFailed   ItemStatus = "failed"
)

// Item is a looked-up record waiting to be uploaded.
type Item struct {
	ID           int64
	KeyID        int64
	ISBN         string
	Payload      json.RawMessage
	Status       ItemStatus
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
