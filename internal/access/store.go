package access

import (
	"context"
	"errors"
	"fmt"

	"shelfscan/internal/services"
)

// Store is the record store the access mapping persists to. ResolveKeyID
// returns an error matching services.ErrNotFound for unknown keys.
type Store interface {
	InsertOrReplaceScopes(ctx context.Context, keyID int64, entries []Entry) error
	QueryScopesForKey(ctx context.Context, keyID int64) ([]Entry, error)
	ResolveKeyID(ctx context.Context, key string) (int64, error)
}

// WriteToStore replaces every persisted row for the key with this mapping. An
// unpersisted key is resolved by its string first; if the store does not know
// it, nothing is written and the receiver is returned unchanged. The returned
// value carries the resolved key.
func (a Access) WriteToStore(ctx context.Context, store Store) (Access, error) {
	key := a.key
	if !key.Persisted() {
		if key.Key == "" {
			return a, nil
		}
		id, err := store.ResolveKeyID(ctx, key.Key)
		if errors.Is(err, services.ErrNotFound) {
			return a, nil
		}
		if err != nil {
			return a, fmt.Errorf("resolve key: %w", err)
		}
		key.ID = id
	}
	if err := store.InsertOrReplaceScopes(ctx, key.ID, a.Entries()); err != nil {
		return a, fmt.Errorf("persist access for key %d: %w", key.ID, err)
	}
	return a.WithKey(key), nil
}

// FromStore rebuilds the mapping persisted for key.
func FromStore(ctx context.Context, store Store, key KeyRef) (Access, error) {
	if !key.Persisted() {
		return Access{}, fmt.Errorf("%w: key %q is not persisted", services.ErrNotFound, key.Key)
	}
	entries, err := store.QueryScopesForKey(ctx, key.ID)
	if err != nil {
		return Access{}, fmt.Errorf("load access for key %d: %w", key.ID, err)
	}
	return New(key, entries), nil
}
