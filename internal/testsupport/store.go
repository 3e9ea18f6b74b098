package testsupport

import (
	"context"
	"testing"

	"shelfscan/internal/config"
	"shelfscan/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// SaveKey stores the config's API key and returns its row.
func SaveKey(t testing.TB, st *store.Store, cfg *config.Config) store.Key {
	t.Helper()

	key, err := st.SaveKey(context.Background(), store.Key{Key: cfg.Zotero.APIKey, UserID: cfg.Zotero.UserID})
	if err != nil {
		t.Fatalf("store.SaveKey: %v", err)
	}
	return key
}
