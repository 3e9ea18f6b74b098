package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"shelfscan/internal/services"
)

// SaveKey inserts key or refreshes the account fields of an existing row with
// the same key string, returning the stored row.
func (s *Store) SaveKey(ctx context.Context, key Key) (Key, error) {
	key.Key = strings.TrimSpace(key.Key)
	if key.Key == "" {
		return Key{}, fmt.Errorf("%w: empty api key", services.ErrValidation)
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO keys (key, user_id, username, created_at) VALUES (?, ?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET user_id = excluded.user_id, username = excluded.username`,
		key.Key, key.UserID, nullableString(key.Username), timestamp(),
	)
	if err != nil {
		return Key{}, fmt.Errorf("save key: %w", err)
	}
	id, err := s.ResolveKeyID(ctx, key.Key)
	if err != nil {
		return Key{}, err
	}
	return s.KeyByID(ctx, id)
}

// KeyByID fetches one key row.
func (s *Store) KeyByID(ctx context.Context, id int64) (Key, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT id, key, user_id, username, created_at FROM keys WHERE id = ?`, id)
	var (
		key       Key
		username  sql.NullString
		createdAt string
	)
	err := row.Scan(&key.ID, &key.Key, &key.UserID, &username, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Key{}, fmt.Errorf("key %d: %w", id, services.ErrNotFound)
	}
	if err != nil {
		return Key{}, fmt.Errorf("get key: %w", err)
	}
	key.Username = username.String
	key.CreatedAt = parseTime(createdAt)
	return key, nil
}

// ResolveKeyID returns the row id for a key string.
func (s *Store) ResolveKeyID(ctx context.Context, key string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ensureContext(ctx), `SELECT id FROM keys WHERE key = ?`, key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("key not stored: %w", services.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("resolve key: %w", err)
	}
	return id, nil
}

// DeleteKey removes a key with its permissions and items.
func (s *Store) DeleteKey(ctx context.Context, id int64) error {
	res, err := s.execWithRetry(ctx, `DELETE FROM keys WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("key %d: %w", id, services.ErrNotFound)
	}
	return nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
