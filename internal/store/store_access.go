package store

import (
	"context"
	"database/sql"
	"fmt"

	"shelfscan/internal/access"
)

var _ access.Store = (*Store)(nil)

// InsertOrReplaceScopes replaces every permission row of keyID with entries in
// a single transaction.
func (s *Store) InsertOrReplaceScopes(ctx context.Context, keyID int64, entries []access.Entry) error {
	ctx = ensureContext(ctx)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM access WHERE key_id = ?`, keyID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO access (key_id, scope_id, permission) VALUES (?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, e := range entries {
			if _, err := stmt.ExecContext(ctx, keyID, e.Scope, int(e.Perm)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace access rows: %w", err)
	}
	return nil
}

// QueryScopesForKey returns the persisted permission rows for keyID.
func (s *Store) QueryScopesForKey(ctx context.Context, keyID int64) ([]access.Entry, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT scope_id, permission FROM access WHERE key_id = ? ORDER BY scope_id`, keyID)
	if err != nil {
		return nil, fmt.Errorf("query access rows: %w", err)
	}
	defer rows.Close()

	var entries []access.Entry
	for rows.Next() {
		var scope, perm int
		if err := rows.Scan(&scope, &perm); err != nil {
			return nil, fmt.Errorf("scan access row: %w", err)
		}
		entries = append(entries, access.Entry{Scope: scope, Perm: access.Perm(perm)})
	}
	return entries, rows.Err()
}

// ErasePermissions forgets every permission row of keyID, forcing the next
// authorization lookup to ask the service again.
func (s *Store) ErasePermissions(ctx context.Context, keyID int64) error {
	if _, err := s.execWithRetry(ctx, `DELETE FROM access WHERE key_id = ?`, keyID); err != nil {
		return fmt.Errorf("erase permissions: %w", err)
	}
	return nil
}
