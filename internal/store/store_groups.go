package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
)

// UpsertGroupTitles records group titles by id.
func (s *Store) UpsertGroupTitles(ctx context.Context, titles map[int]string) error {
	if len(titles) == 0 {
		return nil
	}
	ctx = ensureContext(ctx)
	now := timestamp()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO groups (id, title, updated_at) VALUES (?, ?, ?)
             ON CONFLICT(id) DO UPDATE SET title = excluded.title, updated_at = excluded.updated_at`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for id, title := range titles {
			if _, err := stmt.ExecContext(ctx, id, title, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert groups: %w", err)
	}
	return nil
}

// GroupTitles returns the known titles for ids, or every known group when ids
// is empty.
func (s *Store) GroupTitles(ctx context.Context, ids []int) (map[int]string, error) {
	query := `SELECT id, title FROM groups`
	args := make([]any, 0, len(ids))
	if len(ids) > 0 {
		query += ` WHERE id IN (` + placeholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	titles := make(map[int]string)
	for rows.Next() {
		var (
			id    int
			title string
		)
		if err := rows.Scan(&id, &title); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		titles[id] = title
	}
	return titles, rows.Err()
}

// MissingGroups returns the ids among ids without a stored title, ascending.
func (s *Store) MissingGroups(ctx context.Context, ids []int) ([]int, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	known, err := s.GroupTitles(ctx, ids)
	if err != nil {
		return nil, err
	}
	var missing []int
	for _, id := range ids {
		if _, ok := known[id]; !ok && !slices.Contains(missing, id) {
			missing = append(missing, id)
		}
	}
	slices.Sort(missing)
	return missing, nil
}
