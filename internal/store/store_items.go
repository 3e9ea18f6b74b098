package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"shelfscan/internal/services"
)

const itemColumns = `id, key_id, isbn, payload, status, error_message, created_at, updated_at`

// AddItem stores a looked-up record as pending.
func (s *Store) AddItem(ctx context.Context, keyID int64, isbn string, payload []byte) (Item, error) {
	if !json.Valid(payload) {
		return Item{}, fmt.Errorf("%w: item payload is not valid JSON", services.ErrValidation)
	}
	now := timestamp()
	res, err := s.execWithRetry(ctx,
		`INSERT INTO items (key_id, isbn, payload, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		keyID, isbn, string(payload), ItemPending, now, now,
	)
	if err != nil {
		return Item{}, fmt.Errorf("insert item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Item{}, fmt.Errorf("last insert id: %w", err)
	}
	return s.ItemByID(ctx, id)
}

// ItemByID fetches one item.
func (s *Store) ItemByID(ctx context.Context, id int64) (Item, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, fmt.Errorf("item %d: %w", id, services.ErrNotFound)
	}
	if err != nil {
		return Item{}, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// PendingItems returns the items of keyID that still need uploading, oldest first.
func (s *Store) PendingItems(ctx context.Context, keyID int64) ([]Item, error) {
	return s.listItems(ctx, `WHERE key_id = ? AND status IN (?, ?) ORDER BY id`, keyID, ItemPending, ItemFailed)
}

// ItemsByISBN returns the items of keyID recorded for isbn.
func (s *Store) ItemsByISBN(ctx context.Context, keyID int64, isbn string) ([]Item, error) {
	return s.listItems(ctx, `WHERE key_id = ? AND isbn = ? ORDER BY id`, keyID, isbn)
}

func (s *Store) listItems(ctx context.Context, where string, args ...any) ([]Item, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT `+itemColumns+` FROM items `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// MarkItems sets the status of ids. message is kept for failed uploads and
// cleared otherwise.
func (s *Store) MarkItems(ctx context.Context, ids []int64, status ItemStatus, message string) error {
	if len(ids) == 0 {
		return nil
	}
	if status != ItemFailed {
		message = ""
	}
	args := []any{status, nullableString(message), timestamp()}
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.execWithRetry(ctx,
		`UPDATE items SET status = ?, error_message = ?, updated_at = ? WHERE id IN (`+placeholders(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("mark items %s: %w", status, err)
	}
	return nil
}

// DeleteItems removes ids and reports how many rows were deleted.
func (s *Store) DeleteItems(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := s.execWithRetry(ctx, `DELETE FROM items WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("delete items: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (Item, error) {
	var (
		item       Item
		payload    string
		status     string
		errMessage sql.NullString
		createdAt  string
		updatedAt  string
	)
	if err := row.Scan(&item.ID, &item.KeyID, &item.ISBN, &payload, &status, &errMessage, &createdAt, &updatedAt); err != nil {
		return Item{}, err
	}
	item.Payload = json.RawMessage(payload)
	item.Status = ItemStatus(strings.TrimSpace(status))
	item.ErrorMessage = errMessage.String
	item.CreatedAt = parseTime(createdAt)
	item.UpdatedAt = parseTime(updatedAt)
	return item, nil
}
