package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neuralinbox/neuralinbox/internal/storage"
	"github.com/neuralinbox/neuralinbox/internal/types"
)

func (s *Store) queryItems(ctx context.Context, query string, args ...any) ([]*types.Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []*types.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListItems returns a page of the user's items plus the unpaged total.
func (s *Store) ListItems(ctx context.Context, userID int64, filter storage.ListFilter) ([]*types.Item, int64, error) {
	whereClauses := []string{"user_id = ?"}
	args := []any{userID}

	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		whereClauses = append(whereClauses, fmt.Sprintf("type IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		whereClauses = append(whereClauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.ProjectID != nil {
		whereClauses = append(whereClauses, "project_id = ?")
		args = append(args, *filter.ProjectID)
	}

	where := strings.Join(whereClauses, " AND ")

	var total int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM items WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count items: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + itemColumns + ` FROM items WHERE ` + where +
		` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	items, err := s.queryItems(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// SearchAdvanced combines structured filters with an optional substring
// query. The substring match is folded case-insensitively in Go so that
// non-ASCII text matches the way users expect.
func (s *Store) SearchAdvanced(ctx context.Context, userID int64, filter storage.SearchFilter) ([]*types.Item, error) {
	whereClauses := []string{"user_id = ?"}
	args := []any{userID}

	if filter.Type != "" {
		whereClauses = append(whereClauses, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Status != "" {
		whereClauses = append(whereClauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.ProjectID != nil {
		whereClauses = append(whereClauses, "project_id = ?")
		args = append(args, *filter.ProjectID)
	}
	if filter.Priority != "" {
		whereClauses = append(whereClauses, "priority = ?")
		args = append(args, string(filter.Priority))
	}
	for _, tag := range filter.Tags {
		whereClauses = append(whereClauses,
			"EXISTS (SELECT 1 FROM json_each(items.tags) WHERE json_each.value = ?)")
		args = append(args, tag)
	}
	dateField := "due_at"
	if filter.DateField == "created_at" {
		dateField = "created_at"
	}
	if filter.DateFrom != nil {
		whereClauses = append(whereClauses, dateField+" >= ?")
		args = append(args, filter.DateFrom.UTC())
	}
	if filter.DateTo != nil {
		whereClauses = append(whereClauses, dateField+" <= ?")
		args = append(args, filter.DateTo.UTC())
	}

	query := `SELECT ` + itemColumns + ` FROM items WHERE ` +
		strings.Join(whereClauses, " AND ") + ` ORDER BY created_at DESC, id DESC`

	items, err := s.queryItems(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	if filter.Query == "" {
		if len(items) > limit {
			items = items[:limit]
		}
		return items, nil
	}

	needle := strings.ToLower(filter.Query)
	matched := make([]*types.Item, 0, limit)
	for _, item := range items {
		if strings.Contains(strings.ToLower(item.Title), needle) ||
			strings.Contains(strings.ToLower(item.Content), needle) ||
			strings.Contains(strings.ToLower(item.OriginalInput), needle) {
			matched = append(matched, item)
			if len(matched) == limit {
				break
			}
		}
	}
	return matched, nil
}

// RecentItems returns the user's newest items, skipping transient processing
// placeholders.
func (s *Store) RecentItems(ctx context.Context, userID int64, limit int) ([]*types.Item, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.queryItems(ctx,
		`SELECT `+itemColumns+` FROM items
		 WHERE user_id = ? AND status != ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, types.StatusProcessing, limit)
}

// AllTasks returns every task of the user across all statuses, dated tasks
// first in due order.
func (s *Store) AllTasks(ctx context.Context, userID int64) ([]*types.Item, error) {
	return s.queryItems(ctx,
		`SELECT `+itemColumns+` FROM items
		 WHERE user_id = ? AND type = ?
		 ORDER BY due_at IS NULL, due_at ASC, created_at DESC`,
		userID, types.TypeTask)
}

// TasksWithDueDates returns open dated tasks, optionally bounded to a window.
func (s *Store) TasksWithDueDates(ctx context.Context, userID int64, from, to *time.Time) ([]*types.Item, error) {
	whereClauses := []string{
		"user_id = ?", "type = ?", "due_at IS NOT NULL",
		"status NOT IN (?, ?)",
	}
	args := []any{userID, types.TypeTask, types.StatusDone, types.StatusArchived}
	if from != nil {
		whereClauses = append(whereClauses, "due_at >= ?")
		args = append(args, from.UTC())
	}
	if to != nil {
		whereClauses = append(whereClauses, "due_at <= ?")
		args = append(args, to.UTC())
	}
	return s.queryItems(ctx,
		`SELECT `+itemColumns+` FROM items WHERE `+
			strings.Join(whereClauses, " AND ")+` ORDER BY due_at ASC`,
		args...)
}

// DueWindow returns inbox and active items whose effective reminder time
// falls inside [from, to], paired with their owners. The effective time is
// remind_at when set, otherwise due_at. Processing placeholders stay
// invisible here: the pipeline may still rewrite or discard them.
func (s *Store) DueWindow(ctx context.Context, from, to time.Time) ([]storage.DueItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+prefixColumns("i", itemColumns)+`, `+prefixColumns("u", userColumns)+`
		 FROM items i JOIN users u ON u.user_id = i.user_id
		 WHERE i.status IN (?, ?)
		   AND COALESCE(i.remind_at, i.due_at) >= ?
		   AND COALESCE(i.remind_at, i.due_at) <= ?
		 ORDER BY COALESCE(i.remind_at, i.due_at) ASC`,
		types.StatusInbox, types.StatusActive, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query due window: %w", err)
	}
	defer rows.Close()

	var due []storage.DueItem
	for rows.Next() {
		entry, err := scanDueItem(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, entry)
	}
	return due, rows.Err()
}

// scanDueItem scans an item row followed by its owner's user row.
func scanDueItem(row rowScanner) (storage.DueItem, error) {
	// Reuses scanItem's column layout by scanning into a combined
	// destination list would require reflection; scan explicitly instead.
	var (
		item storage.DueItem
		err  error
	)
	item.Item, item.User, err = scanItemWithUser(row)
	return item, err
}

// prefixColumns qualifies each column in a comma-separated list with a table
// alias.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// MarkReminded rewrites remind_at after a notification was dispatched. Unlike
// client updates this accepts past values; the scheduler uses a past sentinel
// to keep dateless reminders from firing twice.
func (s *Store) MarkReminded(ctx context.Context, itemID, userID int64, remindAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE items SET remind_at = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		remindAt.UTC(), time.Now().UTC(), itemID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark reminded: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}
