package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neuralinbox/neuralinbox/internal/storage"
	"github.com/neuralinbox/neuralinbox/internal/types"
)

// itemColumns is the canonical column list scanned by scanItem. Keep the two
// in sync.
const itemColumns = `id, user_id, type, status, title, content, original_input, source,
	due_at, due_at_raw, remind_at, priority, project_id, tags, entities, recurrence,
	embedding, origin_user_name, attachment_file_id, attachment_type, attachment_filename,
	created_at, updated_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// itemRow holds scan destinations for one items row, so single-table and
// joined queries can share the materialization logic.
type itemRow struct {
	item         types.Item
	dueAt        sql.NullTime
	remindAt     sql.NullTime
	completedAt  sql.NullTime
	projectID    sql.NullInt64
	tagsJSON     string
	entitiesJSON sql.NullString
	recurJSON    sql.NullString
	embedding    []byte
}

func (r *itemRow) dests() []any {
	return []any{
		&r.item.ID, &r.item.UserID, &r.item.Type, &r.item.Status,
		&r.item.Title, &r.item.Content, &r.item.OriginalInput, &r.item.Source,
		&r.dueAt, &r.item.DueAtRaw, &r.remindAt, &r.item.Priority,
		&r.projectID, &r.tagsJSON, &r.entitiesJSON, &r.recurJSON,
		&r.embedding, &r.item.OriginUserName,
		&r.item.AttachmentFileID, &r.item.AttachmentType, &r.item.AttachmentFilename,
		&r.item.CreatedAt, &r.item.UpdatedAt, &r.completedAt,
	}
}

func (r *itemRow) toItem() (*types.Item, error) {
	item := r.item
	if r.dueAt.Valid {
		t := r.dueAt.Time
		item.DueAt = &t
	}
	if r.remindAt.Valid {
		t := r.remindAt.Time
		item.RemindAt = &t
	}
	if r.completedAt.Valid {
		t := r.completedAt.Time
		item.CompletedAt = &t
	}
	if r.projectID.Valid {
		id := r.projectID.Int64
		item.ProjectID = &id
	}
	if r.tagsJSON != "" && r.tagsJSON != "[]" {
		if err := json.Unmarshal([]byte(r.tagsJSON), &item.Tags); err != nil {
			return nil, fmt.Errorf("failed to parse tags: %w", err)
		}
	}
	if r.entitiesJSON.Valid && r.entitiesJSON.String != "" {
		if err := json.Unmarshal([]byte(r.entitiesJSON.String), &item.Entities); err != nil {
			return nil, fmt.Errorf("failed to parse entities: %w", err)
		}
	}
	if r.recurJSON.Valid && r.recurJSON.String != "" {
		var rule types.Recurrence
		if err := json.Unmarshal([]byte(r.recurJSON.String), &rule); err != nil {
			return nil, fmt.Errorf("failed to parse recurrence: %w", err)
		}
		item.Recurrence = &rule
	}
	if len(r.embedding) > 0 {
		vec, err := decodeEmbedding(r.embedding)
		if err != nil {
			return nil, err
		}
		item.Embedding = vec
	}
	return &item, nil
}

func scanItem(row rowScanner) (*types.Item, error) {
	var r itemRow
	if err := row.Scan(r.dests()...); err != nil {
		return nil, err
	}
	return r.toItem()
}

// scanItemWithUser scans an items row followed by the owner's users row.
func scanItemWithUser(row rowScanner) (*types.Item, *types.User, error) {
	var (
		r itemRow
		u userRow
	)
	if err := row.Scan(append(r.dests(), u.dests()...)...); err != nil {
		return nil, nil, fmt.Errorf("failed to scan joined row: %w", err)
	}
	item, err := r.toItem()
	if err != nil {
		return nil, nil, err
	}
	user, err := u.toUser()
	if err != nil {
		return nil, nil, err
	}
	return item, user, nil
}

func marshalTags(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(tags)
	return string(b)
}

func marshalEntities(entities map[string]any) any {
	if len(entities) == 0 {
		return nil
	}
	b, _ := json.Marshal(entities)
	return string(b)
}

func marshalRecurrence(rule *types.Recurrence) any {
	if rule == nil {
		return nil
	}
	b, _ := json.Marshal(rule)
	return string(b)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

// CreateItem validates and inserts an item, assigning its ID and timestamps.
func (s *Store) CreateItem(ctx context.Context, item *types.Item) (*types.Item, error) {
	item.SetDefaults()
	if err := item.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", storage.ErrValidation, err)
	}

	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO items (
			user_id, type, status, title, content, original_input, source,
			due_at, due_at_raw, remind_at, priority, project_id, tags, entities,
			recurrence, embedding, origin_user_name,
			attachment_file_id, attachment_type, attachment_filename,
			created_at, updated_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		item.UserID, item.Type, item.Status, item.Title, item.Content,
		item.OriginalInput, item.Source,
		nullTime(item.DueAt), item.DueAtRaw, nullTime(item.RemindAt),
		item.Priority, nullInt64(item.ProjectID),
		marshalTags(item.Tags), marshalEntities(item.Entities),
		marshalRecurrence(item.Recurrence), nullBytes(encodeEmbedding(item.Embedding)),
		item.OriginUserName,
		item.AttachmentFileID, item.AttachmentType, item.AttachmentFilename,
		now, now, nullTime(item.CompletedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read inserted id: %w", err)
	}
	item.ID = id
	return item, nil
}

// GetItem returns an item by id, scoped to its owner. Returns ErrNotFound for
// missing items and items belonging to other users alike.
func (s *Store) GetItem(ctx context.Context, itemID, userID int64) (*types.Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ? AND user_id = ?`,
		itemID, userID)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

// buildItemSet converts an ItemUpdate into SET clauses and arguments. The
// returned clauses never include updated_at; callers append it.
func buildItemSet(upd storage.ItemUpdate, now time.Time) ([]string, []any, error) {
	setClauses := []string{}
	args := []any{}

	if upd.Type != nil {
		if !upd.Type.IsValid() {
			return nil, nil, fmt.Errorf("%w: invalid item type: %s", storage.ErrValidation, *upd.Type)
		}
		setClauses = append(setClauses, "type = ?")
		args = append(args, *upd.Type)
	}
	if upd.Status != nil {
		if !upd.Status.IsValid() {
			return nil, nil, fmt.Errorf("%w: invalid status: %s", storage.ErrValidation, *upd.Status)
		}
		setClauses = append(setClauses, "status = ?")
		args = append(args, *upd.Status)
		if *upd.Status == types.StatusDone {
			setClauses = append(setClauses, "completed_at = ?")
			args = append(args, now)
		} else {
			setClauses = append(setClauses, "completed_at = NULL")
		}
	}
	if upd.Title != nil {
		if len(*upd.Title) > 500 {
			return nil, nil, fmt.Errorf("%w: title must be 500 characters or less", storage.ErrValidation)
		}
		setClauses = append(setClauses, "title = ?")
		args = append(args, *upd.Title)
	}
	if upd.Content != nil {
		setClauses = append(setClauses, "content = ?")
		args = append(args, *upd.Content)
	}
	if upd.ClearDueAt {
		setClauses = append(setClauses, "due_at = NULL", "due_at_raw = ''")
	} else if upd.DueAt != nil {
		setClauses = append(setClauses, "due_at = ?")
		args = append(args, upd.DueAt.UTC())
	}
	if upd.DueAtRaw != nil && !upd.ClearDueAt {
		setClauses = append(setClauses, "due_at_raw = ?")
		args = append(args, *upd.DueAtRaw)
	}
	if upd.RemindAt != nil {
		// Client updates may only arm future reminders. The scheduler
		// rewrites fired reminders through MarkReminded instead.
		if !upd.RemindAt.After(now) {
			return nil, nil, fmt.Errorf("%w: remind_at must be in the future", storage.ErrValidation)
		}
		setClauses = append(setClauses, "remind_at = ?")
		args = append(args, upd.RemindAt.UTC())
	}
	if upd.Priority != nil {
		if *upd.Priority != "" && !upd.Priority.IsValid() {
			return nil, nil, fmt.Errorf("%w: invalid priority: %s", storage.ErrValidation, *upd.Priority)
		}
		setClauses = append(setClauses, "priority = ?")
		args = append(args, *upd.Priority)
	}
	if upd.ClearProject {
		setClauses = append(setClauses, "project_id = NULL")
	} else if upd.ProjectID != nil {
		setClauses = append(setClauses, "project_id = ?")
		args = append(args, *upd.ProjectID)
	}
	if upd.Tags != nil {
		setClauses = append(setClauses, "tags = ?")
		args = append(args, marshalTags(*upd.Tags))
	}
	if upd.Entities != nil {
		setClauses = append(setClauses, "entities = ?")
		args = append(args, marshalEntities(*upd.Entities))
	}
	if upd.ClearRecurrence {
		setClauses = append(setClauses, "recurrence = NULL")
	} else if upd.Recurrence != nil {
		if err := upd.Recurrence.Validate(); err != nil {
			return nil, nil, fmt.Errorf("%w: %s", storage.ErrValidation, err)
		}
		setClauses = append(setClauses, "recurrence = ?")
		args = append(args, marshalRecurrence(upd.Recurrence))
	}
	return setClauses, args, nil
}

// UpdateItem applies a partial update and returns the updated item. The
// original input is immutable and cannot be changed through updates.
func (s *Store) UpdateItem(ctx context.Context, itemID, userID int64, upd storage.ItemUpdate) (*types.Item, error) {
	now := time.Now().UTC()
	setClauses, args, err := buildItemSet(upd, now)
	if err != nil {
		return nil, err
	}
	if len(setClauses) == 0 {
		return s.GetItem(ctx, itemID, userID)
	}

	setClauses = append(setClauses, "updated_at = ?")
	args = append(args, now, itemID, userID)

	res, err := s.db.ExecContext(ctx,
		`UPDATE items SET `+strings.Join(setClauses, ", ")+` WHERE id = ? AND user_id = ?`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update item: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return nil, storage.ErrNotFound
	}
	return s.GetItem(ctx, itemID, userID)
}

// CompleteItem marks an item done and, when it carries a recurrence rule and
// a due time, materializes the next occurrence in the same transaction.
// Completing an already-done item is a no-op. Returns the completed item and
// the next occurrence (nil when none was created).
func (s *Store) CompleteItem(ctx context.Context, itemID, userID int64) (*types.Item, *types.Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ? AND user_id = ?`,
		itemID, userID)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get item: %w", err)
	}

	if item.Status == types.StatusDone {
		// Already done; never materialize a second occurrence.
		return item, nil, nil
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE items SET status = ?, completed_at = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		types.StatusDone, now, now, itemID, userID); err != nil {
		return nil, nil, fmt.Errorf("failed to complete item: %w", err)
	}
	item.Status = types.StatusDone
	item.CompletedAt = &now
	item.UpdatedAt = now

	next := item.NextOccurrence()
	if next != nil {
		next.CreatedAt = now
		next.UpdatedAt = now
		res, err := tx.ExecContext(ctx, `
			INSERT INTO items (
				user_id, type, status, title, content, original_input, source,
				due_at, due_at_raw, remind_at, priority, project_id, tags,
				recurrence, origin_user_name, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			next.UserID, next.Type, next.Status, next.Title, next.Content,
			next.OriginalInput, next.Source,
			nullTime(next.DueAt), next.DueAtRaw, nullTime(next.RemindAt),
			next.Priority, nullInt64(next.ProjectID), marshalTags(next.Tags),
			marshalRecurrence(next.Recurrence), next.OriginUserName, now, now,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to insert next occurrence: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read inserted id: %w", err)
		}
		next.ID = id
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit: %w", err)
	}
	return item, next, nil
}

// DeleteItem removes an item. Links referencing it are cascaded away. Returns
// false when no item was deleted.
func (s *Store) DeleteItem(ctx context.Context, itemID, userID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM items WHERE id = ? AND user_id = ?`, itemID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete item: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return rows > 0, nil
}

// BatchUpdateItems applies one partial update to several items and returns
// the number of rows actually updated. IDs that do not exist or belong to
// another user are silently skipped.
func (s *Store) BatchUpdateItems(ctx context.Context, itemIDs []int64, userID int64, upd storage.ItemUpdate) (int64, error) {
	if len(itemIDs) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	setClauses, args, err := buildItemSet(upd, now)
	if err != nil {
		return 0, err
	}
	if len(setClauses) == 0 {
		return 0, nil
	}
	setClauses = append(setClauses, "updated_at = ?")
	args = append(args, now)

	placeholders := make([]string, len(itemIDs))
	for i, id := range itemIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}
	args = append(args, userID)

	res, err := s.db.ExecContext(ctx,
		`UPDATE items SET `+strings.Join(setClauses, ", ")+
			` WHERE id IN (`+strings.Join(placeholders, ",")+`) AND user_id = ?`,
		args...)
	if err != nil {
		return 0, fmt.Errorf("failed to batch update items: %w", err)
	}
	return res.RowsAffected()
}

// BatchDeleteItems removes several items and returns the number deleted.
func (s *Store) BatchDeleteItems(ctx context.Context, itemIDs []int64, userID int64) (int64, error) {
	if len(itemIDs) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(itemIDs))
	args := make([]any, 0, len(itemIDs)+1)
	for i, id := range itemIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}
	args = append(args, userID)

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM items WHERE id IN (`+strings.Join(placeholders, ",")+`) AND user_id = ?`,
		args...)
	if err != nil {
		return 0, fmt.Errorf("failed to batch delete items: %w", err)
	}
	return res.RowsAffected()
}

// SaveEmbedding attaches an embedding vector to an item. The write does not
// bump updated_at; enrichment is invisible to clients.
func (s *Store) SaveEmbedding(ctx context.Context, itemID, userID int64, embedding []float32) error {
	if len(embedding) != types.EmbeddingDim {
		return fmt.Errorf("%w: embedding must have %d dimensions (got %d)",
			storage.ErrValidation, types.EmbeddingDim, len(embedding))
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE items SET embedding = ? WHERE id = ? AND user_id = ?`,
		encodeEmbedding(embedding), itemID, userID)
	if err != nil {
		return fmt.Errorf("failed to save embedding: %w", err)
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
