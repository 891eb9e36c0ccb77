package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/neuralinbox/neuralinbox/internal/storage"
	"github.com/neuralinbox/neuralinbox/internal/types"
)

const linkColumns = `id, item_id, related_item_id, link_type, reason, confidence, confirmed, created_at`

func scanLink(row rowScanner) (*types.ItemLink, error) {
	var (
		link       types.ItemLink
		confidence sql.NullFloat64
	)
	err := row.Scan(&link.ID, &link.ItemID, &link.RelatedItemID,
		&link.LinkType, &link.Reason, &confidence, &link.Confirmed, &link.CreatedAt)
	if err != nil {
		return nil, err
	}
	if confidence.Valid {
		v := confidence.Float64
		link.Confidence = &v
	}
	return &link, nil
}

// CreateLink records a directed relation between two items of the same user.
// Duplicate pairs return the existing link; self-links and cross-user pairs
// are rejected.
func (s *Store) CreateLink(ctx context.Context, link *types.ItemLink) (*types.ItemLink, error) {
	if link.ItemID == link.RelatedItemID {
		return nil, fmt.Errorf("%w: item cannot link to itself", storage.ErrValidation)
	}

	// Both endpoints must exist and belong to one user.
	var count, owners int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT user_id) FROM items WHERE id IN (?, ?)`,
		link.ItemID, link.RelatedItemID).Scan(&count, &owners)
	if err != nil {
		return nil, fmt.Errorf("failed to check link endpoints: %w", err)
	}
	if count != 2 {
		return nil, storage.ErrNotFound
	}
	if owners != 1 {
		return nil, fmt.Errorf("%w: link endpoints must belong to one user", storage.ErrValidation)
	}

	linkType := link.LinkType
	if linkType == "" {
		linkType = types.LinkRelated
	}
	now := time.Now().UTC()
	var confidence any
	if link.Confidence != nil {
		confidence = *link.Confidence
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO item_links (item_id, related_item_id, link_type, reason, confidence, confirmed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id, related_item_id) DO NOTHING
	`, link.ItemID, link.RelatedItemID, linkType, link.Reason, confidence, link.Confirmed, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert link: %w", err)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+linkColumns+` FROM item_links WHERE item_id = ? AND related_item_id = ?`,
		link.ItemID, link.RelatedItemID)
	stored, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read link: %w", err)
	}
	return stored, nil
}

// GetItemLinks returns links in both directions for an item the user owns.
func (s *Store) GetItemLinks(ctx context.Context, itemID, userID int64) ([]*types.ItemLink, error) {
	// Scope through the items table so foreign items read as missing.
	if _, err := s.GetItem(ctx, itemID, userID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+linkColumns+` FROM item_links
		 WHERE item_id = ? OR related_item_id = ?
		 ORDER BY created_at ASC, id ASC`,
		itemID, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	var links []*types.ItemLink
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}
