package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neuralinbox/neuralinbox/internal/storage"
	"github.com/neuralinbox/neuralinbox/internal/types"
)

const projectColumns = `id, user_id, name, color, emoji, created_at`

func scanProject(row rowScanner) (*types.Project, error) {
	var p types.Project
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Color, &p.Emoji, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateProject validates and inserts a project. Names are unique per user.
func (s *Store) CreateProject(ctx context.Context, project *types.Project) (*types.Project, error) {
	if err := project.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", storage.ErrValidation, err)
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (user_id, name, color, emoji, created_at) VALUES (?, ?, ?, ?, ?)`,
		project.UserID, project.Name, project.Color, project.Emoji, now)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: project %q already exists", storage.ErrValidation, project.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert project: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read inserted id: %w", err)
	}
	project.ID = id
	project.CreatedAt = now
	return project, nil
}

// GetProject returns a project by id, scoped to its owner.
func (s *Store) GetProject(ctx context.Context, projectID, userID int64) (*types.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = ? AND user_id = ?`,
		projectID, userID)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// GetProjectByName resolves a project by its exact name.
func (s *Store) GetProjectByName(ctx context.Context, name string, userID int64) (*types.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE name = ? AND user_id = ?`,
		name, userID)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project by name: %w", err)
	}
	return p, nil
}

// ListProjects returns the user's projects in creation order.
func (s *Store) ListProjects(ctx context.Context, userID int64) ([]*types.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE user_id = ? ORDER BY created_at ASC, id ASC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*types.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// UpdateProject applies a partial update and returns the updated project.
func (s *Store) UpdateProject(ctx context.Context, projectID, userID int64, upd storage.ProjectUpdate) (*types.Project, error) {
	setClauses := []string{}
	args := []any{}

	if upd.Name != nil {
		if len(*upd.Name) == 0 || len(*upd.Name) > 100 {
			return nil, fmt.Errorf("%w: project name must be 1-100 characters", storage.ErrValidation)
		}
		setClauses = append(setClauses, "name = ?")
		args = append(args, *upd.Name)
	}
	if upd.Color != nil {
		probe := types.Project{Name: "x", Color: *upd.Color}
		if err := probe.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s", storage.ErrValidation, err)
		}
		setClauses = append(setClauses, "color = ?")
		args = append(args, *upd.Color)
	}
	if upd.Emoji != nil {
		setClauses = append(setClauses, "emoji = ?")
		args = append(args, *upd.Emoji)
	}
	if len(setClauses) == 0 {
		return s.GetProject(ctx, projectID, userID)
	}

	args = append(args, projectID, userID)
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET `+strings.Join(setClauses, ", ")+` WHERE id = ? AND user_id = ?`,
		args...)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: project name already exists", storage.ErrValidation)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return nil, storage.ErrNotFound
	}
	return s.GetProject(ctx, projectID, userID)
}

// DeleteProject removes a project, first detaching its items so they survive
// as unfiled. Returns false when the project did not exist.
func (s *Store) DeleteProject(ctx context.Context, projectID, userID int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE items SET project_id = NULL WHERE project_id = ? AND user_id = ?`,
		projectID, userID); err != nil {
		return false, fmt.Errorf("failed to detach project items: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM projects WHERE id = ? AND user_id = ?`, projectID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete project: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return rows > 0, nil
}

// CountProjectItems returns how many items belong to the project.
func (s *Store) CountProjectItems(ctx context.Context, projectID, userID int64) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM items WHERE project_id = ? AND user_id = ?`,
		projectID, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count project items: %w", err)
	}
	return count, nil
}

// MoveProjectItems reassigns all items of one project to another (or to none
// when targetProjectID is nil). Returns the number of items moved.
func (s *Store) MoveProjectItems(ctx context.Context, projectID int64, targetProjectID *int64, userID int64) (int64, error) {
	if targetProjectID != nil {
		// The target must exist and belong to the same user.
		if _, err := s.GetProject(ctx, *targetProjectID, userID); err != nil {
			return 0, err
		}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE items SET project_id = ? WHERE project_id = ? AND user_id = ?`,
		nullInt64(targetProjectID), projectID, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to move project items: %w", err)
	}
	return res.RowsAffected()
}
