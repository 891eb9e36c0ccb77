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

// userRow holds scan destinations for one users row.
type userRow struct {
	user         types.User
	settingsJSON string
}

func (r *userRow) dests() []any {
	return []any{
		&r.user.UserID, &r.user.Timezone, &r.user.Language,
		&r.settingsJSON, &r.user.OnboardingDone, &r.user.CreatedAt,
	}
}

func (r *userRow) toUser() (*types.User, error) {
	user := r.user
	if r.settingsJSON != "" && r.settingsJSON != "{}" {
		if err := json.Unmarshal([]byte(r.settingsJSON), &user.Settings); err != nil {
			return nil, fmt.Errorf("failed to parse settings: %w", err)
		}
	}
	return &user, nil
}

func scanUser(row rowScanner) (*types.User, error) {
	var r userRow
	if err := row.Scan(r.dests()...); err != nil {
		return nil, err
	}
	return r.toUser()
}

const userColumns = `user_id, timezone, language, settings, onboarding_done, created_at`

// GetOrCreateUser returns the user, creating it with defaults on first
// reference.
func (s *Store) GetOrCreateUser(ctx context.Context, userID int64) (*types.User, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, created_at) VALUES (?, ?) ON CONFLICT(user_id) DO NOTHING`,
		userID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return s.GetUser(ctx, userID)
}

// GetUser returns a user by id.
func (s *Store) GetUser(ctx context.Context, userID int64) (*types.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_id = ?`, userID)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// UpdateUser applies a partial profile update. Timezone must be a resolvable
// IANA zone name; settings replace the stored map wholesale when non-nil.
func (s *Store) UpdateUser(ctx context.Context, userID int64, timezone, language *string, settings map[string]any, onboardingDone *bool) (*types.User, error) {
	setClauses := []string{}
	args := []any{}

	if timezone != nil {
		if _, err := time.LoadLocation(*timezone); err != nil {
			return nil, fmt.Errorf("%w: unknown timezone: %s", storage.ErrValidation, *timezone)
		}
		setClauses = append(setClauses, "timezone = ?")
		args = append(args, *timezone)
	}
	if language != nil {
		if len(*language) == 0 || len(*language) > 8 {
			return nil, fmt.Errorf("%w: invalid language code: %q", storage.ErrValidation, *language)
		}
		setClauses = append(setClauses, "language = ?")
		args = append(args, *language)
	}
	if settings != nil {
		b, err := json.Marshal(settings)
		if err != nil {
			return nil, fmt.Errorf("%w: unserializable settings", storage.ErrValidation)
		}
		setClauses = append(setClauses, "settings = ?")
		args = append(args, string(b))
	}
	if onboardingDone != nil {
		setClauses = append(setClauses, "onboarding_done = ?")
		args = append(args, *onboardingDone)
	}

	if len(setClauses) == 0 {
		return s.GetUser(ctx, userID)
	}

	args = append(args, userID)
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET `+strings.Join(setClauses, ", ")+` WHERE user_id = ?`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return nil, storage.ErrNotFound
	}
	return s.GetUser(ctx, userID)
}
