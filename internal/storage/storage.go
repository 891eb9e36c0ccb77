// Package storage provides shared types for item storage.
//
// The concrete storage implementation lives in the sqlite sub-package.
// This package holds interface and value types that are referenced by
// both the sqlite implementation and its consumers (agent, tools, server).
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/neuralinbox/neuralinbox/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist or is not
// visible to the calling user. Callers must not distinguish "missing" from
// "not yours".
var ErrNotFound = errors.New("not found")

// ErrValidation is returned when a write carries an invalid enum value,
// out-of-range field, or otherwise violates a model constraint.
var ErrValidation = errors.New("validation failed")

// ItemUpdate carries a partial update; nil fields are left untouched.
// Unknown fields supplied by callers are dropped before an ItemUpdate is
// built, so they are ignored rather than rejected.
type ItemUpdate struct {
	Type       *types.ItemType
	Status     *types.ItemStatus
	Title      *string
	Content    *string
	DueAt      *time.Time
	ClearDueAt bool
	DueAtRaw   *string
	RemindAt   *time.Time
	Priority   *types.Priority
	ProjectID  *int64
	// ClearProject moves the item out of any project (project_id = null).
	ClearProject bool
	Tags         *[]string
	Entities     *map[string]any
	Recurrence   *types.Recurrence
	// ClearRecurrence removes the recurrence rule.
	ClearRecurrence bool
}

// ProjectUpdate carries a partial project update.
type ProjectUpdate struct {
	Name  *string
	Color *string
	Emoji *string
}

// ListFilter selects items for ListItems and CountItems.
type ListFilter struct {
	Types     []types.ItemType
	Statuses  []types.ItemStatus
	ProjectID *int64
	Limit     int
	Offset    int
}

// SearchFilter selects items for SearchAdvanced. Query is a substring match
// over title, content and original input; Tags requires all listed tags.
type SearchFilter struct {
	Query     string
	Type      types.ItemType
	Status    types.ItemStatus
	DateField string // "due_at" or "created_at"
	DateFrom  *time.Time
	DateTo    *time.Time
	ProjectID *int64
	Priority  types.Priority
	Tags      []string
	Limit     int
}

// FTSResult is one row of the lexical full-text subquery, with the rank
// already normalized to [0,1].
type FTSResult struct {
	ItemID  int64
	Title   string
	Content string
	Type    types.ItemType
	Score   float64
}

// VectorCandidate pairs an item with its stored embedding for in-process
// similarity scoring.
type VectorCandidate struct {
	ItemID    int64
	Title     string
	Content   string
	Type      types.ItemType
	Embedding []float32
}

// DueItem pairs a due item with its owner for reminder dispatch.
type DueItem struct {
	Item *types.Item
	User *types.User
}

// Storage is the interface satisfied by *sqlite.Store. Consumers depend on
// this interface rather than on the concrete type so that alternative
// implementations (mocks, proxies) can be substituted.
type Storage interface {
	// Users
	GetOrCreateUser(ctx context.Context, userID int64) (*types.User, error)
	GetUser(ctx context.Context, userID int64) (*types.User, error)
	UpdateUser(ctx context.Context, userID int64, timezone, language *string, settings map[string]any, onboardingDone *bool) (*types.User, error)

	// Item CRUD
	CreateItem(ctx context.Context, item *types.Item) (*types.Item, error)
	GetItem(ctx context.Context, itemID, userID int64) (*types.Item, error)
	UpdateItem(ctx context.Context, itemID, userID int64, upd ItemUpdate) (*types.Item, error)
	CompleteItem(ctx context.Context, itemID, userID int64) (*types.Item, *types.Item, error)
	DeleteItem(ctx context.Context, itemID, userID int64) (bool, error)
	BatchUpdateItems(ctx context.Context, itemIDs []int64, userID int64, upd ItemUpdate) (int64, error)
	BatchDeleteItems(ctx context.Context, itemIDs []int64, userID int64) (int64, error)
	SaveEmbedding(ctx context.Context, itemID, userID int64, embedding []float32) error

	// Item queries
	ListItems(ctx context.Context, userID int64, filter ListFilter) ([]*types.Item, int64, error)
	SearchAdvanced(ctx context.Context, userID int64, filter SearchFilter) ([]*types.Item, error)
	RecentItems(ctx context.Context, userID int64, limit int) ([]*types.Item, error)
	AllTasks(ctx context.Context, userID int64) ([]*types.Item, error)
	TasksWithDueDates(ctx context.Context, userID int64, from, to *time.Time) ([]*types.Item, error)
	DueWindow(ctx context.Context, from, to time.Time) ([]DueItem, error)
	// MarkReminded rewrites remind_at after a notification went out. The
	// scheduler passes a past sentinel, so this bypasses the future-only
	// check applied to client updates.
	MarkReminded(ctx context.Context, itemID, userID int64, remindAt time.Time) error

	// Search primitives (consumed by the hybrid engine)
	FTSSearch(ctx context.Context, userID int64, query string, limit int, typeFilter types.ItemType, statusFilter types.ItemStatus) ([]FTSResult, error)
	VectorCandidates(ctx context.Context, userID int64, typeFilter types.ItemType, statusFilter types.ItemStatus) ([]VectorCandidate, error)
	SubstringSearch(ctx context.Context, userID int64, query string, limit int, typeFilter types.ItemType, statusFilter types.ItemStatus) ([]FTSResult, error)

	// Projects
	CreateProject(ctx context.Context, project *types.Project) (*types.Project, error)
	GetProject(ctx context.Context, projectID, userID int64) (*types.Project, error)
	GetProjectByName(ctx context.Context, name string, userID int64) (*types.Project, error)
	ListProjects(ctx context.Context, userID int64) ([]*types.Project, error)
	UpdateProject(ctx context.Context, projectID, userID int64, upd ProjectUpdate) (*types.Project, error)
	DeleteProject(ctx context.Context, projectID, userID int64) (bool, error)
	CountProjectItems(ctx context.Context, projectID, userID int64) (int64, error)
	MoveProjectItems(ctx context.Context, projectID int64, targetProjectID *int64, userID int64) (int64, error)

	// Links
	CreateLink(ctx context.Context, link *types.ItemLink) (*types.ItemLink, error)
	GetItemLinks(ctx context.Context, itemID, userID int64) ([]*types.ItemLink, error)

	// Lifecycle
	Close() error
}
