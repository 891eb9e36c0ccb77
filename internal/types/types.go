// Package types defines core data structures for the Neural Inbox engine.
package types

import (
	"fmt"
	"regexp"
	"time"
)

// EmbeddingDim is the fixed dimensionality of item embeddings.
const EmbeddingDim = 1536

// User owns all other entities. The id is assigned by the transport layer
// (an opaque 64-bit integer); users are created on first reference.
type User struct {
	UserID         int64          `json:"user_id"`
	Timezone       string         `json:"timezone"`
	Language       string         `json:"language"`
	Settings       map[string]any `json:"settings,omitempty"`
	OnboardingDone bool           `json:"onboarding_done"`
	CreatedAt      time.Time      `json:"created_at"`
}

// DefaultTimezone is applied to users that never configured one.
const DefaultTimezone = "Asia/Almaty"

// Location resolves the user's IANA timezone, falling back to the default.
func (u *User) Location() *time.Location {
	tz := u.Timezone
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc, _ = time.LoadLocation(DefaultTimezone)
	}
	return loc
}

// Project is a named grouping of items under one user.
type Project struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	Emoji     string    `json:"emoji,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Validate checks project field constraints.
func (p *Project) Validate() error {
	if len(p.Name) == 0 {
		return fmt.Errorf("name is required")
	}
	if len(p.Name) > 100 {
		return fmt.Errorf("name must be 100 characters or less (got %d)", len(p.Name))
	}
	if p.Color != "" && !colorPattern.MatchString(p.Color) {
		return fmt.Errorf("color must be #RRGGBB format: %s", p.Color)
	}
	return nil
}

// Attachment is the opaque file triple carried through from the transport.
// The core persists it verbatim so the transport can echo it back.
type Attachment struct {
	FileID   string `json:"file_id"`
	Kind     string `json:"kind"`
	Filename string `json:"filename,omitempty"`
}

// Item is the atomic stored record produced by ingestion.
type Item struct {
	ID     int64 `json:"id"`
	UserID int64 `json:"user_id"`

	Type   ItemType   `json:"type"`
	Status ItemStatus `json:"status"`

	Title         string     `json:"title,omitempty"`
	Content       string     `json:"content,omitempty"`
	OriginalInput string     `json:"original_input,omitempty"`
	Source        ItemSource `json:"source,omitempty"`

	DueAt    *time.Time `json:"due_at,omitempty"`
	DueAtRaw string     `json:"due_at_raw,omitempty"`
	RemindAt *time.Time `json:"remind_at,omitempty"`

	Priority  Priority       `json:"priority,omitempty"`
	ProjectID *int64         `json:"project_id,omitempty"`
	Tags      []string       `json:"tags,omitempty"`
	Entities  map[string]any `json:"entities,omitempty"`

	Recurrence *Recurrence `json:"recurrence,omitempty"`

	// Embedding is populated lazily after creation; absence is valid.
	Embedding []float32 `json:"-"`

	OriginUserName     string `json:"origin_user_name,omitempty"`
	AttachmentFileID   string `json:"attachment_file_id,omitempty"`
	AttachmentType     string `json:"attachment_type,omitempty"`
	AttachmentFilename string `json:"attachment_filename,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Validate checks if the item has valid field values.
func (i *Item) Validate() error {
	if !i.Type.IsValid() {
		return fmt.Errorf("invalid item type: %s", i.Type)
	}
	if !i.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", i.Status)
	}
	if len(i.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(i.Title))
	}
	if i.Source != "" && !i.Source.IsValid() {
		return fmt.Errorf("invalid source: %s", i.Source)
	}
	if i.Priority != "" && !i.Priority.IsValid() {
		return fmt.Errorf("invalid priority: %s", i.Priority)
	}
	if len(i.Embedding) != 0 && len(i.Embedding) != EmbeddingDim {
		return fmt.Errorf("embedding must have %d dimensions (got %d)", EmbeddingDim, len(i.Embedding))
	}
	// done items must carry a completion timestamp
	if i.Status == StatusDone && i.CompletedAt == nil {
		return fmt.Errorf("done items must have completed_at timestamp")
	}
	if i.Recurrence != nil {
		if err := i.Recurrence.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// SetDefaults applies default values for fields omitted at creation.
func (i *Item) SetDefaults() {
	if i.Type == "" {
		i.Type = TypeNote
	}
	if i.Status == "" {
		i.Status = StatusInbox
	}
}

// Attachment returns the item's attachment triple, or nil when there is none.
func (i *Item) Attachment() *Attachment {
	if i.AttachmentFileID == "" {
		return nil
	}
	return &Attachment{
		FileID:   i.AttachmentFileID,
		Kind:     i.AttachmentType,
		Filename: i.AttachmentFilename,
	}
}

// ItemType categorizes the kind of record. Closed set.
type ItemType string

// Item type constants
const (
	TypeTask     ItemType = "task"
	TypeIdea     ItemType = "idea"
	TypeNote     ItemType = "note"
	TypeResource ItemType = "resource"
	TypeContact  ItemType = "contact"
	TypeEvent    ItemType = "event"
)

// IsValid checks if the item type value is valid.
func (t ItemType) IsValid() bool {
	switch t {
	case TypeTask, TypeIdea, TypeNote, TypeResource, TypeContact, TypeEvent:
		return true
	}
	return false
}

// ItemStatus represents the current state of an item. Closed set.
type ItemStatus string

// Item status constants
const (
	StatusProcessing ItemStatus = "processing"
	StatusInbox      ItemStatus = "inbox"
	StatusActive     ItemStatus = "active"
	StatusDone       ItemStatus = "done"
	StatusArchived   ItemStatus = "archived"
)

// IsValid checks if the status value is valid.
func (s ItemStatus) IsValid() bool {
	switch s {
	case StatusProcessing, StatusInbox, StatusActive, StatusDone, StatusArchived:
		return true
	}
	return false
}

// ItemSource records how an item entered the system. Closed set.
type ItemSource string

// Item source constants
const (
	SourceText    ItemSource = "text"
	SourceVoice   ItemSource = "voice"
	SourcePhoto   ItemSource = "photo"
	SourcePDF     ItemSource = "pdf"
	SourceForward ItemSource = "forward"
	SourceLink    ItemSource = "link"
	// SourceAgent marks items created through the tool loop rather than
	// captured from an inbound message.
	SourceAgent ItemSource = "agent"
)

// IsValid checks if the source value is valid.
func (s ItemSource) IsValid() bool {
	switch s {
	case SourceText, SourceVoice, SourcePhoto, SourcePDF, SourceForward, SourceLink, SourceAgent:
		return true
	}
	return false
}

// Priority level of an item. Empty string means unset.
type Priority string

// Priority constants
const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// IsValid checks if the priority value is valid.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// ItemLink is a directed relation between two items of the same user.
type ItemLink struct {
	ID            int64     `json:"id"`
	ItemID        int64     `json:"item_id"`
	RelatedItemID int64     `json:"related_item_id"`
	LinkType      string    `json:"link_type,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Confidence    *float64  `json:"confidence,omitempty"`
	Confirmed     bool      `json:"confirmed"`
	CreatedAt     time.Time `json:"created_at"`
}

// LinkRelated is the link type assigned to agent-suggested links.
const LinkRelated = "related"
