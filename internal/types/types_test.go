package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemValidate(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		item    Item
		wantErr string
	}{
		{"valid minimal", Item{Type: TypeNote, Status: StatusInbox}, ""},
		{"invalid type", Item{Type: "memo", Status: StatusInbox}, "invalid item type"},
		{"invalid status", Item{Type: TypeTask, Status: "open"}, "invalid status"},
		{"invalid source", Item{Type: TypeTask, Status: StatusInbox, Source: "fax"}, "invalid source"},
		{"invalid priority", Item{Type: TypeTask, Status: StatusInbox, Priority: "urgent"}, "invalid priority"},
		{"done without completed_at", Item{Type: TypeTask, Status: StatusDone}, "completed_at"},
		{"done with completed_at", Item{Type: TypeTask, Status: StatusDone, CompletedAt: &now}, ""},
		{"short embedding", Item{Type: TypeNote, Status: StatusInbox, Embedding: make([]float32, 3)}, "1536"},
		{"full embedding", Item{Type: TypeNote, Status: StatusInbox, Embedding: make([]float32, EmbeddingDim)}, ""},
		{"bad recurrence interval", Item{Type: TypeTask, Status: StatusInbox, Recurrence: &Recurrence{Type: RecurDaily, Interval: 0}}, "interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.item.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestItemValidateTitleLength(t *testing.T) {
	long := make([]byte, 501)
	for i := range long {
		long[i] = 'x'
	}
	item := Item{Type: TypeNote, Status: StatusInbox, Title: string(long)}
	require.Error(t, item.Validate())
}

func TestItemSetDefaults(t *testing.T) {
	var item Item
	item.SetDefaults()
	assert.Equal(t, TypeNote, item.Type)
	assert.Equal(t, StatusInbox, item.Status)

	item2 := Item{Type: TypeTask, Status: StatusActive}
	item2.SetDefaults()
	assert.Equal(t, TypeTask, item2.Type)
	assert.Equal(t, StatusActive, item2.Status)
}

func TestEnumsClosed(t *testing.T) {
	assert.False(t, ItemType("").IsValid())
	assert.False(t, ItemStatus("deleted").IsValid())
	assert.False(t, ItemSource("email").IsValid())
	assert.False(t, Priority("").IsValid())
	assert.True(t, StatusProcessing.IsValid())
	assert.True(t, SourceForward.IsValid())
}

func TestUserLocation(t *testing.T) {
	u := &User{Timezone: "Europe/Berlin"}
	assert.Equal(t, "Europe/Berlin", u.Location().String())

	fallback := &User{Timezone: "Not/AZone"}
	assert.Equal(t, DefaultTimezone, fallback.Location().String())

	empty := &User{}
	assert.Equal(t, DefaultTimezone, empty.Location().String())
}

func TestProjectValidate(t *testing.T) {
	ok := Project{Name: "Ремонт", Color: "#FF8800", Emoji: "🔨"}
	assert.NoError(t, ok.Validate())

	assert.Error(t, (&Project{}).Validate())
	assert.Error(t, (&Project{Name: "x", Color: "red"}).Validate())
}

func TestItemAttachment(t *testing.T) {
	item := Item{AttachmentFileID: "f1", AttachmentType: "photo"}
	att := item.Attachment()
	require.NotNil(t, att)
	assert.Equal(t, "f1", att.FileID)

	assert.Nil(t, (&Item{}).Attachment())
}
