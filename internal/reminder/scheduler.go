// Package reminder implements the due-item notification scheduler. Every
// tick it selects items whose remind_at (or due_at, when no explicit
// reminder is set) falls inside a short window around now, notifies the
// owner, and pushes remind_at into the past so the item never fires twice.
package reminder

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/neuralinbox/neuralinbox/internal/storage"
	"github.com/neuralinbox/neuralinbox/internal/types"
)

const (
	// DefaultInterval is the tick period.
	DefaultInterval = time.Minute

	// The window reaches back so ticks missed during a restart still fire.
	windowBehind = 5 * time.Minute
	windowAhead  = time.Minute

	// sentinelAge is how far into the past remind_at is pushed after a
	// notification went out. Client updates require a future remind_at, so
	// the sentinel can never be set from outside.
	sentinelAge = 24 * time.Hour

	titlePreviewRunes = 100
)

// Transport delivers reminder messages to users.
type Transport interface {
	SendReminder(ctx context.Context, userID int64, text string) error
}

// Scheduler runs the reminder loop.
type Scheduler struct {
	store     storage.Storage
	transport Transport
	interval  time.Duration
	now       func() time.Time
}

// New creates a scheduler with the default tick interval.
func New(store storage.Storage, transport Transport) *Scheduler {
	return &Scheduler{
		store:     store,
		transport: transport,
		interval:  DefaultInterval,
		now:       time.Now,
	}
}

// SetInterval overrides the tick period. Zero or negative keeps the default.
func (s *Scheduler) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// Run ticks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("reminder: scheduler started (interval %s)", s.interval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("reminder: scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick processes one reminder window. Each due item is notified and then
// marked, so a delivery failure costs one reminder rather than causing a
// repeat on every subsequent tick.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now().UTC()
	due, err := s.store.DueWindow(ctx, now.Add(-windowBehind), now.Add(windowAhead))
	if err != nil {
		log.Printf("reminder: failed to load due items: %v", err)
		return
	}
	if len(due) == 0 {
		return
	}
	log.Printf("reminder: %d due items", len(due))

	sentinel := now.Add(-sentinelAge)
	for _, d := range due {
		if err := s.transport.SendReminder(ctx, d.User.UserID, formatReminder(d.Item, d.User, now)); err != nil {
			log.Printf("reminder: failed to send for item %d: %v", d.Item.ID, err)
		}
		if err := s.store.MarkReminded(ctx, d.Item.ID, d.User.UserID, sentinel); err != nil {
			log.Printf("reminder: failed to mark item %d: %v", d.Item.ID, err)
		}
	}
}

func formatReminder(item *types.Item, user *types.User, now time.Time) string {
	icon := "•"
	if item.Type == types.TypeTask {
		icon = "✔︎"
	}

	title := item.Title
	if title == "" {
		title = firstRunes(item.Content, titlePreviewRunes)
	}
	if title == "" {
		title = "Без названия"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s Напоминание\n\n%s", icon, title)

	if item.DueAt != nil {
		local := item.DueAt.In(user.Location())
		fmt.Fprintf(&b, "\n\n%s", local.Format("15:04"))
		if item.DueAtRaw != "" {
			fmt.Fprintf(&b, " (%s)", item.DueAtRaw)
		}
	} else if item.DueAtRaw != "" {
		fmt.Fprintf(&b, "\n\n(%s)", item.DueAtRaw)
	}
	return b.String()
}

func firstRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
