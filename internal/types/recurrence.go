package types

import (
	"fmt"
	"sort"
	"time"
)

// RecurrenceType enumerates the supported recurrence frequencies.
type RecurrenceType string

// Recurrence type constants
const (
	RecurDaily   RecurrenceType = "daily"
	RecurWeekly  RecurrenceType = "weekly"
	RecurMonthly RecurrenceType = "monthly"
)

// IsValid checks if the recurrence type value is valid.
func (r RecurrenceType) IsValid() bool {
	switch r {
	case RecurDaily, RecurWeekly, RecurMonthly:
		return true
	}
	return false
}

// Recurrence describes how a completed item materializes its next occurrence.
// It is only meaningful on items that carry a due time.
type Recurrence struct {
	Type     RecurrenceType `json:"type"`
	Interval int            `json:"interval"`
	// Days holds weekday numbers 0 (Sunday) through 6 (Saturday);
	// only consulted for weekly rules.
	Days    []int      `json:"days,omitempty"`
	EndDate *time.Time `json:"end_date,omitempty"`
}

// Validate checks the rule's field constraints.
func (r *Recurrence) Validate() error {
	if !r.Type.IsValid() {
		return fmt.Errorf("invalid recurrence type: %s", r.Type)
	}
	if r.Interval < 1 {
		return fmt.Errorf("recurrence interval must be >= 1 (got %d)", r.Interval)
	}
	for _, d := range r.Days {
		if d < 0 || d > 6 {
			return fmt.Errorf("recurrence day out of range 0..6: %d", d)
		}
	}
	return nil
}

// monthClampDay is the day-of-month a monthly occurrence is clamped to when
// the source day does not exist in the target month. Clamping to a fixed day
// keeps further steps from the clamped value stable.
const monthClampDay = 28

// Next computes the occurrence following due. It returns false when the rule
// has an end date and the next occurrence would exceed it.
func (r *Recurrence) Next(due time.Time) (time.Time, bool) {
	interval := r.Interval
	if interval < 1 {
		interval = 1
	}

	var next time.Time
	switch r.Type {
	case RecurDaily:
		next = due.AddDate(0, 0, interval)
	case RecurWeekly:
		next = r.nextWeekly(due, interval)
	case RecurMonthly:
		next = nextMonthly(due, interval)
	default:
		return time.Time{}, false
	}

	if r.EndDate != nil && next.After(*r.EndDate) {
		return time.Time{}, false
	}
	return next, true
}

// nextWeekly picks the smallest listed weekday strictly after the current
// one; when none remains in this cycle it wraps interval weeks ahead to the
// smallest listed weekday.
func (r *Recurrence) nextWeekly(due time.Time, interval int) time.Time {
	if len(r.Days) == 0 {
		return due.AddDate(0, 0, 7*interval)
	}

	days := append([]int(nil), r.Days...)
	sort.Ints(days)

	current := int(due.Weekday())
	for _, d := range days {
		if d > current {
			return due.AddDate(0, 0, d-current)
		}
	}
	// Wrap into the next cycle: back to the start of this week's first
	// listed day, interval weeks later.
	wrap := 7*interval - current + days[0]
	return due.AddDate(0, 0, wrap)
}

func nextMonthly(due time.Time, interval int) time.Time {
	year, month, day := due.Date()
	target := time.Date(year, month, 1, due.Hour(), due.Minute(), due.Second(), due.Nanosecond(), due.Location())
	target = target.AddDate(0, interval, 0)

	if day > daysIn(target.Year(), target.Month()) {
		day = monthClampDay
	}
	return time.Date(target.Year(), target.Month(), day, due.Hour(), due.Minute(), due.Second(), due.Nanosecond(), due.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// NextOccurrence derives the follow-up item created when a recurring item is
// completed. The new item inherits the descriptive fields and the rule
// itself, starts in inbox, and gets a fresh remind time equal to its due
// time. Returns nil when the item does not recur, has no due time, or the
// rule has run out.
func (i *Item) NextOccurrence() *Item {
	if i.Recurrence == nil || i.DueAt == nil {
		return nil
	}
	nextDue, ok := i.Recurrence.Next(*i.DueAt)
	if !ok {
		return nil
	}

	due := nextDue
	remind := nextDue
	rule := *i.Recurrence
	next := &Item{
		UserID:        i.UserID,
		Type:          i.Type,
		Status:        StatusInbox,
		Title:         i.Title,
		Content:       i.Content,
		OriginalInput: i.OriginalInput,
		Source:        i.Source,
		DueAt:         &due,
		DueAtRaw:      i.DueAtRaw,
		RemindAt:      &remind,
		Priority:      i.Priority,
		ProjectID:     i.ProjectID,
		Tags:          append([]string(nil), i.Tags...),
		Recurrence:    &rule,
	}
	return next
}
