package server

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/neuralinbox/neuralinbox/internal/types"
)

// Task buckets in display order. Grouping is by calendar day in the owner's
// timezone, not by UTC instant.
var taskGroupOrder = []string{
	"overdue", "today", "tomorrow", "this_week", "later", "without_date", "completed",
}

var taskGroupLabels = map[string]string{
	"overdue":      "Просрочено",
	"today":        "Сегодня",
	"tomorrow":     "Завтра",
	"this_week":    "На этой неделе",
	"later":        "Позже",
	"without_date": "Без срока",
	"completed":    "Выполненные",
}

type taskGroup struct {
	Key   string        `json:"key"`
	Label string        `json:"label"`
	Items []*types.Item `json:"items"`
}

type tasksResponse struct {
	Groups []taskGroup `json:"groups"`
	Total  int         `json:"total"`
}

func taskGroupKey(dueAt *time.Time, now time.Time, loc *time.Location) string {
	if dueAt == nil {
		return "without_date"
	}

	today := now.In(loc)
	todayY, todayM, todayD := today.Date()
	todayDate := time.Date(todayY, todayM, todayD, 0, 0, 0, 0, loc)

	due := dueAt.In(loc)
	dueY, dueM, dueD := due.Date()
	dueDate := time.Date(dueY, dueM, dueD, 0, 0, 0, 0, loc)

	switch {
	case dueDate.Before(todayDate):
		return "overdue"
	case dueDate.Equal(todayDate):
		return "today"
	case dueDate.Equal(todayDate.AddDate(0, 0, 1)):
		return "tomorrow"
	case !dueDate.After(todayDate.AddDate(0, 0, 7)):
		return "this_week"
	default:
		return "later"
	}
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	includeCompleted := r.URL.Query().Get("include_completed") == "true"

	user, err := s.store.GetOrCreateUser(r.Context(), uid)
	if err != nil {
		writeStoreError(w, err, "User not found")
		return
	}
	tasks, err := s.store.AllTasks(r.Context(), uid)
	if err != nil {
		writeStoreError(w, err, "Item not found")
		return
	}

	loc := user.Location()
	now := time.Now()

	grouped := make(map[string][]*types.Item)
	for _, task := range tasks {
		if task.Status == types.StatusDone {
			if includeCompleted {
				grouped["completed"] = append(grouped["completed"], task)
			}
			continue
		}
		key := taskGroupKey(task.DueAt, now, loc)
		grouped[key] = append(grouped[key], task)
	}

	resp := tasksResponse{Groups: []taskGroup{}}
	for _, key := range taskGroupOrder {
		items := grouped[key]
		if len(items) == 0 {
			continue
		}
		resp.Groups = append(resp.Groups, taskGroup{
			Key:   key,
			Label: taskGroupLabels[key],
			Items: items,
		})
		resp.Total += len(items)
	}
	writeJSON(w, http.StatusOK, resp)
}

type calendarDay struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type calendarResponse struct {
	Days  []calendarDay `json:"days"`
	Tasks []*types.Item `json:"tasks"`
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	q := r.URL.Query()

	year, err := strconv.Atoi(q.Get("year"))
	if err != nil || year < 1970 || year > 2200 {
		writeError(w, http.StatusBadRequest, "invalid year")
		return
	}
	month, err := strconv.Atoi(q.Get("month"))
	if err != nil || month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "month must be between 1 and 12")
		return
	}

	user, err := s.store.GetOrCreateUser(r.Context(), uid)
	if err != nil {
		writeStoreError(w, err, "User not found")
		return
	}
	loc := user.Location()

	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc)
	to := from.AddDate(0, 1, 0).Add(-time.Second)
	fromUTC, toUTC := from.UTC(), to.UTC()

	tasks, err := s.store.TasksWithDueDates(r.Context(), uid, &fromUTC, &toUTC)
	if err != nil {
		writeStoreError(w, err, "Item not found")
		return
	}

	counts := make(map[string]int)
	for _, task := range tasks {
		if task.DueAt == nil || task.Status == types.StatusDone {
			continue
		}
		counts[task.DueAt.In(loc).Format("2006-01-02")]++
	}

	days := make([]calendarDay, 0, len(counts))
	for date, count := range counts {
		days = append(days, calendarDay{Date: date, Count: count})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })

	if tasks == nil {
		tasks = []*types.Item{}
	}
	writeJSON(w, http.StatusOK, calendarResponse{Days: days, Tasks: tasks})
}
