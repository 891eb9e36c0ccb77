package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/neuralinbox/neuralinbox/internal/storage"
	"github.com/neuralinbox/neuralinbox/internal/types"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	relatedLimit    = 10
	relatedMinScore = 0.7
)

type itemsListResponse struct {
	Items   []*types.Item `json:"items"`
	Total   int64         `json:"total"`
	Limit   int           `json:"limit"`
	Offset  int           `json:"offset"`
	HasMore bool          `json:"has_more"`
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := storage.ListFilter{Limit: defaultPageSize}

	for _, raw := range splitCSV(q.Get("type")) {
		t := types.ItemType(raw)
		if !t.IsValid() {
			writeError(w, http.StatusBadRequest, "invalid type: "+raw)
			return
		}
		filter.Types = append(filter.Types, t)
	}
	for _, raw := range splitCSV(q.Get("status")) {
		st := types.ItemStatus(raw)
		if !st.IsValid() {
			writeError(w, http.StatusBadRequest, "invalid status: "+raw)
			return
		}
		filter.Statuses = append(filter.Statuses, st)
	}
	if raw := q.Get("project_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid project_id")
			return
		}
		filter.ProjectID = &id
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxPageSize {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		filter.Limit = limit
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			writeError(w, http.StatusBadRequest, "offset must be non-negative")
			return
		}
		filter.Offset = offset
	}

	items, total, err := s.store.ListItems(r.Context(), userID(r), filter)
	if err != nil {
		writeStoreError(w, err, "Item not found")
		return
	}
	if items == nil {
		items = []*types.Item{}
	}

	writeJSON(w, http.StatusOK, itemsListResponse{
		Items:   items,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
		HasMore: int64(filter.Offset+len(items)) < total,
	})
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "itemID")
	if id == 0 {
		writeError(w, http.StatusNotFound, "Item not found")
		return
	}

	item, err := s.store.GetItem(r.Context(), id, userID(r))
	if err != nil {
		writeStoreError(w, err, "Item not found")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "itemID")
	if id == 0 {
		writeError(w, http.StatusNotFound, "Item not found")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(fields) == 0 {
		writeError(w, http.StatusBadRequest, "No fields to update")
		return
	}

	upd, err := itemUpdateFromBody(fields)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	item, err := s.store.UpdateItem(r.Context(), id, userID(r), *upd)
	if err != nil {
		writeStoreError(w, err, "Item not found")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "itemID")
	if id == 0 {
		writeError(w, http.StatusNotFound, "Item not found")
		return
	}

	deleted, err := s.store.DeleteItem(r.Context(), id, userID(r))
	if err != nil {
		writeStoreError(w, err, "Item not found")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Item not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Item deleted"})
}

// handleCompleteItem marks the item done. For recurring tasks the next
// occurrence is materialized and returned in place of the completed one.
func (s *Server) handleCompleteItem(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "itemID")
	if id == 0 {
		writeError(w, http.StatusNotFound, "Item not found")
		return
	}

	completed, next, err := s.store.CompleteItem(r.Context(), id, userID(r))
	if err != nil {
		writeStoreError(w, err, "Item not found")
		return
	}
	if next != nil {
		writeJSON(w, http.StatusOK, next)
		return
	}
	writeJSON(w, http.StatusOK, completed)
}

func (s *Server) handleMoveItem(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "itemID")
	if id == 0 {
		writeError(w, http.StatusNotFound, "Item not found")
		return
	}

	var body struct {
		ProjectID *int64 `json:"project_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	upd := storage.ItemUpdate{}
	if body.ProjectID == nil {
		upd.ClearProject = true
	} else {
		upd.ProjectID = body.ProjectID
	}

	item, err := s.store.UpdateItem(r.Context(), id, userID(r), upd)
	if err != nil {
		writeStoreError(w, err, "Item not found")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type relatedEntry struct {
	ID    int64          `json:"id"`
	Title string         `json:"title"`
	Type  types.ItemType `json:"type"`
	Score float64        `json:"score"`
}

func (s *Server) handleRelatedItems(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "itemID")
	if id == 0 {
		writeError(w, http.StatusNotFound, "Item not found")
		return
	}
	uid := userID(r)

	if _, err := s.store.GetItem(r.Context(), id, uid); err != nil {
		writeStoreError(w, err, "Item not found")
		return
	}

	similar, err := s.engine.FindSimilar(r.Context(), id, uid, relatedLimit, relatedMinScore)
	if err != nil {
		writeStoreError(w, err, "Item not found")
		return
	}
	auto := []relatedEntry{}
	for _, res := range similar {
		auto = append(auto, relatedEntry{
			ID:    res.ItemID,
			Title: res.Title,
			Type:  res.Type,
			Score: float64(int(res.Score*100)) / 100,
		})
	}

	links, err := s.store.GetItemLinks(r.Context(), id, uid)
	if err != nil {
		writeStoreError(w, err, "Item not found")
		return
	}
	if links == nil {
		links = []*types.ItemLink{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"auto": auto, "linked": links})
}

// itemUpdateFromBody builds a partial update from the raw field set. Absent
// and explicit-null fields are distinguished; unknown fields are ignored.
func itemUpdateFromBody(fields map[string]json.RawMessage) (*storage.ItemUpdate, error) {
	upd := &storage.ItemUpdate{}

	if raw, ok := fields["type"]; ok {
		var v types.ItemType
		if err := json.Unmarshal(raw, &v); err != nil || !v.IsValid() {
			return nil, errBadField("type")
		}
		upd.Type = &v
	}
	if raw, ok := fields["status"]; ok {
		var v types.ItemStatus
		if err := json.Unmarshal(raw, &v); err != nil || !v.IsValid() {
			return nil, errBadField("status")
		}
		upd.Status = &v
	}
	if raw, ok := fields["title"]; ok {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errBadField("title")
		}
		upd.Title = &v
	}
	if raw, ok := fields["content"]; ok {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errBadField("content")
		}
		upd.Content = &v
	}
	if raw, ok := fields["due_at"]; ok {
		if string(raw) == "null" {
			upd.ClearDueAt = true
		} else {
			var v time.Time
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, errBadField("due_at")
			}
			upd.DueAt = &v
		}
	}
	if raw, ok := fields["due_at_raw"]; ok {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errBadField("due_at_raw")
		}
		upd.DueAtRaw = &v
	}
	if raw, ok := fields["remind_at"]; ok && string(raw) != "null" {
		var v time.Time
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errBadField("remind_at")
		}
		upd.RemindAt = &v
	}
	if raw, ok := fields["priority"]; ok && string(raw) != "null" {
		var v types.Priority
		if err := json.Unmarshal(raw, &v); err != nil || (v != "" && !v.IsValid()) {
			return nil, errBadField("priority")
		}
		upd.Priority = &v
	}
	if raw, ok := fields["project_id"]; ok {
		if string(raw) == "null" {
			upd.ClearProject = true
		} else {
			var v int64
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, errBadField("project_id")
			}
			upd.ProjectID = &v
		}
	}
	if raw, ok := fields["tags"]; ok && string(raw) != "null" {
		var v []string
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errBadField("tags")
		}
		upd.Tags = &v
	}
	if raw, ok := fields["entities"]; ok && string(raw) != "null" {
		var v map[string]any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errBadField("entities")
		}
		upd.Entities = &v
	}
	if raw, ok := fields["recurrence"]; ok {
		if string(raw) == "null" {
			upd.ClearRecurrence = true
		} else {
			var v types.Recurrence
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, errBadField("recurrence")
			}
			upd.Recurrence = &v
		}
	}
	return upd, nil
}

type fieldError string

func (e fieldError) Error() string { return "invalid value for field " + string(e) }

func errBadField(name string) error { return fieldError(name) }

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
