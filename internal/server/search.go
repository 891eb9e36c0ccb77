package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/neuralinbox/neuralinbox/internal/storage"
	"github.com/neuralinbox/neuralinbox/internal/types"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 50
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	q := r.URL.Query()

	query := strings.TrimSpace(q.Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	var typeFilter types.ItemType
	if raw := q.Get("type"); raw != "" {
		typeFilter = types.ItemType(raw)
		if !typeFilter.IsValid() {
			writeError(w, http.StatusBadRequest, "invalid type: "+raw)
			return
		}
	}
	var statusFilter types.ItemStatus
	if raw := q.Get("status"); raw != "" {
		statusFilter = types.ItemStatus(raw)
		if !statusFilter.IsValid() {
			writeError(w, http.StatusBadRequest, "invalid status: "+raw)
			return
		}
	}

	limit := defaultSearchLimit
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxSearchLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 50")
			return
		}
		limit = parsed
	}

	results := s.engine.Search(r.Context(), uid, query, limit, typeFilter, statusFilter)

	// Hydrate full items, keeping the ranking order.
	items := []*types.Item{}
	for _, res := range results {
		item, err := s.store.GetItem(r.Context(), res.ItemID, uid)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			writeStoreError(w, err, "Item not found")
			return
		}
		items = append(items, item)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":    items,
		"total":    len(items),
		"has_more": len(items) == limit,
		"query":    query,
	})
}
