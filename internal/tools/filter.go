package tools

import (
	"context"
	"strconv"
	"time"

	"github.com/neuralinbox/neuralinbox/internal/storage"
	"github.com/neuralinbox/neuralinbox/internal/types"
)

// Argument readers over the decoded JSON object. JSON numbers arrive as
// float64; absent and mistyped values read as zero values.

func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func argBool(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}

func argInt64(args map[string]any, key string) (int64, bool) {
	switch v := args[key].(type) {
	case float64:
		return int64(v), true
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func argStrings(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func argObject(args map[string]any, key string) map[string]any {
	m, _ := args[key].(map[string]any)
	return m
}

// parseTimeArg accepts RFC3339 or naive ISO timestamps; naive values are
// interpreted as UTC.
func parseTimeArg(s string) *time.Time {
	if s == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// parseFilter turns a tool-call filter object into a storage filter.
// The project key accepts an id, a numeric string, or a project name.
func (r *Registry) parseFilter(ctx context.Context, userID int64, raw map[string]any, defaultLimit int) storage.SearchFilter {
	filter := storage.SearchFilter{
		Query:     argString(raw, "query"),
		Type:      types.ItemType(argString(raw, "type")),
		Status:    types.ItemStatus(argString(raw, "status")),
		DateField: argString(raw, "date_field"),
		Priority:  types.Priority(argString(raw, "priority")),
		Tags:      argStrings(raw, "tags"),
		Limit:     defaultLimit,
	}
	if limit, ok := argInt64(raw, "limit"); ok && limit > 0 {
		filter.Limit = int(limit)
	}
	filter.DateFrom = parseTimeArg(argString(raw, "date_from"))
	filter.DateTo = parseTimeArg(argString(raw, "date_to"))

	if projectID := r.resolveProject(ctx, userID, raw["project"]); projectID != nil {
		filter.ProjectID = projectID
	}
	return filter
}

func (r *Registry) resolveProject(ctx context.Context, userID int64, project any) *int64 {
	switch v := project.(type) {
	case float64:
		id := int64(v)
		return &id
	case string:
		if v == "" {
			return nil
		}
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			return &id
		}
		if p, err := r.store.GetProjectByName(ctx, v, userID); err == nil {
			return &p.ID
		}
	}
	return nil
}
