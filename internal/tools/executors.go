package tools

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/neuralinbox/neuralinbox/internal/storage"
	"github.com/neuralinbox/neuralinbox/internal/types"
)

const (
	searchResultLimit = 10
	batchFilterLimit  = 100
	previewLimit      = 5
)

func itemSummary(item *types.Item) map[string]any {
	return map[string]any{
		"id":       item.ID,
		"title":    item.Title,
		"type":     string(item.Type),
		"status":   string(item.Status),
		"due_at":   formatTime(item.DueAt),
		"priority": string(item.Priority),
	}
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func (r *Registry) searchItems(ctx context.Context, userID int64, args map[string]any) map[string]any {
	filter := r.parseFilter(ctx, userID, args, searchResultLimit)
	items, err := r.store.SearchAdvanced(ctx, userID, filter)
	if err != nil {
		return errorResult("Search failed: %v", err)
	}

	results := make([]map[string]any, 0, len(items))
	for _, item := range items {
		results = append(results, itemSummary(item))
	}
	return map[string]any{
		"results":     results,
		"total_count": len(results),
	}
}

func (r *Registry) getItemDetails(ctx context.Context, userID int64, args map[string]any) map[string]any {
	itemID, _ := argInt64(args, "item_id")
	item, err := r.store.GetItem(ctx, itemID, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return errorResult("Item %d not found", itemID)
	}
	if err != nil {
		return errorResult("Failed to load item: %v", err)
	}

	detail := itemSummary(item)
	detail["content"] = item.Content
	detail["due_at_raw"] = item.DueAtRaw
	detail["tags"] = item.Tags
	detail["entities"] = item.Entities
	detail["project_id"] = item.ProjectID
	detail["created_at"] = item.CreatedAt.Format(time.RFC3339)
	return detail
}

// buildItemUpdate translates a tool-call updates object into a storage
// update. Unknown keys are dropped silently; the schema already constrained
// the known ones.
func buildItemUpdate(updates map[string]any) storage.ItemUpdate {
	var upd storage.ItemUpdate
	if s := argString(updates, "status"); s != "" {
		status := types.ItemStatus(s)
		upd.Status = &status
	}
	if s := argString(updates, "priority"); s != "" {
		priority := types.Priority(s)
		upd.Priority = &priority
	}
	if id, ok := argInt64(updates, "project_id"); ok {
		upd.ProjectID = &id
	}
	if _, ok := updates["tags"]; ok {
		tags := argStrings(updates, "tags")
		upd.Tags = &tags
	}
	if s := argString(updates, "due_at"); s != "" {
		upd.DueAt = parseTimeArg(s)
	}
	if s := argString(updates, "due_at_raw"); s != "" {
		upd.DueAtRaw = &s
	}
	return upd
}

func (r *Registry) batchUpdateItems(ctx context.Context, userID int64, args map[string]any) map[string]any {
	filterArgs := argObject(args, "filter")
	updates := argObject(args, "updates")
	if len(updates) == 0 {
		return errorResult("updates is required")
	}

	if argBool(args, "confirmed") {
		token := argString(args, "confirmation_token")
		pending, err := r.checkToken(token, userID, "update")
		if err != nil {
			return errorResult("%v", err)
		}
		count, err := r.store.BatchUpdateItems(ctx, pending.MatchedIDs, userID, buildItemUpdate(pending.Updates))
		if err != nil {
			return errorResult("Batch update failed: %v", err)
		}
		r.confirms.Consume(token)
		return map[string]any{"success": true, "updated_count": count}
	}

	filter := r.parseFilter(ctx, userID, filterArgs, batchFilterLimit)
	items, err := r.store.SearchAdvanced(ctx, userID, filter)
	if err != nil {
		return errorResult("Search failed: %v", err)
	}
	if len(items) == 0 {
		return map[string]any{
			"matched_count":      0,
			"items_preview":      []map[string]any{},
			"needs_confirmation": false,
		}
	}

	token := r.confirms.Put("upd", &PendingOperation{
		Action:     "update",
		UserID:     userID,
		Filter:     filterArgs,
		Updates:    updates,
		MatchedIDs: itemIDs(items),
	})
	return map[string]any{
		"action":             "update",
		"matched_count":      len(items),
		"items_preview":      previewOf(items),
		"needs_confirmation": true,
		"confirmation_token": token,
	}
}

func (r *Registry) batchDeleteItems(ctx context.Context, userID int64, args map[string]any) map[string]any {
	filterArgs := argObject(args, "filter")

	if argBool(args, "confirmed") {
		token := argString(args, "confirmation_token")
		pending, err := r.checkToken(token, userID, "delete")
		if err != nil {
			return errorResult("%v", err)
		}
		count, err := r.store.BatchDeleteItems(ctx, pending.MatchedIDs, userID)
		if err != nil {
			return errorResult("Batch delete failed: %v", err)
		}
		r.confirms.Consume(token)
		return map[string]any{"success": true, "deleted_count": count}
	}

	filter := r.parseFilter(ctx, userID, filterArgs, batchFilterLimit)
	items, err := r.store.SearchAdvanced(ctx, userID, filter)
	if err != nil {
		return errorResult("Search failed: %v", err)
	}
	if len(items) == 0 {
		return map[string]any{
			"matched_count":      0,
			"items_preview":      []map[string]any{},
			"needs_confirmation": false,
		}
	}

	token := r.confirms.Put("del", &PendingOperation{
		Action:     "delete",
		UserID:     userID,
		Filter:     filterArgs,
		MatchedIDs: itemIDs(items),
	})
	return map[string]any{
		"action":             "delete",
		"matched_count":      len(items),
		"items_preview":      previewOf(items),
		"needs_confirmation": true,
		"confirmation_token": token,
	}
}

// checkToken resolves a confirmation token and verifies ownership and action
// class. The preview is the contract: phase B never re-resolves the filter.
func (r *Registry) checkToken(token string, userID int64, action string) (*PendingOperation, error) {
	if token == "" {
		return nil, ErrConfirmationExpired
	}
	pending, err := r.confirms.Get(token)
	if err != nil {
		return nil, err
	}
	if pending.UserID != userID || pending.Action != action {
		return nil, ErrConfirmationExpired
	}
	return pending, nil
}

func itemIDs(items []*types.Item) []int64 {
	ids := make([]int64, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids
}

func previewOf(items []*types.Item) []map[string]any {
	n := len(items)
	if n > previewLimit {
		n = previewLimit
	}
	preview := make([]map[string]any, 0, n)
	for _, item := range items[:n] {
		preview = append(preview, map[string]any{"id": item.ID, "title": item.Title})
	}
	return preview
}

func (r *Registry) manageProjects(ctx context.Context, userID int64, args map[string]any) map[string]any {
	switch action := argString(args, "action"); action {
	case "create":
		return r.projectCreate(ctx, userID, args)
	case "list":
		return r.projectList(ctx, userID)
	case "get":
		return r.projectGet(ctx, userID, args)
	case "rename", "update":
		return r.projectUpdate(ctx, userID, args, action)
	case "delete":
		return r.projectDelete(ctx, userID, args)
	case "move_items":
		return r.projectMoveItems(ctx, userID, args)
	default:
		return errorResult("Unknown action: %s", action)
	}
}

func projectSummary(p *types.Project) map[string]any {
	return map[string]any{
		"id":    p.ID,
		"name":  p.Name,
		"color": p.Color,
		"emoji": p.Emoji,
	}
}

func (r *Registry) projectCreate(ctx context.Context, userID int64, args map[string]any) map[string]any {
	name := argString(args, "name")
	if name == "" {
		return errorResult("name is required for create")
	}
	project, err := r.store.CreateProject(ctx, &types.Project{
		UserID: userID,
		Name:   name,
		Color:  argString(args, "color"),
		Emoji:  argString(args, "emoji"),
	})
	if err != nil {
		return errorResult("Failed to create project: %v", err)
	}
	return map[string]any{"success": true, "project": projectSummary(project)}
}

func (r *Registry) projectList(ctx context.Context, userID int64) map[string]any {
	projects, err := r.store.ListProjects(ctx, userID)
	if err != nil {
		return errorResult("Failed to list projects: %v", err)
	}
	out := make([]map[string]any, 0, len(projects))
	for _, p := range projects {
		out = append(out, projectSummary(p))
	}
	return map[string]any{"projects": out}
}

func (r *Registry) projectGet(ctx context.Context, userID int64, args map[string]any) map[string]any {
	projectID, ok := argInt64(args, "project_id")
	if !ok {
		return errorResult("project_id is required for get")
	}
	project, err := r.store.GetProject(ctx, projectID, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return errorResult("Project %d not found", projectID)
	}
	if err != nil {
		return errorResult("Failed to load project: %v", err)
	}
	count, err := r.store.CountProjectItems(ctx, projectID, userID)
	if err != nil {
		return errorResult("Failed to count project items: %v", err)
	}
	out := projectSummary(project)
	out["items_count"] = count
	return out
}

func (r *Registry) projectUpdate(ctx context.Context, userID int64, args map[string]any, action string) map[string]any {
	projectID, ok := argInt64(args, "project_id")
	if !ok {
		return errorResult("project_id is required for %s", action)
	}

	var upd storage.ProjectUpdate
	if name := argString(args, "name"); name != "" {
		upd.Name = &name
	}
	if action == "rename" {
		if upd.Name == nil {
			return errorResult("project_id and name are required for rename")
		}
	} else {
		if color := argString(args, "color"); color != "" {
			upd.Color = &color
		}
		if emoji := argString(args, "emoji"); emoji != "" {
			upd.Emoji = &emoji
		}
		if upd.Name == nil && upd.Color == nil && upd.Emoji == nil {
			return errorResult("No fields to update")
		}
	}

	project, err := r.store.UpdateProject(ctx, projectID, userID, upd)
	if errors.Is(err, storage.ErrNotFound) {
		return errorResult("Project %d not found", projectID)
	}
	if err != nil {
		return errorResult("Failed to update project: %v", err)
	}
	return map[string]any{"success": true, "project": projectSummary(project)}
}

func (r *Registry) projectDelete(ctx context.Context, userID int64, args map[string]any) map[string]any {
	projectID, ok := argInt64(args, "project_id")
	if !ok {
		return errorResult("project_id is required for delete")
	}

	if argBool(args, "confirmed") {
		token := argString(args, "confirmation_token")
		pending, err := r.checkToken(token, userID, "delete_project")
		if err != nil {
			return errorResult("%v", err)
		}
		deleted, err := r.store.DeleteProject(ctx, pending.MatchedIDs[0], userID)
		if err != nil {
			return errorResult("Failed to delete project: %v", err)
		}
		r.confirms.Consume(token)
		return map[string]any{"success": deleted, "deleted": deleted}
	}

	project, err := r.store.GetProject(ctx, projectID, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return errorResult("Project %d not found", projectID)
	}
	if err != nil {
		return errorResult("Failed to load project: %v", err)
	}
	count, err := r.store.CountProjectItems(ctx, projectID, userID)
	if err != nil {
		return errorResult("Failed to count project items: %v", err)
	}

	token := r.confirms.Put("delp", &PendingOperation{
		Action:     "delete_project",
		UserID:     userID,
		Filter:     map[string]any{"project_id": projectID},
		MatchedIDs: []int64{projectID},
	})
	return map[string]any{
		"action":             "delete_project",
		"project":            map[string]any{"id": project.ID, "name": project.Name},
		"items_count":        count,
		"needs_confirmation": true,
		"confirmation_token": token,
	}
}

func (r *Registry) projectMoveItems(ctx context.Context, userID int64, args map[string]any) map[string]any {
	projectID, ok := argInt64(args, "project_id")
	if !ok {
		return errorResult("project_id is required for move_items")
	}
	var targetID *int64
	if id, ok := argInt64(args, "target_project_id"); ok {
		targetID = &id
	}

	if argBool(args, "confirmed") {
		token := argString(args, "confirmation_token")
		pending, err := r.checkToken(token, userID, "move_items")
		if err != nil {
			return errorResult("%v", err)
		}
		sourceID := pending.MatchedIDs[0]
		var target *int64
		if id, ok := argInt64(pending.Filter, "target_project_id"); ok {
			target = &id
		}
		count, err := r.store.MoveProjectItems(ctx, sourceID, target, userID)
		if err != nil {
			return errorResult("Failed to move items: %v", err)
		}
		r.confirms.Consume(token)
		return map[string]any{"success": true, "moved_count": count}
	}

	count, err := r.store.CountProjectItems(ctx, projectID, userID)
	if err != nil {
		return errorResult("Failed to count project items: %v", err)
	}
	if count == 0 {
		return map[string]any{"matched_count": 0, "needs_confirmation": false}
	}

	pendingFilter := map[string]any{"project_id": projectID}
	if targetID != nil {
		pendingFilter["target_project_id"] = float64(*targetID)
	}
	token := r.confirms.Put("mov", &PendingOperation{
		Action:     "move_items",
		UserID:     userID,
		Filter:     pendingFilter,
		MatchedIDs: []int64{projectID},
	})

	result := map[string]any{
		"action":             "move_items",
		"items_count":        count,
		"needs_confirmation": true,
		"confirmation_token": token,
	}
	if source, err := r.store.GetProject(ctx, projectID, userID); err == nil {
		result["source_project"] = map[string]any{"id": source.ID, "name": source.Name}
	}
	if targetID != nil {
		if target, err := r.store.GetProject(ctx, *targetID, userID); err == nil {
			result["target_project"] = map[string]any{"id": target.ID, "name": target.Name}
		}
	}
	return result
}

func (r *Registry) saveItem(ctx context.Context, userID int64, args map[string]any) map[string]any {
	title := argString(args, "title")
	item := &types.Item{
		UserID:        userID,
		Type:          types.ItemType(argString(args, "type")),
		Status:        types.StatusInbox,
		Title:         title,
		Content:       argString(args, "content"),
		OriginalInput: title,
		Source:        types.SourceAgent,
		DueAt:         parseTimeArg(argString(args, "due_at")),
		DueAtRaw:      argString(args, "due_at_raw"),
		Priority:      types.Priority(argString(args, "priority")),
		Tags:          argStrings(args, "tags"),
	}
	if id, ok := argInt64(args, "project_id"); ok {
		item.ProjectID = &id
	}

	saved, err := r.store.CreateItem(ctx, item)
	if err != nil {
		return errorResult("Failed to create item: %v", err)
	}

	// Embedding is best effort; the item is already saved.
	text := strings.TrimSpace(title + " " + item.Content)
	if vec, err := r.embedder.Embed(ctx, text); err == nil && len(vec) > 0 {
		if err := r.store.SaveEmbedding(ctx, saved.ID, userID, vec); err != nil {
			log.Printf("tools: failed to save embedding for item %d: %v", saved.ID, err)
		}
	}

	return map[string]any{
		"success": true,
		"item": map[string]any{
			"id":         saved.ID,
			"title":      saved.Title,
			"type":       string(saved.Type),
			"project_id": saved.ProjectID,
		},
	}
}
