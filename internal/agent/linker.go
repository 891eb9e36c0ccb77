package agent

import (
	"context"
	"log"

	"github.com/neuralinbox/neuralinbox/internal/types"
)

// linkSuggestion connects a just-created item (by position in the created
// batch) to an existing item the model saw among the similar candidates.
type linkSuggestion struct {
	NewItemIndex   int    `json:"new_item_index"`
	ExistingItemID int64  `json:"existing_item_id"`
	Reason         string `json:"reason"`
}

// createLinks applies the model's link suggestions. Suggestions with an
// out-of-range index or a missing target id are skipped; storage rejections
// (foreign user, vanished item) are logged and skipped too.
func (a *Agent) createLinks(ctx context.Context, created []*types.Item, suggestions []linkSuggestion) []*types.ItemLink {
	if len(created) == 0 || len(suggestions) == 0 {
		return nil
	}

	var links []*types.ItemLink
	for _, s := range suggestions {
		if s.NewItemIndex < 0 || s.NewItemIndex >= len(created) {
			log.Printf("agent: link suggestion index %d out of range (%d items)", s.NewItemIndex, len(created))
			continue
		}
		if s.ExistingItemID == 0 {
			log.Printf("agent: link suggestion missing existing item id")
			continue
		}

		link, err := a.store.CreateLink(ctx, &types.ItemLink{
			ItemID:        created[s.NewItemIndex].ID,
			RelatedItemID: s.ExistingItemID,
			LinkType:      "related",
			Reason:        firstRunes(s.Reason, maxLinkReason),
		})
		if err != nil {
			log.Printf("agent: failed to create link %d -> %d: %v", created[s.NewItemIndex].ID, s.ExistingItemID, err)
			continue
		}
		links = append(links, link)
	}
	return links
}
