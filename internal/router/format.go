package router

import (
	"fmt"
	"strings"

	"github.com/neuralinbox/neuralinbox/internal/agent"
	"github.com/neuralinbox/neuralinbox/internal/types"
)

const multiItemTitleRunes = 50

var typeEmoji = map[types.ItemType]string{
	types.TypeTask:     "✅",
	types.TypeIdea:     "💡",
	types.TypeNote:     "📝",
	types.TypeResource: "🔗",
	types.TypeContact:  "👤",
	types.TypeEvent:    "📅",
}

var typeLabel = map[types.ItemType]string{
	types.TypeTask:     "Задача",
	types.TypeIdea:     "Идея",
	types.TypeNote:     "Заметка",
	types.TypeResource: "Ресурс",
	types.TypeContact:  "Контакт",
	types.TypeEvent:    "Событие",
}

func deleteButton(itemID int64) Button {
	return Button{Label: "🗑 Удалить", CallbackID: fmt.Sprintf("delete_item:%d", itemID)}
}

// formatResult turns a pipeline result into a reply envelope, or nil when
// there is nothing to say.
func formatResult(res *agent.Result, user *types.User) *Reply {
	if res.IsEmpty() {
		return nil
	}

	if len(res.ItemsCreated) == 0 {
		return &Reply{Text: res.ChatResponse}
	}

	text := formatItems(res.ItemsCreated, len(res.LinksCreated), user)
	if res.ChatResponse != "" {
		text += "\n\n" + res.ChatResponse
	}

	reply := &Reply{Text: text}
	if len(res.ItemsCreated) == 1 {
		reply.Buttons = []Button{deleteButton(res.ItemsCreated[0].ID)}
	}
	return reply
}

func formatItems(items []*types.Item, links int, user *types.User) string {
	if len(items) == 1 {
		return formatSingleItem(items[0], links, user)
	}

	lines := []string{fmt.Sprintf("✨ Создано %d записей:", len(items))}
	for _, item := range items {
		emoji := typeEmoji[item.Type]
		if emoji == "" {
			emoji = "📝"
		}
		lines = append(lines, fmt.Sprintf("  %s %s", emoji, firstRunes(item.Title, multiItemTitleRunes)))
	}
	if links > 0 {
		lines = append(lines, fmt.Sprintf("\n🔗 Создано %d связей", links))
	}
	return strings.Join(lines, "\n")
}

func formatSingleItem(item *types.Item, links int, user *types.User) string {
	emoji := typeEmoji[item.Type]
	if emoji == "" {
		emoji = "📝"
	}
	label := typeLabel[item.Type]
	if label == "" {
		label = "Запись"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %s", emoji, label, item.Title)

	// due_at is stored in UTC and shown in the owner's timezone.
	if item.DueAt != nil {
		fmt.Fprintf(&b, "\n📅 Срок: %s", item.DueAt.In(user.Location()).Format("02.01.2006 15:04"))
	} else if item.DueAtRaw != "" {
		fmt.Fprintf(&b, "\n📅 Срок: %s", item.DueAtRaw)
	}

	if len(item.Tags) > 0 {
		fmt.Fprintf(&b, "\n🏷️ %s", strings.Join(item.Tags, " "))
	}
	if links > 0 {
		fmt.Fprintf(&b, "\n🔗 Связано с %d записями", links)
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
