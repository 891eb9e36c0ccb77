package router

import (
	"regexp"
	"strings"
)

// Verbs and phrases that mean "search or manage", not "capture". The
// ingestion endpoint is a black hole for data; anything that looks like a
// command is redirected to the companion app.
var redirectPhrases = []string{
	// Search.
	"найди", "найти", "покажи", "поиск",
	"что у меня", "какие", "список", "где",
	"показать", "все мои", "мои задачи", "мои заметки",

	// Project management.
	"создай проект", "новый проект", "удали проект",
	"переименуй проект", "измени проект",

	// Item management.
	"удали", "удалить", "измени", "изменить",
	"редактируй", "редактировать", "отредактируй",
	"перенеси", "перенести", "переместить",
	"отметь", "отметить", "завершить", "заверши",

	// Send and export.
	"отправь", "отправить", "пришли", "прислать",
	"экспорт", "экспортируй", "скачать", "скачай",

	// View and open.
	"открой", "открыть", "просмотр", "просмотреть",

	// Status and settings.
	"статус", "настройки", "настроить", "статистика",
}

// \b does not work for Cyrillic in RE2 (word chars are ASCII), so the
// boundary is expressed as non-letter-or-edge explicitly.
var redirectRegex = regexp.MustCompile(
	`(?i)(?:^|\P{L})(?:` + strings.Join(redirectPhrases, "|") + `)(?:$|\P{L})`)

// ShouldRedirect reports whether the text is a management or search command.
func ShouldRedirect(text string) bool {
	return redirectRegex.MatchString(text)
}

func redirectReply() *Reply {
	return &Reply{
		Text: "Я сохраняю всё, что ты отправляешь\nДля поиска и управления открой приложение",
		Buttons: []Button{
			{Label: "Открыть приложение", CallbackID: "open_webapp"},
		},
	}
}
