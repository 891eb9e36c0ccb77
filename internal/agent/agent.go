// Package agent implements the ingestion pipeline: context gathering, LLM
// extraction, persistence, embedding and linking for one inbound message.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/olebedev/when/rules/ru"

	"github.com/neuralinbox/neuralinbox/internal/ai"
	"github.com/neuralinbox/neuralinbox/internal/search"
	"github.com/neuralinbox/neuralinbox/internal/storage"
	"github.com/neuralinbox/neuralinbox/internal/types"
)

const (
	// ProcessTimeout bounds one full pipeline run. On expiry the caller
	// falls back to persisting the verbatim input.
	ProcessTimeout = 30 * time.Second

	recentContextLimit  = 20
	similarContextLimit = 5
	similarScoreFloor   = 0.5

	llmMaxTokens   = 2000
	llmTemperature = 0.3

	defaultTitleRunes = 100
	maxLinkReason     = 200
)

// Error marks a pipeline failure after which the verbatim input should be
// persisted as a fallback note.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string { return fmt.Sprintf("agent %s: %v", e.Stage, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Input is one inbound user message after modality normalization.
type Input struct {
	Text           string
	Source         types.ItemSource
	Attachment     *types.Attachment
	OriginUserName string
}

// Result is what one pipeline run produced.
type Result struct {
	ItemsCreated []*types.Item
	LinksCreated []*types.ItemLink
	ChatResponse string
	Elapsed      time.Duration
}

// IsEmpty reports whether the run produced neither items nor a reply.
func (r *Result) IsEmpty() bool {
	return len(r.ItemsCreated) == 0 && r.ChatResponse == ""
}

// Agent orchestrates the ingestion pipeline.
type Agent struct {
	store    storage.Storage
	chat     ai.Chat
	embedder ai.BatchEmbedder
	engine   *search.Engine
	dates    *when.Parser
	now      func() time.Time
}

// New creates an agent over the given ports.
func New(store storage.Storage, chat ai.Chat, embedder ai.BatchEmbedder, engine *search.Engine) *Agent {
	dates := when.New(nil)
	dates.Add(ru.All...)
	dates.Add(en.All...)
	dates.Add(common.All...)
	return &Agent{
		store:    store,
		chat:     chat,
		embedder: embedder,
		engine:   engine,
		dates:    dates,
		now:      time.Now,
	}
}

// extraction is the JSON object the model answers with.
type extraction struct {
	Items          []itemPayload    `json:"items"`
	ChatResponse   string           `json:"chat_response"`
	SuggestedLinks []linkSuggestion `json:"suggested_links"`
}

type itemPayload struct {
	Type      string   `json:"type"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Tags      []string `json:"tags"`
	ProjectID *int64   `json:"project_id"`
	DueAtRaw  string   `json:"due_at_raw"`
	DueAtISO  string   `json:"due_at_iso"`
	Priority  string   `json:"priority"`
}

// Process runs the full pipeline for one message: gather context, extract
// with the LLM, persist items, embed them and create suggested links.
func (a *Agent) Process(ctx context.Context, user *types.User, in Input) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, ProcessTimeout)
	defer cancel()
	start := a.now()

	pc, err := a.gatherContext(ctx, user, in.Text)
	if err != nil {
		return nil, &Error{Stage: "context", Err: err}
	}

	model := ai.SelectModel(in.Text, in.Source)
	ext, err := a.extract(ctx, user, in.Text, model, pc)
	if err != nil {
		return nil, &Error{Stage: "extract", Err: err}
	}

	if len(ext.Items) == 0 {
		return &Result{ChatResponse: ext.ChatResponse, Elapsed: a.now().Sub(start)}, nil
	}

	created := a.persistItems(ctx, user, in, ext.Items, pc.Projects)
	a.embedItems(ctx, created)
	links := a.createLinks(ctx, created, ext.SuggestedLinks)

	return &Result{
		ItemsCreated: created,
		LinksCreated: links,
		ChatResponse: ext.ChatResponse,
		Elapsed:      a.now().Sub(start),
	}, nil
}

// FallbackPersist stores the verbatim input as a plain inbox note. It is the
// last resort after a pipeline failure, so the user's text is never lost.
func (a *Agent) FallbackPersist(ctx context.Context, user *types.User, in Input) (*types.Item, error) {
	item := &types.Item{
		UserID:         user.UserID,
		Type:           types.TypeNote,
		Status:         types.StatusInbox,
		Title:          firstRunes(in.Text, defaultTitleRunes),
		Content:        in.Text,
		OriginalInput:  in.Text,
		Source:         in.Source,
		OriginUserName: in.OriginUserName,
	}
	applyAttachment(item, in.Attachment)
	return a.store.CreateItem(ctx, item)
}

func (a *Agent) gatherContext(ctx context.Context, user *types.User, text string) (promptContext, error) {
	pc := promptContext{
		Projects: []promptProject{},
		Recent:   []promptItem{},
		Similar:  []promptSimilar{},
	}

	projects, err := a.store.ListProjects(ctx, user.UserID)
	if err != nil {
		return pc, fmt.Errorf("failed to list projects: %w", err)
	}
	for _, p := range projects {
		pc.Projects = append(pc.Projects, promptProject{ID: p.ID, Name: p.Name, Emoji: p.Emoji})
	}

	recent, err := a.store.RecentItems(ctx, user.UserID, recentContextLimit)
	if err != nil {
		return pc, fmt.Errorf("failed to load recent items: %w", err)
	}
	for _, item := range recent {
		pc.Recent = append(pc.Recent, promptItem{
			ID:        item.ID,
			Title:     item.Title,
			Type:      string(item.Type),
			Tags:      item.Tags,
			CreatedAt: item.CreatedAt.Format("2006-01-02"),
		})
	}

	// Similar-item search is best effort: candidates for linking only.
	for _, r := range a.engine.Search(ctx, user.UserID, text, similarContextLimit, "", "") {
		if r.VectorScore <= similarScoreFloor {
			continue
		}
		pc.Similar = append(pc.Similar, promptSimilar{
			ID:    r.ItemID,
			Title: r.Title,
			Type:  string(r.Type),
			Score: float64(int(r.VectorScore*100)) / 100,
		})
	}
	return pc, nil
}

func (a *Agent) extract(ctx context.Context, user *types.User, text, model string, pc promptContext) (*extraction, error) {
	resp, err := a.chat.Chat(ctx, ai.ChatRequest{
		Model:       model,
		System:      buildPrompt(a.now(), user, pc),
		Messages:    []ai.Message{{Role: ai.RoleUser, Content: text}},
		JSONMode:    true,
		MaxTokens:   llmMaxTokens,
		Temperature: llmTemperature,
	})
	if err != nil {
		return nil, err
	}
	return decodeExtraction(resp.Content)
}

func decodeExtraction(content string) (*extraction, error) {
	s := strings.TrimSpace(content)
	// Some providers wrap JSON-mode output in a markdown fence anyway.
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	var ext extraction
	if err := json.Unmarshal([]byte(s), &ext); err != nil {
		return nil, fmt.Errorf("invalid JSON from model: %w", err)
	}
	return &ext, nil
}

func (a *Agent) persistItems(ctx context.Context, user *types.User, in Input, payloads []itemPayload, projects []promptProject) []*types.Item {
	created := make([]*types.Item, 0, len(payloads))
	for _, p := range payloads {
		item := a.buildItem(user, in, p, projects)
		saved, err := a.store.CreateItem(ctx, item)
		if err != nil {
			log.Printf("agent: failed to create item %q for user %d: %v", item.Title, user.UserID, err)
			continue
		}
		created = append(created, saved)
	}
	return created
}

func (a *Agent) buildItem(user *types.User, in Input, p itemPayload, projects []promptProject) *types.Item {
	item := &types.Item{
		UserID:         user.UserID,
		Type:           types.ItemType(p.Type),
		Status:         types.StatusInbox,
		Title:          p.Title,
		Content:        p.Content,
		OriginalInput:  in.Text,
		Source:         in.Source,
		DueAtRaw:       p.DueAtRaw,
		Tags:           p.Tags,
		OriginUserName: in.OriginUserName,
	}
	if !item.Type.IsValid() {
		item.Type = types.TypeNote
	}
	if item.Title == "" {
		item.Title = firstRunes(in.Text, defaultTitleRunes)
	}
	if item.Content == "" {
		item.Content = in.Text
	}
	if pr := types.Priority(p.Priority); pr.IsValid() {
		item.Priority = pr
	}
	// The model only sees the user's own projects; anything else is a
	// hallucinated id and gets dropped.
	if p.ProjectID != nil {
		for _, proj := range projects {
			if proj.ID == *p.ProjectID {
				item.ProjectID = p.ProjectID
				break
			}
		}
	}
	item.DueAt = a.resolveDue(p.DueAtISO, p.DueAtRaw, user)
	applyAttachment(item, in.Attachment)
	return item
}

// resolveDue turns the model's date output into a concrete time. RFC3339
// first; naive timestamps are stamped with the user's timezone; as a last
// resort the raw natural-language phrase goes through the date parser.
func (a *Agent) resolveDue(iso, raw string, user *types.User) *time.Time {
	loc := user.Location()
	if iso != "" {
		if t, err := time.Parse(time.RFC3339, iso); err == nil {
			return &t
		}
		for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.ParseInLocation(layout, iso, loc); err == nil {
				return &t
			}
		}
	}
	if raw != "" {
		if r, err := a.dates.Parse(raw, a.now().In(loc)); err == nil && r != nil {
			return &r.Time
		}
	}
	return nil
}

func (a *Agent) embedItems(ctx context.Context, items []*types.Item) {
	if len(items) == 0 {
		return
	}
	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = strings.TrimSpace(item.Title + " " + item.Content)
	}

	vectors, err := a.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		// Non-fatal: items stay searchable through full text.
		log.Printf("agent: failed to embed %d items: %v", len(items), err)
		return
	}
	for i, vec := range vectors {
		if len(vec) == 0 {
			continue
		}
		if err := a.store.SaveEmbedding(ctx, items[i].ID, items[i].UserID, vec); err != nil {
			log.Printf("agent: failed to save embedding for item %d: %v", items[i].ID, err)
		}
	}
}

func applyAttachment(item *types.Item, att *types.Attachment) {
	if att == nil {
		return
	}
	item.AttachmentFileID = att.FileID
	item.AttachmentType = att.Kind
	item.AttachmentFilename = att.Filename
}

func firstRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
