// Package router is the ingestion front-end: it normalizes inbound transport
// envelopes (text, voice, photo, document, forward) into agent input,
// redirects management verbs to the companion app, and formats the agent's
// result back into a reply envelope.
package router

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/neuralinbox/neuralinbox/internal/agent"
	"github.com/neuralinbox/neuralinbox/internal/ai"
	"github.com/neuralinbox/neuralinbox/internal/extract"
	"github.com/neuralinbox/neuralinbox/internal/history"
	"github.com/neuralinbox/neuralinbox/internal/storage"
	"github.com/neuralinbox/neuralinbox/internal/types"
)

// Input limits. Oversized inputs are rejected before any provider call.
const (
	MaxVoiceDurationSec = 300
	MaxFileBytes        = 25 << 20
)

// ErrInputRejected marks inputs refused by validation. The error text is the
// user-facing explanation.
var ErrInputRejected = errors.New("input rejected")

// Envelope kinds.
type Kind string

const (
	KindText     Kind = "text"
	KindVoice    Kind = "voice"
	KindPhoto    Kind = "photo"
	KindDocument Kind = "document"
	KindForward  Kind = "forward"
)

// Envelope is one inbound message from the transport adapter. Data carries
// the downloaded file bytes for voice, photo and document kinds.
type Envelope struct {
	UserID     int64
	Kind       Kind
	Text       string
	Caption    string
	Data       []byte
	Duration   int // seconds, voice only
	Filename   string
	Attachment *types.Attachment
	FromName   string
}

// Button is one inline action the transport renders under a reply.
type Button struct {
	Label      string
	CallbackID string
}

// Reply is what the transport sends back to the user.
type Reply struct {
	Text    string
	Buttons []Button
}

// Router dispatches envelopes to the ingestion pipeline.
type Router struct {
	store       storage.Storage
	agent       *agent.Agent
	transcriber ai.Transcriber
	vision      ai.Vision
	urls        extract.URLFetcher
	docs        extract.DocumentExtractor
	history     *history.Store
}

// New wires a router over its ports. urls and docs may be nil when the
// deployment has no extraction backends; the corresponding enrichment is
// skipped.
func New(
	store storage.Storage,
	ag *agent.Agent,
	transcriber ai.Transcriber,
	vision ai.Vision,
	urls extract.URLFetcher,
	docs extract.DocumentExtractor,
	hist *history.Store,
) *Router {
	return &Router{
		store:       store,
		agent:       ag,
		transcriber: transcriber,
		vision:      vision,
		urls:        urls,
		docs:        docs,
		history:     hist,
	}
}

// Handle processes one envelope. A nil reply with nil error means there is
// nothing to send (the agent produced neither items nor a response). A
// rejection is returned as an error wrapping ErrInputRejected whose text is
// safe to show the user.
func (r *Router) Handle(ctx context.Context, env *Envelope) (*Reply, error) {
	user, err := r.store.GetOrCreateUser(ctx, env.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user %d: %w", env.UserID, err)
	}

	switch env.Kind {
	case KindText:
		return r.handleText(ctx, user, env)
	case KindVoice:
		return r.handleVoice(ctx, user, env)
	case KindPhoto:
		return r.handlePhoto(ctx, user, env)
	case KindDocument:
		return r.handleDocument(ctx, user, env)
	case KindForward:
		return r.handleForward(ctx, user, env)
	default:
		return nil, fmt.Errorf("%w: неизвестный тип сообщения", ErrInputRejected)
	}
}

func (r *Router) handleText(ctx context.Context, user *types.User, env *Envelope) (*Reply, error) {
	text := strings.TrimSpace(env.Text)
	if text == "" {
		return nil, nil
	}

	// The ingestion endpoint only accepts data. Management and search verbs
	// go to the companion app, where the tool loop lives.
	if ShouldRedirect(text) {
		return redirectReply(), nil
	}

	// Enrich the first URL in the message with its fetched content so the
	// extraction model sees what the link points at.
	if urls := extract.ExtractURLs(text); len(urls) > 0 && r.urls != nil {
		if content, err := r.urls.FetchURL(ctx, urls[0]); err != nil {
			log.Printf("router: failed to fetch %s: %v", urls[0], err)
		} else if content.Text != "" {
			text = text + "\n\n--- Содержимое ссылки ---\n" + content.Text
		}
	}

	return r.runAgent(ctx, user, agent.Input{
		Text:           text,
		Source:         types.SourceText,
		OriginUserName: env.FromName,
	})
}

func (r *Router) handleVoice(ctx context.Context, user *types.User, env *Envelope) (*Reply, error) {
	if env.Duration > MaxVoiceDurationSec {
		return nil, fmt.Errorf("%w: голосовое сообщение слишком длинное (%d сек), максимум %d минут",
			ErrInputRejected, env.Duration, MaxVoiceDurationSec/60)
	}

	filename := env.Filename
	if filename == "" {
		filename = "voice.ogg"
	}
	text, err := r.transcriber.Transcribe(ctx, env.Data, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to transcribe voice message: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: не удалось распознать голосовое сообщение", ErrInputRejected)
	}

	return r.runAgent(ctx, user, agent.Input{
		Text:           text,
		Source:         types.SourceVoice,
		OriginUserName: env.FromName,
	})
}

func (r *Router) handlePhoto(ctx context.Context, user *types.User, env *Envelope) (*Reply, error) {
	description, err := r.vision.DescribeImage(ctx, env.Data, env.Caption)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze photo: %w", err)
	}

	return r.runAgent(ctx, user, agent.Input{
		Text:           description,
		Source:         types.SourcePhoto,
		Attachment:     env.Attachment,
		OriginUserName: env.FromName,
	})
}

func (r *Router) handleDocument(ctx context.Context, user *types.User, env *Envelope) (*Reply, error) {
	if len(env.Data) > MaxFileBytes {
		return nil, fmt.Errorf("%w: файл слишком большой (%dMB), максимум %dMB",
			ErrInputRejected, len(env.Data)>>20, MaxFileBytes>>20)
	}
	if r.docs == nil {
		return nil, fmt.Errorf("%w: обработка документов недоступна", ErrInputRejected)
	}

	content, err := r.docs.ExtractDocument(ctx, env.Data, env.Filename)
	switch {
	case errors.Is(err, extract.ErrDocumentTooLarge):
		return nil, fmt.Errorf("%w: файл слишком большой", ErrInputRejected)
	case errors.Is(err, extract.ErrTooManyPages):
		return nil, fmt.Errorf("%w: в документе слишком много страниц", ErrInputRejected)
	case err != nil:
		return nil, fmt.Errorf("%w: не удалось извлечь текст из документа", ErrInputRejected)
	}

	return r.runAgent(ctx, user, agent.Input{
		Text:           content.Text,
		Source:         types.SourcePDF,
		Attachment:     env.Attachment,
		OriginUserName: env.FromName,
	})
}

func (r *Router) handleForward(ctx context.Context, user *types.User, env *Envelope) (*Reply, error) {
	text := strings.TrimSpace(env.Text)
	if text == "" {
		text = strings.TrimSpace(env.Caption)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: переслано, но не удалось извлечь текст", ErrInputRejected)
	}

	return r.runAgent(ctx, user, agent.Input{
		Text:           text,
		Source:         types.SourceForward,
		OriginUserName: env.FromName,
	})
}

// runAgent drives the pipeline and formats the result. A pipeline failure
// never loses the input: the verbatim text is persisted as an inbox note.
func (r *Router) runAgent(ctx context.Context, user *types.User, in agent.Input) (*Reply, error) {
	if r.history != nil {
		r.history.Record(user.UserID, "user", in.Text)
	}

	res, err := r.agent.Process(ctx, user, in)
	if err != nil {
		log.Printf("router: agent failed for user %d: %v", user.UserID, err)
		return r.fallback(ctx, user, in)
	}

	reply := formatResult(res, user)
	if reply != nil && r.history != nil {
		r.history.Record(user.UserID, "assistant", reply.Text)
	}
	return reply, nil
}

func (r *Router) fallback(ctx context.Context, user *types.User, in agent.Input) (*Reply, error) {
	// The pipeline deadline may already have expired; the rescue write gets
	// a fresh context.
	item, err := r.agent.FallbackPersist(context.WithoutCancel(ctx), user, in)
	if err != nil {
		log.Printf("router: fallback persist failed for user %d: %v", user.UserID, err)
		return &Reply{Text: "❌ Ошибка сохранения"}, nil
	}
	return &Reply{
		Text:    "⚠️ Ошибка обработки, но я сохранил оригинал в Inbox",
		Buttons: []Button{deleteButton(item.ID)},
	}, nil
}
