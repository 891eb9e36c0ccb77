package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/neuralinbox/neuralinbox/internal/storage"
	"github.com/neuralinbox/neuralinbox/internal/types"
)

const storageScopeName = "github.com/neuralinbox/neuralinbox/storage"

// InstrumentedStorage wraps storage.Storage with OTel tracing and metrics.
// Every method gets a span and is counted in ninbox.storage.* metrics.
// Use WrapStorage to create one; it returns the original store unchanged when
// telemetry is disabled.
type InstrumentedStorage struct {
	inner  storage.Storage
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// WrapStorage returns s decorated with OTel instrumentation.
// When telemetry is disabled, s is returned as-is with zero overhead.
func WrapStorage(s storage.Storage) storage.Storage {
	if !Enabled() {
		return s
	}
	m := Meter(storageScopeName)
	ops, _ := m.Int64Counter("ninbox.storage.operations",
		metric.WithDescription("Total storage operations executed"),
	)
	dur, _ := m.Float64Histogram("ninbox.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("ninbox.storage.errors",
		metric.WithDescription("Total storage operation errors"),
	)
	return &InstrumentedStorage{
		inner:  s,
		tracer: Tracer(storageScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
	}
}

// op starts a span and records a metric for the named storage operation.
func (s *InstrumentedStorage) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "storage."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedStorage) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

func userAttr(userID int64) attribute.KeyValue {
	return attribute.Int64("ninbox.user.id", userID)
}

// Users

func (s *InstrumentedStorage) GetOrCreateUser(ctx context.Context, userID int64) (*types.User, error) {
	ctx, span, t := s.op(ctx, "GetOrCreateUser", userAttr(userID))
	v, err := s.inner.GetOrCreateUser(ctx, userID)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) GetUser(ctx context.Context, userID int64) (*types.User, error) {
	ctx, span, t := s.op(ctx, "GetUser", userAttr(userID))
	v, err := s.inner.GetUser(ctx, userID)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) UpdateUser(ctx context.Context, userID int64, timezone, language *string, settings map[string]any, onboardingDone *bool) (*types.User, error) {
	ctx, span, t := s.op(ctx, "UpdateUser", userAttr(userID))
	v, err := s.inner.UpdateUser(ctx, userID, timezone, language, settings, onboardingDone)
	s.done(ctx, span, t, err)
	return v, err
}

// Item CRUD

func (s *InstrumentedStorage) CreateItem(ctx context.Context, item *types.Item) (*types.Item, error) {
	attrs := []attribute.KeyValue{
		userAttr(item.UserID),
		attribute.String("ninbox.item.type", string(item.Type)),
	}
	ctx, span, t := s.op(ctx, "CreateItem", attrs...)
	v, err := s.inner.CreateItem(ctx, item)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) GetItem(ctx context.Context, itemID, userID int64) (*types.Item, error) {
	attrs := []attribute.KeyValue{userAttr(userID), attribute.Int64("ninbox.item.id", itemID)}
	ctx, span, t := s.op(ctx, "GetItem", attrs...)
	v, err := s.inner.GetItem(ctx, itemID, userID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) UpdateItem(ctx context.Context, itemID, userID int64, upd storage.ItemUpdate) (*types.Item, error) {
	attrs := []attribute.KeyValue{userAttr(userID), attribute.Int64("ninbox.item.id", itemID)}
	ctx, span, t := s.op(ctx, "UpdateItem", attrs...)
	v, err := s.inner.UpdateItem(ctx, itemID, userID, upd)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) CompleteItem(ctx context.Context, itemID, userID int64) (*types.Item, *types.Item, error) {
	attrs := []attribute.KeyValue{userAttr(userID), attribute.Int64("ninbox.item.id", itemID)}
	ctx, span, t := s.op(ctx, "CompleteItem", attrs...)
	done, next, err := s.inner.CompleteItem(ctx, itemID, userID)
	if next != nil {
		span.SetAttributes(attribute.Int64("ninbox.item.next_occurrence", next.ID))
	}
	s.done(ctx, span, t, err, attrs...)
	return done, next, err
}

func (s *InstrumentedStorage) DeleteItem(ctx context.Context, itemID, userID int64) (bool, error) {
	attrs := []attribute.KeyValue{userAttr(userID), attribute.Int64("ninbox.item.id", itemID)}
	ctx, span, t := s.op(ctx, "DeleteItem", attrs...)
	v, err := s.inner.DeleteItem(ctx, itemID, userID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) BatchUpdateItems(ctx context.Context, itemIDs []int64, userID int64, upd storage.ItemUpdate) (int64, error) {
	attrs := []attribute.KeyValue{userAttr(userID), attribute.Int("ninbox.item.count", len(itemIDs))}
	ctx, span, t := s.op(ctx, "BatchUpdateItems", attrs...)
	v, err := s.inner.BatchUpdateItems(ctx, itemIDs, userID, upd)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) BatchDeleteItems(ctx context.Context, itemIDs []int64, userID int64) (int64, error) {
	attrs := []attribute.KeyValue{userAttr(userID), attribute.Int("ninbox.item.count", len(itemIDs))}
	ctx, span, t := s.op(ctx, "BatchDeleteItems", attrs...)
	v, err := s.inner.BatchDeleteItems(ctx, itemIDs, userID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) SaveEmbedding(ctx context.Context, itemID, userID int64, embedding []float32) error {
	attrs := []attribute.KeyValue{userAttr(userID), attribute.Int64("ninbox.item.id", itemID)}
	ctx, span, t := s.op(ctx, "SaveEmbedding", attrs...)
	err := s.inner.SaveEmbedding(ctx, itemID, userID, embedding)
	s.done(ctx, span, t, err, attrs...)
	return err
}

// Item queries

func (s *InstrumentedStorage) ListItems(ctx context.Context, userID int64, filter storage.ListFilter) ([]*types.Item, int64, error) {
	ctx, span, t := s.op(ctx, "ListItems", userAttr(userID))
	items, total, err := s.inner.ListItems(ctx, userID, filter)
	s.done(ctx, span, t, err)
	return items, total, err
}

func (s *InstrumentedStorage) SearchAdvanced(ctx context.Context, userID int64, filter storage.SearchFilter) ([]*types.Item, error) {
	ctx, span, t := s.op(ctx, "SearchAdvanced", userAttr(userID))
	v, err := s.inner.SearchAdvanced(ctx, userID, filter)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) RecentItems(ctx context.Context, userID int64, limit int) ([]*types.Item, error) {
	ctx, span, t := s.op(ctx, "RecentItems", userAttr(userID))
	v, err := s.inner.RecentItems(ctx, userID, limit)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) AllTasks(ctx context.Context, userID int64) ([]*types.Item, error) {
	ctx, span, t := s.op(ctx, "AllTasks", userAttr(userID))
	v, err := s.inner.AllTasks(ctx, userID)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) TasksWithDueDates(ctx context.Context, userID int64, from, to *time.Time) ([]*types.Item, error) {
	ctx, span, t := s.op(ctx, "TasksWithDueDates", userAttr(userID))
	v, err := s.inner.TasksWithDueDates(ctx, userID, from, to)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) DueWindow(ctx context.Context, from, to time.Time) ([]storage.DueItem, error) {
	ctx, span, t := s.op(ctx, "DueWindow")
	v, err := s.inner.DueWindow(ctx, from, to)
	span.SetAttributes(attribute.Int("ninbox.reminder.due_count", len(v)))
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) MarkReminded(ctx context.Context, itemID, userID int64, remindAt time.Time) error {
	attrs := []attribute.KeyValue{userAttr(userID), attribute.Int64("ninbox.item.id", itemID)}
	ctx, span, t := s.op(ctx, "MarkReminded", attrs...)
	err := s.inner.MarkReminded(ctx, itemID, userID, remindAt)
	s.done(ctx, span, t, err, attrs...)
	return err
}

// Search primitives

func (s *InstrumentedStorage) FTSSearch(ctx context.Context, userID int64, query string, limit int, typeFilter types.ItemType, statusFilter types.ItemStatus) ([]storage.FTSResult, error) {
	ctx, span, t := s.op(ctx, "FTSSearch", userAttr(userID))
	v, err := s.inner.FTSSearch(ctx, userID, query, limit, typeFilter, statusFilter)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) VectorCandidates(ctx context.Context, userID int64, typeFilter types.ItemType, statusFilter types.ItemStatus) ([]storage.VectorCandidate, error) {
	ctx, span, t := s.op(ctx, "VectorCandidates", userAttr(userID))
	v, err := s.inner.VectorCandidates(ctx, userID, typeFilter, statusFilter)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) SubstringSearch(ctx context.Context, userID int64, query string, limit int, typeFilter types.ItemType, statusFilter types.ItemStatus) ([]storage.FTSResult, error) {
	ctx, span, t := s.op(ctx, "SubstringSearch", userAttr(userID))
	v, err := s.inner.SubstringSearch(ctx, userID, query, limit, typeFilter, statusFilter)
	s.done(ctx, span, t, err)
	return v, err
}

// Projects

func (s *InstrumentedStorage) CreateProject(ctx context.Context, project *types.Project) (*types.Project, error) {
	ctx, span, t := s.op(ctx, "CreateProject", userAttr(project.UserID))
	v, err := s.inner.CreateProject(ctx, project)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) GetProject(ctx context.Context, projectID, userID int64) (*types.Project, error) {
	ctx, span, t := s.op(ctx, "GetProject", userAttr(userID))
	v, err := s.inner.GetProject(ctx, projectID, userID)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) GetProjectByName(ctx context.Context, name string, userID int64) (*types.Project, error) {
	ctx, span, t := s.op(ctx, "GetProjectByName", userAttr(userID))
	v, err := s.inner.GetProjectByName(ctx, name, userID)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) ListProjects(ctx context.Context, userID int64) ([]*types.Project, error) {
	ctx, span, t := s.op(ctx, "ListProjects", userAttr(userID))
	v, err := s.inner.ListProjects(ctx, userID)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) UpdateProject(ctx context.Context, projectID, userID int64, upd storage.ProjectUpdate) (*types.Project, error) {
	ctx, span, t := s.op(ctx, "UpdateProject", userAttr(userID))
	v, err := s.inner.UpdateProject(ctx, projectID, userID, upd)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) DeleteProject(ctx context.Context, projectID, userID int64) (bool, error) {
	ctx, span, t := s.op(ctx, "DeleteProject", userAttr(userID))
	v, err := s.inner.DeleteProject(ctx, projectID, userID)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) CountProjectItems(ctx context.Context, projectID, userID int64) (int64, error) {
	ctx, span, t := s.op(ctx, "CountProjectItems", userAttr(userID))
	v, err := s.inner.CountProjectItems(ctx, projectID, userID)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) MoveProjectItems(ctx context.Context, projectID int64, targetProjectID *int64, userID int64) (int64, error) {
	ctx, span, t := s.op(ctx, "MoveProjectItems", userAttr(userID))
	v, err := s.inner.MoveProjectItems(ctx, projectID, targetProjectID, userID)
	s.done(ctx, span, t, err)
	return v, err
}

// Links

func (s *InstrumentedStorage) CreateLink(ctx context.Context, link *types.ItemLink) (*types.ItemLink, error) {
	ctx, span, t := s.op(ctx, "CreateLink")
	v, err := s.inner.CreateLink(ctx, link)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) GetItemLinks(ctx context.Context, itemID, userID int64) ([]*types.ItemLink, error) {
	ctx, span, t := s.op(ctx, "GetItemLinks", userAttr(userID))
	v, err := s.inner.GetItemLinks(ctx, itemID, userID)
	s.done(ctx, span, t, err)
	return v, err
}

// Lifecycle

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}
