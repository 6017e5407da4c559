// Package service is the single entry point for changing an event. Every
// request is checked against the folded state under the event's write lock,
// appended to the ledger, and the recomputed state is pushed to the index.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"registrar/internal/event/dedup"
	"registrar/internal/event/eventconfig"
	"registrar/internal/event/fold"
	"registrar/internal/event/metrics"
	"registrar/internal/event/models"
	"registrar/internal/event/store/ledger"
	"registrar/internal/event/trigger"
	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/platform/sentinel"
	"registrar/pkg/requestcontext"
)

// SystemUser authors actions the service appends on its own behalf.
const SystemUser = "system"

type Ledger interface {
	CreateEvent(ctx context.Context, event *models.Event) error
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	ListActions(ctx context.Context, id string) ([]models.Action, error)
	EventIDs(ctx context.Context) ([]string, error)
	Append(ctx context.Context, eventID string, guard ledger.Guard, actions ...models.Action) ([]models.Action, error)
}

type Indexer interface {
	Index(ctx context.Context, event models.IndexedEvent) error
}

type Searcher interface {
	Search(ctx context.Context, q models.SearchQuery) ([]models.IndexedEvent, error)
}

type IdempotencyStore interface {
	Get(ctx context.Context, eventID, key string) (*models.StoredResult, bool, error)
	Put(ctx context.Context, eventID, key string, result models.StoredResult) error
}

type Trigger interface {
	Trigger(ctx context.Context, req trigger.Request) (trigger.Response, error)
}

type DuplicateDetector interface {
	Detect(ctx context.Context, subject dedup.Subject, rules []dedup.Rule, evalCtx dedup.Context) ([]dedup.Match, error)
}

// Service orchestrates the ledger, the confirmation webhook, duplicate
// detection and index publication.
type Service struct {
	ledger      Ledger
	configs     *eventconfig.Registry
	trigger     Trigger
	indexer     Indexer
	searcher    Searcher
	idempotency IdempotencyStore
	detector    DuplicateDetector
	candidates  dedup.CandidateSource
	logger      *slog.Logger
	metrics     *metrics.Metrics
	newID       func() string
	clock       func() time.Time
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTrigger(t Trigger) Option {
	return func(s *Service) {
		s.trigger = t
	}
}

func WithIndexer(i Indexer) Option {
	return func(s *Service) {
		s.indexer = i
	}
}

func WithSearcher(q Searcher) Option {
	return func(s *Service) {
		s.searcher = q
	}
}

func WithIdempotency(store IdempotencyStore) Option {
	return func(s *Service) {
		s.idempotency = store
	}
}

// WithDuplicateDetection enables duplicate checks. source supplies candidate
// data when duplicates are dismissed.
func WithDuplicateDetection(detector DuplicateDetector, source dedup.CandidateSource) Option {
	return func(s *Service) {
		s.detector = detector
		s.candidates = source
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

// WithClock overrides the request time used for new actions.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		s.clock = fn
	}
}

// New constructs a Service.
func New(l Ledger, configs *eventconfig.Registry, opts ...Option) *Service {
	s := &Service{
		ledger:  l,
		configs: configs,
		logger:  slog.Default(),
		newID:   func() string { return uuid.Must(uuid.NewV7()).String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateEvent starts a new event owned and assigned to the caller.
func (s *Service) CreateEvent(ctx context.Context, eventType string) (*models.EventView, error) {
	user, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	if eventType == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "event type is required")
	}
	if _, ok := s.configs.Get(eventType); !ok {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown event type: "+eventType)
	}

	now := s.now(ctx)
	event := &models.Event{
		ID:        s.newID(),
		Type:      eventType,
		CreatedAt: now,
		Actions: []models.Action{
			{ID: s.newID(), Type: models.ActionCreate, Status: models.StatusAccepted, CreatedAt: now, CreatedBy: user},
			{ID: s.newID(), Type: models.ActionAssign, Status: models.StatusAccepted, CreatedAt: now, CreatedBy: user, AssignedTo: user},
		},
	}
	if err := s.ledger.CreateEvent(ctx, event); err != nil {
		return nil, translate(err, "failed to create event")
	}
	s.recordAppended(event.Actions)
	s.logger.InfoContext(ctx, "event created",
		"event_id", event.ID,
		"event_type", eventType,
		"user_id", user,
		"request_id", requestcontext.RequestID(ctx),
	)
	view := s.publish(ctx, event)
	return &view, nil
}

// GetEvent returns the event with its state folded on read.
func (s *Service) GetEvent(ctx context.Context, id string) (*models.EventView, error) {
	event, err := s.ledger.GetEvent(ctx, id)
	if err != nil {
		return nil, translate(err, "failed to load event")
	}
	view := viewOf(event)
	return &view, nil
}

func (s *Service) ListActions(ctx context.Context, id string) ([]models.Action, error) {
	actions, err := s.ledger.ListActions(ctx, id)
	if err != nil {
		return nil, translate(err, "failed to list actions")
	}
	return actions, nil
}

func (s *Service) Search(ctx context.Context, q models.SearchQuery) ([]models.IndexedEvent, error) {
	if s.searcher == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "search is not configured")
	}
	results, err := s.searcher.Search(ctx, q)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "search failed")
	}
	return results, nil
}

// Reindex republishes every event's state, e.g. to rebuild an in-memory read
// model from a durable ledger at startup.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	ids, err := s.ledger.EventIDs(ctx)
	if err != nil {
		return 0, translate(err, "failed to list events")
	}
	for _, id := range ids {
		event, err := s.ledger.GetEvent(ctx, id)
		if err != nil {
			return 0, translate(err, "failed to load event")
		}
		s.publish(ctx, event)
	}
	return len(ids), nil
}

// publish folds the event and pushes the state to the index. Index failures
// are logged and never fail the request.
func (s *Service) publish(ctx context.Context, event *models.Event) models.EventView {
	view := viewOf(event)
	if s.indexer == nil {
		return view
	}
	err := s.indexer.Index(ctx, models.IndexedEvent{ID: view.ID, Type: view.Type, State: view.State})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to index event",
			"event_id", event.ID,
			"error", err,
		)
	}
	return view
}

// reload fetches the event after an append and publishes it.
func (s *Service) reload(ctx context.Context, eventID string) (models.EventView, error) {
	event, err := s.ledger.GetEvent(ctx, eventID)
	if err != nil {
		return models.EventView{}, translate(err, "failed to load event")
	}
	return s.publish(ctx, event), nil
}

func (s *Service) append(ctx context.Context, eventID string, guard ledger.Guard, actions ...models.Action) ([]models.Action, error) {
	written, err := s.ledger.Append(ctx, eventID, guard, actions...)
	if err != nil {
		return nil, translate(err, "failed to append action")
	}
	s.recordAppended(written)
	return written, nil
}

func (s *Service) recordAppended(actions []models.Action) {
	for _, a := range actions {
		s.metrics.IncrementAppended(string(a.Type), string(a.Status))
	}
}

func (s *Service) newAction(ctx context.Context, t models.ActionType, user string) models.Action {
	return models.Action{
		ID:        s.newID(),
		Type:      t,
		Status:    models.StatusAccepted,
		CreatedAt: s.now(ctx),
		CreatedBy: user,
	}
}

func (s *Service) now(ctx context.Context) time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return requestcontext.Now(ctx)
}

func (s *Service) caller(ctx context.Context) (string, error) {
	user := requestcontext.UserID(ctx)
	if user == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "authenticated user required")
	}
	return user, nil
}

func viewOf(event *models.Event) models.EventView {
	return models.EventView{
		ID:        event.ID,
		Type:      event.Type,
		CreatedAt: event.CreatedAt,
		State:     fold.Fold(event.Actions),
	}
}

// translate keeps domain errors and maps store sentinels to codes.
func translate(err error, message string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "event not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "conflicting write")
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, message)
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, message)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, message)
	}
}
