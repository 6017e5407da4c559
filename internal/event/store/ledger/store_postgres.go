package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"registrar/internal/event/models"
	"registrar/pkg/platform/sentinel"
	txcontext "registrar/pkg/platform/tx"
)

// Schema creates the ledger tables. Actions keep their full JSON body in payload;
// the scalar columns exist for ordering and operational queries.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS event_actions (
	id                 TEXT PRIMARY KEY,
	event_id           TEXT NOT NULL REFERENCES events (id),
	type               TEXT NOT NULL,
	status             TEXT NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL,
	created_by         TEXT NOT NULL,
	draft              BOOLEAN NOT NULL DEFAULT FALSE,
	original_action_id TEXT,
	payload            JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS event_actions_event_idx ON event_actions (event_id, created_at, id);
`

const (
	uniqueViolation  = "23505"
	defaultTxTimeout = 5 * time.Second
)

// PostgresStore persists the ledger in PostgreSQL. Appends lock the event row
// with SELECT ... FOR UPDATE so concurrent appends to one event serialize while
// other events proceed.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies Schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate ledger: %w", err)
	}
	return nil
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) querier(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) CreateEvent(ctx context.Context, event *models.Event) error {
	return s.inTx(ctx, func(ctx context.Context) error {
		_, err := s.querier(ctx).ExecContext(ctx,
			`INSERT INTO events (id, type, created_at) VALUES ($1, $2, $3)`,
			event.ID, event.Type, event.CreatedAt.UTC())
		if err != nil {
			return translate(err, "insert event")
		}
		stamp(nil, event.Actions)
		for i := range event.Actions {
			event.Actions[i].EventID = event.ID
			if err := s.insertAction(ctx, event.Actions[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	event, err := s.loadEvent(ctx, id, false)
	if err != nil {
		return nil, err
	}
	event.Actions, err = s.loadActions(ctx, id)
	if err != nil {
		return nil, err
	}
	return event, nil
}

// ListActions returns actions in insertion order; createdAt is strictly
// increasing per event so ordering by it preserves insertion.
func (s *PostgresStore) ListActions(ctx context.Context, id string) ([]models.Action, error) {
	if _, err := s.loadEvent(ctx, id, false); err != nil {
		return nil, err
	}
	return s.loadActions(ctx, id)
}

func (s *PostgresStore) EventIDs(ctx context.Context) ([]string, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, `SELECT id FROM events ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan event id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) Append(ctx context.Context, eventID string, guard Guard, actions ...models.Action) ([]models.Action, error) {
	written := cloneActions(actions)
	err := s.inTx(ctx, func(ctx context.Context) error {
		event, err := s.loadEvent(ctx, eventID, true)
		if err != nil {
			return err
		}
		event.Actions, err = s.loadActions(ctx, eventID)
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(event); err != nil {
				return err
			}
		}
		stamp(event.Actions, written)
		for i := range written {
			written[i].EventID = eventID
			if err := s.insertAction(ctx, written[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return written, nil
}

// inTx bounds the transaction by defaultTxTimeout unless ctx already carries a
// deadline.
func (s *PostgresStore) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTxTimeout)
		defer cancel()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) loadEvent(ctx context.Context, id string, forUpdate bool) (*models.Event, error) {
	query := `SELECT id, type, created_at FROM events WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var (
		event     models.Event
		createdAt time.Time
	)
	err := s.querier(ctx).QueryRowContext(ctx, query, id).Scan(&event.ID, &event.Type, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}
	event.CreatedAt = createdAt.UTC()
	return &event, nil
}

func (s *PostgresStore) loadActions(ctx context.Context, eventID string) ([]models.Action, error) {
	rows, err := s.querier(ctx).QueryContext(ctx,
		`SELECT payload FROM event_actions WHERE event_id = $1 ORDER BY created_at, id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("load actions: %w", err)
	}
	defer rows.Close()
	actions := []models.Action{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		var a models.Action
		if err := json.Unmarshal(payload, &a); err != nil {
			return nil, fmt.Errorf("decode action: %w", err)
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actions: %w", err)
	}
	return actions, nil
}

func (s *PostgresStore) insertAction(ctx context.Context, a models.Action) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode action: %w", err)
	}
	var original sql.NullString
	if a.OriginalActionID != "" {
		original = sql.NullString{String: a.OriginalActionID, Valid: true}
	}
	_, err = s.querier(ctx).ExecContext(ctx, `
		INSERT INTO event_actions (id, event_id, type, status, created_at, created_by, draft, original_action_id, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.EventID, string(a.Type), string(a.Status), a.CreatedAt, a.CreatedBy, a.Draft, original, payload)
	if err != nil {
		return translate(err, "insert action")
	}
	return nil
}

// translate maps unique violations from either supported driver to
// sentinel.ErrConflict.
func translate(err error, op string) error {
	var (
		pqErr  *pq.Error
		pgxErr *pgconn.PgError
	)
	switch {
	case errors.As(err, &pqErr) && pqErr.Code == uniqueViolation,
		errors.As(err, &pgxErr) && pgxErr.Code == uniqueViolation:
		return fmt.Errorf("%s: %w", op, sentinel.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}
