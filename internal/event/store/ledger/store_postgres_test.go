package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registrar/internal/event/models"
	"registrar/pkg/platform/sentinel"
)

func newMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgres(db), mock
}

func payloadOf(t *testing.T, a models.Action) []byte {
	t.Helper()
	b, err := json.Marshal(a)
	require.NoError(t, err)
	return b
}

var (
	selectEventForUpdate = regexp.QuoteMeta(`SELECT id, type, created_at FROM events WHERE id = $1 FOR UPDATE`)
	selectEvent          = regexp.QuoteMeta(`SELECT id, type, created_at FROM events WHERE id = $1`)
	selectActions        = regexp.QuoteMeta(`SELECT payload FROM event_actions WHERE event_id = $1 ORDER BY created_at, id`)
	insertAction         = regexp.QuoteMeta(`INSERT INTO event_actions`)
)

func TestPostgresAppend(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	existing := models.Action{ID: "a0", EventID: "e1", Type: models.ActionCreate, Status: models.StatusAccepted, CreatedAt: created, CreatedBy: "u"}

	t.Run("locks the event, runs the guard and inserts", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(selectEventForUpdate).WithArgs("e1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "type", "created_at"}).AddRow("e1", "birth", created))
		mock.ExpectQuery(selectActions).WithArgs("e1").
			WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payloadOf(t, existing)))
		mock.ExpectExec(insertAction).
			WithArgs("a1", "e1", "DECLARE", "Accepted", sqlmock.AnyArg(), "u", false, nil, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		var guardSaw int
		written, err := store.Append(ctx, "e1", func(e *models.Event) error {
			guardSaw = len(e.Actions)
			return nil
		}, models.Action{ID: "a1", Type: models.ActionDeclare, Status: models.StatusAccepted, CreatedAt: created, CreatedBy: "u"})
		require.NoError(t, err)
		assert.Equal(t, 1, guardSaw)
		require.Len(t, written, 1)
		assert.True(t, written[0].CreatedAt.After(created))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("guard failure rolls back", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(selectEventForUpdate).WithArgs("e1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "type", "created_at"}).AddRow("e1", "birth", created))
		mock.ExpectQuery(selectActions).WithArgs("e1").
			WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payloadOf(t, existing)))
		mock.ExpectRollback()

		guardErr := errors.New("assignment required")
		_, err := store.Append(ctx, "e1", func(*models.Event) error { return guardErr },
			models.Action{ID: "a1", Type: models.ActionDeclare, Status: models.StatusAccepted, CreatedAt: created})
		assert.ErrorIs(t, err, guardErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing event is not found", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(selectEventForUpdate).WithArgs("nope").
			WillReturnRows(sqlmock.NewRows([]string{"id", "type", "created_at"}))
		mock.ExpectRollback()

		_, err := store.Append(ctx, "nope", nil, models.Action{ID: "a1"})
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation is a conflict", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(selectEventForUpdate).WithArgs("e1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "type", "created_at"}).AddRow("e1", "birth", created))
		mock.ExpectQuery(selectActions).WithArgs("e1").
			WillReturnRows(sqlmock.NewRows([]string{"payload"}))
		mock.ExpectExec(insertAction).WillReturnError(&pq.Error{Code: "23505"})
		mock.ExpectRollback()

		_, err := store.Append(ctx, "e1", nil, models.Action{ID: "a0", Type: models.ActionDeclare, Status: models.StatusAccepted, CreatedAt: created})
		assert.ErrorIs(t, err, sentinel.ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("pgx unique violation is a conflict", func(t *testing.T) {
		err := translate(&pgconn.PgError{Code: "23505"}, "insert action")
		assert.ErrorIs(t, err, sentinel.ErrConflict)
		assert.NotErrorIs(t, translate(errors.New("boom"), "insert action"), sentinel.ErrConflict)
	})
}

func TestPostgresGetEvent(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store, mock := newMock(t)

	declare := models.Action{ID: "a1", EventID: "e1", Type: models.ActionDeclare, Status: models.StatusAccepted,
		CreatedAt: created, Declaration: models.Fields{"child.name": "Ada"}}
	mock.ExpectQuery(selectEvent).WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "type", "created_at"}).AddRow("e1", "birth", created))
	mock.ExpectQuery(selectActions).WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payloadOf(t, declare)))

	event, err := store.GetEvent(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "birth", event.Type)
	require.Len(t, event.Actions, 1)
	assert.Equal(t, "Ada", event.Actions[0].Declaration["child.name"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateEvent(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO events (id, type, created_at) VALUES ($1, $2, $3)`)).
		WithArgs("e1", "birth", created).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertAction).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertAction).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	event := &models.Event{ID: "e1", Type: "birth", CreatedAt: created, Actions: []models.Action{
		{ID: "a0", Type: models.ActionCreate, Status: models.StatusAccepted, CreatedAt: created},
		{ID: "a1", Type: models.ActionAssign, Status: models.StatusAccepted, CreatedAt: created, AssignedTo: "u"},
	}}
	require.NoError(t, store.CreateEvent(ctx, event))
	assert.True(t, event.Actions[1].CreatedAt.After(event.Actions[0].CreatedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}
