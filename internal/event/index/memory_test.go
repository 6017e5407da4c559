package index

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registrar/internal/event/metrics"
	"registrar/internal/event/models"
)

func indexed(id, eventType string, status models.EventStatus, data models.Fields, flags ...models.Flag) models.IndexedEvent {
	state := models.NewEventState()
	state.Status = status
	state.Data = data
	for _, f := range flags {
		state.Flags.Add(f)
	}
	return models.IndexedEvent{ID: id, Type: eventType, State: state}
}

func TestMemoryIndexSearch(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	require.NoError(t, idx.Index(ctx, indexed("b", "birth", models.EventRegistered, nil, models.FlagPendingCertification)))
	require.NoError(t, idx.Index(ctx, indexed("a", "birth", models.EventValidated, nil, "register:requested")))
	require.NoError(t, idx.Index(ctx, indexed("c", "death", models.EventRegistered, nil, models.FlagPendingCertification)))

	tests := []struct {
		name  string
		query models.SearchQuery
		want  []string
	}{
		{"empty query matches all", models.SearchQuery{}, []string{"a", "b", "c"}},
		{"by type", models.SearchQuery{Type: "birth"}, []string{"a", "b"}},
		{"by status", models.SearchQuery{Status: models.EventRegistered}, []string{"b", "c"}},
		{"by flag", models.SearchQuery{Flags: []models.Flag{"register:requested"}}, []string{"a"}},
		{"all conditions", models.SearchQuery{Type: "death", Flags: []models.Flag{models.FlagPendingCertification}}, []string{"c"}},
		{"no match", models.SearchQuery{Flags: []models.Flag{models.FlagPotentialDuplicate}}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := idx.Search(ctx, tt.query)
			require.NoError(t, err)
			ids := make([]string, 0, len(got))
			for _, e := range got {
				ids = append(ids, e.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	t.Run("reindexing replaces the projection", func(t *testing.T) {
		require.NoError(t, idx.Index(ctx, indexed("a", "birth", models.EventRegistered, nil)))
		got, err := idx.Search(ctx, models.SearchQuery{Flags: []models.Flag{"register:requested"}})
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestMemoryIndexCandidates(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	require.NoError(t, idx.Index(ctx, indexed("self", "birth", models.EventDeclared, models.Fields{"child.name": "Ada"})))
	require.NoError(t, idx.Index(ctx, indexed("other", "birth", models.EventRegistered, models.Fields{"child.name": "Ada"})))
	require.NoError(t, idx.Index(ctx, indexed("archived", "birth", models.EventArchived, models.Fields{"child.name": "Ada"})))
	require.NoError(t, idx.Index(ctx, indexed("death", "death", models.EventRegistered, models.Fields{"child.name": "Ada"})))

	got, err := idx.Candidates(ctx, "birth", "self")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "other", got[0].ID)
	assert.Equal(t, "Ada", got[0].Data["child.name"])

	got[0].Data["child.name"] = "changed"
	again, err := idx.Candidates(ctx, "birth", "self")
	require.NoError(t, err)
	assert.Equal(t, "Ada", again[0].Data["child.name"])
}

type failingIndexer struct{ err error }

func (f failingIndexer) Index(context.Context, models.IndexedEvent) error { return f.err }

func TestFanout(t *testing.T) {
	ctx := context.Background()
	m := metrics.New(prometheus.NewRegistry())
	mem := NewMemoryIndex()
	boom := errors.New("broker down")

	fan := NewFanout([]Sink{
		{Name: "kafka", Indexer: failingIndexer{err: boom}},
		{Name: "memory", Indexer: mem},
	}, WithMetrics(m))

	err := fan.Index(ctx, indexed("e1", "birth", models.EventDeclared, nil))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexFailures.WithLabelValues("kafka")))

	got, err := mem.Search(ctx, models.SearchQuery{})
	require.NoError(t, err)
	assert.Len(t, got, 1, "later sinks still receive the projection")
}
