package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registrar/internal/event/models"
)

type staticSource struct {
	candidates []Candidate
	err        error
}

func (s staticSource) Candidates(_ context.Context, eventType string, excludeID string) ([]Candidate, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []Candidate
	for _, c := range s.candidates {
		if c.Type == eventType && c.ID != excludeID {
			out = append(out, c)
		}
	}
	return out, nil
}

func nameRule() []Rule {
	return []Rule{{ID: "same-name", Query: Query{Field: "child.name", Eq: &Operand{Form: "child.name"}}}}
}

func TestDetector(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	subject := Subject{ID: "e3", Type: "birth", Data: models.Fields{"child.name": "Ada"}}
	source := staticSource{candidates: []Candidate{
		{ID: "e2", Type: "birth", Data: models.Fields{"child.name": "Ada"}},
		{ID: "e1", Type: "birth", Data: models.Fields{"child.name": "ADA"}},
		{ID: "e0", Type: "birth", Data: models.Fields{"child.name": "Grace"}},
		{ID: "d1", Type: "death", Data: models.Fields{"child.name": "Ada"}},
		{ID: "e3", Type: "birth", Data: models.Fields{"child.name": "Ada"}},
	}}

	t.Run("returns sorted matches of the same type", func(t *testing.T) {
		matches, err := NewDetector(source, WithConcurrency(2)).Detect(ctx, subject, nameRule(), Context{Now: now})
		require.NoError(t, err)
		assert.Equal(t, []string{"e1", "e2"}, IDs(matches))
		assert.Equal(t, "same-name", matches[0].RuleID)
		assert.Equal(t, Fingerprint(models.Fields{"child.name": "ADA"}), matches[0].Fingerprint)
	})

	t.Run("no rules means no matches", func(t *testing.T) {
		matches, err := NewDetector(source).Detect(ctx, subject, nil, Context{Now: now})
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("dismissed candidates stay dismissed until their data changes", func(t *testing.T) {
		dismissed := subject
		dismissed.Dismissed = map[string]string{
			"e1": Fingerprint(models.Fields{"child.name": "ADA"}),
			"e2": Fingerprint(models.Fields{"child.name": "Ada", "child.dob": "old"}),
		}
		matches, err := NewDetector(source).Detect(ctx, dismissed, nameRule(), Context{Now: now})
		require.NoError(t, err)
		assert.Equal(t, []string{"e2"}, IDs(matches))
	})

	t.Run("source failure is returned", func(t *testing.T) {
		_, err := NewDetector(staticSource{err: errors.New("index down")}).Detect(ctx, subject, nameRule(), Context{Now: now})
		assert.Error(t, err)
	})

	t.Run("invalid rule is returned", func(t *testing.T) {
		_, err := NewDetector(source).Detect(ctx, subject, []Rule{{ID: "bad", Query: Query{}}}, Context{Now: now})
		assert.Error(t, err)
	})
}

func TestFingerprintIsKeyOrderIndependent(t *testing.T) {
	a := models.Fields{"x": 1, "y": "two"}
	b := models.Fields{"y": "two", "x": 1}
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	assert.NotEqual(t, Fingerprint(a), Fingerprint(models.Fields{"x": 2, "y": "two"}))
}
