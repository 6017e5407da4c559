package dedup

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"

	"registrar/internal/event/models"
)

// Candidate is another event of the same type as seen by the read model.
type Candidate struct {
	ID   string
	Type string
	Data models.Fields
}

// CandidateSource retrieves the bounded candidate set for an event type.
type CandidateSource interface {
	Candidates(ctx context.Context, eventType string, excludeID string) ([]Candidate, error)
}

// Subject is the event being checked.
type Subject struct {
	ID   string
	Type string
	Data models.Fields
	// Dismissed maps candidate ids previously marked as not duplicate to the
	// fingerprint of their data at the time.
	Dismissed map[string]string
}

// Match is a candidate that satisfied at least one rule.
type Match struct {
	ID          string
	RuleID      string
	Fingerprint string
}

// Detector evaluates duplicate rules against candidates concurrently. Rule
// evaluation is pure; only candidate retrieval does I/O.
type Detector struct {
	source      CandidateSource
	concurrency int
}

type Option func(*Detector)

// WithConcurrency bounds how many candidates are evaluated at once.
func WithConcurrency(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// NewDetector builds a Detector reading candidates from source.
func NewDetector(source CandidateSource, opts ...Option) *Detector {
	d := &Detector{source: source, concurrency: 8}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect returns the candidates matching any rule, sorted by id. Candidates
// dismissed earlier are skipped unless their data changed since.
func (d *Detector) Detect(ctx context.Context, subject Subject, rules []Rule, evalCtx Context) ([]Match, error) {
	if len(rules) == 0 {
		return nil, nil
	}
	for _, r := range rules {
		if err := r.Query.Validate(); err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.ID, err)
		}
	}
	candidates, err := d.source.Candidates(ctx, subject.Type, subject.ID)
	if err != nil {
		return nil, fmt.Errorf("load duplicate candidates: %w", err)
	}
	if evalCtx.Form == nil {
		evalCtx.Form = subject.Data
	}

	var (
		mu      sync.Mutex
		matches []Match
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for _, c := range candidates {
		if c.ID == subject.ID {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fingerprint := Fingerprint(c.Data)
			if prev, ok := subject.Dismissed[c.ID]; ok && prev == fingerprint {
				return nil
			}
			for _, r := range rules {
				ok, err := Evaluate(r.Query, c.Data, evalCtx)
				if err != nil {
					return fmt.Errorf("rule %s on %s: %w", r.ID, c.ID, err)
				}
				if ok {
					mu.Lock()
					matches = append(matches, Match{ID: c.ID, RuleID: r.ID, Fingerprint: fingerprint})
					mu.Unlock()
					return nil
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
	return matches, nil
}

// Fingerprint hashes field data canonically; encoding/json sorts map keys.
func Fingerprint(data models.Fields) string {
	b, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// IDs lists the matched candidate ids.
func IDs(matches []Match) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.ID
	}
	return out
}
