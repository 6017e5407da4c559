package dedup

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Rule is one named duplicate predicate from an event type's configuration.
type Rule struct {
	ID    string `json:"id" yaml:"id"`
	Query Query  `json:"query" yaml:"query"`
}

// Query is a node of the duplicate rule language: a combinator (and, or, not)
// or a comparison on a candidate field. Exactly one kind is set per node.
type Query struct {
	And []Query `json:"and,omitempty" yaml:"and,omitempty"`
	Or  []Query `json:"or,omitempty" yaml:"or,omitempty"`
	Not *Query  `json:"not,omitempty" yaml:"not,omitempty"`

	Field         string    `json:"field,omitempty" yaml:"field,omitempty"`
	Eq            *Operand  `json:"eq,omitempty" yaml:"eq,omitempty"`
	In            []Operand `json:"in,omitempty" yaml:"in,omitempty"`
	DateBeforeNow bool      `json:"dateBeforeNow,omitempty" yaml:"dateBeforeNow,omitempty"`
	DateAfterNow  bool      `json:"dateAfterNow,omitempty" yaml:"dateAfterNow,omitempty"`
}

// Validate checks that every node has exactly one kind.
func (q Query) Validate() error {
	kinds := 0
	if q.And != nil {
		kinds++
		if len(q.And) == 0 {
			return fmt.Errorf("and: needs at least one clause")
		}
		for i, c := range q.And {
			if err := c.Validate(); err != nil {
				return fmt.Errorf("and[%d]: %w", i, err)
			}
		}
	}
	if q.Or != nil {
		kinds++
		if len(q.Or) == 0 {
			return fmt.Errorf("or: needs at least one clause")
		}
		for i, c := range q.Or {
			if err := c.Validate(); err != nil {
				return fmt.Errorf("or[%d]: %w", i, err)
			}
		}
	}
	if q.Not != nil {
		kinds++
		if err := q.Not.Validate(); err != nil {
			return fmt.Errorf("not: %w", err)
		}
	}
	if q.Field != "" {
		kinds++
		comparisons := 0
		for _, set := range []bool{q.Eq != nil, q.In != nil, q.DateBeforeNow, q.DateAfterNow} {
			if set {
				comparisons++
			}
		}
		if comparisons != 1 {
			return fmt.Errorf("field %q: expected exactly one comparison, got %d", q.Field, comparisons)
		}
	} else if q.Eq != nil || q.In != nil || q.DateBeforeNow || q.DateAfterNow {
		return fmt.Errorf("comparison without field")
	}
	if kinds != 1 {
		return fmt.Errorf("expected exactly one of and, or, not, field; got %d", kinds)
	}
	return nil
}

// Operand is either a literal or a reference into the evaluation context:
// {"$form": "child.name"} reads the triggering event's data and
// {"$user": "office"} reads the acting user's attributes.
type Operand struct {
	Literal any
	Form    string
	User    string
}

// IsReference reports whether the operand reads from the context.
func (o Operand) IsReference() bool {
	return o.Form != "" || o.User != ""
}

func (o Operand) MarshalJSON() ([]byte, error) {
	switch {
	case o.Form != "":
		return json.Marshal(map[string]string{"$form": o.Form})
	case o.User != "":
		return json.Marshal(map[string]string{"$user": o.User})
	default:
		return json.Marshal(o.Literal)
	}
}

func (o *Operand) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	return o.fromRaw(raw)
}

func (o *Operand) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	return o.fromRaw(raw)
}

func (o *Operand) fromRaw(raw any) error {
	m, ok := raw.(map[string]any)
	if !ok {
		*o = Operand{Literal: raw}
		return nil
	}
	if len(m) != 1 {
		return fmt.Errorf("reference operand must have exactly one key")
	}
	for k, v := range m {
		path, ok := v.(string)
		if !ok || path == "" {
			return fmt.Errorf("%s: expected a non-empty path", k)
		}
		switch k {
		case "$form":
			*o = Operand{Form: path}
		case "$user":
			*o = Operand{User: path}
		default:
			return fmt.Errorf("unknown reference %q", k)
		}
	}
	return nil
}
