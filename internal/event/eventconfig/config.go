// Package eventconfig loads the per-event-type documents supplied by country
// configuration: which actions an event type accepts, which declaration fields
// each action requires, which actions need external confirmation, and the
// duplicate rules evaluated on declaration.
package eventconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"registrar/internal/event/dedup"
	"registrar/internal/event/models"
	pstrings "registrar/pkg/platform/strings"
)

// ActionConfig describes one action an event type accepts.
type ActionConfig struct {
	Type                 models.ActionType `yaml:"type"`
	RequiredFields       []string          `yaml:"requiredFields"`
	RequiresConfirmation bool              `yaml:"requiresConfirmation"`
	Deduplicate          bool              `yaml:"deduplicate"`
}

// EventConfig is one event type's document.
type EventConfig struct {
	Type       string         `yaml:"type"`
	Actions    []ActionConfig `yaml:"actions"`
	Duplicates []dedup.Rule   `yaml:"duplicates"`
}

// systemActions are accepted by every event type; they carry lifecycle and
// bookkeeping rather than declaration content.
var systemActions = map[models.ActionType]bool{
	models.ActionCreate:             true,
	models.ActionAssign:             true,
	models.ActionUnassign:           true,
	models.ActionRead:               true,
	models.ActionDuplicateDetected:  true,
	models.ActionMarkAsDuplicate:    true,
	models.ActionMarkAsNotDuplicate: true,
}

// Action returns the configuration for t. System actions are always present.
func (c EventConfig) Action(t models.ActionType) (ActionConfig, bool) {
	for _, a := range c.Actions {
		if a.Type == t {
			return a, true
		}
	}
	if systemActions[t] {
		return ActionConfig{Type: t}, true
	}
	return ActionConfig{}, false
}

// Validate checks action types and duplicate rules.
func (c EventConfig) Validate() error {
	if c.Type == "" {
		return fmt.Errorf("event type is required")
	}
	seen := make(map[models.ActionType]bool)
	for _, a := range c.Actions {
		if _, ok := models.ParseActionType(string(a.Type)); !ok {
			return fmt.Errorf("%s: unknown action type %q", c.Type, a.Type)
		}
		if seen[a.Type] {
			return fmt.Errorf("%s: action %s configured twice", c.Type, a.Type)
		}
		seen[a.Type] = true
	}
	for _, r := range c.Duplicates {
		if r.ID == "" {
			return fmt.Errorf("%s: duplicate rule without id", c.Type)
		}
		if err := r.Query.Validate(); err != nil {
			return fmt.Errorf("%s: duplicate rule %s: %w", c.Type, r.ID, err)
		}
	}
	return nil
}

// normalized upper-cases action types and cleans required field lists. The
// receiver's slices are not modified.
func (c EventConfig) normalized() EventConfig {
	actions := make([]ActionConfig, len(c.Actions))
	for i, a := range c.Actions {
		if t, ok := models.ParseActionType(string(a.Type)); ok {
			a.Type = t
		}
		a.RequiredFields = pstrings.DedupeAndTrim(a.RequiredFields)
		actions[i] = a
	}
	c.Actions = actions
	return c
}

// Registry holds every configured event type.
type Registry struct {
	byType map[string]EventConfig
}

type document struct {
	Events []EventConfig `yaml:"events"`
}

// Parse reads a YAML document of the form `events: [...]`.
func Parse(b []byte) (*Registry, error) {
	var doc document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse event config: %w", err)
	}
	return New(doc.Events...)
}

// Load reads and parses a YAML file.
func Load(path string) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read event config: %w", err)
	}
	return Parse(b)
}

// New builds a registry from validated configs.
func New(configs ...EventConfig) (*Registry, error) {
	r := &Registry{byType: make(map[string]EventConfig, len(configs))}
	for _, c := range configs {
		c = c.normalized()
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byType[c.Type]; dup {
			return nil, fmt.Errorf("event type %s configured twice", c.Type)
		}
		r.byType[c.Type] = c
	}
	return r, nil
}

// Get returns the configuration for an event type.
func (r *Registry) Get(eventType string) (EventConfig, bool) {
	c, ok := r.byType[eventType]
	return c, ok
}
