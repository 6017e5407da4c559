package dedup

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"registrar/internal/event/models"
)

// Context is what references resolve against: $form is the triggering event's
// data, $user the acting user's attributes, $now the evaluation time.
type Context struct {
	Form models.Fields
	User map[string]any
	Now  time.Time
}

// Evaluate reports whether candidate satisfies q. Missing values never match.
func Evaluate(q Query, candidate models.Fields, ctx Context) (bool, error) {
	switch {
	case q.And != nil:
		for _, c := range q.And {
			ok, err := Evaluate(c, candidate, ctx)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case q.Or != nil:
		for _, c := range q.Or {
			ok, err := Evaluate(c, candidate, ctx)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case q.Not != nil:
		ok, err := Evaluate(*q.Not, candidate, ctx)
		if err != nil {
			return false, err
		}
		return !ok, nil
	case q.Field != "":
		return compare(q, candidate, ctx)
	default:
		return false, fmt.Errorf("empty query node")
	}
}

func compare(q Query, candidate models.Fields, ctx Context) (bool, error) {
	value, ok := Lookup(candidate, q.Field)
	if !ok || value == nil {
		return false, nil
	}
	switch {
	case q.Eq != nil:
		want, ok, err := resolve(*q.Eq, ctx)
		if err != nil || !ok {
			return false, err
		}
		return equal(value, want), nil
	case q.In != nil:
		for _, operand := range q.In {
			want, ok, err := resolve(operand, ctx)
			if err != nil {
				return false, err
			}
			if ok && equal(value, want) {
				return true, nil
			}
		}
		return false, nil
	case q.DateBeforeNow, q.DateAfterNow:
		date, ok := parseDate(value)
		if !ok {
			return false, nil
		}
		if ctx.Now.IsZero() {
			return false, fmt.Errorf("field %q: date comparison without $now", q.Field)
		}
		if q.DateBeforeNow {
			return date.Before(ctx.Now), nil
		}
		return date.After(ctx.Now), nil
	default:
		return false, fmt.Errorf("field %q: no comparison", q.Field)
	}
}

func resolve(o Operand, ctx Context) (any, bool, error) {
	switch {
	case o.Form != "":
		v, ok := Lookup(ctx.Form, o.Form)
		return v, ok && v != nil, nil
	case o.User != "":
		v, ok := ctx.User[o.User]
		return v, ok && v != nil, nil
	default:
		return o.Literal, true, nil
	}
}

// Lookup reads a dotted path from data. Flat keys ("child.name") take
// precedence over nested maps.
func Lookup(data models.Fields, path string) (any, bool) {
	if v, ok := data[path]; ok {
		return v, true
	}
	head, rest, found := strings.Cut(path, ".")
	if !found {
		return nil, false
	}
	nested, ok := data[head]
	if !ok {
		return nil, false
	}
	switch m := nested.(type) {
	case map[string]any:
		return Lookup(models.Fields(m), rest)
	case models.Fields:
		return Lookup(m, rest)
	default:
		return nil, false
	}
}

// equal compares scalars loosely: strings ignore case and surrounding space,
// numbers compare by value whatever their decoded type.
func equal(a, b any) bool {
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return strings.EqualFold(strings.TrimSpace(as), strings.TrimSpace(bs))
		}
	}
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil && strings.TrimSpace(n) != ""
	default:
		return 0, false
	}
}

func parseDate(v any) (time.Time, bool) {
	switch d := v.(type) {
	case time.Time:
		return d, true
	case string:
		for _, layout := range []string{"2006-01-02", time.RFC3339} {
			if t, err := time.Parse(layout, d); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
