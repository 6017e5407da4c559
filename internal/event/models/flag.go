package models

import (
	"sort"
	"strings"
)

// Flag is a derived presence tag on an event's current state. Inherent flags are
// the fixed vocabulary below; action flags follow "{actionType}:{status}".
type Flag string

const (
	FlagIncomplete           Flag = "INCOMPLETE"
	FlagRejected             Flag = "REJECTED"
	FlagPendingCertification Flag = "PENDING_CERTIFICATION"
	FlagCorrectionRequested  Flag = "CORRECTION_REQUESTED"
	FlagPotentialDuplicate   Flag = "POTENTIAL_DUPLICATE"
)

var inherentFlags = map[Flag]bool{
	FlagIncomplete:           true,
	FlagRejected:             true,
	FlagPendingCertification: true,
	FlagCorrectionRequested:  true,
	FlagPotentialDuplicate:   true,
}

// IsInherent reports whether f belongs to the fixed vocabulary.
func (f Flag) IsInherent() bool {
	return inherentFlags[f]
}

// ActionFlag splits an action flag into its type and status. ok is false for
// inherent or malformed flags.
func (f Flag) ActionFlag() (ActionType, ActionStatus, bool) {
	typ, status, found := strings.Cut(string(f), ":")
	if !found {
		return "", "", false
	}
	t, ok := ParseActionType(typ)
	if !ok {
		return "", "", false
	}
	for _, s := range []ActionStatus{StatusRequested, StatusAccepted, StatusRejected} {
		if strings.EqualFold(status, string(s)) {
			return t, s, true
		}
	}
	return "", "", false
}

// ParseFlag validates a flag from external input.
func ParseFlag(s string) (Flag, bool) {
	f := Flag(s)
	if f.IsInherent() {
		return f, true
	}
	if _, _, ok := f.ActionFlag(); ok {
		return Flag(strings.ToLower(s)), true
	}
	return "", false
}

// FlagSet is a set of flags. Mutate only through Add and Remove.
type FlagSet map[Flag]struct{}

func (s FlagSet) Add(f Flag) {
	s[f] = struct{}{}
}

func (s FlagSet) Remove(f Flag) {
	delete(s, f)
}

func (s FlagSet) Has(f Flag) bool {
	_, ok := s[f]
	return ok
}

// Sorted returns the flags in lexical order.
func (s FlagSet) Sorted() []Flag {
	out := make([]Flag, 0, len(s))
	for f := range s {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s FlagSet) Clone() FlagSet {
	out := make(FlagSet, len(s))
	for f := range s {
		out[f] = struct{}{}
	}
	return out
}

// MarshalJSON renders the set as a sorted array.
func (s FlagSet) MarshalJSON() ([]byte, error) {
	return marshalSorted(s.Sorted())
}

// UnmarshalJSON accepts the array form written by MarshalJSON.
func (s *FlagSet) UnmarshalJSON(b []byte) error {
	var flags []Flag
	if err := unmarshalFlags(b, &flags); err != nil {
		return err
	}
	set := make(FlagSet, len(flags))
	for _, f := range flags {
		set.Add(f)
	}
	*s = set
	return nil
}
