package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// StampKind distinguishes the states of a server-assigned timestamp.
type StampKind int

const (
	// StampAbsent means the timestamp was never assigned.
	StampAbsent StampKind = iota
	// StampPending asks the store to assign the timestamp from its own clock.
	StampPending
	// StampCleared asks the store to remove a previously assigned timestamp.
	StampCleared
	// StampSet carries a concrete timestamp.
	StampSet
)

func (k StampKind) String() string {
	switch k {
	case StampPending:
		return "pending"
	case StampCleared:
		return "cleared"
	case StampSet:
		return "set"
	default:
		return "absent"
	}
}

// Stamp is a timestamp that may be unset, awaiting the store clock,
// explicitly cleared, or set.
type Stamp struct {
	Kind StampKind
	At   time.Time
}

// Absent returns an unassigned stamp.
func Absent() Stamp { return Stamp{Kind: StampAbsent} }

// Pending returns a stamp the store fills from its own clock.
func Pending() Stamp { return Stamp{Kind: StampPending} }

// Cleared returns a stamp requesting removal.
func Cleared() Stamp { return Stamp{Kind: StampCleared} }

// StampAt returns a stamp holding t.
func StampAt(t time.Time) Stamp { return Stamp{Kind: StampSet, At: t} }

// StampFromPtr maps a nullable stored column onto a stamp.
func StampFromPtr(t *time.Time) Stamp {
	if t == nil {
		return Absent()
	}
	return StampAt(*t)
}

// IsSet reports whether the stamp holds a concrete time.
func (s Stamp) IsSet() bool { return s.Kind == StampSet }

// IsPending reports whether the store should assign the time.
func (s Stamp) IsPending() bool { return s.Kind == StampPending }

// IsAssigned reports whether the stamp is set or about to be set by the store.
func (s Stamp) IsAssigned() bool { return s.Kind == StampSet || s.Kind == StampPending }

// Ptr returns the concrete time, or nil when none is held.
func (s Stamp) Ptr() *time.Time {
	if s.Kind != StampSet {
		return nil
	}
	t := s.At
	return &t
}

// Equal compares two stamps; set stamps compare by instant.
func (s Stamp) Equal(other Stamp) bool {
	if s.Kind != other.Kind {
		return false
	}
	if s.Kind == StampSet {
		return s.At.Equal(other.At)
	}
	return true
}

func (s Stamp) String() string {
	if s.Kind == StampSet {
		return s.At.UTC().Format(time.RFC3339Nano)
	}
	return s.Kind.String()
}

// MarshalJSON encodes set stamps as RFC 3339 strings, absent stamps as null
// and the pending and cleared markers as their names.
func (s Stamp) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case StampSet:
		return json.Marshal(s.At.UTC().Format(time.RFC3339Nano))
	case StampPending, StampCleared:
		return json.Marshal(s.Kind.String())
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (s *Stamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = Absent()
		return nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("stamp must be a string or null: %w", err)
	}

	switch raw {
	case "", "absent":
		*s = Absent()
	case "pending":
		*s = Pending()
	case "cleared":
		*s = Cleared()
	default:
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return fmt.Errorf("invalid stamp %q: %w", raw, err)
		}
		*s = StampAt(t)
	}
	return nil
}
