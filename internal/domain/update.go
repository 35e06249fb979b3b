package domain

import (
	"errors"
	"fmt"
	"time"
)

// WriteMode tells a store how to write a timestamp column.
type WriteMode int

const (
	// WriteKeep leaves the stored value untouched.
	WriteKeep WriteMode = iota
	// WriteStoreClock assigns the store's current time.
	WriteStoreClock
	// WriteValue writes Value verbatim.
	WriteValue
	// WriteClear removes the stored value.
	WriteClear
)

func (m WriteMode) String() string {
	switch m {
	case WriteStoreClock:
		return "store-clock"
	case WriteValue:
		return "value"
	case WriteClear:
		return "clear"
	default:
		return "keep"
	}
}

// TimestampWrite is the write instruction for one timestamp column.
type TimestampWrite struct {
	Mode  WriteMode
	Value time.Time
}

// LineWrite is a changed line, addressed by (PlanID, SequenceNo).
type LineWrite struct {
	PlanID      string
	SequenceNo  int
	VerifiedQty int
	PreviousQty int
	RequiredQty int
}

// PlanUpdate is the exact write set a store applies atomically. UpdatedAt is
// implicit: every update stamps it from the store clock.
type PlanUpdate struct {
	PlanID          string
	ExpectedVersion int64
	PreviousStatus  PlanStatus
	Status          PlanStatus
	UpdatedBy       Actor
	StartedAt       TimestampWrite
	StartedBy       Actor
	CompletedAt     TimestampWrite
	Lines           []LineWrite
}

// StartsPlan reports whether the update moves the plan out of PENDING.
func (u *PlanUpdate) StartsPlan() bool {
	return u.PreviousStatus == PlanStatusPending && u.Status != PlanStatusPending
}

// CompletesPlan reports whether the update moves the plan into DONE.
func (u *PlanUpdate) CompletesPlan() bool {
	return u.PreviousStatus != PlanStatusDone && u.Status == PlanStatusDone
}

// BuildUpdate derives the write set that turns current into proposed.
//
// Start fields are stamped from the store clock on the edge out of PENDING,
// or when proposed as pending and never set. An already set startedAt can
// only be written back unchanged. completedAt is stamped on the edge into
// DONE or when proposed as pending, and may be cleared only while the plan
// is not done. Every line whose verified quantity changed is written.
func BuildUpdate(current, proposed *Plan) (*PlanUpdate, error) {
	if current == nil || proposed == nil {
		return nil, ErrNoPlanSnapshot
	}
	if proposed.ID != current.ID {
		return nil, fmt.Errorf("%w: %s != %s", ErrPlanIdentity, proposed.ID, current.ID)
	}
	if proposed.Version != current.Version {
		return nil, fmt.Errorf("%w: proposed version %d, stored version %d", ErrVersionConflict, proposed.Version, current.Version)
	}
	if proposed.UpdatedBy.IsZero() {
		return nil, ErrActorRequired
	}
	if proposed.Status.Before(current.Status) {
		return nil, fmt.Errorf("%w: %s to %s", ErrStatusRegression, current.Status, proposed.Status)
	}
	if err := CheckInvariants(proposed); err != nil {
		return nil, err
	}

	update := &PlanUpdate{
		PlanID:          current.ID,
		ExpectedVersion: current.Version,
		PreviousStatus:  current.Status,
		Status:          proposed.Status,
		UpdatedBy:       proposed.UpdatedBy,
	}

	started, err := startedWrite(current, proposed, update.StartsPlan())
	if err != nil {
		return nil, err
	}
	update.StartedAt = started
	if started.Mode != WriteKeep {
		update.StartedBy = proposed.StartedBy
	}

	completed, err := completedWrite(proposed, update.CompletesPlan())
	if err != nil {
		return nil, err
	}
	update.CompletedAt = completed

	lines, err := changedLines(current, proposed)
	if err != nil {
		return nil, err
	}
	update.Lines = lines

	return update, nil
}

func startedWrite(current, proposed *Plan, edge bool) (TimestampWrite, error) {
	if edge {
		return TimestampWrite{Mode: WriteStoreClock}, nil
	}

	wasSet := current.StartedAt.IsSet()
	if wasSet && !current.StartedBy.IsZero() && proposed.StartedBy.Code != current.StartedBy.Code {
		return TimestampWrite{}, ErrStartedRewrite
	}

	switch proposed.StartedAt.Kind {
	case StampPending:
		if wasSet {
			return TimestampWrite{Mode: WriteKeep}, nil
		}
		return TimestampWrite{Mode: WriteStoreClock}, nil
	case StampSet:
		if wasSet && !proposed.StartedAt.At.Equal(current.StartedAt.At) {
			return TimestampWrite{}, ErrStartedRewrite
		}
		return TimestampWrite{Mode: WriteValue, Value: proposed.StartedAt.At}, nil
	case StampCleared:
		if wasSet {
			return TimestampWrite{}, ErrStartedAtCleared
		}
		return TimestampWrite{Mode: WriteKeep}, nil
	default:
		if wasSet {
			return TimestampWrite{}, ErrStartedAtCleared
		}
		return TimestampWrite{Mode: WriteKeep}, nil
	}
}

func completedWrite(proposed *Plan, edge bool) (TimestampWrite, error) {
	if edge {
		return TimestampWrite{Mode: WriteStoreClock}, nil
	}

	switch proposed.CompletedAt.Kind {
	case StampPending:
		return TimestampWrite{Mode: WriteStoreClock}, nil
	case StampSet:
		return TimestampWrite{Mode: WriteValue, Value: proposed.CompletedAt.At}, nil
	case StampCleared:
		if proposed.Status == PlanStatusDone {
			return TimestampWrite{}, ErrCompletedCleared
		}
		return TimestampWrite{Mode: WriteClear}, nil
	default:
		return TimestampWrite{Mode: WriteKeep}, nil
	}
}

func changedLines(current, proposed *Plan) ([]LineWrite, error) {
	if len(proposed.Lines) != len(current.Lines) {
		return nil, fmt.Errorf("%w: %d lines proposed, %d stored", ErrLineSetChanged, len(proposed.Lines), len(current.Lines))
	}

	var writes []LineWrite
	for _, p := range proposed.Lines {
		c, ok := current.Line(p.SequenceNo)
		if !ok {
			return nil, fmt.Errorf("%w: unknown sequence %d", ErrLineSetChanged, p.SequenceNo)
		}
		if p.RequiredQty != c.RequiredQty {
			return nil, fmt.Errorf("%w: required quantity of line %d changed", ErrLineSetChanged, p.SequenceNo)
		}
		if p.VerifiedQty == c.VerifiedQty {
			continue
		}
		writes = append(writes, LineWrite{
			PlanID:      current.ID,
			SequenceNo:  p.SequenceNo,
			VerifiedQty: p.VerifiedQty,
			PreviousQty: c.VerifiedQty,
			RequiredQty: c.RequiredQty,
		})
	}
	return writes, nil
}

// IsProtocolError reports whether err is a caller error that retrying from
// the same snapshot cannot fix.
func IsProtocolError(err error) bool {
	for _, target := range []error{
		ErrPlanIdentity, ErrStatusRegression, ErrLineSetChanged, ErrStartedAtCleared,
		ErrStartedRewrite, ErrCompletedCleared, ErrActorRequired, ErrNoPlanSnapshot,
		ErrQuantityOutOfRange, ErrDoneMismatch, ErrStartMismatch, ErrInvalidStatus,
		ErrDuplicateSequence, ErrInvalidSequence, ErrForeignLine, ErrPendingWithProgress,
		ErrCompletionWithoutDone,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
