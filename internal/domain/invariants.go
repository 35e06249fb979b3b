package domain

import (
	"errors"
	"fmt"
)

// Invariant violations
var (
	ErrInvalidStatus         = errors.New("invalid plan status")
	ErrQuantityOutOfRange    = errors.New("verified quantity out of range")
	ErrDuplicateSequence     = errors.New("duplicate line sequence number")
	ErrInvalidSequence       = errors.New("line sequence numbers start at 1")
	ErrForeignLine           = errors.New("line belongs to another plan")
	ErrDoneMismatch          = errors.New("plan is done if and only if every line is complete")
	ErrStartMismatch         = errors.New("start fields are set if and only if the plan has started")
	ErrPendingWithProgress   = errors.New("pending plan has verified quantities")
	ErrCompletionWithoutDone = errors.New("completedAt is set on a plan that is not done")
	ErrUnresolvedStamp       = errors.New("stored plans cannot carry pending or cleared timestamps")
)

// CheckInvariants returns every violated invariant joined into one error, or
// nil when the plan is consistent.
func CheckInvariants(plan *Plan) error {
	if plan == nil {
		return ErrNoPlanSnapshot
	}

	var errs []error
	if !plan.Status.IsValid() {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidStatus, plan.Status))
	}

	seen := make(map[int]bool, len(plan.Lines))
	progress := false
	for _, l := range plan.Lines {
		if l.SequenceNo < 1 {
			errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidSequence, l.SequenceNo))
		}
		if seen[l.SequenceNo] {
			errs = append(errs, fmt.Errorf("%w: %d", ErrDuplicateSequence, l.SequenceNo))
		}
		seen[l.SequenceNo] = true

		if l.PlanID != "" && l.PlanID != plan.ID {
			errs = append(errs, fmt.Errorf("%w: line %d references %s", ErrForeignLine, l.SequenceNo, l.PlanID))
		}
		if l.VerifiedQty < 0 || l.VerifiedQty > l.RequiredQty {
			errs = append(errs, fmt.Errorf("%w: line %d has %d of %d", ErrQuantityOutOfRange, l.SequenceNo, l.VerifiedQty, l.RequiredQty))
		}
		if l.VerifiedQty > 0 {
			progress = true
		}
	}

	done := plan.Status == PlanStatusDone
	if done != plan.AllComplete() {
		errs = append(errs, ErrDoneMismatch)
	}

	started := plan.Status == PlanStatusInProgress || done
	if started != plan.StartedAt.IsAssigned() || started == plan.StartedBy.IsZero() {
		errs = append(errs, ErrStartMismatch)
	}

	if plan.Status == PlanStatusPending && progress {
		errs = append(errs, ErrPendingWithProgress)
	}
	if !done && plan.CompletedAt.IsAssigned() {
		errs = append(errs, ErrCompletionWithoutDone)
	}

	return errors.Join(errs...)
}

// ValidateSnapshot checks a plan about to be stored as-is, outside
// ApplyPlanUpdate. Besides the invariants, every timestamp must be a concrete
// value or absent: nothing would resolve a pending or cleared marker.
func ValidateSnapshot(plan *Plan) error {
	if err := CheckInvariants(plan); err != nil {
		return err
	}

	var errs []error
	stamps := []struct {
		name  string
		stamp Stamp
	}{
		{"startedAt", plan.StartedAt},
		{"completedAt", plan.CompletedAt},
		{"updatedAt", plan.UpdatedAt},
	}
	for _, s := range stamps {
		if s.stamp.Kind == StampPending || s.stamp.Kind == StampCleared {
			errs = append(errs, fmt.Errorf("%w: %s is %s", ErrUnresolvedStamp, s.name, s.stamp))
		}
	}
	return errors.Join(errs...)
}
