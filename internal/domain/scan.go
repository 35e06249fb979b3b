package domain

import (
	"errors"
	"fmt"
	"strings"
)

// RejectReason explains why a scan was not accepted.
type RejectReason string

const (
	RejectNoExpectedCode  RejectReason = "NO_EXPECTED_CODE"
	RejectMismatch        RejectReason = "MISMATCH"
	RejectAlreadyComplete RejectReason = "ALREADY_COMPLETE"
)

// ScanRejection is returned for scans that leave the plan untouched.
type ScanRejection struct {
	Reason     RejectReason
	SequenceNo int
	Scanned    string
	Expected   string
}

func (r *ScanRejection) Error() string {
	switch r.Reason {
	case RejectMismatch:
		return fmt.Sprintf("scan rejected on line %d: scanned %q, expected %q", r.SequenceNo, r.Scanned, r.Expected)
	case RejectNoExpectedCode:
		return fmt.Sprintf("scan rejected on line %d: line has no expected code", r.SequenceNo)
	case RejectAlreadyComplete:
		return fmt.Sprintf("scan rejected on line %d: line is already complete", r.SequenceNo)
	}
	return fmt.Sprintf("scan rejected on line %d: %s", r.SequenceNo, r.Reason)
}

// AsScanRejection unwraps a scan rejection from err.
func AsScanRejection(err error) (*ScanRejection, bool) {
	var rejection *ScanRejection
	if errors.As(err, &rejection) {
		return rejection, true
	}
	return nil, false
}

// AttemptScan matches scanned against the line with targetSequenceNo and
// returns the next plan state. The input plan is never modified; timestamps
// the store must assign are returned as pending stamps.
func AttemptScan(plan *Plan, targetSequenceNo int, scanned string, actor Actor) (*Plan, error) {
	if plan == nil {
		return nil, ErrNoPlanSnapshot
	}
	if actor.IsZero() {
		return nil, ErrActorRequired
	}

	idx := plan.lineIndex(targetSequenceNo)
	if idx < 0 {
		return nil, fmt.Errorf("%w: sequence %d", ErrLineNotFound, targetSequenceNo)
	}
	line := plan.Lines[idx]

	scanned = strings.TrimSpace(scanned)
	expected := strings.TrimSpace(line.ExpectedCode)

	if expected == "" {
		return nil, &ScanRejection{Reason: RejectNoExpectedCode, SequenceNo: targetSequenceNo, Scanned: scanned}
	}
	if scanned != expected {
		return nil, &ScanRejection{Reason: RejectMismatch, SequenceNo: targetSequenceNo, Scanned: scanned, Expected: expected}
	}
	if line.Complete() {
		return nil, &ScanRejection{Reason: RejectAlreadyComplete, SequenceNo: targetSequenceNo, Scanned: scanned, Expected: expected}
	}

	next := plan.Clone()
	next.Lines[idx].VerifiedQty++
	next.UpdatedBy = actor
	next.UpdatedAt = Pending()

	if next.Status == PlanStatusPending {
		next.Status = PlanStatusInProgress
		next.StartedBy = actor
		next.StartedAt = Pending()
	}
	if next.AllComplete() {
		next.Status = PlanStatusDone
		next.CompletedAt = Pending()
	}

	return next, nil
}

// NextPointer returns the lowest sequence number at or after current whose
// line is incomplete. It returns current when no such line exists.
func NextPointer(plan *Plan, current int) int {
	next := -1
	for _, l := range plan.Lines {
		if l.SequenceNo < current || l.Complete() {
			continue
		}
		if next < 0 || l.SequenceNo < next {
			next = l.SequenceNo
		}
	}
	if next < 0 {
		return current
	}
	return next
}

// Finish completes a plan on operator request. Every line must be complete.
// Start fields are kept when already set and filled otherwise; completion is
// always stamped afresh.
func Finish(plan *Plan, actor Actor) (*Plan, error) {
	if plan == nil {
		return nil, ErrNoPlanSnapshot
	}
	if actor.IsZero() {
		return nil, ErrActorRequired
	}
	if !plan.AllComplete() {
		return nil, ErrPlanIncomplete
	}

	next := plan.Clone()
	if !next.StartedAt.IsAssigned() {
		next.StartedAt = Pending()
	}
	if next.StartedBy.IsZero() {
		next.StartedBy = actor
	}
	next.Status = PlanStatusDone
	next.CompletedAt = Pending()
	next.UpdatedBy = actor
	next.UpdatedAt = Pending()

	return next, nil
}
