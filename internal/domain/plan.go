package domain

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// Errors
var (
	ErrPlanNotFound     = errors.New("plan not found")
	ErrPlanExists       = errors.New("plan already exists")
	ErrLineNotFound     = errors.New("line not found in plan")
	ErrActorRequired    = errors.New("actor is required")
	ErrPlanIncomplete   = errors.New("plan has incomplete lines")
	ErrStaffNotFound    = errors.New("staff not found")
	ErrVersionConflict  = errors.New("plan was modified by another session")
	ErrNoPlanSnapshot   = errors.New("plan snapshot is required")
	ErrPlanIdentity     = errors.New("proposed plan does not match the stored plan")
	ErrStatusRegression = errors.New("plan status cannot move backwards")
	ErrLineSetChanged   = errors.New("proposed plan lines do not match the stored lines")
	ErrStartedAtCleared = errors.New("startedAt cannot be cleared once set")
	ErrStartedRewrite   = errors.New("startedAt and startedBy cannot be changed once set")
	ErrCompletedCleared = errors.New("completedAt cannot be cleared while the plan is done")
)

// PlanStatus represents the lifecycle state of a plan
type PlanStatus string

const (
	PlanStatusPending    PlanStatus = "PENDING"
	PlanStatusInProgress PlanStatus = "IN_PROGRESS"
	PlanStatusDone       PlanStatus = "DONE"
)

// IsValid reports whether s is a known status.
func (s PlanStatus) IsValid() bool {
	switch s {
	case PlanStatusPending, PlanStatusInProgress, PlanStatusDone:
		return true
	}
	return false
}

// rank orders statuses along the only permitted direction of travel.
func (s PlanStatus) rank() int {
	switch s {
	case PlanStatusInProgress:
		return 1
	case PlanStatusDone:
		return 2
	default:
		return 0
	}
}

// Before reports whether s precedes other in the lifecycle.
func (s PlanStatus) Before(other PlanStatus) bool {
	return s.rank() < other.rank()
}

// Actor identifies the staff member performing an operation.
type Actor struct {
	Code string `json:"code" bson:"code"`
	Name string `json:"name,omitempty" bson:"name,omitempty"`
}

// IsZero reports whether no actor is set.
func (a Actor) IsZero() bool {
	return a.Code == ""
}

// Line is one manifest entry. PlanID refers to the owning plan; a line is
// identified by the pair (PlanID, SequenceNo).
type Line struct {
	PlanID       string `json:"planId"`
	SequenceNo   int    `json:"sequenceNo"`
	ExpectedCode string `json:"expectedCode,omitempty"`
	RequiredQty  int    `json:"requiredQty"`
	VerifiedQty  int    `json:"verifiedQty"`

	Category     string `json:"category,omitempty"`
	ItemTitle    string `json:"itemTitle,omitempty"`
	ItemName     string `json:"itemName,omitempty"`
	ShelfNo      string `json:"shelfNo,omitempty"`
	QtyType      int    `json:"qtyType,omitempty"`
	Comment      string `json:"comment,omitempty"`
	AlertMessage string `json:"alertMessage,omitempty"`
	Remark       string `json:"remark,omitempty"`
}

// Complete is derived from the counters and never stored.
func (l Line) Complete() bool {
	return l.VerifiedQty >= l.RequiredQty
}

// HasExpectedCode reports whether the line can be verified by scanning.
func (l Line) HasExpectedCode() bool {
	return strings.TrimSpace(l.ExpectedCode) != ""
}

// Remaining returns the units still to verify.
func (l Line) Remaining() int {
	if l.Complete() {
		return 0
	}
	return l.RequiredQty - l.VerifiedQty
}

// Plan is the aggregate root for verification: one manifest of work.
type Plan struct {
	ID           string     `json:"id"`
	Status       PlanStatus `json:"status"`
	DeliveryDate time.Time  `json:"deliveryDate"`
	ProductCode  string     `json:"productCode"`
	Quantity     int        `json:"quantity"`
	SourceFile   string     `json:"sourceFile,omitempty"`

	StartedAt   Stamp     `json:"startedAt"`
	StartedBy   Actor     `json:"startedBy"`
	CompletedAt Stamp     `json:"completedAt"`
	UpdatedAt   Stamp     `json:"updatedAt"`
	UpdatedBy   Actor     `json:"updatedBy"`
	CreatedAt   time.Time `json:"createdAt"`
	CreatedBy   Actor     `json:"createdBy"`

	// Version increments with every persisted update.
	Version int64  `json:"version"`
	Lines   []Line `json:"lines"`
}

// Clone returns a deep copy of the plan.
func (p *Plan) Clone() *Plan {
	c := *p
	c.Lines = make([]Line, len(p.Lines))
	copy(c.Lines, p.Lines)
	return &c
}

// Line returns the line with the given sequence number.
func (p *Plan) Line(sequenceNo int) (Line, bool) {
	if i := p.lineIndex(sequenceNo); i >= 0 {
		return p.Lines[i], true
	}
	return Line{}, false
}

func (p *Plan) lineIndex(sequenceNo int) int {
	for i := range p.Lines {
		if p.Lines[i].SequenceNo == sequenceNo {
			return i
		}
	}
	return -1
}

// AllComplete reports whether every line is complete. A plan without lines
// is trivially complete.
func (p *Plan) AllComplete() bool {
	for _, l := range p.Lines {
		if !l.Complete() {
			return false
		}
	}
	return true
}

// Progress returns the verified and required unit totals.
func (p *Plan) Progress() (verified, required int) {
	for _, l := range p.Lines {
		verified += l.VerifiedQty
		required += l.RequiredQty
	}
	return verified, required
}

// CompletedLines counts complete lines.
func (p *Plan) CompletedLines() int {
	n := 0
	for _, l := range p.Lines {
		if l.Complete() {
			n++
		}
	}
	return n
}

// IsActive reports whether the plan still belongs in work queues.
func (p *Plan) IsActive() bool {
	return p.Status != PlanStatusDone
}

// SortLines orders lines by sequence number.
func (p *Plan) SortLines() {
	sort.SliceStable(p.Lines, func(i, j int) bool {
		return p.Lines[i].SequenceNo < p.Lines[j].SequenceNo
	})
}

// AttachLines points every line at the plan.
func (p *Plan) AttachLines() {
	for i := range p.Lines {
		p.Lines[i].PlanID = p.ID
	}
}

// FirstSequenceNo returns the lowest sequence number, or 0 without lines.
func (p *Plan) FirstSequenceNo() int {
	first := 0
	for _, l := range p.Lines {
		if first == 0 || l.SequenceNo < first {
			first = l.SequenceNo
		}
	}
	return first
}
