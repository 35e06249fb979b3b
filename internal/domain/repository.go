package domain

import (
	"context"
	"time"
)

// PlanFilter narrows ListPlans. Zero values disable a criterion.
type PlanFilter struct {
	OnOrBeforeDate *time.Time
	CodeContains   string
	ActiveOnly     bool
	Limit          int
}

// PlanRepository defines the interface for plan persistence
type PlanRepository interface {
	// FetchPlan returns nil, nil when the plan does not exist.
	FetchPlan(ctx context.Context, planID string) (*Plan, error)

	// ApplyPlanUpdate persists proposed as one atomic unit and returns the
	// stored result with store-assigned timestamps and the new version.
	ApplyPlanUpdate(ctx context.Context, planID string, proposed *Plan) (*Plan, error)

	// ListPlans returns plans ordered by delivery date, then id.
	ListPlans(ctx context.Context, filter PlanFilter) ([]*Plan, error)
}

// Staff is a member of the staff directory
type Staff struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Actor returns the staff member as an operation actor.
func (s Staff) Actor() Actor {
	return Actor{Code: s.Code, Name: s.Name}
}

// StaffDirectory resolves staff codes to actors
type StaffDirectory interface {
	// FindStaff returns nil, nil when the code is unknown.
	FindStaff(ctx context.Context, code string) (*Staff, error)
	ListStaff(ctx context.Context) ([]*Staff, error)
}

// SessionStore keeps the active line pointer of an operator session
type SessionStore interface {
	GetPointer(ctx context.Context, planID, staffCode string) (int, bool, error)
	SetPointer(ctx context.Context, planID, staffCode string, sequenceNo int) error
	ClearPointer(ctx context.Context, planID, staffCode string) error
}
