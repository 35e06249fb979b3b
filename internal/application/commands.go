package application

import "time"

// GetPlanQuery represents the query to get a plan by ID
type GetPlanQuery struct {
	PlanID string
}

// ListPlansQuery represents the query behind the plan picker
type ListPlansQuery struct {
	OnOrBefore   *time.Time
	CodeContains string
	ActiveOnly   bool
	Limit        int
}

// OpenPlanCommand starts or resumes an operator session on a plan
type OpenPlanCommand struct {
	PlanID    string
	StaffCode string
}

// ScanCommand submits one scanned payload. SequenceNo overrides the session
// pointer; Version, when set, must match the stored plan.
type ScanCommand struct {
	PlanID     string
	StaffCode  string
	Payload    string
	SequenceNo *int
	Version    *int64
}

// FinishCommand completes a plan explicitly
type FinishCommand struct {
	PlanID    string
	StaffCode string
	Version   *int64
}

// DecodeQuery previews how a payload decodes
type DecodeQuery struct {
	Payload string
}
