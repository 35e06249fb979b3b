package domain

import "time"

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
}

// PlanStartedEvent is published when the first scan moves a plan out of PENDING
type PlanStartedEvent struct {
	PlanID      string    `json:"planId"`
	ProductCode string    `json:"productCode,omitempty"`
	StaffCode   string    `json:"staffCode"`
	StartedAt   time.Time `json:"startedAt"`
}

func (e *PlanStartedEvent) EventType() string    { return "wms.verification.plan-started" }
func (e *PlanStartedEvent) OccurredAt() time.Time { return e.StartedAt }

// LineVerifiedEvent is published for every accepted scan
type LineVerifiedEvent struct {
	PlanID      string    `json:"planId"`
	SequenceNo  int       `json:"sequenceNo"`
	VerifiedQty int       `json:"verifiedQty"`
	RequiredQty int       `json:"requiredQty"`
	Complete    bool      `json:"complete"`
	StaffCode   string    `json:"staffCode"`
	VerifiedAt  time.Time `json:"verifiedAt"`
}

func (e *LineVerifiedEvent) EventType() string    { return "wms.verification.line-verified" }
func (e *LineVerifiedEvent) OccurredAt() time.Time { return e.VerifiedAt }

// PlanCompletedEvent is published when a plan reaches DONE
type PlanCompletedEvent struct {
	PlanID      string    `json:"planId"`
	ProductCode string    `json:"productCode,omitempty"`
	StaffCode   string    `json:"staffCode"`
	TotalLines  int       `json:"totalLines"`
	TotalUnits  int       `json:"totalUnits"`
	CompletedAt time.Time `json:"completedAt"`
}

func (e *PlanCompletedEvent) EventType() string    { return "wms.verification.plan-completed" }
func (e *PlanCompletedEvent) OccurredAt() time.Time { return e.CompletedAt }

// EventsFor returns the events an applied update produces. at is the store
// time the update was committed with.
func EventsFor(update *PlanUpdate, plan *Plan, at time.Time) []DomainEvent {
	var events []DomainEvent
	staff := update.UpdatedBy.Code

	if update.StartsPlan() {
		events = append(events, &PlanStartedEvent{
			PlanID:      update.PlanID,
			ProductCode: plan.ProductCode,
			StaffCode:   staff,
			StartedAt:   at,
		})
	}

	for _, w := range update.Lines {
		if w.VerifiedQty <= w.PreviousQty {
			continue
		}
		events = append(events, &LineVerifiedEvent{
			PlanID:      w.PlanID,
			SequenceNo:  w.SequenceNo,
			VerifiedQty: w.VerifiedQty,
			RequiredQty: w.RequiredQty,
			Complete:    w.VerifiedQty >= w.RequiredQty,
			StaffCode:   staff,
			VerifiedAt:  at,
		})
	}

	if update.CompletesPlan() {
		_, units := plan.Progress()
		events = append(events, &PlanCompletedEvent{
			PlanID:      update.PlanID,
			ProductCode: plan.ProductCode,
			StaffCode:   staff,
			TotalLines:  len(plan.Lines),
			TotalUnits:  units,
			CompletedAt: at,
		})
	}

	return events
}
