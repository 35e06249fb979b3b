package application

import "time"

// ActorDTO identifies a staff member in responses
type ActorDTO struct {
	Code string `json:"code"`
	Name string `json:"name,omitempty"`
}

// ProgressDTO summarises verification progress
type ProgressDTO struct {
	CompletedLines int `json:"completedLines"`
	TotalLines     int `json:"totalLines"`
	VerifiedUnits  int `json:"verifiedUnits"`
	RequiredUnits  int `json:"requiredUnits"`
}

// LineDTO represents a plan line in responses
type LineDTO struct {
	SequenceNo   int    `json:"sequenceNo"`
	ExpectedCode string `json:"expectedCode,omitempty"`
	RequiredQty  int    `json:"requiredQty"`
	VerifiedQty  int    `json:"verifiedQty"`
	Remaining    int    `json:"remaining"`
	Complete     bool   `json:"complete"`
	Scannable    bool   `json:"scannable"`
	Category     string `json:"category,omitempty"`
	ItemTitle    string `json:"itemTitle,omitempty"`
	ItemName     string `json:"itemName,omitempty"`
	ShelfNo      string `json:"shelfNo,omitempty"`
	QtyType      int    `json:"qtyType,omitempty"`
	Comment      string `json:"comment,omitempty"`
	AlertMessage string `json:"alertMessage,omitempty"`
	Remark       string `json:"remark,omitempty"`
}

// PlanSummaryDTO is a plan without its lines
type PlanSummaryDTO struct {
	ID           string      `json:"id"`
	Status       string      `json:"status"`
	DeliveryDate string      `json:"deliveryDate"`
	ProductCode  string      `json:"productCode"`
	Quantity     int         `json:"quantity"`
	StartedAt    *time.Time  `json:"startedAt,omitempty"`
	StartedBy    *ActorDTO   `json:"startedBy,omitempty"`
	CompletedAt  *time.Time  `json:"completedAt,omitempty"`
	UpdatedAt    *time.Time  `json:"updatedAt,omitempty"`
	UpdatedBy    *ActorDTO   `json:"updatedBy,omitempty"`
	Version      int64       `json:"version"`
	Progress     ProgressDTO `json:"progress"`
}

// PlanDTO represents a plan with its lines
type PlanDTO struct {
	PlanSummaryDTO
	SourceFile string    `json:"sourceFile,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	Lines      []LineDTO `json:"lines"`
}

// SessionDTO is returned when an operator opens a plan
type SessionDTO struct {
	Staff             ActorDTO `json:"staff"`
	CurrentSequenceNo int      `json:"currentSequenceNo"`
	Plan              *PlanDTO `json:"plan"`
}

// ScanResultDTO is returned for an accepted scan
type ScanResultDTO struct {
	SequenceNo     int               `json:"sequenceNo"`
	Scanned        string            `json:"scanned"`
	Fields         map[string]string `json:"fields,omitempty"`
	LineComplete   bool              `json:"lineComplete"`
	PlanCompleted  bool              `json:"planCompleted"`
	NextSequenceNo int               `json:"nextSequenceNo"`
	Plan           *PlanDTO          `json:"plan"`
}

// DecodeResultDTO previews a decoded payload
type DecodeResultDTO struct {
	Primary      string            `json:"primary"`
	PrimaryFound bool              `json:"primaryFound"`
	Fields       map[string]string `json:"fields"`
}

// StaffDTO represents a staff directory entry
type StaffDTO struct {
	Code string `json:"code"`
	Name string `json:"name"`
}
