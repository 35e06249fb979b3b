package mongodb

import (
	"time"

	"github.com/wms-platform/verification-service/internal/domain"
)

// planDocument is the stored form of a plan; lines are embedded.
type planDocument struct {
	ID           string            `bson:"_id"`
	Status       domain.PlanStatus `bson:"status"`
	DeliveryDate time.Time         `bson:"deliveryDate"`
	ProductCode  string            `bson:"productCode"`
	Quantity     int               `bson:"quantity"`
	SourceFile   string            `bson:"sourceFile,omitempty"`

	StartedAt   *time.Time   `bson:"startedAt,omitempty"`
	StartedBy   domain.Actor `bson:"startedBy,omitempty"`
	CompletedAt *time.Time   `bson:"completedAt,omitempty"`
	UpdatedAt   *time.Time   `bson:"updatedAt,omitempty"`
	UpdatedBy   domain.Actor `bson:"updatedBy,omitempty"`
	CreatedAt   time.Time    `bson:"createdAt"`
	CreatedBy   domain.Actor `bson:"createdBy,omitempty"`

	Version int64          `bson:"version"`
	Lines   []lineDocument `bson:"lines"`
}

type lineDocument struct {
	SequenceNo   int    `bson:"sequenceNo"`
	ExpectedCode string `bson:"expectedCode,omitempty"`
	RequiredQty  int    `bson:"requiredQty"`
	VerifiedQty  int    `bson:"verifiedQty"`
	Category     string `bson:"category,omitempty"`
	ItemTitle    string `bson:"itemTitle,omitempty"`
	ItemName     string `bson:"itemName,omitempty"`
	ShelfNo      string `bson:"shelfNo,omitempty"`
	QtyType      int    `bson:"qtyType,omitempty"`
	Comment      string `bson:"comment,omitempty"`
	AlertMessage string `bson:"alertMessage,omitempty"`
	Remark       string `bson:"remark,omitempty"`
}

func (d *planDocument) toDomain() *domain.Plan {
	plan := &domain.Plan{
		ID:           d.ID,
		Status:       d.Status,
		DeliveryDate: d.DeliveryDate.UTC(),
		ProductCode:  d.ProductCode,
		Quantity:     d.Quantity,
		SourceFile:   d.SourceFile,
		StartedAt:    domain.StampFromPtr(utcPtr(d.StartedAt)),
		StartedBy:    d.StartedBy,
		CompletedAt:  domain.StampFromPtr(utcPtr(d.CompletedAt)),
		UpdatedAt:    domain.StampFromPtr(utcPtr(d.UpdatedAt)),
		UpdatedBy:    d.UpdatedBy,
		CreatedAt:    d.CreatedAt.UTC(),
		CreatedBy:    d.CreatedBy,
		Version:      d.Version,
		Lines:        make([]domain.Line, len(d.Lines)),
	}
	for i, l := range d.Lines {
		plan.Lines[i] = domain.Line{
			PlanID:       d.ID,
			SequenceNo:   l.SequenceNo,
			ExpectedCode: l.ExpectedCode,
			RequiredQty:  l.RequiredQty,
			VerifiedQty:  l.VerifiedQty,
			Category:     l.Category,
			ItemTitle:    l.ItemTitle,
			ItemName:     l.ItemName,
			ShelfNo:      l.ShelfNo,
			QtyType:      l.QtyType,
			Comment:      l.Comment,
			AlertMessage: l.AlertMessage,
			Remark:       l.Remark,
		}
	}
	plan.SortLines()
	return plan
}

func fromDomain(p *domain.Plan) *planDocument {
	doc := &planDocument{
		ID:           p.ID,
		Status:       p.Status,
		DeliveryDate: p.DeliveryDate,
		ProductCode:  p.ProductCode,
		Quantity:     p.Quantity,
		SourceFile:   p.SourceFile,
		StartedAt:    p.StartedAt.Ptr(),
		StartedBy:    p.StartedBy,
		CompletedAt:  p.CompletedAt.Ptr(),
		UpdatedAt:    p.UpdatedAt.Ptr(),
		UpdatedBy:    p.UpdatedBy,
		CreatedAt:    p.CreatedAt,
		CreatedBy:    p.CreatedBy,
		Version:      p.Version,
		Lines:        make([]lineDocument, len(p.Lines)),
	}
	for i, l := range p.Lines {
		doc.Lines[i] = lineDocument{
			SequenceNo:   l.SequenceNo,
			ExpectedCode: l.ExpectedCode,
			RequiredQty:  l.RequiredQty,
			VerifiedQty:  l.VerifiedQty,
			Category:     l.Category,
			ItemTitle:    l.ItemTitle,
			ItemName:     l.ItemName,
			ShelfNo:      l.ShelfNo,
			QtyType:      l.QtyType,
			Comment:      l.Comment,
			AlertMessage: l.AlertMessage,
			Remark:       l.Remark,
		}
	}
	return doc
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// staffDocument is a staff directory entry keyed by code.
type staffDocument struct {
	Code string `bson:"_id"`
	Name string `bson:"name"`
}
