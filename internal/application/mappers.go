package application

import "github.com/wms-platform/verification-service/internal/domain"

const dateLayout = "2006-01-02"

func toActorDTO(a domain.Actor) *ActorDTO {
	if a.IsZero() {
		return nil
	}
	return &ActorDTO{Code: a.Code, Name: a.Name}
}

// ToLineDTO converts a domain Line to LineDTO
func ToLineDTO(l domain.Line) LineDTO {
	return LineDTO{
		SequenceNo:   l.SequenceNo,
		ExpectedCode: l.ExpectedCode,
		RequiredQty:  l.RequiredQty,
		VerifiedQty:  l.VerifiedQty,
		Remaining:    l.Remaining(),
		Complete:     l.Complete(),
		Scannable:    l.HasExpectedCode(),
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

// ToPlanSummaryDTO converts a domain Plan to PlanSummaryDTO
func ToPlanSummaryDTO(p *domain.Plan) *PlanSummaryDTO {
	if p == nil {
		return nil
	}

	verified, required := p.Progress()
	return &PlanSummaryDTO{
		ID:           p.ID,
		Status:       string(p.Status),
		DeliveryDate: p.DeliveryDate.Format(dateLayout),
		ProductCode:  p.ProductCode,
		Quantity:     p.Quantity,
		StartedAt:    p.StartedAt.Ptr(),
		StartedBy:    toActorDTO(p.StartedBy),
		CompletedAt:  p.CompletedAt.Ptr(),
		UpdatedAt:    p.UpdatedAt.Ptr(),
		UpdatedBy:    toActorDTO(p.UpdatedBy),
		Version:      p.Version,
		Progress: ProgressDTO{
			CompletedLines: p.CompletedLines(),
			TotalLines:     len(p.Lines),
			VerifiedUnits:  verified,
			RequiredUnits:  required,
		},
	}
}

// ToPlanDTO converts a domain Plan to PlanDTO
func ToPlanDTO(p *domain.Plan) *PlanDTO {
	if p == nil {
		return nil
	}

	lines := make([]LineDTO, 0, len(p.Lines))
	for _, l := range p.Lines {
		lines = append(lines, ToLineDTO(l))
	}

	return &PlanDTO{
		PlanSummaryDTO: *ToPlanSummaryDTO(p),
		SourceFile:     p.SourceFile,
		CreatedAt:      p.CreatedAt,
		Lines:          lines,
	}
}

// ToStaffDTO converts a domain Staff to StaffDTO
func ToStaffDTO(s *domain.Staff) StaffDTO {
	return StaffDTO{Code: s.Code, Name: s.Name}
}
