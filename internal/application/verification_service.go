package application

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"

	"github.com/wms-platform/verification-service/internal/barcode"
	"github.com/wms-platform/verification-service/internal/domain"
	"github.com/wms-platform/verification-service/pkg/errors"
	"github.com/wms-platform/verification-service/pkg/logging"
	"github.com/wms-platform/verification-service/pkg/metrics"
)

const scanAccepted = "ACCEPTED"

// VerificationService handles the operator-facing verification use cases
type VerificationService struct {
	plans    domain.PlanRepository
	staff    domain.StaffDirectory
	sessions domain.SessionStore
	decoder  *barcode.Decoder
	metrics  *metrics.Metrics
	logger   *logging.Logger
}

// NewVerificationService creates a new VerificationService. sessions may be
// nil, in which case scans without a sequence number target the first
// incomplete line. A nil decoder compares raw payloads.
func NewVerificationService(
	plans domain.PlanRepository,
	staff domain.StaffDirectory,
	sessions domain.SessionStore,
	decoder *barcode.Decoder,
	m *metrics.Metrics,
	logger *logging.Logger,
) *VerificationService {
	return &VerificationService{
		plans:    plans,
		staff:    staff,
		sessions: sessions,
		decoder:  decoder,
		metrics:  m,
		logger:   logger.WithComponent("verification"),
	}
}

// GetPlan retrieves a plan with its lines
func (s *VerificationService) GetPlan(ctx context.Context, query GetPlanQuery) (*PlanDTO, error) {
	plan, err := s.loadPlan(ctx, query.PlanID)
	if err != nil {
		return nil, err
	}
	return ToPlanDTO(plan), nil
}

// ListPlans lists plans ordered by delivery date, then id
func (s *VerificationService) ListPlans(ctx context.Context, query ListPlansQuery) ([]*PlanSummaryDTO, error) {
	plans, err := s.plans.ListPlans(ctx, domain.PlanFilter{
		OnOrBeforeDate: query.OnOrBefore,
		CodeContains:   query.CodeContains,
		ActiveOnly:     query.ActiveOnly,
		Limit:          query.Limit,
	})
	if err != nil {
		s.logger.WithError(err).Error("Failed to list plans")
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}

	result := make([]*PlanSummaryDTO, 0, len(plans))
	for _, p := range plans {
		result = append(result, ToPlanSummaryDTO(p))
	}
	return result, nil
}

// ListStaff lists the staff directory
func (s *VerificationService) ListStaff(ctx context.Context) ([]StaffDTO, error) {
	staff, err := s.staff.ListStaff(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list staff")
		return nil, fmt.Errorf("failed to list staff: %w", err)
	}

	result := make([]StaffDTO, 0, len(staff))
	for _, member := range staff {
		result = append(result, ToStaffDTO(member))
	}
	return result, nil
}

// OpenPlan positions the operator on the first incomplete line
func (s *VerificationService) OpenPlan(ctx context.Context, cmd OpenPlanCommand) (*SessionDTO, error) {
	actor, err := s.resolveActor(ctx, cmd.StaffCode)
	if err != nil {
		return nil, err
	}
	ctx = logging.ContextWithStaffCode(ctx, actor.Code)

	plan, err := s.loadPlan(ctx, cmd.PlanID)
	if err != nil {
		return nil, err
	}

	pointer := domain.NextPointer(plan, plan.FirstSequenceNo())
	s.storePointer(ctx, plan, actor, pointer)

	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "plan.opened",
		EntityType: "plan",
		EntityID:   plan.ID,
		Action:     "opened",
		StaffCode:  actor.Code,
		Details:    map[string]any{"sequenceNo": pointer, "status": string(plan.Status)},
	})

	return &SessionDTO{
		Staff:             ActorDTO{Code: actor.Code, Name: actor.Name},
		CurrentSequenceNo: pointer,
		Plan:              ToPlanDTO(plan),
	}, nil
}

// Scan matches a payload against the targeted line and persists the result.
// On any failure nothing is adopted: the stored plan and the session pointer
// stay where they were.
func (s *VerificationService) Scan(ctx context.Context, cmd ScanCommand) (*ScanResultDTO, error) {
	actor, err := s.resolveActor(ctx, cmd.StaffCode)
	if err != nil {
		return nil, err
	}
	ctx = logging.ContextWithStaffCode(ctx, actor.Code)

	plan, err := s.loadPlan(ctx, cmd.PlanID)
	if err != nil {
		return nil, err
	}
	if err := checkVersion(plan, cmd.Version); err != nil {
		return nil, err
	}

	target, err := s.targetLine(ctx, plan, actor, cmd.SequenceNo)
	if err != nil {
		return nil, err
	}

	scanned, fields := s.decode(cmd.Payload)

	proposed, err := domain.AttemptScan(plan, target, scanned, actor)
	if err != nil {
		if rejection, ok := domain.AsScanRejection(err); ok {
			s.metrics.RecordScan(string(rejection.Reason))
			s.logger.ScanRejected(ctx, plan.ID, rejection.SequenceNo, string(rejection.Reason), rejection.Scanned, rejection.Expected)
			return nil, errors.ErrScanRejected(string(rejection.Reason), rejection.Scanned, rejection.Expected).
				WithDetail("sequenceNo", strconv.Itoa(rejection.SequenceNo))
		}
		return nil, s.mapError(err, plan.ID)
	}

	stored, err := s.plans.ApplyPlanUpdate(ctx, plan.ID, proposed)
	if err != nil {
		return nil, s.persistFailure(ctx, err, plan.ID, "scan")
	}

	s.metrics.RecordScan(scanAccepted)
	s.metrics.RecordPlanTransition(string(plan.Status), string(stored.Status))

	line, _ := stored.Line(target)
	next := domain.NextPointer(stored, target)
	completed := stored.Status == domain.PlanStatusDone
	if completed {
		s.clearPointer(ctx, stored.ID, actor)
	} else {
		s.storePointer(ctx, stored, actor, next)
	}

	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "line.verified",
		EntityType: "plan",
		EntityID:   stored.ID,
		Action:     "verified",
		StaffCode:  actor.Code,
		Details: map[string]any{
			"sequenceNo":  target,
			"verifiedQty": line.VerifiedQty,
			"requiredQty": line.RequiredQty,
			"version":     stored.Version,
		},
	})
	if completed {
		s.logPlanCompleted(ctx, stored, actor)
	}

	return &ScanResultDTO{
		SequenceNo:     target,
		Scanned:        scanned,
		Fields:         fields,
		LineComplete:   line.Complete(),
		PlanCompleted:  completed,
		NextSequenceNo: next,
		Plan:           ToPlanDTO(stored),
	}, nil
}

// Finish completes a plan on operator request
func (s *VerificationService) Finish(ctx context.Context, cmd FinishCommand) (*PlanDTO, error) {
	actor, err := s.resolveActor(ctx, cmd.StaffCode)
	if err != nil {
		return nil, err
	}
	ctx = logging.ContextWithStaffCode(ctx, actor.Code)

	plan, err := s.loadPlan(ctx, cmd.PlanID)
	if err != nil {
		return nil, err
	}
	if err := checkVersion(plan, cmd.Version); err != nil {
		return nil, err
	}

	proposed, err := domain.Finish(plan, actor)
	if err != nil {
		if stderrors.Is(err, domain.ErrPlanIncomplete) {
			return nil, errors.ErrPlanIncomplete(len(plan.Lines) - plan.CompletedLines())
		}
		return nil, s.mapError(err, plan.ID)
	}

	stored, err := s.plans.ApplyPlanUpdate(ctx, plan.ID, proposed)
	if err != nil {
		return nil, s.persistFailure(ctx, err, plan.ID, "finish")
	}

	s.metrics.RecordPlanTransition(string(plan.Status), string(stored.Status))
	s.clearPointer(ctx, stored.ID, actor)
	s.logPlanCompleted(ctx, stored, actor)

	return ToPlanDTO(stored), nil
}

// Decode previews how the configured decoder reads a payload
func (s *VerificationService) Decode(ctx context.Context, query DecodeQuery) (*DecodeResultDTO, error) {
	if s.decoder == nil {
		return nil, errors.ErrBadRequest("structured codes are disabled")
	}

	primary, fields := s.decoder.Primary(query.Payload)
	_, found := fields[s.decoder.PrimaryIdentifier()]
	s.metrics.RecordDecode(found)

	return &DecodeResultDTO{Primary: primary, PrimaryFound: found, Fields: fields}, nil
}

func (s *VerificationService) loadPlan(ctx context.Context, planID string) (*domain.Plan, error) {
	plan, err := s.plans.FetchPlan(ctx, planID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get plan", "planId", planID)
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	if plan == nil {
		return nil, errors.ErrNotFoundWithID("plan", planID)
	}
	return plan, nil
}

func (s *VerificationService) resolveActor(ctx context.Context, staffCode string) (domain.Actor, error) {
	if staffCode == "" {
		return domain.Actor{}, errors.ErrValidationWithFields("validation failed", map[string]string{"staffCode": "is required"})
	}

	staff, err := s.staff.FindStaff(ctx, staffCode)
	if err != nil {
		s.logger.WithError(err).Error("Failed to resolve staff", "staffCode", staffCode)
		return domain.Actor{}, fmt.Errorf("failed to resolve staff: %w", err)
	}
	if staff == nil {
		return domain.Actor{}, errors.ErrNotFoundWithID("staff", staffCode)
	}
	return staff.Actor(), nil
}

func checkVersion(plan *domain.Plan, version *int64) error {
	if version != nil && *version != plan.Version {
		return errors.ErrVersionConflict("plan").
			WithDetail("expectedVersion", strconv.FormatInt(*version, 10)).
			WithDetail("currentVersion", strconv.FormatInt(plan.Version, 10))
	}
	return nil
}

// targetLine picks the line a scan applies to: the explicit sequence number,
// then the stored session pointer, then the first incomplete line.
func (s *VerificationService) targetLine(ctx context.Context, plan *domain.Plan, actor domain.Actor, requested *int) (int, error) {
	if requested != nil {
		if _, ok := plan.Line(*requested); !ok {
			return 0, errors.ErrNotFoundWithID("plan line", strconv.Itoa(*requested))
		}
		return *requested, nil
	}

	if s.sessions != nil {
		seq, ok, err := s.sessions.GetPointer(ctx, plan.ID, actor.Code)
		if err != nil {
			s.logger.WithError(err).Warn("Session pointer unavailable", "planId", plan.ID, "staffCode", actor.Code)
		} else if ok {
			if _, exists := plan.Line(seq); exists {
				return seq, nil
			}
		}
	}

	return domain.NextPointer(plan, plan.FirstSequenceNo()), nil
}

func (s *VerificationService) decode(payload string) (string, map[string]string) {
	if s.decoder == nil {
		return payload, nil
	}
	primary, fields := s.decoder.Primary(payload)
	_, found := fields[s.decoder.PrimaryIdentifier()]
	s.metrics.RecordDecode(found)
	return primary, fields
}

func (s *VerificationService) storePointer(ctx context.Context, plan *domain.Plan, actor domain.Actor, seq int) {
	if s.sessions == nil {
		return
	}
	if err := s.sessions.SetPointer(ctx, plan.ID, actor.Code, seq); err != nil {
		s.logger.WithError(err).Warn("Failed to store session pointer", "planId", plan.ID, "staffCode", actor.Code)
	}
}

func (s *VerificationService) clearPointer(ctx context.Context, planID string, actor domain.Actor) {
	if s.sessions == nil {
		return
	}
	if err := s.sessions.ClearPointer(ctx, planID, actor.Code); err != nil {
		s.logger.WithError(err).Warn("Failed to clear session pointer", "planId", planID, "staffCode", actor.Code)
	}
}

func (s *VerificationService) logPlanCompleted(ctx context.Context, plan *domain.Plan, actor domain.Actor) {
	_, units := plan.Progress()
	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "plan.completed",
		EntityType: "plan",
		EntityID:   plan.ID,
		Action:     "completed",
		StaffCode:  actor.Code,
		Details:    map[string]any{"lines": len(plan.Lines), "units": units},
	})
}

// persistFailure reports a failed ApplyPlanUpdate. Version conflicts ask the
// client to reload; anything else is a retryable update failure.
func (s *VerificationService) persistFailure(ctx context.Context, err error, planID, operation string) error {
	switch {
	case stderrors.Is(err, domain.ErrVersionConflict):
		s.metrics.RecordPersistenceFailure("version_conflict")
		s.logger.WithContext(ctx).Warn("Plan changed by another session", "planId", planID, "operation", operation)
		return errors.ErrVersionConflict("plan").Wrap(err)
	case stderrors.Is(err, domain.ErrPlanNotFound):
		return errors.ErrNotFoundWithID("plan", planID)
	case domain.IsProtocolError(err):
		s.metrics.RecordPersistenceFailure("protocol")
		s.logger.WithError(err).Error("Rejected plan update", "planId", planID, "operation", operation)
		return errors.ErrInternal("plan update was rejected").Wrap(err)
	default:
		s.metrics.RecordPersistenceFailure("store")
		s.logger.WithError(err).Error("Failed to save plan", "planId", planID, "operation", operation)
		return errors.ErrUpdateFailed("plan").Wrap(err)
	}
}

func (s *VerificationService) mapError(err error, planID string) error {
	switch {
	case stderrors.Is(err, domain.ErrLineNotFound):
		return errors.ErrNotFound("plan line")
	case stderrors.Is(err, domain.ErrActorRequired):
		return errors.ErrValidation(err.Error())
	default:
		s.logger.WithError(err).Error("Unexpected plan error", "planId", planID)
		return fmt.Errorf("plan %s: %w", planID, err)
	}
}
