package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wms-platform/verification-service/internal/application"
	"github.com/wms-platform/verification-service/pkg/errors"
	"github.com/wms-platform/verification-service/pkg/logging"
	"github.com/wms-platform/verification-service/pkg/middleware"
)

const dateLayout = "2006-01-02"

// VerificationAPI is the application surface the handlers depend on
type VerificationAPI interface {
	GetPlan(ctx context.Context, query application.GetPlanQuery) (*application.PlanDTO, error)
	ListPlans(ctx context.Context, query application.ListPlansQuery) ([]*application.PlanSummaryDTO, error)
	ListStaff(ctx context.Context) ([]application.StaffDTO, error)
	OpenPlan(ctx context.Context, cmd application.OpenPlanCommand) (*application.SessionDTO, error)
	Scan(ctx context.Context, cmd application.ScanCommand) (*application.ScanResultDTO, error)
	Finish(ctx context.Context, cmd application.FinishCommand) (*application.PlanDTO, error)
	Decode(ctx context.Context, query application.DecodeQuery) (*application.DecodeResultDTO, error)
}

// Handlers contains HTTP handlers for verification endpoints
type Handlers struct {
	service VerificationAPI
	logger  *logging.Logger
}

// NewHandlers creates new HTTP handlers
func NewHandlers(service VerificationAPI, logger *logging.Logger) *Handlers {
	return &Handlers{
		service: service,
		logger:  logger,
	}
}

type listPlansRequest struct {
	OnOrBefore string `form:"onOrBefore" binding:"omitempty,datetime=2006-01-02"`
	Code       string `form:"code" binding:"omitempty,max=64"`
	Active     bool   `form:"active"`
	Limit      int    `form:"limit" binding:"omitempty,min=1,max=500"`
}

type openPlanRequest struct {
	StaffCode string `json:"staffCode" binding:"required,staff_code"`
}

type scanRequest struct {
	StaffCode  string `json:"staffCode" binding:"required,staff_code"`
	Payload    string `json:"payload" binding:"required,max=512"`
	SequenceNo *int   `json:"sequenceNo" binding:"omitempty,min=1"`
	Version    *int64 `json:"version" binding:"omitempty,min=0"`
}

type finishRequest struct {
	StaffCode string `json:"staffCode" binding:"required,staff_code"`
	Version   *int64 `json:"version" binding:"omitempty,min=0"`
}

type decodeRequest struct {
	Payload string `json:"payload" binding:"required,max=512"`
}

func planParam(c *gin.Context) (string, error) {
	planID := c.Param("planId")
	if appErr := middleware.ValidateVar("planId", planID, "required,plan_id"); appErr != nil {
		return "", appErr
	}
	trace.SpanFromContext(c.Request.Context()).SetAttributes(attribute.String("wms.plan_id", planID))
	return planID, nil
}

// ListPlans handles GET /api/v1/plans
func (h *Handlers) ListPlans() gin.HandlerFunc {
	return middleware.WrapHandler(func(c *gin.Context) error {
		var req listPlansRequest
		if appErr := middleware.BindQuery(c, &req); appErr != nil {
			return appErr
		}

		query := application.ListPlansQuery{
			CodeContains: req.Code,
			ActiveOnly:   req.Active,
			Limit:        req.Limit,
		}
		if req.OnOrBefore != "" {
			cutoff, err := time.Parse(dateLayout, req.OnOrBefore)
			if err != nil {
				return errors.ErrValidationWithFields("validation failed", map[string]string{"onOrBefore": "must be YYYY-MM-DD"})
			}
			query.OnOrBefore = &cutoff
		}

		plans, err := h.service.ListPlans(c.Request.Context(), query)
		if err != nil {
			return err
		}

		c.JSON(http.StatusOK, gin.H{"plans": plans, "count": len(plans)})
		return nil
	})
}

// GetPlan handles GET /api/v1/plans/:planId
func (h *Handlers) GetPlan() gin.HandlerFunc {
	return middleware.WrapHandler(func(c *gin.Context) error {
		planID, err := planParam(c)
		if err != nil {
			return err
		}

		plan, err := h.service.GetPlan(c.Request.Context(), application.GetPlanQuery{PlanID: planID})
		if err != nil {
			return err
		}

		c.JSON(http.StatusOK, plan)
		return nil
	})
}

// OpenPlan handles POST /api/v1/plans/:planId/open
func (h *Handlers) OpenPlan() gin.HandlerFunc {
	return middleware.WrapHandler(func(c *gin.Context) error {
		planID, err := planParam(c)
		if err != nil {
			return err
		}

		var req openPlanRequest
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			return appErr
		}

		session, err := h.service.OpenPlan(c.Request.Context(), application.OpenPlanCommand{
			PlanID:    planID,
			StaffCode: req.StaffCode,
		})
		if err != nil {
			return err
		}

		c.JSON(http.StatusOK, session)
		return nil
	})
}

// Scan handles POST /api/v1/plans/:planId/scan
func (h *Handlers) Scan() gin.HandlerFunc {
	return middleware.WrapHandler(func(c *gin.Context) error {
		planID, err := planParam(c)
		if err != nil {
			return err
		}

		var req scanRequest
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			return appErr
		}

		result, err := h.service.Scan(c.Request.Context(), application.ScanCommand{
			PlanID:     planID,
			StaffCode:  req.StaffCode,
			Payload:    req.Payload,
			SequenceNo: req.SequenceNo,
			Version:    req.Version,
		})
		if err != nil {
			return err
		}

		c.JSON(http.StatusOK, result)
		return nil
	})
}

// Finish handles POST /api/v1/plans/:planId/finish
func (h *Handlers) Finish() gin.HandlerFunc {
	return middleware.WrapHandler(func(c *gin.Context) error {
		planID, err := planParam(c)
		if err != nil {
			return err
		}

		var req finishRequest
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			return appErr
		}

		plan, err := h.service.Finish(c.Request.Context(), application.FinishCommand{
			PlanID:    planID,
			StaffCode: req.StaffCode,
			Version:   req.Version,
		})
		if err != nil {
			return err
		}

		c.JSON(http.StatusOK, plan)
		return nil
	})
}

// ListStaff handles GET /api/v1/staff
func (h *Handlers) ListStaff() gin.HandlerFunc {
	return middleware.WrapHandler(func(c *gin.Context) error {
		staff, err := h.service.ListStaff(c.Request.Context())
		if err != nil {
			return err
		}

		c.JSON(http.StatusOK, gin.H{"staff": staff, "count": len(staff)})
		return nil
	})
}

// Decode handles POST /api/v1/codes/decode
func (h *Handlers) Decode() gin.HandlerFunc {
	return middleware.WrapHandler(func(c *gin.Context) error {
		var req decodeRequest
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			return appErr
		}

		result, err := h.service.Decode(c.Request.Context(), application.DecodeQuery{Payload: req.Payload})
		if err != nil {
			return err
		}

		c.JSON(http.StatusOK, result)
		return nil
	})
}
