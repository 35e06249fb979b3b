// Package instrumented wraps the store ports with metrics and query logging.
package instrumented

import (
	"context"
	"time"

	"github.com/wms-platform/verification-service/internal/domain"
	"github.com/wms-platform/verification-service/pkg/logging"
	"github.com/wms-platform/verification-service/pkg/metrics"
)

// PlanRepository records every plan store call
type PlanRepository struct {
	inner   domain.PlanRepository
	store   string
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// NewPlanRepository wraps inner. store names the backend in metric labels.
func NewPlanRepository(inner domain.PlanRepository, store string, m *metrics.Metrics, logger *logging.Logger) *PlanRepository {
	return &PlanRepository{inner: inner, store: store, metrics: m, logger: logger}
}

func (r *PlanRepository) record(ctx context.Context, operation string, start time.Time, err error, rows int64) {
	duration := time.Since(start)
	r.metrics.RecordStoreOperation(r.store, operation, err == nil, duration)
	r.logger.DatabaseQuery(ctx, r.store, operation, duration, err == nil, rows)
}

func (r *PlanRepository) FetchPlan(ctx context.Context, planID string) (*domain.Plan, error) {
	start := time.Now()
	plan, err := r.inner.FetchPlan(ctx, planID)

	var rows int64
	if plan != nil {
		rows = 1
	}
	r.record(ctx, "fetchPlan", start, err, rows)
	return plan, err
}

func (r *PlanRepository) ApplyPlanUpdate(ctx context.Context, planID string, proposed *domain.Plan) (*domain.Plan, error) {
	start := time.Now()
	stored, err := r.inner.ApplyPlanUpdate(ctx, planID, proposed)

	var rows int64
	if stored != nil {
		rows = 1
	}
	r.record(ctx, "applyPlanUpdate", start, err, rows)
	return stored, err
}

func (r *PlanRepository) ListPlans(ctx context.Context, filter domain.PlanFilter) ([]*domain.Plan, error) {
	start := time.Now()
	plans, err := r.inner.ListPlans(ctx, filter)
	r.record(ctx, "listPlans", start, err, int64(len(plans)))
	return plans, err
}

// StaffDirectory records every staff lookup
type StaffDirectory struct {
	inner   domain.StaffDirectory
	store   string
	metrics *metrics.Metrics
	logger  *logging.Logger
}

func NewStaffDirectory(inner domain.StaffDirectory, store string, m *metrics.Metrics, logger *logging.Logger) *StaffDirectory {
	return &StaffDirectory{inner: inner, store: store, metrics: m, logger: logger}
}

func (d *StaffDirectory) FindStaff(ctx context.Context, code string) (*domain.Staff, error) {
	start := time.Now()
	staff, err := d.inner.FindStaff(ctx, code)

	duration := time.Since(start)
	var rows int64
	if staff != nil {
		rows = 1
	}
	d.metrics.RecordStoreOperation(d.store, "findStaff", err == nil, duration)
	d.logger.DatabaseQuery(ctx, d.store, "findStaff", duration, err == nil, rows)
	return staff, err
}

func (d *StaffDirectory) ListStaff(ctx context.Context) ([]*domain.Staff, error) {
	start := time.Now()
	staff, err := d.inner.ListStaff(ctx)

	duration := time.Since(start)
	d.metrics.RecordStoreOperation(d.store, "listStaff", err == nil, duration)
	d.logger.DatabaseQuery(ctx, d.store, "listStaff", duration, err == nil, int64(len(staff)))
	return staff, err
}
