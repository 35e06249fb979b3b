package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wms-platform/verification-service/internal/domain"
	"github.com/wms-platform/verification-service/internal/infrastructure/outboxevents"
	"github.com/wms-platform/verification-service/pkg/cloudevents"
	"github.com/wms-platform/verification-service/pkg/outbox"
	"github.com/wms-platform/verification-service/pkg/tracing"
)

const planColumns = `id, status, delivery_date, product_code, quantity, source_file,
	started_at, started_by_code, started_by_name, completed_at,
	updated_at, updated_by_code, updated_by_name,
	created_at, created_by_code, created_by_name, version`

const lineColumns = `plan_id, sequence_no, expected_code, required_qty, verified_qty,
	category, item_title, item_name, shelf_no, qty_type, comment, alert_message, remark`

const uniqueViolation = "23505"

// dateLayout formats delivery date filters as DATE literals.
const dateLayout = "2006-01-02"

// queryer is satisfied by *sql.DB and *sql.Tx
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// PlanRepository implements domain.PlanRepository on PostgreSQL. Lines
// live in plan_lines keyed by (plan_id, sequence_no).
type PlanRepository struct {
	db           *sql.DB
	eventFactory *cloudevents.EventFactory
	tracer       trace.Tracer
}

func NewPlanRepository(db *sql.DB, eventFactory *cloudevents.EventFactory) *PlanRepository {
	return &PlanRepository{
		db:           db,
		eventFactory: eventFactory,
		tracer:       otel.Tracer("verification-service/postgres"),
	}
}

func scanPlan(row rowScanner) (*domain.Plan, error) {
	var (
		p                                 domain.Plan
		status                            string
		startedAt, completedAt, updatedAt sql.NullTime
		startedCode, startedName          sql.NullString
		updatedCode, updatedName          sql.NullString
		createdCode, createdName          sql.NullString
	)
	err := row.Scan(
		&p.ID, &status, &p.DeliveryDate, &p.ProductCode, &p.Quantity, &p.SourceFile,
		&startedAt, &startedCode, &startedName, &completedAt,
		&updatedAt, &updatedCode, &updatedName,
		&p.CreatedAt, &createdCode, &createdName, &p.Version,
	)
	if err != nil {
		return nil, err
	}

	p.Status = domain.PlanStatus(status)
	p.DeliveryDate = p.DeliveryDate.UTC()
	p.CreatedAt = p.CreatedAt.UTC()
	p.StartedAt = domain.StampFromPtr(timePtr(startedAt))
	p.CompletedAt = domain.StampFromPtr(timePtr(completedAt))
	p.UpdatedAt = domain.StampFromPtr(timePtr(updatedAt))
	p.StartedBy = domain.Actor{Code: startedCode.String, Name: startedName.String}
	p.UpdatedBy = domain.Actor{Code: updatedCode.String, Name: updatedName.String}
	p.CreatedBy = domain.Actor{Code: createdCode.String, Name: createdName.String}
	return &p, nil
}

func scanLine(row rowScanner) (domain.Line, error) {
	var l domain.Line
	err := row.Scan(
		&l.PlanID, &l.SequenceNo, &l.ExpectedCode, &l.RequiredQty, &l.VerifiedQty,
		&l.Category, &l.ItemTitle, &l.ItemName, &l.ShelfNo, &l.QtyType,
		&l.Comment, &l.AlertMessage, &l.Remark,
	)
	return l, err
}

func loadLines(ctx context.Context, q queryer, planIDs []string) (map[string][]domain.Line, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+lineColumns+` FROM plan_lines WHERE plan_id = ANY($1) ORDER BY plan_id, sequence_no`,
		pq.Array(planIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query plan lines: %w", err)
	}
	defer rows.Close()

	lines := make(map[string][]domain.Line, len(planIDs))
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan line: %w", err)
		}
		lines[l.PlanID] = append(lines[l.PlanID], l)
	}
	return lines, rows.Err()
}

func fetchPlan(ctx context.Context, q queryer, planID string, forUpdate bool) (*domain.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	plan, err := scanPlan(q.QueryRowContext(ctx, query, planID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch plan %s: %w", planID, err)
	}

	lines, err := loadLines(ctx, q, []string{planID})
	if err != nil {
		return nil, err
	}
	plan.Lines = lines[planID]
	return plan, nil
}

// FetchPlan returns the plan, or nil when it does not exist
func (r *PlanRepository) FetchPlan(ctx context.Context, planID string) (*domain.Plan, error) {
	return tracing.Traced(ctx, r.tracer, "postgres.FetchPlan", func(ctx context.Context) (*domain.Plan, error) {
		return fetchPlan(ctx, r.db, planID, false)
	}, tracing.DatabaseSpanAttributes("postgresql", "SELECT", "plans")...)
}

// ListPlans returns plans ordered by delivery date, then id
func (r *PlanRepository) ListPlans(ctx context.Context, filter domain.PlanFilter) ([]*domain.Plan, error) {
	var (
		where []string
		args  []any
	)
	if filter.OnOrBeforeDate != nil {
		// a calendar date, so the session time zone cannot shift the bound
		args = append(args, filter.OnOrBeforeDate.Format(dateLayout))
		where = append(where, fmt.Sprintf("delivery_date <= $%d::date", len(args)))
	}
	if filter.CodeContains != "" {
		args = append(args, filter.CodeContains)
		where = append(where, fmt.Sprintf("strpos(product_code, $%d) > 0", len(args)))
	}
	if filter.ActiveOnly {
		args = append(args, string(domain.PlanStatusDone))
		where = append(where, fmt.Sprintf("status <> $%d", len(args)))
	}

	query := `SELECT ` + planColumns + ` FROM plans`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY delivery_date, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var (
		plans []*domain.Plan
		ids   []string
	)
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(plans) == 0 {
		return plans, nil
	}

	lines, err := loadLines(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}
	for _, p := range plans {
		p.Lines = lines[p.ID]
	}
	return plans, nil
}

// ImportPlan stores a new plan at version 0 with createdAt from the database clock
func (r *PlanRepository) ImportPlan(ctx context.Context, plan *domain.Plan) (err error) {
	plan = plan.Clone()
	plan.AttachLines()
	if err := domain.ValidateSnapshot(plan); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `INSERT INTO plans (
		id, status, delivery_date, product_code, quantity, source_file,
		started_at, started_by_code, started_by_name, completed_at,
		created_at, created_by_code, created_by_name, version
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), $11, $12, 0)`,
		plan.ID, string(plan.Status), plan.DeliveryDate, plan.ProductCode, plan.Quantity, plan.SourceFile,
		nullTime(plan.StartedAt.Ptr()), nullString(plan.StartedBy.Code), nullString(plan.StartedBy.Name),
		nullTime(plan.CompletedAt.Ptr()), nullString(plan.CreatedBy.Code), nullString(plan.CreatedBy.Name),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", domain.ErrPlanExists, plan.ID)
		}
		return fmt.Errorf("failed to insert plan %s: %w", plan.ID, err)
	}

	for _, l := range plan.Lines {
		_, err = tx.ExecContext(ctx, `INSERT INTO plan_lines (`+lineColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			l.PlanID, l.SequenceNo, l.ExpectedCode, l.RequiredQty, l.VerifiedQty,
			l.Category, l.ItemTitle, l.ItemName, l.ShelfNo, l.QtyType, l.Comment, l.AlertMessage, l.Remark,
		)
		if err != nil {
			return fmt.Errorf("failed to insert line %d of plan %s: %w", l.SequenceNo, plan.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit plan import: %w", err)
	}
	return nil
}

// ApplyPlanUpdate locks the plan row, writes the header, every changed line
// and the outbox rows, and commits. Any failure rolls the whole unit back.
func (r *PlanRepository) ApplyPlanUpdate(ctx context.Context, planID string, proposed *domain.Plan) (*domain.Plan, error) {
	return tracing.Traced(ctx, r.tracer, "postgres.ApplyPlanUpdate", func(ctx context.Context) (*domain.Plan, error) {
		return r.apply(ctx, planID, proposed)
	}, tracing.DatabaseSpanAttributes("postgresql", "UPDATE", "plans")...)
}

func (r *PlanRepository) apply(ctx context.Context, planID string, proposed *domain.Plan) (stored *domain.Plan, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	current, err := fetchPlan(ctx, tx, planID, true)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrPlanNotFound, planID)
	}

	update, err := domain.BuildUpdate(current, proposed)
	if err != nil {
		return nil, err
	}

	stored, err = writeHeader(ctx, tx, current, update)
	if err != nil {
		return nil, err
	}

	for _, w := range update.Lines {
		if err = writeLine(ctx, tx, w); err != nil {
			return nil, err
		}
	}

	rows, err := outboxevents.Build(ctx, r.eventFactory, update, stored, stored.UpdatedAt.At)
	if err != nil {
		return nil, err
	}
	if err = insertOutbox(ctx, tx, rows); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit plan update: %w", err)
	}
	return stored, nil
}

// writeHeader updates the plan row under the version guard and returns the
// stored plan, with timestamps as assigned by the database.
func writeHeader(ctx context.Context, tx queryer, current *domain.Plan, u *domain.PlanUpdate) (*domain.Plan, error) {
	args := []any{u.PlanID, u.ExpectedVersion, string(u.Status), nullString(u.UpdatedBy.Code), nullString(u.UpdatedBy.Name)}
	sets := []string{
		"status = $3",
		"updated_by_code = $4",
		"updated_by_name = $5",
		"updated_at = NOW()",
		"version = version + 1",
	}

	param := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	timestamp := func(column string, w domain.TimestampWrite) {
		switch w.Mode {
		case domain.WriteStoreClock:
			sets = append(sets, column+" = NOW()")
		case domain.WriteValue:
			sets = append(sets, column+" = "+param(w.Value))
		case domain.WriteClear:
			sets = append(sets, column+" = NULL")
		}
	}

	timestamp("started_at", u.StartedAt)
	if u.StartedAt.Mode != domain.WriteKeep {
		sets = append(sets,
			"started_by_code = "+param(nullString(u.StartedBy.Code)),
			"started_by_name = "+param(nullString(u.StartedBy.Name)),
		)
	}
	timestamp("completed_at", u.CompletedAt)

	query := `UPDATE plans SET ` + strings.Join(sets, ", ") + `
		WHERE id = $1 AND version = $2
		RETURNING started_at, started_by_code, started_by_name, completed_at, updated_at, version`

	var (
		startedAt, completedAt, updatedAt sql.NullTime
		startedCode, startedName          sql.NullString
		version                           int64
	)
	err := tx.QueryRowContext(ctx, query, args...).Scan(
		&startedAt, &startedCode, &startedName, &completedAt, &updatedAt, &version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: plan %s", domain.ErrVersionConflict, u.PlanID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update plan %s: %w", u.PlanID, err)
	}

	stored := current.Clone()
	stored.Status = u.Status
	stored.UpdatedBy = u.UpdatedBy
	stored.StartedAt = domain.StampFromPtr(timePtr(startedAt))
	stored.StartedBy = domain.Actor{Code: startedCode.String, Name: startedName.String}
	stored.CompletedAt = domain.StampFromPtr(timePtr(completedAt))
	stored.UpdatedAt = domain.StampFromPtr(timePtr(updatedAt))
	stored.Version = version
	for _, w := range u.Lines {
		for i := range stored.Lines {
			if stored.Lines[i].SequenceNo == w.SequenceNo {
				stored.Lines[i].VerifiedQty = w.VerifiedQty
			}
		}
	}
	return stored, nil
}

func writeLine(ctx context.Context, tx queryer, w domain.LineWrite) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE plan_lines SET verified_qty = $3 WHERE plan_id = $1 AND sequence_no = $2`,
		w.PlanID, w.SequenceNo, w.VerifiedQty)
	if err != nil {
		return fmt.Errorf("failed to update line %d of plan %s: %w", w.SequenceNo, w.PlanID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update line %d of plan %s: %w", w.SequenceNo, w.PlanID, err)
	}
	if n != 1 {
		return fmt.Errorf("%w: sequence %d of plan %s", domain.ErrLineNotFound, w.SequenceNo, w.PlanID)
	}
	return nil
}

func insertOutbox(ctx context.Context, tx queryer, rows []*outbox.OutboxEvent) error {
	for _, e := range rows {
		_, err := tx.ExecContext(ctx, `INSERT INTO outbox_events
			(id, aggregate_id, event_type, topic, payload, created_at, retry_count, max_retries)
			VALUES ($1, $2, $3, $4, $5, $6, 0, $7)`,
			e.ID, e.AggregateID, e.EventType, e.Topic, string(e.Payload), e.CreatedAt, e.MaxRetries)
		if err != nil {
			return fmt.Errorf("failed to save outbox event: %w", err)
		}
	}
	return nil
}
