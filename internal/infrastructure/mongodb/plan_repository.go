package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wms-platform/verification-service/internal/domain"
	"github.com/wms-platform/verification-service/internal/infrastructure/outboxevents"
	"github.com/wms-platform/verification-service/pkg/cloudevents"
	pkgmongo "github.com/wms-platform/verification-service/pkg/mongodb"
	outboxMongo "github.com/wms-platform/verification-service/pkg/outbox/mongodb"
	"github.com/wms-platform/verification-service/pkg/tracing"
)

const plansCollection = "plans"

// PlanRepository implements domain.PlanRepository on MongoDB. Plans are
// single documents with embedded lines, so one update statement covers the
// header and every modified line.
type PlanRepository struct {
	collection   *mongo.Collection
	db           *mongo.Database
	outboxRepo   *outboxMongo.OutboxRepository
	eventFactory *cloudevents.EventFactory
	tracer       trace.Tracer
}

// NewPlanRepository creates a plan repository writing its events to the
// outbox collection of the same database.
func NewPlanRepository(db *mongo.Database, eventFactory *cloudevents.EventFactory) *PlanRepository {
	return &PlanRepository{
		collection:   db.Collection(plansCollection),
		db:           db,
		outboxRepo:   outboxMongo.NewOutboxRepository(db),
		eventFactory: eventFactory,
		tracer:       otel.Tracer("verification-service/mongodb"),
	}
}

// OutboxRepository returns the outbox the repository writes to
func (r *PlanRepository) OutboxRepository() *outboxMongo.OutboxRepository {
	return r.outboxRepo
}

// EnsureIndexes creates the plan and outbox indexes
func (r *PlanRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "deliveryDate", Value: 1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "deliveryDate", Value: 1}}},
		{Keys: bson.D{{Key: "productCode", Value: 1}}},
	}
	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create plan indexes: %w", err)
	}
	return r.outboxRepo.EnsureIndexes(ctx)
}

// FetchPlan returns the plan, or nil when it does not exist
func (r *PlanRepository) FetchPlan(ctx context.Context, planID string) (*domain.Plan, error) {
	return tracing.Traced(ctx, r.tracer, "mongodb.FetchPlan", func(ctx context.Context) (*domain.Plan, error) {
		return r.fetch(ctx, planID)
	}, tracing.DatabaseSpanAttributes("mongodb", "find", plansCollection)...)
}

func (r *PlanRepository) fetch(ctx context.Context, planID string) (*domain.Plan, error) {
	var doc planDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": planID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch plan %s: %w", planID, err)
	}
	return doc.toDomain(), nil
}

// ListPlans returns plans ordered by delivery date, then id
func (r *PlanRepository) ListPlans(ctx context.Context, filter domain.PlanFilter) ([]*domain.Plan, error) {
	query := bson.M{}
	if filter.OnOrBeforeDate != nil {
		query["deliveryDate"] = bson.M{"$lte": *filter.OnOrBeforeDate}
	}
	if filter.CodeContains != "" {
		query["productCode"] = bson.M{"$regex": regexp.QuoteMeta(filter.CodeContains)}
	}
	if filter.ActiveOnly {
		query["status"] = bson.M{"$ne": domain.PlanStatusDone}
	}

	opts := options.Find().SetSort(bson.D{{Key: "deliveryDate", Value: 1}, {Key: "_id", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []planDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode plans: %w", err)
	}

	plans := make([]*domain.Plan, len(docs))
	for i := range docs {
		plans[i] = docs[i].toDomain()
	}
	return plans, nil
}

// ImportPlan stores a new plan at version 0. Line counters and lifecycle
// fields are taken as given; createdAt is the service clock at import.
func (r *PlanRepository) ImportPlan(ctx context.Context, plan *domain.Plan) error {
	plan = plan.Clone()
	plan.AttachLines()
	if err := domain.ValidateSnapshot(plan); err != nil {
		return err
	}

	doc := fromDomain(plan)
	doc.Version = 0
	doc.CreatedAt = time.Now().UTC()

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", domain.ErrPlanExists, plan.ID)
		}
		return fmt.Errorf("failed to import plan %s: %w", plan.ID, err)
	}
	return nil
}

// ApplyPlanUpdate writes proposed and its outbox events in one transaction.
// The stored plan must still be at proposed.Version.
func (r *PlanRepository) ApplyPlanUpdate(ctx context.Context, planID string, proposed *domain.Plan) (*domain.Plan, error) {
	return tracing.Traced(ctx, r.tracer, "mongodb.ApplyPlanUpdate", func(ctx context.Context) (*domain.Plan, error) {
		return pkgmongo.WithTransaction(ctx, r.db.Client(), func(sessCtx mongo.SessionContext) (*domain.Plan, error) {
			return r.apply(sessCtx, planID, proposed)
		})
	}, tracing.DatabaseSpanAttributes("mongodb", "update", plansCollection)...)
}

func (r *PlanRepository) apply(sessCtx mongo.SessionContext, planID string, proposed *domain.Plan) (*domain.Plan, error) {
	current, err := r.fetch(sessCtx, planID)
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

	statement, arrayFilters := updateStatement(update)
	opts := options.Update()
	if len(arrayFilters) > 0 {
		opts.SetArrayFilters(options.ArrayFilters{Filters: arrayFilters})
	}

	filter := bson.M{"_id": planID, "version": update.ExpectedVersion}
	result, err := r.collection.UpdateOne(sessCtx, filter, statement, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to update plan %s: %w", planID, err)
	}
	if result.MatchedCount == 0 {
		return nil, fmt.Errorf("%w: plan %s", domain.ErrVersionConflict, planID)
	}

	stored, err := r.fetch(sessCtx, planID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrPlanNotFound, planID)
	}

	rows, err := outboxevents.Build(sessCtx, r.eventFactory, update, stored, stored.UpdatedAt.At)
	if err != nil {
		return nil, err
	}
	if err := r.outboxRepo.SaveAll(sessCtx, rows); err != nil {
		return nil, err
	}

	return stored, nil
}

// updateStatement renders a PlanUpdate as a single update document. Store
// clock stamps use $currentDate; lines are addressed by sequenceNo through
// array filters.
func updateStatement(u *domain.PlanUpdate) (bson.M, []interface{}) {
	set := bson.M{
		"status":    u.Status,
		"updatedBy": u.UpdatedBy,
	}
	currentDate := bson.M{"updatedAt": true}
	unset := bson.M{}

	if u.StartedAt.Mode != domain.WriteKeep {
		set["startedBy"] = u.StartedBy
	}
	applyTimestamp("startedAt", u.StartedAt, set, currentDate, unset)
	applyTimestamp("completedAt", u.CompletedAt, set, currentDate, unset)

	var arrayFilters []interface{}
	for i, line := range u.Lines {
		id := fmt.Sprintf("l%d", i)
		set[fmt.Sprintf("lines.$[%s].verifiedQty", id)] = line.VerifiedQty
		arrayFilters = append(arrayFilters, bson.M{id + ".sequenceNo": line.SequenceNo})
	}

	statement := bson.M{
		"$set":         set,
		"$currentDate": currentDate,
		"$inc":         bson.M{"version": 1},
	}
	if len(unset) > 0 {
		statement["$unset"] = unset
	}
	return statement, arrayFilters
}

func applyTimestamp(field string, w domain.TimestampWrite, set, currentDate, unset bson.M) {
	switch w.Mode {
	case domain.WriteStoreClock:
		currentDate[field] = true
	case domain.WriteValue:
		set[field] = w.Value
	case domain.WriteClear:
		unset[field] = ""
	}
}
