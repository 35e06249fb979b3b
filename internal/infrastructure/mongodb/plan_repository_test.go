package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/wms-platform/verification-service/internal/domain"
	"github.com/wms-platform/verification-service/pkg/cloudevents"
)

func planDoc(id string, status domain.PlanStatus, version int64) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "status", Value: string(status)},
		{Key: "deliveryDate", Value: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)},
		{Key: "productCode", Value: "P-" + id},
		{Key: "quantity", Value: 2},
		{Key: "createdAt", Value: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
		{Key: "version", Value: version},
		{Key: "lines", Value: bson.A{
			bson.D{{Key: "sequenceNo", Value: 2}, {Key: "expectedCode", Value: "B"}, {Key: "requiredQty", Value: 1}, {Key: "verifiedQty", Value: 0}},
			bson.D{{Key: "sequenceNo", Value: 1}, {Key: "expectedCode", Value: "A"}, {Key: "requiredQty", Value: 1}, {Key: "verifiedQty", Value: 1}},
		}},
	}
}

func TestPlanRepository_FetchPlan(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("found", func(mt *mtest.T) {
		repo := NewPlanRepository(mt.DB, cloudevents.NewEventFactory(cloudevents.SourceVerification))
		ns := mt.DB.Name() + "." + plansCollection
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, planDoc("1001", domain.PlanStatusInProgress, 4)))

		plan, err := repo.FetchPlan(context.Background(), "1001")
		require.NoError(t, err)
		require.NotNil(t, plan)

		assert.Equal(t, domain.PlanStatusInProgress, plan.Status)
		assert.Equal(t, int64(4), plan.Version)
		require.Len(t, plan.Lines, 2)
		assert.Equal(t, 1, plan.Lines[0].SequenceNo)
		assert.Equal(t, "1001", plan.Lines[0].PlanID)
		assert.False(t, plan.StartedAt.IsSet())
	})

	mt.Run("missing", func(mt *mtest.T) {
		repo := NewPlanRepository(mt.DB, cloudevents.NewEventFactory(cloudevents.SourceVerification))
		ns := mt.DB.Name() + "." + plansCollection
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		plan, err := repo.FetchPlan(context.Background(), "404")
		require.NoError(t, err)
		assert.Nil(t, plan)
	})
}

func TestPlanRepository_ListPlans(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("decodes in order", func(mt *mtest.T) {
		repo := NewPlanRepository(mt.DB, cloudevents.NewEventFactory(cloudevents.SourceVerification))
		ns := mt.DB.Name() + "." + plansCollection
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			planDoc("1001", domain.PlanStatusPending, 0),
			planDoc("1002", domain.PlanStatusInProgress, 1),
		))

		date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
		plans, err := repo.ListPlans(context.Background(), domain.PlanFilter{OnOrBeforeDate: &date, ActiveOnly: true, Limit: 10})
		require.NoError(t, err)
		require.Len(t, plans, 2)
		assert.Equal(t, "1001", plans[0].ID)
		assert.Equal(t, "1002", plans[1].ID)
	})
}

func TestStaffRepository_FindStaff(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("found and missing", func(mt *mtest.T) {
		repo := NewStaffRepository(mt.DB)
		ns := mt.DB.Name() + "." + staffCollection
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{{Key: "_id", Value: "T001"}, {Key: "name", Value: "Sato"}}),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch),
		)

		staff, err := repo.FindStaff(context.Background(), "T001")
		require.NoError(t, err)
		require.NotNil(t, staff)
		assert.Equal(t, domain.Actor{Code: "T001", Name: "Sato"}, staff.Actor())

		staff, err = repo.FindStaff(context.Background(), "T999")
		require.NoError(t, err)
		assert.Nil(t, staff)
	})
}

func TestUpdateStatement(t *testing.T) {
	at := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	update := &domain.PlanUpdate{
		PlanID:          "1001",
		ExpectedVersion: 3,
		PreviousStatus:  domain.PlanStatusPending,
		Status:          domain.PlanStatusInProgress,
		UpdatedBy:       domain.Actor{Code: "T001"},
		StartedAt:       domain.TimestampWrite{Mode: domain.WriteStoreClock},
		StartedBy:       domain.Actor{Code: "T001"},
		CompletedAt:     domain.TimestampWrite{Mode: domain.WriteClear},
		Lines: []domain.LineWrite{
			{PlanID: "1001", SequenceNo: 7, VerifiedQty: 2, PreviousQty: 1, RequiredQty: 3},
		},
	}

	statement, filters := updateStatement(update)

	set := statement["$set"].(bson.M)
	assert.Equal(t, domain.PlanStatusInProgress, set["status"])
	assert.Equal(t, domain.Actor{Code: "T001"}, set["startedBy"])
	assert.Equal(t, 2, set["lines.$[l0].verifiedQty"])
	assert.NotContains(t, set, "startedAt")

	currentDate := statement["$currentDate"].(bson.M)
	assert.Equal(t, true, currentDate["updatedAt"])
	assert.Equal(t, true, currentDate["startedAt"])

	assert.Equal(t, bson.M{"completedAt": ""}, statement["$unset"])
	assert.Equal(t, bson.M{"version": 1}, statement["$inc"])
	assert.Equal(t, []interface{}{bson.M{"l0.sequenceNo": 7}}, filters)

	update.StartedAt = domain.TimestampWrite{Mode: domain.WriteKeep}
	update.CompletedAt = domain.TimestampWrite{Mode: domain.WriteValue, Value: at}
	update.Lines = nil

	statement, filters = updateStatement(update)
	set = statement["$set"].(bson.M)
	assert.NotContains(t, set, "startedBy")
	assert.Equal(t, at, set["completedAt"])
	assert.NotContains(t, statement, "$unset")
	assert.Empty(t, filters)
}

func TestDocumentRoundTrip(t *testing.T) {
	started := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	plan := &domain.Plan{
		ID:        "1001",
		Status:    domain.PlanStatusInProgress,
		StartedAt: domain.StampAt(started),
		StartedBy: domain.Actor{Code: "T001"},
		UpdatedAt: domain.Pending(),
		Lines:     []domain.Line{{PlanID: "1001", SequenceNo: 1, RequiredQty: 2, VerifiedQty: 1, ShelfNo: "A-1"}},
	}

	doc := fromDomain(plan)
	assert.Nil(t, doc.UpdatedAt)

	back := doc.toDomain()
	assert.True(t, back.StartedAt.Equal(plan.StartedAt))
	assert.Equal(t, plan.Lines, back.Lines)
}

func importablePlan() *domain.Plan {
	return &domain.Plan{
		ID:           "1001",
		Status:       domain.PlanStatusPending,
		DeliveryDate: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		ProductCode:  "P-1001",
		Lines: []domain.Line{
			{SequenceNo: 1, ExpectedCode: "A", RequiredQty: 1},
		},
	}
}

func TestPlanRepository_ImportPlan(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("inserts at version zero with createdAt", func(mt *mtest.T) {
		repo := NewPlanRepository(mt.DB, cloudevents.NewEventFactory(cloudevents.SourceVerification))
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		plan := importablePlan()
		plan.Version = 7
		require.NoError(t, repo.ImportPlan(context.Background(), plan))

		started := mt.GetStartedEvent()
		require.NotNil(t, started)
		assert.Equal(t, "insert", started.CommandName)

		doc := started.Command.Lookup("documents").Array().Index(0).Value().Document()
		assert.Equal(t, int64(0), doc.Lookup("version").Int64())
		createdAt, ok := doc.Lookup("createdAt").TimeOK()
		require.True(t, ok)
		assert.False(t, createdAt.IsZero())
		_, hasStarted := doc.Lookup("startedAt").TimeOK()
		assert.False(t, hasStarted)
	})

	mt.Run("duplicate id", func(mt *mtest.T) {
		repo := NewPlanRepository(mt.DB, cloudevents.NewEventFactory(cloudevents.SourceVerification))
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key"}))

		err := repo.ImportPlan(context.Background(), importablePlan())
		assert.ErrorIs(t, err, domain.ErrPlanExists)
	})

	mt.Run("rejects unresolved stamps", func(mt *mtest.T) {
		repo := NewPlanRepository(mt.DB, cloudevents.NewEventFactory(cloudevents.SourceVerification))

		plan := importablePlan()
		plan.Status = domain.PlanStatusInProgress
		plan.StartedAt = domain.Pending()
		plan.StartedBy = domain.Actor{Code: "T001"}
		require.NoError(t, domain.CheckInvariants(plan))

		err := repo.ImportPlan(context.Background(), plan)
		assert.ErrorIs(t, err, domain.ErrUnresolvedStamp)
		// nothing reaches the server
		assert.Nil(t, mt.GetStartedEvent())
	})
}
