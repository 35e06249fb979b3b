package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startedPlan(started time.Time) *Plan {
	p := createTestPlan()
	p.Status = PlanStatusInProgress
	p.StartedAt = StampAt(started)
	p.StartedBy = testActor
	p.UpdatedAt = StampAt(started)
	p.UpdatedBy = testActor
	p.Lines[0].VerifiedQty = 1
	return p
}

func TestBuildUpdate_FirstScanStampsStart(t *testing.T) {
	current := createTestPlan()
	proposed, err := AttemptScan(current, 1, "AB-100", testActor)
	require.NoError(t, err)

	update, err := BuildUpdate(current, proposed)
	require.NoError(t, err)

	assert.Equal(t, "1001", update.PlanID)
	assert.Equal(t, int64(3), update.ExpectedVersion)
	assert.Equal(t, PlanStatusInProgress, update.Status)
	assert.Equal(t, testActor, update.UpdatedBy)
	assert.True(t, update.StartsPlan())
	assert.False(t, update.CompletesPlan())
	assert.Equal(t, WriteStoreClock, update.StartedAt.Mode)
	assert.Equal(t, testActor, update.StartedBy)
	assert.Equal(t, WriteKeep, update.CompletedAt.Mode)
	require.Len(t, update.Lines, 1)
	assert.Equal(t, LineWrite{PlanID: "1001", SequenceNo: 1, VerifiedQty: 1, PreviousQty: 0, RequiredQty: 2}, update.Lines[0])
}

func TestBuildUpdate_StartedAtPassthrough(t *testing.T) {
	started := time.Date(2024, 5, 20, 8, 0, 0, 0, time.UTC)
	current := startedPlan(started)

	proposed, err := AttemptScan(current, 2, "CD-200", otherActor)
	require.NoError(t, err)

	update, err := BuildUpdate(current, proposed)
	require.NoError(t, err)
	assert.Equal(t, WriteValue, update.StartedAt.Mode)
	assert.True(t, update.StartedAt.Value.Equal(started))
	assert.Equal(t, testActor, update.StartedBy)
	assert.Equal(t, otherActor, update.UpdatedBy)
}

func TestBuildUpdate_ReapplyIsIdempotent(t *testing.T) {
	started := time.Date(2024, 5, 20, 8, 0, 0, 0, time.UTC)
	current := startedPlan(started)

	// Re-apply the stored state unchanged
	proposed := current.Clone()
	update, err := BuildUpdate(current, proposed)
	require.NoError(t, err)
	assert.Equal(t, WriteValue, update.StartedAt.Mode)
	assert.True(t, update.StartedAt.Value.Equal(started))
	assert.Equal(t, testActor, update.StartedBy)
	assert.Empty(t, update.Lines)

	// A pending start on an already started plan never restamps
	proposed.StartedAt = Pending()
	update, err = BuildUpdate(current, proposed)
	require.NoError(t, err)
	assert.Equal(t, WriteKeep, update.StartedAt.Mode)
	assert.True(t, update.StartedBy.IsZero())
}

func TestBuildUpdate_StartedProtocolErrors(t *testing.T) {
	started := time.Date(2024, 5, 20, 8, 0, 0, 0, time.UTC)
	current := startedPlan(started)

	proposed := current.Clone()
	proposed.StartedAt = StampAt(started.Add(time.Hour))
	_, err := BuildUpdate(current, proposed)
	assert.ErrorIs(t, err, ErrStartedRewrite)
	assert.True(t, IsProtocolError(err))

	proposed = current.Clone()
	proposed.StartedBy = otherActor
	_, err = BuildUpdate(current, proposed)
	assert.ErrorIs(t, err, ErrStartedRewrite)

	proposed = current.Clone()
	proposed.StartedAt = Cleared()
	_, err = BuildUpdate(current, proposed)
	require.Error(t, err)
	assert.True(t, IsProtocolError(err))
}

func TestStartedWrite_ClearAfterSet(t *testing.T) {
	started := time.Date(2024, 5, 20, 8, 0, 0, 0, time.UTC)
	current := startedPlan(started)
	proposed := current.Clone()
	proposed.StartedAt = Cleared()

	_, err := startedWrite(current, proposed, false)
	assert.ErrorIs(t, err, ErrStartedAtCleared)
}

func TestBuildUpdate_CompletionStamps(t *testing.T) {
	started := time.Date(2024, 5, 20, 8, 0, 0, 0, time.UTC)
	current := createSingleLinePlan()
	current.Status = PlanStatusInProgress
	current.StartedAt = StampAt(started)
	current.StartedBy = testActor
	current.Lines[0].VerifiedQty = 1

	proposed, err := AttemptScan(current, 1, "AB-100", testActor)
	require.NoError(t, err)

	update, err := BuildUpdate(current, proposed)
	require.NoError(t, err)
	assert.True(t, update.CompletesPlan())
	assert.Equal(t, PlanStatusDone, update.Status)
	assert.Equal(t, WriteStoreClock, update.CompletedAt.Mode)
	assert.Equal(t, WriteValue, update.StartedAt.Mode)
}

func TestBuildUpdate_FinishRestampsCompletion(t *testing.T) {
	at := time.Date(2024, 5, 20, 8, 0, 0, 0, time.UTC)
	current := createSingleLinePlan()
	current.Status = PlanStatusDone
	current.StartedAt = StampAt(at)
	current.StartedBy = testActor
	current.CompletedAt = StampAt(at.Add(time.Hour))
	current.Lines[0].VerifiedQty = 2

	proposed, err := Finish(current, otherActor)
	require.NoError(t, err)

	update, err := BuildUpdate(current, proposed)
	require.NoError(t, err)
	assert.False(t, update.CompletesPlan())
	assert.Equal(t, WriteStoreClock, update.CompletedAt.Mode)
	assert.Equal(t, WriteValue, update.StartedAt.Mode)
	assert.True(t, update.StartedAt.Value.Equal(at))
}

func TestBuildUpdate_FinishFromPending(t *testing.T) {
	current := createSingleLinePlan()
	current.Lines[0].RequiredQty = 0

	proposed, err := Finish(current, otherActor)
	require.NoError(t, err)

	update, err := BuildUpdate(current, proposed)
	require.NoError(t, err)
	assert.True(t, update.StartsPlan())
	assert.True(t, update.CompletesPlan())
	assert.Equal(t, WriteStoreClock, update.StartedAt.Mode)
	assert.Equal(t, otherActor, update.StartedBy)
	assert.Equal(t, WriteStoreClock, update.CompletedAt.Mode)
}

func TestBuildUpdate_CompletedAtClear(t *testing.T) {
	started := time.Date(2024, 5, 20, 8, 0, 0, 0, time.UTC)
	current := startedPlan(started)

	proposed := current.Clone()
	proposed.CompletedAt = Cleared()
	update, err := BuildUpdate(current, proposed)
	require.NoError(t, err)
	assert.Equal(t, WriteClear, update.CompletedAt.Mode)

	_, err = completedWrite(&Plan{Status: PlanStatusDone, CompletedAt: Cleared()}, false)
	assert.ErrorIs(t, err, ErrCompletedCleared)
}

func TestBuildUpdate_Rejections(t *testing.T) {
	started := time.Date(2024, 5, 20, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		mutate  func(p *Plan)
		wantErr error
	}{
		{
			name:    "Stale version",
			mutate:  func(p *Plan) { p.Version = 2 },
			wantErr: ErrVersionConflict,
		},
		{
			name:    "Different plan",
			mutate:  func(p *Plan) { p.ID = "other" },
			wantErr: ErrPlanIdentity,
		},
		{
			name: "Status regression",
			mutate: func(p *Plan) {
				p.Status = PlanStatusPending
				p.StartedAt = Absent()
				p.StartedBy = Actor{}
				p.Lines[0].VerifiedQty = 0
			},
			wantErr: ErrStatusRegression,
		},
		{
			name:    "Quantity above required",
			mutate:  func(p *Plan) { p.Lines[0].VerifiedQty = 5 },
			wantErr: ErrQuantityOutOfRange,
		},
		{
			name:    "Missing actor",
			mutate:  func(p *Plan) { p.UpdatedBy = Actor{} },
			wantErr: ErrActorRequired,
		},
		{
			name:    "Dropped line",
			mutate:  func(p *Plan) { p.Lines = p.Lines[:2] },
			wantErr: ErrLineSetChanged,
		},
		{
			name:    "Unknown line",
			mutate:  func(p *Plan) { p.Lines[2].SequenceNo = 7 },
			wantErr: ErrLineSetChanged,
		},
		{
			name:    "Required quantity changed",
			mutate:  func(p *Plan) { p.Lines[1].RequiredQty = 4 },
			wantErr: ErrLineSetChanged,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			current := startedPlan(started)
			proposed := current.Clone()
			tt.mutate(proposed)

			update, err := BuildUpdate(current, proposed)
			assert.Nil(t, update)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := BuildUpdate(nil, createTestPlan())
	assert.ErrorIs(t, err, ErrNoPlanSnapshot)
}

func TestEventsFor(t *testing.T) {
	at := time.Date(2024, 5, 20, 8, 0, 0, 0, time.UTC)
	current := createSingleLinePlan()
	current.Lines[0].RequiredQty = 1

	proposed, err := AttemptScan(current, 1, "AB-100", testActor)
	require.NoError(t, err)
	update, err := BuildUpdate(current, proposed)
	require.NoError(t, err)

	events := EventsFor(update, proposed, at)
	require.Len(t, events, 3)

	started, ok := events[0].(*PlanStartedEvent)
	require.True(t, ok)
	assert.Equal(t, "wms.verification.plan-started", started.EventType())
	assert.Equal(t, "T001", started.StaffCode)

	verified, ok := events[1].(*LineVerifiedEvent)
	require.True(t, ok)
	assert.Equal(t, 1, verified.SequenceNo)
	assert.True(t, verified.Complete)
	assert.Equal(t, at, verified.OccurredAt())

	completed, ok := events[2].(*PlanCompletedEvent)
	require.True(t, ok)
	assert.Equal(t, 1, completed.TotalLines)
	assert.Equal(t, 1, completed.TotalUnits)
}

func TestCheckInvariants(t *testing.T) {
	assert.NoError(t, CheckInvariants(createTestPlan()))

	corrupted := createTestPlan()
	corrupted.Lines[0].VerifiedQty = 1
	assert.ErrorIs(t, CheckInvariants(corrupted), ErrPendingWithProgress)

	done := createSingleLinePlan()
	done.Status = PlanStatusDone
	done.StartedAt = StampAt(time.Now())
	done.StartedBy = testActor
	assert.ErrorIs(t, CheckInvariants(done), ErrDoneMismatch)

	unstarted := createTestPlan()
	unstarted.Status = PlanStatusInProgress
	assert.ErrorIs(t, CheckInvariants(unstarted), ErrStartMismatch)

	dup := createTestPlan()
	dup.Lines[1].SequenceNo = 1
	assert.ErrorIs(t, CheckInvariants(dup), ErrDuplicateSequence)

	foreign := createTestPlan()
	foreign.Lines[2].PlanID = "9999"
	assert.ErrorIs(t, CheckInvariants(foreign), ErrForeignLine)

	completedEarly := createTestPlan()
	completedEarly.CompletedAt = StampAt(time.Now())
	assert.ErrorIs(t, CheckInvariants(completedEarly), ErrCompletionWithoutDone)

	bad := createTestPlan()
	bad.Status = "ARCHIVED"
	assert.ErrorIs(t, CheckInvariants(bad), ErrInvalidStatus)
}

func TestStamp_JSON(t *testing.T) {
	at := time.Date(2024, 5, 20, 8, 30, 0, 0, time.UTC)

	tests := []struct {
		stamp Stamp
		json  string
	}{
		{Absent(), `null`},
		{Pending(), `"pending"`},
		{Cleared(), `"cleared"`},
		{StampAt(at), `"2024-05-20T08:30:00Z"`},
	}

	for _, tt := range tests {
		t.Run(tt.stamp.Kind.String(), func(t *testing.T) {
			data, err := json.Marshal(tt.stamp)
			require.NoError(t, err)
			assert.JSONEq(t, tt.json, string(data))

			var decoded Stamp
			require.NoError(t, json.Unmarshal(data, &decoded))
			assert.True(t, tt.stamp.Equal(decoded))
		})
	}

	var s Stamp
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &s))
	assert.Error(t, json.Unmarshal([]byte(`42`), &s))
}

func TestStamp_Ptr(t *testing.T) {
	at := time.Date(2024, 5, 20, 8, 30, 0, 0, time.UTC)

	assert.Nil(t, Pending().Ptr())
	require.NotNil(t, StampAt(at).Ptr())
	assert.True(t, StampAt(at).Ptr().Equal(at))
	assert.Equal(t, StampAbsent, StampFromPtr(nil).Kind)
	assert.True(t, StampFromPtr(&at).IsSet())
}

func TestValidateSnapshot(t *testing.T) {
	assert.NoError(t, ValidateSnapshot(createTestPlan()))

	// a proposed state is consistent but still waits for the store clock
	proposed, err := AttemptScan(createTestPlan(), 1, "AB-100", testActor)
	require.NoError(t, err)
	require.NoError(t, CheckInvariants(proposed))

	err = ValidateSnapshot(proposed)
	assert.ErrorIs(t, err, ErrUnresolvedStamp)
	assert.ErrorContains(t, err, "startedAt is pending")
	assert.ErrorContains(t, err, "updatedAt is pending")

	resolved := proposed.Clone()
	resolved.StartedAt = StampAt(time.Date(2024, 5, 20, 8, 0, 0, 0, time.UTC))
	resolved.UpdatedAt = resolved.StartedAt
	assert.NoError(t, ValidateSnapshot(resolved))

	cleared := createTestPlan()
	cleared.CompletedAt = Cleared()
	assert.ErrorIs(t, ValidateSnapshot(cleared), ErrUnresolvedStamp)

	assert.ErrorIs(t, ValidateSnapshot(nil), ErrNoPlanSnapshot)
}
