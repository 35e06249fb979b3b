package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/verification-service/internal/domain"
	"github.com/wms-platform/verification-service/pkg/outbox"
)

var _ outbox.Repository = (*OutboxRepository)(nil)
var _ domain.StaffDirectory = (*StaffRepository)(nil)
var _ domain.PlanRepository = (*PlanRepository)(nil)

func TestOutboxRepository_FindUnpublished(t *testing.T) {
	db, mock, _ := setupMockDB(t)
	repo := NewOutboxRepository(db)

	mock.ExpectQuery(`FROM outbox_events\s+WHERE published_at IS NULL AND retry_count < max_retries\s+ORDER BY created_at\s+LIMIT \$1`).
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "aggregate_id", "event_type", "topic", "payload", "created_at", "retry_count", "last_error", "max_retries"}).
			AddRow("evt-1", "1001", "wms.verification.line-verified", "wms.verification.events", []byte(`{"id":"evt-1"}`), dbNow, 1, "broker down", 10))

	events, err := repo.FindUnpublished(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "evt-1", events[0].ID)
	assert.JSONEq(t, `{"id":"evt-1"}`, string(events[0].Payload))
	assert.True(t, events[0].ShouldRetry())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_Bookkeeping(t *testing.T) {
	db, mock, _ := setupMockDB(t)
	repo := NewOutboxRepository(db)
	ctx := context.Background()
	cutoff := time.Date(2026, 2, 23, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE outbox_events SET published_at = NOW\(\) WHERE id = \$1`).
		WithArgs("evt-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SET retry_count = retry_count \+ 1, last_error = \$2`).
		WithArgs("evt-2", "timeout").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM outbox_events WHERE published_at IS NOT NULL AND published_at < \$1`).
		WithArgs(cutoff).WillReturnResult(sqlmock.NewResult(0, 7))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM outbox_events`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	require.NoError(t, repo.MarkPublished(ctx, "evt-1"))
	require.NoError(t, repo.IncrementRetry(ctx, "evt-2", "timeout"))

	deleted, err := repo.DeletePublished(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(7), deleted)

	pending, err := repo.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), pending)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStaffRepository(t *testing.T) {
	db, mock, _ := setupMockDB(t)
	repo := NewStaffRepository(db)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT code, name FROM staff WHERE code = \$1`).
		WithArgs("T001").
		WillReturnRows(sqlmock.NewRows([]string{"code", "name"}).AddRow("T001", "Sato"))
	mock.ExpectQuery(`SELECT code, name FROM staff WHERE code = \$1`).
		WithArgs("T999").
		WillReturnRows(sqlmock.NewRows([]string{"code", "name"}))
	mock.ExpectQuery(`SELECT code, name FROM staff ORDER BY code`).
		WillReturnRows(sqlmock.NewRows([]string{"code", "name"}).AddRow("T001", "Sato").AddRow("T002", "Suzuki"))
	mock.ExpectExec(`INSERT INTO staff .* ON CONFLICT \(code\) DO UPDATE`).
		WithArgs("T003", "Tanaka").WillReturnResult(sqlmock.NewResult(0, 1))

	staff, err := repo.FindStaff(ctx, "T001")
	require.NoError(t, err)
	assert.Equal(t, &domain.Staff{Code: "T001", Name: "Sato"}, staff)

	staff, err = repo.FindStaff(ctx, "T999")
	require.NoError(t, err)
	assert.Nil(t, staff)

	all, err := repo.ListStaff(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, repo.UpsertStaff(ctx, domain.Staff{Code: "T003", Name: "Tanaka"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
