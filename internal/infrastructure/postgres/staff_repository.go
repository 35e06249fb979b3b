package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wms-platform/verification-service/internal/domain"
)

// StaffRepository implements domain.StaffDirectory on the staff table
type StaffRepository struct {
	db *sql.DB
}

func NewStaffRepository(db *sql.DB) *StaffRepository {
	return &StaffRepository{db: db}
}

func (r *StaffRepository) FindStaff(ctx context.Context, code string) (*domain.Staff, error) {
	var s domain.Staff
	err := r.db.QueryRowContext(ctx, `SELECT code, name FROM staff WHERE code = $1`, code).Scan(&s.Code, &s.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find staff %s: %w", code, err)
	}
	return &s, nil
}

func (r *StaffRepository) ListStaff(ctx context.Context) ([]*domain.Staff, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT code, name FROM staff ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list staff: %w", err)
	}
	defer rows.Close()

	var staff []*domain.Staff
	for rows.Next() {
		var s domain.Staff
		if err := rows.Scan(&s.Code, &s.Name); err != nil {
			return nil, fmt.Errorf("failed to scan staff: %w", err)
		}
		staff = append(staff, &s)
	}
	return staff, rows.Err()
}

// UpsertStaff creates or renames a staff member
func (r *StaffRepository) UpsertStaff(ctx context.Context, staff domain.Staff) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO staff (code, name) VALUES ($1, $2) ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name`,
		staff.Code, staff.Name)
	if err != nil {
		return fmt.Errorf("failed to save staff %s: %w", staff.Code, err)
	}
	return nil
}
