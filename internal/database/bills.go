package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"parkingnear/internal/domain"
	"parkingnear/internal/models"

	"github.com/shopspring/decimal"
)

const billColumns = `b.id, b.request_id, b.user_id, b.space_id, b.amount, b.status,
                     b.created_at, b.due_date, b.paid_at, b.amount_paid`

const billViewQuery = `SELECT ` + billColumns + `,
                              s.address, s.rate_per_hour, u.full_name, r.vehicle_number
                       FROM bills b
                       JOIN parking_spaces s ON s.id = b.space_id
                       JOIN users u ON u.id = b.user_id
                       JOIN parking_requests r ON r.id = b.request_id`

// CreateBill inserts a PENDING bill. A second bill for the same request is
// rejected by the unique index with ErrConflict.
func (r *Repo) CreateBill(ctx context.Context, bill *models.Bill) error {
	query := `INSERT INTO bills (request_id, user_id, space_id, amount, status, created_at, due_date)
              VALUES (?, ?, ?, ?, ?, ?, ?)`
	if bill.CreatedAt.IsZero() {
		bill.CreatedAt = time.Now().UTC()
	}
	if bill.Status == "" {
		bill.Status = models.BillStatusPending
	}
	result, err := r.q.ExecContext(ctx, query,
		bill.RequestID,
		bill.UserID,
		bill.SpaceID,
		bill.Amount,
		bill.Status,
		bill.CreatedAt,
		bill.DueDate,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: request %d is already billed", domain.ErrConflict, bill.RequestID)
		}
		return fmt.Errorf("failed to create bill: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	bill.ID = id
	return nil
}

func (r *Repo) GetBill(ctx context.Context, id int64) (*models.Bill, error) {
	query := `SELECT ` + billColumns + ` FROM bills b WHERE b.id = ?`
	var bill models.Bill
	err := r.q.QueryRowContext(ctx, query, id).Scan(billFields(&bill)...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: bill %d", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get bill: %w", err)
	}
	return &bill, nil
}

func (r *Repo) GetBillByRequest(ctx context.Context, requestID int64) (*models.Bill, error) {
	query := `SELECT ` + billColumns + ` FROM bills b WHERE b.request_id = ?`
	var bill models.Bill
	err := r.q.QueryRowContext(ctx, query, requestID).Scan(billFields(&bill)...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: bill for request %d", domain.ErrNotFound, requestID)
		}
		return nil, fmt.Errorf("failed to get bill by request: %w", err)
	}
	return &bill, nil
}

// MarkBillPaid flips a PENDING bill to PAID. If the bill is no longer
// PENDING nothing changes and ErrConflict is returned.
func (r *Repo) MarkBillPaid(ctx context.Context, id int64, amountPaid decimal.Decimal, at time.Time) error {
	query := `UPDATE bills SET status = ?, paid_at = ?, amount_paid = ? WHERE id = ? AND status = ?`
	result, err := r.q.ExecContext(ctx, query,
		models.BillStatusPaid, at, amountPaid, id, models.BillStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark bill paid: %w", err)
	}
	return checkAffected(result, fmt.Errorf("%w: bill %d is not pending", domain.ErrConflict, id))
}

func (r *Repo) ListPendingBills(ctx context.Context, userID int64) ([]*models.BillView, error) {
	query := billViewQuery + ` WHERE b.user_id = ? AND b.status = ? ORDER BY b.due_date ASC, b.id ASC`
	return r.queryBillViews(ctx, query, userID, models.BillStatusPending)
}

func (r *Repo) ListProviderBills(ctx context.Context, providerID int64) ([]*models.BillView, error) {
	query := billViewQuery + ` WHERE s.provider_id = ? ORDER BY b.created_at ASC, b.id ASC`
	return r.queryBillViews(ctx, query, providerID)
}

func (r *Repo) queryBillViews(ctx context.Context, query string, args ...interface{}) ([]*models.BillView, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bills: %w", err)
	}
	defer rows.Close()

	var bills []*models.BillView
	for rows.Next() {
		v := &models.BillView{}
		dest := append(billFields(&v.Bill), &v.Address, &v.RatePerHour, &v.UserName, &v.VehicleNumber)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan bill: %w", err)
		}
		bills = append(bills, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bills: %w", err)
	}
	return bills, nil
}

func billFields(b *models.Bill) []interface{} {
	return []interface{}{
		&b.ID, &b.RequestID, &b.UserID, &b.SpaceID, &b.Amount, &b.Status,
		&b.CreatedAt, &b.DueDate, &b.PaidAt, &b.AmountPaid,
	}
}
