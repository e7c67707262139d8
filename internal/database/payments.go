package database

import (
	"context"
	"fmt"
	"time"

	"parkingnear/internal/domain"
	"parkingnear/internal/models"
)

func (r *Repo) CreatePayment(ctx context.Context, payment *models.Payment) error {
	query := `INSERT INTO payments (bill_id, user_id, amount, payment_method, transaction_id, status, payment_time)
              VALUES (?, ?, ?, ?, ?, ?, ?)`
	if payment.PaymentTime.IsZero() {
		payment.PaymentTime = time.Now().UTC()
	}
	result, err := r.q.ExecContext(ctx, query,
		payment.BillID,
		payment.UserID,
		payment.Amount,
		payment.Method,
		payment.TransactionID,
		payment.Status,
		payment.PaymentTime,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: transaction %s already recorded", domain.ErrConflict, payment.TransactionID)
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	payment.ID = id
	return nil
}

func (r *Repo) ListUserPayments(ctx context.Context, userID int64) ([]*models.Payment, error) {
	query := `SELECT id, bill_id, user_id, amount, payment_method, transaction_id, status, payment_time
              FROM payments WHERE user_id = ? ORDER BY payment_time DESC, id DESC`
	rows, err := r.q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		var p models.Payment
		err := rows.Scan(&p.ID, &p.BillID, &p.UserID, &p.Amount, &p.Method, &p.TransactionID, &p.Status, &p.PaymentTime)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payments: %w", err)
	}
	return payments, nil
}

func (r *Repo) CountBillPayments(ctx context.Context, billID int64) (int64, error) {
	var count int64
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM payments WHERE bill_id = ?`, billID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count payments: %w", err)
	}
	return count, nil
}
