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

const requestColumns = `r.id, r.user_id, r.space_id, r.vehicle_number, r.status, r.duration_hours,
                        r.amount_paid, r.requested_at, r.decided_at, r.parked_at, r.completed_at, r.updated_at`

const requestViewQuery = `SELECT ` + requestColumns + `,
                                 u.full_name, s.address, s.rate_per_hour, s.provider_id
                          FROM parking_requests r
                          JOIN users u ON u.id = r.user_id
                          JOIN parking_spaces s ON s.id = r.space_id`

func (r *Repo) CreateRequest(ctx context.Context, req *models.ParkingRequest) error {
	query := `INSERT INTO parking_requests (
				user_id, space_id, vehicle_number, status, requested_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	if req.Status == "" {
		req.Status = models.RequestStatusPending
	}
	result, err := r.q.ExecContext(ctx, query,
		req.UserID,
		req.SpaceID,
		req.VehicleNumber,
		req.Status,
		now,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: user %d already has an open request on space %d",
				domain.ErrConflict, req.UserID, req.SpaceID)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: user %d or space %d", domain.ErrNotFound, req.UserID, req.SpaceID)
		}
		return fmt.Errorf("failed to create request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	req.ID = id
	req.RequestedAt = now
	req.UpdatedAt = now
	return nil
}

func (r *Repo) GetRequest(ctx context.Context, id int64) (*models.ParkingRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM parking_requests r WHERE r.id = ?`
	var req models.ParkingRequest
	err := r.q.QueryRowContext(ctx, query, id).Scan(requestFields(&req)...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: request %d", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return &req, nil
}

func (r *Repo) HasOpenRequest(ctx context.Context, userID, spaceID int64) (bool, error) {
	query := `SELECT EXISTS (
				SELECT 1 FROM parking_requests
				WHERE user_id = ? AND space_id = ? AND status IN (?, ?, ?)
			)`
	var exists bool
	err := r.q.QueryRowContext(ctx, query, userID, spaceID,
		models.RequestStatusPending, models.RequestStatusAccepted, models.RequestStatusActive,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check open request: %w", err)
	}
	return exists, nil
}

// TransitionRequest moves a request from one status to another only if it is
// still in from. A lost race yields ErrInvalidTransition.
func (r *Repo) TransitionRequest(ctx context.Context, id int64, from, to string, at time.Time) error {
	var column string
	switch to {
	case models.RequestStatusAccepted, models.RequestStatusDenied:
		column = "decided_at"
	case models.RequestStatusActive:
		column = "parked_at"
	case models.RequestStatusCompleted:
		column = "completed_at"
	default:
		return fmt.Errorf("%w: unknown request status %s", domain.ErrValidation, to)
	}

	query := `UPDATE parking_requests SET status = ?, ` + column + ` = ?, updated_at = ?
              WHERE id = ? AND status = ?`
	result, err := r.q.ExecContext(ctx, query, to, at, at, id, from)
	if err != nil {
		return fmt.Errorf("failed to update request status: %w", err)
	}
	return checkAffected(result, fmt.Errorf("%w: request %d is no longer %s", domain.ErrInvalidTransition, id, from))
}

func (r *Repo) CompleteRequest(ctx context.Context, id int64, duration decimal.Decimal, at time.Time) error {
	query := `UPDATE parking_requests
              SET status = ?, duration_hours = ?, completed_at = ?, updated_at = ?
              WHERE id = ? AND status = ?`
	result, err := r.q.ExecContext(ctx, query,
		models.RequestStatusCompleted, duration, at, at, id, models.RequestStatusActive)
	if err != nil {
		return fmt.Errorf("failed to complete request: %w", err)
	}
	return checkAffected(result, fmt.Errorf("%w: request %d is no longer %s",
		domain.ErrInvalidTransition, id, models.RequestStatusActive))
}

func (r *Repo) SetRequestAmountPaid(ctx context.Context, id int64, amount decimal.Decimal) error {
	query := `UPDATE parking_requests SET amount_paid = ?, updated_at = ? WHERE id = ?`
	result, err := r.q.ExecContext(ctx, query, amount, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set request amount paid: %w", err)
	}
	return checkAffected(result, fmt.Errorf("%w: request %d", domain.ErrNotFound, id))
}

func (r *Repo) ListUserRequests(ctx context.Context, userID int64) ([]*models.RequestView, error) {
	query := requestViewQuery + ` WHERE r.user_id = ? ORDER BY r.requested_at DESC, r.id DESC`
	return r.queryRequestViews(ctx, query, userID)
}

func (r *Repo) ListProviderRequests(ctx context.Context, providerID int64) ([]*models.RequestView, error) {
	query := requestViewQuery + ` WHERE s.provider_id = ? ORDER BY r.requested_at DESC, r.id DESC`
	return r.queryRequestViews(ctx, query, providerID)
}

// GetCurrentRequest returns the user's most recent non-terminal request.
func (r *Repo) GetCurrentRequest(ctx context.Context, userID int64) (*models.RequestView, error) {
	query := requestViewQuery + ` WHERE r.user_id = ? AND r.status IN (?, ?, ?)
                                  ORDER BY r.requested_at DESC, r.id DESC LIMIT 1`
	views, err := r.queryRequestViews(ctx, query, userID,
		models.RequestStatusPending, models.RequestStatusAccepted, models.RequestStatusActive)
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, fmt.Errorf("%w: no current request for user %d", domain.ErrNotFound, userID)
	}
	return views[0], nil
}

// ListUnbilledCompleted returns the provider's completed requests that have no bill yet.
func (r *Repo) ListUnbilledCompleted(ctx context.Context, providerID int64) ([]*models.RequestView, error) {
	query := requestViewQuery + ` WHERE s.provider_id = ? AND r.status = ?
                                  AND NOT EXISTS (SELECT 1 FROM bills b WHERE b.request_id = r.id)
                                  ORDER BY r.completed_at ASC, r.id ASC`
	return r.queryRequestViews(ctx, query, providerID, models.RequestStatusCompleted)
}

func (r *Repo) queryRequestViews(ctx context.Context, query string, args ...interface{}) ([]*models.RequestView, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var views []*models.RequestView
	for rows.Next() {
		v := &models.RequestView{}
		dest := append(requestFields(&v.ParkingRequest), &v.UserName, &v.SpaceAddress, &v.RatePerHour, &v.ProviderID)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate requests: %w", err)
	}
	return views, nil
}

func requestFields(req *models.ParkingRequest) []interface{} {
	return []interface{}{
		&req.ID, &req.UserID, &req.SpaceID, &req.VehicleNumber, &req.Status, &req.DurationHours,
		&req.AmountPaid, &req.RequestedAt, &req.DecidedAt, &req.ParkedAt, &req.CompletedAt, &req.UpdatedAt,
	}
}
