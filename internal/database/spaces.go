package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"parkingnear/internal/domain"
	"parkingnear/internal/models"

	"github.com/shopspring/decimal"
)

const spaceColumns = `id, provider_id, address, latitude, longitude, capacity,
                      rate_per_hour, description, status, created_at, updated_at`

func (r *Repo) CreateSpace(ctx context.Context, space *models.Space) error {
	query := `INSERT INTO parking_spaces (
				provider_id, address, latitude, longitude, capacity,
				rate_per_hour, description, status, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	if space.Status == "" {
		space.Status = models.SpaceStatusActive
	}
	result, err := r.q.ExecContext(ctx, query,
		space.ProviderID,
		space.Address,
		space.Latitude,
		space.Longitude,
		space.Capacity,
		space.RatePerHour,
		space.Description,
		space.Status,
		now,
		now,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: provider %d", domain.ErrNotFound, space.ProviderID)
		}
		return fmt.Errorf("failed to create space: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	space.ID = id
	space.CreatedAt = now
	space.UpdatedAt = now
	return nil
}

func (r *Repo) GetSpace(ctx context.Context, id int64) (*models.Space, error) {
	query := `SELECT ` + spaceColumns + ` FROM parking_spaces WHERE id = ?`
	space, err := scanSpace(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: space %d", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get space: %w", err)
	}
	return space, nil
}

// ListSpaces returns spaces ordered by id. providerID 0 means every provider.
func (r *Repo) ListSpaces(ctx context.Context, providerID int64, onlyActive bool) ([]*models.Space, error) {
	var (
		where []string
		args  []interface{}
	)
	if providerID != 0 {
		where = append(where, "provider_id = ?")
		args = append(args, providerID)
	}
	if onlyActive {
		where = append(where, "status = ?")
		args = append(args, models.SpaceStatusActive)
	}

	query := `SELECT ` + spaceColumns + ` FROM parking_spaces`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id ASC`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list spaces: %w", err)
	}
	defer rows.Close()

	var spaces []*models.Space
	for rows.Next() {
		space, err := scanSpace(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan space: %w", err)
		}
		spaces = append(spaces, space)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate spaces: %w", err)
	}
	return spaces, nil
}

func (r *Repo) UpdateSpaceRate(ctx context.Context, id int64, rate decimal.Decimal) error {
	query := `UPDATE parking_spaces SET rate_per_hour = ?, updated_at = ? WHERE id = ?`
	result, err := r.q.ExecContext(ctx, query, rate, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update space rate: %w", err)
	}
	return checkAffected(result, fmt.Errorf("%w: space %d", domain.ErrNotFound, id))
}

func (r *Repo) UpdateSpaceStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE parking_spaces SET status = ?, updated_at = ? WHERE id = ?`
	result, err := r.q.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update space status: %w", err)
	}
	return checkAffected(result, fmt.Errorf("%w: space %d", domain.ErrNotFound, id))
}

func (r *Repo) DeleteSpace(ctx context.Context, id int64) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM parking_spaces WHERE id = ?`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: space %d is referenced by requests", domain.ErrConflict, id)
		}
		return fmt.Errorf("failed to delete space: %w", err)
	}
	return checkAffected(result, fmt.Errorf("%w: space %d", domain.ErrNotFound, id))
}

// CountSpaceRequests counts requests of any status on the space.
func (r *Repo) CountSpaceRequests(ctx context.Context, spaceID int64) (int64, error) {
	var count int64
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM parking_requests WHERE space_id = ?`, spaceID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count space requests: %w", err)
	}
	return count, nil
}

// CountOpenRequests counts requests that hold a slot: PENDING, ACCEPTED or ACTIVE.
func (r *Repo) CountOpenRequests(ctx context.Context, spaceID int64) (int64, error) {
	query := `SELECT COUNT(*) FROM parking_requests WHERE space_id = ? AND status IN (?, ?, ?)`
	var count int64
	err := r.q.QueryRowContext(ctx, query, spaceID,
		models.RequestStatusPending, models.RequestStatusAccepted, models.RequestStatusActive,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count open requests: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSpace(row rowScanner) (*models.Space, error) {
	var s models.Space
	err := row.Scan(
		&s.ID, &s.ProviderID, &s.Address, &s.Latitude, &s.Longitude, &s.Capacity,
		&s.RatePerHour, &s.Description, &s.Status, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
