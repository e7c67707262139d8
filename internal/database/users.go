package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"parkingnear/internal/domain"
	"parkingnear/internal/models"
)

func (r *Repo) CreateUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (username, password_hash, full_name, user_type, telegram_chat_id, created_at)
              VALUES (?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	result, err := r.q.ExecContext(ctx, query,
		user.Username,
		user.PasswordHash,
		user.FullName,
		user.UserType,
		user.TelegramChatID,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: username %q is taken", domain.ErrConflict, user.Username)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	user.ID = id
	user.CreatedAt = now
	return nil
}

func (r *Repo) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT id, username, password_hash, full_name, user_type, telegram_chat_id, created_at
              FROM users WHERE id = ?`
	user, err := r.queryUser(ctx, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %d", domain.ErrNotFound, id)
	}
	return user, err
}

func (r *Repo) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT id, username, password_hash, full_name, user_type, telegram_chat_id, created_at
              FROM users WHERE username = ?`
	user, err := r.queryUser(ctx, query, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %q", domain.ErrNotFound, username)
	}
	return user, err
}

func (r *Repo) queryUser(ctx context.Context, query string, args ...interface{}) (*models.User, error) {
	var user models.User
	err := r.q.QueryRowContext(ctx, query, args...).Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.FullName,
		&user.UserType, &user.TelegramChatID, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (r *Repo) UpdateUserTelegramChat(ctx context.Context, userID, chatID int64) error {
	query := `UPDATE users SET telegram_chat_id = ? WHERE id = ?`
	result, err := r.q.ExecContext(ctx, query, chatID, userID)
	if err != nil {
		return fmt.Errorf("failed to update telegram chat: %w", err)
	}
	return checkAffected(result, fmt.Errorf("%w: user %d", domain.ErrNotFound, userID))
}
