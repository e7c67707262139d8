package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"parkingnear/internal/domain"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Repo implements domain.Repository on top of a connection or a transaction.
type Repo struct {
	q querier
}

type DB struct {
	*sql.DB
	Repo
	logger *zerolog.Logger
}

var (
	_ domain.Store             = (*DB)(nil)
	_ domain.NotificationQueue = (*DB)(nil)
	_ domain.Repository        = (*Repo)(nil)
)

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		// Создаем директорию для БД, если её нет
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Одно соединение: sqlite все равно сериализует запись, а :memory:
	// живет только в рамках соединения.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{DB: sqlDB, Repo: Repo{q: sqlDB}, logger: logger}
	if err := db.createTables(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return db, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_busy_timeout=5000&_foreign_keys=on"
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            username TEXT UNIQUE NOT NULL,
            password_hash TEXT NOT NULL,
            full_name TEXT NOT NULL DEFAULT '',
            user_type TEXT NOT NULL DEFAULT 'USER',
            telegram_chat_id INTEGER,
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS parking_spaces (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            provider_id INTEGER NOT NULL REFERENCES users(id),
            address TEXT NOT NULL,
            latitude REAL NOT NULL,
            longitude REAL NOT NULL,
            capacity INTEGER NOT NULL CHECK (capacity > 0),
            rate_per_hour TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'ACTIVE',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS parking_requests (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL REFERENCES users(id),
            space_id INTEGER NOT NULL REFERENCES parking_spaces(id),
            vehicle_number TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'PENDING',
            duration_hours TEXT,
            amount_paid TEXT,
            requested_at DATETIME NOT NULL,
            decided_at DATETIME,
            parked_at DATETIME,
            completed_at DATETIME,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS bills (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            request_id INTEGER NOT NULL REFERENCES parking_requests(id),
            user_id INTEGER NOT NULL REFERENCES users(id),
            space_id INTEGER NOT NULL REFERENCES parking_spaces(id),
            amount TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'PENDING',
            created_at DATETIME NOT NULL,
            due_date DATETIME NOT NULL,
            paid_at DATETIME,
            amount_paid TEXT
        )`,
		`CREATE TABLE IF NOT EXISTS payments (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            bill_id INTEGER NOT NULL REFERENCES bills(id),
            user_id INTEGER NOT NULL REFERENCES users(id),
            amount TEXT NOT NULL,
            payment_method TEXT NOT NULL,
            transaction_id TEXT UNIQUE NOT NULL,
            status TEXT NOT NULL,
            payment_time DATETIME NOT NULL
        )`,
		// Outbox: строки пишутся в той же транзакции, что и изменение
		`CREATE TABLE IF NOT EXISTS notifications (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL REFERENCES users(id),
            message TEXT NOT NULL,
            type TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME NOT NULL,
            sent_at DATETIME,
            next_retry_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_spaces_provider_id ON parking_spaces(provider_id)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_space_status ON parking_requests(space_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_user_id ON parking_requests(user_id)`,
		// Не больше одной открытой заявки на пару (пользователь, парковка)
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_requests_open_unique
            ON parking_requests(user_id, space_id)
            WHERE status IN ('PENDING', 'ACCEPTED', 'ACTIVE')`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_bills_request_id ON bills(request_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bills_user_status ON bills(user_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_user_id ON payments(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_status ON notifications(status, next_retry_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// WithTx runs fn inside a transaction. Everything fn does through repo is
// committed when fn returns nil and rolled back otherwise.
func (db *DB) WithTx(ctx context.Context, fn func(repo domain.Repository) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(&Repo{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return false
}

// checkAffected turns an UPDATE that touched no rows into notMatched.
func checkAffected(result sql.Result, notMatched error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return notMatched
	}
	return nil
}
