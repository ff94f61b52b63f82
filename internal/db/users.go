package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jonathan/market-research/internal/store"
)

const uniqueViolation = "23505"

const userColumns = `id, name, email, company, password_hash, created_at, updated_at`

// CreateUser inserts a user. A duplicate email yields store.ErrEmailTaken.
func (db *DB) CreateUser(ctx context.Context, user *store.User) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, user.Name, strings.ToLower(user.Email), user.Company, user.PasswordHash, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return store.ErrEmailTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID
func (db *DB) GetUser(ctx context.Context, id uuid.UUID) (*store.User, error) {
	return db.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetUserByEmail retrieves a user by email, ignoring case
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	return db.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)
}

// UpdateUser changes the profile fields that are non-nil.
func (db *DB) UpdateUser(ctx context.Context, id uuid.UUID, name, company *string) (*store.User, error) {
	return db.getUser(ctx,
		`UPDATE users
		 SET name = COALESCE($2, name), company = COALESCE($3, company), updated_at = $4
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, name, company, time.Now().UTC(),
	)
}

func (db *DB) getUser(ctx context.Context, query string, args ...any) (*store.User, error) {
	var u store.User
	err := db.pool.QueryRow(ctx, query, args...).Scan(
		&u.ID, &u.Name, &u.Email, &u.Company, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

var _ store.UserStore = (*DB)(nil)
