package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Rrens/streamchat/internal/domain"
)

// UserRepository implements domain.UserRepository
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new user repository
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create inserts user and fills in its id
func (r *UserRepository) Create(ctx context.Context, user *domain.User, passwordHash string) error {
	query := `
		INSERT INTO users (username, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	var id int64
	if err := r.pool.QueryRow(ctx, query, user.Username, user.Email, passwordHash).Scan(&id); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	user.ID = apiID(id)
	return nil
}

// GetByUsername returns the user and its password hash, or a nil user when
// no such user exists
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, string, error) {
	query := `
		SELECT id, username, email, password_hash
		FROM users
		WHERE username = $1
	`
	var (
		id   int64
		user domain.User
		hash string
	)
	err := r.pool.QueryRow(ctx, query, username).Scan(&id, &user.Username, &user.Email, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to get user: %w", err)
	}
	user.ID = apiID(id)
	return &user, hash, nil
}

// UsernameExists reports whether username is taken
func (r *UserRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return exists, nil
}

// EmailExists reports whether email is already registered
func (r *UserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return exists, nil
}
