package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattgren/viewfinder/internal/apperror"
)

// UserRepository defines the data access contract for user records. All SQL
// lives in the concrete implementation. It also satisfies the library
// package's QuotaStore so uploads can enforce per-user storage limits.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UpdateLastLogin(ctx context.Context, id string) error

	// Storage accounting.
	StorageUsage(ctx context.Context, userID string) (used, quota int64, err error)
	AddStorageUsage(ctx context.Context, userID string, delta int64) error
}

// userRepository implements UserRepository with hand-written MariaDB queries.
type userRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new user repository backed by the given DB pool.
func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, email, display_name, password_hash, storage_quota,
	used_storage, is_active, created_at, last_login_at`

// Create inserts a new user row. storage_quota and used_storage take their
// schema defaults.
func (r *userRepository) Create(ctx context.Context, user *User) error {
	query := `INSERT INTO users (id, email, display_name, password_hash, is_active, created_at)
	          VALUES (?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.DisplayName,
		user.PasswordHash,
		user.IsActive,
		user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// FindByID retrieves a user by their UUID.
func (r *userRepository) FindByID(ctx context.Context, id string) (*User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// FindByEmail retrieves a user by their email address.
func (r *userRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

func (r *userRepository) findOne(ctx context.Context, query string, arg any) (*User, error) {
	user := &User{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.PasswordHash,
		&user.StorageQuota,
		&user.UsedStorage,
		&user.IsActive,
		&user.CreatedAt,
		&user.LastLoginAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return user, nil
}

// EmailExists reports whether a user with the given email already exists.
// Checked during registration before the expensive password hash.
func (r *userRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking email existence: %w", err)
	}
	return exists, nil
}

// UpdateLastLogin stamps last_login_at for the given user.
func (r *userRepository) UpdateLastLogin(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = NOW() WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	return nil
}

// StorageUsage returns the user's current usage and quota in bytes.
func (r *userRepository) StorageUsage(ctx context.Context, userID string) (int64, int64, error) {
	var used, quota int64
	err := r.db.QueryRowContext(ctx,
		`SELECT used_storage, storage_quota FROM users WHERE id = ?`, userID).
		Scan(&used, &quota)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return 0, 0, fmt.Errorf("querying storage usage: %w", err)
	}
	return used, quota, nil
}

// AddStorageUsage adjusts used_storage by delta bytes, clamping at zero so
// delete refunds can never drive the counter negative.
func (r *userRepository) AddStorageUsage(ctx context.Context, userID string, delta int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET used_storage = GREATEST(0, used_storage + ?) WHERE id = ?`,
		delta, userID)
	if err != nil {
		return fmt.Errorf("updating storage usage: %w", err)
	}
	return nil
}
