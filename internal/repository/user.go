package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pawpantry/pawpantry-go/internal/model"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrDuplicateEmail    = errors.New("email already exists")
	ErrResetTokenInvalid = errors.New("reset token invalid or expired")
)

const (
	mysqlDuplicateEntry     = 1062
	postgresUniqueViolation = "23505"
)

const userColumns = `id, email, password_hash, first_name, last_name, role, is_active,
	password_reset_token_hash, password_reset_expires_at, created_at, updated_at`

// UserRepository handles user persistence operations.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user, assigning its ID, default role and timestamps.
// The existence check and insert share a transaction; the unique index on
// email is what finally rejects a concurrent duplicate.
func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	now := timestamp()
	user.ID = uuid.NewString()
	if user.Role == "" {
		user.Role = model.DefaultRole
	}
	user.IsActive = true
	user.PasswordResetTokenHash = nil
	user.PasswordResetExpiresAt = nil
	user.CreatedAt = now
	user.UpdatedAt = now

	return WithTx(ctx, r.db.DB, nil, func(ctx context.Context, tx DBTX) error {
		var one int
		err := tx.QueryRowContext(ctx, r.db.Rebind(`SELECT 1 FROM users WHERE email = ?`), user.Email).Scan(&one)
		if err == nil {
			return ErrDuplicateEmail
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("checking email: %w", err)
		}

		query := r.db.Rebind(`INSERT INTO users (id, email, password_hash, first_name, last_name, role, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		_, err = tx.ExecContext(ctx, query,
			user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName,
			user.Role, user.IsActive, user.CreatedAt, user.UpdatedAt,
		)
		if err != nil {
			if isDuplicateEntryError(err) {
				return ErrDuplicateEmail
			}
			return fmt.Errorf("inserting user: %w", err)
		}
		return nil
	})
}

// GetByEmail retrieves a user by their email address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	query := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE email = ?`)
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

// GetByID retrieves a user by their ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	query := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE id = ?`)
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

// GetByResetToken retrieves the user holding the given reset token digest,
// provided the token expires strictly after now.
func (r *UserRepository) GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (*model.User, error) {
	query := r.db.Rebind(`SELECT ` + userColumns + ` FROM users
		WHERE password_reset_token_hash = ? AND password_reset_expires_at > ?`)
	return scanUser(r.db.QueryRowContext(ctx, query, tokenHash, now.UTC()))
}

// SetResetToken stores a reset token digest and its expiry, replacing any
// outstanding one.
func (r *UserRepository) SetResetToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	query := r.db.Rebind(`UPDATE users
		SET password_reset_token_hash = ?, password_reset_expires_at = ?, updated_at = ?
		WHERE id = ?`)
	return r.execOne(ctx, query, ErrUserNotFound, tokenHash, expiresAt.UTC(), timestamp(), userID)
}

// ClearResetToken removes the reset token with the given digest. A token
// that was already replaced or used is left alone and is not an error.
func (r *UserRepository) ClearResetToken(ctx context.Context, userID, tokenHash string) error {
	query := r.db.Rebind(`UPDATE users
		SET password_reset_token_hash = NULL, password_reset_expires_at = NULL, updated_at = ?
		WHERE id = ? AND password_reset_token_hash = ?`)
	_, err := r.db.ExecContext(ctx, query, timestamp(), userID, tokenHash)
	return err
}

// ConsumeResetToken sets a new password and clears the reset token, but only
// while the stored token still matches and is unexpired. A token can
// therefore be redeemed at most once even under concurrent requests.
func (r *UserRepository) ConsumeResetToken(ctx context.Context, userID, tokenHash, passwordHash string, now time.Time) error {
	query := r.db.Rebind(`UPDATE users
		SET password_hash = ?, password_reset_token_hash = NULL, password_reset_expires_at = NULL, updated_at = ?
		WHERE id = ? AND password_reset_token_hash = ? AND password_reset_expires_at > ?`)
	return r.execOne(ctx, query, ErrResetTokenInvalid, passwordHash, timestamp(), userID, tokenHash, now.UTC())
}

// UpdatePassword replaces the password hash and clears any outstanding reset token.
func (r *UserRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	query := r.db.Rebind(`UPDATE users
		SET password_hash = ?, password_reset_token_hash = NULL, password_reset_expires_at = NULL, updated_at = ?
		WHERE id = ?`)
	return r.execOne(ctx, query, ErrUserNotFound, passwordHash, timestamp(), userID)
}

// UpdateProfile replaces the display name fields.
func (r *UserRepository) UpdateProfile(ctx context.Context, userID, firstName, lastName string) error {
	query := r.db.Rebind(`UPDATE users SET first_name = ?, last_name = ?, updated_at = ? WHERE id = ?`)
	return r.execOne(ctx, query, ErrUserNotFound, firstName, lastName, timestamp(), userID)
}

// SetActive enables or disables an account. Disabled accounts cannot log in
// or request a password reset.
func (r *UserRepository) SetActive(ctx context.Context, userID string, active bool) error {
	query := r.db.Rebind(`UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`)
	return r.execOne(ctx, query, ErrUserNotFound, active, timestamp(), userID)
}

// execOne runs an update and returns notFound when no row matched.
func (r *UserRepository) execOne(ctx context.Context, query string, notFound error, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		user       model.User
		resetHash  sql.NullString
		resetUntil sql.NullTime
	)
	err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.FirstName, &user.LastName,
		&user.Role, &user.IsActive, &resetHash, &resetUntil, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if resetHash.Valid && resetUntil.Valid {
		hash, until := resetHash.String, resetUntil.Time.UTC()
		user.PasswordResetTokenHash = &hash
		user.PasswordResetExpiresAt = &until
	}
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()

	return &user, nil
}

// timestamp returns the current time at the precision both dialects store.
func timestamp() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// isDuplicateEntryError reports whether err is a unique-constraint violation
// from MySQL (1062) or PostgreSQL (23505).
func isDuplicateEntryError(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == postgresUniqueViolation
	}
	return false
}
