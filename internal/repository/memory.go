package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pawpantry/pawpantry-go/internal/model"
)

// errResetTokenReplaced aborts a conditional clear without touching the user.
var errResetTokenReplaced = errors.New("reset token replaced")

// MemoryUserRepository is a process-local user store with the same semantics
// as UserRepository. It backs DATABASE_DRIVER=memory and the tests.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	users   map[string]*model.User
	byEmail map[string]string
}

// NewMemoryUserRepository creates an empty MemoryUserRepository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users:   make(map[string]*model.User),
		byEmail: make(map[string]string),
	}
}

func (r *MemoryUserRepository) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[user.Email]; taken {
		return ErrDuplicateEmail
	}

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

	r.users[user.ID] = cloneUser(user)
	r.byEmail[user.Email] = user.ID
	return nil
}

func (r *MemoryUserRepository) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneUser(r.users[id]), nil
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *MemoryUserRepository) GetByResetToken(_ context.Context, tokenHash string, now time.Time) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.HasPendingReset(now) && *u.PasswordResetTokenHash == tokenHash {
			return cloneUser(u), nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *MemoryUserRepository) SetResetToken(_ context.Context, userID, tokenHash string, expiresAt time.Time) error {
	return r.mutate(userID, func(u *model.User) error {
		hash, until := tokenHash, expiresAt.UTC()
		u.PasswordResetTokenHash = &hash
		u.PasswordResetExpiresAt = &until
		return nil
	})
}

func (r *MemoryUserRepository) ClearResetToken(_ context.Context, userID, tokenHash string) error {
	err := r.mutate(userID, func(u *model.User) error {
		if u.PasswordResetTokenHash == nil || *u.PasswordResetTokenHash != tokenHash {
			return errResetTokenReplaced
		}
		clearReset(u)
		return nil
	})
	if errors.Is(err, ErrUserNotFound) || errors.Is(err, errResetTokenReplaced) {
		return nil
	}
	return err
}

func (r *MemoryUserRepository) ConsumeResetToken(_ context.Context, userID, tokenHash, passwordHash string, now time.Time) error {
	err := r.mutate(userID, func(u *model.User) error {
		if !u.HasPendingReset(now) || *u.PasswordResetTokenHash != tokenHash {
			return ErrResetTokenInvalid
		}
		u.PasswordHash = passwordHash
		clearReset(u)
		return nil
	})
	if errors.Is(err, ErrUserNotFound) {
		return ErrResetTokenInvalid
	}
	return err
}

func (r *MemoryUserRepository) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	return r.mutate(userID, func(u *model.User) error {
		u.PasswordHash = passwordHash
		clearReset(u)
		return nil
	})
}

func (r *MemoryUserRepository) UpdateProfile(_ context.Context, userID, firstName, lastName string) error {
	return r.mutate(userID, func(u *model.User) error {
		u.FirstName = firstName
		u.LastName = lastName
		return nil
	})
}

// SetActive enables or disables an account.
func (r *MemoryUserRepository) SetActive(_ context.Context, userID string, active bool) error {
	return r.mutate(userID, func(u *model.User) error {
		u.IsActive = active
		return nil
	})
}

// mutate applies fn to the stored user under the write lock and bumps
// UpdatedAt when fn succeeds.
func (r *MemoryUserRepository) mutate(userID string, fn func(u *model.User) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	if err := fn(u); err != nil {
		return err
	}
	u.UpdatedAt = timestamp()
	return nil
}

func clearReset(u *model.User) {
	u.PasswordResetTokenHash = nil
	u.PasswordResetExpiresAt = nil
}

func cloneUser(u *model.User) *model.User {
	c := *u
	if u.PasswordResetTokenHash != nil {
		hash := *u.PasswordResetTokenHash
		c.PasswordResetTokenHash = &hash
	}
	if u.PasswordResetExpiresAt != nil {
		until := *u.PasswordResetExpiresAt
		c.PasswordResetExpiresAt = &until
	}
	return &c
}
