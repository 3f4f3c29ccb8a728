package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pawpantry/pawpantry-go/internal/apperr"
	"github.com/pawpantry/pawpantry-go/internal/crypto"
	"github.com/pawpantry/pawpantry-go/internal/mail"
	"github.com/pawpantry/pawpantry-go/internal/model"
	"github.com/pawpantry/pawpantry-go/internal/repository"
)

var (
	ErrInvalidCredentials    = apperr.New(apperr.KindInvalidCredentials, "invalid email or password")
	ErrAccountDisabled       = apperr.New(apperr.KindForbidden, "account is deactivated")
	ErrEmailTaken            = apperr.New(apperr.KindConflict, "email already registered")
	ErrInvalidOrExpiredToken = apperr.New(apperr.KindInvalidOrExpired, "invalid or expired reset token")
	ErrWrongPassword         = apperr.New(apperr.KindUnauthorized, "current password is incorrect")
	ErrUserNotFound          = apperr.New(apperr.KindNotFound, "user not found")
)

// Response messages.
const (
	ForgotPasswordMessage = "If your email exists in our system, you will receive a password reset link."
	ResetPasswordMessage  = "Password has been reset successfully."
	ChangePasswordMessage = "Password changed successfully."
)

// UserStore is the persistence the AuthService needs. It is implemented by
// repository.UserRepository and repository.MemoryUserRepository.
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (*model.User, error)
	SetResetToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	ClearResetToken(ctx context.Context, userID, tokenHash string) error
	ConsumeResetToken(ctx context.Context, userID, tokenHash, passwordHash string, now time.Time) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	UpdateProfile(ctx context.Context, userID, firstName, lastName string) error
}

// AuthConfig holds the settings of the password reset and email side of
// the AuthService.
type AuthConfig struct {
	ResetTokenTTL time.Duration
	ResetURL      string
	MailTimeout   time.Duration
}

// AuthService handles authentication business logic.
type AuthService struct {
	users       UserStore
	tokens      *crypto.TokenManager
	mailer      mail.Sender
	validate    *validator.Validate
	resetTTL    time.Duration
	resetURL    string
	mailTimeout time.Duration
	now         func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(users UserStore, tokens *crypto.TokenManager, mailer mail.Sender, cfg AuthConfig) *AuthService {
	return &AuthService{
		users:       users,
		tokens:      tokens,
		mailer:      mailer,
		validate:    newValidator(),
		resetTTL:    cfg.ResetTokenTTL,
		resetURL:    cfg.ResetURL,
		mailTimeout: cfg.MailTimeout,
		now:         time.Now,
	}
}

// Register creates a new user account and returns an auth token.
func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (model.AuthResponse, error) {
	req.Email = strings.TrimSpace(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if err := s.validateRequest(req); err != nil {
		return model.AuthResponse{}, err
	}

	hash, err := s.hashPassword(req.Password)
	if err != nil {
		return model.AuthResponse{}, err
	}

	user := &model.User{
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return model.AuthResponse{}, ErrEmailTaken
		}
		return model.AuthResponse{}, fmt.Errorf("creating user: %w", err)
	}

	resp, err := s.authResponse(user)
	if err != nil {
		return model.AuthResponse{}, err
	}

	if err := s.send(ctx, mail.Message{
		To:       user.Email,
		Subject:  "Welcome to Paw Pantry",
		Template: mail.TemplateWelcome,
		Data:     mail.WelcomeData{FirstName: user.FirstName, Email: user.Email},
	}); err != nil {
		slog.WarnContext(ctx, "welcome email failed", "user_id", user.ID, "error", err)
	}

	return resp, nil
}

// Login authenticates a user and returns an auth token. An unknown email and
// a wrong password fail identically.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (model.AuthResponse, error) {
	req.Email = strings.TrimSpace(req.Email)
	if err := s.validateRequest(req); err != nil {
		return model.AuthResponse{}, err
	}

	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.AuthResponse{}, ErrInvalidCredentials
		}
		return model.AuthResponse{}, fmt.Errorf("loading user: %w", err)
	}

	match, err := crypto.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		slog.WarnContext(ctx, "password verification failed", "user_id", user.ID, "error", err)
		return model.AuthResponse{}, ErrInvalidCredentials
	}
	if !match {
		return model.AuthResponse{}, ErrInvalidCredentials
	}

	if !user.IsActive {
		return model.AuthResponse{}, ErrAccountDisabled
	}

	return s.authResponse(user)
}

// ForgotPassword issues a reset token and emails a link carrying it. The
// response is the same whether or not the email belongs to an account.
func (s *AuthService) ForgotPassword(ctx context.Context, req model.ForgotPasswordRequest) (model.MessageResponse, error) {
	req.Email = strings.TrimSpace(req.Email)
	if err := s.validateRequest(req); err != nil {
		return model.MessageResponse{}, err
	}

	generic := model.MessageResponse{Message: ForgotPasswordMessage}

	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return generic, nil
		}
		return model.MessageResponse{}, fmt.Errorf("loading user: %w", err)
	}
	if !user.IsActive {
		return generic, nil
	}

	raw, digest, err := crypto.NewResetToken()
	if err != nil {
		return model.MessageResponse{}, err
	}
	link, err := s.resetLink(raw)
	if err != nil {
		return model.MessageResponse{}, err
	}

	expiresAt := s.now().Add(s.resetTTL)
	if err := s.users.SetResetToken(ctx, user.ID, digest, expiresAt); err != nil {
		return model.MessageResponse{}, fmt.Errorf("storing reset token: %w", err)
	}

	err = s.send(ctx, mail.Message{
		To:       user.Email,
		Subject:  "Reset your Paw Pantry password",
		Template: mail.TemplatePasswordReset,
		Data: mail.PasswordResetData{
			FirstName:        user.FirstName,
			ResetURL:         link,
			ExpiresInMinutes: int(s.resetTTL / time.Minute),
		},
	})
	if err != nil {
		if clearErr := s.users.ClearResetToken(context.WithoutCancel(ctx), user.ID, digest); clearErr != nil {
			slog.ErrorContext(ctx, "failed to clear reset token after send failure", "user_id", user.ID, "error", clearErr)
		}
		return model.MessageResponse{}, apperr.Wrap(apperr.KindInternal, "failed to send password reset email", err)
	}

	return generic, nil
}

// ResetPassword exchanges an unexpired reset token for a new password. A
// token can be used once.
func (s *AuthService) ResetPassword(ctx context.Context, req model.ResetPasswordRequest) (model.MessageResponse, error) {
	req.ResetToken = strings.TrimSpace(req.ResetToken)
	if err := s.validateRequest(req); err != nil {
		return model.MessageResponse{}, err
	}

	digest := crypto.HashResetToken(req.ResetToken)
	now := s.now()

	user, err := s.users.GetByResetToken(ctx, digest, now)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.MessageResponse{}, ErrInvalidOrExpiredToken
		}
		return model.MessageResponse{}, fmt.Errorf("loading reset token: %w", err)
	}

	hash, err := s.hashPassword(req.NewPassword)
	if err != nil {
		return model.MessageResponse{}, err
	}

	if err := s.users.ConsumeResetToken(ctx, user.ID, digest, hash, now); err != nil {
		if errors.Is(err, repository.ErrResetTokenInvalid) {
			return model.MessageResponse{}, ErrInvalidOrExpiredToken
		}
		return model.MessageResponse{}, fmt.Errorf("resetting password: %w", err)
	}

	return model.MessageResponse{Message: ResetPasswordMessage}, nil
}

// ChangePassword replaces the password of an authenticated user after
// checking the current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, req model.ChangePasswordRequest) (model.MessageResponse, error) {
	if err := s.validateRequest(req); err != nil {
		return model.MessageResponse{}, err
	}

	user, err := s.getUser(ctx, userID)
	if err != nil {
		return model.MessageResponse{}, err
	}

	match, err := crypto.VerifyPassword(req.CurrentPassword, user.PasswordHash)
	if err != nil || !match {
		return model.MessageResponse{}, ErrWrongPassword
	}

	hash, err := s.hashPassword(req.NewPassword)
	if err != nil {
		return model.MessageResponse{}, err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return model.MessageResponse{}, fmt.Errorf("updating password: %w", err)
	}

	return model.MessageResponse{Message: ChangePasswordMessage}, nil
}

// GetUser retrieves a user by ID and returns safe user data.
func (s *AuthService) GetUser(ctx context.Context, userID string) (model.UserResponse, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return model.UserResponse{}, err
	}
	return model.NewUserResponse(user), nil
}

// UpdateProfile changes the name of an authenticated user.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, req model.UpdateProfileRequest) (model.UserResponse, error) {
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if err := s.validateRequest(req); err != nil {
		return model.UserResponse{}, err
	}

	if err := s.users.UpdateProfile(ctx, userID, req.FirstName, req.LastName); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.UserResponse{}, ErrUserNotFound
		}
		return model.UserResponse{}, fmt.Errorf("updating profile: %w", err)
	}

	return s.GetUser(ctx, userID)
}

func (s *AuthService) getUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}
	return user, nil
}

func (s *AuthService) authResponse(user *model.User) (model.AuthResponse, error) {
	token, _, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return model.AuthResponse{}, fmt.Errorf("issuing token: %w", err)
	}

	return model.AuthResponse{
		AccessToken: token,
		ExpiresIn:   int64(s.tokens.TTL() / time.Second),
		User:        model.NewUserResponse(user),
	}, nil
}

func (s *AuthService) hashPassword(password string) (string, error) {
	hash, err := crypto.HashPassword(password)
	if errors.Is(err, crypto.ErrPasswordTooLong) {
		return "", apperr.Wrap(apperr.KindValidation, "password must be at most 72 bytes", err)
	}
	return hash, err
}

// send delivers msg, bounded by the configured mail timeout.
func (s *AuthService) send(ctx context.Context, msg mail.Message) error {
	if s.mailTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.mailTimeout)
		defer cancel()
	}
	return s.mailer.Send(ctx, msg)
}

func (s *AuthService) resetLink(rawToken string) (string, error) {
	u, err := url.Parse(s.resetURL)
	if err != nil {
		return "", fmt.Errorf("parsing reset url: %w", err)
	}
	q := u.Query()
	q.Set("token", rawToken)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest checks the struct tags of req and turns failures into a
// single validation error naming every offending field.
func (s *AuthService) validateRequest(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperr.Wrap(apperr.KindValidation, "invalid request", err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return apperr.New(apperr.KindValidation, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fe.Field() + " is invalid"
	}
}
