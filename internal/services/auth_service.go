package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"softspace/internal/auth"
	"softspace/internal/config"
	"softspace/internal/models"
	"softspace/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Custom errors for auth service
var (
	ErrUserAlreadyExists  = errors.New("user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrHashingPassword    = errors.New("failed to hash password")
	ErrCreatingToken      = errors.New("failed to create access token")
	ErrCreatingUser       = errors.New("failed to create user")
)

type AuthService struct {
	store  store.Store
	cfg    *config.Config
	logger *zap.Logger
}

func NewAuthService(s store.Store, cfg *config.Config, logger *zap.Logger) *AuthService {
	return &AuthService{
		store:  s,
		cfg:    cfg,
		logger: logger.Named("auth"),
	}
}

// Signup creates a new account with the free-tier message limit.
func (s *AuthService) Signup(ctx context.Context, email, password string) (*models.User, error) {
	// Basic validation
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password cannot be empty", ErrValidation)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email address", ErrValidation)
	}

	// Check if user already exists
	_, err := s.store.GetUserByEmail(ctx, email)
	if err == nil {
		return nil, ErrUserAlreadyExists
	}
	if !errors.Is(err, store.ErrNotFound) {
		// Different error occurred during lookup
		return nil, fmt.Errorf("failed to check user existence: %w", err)
	}

	// Hash password
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooShort) || errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		s.logger.Error("hash password", zap.Error(err))
		return nil, ErrHashingPassword
	}

	// Create User with the free-tier allowance
	user := &models.User{
		ID:             uuid.New(),
		Email:          email,
		HashedPassword: hashedPassword,
		MessagesLimit:  s.cfg.FreeMessageLimit,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Lost a race with a concurrent signup for the same email
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("%w: %v", ErrCreatingUser, err)
	}

	s.logger.Info("signed up", zap.Stringer("user_id", user.ID))
	return user, nil
}

// Login verifies user credentials and returns an access token and user info.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return "", nil, ErrInvalidCredentials
	}

	// Get user by email
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil, ErrInvalidCredentials // Don't reveal if user exists or password is wrong
		}
		return "", nil, fmt.Errorf("failed to retrieve user: %w", err)
	}

	// Check password
	if !auth.CheckPasswordHash(password, user.HashedPassword) {
		return "", nil, ErrInvalidCredentials
	}

	// Generate JWT token using expiration from config
	token, err := auth.NewAccessToken(user.ID, s.cfg.JWTSecret, s.cfg.TokenExpiration)
	if err != nil {
		s.logger.Error("create access token", zap.Stringer("user_id", user.ID), zap.Error(err))
		return "", nil, ErrCreatingToken
	}

	s.logger.Info("logged in", zap.Stringer("user_id", user.ID))
	return token, user, nil
}

// CurrentUser returns the account behind a verified token.
func (s *AuthService) CurrentUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ToUserResponse maps an account row to its API shape.
func ToUserResponse(u *models.User) models.UserResponse {
	return models.UserResponse{ID: u.ID, Email: u.Email, IsSubscribed: u.IsSubscribed}
}
