package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/storelens/storelens/internal/domain"
	"github.com/storelens/storelens/internal/security/auth"
)

// MinPasswordLength is the shortest accepted new password
const MinPasswordLength = 7

// AuthService handles accounts and session tokens
type AuthService struct {
	userRepo domain.UserRepository
	tokens   *auth.TokenManager
	cost     int
	logger   *slog.Logger
}

// NewAuthService creates a new authentication service
func NewAuthService(
	userRepo domain.UserRepository,
	tokens *auth.TokenManager,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthService{
		userRepo: userRepo,
		tokens:   tokens,
		cost:     bcrypt.DefaultCost,
		logger:   logger,
	}
}

// RegisterResult is the public view of a new account
type RegisterResult struct {
	UserID string
	Email  string
}

// LoginResult carries the issued session token
type LoginResult struct {
	UserID    string
	Email     string
	Token     string
	ExpiresAt time.Time
}

// Register creates a new user account
func (s *AuthService) Register(ctx context.Context, email, password string) (*RegisterResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, domain.Errorf(domain.ErrValidation, "email and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		s.logger.Error("failed to hash password", slog.String("error", err.Error()))
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Email:        email,
		PasswordHash: string(hash),
	}

	// The unique index on email is the source of truth for duplicates
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			s.logger.Info("registration with existing email", slog.String("email", email))
			return nil, err
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return &RegisterResult{UserID: user.ID, Email: user.Email}, nil
}

// Login verifies credentials and issues a session token
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, domain.Errorf(domain.ErrValidation, "email and password are required")
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Info("login attempt with non-existent email", slog.String("email", email))
			return nil, domain.Errorf(domain.ErrAuth, "invalid credentials")
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Info("login failed with wrong password", slog.String("email", email))
		return nil, domain.Errorf(domain.ErrAuth, "invalid credentials")
	}

	token, expires, err := s.tokens.GenerateToken(user.ID, user.Email)
	if err != nil {
		s.logger.Error("failed to sign token", slog.String("error", err.Error()))
		return nil, err
	}

	s.logger.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return &LoginResult{
		UserID:    user.ID,
		Email:     user.Email,
		Token:     token,
		ExpiresAt: expires,
	}, nil
}

// VerifyToken validates a session token
func (s *AuthService) VerifyToken(tokenString string) (*auth.Claims, error) {
	claims, err := s.tokens.ValidateToken(tokenString)
	if err != nil {
		return nil, domain.Errorf(domain.ErrAuth, "invalid or expired session")
	}
	return claims, nil
}

// ChangePassword replaces the password of userID after checking the old one
func (s *AuthService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return domain.Errorf(domain.ErrValidation, "old and new password are required")
	}
	if len(newPassword) < MinPasswordLength {
		return domain.Errorf(domain.ErrValidation, "new password must be longer than 6 characters")
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return domain.Errorf(domain.ErrAuth, "current password is incorrect")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		s.logger.Error("failed to hash new password", slog.String("error", err.Error()))
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.userRepo.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
		s.logger.Error("failed to update user password", slog.String("error", err.Error()))
		return err
	}

	s.logger.Info("user changed password", slog.String("user_id", userID))
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
