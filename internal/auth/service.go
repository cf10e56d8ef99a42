package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"vibeshop-backend/internal/domain"
	"vibeshop-backend/internal/store"
)

type Service struct {
	users  store.Collection
	tokens *Tokens
	logger *slog.Logger
}

func NewService(users store.Collection, tokens *Tokens, logger *slog.Logger) *Service {
	return &Service{
		users:  users,
		tokens: tokens,
		logger: logger,
	}
}

// normalizeEmail trims the address and lowercases its domain. The local part
// is kept as given.
func normalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at+1] + strings.ToLower(email[at+1:])
}

// Register creates an account. The Count check answers the common case; the
// store's unique email constraint settles concurrent registrations.
func (s *Service) Register(ctx context.Context, email, password, name string) (domain.TokenResponse, error) {
	email = normalizeEmail(email)

	n, err := s.users.Count(ctx, store.Filter{"email": email})
	if err != nil {
		return domain.TokenResponse{}, fmt.Errorf("check email: %w", err)
	}
	if n > 0 {
		return domain.TokenResponse{}, domain.BadRequest("Email already registered")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return domain.TokenResponse{}, fmt.Errorf("hash password: %w", err)
	}

	user := domain.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.InsertOne(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.TokenResponse{}, domain.BadRequest("Email already registered")
		}
		return domain.TokenResponse{}, fmt.Errorf("insert user: %w", err)
	}

	s.logger.Info("user registered", "user_id", user.ID)
	return s.tokenFor(user)
}

// Login fails the same way for an unknown email and a wrong password.
func (s *Service) Login(ctx context.Context, email, password string) (domain.TokenResponse, error) {
	var user domain.User
	err := s.users.FindOne(ctx, store.Filter{"email": normalizeEmail(email)}, &user)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TokenResponse{}, domain.Unauthorized("Invalid credentials")
		}
		return domain.TokenResponse{}, fmt.Errorf("load user: %w", err)
	}

	if !CheckPassword(user.PasswordHash, password) {
		return domain.TokenResponse{}, domain.Unauthorized("Invalid credentials")
	}

	s.logger.Info("user logged in", "user_id", user.ID)
	return s.tokenFor(user)
}

func (s *Service) tokenFor(user domain.User) (domain.TokenResponse, error) {
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return domain.TokenResponse{}, fmt.Errorf("issue token: %w", err)
	}
	return domain.TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        user.Response(),
	}, nil
}
