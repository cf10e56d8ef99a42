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

// Fallback describes the demo identity used for requests without credentials.
type Fallback struct {
	Enabled  bool
	Email    string
	Name     string
	Password string
}

type Resolver struct {
	users    store.Collection
	tokens   *Tokens
	fallback Fallback
	logger   *slog.Logger
}

func NewResolver(users store.Collection, tokens *Tokens, fallback Fallback, logger *slog.Logger) *Resolver {
	fallback.Email = normalizeEmail(fallback.Email)
	return &Resolver{
		users:    users,
		tokens:   tokens,
		fallback: fallback,
		logger:   logger,
	}
}

// Resolve maps an Authorization header value to a user. An empty header
// resolves to the fallback identity when it is enabled.
func (r *Resolver) Resolve(ctx context.Context, authorization string) (domain.User, error) {
	if strings.TrimSpace(authorization) == "" {
		if !r.fallback.Enabled {
			return domain.User{}, domain.Unauthorized("Not authenticated")
		}
		return r.fallbackUser(ctx)
	}

	scheme, tokenStr, ok := strings.Cut(strings.TrimSpace(authorization), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tokenStr) == "" {
		return domain.User{}, domain.Unauthorized("Invalid token")
	}

	userID, err := r.tokens.Subject(strings.TrimSpace(tokenStr))
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return domain.User{}, domain.Unauthorized("Token expired")
		}
		return domain.User{}, domain.Unauthorized("Invalid token")
	}

	var user domain.User
	if err := r.users.FindOne(ctx, store.Filter{"id": userID}, &user); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, domain.Unauthorized("User not found")
		}
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

func (r *Resolver) fallbackUser(ctx context.Context) (domain.User, error) {
	var user domain.User
	err := r.users.FindOne(ctx, store.Filter{"email": r.fallback.Email}, &user)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.User{}, fmt.Errorf("load fallback user: %w", err)
	}

	hash, err := HashPassword(r.fallback.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash fallback password: %w", err)
	}

	user = domain.User{
		ID:           uuid.New().String(),
		Email:        r.fallback.Email,
		Name:         r.fallback.Name,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := r.users.InsertOne(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// a concurrent request created it first
			var existing domain.User
			if err := r.users.FindOne(ctx, store.Filter{"email": r.fallback.Email}, &existing); err != nil {
				return domain.User{}, fmt.Errorf("reload fallback user: %w", err)
			}
			return existing, nil
		}
		return domain.User{}, fmt.Errorf("create fallback user: %w", err)
	}

	r.logger.Info("fallback user created", "user_id", user.ID, "email", user.Email)
	return user, nil
}
