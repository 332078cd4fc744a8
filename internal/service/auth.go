package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/calendararchive/calendar-server/internal/auth"
	"github.com/calendararchive/calendar-server/internal/domain"
	domainerrors "github.com/calendararchive/calendar-server/internal/errors"
	"github.com/calendararchive/calendar-server/internal/id"
	"github.com/calendararchive/calendar-server/internal/sse"
	"github.com/calendararchive/calendar-server/internal/store"
	"github.com/calendararchive/calendar-server/internal/validation"
)

// AuthService registers accounts, signs users in and resolves bearer
// tokens to actors.
type AuthService struct {
	store       store.Store
	tokens      *auth.TokenService
	validator   *validation.Validator
	sseManager  *sse.Manager
	logger      *slog.Logger
	now         func() time.Time
	adminEmails []string
}

// NewAuthService creates an authentication service. Accounts registered
// with an address in adminEmails get the admin role.
func NewAuthService(
	st store.Store,
	tokens *auth.TokenService,
	v *validation.Validator,
	sseManager *sse.Manager,
	adminEmails []string,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		store:       st,
		tokens:      tokens,
		validator:   v,
		sseManager:  sseManager,
		logger:      orDiscard(logger),
		now:         time.Now,
		adminEmails: adminEmails,
	}
}

// RegisterRequest is the input for creating an account.
type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"required,min=8,max=1024"`
	DisplayName string `json:"display_name,omitempty" validate:"max=100"`
}

// LoginRequest holds user credentials.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=1024"`
}

// AuthResponse is returned after registration or login.
type AuthResponse struct {
	ExpiresAt   time.Time    `json:"expires_at"`
	User        *domain.User `json:"user"`
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
}

// Register creates an account and signs it in.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	userID, err := id.Generate(id.PrefixUser)
	if err != nil {
		return nil, fmt.Errorf("generate user ID: %w", err)
	}

	email := strings.TrimSpace(req.Email)
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName, _, _ = strings.Cut(email, "@")
	}

	now := s.now()
	user := &domain.User{
		CreatedAt:    now,
		UpdatedAt:    now,
		LastLoginAt:  now,
		ID:           userID,
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hash,
		Role:         domain.RoleFor(email, s.adminEmails),
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, domainerrors.AlreadyExists("email already in use")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user registered",
		"user_id", user.ID,
		"role", user.Role)
	if s.sseManager != nil {
		s.sseManager.Emit(sse.NewUserRegisteredEvent(user))
	}

	return s.issue(user)
}

// Login checks credentials and issues an access token. Unknown emails and
// wrong passwords get the same error.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.InvalidCredentials("invalid email or password")
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !auth.VerifyPassword(user.PasswordHash, req.Password) {
		return nil, domainerrors.InvalidCredentials("invalid email or password")
	}

	user.LastLoginAt = s.now()
	if err := s.store.UpdateUser(ctx, user); err != nil {
		s.logger.Warn("failed to record login time", "user_id", user.ID, "error", err)
	}

	return s.issue(user)
}

func (s *AuthService) issue(user *domain.User) (*AuthResponse, error) {
	token, expires, err := s.tokens.GenerateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}
	return &AuthResponse{
		ExpiresAt:   expires,
		User:        PublicUser(user),
		AccessToken: token,
		TokenType:   "Bearer",
	}, nil
}

// VerifyAccessToken resolves a token to its current user record.
func (s *AuthService) VerifyAccessToken(ctx context.Context, token string) (*domain.User, error) {
	claims, err := s.tokens.VerifyAccessToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil, domainerrors.TokenExpired("access token expired")
		}
		return nil, domainerrors.Unauthorized("invalid access token")
	}

	user, err := s.store.GetUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.Unauthorized("user no longer exists")
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

// Actor resolves a bearer token. An empty token is a guest (nil actor).
// The role comes from the stored user, not the token, so demotions apply
// immediately.
func (s *AuthService) Actor(ctx context.Context, token string) (*domain.Actor, error) {
	if token == "" {
		return nil, nil
	}
	user, err := s.VerifyAccessToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return domain.ActorFor(user), nil
}

// GetUser returns a user without credentials.
func (s *AuthService) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.NotFound("user not found")
		}
		return nil, err
	}
	return PublicUser(user), nil
}

// PublicUser returns a copy of u safe to send to clients.
func PublicUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	cp := *u
	cp.PasswordHash = ""
	return &cp
}

// SystemActor is the admin identity used for unattended imports.
func SystemActor(email string) *domain.Actor {
	return &domain.Actor{UserID: "system", Email: email, Role: domain.RoleAdmin}
}
