package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// Config holds token settings.
type Config struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// Service signs users up and in and verifies their tokens.
type Service struct {
	repo   Repository
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

// NewService creates a Service. The secret is required.
func NewService(repo Repository, cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT secret not set")
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		repo:   repo,
		secret: []byte(cfg.JWTSecret),
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}, nil
}

// SignUp registers a new account and starts a session for it.
func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (*User, *Session, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, nil, &ValidationError{Field: "email", Reason: "a valid email address is required"}
	}
	if len(password) < MinPasswordLength {
		return nil, nil, &ValidationError{Field: "password", Reason: fmt.Sprintf("must be at least %d characters", MinPasswordLength)}
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{
		ID:           uuid.New().String(),
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: string(hashed),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, nil, err
	}

	session, err := s.issue(user)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info().Str("user_id", user.ID).Msg("user signed up")
	return user, session, nil
}

// SignIn checks the password and starts a session.
func (s *Service) SignIn(ctx context.Context, email, password string) (*User, *Session, error) {
	user, err := s.repo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	session, err := s.issue(user)
	if err != nil {
		return nil, nil, err
	}
	return user, session, nil
}

// SignOut revokes the token so later Verify calls reject it.
func (s *Service) SignOut(ctx context.Context, token string) error {
	claims, err := parseToken(s.secret, token, s.now())
	if err != nil {
		return err
	}
	return s.repo.RevokeToken(ctx, claims.TokenID, claims.ExpiresAt)
}

// Verify validates a bearer token and returns its claims.
func (s *Service) Verify(ctx context.Context, token string) (*Claims, error) {
	if token == "" {
		return nil, ErrAuthenticationRequired
	}
	claims, err := parseToken(s.secret, token, s.now())
	if err != nil {
		return nil, err
	}
	revoked, err := s.repo.IsRevoked(ctx, claims.TokenID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Me returns the account behind userID.
func (s *Service) Me(ctx context.Context, userID string) (*User, error) {
	return s.repo.FindByID(ctx, userID)
}

func (s *Service) issue(u *User) (*Session, error) {
	token, expiresAt, err := signToken(s.secret, u.ID, u.Email, uuid.New().String(), s.now(), s.ttl)
	if err != nil {
		return nil, err
	}
	return &Session{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.ttl.Seconds()),
		ExpiresAt:   expiresAt,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
