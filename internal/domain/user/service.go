package user

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/medsync/medsync/internal/platform/auth"
)

var ErrInvalidCredentials = fmt.Errorf("invalid credentials")

var validRoles = map[string]bool{
	RoleAdmin: true, RoleEmployee: true,
}

type Service struct {
	repo       Repository
	signingKey []byte
	expiry     time.Duration
	logger     zerolog.Logger
}

func NewService(repo Repository, signingKey []byte, expiry time.Duration, logger zerolog.Logger) *Service {
	return &Service{repo: repo, signingKey: signingKey, expiry: expiry, logger: logger}
}

// Login checks the credential (username or email) and password, returning a
// signed token and the account on success.
func (s *Service) Login(ctx context.Context, credential, password string) (string, *User, error) {
	u, err := s.repo.GetByCredential(ctx, credential)
	if err != nil {
		return "", nil, err
	}
	if u == nil || !u.Active {
		return "", nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := auth.IssueToken(s.signingKey, s.expiry, auth.TokenUser{
		ID:       u.ID.String(),
		Username: u.Username,
		Email:    u.Email,
		Role:     u.Role,
	})
	if err != nil {
		return "", nil, err
	}

	s.logger.Info().Str("user_id", u.ID.String()).Str("username", u.Username).Msg("login")
	return token, u, nil
}

// Register creates a new operator account.
func (s *Service) Register(ctx context.Context, username, email, password, role string) (*User, error) {
	if username == "" || email == "" {
		return nil, fmt.Errorf("username and email are required")
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters")
	}
	if role == "" {
		role = RoleEmployee
	}
	if !validRoles[role] {
		return nil, fmt.Errorf("invalid role: %s", role)
	}

	if existing, err := s.repo.GetByCredential(ctx, username); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("username already taken")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Get returns the account by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// ChangePassword verifies the current password before replacing it.
func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, current, next string) error {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)); err != nil {
		return ErrInvalidCredentials
	}
	if len(next) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.repo.UpdatePassword(ctx, id, string(hash))
}
