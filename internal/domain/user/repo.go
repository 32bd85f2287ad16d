package user

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists operator accounts. GetByCredential matches the value
// against username or email and returns (nil, nil) when nothing matches.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByCredential(ctx context.Context, credential string) (*User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
}
