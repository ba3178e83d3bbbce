package repo

import (
	"context"

	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/domain/auth/model"
)

// UserRepo is the credential store. CreateUser must report a uniqueness
// violation as ErrUserAlreadyExists.
type UserRepo interface {
	CreateUser(ctx context.Context, u model.User) (int64, error)

	GetUserByUsername(ctx context.Context, username string) (model.User, error)

	GetUserByEmail(ctx context.Context, email string) (model.User, error)
}
