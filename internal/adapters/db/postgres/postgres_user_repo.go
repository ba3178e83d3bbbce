package postgres

import (
	"context"
	"errors"
	"strings"

	customErrors "github.com/Miraines/MoonyAndStarry/auth-gateway/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/domain/auth/model"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const uniqueViolation = "23505"

type PostgresUserRepo struct {
	db *gorm.DB
}

func NewPostgresUserRepo(db *gorm.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// CreateUser relies on the unique indexes on username and email, so two
// concurrent registrations cannot both succeed.
func (p *PostgresUserRepo) CreateUser(ctx context.Context, user model.User) (int64, error) {
	res := p.db.WithContext(ctx).Create(&user)
	if err := res.Error; err != nil {
		if dup := duplicateOf(err); dup != nil {
			return 0, dup
		}
		return 0, customErrors.WrapInternal(err, "CreateUser")
	}
	return user.ID, nil
}

func (p *PostgresUserRepo) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	return p.first(ctx, "GetUserByUsername", "username = ?", username)
}

func (p *PostgresUserRepo) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	return p.first(ctx, "GetUserByEmail", "email = ?", email)
}

func (p *PostgresUserRepo) first(ctx context.Context, op, query string, arg any) (model.User, error) {
	var u model.User
	res := p.db.WithContext(ctx).Where(query, arg).First(&u)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return model.User{}, customErrors.ErrUserNotFound
	}
	if err := res.Error; err != nil {
		return model.User{}, customErrors.WrapInternal(err, op)
	}
	return u, nil
}

func duplicateOf(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != uniqueViolation {
			return nil
		}
		return takenBy(pgErr.ConstraintName + " " + pgErr.Detail)
	}
	// sqlite reports "UNIQUE constraint failed: users.email"
	if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return takenBy(err.Error())
	}
	return nil
}

func takenBy(detail string) error {
	switch {
	case strings.Contains(detail, "email"):
		return customErrors.ErrEmailTaken
	case strings.Contains(detail, "username"):
		return customErrors.ErrUsernameTaken
	default:
		return customErrors.ErrUserAlreadyExists
	}
}
