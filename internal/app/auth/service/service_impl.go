package service

import (
	"context"

	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/adapters/transport/http/dto"
	customErrors "github.com/Miraines/MoonyAndStarry/auth-gateway/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/domain/auth/jwt"
	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/domain/auth/model"
	repo "github.com/Miraines/MoonyAndStarry/auth-gateway/internal/domain/auth/repo"
	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/infra/config"
	"github.com/go-playground/validator/v10"
)

type PasswordHasher interface {
	Hash(password string) (hash, salt string, err error)
	Verify(password, hash string) (bool, error)
	// VerifyDummy costs as much as Verify and is used for unknown users.
	VerifyDummy(password string)
}

type Service interface {
	Register(context.Context, dto.RegisterDTO) error
	Login(context.Context, dto.LoginDTO) (model.TokenPair, error)
	// ValidateAccessToken takes the raw Authorization header value.
	ValidateAccessToken(ctx context.Context, authorization string) (model.ValidationResult, error)
	// RefreshAccessToken takes the raw Authorization header value and
	// returns a new access token next to the presented refresh token.
	RefreshAccessToken(ctx context.Context, authorization string) (model.TokenPair, error)
}

type authService struct {
	userRepo repo.UserRepo
	attempts repo.AttemptRepo
	jwtUtil  jwt.JWTUtil
	hasher   PasswordHasher
	cfg      *config.AuthConfig
	v        *validator.Validate
}

// New wires the protocol. attempts may be nil, which disables login
// throttling.
func New(
	ur repo.UserRepo,
	ar repo.AttemptRepo,
	jm jwt.JWTUtil,
	h PasswordHasher,
	cfg *config.AuthConfig,
	v *validator.Validate,
) Service {
	return &authService{
		userRepo: ur, attempts: ar, jwtUtil: jm, hasher: h, cfg: cfg, v: v,
	}
}

func (a *authService) Register(ctx context.Context, in dto.RegisterDTO) error {
	if err := a.v.Struct(in); err != nil {
		return customErrors.NewInvalidArgument(dto.Describe(err))
	}

	if err := a.ensureUnused(ctx, in); err != nil {
		return err
	}

	hash, salt, err := a.hasher.Hash(in.Password)
	if err != nil {
		return err
	}

	user := model.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Salt:         salt,
	}
	if _, err = a.userRepo.CreateUser(ctx, user); err != nil {
		if customErrors.IsUserAlreadyExists(err) {
			return err
		}
		return customErrors.WrapInternal(err, "CreateUser")
	}
	return nil
}

func (a *authService) ensureUnused(ctx context.Context, in dto.RegisterDTO) error {
	_, err := a.userRepo.GetUserByUsername(ctx, in.Username)
	switch {
	case err == nil:
		return customErrors.ErrUsernameTaken
	case !customErrors.IsUserNotFound(err):
		return customErrors.WrapInternal(err, "GetUserByUsername")
	}

	_, err = a.userRepo.GetUserByEmail(ctx, in.Email)
	switch {
	case err == nil:
		return customErrors.ErrEmailTaken
	case !customErrors.IsUserNotFound(err):
		return customErrors.WrapInternal(err, "GetUserByEmail")
	}
	return nil
}

func (a *authService) Login(ctx context.Context, in dto.LoginDTO) (model.TokenPair, error) {
	if err := a.v.Struct(in); err != nil {
		return model.TokenPair{}, customErrors.NewInvalidArgument(dto.Describe(err))
	}

	key := "login:" + in.Username
	if err := a.checkAttempts(ctx, key); err != nil {
		return model.TokenPair{}, err
	}

	user, err := a.userRepo.GetUserByUsername(ctx, in.Username)
	switch {
	case customErrors.IsUserNotFound(err):
		a.hasher.VerifyDummy(in.Password)
		return model.TokenPair{}, a.loginFailed(ctx, key)
	case err != nil:
		return model.TokenPair{}, customErrors.WrapInternal(err, "GetUserByUsername")
	}

	ok, err := a.hasher.Verify(in.Password, user.PasswordHash)
	if err != nil {
		return model.TokenPair{}, err
	}
	if !ok {
		return model.TokenPair{}, a.loginFailed(ctx, key)
	}

	if a.attempts != nil {
		if err := a.attempts.Reset(ctx, key); err != nil {
			return model.TokenPair{}, customErrors.WrapInternal(err, "ResetAttempts")
		}
	}

	return a.issueTokens(user)
}

func (a *authService) checkAttempts(ctx context.Context, key string) error {
	if a.attempts == nil || a.cfg.LoginMaxFailures <= 0 {
		return nil
	}
	n, err := a.attempts.Failures(ctx, key)
	if err != nil {
		return customErrors.WrapInternal(err, "Failures")
	}
	if n >= int64(a.cfg.LoginMaxFailures) {
		return customErrors.ErrTooManyAttempts
	}
	return nil
}

func (a *authService) loginFailed(ctx context.Context, key string) error {
	if a.attempts != nil {
		if _, err := a.attempts.RecordFailure(ctx, key, a.cfg.LoginFailureWindow); err != nil {
			return customErrors.WrapInternal(err, "RecordFailure")
		}
	}
	return customErrors.ErrInvalidCredentials
}

func (a *authService) issueTokens(user model.User) (model.TokenPair, error) {
	at, err := a.jwtUtil.GenerateAccessToken(user.Username, user.ID)
	if err != nil {
		return model.TokenPair{}, err
	}
	rt, err := a.jwtUtil.GenerateRefreshToken(user.Username, user.ID)
	if err != nil {
		return model.TokenPair{}, err
	}
	return model.TokenPair{AccessToken: at, RefreshToken: rt}, nil
}

func (a *authService) ValidateAccessToken(ctx context.Context, authorization string) (model.ValidationResult, error) {
	token, err := jwt.ExtractBearer(authorization)
	if err != nil {
		return model.ValidationResult{}, err
	}

	claims, err := a.jwtUtil.DecodeAndVerify(token)
	if err != nil {
		return model.ValidationResult{}, customErrors.AuthenticationFailed(err)
	}

	user, err := a.userRepo.GetUserByUsername(ctx, jwt.ExtractClaim(claims, jwt.Username))
	switch {
	case customErrors.IsUserNotFound(err):
		return model.ValidationResult{}, customErrors.ErrUserNotFound
	case err != nil:
		return model.ValidationResult{}, customErrors.WrapInternal(err, "GetUserByUsername")
	}

	// A refresh token carries a valid signature too; only the kind claim
	// tells them apart.
	if jwt.ExtractClaim(claims, jwt.Kind) != jwt.KindAccess ||
		jwt.ExtractClaim(claims, jwt.UserID) != user.ID {
		return model.ValidationResult{Valid: false}, nil
	}

	return model.ValidationResult{Valid: true, UserID: user.ID}, nil
}

func (a *authService) RefreshAccessToken(ctx context.Context, authorization string) (model.TokenPair, error) {
	token, err := jwt.ExtractBearer(authorization)
	if err != nil {
		return model.TokenPair{}, err
	}

	claims, err := a.jwtUtil.DecodeAndVerify(token)
	if err != nil {
		return model.TokenPair{}, customErrors.ErrInvalidRefreshToken
	}
	if jwt.ExtractClaim(claims, jwt.Kind) != jwt.KindRefresh {
		return model.TokenPair{}, customErrors.ErrNotRefreshToken
	}

	user, err := a.userRepo.GetUserByUsername(ctx, jwt.ExtractClaim(claims, jwt.Username))
	switch {
	case customErrors.IsUserNotFound(err):
		return model.TokenPair{}, customErrors.ErrInvalidRefreshToken
	case err != nil:
		return model.TokenPair{}, customErrors.WrapInternal(err, "GetUserByUsername")
	}
	if jwt.ExtractClaim(claims, jwt.UserID) != user.ID {
		return model.TokenPair{}, customErrors.ErrInvalidRefreshToken
	}

	at, err := a.jwtUtil.GenerateAccessToken(user.Username, user.ID)
	if err != nil {
		return model.TokenPair{}, err
	}
	// TODO: rotate the refresh token once a revocation store exists; until
	// then a leaked refresh token stays usable until it expires.
	return model.TokenPair{AccessToken: at, RefreshToken: token}, nil
}
