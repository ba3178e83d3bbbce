package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/adapters/transport/http/dto"
	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/app/auth/jwt"
	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/app/auth/password"
	appsvc "github.com/Miraines/MoonyAndStarry/auth-gateway/internal/app/auth/service"
	authErrors "github.com/Miraines/MoonyAndStarry/auth-gateway/internal/domain/auth/errors"
	domainjwt "github.com/Miraines/MoonyAndStarry/auth-gateway/internal/domain/auth/jwt"
	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/domain/auth/model"
	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/infra/config"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

/* ──────────────────────────────── stubs ──────────────────────────────── */

type userRepoStub struct {
	mu     sync.Mutex
	nextID int64
	users  map[string]model.User
	// createErr is returned by CreateUser when set, simulating a lost race.
	createErr error
}

func newUserRepoStub() *userRepoStub {
	return &userRepoStub{users: make(map[string]model.User)}
}

func (u *userRepoStub) CreateUser(_ context.Context, m model.User) (int64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.createErr != nil {
		return 0, u.createErr
	}
	u.nextID++
	m.ID = u.nextID
	u.users[m.Username] = m
	return m.ID, nil
}

func (u *userRepoStub) GetUserByUsername(_ context.Context, name string) (model.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	v, ok := u.users[name]
	if !ok {
		return model.User{}, authErrors.ErrUserNotFound
	}
	return v, nil
}

func (u *userRepoStub) GetUserByEmail(_ context.Context, email string) (model.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, v := range u.users {
		if v.Email == email {
			return v, nil
		}
	}
	return model.User{}, authErrors.ErrUserNotFound
}

func (u *userRepoStub) delete(name string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.users, name)
}

type attemptRepoStub struct {
	mu       sync.Mutex
	failures map[string]int64
}

func (a *attemptRepoStub) Failures(_ context.Context, key string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.failures[key], nil
}

func (a *attemptRepoStub) RecordFailure(_ context.Context, key string, _ time.Duration) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures[key]++
	return a.failures[key], nil
}

func (a *attemptRepoStub) Reset(_ context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.failures, key)
	return nil
}

type errUserRepoStub struct{ userRepoStub }

func (*errUserRepoStub) GetUserByUsername(context.Context, string) (model.User, error) {
	return model.User{}, errors.New("connection reset")
}

/* ───────────────────────────── helpers ───────────────────────────── */

const authHeader = "Bearer "

func testConfig() *config.AuthConfig {
	return &config.AuthConfig{
		JWTSecret:          []byte("0123456789abcdef0123456789abcdef"),
		AccessTokenTTL:     time.Minute,
		RefreshTokenTTL:    time.Hour,
		PasswordHasher:     password.AlgBcrypt,
		BcryptCost:         bcrypt.MinCost,
		LoginMaxFailures:   3,
		LoginFailureWindow: time.Minute,
	}
}

type fixture struct {
	svc      appsvc.Service
	users    *userRepoStub
	attempts *attemptRepoStub
	util     *jwt.JwtUtilImpl
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	cfg := testConfig()

	util, err := jwt.NewJWTUtil(cfg)
	require.NoError(t, err)
	hasher, err := password.NewCredentialVerifier(cfg)
	require.NoError(t, err)

	ur := newUserRepoStub()
	ar := &attemptRepoStub{failures: make(map[string]int64)}

	return fixture{
		svc:      appsvc.New(ur, ar, util, hasher, cfg, dto.NewValidator()),
		users:    ur,
		attempts: ar,
		util:     util,
	}
}

func (f fixture) registerAndLogin(t *testing.T) model.TokenPair {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.svc.Register(ctx, dto.RegisterDTO{
		Username: "alice", Email: "alice@x.com", Password: "password123",
	}))
	pair, err := f.svc.Login(ctx, dto.LoginDTO{Username: "alice", Password: "password123"})
	require.NoError(t, err)
	return pair
}

/* ────────────────────────────── tests ────────────────────────────── */

func TestRegisterThenLogin_IssuesBothKinds(t *testing.T) {
	f := newFixture(t)
	pair := f.registerAndLogin(t)

	ac, err := f.util.DecodeAndVerify(pair.AccessToken)
	require.NoError(t, err)
	rc, err := f.util.DecodeAndVerify(pair.RefreshToken)
	require.NoError(t, err)

	require.Equal(t, domainjwt.KindAccess, ac.TokenType)
	require.Equal(t, domainjwt.KindRefresh, rc.TokenType)
	require.Equal(t, ac.UserID, rc.UserID)
	require.Equal(t, "alice", rc.Subject)

	stored, _ := f.users.GetUserByUsername(context.Background(), "alice")
	require.NotEqual(t, "password123", stored.PasswordHash)
	require.NotEmpty(t, stored.Salt)
}

func TestRegister_Collisions(t *testing.T) {
	f := newFixture(t)
	f.registerAndLogin(t)
	ctx := context.Background()

	err := f.svc.Register(ctx, dto.RegisterDTO{Username: "alice", Email: "other@x.com", Password: "password123"})
	require.True(t, authErrors.IsUserAlreadyExists(err))
	require.Equal(t, "Username already exists", err.Error())

	err = f.svc.Register(ctx, dto.RegisterDTO{Username: "bob", Email: "alice@x.com", Password: "password123"})
	require.True(t, authErrors.IsUserAlreadyExists(err))
	require.Equal(t, "Email already exists", err.Error())
}

func TestRegister_StoreReportsDuplicate(t *testing.T) {
	f := newFixture(t)
	f.users.createErr = authErrors.ErrUsernameTaken

	err := f.svc.Register(context.Background(), dto.RegisterDTO{Username: "carol", Email: "carol@x.com", Password: "password123"})
	require.ErrorIs(t, err, authErrors.ErrUsernameTaken)
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)

	err := f.svc.Register(context.Background(), dto.RegisterDTO{Username: "al", Email: "al@x.com", Password: "password123"})
	require.True(t, authErrors.IsInvalidArgument(err))
	require.Equal(t, "Username must be between 3 and 50 characters", err.Error())
}

func TestLogin_InvalidCredentialsIndistinguishable(t *testing.T) {
	f := newFixture(t)
	f.registerAndLogin(t)
	ctx := context.Background()

	_, wrongPwd := f.svc.Login(ctx, dto.LoginDTO{Username: "alice", Password: "password999"})
	_, noUser := f.svc.Login(ctx, dto.LoginDTO{Username: "mallory", Password: "password123"})

	require.True(t, authErrors.IsInvalidCredentials(wrongPwd))
	require.Equal(t, wrongPwd, noUser)
	require.Equal(t, "Invalid username or password", noUser.Error())
}

func TestLogin_Throttled(t *testing.T) {
	f := newFixture(t)
	f.registerAndLogin(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.Login(ctx, dto.LoginDTO{Username: "alice", Password: "password999"})
		require.True(t, authErrors.IsInvalidCredentials(err))
	}

	_, err := f.svc.Login(ctx, dto.LoginDTO{Username: "alice", Password: "password123"})
	require.True(t, authErrors.IsTooManyAttempts(err))

	f.attempts.Reset(ctx, "login:alice")
	_, err = f.svc.Login(ctx, dto.LoginDTO{Username: "alice", Password: "password123"})
	require.NoError(t, err)
}

func TestLogin_SuccessResetsFailures(t *testing.T) {
	f := newFixture(t)
	f.registerAndLogin(t)
	ctx := context.Background()

	_, _ = f.svc.Login(ctx, dto.LoginDTO{Username: "alice", Password: "password999"})
	_, err := f.svc.Login(ctx, dto.LoginDTO{Username: "alice", Password: "password123"})
	require.NoError(t, err)

	n, _ := f.attempts.Failures(ctx, "login:alice")
	require.Zero(t, n)
}

func TestValidateAccessToken(t *testing.T) {
	f := newFixture(t)
	pair := f.registerAndLogin(t)
	ctx := context.Background()
	alice, _ := f.users.GetUserByUsername(ctx, "alice")

	res, err := f.svc.ValidateAccessToken(ctx, authHeader+pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, model.ValidationResult{Valid: true, UserID: alice.ID}, res)

	// refresh token presented as access token
	res, err = f.svc.ValidateAccessToken(ctx, authHeader+pair.RefreshToken)
	require.NoError(t, err)
	require.False(t, res.Valid)
}

func TestValidateAccessToken_Failures(t *testing.T) {
	f := newFixture(t)
	pair := f.registerAndLogin(t)
	ctx := context.Background()

	for _, h := range []string{"", pair.AccessToken, "bearer " + pair.AccessToken, "Bearer" + pair.AccessToken} {
		_, err := f.svc.ValidateAccessToken(ctx, h)
		require.True(t, authErrors.IsTokenMissing(err), "header %q", h)
	}

	_, first := f.svc.ValidateAccessToken(ctx, authHeader+"garbage")
	_, second := f.svc.ValidateAccessToken(ctx, authHeader+"garbage")
	require.True(t, authErrors.IsAuthenticationFailed(first))
	require.Equal(t, first, second)

	expired, err := f.util.Issue("alice", 1, domainjwt.KindAccess, -time.Second)
	require.NoError(t, err)
	_, err = f.svc.ValidateAccessToken(ctx, authHeader+expired)
	require.True(t, authErrors.IsAuthenticationFailed(err))
	require.Equal(t, "Unauthorized error: Token expired.", err.Error())

	ghost, _ := f.util.GenerateAccessToken("ghost", 99)
	_, err = f.svc.ValidateAccessToken(ctx, authHeader+ghost)
	require.True(t, authErrors.IsUserNotFound(err))

	forged, _ := f.util.GenerateAccessToken("alice", 99)
	res, err := f.svc.ValidateAccessToken(ctx, authHeader+forged)
	require.NoError(t, err)
	require.False(t, res.Valid)
}

func TestRefreshAccessToken(t *testing.T) {
	f := newFixture(t)
	pair := f.registerAndLogin(t)
	ctx := context.Background()

	got, err := f.svc.RefreshAccessToken(ctx, authHeader+pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, pair.RefreshToken, got.RefreshToken)

	res, err := f.svc.ValidateAccessToken(ctx, authHeader+got.AccessToken)
	require.NoError(t, err)
	require.True(t, res.Valid)
}

func TestRefreshAccessToken_Failures(t *testing.T) {
	f := newFixture(t)
	pair := f.registerAndLogin(t)
	ctx := context.Background()

	_, err := f.svc.RefreshAccessToken(ctx, authHeader+pair.AccessToken)
	require.True(t, authErrors.IsInvalidRefreshToken(err))
	require.Equal(t, "Invalid token type: must be a refresh token", err.Error())

	_, err = f.svc.RefreshAccessToken(ctx, pair.RefreshToken)
	require.True(t, authErrors.IsTokenMissing(err))

	_, err = f.svc.RefreshAccessToken(ctx, authHeader+"a.b.c")
	require.True(t, authErrors.IsInvalidRefreshToken(err))

	expired, _ := f.util.Issue("alice", 1, domainjwt.KindRefresh, -time.Second)
	_, err = f.svc.RefreshAccessToken(ctx, authHeader+expired)
	require.True(t, authErrors.IsInvalidRefreshToken(err))
	require.Equal(t, "Invalid or expired refresh token", err.Error())

	f.users.delete("alice")
	_, err = f.svc.RefreshAccessToken(ctx, authHeader+pair.RefreshToken)
	require.True(t, authErrors.IsInvalidRefreshToken(err))
}

func TestRepoFailureIsInternal(t *testing.T) {
	cfg := testConfig()
	util, _ := jwt.NewJWTUtil(cfg)
	hasher, _ := password.NewCredentialVerifier(cfg)
	svc := appsvc.New(&errUserRepoStub{}, nil, util, hasher, cfg, dto.NewValidator())

	_, err := svc.Login(context.Background(), dto.LoginDTO{Username: "alice", Password: "password123"})
	require.True(t, authErrors.IsInternal(err))

	tok, _ := util.GenerateAccessToken("alice", 1)
	_, err = svc.ValidateAccessToken(context.Background(), authHeader+tok)
	require.True(t, authErrors.IsInternal(err))
}
