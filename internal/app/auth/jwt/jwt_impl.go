package jwt

import (
	"errors"
	"fmt"
	"time"

	customErrors "github.com/Miraines/MoonyAndStarry/auth-gateway/internal/domain/auth/errors"
	domainjwt "github.com/Miraines/MoonyAndStarry/auth-gateway/internal/domain/auth/jwt"
	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/infra/config"
	"github.com/golang-jwt/jwt/v5"
)

var errUnsupportedAlg = errors.New("unsupported signing method")

type JwtUtilImpl struct {
	key        []byte
	method     *jwt.SigningMethodHMAC
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewJWTUtil(cfg *config.AuthConfig) (*JwtUtilImpl, error) {
	method, err := methodForKey(cfg.JWTSecret)
	if err != nil {
		return nil, customErrors.WrapInternal(err, "signing key")
	}

	return &JwtUtilImpl{
		key:        cfg.JWTSecret,
		method:     method,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		now:        time.Now,
	}, nil
}

// methodForKey picks the strongest HMAC variant the key length allows.
func methodForKey(key []byte) (*jwt.SigningMethodHMAC, error) {
	switch n := len(key); {
	case n >= 64:
		return jwt.SigningMethodHS512, nil
	case n >= 48:
		return jwt.SigningMethodHS384, nil
	case n >= 32:
		return jwt.SigningMethodHS256, nil
	default:
		return nil, fmt.Errorf("key of %d bytes is too short for HMAC-SHA signing", n)
	}
}

func (j *JwtUtilImpl) Issue(subject string, userID int64, kind domainjwt.TokenKind, ttl time.Duration) (string, error) {
	now := j.now()

	claims := domainjwt.Claims{
		UserID:    userID,
		TokenType: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(j.method, claims).SignedString(j.key)
	if err != nil {
		return "", customErrors.WrapInternal(err, "sign "+string(kind)+" token")
	}
	return signed, nil
}

func (j *JwtUtilImpl) GenerateAccessToken(subject string, userID int64) (string, error) {
	return j.Issue(subject, userID, domainjwt.KindAccess, j.accessTTL)
}

func (j *JwtUtilImpl) GenerateRefreshToken(subject string, userID int64) (string, error) {
	return j.Issue(subject, userID, domainjwt.KindRefresh, j.refreshTTL)
}

func (j *JwtUtilImpl) DecodeAndVerify(raw string) (domainjwt.Claims, error) {
	var claims domainjwt.Claims

	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errUnsupportedAlg
		}
		return j.key, nil
	}, jwt.WithTimeFunc(j.now), jwt.WithExpirationRequired())

	if err != nil {
		return domainjwt.Claims{}, classify(err)
	}
	if !token.Valid {
		return domainjwt.Claims{}, customErrors.ErrTokenInvalid
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return customErrors.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return customErrors.ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return customErrors.ErrTokenUnsupported
	default:
		return customErrors.ErrTokenInvalid
	}
}
