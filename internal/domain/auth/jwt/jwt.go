package jwt

import (
	"strings"
	"time"

	customErrors "github.com/Miraines/MoonyAndStarry/auth-gateway/internal/domain/auth/errors"
	"github.com/golang-jwt/jwt/v5"
)

type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// Claims is the token payload: sub, userId, token_type, iat and exp.
type Claims struct {
	UserID    int64     `json:"userId"`
	TokenType TokenKind `json:"token_type"`
	jwt.RegisteredClaims
}

// ExtractClaim projects a typed value out of decoded claims.
func ExtractClaim[T any](c Claims, resolve func(Claims) T) T {
	return resolve(c)
}

func Username(c Claims) string { return c.Subject }

func UserID(c Claims) int64 { return c.UserID }

func Kind(c Claims) TokenKind { return c.TokenType }

type JWTUtil interface {
	Issue(subject string, userID int64, kind TokenKind, ttl time.Duration) (string, error)
	GenerateAccessToken(subject string, userID int64) (string, error)
	GenerateRefreshToken(subject string, userID int64) (string, error)
	// DecodeAndVerify fails with ErrTokenMalformed, ErrTokenUnsupported,
	// ErrTokenExpired or ErrTokenInvalid.
	DecodeAndVerify(token string) (Claims, error)
}

const BearerPrefix = "Bearer "

// ExtractBearer returns the token that follows the exact, case-sensitive
// "Bearer " prefix.
func ExtractBearer(header string) (string, error) {
	if !strings.HasPrefix(header, BearerPrefix) {
		return "", customErrors.ErrTokenMissing
	}
	return header[len(BearerPrefix):], nil
}
