package errors

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrInternal             = errors.New("internal error")
	ErrUserNotFound         = errors.New("User not found")
	ErrInvalidCredentials   = errors.New("Invalid username or password")
	ErrUserAlreadyExists    = errors.New("User already exists")
	ErrTokenMissing         = errors.New("Token is missing")
	ErrAuthenticationFailed = errors.New("Unauthorized error: Invalid token.")
	ErrInvalidRefreshToken  = errors.New("Invalid or expired refresh token")
	ErrTooManyAttempts      = errors.New("Too many failed login attempts, try again later")
)

// Low-level token verification failures. They never cross the service
// boundary: the service collapses all of them into ErrAuthenticationFailed
// or ErrInvalidRefreshToken.
var (
	ErrTokenMalformed   = errors.New("malformed token")
	ErrTokenUnsupported = errors.New("token unsupported")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenInvalid     = errors.New("invalid token")
)

// Error is a taxonomy error with a fixed client-facing message.
// errors.Is matches it against its kind.
type Error struct {
	kind error
	msg  string
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.kind }

func New(kind error, msg string) error {
	return &Error{kind: kind, msg: msg}
}

var (
	ErrUsernameTaken    = New(ErrUserAlreadyExists, "Username already exists")
	ErrEmailTaken       = New(ErrUserAlreadyExists, "Email already exists")
	ErrNotRefreshToken  = New(ErrInvalidRefreshToken, "Invalid token type: must be a refresh token")
	ErrExpiredToken     = New(ErrAuthenticationFailed, "Unauthorized error: Token expired.")
	ErrUnsupportedToken = New(ErrAuthenticationFailed, "Unauthorized error: Token unsupported.")
	ErrMalformedToken   = New(ErrAuthenticationFailed, "Unauthorized error: Malformed token.")
)

// AuthenticationFailed turns a codec failure into the single external
// ErrAuthenticationFailed kind, keeping only a fixed reason.
func AuthenticationFailed(err error) error {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return ErrExpiredToken
	case errors.Is(err, ErrTokenUnsupported):
		return ErrUnsupportedToken
	case errors.Is(err, ErrTokenMalformed):
		return ErrMalformedToken
	default:
		return ErrAuthenticationFailed
	}
}

func NewInvalidArgument(msg string) error {
	return New(ErrInvalidArgument, msg)
}

func WrapInternal(err error, context string) error {
	return fmt.Errorf("%w: %s: %v", ErrInternal, context, err)
}

func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

func IsInternal(err error) bool {
	return errors.Is(err, ErrInternal)
}

func IsUserNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

func IsInvalidCredentials(err error) bool {
	return errors.Is(err, ErrInvalidCredentials)
}

func IsUserAlreadyExists(err error) bool {
	return errors.Is(err, ErrUserAlreadyExists)
}

func IsTokenMissing(err error) bool {
	return errors.Is(err, ErrTokenMissing)
}

func IsAuthenticationFailed(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed)
}

func IsInvalidRefreshToken(err error) bool {
	return errors.Is(err, ErrInvalidRefreshToken)
}

func IsTooManyAttempts(err error) bool {
	return errors.Is(err, ErrTooManyAttempts)
}
