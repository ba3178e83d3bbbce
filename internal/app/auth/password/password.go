// Package password hashes and verifies user passwords.
//
// New hashes are produced by the configured algorithm; verification picks the
// algorithm from the stored hash so users keep working after a switch.
package password

import (
	"errors"
	"fmt"
	"strings"

	customErrors "github.com/Miraines/MoonyAndStarry/auth-gateway/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/infra/config"
	"github.com/alexedwards/argon2id"
	"golang.org/x/crypto/bcrypt"
)

const (
	AlgBcrypt   = "bcrypt"
	AlgArgon2id = "argon2id"

	argonPrefix = "$argon2id$"
	// "$2a$" + two digit cost + "$" + 22 char salt
	bcryptSaltLen = 29
)

type Hasher interface {
	// Hash returns the encoded hash and the salt embedded in it.
	Hash(password string) (hash, salt string, err error)
	Verify(password, hash string) (bool, error)
}

type BcryptHasher struct {
	cost int
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = 12
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, string, error) {
	raw, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", "", customErrors.NewInvalidArgument("Password must not exceed 72 bytes")
	}
	if err != nil {
		return "", "", customErrors.WrapInternal(err, "bcrypt")
	}
	hash := string(raw)
	return hash, hash[:bcryptSaltLen], nil
}

func (h *BcryptHasher) Verify(password, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword), errors.Is(err, bcrypt.ErrPasswordTooLong):
		return false, nil
	default:
		return false, customErrors.WrapInternal(err, "bcrypt")
	}
}

type Argon2Hasher struct {
	params *argon2id.Params
}

func NewArgon2Hasher(params *argon2id.Params) *Argon2Hasher {
	if params == nil {
		params = &argon2id.Params{
			Memory:      64 * 1024, // 64 MiB
			Iterations:  2,
			Parallelism: 4,
			SaltLength:  16,
			KeyLength:   32,
		}
	}
	return &Argon2Hasher{params: params}
}

func (h *Argon2Hasher) Hash(password string) (string, string, error) {
	hash, err := argon2id.CreateHash(password, h.params)
	if err != nil {
		return "", "", customErrors.WrapInternal(err, "argon2id")
	}
	// $argon2id$v=19$m=..,t=..,p=..$SALT$KEY
	parts := strings.Split(hash, "$")
	if len(parts) != 6 {
		return "", "", customErrors.WrapInternal(fmt.Errorf("unexpected hash layout"), "argon2id")
	}
	return hash, parts[4], nil
}

func (h *Argon2Hasher) Verify(password, hash string) (bool, error) {
	ok, err := argon2id.ComparePasswordAndHash(password, hash)
	if err != nil {
		return false, customErrors.WrapInternal(err, "argon2id")
	}
	return ok, nil
}

// CredentialVerifier hashes with the configured algorithm and verifies
// against whichever algorithm produced the stored hash.
type CredentialVerifier struct {
	primary Hasher
	bcrypt  *BcryptHasher
	argon   *Argon2Hasher
	dummy   string
}

func NewCredentialVerifier(cfg *config.AuthConfig) (*CredentialVerifier, error) {
	v := &CredentialVerifier{
		bcrypt: NewBcryptHasher(cfg.BcryptCost),
		argon:  NewArgon2Hasher(nil),
	}

	switch cfg.PasswordHasher {
	case "", AlgBcrypt:
		v.primary = v.bcrypt
	case AlgArgon2id:
		v.primary = v.argon
	default:
		return nil, fmt.Errorf("unknown password hasher %q", cfg.PasswordHasher)
	}

	dummy, _, err := v.primary.Hash("dummy-password-for-timing")
	if err != nil {
		return nil, err
	}
	v.dummy = dummy
	return v, nil
}

func (v *CredentialVerifier) Hash(password string) (string, string, error) {
	return v.primary.Hash(password)
}

func (v *CredentialVerifier) Verify(password, hash string) (bool, error) {
	if strings.HasPrefix(hash, argonPrefix) {
		return v.argon.Verify(password, hash)
	}
	return v.bcrypt.Verify(password, hash)
}

// VerifyDummy spends the same work as a real verification. Used when the
// user does not exist.
func (v *CredentialVerifier) VerifyDummy(password string) {
	_, _ = v.Verify(password, v.dummy)
}
