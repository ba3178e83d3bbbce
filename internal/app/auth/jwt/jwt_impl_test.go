package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"strings"
	"testing"
	"time"

	customErrors "github.com/Miraines/MoonyAndStarry/auth-gateway/internal/domain/auth/errors"
	domainjwt "github.com/Miraines/MoonyAndStarry/auth-gateway/internal/domain/auth/jwt"
	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/infra/config"
	"github.com/golang-jwt/jwt/v5"
)

func testConfig() *config.AuthConfig {
	return &config.AuthConfig{
		JWTSecret:       []byte(strings.Repeat("s", 32)),
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	}
}

func TestJWTUtil_RoundTrip(t *testing.T) {
	util, err := NewJWTUtil(testConfig())
	if err != nil {
		t.Fatal(err)
	}

	for _, id := range []int64{1, 42, 1 << 40} {
		tok, err := util.Issue("alice", id, domainjwt.KindAccess, time.Hour)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		claims, err := util.DecodeAndVerify(tok)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got := domainjwt.ExtractClaim(claims, domainjwt.UserID); got != id {
			t.Fatalf("want userId %d got %d", id, got)
		}
		if claims.Subject != "alice" || claims.TokenType != domainjwt.KindAccess {
			t.Fatalf("claims: %+v", claims)
		}
	}
}

func TestJWTUtil_PayloadClaimNames(t *testing.T) {
	util, _ := NewJWTUtil(testConfig())
	tok, err := util.GenerateRefreshToken("alice", 9)
	if err != nil {
		t.Fatal(err)
	}

	payload := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, payload); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if payload["sub"] != "alice" || payload["userId"] != float64(9) || payload["token_type"] != "refresh" {
		t.Fatalf("payload: %v", payload)
	}
	for _, name := range []string{"iat", "exp"} {
		if _, ok := payload[name]; !ok {
			t.Fatalf("missing %s in %v", name, payload)
		}
	}
}

func TestJWTUtil_GenerateKinds(t *testing.T) {
	util, _ := NewJWTUtil(testConfig())

	at, _ := util.GenerateAccessToken("bob", 3)
	rt, _ := util.GenerateRefreshToken("bob", 3)

	ac, err := util.DecodeAndVerify(at)
	if err != nil || ac.TokenType != domainjwt.KindAccess {
		t.Fatalf("access: %v %v", ac.TokenType, err)
	}
	rc, err := util.DecodeAndVerify(rt)
	if err != nil || rc.TokenType != domainjwt.KindRefresh {
		t.Fatalf("refresh: %v %v", rc.TokenType, err)
	}
	if !rc.ExpiresAt.After(ac.ExpiresAt.Time) {
		t.Fatal("refresh token must outlive access token")
	}
}

func TestJWTUtil_Deterministic(t *testing.T) {
	util, _ := NewJWTUtil(testConfig())
	fixed := time.Unix(1_700_000_000, 0)
	util.now = func() time.Time { return fixed }

	a, _ := util.Issue("alice", 1, domainjwt.KindAccess, time.Hour)
	b, _ := util.Issue("alice", 1, domainjwt.KindAccess, time.Hour)
	if a != b {
		t.Fatal("same inputs and timestamp must give the same token")
	}

	util.now = func() time.Time { return fixed.Add(time.Second) }
	c, _ := util.Issue("alice", 1, domainjwt.KindAccess, time.Hour)
	if a == c {
		t.Fatal("different timestamp must change the token")
	}
}

func TestJWTUtil_ExpiryBoundary(t *testing.T) {
	util, _ := NewJWTUtil(testConfig())

	expired, _ := util.Issue("alice", 1, domainjwt.KindAccess, -time.Second)
	if _, err := util.DecodeAndVerify(expired); !errors.Is(err, customErrors.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}

	fresh, _ := util.Issue("alice", 1, domainjwt.KindAccess, time.Hour)
	if _, err := util.DecodeAndVerify(fresh); err != nil {
		t.Fatalf("token valid for 1h rejected: %v", err)
	}
}

func TestJWTUtil_Malformed(t *testing.T) {
	util, _ := NewJWTUtil(testConfig())

	for _, raw := range []string{"bad", "not.a.jwt", "", "a.b"} {
		_, err1 := util.DecodeAndVerify(raw)
		_, err2 := util.DecodeAndVerify(raw)
		if !errors.Is(err1, customErrors.ErrTokenMalformed) {
			t.Fatalf("%q: expected malformed, got %v", raw, err1)
		}
		if err1 != err2 {
			t.Fatalf("%q: failure category changed between calls: %v vs %v", raw, err1, err2)
		}
	}
}

func TestJWTUtil_WrongKey(t *testing.T) {
	util, _ := NewJWTUtil(testConfig())

	otherCfg := testConfig()
	otherCfg.JWTSecret = []byte(strings.Repeat("x", 32))
	other, _ := NewJWTUtil(otherCfg)

	tok, _ := other.GenerateAccessToken("alice", 1)
	if _, err := util.DecodeAndVerify(tok); !errors.Is(err, customErrors.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestJWTUtil_UnsupportedAlg(t *testing.T) {
	util, _ := NewJWTUtil(testConfig())

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	rs, _ := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": "alice", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(key)
	if _, err := util.DecodeAndVerify(rs); !errors.Is(err, customErrors.ErrTokenUnsupported) {
		t.Fatalf("RS256: expected ErrTokenUnsupported, got %v", err)
	}

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "alice", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := util.DecodeAndVerify(none); !errors.Is(err, customErrors.ErrTokenUnsupported) {
		t.Fatalf("none: expected ErrTokenUnsupported, got %v", err)
	}
}

func TestJWTUtil_MissingExpiry(t *testing.T) {
	util, _ := NewJWTUtil(testConfig())

	tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "alice"}).SignedString(util.key)
	if _, err := util.DecodeAndVerify(tok); !errors.Is(err, customErrors.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestMethodForKey(t *testing.T) {
	cases := map[int]string{32: "HS256", 47: "HS256", 48: "HS384", 64: "HS512", 128: "HS512"}
	for n, alg := range cases {
		m, err := methodForKey(make([]byte, n))
		if err != nil || m.Alg() != alg {
			t.Fatalf("%d bytes: want %s got %v (%v)", n, alg, m, err)
		}
	}
	if _, err := methodForKey(make([]byte, 31)); err == nil {
		t.Fatal("short key must be rejected")
	}

	cfg := testConfig()
	cfg.JWTSecret = []byte("short")
	if _, err := NewJWTUtil(cfg); !customErrors.IsInternal(err) {
		t.Fatalf("expected internal error, got %v", err)
	}
}
