package config

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const minSecretBytes = 32

// AuthConfig is loaded once at startup and never mutated.
type AuthConfig struct {
	HTTPAddress string
	GRPCAddress string

	DatabaseURL string

	// JWTSecret is the decoded HMAC signing key.
	JWTSecret       []byte
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	PasswordHasher string
	BcryptCost     int

	RedisAddress       string
	RedisPassword      string
	RedisDB            int
	LoginMaxFailures   int
	LoginFailureWindow time.Duration

	TLSCertFile string
	TLSKeyFile  string

	AllowedOrigins []string
	RateLimitRPS   int
	RateLimitBurst int
	// TrustedProxies are the peers (usually the gateway) whose
	// X-Forwarded-For is believed when keying the per-IP limiter.
	TrustedProxies []string

	LogLevel string
}

type Route struct {
	Prefix      string `mapstructure:"prefix" json:"prefix"`
	Upstream    string `mapstructure:"upstream" json:"upstream"`
	StripPrefix bool   `mapstructure:"strip_prefix" json:"strip_prefix"`
	Auth        bool   `mapstructure:"auth" json:"auth"`
}

type GatewayConfig struct {
	HTTPAddress string

	AuthBaseURL      string
	AuthValidatePath string
	AuthTimeout      time.Duration

	Routes []Route

	AllowedOrigins []string
	RateLimitRPS   int
	RateLimitBurst int
	TrustedProxies []string

	LogLevel string
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()
	return v
}

func readFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config file: %w", err)
		}
	}
	return nil
}

func LoadAuth() (*AuthConfig, error) {
	v := newViper()
	v.SetDefault("HTTP_ADDRESS", ":8081")
	v.SetDefault("ACCESS_TOKEN_TTL", "15m")
	v.SetDefault("REFRESH_TOKEN_TTL", "168h")
	v.SetDefault("PASSWORD_HASHER", "bcrypt")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("LOGIN_MAX_FAILURES", 5)
	v.SetDefault("LOGIN_FAILURE_WINDOW", "15m")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("TRUSTED_PROXIES", "127.0.0.1,::1")
	v.SetDefault("LOG_LEVEL", "debug")

	if err := readFile(v); err != nil {
		return nil, err
	}

	cfg := &AuthConfig{
		HTTPAddress:        v.GetString("HTTP_ADDRESS"),
		GRPCAddress:        v.GetString("GRPC_ADDRESS"),
		DatabaseURL:        v.GetString("DATABASE_URL"),
		AccessTokenTTL:     v.GetDuration("ACCESS_TOKEN_TTL"),
		RefreshTokenTTL:    v.GetDuration("REFRESH_TOKEN_TTL"),
		PasswordHasher:     strings.ToLower(v.GetString("PASSWORD_HASHER")),
		BcryptCost:         v.GetInt("BCRYPT_COST"),
		RedisAddress:       v.GetString("REDIS_ADDRESS"),
		RedisPassword:      v.GetString("REDIS_PASSWORD"),
		RedisDB:            v.GetInt("REDIS_DB"),
		LoginMaxFailures:   v.GetInt("LOGIN_MAX_FAILURES"),
		LoginFailureWindow: v.GetDuration("LOGIN_FAILURE_WINDOW"),
		TLSCertFile:        v.GetString("TLS_CERT_FILE"),
		TLSKeyFile:         v.GetString("TLS_KEY_FILE"),
		AllowedOrigins:     splitList(v.GetString("ALLOWED_ORIGINS")),
		RateLimitRPS:       v.GetInt("RATE_LIMIT_RPS"),
		RateLimitBurst:     v.GetInt("RATE_LIMIT_BURST"),
		TrustedProxies:     splitList(v.GetString("TRUSTED_PROXIES")),
		LogLevel:           v.GetString("LOG_LEVEL"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}

	secret, err := DecodeSecret(v.GetString("JWT_SECRET"))
	if err != nil {
		return nil, err
	}
	cfg.JWTSecret = secret

	if cfg.AccessTokenTTL <= 0 || cfg.RefreshTokenTTL <= 0 {
		return nil, errors.New("token TTLs must be positive")
	}
	if cfg.PasswordHasher != "bcrypt" && cfg.PasswordHasher != "argon2id" {
		return nil, fmt.Errorf("unknown PASSWORD_HASHER %q", cfg.PasswordHasher)
	}
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return nil, errors.New("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}
	if err := checkProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DecodeSecret decodes the base64 signing secret shared by the services.
func DecodeSecret(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, errors.New("JWT_SECRET is not set")
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("JWT_SECRET is not valid base64: %w", err)
	}
	if len(key) < minSecretBytes {
		return nil, fmt.Errorf("JWT_SECRET must decode to at least %d bytes, got %d", minSecretBytes, len(key))
	}
	return key, nil
}

func LoadGateway() (*GatewayConfig, error) {
	v := newViper()
	v.SetDefault("HTTP_ADDRESS", ":8080")
	v.SetDefault("AUTH_VALIDATE_PATH", "/auth/validate")
	v.SetDefault("AUTH_TIMEOUT", "3s")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("LOG_LEVEL", "debug")

	if err := readFile(v); err != nil {
		return nil, err
	}

	cfg := &GatewayConfig{
		HTTPAddress:      v.GetString("HTTP_ADDRESS"),
		AuthBaseURL:      strings.TrimRight(v.GetString("AUTH_BASE_URL"), "/"),
		AuthValidatePath: v.GetString("AUTH_VALIDATE_PATH"),
		AuthTimeout:      v.GetDuration("AUTH_TIMEOUT"),
		AllowedOrigins:   splitList(v.GetString("ALLOWED_ORIGINS")),
		RateLimitRPS:     v.GetInt("RATE_LIMIT_RPS"),
		RateLimitBurst:   v.GetInt("RATE_LIMIT_BURST"),
		TrustedProxies:   splitList(v.GetString("TRUSTED_PROXIES")),
		LogLevel:         v.GetString("LOG_LEVEL"),
	}

	if cfg.AuthBaseURL == "" {
		return nil, errors.New("AUTH_BASE_URL is not set")
	}
	if cfg.AuthTimeout <= 0 {
		return nil, errors.New("AUTH_TIMEOUT must be positive")
	}
	if err := checkProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}

	if raw := v.GetString("GATEWAY_ROUTES"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.Routes); err != nil {
			return nil, fmt.Errorf("GATEWAY_ROUTES: %w", err)
		}
	} else if err := v.UnmarshalKey("routes", &cfg.Routes); err != nil {
		return nil, fmt.Errorf("routes: %w", err)
	}

	for i, r := range cfg.Routes {
		if !strings.HasPrefix(r.Prefix, "/") || r.Upstream == "" {
			return nil, fmt.Errorf("route %d: prefix must start with / and upstream must be set", i)
		}
	}

	return cfg, nil
}

// checkProxies accepts the same forms gin's SetTrustedProxies does.
func checkProxies(proxies []string) error {
	for _, p := range proxies {
		if strings.Contains(p, "/") {
			if _, _, err := net.ParseCIDR(p); err != nil {
				return fmt.Errorf("TRUSTED_PROXIES: %w", err)
			}
			continue
		}
		if net.ParseIP(p) == nil {
			return fmt.Errorf("TRUSTED_PROXIES: %q is not an IP or CIDR", p)
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
