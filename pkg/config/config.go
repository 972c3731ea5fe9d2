package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	CredentialsCookie = "cookie"
	CredentialsBearer = "bearer"
)

type Config struct {
	AppEnv   string
	LogLevel string

	// CachePath is where the weak identity snapshot (and bearer token) is kept between runs.
	CachePath string

	// Reconcile enables the GET /auth/me check of a cached user at startup.
	Reconcile bool

	API APIConfig

	Gateway GatewayConfig

	Dev DevConfig
}

type APIConfig struct {
	BaseURL string

	// Credentials selects the credential carrier: "cookie" (server-set cookie kept by the
	// transport) or "bearer" (token cached locally and sent as Authorization header).
	Credentials string

	Timeout time.Duration
}

type GatewayConfig struct {
	KeyID string

	// KeySecret is only read by the test gateway and the mock backend.
	// Never ship it to a real client.
	KeySecret string

	Currency     string
	MerchantName string
}

// DevConfig configures the mock backend under cmd/dev.
type DevConfig struct {
	HTTPAddr        string
	JWTSecret       string
	AllowedOrigins  []string
	PaymentsEnabled bool

	// Seeded admin account of the mock backend.
	AdminEmail    string
	AdminPassword string
}

func Load() Config {
	// Convenience for local dev: load variables from .env if present.
	// In production, rely on real environment variables.
	_ = godotenv.Load()

	// Cloud Run sets PORT. Prefer it when HTTP_ADDR isn't explicitly set.
	httpAddr := os.Getenv("HTTP_ADDR")
	if httpAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			httpAddr = ":" + port
		} else {
			httpAddr = ":8081"
		}
	}

	appEnv := env("APP_ENV", "dev")
	defaultLevel := "debug"
	if appEnv == "prod" {
		defaultLevel = "info"
	}

	return Config{
		AppEnv:    appEnv,
		LogLevel:  env("LOG_LEVEL", defaultLevel),
		CachePath: env("TOURADMIN_CACHE_PATH", defaultCachePath()),
		Reconcile: envBool("TOURADMIN_RECONCILE", true),
		API: APIConfig{
			BaseURL:     env("TOURADMIN_API_URL", "http://localhost:8081/api"),
			Credentials: strings.ToLower(env("TOURADMIN_CREDENTIALS", CredentialsCookie)),
			Timeout:     envDuration("TOURADMIN_REQUEST_TIMEOUT", 15*time.Second),
		},
		Gateway: GatewayConfig{
			KeyID:        os.Getenv("RAZORPAY_KEY_ID"),
			KeySecret:    os.Getenv("RAZORPAY_KEY_SECRET"),
			Currency:     env("RAZORPAY_CURRENCY", "INR"),
			MerchantName: env("RAZORPAY_MERCHANT_NAME", "Gujarat Tourism"),
		},
		Dev: DevConfig{
			HTTPAddr:        httpAddr,
			JWTSecret:       env("DEV_JWT_SECRET", "dev-secret"),
			AllowedOrigins:  envList("DEV_ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:4173"),
			PaymentsEnabled: envBool("DEV_PAYMENTS_ENABLED", true),
			AdminEmail:      env("DEV_ADMIN_EMAIL", "admin@touradmin.local"),
			AdminPassword:   env("DEV_ADMIN_PASSWORD", "admin123"),
		},
	}
}

// IsDevelopment gates developer conveniences such as the simulated payment bypass.
func (c Config) IsDevelopment() bool {
	return c.AppEnv != "prod"
}

func (c Config) Validate() error {
	switch c.API.Credentials {
	case CredentialsCookie, CredentialsBearer:
	default:
		return fmt.Errorf("unknown credential variant %q (want %q or %q)", c.API.Credentials, CredentialsCookie, CredentialsBearer)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("request timeout must be > 0")
	}
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return fmt.Errorf("missing api base url")
	}
	return nil
}

func defaultCachePath() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "touradmin", "session.json")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), "touradmin", "session.json")
	}
	return filepath.Join(home, ".touradmin", "session.json")
}

func env(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envBool(key string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envList(key, fallbackCSV string) []string {
	v := os.Getenv(key)
	if v == "" {
		v = fallbackCSV
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
