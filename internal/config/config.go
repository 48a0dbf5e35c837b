package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	Auth     AuthConfig
	Email    EmailConfig
	External ExternalConfig
	Features FeatureConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	AbilitiesTTL       time.Duration
	EmailCodeTTL       time.Duration
	WebAuthnSessionTTL time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
}

type AuthConfig struct {
	JWTSecret           string
	TOTPIssuer          string
	AccessTokenExpiry   time.Duration
	RefreshTokenExpiry  time.Duration
	RememberTokenExpiry time.Duration
	SessionTokenExpiry  time.Duration

	// Failed-login lockout notification ceiling; 0 disables the email
	FailedLoginCeiling int

	// Anti-brute-force delay on error outcomes
	AuthDelayBase   time.Duration
	AuthDelayJitter time.Duration

	// Suppress new-device notifications during initial account setup
	NewDeviceAccountAge time.Duration

	EventRetention  time.Duration
	CleanupInterval time.Duration
}

type EmailConfig struct {
	AWSRegion            string
	FromAddress          string
	DisableNewDeviceMail bool
}

// ExternalConfig holds credentials for the external second-factor
// verification services. Per-provider Duo keys live on the user's provider
// metadata; the application key here is service-wide.
type ExternalConfig struct {
	DuoApplicationKey string
	DuoRedirectURI    string
	YubicoClientID    string
	YubicoSecretKey   string

	// WebAuthn relying-party identity; the RP ID must match the domain the
	// web vault is served from or assertions will not verify.
	WebAuthnRPID          string
	WebAuthnRPDisplayName string
}

type FeatureConfig struct {
	BlockLegacyUsers bool
	DuoRedirect      bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "vaultgate"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Redis: RedisConfig{
			Addr:         getEnv("REDIS_ADDR", "localhost:6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			AbilitiesTTL:       getEnvAsDuration("ORG_ABILITIES_TTL", 10*time.Minute),
			EmailCodeTTL:       getEnvAsDuration("EMAIL_CODE_TTL", 5*time.Minute),
			WebAuthnSessionTTL: getEnvAsDuration("WEBAUTHN_SESSION_TTL", 5*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
		},
		Auth: AuthConfig{
			JWTSecret:           jwtSecret,
			TOTPIssuer:          getEnv("TOTP_ISSUER", "Vaultgate"),
			AccessTokenExpiry:   getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 1*time.Hour),
			RefreshTokenExpiry:  getEnvAsDuration("REFRESH_TOKEN_EXPIRY", 30*24*time.Hour),
			RememberTokenExpiry: getEnvAsDuration("REMEMBER_TOKEN_EXPIRY", 30*24*time.Hour),
			SessionTokenExpiry:  getEnvAsDuration("SESSION_TOKEN_EXPIRY", 10*time.Minute),
			FailedLoginCeiling:  getEnvAsInt("FAILED_LOGIN_CEILING", 5),
			AuthDelayBase:       getEnvAsDuration("AUTH_DELAY_BASE", 2*time.Second),
			AuthDelayJitter:     getEnvAsDuration("AUTH_DELAY_JITTER", 0),
			NewDeviceAccountAge: getEnvAsDuration("NEW_DEVICE_ACCOUNT_AGE", 10*time.Minute),
			EventRetention:      getEnvAsDuration("EVENT_RETENTION", 90*24*time.Hour),
			CleanupInterval:     getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
		},
		Email: EmailConfig{
			AWSRegion:            getEnv("AWS_REGION", "us-east-1"),
			FromAddress:          getEnv("EMAIL_FROM_ADDRESS", "no-reply@vaultgate.local"),
			DisableNewDeviceMail: getEnvAsBool("DISABLE_NEW_DEVICE_EMAIL", false),
		},
		External: ExternalConfig{
			DuoApplicationKey: getEnv("DUO_APPLICATION_KEY", ""),
			DuoRedirectURI:    getEnv("DUO_REDIRECT_URI", ""),
			YubicoClientID:    getEnv("YUBICO_CLIENT_ID", ""),
			YubicoSecretKey:   getEnv("YUBICO_SECRET_KEY", ""),

			WebAuthnRPID:          getEnv("WEBAUTHN_RP_ID", ""),
			WebAuthnRPDisplayName: getEnv("WEBAUTHN_RP_DISPLAY_NAME", "Vaultgate"),
		},
		Features: FeatureConfig{
			BlockLegacyUsers: getEnvAsBool("FEATURE_BLOCK_LEGACY_USERS", false),
			DuoRedirect:      getEnvAsBool("FEATURE_DUO_REDIRECT", false),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for the token secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{}
		}
		origins := strings.Split(originsStr, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		return origins
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
	}
}
