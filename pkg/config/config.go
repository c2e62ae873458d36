package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
)

// Config is the root application configuration, loaded from environment
// variables. A .env file in the working directory is honored when present.
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Firebase FirebaseConfig
	Email    EmailConfig
}

// AppConfig configures the HTTP surface.
type AppConfig struct {
	Port        int
	BaseDomain  string
	CORSOrigins []string
	Env         string
}

// DatabaseConfig configures the Postgres connection.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// DSN builds a lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// RedisConfig configures the Redis connection used by the revocation store.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Enabled  bool
}

// Address returns host:port for the redis client.
func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig configures gateway-issued tokens.
type JWTConfig struct {
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Issuer          string
}

// FirebaseConfig configures the external identity verifier.
type FirebaseConfig struct {
	ProjectID string
	// CertsURL overrides the Google securetoken certificate endpoint,
	// mainly for tests.
	CertsURL string
	Timeout  time.Duration
}

// EmailConfig configures the notification provider.
type EmailConfig struct {
	Provider    string // "console" or "ses"
	FromAddress string
	AWSRegion   string
}

// Load reads configuration from the environment. Missing keys fall back to
// development defaults; a missing .env file is not an error.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		App: AppConfig{
			Port:        getEnvInt("APP_PORT", 8000),
			BaseDomain:  getEnv("APP_BASE_DOMAIN", "cabina.app"),
			CORSOrigins: getEnvStringSlice("CORS_ORIGINS", []string{"http://localhost:3000"}),
			Env:         getEnv("APP_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Name:            getEnv("DB_NAME", "cabina"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			AutoMigrate:     getEnvBool("DB_AUTO_MIGRATE", false),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Enabled:  getEnvBool("REDIS_ENABLED", true),
		},
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", ""),
			AccessTokenTTL:  getEnvDuration("JWT_ACCESS_TTL", 15*time.Minute),
			RefreshTokenTTL: getEnvDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
			Issuer:          getEnv("JWT_ISSUER", "cabina"),
		},
		Firebase: FirebaseConfig{
			ProjectID: getEnv("FIREBASE_PROJECT_ID", ""),
			CertsURL:  getEnv("FIREBASE_CERTS_URL", ""),
			Timeout:   getEnvDuration("FIREBASE_TIMEOUT", 10*time.Second),
		},
		Email: EmailConfig{
			Provider:    getEnv("EMAIL_PROVIDER", "console"),
			FromAddress: getEnv("EMAIL_FROM", "no-reply@cabina.app"),
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
		},
	}
}
