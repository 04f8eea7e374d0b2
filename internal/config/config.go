package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	MinIO      MinIOConfig      `mapstructure:"minio"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Candidates CandidatesConfig `mapstructure:"candidates"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	InternalSecret string   `mapstructure:"internal_secret"`
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig contains the Redis endpoint shared by rate limits, sessions and asynq.
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint            string `mapstructure:"endpoint"`
	PublicEndpoint      string `mapstructure:"public_endpoint"`
	AccessKeyID         string `mapstructure:"access_key_id"`
	SecretAccessKey     string `mapstructure:"secret_access_key"`
	UseSSL              bool   `mapstructure:"use_ssl"`
	Bucket              string `mapstructure:"bucket"`
	Region              string `mapstructure:"region"`
	BucketLookup        string `mapstructure:"bucket_lookup"`
	AutoCreateBucket    bool   `mapstructure:"auto_create_bucket"`
	ExportRetentionDays int    `mapstructure:"export_retention_days"` // 0 表示不设置生命周期规则
}

// AuthConfig holds admin session settings.
type AuthConfig struct {
	PrivateKeyPath        string        `mapstructure:"private_key_path"`
	PublicKeyPath         string        `mapstructure:"public_key_path"`
	AccessTokenTTL        time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL       time.Duration `mapstructure:"refresh_token_ttl"`
	LoginRateLimitPerHour int           `mapstructure:"login_rate_limit_per_hour"`
	LoginLockThreshold    int           `mapstructure:"login_lock_threshold"`
	LoginLockTTL          time.Duration `mapstructure:"login_lock_ttl"`
	CookieDomain          string        `mapstructure:"cookie_domain"`
}

// CandidatesConfig tunes listing, caching and public submission limits.
type CandidatesConfig struct {
	DefaultPageLimit   int           `mapstructure:"default_page_limit"`
	MaxPageLimit       int           `mapstructure:"max_page_limit"`
	PageCacheTTL       time.Duration `mapstructure:"page_cache_ttl"`
	SubmitLimitPerHour int           `mapstructure:"submit_limit_per_hour"`
	ExportPageSize     int           `mapstructure:"export_page_size"`
	ExportLinkTTL      time.Duration `mapstructure:"export_link_ttl"`
	WorkerConcurrency  int           `mapstructure:"worker_concurrency"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Addr returns host:port for go-redis and asynq.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Load reads configuration solely from environment variables (with optional defaults).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.API.AllowedOrigins = splitOrigins(cfg.API.AllowedOrigins)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.allowed_origins", []string{})
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "valentine")
	v.SetDefault("database.user", "valentine")
	v.SetDefault("database.password", "valentine")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.public_endpoint", "http://localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "candidate-exports")
	v.SetDefault("minio.bucket_lookup", "auto")
	v.SetDefault("minio.auto_create_bucket", true)
	v.SetDefault("minio.export_retention_days", 7)
	v.SetDefault("auth.private_key_path", "keys/jwt_private.pem")
	v.SetDefault("auth.public_key_path", "keys/jwt_public.pem")
	v.SetDefault("auth.access_token_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_token_ttl", 7*24*time.Hour)
	v.SetDefault("auth.login_rate_limit_per_hour", 10)
	v.SetDefault("auth.login_lock_threshold", 5)
	v.SetDefault("auth.login_lock_ttl", 15*time.Minute)
	v.SetDefault("candidates.default_page_limit", 100)
	v.SetDefault("candidates.max_page_limit", 500)
	v.SetDefault("candidates.page_cache_ttl", 30*time.Second)
	v.SetDefault("candidates.submit_limit_per_hour", 20)
	v.SetDefault("candidates.export_page_size", 200)
	v.SetDefault("candidates.export_link_ttl", 15*time.Minute)
	v.SetDefault("candidates.worker_concurrency", 4)
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                         "API_PORT",
		"api.allowed_origins":              "API_ALLOWED_ORIGINS",
		"api.internal_secret":              "INTERNAL_API_SECRET",
		"database.host":                    "DATABASE_HOST",
		"database.port":                    "DATABASE_PORT",
		"database.name":                    "POSTGRES_DB",
		"database.user":                    "POSTGRES_USER",
		"database.password":                "POSTGRES_PASSWORD",
		"database.sslmode":                 "DATABASE_SSLMODE",
		"redis.host":                       "REDIS_HOST",
		"redis.port":                       "REDIS_PORT",
		"minio.endpoint":                   "MINIO_ENDPOINT",
		"minio.public_endpoint":            "MINIO_PUBLIC_ENDPOINT",
		"minio.access_key_id":              "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":          "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":                    "MINIO_USE_SSL",
		"minio.bucket":                     "MINIO_BUCKET",
		"minio.region":                     "MINIO_REGION",
		"minio.bucket_lookup":              "MINIO_BUCKET_LOOKUP",
		"minio.auto_create_bucket":         "MINIO_AUTO_CREATE_BUCKET",
		"minio.export_retention_days":      "MINIO_EXPORT_RETENTION_DAYS",
		"auth.private_key_path":            "JWT_PRIVATE_KEY_PATH",
		"auth.public_key_path":             "JWT_PUBLIC_KEY_PATH",
		"auth.access_token_ttl":            "JWT_ACCESS_TOKEN_TTL",
		"auth.refresh_token_ttl":           "JWT_REFRESH_TOKEN_TTL",
		"auth.login_rate_limit_per_hour":   "LOGIN_RATE_LIMIT_PER_HOUR",
		"auth.login_lock_threshold":        "LOGIN_LOCK_THRESHOLD",
		"auth.login_lock_ttl":              "LOGIN_LOCK_TTL",
		"auth.cookie_domain":               "AUTH_COOKIE_DOMAIN",
		"candidates.default_page_limit":    "CANDIDATES_DEFAULT_PAGE_LIMIT",
		"candidates.max_page_limit":        "CANDIDATES_MAX_PAGE_LIMIT",
		"candidates.page_cache_ttl":        "CANDIDATES_PAGE_CACHE_TTL",
		"candidates.submit_limit_per_hour": "CANDIDATES_SUBMIT_LIMIT_PER_HOUR",
		"candidates.export_page_size":      "CANDIDATES_EXPORT_PAGE_SIZE",
		"candidates.export_link_ttl":       "CANDIDATES_EXPORT_LINK_TTL",
		"candidates.worker_concurrency":    "WORKER_CONCURRENCY",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

// splitOrigins accepts either a list or a single comma separated env value.
func splitOrigins(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}
	if cfg.Database.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if cfg.Database.Name == "" {
		return errors.New("database name is required")
	}
	if cfg.Database.User == "" {
		return errors.New("database user is required")
	}
	if cfg.Database.Password == "" {
		return errors.New("database password is required")
	}
	if cfg.Database.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if cfg.MinIO.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if cfg.MinIO.AccessKeyID == "" {
		return errors.New("minio access key id is required")
	}
	if cfg.MinIO.SecretAccessKey == "" {
		return errors.New("minio secret access key is required")
	}
	if cfg.MinIO.Bucket == "" {
		return errors.New("minio bucket is required")
	}
	if cfg.MinIO.ExportRetentionDays < 0 {
		return errors.New("minio export retention days must not be negative")
	}
	if cfg.Auth.AccessTokenTTL <= 0 || cfg.Auth.RefreshTokenTTL <= 0 {
		return errors.New("token ttl must be positive")
	}
	if cfg.Candidates.DefaultPageLimit <= 0 {
		return errors.New("candidates default page limit must be positive")
	}
	if cfg.Candidates.MaxPageLimit < cfg.Candidates.DefaultPageLimit {
		return errors.New("candidates max page limit must be >= default page limit")
	}
	if cfg.Candidates.ExportPageSize <= 0 {
		return errors.New("candidates export page size must be positive")
	}
	return nil
}
