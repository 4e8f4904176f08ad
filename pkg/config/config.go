package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Storage  StorageConfig
	Workflow WorkflowConfig
	SMTP     SMTPConfig
	Send     SendConfig
	Exports  ExportsConfig
	Cache    CacheConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// StorageConfig selects and tunes the artifact blob backend. Backend is
// either "s3" or "filesystem"; the S3 fields also cover S3-compatible
// providers (MinIO, R2) via Endpoint and UsePathStyle.
type StorageConfig struct {
	Backend      string
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
	LocalDir     string
}

// WorkflowConfig tunes warning workflow behaviour. Levels lists the
// student level codes the attendance collector fans out across.
type WorkflowConfig struct {
	DefaultMinMissCount int
	Levels              []string
	ReconcileRepair     bool
}

// SMTPConfig carries outbound mail credentials.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
}

// SendConfig tunes the queued warning email dispatch.
type SendConfig struct {
	Enabled           bool
	BatchSize         int
	BatchDelay        time.Duration
	WorkerConcurrency int
	WorkerRetries     int
}

// ExportsConfig governs generated CSV/PDF downloads.
type ExportsConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	CleanupInterval time.Duration
}

// CacheConfig governs read-side caching of workflow listings.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Storage = StorageConfig{
		Backend:      strings.ToLower(v.GetString("STORAGE_BACKEND")),
		Bucket:       v.GetString("STORAGE_BUCKET"),
		Region:       v.GetString("STORAGE_REGION"),
		Endpoint:     v.GetString("STORAGE_ENDPOINT"),
		UsePathStyle: v.GetBool("STORAGE_USE_PATH_STYLE"),
		LocalDir:     v.GetString("STORAGE_LOCAL_DIR"),
	}

	cfg.Workflow = WorkflowConfig{
		DefaultMinMissCount: v.GetInt("WORKFLOW_DEFAULT_MIN_MISS_COUNT"),
		Levels:              splitAndTrim(v.GetString("WORKFLOW_LEVELS")),
		ReconcileRepair:     v.GetBool("WORKFLOW_RECONCILE_REPAIR"),
	}

	cfg.SMTP = SMTPConfig{
		Host:     v.GetString("SMTP_HOST"),
		Port:     v.GetInt("SMTP_PORT"),
		Username: v.GetString("SMTP_USERNAME"),
		Password: v.GetString("SMTP_PASSWORD"),
		From:     v.GetString("SMTP_FROM"),
		UseTLS:   v.GetBool("SMTP_USE_TLS"),
	}

	cfg.Send = SendConfig{
		Enabled:           v.GetBool("ENABLE_SEND"),
		BatchSize:         v.GetInt("SEND_BATCH_SIZE"),
		BatchDelay:        parseDuration(v.GetString("SEND_BATCH_DELAY"), 2*time.Second),
		WorkerConcurrency: v.GetInt("SEND_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("SEND_WORKER_RETRIES"),
	}

	cfg.Exports = ExportsConfig{
		StorageDir:      v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		CleanupInterval: parseDuration(v.GetString("EXPORTS_CLEANUP_INTERVAL"), time.Hour),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_CACHE"),
		TTL:     parseDuration(v.GetString("CACHE_TTL"), 5*time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "chapel_admin")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("STORAGE_BACKEND", "filesystem")
	v.SetDefault("STORAGE_BUCKET", "chapel-artifacts")
	v.SetDefault("STORAGE_REGION", "eu-west-1")
	v.SetDefault("STORAGE_ENDPOINT", "")
	v.SetDefault("STORAGE_USE_PATH_STYLE", false)
	v.SetDefault("STORAGE_LOCAL_DIR", "./data/artifacts")

	v.SetDefault("WORKFLOW_DEFAULT_MIN_MISS_COUNT", 3)
	v.SetDefault("WORKFLOW_LEVELS", "100,200,300,400,500")
	v.SetDefault("WORKFLOW_RECONCILE_REPAIR", false)

	v.SetDefault("SMTP_HOST", "localhost")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "chaplaincy@mtu.edu.ng")
	v.SetDefault("SMTP_USE_TLS", true)

	v.SetDefault("ENABLE_SEND", false)
	v.SetDefault("SEND_BATCH_SIZE", 25)
	v.SetDefault("SEND_BATCH_DELAY", "2s")
	v.SetDefault("SEND_WORKER_CONCURRENCY", 1)
	v.SetDefault("SEND_WORKER_RETRIES", 3)

	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("EXPORTS_CLEANUP_INTERVAL", "1h")

	v.SetDefault("ENABLE_CACHE", false)
	v.SetDefault("CACHE_TTL", "5m")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
