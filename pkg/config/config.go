package config

import (
	"errors"
	"io/fs"
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

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Admin     AdminConfig
	CORS      CORSConfig
	Log       LogConfig
	Mashov    MashovConfig
	Refresh   RefreshConfig
	Instances InstancesConfig
	Export    ExportConfig
}

type DatabaseConfig struct {
	Enabled      bool
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
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

// AdminConfig holds the operator account allowed to call mutating endpoints.
type AdminConfig struct {
	Username     string
	PasswordHash string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// MashovConfig tunes every upstream client.
type MashovConfig struct {
	BaseURL         string
	RequestTimeout  time.Duration
	MaxConnections  int
	LoginRetries    int
	LoginRetryDelay time.Duration
	CloseGrace      time.Duration
	RateLimit       float64
	RateBurst       int
	PollInterval    time.Duration
	Timezone        string
}

// RefreshConfig tunes refresh execution.
type RefreshConfig struct {
	Timeout time.Duration
	Workers int
}

// ExportConfig tunes CSV and PDF exports.
type ExportConfig struct {
	// PDFFont is a TTF file with Hebrew glyphs; empty falls back to a core font.
	PDFFont string
	CSVBOM  bool
}

// InstancesConfig locates the parent account definitions.
type InstancesConfig struct {
	File string
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Enabled:      v.GetBool("ENABLE_DATABASE"),
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
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), time.Hour),
	}

	cfg.Admin = AdminConfig{
		Username:     v.GetString("ADMIN_USERNAME"),
		PasswordHash: v.GetString("ADMIN_PASSWORD_HASH"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Mashov = MashovConfig{
		BaseURL:         v.GetString("MASHOV_BASE_URL"),
		RequestTimeout:  parseDuration(v.GetString("MASHOV_REQUEST_TIMEOUT"), 30*time.Second),
		MaxConnections:  v.GetInt("MASHOV_MAX_CONNECTIONS"),
		LoginRetries:    v.GetInt("MASHOV_LOGIN_RETRIES"),
		LoginRetryDelay: parseDuration(v.GetString("MASHOV_LOGIN_RETRY_DELAY"), 2*time.Second),
		CloseGrace:      parseDuration(v.GetString("MASHOV_CLOSE_GRACE"), 250*time.Millisecond),
		RateLimit:       v.GetFloat64("MASHOV_RATE_LIMIT"),
		RateBurst:       v.GetInt("MASHOV_RATE_BURST"),
		PollInterval:    parseDuration(v.GetString("MASHOV_POLL_INTERVAL"), 24*time.Hour),
		Timezone:        v.GetString("MASHOV_TIMEZONE"),
	}

	cfg.Refresh = RefreshConfig{
		Timeout: parseDuration(v.GetString("REFRESH_TIMEOUT"), 5*time.Minute),
		Workers: v.GetInt("REFRESH_WORKERS"),
	}

	cfg.Instances = InstancesConfig{File: v.GetString("INSTANCES_FILE")}

	cfg.Export = ExportConfig{
		PDFFont: v.GetString("EXPORT_PDF_FONT"),
		CSVBOM:  v.GetBool("EXPORT_CSV_BOM"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("ENABLE_DATABASE", false)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "mashov_bridge")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 5)
	v.SetDefault("DB_MAX_IDLE_CONNS", 2)

	v.SetDefault("EXPORT_CSV_BOM", true)

	v.SetDefault("ENABLE_REDIS", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_EXPIRATION", "1h")
	v.SetDefault("ADMIN_USERNAME", "")
	v.SetDefault("ADMIN_PASSWORD_HASH", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("MASHOV_BASE_URL", "https://web.mashov.info/api/")
	v.SetDefault("MASHOV_REQUEST_TIMEOUT", "30s")
	v.SetDefault("MASHOV_MAX_CONNECTIONS", 10)
	v.SetDefault("MASHOV_LOGIN_RETRIES", 3)
	v.SetDefault("MASHOV_LOGIN_RETRY_DELAY", "2s")
	v.SetDefault("MASHOV_CLOSE_GRACE", "250ms")
	v.SetDefault("MASHOV_RATE_LIMIT", 20)
	v.SetDefault("MASHOV_RATE_BURST", 20)
	v.SetDefault("MASHOV_POLL_INTERVAL", "24h")
	v.SetDefault("MASHOV_TIMEZONE", "Asia/Jerusalem")

	v.SetDefault("REFRESH_TIMEOUT", "5m")
	v.SetDefault("REFRESH_WORKERS", 2)
	v.SetDefault("INSTANCES_FILE", "instances.yaml")
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
