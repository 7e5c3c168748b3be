package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

type Config struct {
	DBDriver   string `env:"DB_DRIVER" envDefault:"mysql"`
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"3306"`
	DBUser     string `env:"DB_USER" envDefault:"annotation"`
	DBPassword string `env:"DB_PASSWORD" envDefault:"annotationpassword"`
	DBName     string `env:"DB_NAME" envDefault:"annotation"`
	DBPath     string `env:"DB_PATH" envDefault:"annotation.db"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`

	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     string `env:"REDIS_PORT" envDefault:"6379"`
	SessionSecret string `env:"SESSION_SECRET" envDefault:"default-secret-key-change-me"`

	GinMode     string   `env:"GIN_MODE" envDefault:"debug"`
	Port        string   `env:"PORT" envDefault:"8080"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	StorageDir    string `env:"STORAGE_DIR" envDefault:"data/uploads"`
	ExportDir     string `env:"EXPORT_DIR" envDefault:"data/exports"`
	MaxUploadSize int64  `env:"MAX_UPLOAD_SIZE" envDefault:"52428800"`
	ThumbnailSize int    `env:"THUMBNAIL_SIZE" envDefault:"256"`

	ExportWorkers    int           `env:"EXPORT_WORKERS" envDefault:"2"`
	ExportQueueSize  int           `env:"EXPORT_QUEUE_SIZE" envDefault:"64"`
	ExportTimeout    time.Duration `env:"EXPORT_TIMEOUT" envDefault:"10m"`
	ExportStaleAfter time.Duration `env:"EXPORT_STALE_AFTER" envDefault:"30m"`
	ExportNotify     bool          `env:"EXPORT_NOTIFY" envDefault:"false"`

	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat     string `env:"LOG_FORMAT" envDefault:"text"`
	LogFile       string `env:"LOG_FILE"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"100"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"5"`
	LogMaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"28"`

	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"false"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	switch cfg.DBDriver {
	case "mysql", "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	return cfg, nil
}

// PostgresDSN returns the libpq connection string, shared by gorm and the export notifier.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}
