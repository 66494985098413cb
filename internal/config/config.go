package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const Production = "release"

var singleton = sync.OnceValue(func() *Config {
	cfg, err := Load("configs/.env")
	if err != nil {
		panic(err)
	}
	return cfg
})

// Use returns the process-wide configuration, loading it on first call.
func Use() *Config {
	return singleton()
}

type DatabaseOptions struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	Name     string `env:"DB_NAME" envDefault:"postgres"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
	LogLevel string `env:"DB_LOG_LEVEL" envDefault:"warn"`
}

func (d DatabaseOptions) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type LogOptions struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"` // text or json
}

type UploadOptions struct {
	Path          string `env:"UPLOADS_PATH" envDefault:"storage/uploads"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
	MaxSize       int64  `env:"MAX_UPLOAD_SIZE" envDefault:"52428800"`
}

type MailOptions struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM" envDefault:"no-reply@studio.local"`
}

func (m MailOptions) Enabled() bool {
	return m.Host != ""
}

type AttendanceOptions struct {
	PolicyPath    string        `env:"ATTENDANCE_POLICY_PATH" envDefault:"configs/attendance.yaml"`
	DeviceTimeout time.Duration `env:"ATTENDANCE_DEVICE_TIMEOUT" envDefault:"30s"`
	LockTTL       time.Duration `env:"ATTENDANCE_LOCK_TTL" envDefault:"10m"`
	CronSpec      string        `env:"ATTENDANCE_CRON"`
	Timezone      string        `env:"ATTENDANCE_TIMEZONE" envDefault:"Local"`
}

type Config struct {
	Database   DatabaseOptions
	Log        LogOptions
	Upload     UploadOptions
	Mail       MailOptions
	Attendance AttendanceOptions

	Port        string        `env:"PORT" envDefault:"8080"`
	GinMode     string        `env:"GIN_MODE" envDefault:"debug"`
	JWTSecret   string        `env:"JWT_SECRET"`
	TokenTTL    time.Duration `env:"JWT_TTL" envDefault:"24h"`
	CORSOrigins []string      `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://127.0.0.1:5173"`
	RedisURL    string        `env:"REDIS_URL"`
	MetricsPath string        `env:"METRICS_PATH" envDefault:"/metrics"`
}

// Load reads the optional env files then parses the environment.
func Load(envFiles ...string) (*Config, error) {
	existing := make([]string, 0, len(envFiles))
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		log.Printf("No env file found. Tried: %s", strings.Join(envFiles, ", "))
	} else if err := godotenv.Load(existing...); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		if c.GinMode == Production {
			return fmt.Errorf("JWT_SECRET is required in %s mode", Production)
		}
		c.JWTSecret = "default_super_secret_key"
	}
	if c.Upload.MaxSize <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE must be positive, got %d", c.Upload.MaxSize)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("LOG_FORMAT must be 'text' or 'json', got '%s'", c.Log.Format)
	}
	return nil
}

// Location resolves the attendance timezone used for day boundaries.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Attendance.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
