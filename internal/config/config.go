package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"60s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	AuthUsername   string `env:"AUTH_USERNAME" envDefault:"admin"`
	AuthPassword   string `env:"AUTH_PASSWORD" envDefault:"password"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS" envDefault:"*"`

	AudioDir string `env:"AUDIO_DIR" envDefault:"./audio"`
	InboxDir string `env:"INBOX_DIR"`

	S3 S3Config `envPrefix:"S3_"`

	DiarizeURL     string        `env:"DIARIZE_URL,required"`
	DiarizeToken   string        `env:"DIARIZE_TOKEN"`
	DiarizeTimeout time.Duration `env:"DIARIZE_TIMEOUT" envDefault:"15m"`

	DetectURL          string        `env:"DETECT_URL" envDefault:"https://app.resemble.ai/api/v2"`
	DetectToken        string        `env:"DETECT_TOKEN,required"`
	DetectCallbackURL  string        `env:"DETECT_CALLBACK_URL"`
	DetectPollInterval time.Duration `env:"DETECT_POLL_INTERVAL" envDefault:"5s"`
	DetectPollTimeout  time.Duration `env:"DETECT_POLL_TIMEOUT" envDefault:"10m"`

	RetryMaxAttempts int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"5"`
	RetryPause       time.Duration `env:"RETRY_PAUSE" envDefault:"2s"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// S3Config holds object store settings. When Bucket is empty the service
// falls back to the local filesystem store under AudioDir.
type S3Config struct {
	Endpoint      string        `env:"ENDPOINT"`
	Region        string        `env:"REGION" envDefault:"us-east-1"`
	Bucket        string        `env:"BUCKET"`
	Prefix        string        `env:"PREFIX"`
	AccessKey     string        `env:"ACCESS_KEY"`
	SecretKey     string        `env:"SECRET_KEY"`
	PublicBaseURL string        `env:"PUBLIC_BASE_URL"`
	PresignExpiry time.Duration `env:"PRESIGN_EXPIRY" envDefault:"24h"`
}

// Enabled reports whether an S3 bucket is configured.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

// Load reads configuration from a .env file (silent if missing) and the
// environment. Environment variables win over .env values.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
