// Package config loads loginguard settings from the environment
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v7"
	"github.com/joho/godotenv"
	"github.com/layer-3/loginguard/core"
)

const EnvProduction = "production"

type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Host     string `env:"HOST" envDefault:"127.0.0.1"`
	Port     int    `env:"PORT" envDefault:"3000"`

	RedisURL     string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"2s"`
	DatabaseDSN  string        `env:"DATABASE_DSN" envDefault:"file:loginguard.db"`
	EventsTopic  string        `env:"EVENTS_TOPIC" envDefault:"loginguard.security"`

	CaptchaTTLSeconds  int  `env:"CAPTCHA_TTL" envDefault:"120"`
	CaptchaDebugLog    bool `env:"CAPTCHA_DEBUG_LOG" envDefault:"false"`
	MaxCaptchaFailures int  `env:"MAX_CAPTCHA_FAILURES" envDefault:"5"`
	BlockSeconds       int  `env:"IP_BLOCK_TIME" envDefault:"600"`

	RateLimitWindowMinutes   int `env:"RATE_LIMIT_WINDOW" envDefault:"15"`
	RateLimitMax             int `env:"RATE_LIMIT_MAX" envDefault:"5"`
	CaptchaRateWindowMinutes int `env:"CAPTCHA_RATE_WINDOW" envDefault:"1"`
	CaptchaRateMax           int `env:"CAPTCHA_RATE_MAX" envDefault:"10"`

	JWTSecret string        `env:"JWT_SECRET"`
	JWTExpiry time.Duration `env:"JWT_EXPIRY" envDefault:"24h"`

	AdminUsername string `env:"ADMIN_USERNAME"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
	AdminEmail    string `env:"ADMIN_EMAIL"`
}

// Load reads envPath into the environment when it exists, then parses the
// environment. Variables already set win over the file.
func Load(envPath string) (Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", envPath, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", core.ErrConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var problems []error
	if c.JWTSecret == "" {
		problems = append(problems, errors.New("JWT_SECRET is required"))
	}
	if c.JWTExpiry <= 0 {
		problems = append(problems, errors.New("JWT_EXPIRY must be positive"))
	}
	if c.CaptchaTTLSeconds <= 0 {
		problems = append(problems, errors.New("CAPTCHA_TTL must be positive"))
	}
	if c.MaxCaptchaFailures <= 0 {
		problems = append(problems, errors.New("MAX_CAPTCHA_FAILURES must be positive"))
	}
	if c.BlockSeconds <= 0 {
		problems = append(problems, errors.New("IP_BLOCK_TIME must be positive"))
	}
	if c.RateLimitWindowMinutes <= 0 || c.RateLimitMax <= 0 {
		problems = append(problems, errors.New("RATE_LIMIT_WINDOW and RATE_LIMIT_MAX must be positive"))
	}
	if c.CaptchaRateWindowMinutes <= 0 || c.CaptchaRateMax <= 0 {
		problems = append(problems, errors.New("CAPTCHA_RATE_WINDOW and CAPTCHA_RATE_MAX must be positive"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		problems = append(problems, fmt.Errorf("PORT %d out of range", c.Port))
	}
	if c.CaptchaDebugLog && c.IsProduction() {
		problems = append(problems, errors.New("CAPTCHA_DEBUG_LOG is not allowed in production"))
	}
	if (c.AdminUsername == "") != (c.AdminPassword == "") {
		problems = append(problems, errors.New("ADMIN_USERNAME and ADMIN_PASSWORD must be set together"))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", core.ErrConfiguration, errors.Join(problems...))
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c Config) CaptchaTTL() time.Duration {
	return time.Duration(c.CaptchaTTLSeconds) * time.Second
}

func (c Config) BlockWindow() time.Duration {
	return time.Duration(c.BlockSeconds) * time.Second
}

func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowMinutes) * time.Minute
}

func (c Config) CaptchaRateWindow() time.Duration {
	return time.Duration(c.CaptchaRateWindowMinutes) * time.Minute
}
