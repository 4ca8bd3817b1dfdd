package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrMissingSecret is returned when auth.jwt_secret is not configured.
var ErrMissingSecret = errors.New("auth.jwt_secret is not configured")

type Config struct {
	Env    string `mapstructure:"env"` // local, dev, production
	Server struct {
		Port string `mapstructure:"port"`
	} `mapstructure:"server"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
		TTL      string `mapstructure:"ttl"`
	} `mapstructure:"redis"`
	Postgres struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"postgres"`
	Cache struct {
		CourseTTL string `mapstructure:"course_ttl"`
	} `mapstructure:"cache"`
	Auth struct {
		JWTSecret string `mapstructure:"jwt_secret"`
		Issuer    string `mapstructure:"issuer"`
		TokenTTL  string `mapstructure:"token_ttl"`
	} `mapstructure:"auth"`
	Catalog struct {
		Path string `mapstructure:"path"` // YAML course catalog used when postgres is not configured
	} `mapstructure:"catalog"`
	Reconcile struct {
		Schedule    string `mapstructure:"schedule"`
		SaveRetries int    `mapstructure:"save_retries"`
	} `mapstructure:"reconcile"`
	AI struct {
		Endpoint string `mapstructure:"endpoint"`
		APIKey   string `mapstructure:"api_key"`
		Model    string `mapstructure:"model"`
		Timeout  string `mapstructure:"timeout"`
	} `mapstructure:"ai"`
}

// Load reads the YAML config at path, overlaid with environment variables
// (REDIS_ADDR, AUTH_JWT_SECRET, ...). A .env file next to the config file or
// in the working directory is loaded first when present. A missing config
// file is not an error.
func Load(path string) (Config, error) {
	for _, envFile := range []string{filepath.Join(filepath.Dir(path), ".env"), ".env"} {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return Config{}, fmt.Errorf("load %s: %w", envFile, err)
			}
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// every key needs a default so AutomaticEnv can override it on Unmarshal
	v.SetDefault("env", "local")
	v.SetDefault("server.port", "8080")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "10m")
	v.SetDefault("postgres.url", "")
	v.SetDefault("cache.course_ttl", "10m")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "course-quiz-engine")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("catalog.path", "config/catalog.yaml")
	v.SetDefault("reconcile.schedule", "@every 30s")
	v.SetDefault("reconcile.save_retries", 3)
	v.SetDefault("ai.endpoint", "")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", "gpt-3.5-turbo")
	v.SetDefault("ai.timeout", "60s")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("env", "APP_ENV")
	_ = v.BindEnv("postgres.url", "DATABASE_URL", "POSTGRES_URL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// RequireSecret returns the JWT secret or ErrMissingSecret.
func (c Config) RequireSecret() (string, error) {
	if c.Auth.JWTSecret == "" {
		return "", ErrMissingSecret
	}
	return c.Auth.JWTSecret, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
