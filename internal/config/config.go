// README: Config loader with env defaults for HTTP, DB, Redis, dispatch, and webhook settings.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type DispatchConfig struct {
	MatchRadiusMeters float64
	CandidateLimit    int
}

type WebhookConfig struct {
	URL        string
	Secret     string
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
}

type Config struct {
	HTTP struct {
		Addr string
	}
	LogLevel string
	DB       struct {
		// DSN empty means run on the in-memory snapshot store.
		DSN string
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	Dispatch DispatchConfig
	Webhook  WebhookConfig
	Bus      struct {
		Buffer int
	}
	Maps struct {
		APIKey string
	}
	Firebase struct {
		ProjectID       string
		CredentialsFile string
	}
}

func Load() (Config, error) {
	// A .env file is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, err
	}

	var cfg Config
	cfg.HTTP.Addr = envOrDefault("AEGIS_HTTP_ADDR", ":8080")
	cfg.LogLevel = envOrDefault("AEGIS_LOG_LEVEL", "info")
	cfg.DB.DSN = os.Getenv("AEGIS_DB_DSN")
	cfg.Redis.Addr = envOrDefault("AEGIS_REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = os.Getenv("AEGIS_REDIS_PASSWORD")
	cfg.Redis.DB = envOrDefaultInt("AEGIS_REDIS_DB", 0)
	cfg.Dispatch.MatchRadiusMeters = envOrDefaultFloat("AEGIS_MATCH_RADIUS_M", 5000)
	cfg.Dispatch.CandidateLimit = envOrDefaultInt("AEGIS_MATCH_CANDIDATES", 3)
	cfg.Webhook.URL = os.Getenv("AEGIS_WEBHOOK_URL")
	cfg.Webhook.Secret = os.Getenv("AEGIS_WEBHOOK_SECRET")
	cfg.Webhook.Timeout = envOrDefaultDuration("AEGIS_WEBHOOK_TIMEOUT", 5*time.Second)
	cfg.Webhook.MaxRetries = envOrDefaultInt("AEGIS_WEBHOOK_MAX_RETRIES", 3)
	cfg.Webhook.BaseDelay = envOrDefaultDuration("AEGIS_WEBHOOK_BASE_DELAY", time.Second)
	cfg.Bus.Buffer = envOrDefaultInt("AEGIS_BUS_BUFFER", 64)
	cfg.Maps.APIKey = os.Getenv("AEGIS_MAPS_API_KEY")
	cfg.Firebase.ProjectID = os.Getenv("AEGIS_FIREBASE_PROJECT_ID")
	cfg.Firebase.CredentialsFile = os.Getenv("AEGIS_FIREBASE_CREDENTIALS_FILE")
	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
