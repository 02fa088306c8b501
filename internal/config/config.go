package config

import (
	"crypto/subtle"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort int

	DatabaseURL string

	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	// SecureCookies is false in dev and on LAN-only deployments where there
	// is no TLS termination in front of the server.
	SecureCookies bool

	KafkaBrokers []string

	ESURL      string
	ESUser     string
	ESPassword string
	NotesIndex string

	LogLevel string
}

func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	cfg := &Config{
		ServerPort:    EnvIntDefault("SERVER_PORT", 8080),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		AccessSecret:  []byte(os.Getenv("JWT_ACCESS_SECRET")),
		RefreshSecret: []byte(os.Getenv("JWT_REFRESH_SECRET")),
		KafkaBrokers:  CSV(os.Getenv("KAFKA_BROKERS")),
		ESURL:         os.Getenv("ES_URL"),
		ESUser:        os.Getenv("ES_USER"),
		ESPassword:    os.Getenv("ES_PASSWORD"),
		NotesIndex:    EnvDefault("ES_NOTES_INDEX", "notes"),
		LogLevel:      EnvDefault("LOG_LEVEL", "info"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("missing required env DATABASE_URL")
	}
	if len(cfg.AccessSecret) == 0 {
		return nil, fmt.Errorf("missing required env JWT_ACCESS_SECRET")
	}
	if len(cfg.RefreshSecret) == 0 {
		return nil, fmt.Errorf("missing required env JWT_REFRESH_SECRET")
	}
	if subtle.ConstantTimeCompare(cfg.AccessSecret, cfg.RefreshSecret) == 1 {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}

	var err error
	cfg.AccessTTL, err = ParseDuration(EnvDefault("ACCESS_TOKEN_EXPIRES", "15m"))
	if err != nil {
		return nil, fmt.Errorf("ACCESS_TOKEN_EXPIRES: %w", err)
	}
	cfg.RefreshTTL, err = ParseDuration(EnvDefault("REFRESH_TOKEN_EXPIRES", "7d"))
	if err != nil {
		return nil, fmt.Errorf("REFRESH_TOKEN_EXPIRES: %w", err)
	}

	isLAN := EnvBool("IS_LAN")
	isDev := EnvDefault("APP_ENV", "production") == "dev"
	cfg.SecureCookies = !isLAN && !isDev

	return cfg, nil
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func EnvDefault(key, def string) string {
	if os.Getenv(key) != "" {
		return os.Getenv(key)
	}
	return def
}

func EnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func EnvBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}
