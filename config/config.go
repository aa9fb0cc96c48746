package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultPort      = 8080
	defaultTokenTTL  = 12 * time.Hour
	defaultMinPilots = 7
	defaultMaxPilots = 60
)

// Config holds every setting of the tournament server.
type Config struct {
	DatabaseURL          string
	JWTSecretKey         string
	ServerPort           int
	OperatorPasswordHash string
	TokenTTL             time.Duration
	CORSAllowedOrigins   []string

	// RandomSeed seeds the heat shuffles; nil means seed from the clock.
	RandomSeed *int64
	MinPilots  int
	MaxPilots  int

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string
}

// ArchiveEnabled reports whether object storage is configured.
func (c *Config) ArchiveEnabled() bool {
	return c.R2AccountID != ""
}

// Load reads the configuration from the environment. A .env file is picked
// up when present.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		DatabaseURL:          getenv("DATABASE_URL"),
		JWTSecretKey:         getenv("JWT_SECRET_KEY"),
		OperatorPasswordHash: getenv("OPERATOR_PASSWORD_HASH"),
		R2AccountID:          getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:        getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey:    getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:         getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:      getenv("R2_PUBLIC_BASE_URL"),
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}
	if cfg.JWTSecretKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}
	if cfg.OperatorPasswordHash == "" {
		return nil, fmt.Errorf("OPERATOR_PASSWORD_HASH environment variable is not set")
	}

	var err error
	if cfg.ServerPort, err = intEnv(getenv, "SERVER_PORT", defaultPort); err != nil {
		return nil, err
	}
	if cfg.ServerPort <= 0 || cfg.ServerPort > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", cfg.ServerPort)
	}

	cfg.CORSAllowedOrigins = []string{"*"}
	if raw := getenv("CORS_ALLOWED_ORIGINS"); raw != "" {
		cfg.CORSAllowedOrigins = nil
		for _, origin := range strings.Split(raw, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, origin)
			}
		}
	}

	cfg.TokenTTL = defaultTokenTTL
	if raw := getenv("TOKEN_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil || ttl <= 0 {
			return nil, fmt.Errorf("invalid TOKEN_TTL %q: must be a positive duration", raw)
		}
		cfg.TokenTTL = ttl
	}

	if raw := getenv("RANDOM_SEED"); raw != "" {
		seed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid RANDOM_SEED environment variable: %w", err)
		}
		cfg.RandomSeed = &seed
	}

	if cfg.MinPilots, err = intEnv(getenv, "MIN_PILOTS", defaultMinPilots); err != nil {
		return nil, err
	}
	if cfg.MaxPilots, err = intEnv(getenv, "MAX_PILOTS", defaultMaxPilots); err != nil {
		return nil, err
	}
	if cfg.MinPilots < 2 || cfg.MaxPilots < cfg.MinPilots {
		return nil, fmt.Errorf("invalid pilot limits: MIN_PILOTS=%d MAX_PILOTS=%d", cfg.MinPilots, cfg.MaxPilots)
	}

	r2 := []string{cfg.R2AccountID, cfg.R2AccessKeyID, cfg.R2SecretAccessKey, cfg.R2BucketName, cfg.R2PublicBaseURL}
	set := 0
	for _, v := range r2 {
		if v != "" {
			set++
		}
	}
	if set != 0 && set != len(r2) {
		return nil, fmt.Errorf("the R2_* variables must be set together or not at all")
	}

	return cfg, nil
}

func intEnv(getenv func(string) string, key string, def int) (int, error) {
	raw := getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}
