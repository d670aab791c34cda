// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jason-s-yu/chessroom/internal/auth"
	"github.com/jason-s-yu/chessroom/internal/connection"
	"github.com/jason-s-yu/chessroom/internal/database"
	"github.com/jason-s-yu/chessroom/internal/room"
	"github.com/sirupsen/logrus"
)

// Message store backends.
const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

// Config is the server configuration read from the environment.
type Config struct {
	Port int

	DatabaseURL string
	RedisAddr   string
	RedisDB     int

	MessageStore  string
	RoomReapAfter time.Duration
	OutboxSize    int

	TokenExpiry       time.Duration
	JWTPrivateKeyPath string
	JWTPublicKeyPath  string

	AllowedOrigins []string

	LogLevel  logrus.Level
	LogFormat string
}

// Load reads every variable, applying defaults, and validates the result.
func Load() (*Config, error) {
	var errs []error
	c := &Config{
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		MessageStore:      strings.ToLower(getEnv("MESSAGE_STORE", StorePostgres)),
		JWTPrivateKeyPath: os.Getenv("JWT_PRIVATE_KEY_PATH"),
		JWTPublicKeyPath:  os.Getenv("JWT_PUBLIC_KEY_PATH"),
		AllowedOrigins:    splitList(getEnv("ALLOWED_ORIGINS", "*")),
		LogFormat:         strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}
	if c.DatabaseURL == "" {
		c.DatabaseURL = database.DSN(
			os.Getenv("POSTGRES_USER"),
			os.Getenv("POSTGRES_PASSWORD"),
			getEnv("PG_HOST", "localhost"),
			getEnv("PG_PORT", "5432"),
			getEnv("PG_DATABASE", "chessroom"),
		)
	}

	var err error
	if c.Port, err = getEnvInt("PORT", 8080); err != nil {
		errs = append(errs, err)
	}
	if c.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		errs = append(errs, err)
	}
	if c.OutboxSize, err = getEnvInt("OUTBOX_SIZE", connection.DefaultOutboxSize); err != nil {
		errs = append(errs, err)
	}
	if c.RoomReapAfter, err = time.ParseDuration(getEnv("ROOM_REAP_AFTER", room.DefaultReapAfter.String())); err != nil {
		errs = append(errs, fmt.Errorf("ROOM_REAP_AFTER: %w", err))
	}
	if c.TokenExpiry, err = auth.ParseTokenExpiry(getEnv("TOKEN_EXPIRE_TIME", "1h")); err != nil {
		errs = append(errs, fmt.Errorf("TOKEN_EXPIRE_TIME: %w", err))
	}
	if c.LogLevel, err = logrus.ParseLevel(getEnv("LOG_LEVEL", "info")); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range: %d", c.Port))
	}
	switch c.MessageStore {
	case StorePostgres, StoreRedis, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown MESSAGE_STORE %q", c.MessageStore))
	}
	if c.RoomReapAfter <= 0 {
		errs = append(errs, fmt.Errorf("ROOM_REAP_AFTER must be positive, got %s", c.RoomReapAfter))
	}
	if c.OutboxSize <= 0 {
		errs = append(errs, fmt.Errorf("OUTBOX_SIZE must be positive, got %d", c.OutboxSize))
	}
	if (c.JWTPrivateKeyPath == "") != (c.JWTPublicKeyPath == "") {
		errs = append(errs, errors.New("JWT_PRIVATE_KEY_PATH and JWT_PUBLIC_KEY_PATH must be set together"))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat))
	}
	if len(c.AllowedOrigins) == 0 {
		errs = append(errs, errors.New("ALLOWED_ORIGINS must not be empty"))
	}
	return errors.Join(errs...)
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// NewLogger builds the process logger from LogLevel and LogFormat.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)
	if c.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
