// Package logging provides structured logging configuration.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration options.
type Config struct {
	Level  string // debug|info|warn|error
	Format string // json|console
}

// New creates a new configured zap logger.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
			return nil, err
		}
	}

	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = "json"
	}

	var zcfg zap.Config
	if format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.LevelKey = "level"
	zcfg.EncoderConfig.MessageKey = "msg"
	zcfg.EncoderConfig.CallerKey = "caller"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zcfg.Build(zap.AddCaller(), zap.AddCallerSkip(0))
	if err != nil {
		return nil, err
	}

	logger = logger.With(zap.String("service", "crawlguard"))

	return logger, nil
}

// Sync flushes any buffered log entries.
func Sync(logger *zap.Logger) {
	_ = logger.Sync()
}

// FromEnv creates a Config from environment variables.
func FromEnv() Config {
	return Config{
		Level:  getenv("CRAWLGUARD_LOG_LEVEL", "info"),
		Format: getenv("CRAWLGUARD_LOG_FORMAT", "json"),
	}
}

func getenv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// Component returns a zap field for the component name.
func Component(name string) zap.Field { return zap.String("component", name) }

// Port returns a zap field for the port number.
func Port(port int) zap.Field { return zap.Int("port", port) }

// Addr returns a zap field for a source address.
func Addr(addr string) zap.Field { return zap.String("addr", addr) }

// Identity returns a zap field for a crawler identity key.
func Identity(key string) zap.Field { return zap.String("identity", key) }

// UserAgent returns a zap field for a declared user agent string.
func UserAgent(ua string) zap.Field { return zap.String("user_agent", ua) }

// Hostname returns a zap field for a resolved hostname.
func Hostname(name string) zap.Field { return zap.String("hostname", name) }

// Source returns a zap field for a range source URL.
func Source(url string) zap.Field { return zap.String("source", url) }

// Prefixes returns a zap field for a count of network prefixes.
func Prefixes(n int) zap.Field { return zap.Int("prefixes", n) }

// Verdict returns a zap field for a final verification verdict.
func Verdict(legitimate bool) zap.Field { return zap.Bool("verdict", legitimate) }

// TLSMode returns a zap field for TLS mode.
func TLSMode(mode string) zap.Field { return zap.String("tls_mode", mode) }
