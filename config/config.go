package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	_ "time/tzdata"
)

// Config holds the watcher settings read from the environment
type Config struct {
	DiscordToken    string
	ChannelID       string
	StatusChannelID string

	EventsFile string
	MinTickets int

	SweepSchedule  string
	StatusSchedule string
	RunOnStart     bool

	BetweenEventsDelay  time.Duration
	BetweenEventsJitter time.Duration
	RetryDelays         []time.Duration
	FetchTimeout        time.Duration

	Renderer  string
	ChromeBin string
	DebugDir  string
	DebugTM   bool

	DatabaseURL string

	Host           string
	Port           string
	AllowedOrigins []string
	APIKey         string
	APIRateLimit   float64

	LogLevel  string
	LogFormat string
	Timezone  string
}

// Renderer kinds
const (
	RendererBrowser = "browser"
	RendererHTTP    = "http"
)

// Load reads .env (if present) and the environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment
func FromEnv() (*Config, error) {
	cfg := &Config{
		DiscordToken:    os.Getenv("DISCORD_TOKEN"),
		ChannelID:       os.Getenv("CHANNEL_ID"),
		StatusChannelID: os.Getenv("STATUS_CHANNEL_ID"),

		EventsFile: getEnv("EVENTS_FILE", "events.yaml"),
		MinTickets: getEnvInt("MIN_TICKETS", 2),

		SweepSchedule:  getEnv("SWEEP_SCHEDULE", "0 */5 * * * *"),
		StatusSchedule: getEnv("STATUS_SCHEDULE", "0 0 * * * *"),
		RunOnStart:     getEnvBool("RUN_ON_START", true),

		BetweenEventsDelay:  getEnvDuration("BETWEEN_EVENTS_DELAY", 2*time.Second),
		BetweenEventsJitter: getEnvDuration("BETWEEN_EVENTS_JITTER", 3*time.Second),
		FetchTimeout:        getEnvDuration("FETCH_TIMEOUT", 90*time.Second),

		Renderer:  strings.ToLower(getEnv("RENDERER", RendererBrowser)),
		ChromeBin: os.Getenv("CHROME_BIN"),
		DebugDir:  getEnv("DEBUG_DIR", "debug"),
		DebugTM:   getEnvBool("DEBUG_TM", false),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		Host:           getEnv("HOST", "0.0.0.0"),
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		APIKey:         os.Getenv("API_KEY"),
		APIRateLimit:   getEnvFloat("API_RATE_LIMIT", 2),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
		Timezone:  getEnv("TIMEZONE", "Europe/London"),
	}

	delays, err := ParseDurations(getEnv("RETRY_DELAYS", "5s,15s"))
	if err != nil {
		return nil, fmt.Errorf("invalid RETRY_DELAYS: %w", err)
	}
	cfg.RetryDelays = delays

	if cfg.MinTickets < 1 {
		return nil, fmt.Errorf("MIN_TICKETS must be at least 1, got %d", cfg.MinTickets)
	}
	if cfg.Renderer != RendererBrowser && cfg.Renderer != RendererHTTP {
		return nil, fmt.Errorf("RENDERER must be %q or %q, got %q", RendererBrowser, RendererHTTP, cfg.Renderer)
	}
	if cfg.BetweenEventsDelay < 0 || cfg.BetweenEventsJitter < 0 {
		return nil, fmt.Errorf("inter-event delay and jitter must not be negative")
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Location resolves the reference time zone
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// StatusChannel falls back to the alert channel when no status channel is set
func (c *Config) StatusChannel() string {
	if c.StatusChannelID != "" {
		return c.StatusChannelID
	}
	return c.ChannelID
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if strings.EqualFold(c.LogFormat, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		logger.WithField("level", c.LogLevel).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// ParseDurations parses a comma-separated list such as "5s,15s"
func ParseDurations(value string) ([]time.Duration, error) {
	var out []time.Duration
	for _, part := range splitList(value) {
		d, err := time.ParseDuration(part)
		if err != nil {
			return nil, err
		}
		if d < 0 {
			return nil, fmt.Errorf("negative duration %q", part)
		}
		out = append(out, d)
	}
	return out, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
