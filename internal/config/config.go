package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for capturewatch.
type Config struct {
	// CDP connection settings
	CDPAddress   string
	CDPPort      int
	CDPEnabled   bool
	TabURLFilter string

	// Optional dedicated browser
	LaunchBrowser     bool
	BrowserPath       string
	BrowserProfileDir string
	BrowserStartURL   string

	// HTTP API
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool

	// Detection
	TranslatorsPath      string
	DetectTimeoutMS      int
	EvalTimeoutMS        int
	MaxConcurrentDetects int
	DomainBlocklist      []string
	LocationBlocklist    []string

	// Decision journal
	JournalDir       string
	JournalMaxSizeMB int
	JournalBuffer    int

	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:           getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:              getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		CDPEnabled:           getEnvBoolOrDefault("CAPTUREWATCH_CDP_ENABLED", true),
		TabURLFilter:         getEnvOrDefault("CAPTUREWATCH_TAB_URL_FILTER", ""),
		LaunchBrowser:        getEnvBoolOrDefault("CAPTUREWATCH_LAUNCH_BROWSER", false),
		BrowserPath:          getEnvOrDefault("CAPTUREWATCH_BROWSER_PATH", ""),
		BrowserProfileDir:    getEnvOrDefault("CAPTUREWATCH_BROWSER_PROFILE_DIR", "./browser_profile"),
		BrowserStartURL:      getEnvOrDefault("CAPTUREWATCH_BROWSER_START_URL", "about:blank"),
		BindAddr:             getEnvOrDefault("CAPTUREWATCH_BIND_ADDR", "127.0.0.1:8190"),
		PortCandidates:       getEnvListOrDefault("CAPTUREWATCH_PORT_CANDIDATES", []string{"127.0.0.1:8191", "127.0.0.1:8192"}),
		PortAutoFallback:     getEnvBoolOrDefault("CAPTUREWATCH_PORT_AUTO_FALLBACK", true),
		TranslatorsPath:      getEnvOrDefault("CAPTUREWATCH_TRANSLATORS_PATH", "./config/translators.yaml"),
		DetectTimeoutMS:      getEnvIntOrDefault("CAPTUREWATCH_DETECT_TIMEOUT_MS", 10000),
		EvalTimeoutMS:        getEnvIntOrDefault("CAPTUREWATCH_EVAL_TIMEOUT_MS", 3000),
		MaxConcurrentDetects: getEnvIntOrDefault("CAPTUREWATCH_MAX_CONCURRENT_DETECTIONS", 4),
		DomainBlocklist:      getEnvListOrDefault("CAPTUREWATCH_DOMAIN_BLOCKLIST", nil),
		LocationBlocklist:    getEnvListOrDefault("CAPTUREWATCH_LOCATION_BLOCKLIST", nil),
		JournalDir:           getEnvOrDefault("CAPTUREWATCH_JOURNAL_DIR", "./journal"),
		JournalMaxSizeMB:     getEnvIntOrDefault("CAPTUREWATCH_JOURNAL_MAX_SIZE_MB", 50),
		JournalBuffer:        getEnvIntOrDefault("CAPTUREWATCH_JOURNAL_BUFFER", 1000),
		LogLevel:             strings.ToLower(getEnvOrDefault("CAPTUREWATCH_LOG_LEVEL", "info")),
		LogFile:              getEnvOrDefault("CAPTUREWATCH_LOG_FILE", "logs/capturewatch.log"),
	}
	if cfg.DetectTimeoutMS < 500 {
		cfg.DetectTimeoutMS = 500
	}
	if cfg.EvalTimeoutMS < 100 {
		cfg.EvalTimeoutMS = 100
	}
	if cfg.MaxConcurrentDetects < 1 {
		cfg.MaxConcurrentDetects = 1
	}
	if cfg.CDPPort <= 0 || cfg.CDPPort > 65535 {
		return nil, fmt.Errorf("invalid CHROMIUM_CDP_PORT: %d", cfg.CDPPort)
	}

	return cfg, nil
}

// CDPURL returns the full CDP HTTP endpoint used by chromedp remote allocator.
func (c *Config) CDPURL() string {
	return "http://" + c.CDPAddress + ":" + strconv.Itoa(c.CDPPort)
}

func (c *Config) DetectTimeout() time.Duration {
	return time.Duration(c.DetectTimeoutMS) * time.Millisecond
}

func (c *Config) EvalTimeout() time.Duration {
	return time.Duration(c.EvalTimeoutMS) * time.Millisecond
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvListOrDefault splits a comma-separated value, dropping blanks.
func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
