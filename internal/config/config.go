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

// Config holds all configuration for the inspector.
type Config struct {
	// CDP connection settings
	CDPAddress string
	CDPPort    int

	// HTTP API
	BindAddr      string
	FallbackAddrs []string
	AutoFallback  bool

	// Logging
	LogLevel     string
	LogFile      string
	LogMaxSizeMB int

	// Storage settings
	DataDir     string
	Compress    bool
	QuietPeriod time.Duration
	MaxWait     time.Duration
	ScanLimit   int

	// Journal of committed records
	JournalEnabled   bool
	JournalDir       string
	JournalMaxSizeMB int
	BufferSize       int

	// Capture behavior
	EvictAfter    time.Duration
	MaxBodyBytes  int
	MaxFrameBytes int

	// Sibling processes sharing the data directory
	Peers []string

	// Optional YAML files
	PresetsFile string
	RelayFile   string

	// Browser launch
	LaunchBrowser bool
	BrowserBinary string
	Headless      bool
	ProfileDir    string
	StartURL      string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:       getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:          getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		BindAddr:         getEnvOrDefault("INSPECTOR_BIND_ADDR", "127.0.0.1:8188"),
		FallbackAddrs:    getEnvListOrDefault("INSPECTOR_FALLBACK_ADDRS", []string{"127.0.0.1:8189", "127.0.0.1:8190"}),
		AutoFallback:     getEnvBoolOrDefault("INSPECTOR_AUTO_FALLBACK", true),
		LogLevel:         strings.ToLower(getEnvOrDefault("INSPECTOR_LOG_LEVEL", "info")),
		LogFile:          getEnvOrDefault("INSPECTOR_LOG_FILE", "logs/apiinspector.log"),
		LogMaxSizeMB:     getEnvIntOrDefault("INSPECTOR_LOG_MAX_SIZE_MB", 50),
		DataDir:          getEnvOrDefault("INSPECTOR_DATA_DIR", "./inspector_data"),
		Compress:         getEnvBoolOrDefault("INSPECTOR_COMPRESS", false),
		QuietPeriod:      getEnvDurationOrDefault("INSPECTOR_BATCH_QUIET", 100*time.Millisecond),
		MaxWait:          getEnvDurationOrDefault("INSPECTOR_BATCH_MAX_WAIT", time.Second),
		ScanLimit:        getEnvIntOrDefault("INSPECTOR_SCAN_LIMIT", 5000),
		JournalEnabled:   getEnvBoolOrDefault("INSPECTOR_JOURNAL", false),
		JournalDir:       getEnvOrDefault("INSPECTOR_JOURNAL_DIR", "./inspector_data/journal"),
		JournalMaxSizeMB: getEnvIntOrDefault("INSPECTOR_JOURNAL_MAX_SIZE_MB", 200),
		BufferSize:       getEnvIntOrDefault("INSPECTOR_BUFFER_SIZE", 5000),
		EvictAfter:       getEnvDurationOrDefault("INSPECTOR_EVICT_AFTER", 60*time.Second),
		MaxBodyBytes:     getEnvIntOrDefault("INSPECTOR_MAX_BODY_BYTES", 50*1024*1024),
		MaxFrameBytes:    getEnvIntOrDefault("INSPECTOR_MAX_FRAME_BYTES", 20*1024*1024),
		Peers:            getEnvListOrDefault("INSPECTOR_PEERS", nil),
		PresetsFile:      getEnvOrDefault("INSPECTOR_PRESETS_FILE", "./config/presets.yaml"),
		RelayFile:        getEnvOrDefault("INSPECTOR_RELAY_FILE", "./config/relay.yaml"),
		LaunchBrowser:    getEnvBoolOrDefault("INSPECTOR_LAUNCH_BROWSER", false),
		BrowserBinary:    getEnvOrDefault("CHROMIUM_BIN", ""),
		Headless:         getEnvBoolOrDefault("CHROMIUM_HEADLESS", false),
		ProfileDir:       getEnvOrDefault("CHROMIUM_PROFILE_DIR", "./browser_profile"),
		StartURL:         getEnvOrDefault("CHROMIUM_START_URL", "about:blank"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the components cannot run with.
func (c *Config) Validate() error {
	if c.CDPPort <= 0 || c.CDPPort > 65535 {
		return fmt.Errorf("config: CHROMIUM_CDP_PORT out of range: %d", c.CDPPort)
	}
	if c.DataDir == "" {
		return fmt.Errorf("config: INSPECTOR_DATA_DIR is empty")
	}
	if c.QuietPeriod <= 0 || c.MaxWait < c.QuietPeriod {
		return fmt.Errorf("config: batch max wait %s must be at least the quiet period %s", c.MaxWait, c.QuietPeriod)
	}
	if c.ScanLimit <= 0 {
		c.ScanLimit = 5000
	}
	return nil
}

// CDPURL returns the CDP HTTP endpoint used by the chromedp remote allocator.
func (c *Config) CDPURL() string {
	return "http://" + c.CDPAddress + ":" + strconv.Itoa(c.CDPPort)
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

func getEnvDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
