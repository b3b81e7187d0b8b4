package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Environment string
	BaseURL     string
	DiagURL     string
	HTTPAddr    string
	DataDir     string
	DBPath      string

	Token     string
	TokenFile string

	PollInterval     time.Duration
	PollBackoffMax   time.Duration
	BreakerThreshold int
	BreakerOpen      time.Duration
	RequestTimeout   time.Duration

	HeartbeatStaleSec int
	HistoryLimit      int

	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int

	TLSSkipVerify bool
	TLSCAFile     string
	TLSCertFile   string
	TLSKeyFile    string
	TLSServerName string
}

func FromEnv() Config {
	dataDir := stringOrDefault("EDGE_CONSOLE_DATA_DIR", defaultDataDir())
	dbPath := stringOrDefault("EDGE_CONSOLE_DB_PATH", filepath.Join(dataDir, "console.sqlite"))

	return Config{
		Environment: stringOrDefault("EDGE_CONSOLE_ENV", "development"),
		BaseURL:     strings.TrimRight(stringOrDefault("EDGE_CONSOLE_BASE_URL", "http://127.0.0.1:8500"), "/"),
		DiagURL:     strings.TrimSpace(os.Getenv("EDGE_CONSOLE_DIAG_URL")),
		HTTPAddr:    stringOrDefault("EDGE_CONSOLE_HTTP_ADDR", "127.0.0.1:8877"),
		DataDir:     dataDir,
		DBPath:      dbPath,

		Token:     strings.TrimSpace(os.Getenv("EDGE_CONSOLE_TOKEN")),
		TokenFile: strings.TrimSpace(os.Getenv("EDGE_CONSOLE_TOKEN_FILE")),

		PollInterval:     durationOrDefault("EDGE_CONSOLE_POLL_INTERVAL", time.Second),
		PollBackoffMax:   durationOrDefault("EDGE_CONSOLE_POLL_BACKOFF_MAX", 30*time.Second),
		BreakerThreshold: intOrDefault("EDGE_CONSOLE_BREAKER_THRESHOLD", 5),
		BreakerOpen:      durationOrDefault("EDGE_CONSOLE_BREAKER_OPEN", 30*time.Second),
		RequestTimeout:   durationOrDefault("EDGE_CONSOLE_REQUEST_TIMEOUT", 8*time.Second),

		HeartbeatStaleSec: intOrDefault("EDGE_CONSOLE_HEARTBEAT_STALE_SECONDS", 120),
		HistoryLimit:      intOrDefault("EDGE_CONSOLE_HISTORY_LIMIT", 200),

		LogLevel:      logLevelOrDefault("EDGE_CONSOLE_LOG_LEVEL", "info"),
		LogFile:       stringOrDefault("EDGE_CONSOLE_LOG_FILE", filepath.Join(dataDir, "edge-console.log")),
		LogMaxSizeMB:  intOrDefault("EDGE_CONSOLE_LOG_MAX_SIZE_MB", 10),
		LogMaxBackups: intOrDefault("EDGE_CONSOLE_LOG_MAX_BACKUPS", 3),

		TLSSkipVerify: boolOrDefault("EDGE_CONSOLE_TLS_SKIP_VERIFY", false),
		TLSCAFile:     strings.TrimSpace(os.Getenv("EDGE_CONSOLE_TLS_CA_FILE")),
		TLSCertFile:   strings.TrimSpace(os.Getenv("EDGE_CONSOLE_TLS_CLIENT_CERT_FILE")),
		TLSKeyFile:    strings.TrimSpace(os.Getenv("EDGE_CONSOLE_TLS_CLIENT_KEY_FILE")),
		TLSServerName: strings.TrimSpace(os.Getenv("EDGE_CONSOLE_TLS_SERVER_NAME")),
	}
}

// BackendHostname is the host part of BaseURL, used to seed new Hosts.
func (c Config) BackendHostname() string {
	parsed, err := url.Parse(c.BaseURL)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "edge-console")
	}
	return filepath.Join(os.TempDir(), "edge-console")
}

func stringOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func intOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 1 {
		return fallback
	}
	return parsed
}

func boolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// durationOrDefault accepts Go durations ("1500ms") and bare integers, which
// are read as seconds.
func durationOrDefault(name string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 1 {
			return fallback
		}
		return time.Duration(seconds) * time.Second
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func logLevelOrDefault(name, fallback string) string {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	switch value {
	case "debug", "info", "warn", "error":
		return value
	default:
		return fallback
	}
}
