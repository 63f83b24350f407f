// Package config loads environment variables and provides a typed Config used across the
// supervisor and the capture worker. It applies sensible defaults so the binaries can run
// locally with only an API key set. Use Validate before building the request executor.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Marker strategies.
const (
	MarkerStrategyPID   = "pid"
	MarkerStrategyMtime = "mtime"
)

type Config struct {
	// YouTube credentials and executor knobs
	YouTubeKeys       []string
	RetryDelay        time.Duration
	MaxQuotaRotations int
	MaxServerRetries  int
	RequestTimeout    time.Duration
	RequestsPerSecond float64

	// OAuth client, only needed for "oauth:" pool entries
	YTClientID     string
	YTClientSecret string

	// Storage
	DataDir string

	// Capture markers
	MarkerDir        string
	MarkerStrategy   string
	MarkerStaleAfter time.Duration

	// Supervisor
	ChannelsFile     string
	PeakStartHour    int
	PeakEndHour      int
	ShortInterval    time.Duration
	LongInterval     time.Duration
	CheckConcurrency int
	CaptureBinary    string
	StatusTable      bool
	HTTPAddr         string

	// Worker
	ChatPollInterval time.Duration

	// Database (optional sink)
	DBDsn string
}

// Load reads environment variables and applies defaults. It doesn't fail when credentials are
// missing; call Validate when the executor is required. Malformed durations and numbers are errors.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.YouTubeKeys = splitList(os.Getenv("YOUTUBE_API_KEYS"))
	if len(cfg.YouTubeKeys) == 0 {
		if k := strings.TrimSpace(os.Getenv("YOUTUBE_API_KEY")); k != "" {
			cfg.YouTubeKeys = []string{k}
		}
	}

	var err error
	if cfg.RetryDelay, err = envDuration("YT_RETRY_DELAY", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.MaxQuotaRotations, err = envInt("YT_MAX_QUOTA_ROTATIONS", 0); err != nil {
		return nil, err
	}
	if cfg.MaxServerRetries, err = envInt("YT_MAX_SERVER_RETRIES", 0); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = envDuration("YT_REQUEST_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if v := os.Getenv("YT_REQUESTS_PER_SECOND"); v != "" {
		f, perr := strconv.ParseFloat(v, 64)
		if perr != nil || f < 0 {
			return nil, fmt.Errorf("invalid YT_REQUESTS_PER_SECOND %q", v)
		}
		cfg.RequestsPerSecond = f
	}
	cfg.YTClientID = os.Getenv("YT_CLIENT_ID")
	cfg.YTClientSecret = os.Getenv("YT_CLIENT_SECRET")

	// Storage
	cfg.DataDir = os.Getenv("DATA_DIR")
	if cfg.DataDir == "" {
		cfg.DataDir = "dados"
	}

	// Markers
	cfg.MarkerDir = os.Getenv("MARKER_DIR")
	if cfg.MarkerDir == "" {
		cfg.MarkerDir = filepath.Join(cfg.DataDir, "chats")
	}
	cfg.MarkerStrategy = strings.ToLower(os.Getenv("MARKER_STRATEGY"))
	switch cfg.MarkerStrategy {
	case "":
		cfg.MarkerStrategy = MarkerStrategyPID
	case MarkerStrategyPID, MarkerStrategyMtime:
	default:
		return nil, fmt.Errorf("invalid MARKER_STRATEGY %q (want pid or mtime)", cfg.MarkerStrategy)
	}
	if cfg.MarkerStaleAfter, err = envDuration("MARKER_STALE_AFTER", 20*time.Minute); err != nil {
		return nil, err
	}

	// Supervisor
	cfg.ChannelsFile = os.Getenv("CHANNELS_FILE")
	if cfg.ChannelsFile == "" {
		cfg.ChannelsFile = "canais.txt"
	}
	if cfg.PeakStartHour, err = envHour("PEAK_START_HOUR", 21); err != nil {
		return nil, err
	}
	if cfg.PeakEndHour, err = envHour("PEAK_END_HOUR", 0); err != nil {
		return nil, err
	}
	if cfg.ShortInterval, err = envDuration("POLL_INTERVAL_SHORT", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.LongInterval, err = envDuration("POLL_INTERVAL_LONG", time.Hour); err != nil {
		return nil, err
	}
	if cfg.CheckConcurrency, err = envInt("CHANNEL_CHECK_CONCURRENCY", 1); err != nil {
		return nil, err
	}
	if cfg.CheckConcurrency <= 0 {
		cfg.CheckConcurrency = 1
	}
	cfg.CaptureBinary = os.Getenv("CAPTURE_BIN")
	if cfg.CaptureBinary == "" {
		cfg.CaptureBinary = "ytchat-capture"
	}
	cfg.StatusTable = os.Getenv("STATUS_TABLE") != "0"
	addr, ok := os.LookupEnv("HTTP_ADDR")
	if !ok {
		addr = ":8080"
	}
	cfg.HTTPAddr = addr

	// Worker
	if cfg.ChatPollInterval, err = envDuration("CHAT_POLL_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}

	// DB
	cfg.DBDsn = os.Getenv("DB_DSN")

	return cfg, nil
}

// Validate checks the fields the request executor cannot run without.
func (c *Config) Validate() error {
	if len(c.YouTubeKeys) == 0 {
		return fmt.Errorf("missing youtube credentials: set YOUTUBE_API_KEYS or YOUTUBE_API_KEY")
	}
	for _, k := range c.YouTubeKeys {
		if strings.HasPrefix(k, "oauth:") && (c.YTClientID == "" || c.YTClientSecret == "") {
			return fmt.Errorf("oauth credential in pool requires YT_CLIENT_ID and YT_CLIENT_SECRET")
		}
	}
	return nil
}

// splitList accepts comma or whitespace separated values.
func splitList(s string) []string {
	return strings.Fields(strings.ReplaceAll(s, ",", " "))
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s %q: want a duration like 30s", key, v)
	}
	return d, nil
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func envHour(key string, def int) (int, error) {
	h, err := envInt(key, def)
	if err != nil {
		return 0, err
	}
	if h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid %s %d: want 0-23", key, h)
	}
	return h, nil
}
