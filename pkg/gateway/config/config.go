package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Config struct {
	Addr string

	// Directory the browser client is served from ("/" and "/static/").
	StaticDir string

	// Upstream GenAI live credentials and session shape.
	GenAIAPIKey             string
	GenAIModel              string
	GenAIAPIVersion         string
	GenAIInputTranscription bool

	LogLevel  string
	LogFormat LogFormat

	// Optional allowlist of WebSocket upgrade origins (empty => allow all).
	WSAllowedOrigins map[string]struct{}

	// Live WebSocket mode (/ws).
	LiveMaxMessageBytes   int64
	LiveAudioPollInterval time.Duration
	LiveEventBuffer       int
	LiveWSPingInterval    time.Duration
	LiveWSWriteTimeout    time.Duration
	LiveWSReadTimeout     time.Duration

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

// DefaultGenAIModel is the native audio dialog model the relay targets when
// LIVEBRIDGE_GENAI_MODEL is not set.
const DefaultGenAIModel = "models/gemini-2.5-flash-preview-native-audio-dialog"

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                    envOr("LIVEBRIDGE_ADDR", ":8765"),
		StaticDir:               envOr("LIVEBRIDGE_STATIC_DIR", "./static"),
		GenAIAPIKey:             strings.TrimSpace(os.Getenv("GOOGLE_GENAI_API_KEY")),
		GenAIModel:              envOr("LIVEBRIDGE_GENAI_MODEL", DefaultGenAIModel),
		GenAIAPIVersion:         envOr("LIVEBRIDGE_GENAI_API_VERSION", "v1beta"),
		GenAIInputTranscription: envBoolOr("LIVEBRIDGE_GENAI_INPUT_TRANSCRIPTION", true),
		LogLevel:                strings.ToLower(envOr("LIVEBRIDGE_LOG_LEVEL", "info")),
		LogFormat:               LogFormat(strings.ToLower(envOr("LIVEBRIDGE_LOG_FORMAT", string(LogFormatText)))),
		WSAllowedOrigins:        make(map[string]struct{}),
		LiveMaxMessageBytes:     envInt64Or("LIVEBRIDGE_LIVE_MAX_MESSAGE_BYTES", 1<<20), // 1 MiB
		LiveAudioPollInterval:   envDurationOr("LIVEBRIDGE_LIVE_AUDIO_POLL_INTERVAL", time.Second),
		LiveEventBuffer:         envIntOr("LIVEBRIDGE_LIVE_EVENT_BUFFER", 64),
		LiveWSPingInterval:      envDurationOr("LIVEBRIDGE_LIVE_WS_PING_INTERVAL", 20*time.Second),
		LiveWSWriteTimeout:      envDurationOr("LIVEBRIDGE_LIVE_WS_WRITE_TIMEOUT", 5*time.Second),
		LiveWSReadTimeout:       envDurationOr("LIVEBRIDGE_LIVE_WS_READ_TIMEOUT", 0),
		ReadHeaderTimeout:       envDurationOr("LIVEBRIDGE_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod:     envDurationOr("LIVEBRIDGE_SHUTDOWN_GRACE_PERIOD", 15*time.Second),
	}

	for _, origin := range splitCSV(os.Getenv("LIVEBRIDGE_WS_ALLOWED_ORIGINS")) {
		cfg.WSAllowedOrigins[strings.ToLower(origin)] = struct{}{}
	}

	if cfg.GenAIAPIKey == "" {
		return Config{}, fmt.Errorf("GOOGLE_GENAI_API_KEY must be set")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return Config{}, fmt.Errorf("LIVEBRIDGE_ADDR must not be empty")
	}
	if strings.TrimSpace(cfg.StaticDir) == "" {
		return Config{}, fmt.Errorf("LIVEBRIDGE_STATIC_DIR must not be empty")
	}
	if strings.TrimSpace(cfg.GenAIModel) == "" {
		return Config{}, fmt.Errorf("LIVEBRIDGE_GENAI_MODEL must not be empty")
	}
	if strings.TrimSpace(cfg.GenAIAPIVersion) == "" {
		return Config{}, fmt.Errorf("LIVEBRIDGE_GENAI_API_VERSION must not be empty")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return Config{}, fmt.Errorf("LIVEBRIDGE_LOG_LEVEL must be one of debug|info|warn|error")
	}
	switch cfg.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		return Config{}, fmt.Errorf("LIVEBRIDGE_LOG_FORMAT must be one of text|json")
	}
	if cfg.LiveMaxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("LIVEBRIDGE_LIVE_MAX_MESSAGE_BYTES must be > 0")
	}
	if cfg.LiveAudioPollInterval <= 0 {
		return Config{}, fmt.Errorf("LIVEBRIDGE_LIVE_AUDIO_POLL_INTERVAL must be > 0")
	}
	if cfg.LiveEventBuffer <= 0 {
		return Config{}, fmt.Errorf("LIVEBRIDGE_LIVE_EVENT_BUFFER must be > 0")
	}
	if cfg.LiveWSPingInterval <= 0 {
		return Config{}, fmt.Errorf("LIVEBRIDGE_LIVE_WS_PING_INTERVAL must be > 0")
	}
	if cfg.LiveWSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("LIVEBRIDGE_LIVE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.LiveWSReadTimeout < 0 {
		return Config{}, fmt.Errorf("LIVEBRIDGE_LIVE_WS_READ_TIMEOUT must be >= 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("LIVEBRIDGE_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("LIVEBRIDGE_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

// OriginAllowed reports whether a WebSocket upgrade from origin is accepted.
// An empty allowlist accepts every origin, including non-browser clients that
// send no Origin header at all.
func (c Config) OriginAllowed(origin string) bool {
	if len(c.WSAllowedOrigins) == 0 {
		return true
	}
	if origin == "" {
		return false
	}
	_, ok := c.WSAllowedOrigins[strings.ToLower(strings.TrimSpace(origin))]
	return ok
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
