package config

import (
	"strings"
	"testing"
	"time"
)

var gatewayEnvKeys = []string{
	"LIVEBRIDGE_ADDR",
	"LIVEBRIDGE_STATIC_DIR",
	"GOOGLE_GENAI_API_KEY",
	"LIVEBRIDGE_GENAI_MODEL",
	"LIVEBRIDGE_GENAI_API_VERSION",
	"LIVEBRIDGE_GENAI_INPUT_TRANSCRIPTION",
	"LIVEBRIDGE_LOG_LEVEL",
	"LIVEBRIDGE_LOG_FORMAT",
	"LIVEBRIDGE_WS_ALLOWED_ORIGINS",
	"LIVEBRIDGE_LIVE_MAX_MESSAGE_BYTES",
	"LIVEBRIDGE_LIVE_AUDIO_POLL_INTERVAL",
	"LIVEBRIDGE_LIVE_EVENT_BUFFER",
	"LIVEBRIDGE_LIVE_WS_PING_INTERVAL",
	"LIVEBRIDGE_LIVE_WS_WRITE_TIMEOUT",
	"LIVEBRIDGE_LIVE_WS_READ_TIMEOUT",
	"LIVEBRIDGE_READ_HEADER_TIMEOUT",
	"LIVEBRIDGE_SHUTDOWN_GRACE_PERIOD",
}

func clearGatewayEnv(t *testing.T) {
	t.Helper()
	for _, key := range gatewayEnvKeys {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("GOOGLE_GENAI_API_KEY", "test-key")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Addr != ":8765" {
		t.Fatalf("Addr = %q, want :8765", cfg.Addr)
	}
	if cfg.StaticDir != "./static" {
		t.Fatalf("StaticDir = %q, want ./static", cfg.StaticDir)
	}
	if cfg.GenAIAPIKey != "test-key" {
		t.Fatalf("GenAIAPIKey = %q, want test-key", cfg.GenAIAPIKey)
	}
	if cfg.GenAIModel != DefaultGenAIModel {
		t.Fatalf("GenAIModel = %q, want %q", cfg.GenAIModel, DefaultGenAIModel)
	}
	if cfg.GenAIAPIVersion != "v1beta" {
		t.Fatalf("GenAIAPIVersion = %q, want v1beta", cfg.GenAIAPIVersion)
	}
	if !cfg.GenAIInputTranscription {
		t.Fatalf("GenAIInputTranscription = false, want true")
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.LogFormat != LogFormatText {
		t.Fatalf("LogFormat = %q, want %q", cfg.LogFormat, LogFormatText)
	}
	if len(cfg.WSAllowedOrigins) != 0 {
		t.Fatalf("WSAllowedOrigins len=%d, want 0", len(cfg.WSAllowedOrigins))
	}
	if cfg.LiveMaxMessageBytes != 1<<20 {
		t.Fatalf("LiveMaxMessageBytes = %d, want %d", cfg.LiveMaxMessageBytes, int64(1<<20))
	}
	if cfg.LiveAudioPollInterval != time.Second {
		t.Fatalf("LiveAudioPollInterval = %v, want 1s", cfg.LiveAudioPollInterval)
	}
	if cfg.LiveEventBuffer != 64 {
		t.Fatalf("LiveEventBuffer = %d, want 64", cfg.LiveEventBuffer)
	}
	if cfg.LiveWSPingInterval != 20*time.Second {
		t.Fatalf("LiveWSPingInterval = %v, want 20s", cfg.LiveWSPingInterval)
	}
	if cfg.LiveWSWriteTimeout != 5*time.Second {
		t.Fatalf("LiveWSWriteTimeout = %v, want 5s", cfg.LiveWSWriteTimeout)
	}
	if cfg.LiveWSReadTimeout != 0 {
		t.Fatalf("LiveWSReadTimeout = %v, want 0", cfg.LiveWSReadTimeout)
	}
	if cfg.ReadHeaderTimeout != 10*time.Second {
		t.Fatalf("ReadHeaderTimeout = %v, want 10s", cfg.ReadHeaderTimeout)
	}
	if cfg.ShutdownGracePeriod != 15*time.Second {
		t.Fatalf("ShutdownGracePeriod = %v, want 15s", cfg.ShutdownGracePeriod)
	}
}

func TestLoadFromEnv_UsesEnvOverrides(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("GOOGLE_GENAI_API_KEY", "override-key")
	t.Setenv("LIVEBRIDGE_ADDR", ":9090")
	t.Setenv("LIVEBRIDGE_STATIC_DIR", "/srv/livebridge/static")
	t.Setenv("LIVEBRIDGE_GENAI_MODEL", "models/gemini-exp-audio")
	t.Setenv("LIVEBRIDGE_GENAI_API_VERSION", "v1alpha")
	t.Setenv("LIVEBRIDGE_GENAI_INPUT_TRANSCRIPTION", "false")
	t.Setenv("LIVEBRIDGE_LOG_LEVEL", "DEBUG")
	t.Setenv("LIVEBRIDGE_LOG_FORMAT", "json")
	t.Setenv("LIVEBRIDGE_WS_ALLOWED_ORIGINS", "https://a.example, https://B.example,,")
	t.Setenv("LIVEBRIDGE_LIVE_MAX_MESSAGE_BYTES", "65536")
	t.Setenv("LIVEBRIDGE_LIVE_AUDIO_POLL_INTERVAL", "250ms")
	t.Setenv("LIVEBRIDGE_LIVE_EVENT_BUFFER", "16")
	t.Setenv("LIVEBRIDGE_LIVE_WS_PING_INTERVAL", "9s")
	t.Setenv("LIVEBRIDGE_LIVE_WS_WRITE_TIMEOUT", "3s")
	t.Setenv("LIVEBRIDGE_LIVE_WS_READ_TIMEOUT", "45s")
	t.Setenv("LIVEBRIDGE_READ_HEADER_TIMEOUT", "12s")
	t.Setenv("LIVEBRIDGE_SHUTDOWN_GRACE_PERIOD", "31s")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Addr != ":9090" || cfg.StaticDir != "/srv/livebridge/static" {
		t.Fatalf("Addr/StaticDir = %q/%q", cfg.Addr, cfg.StaticDir)
	}
	if cfg.GenAIAPIKey != "override-key" || cfg.GenAIModel != "models/gemini-exp-audio" || cfg.GenAIAPIVersion != "v1alpha" {
		t.Fatalf("GenAI settings mismatch: %q/%q/%q", cfg.GenAIAPIKey, cfg.GenAIModel, cfg.GenAIAPIVersion)
	}
	if cfg.GenAIInputTranscription {
		t.Fatalf("GenAIInputTranscription = true, want false")
	}
	if cfg.LogLevel != "debug" || cfg.LogFormat != LogFormatJSON {
		t.Fatalf("log settings mismatch: %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
	if len(cfg.WSAllowedOrigins) != 2 {
		t.Fatalf("WSAllowedOrigins len=%d, want 2", len(cfg.WSAllowedOrigins))
	}
	if _, ok := cfg.WSAllowedOrigins["https://b.example"]; !ok {
		t.Fatalf("expected lowercased origin https://b.example, got %v", cfg.WSAllowedOrigins)
	}
	if cfg.LiveMaxMessageBytes != 65536 {
		t.Fatalf("LiveMaxMessageBytes = %d, want 65536", cfg.LiveMaxMessageBytes)
	}
	if cfg.LiveAudioPollInterval != 250*time.Millisecond || cfg.LiveEventBuffer != 16 {
		t.Fatalf("live tuning mismatch: %v/%d", cfg.LiveAudioPollInterval, cfg.LiveEventBuffer)
	}
	if cfg.LiveWSPingInterval != 9*time.Second || cfg.LiveWSWriteTimeout != 3*time.Second || cfg.LiveWSReadTimeout != 45*time.Second {
		t.Fatalf("live ws timeout mismatch: %v/%v/%v", cfg.LiveWSPingInterval, cfg.LiveWSWriteTimeout, cfg.LiveWSReadTimeout)
	}
	if cfg.ReadHeaderTimeout != 12*time.Second || cfg.ShutdownGracePeriod != 31*time.Second {
		t.Fatalf("server timeouts mismatch: %v/%v", cfg.ReadHeaderTimeout, cfg.ShutdownGracePeriod)
	}
}

func TestLoadFromEnv_RequiresAPIKey(t *testing.T) {
	clearGatewayEnv(t)

	_, err := LoadFromEnv()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "GOOGLE_GENAI_API_KEY") {
		t.Fatalf("error = %v, expected GOOGLE_GENAI_API_KEY in message", err)
	}
}

func TestLoadFromEnv_InvalidValues(t *testing.T) {
	cases := []struct {
		name      string
		env       map[string]string
		errSubstr string
	}{
		{
			name:      "invalid log level",
			env:       map[string]string{"LIVEBRIDGE_LOG_LEVEL": "loud"},
			errSubstr: "LIVEBRIDGE_LOG_LEVEL",
		},
		{
			name:      "invalid log format",
			env:       map[string]string{"LIVEBRIDGE_LOG_FORMAT": "xml"},
			errSubstr: "LIVEBRIDGE_LOG_FORMAT",
		},
		{
			name:      "invalid max message bytes",
			env:       map[string]string{"LIVEBRIDGE_LIVE_MAX_MESSAGE_BYTES": "0"},
			errSubstr: "LIVEBRIDGE_LIVE_MAX_MESSAGE_BYTES",
		},
		{
			name:      "invalid audio poll interval",
			env:       map[string]string{"LIVEBRIDGE_LIVE_AUDIO_POLL_INTERVAL": "0s"},
			errSubstr: "LIVEBRIDGE_LIVE_AUDIO_POLL_INTERVAL",
		},
		{
			name:      "invalid event buffer",
			env:       map[string]string{"LIVEBRIDGE_LIVE_EVENT_BUFFER": "-1"},
			errSubstr: "LIVEBRIDGE_LIVE_EVENT_BUFFER",
		},
		{
			name:      "invalid ws read timeout",
			env:       map[string]string{"LIVEBRIDGE_LIVE_WS_READ_TIMEOUT": "-1s"},
			errSubstr: "LIVEBRIDGE_LIVE_WS_READ_TIMEOUT",
		},
		{
			name:      "invalid shutdown grace period",
			env:       map[string]string{"LIVEBRIDGE_SHUTDOWN_GRACE_PERIOD": "0s"},
			errSubstr: "LIVEBRIDGE_SHUTDOWN_GRACE_PERIOD",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearGatewayEnv(t)
			t.Setenv("GOOGLE_GENAI_API_KEY", "test-key")
			for key, value := range tc.env {
				t.Setenv(key, value)
			}
			_, err := LoadFromEnv()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.errSubstr) {
				t.Fatalf("error = %v, expected substring %q", err, tc.errSubstr)
			}
		})
	}
}

func TestOriginAllowed(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("GOOGLE_GENAI_API_KEY", "test-key")

	open, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if !open.OriginAllowed("https://anywhere.example") || !open.OriginAllowed("") {
		t.Fatalf("empty allowlist should accept every origin")
	}

	t.Setenv("LIVEBRIDGE_WS_ALLOWED_ORIGINS", "https://app.example")
	restricted, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if !restricted.OriginAllowed("https://APP.example") {
		t.Fatalf("allowlisted origin rejected")
	}
	if restricted.OriginAllowed("https://evil.example") {
		t.Fatalf("non-allowlisted origin accepted")
	}
	if restricted.OriginAllowed("") {
		t.Fatalf("missing origin accepted with allowlist set")
	}
}
