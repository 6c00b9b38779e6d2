package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/voxhall/livebridge/pkg/gateway/config"
	"github.com/voxhall/livebridge/pkg/gateway/lifecycle"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.Lifecycle
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK       bool     `json:"ok"`
		Draining bool     `json:"draining"`
		Model    string   `json:"model"`
		Issues   []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	if strings.TrimSpace(h.Config.GenAIAPIKey) == "" {
		issues = append(issues, "genai api key is not configured")
	}
	if strings.TrimSpace(h.Config.GenAIModel) == "" {
		issues = append(issues, "genai model is not configured")
	}
	if h.Config.LiveAudioPollInterval <= 0 {
		issues = append(issues, "audio poll interval must be > 0")
	}
	if h.Config.LiveWSPingInterval <= 0 {
		issues = append(issues, "ws ping interval must be > 0")
	}
	if h.Config.LiveWSWriteTimeout <= 0 {
		issues = append(issues, "ws write timeout must be > 0")
	}
	if h.Config.ReadHeaderTimeout <= 0 {
		issues = append(issues, "read header timeout must be > 0")
	}
	if h.Config.ShutdownGracePeriod <= 0 {
		issues = append(issues, "shutdown grace period must be > 0")
	}

	draining := h.Lifecycle.IsDraining()
	ok := len(issues) == 0 && !draining
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:       ok,
		Draining: draining,
		Model:    h.Config.GenAIModel,
		Issues:   issues,
	})
}
