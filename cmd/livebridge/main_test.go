package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/voxhall/livebridge/pkg/gateway/config"
	gatewayserver "github.com/voxhall/livebridge/pkg/gateway/server"
	"github.com/voxhall/livebridge/pkg/gateway/upstream"
)

type stubConnector struct{}

func (stubConnector) Connect(context.Context) (upstream.Stream, error) {
	return nil, errors.New("no upstream in tests")
}

func testMainConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Addr:                  "127.0.0.1:0",
		StaticDir:             t.TempDir(),
		GenAIAPIKey:           "test-key",
		GenAIModel:            config.DefaultGenAIModel,
		LogLevel:              "info",
		LogFormat:             config.LogFormatText,
		LiveAudioPollInterval: 15 * time.Millisecond,
		LiveWSPingInterval:    50 * time.Millisecond,
		LiveWSWriteTimeout:    time.Second,
		ReadHeaderTimeout:     time.Second,
		ShutdownGracePeriod:   2 * time.Second,
	}
}

func noSignalDeps(cfg config.Config) gatewayDeps {
	return gatewayDeps{
		loadConfig: func() (config.Config, error) { return cfg, nil },
		newConnector: func(context.Context, config.Config, *slog.Logger) (upstream.Connector, error) {
			return stubConnector{}, nil
		},
		newGateway:   gatewayserver.New,
		signalNotify: func(chan<- os.Signal, ...os.Signal) {},
		signalStop:   func(chan<- os.Signal) {},
	}
}

func TestRunMain_ReturnsNonZeroWhenConfigLoadFails(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	exitCode := runMain(context.Background(), &stderr, gatewayDeps{
		loadConfig: func() (config.Config, error) {
			return config.Config{}, errors.New("boom")
		},
		newConnector: func(context.Context, config.Config, *slog.Logger) (upstream.Connector, error) {
			t.Fatalf("newConnector should not be called when config load fails")
			return nil, nil
		},
		newGateway: func(config.Config, *slog.Logger, upstream.Connector) (*gatewayserver.Server, error) {
			t.Fatalf("newGateway should not be called when config load fails")
			return nil, nil
		},
		signalNotify: func(chan<- os.Signal, ...os.Signal) {},
		signalStop:   func(chan<- os.Signal) {},
	})

	if exitCode != 1 {
		t.Fatalf("exitCode=%d, want 1", exitCode)
	}
	if got := stderr.String(); got == "" {
		t.Fatalf("expected stderr output for startup error")
	}
}

func TestRunGateway_ConnectorInitFailure(t *testing.T) {
	t.Parallel()

	deps := noSignalDeps(testMainConfig(t))
	deps.newConnector = func(context.Context, config.Config, *slog.Logger) (upstream.Connector, error) {
		return nil, errors.New("bad credentials")
	}

	err := runGateway(context.Background(), io.Discard, deps)
	if err == nil {
		t.Fatalf("expected error from connector init failure")
	}
	if got := err.Error(); got != "init upstream connector: bad credentials" {
		t.Fatalf("err=%q", got)
	}
}

func TestRunGateway_ShutdownOnSignal(t *testing.T) {
	t.Parallel()

	deps := noSignalDeps(testMainConfig(t))
	deps.signalNotify = func(c chan<- os.Signal, _ ...os.Signal) {
		go func() { c <- os.Interrupt }()
	}

	done := make(chan error, 1)
	go func() {
		done <- runGateway(context.Background(), io.Discard, deps)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runGateway: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("runGateway did not shut down after signal")
	}
}

func TestRunGateway_ParentContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	deps := noSignalDeps(testMainConfig(t))
	deps.signalNotify = func(chan<- os.Signal, ...os.Signal) { cancel() }

	done := make(chan error, 1)
	go func() {
		done <- runGateway(ctx, io.Discard, deps)
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err=%v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("runGateway did not return after context cancel")
	}
}

func TestBuildHTTPServer_UsesConfiguredAddress(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Addr:              "127.0.0.1:9999",
		ReadHeaderTimeout: 2 * time.Second,
	}

	srv := buildHTTPServer(cfg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	if srv.Addr != cfg.Addr {
		t.Fatalf("Addr=%q, want %q", srv.Addr, cfg.Addr)
	}
	if srv.ReadHeaderTimeout != cfg.ReadHeaderTimeout {
		t.Fatalf("ReadHeaderTimeout=%v, want %v", srv.ReadHeaderTimeout, cfg.ReadHeaderTimeout)
	}
	if srv.ReadTimeout != 0 {
		t.Fatalf("ReadTimeout=%v, want 0 so live connections are not cut off", srv.ReadTimeout)
	}
}

func TestBuildLogger_FormatAndLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := buildLogger(&buf, config.Config{LogLevel: "debug", LogFormat: config.LogFormatJSON})
	logger.Debug("probe", "k", "v")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if record["msg"] != "probe" || record["k"] != "v" {
		t.Fatalf("unexpected record: %v", record)
	}

	buf.Reset()
	logger = buildLogger(&buf, config.Config{LogLevel: "warn", LogFormat: config.LogFormatText})
	logger.Info("suppressed")
	if buf.Len() != 0 {
		t.Fatalf("info should be suppressed at warn level: %q", buf.String())
	}
	logger.Warn("kept")
	if buf.Len() == 0 {
		t.Fatalf("warn line missing")
	}
}

func TestGatewayHandlerStack_Smoke(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw, err := gatewayserver.New(testMainConfig(t), logger, stubConnector{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ts := httptest.NewServer(gw.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d, want %d", resp.StatusCode, http.StatusOK)
	}
}
