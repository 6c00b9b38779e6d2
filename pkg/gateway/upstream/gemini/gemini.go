// Package gemini implements the upstream live contract on the Gemini Live
// API via the google.golang.org/genai SDK.
//
// The SDK's Session.Receive blocks on the underlying connection with no
// context support, so each connected stream runs a reader goroutine that
// decomposes server messages into relay events on a buffered channel.
// Receive then selects between that channel and the caller's context.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/voxhall/livebridge/pkg/gateway/upstream"
)

// DefaultModel is the native audio dialog model dialed when Config.Model is
// empty.
const DefaultModel = "models/gemini-2.5-flash-preview-native-audio-dialog"

const audioPCMMimeType = "audio/pcm"

type Config struct {
	APIKey string
	Model  string

	// APIVersion defaults to v1beta; the live API is not served on v1.
	APIVersion string

	// InputTranscription asks the upstream to transcribe caller audio so the
	// relay can surface user transcript frames alongside model output.
	InputTranscription bool

	// EventBuffer caps how many decoded events may sit between the reader
	// goroutine and Receive before the reader blocks.
	EventBuffer int
}

type Connector struct {
	client *genai.Client
	cfg    Config
	logger *slog.Logger
}

func NewConnector(ctx context.Context, cfg Config, logger *slog.Logger) (*Connector, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini: api key is not configured")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v1beta"
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			APIVersion: cfg.APIVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Connector{client: client, cfg: cfg, logger: logger}, nil
}

// Model returns the fully qualified model this connector dials.
func (c *Connector) Model() string { return c.cfg.Model }

func (c *Connector) Connect(ctx context.Context) (upstream.Stream, error) {
	live, err := c.client.Live.Connect(ctx, c.cfg.Model, c.liveConfig())
	if err != nil {
		return nil, fmt.Errorf("connect live session: %w", err)
	}

	s := &stream{
		session: live,
		logger:  c.logger,
		events:  make(chan upstream.Event, c.cfg.EventBuffer),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.readLoop()

	// Closing the session is the only way to unblock the SDK's internal
	// reader, so cancellation has to translate into a close.
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()

	return s, nil
}

func (c *Connector) liveConfig() *genai.LiveConnectConfig {
	lc := &genai.LiveConnectConfig{
		ResponseModalities:       []genai.Modality{genai.ModalityAudio},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if c.cfg.InputTranscription {
		lc.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	return lc
}

type stream struct {
	session *genai.Session
	logger  *slog.Logger

	events  chan upstream.Event
	closing chan struct{}
	done    chan struct{}

	errMu   sync.Mutex
	readErr error

	closeOnce sync.Once
	closeErr  error
}

func (s *stream) Send(ctx context.Context, chunk []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-s.closing:
		return net.ErrClosed
	default:
	}

	input := genai.LiveRealtimeInput{
		Media: &genai.Blob{Data: chunk, MIMEType: audioPCMMimeType},
	}
	if err := s.session.SendRealtimeInput(input); err != nil {
		return fmt.Errorf("send realtime audio: %w", err)
	}
	return nil
}

func (s *stream) Receive(ctx context.Context) (upstream.Event, error) {
	select {
	case ev, ok := <-s.events:
		if !ok {
			if err := s.firstErr(); err != nil {
				return upstream.Event{}, err
			}
			return upstream.Event{}, io.EOF
		}
		return ev, nil
	case <-ctx.Done():
		return upstream.Event{}, ctx.Err()
	}
}

// Close tears down the live session and waits for the reader goroutine to
// exit. Safe to call multiple times and from multiple goroutines.
func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
		s.closeErr = s.session.Close()
	})
	<-s.done
	return s.closeErr
}

func (s *stream) readLoop() {
	defer close(s.done)
	defer close(s.events)
	for {
		msg, err := s.session.Receive()
		if err != nil {
			if !isStreamEnd(err) && !s.isClosing() {
				s.setErr(fmt.Errorf("receive live message: %w", err))
			}
			return
		}
		if msg == nil {
			continue
		}
		if msg.SetupComplete != nil {
			s.logger.Debug("live session setup complete")
		}
		if msg.GoAway != nil {
			s.logger.Warn("upstream requested connection handoff")
		}
		for _, ev := range decomposeServerMessage(msg) {
			select {
			case s.events <- ev:
			case <-s.closing:
				return
			}
		}
	}
}

func (s *stream) isClosing() bool {
	select {
	case <-s.closing:
		return true
	default:
		return false
	}
}

func (s *stream) setErr(err error) {
	s.errMu.Lock()
	if s.readErr == nil {
		s.readErr = err
	}
	s.errMu.Unlock()
}

func (s *stream) firstErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.readErr
}

// decomposeServerMessage flattens one live server message into relay events,
// preserving the upstream ordering: audio parts first, then the model
// transcript fragment, then the user transcript fragment.
func decomposeServerMessage(msg *genai.LiveServerMessage) []upstream.Event {
	if msg == nil || msg.ServerContent == nil {
		return nil
	}
	sc := msg.ServerContent

	var out []upstream.Event
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			out = append(out, upstream.Event{Kind: upstream.EventAudio, Audio: part.InlineData.Data})
		}
	}
	if t := sc.OutputTranscription; t != nil && t.Text != "" {
		out = append(out, upstream.Event{Kind: upstream.EventModelTranscript, Text: t.Text})
	}
	if t := sc.InputTranscription; t != nil && t.Text != "" {
		out = append(out, upstream.Event{Kind: upstream.EventUserTranscript, Text: t.Text, Final: t.Finished})
	}
	return out
}

// isStreamEnd reports whether err marks normal exhaustion of the upstream
// stream rather than a failure.
func isStreamEnd(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived:
			return true
		}
	}
	return false
}
