// Package session owns the gateway's single live relay session: the audio
// buffer between client and upstream, the two relay pumps, and the
// coordinator that drives the lifecycle state machine.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/voxhall/livebridge/pkg/gateway/live/protocol"
	"github.com/voxhall/livebridge/pkg/gateway/metrics"
	"github.com/voxhall/livebridge/pkg/gateway/upstream"
)

// State is the coordinator's lifecycle position. Transitions run
// Idle -> Starting -> Active -> Stopping -> Idle; failed starts fall back
// to Idle directly.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateActive
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// StartOutcome reports what Start did.
type StartOutcome int

const (
	// StartBegun means a fresh session was created and its lifecycle
	// goroutine launched.
	StartBegun StartOutcome = iota
	// StartAlreadyActive means a session already existed; nothing changed.
	StartAlreadyActive
)

// Transport is the client-facing side of a live session. The connection
// gateway implements it on the WebSocket; the coordinator and pumps route
// every outbound frame through it and never touch the connection directly.
//
// Implementations must serialize concurrent writers. Transports are
// compared by identity in BoundTo.
type Transport interface {
	SendJSON(v any) error
	SendBinary(data []byte) error
	Connected() bool
}

type Config struct {
	// PollInterval bounds how long the sender pump waits on an empty
	// buffer before re-checking session state.
	PollInterval time.Duration
}

type Dependencies struct {
	Connector upstream.Connector
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	ModelName string
	Config    Config
}

// Coordinator drives the single live relay session. It is the only writer
// of session state: the gateway calls Start/Stop/EnqueueAudio, the lifecycle
// goroutine runs the pumps, and every exit path converges through finish so
// the state machine always lands on Idle with cleared fields and at most one
// terminal status frame on the client transport.
type Coordinator struct {
	connector upstream.Connector
	logger    *slog.Logger
	metrics   *metrics.Metrics
	modelName string
	cfg       Config

	mu      sync.Mutex
	current *liveSession

	active atomic.Bool
	state  atomic.Int32
}

func New(deps Dependencies) (*Coordinator, error) {
	if deps.Connector == nil {
		return nil, fmt.Errorf("connector is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New("")
	}
	if deps.ModelName == "" {
		deps.ModelName = "unknown"
	}
	if deps.Config.PollInterval <= 0 {
		deps.Config.PollInterval = time.Second
	}
	return &Coordinator{
		connector: deps.Connector,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		modelName: deps.ModelName,
		cfg:       deps.Config,
	}, nil
}

// Session outcomes recorded in metrics.
const (
	outcomeStopped = "stopped"
	outcomeFailed  = "failed"
)

// liveSession bundles all per-session resources so a stale stop can never
// touch a successor session's state.
type liveSession struct {
	id        string
	transport Transport
	buffer    *Buffer
	cancel    context.CancelFunc
	done      chan struct{}
	logger    *slog.Logger
	started   time.Time

	stopMu     sync.Mutex
	stopSet    bool
	stopNotify bool

	finishOnce sync.Once
}

// requestStop records an explicit stop request. The first caller fixes the
// notify decision; later callers cannot widen it.
func (s *liveSession) requestStop(notify bool) {
	s.stopMu.Lock()
	if !s.stopSet {
		s.stopSet = true
		s.stopNotify = notify
	}
	s.stopMu.Unlock()
}

func (s *liveSession) stopIntent() (notify, explicit bool) {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()
	return s.stopNotify, s.stopSet
}

// send writes a frame to the client transport, best-effort. Delivery
// failures are logged and swallowed; the read loop owns disconnect handling.
func (s *liveSession) send(frame any) {
	if !s.transport.Connected() {
		return
	}
	if err := s.transport.SendJSON(frame); err != nil {
		s.logger.Debug("status frame not delivered", "error", err)
	}
}

// Start begins a new live session bound to transport and returns
// immediately. Audio is accepted from this point on; the upstream connection
// continues asynchronously and its failure is reported on the transport. The
// session context derives from ctx, so a caller whose context dies (client
// disconnect) tears the session down even without an explicit stop.
func (c *Coordinator) Start(ctx context.Context, transport Transport) StartOutcome {
	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		return StartAlreadyActive
	}

	id := uuid.NewString()
	sctx, cancel := context.WithCancel(ctx)
	s := &liveSession{
		id:        id,
		transport: transport,
		buffer:    NewBuffer(),
		cancel:    cancel,
		done:      make(chan struct{}),
		logger:    c.logger.With("session_id", id),
		started:   time.Now(),
	}
	c.current = s
	c.active.Store(true)
	c.state.Store(int32(StateStarting))
	c.mu.Unlock()

	go c.runLifecycle(sctx, s)
	return StartBegun
}

// Stop ends the running session: inactive first, end marker on the buffer,
// lifecycle cancelled and awaited. Safe to call with no session and safe to
// call twice. ctx bounds only the wait; teardown itself always completes.
func (c *Coordinator) Stop(ctx context.Context, notifyClient bool) error {
	c.mu.Lock()
	s := c.current
	if s == nil {
		c.mu.Unlock()
		return nil
	}
	s.requestStop(notifyClient)
	c.active.Store(false)
	c.state.Store(int32(StateStopping))
	c.mu.Unlock()

	s.buffer.PutEnd()
	s.cancel()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnqueueAudio hands one client audio chunk to the running session. A false
// return means no session is accepting audio; the caller decides how to
// report that.
func (c *Coordinator) EnqueueAudio(chunk []byte) bool {
	if !c.active.Load() {
		return false
	}
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s == nil {
		return false
	}
	return s.buffer.Put(chunk) == nil
}

func (c *Coordinator) Active() bool {
	return c.active.Load()
}

func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// BoundTo reports whether the running session, if any, is bound to exactly
// this transport.
func (c *Coordinator) BoundTo(transport Transport) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil && c.current.transport == transport
}

// runLifecycle is the session's owning goroutine: connect upstream, announce
// readiness, run both pumps to first completion, tear the sibling down, close
// the stream, and converge through finish.
func (c *Coordinator) runLifecycle(ctx context.Context, s *liveSession) {
	defer close(s.done)
	defer s.cancel()

	c.metrics.RecordSessionStart()
	s.logger.Info("live session starting", "model", c.modelName)

	stream, err := c.connector.Connect(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.logger.Debug("upstream connect aborted", "error", err)
			c.finish(s, nil, false)
			return
		}
		s.logger.Error("upstream connect failed", "error", err)
		c.metrics.RecordError("connect")
		c.finish(s, err, true)
		return
	}

	c.state.CompareAndSwap(int32(StateStarting), int32(StateActive))
	if c.active.Load() {
		s.send(protocol.Info(protocol.MsgSessionStarted))
	}
	s.logger.Info("live session connected")

	senderCh := make(chan pumpResult, 1)
	receiverCh := make(chan pumpResult, 1)
	go func() { senderCh <- c.runSender(ctx, s, stream) }()
	go func() { receiverCh <- c.runReceiver(ctx, s, stream) }()

	// First completion wins; the sibling is deactivated, cancelled, and
	// awaited before the stream handle goes away.
	var sender, receiver pumpResult
	select {
	case sender = <-senderCh:
		c.active.Store(false)
		s.cancel()
		s.buffer.PutEnd()
		receiver = <-receiverCh
	case receiver = <-receiverCh:
		c.active.Store(false)
		s.cancel()
		s.buffer.PutEnd()
		sender = <-senderCh
	}

	if err := stream.Close(); err != nil {
		s.logger.Warn("upstream stream close failed", "error", err)
	}

	failure := sender.failure()
	if failure == nil {
		failure = receiver.failure()
	}
	c.finish(s, failure, false)
}

// finish is the single convergence point for every session exit path. It
// clears the coordinator's session slot, decides the one terminal status
// frame, and records end-of-session telemetry. The once guard collapses a
// racing explicit stop and lifecycle exit into a single outcome.
func (c *Coordinator) finish(s *liveSession, failure error, startFailed bool) {
	s.finishOnce.Do(func() {
		c.mu.Lock()
		if c.current == s {
			c.current = nil
		}
		c.mu.Unlock()
		c.active.Store(false)
		c.state.Store(int32(StateIdle))

		notify, explicit := s.stopIntent()
		outcome := outcomeStopped
		switch {
		case explicit:
			// The client asked for the stop; failures racing it are
			// already logged and counted, the client gets the stop
			// confirmation it expects.
			if notify {
				s.send(protocol.Info(protocol.MsgSessionStopped))
			}
		case failure != nil && startFailed:
			outcome = outcomeFailed
			s.send(protocol.StartFailure(failure))
		case failure != nil:
			outcome = outcomeFailed
			s.send(protocol.SessionFailure(failure))
		default:
			s.send(protocol.Info(protocol.MsgSessionStopped))
		}

		duration := time.Since(s.started)
		c.metrics.RecordSessionEnd(c.modelName, outcome, duration)
		s.logger.Info("live session finished", "outcome", outcome, "duration_ms", duration.Milliseconds())
	})
}
