package session

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/voxhall/livebridge/pkg/gateway/live/protocol"
	"github.com/voxhall/livebridge/pkg/gateway/upstream"
)

type pumpReason int

const (
	pumpCompleted pumpReason = iota
	pumpCancelled
	pumpFailed
)

func (r pumpReason) String() string {
	switch r {
	case pumpCompleted:
		return "completed"
	case pumpCancelled:
		return "cancelled"
	case pumpFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// pumpResult is how a pump reports its exit to the lifecycle join. err is
// non-nil only for pumpFailed; cancellation is a clean exit, never a
// failure.
type pumpResult struct {
	reason pumpReason
	err    error
}

func (r pumpResult) failure() error {
	if r.reason == pumpFailed {
		return r.err
	}
	return nil
}

// runSender drains the session buffer into the upstream stream. It exits on
// the end marker, on deactivation (checked at the loop top and after every
// wait), on cancellation, or on a send failure, which also deactivates the
// session so the receiver observes it.
func (c *Coordinator) runSender(ctx context.Context, s *liveSession, stream upstream.Stream) (res pumpResult) {
	var chunks, bytes int64
	defer func() {
		s.logger.Debug("sender pump finished",
			"reason", res.reason.String(), "chunks", chunks, "bytes", bytes)
	}()

	for c.active.Load() {
		entry, err := s.buffer.Get(ctx, c.cfg.PollInterval)
		if err != nil {
			if errors.Is(err, ErrBufferEmpty) {
				continue
			}
			return pumpResult{reason: pumpCancelled}
		}
		if entry.End {
			return pumpResult{reason: pumpCompleted}
		}
		if !c.active.Load() {
			return pumpResult{reason: pumpCompleted}
		}

		if err := stream.Send(ctx, entry.Chunk); err != nil {
			c.active.Store(false)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return pumpResult{reason: pumpCancelled}
			}
			c.metrics.RecordError("send")
			return pumpResult{reason: pumpFailed, err: fmt.Errorf("forward audio upstream: %w", err)}
		}
		chunks++
		bytes += int64(len(entry.Chunk))
		c.metrics.RecordAudio("in", len(entry.Chunk))
	}
	return pumpResult{reason: pumpCompleted}
}

// runReceiver forwards upstream events to the client transport. It exits on
// upstream exhaustion (io.EOF), on deactivation (checked before and after
// every receive), on cancellation, or on a receive/forward failure, which
// also deactivates the session so the sender observes it.
func (c *Coordinator) runReceiver(ctx context.Context, s *liveSession, stream upstream.Stream) (res pumpResult) {
	var events, audioBytes int64
	defer func() {
		s.logger.Debug("receiver pump finished",
			"reason", res.reason.String(), "events", events, "audio_bytes", audioBytes)
	}()

	for c.active.Load() {
		event, err := stream.Receive(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return pumpResult{reason: pumpCompleted}
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return pumpResult{reason: pumpCancelled}
			}
			c.active.Store(false)
			c.metrics.RecordError("receive")
			return pumpResult{reason: pumpFailed, err: fmt.Errorf("receive upstream event: %w", err)}
		}
		if !c.active.Load() {
			return pumpResult{reason: pumpCompleted}
		}

		if err := c.forwardEvent(s, event); err != nil {
			c.active.Store(false)
			c.metrics.RecordError("forward")
			return pumpResult{reason: pumpFailed, err: err}
		}
		events++
		if event.Kind == upstream.EventAudio {
			audioBytes += int64(len(event.Audio))
		}
		c.metrics.RecordUpstreamEvent(event.Kind.String())
	}
	return pumpResult{reason: pumpCompleted}
}

func (c *Coordinator) forwardEvent(s *liveSession, event upstream.Event) error {
	switch event.Kind {
	case upstream.EventAudio:
		if err := s.transport.SendBinary(event.Audio); err != nil {
			return fmt.Errorf("forward audio to client: %w", err)
		}
		c.metrics.RecordAudio("out", len(event.Audio))
	case upstream.EventModelTranscript:
		if err := s.transport.SendJSON(protocol.ModelTranscript(event.Text)); err != nil {
			return fmt.Errorf("forward model transcript: %w", err)
		}
	case upstream.EventUserTranscript:
		if err := s.transport.SendJSON(protocol.UserTranscript(event.Text, event.Final)); err != nil {
			return fmt.Errorf("forward user transcript: %w", err)
		}
	default:
		s.logger.Debug("dropping unrecognized upstream event", "kind", int(event.Kind))
	}
	return nil
}
