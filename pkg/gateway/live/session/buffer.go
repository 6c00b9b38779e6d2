package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrBufferEmpty is returned by Get when no entry arrived within the
	// poll window. Callers loop on it so they can re-check session state.
	ErrBufferEmpty = errors.New("audio buffer empty")

	// ErrBufferEnded is returned by Put once the end marker has been
	// enqueued; no further audio is accepted for this session.
	ErrBufferEnded = errors.New("audio buffer ended")
)

// Entry is one item handed from the gateway to the sender pump: an audio
// chunk, or the end-of-stream marker that terminates the pump.
type Entry struct {
	Chunk []byte
	End   bool
}

// Buffer is an unbounded FIFO of audio chunks with a single consumer (the
// sender pump) and producers on the gateway and coordinator goroutines.
//
// The end marker is a terminal latch, not a queued entry: once PutEnd has
// been called every Get returns the marker immediately, regardless of how
// many chunks are still queued. Teardown never waits behind buffered audio.
type Buffer struct {
	mu     sync.Mutex
	chunks [][]byte
	ended  bool

	// ready carries at most one pending wakeup for the consumer. A stale
	// wakeup is harmless: Get re-checks state before sleeping again.
	ready chan struct{}
}

func NewBuffer() *Buffer {
	return &Buffer{ready: make(chan struct{}, 1)}
}

// Put appends one audio chunk. It fails only after PutEnd has been called.
func (b *Buffer) Put(chunk []byte) error {
	b.mu.Lock()
	if b.ended {
		b.mu.Unlock()
		return ErrBufferEnded
	}
	b.chunks = append(b.chunks, chunk)
	b.mu.Unlock()
	b.wake()
	return nil
}

// PutEnd marks the stream as finished. Calling it again is a no-op.
func (b *Buffer) PutEnd() {
	b.mu.Lock()
	b.ended = true
	b.mu.Unlock()
	b.wake()
}

// Get returns the end marker once PutEnd has been called, otherwise the
// oldest queued chunk. When the buffer stays empty for the wait duration it
// returns ErrBufferEmpty; when ctx is cancelled first it returns the context
// error.
func (b *Buffer) Get(ctx context.Context, wait time.Duration) (Entry, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		b.mu.Lock()
		if b.ended {
			b.mu.Unlock()
			return Entry{End: true}, nil
		}
		if len(b.chunks) > 0 {
			chunk := b.chunks[0]
			b.chunks[0] = nil
			b.chunks = b.chunks[1:]
			if len(b.chunks) == 0 {
				b.chunks = nil
			}
			b.mu.Unlock()
			return Entry{Chunk: chunk}, nil
		}
		b.mu.Unlock()

		select {
		case <-b.ready:
		case <-timer.C:
			return Entry{}, ErrBufferEmpty
		case <-ctx.Done():
			return Entry{}, ctx.Err()
		}
	}
}

// Len reports how many audio chunks are waiting.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}

// Ended reports whether the end marker has been set.
func (b *Buffer) Ended() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ended
}

func (b *Buffer) wake() {
	select {
	case b.ready <- struct{}{}:
	default:
	}
}
