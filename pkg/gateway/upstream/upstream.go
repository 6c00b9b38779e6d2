// Package upstream defines the capability contract between the gateway and
// the remote live inference service. Provider packages (upstream/gemini)
// normalize their SDK session types into the Stream interface so the session
// pumps never touch provider-specific message shapes.
package upstream

import "context"

type EventKind int

const (
	// EventAudio carries a chunk of synthesized model audio.
	EventAudio EventKind = iota + 1
	// EventModelTranscript carries a transcript fragment of the model's speech.
	EventModelTranscript
	// EventUserTranscript carries a transcript fragment of the user's speech.
	EventUserTranscript
)

func (k EventKind) String() string {
	switch k {
	case EventAudio:
		return "audio"
	case EventModelTranscript:
		return "model_transcript"
	case EventUserTranscript:
		return "user_transcript"
	default:
		return "unknown"
	}
}

// Event is one decoded message from the upstream live stream.
type Event struct {
	Kind  EventKind
	Audio []byte // EventAudio
	Text  string // transcript kinds
	Final bool   // EventUserTranscript: closes the current utterance segment
}

// Stream is a single connected bidirectional live session.
//
// Send and Receive honor context cancellation even while the underlying
// connection is blocked. Receive returns io.EOF once the upstream has no
// further events; any other error is a stream failure. Close is idempotent
// and releases the underlying connection along with any internal readers.
type Stream interface {
	Send(ctx context.Context, chunk []byte) error
	Receive(ctx context.Context) (Event, error)
	Close() error
}

// Connector opens live streams against a configured provider. Implementations
// hold credentials and session capability settings; Connect performs the
// network setup for one session.
type Connector interface {
	Connect(ctx context.Context) (Stream, error)
}
