// Package protocol defines the wire frames exchanged with the browser client
// over the live WebSocket, and the decoder for inbound control commands.
//
// The contract is small and fixed: clients send JSON command frames and raw
// binary audio chunks; the gateway sends JSON status frames, JSON transcript
// frames, and raw binary audio. Message strings are part of the contract and
// must not drift.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Client commands.
const (
	CommandStartSession = "start_session"
	CommandStopSession  = "stop_session"
)

// Status frame levels.
const (
	StatusInfo    = "info"
	StatusError   = "error"
	StatusWarning = "warning"
)

// Transcript frame types.
const (
	TypeModelTranscript = "model_transcript"
	TypeUserTranscript  = "user_transcript"
)

// Fixed status messages. These strings are observed by clients and tests.
const (
	MsgSessionStarted       = "Live session started. Ready for audio."
	MsgSessionStopped       = "Live session stopped."
	MsgSessionAlreadyActive = "Session already active."
	MsgSessionNotActive     = "Session not active. Cannot process audio."
	MsgSessionBusy          = "A session is already active with another client."
	MsgInvalidJSON          = "Invalid JSON command."
)

// DecodeError describes a rejected inbound command frame.
type DecodeError struct {
	Code    string
	Message string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Decode error codes.
const (
	CodeInvalidJSON    = "invalid_json"
	CodeUnknownCommand = "unknown_command"
)

// Command is an inbound control frame.
type Command struct {
	Command string `json:"command"`
}

// DecodeCommand parses an inbound text frame into a Command. Malformed JSON
// and unrecognized command names yield a DecodeError; they are reported to
// the client and never abort the connection.
func DecodeCommand(data []byte) (Command, *DecodeError) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, &DecodeError{Code: CodeInvalidJSON, Message: MsgInvalidJSON}
	}
	switch strings.TrimSpace(cmd.Command) {
	case CommandStartSession, CommandStopSession:
		cmd.Command = strings.TrimSpace(cmd.Command)
		return cmd, nil
	default:
		return Command{}, &DecodeError{
			Code:    CodeUnknownCommand,
			Message: fmt.Sprintf("Unknown command: %s", cmd.Command),
		}
	}
}

// StatusFrame is an outbound status notification.
type StatusFrame struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func Info(message string) StatusFrame {
	return StatusFrame{Status: StatusInfo, Message: message}
}

func Error(message string) StatusFrame {
	return StatusFrame{Status: StatusError, Message: message}
}

func Warning(message string) StatusFrame {
	return StatusFrame{Status: StatusWarning, Message: message}
}

// StartFailure is the status frame for a session that could not be
// established.
func StartFailure(err error) StatusFrame {
	return Error(fmt.Sprintf("Failed to start session: %v", err))
}

// SessionFailure is the terminal status frame for a session that died on an
// upstream error.
func SessionFailure(err error) StatusFrame {
	return Error(fmt.Sprintf("GenAI session error: %v", err))
}

// ServerFailure is the catch-all status frame for unexpected faults in the
// connection handler.
func ServerFailure(v any) StatusFrame {
	return Error(fmt.Sprintf("Server error: %v", v))
}

// ModelTranscriptFrame carries transcription of the model's audio output.
type ModelTranscriptFrame struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

func ModelTranscript(text string) ModelTranscriptFrame {
	return ModelTranscriptFrame{Type: TypeModelTranscript, Data: text}
}

// UserTranscriptFrame carries incremental transcription of the user's speech.
// IsFinalPart marks the frame that completes the current utterance segment.
type UserTranscriptFrame struct {
	Type        string `json:"type"`
	Data        string `json:"data"`
	IsFinalPart bool   `json:"is_final_part"`
}

func UserTranscript(text string, isFinalPart bool) UserTranscriptFrame {
	return UserTranscriptFrame{Type: TypeUserTranscript, Data: text, IsFinalPart: isFinalPart}
}
