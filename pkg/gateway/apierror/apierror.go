// Package apierror defines the JSON error envelope the gateway's plain HTTP
// endpoints return. Failures on the live WebSocket are reported as status
// frames on the socket and never pass through this envelope.
package apierror

import (
	"encoding/json"
	"net/http"
)

type Type string

const (
	TypeInvalidRequest Type = "invalid_request_error"
	TypeNotFound       Type = "not_found_error"
	TypeOverloaded     Type = "overloaded_error"
	TypeAPI            Type = "api_error"
)

type Error struct {
	Type      Type   `json:"type"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type Envelope struct {
	Error Error `json:"error"`
}

// Write sends the envelope with the given HTTP status. Encoding failures are
// ignored: the status line is already on the wire by then.
func Write(w http.ResponseWriter, status int, e Error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{Error: e})
}
