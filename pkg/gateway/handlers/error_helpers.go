package handlers

import (
	"net/http"

	"github.com/voxhall/livebridge/pkg/gateway/apierror"
	"github.com/voxhall/livebridge/pkg/gateway/mw"
)

// writeErrorJSON emits the canonical HTTP error envelope. WebSocket-level
// failures never come through here; they are reported as status frames on
// the live connection instead.
func writeErrorJSON(w http.ResponseWriter, r *http.Request, status int, errType apierror.Type, message string) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	apierror.Write(w, status, apierror.Error{
		Type:      errType,
		Message:   message,
		RequestID: reqID,
	})
}
