package handlers

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/voxhall/livebridge/pkg/gateway/apierror"
)

// IndexHandler serves the bundled demo client page from the static
// directory. A missing page is reported as not-found rather than a blank
// 500, since running without the demo assets is a supported deployment.
type IndexHandler struct {
	StaticDir string
	Logger    *slog.Logger
}

func (h IndexHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeErrorJSON(w, r, http.StatusMethodNotAllowed, apierror.TypeInvalidRequest, "method not allowed")
		return
	}

	page := filepath.Join(h.StaticDir, "index.html")
	if _, err := os.Stat(page); err != nil {
		if h.Logger != nil {
			h.Logger.Warn("demo client page not found", "path", page, "error", err)
		}
		writeErrorJSON(w, r, http.StatusNotFound, apierror.TypeNotFound, "demo client page is not installed")
		return
	}
	http.ServeFile(w, r, page)
}
