package handlers

import (
	"net/http"

	"github.com/voxhall/livebridge/pkg/gateway/apierror"
)

type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeErrorJSON(w, r, http.StatusNotFound, apierror.TypeNotFound, "not found")
}
