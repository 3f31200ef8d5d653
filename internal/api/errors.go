package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"imagehub/internal/storage"
)

// problemResponse is the envelope for business errors raised past the auth
// boundary. Authentication and authorization rejections never use it; the
// middleware writes those with a bare error field before handlers run.
type problemResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Status    int       `json:"status"`
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Path      string    `json:"path"`
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, problemResponse{
		Timestamp: time.Now().UTC(),
		Status:    status,
		Error:     http.StatusText(status),
		Message:   message,
		Path:      r.URL.Path,
	})
}

// writeServiceError translates service and storage failures into the problem
// envelope. Unknown errors surface as 500 with a generic message so internal
// detail never leaks to the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeProblem(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, storage.ErrInvalid):
		writeProblem(w, r, http.StatusBadRequest, trimWrap(err))
	case errors.Is(err, storage.ErrConflict):
		writeProblem(w, r, http.StatusConflict, "duplicate resource")
	case errors.Is(err, storage.ErrUnavailable):
		writeProblem(w, r, http.StatusServiceUnavailable, trimWrap(err))
	default:
		writeProblem(w, r, http.StatusInternalServerError, "internal server error")
	}
}

// trimWrap peels service wrapping off validation errors so the client sees
// "comment content is required" rather than the full wrap chain.
func trimWrap(err error) string {
	msg := err.Error()
	if idx := strings.LastIndex(msg, ": "); idx >= 0 {
		return msg[idx+2:]
	}
	return msg
}
