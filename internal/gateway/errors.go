package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// ErrPermissionDenied is returned by any write-path gate that rejects the
// request. It is never retried and maps to 403.
var ErrPermissionDenied = errors.New("permission denied")

// ErrBodyMalformed means the request body is not a parseable document tree.
// The write path aborts with a server error and no mutation occurs.
var ErrBodyMalformed = errors.New("malformed request body")

type errorEnvelope struct {
	Status string `json:"_status"`
	Error  string `json:"_error"`
}

// respondError maps an error to its HTTP status. Store and blob errors are
// surfaced unchanged and logged once here; admission failures are expected
// traffic and logged at info level by the gates themselves.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrPermissionDenied):
		code = http.StatusForbidden
	case errors.Is(err, ErrBodyMalformed):
		code = http.StatusInternalServerError
	default:
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeJSON(w, code, errorEnvelope{Status: "ERR", Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func denied(msg string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPermissionDenied, fmt.Sprintf(msg, args...))
}
