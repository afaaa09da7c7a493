package gateway

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"charon/internal/label"
	"charon/internal/principal"
)

// admit is the admission middleware: it resolves the Basic-auth subject to a
// permissions record and installs the per-request State. Requests without
// credentials, and subjects with no permissions record, fall back to the
// default minimal context; that fallback is loud in the logs because it is
// not suitable for production use.
func (s *Server) admit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set("X-Request-Id", reqID)

		username, _, ok := r.BasicAuth()
		st := &State{}
		switch {
		case !ok || username == "":
			s.log.Warn("request without credentials, using default security context",
				zap.String("request_id", reqID))
			st.Principal = s.fallback()
		default:
			p, found, err := s.directory.Lookup(r.Context(), username)
			if err != nil {
				s.respondError(w, r, err)
				return
			}
			if !found {
				s.log.Warn("no permissions record for subject, using default security context",
					zap.String("request_id", reqID),
					zap.String("subject", username))
				st.Principal = s.fallback()
				break
			}
			st.Principal = p
		}

		s.log.Debug("admitted request",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("subject", st.Principal.Name),
			zap.String("cats", st.Principal.Cats.String()),
			zap.String("diss", st.Principal.Diss.String()))

		next.ServeHTTP(w, r.WithContext(WithState(r.Context(), st)))
	})
}

func (s *Server) fallback() label.Principal {
	return principal.Default()
}
