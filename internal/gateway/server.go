// Package gateway is the HTTP surface of the ABAC engine. It wires an
// explicit middleware chain — admission, rewriter, executor, post-filter —
// around the document store: reads run through the pipeline rewriter so the
// database redacts what the principal is not cleared for, and writes pass
// the three admission gates before any mutation is emitted.
package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"charon/internal/attachment"
	"charon/internal/principal"
	"charon/internal/schema"
	"charon/internal/store"
)

// writeSuffix distinguishes the mutation endpoints from the read endpoint
// of the same resource. Both operate on the resource's collection.
const writeSuffix = "_write"

// Server holds the request-independent collaborators. All of them are
// read-only after construction and safe to share across requests.
type Server struct {
	log         *zap.Logger
	schemas     *schema.Registry
	store       store.DocumentStore
	directory   principal.Directory
	attachments *attachment.Service
	metrics     *metrics
	router      chi.Router
}

// New assembles the gateway.
func New(
	log *zap.Logger,
	schemas *schema.Registry,
	docs store.DocumentStore,
	directory principal.Directory,
	attachments *attachment.Service,
) *Server {
	s := &Server{
		log:         log,
		schemas:     schemas,
		store:       docs,
		directory:   directory,
		attachments: attachments,
		metrics:     newMetrics(),
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// buildRouter registers one read route and three write routes per resource.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.metrics.handler())

	r.Group(func(r chi.Router) {
		r.Use(s.admit)
		for _, resource := range s.schemas.Resources() {
			r.Get("/"+resource, s.metrics.instrument(resource, s.handleRead(resource)))
			r.Post("/"+resource+writeSuffix, s.metrics.instrument(resource, s.handleCreate(resource)))
			r.Patch("/"+resource+writeSuffix+"/{id}", s.metrics.instrument(resource, s.handlePatch(resource)))
			r.Delete("/"+resource+writeSuffix+"/{id}", s.metrics.instrument(resource, s.handleDelete(resource)))
		}
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.log.Error("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorEnvelope{Status: "ERR", Error: "store unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"_status": "OK"})
}
