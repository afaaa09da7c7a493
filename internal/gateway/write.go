package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.uber.org/zap"

	"charon/internal/label"
	"charon/internal/pipeline"
)

// handleCreate runs gates 1 and 2 (body-label collection and admission),
// mints presigned upload URLs for declared attachments, and inserts the
// document.
func (s *Server) handleCreate(resource string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := StateFrom(r.Context())

		body, err := decodeBody(r)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		if err := s.admitBody(st, resource, body); err != nil {
			s.respondError(w, r, err)
			return
		}

		urls, err := s.attachments.PresignUploads(r.Context(), body)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		st.PresignedURLs = urls

		id, err := s.store.Insert(r.Context(), resource, bson.M(body))
		if err != nil {
			s.respondError(w, r, err)
			return
		}

		envelope := map[string]any{"_status": "OK", "_id": id.Hex()}
		if len(urls) > 0 {
			envelope["_presigned_urls"] = urls
		}
		writeJSON(w, http.StatusCreated, envelope)
	}
}

// handlePatch runs all three gates in order, then applies the update. Gate
// failure aborts before any mutation, so a patch either takes effect in
// full or not at all.
func (s *Server) handlePatch(resource string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := StateFrom(r.Context())

		oid, err := targetID(r)
		if err != nil {
			writeJSON(w, http.StatusNotFound, errorEnvelope{Status: "ERR", Error: err.Error()})
			return
		}
		body, err := decodeBody(r)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		if err := s.admitBody(st, resource, body); err != nil {
			s.respondError(w, r, err)
			return
		}

		inspected := s.touchedLabelledPaths(resource, body)
		if err := s.admitStored(r.Context(), resource, st.Principal, oid, inspected); err != nil {
			s.respondError(w, r, err)
			return
		}

		urls, err := s.attachments.PresignUploads(r.Context(), body)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		st.PresignedURLs = urls

		if err := s.store.Patch(r.Context(), resource, oid, bson.M(body)); err != nil {
			s.respondError(w, r, err)
			return
		}

		envelope := map[string]any{"_status": "OK"}
		if len(urls) > 0 {
			envelope["_presigned_urls"] = urls
		}
		writeJSON(w, http.StatusOK, envelope)
	}
}

// handleDelete runs gate 3 over every labelled path of the resource: a
// delete affects the whole document, so the principal must dominate every
// label stored in it.
func (s *Server) handleDelete(resource string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := StateFrom(r.Context())

		oid, err := targetID(r)
		if err != nil {
			writeJSON(w, http.StatusNotFound, errorEnvelope{Status: "ERR", Error: err.Error()})
			return
		}
		inspected := s.schemas.LabelledPaths(resource)
		if err := s.admitStored(r.Context(), resource, st.Principal, oid, inspected); err != nil {
			s.respondError(w, r, err)
			return
		}
		if err := s.store.Delete(r.Context(), resource, oid); err != nil {
			s.respondError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// admitBody is gates 1 and 2: collect every label token the body stamps,
// stash the set on the request state, and require the principal to hold all
// of them.
func (s *Server) admitBody(st *State, resource string, body map[string]any) error {
	required := label.CollectRequired(body, s.schemas.LabelledPaths(resource))
	st.Required = required

	s.log.Debug("collected body label tokens",
		zap.String("resource", resource),
		zap.String("required", required.String()))

	if !st.Principal.CanWrite(required) {
		s.metrics.denials.WithLabelValues("body_admission").Inc()
		s.log.Info("body-label admission denied",
			zap.String("resource", resource),
			zap.String("subject", st.Principal.Name),
			zap.String("required", required.String()))
		return denied("subject %s lacks tokens for %s body", st.Principal.Name, resource)
	}
	return nil
}

// admitStored is gate 3: probe the stored document's labels at the
// inspected paths and deny unless the principal dominates all of them. The
// probe reuses the rewriter's annotation stages; an empty probe result
// means the document does not exist or its root label already fails.
func (s *Server) admitStored(ctx context.Context, resource string, p label.Principal, oid bson.ObjectID, inspected []string) error {
	probe := mongo.Pipeline{bson.D{{Key: "$match", Value: bson.D{{Key: "_id", Value: oid}}}}}
	probe = pipeline.Annotate(inspected, p, probe)

	results, err := s.store.Aggregate(ctx, resource, probe)
	if err != nil {
		return err
	}
	if len(results) == 0 || pipeline.Denied(results[0], inspected) {
		s.metrics.denials.WithLabelValues("stored_admission").Inc()
		s.log.Info("stored-data admission denied",
			zap.String("resource", resource),
			zap.String("subject", p.Name),
			zap.String("id", oid.Hex()))
		return denied("subject %s lacks clearance for stored %s/%s", p.Name, resource, oid.Hex())
	}
	return nil
}

// touchedLabelledPaths returns the root plus every labelled path whose
// top-level field appears in the update body. A patch that replaces a field
// touches everything beneath it, so nested labelled paths under an updated
// field are inspected too.
func (s *Server) touchedLabelledPaths(resource string, body map[string]any) []string {
	inspected := []string{""}
	for _, path := range s.schemas.LabelledPaths(resource) {
		if path == "" {
			continue
		}
		head, _, _ := strings.Cut(path, ".")
		if _, ok := body[head]; ok {
			inspected = append(inspected, path)
		}
	}
	return inspected
}

func decodeBody(r *http.Request) (map[string]any, error) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBodyMalformed, err)
	}
	return body, nil
}

func targetID(r *http.Request) (bson.ObjectID, error) {
	raw := chi.URLParam(r, "id")
	oid, err := bson.ObjectIDFromHex(raw)
	if err != nil {
		return bson.NilObjectID, fmt.Errorf("invalid document id %q", raw)
	}
	return oid, nil
}
