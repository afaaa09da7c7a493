package gateway

import (
	"encoding/json"
	"net/http"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.uber.org/zap"

	"charon/internal/label"
	"charon/internal/pipeline"
)

// unboundID is the placeholder a blank aggregate query leaves in the _id
// match. The rewriter turns it into an existence predicate.
const unboundID = "$id"

// aggregateQuery is the supported read query: an optional _id binding.
type aggregateQuery struct {
	ID string `json:"$id"`
}

// BeforeAggregation rewrites a base plan for the given resource and
// principal. Exposed as the single read-path hook; the handler below is the
// only production caller, but the rewrite itself never consults the store.
func (s *Server) BeforeAggregation(resource string, p label.Principal, plan mongo.Pipeline) mongo.Pipeline {
	paths := s.schemas.LabelledPaths(resource)
	s.log.Debug("setting up redaction pipeline",
		zap.String("resource", resource),
		zap.Strings("labelled_paths", paths))
	return pipeline.Rewrite(paths, p, plan)
}

func (s *Server) handleRead(resource string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := StateFrom(r.Context())

		plan := mongo.Pipeline{bson.D{{Key: "$match", Value: bson.D{{Key: "_id", Value: s.readTarget(r)}}}}}
		plan = s.BeforeAggregation(resource, st.Principal, plan)

		docs, err := s.store.Aggregate(r.Context(), resource, plan)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		docs = s.attachments.Inline(r.Context(), docs)
		if docs == nil {
			docs = []bson.M{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"_items": docs})
	}
}

// readTarget extracts the _id constraint from the aggregate query param. A
// missing or unparseable param, or a wildcard value, leaves the unbound
// placeholder for the rewriter to widen; a valid object id binds the match
// to one document.
func (s *Server) readTarget(r *http.Request) any {
	raw := r.URL.Query().Get("aggregate")
	if raw == "" {
		return unboundID
	}
	var q aggregateQuery
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		s.log.Debug("ignoring unparseable aggregate query", zap.String("aggregate", raw))
		return unboundID
	}
	if q.ID == "" {
		return unboundID
	}
	if oid, err := bson.ObjectIDFromHex(q.ID); err == nil {
		return oid
	}
	return q.ID
}
