// Package attachment implements the blob side-channel: on create it mints
// pre-signed upload URLs for the keys declared under attachments.documents,
// and on read it replaces those keys with decoded blob contents. It runs
// strictly after redaction, so a pruned attachments sub-tree never reaches
// this code and never leaks a URL.
package attachment

import (
	"context"
	"encoding/base64"
	"fmt"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BlobStore is the narrow blob-service surface the side-channel needs.
type BlobStore interface {
	// PresignUpload returns a URL that lets the holder upload the object
	// stored under key.
	PresignUpload(ctx context.Context, key string) (string, error)
	// Fetch downloads the object stored under key.
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// Service applies the side-channel when enabled and is a pass-through
// otherwise.
type Service struct {
	enabled bool
	blobs   BlobStore
	log     *zap.Logger
}

// NewService builds the side-channel. blobs may be nil when disabled.
func NewService(enabled bool, blobs BlobStore, log *zap.Logger) *Service {
	return &Service{enabled: enabled, blobs: blobs, log: log}
}

// Enabled reports whether the side-channel is active.
func (s *Service) Enabled() bool { return s.enabled }

// PresignUploads mints one upload URL per key in the body's
// attachments.documents list, in list order. Returns nil when disabled or
// when the body declares no attachments.
func (s *Service) PresignUploads(ctx context.Context, body map[string]any) ([]string, error) {
	if !s.enabled {
		return nil, nil
	}
	keys := documentKeys(body)
	if len(keys) == 0 {
		return nil, nil
	}
	s.log.Info("generating presigned upload urls", zap.Int("count", len(keys)))

	urls := make([]string, len(keys))
	for i, key := range keys {
		url, err := s.blobs.PresignUpload(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("presign upload for %q: %w", key, err)
		}
		urls[i] = url
	}
	return urls, nil
}

// Inline replaces each document's attachments key list with the decoded
// blob contents. Documents without attachments, and all documents when the
// side-channel is disabled, pass through untouched. Blob fetches for one
// document run concurrently; a fetch failure is logged and yields an empty
// slot rather than failing the read.
func (s *Service) Inline(ctx context.Context, docs []bson.M) []bson.M {
	if !s.enabled {
		return docs
	}
	for _, doc := range docs {
		keys := attachmentKeys(doc)
		if keys == nil {
			continue
		}
		contents := make([]any, len(keys))
		g, gctx := errgroup.WithContext(ctx)
		for i, key := range keys {
			g.Go(func() error {
				raw, err := s.blobs.Fetch(gctx, key)
				if err != nil {
					return fmt.Errorf("fetch blob %q: %w", key, err)
				}
				contents[i] = Decode(raw)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			s.log.Error("inlining attachments failed", zap.Error(err))
			continue
		}
		doc["attachments"] = contents
	}
	return docs
}

// Decode renders blob bytes for a JSON response: UTF-8 text as-is, then a
// base64 payload decoded, then a quoted byte-string representation.
func Decode(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	if decoded, err := base64.StdEncoding.DecodeString(string(raw)); err == nil {
		return string(decoded)
	}
	return fmt.Sprintf("%q", raw)
}

// documentKeys extracts the string keys from a decoded JSON body.
func documentKeys(body map[string]any) []string {
	att, ok := body["attachments"].(map[string]any)
	if !ok {
		return nil
	}
	list, ok := att["documents"].([]any)
	if !ok {
		return nil
	}
	return stringKeys(list)
}

// attachmentKeys extracts the string keys from an aggregation result, which
// may decode nested documents as bson.M and lists as bson.A.
func attachmentKeys(doc bson.M) []string {
	att, ok := asDoc(doc["attachments"])
	if !ok {
		return nil
	}
	switch list := att["documents"].(type) {
	case bson.A:
		return stringKeys(list)
	case []any:
		return stringKeys(list)
	default:
		return nil
	}
}

func asDoc(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case bson.M:
		return m, true
	case map[string]any:
		return m, true
	default:
		return nil, false
	}
}

func stringKeys(list []any) []string {
	keys := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			keys = append(keys, s)
		}
	}
	return keys
}
