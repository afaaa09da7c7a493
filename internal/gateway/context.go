package gateway

import (
	"context"

	"charon/internal/label"
)

// State is the per-request security context. It is created at request
// admission, carried on the request context, and torn down with it. Nothing
// in here outlives the request.
type State struct {
	Principal label.Principal

	// Required is the token set collected from a write body by gate 1.
	Required label.Set

	// PresignedURLs is populated by the attachment side-channel on create.
	PresignedURLs []string
}

type ctxKey struct{}

// WithState attaches request state to a context.
func WithState(ctx context.Context, st *State) context.Context {
	return context.WithValue(ctx, ctxKey{}, st)
}

// StateFrom returns the request state, or an empty state when the request
// never passed admission (tests hitting handlers directly).
func StateFrom(ctx context.Context) *State {
	if st, ok := ctx.Value(ctxKey{}).(*State); ok {
		return st
	}
	return &State{}
}
