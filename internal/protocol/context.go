package protocol

import "context"

type runIDKey struct{}

// WithRunID returns a copy of ctx carrying the run ID.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunIDFromContext returns the ID of the run ctx belongs to. The orchestrator
// attaches it to every context it hands collaborators.
func RunIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey{}).(string)
	return id, ok && id != ""
}
