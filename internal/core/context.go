package core

import "context"

type requestMetaKey struct{}

// RequestMeta describes who made an admin request. It is recorded with
// every audit entry.
type RequestMeta struct {
	IPAddress string
	UserAgent string
	Actor     string // API key label or JWT subject
}

// WithRequestMeta stores meta in ctx.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFromContext returns the metadata stored in ctx, or the zero value.
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	if v, ok := ctx.Value(requestMetaKey{}).(RequestMeta); ok {
		return v
	}
	return RequestMeta{}
}

// WithActor records the authenticated actor, keeping the other fields.
func WithActor(ctx context.Context, actor string) context.Context {
	if t, ok := ctx.Value(actorTrackerKey{}).(*actorTracker); ok {
		t.actor = actor
	}
	meta := RequestMetaFromContext(ctx)
	meta.Actor = actor
	return WithRequestMeta(ctx, meta)
}

type actorTrackerKey struct{}

type actorTracker struct{ actor string }

// TrackActor returns a context in which WithActor also records the actor
// for TrackedActor. Middleware that runs before authentication uses it to
// learn who made the request once the handler chain returns.
func TrackActor(ctx context.Context) context.Context {
	return context.WithValue(ctx, actorTrackerKey{}, &actorTracker{})
}

// TrackedActor returns the actor recorded below a TrackActor context.
func TrackedActor(ctx context.Context) string {
	if t, ok := ctx.Value(actorTrackerKey{}).(*actorTracker); ok {
		return t.actor
	}
	return ""
}
