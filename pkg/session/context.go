package session

import "context"

// contextKey is used as the context key for Session values, following the
// empty-struct-per-type idiom: distinct types never collide even when a
// same-named key exists in another package.
type contextKey struct{}

// Key is the name of the session slot (spec §6, "Session slot"). The slot
// itself is keyed by the unexported contextKey type, so downstream handlers
// read it with FromContext, not with this string.
const Key = "auth"

// WithSession stores a Session in the context. A nil session leaves the
// context unchanged.
func WithSession(ctx context.Context, s *Session) context.Context {
	if s == nil {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext retrieves a Session from the context, if one was attached.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(contextKey{}).(*Session)
	return s, ok
}
