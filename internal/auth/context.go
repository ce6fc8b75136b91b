// ABOUTME: Context helpers carrying the authenticated subject through request handlers
// ABOUTME: Provides WithSubject/SubjectFromContext for the HTTP middleware

package auth

import "context"

type contextKey struct{}

// WithSubject returns a context carrying the authenticated subject.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, contextKey{}, subject)
}

// SubjectFromContext returns the authenticated subject, if any.
func SubjectFromContext(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(contextKey{}).(string)
	return subject, ok && subject != ""
}
