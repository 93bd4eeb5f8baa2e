package log

import "context"

type loggerKey struct{}

// WithContext returns a child of ctx carrying l. Request middleware stores the
// request-scoped logger here so handlers and the document store share fields.
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the logger carried by ctx, or Nop.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey{}).(Logger); ok && l != nil {
		return l
	}
	return Nop()
}
