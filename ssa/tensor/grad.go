package tensor

import "context"

type gradKey struct{}

// NoGrad returns a child context in which gradient tracking is disabled.
// The parent context is unaffected, so leaving the scope restores the prior state.
func NoGrad(ctx context.Context) context.Context {
	return context.WithValue(ctx, gradKey{}, false)
}

// GradEnabled reports whether gradient tracking is enabled for ctx. Tracking is
// enabled unless a NoGrad scope is active.
func GradEnabled(ctx context.Context) bool {
	enabled, ok := ctx.Value(gradKey{}).(bool)
	return !ok || enabled
}

// WithNoGrad runs fn with gradient tracking disabled.
func WithNoGrad(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(NoGrad(ctx))
}
