package action

import "context"

type gestureKey struct{}

// WithGesture returns a context carrying the gesture that triggered a step.
func WithGesture(ctx context.Context, gestureID string) context.Context {
	return context.WithValue(ctx, gestureKey{}, gestureID)
}

// GestureFrom returns the triggering gesture stored by WithGesture.
func GestureFrom(ctx context.Context) string {
	id, _ := ctx.Value(gestureKey{}).(string)
	return id
}
