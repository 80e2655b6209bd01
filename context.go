package hostcore

import "context"

// requestTrackerKey is the well-known, typed context key under which a Host
// publishes its HealthIndicator for the duration of one connection attempt, so
// that filters downstream of the connection factory can observe it.
type requestTrackerKey struct{}

// withHealthIndicator stashes indicator in ctx under the well-known request-tracker
// key. Exposed internally via NewConnection; indicator retrieval is public via
// HealthIndicatorFromContext so that a ConnectionFactory implementation can read it.
func withHealthIndicator(ctx context.Context, indicator any) context.Context {
	return context.WithValue(ctx, requestTrackerKey{}, indicator)
}

// HealthIndicatorFromContext retrieves the HealthIndicator a Host published for the
// current connection attempt, if any. Intended for use inside a ConnectionFactory.
func HealthIndicatorFromContext[C Connection](ctx context.Context) (HealthIndicator[C], bool) {
	v := ctx.Value(requestTrackerKey{})
	if v == nil {
		return nil, false
	}
	hi, ok := v.(HealthIndicator[C])
	return hi, ok
}
