package hostcore

import (
	"context"
	"time"
)

// Connection is the capability a Host pools. Implementations are compared by equality
// (typically pointer identity), which is why the constraint embeds comparable -- it is
// only ever used as a generic type parameter, never boxed as an interface value.
type Connection interface {
	comparable

	// Close closes the connection immediately.
	Close(ctx context.Context) error
	// CloseGracefully closes the connection after allowing in-flight work to drain.
	CloseGracefully(ctx context.Context) error
	// TryReserve attempts to reserve exclusive use of the connection for the caller
	// that just created it. Returns false if the connection cannot be reserved.
	TryReserve() bool
	// OnClose registers a callback invoked exactly once when the connection
	// terminates, with the terminal error if any (nil on a clean close).
	OnClose(func(error))
}

// ConnectionFactory opens new connections to addr. The context carries cancellation
// and, when a HealthIndicator is attached to the Host, the HealthIndicator itself
// under the well-known context key (see HealthIndicatorFromContext).
type ConnectionFactory[Addr comparable, C Connection] interface {
	NewConnection(ctx context.Context, addr Addr) (C, error)
}

// ConnectionSelector picks one connection out of a list of candidates that satisfy
// predicate, or reports that none do.
type ConnectionSelector[C Connection] interface {
	Select(conns []C, predicate func(C) bool) (conn C, ok bool)
}

// ConnectTracker observes the timing and outcome of individual connect attempts.
type ConnectTracker interface {
	// BeforeConnectStart records the start of a connect attempt and returns an
	// opaque timestamp to pass back to OnConnectSuccess/OnConnectError.
	BeforeConnectStart() int64
	OnConnectSuccess(startTs int64)
	OnConnectError(startTs int64, kind ConnectErrorKind)
}

// HealthIndicator is an externally supplied secondary source of health truth. When
// attached to a Host, IsHealthy() gates Host.IsHealthy() in addition to the state
// machine, and Score() backs Host.Score(). The Host never mutates it.
type HealthIndicator[C Connection] interface {
	ConnectTracker

	IsHealthy() bool
	Score() int
	Cancel()
}

// Scheduler runs the health-check retry loop. The default implementation launches a
// plain goroutine; tests can supply a synchronous or instrumented Scheduler instead.
type Scheduler interface {
	Go(f func())
}

type goroutineScheduler struct{}

func (goroutineScheduler) Go(f func()) { go f() }

// HealthCheckConfig configures the health-check task scheduled when a Host is
// demoted to Unhealthy.
type HealthCheckConfig struct {
	// FailedThreshold is the number of consecutive connect failures after which a
	// Host is demoted to Unhealthy. Must be >= 1.
	FailedThreshold int
	// HealthCheckInterval is the base delay between health-check retries.
	HealthCheckInterval time.Duration
	// Jitter is added to or subtracted from HealthCheckInterval, uniformly at
	// random, on every retry.
	Jitter time.Duration
	// Scheduler runs the health-check goroutine. Defaults to a plain `go` call.
	Scheduler Scheduler
}

func (c HealthCheckConfig) withDefaults() HealthCheckConfig {
	if c.Scheduler == nil {
		c.Scheduler = goroutineScheduler{}
	}
	return c
}

func (c HealthCheckConfig) validate() {
	if c.FailedThreshold < 1 {
		panic("hostcore: HealthCheckConfig.FailedThreshold must be >= 1")
	}
	if c.HealthCheckInterval < 0 {
		panic("hostcore: HealthCheckConfig.HealthCheckInterval must be non-negative")
	}
	if c.Jitter < 0 {
		panic("hostcore: HealthCheckConfig.Jitter must be non-negative")
	}
}

// HostObserver observes a Host's lifecycle transitions, used for metrics and logging.
// The Host never lets an observer panic escape it: callbacks are expected to be
// non-blocking, and any panic they raise is recovered and logged.
type HostObserver interface {
	OnHostMarkedUnhealthy(cause error)
	OnHostRevived()
	OnHostMarkedExpired(connections int)
	OnExpiredHostRevived(connections int)
	OnExpiredHostRemoved(connections int)
	OnActiveHostRemoved(connections int)
}
