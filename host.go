package hostcore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// Host wraps one resolved backend address: a pool of live connections, the
// connection-lifecycle state machine described in package doc, and the
// collaborators (factory, health check, observer) needed to drive it. The zero
// value is not usable; construct with New.
//
// All state mutation flows through state, a single atomic pointer to an immutable
// connState snapshot -- there is no lock anywhere in the transition logic. Every
// method below is safe for concurrent use.
type Host[Addr comparable, C Connection] struct {
	addr       Addr
	descriptor string
	weight     float64

	cfg       HealthCheckConfig
	factory   *instrumentedFactory[Addr, C]
	indicator HealthIndicator[C]
	observer  safeObserver

	state          atomic.Pointer[connState[C]]
	healthCheckSeq atomic.Uint64

	closing closer[C]
}

// New constructs a Host for addr, starting Active with an empty connection pool.
// descriptor is a human-readable diagnostic label, never used for equality.
// indicator may be nil; observer may be nil (a no-op observer is used instead).
func New[Addr comparable, C Connection](
	addr Addr,
	descriptor string,
	factory ConnectionFactory[Addr, C],
	cfg HealthCheckConfig,
	observer HostObserver,
	indicator HealthIndicator[C],
) *Host[Addr, C] {
	cfg = cfg.withDefaults()
	cfg.validate()

	h := &Host[Addr, C]{
		addr:       addr,
		descriptor: descriptor,
		weight:     1,
		cfg:        cfg,
		indicator:  indicator,
		observer:   newSafeObserver(descriptor, observer),
	}

	tracker := ConnectTracker(indicator)
	h.factory = &instrumentedFactory[Addr, C]{delegate: factory, tracker: tracker}
	h.state.Store(newConnState[C]())

	return h
}

// Address returns the backend address this Host represents.
func (h *Host[Addr, C]) Address() Addr { return h.addr }

// Descriptor returns the human-readable diagnostic label passed to New.
func (h *Host[Addr, C]) Descriptor() string { return h.descriptor }

// Weight returns the non-negative weight the outer balancer should give this Host.
// Defaults to 1; set with SetWeight.
func (h *Host[Addr, C]) Weight() float64 { return h.weight }

// SetWeight updates the weight returned by Weight. Negative weights are clamped to 0.
func (h *Host[Addr, C]) SetWeight(w float64) {
	if w < 0 {
		w = 0
	}
	h.weight = w
}

// State returns the Host's current lifecycle state. Exposed for diagnostics and
// tests; the outer balancer should prefer the narrower CanMakeNewConnections/
// IsHealthy accessors for decision making.
func (h *Host[Addr, C]) State() State { return h.state.Load().state }

// Connections returns a snapshot of the currently pooled connections. The returned
// slice is never mutated after being handed out; a later transition produces a new
// slice rather than touching this one.
func (h *Host[Addr, C]) Connections() []C { return h.state.Load().conns }

// PickConnection reads the current snapshot exactly once and asks selector to pick
// a connection satisfying predicate. It never blocks and never mutates state.
// Returns ok == false when no candidate passes, or once the Host is Closed --
// callers should fall back to NewConnection.
func (h *Host[Addr, C]) PickConnection(selector ConnectionSelector[C], predicate func(C) bool) (conn C, ok bool) {
	cur := h.state.Load()
	if cur.state == Closed {
		return conn, false
	}
	return selector.Select(cur.conns, predicate)
}

// NewConnection creates a new connection via the instrumented factory and attempts
// to add it to the pool.
//
//   - If forceNewAndReserve is true and the new connection's TryReserve fails, it is
//     closed and CONNECTION_REJECTED(reserve) is returned.
//   - usable is then run against the new connection; on false, the connection is
//     still inserted into the pool for later reuse, but CONNECTION_REJECTED(selector)
//     is returned to this caller (closing the connection only if insertion itself
//     was rejected).
//   - Otherwise the connection is inserted; on success it is returned, on rejection
//     it is closed and CONNECTION_REJECTED(add) is returned.
//
// usable may be nil, meaning every newly created connection is acceptable.
func (h *Host[Addr, C]) NewConnection(ctx context.Context, usable func(C) bool, forceNewAndReserve bool) (conn C, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if h.indicator != nil {
		ctx = withHealthIndicator(ctx, h.indicator)
	}

	if h.state.Load().state == Closed {
		return conn, ErrHostClosed
	}

	c, err := h.factory.newConnection(ctx, h.addr)
	if err != nil {
		var connectErr *ConnectError
		if errors.As(err, &connectErr) {
			h.onConnectFailure(connectErr.Err, connectErr.Kind)
		} else {
			h.onConnectFailure(err, KindConnectError)
		}
		return conn, err
	}

	if forceNewAndReserve && !c.TryReserve() {
		h.closeRejected(ctx, c)
		return conn, &ConnectionRejectedError{Origin: RejectReserve}
	}

	if usable != nil && !usable(c) {
		if !h.addConnection(c) {
			h.closeRejected(ctx, c)
		}
		return conn, &ConnectionRejectedError{Origin: RejectSelector}
	}

	if !h.addConnection(c) {
		h.closeRejected(ctx, c)
		return conn, &ConnectionRejectedError{Origin: RejectAdd}
	}

	return c, nil
}

// MarkExpired transitions the Host to Expired from Active or Unhealthy, cancelling
// any health check and emitting onHostMarkedExpired. If the pool was already empty
// it immediately triggers CloseAsync and returns true; otherwise it returns false so
// the outer balancer keeps the Host around until connections drain. Idempotent once
// Expired; returns true once Closed.
func (h *Host[Addr, C]) MarkExpired() bool {
	for {
		cur := h.state.Load()

		switch cur.state {
		case Closed:
			return true
		case Expired:
			if len(cur.conns) == 0 {
				h.doClose(false)
				return true
			}
			return false
		}

		next := cur.toExpired()
		if !h.state.CompareAndSwap(cur, next) {
			continue
		}

		cur.healthCheck.Cancel()
		h.observer.OnHostMarkedExpired(len(next.conns))

		if len(next.conns) == 0 {
			h.doClose(false)
			return true
		}
		return false
	}
}

// MarkActiveIfNotClosed restores Active from Expired, resetting failures and
// emitting onExpiredHostRevived. It is a no-op, not an error, when called from
// Active or Unhealthy -- no event is synthesized for a spurious call. Returns false
// only once the Host is Closed.
func (h *Host[Addr, C]) MarkActiveIfNotClosed() bool {
	for {
		cur := h.state.Load()
		if cur.state == Closed {
			return false
		}
		if cur.state != Expired {
			return true
		}

		next := cur.toActiveNoFailures()
		if h.state.CompareAndSwap(cur, next) {
			h.observer.OnExpiredHostRevived(len(next.conns))
			return true
		}
	}
}

// IsHealthy reports whether the Host is Active or Expired, and, if a HealthIndicator
// is attached, whether it also reports healthy. Unhealthy and Closed always report
// false.
func (h *Host[Addr, C]) IsHealthy() bool {
	cur := h.state.Load()
	if cur.state != Active && cur.state != Expired {
		return false
	}
	if h.indicator != nil {
		return h.indicator.IsHealthy()
	}
	return true
}

// CanMakeNewConnections reports whether the Host is neither Expired nor Closed.
func (h *Host[Addr, C]) CanMakeNewConnections() bool {
	s := h.state.Load().state
	return s != Expired && s != Closed
}

// Score delegates to the HealthIndicator if present, else returns 1.
func (h *Host[Addr, C]) Score() int {
	if h.indicator != nil {
		return h.indicator.Score()
	}
	return 1
}

// addConnection runs the CAS loop described in the pool's race-handling protocol: it
// rejects outright if the Host is Closed or Expired -- Expired is writeable only for
// removals, never for additions, regardless of whether the pool is currently empty,
// since the only legal Expired->Active edge is an explicit MarkActiveIfNotClosed --
// treats a duplicate as success, and otherwise installs the new state, reviving the
// Host if it displaced an Unhealthy health check, then subscribes to the
// connection's close signal to schedule its removal.
func (h *Host[Addr, C]) addConnection(c C) bool {
	for {
		cur := h.state.Load()

		if cur.state == Closed || cur.state == Expired {
			return false
		}

		next := cur.addNewConnection(c)
		if next == cur {
			return true
		}

		if !h.state.CompareAndSwap(cur, next) {
			continue
		}

		if cur.state == Unhealthy {
			cur.healthCheck.Cancel()
			h.observer.OnHostRevived()
		}

		c.OnClose(func(err error) {
			if err != nil {
				log.Debugf("host %s: pooled connection closed with error: %v", h.descriptor, err)
			}
			h.removeConnection(c)
		})

		return true
	}
}

// removeConnection runs the mirrored CAS loop: a no-op if c is absent, otherwise
// installs the state with c removed. If that leaves an empty pool on an Expired
// Host, it hands off to doClose to finish the Expired->Closed transition and emit
// onExpiredHostRemoved.
//
// This still runs after the Host has reached Closed: closeConnections force/
// gracefully closes every pooled connection, and each one's own OnClose then
// drives this same path, shrinking conns down to empty so Connections() reports
// the pool accurately post-close. That is the one field still allowed to move
// once Closed -- the lifecycle state itself never changes again.
func (h *Host[Addr, C]) removeConnection(c C) {
	for {
		cur := h.state.Load()
		next := cur.removeConnection(c)
		if next == cur {
			return
		}

		if !h.state.CompareAndSwap(cur, next) {
			continue
		}

		if next.state == Expired && len(next.conns) == 0 {
			h.doClose(false)
		}
		return
	}
}

// onConnectFailure accounts for one failed connect attempt. Cancelled attempts and
// attempts that hit a connection cap never count toward the health failure
// threshold and never promote the Host, matching the error-handling policy.
func (h *Host[Addr, C]) onConnectFailure(cause error, kind ConnectErrorKind) {
	if kind == KindCancelled || kind == KindConnectionLimitReached {
		return
	}

	for {
		cur := h.state.Load()
		if cur.state == Closed || cur.state == Expired {
			return
		}

		next := cur.toNextFailedConnection(cause, h.cfg.FailedThreshold, h.nextHealthCheckID)
		if !h.state.CompareAndSwap(cur, next) {
			continue
		}

		if next.state == Unhealthy && next.healthCheck != cur.healthCheck {
			h.observer.OnHostMarkedUnhealthy(cause)
			h.startHealthCheck(next.healthCheck)
		}
		return
	}
}

func (h *Host[Addr, C]) nextHealthCheckID() uint64 {
	return h.healthCheckSeq.Add(1)
}

func (h *Host[Addr, C]) closeRejected(ctx context.Context, c C) {
	if err := c.Close(ctx); err != nil {
		log.Debugf("host %s: failed to close rejected connection: %v", h.descriptor, err)
	}
}

func (h *Host[Addr, C]) String() string {
	return fmt.Sprintf("Host(%v, %s, %s)", h.addr, h.descriptor, h.state.Load().state)
}
