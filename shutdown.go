package hostcore

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// closer orchestrates the Host's terminal shutdown: the CAS transition to Closed,
// cancelling any displaced health check, firing the terminal observer event, and
// draining every pooled connection in parallel. Multiple calls to CloseAsync/
// CloseAsyncGracefully are coalesced onto the same run; a forceful call issued
// after a graceful one is already draining upgrades it rather than starting over.
type closer[C Connection] struct {
	once      sync.Once
	forceOnce sync.Once
	done      chan struct{}
	force     chan struct{}

	mu        sync.Mutex
	onClosing []func()
	onClose   []func(error)
}

// doClose starts the shutdown run on first call (graceful or forceful) and returns
// the channel that closes once draining completes. A forceful call always upgrades
// any in-flight graceful drain, even if it arrived first or second.
func (h *Host[Addr, C]) doClose(graceful bool) <-chan struct{} {
	h.closing.once.Do(func() {
		h.closing.done = make(chan struct{})
		h.closing.force = make(chan struct{})
		if !graceful {
			h.closing.forceOnce.Do(func() { close(h.closing.force) })
		}
		go h.runClose()
	})
	if !graceful {
		h.closing.forceOnce.Do(func() { close(h.closing.force) })
	}
	return h.closing.done
}

// CloseAsync force-closes every pooled connection and transitions the Host to
// Closed. Idempotent and safe to call from any non-Closed state.
func (h *Host[Addr, C]) CloseAsync(context.Context) <-chan struct{} {
	return h.doClose(false)
}

// CloseAsyncGracefully drains every pooled connection gracefully before
// transitioning the Host to Closed. A later CloseAsync call upgrades the drain to
// forceful. Idempotent and safe to call from any non-Closed state.
func (h *Host[Addr, C]) CloseAsyncGracefully(context.Context) <-chan struct{} {
	return h.doClose(true)
}

// OnClosing registers f to run once, as soon as the terminal close transition wins
// -- before any connection has actually been drained.
func (h *Host[Addr, C]) OnClosing(f func()) {
	h.closing.mu.Lock()
	h.closing.onClosing = append(h.closing.onClosing, f)
	h.closing.mu.Unlock()
}

// OnClose registers f to run once draining has finished, with the joined error from
// closing the pooled connections (nil if all closed cleanly).
func (h *Host[Addr, C]) OnClose(f func(error)) {
	h.closing.mu.Lock()
	h.closing.onClose = append(h.closing.onClose, f)
	h.closing.mu.Unlock()
}

// runClose performs the one real transition to Closed (if the state is already
// Closed, nothing is drained and only the completion signals fire) and then drains
// whatever connections were present at that instant.
func (h *Host[Addr, C]) runClose() {
	var (
		prev   *connState[C]
		closed bool
	)

	for {
		cur := h.state.Load()
		if cur.state == Closed {
			break
		}

		next := cur.toClosed()
		if !h.state.CompareAndSwap(cur, next) {
			continue
		}

		prev = cur
		closed = true
		break
	}

	h.fireOnClosing()

	var err error
	if closed {
		prev.healthCheck.Cancel()

		if prev.state == Expired {
			h.observer.OnExpiredHostRemoved(len(prev.conns))
		} else {
			h.observer.OnActiveHostRemoved(len(prev.conns))
		}

		err = h.closeConnections(prev.conns)
	}

	close(h.closing.done)
	h.fireOnClose(err)
}

func (h *Host[Addr, C]) fireOnClosing() {
	h.closing.mu.Lock()
	subs := h.closing.onClosing
	h.closing.mu.Unlock()
	for _, f := range subs {
		f()
	}
}

func (h *Host[Addr, C]) fireOnClose(err error) {
	h.closing.mu.Lock()
	subs := h.closing.onClose
	h.closing.mu.Unlock()
	for _, f := range subs {
		f(err)
	}
}

// closeConnections closes every connection concurrently with errgroup, so that one
// connection's failure to close never prevents the others from being attempted, and
// returns every close error joined together.
func (h *Host[Addr, C]) closeConnections(conns []C) error {
	if len(conns) == 0 {
		return nil
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g := new(errgroup.Group)
	for _, c := range conns {
		g.Go(func() error {
			if err := h.closeOne(c); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// closeOne drains c gracefully unless/until a forceful close is requested, in which
// case it force-closes immediately regardless of how far the graceful drain got --
// this is the "graceful-then-forceful upgrades the drain" behavior.
func (h *Host[Addr, C]) closeOne(c C) error {
	select {
	case <-h.closing.force:
		return c.Close(context.Background())
	default:
	}

	graceful := make(chan error, 1)
	go func() { graceful <- c.CloseGracefully(context.Background()) }()

	select {
	case err := <-graceful:
		return err
	case <-h.closing.force:
		if err := c.Close(context.Background()); err != nil {
			log.Debugf("host %s: forceful close after graceful upgrade failed: %v", h.descriptor, err)
			return err
		}
		return nil
	}
}
