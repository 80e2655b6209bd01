package hostcore

import (
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"
	log "github.com/sirupsen/logrus"
)

// jitterBackOff implements backoff.BackOff with a fixed interval plus uniform random
// jitter on every call, per HealthCheckConfig.HealthCheckInterval/.Jitter -- not an
// exponential backoff, so the health check probes at a steady cadence instead of
// backing off under load.
type jitterBackOff struct {
	interval time.Duration
	jitter   time.Duration
}

func (b *jitterBackOff) NextBackOff() time.Duration {
	if b.jitter <= 0 {
		return b.interval
	}

	span := int64(2*b.jitter) + 1
	delta := time.Duration(rand.Int64N(span)) - b.jitter
	d := b.interval + delta
	if d < 0 {
		return 0
	}
	return d
}

func alwaysUsable[C Connection](C) bool { return true }

// startHealthCheck launches hc's retry loop on the configured Scheduler.
func (h *Host[Addr, C]) startHealthCheck(hc *HealthCheck) {
	h.cfg.Scheduler.Go(func() { h.runHealthCheck(hc) })
}

// runHealthCheck retries NewConnection on a jittered interval until one succeeds or
// hc is cancelled -- either because a racing connection add already revived the
// Host, or because the Host closed. A successful attempt is added to the pool by
// the ordinary NewConnection/addConnection path, which promotes Unhealthy->Active
// and fires onHostRevived precisely when the Host was still Unhealthy at that
// moment; if it had already been revived through another path, the add is a no-op
// transition and no duplicate event fires.
func (h *Host[Addr, C]) runHealthCheck(hc *HealthCheck) {
	bo := &jitterBackOff{interval: h.cfg.HealthCheckInterval, jitter: h.cfg.Jitter}

	op := func() (C, error) {
		c, err := h.NewConnection(hc.ctx, alwaysUsable[C], false)
		if err != nil {
			log.Debugf("host %s: health check attempt failed: %v", h.descriptor, err)
			return c, err
		}
		return c, nil
	}

	_, err := backoff.Retry(hc.ctx, op, backoff.WithBackOff(bo), backoff.WithMaxElapsedTime(0))
	if err == nil {
		return
	}

	if hc.ctx.Err() != nil {
		// superseded by a racing revival, or the host closed underneath us.
		return
	}

	// Anything else is an unexpected failure of the retry machinery itself (not of
	// an individual connect attempt, which op already logs and retries past). Force
	// the host back to active rather than leaving it stranded unhealthy with a dead
	// health check.
	log.Errorf("host %s: health check scheduler failed, forcing active: %v", h.descriptor, err)
	h.forceHealthy(hc)
}

// forceHealthy is the safety-net demotion used when the health check's retry
// machinery itself fails unexpectedly. It only acts if hc is still the Host's
// current health check.
func (h *Host[Addr, C]) forceHealthy(hc *HealthCheck) {
	for {
		cur := h.state.Load()
		if cur.state != Unhealthy || cur.healthCheck != hc {
			return
		}
		next := cur.toActiveNoFailures()
		if h.state.CompareAndSwap(cur, next) {
			hc.Cancel()
			h.observer.OnHostRevived()
			return
		}
	}
}
