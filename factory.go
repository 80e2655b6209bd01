package hostcore

import (
	"context"
	"errors"
)

// TimeoutError is implemented by factory errors that represent a connect timeout,
// mirroring the net package's convention (net.Error.Timeout()) so that existing
// transport errors classify correctly without the factory author needing to know
// about ConnectErrorKind at all.
type TimeoutError interface {
	error
	Timeout() bool
}

// instrumentedFactory wraps an externally supplied ConnectionFactory to report
// connect-start/success/failure/cancel to a ConnectTracker and to classify the
// outcome into a *ConnectError. It never swallows the underlying signal: on success
// it returns the connection unchanged, on failure it returns a *ConnectError
// wrapping the original cause.
type instrumentedFactory[Addr comparable, C Connection] struct {
	delegate ConnectionFactory[Addr, C]
	tracker  ConnectTracker
}

func (f *instrumentedFactory[Addr, C]) newConnection(ctx context.Context, addr Addr) (C, error) {
	var startTs int64
	if f.tracker != nil {
		startTs = f.tracker.BeforeConnectStart()
	}

	c, err := f.delegate.NewConnection(ctx, addr)
	if err == nil {
		if f.tracker != nil {
			f.tracker.OnConnectSuccess(startTs)
		}
		return c, nil
	}

	kind := classifyFactoryError(ctx, err)
	if f.tracker != nil {
		f.tracker.OnConnectError(startTs, kind)
	}

	return c, &ConnectError{Kind: kind, Err: err}
}

func classifyFactoryError(ctx context.Context, err error) ConnectErrorKind {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return KindCancelled
	}

	var limitErr interface{ ConnectionLimitReached() bool }
	if errors.As(err, &limitErr) && limitErr.ConnectionLimitReached() {
		return KindConnectionLimitReached
	}

	var timeoutErr TimeoutError
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return KindConnectTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindConnectTimeout
	}

	return KindConnectError
}
