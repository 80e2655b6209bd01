package hostcore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyFactoryErrorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	kind := classifyFactoryError(ctx, context.Canceled)
	assert.Equal(t, KindCancelled, kind)
}

func TestClassifyFactoryErrorCancelledViaContextAlone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	kind := classifyFactoryError(ctx, errors.New("dial tcp: use of closed network connection"))
	assert.Equal(t, KindCancelled, kind)
}

func TestClassifyFactoryErrorConnectionLimitReached(t *testing.T) {
	kind := classifyFactoryError(context.Background(), limitReachedError{})
	assert.Equal(t, KindConnectionLimitReached, kind)
}

func TestClassifyFactoryErrorTimeout(t *testing.T) {
	kind := classifyFactoryError(context.Background(), timeoutError{})
	assert.Equal(t, KindConnectTimeout, kind)
}

func TestClassifyFactoryErrorDeadlineExceeded(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)
	kind := classifyFactoryError(ctx, context.DeadlineExceeded)
	assert.Equal(t, KindConnectTimeout, kind)
}

func TestClassifyFactoryErrorGeneric(t *testing.T) {
	kind := classifyFactoryError(context.Background(), errors.New("connection refused"))
	assert.Equal(t, KindConnectError, kind)
}

func TestInstrumentedFactoryWrapsFailureAndTracksOutcome(t *testing.T) {
	cause := errors.New("dial failed")
	factory := &fakeFactory[string]{
		fn: func(context.Context, string) (*fakeConn, error) { return nil, cause },
	}

	var startCalls, successCalls int
	var errorKinds []ConnectErrorKind
	tracker := &trackerSpy{
		onStart: func() int64 { startCalls++; return 42 },
		onOK:    func(int64) { successCalls++ },
		onErr:   func(ts int64, kind ConnectErrorKind) { errorKinds = append(errorKinds, kind) },
	}

	inst := &instrumentedFactory[string, *fakeConn]{delegate: factory, tracker: tracker}
	_, err := inst.newConnection(context.Background(), "host:1")

	require.Error(t, err)
	var connectErr *ConnectError
	require.ErrorAs(t, err, &connectErr)
	assert.Equal(t, KindConnectError, connectErr.Kind)
	assert.Same(t, cause, connectErr.Err)
	assert.Equal(t, 1, startCalls)
	assert.Zero(t, successCalls)
	assert.Equal(t, []ConnectErrorKind{KindConnectError}, errorKinds)
}

func TestInstrumentedFactoryTracksSuccess(t *testing.T) {
	want := newFakeConn(1)
	factory := &fakeFactory[string]{
		fn: func(context.Context, string) (*fakeConn, error) { return want, nil },
	}
	var successCalls int
	tracker := &trackerSpy{
		onStart: func() int64 { return 1 },
		onOK:    func(int64) { successCalls++ },
		onErr:   func(int64, ConnectErrorKind) {},
	}

	inst := &instrumentedFactory[string, *fakeConn]{delegate: factory, tracker: tracker}
	got, err := inst.newConnection(context.Background(), "host:1")

	require.NoError(t, err)
	assert.Same(t, want, got)
	assert.Equal(t, 1, successCalls)
}

type trackerSpy struct {
	onStart func() int64
	onOK    func(int64)
	onErr   func(int64, ConnectErrorKind)
}

func (s *trackerSpy) BeforeConnectStart() int64                        { return s.onStart() }
func (s *trackerSpy) OnConnectSuccess(ts int64)                        { s.onOK(ts) }
func (s *trackerSpy) OnConnectError(ts int64, kind ConnectErrorKind)   { s.onErr(ts, kind) }
