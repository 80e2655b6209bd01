package hostcore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnStateAddNewConnectionDuplicateIsNoop(t *testing.T) {
	s := newConnState[*fakeConn]()
	c := newFakeConn(1)

	s1 := s.addNewConnection(c)
	require.NotSame(t, s, s1)
	assert.Len(t, s1.conns, 1)

	s2 := s1.addNewConnection(c)
	assert.Same(t, s1, s2, "adding an already-pooled connection must be a no-op by identity")
}

func TestConnStateRemoveConnectionAbsentIsNoop(t *testing.T) {
	s := newConnState[*fakeConn]()
	c := newFakeConn(1)

	s2 := s.removeConnection(c)
	assert.Same(t, s, s2, "removing an untracked connection must be a no-op by identity")
}

func TestConnStateRemoveConnectionPreservesOthers(t *testing.T) {
	s := newConnState[*fakeConn]()
	a, b, c := newFakeConn(1), newFakeConn(2), newFakeConn(3)

	s = s.addNewConnection(a)
	s = s.addNewConnection(b)
	s = s.addNewConnection(c)
	require.Len(t, s.conns, 3)

	s = s.removeConnection(b)
	assert.Len(t, s.conns, 2)
	assert.Equal(t, -1, indexOfConn(s.conns, b))
	assert.NotEqual(t, -1, indexOfConn(s.conns, a))
	assert.NotEqual(t, -1, indexOfConn(s.conns, c))
}

func TestConnStateToNextFailedConnectionPromotesAtThreshold(t *testing.T) {
	s := newConnState[*fakeConn]()
	cause := errors.New("boom")
	var nextID uint64
	gen := func() uint64 { nextID++; return nextID }

	s = s.toNextFailedConnection(cause, 3, gen)
	assert.Equal(t, Active, s.state)
	assert.EqualValues(t, 1, s.failedConnections)
	assert.Nil(t, s.healthCheck)

	s = s.toNextFailedConnection(cause, 3, gen)
	assert.Equal(t, Active, s.state)
	assert.EqualValues(t, 2, s.failedConnections)

	s = s.toNextFailedConnection(cause, 3, gen)
	assert.Equal(t, Unhealthy, s.state)
	assert.EqualValues(t, 3, s.failedConnections)
	require.NotNil(t, s.healthCheck)
	assert.Same(t, cause, s.healthCheck.Cause())
}

func TestConnStateToNextFailedConnectionSaturates(t *testing.T) {
	s := &connState[*fakeConn]{state: Unhealthy, failedConnections: ^uint64(0), healthCheck: newHealthCheck(1, nil)}
	gen := func() uint64 { return 2 }

	next := s.toNextFailedConnection(errors.New("again"), 1, gen)
	assert.Equal(t, ^uint64(0), next.failedConnections, "the counter must saturate, never wrap")
	assert.Same(t, s.healthCheck, next.healthCheck, "already-unhealthy must keep its existing health check")
}

func TestConnStateToActiveNoFailuresResetsCounterAndHealthCheck(t *testing.T) {
	s := &connState[*fakeConn]{state: Unhealthy, failedConnections: 7, healthCheck: newHealthCheck(1, nil)}
	next := s.toActiveNoFailures()
	assert.Equal(t, Active, next.state)
	assert.Zero(t, next.failedConnections)
	assert.Nil(t, next.healthCheck)
}

func TestConnStateToExpiredPreservesConnsAndResetsFailures(t *testing.T) {
	c := newFakeConn(1)
	s := &connState[*fakeConn]{state: Active, conns: []*fakeConn{c}, failedConnections: 2}
	next := s.toExpired()
	assert.Equal(t, Expired, next.state)
	assert.Equal(t, []*fakeConn{c}, next.conns)
	assert.EqualValues(t, 0, next.failedConnections)
}

func TestConnStateToClosedPreservesConns(t *testing.T) {
	c := newFakeConn(1)
	s := &connState[*fakeConn]{state: Expired, conns: []*fakeConn{c}}
	next := s.toClosed()
	assert.Equal(t, Closed, next.state)
	assert.Equal(t, []*fakeConn{c}, next.conns)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "ACTIVE", Active.String())
	assert.Equal(t, "UNHEALTHY", Unhealthy.String())
	assert.Equal(t, "EXPIRED", Expired.String())
	assert.Equal(t, "CLOSED", Closed.String())
	assert.Equal(t, "UNKNOWN", State(99).String())
}

func TestHealthCheckCancelIsNilSafeAndIdempotent(t *testing.T) {
	var hc *HealthCheck
	assert.NotPanics(t, hc.Cancel)
	assert.Nil(t, hc.Cause())

	hc = newHealthCheck(1, errors.New("x"))
	hc.Cancel()
	assert.NotPanics(t, hc.Cancel)
}
