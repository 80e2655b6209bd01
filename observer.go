package hostcore

import log "github.com/sirupsen/logrus"

type noopObserver struct{}

func (noopObserver) OnHostMarkedUnhealthy(error) {}
func (noopObserver) OnHostRevived()              {}
func (noopObserver) OnHostMarkedExpired(int)     {}
func (noopObserver) OnExpiredHostRevived(int)    {}
func (noopObserver) OnExpiredHostRemoved(int)    {}
func (noopObserver) OnActiveHostRemoved(int)     {}

// safeObserver wraps a HostObserver so that a panicking callback never escapes into
// the caller that triggered the transition -- it is recovered and logged, matching
// the "observer exceptions are caught and logged" propagation policy.
type safeObserver struct {
	descriptor string
	delegate   HostObserver
}

func newSafeObserver(descriptor string, delegate HostObserver) safeObserver {
	if delegate == nil {
		delegate = noopObserver{}
	}
	return safeObserver{descriptor: descriptor, delegate: delegate}
}

func (o safeObserver) guard(name string, f func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("host %s: observer %s panicked: %v", o.descriptor, name, r)
		}
	}()
	f()
}

func (o safeObserver) OnHostMarkedUnhealthy(cause error) {
	o.guard("OnHostMarkedUnhealthy", func() { o.delegate.OnHostMarkedUnhealthy(cause) })
}

func (o safeObserver) OnHostRevived() {
	o.guard("OnHostRevived", o.delegate.OnHostRevived)
}

func (o safeObserver) OnHostMarkedExpired(n int) {
	o.guard("OnHostMarkedExpired", func() { o.delegate.OnHostMarkedExpired(n) })
}

func (o safeObserver) OnExpiredHostRevived(n int) {
	o.guard("OnExpiredHostRevived", func() { o.delegate.OnExpiredHostRevived(n) })
}

func (o safeObserver) OnExpiredHostRemoved(n int) {
	o.guard("OnExpiredHostRemoved", func() { o.delegate.OnExpiredHostRemoved(n) })
}

func (o safeObserver) OnActiveHostRemoved(n int) {
	o.guard("OnActiveHostRemoved", func() { o.delegate.OnActiveHostRemoved(n) })
}
