package hostcore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics is a ready-made HostObserver backend, one instance shared across
// every Host in a process; call Observer per Host to get a HostObserver scoped to
// that Host's label value.
type PrometheusMetrics struct {
	markedUnhealthy *prometheus.CounterVec
	revived         *prometheus.CounterVec
	markedExpired   *prometheus.CounterVec
	expiredRevived  *prometheus.CounterVec
	expiredRemoved  *prometheus.CounterVec
	activeRemoved   *prometheus.CounterVec
}

// NewPrometheusMetrics registers the host lifecycle counters with reg and returns a
// PrometheusMetrics ready to hand out per-host observers.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)

	m := &PrometheusMetrics{
		markedUnhealthy: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hostcore",
			Name:      "host_marked_unhealthy_total",
			Help:      "Number of times a host was demoted to unhealthy.",
		}, []string{"host"}),
		revived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hostcore",
			Name:      "host_revived_total",
			Help:      "Number of times a host was promoted back to active from unhealthy.",
		}, []string{"host"}),
		markedExpired: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hostcore",
			Name:      "host_marked_expired_total",
			Help:      "Number of times a host was marked expired by service discovery.",
		}, []string{"host"}),
		expiredRevived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hostcore",
			Name:      "host_expired_revived_total",
			Help:      "Number of times an expired host was revived by service discovery.",
		}, []string{"host"}),
		expiredRemoved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hostcore",
			Name:      "host_expired_removed_connections_total",
			Help:      "Connections drained while closing an expired host.",
		}, []string{"host"}),
		activeRemoved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hostcore",
			Name:      "host_active_removed_connections_total",
			Help:      "Connections drained while closing an active host.",
		}, []string{"host"}),
	}

	return m
}

// Observer returns a HostObserver that records events under the given host label,
// typically the Host's Descriptor() or a string form of its Address().
func (m *PrometheusMetrics) Observer(host string) HostObserver {
	return &prometheusObserver{metrics: m, host: host}
}

type prometheusObserver struct {
	metrics *PrometheusMetrics
	host    string
}

func (o *prometheusObserver) OnHostMarkedUnhealthy(error) {
	o.metrics.markedUnhealthy.WithLabelValues(o.host).Inc()
}

func (o *prometheusObserver) OnHostRevived() {
	o.metrics.revived.WithLabelValues(o.host).Inc()
}

func (o *prometheusObserver) OnHostMarkedExpired(n int) {
	o.metrics.markedExpired.WithLabelValues(o.host).Inc()
}

func (o *prometheusObserver) OnExpiredHostRevived(n int) {
	o.metrics.expiredRevived.WithLabelValues(o.host).Inc()
}

func (o *prometheusObserver) OnExpiredHostRemoved(n int) {
	o.metrics.expiredRemoved.WithLabelValues(o.host).Add(float64(n))
}

func (o *prometheusObserver) OnActiveHostRemoved(n int) {
	o.metrics.activeRemoved.WithLabelValues(o.host).Add(float64(n))
}
