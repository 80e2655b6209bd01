/*
Package hostcore implements the per-endpoint connection pool and lifecycle
state machine used by a client-side load balancer.

A Host wraps one resolved backend address. It owns a pool of live
connections to that address, tracks the address's health across four
states (Active, Unhealthy, Expired, Closed), and coordinates the
transitions between them in response to connection-establishment
attempts, connection-close events, service-discovery signals, and
health-check outcomes. All of this happens without locking the hot path:
a Host's entire observable state is a single immutable snapshot swapped
in with a compare-and-swap loop.

Host does not choose between multiple backend hosts, that is the job of
the outer load balancer, which holds a collection of Hosts and asks each
one in turn for a connection via PickConnection or NewConnection. Host
also does not retry user requests, persist anything to disk, or speak
any wire protocol; it only tracks state and drains connections.

# Lifecycle

The four states and their legal transitions:

	ACTIVE     -- connect failure, count >= threshold --> UNHEALTHY
	ACTIVE     -- SD marks expired                    --> EXPIRED
	UNHEALTHY  -- health check succeeds, or add races  --> ACTIVE
	UNHEALTHY  -- SD marks expired                     --> EXPIRED
	EXPIRED    -- SD marks active again                --> ACTIVE
	EXPIRED    -- last connection closes               --> CLOSED
	any        -- CloseAsync / CloseAsyncGracefully     --> CLOSED

CLOSED is terminal. Once reached, a Host's state never changes again.

# Health checking

When a Host accumulates enough consecutive connect failures it is
demoted to Unhealthy and a background health check is scheduled: it
retries new connections on a jittered interval until one succeeds, then
promotes the Host back to Active. The retry interval and jitter are
supplied via HealthCheckConfig.

# Observability

Host reports its lifecycle transitions to a HostObserver and its
per-attempt connect outcomes to a ConnectTracker (optionally combined in
a HealthIndicator). PrometheusMetrics supplies a ready-made HostObserver
backed by Prometheus counters.
*/
package hostcore
