package circuitbreaker

import (
	"sync"
	"time"
)

// HostBreakers maintains one circuit breaker per remote host for outbound
// feed fetches. When a host stops responding, every feed it serves costs a
// full connect timeout; once the host's breaker opens, the remaining fetches
// against it fail immediately until the cool-down elapses.
type HostBreakers struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// HostFetchConfig returns configuration for outbound fetches against a
// single remote host. Trips after 5 failures within the interval, stays
// open for 10 minutes so the host is retried on a later scheduler tick.
func HostFetchConfig(host string) Config {
	return Config{
		Name:             "fetch:" + host,
		MaxRequests:      1, // Single probe request in half-open state
		Interval:         10 * time.Minute,
		Timeout:          10 * time.Minute,
		FailureThreshold: 0.7,
		MinRequests:      5, // Hosts serving only a feed or two never reach the gate
	}
}

// NewHostBreakers creates an empty registry. Breakers are created lazily on
// the first fetch against each host.
func NewHostBreakers() *HostBreakers {
	return &HostBreakers{
		breakers: make(map[string]*CircuitBreaker),
	}
}

// ForHost returns the breaker for the given host, creating it on first use.
func (hb *HostBreakers) ForHost(host string) *CircuitBreaker {
	hb.mu.Lock()
	defer hb.mu.Unlock()

	cb, ok := hb.breakers[host]
	if !ok {
		cb = New(HostFetchConfig(host))
		hb.breakers[host] = cb
	}
	return cb
}

// Do runs fn through the breaker for the given host.
// If that host's circuit is open, it returns ErrOpenState immediately.
func (hb *HostBreakers) Do(host string, fn func() (interface{}, error)) (interface{}, error) {
	return hb.ForHost(host).Execute(fn)
}

// Len returns the number of hosts currently tracked.
func (hb *HostBreakers) Len() int {
	hb.mu.Lock()
	defer hb.mu.Unlock()
	return len(hb.breakers)
}
