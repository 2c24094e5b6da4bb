package session

import "github.com/kstaniek/qpipe-broker/internal/stats"

// connGuard increments a connection gauge on acquisition and guarantees a
// matching decrement on release, regardless of how the caller exits. Callers
// defer release() immediately after acquiring one.
type connGuard struct {
	dec func()
}

func newProducerGuard() *connGuard {
	stats.IncProducers()
	return &connGuard{dec: stats.DecProducers}
}

func newConsumerGuard() *connGuard {
	stats.IncConsumers()
	return &connGuard{dec: stats.DecConsumers}
}

func (g *connGuard) release() { g.dec() }
