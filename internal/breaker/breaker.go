// Package breaker wraps a storage health probe in a circuit breaker:
// three consecutive failures force the breaker open for the cooldown
// period before probing again.
package breaker

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

// Breaker decides whether the Healthy -> Reconnecting -> Healthy state
// machine is presently Healthy or Reconnecting for a dependency.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// New builds a breaker named for the dependency it guards (e.g. "postgres").
// It opens after three consecutive failures and probes again after cooldown.
func New(name string, cooldown time.Duration) *Breaker {
	settings := gobreaker.Settings{
		Name:     name,
		Interval: 0, // counts never reset while closed
		Timeout:  cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Probe runs check through the breaker. A nil return means Healthy; a
// non-nil return means either check itself failed or the breaker is
// presently open (Reconnecting) and refused to call check at all.
func (b *Breaker) Probe(ctx context.Context, check func(context.Context) error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, check(ctx)
	})
	return err
}

// State reports the breaker's current gobreaker state name.
func (b *Breaker) State() string {
	return b.cb.State().String()
}
