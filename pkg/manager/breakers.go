package manager

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/finsight-ai/finsight/pkg/models"
)

// Breaker tuning: a (provider, model) pair trips after 5 failures inside a
// 60-second window and stays out of the candidate set until the cooldown
// elapses.
const (
	breakerFailureThreshold = 5
	breakerWindow           = 60 * time.Second
	breakerCooldown         = 5 * time.Minute
)

// breakerSet lazily creates one circuit breaker per (provider, model).
type breakerSet struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func newBreakerSet() *breakerSet {
	return &breakerSet{breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

func breakerKey(p models.Provider, model string) string {
	return string(p) + "/" + model
}

func (b *breakerSet) get(p models.Provider, model string) *gobreaker.CircuitBreaker {
	key := breakerKey(p, model)

	b.mu.Lock()
	defer b.mu.Unlock()

	cb, ok := b.breakers[key]
	if !ok {
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     key,
			Interval: breakerWindow,
			Timeout:  breakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.TotalFailures >= breakerFailureThreshold
			},
		})
		b.breakers[key] = cb
	}
	return cb
}

// open reports whether the pair is currently tripped.
func (b *breakerSet) open(p models.Provider, model string) bool {
	return b.get(p, model).State() == gobreaker.StateOpen
}
