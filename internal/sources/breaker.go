package sources

import (
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned while a service's breaker is open and calls are
// being rejected without touching the network.
var ErrCircuitOpen = errors.New("sources: circuit breaker is open")

// BreakerConfig tunes a service breaker.
type BreakerConfig struct {
	// MaxFailures is the consecutive-failure count that trips the circuit.
	// Default: 3.
	MaxFailures uint32

	// Cooldown is how long the circuit stays open before allowing test
	// requests. Default: 30s.
	Cooldown time.Duration

	// HalfOpenSuccesses is the consecutive-success count in half-open state
	// that closes the circuit again. Default: 2.
	HalfOpenSuccesses uint32
}

// Breaker wraps gobreaker around one external service so a flapping API
// fails fast instead of stalling every command that touches it. Not-found
// results are not failures and must not pass through Do.
type Breaker struct {
	name    string
	breaker *gobreaker.CircuitBreaker
}

// NewBreaker creates a breaker for the named service with defaults applied.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.HalfOpenSuccesses == 0 {
		cfg.HalfOpenSuccesses = 2
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenSuccesses,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("%s circuit breaker: %s -> %s", name, from, to)
		},
	}

	return &Breaker{name: name, breaker: gobreaker.NewCircuitBreaker(settings)}
}

// Do runs fn through the breaker. While the circuit is open it returns
// ErrCircuitOpen immediately.
func (b *Breaker) Do(fn func() error) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

// State returns the breaker state as a string: closed, open or half-open.
func (b *Breaker) State() string {
	switch b.breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}
