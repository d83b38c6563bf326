package llm

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// GuardConfig bounds model calls with a timeout and a circuit breaker.
type GuardConfig struct {
	Name        string
	Timeout     time.Duration
	MaxRequests uint32
	Interval    time.Duration
	OpenTimeout time.Duration
	// FailureThreshold is the failure ratio that opens the breaker.
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultGuardConfig returns a default configuration for the guard.
func DefaultGuardConfig(name string) GuardConfig {
	return GuardConfig{
		Name:             name,
		Timeout:          60 * time.Second,
		MaxRequests:      3,
		Interval:         60 * time.Second,
		OpenTimeout:      30 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

type guarded struct {
	next    Model
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
}

// Guard wraps next so every call has a deadline and repeated provider
// failures trip a circuit breaker instead of piling up.
func Guard(next Model, cfg GuardConfig, logger *zap.Logger) Model {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("llm")
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Only trip if we have enough requests to make a decision
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation says nothing about provider health.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return &guarded{next: next, cb: cb, timeout: cfg.Timeout}
}

func (g *guarded) Invoke(ctx context.Context, req *Request) (*Reply, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	out, err := g.cb.Execute(func() (interface{}, error) {
		return g.next.Invoke(ctx, req)
	})
	if err != nil {
		return nil, asModelError(req.Purpose, err)
	}
	reply, _ := out.(*Reply)
	return reply, nil
}

// IsUnavailable reports whether err came from an open circuit breaker.
func IsUnavailable(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
