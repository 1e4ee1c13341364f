package bus

import (
	"context"
	"errors"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

func newBreaker(name string, policy BreakerPolicy, logger *zap.Logger, metrics *Metrics) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    policy.TrackingPeriod,
		Timeout:     policy.ResetInterval,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < policy.ActiveThreshold {
				return false
			}
			return uint64(counts.TotalFailures)*100 >= uint64(policy.TripThreshold)*uint64(counts.Requests)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			metrics.breakerState(name, to)
		},
	})
}

// guard runs fn through cb and turns a refused call into ErrUnavailable.
func guard(cb *gobreaker.CircuitBreaker, fn func() error) error {
	_, err := cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrUnavailable
	}
	return err
}
