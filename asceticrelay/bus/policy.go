package bus

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy is an immediate exponential retry. Attempts counts retries
// after the first try. Interval n is MinInterval + IntervalDelta*(2^n-1),
// capped at MaxInterval.
type RetryPolicy struct {
	Attempts      int
	MinInterval   time.Duration
	MaxInterval   time.Duration
	IntervalDelta time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:      5,
		MinInterval:   5 * time.Second,
		MaxInterval:   time.Minute,
		IntervalDelta: 5 * time.Second,
	}
}

func (p RetryPolicy) newBackOff() backoff.BackOff {
	return &exponentialInterval{min: p.MinInterval, max: p.MaxInterval, delta: p.IntervalDelta}
}

func (p RetryPolicy) run(ctx context.Context, op func() error, notify func(err error, next time.Duration)) error {
	opts := []backoff.RetryOption{
		backoff.WithBackOff(p.newBackOff()),
		backoff.WithMaxTries(uint(p.Attempts + 1)),
	}
	if notify != nil {
		opts = append(opts, backoff.WithNotify(notify))
	}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, op()
	}, opts...)
	return err
}

type exponentialInterval struct {
	min     time.Duration
	max     time.Duration
	delta   time.Duration
	attempt int
}

func (e *exponentialInterval) NextBackOff() time.Duration {
	const maxShift = 30
	shift := e.attempt
	if shift > maxShift {
		shift = maxShift
	}
	e.attempt++

	next := e.min + e.delta*time.Duration((int64(1)<<shift)-1)
	if next > e.max || next < e.min {
		return e.max
	}
	return next
}

func (e *exponentialInterval) Reset() {
	e.attempt = 0
}

// RedeliveryPolicy is the escalating sequence of delays used once immediate
// retries are exhausted.
type RedeliveryPolicy struct {
	Intervals []time.Duration
}

func DefaultRedeliveryPolicy() RedeliveryPolicy {
	return RedeliveryPolicy{
		Intervals: []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute, 30 * time.Minute},
	}
}

// Next returns the delay before redelivery number done+1.
func (p RedeliveryPolicy) Next(done int) (time.Duration, bool) {
	if done < 0 || done >= len(p.Intervals) {
		return 0, false
	}
	return p.Intervals[done], true
}

// BreakerPolicy trips when at least ActiveThreshold attempts happened in
// TrackingPeriod and TripThreshold percent of them failed. The breaker stays
// open for ResetInterval.
type BreakerPolicy struct {
	TripThreshold   uint32
	ActiveThreshold uint32
	TrackingPeriod  time.Duration
	ResetInterval   time.Duration
}

func DefaultBreakerPolicy() BreakerPolicy {
	return BreakerPolicy{
		TripThreshold:   15,
		ActiveThreshold: 10,
		TrackingPeriod:  time.Minute,
		ResetInterval:   5 * time.Minute,
	}
}
