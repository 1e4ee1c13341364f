package bus

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrSchedulerClosed = errors.New("bus: scheduler closed")

// TimerScheduler parks envelopes in process memory. Parked envelopes are
// lost when the process stops; use a broker-side scheduler when the
// transport has one.
type TimerScheduler struct {
	mu      sync.Mutex
	deliver ConsumeFunc
	timers  map[*time.Timer]struct{}
	closed  bool
	wg      sync.WaitGroup
	logger  *zap.Logger
}

func NewTimerScheduler(logger *zap.Logger) *TimerScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimerScheduler{
		timers: make(map[*time.Timer]struct{}),
		logger: logger,
	}
}

func (s *TimerScheduler) Bind(deliver ConsumeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliver = deliver
}

func (s *TimerScheduler) Schedule(_ context.Context, env Envelope, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSchedulerClosed
	}
	if s.deliver == nil {
		return errors.New("bus: scheduler is not bound to a pipeline")
	}

	deliver := s.deliver
	var timer *time.Timer
	s.wg.Add(1)
	timer = time.AfterFunc(delay, func() {
		defer s.wg.Done()
		s.mu.Lock()
		delete(s.timers, timer)
		s.mu.Unlock()
		if err := deliver(context.Background(), env); err != nil {
			s.logger.Error("scheduled redelivery failed",
				zap.String("event_id", env.ID.String()),
				zap.Error(err),
			)
		}
	})
	s.timers[timer] = struct{}{}
	return nil
}

// Pending reports how many envelopes wait for their timer.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Close cancels parked envelopes and waits for running redeliveries.
func (s *TimerScheduler) Close() {
	s.mu.Lock()
	s.closed = true
	for timer := range s.timers {
		if timer.Stop() {
			s.wg.Done()
		}
		delete(s.timers, timer)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
