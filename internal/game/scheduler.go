// internal/game/scheduler.go
package game

import (
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// TurnScheduler owns at most one pending timer. Every Arm and Cancel bumps a generation counter;
// an expiry whose generation is no longer current is dropped, so a timer that already fired its
// goroutine before being stopped still cannot act.
type TurnScheduler struct {
	mu     sync.Mutex
	timer  *time.Timer
	gen    uint64
	logger logrus.FieldLogger
}

// NewTurnScheduler returns an idle scheduler. A nil logger uses the logrus standard logger.
func NewTurnScheduler(logger logrus.FieldLogger) *TurnScheduler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &TurnScheduler{logger: logger}
}

// Arm cancels any pending timer and starts a new one. onExpire runs once on its own goroutine
// after d, receiving the generation it was armed with, unless the scheduler moved on first.
func (s *TurnScheduler) Arm(d time.Duration, onExpire func(gen uint64)) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(d, func() {
		s.fire(gen, onExpire)
	})
	return gen
}

// Cancel stops the pending timer, if any. Safe to call repeatedly.
func (s *TurnScheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.gen++
}

// Current reports whether gen is still the live generation.
func (s *TurnScheduler) Current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen && s.timer != nil
}

// Generation returns the current generation.
func (s *TurnScheduler) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Pending reports whether a timer is armed and has not fired or been cancelled.
func (s *TurnScheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

func (s *TurnScheduler) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *TurnScheduler) fire(gen uint64, onExpire func(uint64)) {
	s.mu.Lock()
	if s.gen != gen || s.timer == nil {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("generation", gen).Errorf("timer callback panicked: %v\n%s", r, debug.Stack())
		}
	}()
	onExpire(gen)
}
