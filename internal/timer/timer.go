// Package timer abstracts the external turn-timeout service. Delivery is at
// least once and possibly late; cancellation is best effort and must never be
// relied on for correctness. The orchestrator fences callbacks by sequence
// number, which is what turns these weak guarantees into exactly-once impact.
package timer

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"
)

// TaskHandle identifies one scheduled timeout.
type TaskHandle string

// Callback receives the key the task was scheduled with. It may be invoked
// more than once for the same task and must tolerate that.
type Callback func(tableID string, handNum, turnSeq uint64)

// Scheduler schedules and cancels turn timeouts.
type Scheduler interface {
	Schedule(tableID string, handNum, turnSeq uint64, delay time.Duration) (TaskHandle, error)
	// Cancel is best effort: the callback may already be in flight.
	Cancel(handle TaskHandle) error
}

// ClockScheduler is an in-process Scheduler driven by a quartz clock, so
// tests can advance time deterministically with a mock.
type ClockScheduler struct {
	clock  quartz.Clock
	cb     Callback
	logger *log.Logger

	mu      sync.Mutex
	pending map[TaskHandle]*quartz.Timer
}

var _ Scheduler = (*ClockScheduler)(nil)

// NewClockScheduler creates a scheduler delivering to cb.
func NewClockScheduler(clock quartz.Clock, cb Callback, logger *log.Logger) *ClockScheduler {
	return &ClockScheduler{
		clock:   clock,
		cb:      cb,
		logger:  logger.WithPrefix("timer"),
		pending: make(map[TaskHandle]*quartz.Timer),
	}
}

// Schedule registers a timeout firing after delay with the given key.
func (s *ClockScheduler) Schedule(tableID string, handNum, turnSeq uint64, delay time.Duration) (TaskHandle, error) {
	handle := TaskHandle(uuid.NewString())

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[handle] = s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.pending, handle)
		s.mu.Unlock()

		s.logger.Debug("turn timeout fired",
			"table", tableID, "hand", handNum, "turnSeq", turnSeq)
		s.cb(tableID, handNum, turnSeq)
	})

	s.logger.Debug("turn timeout scheduled",
		"table", tableID, "hand", handNum, "turnSeq", turnSeq, "delay", delay)
	return handle, nil
}

// Cancel stops a pending timeout. A callback already dispatched still runs;
// the sequence fence downstream makes that harmless.
func (s *ClockScheduler) Cancel(handle TaskHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.pending[handle]; ok {
		t.Stop()
		delete(s.pending, handle)
	}
	return nil
}

// PendingCount returns the number of uncancelled, unfired tasks.
func (s *ClockScheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
