package server

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/cardroomhq/cardroom/internal/game"
	"github.com/cardroomhq/cardroom/internal/timer"
)

// Orchestrator schedules one turn timeout per table and resolves the ones
// that fire. The timer service only promises at-least-once delivery and
// best-effort cancellation; exactly-once impact on hand state comes from the
// sequence number embedded in each task, which the game core fences on.
type Orchestrator struct {
	service   *GameService
	scheduler timer.Scheduler
	metrics   *Metrics
	logger    *log.Logger
	budget    time.Duration

	mu      sync.Mutex
	pending map[string]pendingTurn
}

// pendingTurn pairs a scheduled task's handle with the turn it guards, so a
// late delivery for an older turn cannot evict the live entry.
type pendingTurn struct {
	handle  timer.TaskHandle
	handNum uint64
	turnSeq uint64
}

// NewOrchestrator creates the orchestrator. Wire a scheduler with
// SetScheduler before play starts, passing HandleTimeout as its callback.
func NewOrchestrator(service *GameService, metrics *Metrics, logger *log.Logger, budget time.Duration) *Orchestrator {
	return &Orchestrator{
		service: service,
		metrics: metrics,
		logger:  logger.WithPrefix("turns"),
		budget:  budget,
		pending: make(map[string]pendingTurn),
	}
}

// SetScheduler wires the timer backend.
func (o *Orchestrator) SetScheduler(s timer.Scheduler) { o.scheduler = s }

var _ TurnWatcher = (*Orchestrator)(nil)

// TurnChanged cancels the previous turn's timeout and schedules one for the
// new turn. Cancellation is best effort: a task that fires anyway carries a
// stale sequence number and is discarded on resolution.
func (o *Orchestrator) TurnChanged(tableID string, handNum, turnSeq uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if prev, ok := o.pending[tableID]; ok {
		_ = o.scheduler.Cancel(prev.handle)
		delete(o.pending, tableID)
	}

	handle, err := o.scheduler.Schedule(tableID, handNum, turnSeq, o.budget)
	if err != nil {
		// An unscheduled turn never times out; the table stalls until the
		// player acts. Loud log, nothing else to do.
		o.logger.Error("schedule turn timeout", "table", tableID, "hand", handNum, "err", err)
		return
	}
	o.pending[tableID] = pendingTurn{handle: handle, handNum: handNum, turnSeq: turnSeq}
	o.metrics.TimeoutsScheduled.Inc()
}

// TurnEnded cancels any pending timeout for a table whose hand settled.
func (o *Orchestrator) TurnEnded(tableID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cur, ok := o.pending[tableID]; ok {
		_ = o.scheduler.Cancel(cur.handle)
		delete(o.pending, tableID)
	}
}

// HandleTimeout is the timer service callback. Duplicate and late deliveries
// are expected; the sequence fence makes them harmless.
func (o *Orchestrator) HandleTimeout(tableID string, handNum, turnSeq uint64) {
	o.metrics.TimeoutsFired.Inc()

	// Only the firing task's own entry is cleared: a late delivery for an
	// older turn must not drop the handle of the currently scheduled one.
	o.mu.Lock()
	if cur, ok := o.pending[tableID]; ok && cur.handNum == handNum && cur.turnSeq == turnSeq {
		delete(o.pending, tableID)
	}
	o.mu.Unlock()

	err := o.service.submitTimeout(context.Background(), tableID, handNum, turnSeq)
	switch {
	case err == nil:
	case game.IsCode(err, game.CodeStaleAction):
		o.metrics.TimeoutsStale.Inc()
		o.logger.Debug("stale timeout discarded", "table", tableID, "hand", handNum, "seq", turnSeq)
	default:
		o.logger.Error("resolve turn timeout", "table", tableID, "hand", handNum, "seq", turnSeq, "err", err)
	}
}

// PendingTimeouts reports how many tables have a scheduled timeout.
func (o *Orchestrator) PendingTimeouts() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}
