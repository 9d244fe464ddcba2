// Package scheduler drives the daily task cycle: session warmup, entry
// scans, exit monitoring, order sync and end-of-day work. Tasks are
// registered with a trigger and executed by a worker pool; a task is marked
// as run before its action is invoked, so a slow or failing run can never
// fire twice for the same trigger.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trade-agent/internal/logger"
	"trade-agent/internal/metrics"
)

var ist = time.FixedZone("IST", 19800)

// Calendar reports whether the exchange trades on a given day. Market-bound
// tasks are skipped on non-trading days.
type Calendar interface {
	IsTradingDay(t time.Time) bool
}

// alwaysTrading stands in when no holiday source is configured; weekends
// are still respected by the triggers themselves.
type alwaysTrading struct{}

func (alwaysTrading) IsTradingDay(time.Time) bool { return true }

type Task struct {
	Name    string
	Trigger Trigger
	Action  func(ctx context.Context) error

	// MarketDaysOnly tasks are skipped on weekends and exchange holidays.
	MarketDaysOnly bool
}

type taskState struct {
	task    *Task
	mu      sync.Mutex
	lastRun time.Time
	running bool
}

type Scheduler struct {
	calendar Calendar

	mu    sync.Mutex
	tasks []*taskState

	work chan *taskState
	wg   sync.WaitGroup
}

func New(calendar Calendar, workers int) *Scheduler {
	if calendar == nil {
		calendar = alwaysTrading{}
	}
	if workers <= 0 {
		workers = 1
	}
	s := &Scheduler{
		calendar: calendar,
		work:     make(chan *taskState, 16),
	}
	s.startWorkers(workers)
	return s
}

func (s *Scheduler) Register(name string, trigger Trigger, marketDaysOnly bool, action func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, &taskState{task: &Task{
		Name:           name,
		Trigger:        trigger,
		Action:         action,
		MarketDaysOnly: marketDaysOnly,
	}})
}

// Tick evaluates every registered task against now and dispatches the due
// ones. Due tasks are marked before dispatch. A task still running from a
// previous tick is never dispatched concurrently with itself.
func (s *Scheduler) Tick(now time.Time) {
	now = now.In(ist)
	trading := s.calendar.IsTradingDay(now)

	s.mu.Lock()
	states := make([]*taskState, len(s.tasks))
	copy(states, s.tasks)
	s.mu.Unlock()

	for _, st := range states {
		if st.task.MarketDaysOnly && (!trading || isWeekend(now)) {
			continue
		}

		st.mu.Lock()
		due := !st.running && st.task.Trigger.Due(now, st.lastRun)
		if due {
			st.lastRun = now
			st.running = true
		}
		st.mu.Unlock()

		if due {
			s.work <- st
		}
	}
}

// Run ticks the scheduler on the given cadence until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	s.Tick(time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			s.Tick(t)
		}
	}
}

// EndOfDayReset closes out the day: every task is marked as run at the
// reset instant, so nothing re-fires tonight and every daily slot is armed
// again for the next trading day.
func (s *Scheduler) EndOfDayReset(ctx context.Context) {
	now := time.Now().In(ist)

	s.mu.Lock()
	states := make([]*taskState, len(s.tasks))
	copy(states, s.tasks)
	s.mu.Unlock()

	for _, st := range states {
		st.mu.Lock()
		st.lastRun = now
		st.mu.Unlock()
	}
	logger.Info(ctx, "Daily task marks reset", "tasks", len(states))
}

// Close stops the workers after draining dispatched tasks.
func (s *Scheduler) Close() {
	close(s.work)
	s.wg.Wait()
}

func (s *Scheduler) startWorkers(n int) {
	for i := 0; i < n; i++ {
		s.wg.Add(1)
		go s.worker(i + 1)
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()
	for st := range s.work {
		s.runTask(context.Background(), id, st)
	}
}

// runTask executes one task with panic isolation: a failing task is logged
// and counted, and the rest of the day's schedule is unaffected.
func (s *Scheduler) runTask(ctx context.Context, workerID int, st *taskState) {
	name := st.task.Name
	start := time.Now()

	defer func() {
		st.mu.Lock()
		st.running = false
		st.mu.Unlock()

		if r := recover(); r != nil {
			metrics.TaskRuns.WithLabelValues(name, "panic").Inc()
			logger.Error(ctx, "Task panicked",
				"task", name, "worker_id", workerID, "panic", fmt.Sprint(r))
		}
	}()

	logger.Debug(ctx, "Task starting", "task", name, "worker_id", workerID)

	if err := st.task.Action(ctx); err != nil {
		metrics.TaskRuns.WithLabelValues(name, "error").Inc()
		logger.ErrorWithErr(ctx, "Task failed", err,
			"task", name, "duration_ms", time.Since(start).Milliseconds())
		return
	}

	metrics.TaskRuns.WithLabelValues(name, "ok").Inc()
	logger.Info(ctx, "Task completed",
		"task", name, "duration_ms", time.Since(start).Milliseconds())
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
