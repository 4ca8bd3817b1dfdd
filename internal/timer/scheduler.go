// Package timer provides the periodic scheduling used by quiz countdowns.
package timer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Cancel stops a scheduled task. It is safe to call more than once and from
// inside the task itself.
type Cancel func()

// Scheduler runs fn every interval until cancelled.
type Scheduler interface {
	Every(interval time.Duration, fn func()) Cancel
	Now() time.Time
}

// Real schedules on a clockwork clock, wall-clock time unless built with
// NewRealWithClock.
type Real struct {
	clock clockwork.Clock
}

func NewReal() Real { return Real{clock: clockwork.NewRealClock()} }

// NewRealWithClock schedules on clock.
func NewRealWithClock(clock clockwork.Clock) Real { return Real{clock: clock} }

func (r Real) Now() time.Time { return r.clockOrDefault().Now() }

func (r Real) clockOrDefault() clockwork.Clock {
	if r.clock == nil {
		return clockwork.NewRealClock()
	}
	return r.clock
}

func (r Real) Every(interval time.Duration, fn func()) Cancel {
	ticker := r.clockOrDefault().NewTicker(interval)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.Chan():
				// a cancel racing with the tick must win
				select {
				case <-done:
					return
				default:
				}
				fn()
			}
		}
	}()

	return func() { once.Do(func() { close(done) }) }
}

// Manual is a deterministic Scheduler driven by Advance. Tasks run on the
// goroutine calling Advance.
type Manual struct {
	mu    sync.Mutex
	now   time.Time
	tasks map[int]*manualTask
	next  int
}

type manualTask struct {
	interval time.Duration
	due      time.Time
	fn       func()
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start, tasks: make(map[int]*manualTask)}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Every(interval time.Duration, fn func()) Cancel {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.next
	m.next++
	m.tasks[id] = &manualTask{interval: interval, due: m.now.Add(interval), fn: fn}
	return func() {
		m.mu.Lock()
		delete(m.tasks, id)
		m.mu.Unlock()
	}
}

// Pending returns the number of live tasks.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Advance moves the clock forward by d, firing every task that falls due in
// order. A task cancelled by an earlier firing does not run again.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		task := m.earliestLocked(target)
		if task == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = task.due
		task.due = task.due.Add(task.interval)
		fn := task.fn
		m.mu.Unlock()

		fn()
	}
}

func (m *Manual) earliestLocked(limit time.Time) *manualTask {
	bestID := -1
	var best *manualTask
	for id, task := range m.tasks {
		if task.due.After(limit) {
			continue
		}
		if best == nil || task.due.Before(best.due) || (task.due.Equal(best.due) && id < bestID) {
			bestID, best = id, task
		}
	}
	return best
}
