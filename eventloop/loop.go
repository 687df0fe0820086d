package eventloop

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
)

// Loop is a single-threaded task queue. Tasks, microtasks and timer callbacks
// all run on the goroutine that calls Run; other goroutines hand work to it
// with Post.
type Loop struct {
	err    error
	wake   chan struct{}
	byID   map[int]*timer
	tasks  []func()
	micro  []func()
	timers timerQueue
	nextID int
	seq    uint64
	holds  int
	mu     sync.Mutex
	closed bool
}

// New creates an idle loop.
func New() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		byID: make(map[int]*timer),
	}
}

// Post queues a task. It is safe from any goroutine and reports false once
// the loop is closed.
func (l *Loop) Post(task func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.tasks = append(l.tasks, task)
	l.mu.Unlock()
	l.signal()
	return true
}

// Microtask queues a task that runs before the next task or timer.
func (l *Loop) Microtask(task func()) {
	l.mu.Lock()
	l.micro = append(l.micro, task)
	l.mu.Unlock()
	l.signal()
}

// SetTimeout runs fn once after d and returns the timer id.
func (l *Loop) SetTimeout(d time.Duration, fn func()) int {
	return l.addTimer(d, 0, fn)
}

// SetInterval runs fn every d until cleared and returns the timer id.
func (l *Loop) SetInterval(d time.Duration, fn func()) int {
	if d <= 0 {
		d = time.Millisecond
	}
	return l.addTimer(d, d, fn)
}

// Clear cancels a timeout or interval. Unknown ids are ignored; a callback
// already running is not interrupted.
func (l *Loop) Clear(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.byID[id]
	if !ok {
		return
	}
	delete(l.byID, id)
	if t.index >= 0 {
		heap.Remove(&l.timers, t.index)
	}
}

// Hold keeps Run from returning while off-loop work is outstanding. The
// returned function ends the hold; calling it more than once has no effect.
func (l *Loop) Hold() (release func()) {
	l.mu.Lock()
	l.holds++
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.holds--
			l.mu.Unlock()
			l.signal()
		})
	}
}

// Fail records err as the result of the current Run. The first error wins.
func (l *Loop) Fail(err error) {
	if err == nil {
		return
	}
	l.mu.Lock()
	if l.err == nil {
		l.err = err
	}
	l.mu.Unlock()
	l.signal()
}

// Run executes work until the loop is idle (no tasks, timers or holds), a
// task fails, or ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	var wait *time.Timer
	defer func() {
		if wait != nil {
			wait.Stop()
		}
	}()

	for {
		l.drainMicrotasks()

		l.mu.Lock()
		if err := l.err; err != nil {
			l.err = nil
			l.mu.Unlock()
			return err
		}
		if l.closed {
			l.mu.Unlock()
			return errors.Closed(errors.PhaseRuntime, "event loop")
		}
		if len(l.tasks) > 0 {
			task := l.tasks[0]
			l.tasks[0] = nil
			l.tasks = l.tasks[1:]
			l.mu.Unlock()
			task()
			continue
		}

		now := time.Now()
		if len(l.timers) > 0 && !l.timers[0].deadline.After(now) {
			t := heap.Pop(&l.timers).(*timer)
			if t.interval > 0 {
				t.deadline = now.Add(t.interval)
				t.seq = l.nextSeq()
				heap.Push(&l.timers, t)
			} else {
				delete(l.byID, t.id)
			}
			l.mu.Unlock()
			t.fn()
			continue
		}

		if len(l.timers) == 0 && l.holds == 0 {
			l.mu.Unlock()
			return nil
		}

		var timeout <-chan time.Time
		if len(l.timers) > 0 {
			d := l.timers[0].deadline.Sub(now)
			if wait == nil {
				wait = time.NewTimer(d)
			} else {
				wait.Reset(d)
			}
			timeout = wait.C
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		case <-timeout:
		}
	}
}

// Pending reports the number of queued tasks, live timers and holds.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks) + len(l.micro) + len(l.timers) + l.holds
}

// Close drops all queued work. Later Posts are refused.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	Logger().Debug("event loop closed",
		zap.Int("tasks", len(l.tasks)),
		zap.Int("timers", len(l.timers)))
	l.tasks = nil
	l.micro = nil
	l.timers = nil
	clear(l.byID)
}

func (l *Loop) drainMicrotasks() {
	for {
		l.mu.Lock()
		if len(l.micro) == 0 {
			l.mu.Unlock()
			return
		}
		task := l.micro[0]
		l.micro[0] = nil
		l.micro = l.micro[1:]
		l.mu.Unlock()
		task()
	}
}

func (l *Loop) addTimer(d, interval time.Duration, fn func()) int {
	if d < 0 {
		d = 0
	}
	l.mu.Lock()
	l.nextID++
	t := &timer{
		id:       l.nextID,
		deadline: time.Now().Add(d),
		interval: interval,
		fn:       fn,
		seq:      l.nextSeq(),
	}
	l.byID[t.id] = t
	heap.Push(&l.timers, t)
	l.mu.Unlock()
	l.signal()
	return t.id
}

func (l *Loop) nextSeq() uint64 {
	l.seq++
	return l.seq
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}
