package eventloop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func run(t *testing.T, l *Loop) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestTaskAndMicrotaskOrder(t *testing.T) {
	l := New()
	var got []string
	l.Post(func() {
		got = append(got, "task1")
		l.Microtask(func() { got = append(got, "micro1") })
		l.Post(func() { got = append(got, "task3") })
		l.Microtask(func() { got = append(got, "micro2") })
	})
	l.Post(func() { got = append(got, "task2") })
	run(t, l)

	want := []string{"task1", "micro1", "micro2", "task2", "task3"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestTimersFireInDeadlineOrder(t *testing.T) {
	l := New()
	var got []int
	l.SetTimeout(30*time.Millisecond, func() { got = append(got, 30) })
	l.SetTimeout(10*time.Millisecond, func() { got = append(got, 10) })
	l.SetTimeout(20*time.Millisecond, func() { got = append(got, 20) })
	cleared := l.SetTimeout(15*time.Millisecond, func() { got = append(got, 15) })
	l.Clear(cleared)
	run(t, l)

	if len(got) != 3 || got[0] != 10 || got[1] != 20 || got[2] != 30 {
		t.Errorf("fired %v, want [10 20 30]", got)
	}
}

func TestEqualDeadlinesKeepCreationOrder(t *testing.T) {
	l := New()
	var got []int
	for i := 0; i < 5; i++ {
		l.SetTimeout(0, func() { got = append(got, i) })
	}
	run(t, l)
	for i, v := range got {
		if v != i {
			t.Fatalf("fired %v, want creation order", got)
		}
	}
}

func TestIntervalClearedFromCallback(t *testing.T) {
	l := New()
	count := 0
	var id int
	id = l.SetInterval(time.Millisecond, func() {
		count++
		if count == 3 {
			l.Clear(id)
		}
	})
	run(t, l)
	if count != 3 {
		t.Errorf("interval fired %d times, want 3", count)
	}
	if l.Pending() != 0 {
		t.Errorf("Pending = %d after idle", l.Pending())
	}
}

func TestHoldWaitsForOffLoopWork(t *testing.T) {
	l := New()
	release := l.Hold()
	done := false

	go func() {
		time.Sleep(10 * time.Millisecond)
		l.Post(func() { done = true })
		release()
		release()
	}()
	run(t, l)
	if !done {
		t.Error("Run returned before the held work completed")
	}
}

func TestConcurrentPost(t *testing.T) {
	l := New()
	release := l.Hold()
	const n = 100
	count := 0

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Post(func() { count++ })
		}()
	}
	go func() {
		wg.Wait()
		l.Post(release)
	}()
	run(t, l)
	if count != n {
		t.Errorf("count = %d, want %d", count, n)
	}
}

func TestFailStopsRun(t *testing.T) {
	l := New()
	boom := errors.New("boom")
	ran := false
	l.Post(func() { l.Fail(boom) })
	l.SetTimeout(time.Hour, func() { ran = true })

	if err := l.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Run = %v, want boom", err)
	}
	if ran {
		t.Error("timer ran after failure")
	}
}

func TestRunHonoursContext(t *testing.T) {
	l := New()
	l.Hold()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run = %v, want deadline exceeded", err)
	}
}

func TestClose(t *testing.T) {
	l := New()
	l.SetTimeout(time.Hour, func() {})
	l.Close()
	if l.Post(func() {}) {
		t.Error("Post after Close should be refused")
	}
	if l.Pending() != 0 {
		t.Errorf("Pending = %d after Close", l.Pending())
	}
	if err := l.Run(context.Background()); err == nil {
		t.Error("Run on a closed loop should fail")
	}
}
