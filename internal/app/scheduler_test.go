package app_test

import (
	"sync/atomic"
	"testing"
	"time"

	"toohak-session-service/internal/app"
)

func TestSchedulerFires(t *testing.T) {
	sched := app.NewTimerScheduler(nil)
	defer sched.CancelAll()

	fired := make(chan struct{})
	sched.Schedule(1, 5*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatalf("timer did not fire")
	}
}

func TestSchedulerCancelPreventsCallback(t *testing.T) {
	sched := app.NewTimerScheduler(nil)
	defer sched.CancelAll()

	var fired atomic.Bool
	sched.Schedule(1, 10*time.Millisecond, func() { fired.Store(true) })
	sched.Cancel(1)

	time.Sleep(50 * time.Millisecond)
	if fired.Load() {
		t.Fatalf("cancelled timer fired")
	}
}

func TestSchedulerReplacesPendingTimer(t *testing.T) {
	sched := app.NewTimerScheduler(nil)
	defer sched.CancelAll()

	var first, second atomic.Bool
	done := make(chan struct{})
	sched.Schedule(1, 10*time.Millisecond, func() { first.Store(true) })
	sched.Schedule(1, 20*time.Millisecond, func() {
		second.Store(true)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("replacement timer did not fire")
	}
	if first.Load() {
		t.Fatalf("replaced timer fired; scheduling must cancel the prior timer")
	}
	if !second.Load() {
		t.Fatalf("replacement timer did not run")
	}
}

func TestSchedulerIndependentSessions(t *testing.T) {
	sched := app.NewTimerScheduler(nil)
	defer sched.CancelAll()

	var a, b atomic.Bool
	doneA := make(chan struct{})
	doneB := make(chan struct{})
	sched.Schedule(1, 5*time.Millisecond, func() { a.Store(true); close(doneA) })
	sched.Schedule(2, 5*time.Millisecond, func() { b.Store(true); close(doneB) })

	<-doneA
	<-doneB
	if !a.Load() || !b.Load() {
		t.Fatalf("timers on different sessions must not interfere")
	}
}

func TestSchedulerCancelAll(t *testing.T) {
	sched := app.NewTimerScheduler(nil)

	var count atomic.Int32
	for id := 1; id <= 5; id++ {
		sched.Schedule(id, 10*time.Millisecond, func() { count.Add(1) })
	}
	sched.CancelAll()

	time.Sleep(50 * time.Millisecond)
	if got := count.Load(); got != 0 {
		t.Fatalf("%d callbacks ran after CancelAll", got)
	}
}
