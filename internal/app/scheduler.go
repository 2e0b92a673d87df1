package app

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler drives the automatic session transitions. At most one timer is
// pending per session; scheduling always replaces the prior timer.
type Scheduler interface {
	Schedule(sessionID int, delay time.Duration, fn func())
	Cancel(sessionID int)
	CancelAll()
}

// TimerScheduler is the production Scheduler backed by time.AfterFunc.
type TimerScheduler struct {
	logger *zap.SugaredLogger

	mu      sync.Mutex
	gen     uint64
	pending map[int]*pendingTimer
}

type pendingTimer struct {
	gen   uint64
	timer *time.Timer
}

func NewTimerScheduler(logger *zap.SugaredLogger) *TimerScheduler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &TimerScheduler{
		logger:  logger,
		pending: make(map[int]*pendingTimer),
	}
}

// Schedule cancels any timer pending for the session and arms a new one.
// The callback runs on its own goroutine; a generation check makes sure a
// timer that was cancelled after firing but before running never reaches fn.
func (s *TimerScheduler) Schedule(sessionID int, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.pending[sessionID]; ok {
		prev.timer.Stop()
	}

	// Generations are never reused, so a callback that fired before its timer
	// was replaced can never claim the replacement's slot.
	s.gen++
	gen := s.gen
	entry := &pendingTimer{gen: gen}
	entry.timer = time.AfterFunc(delay, func() {
		if !s.claim(sessionID, gen) {
			return
		}
		fn()
	})
	s.pending[sessionID] = entry
	s.logger.Debugw("timer scheduled", "sessionId", sessionID, "delay", delay)
}

// claim removes the pending entry if it still belongs to this generation.
func (s *TimerScheduler) claim(sessionID int, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.pending[sessionID]
	if !ok || entry.gen != gen {
		return false
	}
	delete(s.pending, sessionID)
	return true
}

// Cancel stops the session's pending timer, if any. After Cancel returns the
// timer's callback will not run.
func (s *TimerScheduler) Cancel(sessionID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.pending[sessionID]; ok {
		entry.timer.Stop()
		delete(s.pending, sessionID)
	}
}

// CancelAll stops every outstanding timer. Used on shutdown and test teardown
// so callbacks cannot fire against a cleared store.
func (s *TimerScheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.pending {
		entry.timer.Stop()
		delete(s.pending, id)
	}
}
