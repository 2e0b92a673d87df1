package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"toohak-session-service/internal/app"
	"toohak-session-service/internal/domain"
	"toohak-session-service/internal/infra/memory"
)

// legality mirrors the transition table so the exhaustive test below checks
// every (state, action) pair.
var legality = map[domain.AdminAction]map[domain.SessionState]bool{
	domain.ActionNextQuestion: {
		domain.StateLobby:         true,
		domain.StateAnswerShow:    true,
		domain.StateQuestionClose: true,
	},
	domain.ActionSkipCountdown: {
		domain.StateQuestionCountdown: true,
	},
	domain.ActionGoToAnswer: {
		domain.StateQuestionOpen:  true,
		domain.StateQuestionClose: true,
	},
	domain.ActionGoToFinalResults: {
		domain.StateAnswerShow:    true,
		domain.StateQuestionClose: true,
	},
	domain.ActionEnd: {
		domain.StateLobby:             true,
		domain.StateQuestionCountdown: true,
		domain.StateQuestionOpen:      true,
		domain.StateQuestionClose:     true,
		domain.StateAnswerShow:        true,
		domain.StateFinalResults:      true,
	},
}

func forceState(t *testing.T, f *fixture, sessionID int, state domain.SessionState, atQuestion int) {
	t.Helper()
	err := f.store.Update(sessionID, func(sess *domain.Session) error {
		sess.State = state
		sess.AtQuestion = atQuestion
		return nil
	})
	if err != nil {
		t.Fatalf("force state: %v", err)
	}
}

func TestTransitionTableExhaustive(t *testing.T) {
	ctx := context.Background()
	for _, state := range domain.States {
		for _, action := range domain.Actions {
			f := newFixture(t)
			id := mustCreate(t, f, 0)
			// atQuestion 1 keeps NEXT_QUESTION within range so only the
			// state legality decides the outcome.
			forceState(t, f, id, state, 1)

			err := f.service.AdminAction(ctx, ownerToken, id, string(action))
			if legality[action][state] {
				if err != nil {
					t.Errorf("%s from %s: expected success, got %v", action, state, err)
				}
				continue
			}
			if !errors.Is(err, domain.ErrInvalidTransition) {
				t.Errorf("%s from %s: expected invalid transition, got %v", action, state, err)
			}
			if got, at := sessionState(t, f, id); got != state || at != 1 {
				t.Errorf("%s from %s: rejected action mutated session to %s/%d", action, state, got, at)
			}
		}
	}
}

func TestUnrecognizedActionToken(t *testing.T) {
	f := newFixture(t)
	id := mustCreate(t, f, 0)

	err := f.service.AdminAction(context.Background(), ownerToken, id, "DANCE")
	if !errors.Is(err, domain.ErrInvalidAction) {
		t.Fatalf("expected invalid action, got %v", err)
	}
	if state, at := sessionState(t, f, id); state != domain.StateLobby || at != 0 {
		t.Fatalf("unrecognized action mutated session to %s/%d", state, at)
	}
}

func TestAdminActionAuth(t *testing.T) {
	f := newFixture(t)
	id := mustCreate(t, f, 0)
	ctx := context.Background()

	if err := f.service.AdminAction(ctx, "bogus", id, "NEXT_QUESTION"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := f.service.AdminAction(ctx, otherToken, id, "NEXT_QUESTION"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if err := f.service.AdminAction(ctx, ownerToken, id+1, "NEXT_QUESTION"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNextQuestionSchedulesCountdown(t *testing.T) {
	f := newFixture(t)
	id := mustCreate(t, f, 0)

	mustAction(t, f, id, domain.ActionNextQuestion)
	if state, at := sessionState(t, f, id); state != domain.StateQuestionCountdown || at != 1 {
		t.Fatalf("got %s/%d, want QUESTION_COUNTDOWN/1", state, at)
	}
	if delay, ok := f.sched.pending(id); !ok || delay != 3*time.Second {
		t.Fatalf("expected 3s countdown timer, got %v (pending=%v)", delay, ok)
	}

	// Countdown fires: question opens and the duration timer is armed.
	f.sched.fire(t, id)
	if state, _ := sessionState(t, f, id); state != domain.StateQuestionOpen {
		t.Fatalf("countdown fire should open the question, got %s", state)
	}
	if delay, ok := f.sched.pending(id); !ok || delay != 5*time.Second {
		t.Fatalf("expected 5s duration timer, got %v (pending=%v)", delay, ok)
	}

	// Duration timer fires: question closes, nothing further scheduled.
	f.sched.fire(t, id)
	if state, _ := sessionState(t, f, id); state != domain.StateQuestionClose {
		t.Fatalf("duration fire should close the question, got %s", state)
	}
	if _, ok := f.sched.pending(id); ok {
		t.Fatalf("no timer should be pending after QUESTION_CLOSE")
	}
}

func TestNextQuestionPastLastQuestion(t *testing.T) {
	f := newFixture(t)
	id := mustCreate(t, f, 0)
	forceState(t, f, id, domain.StateQuestionClose, 2) // quiz has 2 questions

	err := f.service.AdminAction(context.Background(), ownerToken, id, "NEXT_QUESTION")
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition past last question, got %v", err)
	}
	if state, at := sessionState(t, f, id); state != domain.StateQuestionClose || at != 2 {
		t.Fatalf("failed advance mutated session to %s/%d", state, at)
	}
}

func TestStaleCountdownCallbackNoops(t *testing.T) {
	f := newFixture(t)
	id := mustCreate(t, f, 0)

	mustAction(t, f, id, domain.ActionNextQuestion)
	f.sched.mu.Lock()
	stale := f.sched.scheduled[id].fn
	f.sched.mu.Unlock()

	// Manual skip wins the race; the stale countdown callback must not
	// re-open or restamp anything.
	mustAction(t, f, id, domain.ActionSkipCountdown)
	if state, _ := sessionState(t, f, id); state != domain.StateQuestionOpen {
		t.Fatalf("skip should open the question, got %s", state)
	}
	f.clock.Advance(2 * time.Second)
	stale()
	if state, at := sessionState(t, f, id); state != domain.StateQuestionOpen || at != 1 {
		t.Fatalf("stale callback mutated session to %s/%d", state, at)
	}
	var started time.Time
	_ = f.store.View(id, func(sess *domain.Session) error {
		started = sess.QuestionSessions[0].TimeStart
		return nil
	})
	if started.After(newFakeClock().Now()) {
		t.Fatalf("stale callback restamped timeStart to %v", started)
	}
}

func TestGoToAnswerCancelsPendingTimer(t *testing.T) {
	f := newFixture(t)
	id := mustCreate(t, f, 0)

	mustAction(t, f, id, domain.ActionNextQuestion)
	mustAction(t, f, id, domain.ActionSkipCountdown)
	if _, ok := f.sched.pending(id); !ok {
		t.Fatalf("duration timer should be pending while open")
	}

	mustAction(t, f, id, domain.ActionGoToAnswer)
	if state, _ := sessionState(t, f, id); state != domain.StateAnswerShow {
		t.Fatalf("got %s, want ANSWER_SHOW", state)
	}
	if _, ok := f.sched.pending(id); ok {
		t.Fatalf("GO_TO_ANSWER must cancel the pending timer")
	}
}

func TestEndResetsAndNeutralizesTimers(t *testing.T) {
	f := newFixture(t)
	id := mustCreate(t, f, 0)

	mustAction(t, f, id, domain.ActionNextQuestion)
	mustAction(t, f, id, domain.ActionEnd)
	if state, at := sessionState(t, f, id); state != domain.StateEnd || at != 0 {
		t.Fatalf("got %s/%d, want END/0", state, at)
	}
	if _, ok := f.sched.pending(id); ok {
		t.Fatalf("END must cancel the pending timer")
	}

	// END is terminal.
	err := f.service.AdminAction(context.Background(), ownerToken, id, "END")
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("END from END should be rejected, got %v", err)
	}
}

// TestTimedTransitionsWithRealScheduler runs the countdown and duration
// timers for real, with shrunken delays.
func TestTimedTransitionsWithRealScheduler(t *testing.T) {
	store := memory.NewSessionStore()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(testQuizzes()), 5*time.Minute)
	tokens := memory.NewTokenResolver(map[string]int{ownerToken: 1})
	service := app.NewSessionService(store, quizzes, tokens, memory.NewExportStore(),
		app.NewTimerScheduler(nil), nil,
		app.WithCountdown(10*time.Millisecond),
		app.WithQuestionTick(10*time.Millisecond))
	defer service.Close()

	ctx := context.Background()
	id, err := service.CreateSession(ctx, ownerToken, mathQuizID, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := service.AdminAction(ctx, ownerToken, id, "NEXT_QUESTION"); err != nil {
		t.Fatalf("next question: %v", err)
	}

	waitForState(t, store, id, domain.StateQuestionOpen)
	// Question 1 has duration 5, i.e. 50ms at the test tick.
	waitForState(t, store, id, domain.StateQuestionClose)
}

func waitForState(t *testing.T, store *memory.SessionStore, sessionID int, want domain.SessionState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var state domain.SessionState
		_ = store.View(sessionID, func(sess *domain.Session) error {
			state = sess.State
			return nil
		})
		if state == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("session %d never reached %s", sessionID, want)
}

func TestWatchSessionReceivesTransitions(t *testing.T) {
	f := newFixture(t)
	id := mustCreate(t, f, 0)

	updates, cancel, err := f.service.WatchSession(id)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer cancel()

	mustAction(t, f, id, domain.ActionNextQuestion)
	update := <-updates
	if update.State != domain.StateQuestionCountdown || update.AtQuestion != 1 || update.NumQuestions != 2 {
		t.Fatalf("unexpected update %+v", update)
	}
}
