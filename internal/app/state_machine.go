package app

import (
	"context"
	"fmt"
	"time"

	"toohak-session-service/internal/domain"
)

// legalSources is the authoritative transition table: the states each admin
// action may be issued from. END appears in no row's sources, so a session
// that reached END accepts nothing, including another END.
var legalSources = map[domain.AdminAction][]domain.SessionState{
	domain.ActionNextQuestion: {
		domain.StateLobby,
		domain.StateAnswerShow,
		domain.StateQuestionClose,
	},
	domain.ActionSkipCountdown: {
		domain.StateQuestionCountdown,
	},
	domain.ActionGoToAnswer: {
		domain.StateQuestionOpen,
		domain.StateQuestionClose,
	},
	domain.ActionGoToFinalResults: {
		domain.StateAnswerShow,
		domain.StateQuestionClose,
	},
	domain.ActionEnd: {
		domain.StateLobby,
		domain.StateQuestionCountdown,
		domain.StateQuestionOpen,
		domain.StateQuestionClose,
		domain.StateAnswerShow,
		domain.StateFinalResults,
	},
}

func actionAllowed(action domain.AdminAction, state domain.SessionState) bool {
	for _, legal := range legalSources[action] {
		if legal == state {
			return true
		}
	}
	return false
}

// AdminAction validates and executes an owner-issued action token against the
// session. Illegal (state, action) pairs leave the session untouched.
func (s *SessionService) AdminAction(_ context.Context, token string, sessionID int, rawAction string) error {
	ownerID, err := s.resolveOwner(token)
	if err != nil {
		return err
	}
	action, err := domain.ParseAdminAction(rawAction)
	if err != nil {
		return fmt.Errorf("%w: %q", err, rawAction)
	}

	return s.sessions.Update(sessionID, func(sess *domain.Session) error {
		if sess.OwnerID != ownerID {
			return domain.ErrForbidden
		}
		if !actionAllowed(action, sess.State) {
			return fmt.Errorf("%w: %s from %s", domain.ErrInvalidTransition, action, sess.State)
		}
		return s.applyAction(sess, action)
	})
}

func (s *SessionService) applyAction(sess *domain.Session, action domain.AdminAction) error {
	switch action {
	case domain.ActionNextQuestion:
		return s.startCountdown(sess)

	case domain.ActionSkipCountdown:
		s.scheduler.Cancel(sess.ID)
		s.openQuestion(sess)

	case domain.ActionGoToAnswer:
		s.scheduler.Cancel(sess.ID)
		s.setState(sess, domain.StateAnswerShow)

	case domain.ActionGoToFinalResults:
		s.scheduler.Cancel(sess.ID)
		finalizeResults(sess)
		sess.AtQuestion = 0
		s.setState(sess, domain.StateFinalResults)

	case domain.ActionEnd:
		s.scheduler.Cancel(sess.ID)
		sess.AtQuestion = 0
		s.setState(sess, domain.StateEnd)
	}
	return nil
}

// startCountdown advances to the next question and arms the countdown timer.
func (s *SessionService) startCountdown(sess *domain.Session) error {
	if sess.AtQuestion >= len(sess.Metadata.Questions) {
		return fmt.Errorf("%w: no questions remaining", domain.ErrInvalidTransition)
	}
	sess.AtQuestion++
	s.setState(sess, domain.StateQuestionCountdown)

	sessionID, question := sess.ID, sess.AtQuestion
	s.scheduler.Schedule(sessionID, s.countdown, func() {
		s.autoOpenQuestion(sessionID, question)
	})
	return nil
}

// openQuestion moves the session into QUESTION_OPEN, stamps the question's
// start time and arms the per-question duration timer.
func (s *SessionService) openQuestion(sess *domain.Session) {
	q, ok := sess.CurrentQuestion()
	if !ok {
		return
	}
	sess.QuestionSessions[sess.AtQuestion-1].TimeStart = s.now()
	s.setState(sess, domain.StateQuestionOpen)

	sessionID, question := sess.ID, sess.AtQuestion
	s.scheduler.Schedule(sessionID, time.Duration(q.DurationSeconds)*s.tick, func() {
		s.autoCloseQuestion(sessionID, question)
	})
}

// autoOpenQuestion is the countdown timer callback. It re-validates the
// session under its lock and no-ops when a manual transition won the race.
func (s *SessionService) autoOpenQuestion(sessionID, question int) {
	err := s.sessions.Update(sessionID, func(sess *domain.Session) error {
		if sess.State != domain.StateQuestionCountdown || sess.AtQuestion != question {
			return nil
		}
		s.openQuestion(sess)
		return nil
	})
	if err != nil {
		s.logger.Debugw("countdown fired on gone session", "sessionId", sessionID, "err", err)
	}
}

// autoCloseQuestion is the question duration timer callback.
func (s *SessionService) autoCloseQuestion(sessionID, question int) {
	err := s.sessions.Update(sessionID, func(sess *domain.Session) error {
		if sess.State != domain.StateQuestionOpen || sess.AtQuestion != question {
			return nil
		}
		s.setState(sess, domain.StateQuestionClose)
		return nil
	})
	if err != nil {
		s.logger.Debugw("close timer fired on gone session", "sessionId", sessionID, "err", err)
	}
}

// setState applies the transition and notifies watchers. Callers run all
// validation before reaching here.
func (s *SessionService) setState(sess *domain.Session, next domain.SessionState) {
	prev := sess.State
	sess.State = next
	s.logger.Infow("session transition",
		"sessionId", sess.ID, "from", prev, "to", next, "atQuestion", sess.AtQuestion)
	s.hub.publish(domain.StateUpdate{
		SessionID:    sess.ID,
		State:        next,
		AtQuestion:   sess.AtQuestion,
		NumQuestions: len(sess.Metadata.Questions),
	})
}

// WatchSession subscribes to state updates of a session. The caller must
// invoke the returned cancel function to avoid leaks.
func (s *SessionService) WatchSession(sessionID int) (<-chan domain.StateUpdate, func(), error) {
	if err := s.sessions.View(sessionID, func(*domain.Session) error { return nil }); err != nil {
		return nil, nil, err
	}
	ch, cancel := s.hub.subscribe(sessionID)
	return ch, cancel, nil
}

// WatchPlayer subscribes to state updates of the session the player is in.
func (s *SessionService) WatchPlayer(playerID int) (<-chan domain.StateUpdate, func(), error) {
	sessionID, ok := s.sessions.PlayerSession(playerID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: player %d", domain.ErrNotFound, playerID)
	}
	return s.WatchSession(sessionID)
}
