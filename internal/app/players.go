package app

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"toohak-session-service/internal/domain"
)

// Join adds a player to a session still in LOBBY. A blank name gets a
// generated one; duplicate names within the session are rejected. Reaching a
// non-zero autoStartNum starts the first question automatically.
func (s *SessionService) Join(_ context.Context, sessionID int, name string) (int, error) {
	var playerID int
	err := s.sessions.Update(sessionID, func(sess *domain.Session) error {
		if sess.State != domain.StateLobby {
			return fmt.Errorf("%w: session is not in LOBBY", domain.ErrValidation)
		}

		name = strings.TrimSpace(name)
		if name == "" {
			name = generatePlayerName(func(candidate string) bool {
				return !sessionHasName(sess, candidate)
			})
		} else if sessionHasName(sess, name) {
			return fmt.Errorf("%w: name %q already taken", domain.ErrValidation, name)
		}

		playerID = s.sessions.NextPlayerID()
		sess.Players = append(sess.Players, &domain.Player{ID: playerID, Name: name})
		s.sessions.BindPlayer(playerID, sessionID)
		s.logger.Infow("player joined", "sessionId", sessionID, "playerId", playerID, "name", name)

		if sess.AutoStartNum > 0 && len(sess.Players) >= sess.AutoStartNum {
			return s.startCountdown(sess)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return playerID, nil
}

func sessionHasName(sess *domain.Session, name string) bool {
	for _, p := range sess.Players {
		if p.Name == name {
			return true
		}
	}
	return false
}

const (
	nameLetters = "abcdefghijklmnopqrstuvwxyz"
	nameDigits  = "0123456789"
)

// generatePlayerName builds a 5-letter-3-digit name with no repeated letters
// or digits, retrying until the name is free in the session.
func generatePlayerName(free func(string) bool) string {
	for {
		letters := []byte(nameLetters)
		digits := []byte(nameDigits)
		rand.Shuffle(len(letters), func(i, j int) { letters[i], letters[j] = letters[j], letters[i] })
		rand.Shuffle(len(digits), func(i, j int) { digits[i], digits[j] = digits[j], digits[i] })
		candidate := string(letters[:5]) + string(digits[:3])
		if free(candidate) {
			return candidate
		}
	}
}

// PlayerStatus reports the player's view of where their session is.
func (s *SessionService) PlayerStatus(_ context.Context, playerID int) (domain.PlayerStatus, error) {
	sessionID, ok := s.sessions.PlayerSession(playerID)
	if !ok {
		return domain.PlayerStatus{}, fmt.Errorf("%w: player %d", domain.ErrNotFound, playerID)
	}
	var status domain.PlayerStatus
	err := s.sessions.View(sessionID, func(sess *domain.Session) error {
		status = domain.PlayerStatus{
			State:        sess.State,
			NumQuestions: len(sess.Metadata.Questions),
			AtQuestion:   sess.AtQuestion,
		}
		return nil
	})
	return status, err
}

// CurrentQuestion returns the open question at the given position with
// correctness flags stripped. Legal only while the session is in
// QUESTION_OPEN and only for the current position.
func (s *SessionService) CurrentQuestion(_ context.Context, playerID, questionPosition int) (domain.PlayerQuestion, error) {
	sessionID, ok := s.sessions.PlayerSession(playerID)
	if !ok {
		return domain.PlayerQuestion{}, fmt.Errorf("%w: player %d", domain.ErrNotFound, playerID)
	}

	var view domain.PlayerQuestion
	err := s.sessions.View(sessionID, func(sess *domain.Session) error {
		if err := checkQuestionPosition(sess, questionPosition); err != nil {
			return err
		}
		if sess.State != domain.StateQuestionOpen {
			return fmt.Errorf("%w: question is not open", domain.ErrValidation)
		}
		if questionPosition != sess.AtQuestion {
			return fmt.Errorf("%w: session is not at question %d", domain.ErrValidation, questionPosition)
		}

		q := sess.Metadata.Questions[questionPosition-1]
		options := make([]domain.AnswerOption, len(q.Answers))
		for i, a := range q.Answers {
			options[i] = domain.AnswerOption{ID: a.ID, Text: a.Text, Colour: a.Colour}
		}
		view = domain.PlayerQuestion{
			QuestionID:      q.ID,
			Text:            q.Text,
			DurationSeconds: q.DurationSeconds,
			Points:          q.Points,
			Answers:         options,
		}
		return nil
	})
	return view, err
}

// SubmitAnswer records the player's answer set for the open question. A
// resubmission replaces the earlier entry and re-credits its time before the
// new time is added, so nothing is double counted.
func (s *SessionService) SubmitAnswer(_ context.Context, playerID, questionPosition int, answerIDs []int) error {
	sessionID, ok := s.sessions.PlayerSession(playerID)
	if !ok {
		return fmt.Errorf("%w: player %d", domain.ErrNotFound, playerID)
	}

	return s.sessions.Update(sessionID, func(sess *domain.Session) error {
		player, ok := sess.FindPlayer(playerID)
		if !ok {
			return fmt.Errorf("%w: player %d", domain.ErrNotFound, playerID)
		}
		if err := checkQuestionPosition(sess, questionPosition); err != nil {
			return err
		}
		if sess.State != domain.StateQuestionOpen {
			return fmt.Errorf("%w: question is not open", domain.ErrValidation)
		}
		if questionPosition != sess.AtQuestion {
			return fmt.Errorf("%w: session is not at question %d", domain.ErrValidation, questionPosition)
		}

		question := sess.Metadata.Questions[questionPosition-1]
		if err := checkAnswerIDs(question, answerIDs); err != nil {
			return err
		}

		qs := sess.QuestionSessions[questionPosition-1]
		taken := s.now().Sub(qs.TimeStart).Seconds()

		// Latest submission wins: drop the prior entry along with its time
		// contribution before recording the new one.
		for i, prev := range qs.PlayerAnswers {
			if prev.PlayerID == playerID {
				player.TimeTakenSeconds -= prev.TimeTakenSeconds
				qs.PlayerAnswers = append(qs.PlayerAnswers[:i], qs.PlayerAnswers[i+1:]...)
				break
			}
		}

		submitted := make([]int, len(answerIDs))
		copy(submitted, answerIDs)
		qs.PlayerAnswers = append(qs.PlayerAnswers, domain.PlayerAnswer{
			PlayerID:         playerID,
			AnswerIDs:        submitted,
			Correct:          isCorrectSubmission(question, answerIDs),
			TimeTakenSeconds: taken,
			SubmittedAt:      s.now(),
		})
		player.TimeTakenSeconds += taken
		return nil
	})
}

// PlayerQuestionResult returns a question's statistics to a player while the
// session shows answers. Questions up to and including the current one are
// available.
func (s *SessionService) PlayerQuestionResult(_ context.Context, playerID, questionPosition int) (domain.QuestionResult, error) {
	sessionID, ok := s.sessions.PlayerSession(playerID)
	if !ok {
		return domain.QuestionResult{}, fmt.Errorf("%w: player %d", domain.ErrNotFound, playerID)
	}

	var result domain.QuestionResult
	err := s.sessions.View(sessionID, func(sess *domain.Session) error {
		if err := checkQuestionPosition(sess, questionPosition); err != nil {
			return err
		}
		if sess.State != domain.StateAnswerShow {
			return fmt.Errorf("%w: answers are not being shown", domain.ErrValidation)
		}
		if questionPosition > sess.AtQuestion {
			return fmt.Errorf("%w: session is not yet at question %d", domain.ErrValidation, questionPosition)
		}
		result = questionResult(sess, questionPosition)
		return nil
	})
	return result, err
}

func checkQuestionPosition(sess *domain.Session, position int) error {
	if position < 1 || position > len(sess.Metadata.Questions) {
		return fmt.Errorf("%w: question position %d out of range", domain.ErrValidation, position)
	}
	return nil
}

func checkAnswerIDs(question domain.Question, answerIDs []int) error {
	if len(answerIDs) == 0 {
		return fmt.Errorf("%w: no answer ids submitted", domain.ErrValidation)
	}
	seen := make(map[int]struct{}, len(answerIDs))
	for _, id := range answerIDs {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate answer id %d", domain.ErrValidation, id)
		}
		seen[id] = struct{}{}
		if !question.HasAnswerID(id) {
			return fmt.Errorf("%w: answer id %d is not valid for this question", domain.ErrValidation, id)
		}
	}
	return nil
}

// isCorrectSubmission reports whether the submitted set matches the
// question's correct set exactly, order irrelevant.
func isCorrectSubmission(question domain.Question, answerIDs []int) bool {
	correct := question.CorrectAnswerIDs()
	if len(answerIDs) != len(correct) {
		return false
	}
	want := make(map[int]struct{}, len(correct))
	for _, id := range correct {
		want[id] = struct{}{}
	}
	for _, id := range answerIDs {
		if _, ok := want[id]; !ok {
			return false
		}
	}
	return true
}
