package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"toohak-session-service/internal/domain"
)

const (
	maxAutoStartNum   = 50
	maxActiveSessions = 10
	defaultCountdown  = 3 * time.Second
)

// SessionRepository abstracts how live sessions are stored. View and Update
// run fn under the session's lock, so read-modify-write is a critical section
// per session; operations on different sessions never block each other.
type SessionRepository interface {
	// Create stores a new session under a fresh monotonic id. It fails with a
	// validation error when the quiz already has maxActive sessions that have
	// not reached END.
	Create(s *domain.Session, maxActive int) (int, error)
	View(sessionID int, fn func(*domain.Session) error) error
	Update(sessionID int, fn func(*domain.Session) error) error
	SummariesByQuiz(quizID int) []domain.SessionSummary

	NextPlayerID() int
	BindPlayer(playerID, sessionID int)
	PlayerSession(playerID int) (int, bool)
}

// QuizRepository loads immutable quiz snapshots (from cache/backing store).
// It fails with domain.ErrNotFound for unknown quizzes and domain.ErrForbidden
// when ownerID does not own the quiz.
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID, ownerID int) (domain.Quiz, error)
}

// TokenResolver resolves an opaque session token to a user id.
type TokenResolver interface {
	ResolveUserID(token string) (int, bool)
}

// ExportStore holds rendered CSV exports under a per-export token.
type ExportStore interface {
	Save(ctx context.Context, sessionID int, token string, data []byte) error
	Fetch(ctx context.Context, sessionID int, token string) ([]byte, error)
}

// SessionService contains the session lifecycle, state machine, answer intake
// and results use cases.
type SessionService struct {
	sessions  SessionRepository
	quizzes   QuizRepository
	tokens    TokenResolver
	exports   ExportStore
	scheduler Scheduler
	hub       *watchHub
	logger    *zap.SugaredLogger

	now       func() time.Time
	countdown time.Duration
	// tick converts a question's duration in seconds to a timer delay.
	// Tests shrink it to keep timed transitions fast.
	tick time.Duration
}

// Option tweaks a SessionService; used by tests for deterministic clocks and
// short timers.
type Option func(*SessionService)

func WithClock(now func() time.Time) Option {
	return func(s *SessionService) { s.now = now }
}

func WithCountdown(d time.Duration) Option {
	return func(s *SessionService) { s.countdown = d }
}

func WithQuestionTick(d time.Duration) Option {
	return func(s *SessionService) { s.tick = d }
}

func NewSessionService(
	sessions SessionRepository,
	quizzes QuizRepository,
	tokens TokenResolver,
	exports ExportStore,
	scheduler Scheduler,
	logger *zap.SugaredLogger,
	opts ...Option,
) *SessionService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &SessionService{
		sessions:  sessions,
		quizzes:   quizzes,
		tokens:    tokens,
		exports:   exports,
		scheduler: scheduler,
		hub:       newWatchHub(),
		logger:    logger,
		now:       time.Now,
		countdown: defaultCountdown,
		tick:      time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close cancels every outstanding timer and drops all watchers. No transition
// fires after Close returns.
func (s *SessionService) Close() {
	s.scheduler.CancelAll()
	s.hub.closeAll()
}

func (s *SessionService) resolveOwner(token string) (int, error) {
	userID, ok := s.tokens.ResolveUserID(token)
	if !ok {
		return 0, domain.ErrUnauthorized
	}
	return userID, nil
}

// CreateSession starts a new session for the quiz in LOBBY state.
func (s *SessionService) CreateSession(ctx context.Context, token string, quizID, autoStartNum int) (int, error) {
	ownerID, err := s.resolveOwner(token)
	if err != nil {
		return 0, err
	}
	if autoStartNum < 0 || autoStartNum > maxAutoStartNum {
		return 0, fmt.Errorf("%w: autoStartNum must be in [0, %d]", domain.ErrValidation, maxAutoStartNum)
	}

	quiz, err := s.quizzes.GetQuiz(ctx, quizID, ownerID)
	if err != nil {
		return 0, err
	}
	if len(quiz.Questions) == 0 {
		return 0, fmt.Errorf("%w: quiz has no questions", domain.ErrValidation)
	}

	snapshot := quiz.Clone()
	questionSessions := make([]*domain.QuestionSession, len(snapshot.Questions))
	for i, q := range snapshot.Questions {
		questionSessions[i] = &domain.QuestionSession{QuestionID: q.ID}
	}

	session := &domain.Session{
		QuizID:           quizID,
		OwnerID:          ownerID,
		State:            domain.StateLobby,
		AtQuestion:       0,
		AutoStartNum:     autoStartNum,
		Metadata:         snapshot,
		QuestionSessions: questionSessions,
	}

	id, err := s.sessions.Create(session, maxActiveSessions)
	if err != nil {
		return 0, err
	}
	s.logger.Infow("session created", "sessionId", id, "quizId", quizID, "autoStartNum", autoStartNum)
	return id, nil
}

// SessionList partitions a quiz's sessions into those still running and those
// that reached END, both sorted ascending by id.
type SessionList struct {
	ActiveSessions   []int `json:"activeSessions"`
	InactiveSessions []int `json:"inactiveSessions"`
}

// ListSessions lists the quiz's session ids partitioned by liveness.
func (s *SessionService) ListSessions(ctx context.Context, token string, quizID int) (SessionList, error) {
	ownerID, err := s.resolveOwner(token)
	if err != nil {
		return SessionList{}, err
	}
	if _, err := s.quizzes.GetQuiz(ctx, quizID, ownerID); err != nil {
		return SessionList{}, err
	}

	list := SessionList{ActiveSessions: []int{}, InactiveSessions: []int{}}
	for _, summary := range s.sessions.SummariesByQuiz(quizID) {
		if summary.State == domain.StateEnd {
			list.InactiveSessions = append(list.InactiveSessions, summary.ID)
		} else {
			list.ActiveSessions = append(list.ActiveSessions, summary.ID)
		}
	}
	return list, nil
}

// SessionStatus returns the owner-facing view of a session.
func (s *SessionService) SessionStatus(_ context.Context, token string, sessionID int) (domain.SessionStatus, error) {
	ownerID, err := s.resolveOwner(token)
	if err != nil {
		return domain.SessionStatus{}, err
	}

	var status domain.SessionStatus
	err = s.sessions.View(sessionID, func(sess *domain.Session) error {
		if sess.OwnerID != ownerID {
			return domain.ErrForbidden
		}
		names := make([]string, len(sess.Players))
		for i, p := range sess.Players {
			names[i] = p.Name
		}
		status = domain.SessionStatus{
			State:      sess.State,
			AtQuestion: sess.AtQuestion,
			Players:    names,
			Metadata:   sess.Metadata.Clone(),
		}
		return nil
	})
	return status, err
}
