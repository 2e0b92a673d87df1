package memory

import (
	"fmt"
	"sort"
	"sync"

	"toohak-session-service/internal/domain"
)

// SessionStore is the in-memory implementation of app.SessionRepository.
// Each session sits behind its own mutex, so concurrent operations on
// different sessions proceed independently while read-modify-write on one
// session is serialized.
type SessionStore struct {
	mu            sync.RWMutex
	sessions      map[int]*sessionEntry
	nextSessionID int

	// The player index has its own lock: it is consulted from inside session
	// locks (Join binds players mid-update), and must not wait on s.mu, which
	// Create holds while it walks session entries.
	playerMu      sync.RWMutex
	playerSession map[int]int
	nextPlayerID  int
}

type sessionEntry struct {
	mu      sync.Mutex
	session *domain.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:      make(map[int]*sessionEntry),
		playerSession: make(map[int]int),
	}
}

// Create assigns a fresh monotonic id and stores the session. The per-quiz
// cap on sessions that have not reached END is enforced under the store lock,
// so two racing creates cannot both slip under it.
func (s *SessionStore) Create(session *domain.Session, maxActive int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := 0
	for _, entry := range s.sessions {
		entry.mu.Lock()
		if entry.session.QuizID == session.QuizID && entry.session.State != domain.StateEnd {
			active++
		}
		entry.mu.Unlock()
	}
	if active >= maxActive {
		return 0, fmt.Errorf("%w: quiz already has %d sessions that are not in END state", domain.ErrValidation, active)
	}

	s.nextSessionID++
	session.ID = s.nextSessionID
	s.sessions[session.ID] = &sessionEntry{session: session}
	return session.ID, nil
}

func (s *SessionStore) entry(sessionID int) (*sessionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: session %d", domain.ErrNotFound, sessionID)
	}
	return entry, nil
}

// View runs fn with the session locked. fn must not retain the pointer.
func (s *SessionStore) View(sessionID int, fn func(*domain.Session) error) error {
	entry, err := s.entry(sessionID)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return fn(entry.session)
}

// Update runs fn with the session locked for mutation.
func (s *SessionStore) Update(sessionID int, fn func(*domain.Session) error) error {
	entry, err := s.entry(sessionID)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return fn(entry.session)
}

// SummariesByQuiz returns the id/state pairs of the quiz's sessions sorted
// ascending by id.
func (s *SessionStore) SummariesByQuiz(quizID int) []domain.SessionSummary {
	s.mu.RLock()
	entries := make([]*sessionEntry, 0, len(s.sessions))
	for _, entry := range s.sessions {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	summaries := []domain.SessionSummary{}
	for _, entry := range entries {
		entry.mu.Lock()
		if entry.session.QuizID == quizID {
			summaries = append(summaries, domain.SessionSummary{ID: entry.session.ID, State: entry.session.State})
		}
		entry.mu.Unlock()
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	return summaries
}

// NextPlayerID hands out player ids unique across all sessions.
func (s *SessionStore) NextPlayerID() int {
	s.playerMu.Lock()
	defer s.playerMu.Unlock()
	s.nextPlayerID++
	return s.nextPlayerID
}

// BindPlayer indexes a player id to its session.
func (s *SessionStore) BindPlayer(playerID, sessionID int) {
	s.playerMu.Lock()
	defer s.playerMu.Unlock()
	s.playerSession[playerID] = sessionID
}

// PlayerSession resolves a player id to its session id.
func (s *SessionStore) PlayerSession(playerID int) (int, bool) {
	s.playerMu.RLock()
	defer s.playerMu.RUnlock()
	sessionID, ok := s.playerSession[playerID]
	return sessionID, ok
}
