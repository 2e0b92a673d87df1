package domain

import "time"

// Answer is one selectable option of a question.
type Answer struct {
	ID      int    `json:"id"`
	Text    string `json:"text"`
	Colour  string `json:"colour"`
	Correct bool   `json:"correct"`
}

// Question is a single timed question with one or more correct answers.
type Question struct {
	ID              int      `json:"id"`
	Text            string   `json:"text"`
	DurationSeconds int      `json:"durationSeconds"`
	Points          int      `json:"points"`
	Answers         []Answer `json:"answers"`
}

// CorrectAnswerIDs returns the ids of the question's correct answers.
func (q Question) CorrectAnswerIDs() []int {
	ids := make([]int, 0, len(q.Answers))
	for _, a := range q.Answers {
		if a.Correct {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// HasAnswerID reports whether id is a valid answer id for the question.
func (q Question) HasAnswerID(id int) bool {
	for _, a := range q.Answers {
		if a.ID == id {
			return true
		}
	}
	return false
}

// Quiz is an immutable snapshot of quiz content taken at session creation.
type Quiz struct {
	ID          int        `json:"id"`
	OwnerID     int        `json:"ownerId"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Questions   []Question `json:"questions"`
}

// Clone deep-copies the quiz so a session's metadata never aliases the
// live quiz object.
func (q Quiz) Clone() Quiz {
	out := q
	out.Questions = make([]Question, len(q.Questions))
	for i, question := range q.Questions {
		cq := question
		cq.Answers = make([]Answer, len(question.Answers))
		copy(cq.Answers, question.Answers)
		out.Questions[i] = cq
	}
	return out
}

// Player is an anonymous participant of a single session.
type Player struct {
	ID   int    `json:"playerId"`
	Name string `json:"name"`
	// TimeTakenSeconds accumulates the answer time of this player's recorded
	// submissions; a resubmission subtracts the replaced entry first.
	TimeTakenSeconds float64 `json:"timeTaken"`
	// Score is the summed rank-divided score, filled in at FINAL_RESULTS.
	Score float64 `json:"score"`
}

// PlayerAnswer records one player's latest submission for a question.
type PlayerAnswer struct {
	PlayerID         int       `json:"playerId"`
	AnswerIDs        []int     `json:"answerIds"`
	Correct          bool      `json:"correct"`
	TimeTakenSeconds float64   `json:"timeTaken"`
	SubmittedAt      time.Time `json:"submittedAt"`
}

// QuestionSession tracks the live data of one question within a session.
type QuestionSession struct {
	QuestionID         int            `json:"questionId"`
	TimeStart          time.Time      `json:"timeStart"`
	PlayerAnswers      []PlayerAnswer `json:"playerAnswers"`
	PlayersCorrectList []string       `json:"playersCorrectList"`
	AverageAnswerTime  int            `json:"averageAnswerTime"`
	PercentCorrect     int            `json:"percentCorrect"`
}

// Message is a chat message attached to a session. Chat operations live in an
// external collaborator; the session only carries the log.
type Message struct {
	PlayerID   int       `json:"playerId"`
	PlayerName string    `json:"playerName"`
	Body       string    `json:"messageBody"`
	SentAt     time.Time `json:"timeSent"`
}

// QuestionScore is a player's score/rank pair for one question.
type QuestionScore struct {
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

// PlayerScore is one row of the final per-player results: one score/rank pair
// per question, in question order.
type PlayerScore struct {
	Name      string          `json:"name"`
	Questions []QuestionScore `json:"questions"`
}

// Session is the authoritative state of one live quiz run.
type Session struct {
	ID               int
	QuizID           int
	OwnerID          int
	State            SessionState
	AtQuestion       int
	AutoStartNum     int
	Metadata         Quiz
	Players          []*Player
	QuestionSessions []*QuestionSession
	Messages         []Message
	PlayerScores     []PlayerScore
}

// CurrentQuestion returns the question currently pointed at by AtQuestion.
func (s *Session) CurrentQuestion() (Question, bool) {
	if s.AtQuestion < 1 || s.AtQuestion > len(s.Metadata.Questions) {
		return Question{}, false
	}
	return s.Metadata.Questions[s.AtQuestion-1], true
}

// FindPlayer returns the session's player with the given id.
func (s *Session) FindPlayer(playerID int) (*Player, bool) {
	for _, p := range s.Players {
		if p.ID == playerID {
			return p, true
		}
	}
	return nil, false
}

// SessionSummary is the id/state projection used to partition sessions of a quiz.
type SessionSummary struct {
	ID    int          `json:"sessionId"`
	State SessionState `json:"state"`
}

// SessionStatus is the owner-facing read model of a session.
type SessionStatus struct {
	State      SessionState `json:"state"`
	AtQuestion int          `json:"atQuestion"`
	Players    []string     `json:"players"`
	Metadata   Quiz         `json:"metadata"`
}

// AnswerOption is the player-visible projection of an Answer, with the
// correctness flag stripped.
type AnswerOption struct {
	ID     int    `json:"answerId"`
	Text   string `json:"answer"`
	Colour string `json:"colour"`
}

// PlayerQuestion is the player-visible view of the currently open question.
type PlayerQuestion struct {
	QuestionID      int            `json:"questionId"`
	Text            string         `json:"question"`
	DurationSeconds int            `json:"duration"`
	Points          int            `json:"points"`
	Answers         []AnswerOption `json:"answers"`
}

// PlayerStatus is the player-facing view of their session.
type PlayerStatus struct {
	State        SessionState `json:"state"`
	NumQuestions int          `json:"numQuestions"`
	AtQuestion   int          `json:"atQuestion"`
}

// QuestionResult holds the per-question statistics shown after a question and
// in the final results.
type QuestionResult struct {
	QuestionID         int      `json:"questionId"`
	PlayersCorrectList []string `json:"playersCorrectList"`
	AverageAnswerTime  int      `json:"averageAnswerTime"`
	PercentCorrect     int      `json:"percentCorrect"`
}

// UserScore is one leaderboard entry of the final results.
type UserScore struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// FinalResults is the read model available once a session reaches FINAL_RESULTS.
type FinalResults struct {
	UsersRankedByScore []UserScore      `json:"usersRankedByScore"`
	QuestionResults    []QuestionResult `json:"questionResults"`
}

// StateUpdate is pushed to session watchers on every applied transition.
type StateUpdate struct {
	SessionID    int          `json:"sessionId"`
	State        SessionState `json:"state"`
	AtQuestion   int          `json:"atQuestion"`
	NumQuestions int          `json:"numQuestions"`
}
