package domain

// SessionState is the lifecycle phase of a live quiz session.
type SessionState string

const (
	StateLobby             SessionState = "LOBBY"
	StateQuestionCountdown SessionState = "QUESTION_COUNTDOWN"
	StateQuestionOpen      SessionState = "QUESTION_OPEN"
	StateQuestionClose     SessionState = "QUESTION_CLOSE"
	StateAnswerShow        SessionState = "ANSWER_SHOW"
	StateFinalResults      SessionState = "FINAL_RESULTS"
	StateEnd               SessionState = "END"
)

// States lists every session state; exhaustive transition tests range over it.
var States = []SessionState{
	StateLobby,
	StateQuestionCountdown,
	StateQuestionOpen,
	StateQuestionClose,
	StateAnswerShow,
	StateFinalResults,
	StateEnd,
}

// AdminAction is an owner-issued command against a session.
type AdminAction string

const (
	ActionNextQuestion     AdminAction = "NEXT_QUESTION"
	ActionSkipCountdown    AdminAction = "SKIP_COUNTDOWN"
	ActionGoToAnswer       AdminAction = "GO_TO_ANSWER"
	ActionGoToFinalResults AdminAction = "GO_TO_FINAL_RESULTS"
	ActionEnd              AdminAction = "END"
)

// Actions lists every recognized admin action.
var Actions = []AdminAction{
	ActionNextQuestion,
	ActionSkipCountdown,
	ActionGoToAnswer,
	ActionGoToFinalResults,
	ActionEnd,
}

// ParseAdminAction maps a raw action token to an AdminAction.
func ParseAdminAction(raw string) (AdminAction, error) {
	for _, action := range Actions {
		if string(action) == raw {
			return action, nil
		}
	}
	return "", ErrInvalidAction
}
