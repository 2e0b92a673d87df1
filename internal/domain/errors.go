package domain

import "errors"

var (
	// ErrNotFound is returned for unknown session, quiz, player or question ids.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the caller does not own the quiz.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized is returned when a session token does not resolve to a user.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidTransition is returned for an action that is illegal in the current state.
	ErrInvalidTransition = errors.New("action not allowed in current state")
	// ErrInvalidAction is returned for an unrecognized action token.
	ErrInvalidAction = errors.New("unrecognized action")
	// ErrValidation is returned for malformed input: autoStartNum out of range,
	// bad answer sets, question positions, duplicate player names.
	ErrValidation = errors.New("validation failed")
)
