package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no tournament session exists for a code.
	ErrSessionNotFound = errors.New("tournament session not found")
	// ErrQuestionNotFound indicates a question uid is not part of the session.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrInvalidDuration rejects non-positive durations on timer start.
	ErrInvalidDuration = errors.New("invalid timer duration")
)

// Rejection reasons surfaced to the submitter on an answer receipt.
const (
	RejectLate       = "late"
	RejectStopped    = "stopped"
	RejectNotStarted = "not_started"
)
