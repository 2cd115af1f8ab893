package domain

import "errors"

var (
	// ErrQuizNotFound indicates the referenced quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrSessionNotFound is returned for an unknown or reclaimed PIN.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionNotJoinable is returned when a join arrives outside the lobby.
	ErrSessionNotJoinable = errors.New("session not joinable")
	// ErrGroupNotFound is returned when a session's scope references an
	// unknown group.
	ErrGroupNotFound = errors.New("group not found")
	// ErrScopeMismatch is returned when a persistent identity is not enrolled
	// in the session's scope. This is an access-control rejection, not a hint.
	ErrScopeMismatch = errors.New("identity not enrolled in session scope")
	// ErrUnauthorized is returned when a privileged action arrives without a
	// valid host token.
	ErrUnauthorized = errors.New("host token required")
	// ErrPlayerNotFound is returned when a player acts before joining.
	ErrPlayerNotFound = errors.New("player not found in session")
	// ErrSessionNotActive is returned for gameplay actions outside ACTIVE.
	ErrSessionNotActive = errors.New("session not active")
	// ErrQuestionNotFound indicates a submitted question index is out of range.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrWrongMode is returned when an operation does not apply to the
	// session's delivery mode.
	ErrWrongMode = errors.New("operation not valid in this delivery mode")
	// ErrAttemptFinished is returned for submissions after finish-attempt.
	ErrAttemptFinished = errors.New("attempt already finished")
)
