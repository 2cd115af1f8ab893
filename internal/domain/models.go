package domain

import "time"

// Mode selects how questions are delivered to players.
type Mode string

const (
	// ModeSequential is host-paced: one question visible at a time.
	ModeSequential Mode = "sequential"
	// ModeSelfPaced delivers every question up front; players navigate on their own.
	ModeSelfPaced Mode = "self-paced"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusLobby    Status = "LOBBY"
	StatusActive   Status = "ACTIVE"
	StatusFinished Status = "FINISHED"
)

// Presence is the host-visible connection state of a player.
type Presence string

const (
	PresenceOnline   Presence = "online"
	PresenceOffline  Presence = "offline"
	PresenceCheating Presence = "cheating"
)

// QuestionType tags how a question is answered and scored.
type QuestionType string

const (
	TypeMultipleChoice QuestionType = "multiple-choice"
	TypeTrueFalse      QuestionType = "true-false"
	TypeTextInput      QuestionType = "text-input"
	TypeFillBlank      QuestionType = "fill-blank"
	TypeFindMistake    QuestionType = "find-mistake"
	TypeRewrite        QuestionType = "rewrite"
	TypeWordBox        QuestionType = "word-box"
	TypeInfoSlide      QuestionType = "info-slide"
)

// IsIndexType reports whether correctness is decided by the option index.
func (t QuestionType) IsIndexType() bool {
	return t == TypeMultipleChoice || t == TypeTrueFalse
}

// IsTextType reports whether correctness is decided by text matching.
func (t QuestionType) IsTextType() bool {
	switch t {
	case TypeTextInput, TypeFillBlank, TypeFindMistake, TypeRewrite, TypeWordBox:
		return true
	}
	return false
}

// Question models a single quiz item. CorrectIndex is meaningful only for
// index types, AcceptedAnswers only for text types. Info slides carry no
// correctness semantics at all.
type Question struct {
	Text            string       `json:"text"`
	Type            QuestionType `json:"type"`
	Options         []string     `json:"options,omitempty"`
	CorrectIndex    int          `json:"correctIndex"`
	AcceptedAnswers []string     `json:"acceptedAnswers,omitempty"`
	TimeLimit       int          `json:"timeLimit,omitempty"` // seconds, informational
}

// Quiz is the read-only content record supplied by the content store.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	TimeLimit int        `json:"timeLimit,omitempty"` // whole-session fallback, seconds
	Questions []Question `json:"questions"`
}

// AnswerSubmission is the scoring signal from a player. QuestionIndex is
// explicit in self-paced mode and ignored (server cursor wins) in
// sequential mode. Index answers use OptionIndex; text answers use Text.
type AnswerSubmission struct {
	QuestionIndex int    `json:"questionIndex"`
	OptionIndex   int    `json:"optionIndex"`
	Text          string `json:"text"`
}

// RosterEntry is the host's view of one player.
type RosterEntry struct {
	PlayerID    string   `json:"playerId"`
	DisplayName string   `json:"displayName"`
	Score       int      `json:"score"`
	Presence    Presence `json:"presence"`
	Finished    bool     `json:"finished"`
}

// LeaderboardEntry is one row of the final ranking.
type LeaderboardEntry struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
}

// AnswerReview is one corrected answer returned by finish-attempt.
type AnswerReview struct {
	QuestionIndex int    `json:"questionIndex"`
	Submitted     string `json:"submitted"`
	Correct       bool   `json:"correct"`
}

// PlayerResult is the per-player slice of a session result.
type PlayerResult struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
	Answered    int    `json:"answered"`
}

// SessionResult is the record handed to persistence and reporting
// collaborators when a scoped session finishes.
type SessionResult struct {
	QuizID         string         `json:"quizId"`
	QuizTitle      string         `json:"quizTitle"`
	TotalQuestions int            `json:"totalQuestions"`
	ScopeID        string         `json:"scopeId"`
	ScopeName      string         `json:"scopeName"`
	Players        []PlayerResult `json:"players"`
	FinishedAt     time.Time      `json:"finishedAt"`
}

// Group is the scope record a session can be restricted to.
type Group struct {
	ID      string
	Name    string
	Members []string
}
