package domain

// Event is the outbound envelope pushed to session subscribers. Payloads
// are concrete per-audience types (HostQuestionView vs PlayerQuestionView
// and so on), never maps that differ by convention.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Event types broadcast by a session.
const (
	EventSessionStarted = "session-started"
	EventRosterUpdate   = "roster-update"
	EventQuestionHost   = "question-for-host"
	EventQuestionPlayer = "question-for-player"
	EventQuestionList   = "question-list"
	EventAnswerCount    = "answer-count"
	EventSessionOver    = "session-over"
)

// SessionStarted announces the LOBBY -> ACTIVE transition to the room.
// EndsAt is informational only; the server never auto-advances on it.
type SessionStarted struct {
	Title    string `json:"title"`
	EndsAt   int64  `json:"endsAt"` // unix seconds
	Mode     Mode   `json:"mode"`
	Question int    `json:"questionCount"`
}

// RosterUpdate carries the host's roster view.
type RosterUpdate struct {
	PIN    string        `json:"pin"`
	Roster []RosterEntry `json:"roster"`
}

// AnswerCount tells the host how many players answered the current
// question in sequential mode.
type AnswerCount struct {
	QuestionIndex int `json:"questionIndex"`
	Answered      int `json:"answered"`
	Players       int `json:"players"`
}

// SessionOver carries the final leaderboard to the whole room.
type SessionOver struct {
	PIN         string             `json:"pin"`
	QuizTitle   string             `json:"quizTitle"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}
