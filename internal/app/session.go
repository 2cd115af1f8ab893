package app

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"quiz-session-service/internal/domain"
)

type audience int

const (
	toRoom audience = iota
	toHost
	toPlayers
	toOnePlayer
)

type subscriber struct {
	host     bool
	playerID string
	ch       chan domain.Event
}

type playerState struct {
	id          string
	displayName string
	score       int
	answers     map[int]string
	correctness map[int]bool
	presence    domain.Presence
	finished    bool
}

// Session is one live quiz run. Every mutation takes the session mutex, so
// joins, submissions, presence updates and finalization are atomic with
// respect to each other. Sessions never share locks.
type Session struct {
	pin       string
	quiz      domain.Quiz
	mode      domain.Mode
	scopeID   string
	scopeName string
	hostToken string
	now       func() time.Time

	// onFinished receives the result record exactly once, after the
	// leaderboard broadcast. It must not block; the service runs the
	// handoff asynchronously.
	onFinished func(domain.SessionResult)

	mu          sync.Mutex
	status      domain.Status
	cursor      int
	endTime     time.Time
	players     map[string]*playerState
	joinOrder   []string
	subscribers map[*subscriber]struct{}
}

func newSession(pin string, quiz domain.Quiz, mode domain.Mode, scopeID, scopeName, hostToken string, now func() time.Time) *Session {
	return &Session{
		pin:         pin,
		quiz:        quiz,
		mode:        mode,
		scopeID:     scopeID,
		scopeName:   scopeName,
		hostToken:   hostToken,
		now:         now,
		status:      domain.StatusLobby,
		cursor:      -1,
		players:     make(map[string]*playerState),
		subscribers: make(map[*subscriber]struct{}),
	}
}

// PIN returns the session code.
func (s *Session) PIN() string { return s.pin }

// Mode returns the delivery mode.
func (s *Session) Mode() domain.Mode { return s.mode }

// Status returns the current lifecycle state.
func (s *Session) Status() domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// HostToken returns the capability issued at creation. Callers present it
// on every privileged action; there is no re-binding on resync.
func (s *Session) HostToken() string { return s.hostToken }

func (s *Session) authorized(token string) bool {
	return token != "" && token == s.hostToken
}

// JoinEphemeral admits a connection-scoped identity. Only valid in LOBBY.
func (s *Session) JoinEphemeral(playerID, displayName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.StatusLobby {
		return domain.ErrSessionNotJoinable
	}
	s.admitLocked(playerID, displayName)
	s.broadcastLocked(domain.Event{Type: domain.EventRosterUpdate, Payload: s.rosterLocked()}, toHost, "")
	return nil
}

// JoinPersistent admits or refreshes a stable external identity. The scope
// check happens in the service before this is called. Rejoining flips the
// existing entry back to Online instead of duplicating it.
func (s *Session) JoinPersistent(playerID, displayName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == domain.StatusFinished {
		return domain.ErrSessionNotJoinable
	}
	s.admitLocked(playerID, displayName)
	s.broadcastLocked(domain.Event{Type: domain.EventRosterUpdate, Payload: s.rosterLocked()}, toHost, "")
	return nil
}

func (s *Session) admitLocked(playerID, displayName string) {
	if p, ok := s.players[playerID]; ok {
		if displayName != "" {
			p.displayName = displayName
		}
		if p.presence != domain.PresenceCheating {
			p.presence = domain.PresenceOnline
		}
		return
	}
	s.players[playerID] = &playerState{
		id:          playerID,
		displayName: displayName,
		answers:     make(map[int]string),
		correctness: make(map[int]bool),
		presence:    domain.PresenceOnline,
	}
	s.joinOrder = append(s.joinOrder, playerID)
}

// Start moves LOBBY -> ACTIVE. Duration precedence: host-supplied, then
// the quiz's configured limit, then the service default. The resulting end
// time is informational; nothing fires when it passes.
func (s *Session) Start(token string, duration, defaultDuration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.authorized(token) {
		return domain.ErrUnauthorized
	}
	if s.status != domain.StatusLobby {
		return domain.ErrSessionNotJoinable
	}

	if duration <= 0 {
		if s.quiz.TimeLimit > 0 {
			duration = time.Duration(s.quiz.TimeLimit) * time.Second
		} else {
			duration = defaultDuration
		}
	}
	s.status = domain.StatusActive
	s.endTime = s.now().Add(duration)

	s.broadcastLocked(domain.Event{Type: domain.EventSessionStarted, Payload: domain.SessionStarted{
		Title:    s.quiz.Title,
		EndsAt:   s.endTime.Unix(),
		Mode:     s.mode,
		Question: len(s.quiz.Questions),
	}}, toRoom, "")

	if s.mode == domain.ModeSequential {
		s.cursor = 0
		s.dispatchCurrentLocked()
	} else {
		s.broadcastLocked(domain.Event{Type: domain.EventQuestionList, Payload: playerViews(s.quiz)}, toPlayers, "")
	}
	return nil
}

// Advance moves the shared cursor to the next question; past the last
// question it finalizes. Sequential mode only.
func (s *Session) Advance(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.authorized(token) {
		return domain.ErrUnauthorized
	}
	if s.mode != domain.ModeSequential {
		return domain.ErrWrongMode
	}
	if s.status != domain.StatusActive {
		return domain.ErrSessionNotActive
	}

	s.cursor++
	if s.cursor >= len(s.quiz.Questions) {
		s.finalizeLocked()
		return nil
	}
	s.dispatchCurrentLocked()
	return nil
}

// EndEarly forces finalization regardless of cursor position.
func (s *Session) EndEarly(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.authorized(token) {
		return domain.ErrUnauthorized
	}
	if s.status == domain.StatusFinished {
		return nil
	}
	s.finalizeLocked()
	return nil
}

func (s *Session) dispatchCurrentLocked() {
	q := s.quiz.Questions[s.cursor]
	total := len(s.quiz.Questions)
	s.broadcastLocked(domain.Event{Type: domain.EventQuestionHost, Payload: hostView(q, s.cursor, total)}, toHost, "")
	s.broadcastLocked(domain.Event{Type: domain.EventQuestionPlayer, Payload: playerView(q, s.cursor, total)}, toPlayers, "")
}

// AnswerReceived acknowledges a submission. It carries no correctness or
// score feedback: a score delta would distinguish right from wrong, and
// with unlimited revision that turns the ack into an answer oracle.
type AnswerReceived struct {
	QuestionIndex int `json:"questionIndex"`
}

// Submit applies an answer through the revision-aware scoring rule. In
// sequential mode the server cursor names the question; in self-paced mode
// the submission does, and resubmission for any index is allowed until the
// player finishes the attempt.
func (s *Session) Submit(playerID string, sub domain.AnswerSubmission) (AnswerReceived, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.StatusActive {
		return AnswerReceived{}, domain.ErrSessionNotActive
	}
	p, ok := s.players[playerID]
	if !ok {
		return AnswerReceived{}, domain.ErrPlayerNotFound
	}

	index := sub.QuestionIndex
	if s.mode == domain.ModeSequential {
		index = s.cursor
	} else if p.finished {
		return AnswerReceived{}, domain.ErrAttemptFinished
	}
	if index < 0 || index >= len(s.quiz.Questions) {
		return AnswerReceived{}, domain.ErrQuestionNotFound
	}

	q := s.quiz.Questions[index]
	if q.Type == domain.TypeInfoSlide {
		return AnswerReceived{QuestionIndex: index}, nil
	}

	raw := sub.Text
	if q.Type.IsIndexType() {
		raw = strconv.Itoa(sub.OptionIndex)
	}

	nowCorrect := isCorrect(q, sub)
	wasCorrect, had := p.correctness[index]
	p.score += scoreDelta(wasCorrect, had, nowCorrect)
	p.answers[index] = raw
	p.correctness[index] = nowCorrect

	if s.mode == domain.ModeSequential {
		s.broadcastLocked(domain.Event{Type: domain.EventAnswerCount, Payload: domain.AnswerCount{
			QuestionIndex: index,
			Answered:      s.answeredLocked(index),
			Players:       len(s.players),
		}}, toHost, "")
	}
	s.broadcastLocked(domain.Event{Type: domain.EventRosterUpdate, Payload: s.rosterLocked()}, toHost, "")

	return AnswerReceived{QuestionIndex: index}, nil
}

func (s *Session) answeredLocked(index int) int {
	n := 0
	for _, p := range s.players {
		if _, ok := p.answers[index]; ok {
			n++
		}
	}
	return n
}

// FinishAttempt marks a self-paced player done and returns their corrected
// answers. Further submissions from the player are rejected.
func (s *Session) FinishAttempt(playerID string) ([]domain.AnswerReview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != domain.ModeSelfPaced {
		return nil, domain.ErrWrongMode
	}
	if s.status != domain.StatusActive {
		return nil, domain.ErrSessionNotActive
	}
	p, ok := s.players[playerID]
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}

	p.finished = true
	review := make([]domain.AnswerReview, 0, len(p.answers))
	for i := range s.quiz.Questions {
		raw, ok := p.answers[i]
		if !ok {
			continue
		}
		review = append(review, domain.AnswerReview{
			QuestionIndex: i,
			Submitted:     raw,
			Correct:       p.correctness[i],
		})
	}
	s.broadcastLocked(domain.Event{Type: domain.EventRosterUpdate, Payload: s.rosterLocked()}, toHost, "")
	return review, nil
}

// ReportVisibility applies a client-reported foreground/background change.
// A hidden report flags the player; the flag is sticky for the rest of the
// session and never affects scoring. Finished sessions ignore reports.
func (s *Session) ReportVisibility(playerID string, visible bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == domain.StatusFinished {
		return nil
	}
	p, ok := s.players[playerID]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	if p.presence == domain.PresenceCheating {
		return nil
	}
	if visible {
		p.presence = domain.PresenceOnline
	} else {
		p.presence = domain.PresenceCheating
	}
	s.broadcastLocked(domain.Event{Type: domain.EventRosterUpdate, Payload: s.rosterLocked()}, toHost, "")
	return nil
}

// Disconnect marks a player offline. The roster entry survives for
// reconnection and scoring. After finalization presence is frozen.
func (s *Session) Disconnect(playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == domain.StatusFinished {
		return
	}
	p, ok := s.players[playerID]
	if !ok {
		return
	}
	if p.presence != domain.PresenceCheating {
		p.presence = domain.PresenceOffline
	}
	s.broadcastLocked(domain.Event{Type: domain.EventRosterUpdate, Payload: s.rosterLocked()}, toHost, "")
}

func (s *Session) finalizeLocked() {
	if s.status == domain.StatusFinished {
		return
	}
	s.status = domain.StatusFinished

	lb := s.leaderboardLocked()
	s.broadcastLocked(domain.Event{Type: domain.EventSessionOver, Payload: domain.SessionOver{
		PIN:         s.pin,
		QuizTitle:   s.quiz.Title,
		Leaderboard: lb,
	}}, toRoom, "")

	if s.onFinished == nil {
		return
	}
	players := make([]domain.PlayerResult, 0, len(s.joinOrder))
	for _, id := range s.joinOrder {
		p := s.players[id]
		players = append(players, domain.PlayerResult{
			PlayerID:    p.id,
			DisplayName: p.displayName,
			Score:       p.score,
			Answered:    len(p.answers),
		})
	}
	s.onFinished(domain.SessionResult{
		QuizID:         s.quiz.ID,
		QuizTitle:      s.quiz.Title,
		TotalQuestions: len(s.quiz.Questions),
		ScopeID:        s.scopeID,
		ScopeName:      s.scopeName,
		Players:        players,
		FinishedAt:     s.now(),
	})
}

// leaderboardLocked sorts by score descending; ties keep join order.
func (s *Session) leaderboardLocked() []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(s.joinOrder))
	for _, id := range s.joinOrder {
		p := s.players[id]
		entries = append(entries, domain.LeaderboardEntry{
			PlayerID:    p.id,
			DisplayName: p.displayName,
			Score:       p.score,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	return entries
}

func (s *Session) rosterLocked() domain.RosterUpdate {
	roster := make([]domain.RosterEntry, 0, len(s.joinOrder))
	for _, id := range s.joinOrder {
		p := s.players[id]
		roster = append(roster, domain.RosterEntry{
			PlayerID:    p.id,
			DisplayName: p.displayName,
			Score:       p.score,
			Presence:    p.presence,
			Finished:    p.finished,
		})
	}
	return domain.RosterUpdate{PIN: s.pin, Roster: roster}
}

// Subscribe attaches a connection to the session's broadcast stream. Hosts
// receive host-audience events, players receive player-audience events.
// The caller must invoke cancel to avoid leaks.
func (s *Session) Subscribe(host bool, playerID string) (<-chan domain.Event, func()) {
	sub := &subscriber{host: host, playerID: playerID, ch: make(chan domain.Event, 16)}

	s.mu.Lock()
	s.subscribers[sub] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[sub]; ok {
			delete(s.subscribers, sub)
			close(sub.ch)
		}
		s.mu.Unlock()
	}
	return sub.ch, cancel
}

// broadcastLocked fans an event out without blocking: a full subscriber
// buffer loses its oldest event, never the sender.
func (s *Session) broadcastLocked(event domain.Event, aud audience, playerID string) {
	for sub := range s.subscribers {
		switch aud {
		case toHost:
			if !sub.host {
				continue
			}
		case toPlayers:
			if sub.host {
				continue
			}
		case toOnePlayer:
			if sub.host || sub.playerID != playerID {
				continue
			}
		}
		select {
		case sub.ch <- event:
		default:
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- event
		}
	}
}

// HostStatus is the host resync snapshot: current state only, no history.
type HostStatus struct {
	PIN      string               `json:"pin"`
	Status   domain.Status        `json:"status"`
	Mode     domain.Mode          `json:"mode"`
	Title    string               `json:"title"`
	EndsAt   int64                `json:"endsAt,omitempty"`
	Roster   []domain.RosterEntry `json:"roster"`
	Question *HostQuestionView    `json:"question,omitempty"`
}

// PlayerStatus is the player resync snapshot.
type PlayerStatus struct {
	PIN       string               `json:"pin"`
	Status    domain.Status        `json:"status"`
	Mode      domain.Mode          `json:"mode"`
	Title     string               `json:"title"`
	EndsAt    int64                `json:"endsAt,omitempty"`
	Score     int                  `json:"score"`
	Finished  bool                 `json:"finished"`
	Question  *PlayerQuestionView  `json:"question,omitempty"`
	Questions []PlayerQuestionView `json:"questions,omitempty"`
}

// SnapshotForHost replays present state to a (possibly new) host
// connection. Skipped transitions are not recoverable.
func (s *Session) SnapshotForHost(token string) (HostStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.authorized(token) {
		return HostStatus{}, domain.ErrUnauthorized
	}
	status := HostStatus{
		PIN:    s.pin,
		Status: s.status,
		Mode:   s.mode,
		Title:  s.quiz.Title,
		Roster: s.rosterLocked().Roster,
	}
	if s.status == domain.StatusActive {
		status.EndsAt = s.endTime.Unix()
		if s.mode == domain.ModeSequential && s.cursor >= 0 && s.cursor < len(s.quiz.Questions) {
			view := hostView(s.quiz.Questions[s.cursor], s.cursor, len(s.quiz.Questions))
			status.Question = &view
		}
	}
	return status, nil
}

// SnapshotForPlayer replays present state to a reconnecting player.
func (s *Session) SnapshotForPlayer(playerID string) (PlayerStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[playerID]
	if !ok {
		return PlayerStatus{}, domain.ErrPlayerNotFound
	}
	status := PlayerStatus{
		PIN:      s.pin,
		Status:   s.status,
		Mode:     s.mode,
		Title:    s.quiz.Title,
		Score:    p.score,
		Finished: p.finished,
	}
	if s.status == domain.StatusActive {
		status.EndsAt = s.endTime.Unix()
		if s.mode == domain.ModeSequential {
			if s.cursor >= 0 && s.cursor < len(s.quiz.Questions) {
				view := playerView(s.quiz.Questions[s.cursor], s.cursor, len(s.quiz.Questions))
				status.Question = &view
			}
		} else {
			status.Questions = playerViews(s.quiz)
		}
	}
	return status, nil
}
