package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"quiz-session-service/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// GroupDirectory resolves scopes and enrollment for persistent identities.
type GroupDirectory interface {
	Group(ctx context.Context, groupID string) (domain.Group, error)
	IsMember(ctx context.Context, groupID, memberID string) (bool, error)
}

// ResultStore persists finished scoped sessions. Handoff is best effort.
type ResultStore interface {
	SaveResult(ctx context.Context, result domain.SessionResult) error
}

// ReportPublisher delivers finished results to external reporting.
type ReportPublisher interface {
	PublishResult(ctx context.Context, result domain.SessionResult) error
}

const handoffTimeout = 10 * time.Second

// Options collects the collaborators of the orchestrator. Results and
// Reports may be nil; the corresponding handoff leg is skipped.
type Options struct {
	Registry        *Registry
	Quizzes         QuizRepository
	Groups          GroupDirectory
	Results         ResultStore
	Reports         ReportPublisher
	DefaultDuration time.Duration
	Logger          *slog.Logger
}

// SessionService is the entry point for every session operation. All
// mutations funnel through the registry and per-session locks; the
// service itself holds no mutable state.
type SessionService struct {
	registry        *Registry
	quizzes         QuizRepository
	groups          GroupDirectory
	results         ResultStore
	reports         ReportPublisher
	defaultDuration time.Duration
	logger          *slog.Logger
	now             func() time.Time
}

func NewSessionService(opts Options) *SessionService {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DefaultDuration <= 0 {
		opts.DefaultDuration = 10 * time.Minute
	}
	return &SessionService{
		registry:        opts.Registry,
		quizzes:         opts.Quizzes,
		groups:          opts.Groups,
		results:         opts.Results,
		reports:         opts.Reports,
		defaultDuration: opts.DefaultDuration,
		logger:          opts.Logger,
		now:             time.Now,
	}
}

// Created acknowledges session creation. The host token is the capability
// for every privileged action; it is issued exactly once, here.
type Created struct {
	PIN       string `json:"pin"`
	HostToken string `json:"hostToken"`
}

// CreateSession allocates a PIN and a session in LOBBY.
func (s *SessionService) CreateSession(ctx context.Context, quizID string, mode domain.Mode, scopeID string) (Created, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return Created{}, err
	}
	if mode == "" {
		mode = domain.ModeSequential
	}
	if mode != domain.ModeSequential && mode != domain.ModeSelfPaced {
		return Created{}, domain.ErrWrongMode
	}

	scopeName := ""
	if scopeID != "" {
		group, err := s.groups.Group(ctx, scopeID)
		if err != nil {
			return Created{}, err
		}
		scopeName = group.Name
	}

	token := uuid.NewString()
	session, err := s.registry.add(func(pin string) *Session {
		sess := newSession(pin, quiz, mode, scopeID, scopeName, token, s.now)
		sess.onFinished = func(result domain.SessionResult) {
			s.registry.ScheduleEviction(pin)
			if result.ScopeID != "" {
				go s.handoff(result)
			}
		}
		return sess
	})
	if err != nil {
		return Created{}, err
	}
	return Created{PIN: session.PIN(), HostToken: token}, nil
}

// handoff runs after the leaderboard broadcast. Failures are logged and
// swallowed; they never re-trigger finalization or touch the session.
func (s *SessionService) handoff(result domain.SessionResult) {
	ctx, cancel := context.WithTimeout(context.Background(), handoffTimeout)
	defer cancel()

	if s.results != nil {
		if err := s.results.SaveResult(ctx, result); err != nil {
			s.logger.Error("result persistence failed", "quiz", result.QuizID, "scope", result.ScopeID, "err", err)
		}
	}
	if s.reports != nil {
		if err := s.reports.PublishResult(ctx, result); err != nil {
			s.logger.Error("result report delivery failed", "quiz", result.QuizID, "scope", result.ScopeID, "err", err)
		}
	}
}

// JoinEphemeral admits a connection-scoped identity into a sequential
// session lobby.
func (s *SessionService) JoinEphemeral(_ context.Context, pin, connID, displayName string) (*Session, error) {
	session, ok := s.registry.Get(pin)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if session.Mode() != domain.ModeSequential {
		return nil, domain.ErrWrongMode
	}
	if err := session.JoinEphemeral(connID, displayName); err != nil {
		return nil, err
	}
	return session, nil
}

// JoinPersistent admits a stable external identity into a self-paced
// session after checking scope enrollment. The scope check is a hard
// access-control boundary: on mismatch the player is never added.
func (s *SessionService) JoinPersistent(ctx context.Context, pin, externalID, displayName string) (*Session, error) {
	session, ok := s.registry.Get(pin)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if session.Mode() != domain.ModeSelfPaced {
		return nil, domain.ErrWrongMode
	}
	if session.scopeID != "" {
		member, err := s.groups.IsMember(ctx, session.scopeID, externalID)
		if err != nil {
			return nil, err
		}
		if !member {
			return nil, domain.ErrScopeMismatch
		}
	}
	if err := session.JoinPersistent(externalID, displayName); err != nil {
		return nil, err
	}
	return session, nil
}

// Start transitions LOBBY -> ACTIVE. Host only.
func (s *SessionService) Start(_ context.Context, pin, token string, duration time.Duration) error {
	session, ok := s.registry.Get(pin)
	if !ok {
		return domain.ErrSessionNotFound
	}
	return session.Start(token, duration, s.defaultDuration)
}

// Advance moves the sequential cursor. Host only.
func (s *SessionService) Advance(_ context.Context, pin, token string) error {
	session, ok := s.registry.Get(pin)
	if !ok {
		return domain.ErrSessionNotFound
	}
	return session.Advance(token)
}

// EndEarly forces finalization. Host only.
func (s *SessionService) EndEarly(_ context.Context, pin, token string) error {
	session, ok := s.registry.Get(pin)
	if !ok {
		return domain.ErrSessionNotFound
	}
	return session.EndEarly(token)
}

// SubmitAnswer scores a submission through the revision-aware delta rule.
func (s *SessionService) SubmitAnswer(_ context.Context, pin, playerID string, sub domain.AnswerSubmission) (AnswerReceived, error) {
	session, ok := s.registry.Get(pin)
	if !ok {
		return AnswerReceived{}, domain.ErrSessionNotFound
	}
	return session.Submit(playerID, sub)
}

// FinishAttempt closes a self-paced player's attempt and returns the
// corrected answers.
func (s *SessionService) FinishAttempt(_ context.Context, pin, playerID string) ([]domain.AnswerReview, error) {
	session, ok := s.registry.Get(pin)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session.FinishAttempt(playerID)
}

// ReportVisibility applies a client visibility report to presence.
func (s *SessionService) ReportVisibility(_ context.Context, pin, playerID string, visible bool) error {
	session, ok := s.registry.Get(pin)
	if !ok {
		return domain.ErrSessionNotFound
	}
	return session.ReportVisibility(playerID, visible)
}

// Disconnect marks a player offline without removing their roster entry.
func (s *SessionService) Disconnect(pin, playerID string) {
	session, ok := s.registry.Get(pin)
	if !ok {
		return
	}
	session.Disconnect(playerID)
}

// Subscribe attaches a connection to a session's broadcast stream.
func (s *SessionService) Subscribe(_ context.Context, pin string, host bool, playerID string) (<-chan domain.Event, func(), error) {
	session, ok := s.registry.Get(pin)
	if !ok {
		return nil, nil, domain.ErrSessionNotFound
	}
	ch, cancel := session.Subscribe(host, playerID)
	return ch, cancel, nil
}

// HostStatus replays the current session state to a host connection.
func (s *SessionService) HostStatus(_ context.Context, pin, token string) (HostStatus, error) {
	session, ok := s.registry.Get(pin)
	if !ok {
		return HostStatus{}, domain.ErrSessionNotFound
	}
	return session.SnapshotForHost(token)
}

// PlayerStatus replays the current session state to a player connection.
func (s *SessionService) PlayerStatus(_ context.Context, pin, playerID string) (PlayerStatus, error) {
	session, ok := s.registry.Get(pin)
	if !ok {
		return PlayerStatus{}, domain.ErrSessionNotFound
	}
	return session.SnapshotForPlayer(playerID)
}
