package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-session-service/internal/domain"
)

const testToken = "host-token"

func sequentialQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Arithmetic",
		Questions: []domain.Question{
			{Text: "2+2?", Type: domain.TypeMultipleChoice, Options: []string{"3", "4"}, CorrectIndex: 1},
			{Text: "Capital of France?", Type: domain.TypeTextInput, AcceptedAnswers: []string{"Paris"}},
		},
	}
}

func newSequentialSession(t *testing.T) *Session {
	t.Helper()
	return newSession("123456", sequentialQuiz(), domain.ModeSequential, "", "", testToken, time.Now)
}

func newSelfPacedSession(t *testing.T) *Session {
	t.Helper()
	return newSession("654321", sequentialQuiz(), domain.ModeSelfPaced, "group-1", "Group One", testToken, time.Now)
}

func drain(ch <-chan domain.Event) []domain.Event {
	var events []domain.Event
	for {
		select {
		case ev := <-ch:
			events = append(events, ev)
		default:
			return events
		}
	}
}

func eventTypes(events []domain.Event) []string {
	types := make([]string, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	return types
}

func TestJoinOnlyInLobbyForEphemeral(t *testing.T) {
	s := newSequentialSession(t)
	require.NoError(t, s.JoinEphemeral("c1", "Alice"))
	require.NoError(t, s.Start(testToken, 0, time.Minute))

	err := s.JoinEphemeral("c2", "Bob")
	assert.ErrorIs(t, err, domain.ErrSessionNotJoinable)
}

func TestStartRequiresHostToken(t *testing.T) {
	s := newSequentialSession(t)
	assert.ErrorIs(t, s.Start("bogus", 0, time.Minute), domain.ErrUnauthorized)
	assert.ErrorIs(t, s.Advance("bogus"), domain.ErrUnauthorized)
	assert.ErrorIs(t, s.EndEarly("bogus"), domain.ErrUnauthorized)
	assert.Equal(t, domain.StatusLobby, s.Status())
}

func TestStartDispatchesPerAudience(t *testing.T) {
	s := newSequentialSession(t)
	require.NoError(t, s.JoinEphemeral("c1", "Alice"))

	hostCh, cancelHost := s.Subscribe(true, "")
	defer cancelHost()
	playerCh, cancelPlayer := s.Subscribe(false, "c1")
	defer cancelPlayer()

	require.NoError(t, s.Start(testToken, 30*time.Second, time.Minute))

	hostEvents := drain(hostCh)
	require.Contains(t, eventTypes(hostEvents), domain.EventSessionStarted)
	require.Contains(t, eventTypes(hostEvents), domain.EventQuestionHost)
	for _, ev := range hostEvents {
		if ev.Type == domain.EventQuestionHost {
			view := ev.Payload.(HostQuestionView)
			assert.Equal(t, 1, view.CorrectIndex)
			assert.Equal(t, 0, view.Index)
		}
	}

	playerEvents := drain(playerCh)
	types := eventTypes(playerEvents)
	require.Contains(t, types, domain.EventSessionStarted)
	require.Contains(t, types, domain.EventQuestionPlayer)
	require.NotContains(t, types, domain.EventQuestionHost)
	for _, ev := range playerEvents {
		if ev.Type == domain.EventQuestionPlayer {
			view := ev.Payload.(PlayerQuestionView)
			assert.Equal(t, []string{"3", "4"}, view.Options)
		}
	}
}

func TestSelfPacedStartSendsQuestionList(t *testing.T) {
	s := newSelfPacedSession(t)
	require.NoError(t, s.JoinPersistent("student-1", "Sam"))

	playerCh, cancel := s.Subscribe(false, "student-1")
	defer cancel()

	require.NoError(t, s.Start(testToken, 0, time.Minute))

	var list []PlayerQuestionView
	for _, ev := range drain(playerCh) {
		if ev.Type == domain.EventQuestionList {
			list = ev.Payload.([]PlayerQuestionView)
		}
	}
	require.Len(t, list, 2)
	assert.Equal(t, domain.TypeMultipleChoice, list[0].Type)
}

func TestAdvancePastLastQuestionFinalizes(t *testing.T) {
	s := newSequentialSession(t)
	require.NoError(t, s.JoinEphemeral("c1", "Alice"))
	require.NoError(t, s.Start(testToken, 0, time.Minute))

	require.NoError(t, s.Advance(testToken)) // to question 1
	require.NoError(t, s.Advance(testToken)) // past the end
	assert.Equal(t, domain.StatusFinished, s.Status())

	assert.ErrorIs(t, s.Advance(testToken), domain.ErrSessionNotActive)
}

func TestRevisionScoring(t *testing.T) {
	s := newSelfPacedSession(t)
	require.NoError(t, s.JoinPersistent("student-1", "Sam"))
	require.NoError(t, s.Start(testToken, 0, time.Minute))

	submit := func(text string) int {
		_, err := s.Submit("student-1", domain.AnswerSubmission{QuestionIndex: 1, Text: text})
		require.NoError(t, err)
		status, err := s.SnapshotForPlayer("student-1")
		require.NoError(t, err)
		return status.Score
	}

	assert.Equal(t, 100, submit("Paris"))  // correct
	assert.Equal(t, 0, submit("London"))   // revised to incorrect
	assert.Equal(t, 100, submit("paris!")) // revised back, normalization applies
	assert.Equal(t, 100, submit("paris!")) // repeat changes nothing
}

func TestSubmitAckCarriesNoScoreFeedback(t *testing.T) {
	s := newSelfPacedSession(t)
	require.NoError(t, s.JoinPersistent("student-1", "Sam"))
	require.NoError(t, s.Start(testToken, 0, time.Minute))

	wrong, err := s.Submit("student-1", domain.AnswerSubmission{QuestionIndex: 1, Text: "Lyon"})
	require.NoError(t, err)
	right, err := s.Submit("student-1", domain.AnswerSubmission{QuestionIndex: 1, Text: "Paris"})
	require.NoError(t, err)

	// A wrong and a right submission must be indistinguishable from the
	// ack alone; otherwise unlimited revision turns it into an oracle.
	assert.Equal(t, wrong, right)
	assert.Equal(t, AnswerReceived{QuestionIndex: 1}, right)
}

func TestSequentialSubmitUsesServerCursor(t *testing.T) {
	s := newSequentialSession(t)
	require.NoError(t, s.JoinEphemeral("c1", "Alice"))
	require.NoError(t, s.Start(testToken, 0, time.Minute))

	// Client-provided index is ignored in sequential mode.
	ack, err := s.Submit("c1", domain.AnswerSubmission{QuestionIndex: 99, OptionIndex: 1})
	require.NoError(t, err)
	assert.Equal(t, 0, ack.QuestionIndex)

	status, err := s.SnapshotForPlayer("c1")
	require.NoError(t, err)
	assert.Equal(t, 100, status.Score)
}

func TestAnswerCountBroadcastToHost(t *testing.T) {
	s := newSequentialSession(t)
	require.NoError(t, s.JoinEphemeral("c1", "Alice"))
	require.NoError(t, s.JoinEphemeral("c2", "Bob"))
	require.NoError(t, s.Start(testToken, 0, time.Minute))

	hostCh, cancel := s.Subscribe(true, "")
	defer cancel()

	_, err := s.Submit("c1", domain.AnswerSubmission{OptionIndex: 1})
	require.NoError(t, err)

	var count *domain.AnswerCount
	for _, ev := range drain(hostCh) {
		if ev.Type == domain.EventAnswerCount {
			c := ev.Payload.(domain.AnswerCount)
			count = &c
		}
	}
	require.NotNil(t, count)
	assert.Equal(t, 1, count.Answered)
	assert.Equal(t, 2, count.Players)
}

func TestInfoSlideNeverScores(t *testing.T) {
	quiz := domain.Quiz{
		ID:    "quiz-info",
		Title: "Slides",
		Questions: []domain.Question{
			{Text: "Welcome", Type: domain.TypeInfoSlide},
		},
	}
	s := newSession("111111", quiz, domain.ModeSelfPaced, "", "", testToken, time.Now)
	require.NoError(t, s.JoinPersistent("student-1", "Sam"))
	require.NoError(t, s.Start(testToken, 0, time.Minute))

	_, err := s.Submit("student-1", domain.AnswerSubmission{QuestionIndex: 0, Text: "hello"})
	require.NoError(t, err)

	status, err := s.SnapshotForPlayer("student-1")
	require.NoError(t, err)
	assert.Equal(t, 0, status.Score)
}

func TestFinishAttemptReturnsReviewAndBlocksResubmission(t *testing.T) {
	s := newSelfPacedSession(t)
	require.NoError(t, s.JoinPersistent("student-1", "Sam"))
	require.NoError(t, s.Start(testToken, 0, time.Minute))

	_, err := s.Submit("student-1", domain.AnswerSubmission{QuestionIndex: 0, OptionIndex: 1})
	require.NoError(t, err)
	_, err = s.Submit("student-1", domain.AnswerSubmission{QuestionIndex: 1, Text: "Lyon"})
	require.NoError(t, err)

	review, err := s.FinishAttempt("student-1")
	require.NoError(t, err)
	require.Len(t, review, 2)
	assert.True(t, review[0].Correct)
	assert.False(t, review[1].Correct)

	_, err = s.Submit("student-1", domain.AnswerSubmission{QuestionIndex: 1, Text: "Paris"})
	assert.ErrorIs(t, err, domain.ErrAttemptFinished)
}

func TestPersistentRejoinKeepsSingleRosterEntry(t *testing.T) {
	s := newSelfPacedSession(t)
	require.NoError(t, s.JoinPersistent("student-1", "Sam"))
	require.NoError(t, s.Start(testToken, 0, time.Minute))

	s.Disconnect("student-1")
	require.NoError(t, s.JoinPersistent("student-1", "Sam"))

	status, err := s.SnapshotForHost(testToken)
	require.NoError(t, err)
	require.Len(t, status.Roster, 1)
	assert.Equal(t, domain.PresenceOnline, status.Roster[0].Presence)
}

func TestCheatingFlagIsSticky(t *testing.T) {
	s := newSelfPacedSession(t)
	require.NoError(t, s.JoinPersistent("student-1", "Sam"))

	require.NoError(t, s.ReportVisibility("student-1", false))
	require.NoError(t, s.ReportVisibility("student-1", true))

	status, err := s.SnapshotForHost(testToken)
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceCheating, status.Roster[0].Presence)

	// Disconnect and rejoin do not clear the flag either.
	s.Disconnect("student-1")
	require.NoError(t, s.JoinPersistent("student-1", "Sam"))
	status, err = s.SnapshotForHost(testToken)
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceCheating, status.Roster[0].Presence)
}

func TestFinishedSessionFreezesPresence(t *testing.T) {
	s := newSelfPacedSession(t)
	require.NoError(t, s.JoinPersistent("student-1", "Sam"))
	require.NoError(t, s.Start(testToken, 0, time.Minute))
	require.NoError(t, s.EndEarly(testToken))

	hostCh, cancel := s.Subscribe(true, "")
	defer cancel()

	// Late visibility reports and disconnects must not touch a finished
	// roster or wake the host with fresh updates.
	require.NoError(t, s.ReportVisibility("student-1", false))
	s.Disconnect("student-1")

	status, err := s.SnapshotForHost(testToken)
	require.NoError(t, err)
	require.Len(t, status.Roster, 1)
	assert.Equal(t, domain.PresenceOnline, status.Roster[0].Presence)
	assert.Empty(t, drain(hostCh))
}

func TestLeaderboardTiesKeepJoinOrder(t *testing.T) {
	s := newSequentialSession(t)
	require.NoError(t, s.JoinEphemeral("c1", "Alice"))
	require.NoError(t, s.JoinEphemeral("c2", "Bob"))
	require.NoError(t, s.JoinEphemeral("c3", "Cara"))
	require.NoError(t, s.Start(testToken, 0, time.Minute))

	_, err := s.Submit("c3", domain.AnswerSubmission{OptionIndex: 1})
	require.NoError(t, err)

	roomCh, cancel := s.Subscribe(false, "c1")
	defer cancel()
	require.NoError(t, s.EndEarly(testToken))

	var over *domain.SessionOver
	for _, ev := range drain(roomCh) {
		if ev.Type == domain.EventSessionOver {
			o := ev.Payload.(domain.SessionOver)
			over = &o
		}
	}
	require.NotNil(t, over)
	require.Len(t, over.Leaderboard, 3)
	assert.Equal(t, "c3", over.Leaderboard[0].PlayerID)
	// Tied at zero: join order preserved.
	assert.Equal(t, "c1", over.Leaderboard[1].PlayerID)
	assert.Equal(t, "c2", over.Leaderboard[2].PlayerID)
}

func TestFinalizeIsIdempotent(t *testing.T) {
	s := newSelfPacedSession(t)
	finishes := 0
	s.onFinished = func(domain.SessionResult) { finishes++ }
	require.NoError(t, s.JoinPersistent("student-1", "Sam"))
	require.NoError(t, s.Start(testToken, 0, time.Minute))

	roomCh, cancel := s.Subscribe(false, "student-1")
	defer cancel()

	require.NoError(t, s.EndEarly(testToken))
	require.NoError(t, s.EndEarly(testToken))

	overs := 0
	for _, ev := range drain(roomCh) {
		if ev.Type == domain.EventSessionOver {
			overs++
		}
	}
	assert.Equal(t, 1, overs)
	assert.Equal(t, 1, finishes)
}

func TestResyncSnapshotIsCurrentStateOnly(t *testing.T) {
	s := newSequentialSession(t)
	require.NoError(t, s.JoinEphemeral("c1", "Alice"))
	require.NoError(t, s.Start(testToken, 0, time.Minute))
	require.NoError(t, s.Advance(testToken))

	status, err := s.SnapshotForPlayer("c1")
	require.NoError(t, err)
	require.NotNil(t, status.Question)
	// Only the current question is replayed, never the skipped one.
	assert.Equal(t, 1, status.Question.Index)
	assert.Equal(t, domain.StatusActive, status.Status)
}

func TestSnapshotForHostRequiresToken(t *testing.T) {
	s := newSequentialSession(t)
	_, err := s.SnapshotForHost("bogus")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestTrueFalseViewHidesOptionText(t *testing.T) {
	q := domain.Question{Text: "Go has generics.", Type: domain.TypeTrueFalse, Options: []string{"True", "False"}, CorrectIndex: 0}
	view := playerView(q, 0, 1)
	assert.Empty(t, view.Options)
	assert.Equal(t, 2, view.OptionCount)

	host := hostView(q, 0, 1)
	assert.Equal(t, []string{"True", "False"}, host.Options)
	assert.Equal(t, 0, host.CorrectIndex)
}
