package app

import (
	"strings"

	"quiz-session-service/internal/domain"
)

// questionPoints is the flat value of every scorable question. Scoring is
// deliberately not time-weighted: the last submitted answer decides the
// full contribution.
const questionPoints = 100

// normalizeAnswer folds case, turns sentence punctuation into spaces and
// collapses whitespace so that "Hello!" and " hello " compare equal
// without letting unrelated strings match.
func normalizeAnswer(raw string) string {
	lowered := strings.ToLower(raw)
	mapped := strings.Map(func(r rune) rune {
		switch r {
		case '.', ',', '!', '?', ';', ':':
			return ' '
		}
		return r
	}, lowered)
	return strings.Join(strings.Fields(mapped), " ")
}

// isCorrect applies the type-specific correctness rule. Info slides are
// never correct; they are not scorable.
func isCorrect(q domain.Question, sub domain.AnswerSubmission) bool {
	switch {
	case q.Type.IsIndexType():
		return sub.OptionIndex == q.CorrectIndex
	case q.Type.IsTextType():
		return textMatches(q.AcceptedAnswers, sub.Text)
	}
	return false
}

// textMatches accepts a submission that equals any single accepted answer
// or, for multi-slot questions, the concatenation of all accepted answers
// taken as one sequence. Comparison is on normalized forms.
func textMatches(accepted []string, submitted string) bool {
	if len(accepted) == 0 {
		return false
	}
	got := normalizeAnswer(submitted)
	if got == "" {
		return false
	}
	for _, want := range accepted {
		if got == normalizeAnswer(want) {
			return true
		}
	}
	if len(accepted) > 1 {
		if got == normalizeAnswer(strings.Join(accepted, " ")) {
			return true
		}
	}
	return false
}

// scoreDelta compares the newly computed correctness against the memoized
// correctness of the previous submission for the same question. Only a
// transition moves the score, so revisions never double-count.
func scoreDelta(wasCorrect, hadPrevious, nowCorrect bool) int {
	prev := hadPrevious && wasCorrect
	switch {
	case !prev && nowCorrect:
		return questionPoints
	case prev && !nowCorrect:
		return -questionPoints
	}
	return 0
}
