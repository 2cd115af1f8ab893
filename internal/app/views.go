package app

import "quiz-session-service/internal/domain"

// HostQuestionView is the host-facing shape of a question: it includes the
// answer key and the configured time limit.
type HostQuestionView struct {
	Index           int                 `json:"index"`
	Total           int                 `json:"total"`
	Text            string              `json:"text"`
	Type            domain.QuestionType `json:"type"`
	Options         []string            `json:"options,omitempty"`
	CorrectIndex    int                 `json:"correctIndex"`
	AcceptedAnswers []string            `json:"acceptedAnswers,omitempty"`
	TimeLimit       int                 `json:"timeLimit,omitempty"`
}

// PlayerQuestionView is the player-facing shape: all correctness data is
// stripped. True-false questions carry only the option count since the
// option text adds nothing; correctness is enforced server-side either way.
type PlayerQuestionView struct {
	Index       int                 `json:"index"`
	Total       int                 `json:"total"`
	Text        string              `json:"text"`
	Type        domain.QuestionType `json:"type"`
	Options     []string            `json:"options,omitempty"`
	OptionCount int                 `json:"optionCount,omitempty"`
	TimeLimit   int                 `json:"timeLimit,omitempty"`
}

func hostView(q domain.Question, index, total int) HostQuestionView {
	return HostQuestionView{
		Index:           index,
		Total:           total,
		Text:            q.Text,
		Type:            q.Type,
		Options:         q.Options,
		CorrectIndex:    q.CorrectIndex,
		AcceptedAnswers: q.AcceptedAnswers,
		TimeLimit:       q.TimeLimit,
	}
}

func playerView(q domain.Question, index, total int) PlayerQuestionView {
	view := PlayerQuestionView{
		Index:     index,
		Total:     total,
		Text:      q.Text,
		Type:      q.Type,
		TimeLimit: q.TimeLimit,
	}
	if q.Type == domain.TypeTrueFalse {
		view.OptionCount = len(q.Options)
		if view.OptionCount == 0 {
			view.OptionCount = 2
		}
	} else {
		view.Options = q.Options
	}
	return view
}

// playerViews renders the full player-safe question list for self-paced
// delivery.
func playerViews(quiz domain.Quiz) []PlayerQuestionView {
	total := len(quiz.Questions)
	views := make([]PlayerQuestionView, 0, total)
	for i, q := range quiz.Questions {
		views = append(views, playerView(q, i, total))
	}
	return views
}
