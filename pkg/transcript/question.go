package transcript

import (
	"errors"
	"strings"

	"agent-chat-engine/internal/model"
)

var ErrSubmissionBlocked = errors.New("every question needs a selection before submitting")

type selectionKey struct {
	Message  int
	Question int
}

// QuestionController owns per-question selection state for pending
// clarification requests. Selections are keyed by (message index,
// question index) so multiple historical questions never collide.
type QuestionController struct {
	selections map[selectionKey][]string
}

func NewQuestionController() *QuestionController {
	return &QuestionController{selections: make(map[selectionKey][]string)}
}

// SelectOption records a choice. Multi-select questions toggle the
// label in and out; single-select questions replace the selection.
func (qc *QuestionController) SelectOption(msg *model.Message, msgIdx, qIdx int, label string) {
	if msg == nil || msg.PendingQuestion == nil || qIdx < 0 || qIdx >= len(msg.PendingQuestion.Questions) {
		return
	}
	key := selectionKey{Message: msgIdx, Question: qIdx}
	question := msg.PendingQuestion.Questions[qIdx]

	if !question.MultiSelect {
		qc.selections[key] = []string{label}
		return
	}
	current := qc.selections[key]
	for i, l := range current {
		if l == label {
			qc.selections[key] = append(current[:i], current[i+1:]...)
			return
		}
	}
	qc.selections[key] = append(current, label)
}

// Selected returns the labels chosen for one question, in selection
// order.
func (qc *QuestionController) Selected(msgIdx, qIdx int) []string {
	return qc.selections[selectionKey{Message: msgIdx, Question: qIdx}]
}

// CanSubmit is true iff every question in the pending set has at least
// one selection. There is no partial submit.
func (qc *QuestionController) CanSubmit(msg *model.Message, msgIdx int) bool {
	if msg == nil || msg.PendingQuestion == nil {
		return false
	}
	for qIdx := range msg.PendingQuestion.Questions {
		if len(qc.selections[selectionKey{Message: msgIdx, Question: qIdx}]) == 0 {
			return false
		}
	}
	return true
}

// Submit renders the answers as "{header}: {labels}" lines, clears the
// pending question and all selection state, and returns the text to be
// sent as the next ordinary user turn. There is no distinct answer
// wire message.
func (qc *QuestionController) Submit(msg *model.Message, msgIdx int) (string, error) {
	if !qc.CanSubmit(msg, msgIdx) {
		return "", ErrSubmissionBlocked
	}

	lines := make([]string, 0, len(msg.PendingQuestion.Questions))
	for qIdx, question := range msg.PendingQuestion.Questions {
		selected := qc.selections[selectionKey{Message: msgIdx, Question: qIdx}]
		lines = append(lines, question.Header+": "+strings.Join(selected, ", "))
	}

	msg.PendingQuestion = nil
	qc.selections = make(map[selectionKey][]string)

	return strings.Join(lines, "\n"), nil
}
