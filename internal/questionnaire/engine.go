package questionnaire

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/intelleges/iaos-compliance-platform-sub001/internal/db/models"
)

// Issue describes why one question's answer is not acceptable.
type Issue struct {
	QuestionID string `json:"question_id"`
	Title      string `json:"title"`
	Message    string `json:"message"`
}

// EvaluateSkipLogic returns the jump tag when q has skip logic and v matches its
// trigger answer. For checkbox questions the selection must contain the answer.
func EvaluateSkipLogic(q *models.Question, v Value) (string, bool) {
	if q.SkipLogicAnswer == nil || q.SkipLogicJump == nil {
		return "", false
	}
	want := strings.TrimSpace(*q.SkipLogicAnswer)
	jump := strings.TrimSpace(*q.SkipLogicJump)
	if want == "" || jump == "" || v.IsEmpty() {
		return "", false
	}

	matched := false
	switch v.Type {
	case models.ResponseCheckbox:
		for _, c := range v.Codes {
			if c == want {
				matched = true
				break
			}
		}
	case models.ResponseYesNo:
		if tok, ok := NormalizeYesNo(want); ok {
			matched = v.Text == tok
		}
	case models.ResponseFileUpload:
		// File answers never trigger a jump.
	default:
		matched = strings.TrimSpace(v.Text) == want
	}
	if !matched {
		return "", false
	}
	return jump, true
}

// IndexOf returns the position of the question with id, or -1.
func IndexOf(questions []models.Question, id string) int {
	for i := range questions {
		if questions[i].ID == id {
			return i
		}
	}
	return -1
}

// Next returns the index of the question to show after questions[index] was answered
// with v, or -1 when there are no more questions. A skip-logic jump is only followed
// when its tag names a later question; otherwise navigation is sequential.
func Next(questions []models.Question, index int, v Value) int {
	if index < 0 || index >= len(questions) {
		return -1
	}
	if tag, ok := EvaluateSkipLogic(&questions[index], v); ok {
		for j := index + 1; j < len(questions); j++ {
			if questions[j].Tag != nil && strings.TrimSpace(*questions[j].Tag) == tag {
				return j
			}
		}
	}
	if index+1 >= len(questions) {
		return -1
	}
	return index + 1
}

// Previous returns the index before index. Backward navigation ignores skip logic.
func Previous(index int) int {
	if index <= 0 {
		return 0
	}
	return index - 1
}

// Navigation directions accepted by Navigate.
const (
	DirectionNext     = "next"
	DirectionPrevious = "previous"
)

// ErrUnknownQuestion is returned when a question id is not part of the questionnaire.
var ErrUnknownQuestion = errors.New("question is not part of this questionnaire")

// Navigate resolves the question to show after leaving questionID in direction. done
// is true when moving forward past the last question.
func Navigate(questions []models.Question, questionID, direction string, v Value) (nextID string, done bool, err error) {
	i := IndexOf(questions, questionID)
	if i < 0 {
		return "", false, ErrUnknownQuestion
	}
	switch direction {
	case DirectionNext:
		j := Next(questions, i, v)
		if j < 0 {
			return "", true, nil
		}
		return questions[j].ID, false, nil
	case DirectionPrevious:
		return questions[Previous(i)].ID, false, nil
	default:
		return "", false, fmt.Errorf("unknown direction %q", direction)
	}
}

// ValidateResponse checks one answer. It returns nil when the answer is acceptable.
func ValidateResponse(q *models.Question, v Value) *Issue {
	issue := func(msg string) *Issue {
		return &Issue{QuestionID: q.ID, Title: q.Title, Message: msg}
	}
	if v.IsEmpty() {
		if q.Required {
			return issue("This question is required")
		}
		return nil
	}

	switch q.ResponseType {
	case models.ResponseText, models.ResponseTextarea:
	case models.ResponseYesNo:
		if v.Text != Yes && v.Text != No {
			return issue("Answer must be Yes or No")
		}
	case models.ResponseDropdown:
		if len(q.ResponseOptions) > 0 && !q.ResponseOptions.Has(v.Text) {
			return issue("Select one of the listed options")
		}
	case models.ResponseCheckbox:
		for _, c := range v.Codes {
			if len(q.ResponseOptions) > 0 && !q.ResponseOptions.Has(c) {
				return issue(fmt.Sprintf("%q is not one of the listed options", c))
			}
		}
	case models.ResponseDate:
		if !validDate(v.Text) {
			return issue("Enter a date as YYYY-MM-DD")
		}
	case models.ResponseFileUpload:
		if v.File.Filename == "" {
			return issue("Uploaded file is missing a name")
		}
	default:
		return issue(fmt.Sprintf("Unsupported response type %q", q.ResponseType))
	}
	return nil
}

// ValidateAll checks every question and returns all issues, in question order.
func ValidateAll(questions []models.Question, responses map[string]Value) []Issue {
	var issues []Issue
	for i := range questions {
		q := &questions[i]
		v, ok := responses[q.ID]
		if !ok {
			v = Value{Type: q.ResponseType}
		}
		if is := ValidateResponse(q, v); is != nil {
			issues = append(issues, *is)
		}
	}
	return issues
}

// CalculateProgress returns the rounded percentage of questions with a non-empty
// answer. It is 0 when there are no questions.
func CalculateProgress(questions []models.Question, responses map[string]Value) int {
	if len(questions) == 0 {
		return 0
	}
	answered := 0
	for i := range questions {
		if v, ok := responses[questions[i].ID]; ok && !v.IsEmpty() {
			answered++
		}
	}
	return int(math.Round(100 * float64(answered) / float64(len(questions))))
}

// QuestionSource loads the questions of a questionnaire in display order.
type QuestionSource interface {
	ListQuestions(ctx context.Context, questionnaireID string) ([]models.Question, error)
}

// Engine loads questionnaires for assignments.
type Engine struct {
	source QuestionSource
}

// NewEngine creates an Engine.
func NewEngine(source QuestionSource) *Engine {
	return &Engine{source: source}
}

// LoadQuestions returns the assignment's questions ordered by sort order then id.
func (e *Engine) LoadQuestions(ctx context.Context, a *models.Assignment) ([]models.Question, error) {
	qs, err := e.source.ListQuestions(ctx, a.QuestionnaireID)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}
	return qs, nil
}
