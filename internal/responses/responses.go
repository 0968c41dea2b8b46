// Package responses persists questionnaire answers: draft auto-save with
// last-write-wins per question, and the one-way submission with e-signature.
package responses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/intelleges/iaos-compliance-platform-sub001/internal/audit"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/crypto"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/db/models"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/events"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/questionnaire"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/session"
	"github.com/jmoiron/sqlx"
)

var (
	ErrNotFound = errors.New("assignment not found")
	// ErrConflict is returned when submitting an assignment that was already submitted.
	ErrConflict = errors.New("assignment has already been submitted")
	// ErrNotAwaitingReview is returned when a review outcome is set on an assignment
	// that is not in the submitted state.
	ErrNotAwaitingReview = errors.New("assignment is not awaiting review")
	// ErrCipherUnavailable is returned when a sealed answer is read without an
	// encryption key configured.
	ErrCipherUnavailable = errors.New("sealed answer found but no encryption key is configured")
)

// ValidationError carries every unmet condition found in one call.
type ValidationError struct {
	Issues []questionnaire.Issue
}

func (e *ValidationError) Error() string {
	ids := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		ids = append(ids, is.QuestionID)
	}
	return fmt.Sprintf("%d question(s) need attention: %s", len(e.Issues), strings.Join(ids, ", "))
}

// SignatureIssueID is the pseudo question id used for signature issues.
const SignatureIssueID = "signature"

// Answer is one incoming draft value.
type Answer struct {
	QuestionID    string          `json:"question_id" binding:"required"`
	Value         json.RawMessage `json:"value"`
	Comment       *string         `json:"comment,omitempty"`
	ClientSavedAt *time.Time      `json:"client_saved_at,omitempty"`
}

// SaveResult reports what a draft save did. Stale counts answers that lost to a
// newer stored value. Ignored is true when the assignment was already submitted.
type SaveResult struct {
	Saved    int  `json:"saved"`
	Stale    int  `json:"stale"`
	Ignored  bool `json:"ignored"`
	Progress int  `json:"progress"`
}

// Signature is the e-signature captured at submission.
type Signature struct {
	Name  string `json:"signer_name"`
	Email string `json:"signer_email"`
	// Image is an optional data URL of a drawn signature.
	Image string `json:"signature_image,omitempty"`
	IP    string `json:"-"`
}

// Snapshot is the current state of an assignment's answers.
type Snapshot struct {
	Assignment    *models.Assignment
	Questionnaire *models.Questionnaire
	Questions     []models.Question
	Values        map[string]questionnaire.Value
	Comments      map[string]string
	Progress      int
}

// AssignmentStore is the assignment persistence used by the service.
type AssignmentStore interface {
	GetByID(ctx context.Context, id string) (*models.Assignment, error)
	LockForShareTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Assignment, error)
	LockForUpdateTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Assignment, error)
	MarkStarted(ctx context.Context, id string, at time.Time) error
	MarkSubmittedTx(ctx context.Context, tx *sqlx.Tx, a *models.Assignment) (bool, error)
	SetReviewOutcome(ctx context.Context, id string, status models.AssignmentStatus, at time.Time) (bool, error)
}

// ResponseStore is the answer persistence used by the service.
type ResponseStore interface {
	ListByAssignment(ctx context.Context, assignmentID string) ([]models.QuestionResponse, error)
	ListByAssignmentTx(ctx context.Context, tx *sqlx.Tx, assignmentID string) ([]models.QuestionResponse, error)
	UpsertTx(ctx context.Context, tx *sqlx.Tx, resp *models.QuestionResponse) (bool, error)
}

// QuestionnaireStore reads questionnaires and their questions.
type QuestionnaireStore interface {
	GetQuestionnaire(ctx context.Context, id string) (*models.Questionnaire, error)
	ListQuestions(ctx context.Context, questionnaireID string) ([]models.Question, error)
}

// AccessCodeStore consumes access codes inside the submission transaction.
type AccessCodeStore interface {
	MarkUsedTx(ctx context.Context, tx *sqlx.Tx, code string, at time.Time) (bool, error)
}

// Deps collects the collaborators of a Service. Cipher may be nil, in which case CUI
// answers are stored unsealed.
type Deps struct {
	Assignments    AssignmentStore
	Responses      ResponseStore
	Questionnaires QuestionnaireStore
	AccessCodes    AccessCodeStore
	Cipher         *crypto.AnswerCipher
	Recorder       *audit.Recorder
	Publisher      events.Publisher
}

// Service implements draft saves, submission and review transitions.
type Service struct {
	db             *sqlx.DB
	assignments    AssignmentStore
	responses      ResponseStore
	questionnaires QuestionnaireStore
	accessCodes    AccessCodeStore
	engine         *questionnaire.Engine
	cipher         *crypto.AnswerCipher
	recorder       *audit.Recorder
	publisher      events.Publisher
	now            func() time.Time
}

// NewService creates a Service. Transactions are opened on db.
func NewService(db *sqlx.DB, deps Deps) *Service {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NewLogPublisher(nil)
	}
	return &Service{
		db:             db,
		assignments:    deps.Assignments,
		responses:      deps.Responses,
		questionnaires: deps.Questionnaires,
		accessCodes:    deps.AccessCodes,
		engine:         questionnaire.NewEngine(deps.Questionnaires),
		cipher:         deps.Cipher,
		recorder:       deps.Recorder,
		publisher:      publisher,
		now:            time.Now,
	}
}

// Load returns the assignment with its questions, decoded answers and progress.
func (s *Service) Load(ctx context.Context, assignmentID string) (*Snapshot, error) {
	a, err := s.assignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	qn, err := s.questionnaires.GetQuestionnaire(ctx, a.QuestionnaireID)
	if err != nil {
		return nil, fmt.Errorf("failed to load questionnaire: %w", err)
	}
	if qn == nil {
		return nil, fmt.Errorf("questionnaire %s for assignment %s is missing", a.QuestionnaireID, a.ID)
	}
	questions, err := s.engine.LoadQuestions(ctx, a)
	if err != nil {
		return nil, err
	}
	rows, err := s.responses.ListByAssignment(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load responses: %w", err)
	}
	values, err := s.decodeAll(a.ID, questions, rows)
	if err != nil {
		return nil, err
	}

	comments := make(map[string]string)
	for _, r := range rows {
		if r.Comment != nil && *r.Comment != "" {
			comments[r.QuestionID] = *r.Comment
		}
	}
	return &Snapshot{
		Assignment:    a,
		Questionnaire: qn,
		Questions:     questions,
		Values:        values,
		Comments:      comments,
		Progress:      questionnaire.CalculateProgress(questions, values),
	}, nil
}

// Progress recomputes the completion percentage from stored answers.
func (s *Service) Progress(ctx context.Context, assignmentID string) (int, error) {
	snap, err := s.Load(ctx, assignmentID)
	if err != nil {
		return 0, err
	}
	return snap.Progress, nil
}

func (s *Service) assignment(ctx context.Context, id string) (*models.Assignment, error) {
	a, err := s.assignments.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load assignment: %w", err)
	}
	if a == nil {
		return nil, ErrNotFound
	}
	return a, nil
}

// binding ties a sealed answer to its row.
func binding(assignmentID, questionID string) string {
	return assignmentID + "/" + questionID
}

// encode produces the stored form of v: a JSON value, or a sealed string for CUI
// questions when a cipher is configured. Empty values are stored as NULL.
func (s *Service) encode(assignmentID string, q *models.Question, v questionnaire.Value) (models.RawJSON, *string, error) {
	if v.IsEmpty() {
		return nil, nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode answer: %w", err)
	}
	if !q.IsCUI || s.cipher == nil {
		return models.RawJSON(raw), nil, nil
	}
	sealed, err := s.cipher.Seal(raw, binding(assignmentID, q.ID))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to seal answer: %w", err)
	}
	return nil, &sealed, nil
}

func (s *Service) decode(assignmentID string, q *models.Question, r *models.QuestionResponse) (questionnaire.Value, error) {
	raw := json.RawMessage(r.Value)
	if r.EncryptedValue != nil {
		if s.cipher == nil {
			return questionnaire.Value{}, ErrCipherUnavailable
		}
		plain, err := s.cipher.Open(*r.EncryptedValue, binding(assignmentID, q.ID))
		if err != nil {
			return questionnaire.Value{}, fmt.Errorf("failed to open answer for question %s: %w", q.ID, err)
		}
		raw = plain
	}
	v, err := questionnaire.ParseValue(q, raw)
	if err != nil {
		return questionnaire.Value{}, fmt.Errorf("stored answer for question %s: %w", q.ID, err)
	}
	return v, nil
}

// decodeAll maps question id to value. Rows for questions no longer in the
// questionnaire are skipped.
func (s *Service) decodeAll(assignmentID string, questions []models.Question, rows []models.QuestionResponse) (map[string]questionnaire.Value, error) {
	byID := indexQuestions(questions)
	values := make(map[string]questionnaire.Value, len(rows))
	for i := range rows {
		q, ok := byID[rows[i].QuestionID]
		if !ok {
			continue
		}
		v, err := s.decode(assignmentID, q, &rows[i])
		if err != nil {
			return nil, err
		}
		values[q.ID] = v
	}
	return values, nil
}

func indexQuestions(questions []models.Question) map[string]*models.Question {
	byID := make(map[string]*models.Question, len(questions))
	for i := range questions {
		byID[questions[i].ID] = &questions[i]
	}
	return byID
}

func supplierActor(sess *session.Session) audit.Actor {
	return audit.Actor{ID: sess.PartnerID, Type: models.ActorSupplier}
}
