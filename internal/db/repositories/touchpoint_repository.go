// touchpoint_repository.go implements TouchpointRepository: read access to touchpoints,
// questionnaires and their questions.
package repositories

import (
	"context"
	"database/sql"

	"github.com/intelleges/iaos-compliance-platform-sub001/internal/db/models"
	"github.com/jmoiron/sqlx"
)

// TouchpointRepository handles touchpoint, questionnaire and question reads
type TouchpointRepository struct {
	db *sqlx.DB
}

// NewTouchpointRepository creates a new TouchpointRepository
func NewTouchpointRepository(db *sqlx.DB) *TouchpointRepository {
	return &TouchpointRepository{db: db}
}

// GetTouchpoint returns the touchpoint, or nil.
func (r *TouchpointRepository) GetTouchpoint(ctx context.Context, id string) (*models.Touchpoint, error) {
	var tp models.Touchpoint
	query := `
		SELECT id, enterprise_id, protocol_id, title, description, is_cui, active, created_at
		FROM touchpoints
		WHERE id = $1
	`
	err := r.db.GetContext(ctx, &tp, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tp, nil
}

// GetQuestionnaire returns the questionnaire, or nil.
func (r *TouchpointRepository) GetQuestionnaire(ctx context.Context, id string) (*models.Questionnaire, error) {
	var q models.Questionnaire
	query := `SELECT id, touchpoint_id, title, requires_signature, created_at FROM questionnaires WHERE id = $1`
	err := r.db.GetContext(ctx, &q, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// ListQuestions returns the questions of a questionnaire in presentation order.
func (r *TouchpointRepository) ListQuestions(ctx context.Context, questionnaireID string) ([]models.Question, error) {
	questions := make([]models.Question, 0)
	query := `
		SELECT id, questionnaire_id, sort_order, title, text, response_type, response_options,
		       required, tag, skip_logic_answer, skip_logic_jump, is_cui, created_at
		FROM questions
		WHERE questionnaire_id = $1
		ORDER BY sort_order, id
	`
	if err := r.db.SelectContext(ctx, &questions, query, questionnaireID); err != nil {
		return nil, err
	}
	return questions, nil
}
