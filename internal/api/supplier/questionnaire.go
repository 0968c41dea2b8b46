package supplier

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/api/apierr"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/audit"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/db/models"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/questionnaire"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/responses"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/session"
)

// SavedResponse is one stored answer as returned to the client.
type SavedResponse struct {
	Value   questionnaire.Value `json:"value"`
	Comment string              `json:"comment,omitempty"`
}

// NavigateRequest asks for the question after (or before) QuestionID.
type NavigateRequest struct {
	QuestionID string `json:"question_id" binding:"required"`
	Direction  string `json:"direction" binding:"required,oneof=next previous"`
}

// touchpoint loads the assignment's touchpoint and logs the read when it is CUI.
func (h *Handlers) touchpoint(c *gin.Context, sess *session.Session, id string) (*models.Touchpoint, error) {
	ctx := c.Request.Context()
	tp, err := h.Touchpoints.GetTouchpoint(ctx, id)
	if err != nil {
		return nil, err
	}
	if tp == nil {
		return nil, fmt.Errorf("touchpoint %s is missing", id)
	}
	err = h.Recorder.RecordRead(ctx, supplierActor(sess.PartnerID), audit.Entity{
		Type:  audit.EntityTouchpoint,
		ID:    tp.ID,
		Title: tp.Title,
		IsCUI: tp.IsCUI,
	})
	if err != nil {
		return nil, err
	}
	return tp, nil
}

// recordQuestionReads logs one CUI access per CUI question returned, answered or not.
func (h *Handlers) recordQuestionReads(c *gin.Context, sess *session.Session, snap *responses.Snapshot) error {
	for i := range snap.Questions {
		q := &snap.Questions[i]
		err := h.Recorder.RecordRead(c.Request.Context(), supplierActor(sess.PartnerID), audit.Entity{
			Type:  audit.EntityQuestion,
			ID:    q.ID,
			Title: q.Title,
			IsCUI: q.IsCUI,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// @Summary      Load questionnaire
// @Description  Returns the assignment, its ordered questions, saved answers and progress. CUI reads are audited.
// @Tags         Supplier
// @Security     SupplierSession
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]interface{}  "UNAUTHENTICATED"
// @Router       /api/v1/supplier/questionnaire [get]
func (h *Handlers) GetQuestionnaire() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := currentSession(c)
		if !ok {
			return
		}
		snap, err := h.Responses.Load(c.Request.Context(), sess.AssignmentID)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		tp, err := h.touchpoint(c, sess, snap.Assignment.TouchpointID)
		if err != nil {
			apierr.Internal(c, err)
			return
		}
		if err := h.recordQuestionReads(c, sess, snap); err != nil {
			apierr.Internal(c, err)
			return
		}

		saved := make(map[string]SavedResponse, len(snap.Values))
		for id, v := range snap.Values {
			saved[id] = SavedResponse{Value: v, Comment: snap.Comments[id]}
		}
		for id, comment := range snap.Comments {
			if _, ok := saved[id]; !ok {
				saved[id] = SavedResponse{Comment: comment}
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"assignment":      snap.Assignment,
			"questionnaire":   snap.Questionnaire,
			"touchpoint":      tp,
			"questions":       snap.Questions,
			"saved_responses": saved,
			"progress":        snap.Progress,
		})
	}
}

// @Summary      Load touchpoint
// @Description  Returns the touchpoint of the session's assignment. CUI reads are audited.
// @Tags         Supplier
// @Security     SupplierSession
// @Produce      json
// @Success      200  {object}  models.Touchpoint
// @Router       /api/v1/supplier/touchpoint [get]
func (h *Handlers) GetTouchpoint() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := currentSession(c)
		if !ok {
			return
		}
		a, err := h.Assignments.GetByID(c.Request.Context(), sess.AssignmentID)
		if err != nil {
			apierr.Internal(c, err)
			return
		}
		if a == nil {
			apierr.Respond(c, responses.ErrNotFound)
			return
		}
		tp, err := h.touchpoint(c, sess, a.TouchpointID)
		if err != nil {
			apierr.Internal(c, err)
			return
		}
		c.JSON(http.StatusOK, tp)
	}
}

// @Summary      Navigate
// @Description  Resolves the next or previous question, applying skip logic to the saved answer.
// @Tags         Supplier
// @Security     SupplierSession
// @Accept       json
// @Produce      json
// @Param        body  body  NavigateRequest  true  "Current question and direction"
// @Success      200  {object}  map[string]interface{}  "question_id, done"
// @Router       /api/v1/supplier/questionnaire/navigate [post]
func (h *Handlers) Navigate() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := currentSession(c)
		if !ok {
			return
		}
		var req NavigateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apierr.BadRequest(c, "question_id and direction (next|previous) are required")
			return
		}
		snap, err := h.Responses.Load(c.Request.Context(), sess.AssignmentID)
		if err != nil {
			apierr.Respond(c, err)
			return
		}

		next, done, err := questionnaire.Navigate(snap.Questions, req.QuestionID, req.Direction, snap.Values[req.QuestionID])
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"question_id": next, "done": done})
	}
}

// @Summary      Progress
// @Description  Returns the completion percentage, recomputed from stored answers.
// @Tags         Supplier
// @Security     SupplierSession
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "progress"
// @Router       /api/v1/supplier/progress [get]
func (h *Handlers) GetProgress() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := currentSession(c)
		if !ok {
			return
		}
		p, err := h.Responses.Progress(c.Request.Context(), sess.AssignmentID)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"progress": p})
	}
}
