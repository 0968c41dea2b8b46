package supplier

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/api/apierr"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/db/models"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/notify"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/questionnaire"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/responses"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/storage"
)

// SaveResponsesRequest is an auto-save batch.
type SaveResponsesRequest struct {
	Responses []responses.Answer `json:"responses" binding:"required,dive"`
}

// SaveResponseRequest is a single auto-saved answer; the question comes from the path.
type SaveResponseRequest struct {
	Value         json.RawMessage `json:"value"`
	Comment       *string         `json:"comment,omitempty"`
	ClientSavedAt *time.Time      `json:"client_saved_at,omitempty"`
}

func (h *Handlers) save(c *gin.Context, answers []responses.Answer) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}
	res, err := h.Responses.SaveDraft(c.Request.Context(), sess, answers)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary      Save answers
// @Description  Auto-saves a batch of answers. The batch is all-or-nothing; last write wins per question by client_saved_at. Ignored once submitted.
// @Tags         Supplier
// @Security     SupplierSession
// @Accept       json
// @Produce      json
// @Param        body  body  SaveResponsesRequest  true  "Answers"
// @Success      200  {object}  responses.SaveResult
// @Failure      422  {object}  map[string]interface{}  "VALIDATION_FAILED with issues"
// @Router       /api/v1/supplier/responses [put]
func (h *Handlers) SaveResponses() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SaveResponsesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apierr.BadRequest(c, "responses must be a list of {question_id, value}")
			return
		}
		h.save(c, req.Responses)
	}
}

// @Summary      Save one answer
// @Description  Auto-saves one answer. Same rules as the batch endpoint.
// @Tags         Supplier
// @Security     SupplierSession
// @Accept       json
// @Produce      json
// @Param        questionId  path  string               true  "Question ID"
// @Param        body        body  SaveResponseRequest  true  "Answer"
// @Success      200  {object}  responses.SaveResult
// @Router       /api/v1/supplier/responses/{questionId} [put]
func (h *Handlers) SaveResponse() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SaveResponseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apierr.BadRequest(c, "invalid answer body")
			return
		}
		h.save(c, []responses.Answer{{
			QuestionID:    c.Param("questionId"),
			Value:         req.Value,
			Comment:       req.Comment,
			ClientSavedAt: req.ClientSavedAt,
		}})
	}
}

// @Summary      Upload file answer
// @Description  Stores a file for a file_upload question and saves the reference as its answer.
// @Tags         Supplier
// @Security     SupplierSession
// @Accept       multipart/form-data
// @Produce      json
// @Param        questionId  path      string  true  "Question ID"
// @Param        file        formData  file    true  "File"
// @Success      200  {object}  map[string]interface{}  "file, saved, progress"
// @Failure      413  {object}  map[string]interface{}  "file too large"
// @Router       /api/v1/supplier/questions/{questionId}/upload [post]
func (h *Handlers) Upload() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := currentSession(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		questionID := c.Param("questionId")

		snap, err := h.Responses.Load(ctx, sess.AssignmentID)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		i := questionnaire.IndexOf(snap.Questions, questionID)
		if i < 0 {
			apierr.Respond(c, questionnaire.ErrUnknownQuestion)
			return
		}
		if snap.Questions[i].ResponseType != models.ResponseFileUpload {
			apierr.BadRequest(c, "question does not accept file uploads")
			return
		}
		if snap.Assignment.Status.Submitted() {
			apierr.Respond(c, responses.ErrConflict)
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes+1<<20)
		fh, err := c.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				apierr.Abort(c, http.StatusRequestEntityTooLarge, apierr.CodeBadRequest, "file is too large", nil)
				return
			}
			apierr.BadRequest(c, "multipart field 'file' is required")
			return
		}
		if fh.Size > h.MaxUploadBytes {
			apierr.Abort(c, http.StatusRequestEntityTooLarge, apierr.CodeBadRequest, "file is too large", nil)
			return
		}
		f, err := fh.Open()
		if err != nil {
			apierr.Internal(c, err)
			return
		}
		defer f.Close()

		contentType := fh.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		key := storage.AnswerKey(sess.AssignmentID, questionID, fh.Filename)
		up, err := h.Storage.Upload(ctx, key, f, fh.Size, contentType)
		if err != nil {
			apierr.Internal(c, err)
			return
		}

		ref := questionnaire.FileRef{Key: up.Key, Filename: fh.Filename, Size: up.Size, ContentType: contentType}
		raw, err := json.Marshal(ref)
		if err != nil {
			apierr.Internal(c, err)
			return
		}
		res, err := h.Responses.SaveDraft(ctx, sess, []responses.Answer{{QuestionID: questionID, Value: raw}})
		if err != nil {
			if delErr := h.Storage.Delete(ctx, up.Key); delErr != nil {
				apierr.Internal(c, errors.Join(err, delErr))
				return
			}
			apierr.Respond(c, err)
			return
		}
		var saved *questionnaire.FileRef
		if res.Saved == 0 {
			// Nothing references the object, so it must not outlive the request.
			if delErr := h.Storage.Delete(ctx, up.Key); delErr != nil {
				slog.WarnContext(ctx, "failed to remove unreferenced upload", "key", up.Key, "error", delErr)
			}
		} else {
			saved = &ref
		}
		c.JSON(http.StatusOK, gin.H{
			"file":     saved,
			"checksum": up.Checksum,
			"saved":    res.Saved,
			"ignored":  res.Ignored,
			"progress": res.Progress,
		})
	}
}

// @Summary      Submit questionnaire
// @Description  Validates every required answer and the signature, then submits. The access code is consumed.
// @Tags         Supplier
// @Security     SupplierSession
// @Accept       json
// @Produce      json
// @Param        body  body  responses.Signature  true  "E-signature"
// @Success      200  {object}  map[string]interface{}
// @Failure      409  {object}  map[string]interface{}  "CONFLICT when already submitted"
// @Failure      422  {object}  map[string]interface{}  "VALIDATION_FAILED with issues"
// @Router       /api/v1/supplier/submit [post]
func (h *Handlers) Submit() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := currentSession(c)
		if !ok {
			return
		}
		var sig responses.Signature
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&sig); err != nil {
				apierr.BadRequest(c, "invalid signature body")
				return
			}
		}
		sig.IP = c.ClientIP()

		a, err := h.Responses.Submit(c.Request.Context(), sess, sig)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		h.sendReceipt(c.Request.Context(), sess.PartnerID, a)
		c.JSON(http.StatusOK, gin.H{
			"submitted":      true,
			"status":         a.Status,
			"completed_date": a.CompletedDate,
			"signed_at":      a.SignedAt,
		})
	}
}

// sendReceipt emails a submission receipt to the signer, or to the partner contact
// when no signer email was captured. Delivery failures are logged only.
func (h *Handlers) sendReceipt(ctx context.Context, partnerID string, a *models.Assignment) {
	if h.Notifier == nil {
		return
	}
	p, err := h.Partners.GetByID(ctx, partnerID)
	if err != nil || p == nil {
		slog.WarnContext(ctx, "submission receipt skipped: partner unavailable", "assignment_id", a.ID, "error", err)
		return
	}
	to, name := p.Email, p.ContactName()
	if a.SignerEmail != nil && *a.SignerEmail != "" {
		to = *a.SignerEmail
	}
	if a.SignerName != nil && *a.SignerName != "" {
		name = *a.SignerName
	}
	if to == "" {
		return
	}

	title := a.TouchpointID
	if tp, err := h.Touchpoints.GetTouchpoint(ctx, a.TouchpointID); err == nil && tp != nil {
		title = tp.Title
	}
	submittedAt := h.now().UTC()
	if a.CompletedDate != nil {
		submittedAt = a.CompletedDate.UTC()
	}

	_, err = h.Notifier.Send(ctx, notify.Message{
		To:         to,
		TemplateID: notify.TemplateSubmissionReceipt,
		Variables: map[string]string{
			"signer_name":      name,
			"touchpoint_title": title,
			"submitted_at":     submittedAt.Format(time.RFC1123),
			"assignment_id":    a.ID,
		},
	})
	if err != nil {
		slog.WarnContext(ctx, "failed to send submission receipt", "assignment_id", a.ID, "error", err)
	}
}
