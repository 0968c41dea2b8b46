// Package apierr renders the JSON error envelope shared by every endpoint:
//
//	{"error": "<message>", "code": "<CODE>", ...details}
//
// Domain errors are mapped to a status and code by Respond; handlers never build
// error bodies by hand.
package apierr

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/accesscode"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/questionnaire"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/responses"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/session"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/storage"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/verification"
)

// Stable error codes.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeExpired          = "EXPIRED"
	CodeAlreadyUsed      = "ALREADY_USED"
	CodeInvalidCode      = "INVALID_CODE"
	CodeTooManyAttempts  = "TOO_MANY_ATTEMPTS"
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeConflict         = "CONFLICT"
	CodeBadRequest       = "BAD_REQUEST"
	CodeForbidden        = "FORBIDDEN"
	CodeRateLimited      = "RATE_LIMITED"
	CodeInternal         = "INTERNAL"
)

// Abort writes the envelope and stops the handler chain.
func Abort(c *gin.Context, status int, code, message string, details gin.H) {
	body := gin.H{"error": message, "code": code}
	for k, v := range details {
		body[k] = v
	}
	c.AbortWithStatusJSON(status, body)
}

// BadRequest reports a malformed request body or parameter.
func BadRequest(c *gin.Context, message string) {
	Abort(c, http.StatusBadRequest, CodeBadRequest, message, nil)
}

// Unauthenticated reports a missing or unusable session with its reason.
func Unauthenticated(c *gin.Context, err error) {
	Abort(c, http.StatusUnauthorized, CodeUnauthenticated, err.Error(), gin.H{"reason": session.Reason(err)})
}

// Internal logs err and reports a generic failure.
func Internal(c *gin.Context, err error) {
	slog.ErrorContext(c.Request.Context(), "request failed",
		"path", c.FullPath(), "error", err)
	Abort(c, http.StatusInternalServerError, CodeInternal, "internal server error", nil)
}

// Respond maps a domain error to the envelope.
func Respond(c *gin.Context, err error) {
	var verr *responses.ValidationError
	switch {
	case errors.As(err, &verr):
		Abort(c, http.StatusUnprocessableEntity, CodeValidationFailed, verr.Error(), gin.H{"issues": verr.Issues})
	case errors.Is(err, session.ErrUnauthenticated):
		Unauthenticated(c, err)
	case errors.Is(err, accesscode.ErrNotFound):
		Abort(c, http.StatusNotFound, CodeNotFound, err.Error(), nil)
	case errors.Is(err, accesscode.ErrExpired):
		Abort(c, http.StatusGone, CodeExpired, err.Error(), nil)
	case errors.Is(err, accesscode.ErrAlreadyUsed):
		Abort(c, http.StatusGone, CodeAlreadyUsed, err.Error(), nil)
	case errors.Is(err, verification.ErrInvalidCode):
		Abort(c, http.StatusUnauthorized, CodeInvalidCode, err.Error(), nil)
	case errors.Is(err, verification.ErrTooManyAttempts):
		Abort(c, http.StatusTooManyRequests, CodeTooManyAttempts, err.Error(), nil)
	case errors.Is(err, verification.ErrResendTooSoon):
		Abort(c, http.StatusTooManyRequests, CodeRateLimited, err.Error(), nil)
	case errors.Is(err, verification.ErrNoEmail):
		Abort(c, http.StatusUnprocessableEntity, CodeValidationFailed, err.Error(), nil)
	case errors.Is(err, responses.ErrConflict), errors.Is(err, responses.ErrNotAwaitingReview):
		Abort(c, http.StatusConflict, CodeConflict, err.Error(), nil)
	case errors.Is(err, responses.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		Abort(c, http.StatusNotFound, CodeNotFound, err.Error(), nil)
	case errors.Is(err, responses.ErrInvalidDecision):
		Abort(c, http.StatusBadRequest, CodeBadRequest, err.Error(), nil)
	case errors.Is(err, questionnaire.ErrUnknownQuestion):
		Abort(c, http.StatusNotFound, CodeNotFound, err.Error(), nil)
	default:
		Internal(c, err)
	}
}
