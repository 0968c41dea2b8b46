package supplier

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/accesscode"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/api/apierr"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/audit"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/db/models"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/session"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/telemetry"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/verification"
)

// Authentication funnel steps, used for metrics and LOGIN_FAILED metadata.
const (
	stepAccessCode   = "access_code"
	stepVerification = "verification"
)

// AccessCodeRequest carries an access code.
type AccessCodeRequest struct {
	Code string `json:"code" binding:"required"`
}

// VerifyRequest carries an access code and the emailed one-time code.
type VerifyRequest struct {
	Code string `json:"code" binding:"required"`
	OTP  string `json:"otp" binding:"required"`
}

// outcome maps an authentication error to its metric label.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, accesscode.ErrNotFound):
		return "not_found"
	case errors.Is(err, accesscode.ErrExpired):
		return "expired"
	case errors.Is(err, accesscode.ErrAlreadyUsed):
		return "already_used"
	case errors.Is(err, verification.ErrInvalidCode):
		return "invalid_code"
	case errors.Is(err, verification.ErrTooManyAttempts):
		return "too_many_attempts"
	case errors.Is(err, verification.ErrResendTooSoon):
		return "resend_too_soon"
	default:
		return "error"
	}
}

// validate checks the access code and records the outcome. On failure it writes the
// error response and returns nil.
func (h *Handlers) validate(c *gin.Context, code string) *models.AccessCode {
	ctx := c.Request.Context()
	ac, err := h.AccessCodes.Validate(ctx, code)
	telemetry.SupplierAuthAttemptsTotal.WithLabelValues(stepAccessCode, outcome(err)).Inc()
	if err != nil {
		h.loginFailed(c, stepAccessCode, nil, err)
		apierr.Respond(c, err)
		return nil
	}
	return ac
}

func (h *Handlers) loginFailed(c *gin.Context, step string, ac *models.AccessCode, cause error) {
	ev := audit.Event{
		Action:     audit.ActionLoginFailed,
		EntityType: audit.EntityAccessCode,
		Metadata:   map[string]interface{}{"step": step, "reason": outcome(cause)},
	}
	if ac != nil {
		ev.EntityID = ac.ID
		ev.Actor = supplierActor(ac.PartnerID)
	}
	h.record(c.Request.Context(), ev)
}

func (h *Handlers) partner(c *gin.Context, id string) *models.Partner {
	p, err := h.Partners.GetByID(c.Request.Context(), id)
	if err != nil {
		apierr.Internal(c, err)
		return nil
	}
	if p == nil {
		apierr.Abort(c, http.StatusNotFound, apierr.CodeNotFound, "partner not found", nil)
		return nil
	}
	return p
}

// @Summary      Validate access code
// @Description  Checks an access code and returns who it belongs to. The email is masked.
// @Tags         Supplier
// @Accept       json
// @Produce      json
// @Param        body  body  AccessCodeRequest  true  "Access code"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]interface{}  "NOT_FOUND"
// @Failure      410  {object}  map[string]interface{}  "EXPIRED or ALREADY_USED"
// @Router       /api/v1/supplier/access-code/validate [post]
func (h *Handlers) ValidateAccessCode() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AccessCodeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apierr.BadRequest(c, "code is required")
			return
		}
		ac := h.validate(c, req.Code)
		if ac == nil {
			return
		}
		p := h.partner(c, ac.PartnerID)
		if p == nil {
			return
		}

		h.record(c.Request.Context(), audit.Event{
			Action:     audit.ActionAccessCodeValidated,
			EntityType: audit.EntityAccessCode,
			EntityID:   ac.ID,
			Actor:      supplierActor(ac.PartnerID),
		})

		c.JSON(http.StatusOK, gin.H{
			"email":        verification.MaskEmail(p.Email),
			"partner_name": p.ContactName(),
			"company_name": p.CompanyName,
			"expires_at":   ac.ExpiresAt,
		})
	}
}

// @Summary      Send verification code
// @Description  Emails a six-digit one-time code to the partner contact on file.
// @Tags         Supplier
// @Accept       json
// @Produce      json
// @Param        body  body  AccessCodeRequest  true  "Access code"
// @Success      200  {object}  map[string]interface{}
// @Failure      429  {object}  map[string]interface{}  "RATE_LIMITED when resent too soon"
// @Router       /api/v1/supplier/access-code/send-verification [post]
func (h *Handlers) SendVerification() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AccessCodeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apierr.BadRequest(c, "code is required")
			return
		}
		ac := h.validate(c, req.Code)
		if ac == nil {
			return
		}
		p := h.partner(c, ac.PartnerID)
		if p == nil {
			return
		}

		issued, err := h.Verifier.Issue(c.Request.Context(), ac, verification.Recipient{
			Email:       p.Email,
			PartnerName: p.ContactName(),
			CompanyName: p.CompanyName,
		})
		if err != nil {
			apierr.Respond(c, err)
			return
		}

		h.record(c.Request.Context(), audit.Event{
			Action:     audit.ActionVerificationCodeSent,
			EntityType: audit.EntityAccessCode,
			EntityID:   ac.ID,
			Actor:      supplierActor(ac.PartnerID),
			Metadata:   map[string]interface{}{"email_hint": issued.EmailHint},
		})

		c.JSON(http.StatusOK, gin.H{
			"sent":       true,
			"email_hint": issued.EmailHint,
			"expires_at": issued.ExpiresAt,
		})
	}
}

// @Summary      Verify one-time code
// @Description  Exchanges an access code and emailed code for a session. The token is also set as an HttpOnly cookie.
// @Tags         Supplier
// @Accept       json
// @Produce      json
// @Param        body  body  VerifyRequest  true  "Access code and one-time code"
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]interface{}  "INVALID_CODE"
// @Failure      429  {object}  map[string]interface{}  "TOO_MANY_ATTEMPTS"
// @Router       /api/v1/supplier/access-code/verify [post]
func (h *Handlers) Verify() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req VerifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apierr.BadRequest(c, "code and otp are required")
			return
		}
		ac := h.validate(c, req.Code)
		if ac == nil {
			return
		}
		ctx := c.Request.Context()

		err := h.Verifier.Verify(ctx, ac, req.OTP)
		telemetry.SupplierAuthAttemptsTotal.WithLabelValues(stepVerification, outcome(err)).Inc()
		if err != nil {
			if errors.Is(err, verification.ErrInvalidCode) || errors.Is(err, verification.ErrTooManyAttempts) {
				h.loginFailed(c, stepVerification, ac, err)
			}
			apierr.Respond(c, err)
			return
		}

		token, sess, err := h.Sessions.Create(ctx, session.Subject{
			AssignmentID: ac.AssignmentID,
			AccessCode:   ac.Code,
			PartnerID:    ac.PartnerID,
		})
		if err != nil {
			apierr.Internal(c, err)
			return
		}
		h.setCookie(c, token, sess.ExpiresAt)

		h.record(ctx, audit.Event{
			Action:     audit.ActionLoginSuccess,
			EntityType: audit.EntityAssignment,
			EntityID:   ac.AssignmentID,
			Actor:      supplierActor(ac.PartnerID),
			Metadata:   map[string]interface{}{"session_id": sess.ID},
		})

		c.JSON(http.StatusOK, gin.H{
			"token":           token,
			"expires_at":      sess.ExpiresAt,
			"idle_expires_at": sess.IdleExpiresAt,
		})
	}
}

// @Summary      Session status
// @Description  Reports whether the caller holds a usable session. Never answers 401 and does not count as activity.
// @Tags         Supplier
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/v1/supplier/session [get]
func (h *Handlers) SessionStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		sess, err := h.Sessions.InspectRequest(ctx, c.Request, h.Cookie.CookieName)
		if errors.Is(err, session.ErrUnauthenticated) {
			c.JSON(http.StatusOK, gin.H{"authenticated": false, "reason": session.Reason(err)})
			return
		}
		if err != nil {
			apierr.Internal(c, err)
			return
		}

		body := gin.H{
			"authenticated":   true,
			"expires_at":      sess.ExpiresAt,
			"idle_expires_at": sess.IdleExpiresAt,
			"idle_warning":    sess.IdleWarning(h.now()),
		}
		a, err := h.Assignments.GetByID(ctx, sess.AssignmentID)
		if err != nil {
			apierr.Internal(c, err)
			return
		}
		if a != nil {
			body["assignment"] = gin.H{"id": a.ID, "status": a.Status, "touchpoint_id": a.TouchpointID}
		}
		c.JSON(http.StatusOK, body)
	}
}

// @Summary      Log out
// @Description  Terminates the session. Idempotent; always clears the cookie.
// @Tags         Supplier
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/v1/supplier/logout [post]
func (h *Handlers) Logout() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		token, _ := session.TokenFromRequest(c.Request, h.Cookie.CookieName)
		sess, _ := h.Sessions.Inspect(ctx, token)

		if err := h.Sessions.Terminate(ctx, token); err != nil {
			apierr.Internal(c, err)
			return
		}
		h.clearCookie(c)

		if sess != nil {
			h.record(ctx, audit.Event{
				Action:     audit.ActionLogout,
				EntityType: audit.EntityAssignment,
				EntityID:   sess.AssignmentID,
				Actor:      supplierActor(sess.PartnerID),
				Metadata:   map[string]interface{}{"session_id": sess.ID},
			})
		}
		c.JSON(http.StatusOK, gin.H{"logged_out": true})
	}
}

func (h *Handlers) setCookie(c *gin.Context, token string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(h.Cookie.CookieName, token, maxAge, "/", h.Cookie.CookieDomain, h.Cookie.CookieSecure, true)
}

func (h *Handlers) clearCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(h.Cookie.CookieName, "", -1, "/", h.Cookie.CookieDomain, h.Cookie.CookieSecure, true)
}
