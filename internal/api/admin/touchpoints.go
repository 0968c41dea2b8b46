package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/api/apierr"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/audit"
)

// @Summary      Get touchpoint
// @Description  Returns a touchpoint. Reading a CUI touchpoint is audited; if that fails the read is refused.
// @Tags         Admin
// @Security     AdminKey
// @Produce      json
// @Param        id  path  string  true  "Touchpoint ID"
// @Success      200  {object}  models.Touchpoint
// @Failure      404  {object}  map[string]interface{}  "NOT_FOUND"
// @Router       /api/v1/admin/touchpoints/{id} [get]
func (h *Handlers) GetTouchpoint() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		tp, err := h.Touchpoints.GetTouchpoint(ctx, c.Param("id"))
		if err != nil {
			apierr.Internal(c, err)
			return
		}
		if tp == nil {
			apierr.Abort(c, http.StatusNotFound, apierr.CodeNotFound, "touchpoint not found", nil)
			return
		}
		err = h.Recorder.RecordRead(ctx, actor(c), audit.Entity{
			Type:  audit.EntityTouchpoint,
			ID:    tp.ID,
			Title: tp.Title,
			IsCUI: tp.IsCUI,
		})
		if err != nil {
			apierr.Internal(c, err)
			return
		}
		c.JSON(http.StatusOK, tp)
	}
}
