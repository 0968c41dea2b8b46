package supplier

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/api/apierr"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/audit"
)

// UpdatePartnerRequest holds the contact fields a partner may confirm or correct.
// Omitted fields are left unchanged; an empty string clears an optional field.
type UpdatePartnerRequest struct {
	ContactFirstName *string `json:"contact_first_name"`
	ContactLastName  *string `json:"contact_last_name"`
	Phone            *string `json:"phone"`
	Address1         *string `json:"address1"`
	Address2         *string `json:"address2"`
	City             *string `json:"city"`
	State            *string `json:"state"`
	Zipcode          *string `json:"zipcode"`
	Country          *string `json:"country"`
}

// applyOptional updates *dst from src and reports whether the stored value changed.
func applyOptional(dst **string, src *string) bool {
	if src == nil {
		return false
	}
	v := strings.TrimSpace(*src)
	old := ""
	if *dst != nil {
		old = **dst
	}
	if v == old {
		return false
	}
	if v == "" {
		*dst = nil
	} else {
		*dst = &v
	}
	return true
}

func applyRequired(dst *string, src *string) bool {
	if src == nil {
		return false
	}
	v := strings.TrimSpace(*src)
	if v == "" || v == *dst {
		return false
	}
	*dst = v
	return true
}

// @Summary      Confirm partner contact
// @Description  Updates the partner's contact name, phone and address. Email and company name are not editable here.
// @Tags         Supplier
// @Security     SupplierSession
// @Accept       json
// @Produce      json
// @Param        body  body  UpdatePartnerRequest  true  "Contact fields"
// @Success      200  {object}  models.Partner
// @Router       /api/v1/supplier/partner [put]
func (h *Handlers) UpdatePartner() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := currentSession(c)
		if !ok {
			return
		}
		var req UpdatePartnerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apierr.BadRequest(c, "invalid partner body")
			return
		}
		p := h.partner(c, sess.PartnerID)
		if p == nil {
			return
		}

		changed := make([]string, 0)
		mark := func(field string, did bool) {
			if did {
				changed = append(changed, field)
			}
		}
		mark("contact_first_name", applyRequired(&p.ContactFirstName, req.ContactFirstName))
		mark("contact_last_name", applyRequired(&p.ContactLastName, req.ContactLastName))
		mark("phone", applyOptional(&p.Phone, req.Phone))
		mark("address1", applyOptional(&p.Address1, req.Address1))
		mark("address2", applyOptional(&p.Address2, req.Address2))
		mark("city", applyOptional(&p.City, req.City))
		mark("state", applyOptional(&p.State, req.State))
		mark("zipcode", applyOptional(&p.Zipcode, req.Zipcode))
		mark("country", applyOptional(&p.Country, req.Country))

		if len(changed) == 0 {
			c.JSON(http.StatusOK, p)
			return
		}
		ctx := c.Request.Context()
		if err := h.Partners.UpdateContact(ctx, p); err != nil {
			apierr.Internal(c, err)
			return
		}

		sort.Strings(changed)
		h.record(ctx, audit.Event{
			Action:     audit.ActionPartnerUpdated,
			EntityType: audit.EntityPartner,
			EntityID:   p.ID,
			Actor:      supplierActor(sess.PartnerID),
			Metadata:   map[string]interface{}{"fields": changed},
		})
		c.JSON(http.StatusOK, p)
	}
}
