package admin

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/api/apierr"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/audit"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/db/models"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/db/repositories"
)

const (
	exportPageSize = 500
	// maxExportRows bounds a single CSV export; narrow the filters for more.
	maxExportRows = 50000
)

var csvHeader = []string{
	"id", "timestamp", "action", "entity_type", "entity_id", "actor_id", "actor_type",
	"ip_address", "user_agent", "is_cui_access", "metadata",
}

// parseTime accepts RFC 3339 timestamps or plain dates. A plain end date covers the
// whole day.
func parseTime(s string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is not a date (YYYY-MM-DD) or RFC 3339 timestamp", s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func optionalQuery(c *gin.Context, name string) *string {
	v := strings.TrimSpace(c.Query(name))
	if v == "" {
		return nil
	}
	return &v
}

// parseFilters reads the audit query parameters shared by list and export.
func parseFilters(c *gin.Context) (repositories.AuditFilters, error) {
	f := repositories.AuditFilters{
		Action:     optionalQuery(c, "action"),
		EntityType: optionalQuery(c, "entity_type"),
		ActorID:    optionalQuery(c, "actor_id"),
		IPContains: optionalQuery(c, "ip"),
	}
	if s := optionalQuery(c, "start_date"); s != nil {
		t, err := parseTime(*s, false)
		if err != nil {
			return f, fmt.Errorf("start_date: %w", err)
		}
		f.StartDate = &t
	}
	if s := optionalQuery(c, "end_date"); s != nil {
		t, err := parseTime(*s, true)
		if err != nil {
			return f, fmt.Errorf("end_date: %w", err)
		}
		f.EndDate = &t
	}
	if f.StartDate != nil && f.EndDate != nil && f.EndDate.Before(*f.StartDate) {
		return f, fmt.Errorf("end_date is before start_date")
	}
	if s := optionalQuery(c, "cui_only"); s != nil {
		b, err := strconv.ParseBool(*s)
		if err != nil {
			return f, fmt.Errorf("cui_only must be true or false")
		}
		if b {
			f.CUIOnly = &b
		}
	}
	return f, nil
}

// filterMetadata describes the filters for the export audit entry.
func filterMetadata(f repositories.AuditFilters) map[string]interface{} {
	m := map[string]interface{}{}
	set := func(k string, v *string) {
		if v != nil {
			m[k] = *v
		}
	}
	set("action", f.Action)
	set("entity_type", f.EntityType)
	set("actor_id", f.ActorID)
	set("ip", f.IPContains)
	if f.StartDate != nil {
		m["start_date"] = f.StartDate.UTC().Format(time.RFC3339)
	}
	if f.EndDate != nil {
		m["end_date"] = f.EndDate.UTC().Format(time.RFC3339)
	}
	if f.CUIOnly != nil {
		m["cui_only"] = *f.CUIOnly
	}
	return m
}

// @Summary      List audit logs
// @Description  Returns audit entries newest first.
// @Tags         Admin
// @Security     AdminKey
// @Produce      json
// @Param        start_date   query  string  false  "From (YYYY-MM-DD or RFC 3339)"
// @Param        end_date     query  string  false  "To, inclusive"
// @Param        action       query  string  false  "Action, e.g. CUI_ACCESSED"
// @Param        entity_type  query  string  false  "Entity type"
// @Param        actor_id     query  string  false  "Actor ID"
// @Param        ip           query  string  false  "IP address substring"
// @Param        cui_only     query  bool    false  "Only CUI access entries"
// @Param        page         query  int     false  "Page number (default 1)"
// @Param        per_page     query  int     false  "Items per page, max 200 (default 50)"
// @Success      200  {object}  map[string]interface{}  "audit_logs, pagination"
// @Router       /api/v1/admin/audit-logs [get]
func (h *Handlers) ListAuditLogs() gin.HandlerFunc {
	return func(c *gin.Context) {
		filters, err := parseFilters(c)
		if err != nil {
			apierr.BadRequest(c, err.Error())
			return
		}
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "50"))
		if page < 1 {
			page = 1
		}
		if perPage < 1 || perPage > 200 {
			perPage = 50
		}

		logs, total, err := h.AuditLogs.ListAuditLogs(c.Request.Context(), filters, perPage, (page-1)*perPage)
		if err != nil {
			apierr.Internal(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"audit_logs": logs,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// @Summary      Export audit logs
// @Description  Streams matching audit entries as CSV, newest first. The export itself is audited.
// @Tags         Admin
// @Security     AdminKey
// @Produce      text/csv
// @Success      200  {string}  string  "CSV"
// @Router       /api/v1/admin/audit-logs/export [get]
func (h *Handlers) ExportAuditLogs() gin.HandlerFunc {
	return func(c *gin.Context) {
		filters, err := parseFilters(c)
		if err != nil {
			apierr.BadRequest(c, err.Error())
			return
		}
		ctx := c.Request.Context()

		// Load the first page before writing headers so a query error can still
		// be reported as JSON.
		first, total, err := h.AuditLogs.ListAuditLogs(ctx, filters, exportPageSize, 0)
		if err != nil {
			apierr.Internal(c, err)
			return
		}

		filename := fmt.Sprintf("audit-logs-%s.csv", h.now().UTC().Format("20060102-150405"))
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
		c.Status(http.StatusOK)

		w := csv.NewWriter(c.Writer)
		_ = w.Write(csvHeader)

		rows := 0
		page := first
		for len(page) > 0 && rows < maxExportRows {
			for i := range page {
				if rows >= maxExportRows {
					break
				}
				if err := w.Write(csvRecord(&page[i])); err != nil {
					c.Error(err)
					return
				}
				rows++
			}
			if rows >= total || len(page) < exportPageSize {
				break
			}
			page, _, err = h.AuditLogs.ListAuditLogs(ctx, filters, exportPageSize, rows)
			if err != nil {
				// Headers are already sent; the truncated file is all we can offer.
				c.Error(err)
				break
			}
		}
		w.Flush()

		meta := filterMetadata(filters)
		meta["rows"] = rows
		meta["truncated"] = rows < total
		h.record(ctx, audit.Event{
			Action:     audit.ActionAuditLogExported,
			EntityType: audit.EntityAuditLog,
			Actor:      actor(c),
			Metadata:   meta,
		})
	}
}

func csvRecord(l *models.AuditLog) []string {
	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	meta := ""
	if len(l.Metadata) > 0 {
		if b, err := json.Marshal(l.Metadata); err == nil {
			meta = string(b)
		}
	}
	return []string{
		l.ID,
		l.Timestamp.UTC().Format(time.RFC3339),
		l.Action,
		l.EntityType,
		deref(l.EntityID),
		deref(l.ActorID),
		string(l.ActorType),
		deref(l.IPAddress),
		deref(l.UserAgent),
		strconv.FormatBool(l.IsCUIAccess),
		meta,
	}
}
