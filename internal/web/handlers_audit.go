package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/JonMunkholm/TruckRewards/internal/core"
	"github.com/JonMunkholm/TruckRewards/internal/logging"
	"github.com/JonMunkholm/TruckRewards/internal/web/templates"
)

// auditQueryFromRequest reads event_type, start, and end. The end date is
// inclusive, so the exclusive bound is the following midnight.
func auditQueryFromRequest(r *http.Request) (core.AuditQuery, templates.AuditFilter, error) {
	filter := templates.AuditFilter{
		Category:  r.URL.Query().Get("event_type"),
		StartDate: r.URL.Query().Get("start"),
		EndDate:   r.URL.Query().Get("end"),
	}

	var q core.AuditQuery
	if filter.Category != "" {
		if _, ok := core.LookupAuditCategory(filter.Category); !ok {
			return q, filter, fmt.Errorf("invalid audit filter: unknown event type %q", filter.Category)
		}
		q.Category = filter.Category
	}

	start, err := core.ParseAuditDate(filter.StartDate)
	if err != nil {
		return q, filter, fmt.Errorf("invalid audit filter: %w", err)
	}
	end, err := core.ParseAuditDate(filter.EndDate)
	if err != nil {
		return q, filter, fmt.Errorf("invalid audit filter: %w", err)
	}
	if !end.IsZero() {
		end = end.AddDate(0, 0, 1)
	}
	if !start.IsZero() && !end.IsZero() && !start.Before(end) {
		return q, filter, fmt.Errorf("invalid audit filter: start date must not be after end date")
	}

	q.Start = start
	q.End = end
	return q, filter, nil
}

// handleAuditLog renders the audit log view with category and date filters.
func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	q, filter, err := auditQueryFromRequest(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	q.Limit = core.ViewAuditLimit

	result, err := s.audit.Query(r.Context(), q)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	if wantsJSON(r) {
		writeJSON(w, map[string]any{
			"events":      result.Events,
			"total_count": result.TotalCount,
		})
		return
	}

	params := templates.AuditLogViewParams{
		Filter:     filter,
		Categories: core.AuditCategories(),
		Events:     result.Events,
		TotalCount: result.TotalCount,
	}
	if isHTMX(r) {
		_ = templates.AuditLogPartial(params).Render(r.Context(), w)
		return
	}
	_ = templates.AuditLogPage(params).Render(r.Context(), w)
}

// handleAuditLogExport streams the filtered audit log as CSV or XLSX.
func (s *Server) handleAuditLogExport(w http.ResponseWriter, r *http.Request) {
	q, _, err := auditQueryFromRequest(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "xlsx" {
		s.respondError(w, r, fmt.Errorf("invalid export format %q", format), http.StatusBadRequest)
		return
	}

	// Set headers for streaming download
	timestamp := time.Now().Format(core.SessionIDLayout)
	filename := fmt.Sprintf("audit_log_%s.%s", timestamp, format)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	if format == "xlsx" {
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		err = core.WriteAuditXLSX(r.Context(), w, s.audit, q)
	} else {
		w.Header().Set("Content-Type", "text/csv")
		err = core.WriteAuditCSV(r.Context(), w, s.audit, q)
	}

	// Headers are already sent, so streaming errors can only be logged
	if err != nil && r.Context().Err() == nil {
		logging.FromContext(r.Context()).Error("audit export failed",
			"format", format,
			"error", err,
		)
	}
}
