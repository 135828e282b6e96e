package core

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"
)

// Audit event types emitted by bulk loading.
const (
	EventOrganizationCreated = "organization_created_via_bulk_load"
	EventSponsorCreated      = "sponsor_created_via_bulk_load"
	EventDriverCreated       = "driver_created_via_bulk_load"
	EventSponsorBySponsor    = "sponsor_created_by_sponsor"
	EventDriverBySponsor     = "driver_created_by_sponsor"
	EventBulkLoadCompleted   = "bulk_load_completed"
	EventBulkLoadError       = "bulk_load_error"
	EventBulkLoadProcessed   = "bulk_load_processed"
	EventSponsorBulkLoad     = "sponsor_bulk_load_processed"

	// BulkLoadEventPrefix matches every per-line and session event.
	BulkLoadEventPrefix = "bulk_load"
)

// OutcomeEventType returns the per-line event type, e.g. bulk_load_s_success.
func OutcomeEventType(tag, status string) string {
	return fmt.Sprintf("bulk_load_%s_%s", strings.ToLower(tag), strings.ToLower(status))
}

// AuditEvent is a single audit log entry.
type AuditEvent struct {
	ID        string    `json:"id"`
	EventType string    `json:"event_type"`
	Details   string    `json:"details"`
	ActorID   int64     `json:"actor_id,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditLogParams contains parameters for creating an audit log entry.
// Empty IPAddress and UserAgent are filled from the request context.
type AuditLogParams struct {
	EventType string
	Details   string
	ActorID   int64
	IPAddress string
	UserAgent string
}

// ----------------------------------------------------------------------------
// Categories
// ----------------------------------------------------------------------------

// AuditCategory groups event types for the admin audit views.
type AuditCategory struct {
	Key        string
	Title      string
	EventTypes []string

	// MatchBulkLoad also matches any event type starting with or containing
	// "bulk_load", so new bulk load events appear without a code change.
	MatchBulkLoad bool
}

var auditCategories = map[string]AuditCategory{
	"login": {
		Key:   "login",
		Title: "Login Activity",
		EventTypes: []string{
			"LOGIN_EVENT", "LOGOUT_EVENT", "LOGIN SUCCESS", "LOGOUT",
			"RESET REQUEST", "RESET SUCCESS", "RESET",
		},
	},
	"driver_points": {
		Key:        "driver_points",
		Title:      "Driver Point Tracking",
		EventTypes: []string{"DRIVER_POINTS"},
	},
	"sales_by_sponsor": {
		Key:        "sales_by_sponsor",
		Title:      "Sales by Sponsor",
		EventTypes: []string{"SALES_BY_SPONSOR"},
	},
	"sales_by_driver": {
		Key:        "sales_by_driver",
		Title:      "Sales by Driver",
		EventTypes: []string{"SALES_BY_DRIVER"},
	},
	"invoices": {
		Key:        "invoices",
		Title:      "Invoices",
		EventTypes: []string{"INVOICE_EVENT"},
	},
	"bulk_load": {
		Key:   "bulk_load",
		Title: "Bulk Loading",
		EventTypes: []string{
			"bulk_load", EventBulkLoadProcessed, EventBulkLoadCompleted,
			"bulk_load_success", "bulk_load_failed",
			EventSponsorBulkLoad, EventDriverCreated, EventOrganizationCreated,
			"organization_reserved_via_bulk_load", EventSponsorCreated,
		},
		MatchBulkLoad: true,
	},
}

// LookupAuditCategory returns the category registered under key.
func LookupAuditCategory(key string) (AuditCategory, bool) {
	c, ok := auditCategories[strings.TrimSpace(key)]
	return c, ok
}

// AuditCategories returns all categories sorted by key.
func AuditCategories() []AuditCategory {
	out := make([]AuditCategory, 0, len(auditCategories))
	for _, c := range auditCategories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Matches reports whether eventType belongs to the category.
func (c AuditCategory) Matches(eventType string) bool {
	if slices.Contains(c.EventTypes, eventType) {
		return true
	}
	if !c.MatchBulkLoad {
		return false
	}
	lower := strings.ToLower(eventType)
	return strings.Contains(lower, BulkLoadEventPrefix)
}

// ----------------------------------------------------------------------------
// Query building
// ----------------------------------------------------------------------------

// AuditQuery filters audit log reads.
// End is exclusive; callers that accept calendar dates add one day.
type AuditQuery struct {
	Category    string
	EventPrefix string
	Start       time.Time
	End         time.Time
	Limit       int
	Offset      int
}

// whereBuilder accumulates numbered pgx placeholders and their arguments.
type whereBuilder struct {
	clauses []string
	args    []any
}

func (w *whereBuilder) add(format string, args ...any) {
	placeholders := make([]any, len(args))
	for i := range args {
		w.args = append(w.args, args[i])
		placeholders[i] = fmt.Sprintf("$%d", len(w.args))
	}
	w.clauses = append(w.clauses, fmt.Sprintf(format, placeholders...))
}

func (w *whereBuilder) nextArg() int {
	return len(w.args) + 1
}

func (w *whereBuilder) build() (string, []any) {
	if len(w.clauses) == 0 {
		return "", w.args
	}
	return " WHERE " + strings.Join(w.clauses, " AND "), w.args
}

// buildAuditWhere translates a query into a WHERE clause over audit_log columns.
// Unknown categories are rejected so a typo never widens an export to every row.
func buildAuditWhere(q AuditQuery) (*whereBuilder, error) {
	wb := &whereBuilder{}

	if q.Category != "" {
		cat, ok := LookupAuditCategory(q.Category)
		if !ok {
			return nil, fmt.Errorf("unknown audit category: %s", q.Category)
		}
		if cat.MatchBulkLoad {
			wb.add(`(event_type = ANY(%s) OR event_type ILIKE 'bulk\_load%%' OR event_type ILIKE '%%\_bulk\_load%%')`, cat.EventTypes)
		} else {
			wb.add("event_type = ANY(%s)", cat.EventTypes)
		}
	}
	if q.EventPrefix != "" {
		wb.add("event_type LIKE %s", escapeLike(q.EventPrefix)+"%")
	}
	if !q.Start.IsZero() {
		wb.add("created_at >= %s", q.Start)
	}
	if !q.End.IsZero() {
		wb.add("created_at < %s", q.End)
	}

	return wb, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// ParseAuditDate accepts MM/DD/YYYY or YYYY-MM-DD. Empty input returns the
// zero time with no error.
func ParseAuditDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{"01/02/2006", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q: use MM/DD/YYYY or YYYY-MM-DD", s)
}
