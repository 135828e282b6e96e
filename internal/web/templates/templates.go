// Package templates renders the bulk loading and audit HTML pages as templ
// components. Every dynamic value passes through templ.EscapeString.
package templates

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/TruckRewards/internal/core"
)

const timeLayout = "2006-01-02 15:04:05"

// write copies parts to w, stopping at the first error.
func write(w io.Writer, parts ...string) error {
	for _, p := range parts {
		if _, err := io.WriteString(w, p); err != nil {
			return err
		}
	}
	return nil
}

var esc = templ.EscapeString[string]

// Layout wraps body in the shared page chrome.
func Layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := write(w,
			`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`,
			`<meta name="viewport" content="width=device-width, initial-scale=1">`,
			`<title>`, esc(title), ` | Truck Rewards</title></head><body>`,
			`<main class="container"><h1>`, esc(title), `</h1>`,
		); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		return write(w, `</main></body></html>`)
	})
}

// ErrorAlert renders an error message with its suggested action and code.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		if err := write(w, `<div class="alert alert-danger" role="alert"><p>`, esc(message), `</p>`); err != nil {
			return err
		}
		if action != "" {
			if err := write(w, `<p class="action">`, esc(action), `</p>`); err != nil {
				return err
			}
		}
		return write(w, `<small>Code: `, esc(code), `</small></div>`)
	})
}

// BulkLoadPageParams holds the data for the upload page.
type BulkLoadPageParams struct {
	Mode     core.Mode
	FileName string
	Summary  *core.Summary
}

// BulkLoadPage renders the upload form and, after a run, the session results.
func BulkLoadPage(p BulkLoadPageParams) templ.Component {
	title := "Bulk Loading"
	if p.Mode == core.ModeSponsor {
		title = "Sponsor Bulk Loading"
	}
	return Layout(title, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := write(w,
			`<form method="post" enctype="multipart/form-data">`,
			`<input type="file" name="file" accept=".txt" required>`,
			`<button type="submit">Upload</button>`,
			`<a href="/bulk-loading/template">Download template</a></form>`,
			formatHelp(p.Mode),
		); err != nil {
			return err
		}
		if p.Summary == nil {
			return nil
		}
		return summaryTable(p.FileName, p.Summary).Render(ctx, w)
	}))
}

func formatHelp(mode core.Mode) string {
	if mode == core.ModeSponsor {
		return `<p class="help">One record per line: <code>S|First|Last|email</code> or ` +
			`<code>D|First|Last|email</code>. An empty organization field (<code>D||First|Last|email</code>) ` +
			`is accepted and ignored; records are created in your organization.</p>`
	}
	return `<p class="help">One record per line: <code>O|Organization</code>, ` +
		`<code>S|Organization|First|Last|email</code> or <code>D|Organization|First|Last|email</code>.</p>`
}

func summaryTable(fileName string, s *core.Summary) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		if err := write(w,
			`<section class="results"><h2>Results</h2>`,
			`<p>Session `, esc(s.SessionID), fileLabel(fileName), `</p>`,
			`<p>`, esc(s.String()), `</p>`,
			`<table><thead><tr><th>Line</th><th>Type</th><th>Status</th><th>Details</th><th>Message</th></tr></thead><tbody>`,
		); err != nil {
			return err
		}
		for _, e := range s.LogEntries {
			class := "success"
			if !e.Succeeded() {
				class = "failed"
			}
			if err := write(w,
				`<tr class="`, class, `"><td>`, strconv.Itoa(e.LineNum), `</td><td>`, esc(e.RecordType),
				`</td><td>`, esc(e.Status), `</td><td>`, esc(e.Details), `</td><td>`, esc(e.Message), `</td></tr>`,
			); err != nil {
				return err
			}
		}
		return write(w, `</tbody></table></section>`)
	})
}

func fileLabel(fileName string) string {
	if fileName == "" {
		return ""
	}
	return " (" + esc(fileName) + ")"
}

// BulkLoadLogs renders the latest bulk load audit events.
func BulkLoadLogs(events []core.AuditEvent) templ.Component {
	return Layout("Bulk Loading Logs", eventTable(events))
}

func eventTable(events []core.AuditEvent) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		if len(events) == 0 {
			return write(w, `<p class="empty">No audit events found.</p>`)
		}
		if err := write(w, `<table><thead><tr><th>Time</th><th>Event</th><th>Details</th></tr></thead><tbody>`); err != nil {
			return err
		}
		for _, e := range events {
			if err := write(w,
				`<tr><td>`, esc(e.CreatedAt.Format(timeLayout)), `</td><td>`, esc(e.EventType),
				`</td><td>`, esc(e.Details), `</td></tr>`,
			); err != nil {
				return err
			}
		}
		return write(w, `</tbody></table>`)
	})
}

// AuditFilter echoes the filter form values back to the page.
type AuditFilter struct {
	Category  string
	StartDate string
	EndDate   string
}

// AuditLogViewParams holds the data for the audit log page.
type AuditLogViewParams struct {
	Filter     AuditFilter
	Categories []core.AuditCategory
	Events     []core.AuditEvent
	TotalCount int64
}

// AuditLogPage renders the full audit log page.
func AuditLogPage(p AuditLogViewParams) templ.Component {
	return Layout("Audit Logs", AuditLogPartial(p))
}

// AuditLogPartial renders the filter form and results without page chrome
// so HTMX requests can swap it in place.
func AuditLogPartial(p AuditLogViewParams) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := write(w,
			`<div id="audit-log"><form method="get" hx-get="/admin/audit-logs" hx-target="#audit-log" hx-swap="outerHTML">`,
			`<select name="event_type"><option value="">All events</option>`,
		); err != nil {
			return err
		}
		for _, c := range p.Categories {
			selected := ""
			if c.Key == p.Filter.Category {
				selected = " selected"
			}
			if err := write(w, `<option value="`, esc(c.Key), `"`, selected, `>`, esc(c.Title), `</option>`); err != nil {
				return err
			}
		}
		if err := write(w,
			`</select>`,
			`<input type="text" name="start" placeholder="MM/DD/YYYY" value="`, esc(p.Filter.StartDate), `">`,
			`<input type="text" name="end" placeholder="MM/DD/YYYY" value="`, esc(p.Filter.EndDate), `">`,
			`<button type="submit">Filter</button>`,
			`<a href="`, esc(exportURL(p.Filter, "csv")), `">Export CSV</a> `,
			`<a href="`, esc(exportURL(p.Filter, "xlsx")), `">Export Excel</a></form>`,
			fmt.Sprintf(`<p class="count">Showing %d of %d events</p>`, len(p.Events), p.TotalCount),
		); err != nil {
			return err
		}
		if err := eventTable(p.Events).Render(ctx, w); err != nil {
			return err
		}
		return write(w, `</div>`)
	})
}

func exportURL(f AuditFilter, format string) string {
	return "/admin/audit-logs/export?format=" + format +
		"&event_type=" + url.QueryEscape(f.Category) +
		"&start=" + url.QueryEscape(f.StartDate) +
		"&end=" + url.QueryEscape(f.EndDate)
}
