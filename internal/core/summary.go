package core

import "fmt"

// Outcome statuses.
const (
	StatusSuccess = "Success"
	StatusFailed  = "Failed"
)

// EntityKind identifies what a successful record created.
type EntityKind int

const (
	EntityNone EntityKind = iota
	EntityOrganization
	EntitySponsor
	EntityDriver
)

// Outcome is the per-line result of an ingestion session.
type Outcome struct {
	LineNum    int    `json:"line_num"`
	RecordType string `json:"record_type"`
	Status     string `json:"status"`
	Details    string `json:"details"`
	Message    string `json:"message"`

	created EntityKind
}

// Succeeded reports whether the outcome status is Success.
func (o Outcome) Succeeded() bool {
	return o.Status == StatusSuccess
}

func failed(rec Record, details, message string) Outcome {
	return Outcome{
		LineNum:    rec.Line,
		RecordType: rec.Tag,
		Status:     StatusFailed,
		Details:    details,
		Message:    message,
	}
}

func succeeded(rec Record, kind EntityKind, details, message string) Outcome {
	return Outcome{
		LineNum:    rec.Line,
		RecordType: rec.Tag,
		Status:     StatusSuccess,
		Details:    details,
		Message:    message,
		created:    kind,
	}
}

// Summary aggregates the outcomes of one ingestion session.
// It is the only accumulator in a session; handlers return outcomes and the
// orchestrator adds them here.
type Summary struct {
	SessionID            string    `json:"session_id"`
	Total                int       `json:"total"`
	Success              int       `json:"success"`
	Failed               int       `json:"failed"`
	OrganizationsCreated int       `json:"organizations_created"`
	SponsorsCreated      int       `json:"sponsors_created"`
	DriversCreated       int       `json:"drivers_created"`
	LogEntries           []Outcome `json:"log_entries"`
}

func newSummary(sessionID string) *Summary {
	return &Summary{
		SessionID:  sessionID,
		LogEntries: make([]Outcome, 0),
	}
}

// add records one outcome and updates every counter it affects.
func (s *Summary) add(o Outcome) {
	s.Total++
	s.LogEntries = append(s.LogEntries, o)

	if !o.Succeeded() {
		s.Failed++
		return
	}

	s.Success++
	switch o.created {
	case EntityOrganization:
		s.OrganizationsCreated++
	case EntitySponsor:
		s.SponsorsCreated++
	case EntityDriver:
		s.DriversCreated++
	}
}

// String returns the totals in the form used by completion audit events.
func (s *Summary) String() string {
	return fmt.Sprintf("Total: %d, Success: %d, Failed: %d, Organizations: %d, Sponsors: %d, Drivers: %d",
		s.Total, s.Success, s.Failed, s.OrganizationsCreated, s.SponsorsCreated, s.DriversCreated)
}
