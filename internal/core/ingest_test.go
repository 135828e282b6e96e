package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

var sessionStart = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func newTestIngestor(store *memStore, audit *memAudit, opts ...IngestorOption) *Ingestor {
	base := []IngestorOption{
		WithCredentialIssuer(fixedIssuer{plain: "Temp123456"}),
		WithClock(func() time.Time { return sessionStart }),
	}
	return NewIngestor(store, audit, append(base, opts...)...)
}

var adminActor = Actor{Mode: ModeAdmin, AccountID: 1, Username: "admin"}

func TestIngestor_AdminEndToEnd(t *testing.T) {
	store := newMemStore()
	audit := &memAudit{}
	ing := newTestIngestor(store, audit)

	doc := lines(
		"O|Acme",
		"",
		"S|Acme|Jane|Doe|jane@x.com",
		"   ",
		"D|Acme|John|Smith|john@x.com",
		"X|bogus",
	)

	summary, err := ing.Run(context.Background(), adminActor, doc)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if summary.SessionID != "20250314_092653" {
		t.Errorf("SessionID = %q, want 20250314_092653", summary.SessionID)
	}

	want := Summary{Total: 4, Success: 3, Failed: 1, OrganizationsCreated: 1, SponsorsCreated: 1, DriversCreated: 1}
	if summary.Total != want.Total || summary.Success != want.Success || summary.Failed != want.Failed ||
		summary.OrganizationsCreated != want.OrganizationsCreated ||
		summary.SponsorsCreated != want.SponsorsCreated || summary.DriversCreated != want.DriversCreated {
		t.Errorf("summary = %s, want %s", summary.String(), want.String())
	}
	if summary.Total != summary.Success+summary.Failed {
		t.Errorf("total %d != success %d + failed %d", summary.Total, summary.Success, summary.Failed)
	}

	entries := summary.LogEntries
	if len(entries) != 4 {
		t.Fatalf("len(LogEntries) = %d, want 4", len(entries))
	}

	tests := []struct {
		idx     int
		line    int
		typ     string
		status  string
		details string
		message string
	}{
		{0, 1, "O", StatusSuccess, "Acme", `Organization "Acme" created successfully (ID: 1)`},
		{1, 3, "S", StatusSuccess, "Jane Doe (jane@x.com)", "Username: jdoe, Password: Temp123456"},
		{2, 5, "D", StatusSuccess, "John Smith (john@x.com)", "Username: jsmith, Password: Temp123456"},
		{3, 6, "X", StatusFailed, `["X" "bogus"]`, "Unknown record type: X"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("line %d", tt.line), func(t *testing.T) {
			got := entries[tt.idx]
			if got.LineNum != tt.line {
				t.Errorf("LineNum = %d, want %d", got.LineNum, tt.line)
			}
			if got.RecordType != tt.typ {
				t.Errorf("RecordType = %q, want %q", got.RecordType, tt.typ)
			}
			if got.Status != tt.status {
				t.Errorf("Status = %q, want %q", got.Status, tt.status)
			}
			if got.Details != tt.details {
				t.Errorf("Details = %q, want %q", got.Details, tt.details)
			}
			if got.Message != tt.message {
				t.Errorf("Message = %q, want %q", got.Message, tt.message)
			}
		})
	}

	jane := store.accountByEmail("jane@x.com")
	if jane == nil || jane.Role != RoleSponsor {
		t.Fatalf("sponsor account not stored: %+v", jane)
	}
	if jane.PasswordHash != "hash:Temp123456" {
		t.Errorf("PasswordHash = %q, want issued hash", jane.PasswordHash)
	}
	if sp := store.sponsors[jane.ID]; sp.OrgName != "Acme" || sp.Status != SponsorStatusPending {
		t.Errorf("sponsor record = %+v, want Acme/Pending", sp)
	}
	john := store.accountByEmail("john@x.com")
	if d := store.drivers[john.ID]; d.LicenseNumber != LicensePending {
		t.Errorf("driver license = %q, want %q", d.LicenseNumber, LicensePending)
	}
}

func TestIngestor_AuditTrail(t *testing.T) {
	store := newMemStore()
	audit := &memAudit{}
	ing := newTestIngestor(store, audit)

	_, err := ing.Run(context.Background(), adminActor, lines("O|Acme", "S|Acme|Jane|Doe|jane@x.com", "D|Nowhere|A|B|c@x.com"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	wantTypes := []string{
		EventOrganizationCreated,
		"bulk_load_o_success",
		EventSponsorCreated,
		"bulk_load_s_success",
		"bulk_load_d_failed",
		EventBulkLoadCompleted,
	}
	got := audit.types()
	if strings.Join(got, ",") != strings.Join(wantTypes, ",") {
		t.Errorf("audit types = %v, want %v", got, wantTypes)
	}

	line := audit.find("bulk_load_s_success")[0]
	wantDetails := "Session: 20250314_092653, Line: 2, Type: S, Details: Jane Doe (jane@x.com), Message: Username: jdoe, Password: Temp123456"
	if line.Details != wantDetails {
		t.Errorf("outcome details = %q, want %q", line.Details, wantDetails)
	}
	if line.ActorID != adminActor.AccountID {
		t.Errorf("ActorID = %d, want %d", line.ActorID, adminActor.AccountID)
	}

	created := audit.find(EventSponsorCreated)[0]
	if created.Details != "Created sponsor: Jane Doe, Org: Acme" {
		t.Errorf("creation details = %q", created.Details)
	}
	org := audit.find(EventOrganizationCreated)[0]
	if org.Details != "Created organization: Acme (ID: 1)" {
		t.Errorf("organization details = %q", org.Details)
	}

	done := audit.find(EventBulkLoadCompleted)[0]
	wantDone := "Bulk load session 20250314_092653 completed. Total: 3, Success: 2, Failed: 1, Organizations: 1, Sponsors: 1, Drivers: 0"
	if done.Details != wantDone {
		t.Errorf("completion details = %q, want %q", done.Details, wantDone)
	}
}

func TestIngestor_AdminFailures(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		details string
		message string
	}{
		{
			name:    "organization arity",
			line:    "O",
			details: `["O"]`,
			message: "Insufficient data for organization record",
		},
		{
			name:    "sponsor arity",
			line:    "S|Acme|Jane|Doe",
			details: `["S" "Acme" "Jane" "Doe"]`,
			message: "Insufficient data for sponsor record. Format: S|Organization|FirstName|LastName|Email",
		},
		{
			name:    "driver arity",
			line:    "d|Acme|John",
			details: `["d" "Acme" "John"]`,
			message: "Insufficient data for driver record. Format: D|Organization|FirstName|LastName|Email",
		},
		{
			name:    "organization exists",
			line:    "O|Existing",
			details: "Existing",
			message: "Organization already exists: Existing",
		},
		{
			name:    "organization missing",
			line:    "S|Nowhere|Jane|Doe|jane@x.com",
			details: "Jane Doe (jane@x.com)",
			message: "Organization not found: Nowhere. Please create the organization first using an O record.",
		},
		{
			name:    "email taken",
			line:    "D|Existing|Old|Timer|taken@x.com",
			details: "Old Timer (taken@x.com)",
			message: "Email already exists: taken@x.com",
		},
		{
			name:    "empty first name",
			line:    "D|Existing||Smith|s@x.com",
			details: `["D" "Existing" "" "Smith" "s@x.com"]`,
			message: "First name is required to derive a username",
		},
		{
			name:    "name without letters",
			line:    "D|Existing|!!|??|new@x.com",
			details: "!! ?? (new@x.com)",
			message: "Cannot derive username from name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			store.seedSponsor("Existing", "taken", "taken@x.com")
			ing := newTestIngestor(store, &memAudit{})

			summary, err := ing.Run(context.Background(), adminActor, lines(tt.line))
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if summary.Total != 1 || summary.Failed != 1 {
				t.Fatalf("summary = %s, want one failure", summary)
			}
			got := summary.LogEntries[0]
			if got.Details != tt.details {
				t.Errorf("Details = %q, want %q", got.Details, tt.details)
			}
			if got.Message != tt.message {
				t.Errorf("Message = %q, want %q", got.Message, tt.message)
			}
		})
	}
}

func TestIngestor_ExtraFieldsIgnored(t *testing.T) {
	store := newMemStore()
	ing := newTestIngestor(store, &memAudit{})

	summary, err := ing.Run(context.Background(), adminActor, lines("O|Acme|ignored", "D|Acme|John|Smith|john@x.com|extra|more"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Success != 2 {
		t.Errorf("summary = %s, want 2 successes", summary)
	}
}

func TestIngestor_SponsorCannotCreateOrganizations(t *testing.T) {
	store := newMemStore()
	sponsorID := store.seedSponsor("Acme", "boss", "boss@x.com")
	ing := newTestIngestor(store, &memAudit{})

	actor := Actor{Mode: ModeSponsor, AccountID: sponsorID, Username: "boss"}
	summary, err := ing.Run(context.Background(), actor, lines("O|NewOrg", "o|Other"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if summary.Failed != 2 || summary.OrganizationsCreated != 0 {
		t.Errorf("summary = %s, want 2 failures and no organizations", summary)
	}
	for _, e := range summary.LogEntries {
		if e.Message != msgSponsorNoOrganizations {
			t.Errorf("Message = %q, want access denied", e.Message)
		}
	}
	if _, err := store.OrganizationByName(context.Background(), "NewOrg"); !errors.Is(err, ErrNotFound) {
		t.Errorf("organization was created in sponsor mode")
	}
}

func TestIngestor_SponsorRecordForms(t *testing.T) {
	tests := []struct {
		name string
		line string
		kind EntityKind
	}{
		{name: "driver four fields", line: "D|John|Smith|john@x.com", kind: EntityDriver},
		{name: "driver empty org field", line: "D||John|Smith|john@x.com", kind: EntityDriver},
		{name: "driver org field ignored", line: "D|Elsewhere|John|Smith|john@x.com", kind: EntityDriver},
		{name: "sponsor four fields", line: "S|John|Smith|john@x.com", kind: EntitySponsor},
		{name: "sponsor empty org field", line: "S||John|Smith|john@x.com", kind: EntitySponsor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			sponsorID := store.seedSponsor("Acme", "boss", "boss@x.com")
			audit := &memAudit{}
			ing := newTestIngestor(store, audit)

			actor := Actor{Mode: ModeSponsor, AccountID: sponsorID, Username: "boss"}
			summary, err := ing.Run(context.Background(), actor, lines(tt.line))
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if summary.Success != 1 {
				t.Fatalf("summary = %s, entries = %+v", summary, summary.LogEntries)
			}
			if got := summary.LogEntries[0].Details; got != "John Smith (john@x.com)" {
				t.Errorf("Details = %q", got)
			}

			john := store.accountByEmail("john@x.com")
			if tt.kind == EntityDriver {
				if _, ok := store.drivers[john.ID]; !ok {
					t.Error("driver record not created")
				}
				ev := audit.find(EventDriverBySponsor)
				if len(ev) != 1 || ev[0].Details != "Sponsor boss created driver: John Smith for organization: Acme" {
					t.Errorf("driver audit = %+v", ev)
				}
				return
			}
			if sp := store.sponsors[john.ID]; sp.OrgName != "Acme" {
				t.Errorf("sponsor org = %q, want acting sponsor's Acme", sp.OrgName)
			}
			ev := audit.find(EventSponsorBySponsor)
			if len(ev) != 1 || ev[0].Details != "Sponsor boss created new sponsor: John Smith, Org: Acme" {
				t.Errorf("sponsor audit = %+v", ev)
			}
		})
	}
}

func TestIngestor_SponsorFailures(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		validAct bool
		message  string
	}{
		{
			name:     "sponsor arity",
			line:     "S|Jane|Doe",
			validAct: true,
			message:  "Insufficient data for sponsor record. Format: S|FirstName|LastName|Email or S||FirstName|LastName|Email",
		},
		{
			name:     "driver arity",
			line:     "D|John",
			validAct: true,
			message:  "Insufficient data for driver record. Format: D|FirstName|LastName|Email or D||FirstName|LastName|Email",
		},
		{
			name:     "unknown tag",
			line:     "Z|a|b|c",
			validAct: true,
			message:  "Unknown record type: Z",
		},
		{
			name:     "actor is not a sponsor",
			line:     "D|John|Smith|john@x.com",
			validAct: false,
			message:  "Current user is not a valid sponsor",
		},
		{
			name:     "email taken",
			line:     "D|Boss|Again|boss@x.com",
			validAct: true,
			message:  "Email already exists: boss@x.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			sponsorID := store.seedSponsor("Acme", "boss", "boss@x.com")
			if !tt.validAct {
				sponsorID = 999
			}
			ing := newTestIngestor(store, &memAudit{})

			summary, err := ing.Run(context.Background(), Actor{Mode: ModeSponsor, AccountID: sponsorID, Username: "boss"}, lines(tt.line))
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if summary.Failed != 1 {
				t.Fatalf("summary = %s, want one failure", summary)
			}
			if got := summary.LogEntries[0].Message; got != tt.message {
				t.Errorf("Message = %q, want %q", got, tt.message)
			}
		})
	}
}

func TestIngestor_DuplicateEmailWithinSession(t *testing.T) {
	store := newMemStore()
	ing := newTestIngestor(store, &memAudit{})

	summary, err := ing.Run(context.Background(), adminActor, lines(
		"O|Acme",
		"D|Acme|John|Smith|john@x.com",
		"S|Acme|Johnny|Smith|john@x.com",
	))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if summary.LogEntries[1].Status != StatusSuccess {
		t.Errorf("first use of email failed: %+v", summary.LogEntries[1])
	}
	second := summary.LogEntries[2]
	if second.Status != StatusFailed || second.Message != "Email already exists: john@x.com" {
		t.Errorf("second use of email = %+v", second)
	}
}

func TestIngestor_UsernameCollisions(t *testing.T) {
	store := newMemStore()
	ing := newTestIngestor(store, &memAudit{})

	summary, err := ing.Run(context.Background(), adminActor, lines(
		"O|Acme",
		"D|Acme|Jane|Doe|jane1@x.com",
		"D|Acme|Jim|Doe|jim@x.com",
		"D|Acme|J.|D'oe|jd@x.com",
	))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{
		"Username: jdoe, Password: Temp123456",
		"Username: jdoe1, Password: Temp123456",
		"Username: jdoe2, Password: Temp123456",
	}
	for i, msg := range want {
		if got := summary.LogEntries[i+1].Message; got != msg {
			t.Errorf("entry %d message = %q, want %q", i+1, got, msg)
		}
	}
}

func TestIngestor_ReplayIsNotIdempotent(t *testing.T) {
	store := newMemStore()
	ing := newTestIngestor(store, &memAudit{})
	doc := []string{"O|Acme", "S|Acme|Jane|Doe|jane@x.com", "D|Acme|John|Smith|john@x.com"}

	first, err := ing.Run(context.Background(), adminActor, lines(doc...))
	if err != nil || first.Success != 3 {
		t.Fatalf("first run = %v, %v", first, err)
	}

	second, err := ing.Run(context.Background(), adminActor, lines(doc...))
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if second.Failed != 3 {
		t.Fatalf("second run = %s, want 3 failures", second)
	}
	wantMessages := []string{
		"Organization already exists: Acme",
		"Email already exists: jane@x.com",
		"Email already exists: john@x.com",
	}
	for i, msg := range wantMessages {
		if got := second.LogEntries[i].Message; got != msg {
			t.Errorf("entry %d message = %q, want %q", i, got, msg)
		}
	}
}

func TestIngestor_CommitsPerRecord(t *testing.T) {
	store := newMemStore()
	store.failCreateAccount = func(p NewAccount) error {
		if p.Email == "bad@x.com" {
			return errors.New("connection reset by peer")
		}
		return nil
	}
	ing := newTestIngestor(store, &memAudit{})

	summary, err := ing.Run(context.Background(), adminActor, lines(
		"O|Acme",
		"D|Acme|Good|One|good@x.com",
		"D|Acme|Bad|One|bad@x.com",
		"D|Acme|Good|Two|good2@x.com",
	))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if summary.Success != 3 || summary.Failed != 1 {
		t.Errorf("summary = %s, want 3 successes and 1 failure", summary)
	}
	if got := summary.LogEntries[2].Message; got != "Database error: connection reset by peer" {
		t.Errorf("Message = %q", got)
	}
	for _, email := range []string{"good@x.com", "good2@x.com"} {
		if store.accountByEmail(email) == nil {
			t.Errorf("%s was not committed", email)
		}
	}
}

func TestIngestor_OrphanedAccountOnRoleFailure(t *testing.T) {
	store := newMemStore()
	store.failCreateDriver = func(Driver) error { return errors.New("disk full") }
	ing := newTestIngestor(store, &memAudit{})

	summary, err := ing.Run(context.Background(), adminActor, lines("O|Acme", "D|Acme|John|Smith|john@x.com"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got := summary.LogEntries[1]
	if got.Status != StatusFailed || got.Message != "Database error: disk full" {
		t.Errorf("outcome = %+v", got)
	}
	if summary.DriversCreated != 0 {
		t.Errorf("DriversCreated = %d, want 0", summary.DriversCreated)
	}

	acct := store.accountByEmail("john@x.com")
	if acct == nil {
		t.Fatal("account commit was rolled back, want orphaned account kept")
	}
	if _, ok := store.drivers[acct.ID]; ok {
		t.Error("driver record exists after failure")
	}
}

func TestIngestor_CredentialFailure(t *testing.T) {
	store := newMemStore()
	ing := newTestIngestor(store, &memAudit{}, WithCredentialIssuer(fixedIssuer{err: errors.New("entropy exhausted")}))

	summary, err := ing.Run(context.Background(), adminActor, lines("O|Acme", "S|Acme|Jane|Doe|jane@x.com"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := summary.LogEntries[1].Message; got != "Credential error: entropy exhausted" {
		t.Errorf("Message = %q", got)
	}
	if store.accountByEmail("jane@x.com") != nil {
		t.Error("account created without credential")
	}
}

func TestIngestor_FatalReadError(t *testing.T) {
	store := newMemStore()
	audit := &memAudit{}
	ing := newTestIngestor(store, audit)

	readErr := errors.New("network stream closed")
	r := &failingReader{data: "O|Acme\nO|Beta\n", err: readErr}

	summary, err := ing.Run(context.Background(), adminActor, r)
	if !errors.Is(err, readErr) {
		t.Fatalf("Run() error = %v, want %v", err, readErr)
	}
	if summary != nil {
		t.Errorf("summary = %v, want nil on fatal error", summary)
	}

	for _, name := range []string{"Acme", "Beta"} {
		if _, err := store.OrganizationByName(context.Background(), name); err != nil {
			t.Errorf("%s not committed before fatal error", name)
		}
	}

	events := audit.find(EventBulkLoadError)
	if len(events) != 1 {
		t.Fatalf("bulk_load_error events = %d, want 1", len(events))
	}
	if !strings.HasPrefix(events[0].Details, "Bulk load session 20250314_092653 failed with error: ") {
		t.Errorf("error details = %q", events[0].Details)
	}
	if len(audit.find(EventBulkLoadCompleted)) != 0 {
		t.Error("completion event written for failed session")
	}
}

func TestIngestor_InvalidEncodingAbortsSession(t *testing.T) {
	store := newMemStore()
	audit := &memAudit{}
	ing := newTestIngestor(store, audit)

	summary, err := ing.Run(context.Background(), adminActor,
		lines("O|Acme", "D|Acme|John|Smith|jo\xffhn@x.com", "D|Acme|Jane|Doe|jane@x.com"))
	if !errors.Is(err, ErrInvalidEncoding) {
		t.Fatalf("Run() error = %v, want ErrInvalidEncoding", err)
	}
	if summary != nil {
		t.Errorf("summary = %v, want nil", summary)
	}

	store.mu.Lock()
	accounts := len(store.accounts)
	store.mu.Unlock()
	if accounts != 0 {
		t.Errorf("accounts = %d, want none stored after the bad line", accounts)
	}

	events := audit.find(EventBulkLoadError)
	if len(events) != 1 || !strings.Contains(events[0].Details, "line 2") {
		t.Errorf("bulk_load_error events = %v, want one naming line 2", events)
	}
}

func TestIngestor_LongLineIsARecord(t *testing.T) {
	ing := newTestIngestor(newMemStore(), &memAudit{})

	long := "O|" + strings.Repeat("A", 2<<20)
	summary, err := ing.Run(context.Background(), adminActor, lines("O|Acme", long, "O|Beta"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Total != 3 || summary.OrganizationsCreated != 3 {
		t.Errorf("summary = %s, want three organizations", summary)
	}
	if summary.LogEntries[1].LineNum != 2 {
		t.Errorf("long line reported on line %d, want 2", summary.LogEntries[1].LineNum)
	}
}

func TestIngestor_ContextCancelled(t *testing.T) {
	audit := &memAudit{}
	ing := newTestIngestor(newMemStore(), audit)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := ing.Run(ctx, adminActor, lines("O|Acme"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if summary != nil {
		t.Error("summary returned for cancelled session")
	}
	if len(audit.find(EventBulkLoadError)) != 1 {
		t.Error("cancelled session did not write bulk_load_error")
	}
}

func TestIngestor_AuditFailureDoesNotAbort(t *testing.T) {
	store := newMemStore()
	audit := &memAudit{fail: errors.New("audit table locked")}
	ing := newTestIngestor(store, audit)

	summary, err := ing.Run(context.Background(), adminActor, lines("O|Acme", "D|Acme|John|Smith|john@x.com"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Success != 2 {
		t.Errorf("summary = %s, want 2 successes", summary)
	}
}

func TestIngestor_EmptyDocument(t *testing.T) {
	audit := &memAudit{}
	ing := newTestIngestor(newMemStore(), audit)

	summary, err := ing.Run(context.Background(), adminActor, lines("", "  ", "\t"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Total != 0 || len(summary.LogEntries) != 0 {
		t.Errorf("summary = %s, want nothing processed", summary)
	}
	if got := audit.types(); len(got) != 1 || got[0] != EventBulkLoadCompleted {
		t.Errorf("audit types = %v, want only completion", got)
	}
}

func TestIngestor_InvalidActor(t *testing.T) {
	audit := &memAudit{}
	ing := newTestIngestor(newMemStore(), audit)

	tests := []struct {
		name  string
		actor Actor
	}{
		{name: "sponsor without account", actor: Actor{Mode: ModeSponsor}},
		{name: "unknown mode", actor: Actor{Mode: "driver", AccountID: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ing.Run(context.Background(), tt.actor, lines("O|Acme")); err == nil {
				t.Error("Run() error = nil, want actor validation error")
			}
		})
	}
	if len(audit.types()) != 0 {
		t.Errorf("audit events written for rejected actor: %v", audit.types())
	}
}

type countingRecorder struct {
	mu        sync.Mutex
	records   map[string]int
	sessions  map[string]int
	durations []time.Duration
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{records: map[string]int{}, sessions: map[string]int{}}
}

func (c *countingRecorder) ObserveRecord(_ Mode, tag, status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[tag+"/"+status]++
}

func (c *countingRecorder) ObserveSession(_ Mode, result string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[result]++
	c.durations = append(c.durations, d)
}

func (c *countingRecorder) count(result string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[result]
}

func TestIngestor_RecorderCounts(t *testing.T) {
	rec := newCountingRecorder()
	ing := newTestIngestor(newMemStore(), &memAudit{}, WithRecorder(rec), WithSessionLimiter(NewSessionLimiter(2, time.Second)))

	if _, err := ing.Run(context.Background(), adminActor, lines("O|Acme", "O|Acme", "Q")); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if rec.records["O/Success"] != 1 || rec.records["O/Failed"] != 1 || rec.records["Q/Failed"] != 1 {
		t.Errorf("record counts = %v", rec.records)
	}
	if rec.sessions[SessionResultCompleted] != 1 {
		t.Errorf("session counts = %v", rec.sessions)
	}
}

func TestIngestor_DurationFromClock(t *testing.T) {
	tests := []struct {
		name   string
		doc    io.Reader
		result string
	}{
		{name: "completed", doc: lines("O|Acme", "O|Beta"), result: SessionResultCompleted},
		{name: "failed", doc: &failingReader{data: "O|Acme\n", err: errors.New("reset")}, result: SessionResultFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tick := sessionStart
			clock := func() time.Time {
				now := tick
				tick = tick.Add(1500 * time.Millisecond)
				return now
			}
			rec := newCountingRecorder()
			ing := newTestIngestor(newMemStore(), &memAudit{}, WithRecorder(rec), WithClock(clock))

			_, _ = ing.Run(context.Background(), adminActor, tt.doc)

			if rec.count(tt.result) != 1 {
				t.Fatalf("sessions = %v, want one %s", rec.sessions, tt.result)
			}
			if len(rec.durations) != 1 || rec.durations[0] != 1500*time.Millisecond {
				t.Errorf("durations = %v, want [1.5s]", rec.durations)
			}
		})
	}
}

func TestCheckRecord(t *testing.T) {
	tests := []struct {
		name    string
		mode    Mode
		fields  []string
		wantErr string
	}{
		{name: "admin org ok", mode: ModeAdmin, fields: []string{"O", "Acme"}},
		{name: "admin org empty name", mode: ModeAdmin, fields: []string{"O", ""}, wantErr: msgInsufficientOrg},
		{name: "admin driver ok", mode: ModeAdmin, fields: []string{"D", "Acme", "J", "S", "j@x.com"}},
		{name: "admin driver short", mode: ModeAdmin, fields: []string{"D", "J", "S", "j@x.com"}, wantErr: msgInsufficientAdminDriver},
		{name: "sponsor org denied", mode: ModeSponsor, fields: []string{"O", "Acme"}, wantErr: msgSponsorNoOrganizations},
		{name: "sponsor driver four", mode: ModeSponsor, fields: []string{"D", "J", "S", "j@x.com"}},
		{name: "sponsor sponsor short", mode: ModeSponsor, fields: []string{"S", "J", "S"}, wantErr: msgInsufficientSponsorSelf},
		{name: "unknown tag", mode: ModeAdmin, fields: []string{"X"}, wantErr: "Unknown record type: X"},
		{name: "admin driver empty first name", mode: ModeAdmin, fields: []string{"D", "Acme", "", "S", "s@x.com"}, wantErr: msgMissingFirstName},
		{name: "sponsor sponsor blank first name", mode: ModeSponsor, fields: []string{"S", "", "  ", "S", "s@x.com"}, wantErr: msgMissingFirstName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Record{Line: 1, Tag: strings.ToUpper(tt.fields[0]), Fields: tt.fields}
			err := CheckRecord(tt.mode, rec)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("CheckRecord() error = %v, want nil", err)
				}
				return
			}
			var re *RecordError
			if !errors.As(err, &re) {
				t.Fatalf("CheckRecord() error = %v, want *RecordError", err)
			}
			if re.Reason != tt.wantErr {
				t.Errorf("Reason = %q, want %q", re.Reason, tt.wantErr)
			}
			if re.Tag != rec.Tag || !strings.HasPrefix(err.Error(), "invalid "+rec.Tag+" record: ") {
				t.Errorf("Error() = %q", err)
			}
		})
	}
}
