package core

// handlers.go interprets records per mode.
//
// Administrator documents name the organization on every S and D line.
// Sponsor documents never do: new accounts join the acting sponsor's
// organization, and the optional empty second field is skipped.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Outcome messages for records that cannot be interpreted.
const (
	msgInsufficientOrg           = "Insufficient data for organization record"
	msgInsufficientAdminSponsor  = "Insufficient data for sponsor record. Format: S|Organization|FirstName|LastName|Email"
	msgInsufficientAdminDriver   = "Insufficient data for driver record. Format: D|Organization|FirstName|LastName|Email"
	msgInsufficientSponsorSelf   = "Insufficient data for sponsor record. Format: S|FirstName|LastName|Email or S||FirstName|LastName|Email"
	msgInsufficientSponsorDriver = "Insufficient data for driver record. Format: D|FirstName|LastName|Email or D||FirstName|LastName|Email"
	msgSponsorNoOrganizations    = "Access denied: Sponsors cannot create organizations. Only administrators can create organizations."
	msgNotASponsor               = "Current user is not a valid sponsor"
	msgMissingFirstName          = "First name is required to derive a username"
	msgEmptyUsernameSeed         = "Cannot derive username from name"
)

// RecordError reports a record that cannot be interpreted in its mode.
// Reason is the operator-facing text recorded in the outcome.
type RecordError struct {
	Tag    string
	Reason string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("invalid %s record: %s", e.Tag, e.Reason)
}

func invalidRecord(rec Record, reason string) error {
	return &RecordError{Tag: rec.Tag, Reason: reason}
}

// reasonOf returns the outcome message for a parse error.
func reasonOf(err error) string {
	var re *RecordError
	if errors.As(err, &re) {
		return re.Reason
	}
	return err.Error()
}

// recordHandler turns one record into exactly one outcome.
type recordHandler func(ctx context.Context, s *session, rec Record) Outcome

// handlerSet maps record tags to handlers for one mode.
type handlerSet map[string]recordHandler

var handlerSets = map[Mode]handlerSet{
	ModeAdmin: {
		TagOrganization: adminOrganization,
		TagSponsor:      adminPerson(EntitySponsor),
		TagDriver:       adminPerson(EntityDriver),
	},
	ModeSponsor: {
		TagOrganization: sponsorOrganization,
		TagSponsor:      sponsorPerson(EntitySponsor),
		TagDriver:       sponsorPerson(EntityDriver),
	},
}

// dispatch routes rec to the handler for its tag in the session's mode.
func dispatch(ctx context.Context, s *session, rec Record) Outcome {
	h, ok := handlerSets[s.actor.Mode][rec.Tag]
	if !ok {
		return failed(rec, rec.RawFields(), unknownRecordType(rec.Tag))
	}
	return h(ctx, s, rec)
}

// personInput is the parsed content of an S or D record.
type personInput struct {
	Org       string // empty in sponsor mode
	FirstName string
	LastName  string
	Email     string
}

func (p personInput) details() string {
	return fmt.Sprintf("%s %s (%s)", p.FirstName, p.LastName, p.Email)
}

// checked fails records whose first name gives no initial for the username.
func (p personInput) checked(rec Record) (personInput, error) {
	if strings.TrimSpace(p.FirstName) == "" {
		return personInput{}, invalidRecord(rec, msgMissingFirstName)
	}
	return p, nil
}

func parseAdminOrganization(rec Record) (string, error) {
	if len(rec.Fields) < 2 || rec.Fields[1] == "" {
		return "", invalidRecord(rec, msgInsufficientOrg)
	}
	return rec.Fields[1], nil
}

func parseAdminPerson(rec Record) (personInput, error) {
	if len(rec.Fields) < 5 {
		if rec.Tag == TagDriver {
			return personInput{}, invalidRecord(rec, msgInsufficientAdminDriver)
		}
		return personInput{}, invalidRecord(rec, msgInsufficientAdminSponsor)
	}
	return personInput{
		Org:       rec.Fields[1],
		FirstName: rec.Fields[2],
		LastName:  rec.Fields[3],
		Email:     rec.Fields[4],
	}.checked(rec)
}

// parseSponsorPerson accepts tag|first|last|email or tag||first|last|email.
// With five or more fields the second is ignored whatever it holds.
func parseSponsorPerson(rec Record) (personInput, error) {
	switch {
	case len(rec.Fields) < 4:
		if rec.Tag == TagDriver {
			return personInput{}, invalidRecord(rec, msgInsufficientSponsorDriver)
		}
		return personInput{}, invalidRecord(rec, msgInsufficientSponsorSelf)
	case len(rec.Fields) == 4:
		return personInput{
			FirstName: rec.Fields[1],
			LastName:  rec.Fields[2],
			Email:     rec.Fields[3],
		}.checked(rec)
	default:
		return personInput{
			FirstName: rec.Fields[2],
			LastName:  rec.Fields[3],
			Email:     rec.Fields[4],
		}.checked(rec)
	}
}

// CheckRecord reports whether rec is well formed for mode without touching
// any store. It returns nil for records that would reach entity creation and
// a *RecordError for records that would fail before any lookup.
func CheckRecord(mode Mode, rec Record) error {
	switch mode {
	case ModeAdmin:
		switch rec.Tag {
		case TagOrganization:
			_, err := parseAdminOrganization(rec)
			return err
		case TagSponsor, TagDriver:
			_, err := parseAdminPerson(rec)
			return err
		}
	case ModeSponsor:
		switch rec.Tag {
		case TagOrganization:
			return invalidRecord(rec, msgSponsorNoOrganizations)
		case TagSponsor, TagDriver:
			_, err := parseSponsorPerson(rec)
			return err
		}
	default:
		return fmt.Errorf("invalid mode %q: must be admin or sponsor", mode)
	}
	return invalidRecord(rec, unknownRecordType(rec.Tag))
}

func unknownRecordType(tag string) string {
	return "Unknown record type: " + tag
}

// ----------------------------------------------------------------------------
// Administrator handlers
// ----------------------------------------------------------------------------

func adminOrganization(ctx context.Context, s *session, rec Record) Outcome {
	name, err := parseAdminOrganization(rec)
	if err != nil {
		return failed(rec, rec.RawFields(), reasonOf(err))
	}
	return s.createOrganization(ctx, rec, name)
}

func adminPerson(kind EntityKind) recordHandler {
	return func(ctx context.Context, s *session, rec Record) Outcome {
		in, err := parseAdminPerson(rec)
		if err != nil {
			return failed(rec, rec.RawFields(), reasonOf(err))
		}

		if out, ok := s.rejectDuplicateEmail(ctx, rec, in); !ok {
			return out
		}

		if _, err := s.store.OrganizationByName(ctx, in.Org); err != nil {
			if errors.Is(err, ErrNotFound) {
				return failed(rec, in.details(),
					fmt.Sprintf("Organization not found: %s. Please create the organization first using an O record.", in.Org))
			}
			return failed(rec, in.details(), fmt.Sprintf("Database error: %v", err))
		}

		req := accountRequest{person: in, kind: kind}
		if kind == EntitySponsor {
			req.event = EventSponsorCreated
			req.auditDetails = fmt.Sprintf("Created sponsor: %s %s, Org: %s", in.FirstName, in.LastName, in.Org)
		} else {
			req.event = EventDriverCreated
			req.auditDetails = fmt.Sprintf("Created driver: %s %s for organization: %s", in.FirstName, in.LastName, in.Org)
		}
		return s.createAccount(ctx, rec, req)
	}
}

// ----------------------------------------------------------------------------
// Sponsor handlers
// ----------------------------------------------------------------------------

func sponsorOrganization(_ context.Context, _ *session, rec Record) Outcome {
	return failed(rec, rec.RawFields(), msgSponsorNoOrganizations)
}

func sponsorPerson(kind EntityKind) recordHandler {
	return func(ctx context.Context, s *session, rec Record) Outcome {
		in, err := parseSponsorPerson(rec)
		if err != nil {
			return failed(rec, rec.RawFields(), reasonOf(err))
		}

		// The acting sponsor is resolved per record so a sponsor row removed
		// mid-session stops further creation.
		acting, err := s.store.SponsorByAccount(ctx, s.actor.AccountID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return failed(rec, in.details(), msgNotASponsor)
			}
			return failed(rec, in.details(), fmt.Sprintf("Database error: %v", err))
		}
		in.Org = acting.OrgName

		if out, ok := s.rejectDuplicateEmail(ctx, rec, in); !ok {
			return out
		}

		req := accountRequest{person: in, kind: kind}
		if kind == EntitySponsor {
			req.event = EventSponsorBySponsor
			req.auditDetails = fmt.Sprintf("Sponsor %s created new sponsor: %s %s, Org: %s",
				s.actor.Username, in.FirstName, in.LastName, in.Org)
		} else {
			req.event = EventDriverBySponsor
			req.auditDetails = fmt.Sprintf("Sponsor %s created driver: %s %s for organization: %s",
				s.actor.Username, in.FirstName, in.LastName, in.Org)
		}
		return s.createAccount(ctx, rec, req)
	}
}
