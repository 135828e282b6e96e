package core

import (
	"context"
	"errors"
	"fmt"
)

// accountRequest describes one sponsor or driver account to create.
type accountRequest struct {
	person       personInput
	kind         EntityKind // EntitySponsor or EntityDriver
	event        string
	auditDetails string
}

func (r accountRequest) role() Role {
	if r.kind == EntityDriver {
		return RoleDriver
	}
	return RoleSponsor
}

// rejectDuplicateEmail fails the record when the email is already in use.
// The second return is false when out should be returned as is.
func (s *session) rejectDuplicateEmail(ctx context.Context, rec Record, in personInput) (Outcome, bool) {
	exists, err := s.store.EmailExists(ctx, in.Email)
	if err != nil {
		return failed(rec, in.details(), fmt.Sprintf("Database error: %v", err)), false
	}
	if exists {
		return failed(rec, in.details(), fmt.Sprintf("Email already exists: %s", in.Email)), false
	}
	return Outcome{}, true
}

// createAccount commits the account, then the role record, and audits the
// creation. The two commits are separate: when the role record fails the
// account stays behind and is reported in the log.
func (s *session) createAccount(ctx context.Context, rec Record, req accountRequest) Outcome {
	in := req.person

	username, err := s.usernames.Generate(ctx, in.FirstName, in.LastName)
	if err != nil {
		if errors.Is(err, ErrEmptyUsernameSeed) {
			return failed(rec, in.details(), msgEmptyUsernameSeed)
		}
		return failed(rec, in.details(), fmt.Sprintf("Database error: %v", err))
	}

	password, hash, err := s.creds.Issue()
	if err != nil {
		return failed(rec, in.details(), fmt.Sprintf("Credential error: %v", err))
	}

	account, err := s.store.CreateAccount(ctx, NewAccount{
		Username:     username,
		Email:        in.Email,
		Role:         req.role(),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: hash,
	})
	if err != nil {
		s.logConflict(err, rec, "account")
		return failed(rec, in.details(), fmt.Sprintf("Database error: %v", err))
	}

	if req.kind == EntitySponsor {
		err = s.store.CreateSponsor(ctx, Sponsor{
			AccountID: account.ID,
			OrgName:   in.Org,
			Status:    SponsorStatusPending,
		})
	} else {
		err = s.store.CreateDriver(ctx, Driver{
			AccountID:     account.ID,
			LicenseNumber: LicensePending,
		})
	}
	if err != nil {
		s.logger.Warn("account created without role record",
			"line", rec.Line,
			"account_id", account.ID,
			"username", username,
			"role", req.role(),
			"error", err,
		)
		return failed(rec, in.details(), fmt.Sprintf("Database error: %v", err))
	}

	s.audit(ctx, req.event, req.auditDetails)

	return succeeded(rec, req.kind, in.details(),
		fmt.Sprintf("Username: %s, Password: %s", username, password))
}

// createOrganization creates an organization unless the name is taken.
func (s *session) createOrganization(ctx context.Context, rec Record, name string) Outcome {
	_, err := s.store.OrganizationByName(ctx, name)
	switch {
	case err == nil:
		return failed(rec, name, fmt.Sprintf("Organization already exists: %s", name))
	case !errors.Is(err, ErrNotFound):
		return failed(rec, name, fmt.Sprintf("Database error creating organization: %v", err))
	}

	org, err := s.store.CreateOrganization(ctx, name)
	if err != nil {
		s.logConflict(err, rec, "organization")
		return failed(rec, name, fmt.Sprintf("Database error creating organization: %v", err))
	}

	s.audit(ctx, EventOrganizationCreated, fmt.Sprintf("Created organization: %s (ID: %d)", org.Name, org.ID))

	return succeeded(rec, EntityOrganization, name,
		fmt.Sprintf("Organization \"%s\" created successfully (ID: %d)", org.Name, org.ID))
}

// logConflict notes unique violations that slipped past the pre-checks,
// which happens when two sessions create the same entity at once.
func (s *session) logConflict(err error, rec Record, entity string) {
	if errors.Is(err, ErrConflict) {
		s.logger.Warn("concurrent bulk load conflict",
			"line", rec.Line,
			"entity", entity,
			"error", err,
		)
	}
}
