package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Sentinel errors shared by the store and the ingestor.
var (
	// ErrNotFound is returned by store lookups that match no row.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a unique-constraint violation raised at commit time,
	// typically two sessions racing for the same username or email.
	ErrConflict = errors.New("unique constraint conflict")
)

// Mode selects which handler set processes a bulk load document.
type Mode string

const (
	ModeAdmin   Mode = "admin"
	ModeSponsor Mode = "sponsor"
)

// ParseMode converts a user supplied mode string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeAdmin:
		return ModeAdmin, nil
	case ModeSponsor:
		return ModeSponsor, nil
	default:
		return "", fmt.Errorf("invalid mode %q: must be admin or sponsor", s)
	}
}

// Role is the account role tag.
type Role string

const (
	RoleAdministrator Role = "administrator"
	RoleSponsor       Role = "sponsor"
	RoleDriver        Role = "driver"
)

// Placeholder values written at creation time and corrected later.
const (
	SponsorStatusPending = "Pending"
	LicensePending       = "PENDING"
)

// Actor identifies who is running an ingestion session.
// Sponsor mode requires AccountID so the acting sponsor's organization can be resolved.
type Actor struct {
	Mode      Mode
	AccountID int64
	Username  string
}

// Validate checks that the actor can run a session in its mode.
func (a Actor) Validate() error {
	switch a.Mode {
	case ModeAdmin:
		return nil
	case ModeSponsor:
		if a.AccountID <= 0 {
			return errors.New("sponsor mode requires an acting account")
		}
		return nil
	default:
		return fmt.Errorf("invalid mode %q: must be admin or sponsor", a.Mode)
	}
}

// Organization is a sponsor organization.
type Organization struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// Account is a driver or sponsor login.
type Account struct {
	ID           int64
	Username     string
	Email        string
	Role         Role
	FirstName    string
	LastName     string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
}

// NewAccount contains the fields needed to insert an account.
type NewAccount struct {
	Username     string
	Email        string
	Role         Role
	FirstName    string
	LastName     string
	PasswordHash string
}

// Sponsor links a sponsor account to its organization.
type Sponsor struct {
	AccountID int64
	OrgName   string
	Status    string
}

// Driver links a driver account to its license number.
type Driver struct {
	AccountID     int64
	LicenseNumber string
}

// Store is the persistence contract the ingestor depends on.
// Every mutating call commits on its own; lookups return ErrNotFound when no
// row matches and unique violations wrap ErrConflict.
type Store interface {
	OrganizationByName(ctx context.Context, name string) (*Organization, error)
	CreateOrganization(ctx context.Context, name string) (*Organization, error)

	EmailExists(ctx context.Context, email string) (bool, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	CreateAccount(ctx context.Context, params NewAccount) (*Account, error)

	SponsorByAccount(ctx context.Context, accountID int64) (*Sponsor, error)
	CreateSponsor(ctx context.Context, sponsor Sponsor) error
	CreateDriver(ctx context.Context, driver Driver) error
}

// AuditSink receives audit events produced by ingestion.
type AuditSink interface {
	Log(ctx context.Context, params AuditLogParams) (*AuditEvent, error)
}
