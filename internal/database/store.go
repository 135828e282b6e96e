package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/TruckRewards/internal/core"
)

// PostgreSQL error codes the store classifies.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Pool is the subset of *pgxpool.Pool the store needs.
type Pool interface {
	core.DBTX
	TxBeginner
}

// Store implements core.Store on PostgreSQL. Lookups run on the pool and
// every mutation commits in its own transaction.
type Store struct {
	db Pool
}

var _ core.Store = (*Store)(nil)

// NewStore creates a store over a connection pool.
func NewStore(db Pool) *Store {
	return &Store{db: db}
}

// OrganizationByName looks up an organization by exact name.
func (s *Store) OrganizationByName(ctx context.Context, name string) (*core.Organization, error) {
	var org core.Organization
	err := s.db.QueryRow(ctx,
		"SELECT id, name, created_at FROM organizations WHERE name = $1", name,
	).Scan(&org.ID, &org.Name, &org.CreatedAt)
	if err != nil {
		return nil, classify("get organization", err)
	}
	return &org, nil
}

// CreateOrganization inserts a new organization.
func (s *Store) CreateOrganization(ctx context.Context, name string) (*core.Organization, error) {
	var org core.Organization
	err := WithTx(ctx, s.db, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx,
			"INSERT INTO organizations (name) VALUES ($1) RETURNING id, name, created_at", name,
		).Scan(&org.ID, &org.Name, &org.CreatedAt)
	})
	if err != nil {
		return nil, classify("create organization", err)
	}
	return &org, nil
}

// EmailExists reports whether any account uses email.
func (s *Store) EmailExists(ctx context.Context, email string) (bool, error) {
	return s.exists(ctx, "check email", "SELECT EXISTS(SELECT 1 FROM accounts WHERE email = $1)", email)
}

// UsernameExists reports whether any account uses username.
func (s *Store) UsernameExists(ctx context.Context, username string) (bool, error) {
	return s.exists(ctx, "check username", "SELECT EXISTS(SELECT 1 FROM accounts WHERE username = $1)", username)
}

func (s *Store) exists(ctx context.Context, op, query string, arg string) (bool, error) {
	var found bool
	if err := s.db.QueryRow(ctx, query, arg).Scan(&found); err != nil {
		return false, classify(op, err)
	}
	return found, nil
}

// CreateAccount inserts an active account.
func (s *Store) CreateAccount(ctx context.Context, params core.NewAccount) (*core.Account, error) {
	acct := core.Account{
		Username:     params.Username,
		Email:        params.Email,
		Role:         params.Role,
		FirstName:    params.FirstName,
		LastName:     params.LastName,
		PasswordHash: params.PasswordHash,
	}
	err := WithTx(ctx, s.db, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx,
			`INSERT INTO accounts (username, email, role, first_name, last_name, password_hash, is_active)
			 VALUES ($1, $2, $3, $4, $5, $6, TRUE)
			 RETURNING id, is_active, created_at`,
			params.Username, params.Email, string(params.Role), params.FirstName, params.LastName, params.PasswordHash,
		).Scan(&acct.ID, &acct.IsActive, &acct.CreatedAt)
	})
	if err != nil {
		return nil, classify("create account", err)
	}
	return &acct, nil
}

// AccountByUsername looks up an account by username.
func (s *Store) AccountByUsername(ctx context.Context, username string) (*core.Account, error) {
	var acct core.Account
	var role string
	err := s.db.QueryRow(ctx,
		`SELECT id, username, email, role, first_name, last_name, password_hash, is_active, created_at
		 FROM accounts WHERE username = $1`, username,
	).Scan(&acct.ID, &acct.Username, &acct.Email, &role, &acct.FirstName, &acct.LastName,
		&acct.PasswordHash, &acct.IsActive, &acct.CreatedAt)
	if err != nil {
		return nil, classify("get account", err)
	}
	acct.Role = core.Role(role)
	return &acct, nil
}

// SponsorByAccount returns the sponsor record for an account.
func (s *Store) SponsorByAccount(ctx context.Context, accountID int64) (*core.Sponsor, error) {
	var sp core.Sponsor
	err := s.db.QueryRow(ctx,
		"SELECT account_id, org_name, status FROM sponsors WHERE account_id = $1", accountID,
	).Scan(&sp.AccountID, &sp.OrgName, &sp.Status)
	if err != nil {
		return nil, classify("get sponsor", err)
	}
	return &sp, nil
}

// CreateSponsor inserts the sponsor role record.
func (s *Store) CreateSponsor(ctx context.Context, sponsor core.Sponsor) error {
	return classify("create sponsor", s.exec(ctx,
		"INSERT INTO sponsors (account_id, org_name, status) VALUES ($1, $2, $3)",
		sponsor.AccountID, sponsor.OrgName, sponsor.Status,
	))
}

// CreateDriver inserts the driver role record.
func (s *Store) CreateDriver(ctx context.Context, driver core.Driver) error {
	return classify("create driver", s.exec(ctx,
		"INSERT INTO drivers (account_id, license_number) VALUES ($1, $2)",
		driver.AccountID, driver.LicenseNumber,
	))
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	return WithTx(ctx, s.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, query, args...)
		return err
	})
}

// classify wraps err with op and maps driver errors onto the core sentinels.
// A nil err stays nil.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			if name := constraintName(pgErr); name != "" {
				return fmt.Errorf("%s: %w: %s", op, core.ErrConflict, name)
			}
			return fmt.Errorf("%s: %w", op, core.ErrConflict)
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: violates foreign key %s: %w", op, constraintName(pgErr), err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func constraintName(pgErr *pgconn.PgError) string {
	if name := strings.TrimSpace(pgErr.ConstraintName); name != "" {
		return name
	}
	return pgErr.TableName
}
