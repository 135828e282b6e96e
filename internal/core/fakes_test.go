package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// memStore is an in-memory Store with the same uniqueness rules as the
// Postgres schema. Fail hooks inject errors per operation.
type memStore struct {
	mu sync.Mutex

	nextOrgID     int64
	nextAccountID int64

	orgs     map[string]*Organization
	accounts map[int64]*Account
	sponsors map[int64]Sponsor
	drivers  map[int64]Driver

	failCreateAccount func(NewAccount) error
	failCreateSponsor func(Sponsor) error
	failCreateDriver  func(Driver) error
	failEmailExists   func(string) error
}

func newMemStore() *memStore {
	return &memStore{
		orgs:     make(map[string]*Organization),
		accounts: make(map[int64]*Account),
		sponsors: make(map[int64]Sponsor),
		drivers:  make(map[int64]Driver),
	}
}

func (m *memStore) OrganizationByName(_ context.Context, name string) (*Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	org, ok := m.orgs[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *org
	return &cp, nil
}

func (m *memStore) CreateOrganization(_ context.Context, name string) (*Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orgs[name]; ok {
		return nil, ErrConflict
	}
	m.nextOrgID++
	org := &Organization{ID: m.nextOrgID, Name: name, CreatedAt: time.Now()}
	m.orgs[name] = org
	cp := *org
	return &cp, nil
}

func (m *memStore) EmailExists(_ context.Context, email string) (bool, error) {
	if m.failEmailExists != nil {
		if err := m.failEmailExists(email); err != nil {
			return false, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) UsernameExists(_ context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) CreateAccount(_ context.Context, p NewAccount) (*Account, error) {
	if m.failCreateAccount != nil {
		if err := m.failCreateAccount(p); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Email == p.Email || a.Username == p.Username {
			return nil, ErrConflict
		}
	}
	m.nextAccountID++
	a := &Account{
		ID:           m.nextAccountID,
		Username:     p.Username,
		Email:        p.Email,
		Role:         p.Role,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		PasswordHash: p.PasswordHash,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}
	m.accounts[a.ID] = a
	cp := *a
	return &cp, nil
}

func (m *memStore) SponsorByAccount(_ context.Context, accountID int64) (*Sponsor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sponsors[accountID]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *memStore) CreateSponsor(_ context.Context, s Sponsor) error {
	if m.failCreateSponsor != nil {
		if err := m.failCreateSponsor(s); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orgs[s.OrgName]; !ok {
		return errors.New("violates foreign key constraint \"sponsors_org_name_fkey\"")
	}
	m.sponsors[s.AccountID] = s
	return nil
}

func (m *memStore) CreateDriver(_ context.Context, d Driver) error {
	if m.failCreateDriver != nil {
		if err := m.failCreateDriver(d); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[d.AccountID] = d
	return nil
}

// seedSponsor adds an organization and a sponsor account in it, returning
// the account id.
func (m *memStore) seedSponsor(org, username, email string) int64 {
	if _, err := m.OrganizationByName(context.Background(), org); err != nil {
		_, _ = m.CreateOrganization(context.Background(), org)
	}
	a, _ := m.CreateAccount(context.Background(), NewAccount{
		Username: username,
		Email:    email,
		Role:     RoleSponsor,
	})
	_ = m.CreateSponsor(context.Background(), Sponsor{AccountID: a.ID, OrgName: org, Status: "Approved"})
	return a.ID
}

func (m *memStore) accountByEmail(email string) *Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Email == email {
			return a
		}
	}
	return nil
}

// memAudit collects audit events in order.
type memAudit struct {
	mu     sync.Mutex
	events []AuditLogParams
	fail   error
}

func (m *memAudit) Log(_ context.Context, p AuditLogParams) (*AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	m.events = append(m.events, p)
	return &AuditEvent{EventType: p.EventType, Details: p.Details, ActorID: p.ActorID}, nil
}

func (m *memAudit) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.EventType
	}
	return out
}

func (m *memAudit) find(eventType string) []AuditLogParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AuditLogParams
	for _, e := range m.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// fixedIssuer returns a predictable credential.
type fixedIssuer struct {
	plain string
	err   error
}

func (f fixedIssuer) Issue() (string, string, error) {
	if f.err != nil {
		return "", "", f.err
	}
	return f.plain, "hash:" + f.plain, nil
}

// failingReader returns data then err.
type failingReader struct {
	data string
	err  error
	done bool
}

func (f *failingReader) Read(p []byte) (int, error) {
	if f.done {
		return 0, f.err
	}
	f.done = true
	return copy(p, f.data), nil
}

func lines(ls ...string) *strings.Reader {
	return strings.NewReader(strings.Join(ls, "\n"))
}
