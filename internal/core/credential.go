package core

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// TemporaryPasswordLength is the length of issued temporary passwords.
const TemporaryPasswordLength = 10

// DefaultBcryptCost is used when no cost is configured.
const DefaultBcryptCost = 12

const passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CredentialIssuer creates temporary passwords for new accounts.
// Issue returns the plain password shown once to the operator and the hash
// stored on the account.
type CredentialIssuer interface {
	Issue() (plain string, hash string, err error)
}

// BcryptIssuer issues random alphanumeric passwords hashed with bcrypt.
type BcryptIssuer struct {
	Cost int
}

// NewBcryptIssuer returns an issuer using cost, or DefaultBcryptCost when cost
// is outside bcrypt's accepted range.
func NewBcryptIssuer(cost int) *BcryptIssuer {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &BcryptIssuer{Cost: cost}
}

// Issue implements CredentialIssuer.
func (b *BcryptIssuer) Issue() (string, string, error) {
	plain, err := GenerateTemporaryPassword(TemporaryPasswordLength)
	if err != nil {
		return "", "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plain), b.Cost)
	if err != nil {
		return "", "", fmt.Errorf("hash temporary password: %w", err)
	}

	return plain, string(hash), nil
}

// GenerateTemporaryPassword returns n characters drawn uniformly from
// [A-Za-z0-9] using crypto/rand.
func GenerateTemporaryPassword(n int) (string, error) {
	max := big.NewInt(int64(len(passwordAlphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate temporary password: %w", err)
		}
		out[i] = passwordAlphabet[idx.Int64()]
	}
	return string(out), nil
}
