package core

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"unicode"
)

// ErrEmptyUsernameSeed is returned when a name contains no letters or digits
// to build a username from.
var ErrEmptyUsernameSeed = errors.New("cannot derive username from name")

// Username generation limits.
const (
	// MaxUsernameCounter is the highest numeric suffix tried before falling
	// back to random suffixes. With the bare seed that makes 100 sequential
	// candidates.
	MaxUsernameCounter = 99

	randomSuffixMin = 1000
	randomSuffixMax = 9999
)

// UsernameChecker reports whether a username is already taken.
type UsernameChecker interface {
	UsernameExists(ctx context.Context, username string) (bool, error)
}

// UsernameGenerator derives unique usernames from first and last names.
//
// The seed is the first initial plus the last name, lower-cased, with every
// rune that is not a letter or digit removed. If the seed is taken, seed1
// through seed99 are tried in order, then seed plus a random four digit
// suffix until a free name is found.
//
// The check and the later insert are not atomic. The accounts table carries a
// unique constraint on username so a lost race surfaces as ErrConflict.
type UsernameGenerator struct {
	checker UsernameChecker
	intN    func(n int) int
}

// NewUsernameGenerator creates a generator backed by checker.
// intN returns a value in [0, n); nil uses math/rand/v2.
func NewUsernameGenerator(checker UsernameChecker, intN func(n int) int) *UsernameGenerator {
	if intN == nil {
		intN = rand.IntN
	}
	return &UsernameGenerator{checker: checker, intN: intN}
}

// UsernameSeed returns the deterministic first candidate for a name.
func UsernameSeed(first, last string) string {
	var b strings.Builder
	for _, r := range first {
		b.WriteRune(r)
		break
	}
	b.WriteString(last)

	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, b.String())
}

// Generate returns the first free username for the name.
func (g *UsernameGenerator) Generate(ctx context.Context, first, last string) (string, error) {
	seed := UsernameSeed(first, last)
	if seed == "" {
		return "", ErrEmptyUsernameSeed
	}

	free, err := g.isFree(ctx, seed)
	if err != nil {
		return "", err
	}
	if free {
		return seed, nil
	}

	for i := 1; i <= MaxUsernameCounter; i++ {
		candidate := fmt.Sprintf("%s%d", seed, i)
		free, err := g.isFree(ctx, candidate)
		if err != nil {
			return "", err
		}
		if free {
			return candidate, nil
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		suffix := randomSuffixMin + g.intN(randomSuffixMax-randomSuffixMin+1)
		candidate := fmt.Sprintf("%s%d", seed, suffix)
		free, err := g.isFree(ctx, candidate)
		if err != nil {
			return "", err
		}
		if free {
			return candidate, nil
		}
	}
}

func (g *UsernameGenerator) isFree(ctx context.Context, username string) (bool, error) {
	taken, err := g.checker.UsernameExists(ctx, username)
	if err != nil {
		return false, fmt.Errorf("check username %q: %w", username, err)
	}
	return !taken, nil
}
