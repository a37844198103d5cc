package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"mybank/internal/domain"
)

const (
	minPasswordLength     = 6
	maxPasswordBytes      = 72
	temporaryPasswordSize = 12
	// No 0/O or 1/l/I so temporary passwords survive being read aloud.
	temporaryPasswordAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"
)

type PasswordHasher struct {
	cost int

	dummyOnce sync.Once
	dummyHash []byte
}

func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PasswordHasher{cost: cost}
}

func (h *PasswordHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (h *PasswordHasher) Matches(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Burn spends the same time as a real comparison. Used when the username is
// unknown so login latency does not reveal which usernames exist.
func (h *PasswordHasher) Burn(password string) {
	h.dummyOnce.Do(func() {
		h.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), h.cost)
	})
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(password))
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return domain.ErrWeakPassword.WithMessage("password must be at least %d characters", minPasswordLength)
	}
	// bcrypt rejects longer input.
	if len(password) > maxPasswordBytes {
		return domain.ErrWeakPassword.WithMessage("password must be at most %d bytes", maxPasswordBytes)
	}
	return nil
}

func generateTemporaryPassword() (string, error) {
	alphabet := big.NewInt(int64(len(temporaryPasswordAlphabet)))
	buf := make([]byte, temporaryPasswordSize)
	for i := range buf {
		n, err := rand.Int(rand.Reader, alphabet)
		if err != nil {
			return "", fmt.Errorf("generate temporary password: %w", err)
		}
		buf[i] = temporaryPasswordAlphabet[n.Int64()]
	}
	return string(buf), nil
}

var accountNumberSpace = big.NewInt(10_000_000_000)

func generateAccountNumber() (string, error) {
	n, err := rand.Int(rand.Reader, accountNumberSpace)
	if err != nil {
		return "", fmt.Errorf("generate account number: %w", err)
	}
	return fmt.Sprintf("ACCT-%010d", n.Int64()), nil
}
