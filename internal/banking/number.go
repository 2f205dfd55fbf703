package banking

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
)

const (
	// AccountNumberAlphabet lists the symbols account numbers are drawn from.
	AccountNumberAlphabet = "0123456789ABCDEFGH"
	// AccountNumberLength is the fixed length of generated account numbers.
	AccountNumberLength = 13
	// DefaultNumberAttempts bounds retries on account number collisions.
	DefaultNumberAttempts = 5
)

var alphabetSize = big.NewInt(int64(len(AccountNumberAlphabet)))

// GenerateAccountNumber returns a random account number. Uniqueness is not
// guaranteed here; the store's unique constraint enforces it.
func GenerateAccountNumber() string {
	buf := make([]byte, AccountNumberLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			// crypto/rand does not fail on supported platforms.
			panic("banking: read random: " + err.Error())
		}
		buf[i] = AccountNumberAlphabet[n.Int64()]
	}
	return string(buf)
}

// IsAccountNumber reports whether s has the shape of a generated number.
func IsAccountNumber(s string) bool {
	if len(s) != AccountNumberLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'H') {
			return false
		}
	}
	return true
}

// AccountInserter persists a new account under a candidate number and returns
// ErrDuplicateAccountNumber on collision.
type AccountInserter interface {
	InsertAccount(ctx context.Context, customerID int64, number string) (Account, error)
}

// OpenAccount creates an inactive account for customerID, drawing a fresh
// number on every collision up to attempts times.
func OpenAccount(ctx context.Context, ins AccountInserter, customerID int64, attempts int, generate func() string) (Account, error) {
	if attempts <= 0 {
		attempts = DefaultNumberAttempts
	}
	if generate == nil {
		generate = GenerateAccountNumber
	}
	for i := 0; i < attempts; i++ {
		account, err := ins.InsertAccount(ctx, customerID, generate())
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, ErrDuplicateAccountNumber) {
			return Account{}, err
		}
	}
	return Account{}, ErrAccountNumberExhausted
}
