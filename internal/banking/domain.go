// Package banking implements the account ledger: deposits, withdrawals and
// transfers recorded as append-only statements, with balances derived from
// the statements alone.
package banking

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Statement descriptions.
const (
	DescriptionDeposit     = "deposit"
	DescriptionWithdrawn   = "withdrawn"
	DescriptionTransferred = "transferred"
	DescriptionReceived    = "received"
)

// Account is a customer's bank account. The balance is never stored; see
// LedgerTotals.
type Account struct {
	ID         int64
	GUID       uuid.UUID
	Number     string
	CustomerID int64
	Holder     string
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Statement is one immutable ledger line. A credit increases the balance of
// AccountID, a debit decreases it.
type Statement struct {
	ID            int64
	AccountID     int64
	AccountNumber string
	SenderID      int64
	SenderName    string
	ReceiverID    int64
	ReceiverName  string
	Amount        decimal.Decimal
	IsDebit       bool
	Description   string
	CreatedAt     time.Time
	DeletedAt     *time.Time
}

// Status returns the human label used in statement listings.
func (s Statement) Status() string {
	if s.IsDebit {
		return "Debit"
	}
	return "Credit"
}

// StatementInput carries the columns of a statement to append.
type StatementInput struct {
	AccountID   int64
	SenderID    int64
	ReceiverID  int64
	Amount      decimal.Decimal
	IsDebit     bool
	Description string
}

// AccountSummary is an account together with its derived balance.
type AccountSummary struct {
	Account Account
	Balance decimal.Decimal
}
