package banking

import "github.com/shopspring/decimal"

// OperationKind names a ledger operation.
type OperationKind string

const (
	// KindDeposit credits the caller's own account.
	KindDeposit OperationKind = "deposit"
	// KindWithdraw debits the caller's own account.
	KindWithdraw OperationKind = "withdraw"
	// KindTransfer moves funds to another account.
	KindTransfer OperationKind = "transfer"
)

// Operation is one of DepositOp, WithdrawOp or TransferOp.
type Operation interface {
	Kind() OperationKind
	// Payload is the request as the caller sent it, recorded in the audit trail.
	Payload() map[string]any
	sealed()
}

// DepositOp credits Amount to the caller's account.
type DepositOp struct {
	Amount decimal.Decimal
}

// WithdrawOp debits Amount from the caller's account.
type WithdrawOp struct {
	Amount decimal.Decimal
}

// TransferOp moves Amount from the caller's account to DestinationAccountNumber.
type TransferOp struct {
	DestinationAccountNumber string
	Amount                   decimal.Decimal
}

func (DepositOp) Kind() OperationKind  { return KindDeposit }
func (WithdrawOp) Kind() OperationKind { return KindWithdraw }
func (TransferOp) Kind() OperationKind { return KindTransfer }

func (o DepositOp) Payload() map[string]any {
	return map[string]any{FieldAmount: o.Amount.String()}
}

func (o WithdrawOp) Payload() map[string]any {
	return map[string]any{FieldAmount: o.Amount.String()}
}

func (o TransferOp) Payload() map[string]any {
	return map[string]any{
		FieldDestination: o.DestinationAccountNumber,
		FieldAmount:      o.Amount.String(),
	}
}

func (DepositOp) sealed()  {}
func (WithdrawOp) sealed() {}
func (TransferOp) sealed() {}

// MaxAmount is the largest value statements.amount NUMERIC(12,2) can hold.
var MaxAmount = decimal.RequireFromString("9999999999.99")

// ValidateAmount accepts strictly positive amounts with at most two decimal
// places that fit the statement column.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || amount.GreaterThan(MaxAmount) {
		return invalidAmount()
	}
	if !amount.Equal(amount.Truncate(2)) {
		return invalidAmount()
	}
	return nil
}

// Result lists the statements an operation appended. Deposits and
// withdrawals produce one; transfers produce the sender debit followed by the
// receiver credit.
type Result struct {
	Kind       OperationKind
	Statements []Statement
}

// Primary returns the statement on the caller's account.
func (r Result) Primary() Statement {
	if len(r.Statements) == 0 {
		return Statement{}
	}
	return r.Statements[0]
}
