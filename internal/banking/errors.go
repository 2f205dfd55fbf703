package banking

import (
	"errors"
	"fmt"

	"github.com/Keda87/simple-banking-api/internal/shared"
)

// Request fields that validation failures are attributed to.
const (
	FieldSender      = "sender"
	FieldReceiver    = "receiver"
	FieldAmount      = "amount"
	FieldDestination = "destination_account_number"
)

const (
	msgAccountInactive    = "Bank account is blocked or inactive."
	msgInsufficientFunds  = "Insufficient funds."
	msgInvalidDestination = "Invalid account number."
	msgInvalidAmount      = "Ensure amount is greater than 0 with no more than 2 decimal places."
)

var (
	// ErrAccountNotFound indicates the account does not exist or is not visible to the caller.
	ErrAccountNotFound = fmt.Errorf("banking: account %w", shared.ErrNotFound)
	// ErrAccountInactive indicates a participating account is deactivated.
	ErrAccountInactive = errors.New("banking: account inactive")
	// ErrInsufficientFunds indicates the sender balance is below the amount.
	ErrInsufficientFunds = errors.New("banking: insufficient funds")
	// ErrInvalidDestination indicates the transfer target cannot receive funds.
	ErrInvalidDestination = errors.New("banking: invalid destination account")
	// ErrInvalidAmount indicates a non-positive amount or one finer than cents.
	ErrInvalidAmount = errors.New("banking: invalid amount")
	// ErrDuplicateAccountNumber indicates a generated number collided with an existing one.
	ErrDuplicateAccountNumber = errors.New("banking: duplicate account number")
	// ErrAccountNumberExhausted indicates every generation attempt collided.
	ErrAccountNumberExhausted = errors.New("banking: no unique account number after retries")
)

func accountInactive(field string) error {
	return shared.NewValidationError(field, msgAccountInactive, ErrAccountInactive)
}

func insufficientFunds() error {
	return shared.NewValidationError(FieldAmount, msgInsufficientFunds, ErrInsufficientFunds)
}

func invalidDestination() error {
	return shared.NewValidationError(FieldDestination, msgInvalidDestination, ErrInvalidDestination)
}

func invalidAmount() error {
	return shared.NewValidationError(FieldAmount, msgInvalidAmount, ErrInvalidAmount)
}

// InactiveField returns which party ("sender" or "receiver") failed the
// activation check, if err is an inactive-account failure.
func InactiveField(err error) (string, bool) {
	var verr *shared.ValidationError
	if errors.As(err, &verr) && errors.Is(verr.Err, ErrAccountInactive) {
		return verr.Field, true
	}
	return "", false
}
