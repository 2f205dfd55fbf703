package banking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Keda87/simple-banking-api/internal/audit"
	"github.com/Keda87/simple-banking-api/internal/shared"
)

// RepositoryPort abstracts account lookups and transactional ledger access.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	FindByOwner(ctx context.Context, customerID int64) (Account, error)
	FindByGUID(ctx context.Context, customerID int64, guid uuid.UUID) (Account, error)
	FindByAccountNumber(ctx context.Context, number string) (Account, error)
	LedgerTotals(ctx context.Context, accountID int64) (LedgerTotals, error)
	ListStatements(ctx context.Context, accountID int64, limit, offset int) ([]Statement, int, error)
}

// TxRepository exposes operations that run inside one database transaction.
type TxRepository interface {
	// LockAccounts row-locks the given accounts in ascending id order and
	// returns their current state keyed by id. Missing ids are omitted.
	LockAccounts(ctx context.Context, ids ...int64) (map[int64]Account, error)
	LedgerTotals(ctx context.Context, accountID int64) (LedgerTotals, error)
	InsertStatement(ctx context.Context, in StatementInput) (Statement, error)
	// SetActive updates the flag and reports whether it changed.
	SetActive(ctx context.Context, accountID int64, active bool) (bool, error)
}

// AuditPort receives ledger events. Emit must not block.
type AuditPort interface {
	Emit(ctx context.Context, event audit.Event)
}

// OperationObserver counts ledger outcomes.
type OperationObserver interface {
	ObserveOperation(kind, outcome string)
}

// Service coordinates deposits, withdrawals, transfers and account state.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	observer OperationObserver
	now      func() time.Time
}

// NewService constructs the ledger service. A nil audit port discards events.
func NewService(repo RepositoryPort, auditPort AuditPort) *Service {
	if auditPort == nil {
		auditPort = audit.Discard{}
	}
	return &Service{repo: repo, audit: auditPort, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithObserver attaches an outcome counter.
func (s *Service) WithObserver(observer OperationObserver) {
	s.observer = observer
}

// Deposit credits amount to the caller's account.
func (s *Service) Deposit(ctx context.Context, actor shared.Actor, amount decimal.Decimal) (Statement, error) {
	res, err := s.Execute(ctx, actor, DepositOp{Amount: amount})
	if err != nil {
		return Statement{}, err
	}
	return res.Primary(), nil
}

// Withdraw debits amount from the caller's account.
func (s *Service) Withdraw(ctx context.Context, actor shared.Actor, amount decimal.Decimal) (Statement, error) {
	res, err := s.Execute(ctx, actor, WithdrawOp{Amount: amount})
	if err != nil {
		return Statement{}, err
	}
	return res.Primary(), nil
}

// Transfer moves amount from the caller's account to destination and returns
// the sender debit and the receiver credit.
func (s *Service) Transfer(ctx context.Context, actor shared.Actor, destination string, amount decimal.Decimal) (Statement, Statement, error) {
	res, err := s.Execute(ctx, actor, TransferOp{DestinationAccountNumber: destination, Amount: amount})
	if err != nil {
		return Statement{}, Statement{}, err
	}
	return res.Statements[0], res.Statements[1], nil
}

// Execute runs op for actor. Every outcome the caller can act on, success or
// validation failure, is reported to the audit port once the database
// transaction has ended.
func (s *Service) Execute(ctx context.Context, actor shared.Actor, op Operation) (Result, error) {
	if op == nil {
		return Result{}, errors.New("banking: operation required")
	}
	var (
		res Result
		err error
	)
	switch o := op.(type) {
	case DepositOp:
		res, err = s.deposit(ctx, actor, o)
	case WithdrawOp:
		res, err = s.withdraw(ctx, actor, o)
	case TransferOp:
		res, err = s.transfer(ctx, actor, o)
	default:
		return Result{}, fmt.Errorf("banking: unsupported operation %T", op)
	}
	s.observe(op.Kind(), err)
	if message := auditMessage(op.Kind(), err); message != "" {
		s.audit.Emit(ctx, audit.NewEvent(actor.Email, message, op.Payload(), s.now()))
	}
	return res, err
}

func (s *Service) deposit(ctx context.Context, actor shared.Actor, op DepositOp) (Result, error) {
	if err := ValidateAmount(op.Amount); err != nil {
		return Result{}, err
	}
	owner, err := s.repo.FindByOwner(ctx, actor.CustomerID)
	if err != nil {
		return Result{}, err
	}
	var st Statement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.LockAccounts(ctx, owner.ID)
		if err != nil {
			return err
		}
		account, ok := locked[owner.ID]
		if !ok {
			return ErrAccountNotFound
		}
		if !account.IsActive {
			return accountInactive(FieldSender)
		}
		st, err = tx.InsertStatement(ctx, StatementInput{
			AccountID:   account.ID,
			SenderID:    account.CustomerID,
			ReceiverID:  account.CustomerID,
			Amount:      op.Amount,
			IsDebit:     false,
			Description: DescriptionDeposit,
		})
		return err
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: KindDeposit, Statements: []Statement{st}}, nil
}

func (s *Service) withdraw(ctx context.Context, actor shared.Actor, op WithdrawOp) (Result, error) {
	if err := ValidateAmount(op.Amount); err != nil {
		return Result{}, err
	}
	owner, err := s.repo.FindByOwner(ctx, actor.CustomerID)
	if err != nil {
		return Result{}, err
	}
	var st Statement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.LockAccounts(ctx, owner.ID)
		if err != nil {
			return err
		}
		account, ok := locked[owner.ID]
		if !ok {
			return ErrAccountNotFound
		}
		if !account.IsActive {
			return accountInactive(FieldSender)
		}
		totals, err := tx.LedgerTotals(ctx, account.ID)
		if err != nil {
			return err
		}
		if totals.Balance().LessThan(op.Amount) {
			return insufficientFunds()
		}
		st, err = tx.InsertStatement(ctx, StatementInput{
			AccountID:   account.ID,
			SenderID:    account.CustomerID,
			ReceiverID:  account.CustomerID,
			Amount:      op.Amount,
			IsDebit:     true,
			Description: DescriptionWithdrawn,
		})
		return err
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: KindWithdraw, Statements: []Statement{st}}, nil
}

func (s *Service) transfer(ctx context.Context, actor shared.Actor, op TransferOp) (Result, error) {
	if err := ValidateAmount(op.Amount); err != nil {
		return Result{}, err
	}
	owner, err := s.repo.FindByOwner(ctx, actor.CustomerID)
	if err != nil {
		return Result{}, err
	}
	if !IsAccountNumber(op.DestinationAccountNumber) {
		return Result{}, invalidDestination()
	}
	dest, err := s.repo.FindByAccountNumber(ctx, op.DestinationAccountNumber)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Result{}, invalidDestination()
		}
		return Result{}, err
	}
	if dest.ID == owner.ID {
		return Result{}, invalidDestination()
	}

	var debit, credit Statement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.LockAccounts(ctx, owner.ID, dest.ID)
		if err != nil {
			return err
		}
		to, ok := locked[dest.ID]
		if !ok {
			return invalidDestination()
		}
		from, ok := locked[owner.ID]
		if !ok {
			return ErrAccountNotFound
		}
		if !to.IsActive {
			return accountInactive(FieldReceiver)
		}
		if !from.IsActive {
			return accountInactive(FieldSender)
		}
		totals, err := tx.LedgerTotals(ctx, from.ID)
		if err != nil {
			return err
		}
		if totals.Balance().LessThan(op.Amount) {
			return insufficientFunds()
		}
		debit, err = tx.InsertStatement(ctx, StatementInput{
			AccountID:   from.ID,
			SenderID:    from.CustomerID,
			ReceiverID:  to.CustomerID,
			Amount:      op.Amount,
			IsDebit:     true,
			Description: DescriptionTransferred,
		})
		if err != nil {
			return err
		}
		credit, err = tx.InsertStatement(ctx, StatementInput{
			AccountID:   to.ID,
			SenderID:    from.CustomerID,
			ReceiverID:  to.CustomerID,
			Amount:      op.Amount,
			IsDebit:     false,
			Description: DescriptionReceived,
		})
		return err
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: KindTransfer, Statements: []Statement{debit, credit}}, nil
}

// Activate enables the caller's account identified by guid.
func (s *Service) Activate(ctx context.Context, actor shared.Actor, guid uuid.UUID) (Account, error) {
	return s.setActive(ctx, actor, guid, true)
}

// Deactivate disables the caller's account identified by guid.
func (s *Service) Deactivate(ctx context.Context, actor shared.Actor, guid uuid.UUID) (Account, error) {
	return s.setActive(ctx, actor, guid, false)
}

func (s *Service) setActive(ctx context.Context, actor shared.Actor, guid uuid.UUID, active bool) (Account, error) {
	account, err := s.repo.FindByGUID(ctx, actor.CustomerID, guid)
	if err != nil {
		return Account{}, err
	}
	var changed bool
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		changed, err = tx.SetActive(ctx, account.ID, active)
		return err
	})
	if err != nil {
		return Account{}, err
	}
	account.IsActive = active
	if changed {
		message := "Account deactivated."
		if active {
			message = "Account activated."
		}
		s.audit.Emit(ctx, audit.NewEvent(actor.Email, message, map[string]any{
			"guid":      guid.String(),
			"is_active": active,
		}, s.now()))
	}
	return account, nil
}

// GetBalance returns the caller's current balance.
func (s *Service) GetBalance(ctx context.Context, actor shared.Actor) (decimal.Decimal, error) {
	summary, err := s.Summary(ctx, actor)
	if err != nil {
		return decimal.Zero, err
	}
	return summary.Balance, nil
}

// Summary returns the caller's account with its balance.
func (s *Service) Summary(ctx context.Context, actor shared.Actor) (AccountSummary, error) {
	account, err := s.repo.FindByOwner(ctx, actor.CustomerID)
	if err != nil {
		return AccountSummary{}, err
	}
	totals, err := s.repo.LedgerTotals(ctx, account.ID)
	if err != nil {
		return AccountSummary{}, err
	}
	return AccountSummary{Account: account, Balance: totals.Balance()}, nil
}

// ListStatements pages through the statements of the caller's account
// identified by guid, newest first.
func (s *Service) ListStatements(ctx context.Context, actor shared.Actor, guid uuid.UUID, page, perPage int) ([]Statement, shared.Pagination, error) {
	account, err := s.repo.FindByGUID(ctx, actor.CustomerID, guid)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	page, perPage = shared.NormalizePage(page, perPage)
	paging := shared.NewPagination(page, perPage, 0)
	statements, total, err := s.repo.ListStatements(ctx, account.ID, paging.PerPage, paging.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return statements, shared.NewPagination(page, perPage, total), nil
}

func (s *Service) observe(kind OperationKind, err error) {
	if s.observer == nil {
		return
	}
	s.observer.ObserveOperation(string(kind), outcomeLabel(err))
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrAccountInactive):
		return "inactive"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInvalidDestination):
		return "invalid_destination"
	case errors.Is(err, ErrAccountNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// auditMessage returns the audit text for an outcome, or "" when the outcome
// is an infrastructure failure that is logged elsewhere.
func auditMessage(kind OperationKind, err error) string {
	switch kind {
	case KindDeposit:
		switch {
		case err == nil:
			return "Succeed to deposit funds."
		case errors.Is(err, ErrAccountInactive), errors.Is(err, ErrInvalidAmount):
			return "Failed to deposit funds."
		}
	case KindWithdraw:
		switch {
		case err == nil:
			return "Succeed to withdraw funds."
		case errors.Is(err, ErrInsufficientFunds):
			return "Amount to transfer is exceeded to be withdraw."
		case errors.Is(err, ErrAccountInactive), errors.Is(err, ErrInvalidAmount):
			return "Failed to withdraw funds."
		}
	case KindTransfer:
		switch {
		case err == nil:
			return "Transfer succeed."
		case errors.Is(err, ErrInvalidDestination):
			return "Failed to transfer, invalid destination account number."
		case errors.Is(err, ErrInsufficientFunds):
			return "Failed to transfer, amount to be transfer is exceeded."
		case errors.Is(err, ErrInvalidAmount):
			return "Failed to transfer, invalid amount."
		case errors.Is(err, ErrAccountInactive):
			field, _ := InactiveField(err)
			if field == FieldReceiver {
				return "Failed to transfer, receiver bank is inactive."
			}
			return "Failed to transfer, sender bank is inactive."
		}
	}
	return ""
}
