package banking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Keda87/simple-banking-api/internal/platform/db"
)

// Repository persists accounts and statements in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const accountColumns = `a.id, a.guid, a.account_number, a.customer_id,
TRIM(c.first_name || ' ' || c.last_name), a.is_active, a.created_at, a.updated_at`

const accountFrom = `FROM accounts a JOIN customers c ON c.id = a.customer_id`

// WithTx executes fn within a READ COMMITTED transaction; writers are
// serialised through LockAccounts.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("banking repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// FindByOwner returns the account owned by customerID.
func (r *Repository) FindByOwner(ctx context.Context, customerID int64) (Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` `+accountFrom+`
WHERE a.customer_id = $1 AND NOT a.is_deleted`, customerID))
}

// FindByGUID returns the account identified by guid if customerID owns it.
func (r *Repository) FindByGUID(ctx context.Context, customerID int64, guid uuid.UUID) (Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` `+accountFrom+`
WHERE a.guid = $1 AND a.customer_id = $2 AND NOT a.is_deleted`, guid, customerID))
}

// FindByAccountNumber returns the account with the given number.
func (r *Repository) FindByAccountNumber(ctx context.Context, number string) (Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` `+accountFrom+`
WHERE a.account_number = $1 AND NOT a.is_deleted`, number))
}

// LedgerTotals aggregates the committed statements of an account.
func (r *Repository) LedgerTotals(ctx context.Context, accountID int64) (LedgerTotals, error) {
	return ledgerTotals(ctx, r.pool, accountID)
}

// ListStatements returns one page of statements, newest first, and the total count.
func (r *Repository) ListStatements(ctx context.Context, accountID int64, limit, offset int) ([]Statement, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM statements WHERE account_id = $1 AND NOT is_deleted`, accountID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+statementColumns+`
FROM statements st `+statementJoins+`
WHERE st.account_id = $1 AND NOT st.is_deleted
ORDER BY st.created_at DESC, st.id DESC
LIMIT $2 OFFSET $3`, accountID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var statements []Statement
	for rows.Next() {
		st, err := scanStatement(rows)
		if err != nil {
			return nil, 0, err
		}
		statements = append(statements, st)
	}
	return statements, total, rows.Err()
}

// LockAccounts takes row locks in ascending id order so that concurrent
// transfers touching the same pair cannot deadlock.
func (r *txRepository) LockAccounts(ctx context.Context, ids ...int64) (map[int64]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT a.id, a.guid, a.account_number, a.customer_id, a.is_active, a.created_at, a.updated_at
FROM accounts a
WHERE a.id = ANY($1) AND NOT a.is_deleted
ORDER BY a.id
FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	locked := make(map[int64]Account, len(ids))
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.GUID, &a.Number, &a.CustomerID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		locked[a.ID] = a
	}
	return locked, rows.Err()
}

func (r *txRepository) LedgerTotals(ctx context.Context, accountID int64) (LedgerTotals, error) {
	return ledgerTotals(ctx, r.tx, accountID)
}

func (r *txRepository) InsertStatement(ctx context.Context, in StatementInput) (Statement, error) {
	row := r.tx.QueryRow(ctx, `WITH st AS (
    INSERT INTO statements (account_id, sender_id, receiver_id, amount, is_debit, description)
    VALUES ($1, $2, $3, $4::numeric, $5, $6)
    RETURNING id, account_id, sender_id, receiver_id, amount, is_debit, description, created_at, deleted_at
)
SELECT `+statementColumns+`
FROM st `+statementJoins, in.AccountID, in.SenderID, in.ReceiverID, in.Amount.StringFixed(2), in.IsDebit, in.Description)
	st, err := scanStatement(row)
	if err != nil {
		return Statement{}, fmt.Errorf("banking: insert statement: %w", err)
	}
	return st, nil
}

func (r *txRepository) SetActive(ctx context.Context, accountID int64, active bool) (bool, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE accounts SET is_active = $2, updated_at = NOW()
WHERE id = $1 AND is_active <> $2`, accountID, active)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

const statementColumns = `st.id, st.account_id, a.account_number,
st.sender_id, TRIM(s.first_name || ' ' || s.last_name),
st.receiver_id, TRIM(rc.first_name || ' ' || rc.last_name),
st.amount::text, st.is_debit, st.description, st.created_at, st.deleted_at`

const statementJoins = `JOIN accounts a ON a.id = st.account_id
JOIN customers s ON s.id = st.sender_id
JOIN customers rc ON rc.id = st.receiver_id`

func ledgerTotals(ctx context.Context, q querier, accountID int64) (LedgerTotals, error) {
	var credits, debits string
	err := q.QueryRow(ctx, `SELECT
    COALESCE(SUM(amount) FILTER (WHERE NOT is_debit), 0)::text,
    COALESCE(SUM(amount) FILTER (WHERE is_debit), 0)::text
FROM statements
WHERE account_id = $1 AND NOT is_deleted`, accountID).Scan(&credits, &debits)
	if err != nil {
		return LedgerTotals{}, err
	}
	totals := LedgerTotals{}
	if totals.Credits, err = decimal.NewFromString(credits); err != nil {
		return LedgerTotals{}, fmt.Errorf("banking: parse credits: %w", err)
	}
	if totals.Debits, err = decimal.NewFromString(debits); err != nil {
		return LedgerTotals{}, fmt.Errorf("banking: parse debits: %w", err)
	}
	return totals, nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.GUID, &a.Number, &a.CustomerID, &a.Holder, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func scanStatement(row pgx.Row) (Statement, error) {
	var st Statement
	var amount string
	err := row.Scan(&st.ID, &st.AccountID, &st.AccountNumber,
		&st.SenderID, &st.SenderName,
		&st.ReceiverID, &st.ReceiverName,
		&amount, &st.IsDebit, &st.Description, &st.CreatedAt, &st.DeletedAt)
	if err != nil {
		return Statement{}, err
	}
	if st.Amount, err = decimal.NewFromString(amount); err != nil {
		return Statement{}, fmt.Errorf("banking: parse amount: %w", err)
	}
	return st, nil
}
