package customers

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Keda87/simple-banking-api/internal/banking"
	"github.com/Keda87/simple-banking-api/internal/platform/db"
)

// Repository persists customers in PostgreSQL.
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

const customerColumns = `id, guid, email, password_hash, first_name, last_name,
address, sex, identity_number, created_at, updated_at`

// WithTx executes fn inside a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("customers repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// EmailExists reports whether email is already registered.
func (r *Repository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (
    SELECT 1 FROM customers WHERE lower(email) = lower($1) AND NOT is_deleted
)`, email).Scan(&exists)
	return exists, err
}

// FindByID fetches a live customer.
func (r *Repository) FindByID(ctx context.Context, id int64) (Customer, error) {
	return scanCustomer(r.pool.QueryRow(ctx, `SELECT `+customerColumns+`
FROM customers WHERE id = $1 AND NOT is_deleted`, id))
}

func (r *txRepository) InsertCustomer(ctx context.Context, in NewCustomer) (Customer, error) {
	c, err := scanCustomer(r.tx.QueryRow(ctx, `INSERT INTO customers
    (email, password_hash, first_name, last_name, address, sex, identity_number)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING `+customerColumns,
		in.Email, in.PasswordHash, in.FirstName, in.LastName, in.Address, string(in.Sex), in.IdentityNumber))
	switch {
	case err == nil:
		return c, nil
	case db.IsUniqueViolation(err, "uq_customers_email"):
		return Customer{}, ErrUsernameTaken
	case db.IsUniqueViolation(err, "uq_customers_identity_number"):
		return Customer{}, ErrIdentityTaken
	}
	return Customer{}, fmt.Errorf("customers: insert customer: %w", err)
}

// InsertAccount skips on a number collision instead of raising, so the
// surrounding transaction stays usable for the next attempt.
func (r *txRepository) InsertAccount(ctx context.Context, customerID int64, number string) (banking.Account, error) {
	var a banking.Account
	err := r.tx.QueryRow(ctx, `INSERT INTO accounts (account_number, customer_id)
VALUES ($1, $2)
ON CONFLICT (account_number) DO NOTHING
RETURNING id, guid, account_number, customer_id, is_active, created_at, updated_at`,
		number, customerID).Scan(&a.ID, &a.GUID, &a.Number, &a.CustomerID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return banking.Account{}, banking.ErrDuplicateAccountNumber
		}
		return banking.Account{}, fmt.Errorf("customers: insert account: %w", err)
	}
	return a, nil
}

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	var sex string
	err := row.Scan(&c.ID, &c.GUID, &c.Email, &c.PasswordHash, &c.FirstName, &c.LastName,
		&c.Address, &sex, &c.IdentityNumber, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, ErrCustomerNotFound
		}
		return Customer{}, err
	}
	c.Sex = Sex(sex)
	return c, nil
}
