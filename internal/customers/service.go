package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Keda87/simple-banking-api/internal/audit"
	"github.com/Keda87/simple-banking-api/internal/banking"
	"github.com/Keda87/simple-banking-api/internal/shared"
)

const (
	msgRegisterFailed  = "Failed to register customer"
	msgRegisterSucceed = "Success to register customer"
)

// RepositoryPort abstracts customer persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	EmailExists(ctx context.Context, email string) (bool, error)
	FindByID(ctx context.Context, id int64) (Customer, error)
}

// TxRepository exposes the writes of a registration transaction.
type TxRepository interface {
	banking.AccountInserter
	InsertCustomer(ctx context.Context, in NewCustomer) (Customer, error)
}

// AuditPort receives registration events.
type AuditPort interface {
	Emit(ctx context.Context, event audit.Event)
}

// Service registers customers.
type Service struct {
	repo           RepositoryPort
	audit          AuditPort
	numberAttempts int
	hashCost       int
	newNumber      func() string
	now            func() time.Time
}

// NewService constructs a Service. numberAttempts bounds account number
// retries; zero selects the default.
func NewService(repo RepositoryPort, auditPort AuditPort, numberAttempts int) *Service {
	if auditPort == nil {
		auditPort = audit.Discard{}
	}
	return &Service{
		repo:           repo,
		audit:          auditPort,
		numberAttempts: numberAttempts,
		hashCost:       bcrypt.DefaultCost,
		newNumber:      banking.GenerateAccountNumber,
		now:            time.Now,
	}
}

// WithHashCost overrides the bcrypt cost, mainly to keep tests fast.
func (s *Service) WithHashCost(cost int) {
	if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
		s.hashCost = cost
	}
}

// WithNumberGenerator overrides the account number source for testing.
func (s *Service) WithNumberGenerator(fn func() string) {
	if fn != nil {
		s.newNumber = fn
	}
}

// Register creates the customer and an inactive account in one transaction.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Registration, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)

	reg, err := s.register(ctx, in)
	if err != nil {
		var verr *shared.ValidationError
		if errors.As(err, &verr) {
			s.audit.Emit(ctx, audit.NewEvent(in.Email, msgRegisterFailed, in.Payload(), s.now()))
		}
		return Registration{}, err
	}
	s.audit.Emit(ctx, audit.NewEvent(in.Email, msgRegisterSucceed, in.Payload(), s.now()))
	return reg, nil
}

func (s *Service) register(ctx context.Context, in RegisterInput) (Registration, error) {
	exists, err := s.repo.EmailExists(ctx, in.Email)
	if err != nil {
		return Registration{}, err
	}
	if exists {
		return Registration{}, usernameTaken()
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return Registration{}, fmt.Errorf("customers: hash password: %w", err)
	}

	var reg Registration
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		customer, err := tx.InsertCustomer(ctx, NewCustomer{
			Email:          in.Email,
			PasswordHash:   string(hash),
			FirstName:      in.FirstName,
			LastName:       in.LastName,
			Address:        in.Address,
			Sex:            in.Sex,
			IdentityNumber: in.IdentityNumber,
		})
		if err != nil {
			switch {
			case errors.Is(err, ErrUsernameTaken):
				return usernameTaken()
			case errors.Is(err, ErrIdentityTaken):
				return shared.NewValidationError("identity_number", "Customer with this identity number already exists.", ErrIdentityTaken)
			}
			return err
		}
		account, err := banking.OpenAccount(ctx, tx, customer.ID, s.numberAttempts, s.newNumber)
		if err != nil {
			return err
		}
		account.Holder = customer.FullName()
		reg = Registration{Customer: customer, Account: account}
		return nil
	})
	if err != nil {
		return Registration{}, err
	}
	return reg, nil
}

// Get returns the customer with id.
func (s *Service) Get(ctx context.Context, id int64) (Customer, error) {
	return s.repo.FindByID(ctx, id)
}

// Actor resolves the audit identity of customer id. It backs the session
// middleware.
func (s *Service) Actor(ctx context.Context, id int64) (shared.Actor, error) {
	customer, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return shared.Actor{}, err
	}
	return shared.Actor{CustomerID: customer.ID, Email: customer.Email}, nil
}

func usernameTaken() error {
	return shared.NewValidationError("username", "This username is already taken.", ErrUsernameTaken)
}
