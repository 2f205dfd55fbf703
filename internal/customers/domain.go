// Package customers registers bank customers and opens their accounts.
package customers

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Keda87/simple-banking-api/internal/banking"
	"github.com/Keda87/simple-banking-api/internal/shared"
)

// Sex enumerates the values accepted for a customer's sex.
type Sex string

const (
	SexMale   Sex = "male"
	SexFemale Sex = "female"
)

// Customer is a registered bank customer. The email doubles as the login
// username.
type Customer struct {
	ID             int64
	GUID           uuid.UUID
	Email          string
	PasswordHash   string
	FirstName      string
	LastName       string
	Address        string
	Sex            Sex
	IdentityNumber string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FullName joins first and last name.
func (c Customer) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// RegisterInput is the sign-up payload.
type RegisterInput struct {
	FirstName      string `json:"first_name" validate:"required,max=150"`
	LastName       string `json:"last_name" validate:"max=150"`
	Email          string `json:"email" validate:"required,email,max=254"`
	Password       string `json:"password" validate:"required,min=8,max=72"`
	Address        string `json:"address" validate:"max=500"`
	Sex            Sex    `json:"sex" validate:"required,oneof=male female"`
	IdentityNumber string `json:"identity_number" validate:"required,numeric,max=20"`
}

// Payload returns the input as audit metadata. The password is included and
// redacted by the audit package.
func (in RegisterInput) Payload() map[string]any {
	return map[string]any{
		"first_name":      in.FirstName,
		"last_name":       in.LastName,
		"email":           in.Email,
		"password":        in.Password,
		"address":         in.Address,
		"sex":             string(in.Sex),
		"identity_number": in.IdentityNumber,
	}
}

// NewCustomer carries the columns of a customer row to insert.
type NewCustomer struct {
	Email          string
	PasswordHash   string
	FirstName      string
	LastName       string
	Address        string
	Sex            Sex
	IdentityNumber string
}

// Registration is the outcome of a successful sign-up.
type Registration struct {
	Customer Customer
	Account  banking.Account
}

var (
	// ErrUsernameTaken indicates the email is already registered.
	ErrUsernameTaken = errors.New("customers: username already taken")
	// ErrIdentityTaken indicates the identity number is already registered.
	ErrIdentityTaken = errors.New("customers: identity number already registered")
	// ErrCustomerNotFound indicates no customer matches.
	ErrCustomerNotFound = fmt.Errorf("customers: customer %w", shared.ErrNotFound)
)
