package auth

// User is the login view of a customer.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	IsActive     bool
}
