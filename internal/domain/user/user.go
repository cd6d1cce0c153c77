package user

import "context"

// User is a customer account. The order workflow only reads it.
type User struct {
	ID    int64
	Name  string
	Email string
}

// Repository provides lookups of customer accounts.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
}
