package user

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Role discriminates the single User record. Role-specific data lives in
// optional detail structs instead of a type hierarchy.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleSeller   Role = "seller"
	RoleAdmin    Role = "admin"
)

// ErrNotFound is returned when a requested user does not exist.
var ErrNotFound = errors.New("user not found")

// User is a platform account: customer, seller or admin.
type User struct {
	ID        string
	Username  string
	Email     string
	Role      Role
	Seller    *SellerDetail
	CreatedAt time.Time
}

// SellerDetail holds the seller-specific fields of a User.
type SellerDetail struct {
	StoreName string
}

// Repository provides account lookups. FindByLogin resolves a username or
// an email address through a single query path.
type Repository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	FindByLogin(ctx context.Context, usernameOrEmail string) (*User, error)
}
