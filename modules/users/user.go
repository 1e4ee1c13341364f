// Package users is the user registration and profile module. It owns the
// users table and raises the events other modules learn about users from.
package users

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/seedwork/domain/aggregate"
)

const RoleUser = "user"

var (
	ErrEmailRequired = errors.New("users: email is required")
	ErrUserNotFound  = errors.New("users: user not found")
	ErrEmailTaken    = errors.New("users: email is already registered")
)

type User struct {
	aggregate.EventiveEntity
	id        uuid.UUID
	firstName string
	lastName  string
	email     string
	role      string
}

// Register creates a user and raises UserCreated.
func Register(firstName, lastName, email string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, ErrEmailRequired
	}
	u := &User{
		id:        uuid.New(),
		firstName: firstName,
		lastName:  lastName,
		email:     email,
		role:      RoleUser,
	}
	u.AddDomainEvent(&UserCreated{DomainEventBase: aggregate.NewDomainEventBase(), UserID: u.id})
	return u, nil
}

// Restore rebuilds a persisted user without raising events.
func Restore(id uuid.UUID, firstName, lastName, email, role string) *User {
	return &User{id: id, firstName: firstName, lastName: lastName, email: email, role: role}
}

func (u *User) UpdateProfile(firstName, lastName, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return ErrEmailRequired
	}
	u.firstName = firstName
	u.lastName = lastName
	u.email = email
	u.AddDomainEvent(&UserUpdated{
		DomainEventBase: aggregate.NewDomainEventBase(),
		UserID:          u.id,
		FirstName:       firstName,
		LastName:        lastName,
		Email:           email,
		Role:            u.role,
	})
	return nil
}

func (u *User) ID() uuid.UUID {
	return u.id
}

func (u *User) FirstName() string {
	return u.firstName
}

func (u *User) LastName() string {
	return u.lastName
}

func (u *User) Email() string {
	return u.email
}

func (u *User) Role() string {
	return u.role
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
