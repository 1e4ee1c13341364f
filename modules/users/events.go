package users

import (
	"github.com/google/uuid"

	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/seedwork/domain/aggregate"
)

const (
	UserCreatedType = "users.user_created"
	UserUpdatedType = "users.user_updated"
)

type UserCreated struct {
	aggregate.DomainEventBase
	UserID uuid.UUID `json:"user_id"`
}

func (UserCreated) EventType() string {
	return UserCreatedType
}

type UserUpdated struct {
	aggregate.DomainEventBase
	UserID    uuid.UUID `json:"user_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
}

func (UserUpdated) EventType() string {
	return UserUpdatedType
}
