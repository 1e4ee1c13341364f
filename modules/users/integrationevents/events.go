// Package integrationevents holds the events the users module publishes to
// other services. Their shape is a public contract.
package integrationevents

import (
	"time"

	"github.com/google/uuid"
)

const (
	UserCreatedType = "users.integration.user_created"
	UserUpdatedType = "users.integration.user_updated"
)

type UserCreatedIntegrationEvent struct {
	ID         uuid.UUID `json:"id"`
	OccurredOn time.Time `json:"occurred_on"`
	UserID     uuid.UUID `json:"user_id"`
	Email      string    `json:"email"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Role       string    `json:"role"`
}

func (e UserCreatedIntegrationEvent) EventID() uuid.UUID    { return e.ID }
func (e UserCreatedIntegrationEvent) OccurredAt() time.Time { return e.OccurredOn }
func (UserCreatedIntegrationEvent) EventType() string       { return UserCreatedType }

type UserUpdatedIntegrationEvent struct {
	ID         uuid.UUID `json:"id"`
	OccurredOn time.Time `json:"occurred_on"`
	UserID     uuid.UUID `json:"user_id"`
	Email      string    `json:"email"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Role       string    `json:"role"`
}

func (e UserUpdatedIntegrationEvent) EventID() uuid.UUID    { return e.ID }
func (e UserUpdatedIntegrationEvent) OccurredAt() time.Time { return e.OccurredOn }
func (UserUpdatedIntegrationEvent) EventType() string       { return UserUpdatedType }
