package users

import (
	"github.com/pkg/errors"

	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/bus"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/messaging"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/registry"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/session"
	"github.com/krew-solutions/ascetic-relay-go/modules/users/integrationevents"
)

const (
	PublishUserCreatedHandler = "users.publish-user-created"
	PublishUserUpdatedHandler = "users.publish-user-updated"
)

// RegisterOutboxHandlers contributes the users module's entries to the
// outbox registry. Integration events keep the id of the domain event they
// derive from, so receivers deduplicate redelivered publications.
func RegisterOutboxHandlers(b *registry.Builder, repo *PgRepository, publisher bus.EventPublisher) error {
	if err := registry.Type[UserCreated](b); err != nil {
		return err
	}
	if err := registry.Type[UserUpdated](b); err != nil {
		return err
	}
	if err := b.Register(UserCreatedType,
		bus.ForwardHandler(PublishUserCreatedHandler, publisher, userCreatedMapper(repo)),
	); err != nil {
		return err
	}
	return b.Register(UserUpdatedType,
		bus.ForwardHandler(PublishUserUpdatedHandler, publisher, userUpdatedMapper),
	)
}

func userCreatedMapper(repo *PgRepository) bus.Mapper {
	return func(s session.Session, event messaging.Event) (messaging.Event, error) {
		created, ok := event.(*UserCreated)
		if !ok {
			return nil, errors.Errorf("users: unexpected event %T", event)
		}
		db, ok := s.(session.DbSession)
		if !ok {
			return nil, session.ErrNotInTransaction
		}
		u, err := repo.Get(db, created.UserID)
		if err != nil {
			return nil, errors.Wrapf(err, "load user %s", created.UserID)
		}
		return &integrationevents.UserCreatedIntegrationEvent{
			ID:         created.ID,
			OccurredOn: created.OccurredOn,
			UserID:     u.ID(),
			Email:      u.Email(),
			FirstName:  u.FirstName(),
			LastName:   u.LastName(),
			Role:       u.Role(),
		}, nil
	}
}

func userUpdatedMapper(_ session.Session, event messaging.Event) (messaging.Event, error) {
	updated, ok := event.(*UserUpdated)
	if !ok {
		return nil, errors.Errorf("users: unexpected event %T", event)
	}
	return &integrationevents.UserUpdatedIntegrationEvent{
		ID:         updated.ID,
		OccurredOn: updated.OccurredOn,
		UserID:     updated.UserID,
		Email:      updated.Email,
		FirstName:  updated.FirstName,
		LastName:   updated.LastName,
		Role:       updated.Role,
	}, nil
}
