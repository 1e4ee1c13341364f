package bus

import (
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/messaging"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/session"
)

// Mapper derives the integration event to publish. A nil event means
// nothing is published.
type Mapper func(s session.Session, event messaging.Event) (messaging.Event, error)

// ForwardHandler publishes what mapper derives from each event. Register it
// with an outbox relay so publishing happens after commit.
func ForwardHandler(name string, publisher EventPublisher, mapper Mapper) messaging.Handler {
	return messaging.NewHandler(name, func(s session.Session, event messaging.Event) error {
		integrationEvent, err := mapper(s, event)
		if err != nil {
			return err
		}
		if integrationEvent == nil {
			return nil
		}
		return publisher.Publish(s.Context(), integrationEvent)
	})
}
