package notifications

import (
	"github.com/pkg/errors"

	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/registry"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/session"
	"github.com/krew-solutions/ascetic-relay-go/modules/users/integrationevents"
)

const SendWelcomeEmailHandler = "send-welcome-email"

// RegisterInboxHandlers contributes the notifications module's entries to
// the inbox registry.
func RegisterInboxHandlers(b *registry.Builder, sender EmailSender) error {
	return registry.Subscribe(b, SendWelcomeEmailHandler,
		func(s session.Session, e *integrationevents.UserCreatedIntegrationEvent) error {
			email := welcomeEmail(e.Email, e.FirstName, e.LastName)
			if err := sender.Send(s.Context(), email); err != nil {
				return errors.Wrapf(err, "welcome email to user %s", e.UserID)
			}
			return nil
		})
}
