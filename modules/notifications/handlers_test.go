package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"syreclabs.com/go/faker"

	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/codec"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/registry"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/utils/testutils"
	"github.com/krew-solutions/ascetic-relay-go/modules/users/integrationevents"
)

type senderSpy struct {
	sent []Email
	err  error
}

func (s *senderSpy) Send(_ context.Context, email Email) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, email)
	return nil
}

func buildInboxRegistry(t *testing.T, sender EmailSender) *registry.Registry {
	t.Helper()
	b := registry.NewBuilder(codec.JsonCodec{})
	require.NoError(t, RegisterInboxHandlers(b, sender))
	reg, err := b.Build()
	require.NoError(t, err)
	return reg
}

func userCreated() *integrationevents.UserCreatedIntegrationEvent {
	return &integrationevents.UserCreatedIntegrationEvent{
		ID:         uuid.New(),
		OccurredOn: time.Now().UTC(),
		UserID:     uuid.New(),
		Email:      faker.Internet().Email(),
		FirstName:  faker.Name().FirstName(),
		LastName:   faker.Name().LastName(),
		Role:       "user",
	}
}

func TestSendWelcomeEmail(t *testing.T) {
	sender := &senderSpy{}
	reg := buildInboxRegistry(t, sender)
	event := userCreated()
	payload, err := codec.JsonCodec{}.Encode(event)
	require.NoError(t, err)

	decoded, err := reg.Decode(integrationevents.UserCreatedType, payload)
	require.NoError(t, err)
	handlers := reg.Resolve(integrationevents.UserCreatedType)
	require.Len(t, handlers, 1)
	assert.Equal(t, SendWelcomeEmailHandler, handlers[0].Name())

	require.NoError(t, handlers[0].Handle(testutils.NewDbSessionStub(nil), decoded))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, event.Email, sender.sent[0].To)
	assert.Contains(t, sender.sent[0].Body, event.FirstName)
}

func TestSendWelcomeEmail_Failure(t *testing.T) {
	sender := &senderSpy{err: errors.New("smtp down")}
	reg := buildInboxRegistry(t, sender)

	err := reg.Resolve(integrationevents.UserCreatedType)[0].Handle(testutils.NewDbSessionStub(nil), userCreated())

	assert.ErrorIs(t, err, sender.err)
}

func TestLogEmailSender(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sender := NewLogEmailSender(zap.New(core))

	require.NoError(t, sender.Send(context.Background(), welcomeEmail("ann@example.com", "Ann", "Lee")))

	entries := logs.FilterMessage("email sent").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "ann@example.com", entries[0].ContextMap()["to"])
}
