package users

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"syreclabs.com/go/faker"

	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/capture"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/messaging"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/session"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/utils/testutils"
)

type appenderSpy struct {
	events []messaging.Event
}

func (a *appenderSpy) Append(_ session.DbSession, events ...messaging.Event) error {
	a.events = append(a.events, events...)
	return nil
}

func userRow(id uuid.UUID, email string) *testutils.RowsStub {
	return testutils.NewRowsStub([]any{id, "Ann", "Lee", email, RoleUser})
}

type fixture struct {
	stub     *testutils.DbSessionStub
	appender *appenderSpy
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	stub := testutils.NewDbSessionStub(nil)
	pool := testutils.NewSessionPoolStub(stub)
	appender := &appenderSpy{}
	t.Cleanup(capture.NewOutboxHook(appender, nil).Attach(pool).Dispose)
	return &fixture{
		stub:     stub,
		appender: appender,
		svc:      NewService(pool, NewPgRepository(""), nil),
	}
}

func TestRegisterUser(t *testing.T) {
	f := newFixture(t)
	email := faker.Internet().Email()

	id, err := f.svc.RegisterUser(context.Background(), Profile{
		FirstName: faker.Name().FirstName(),
		LastName:  faker.Name().LastName(),
		Email:     email,
	})

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	assert.Equal(t, 1, f.stub.Commits)
	assert.Contains(t, f.stub.ActualQuery, "INSERT INTO users")
	assert.Equal(t, id, f.stub.ActualParams[0])
	require.Len(t, f.appender.events, 1)
	assert.Equal(t, UserCreatedType, f.appender.events[0].EventType())
	assert.Equal(t, id, f.appender.events[0].(*UserCreated).UserID)
}

func TestRegisterUser_EmailTaken(t *testing.T) {
	f := newFixture(t)
	f.stub.Rows = userRow(uuid.New(), "ann@example.com")

	_, err := f.svc.RegisterUser(context.Background(), Profile{FirstName: "Ann", LastName: "Lee", Email: "ANN@example.com"})

	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.Equal(t, 0, f.stub.Commits)
	assert.Equal(t, 1, f.stub.Rollbacks)
	assert.Empty(t, f.appender.events)
	assert.Equal(t, "ann@example.com", f.stub.ActualParams[0])
}

func TestUpdateProfile_Service(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	f.stub.Responder = func(query string, _ []any) (*testutils.RowsStub, error) {
		if strings.HasPrefix(strings.TrimSpace(query), "SELECT") {
			return userRow(id, "ann@example.com"), nil
		}
		return testutils.NewRowsStub(), nil
	}

	err := f.svc.UpdateProfile(context.Background(), id, Profile{FirstName: "Anna", LastName: "Lee", Email: "anna@example.com"})

	require.NoError(t, err)
	assert.Contains(t, f.stub.ActualQuery, "UPDATE users")
	require.Len(t, f.appender.events, 1)
	updated := f.appender.events[0].(*UserUpdated)
	assert.Equal(t, "anna@example.com", updated.Email)
	assert.Equal(t, id, updated.UserID)
}

func TestUpdateProfile_UnknownUser(t *testing.T) {
	f := newFixture(t)

	err := f.svc.UpdateProfile(context.Background(), uuid.New(), Profile{Email: "x@example.com"})

	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Empty(t, f.appender.events)
}

func TestGetUser(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	f.stub.Rows = userRow(id, "ann@example.com")

	view, err := f.svc.GetUser(context.Background(), id)

	require.NoError(t, err)
	assert.Equal(t, UserView{ID: id, FirstName: "Ann", LastName: "Lee", Email: "ann@example.com", Role: RoleUser}, view)
}
