package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/codec"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/messaging"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/seedwork/domain/aggregate"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/session"
)

type orderPlaced struct {
	aggregate.DomainEventBase
	OrderID string `json:"order_id"`
}

func (orderPlaced) EventType() string {
	return "orders.order_placed"
}

func noop(name string) messaging.Handler {
	return messaging.NewHandler(name, func(session.Session, messaging.Event) error { return nil })
}

func TestResolve_PreservesRegistrationOrder(t *testing.T) {
	b := NewBuilder(nil)
	require.NoError(t, b.Register("orders.order_placed", noop("a"), noop("b")))
	require.NoError(t, b.Register("orders.order_placed", noop("c")))
	r, err := b.Build()
	require.NoError(t, err)

	var names []string
	for _, h := range r.Resolve("orders.order_placed") {
		names = append(names, h.Name())
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
}

func TestResolve_UnknownTypeIsEmpty(t *testing.T) {
	r, err := NewBuilder(nil).Build()
	require.NoError(t, err)
	assert.Empty(t, r.Resolve("nothing.here"))
}

func TestBuilder_Validation(t *testing.T) {
	b := NewBuilder(nil)
	assert.ErrorIs(t, b.Register("", noop("a")), ErrEventTypeRequired)
	assert.ErrorIs(t, b.Register("t", nil), ErrHandlerRequired)
	assert.ErrorIs(t, b.Register("t", noop("")), ErrHandlerNameRequired)
	require.NoError(t, b.Register("t", noop("a")))
	assert.ErrorIs(t, b.Register("t", noop("a")), ErrHandlerAlreadyRegistered)
	require.NoError(t, b.Register("u", noop("a")))
	require.NoError(t, Type[orderPlaced](b))
	assert.ErrorIs(t, Type[orderPlaced](b), ErrTypeAlreadyRegistered)
}

func TestBuilder_FrozenAfterBuild(t *testing.T) {
	b := NewBuilder(nil)
	_, err := b.Build()
	require.NoError(t, err)

	assert.ErrorIs(t, b.Register("t", noop("a")), ErrRegistryFrozen)
	assert.ErrorIs(t, b.RegisterType("t", nil), ErrRegistryFrozen)
	assert.ErrorIs(t, b.Use(), ErrRegistryFrozen)
	_, err = b.Build()
	assert.ErrorIs(t, err, ErrRegistryFrozen)
}

func TestBuild_AppliesDecoratorsOutermostFirst(t *testing.T) {
	var trail []string
	trace := func(label string) messaging.Decorator {
		return func(inner messaging.Handler) messaging.Handler {
			return messaging.NewHandler(inner.Name(), func(s session.Session, e messaging.Event) error {
				trail = append(trail, label)
				return inner.Handle(s, e)
			})
		}
	}
	b := NewBuilder(nil)
	require.NoError(t, b.Use(trace("outer"), trace("inner")))
	require.NoError(t, b.Register("t", messaging.NewHandler("h", func(session.Session, messaging.Event) error {
		trail = append(trail, "handler")
		return nil
	})))
	r, err := b.Build()
	require.NoError(t, err)

	handlers := r.Resolve("t")
	require.Len(t, handlers, 1)
	assert.Equal(t, "h", handlers[0].Name())
	require.NoError(t, handlers[0].Handle(nil, &orderPlaced{}))
	assert.Equal(t, []string{"outer", "inner", "handler"}, trail)
}

func TestDecode(t *testing.T) {
	b := NewBuilder(codec.JsonCodec{})
	require.NoError(t, Type[orderPlaced](b))
	r, err := b.Build()
	require.NoError(t, err)

	in := &orderPlaced{DomainEventBase: aggregate.NewDomainEventBase(), OrderID: "o-1"}
	payload, err := codec.JsonCodec{}.Encode(in)
	require.NoError(t, err)

	out, err := r.Decode("orders.order_placed", payload)
	require.NoError(t, err)
	decoded, ok := out.(*orderPlaced)
	require.True(t, ok)
	assert.Equal(t, in.OrderID, decoded.OrderID)
	assert.Equal(t, in.ID, decoded.ID)
}

func TestDecode_Failures(t *testing.T) {
	b := NewBuilder(nil)
	require.NoError(t, Type[orderPlaced](b))
	r, err := b.Build()
	require.NoError(t, err)

	_, err = r.Decode("unknown", []byte(`{}`))
	var de *DeserializationError
	require.True(t, errors.As(err, &de))
	assert.ErrorIs(t, err, ErrUnknownEventType)

	_, err = r.Decode("orders.order_placed", []byte(`not json`))
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "orders.order_placed", de.EventType)
}

func TestSubscribe_Typed(t *testing.T) {
	b := NewBuilder(nil)
	var got []string
	require.NoError(t, Subscribe(b, "collect", func(s session.Session, e *orderPlaced) error {
		got = append(got, e.OrderID)
		return nil
	}))
	r, err := b.Build()
	require.NoError(t, err)

	handlers := r.Resolve("orders.order_placed")
	require.Len(t, handlers, 1)
	require.NoError(t, handlers[0].Handle(nil, &orderPlaced{OrderID: "p"}))
	require.NoError(t, handlers[0].Handle(nil, orderPlaced{OrderID: "v"}))
	assert.Equal(t, []string{"p", "v"}, got)

	_, err = r.Decode("orders.order_placed", []byte(`{"order_id":"x"}`))
	assert.NoError(t, err)
}
