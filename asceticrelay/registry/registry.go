package registry

import (
	"github.com/pkg/errors"

	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/codec"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/messaging"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/session"
)

// Factory returns a fresh pointer to decode a payload into.
type Factory func() messaging.Event

// Builder is the static registration table. Modules add their entries at
// startup, then Build freezes it into a Registry.
type Builder struct {
	codec      codec.Codec
	handlers   map[string][]messaging.Handler
	factories  map[string]Factory
	decorators []messaging.Decorator
	frozen     bool
}

func NewBuilder(c codec.Codec) *Builder {
	if c == nil {
		c = codec.JsonCodec{}
	}
	return &Builder{
		codec:     c,
		handlers:  make(map[string][]messaging.Handler),
		factories: make(map[string]Factory),
	}
}

// Use adds decorators applied to every handler at Build, outermost first.
func (b *Builder) Use(decorators ...messaging.Decorator) error {
	if b.frozen {
		return ErrRegistryFrozen
	}
	b.decorators = append(b.decorators, decorators...)
	return nil
}

// Register appends handlers for eventType. Registration order is dispatch order.
func (b *Builder) Register(eventType string, handlers ...messaging.Handler) error {
	if b.frozen {
		return ErrRegistryFrozen
	}
	if eventType == "" {
		return ErrEventTypeRequired
	}
	for _, h := range handlers {
		if h == nil {
			return ErrHandlerRequired
		}
		if h.Name() == "" {
			return ErrHandlerNameRequired
		}
		for _, existing := range b.handlers[eventType] {
			if existing.Name() == h.Name() {
				return errors.Wrapf(ErrHandlerAlreadyRegistered, "%s for %s", h.Name(), eventType)
			}
		}
		b.handlers[eventType] = append(b.handlers[eventType], h)
	}
	return nil
}

// RegisterType declares how to instantiate payloads tagged eventType.
func (b *Builder) RegisterType(eventType string, factory Factory) error {
	if b.frozen {
		return ErrRegistryFrozen
	}
	if eventType == "" {
		return ErrEventTypeRequired
	}
	if _, ok := b.factories[eventType]; ok {
		return errors.Wrap(ErrTypeAlreadyRegistered, eventType)
	}
	b.factories[eventType] = factory
	return nil
}

// Build freezes the builder. The returned Registry never changes.
func (b *Builder) Build() (*Registry, error) {
	if b.frozen {
		return nil, ErrRegistryFrozen
	}
	b.frozen = true

	handlers := make(map[string][]messaging.Handler, len(b.handlers))
	for eventType, hs := range b.handlers {
		wrapped := make([]messaging.Handler, len(hs))
		for i, h := range hs {
			wrapped[i] = decorate(h, b.decorators)
		}
		handlers[eventType] = wrapped
	}
	factories := make(map[string]Factory, len(b.factories))
	for eventType, f := range b.factories {
		factories[eventType] = f
	}
	return &Registry{codec: b.codec, handlers: handlers, factories: factories}, nil
}

func decorate(h messaging.Handler, decorators []messaging.Decorator) messaging.Handler {
	for i := len(decorators) - 1; i >= 0; i-- {
		h = decorators[i](h)
	}
	return h
}

// Registry is immutable and safe for concurrent use.
type Registry struct {
	codec     codec.Codec
	handlers  map[string][]messaging.Handler
	factories map[string]Factory
}

// Resolve returns the ordered handlers of eventType. An unknown type yields
// an empty list. The slice must not be modified.
func (r *Registry) Resolve(eventType string) []messaging.Handler {
	return r.handlers[eventType]
}

// Decode instantiates the factory registered for eventType and decodes
// payload into it. Failures are *DeserializationError.
func (r *Registry) Decode(eventType string, payload []byte) (messaging.Event, error) {
	factory, ok := r.factories[eventType]
	if !ok {
		return nil, &DeserializationError{EventType: eventType, Err: ErrUnknownEventType}
	}
	event := factory()
	if err := r.codec.Decode(payload, event); err != nil {
		return nil, &DeserializationError{EventType: eventType, Err: err}
	}
	return event, nil
}

// EventTypes lists the tags that have at least one handler.
func (r *Registry) EventTypes() []string {
	result := make([]string, 0, len(r.handlers))
	for eventType := range r.handlers {
		result = append(result, eventType)
	}
	return result
}

// --- Typed free functions ---

// Type registers the factory of *E under the tag reported by E itself.
func Type[E any, PE interface {
	*E
	messaging.Event
}](b *Builder) error {
	eventType := PE(new(E)).EventType()
	return b.RegisterType(eventType, func() messaging.Event {
		return PE(new(E))
	})
}

// Subscribe registers a typed handler for *E and the factory of *E when it
// is not declared yet. Both *E and E values are accepted at dispatch.
func Subscribe[E any, PE interface {
	*E
	messaging.Event
}](b *Builder, name string, handler func(s session.Session, event PE) error) error {
	eventType := PE(new(E)).EventType()
	if _, ok := b.factories[eventType]; !ok {
		if err := Type[E, PE](b); err != nil {
			return err
		}
	}
	return b.Register(eventType, messaging.NewHandler(name, func(s session.Session, event messaging.Event) error {
		switch typed := event.(type) {
		case PE:
			return handler(s, typed)
		case E:
			return handler(s, PE(&typed))
		default:
			return errors.Errorf("registry: %s cannot handle %T", name, event)
		}
	}))
}
