package registry

import (
	"errors"
	"fmt"
)

var (
	ErrRegistryFrozen           = errors.New("registry: builder is frozen")
	ErrEventTypeRequired        = errors.New("registry: event type is required")
	ErrHandlerRequired          = errors.New("registry: handler is required")
	ErrHandlerNameRequired      = errors.New("registry: handler name is required")
	ErrHandlerAlreadyRegistered = errors.New("registry: handler already registered")
	ErrTypeAlreadyRegistered    = errors.New("registry: event type already registered")
	ErrUnknownEventType         = errors.New("registry: unknown event type")
)

// DeserializationError means a stored payload could not be turned back into
// its declared event type. It is a schema problem, not a transient one.
type DeserializationError struct {
	EventType string
	Err       error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("deserialization: %s: %v", e.EventType, e.Err)
}

func (e *DeserializationError) Unwrap() error {
	return e.Err
}
