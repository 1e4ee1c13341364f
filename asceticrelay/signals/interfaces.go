package signals

import (
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/disposable"
)

// Observer reacts to an event. A non-nil error is reported back to the notifier.
type Observer[E any] func(E) error

type Signal[E any] interface {
	Attach(observer Observer[E], observerID ...any) disposable.Disposable
	Detach(observer Observer[E], observerID ...any)
	Notify(event E) error
}
