package disposable

import "sync"

type Disposable interface {
	Dispose()
}

// NewDisposable returns a Disposable that runs callback at most once.
func NewDisposable(callback func()) Disposable {
	return &disposableImp{callback: callback}
}

type disposableImp struct {
	once     sync.Once
	callback func()
}

func (d *disposableImp) Dispose() {
	d.once.Do(d.callback)
}

// Composite disposes all of its members in reverse order.
type Composite []Disposable

func (c Composite) Dispose() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i].Dispose()
	}
}
