// Package observer fans committed lifecycle events out to side-effect
// handlers. Handler failures are recovered, logged and counted; they never
// reach the caller that triggered the event.
package observer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"kasirinaja/backoffice/internal/domain"
)

var ErrInvalidRegistration = errors.New("observer needs a name and a handler")

type Handler interface {
	Handle(ctx context.Context, event domain.Event) error
}

type HandlerFunc func(ctx context.Context, event domain.Event) error

func (f HandlerFunc) Handle(ctx context.Context, event domain.Event) error {
	return f(ctx, event)
}

// HandlerFailure describes one handler that returned an error or panicked.
type HandlerFailure struct {
	Handler string
	Event   domain.EventType
	Err     error
}

func (f *HandlerFailure) Error() string {
	return fmt.Sprintf("observer %s failed on %s: %v", f.Handler, f.Event, f.Err)
}

func (f *HandlerFailure) Unwrap() error {
	return f.Err
}

type registration struct {
	name    string
	handler Handler
	types   map[domain.EventType]struct{}
}

func (r registration) accepts(t domain.EventType) bool {
	if len(r.types) == 0 {
		return true
	}
	_, ok := r.types[t]
	return ok
}

type Dispatcher struct {
	mu       sync.RWMutex
	logger   *zap.Logger
	handlers []registration
	failures atomic.Int64
}

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{logger: logger}
}

// Register adds handler under name for the given event types, or for every
// event when none are given. Registering a name again replaces its handler
// and types but keeps its position in the call order.
func (d *Dispatcher) Register(name string, handler Handler, types ...domain.EventType) error {
	name = strings.TrimSpace(name)
	if name == "" || handler == nil {
		return ErrInvalidRegistration
	}

	reg := registration{name: name, handler: handler}
	if len(types) > 0 {
		reg.types = make(map[domain.EventType]struct{}, len(types))
		for _, t := range types {
			reg.types[t] = struct{}{}
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range d.handlers {
		if d.handlers[i].name == name {
			d.handlers[i] = reg
			return nil
		}
	}
	d.handlers = append(d.handlers, reg)
	return nil
}

// Unregister removes the handler registered under name. It reports whether
// anything was removed.
func (d *Dispatcher) Unregister(name string) bool {
	name = strings.TrimSpace(name)

	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range d.handlers {
		if d.handlers[i].name == name {
			d.handlers = append(d.handlers[:i:i], d.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// Names lists registered handlers in call order.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.handlers))
	for _, reg := range d.handlers {
		names = append(names, reg.name)
	}
	return names
}

// Failures is the number of handler failures recovered so far.
func (d *Dispatcher) Failures() int64 {
	return d.failures.Load()
}

// Notify calls every handler subscribed to event.Type, in registration
// order, each with its own copy of the event. The handler list is
// snapshotted first so concurrent registration never affects a notification
// already in flight.
func (d *Dispatcher) Notify(ctx context.Context, event domain.Event) {
	d.mu.RLock()
	snapshot := make([]registration, len(d.handlers))
	copy(snapshot, d.handlers)
	d.mu.RUnlock()

	for _, reg := range snapshot {
		if !reg.accepts(event.Type) {
			continue
		}
		if err := d.invoke(ctx, reg, event.Clone()); err != nil {
			d.failures.Add(1)
			d.logger.Error("observer handler failed",
				zap.String("handler", reg.name),
				zap.String("event_type", string(event.Type)),
				zap.String("entity", string(event.Entity)),
				zap.String("entity_id", event.EntityID),
				zap.Error(err),
			)
		}
	}
}

func (d *Dispatcher) invoke(ctx context.Context, reg registration, event domain.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerFailure{Handler: reg.name, Event: event.Type, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if herr := reg.handler.Handle(ctx, event); herr != nil {
		return &HandlerFailure{Handler: reg.name, Event: event.Type, Err: herr}
	}
	return nil
}
