package parsera

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType names a lifecycle event. The constants below cover the built-in
// set; any other string is a valid custom type for subscriptions.
type EventType string

const (
	EventExtractStart    EventType = "extract:start"
	EventExtractComplete EventType = "extract:complete"
	EventExtractError    EventType = "extract:error"
	EventRequestRetry    EventType = "request:retry"
	EventRequestError    EventType = "request:error"
	EventRateLimit       EventType = "rateLimit"
	EventTimeout         EventType = "timeout"
	EventHandlerError    EventType = "handler:error"
)

// Event is the envelope delivered to subscribers. Envelopes are created fresh
// per emission and never mutated afterwards; Timestamp reflects emission time.
type Event struct {
	Type         EventType
	Timestamp    time.Time
	ExtractionID uuid.UUID
	Payload      any
	Err          error
	RetryCount   int
}

// Handler receives events. A non-nil return is treated as a handler failure.
type Handler func(Event) error

// SubscribeOptions control delivery for one event type.
type SubscribeOptions struct {
	// Async invokes handlers in their own goroutine without awaiting them.
	// Failures and panics of async handlers are swallowed.
	Async bool
	// CatchErrors isolates handler failures by re-publishing them as
	// handler:error events instead of propagating them to the emitter.
	// When false, the first failure aborts delivery and propagates out of
	// the operation that emitted the event.
	CatchErrors bool
}

type registration struct {
	id uintptr
	fn Handler
}

// eventBus is an in-process pub/sub registry keyed by event type. Handlers
// for one type run in registration order; delivery options apply per type.
type eventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]registration
	opts     map[EventType]SubscribeOptions
}

func newEventBus() *eventBus {
	return &eventBus{
		handlers: make(map[EventType][]registration),
		opts:     make(map[EventType]SubscribeOptions),
	}
}

func defaultSubscribeOptions() SubscribeOptions {
	return SubscribeOptions{Async: false, CatchErrors: true}
}

func (b *eventBus) subscribe(t EventType, h Handler, opts ...SubscribeOptions) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], registration{id: handlerID(h), fn: h})
	if len(opts) > 0 {
		b.opts[t] = opts[len(opts)-1]
	} else if _, ok := b.opts[t]; !ok {
		b.opts[t] = defaultSubscribeOptions()
	}
}

// unsubscribe removes the first registration of h for t. Removing a handler
// that is not registered is a no-op.
func (b *eventBus) unsubscribe(t EventType, h Handler) {
	if h == nil {
		return
	}
	id := handlerID(h)
	b.mu.Lock()
	defer b.mu.Unlock()
	regs := b.handlers[t]
	for i, r := range regs {
		if r.id == id {
			b.handlers[t] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
}

// clear drops all registrations for the given types, or for every type when
// called with no arguments.
func (b *eventBus) clear(types ...EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(types) == 0 {
		b.handlers = make(map[EventType][]registration)
		b.opts = make(map[EventType]SubscribeOptions)
		return
	}
	for _, t := range types {
		delete(b.handlers, t)
		delete(b.opts, t)
	}
}

// emit delivers evt to the subscribers of its type. Synchronous handlers are
// awaited in registration order before emit returns.
func (b *eventBus) emit(evt Event) error {
	evt.Timestamp = time.Now()

	b.mu.RLock()
	regs := append([]registration(nil), b.handlers[evt.Type]...)
	o, ok := b.opts[evt.Type]
	b.mu.RUnlock()
	if !ok {
		o = defaultSubscribeOptions()
	}

	for _, r := range regs {
		if o.Async {
			go func(fn Handler) {
				_ = invoke(fn, evt)
			}(r.fn)
			continue
		}
		if err := invoke(r.fn, evt); err != nil {
			if !o.CatchErrors {
				return wrapError(KindHandlerError, err, "handler for %s failed", evt.Type)
			}
			// Failures of handler:error handlers are swallowed so a
			// failing observer cannot recurse.
			if evt.Type != EventHandlerError {
				_ = b.emit(Event{
					Type:         EventHandlerError,
					ExtractionID: evt.ExtractionID,
					Payload:      evt.Type,
					Err:          wrapError(KindHandlerError, err, "handler for %s failed", evt.Type),
				})
			}
		}
	}
	return nil
}

// invoke runs a handler, converting a panic into an ordinary failure.
func invoke(fn Handler, evt Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event handler panic: %v", r)
		}
	}()
	return fn(evt)
}

// handlerID identifies a handler for unsubscribe. Functions are not
// comparable in Go, so identity is the code pointer.
func handlerID(h Handler) uintptr {
	return reflect.ValueOf(h).Pointer()
}
