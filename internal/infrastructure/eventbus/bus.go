package eventbus

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"paygate/internal/domain/event"
	"paygate/internal/observability"
	"paygate/internal/observability/logctx"
)

const componentEventBus = "event_bus"

// Bus is a synchronous in-process event bus. Handlers run inline, in
// subscription order, before Publish returns; a failing or panicking
// handler is logged and does not stop delivery to the remaining ones.
// Status-transition subscribers rely on this ordering guarantee, which is
// why dispatch is not fanned out to goroutines.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]event.Handler
	log  observability.Logger
}

func New(logger observability.Logger) *Bus {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Bus{
		subs: make(map[string][]event.Handler),
		log:  logger.With(observability.F("component", componentEventBus)),
	}
}

func (b *Bus) Subscribe(eventName string, h event.Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventName] = append(b.subs[eventName], h)
}

func (b *Bus) Publish(ctx context.Context, e event.Event) error {
	if e == nil {
		return nil
	}
	name := e.EventName()

	b.mu.RLock()
	handlers := append([]event.Handler(nil), b.subs[name]...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		logctx.FromOr(ctx, b.log).Debug("event_dropped_no_subscriber",
			observability.F("event", name),
		)
		return nil
	}

	var errs []error
	for _, h := range handlers {
		if err := b.deliver(ctx, name, h, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) deliver(ctx context.Context, name string, h event.Handler, e event.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logctx.FromOr(ctx, b.log).Error("event_handler_panic",
				observability.F("event", name),
				observability.F("panic", r),
				observability.F("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("event handler panic on %s: %v", name, r)
		}
	}()

	if err := h(ctx, e); err != nil {
		logctx.FromOr(ctx, b.log).Warn("event_handler_error",
			observability.F("event", name),
			observability.F("error", err),
		)
		return err
	}
	return nil
}
