package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"paygate/internal/domain/payment"
)

var (
	ErrUnknownBackend   = errors.New("registry: unknown backend")
	ErrDuplicateBackend = errors.New("registry: backend already registered")
)

// Registry maps backend keys to their processors. It is populated exactly
// once during startup (one Register call per configured backend) and must be
// treated as read-only afterward so request-handling goroutines can resolve
// without coordination beyond the internal lock.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]payment.Processor
}

func New() *Registry {
	return &Registry{backends: make(map[string]payment.Processor)}
}

// Register binds a backend key to a processor. Re-registering the same key
// with the same processor type is an idempotent no-op; binding it to a
// different type fails with ErrDuplicateBackend.
func (r *Registry) Register(key string, proc payment.Processor) error {
	if key == "" {
		return errors.New("registry: backend key is required")
	}
	if proc == nil {
		return errors.New("registry: processor is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.backends[key]; ok {
		if fmt.Sprintf("%T", existing) != fmt.Sprintf("%T", proc) {
			return fmt.Errorf("%w: %q is bound to %T", ErrDuplicateBackend, key, existing)
		}
		r.backends[key] = proc
		return nil
	}

	r.backends[key] = proc
	return nil
}

// Resolve returns the processor bound to key.
func (r *Registry) Resolve(key string) (payment.Processor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	proc, ok := r.backends[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, key)
	}
	return proc, nil
}

// Keys lists the registered backend keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.backends))
	for k := range r.backends {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate checks every registered processor declares a known dispatch
// method. A misconfigured method is fatal at startup, never a per-request
// error.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for key, proc := range r.backends {
		if m := proc.DispatchMethod(); !m.Valid() {
			return fmt.Errorf("registry: backend %q declares unsupported dispatch method %q (only GET, POST and REST are supported)", key, m)
		}
	}
	return nil
}
