package fabric

import "sync"

// Signal names published on the in-process bus. Delivery is synchronous and
// always happens outside of any object or registry lock.
const (
	SignalEventSent     = "event sent"
	SignalEventReceived = "event received"
)

// SignalHandler observes events flowing through the local fabric. It must
// not block for long — it runs synchronously on the caller's goroutine.
type SignalHandler func(objectID string, events []Event)

// SignalBus is a minimal synchronous pub/sub used for local observers (the
// admin API's long-poll endpoint, tests, metrics hooks). It intentionally
// does not buffer or fan out across goroutines: subscribers that need
// asynchrony must do so themselves.
type SignalBus struct {
	mu       sync.RWMutex
	handlers map[string][]SignalHandler
}

// NewSignalBus constructs an empty bus.
func NewSignalBus() *SignalBus {
	return &SignalBus{handlers: make(map[string][]SignalHandler)}
}

// On registers handler for signal and returns an unsubscribe function.
func (b *SignalBus) On(signal string, handler SignalHandler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[signal] = append(b.handlers[signal], handler)
	idx := len(b.handlers[signal]) - 1
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		handlers := b.handlers[signal]
		if idx >= len(handlers) {
			return
		}
		b.handlers[signal] = append(handlers[:idx], handlers[idx+1:]...)
	}
}

// Emit delivers events to every handler registered for signal, in
// registration order. Callers must not hold an object or registry lock.
func (b *SignalBus) Emit(signal, objectID string, events []Event) {
	b.mu.RLock()
	handlers := append([]SignalHandler(nil), b.handlers[signal]...)
	b.mu.RUnlock()
	for _, h := range handlers {
		h(objectID, events)
	}
}
