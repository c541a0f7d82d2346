package portal

import (
	"sync"

	"github.com/dangkhoa18052004/spa-portal/internal/billing"
)

// EventHub fans payment poll events out to WebSocket subscribers, keyed by
// invoice id. Slow subscribers drop events rather than block the poller.
type EventHub struct {
	mu   sync.Mutex
	subs map[int]map[chan billing.Event]struct{}
}

// NewEventHub creates an empty hub.
func NewEventHub() *EventHub {
	return &EventHub{subs: map[int]map[chan billing.Event]struct{}{}}
}

// Subscribe registers for an invoice's events. The returned cancel must be
// called when the listener goes away.
func (h *EventHub) Subscribe(invoiceID int) (<-chan billing.Event, func()) {
	ch := make(chan billing.Event, 16)
	h.mu.Lock()
	if h.subs[invoiceID] == nil {
		h.subs[invoiceID] = map[chan billing.Event]struct{}{}
	}
	h.subs[invoiceID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[invoiceID]; ok {
			if _, member := set[ch]; member {
				delete(set, ch)
				close(ch)
				if len(set) == 0 {
					delete(h.subs, invoiceID)
				}
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber of its invoice.
func (h *EventHub) Publish(ev billing.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[ev.InvoiceID] {
		select {
		case ch <- ev:
		default:
		}
	}
}
