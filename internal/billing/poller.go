package billing

import (
	"context"
	"sync"
	"time"

	"github.com/dangkhoa18052004/spa-portal/internal/observability/metrics"
	"github.com/dangkhoa18052004/spa-portal/internal/spaapi"
	"github.com/dangkhoa18052004/spa-portal/internal/status"
	"github.com/dangkhoa18052004/spa-portal/pkg/logging"
)

const (
	defaultPollInterval = 3 * time.Second
	defaultMaxAttempts  = 60
)

// PaymentState is what a poll event reports.
type PaymentState int

const (
	// PaymentWaiting means the invoice is still unpaid; polling continues.
	PaymentWaiting PaymentState = iota
	// PaymentPaid is terminal: the backend reported the invoice settled.
	PaymentPaid
	// PaymentExpired is terminal: the attempt budget ran out unpaid. It is
	// not a failure; the QR simply lapsed.
	PaymentExpired
)

func (s PaymentState) String() string {
	switch s {
	case PaymentWaiting:
		return "waiting"
	case PaymentPaid:
		return "paid"
	case PaymentExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Event is one poll observation for an invoice.
type Event struct {
	InvoiceID int
	State     PaymentState
	Attempt   int
	Invoice   *spaapi.Invoice
}

// Terminal reports whether no further events will follow.
func (e Event) Terminal() bool {
	return e.State == PaymentPaid || e.State == PaymentExpired
}

type invoiceGetter interface {
	GetInvoice(ctx context.Context, id int) (*spaapi.Invoice, error)
}

type pollerHandle struct {
	cancel context.CancelFunc
}

// PollerManager runs at most one status poller per invoice. Starting a
// second poller for the same invoice replaces the first; stopping is
// deterministic, no ticker outlives its cancel.
type PollerManager struct {
	source      invoiceGetter
	interval    time.Duration
	maxAttempts int
	logger      *logging.Logger
	metrics     *metrics.WorkflowMetrics

	mu     sync.Mutex
	active map[int]*pollerHandle
	wg     sync.WaitGroup
}

// NewPollerManager constructs a manager with the given cadence. Zero
// values fall back to 3 seconds and 60 attempts.
func NewPollerManager(source invoiceGetter, interval time.Duration, maxAttempts int, logger *logging.Logger, m *metrics.WorkflowMetrics) *PollerManager {
	if source == nil {
		panic("billing: invoice source cannot be nil")
	}
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &PollerManager{
		source:      source,
		interval:    interval,
		maxAttempts: maxAttempts,
		logger:      logger,
		metrics:     m,
		active:      map[int]*pollerHandle{},
	}
}

// Start launches a poller for the invoice, replacing any existing one.
// The poller outlives the request: it runs on its own context, carrying
// over only the caller's credential.
func (m *PollerManager) Start(ctx context.Context, invoiceID int, onEvent func(Event)) {
	pollCtx := context.Background()
	if token, ok := spaapi.TokenFromContext(ctx); ok {
		pollCtx = spaapi.WithToken(pollCtx, token)
	}
	pollCtx, cancel := context.WithCancel(pollCtx)
	handle := &pollerHandle{cancel: cancel}

	m.mu.Lock()
	if prev, ok := m.active[invoiceID]; ok {
		prev.cancel()
	}
	m.active[invoiceID] = handle
	m.mu.Unlock()

	m.metrics.PollerStarted()
	m.wg.Add(1)
	go m.run(pollCtx, invoiceID, handle, onEvent)
}

// Stop cancels the poller for the invoice, if any.
func (m *PollerManager) Stop(invoiceID int) {
	m.mu.Lock()
	handle, ok := m.active[invoiceID]
	if ok {
		delete(m.active, invoiceID)
	}
	m.mu.Unlock()
	if ok {
		handle.cancel()
	}
}

// StopAll cancels every poller and waits for them to finish. Called on
// shutdown.
func (m *PollerManager) StopAll() {
	m.mu.Lock()
	for id, handle := range m.active {
		handle.cancel()
		delete(m.active, id)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// Active reports whether a poller is running for the invoice.
func (m *PollerManager) Active(invoiceID int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[invoiceID]
	return ok
}

func (m *PollerManager) run(ctx context.Context, invoiceID int, handle *pollerHandle, onEvent func(Event)) {
	defer m.wg.Done()
	defer m.metrics.PollerStopped()
	defer m.finish(invoiceID, handle)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		m.metrics.ObservePollTick()

		inv, err := m.source.GetInvoice(ctx, invoiceID)
		if err != nil {
			// A failed probe is logged and counts against the budget;
			// it never produces a terminal event by itself.
			m.logger.Warn("invoice poll failed", "invoice_id", invoiceID, "attempt", attempt, "error", err)
			continue
		}
		if status.ParseInvoice(inv.RawStatus) == status.InvoicePaid {
			m.metrics.ObservePayment(string(status.PaymentMomoQR), "paid")
			m.emit(ctx, onEvent, Event{InvoiceID: invoiceID, State: PaymentPaid, Attempt: attempt, Invoice: inv})
			return
		}
		m.emit(ctx, onEvent, Event{InvoiceID: invoiceID, State: PaymentWaiting, Attempt: attempt, Invoice: inv})
	}

	m.metrics.ObservePayment(string(status.PaymentMomoQR), "expired")
	m.emit(ctx, onEvent, Event{InvoiceID: invoiceID, State: PaymentExpired, Attempt: m.maxAttempts})
}

// emit delivers an event unless the poller was cancelled meanwhile.
func (m *PollerManager) emit(ctx context.Context, onEvent func(Event), ev Event) {
	if onEvent == nil || ctx.Err() != nil {
		return
	}
	onEvent(ev)
}

// finish removes the handle from the registry unless it was already
// replaced by a newer poller for the same invoice.
func (m *PollerManager) finish(invoiceID int, handle *pollerHandle) {
	handle.cancel()
	m.mu.Lock()
	if current, ok := m.active[invoiceID]; ok && current == handle {
		delete(m.active, invoiceID)
	}
	m.mu.Unlock()
}
