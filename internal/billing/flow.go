// Package billing drives an invoice from creation to settlement: cash with
// change computation, or a MoMo QR code polled until the backend reports
// payment.
package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dangkhoa18052004/spa-portal/internal/observability/metrics"
	"github.com/dangkhoa18052004/spa-portal/internal/spaapi"
	"github.com/dangkhoa18052004/spa-portal/internal/status"
	"github.com/dangkhoa18052004/spa-portal/pkg/logging"
)

// Source is the slice of the backend client billing needs.
type Source interface {
	GetAppointment(ctx context.Context, id int) (*spaapi.AppointmentDetail, error)
	CreateInvoice(ctx context.Context, appointmentID int) (int, error)
	GetInvoice(ctx context.Context, id int) (*spaapi.Invoice, error)
	RecordPayment(ctx context.Context, invoiceID int, amount spaapi.VND, method string) error
	GenerateQR(ctx context.Context, invoiceID int) (*spaapi.QRPayment, error)
}

// Flow performs the invoice and payment operations.
type Flow struct {
	source  Source
	pollers *PollerManager
	tracer  trace.Tracer
	logger  *logging.Logger
	metrics *metrics.WorkflowMetrics
}

// NewFlow constructs the billing flow around a poller manager.
func NewFlow(source Source, pollers *PollerManager, logger *logging.Logger, m *metrics.WorkflowMetrics) *Flow {
	if source == nil {
		panic("billing: source cannot be nil")
	}
	if pollers == nil {
		panic("billing: poller manager cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Flow{
		source:  source,
		pollers: pollers,
		tracer:  otel.Tracer("spaportal.internal.billing"),
		logger:  logger,
		metrics: m,
	}
}

// CreateInvoice generates the invoice for a completed appointment and
// returns it with its total. Non-completed appointments are rejected
// before any backend write; a duplicate maps to ErrInvoiceExists.
func (f *Flow) CreateInvoice(ctx context.Context, appointmentID int) (*spaapi.Invoice, error) {
	ctx, span := f.tracer.Start(ctx, "billing.create_invoice",
		trace.WithAttributes(attribute.Int("appointment.id", appointmentID)))
	defer span.End()

	detail, err := f.source.GetAppointment(ctx, appointmentID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !status.ParseAppointment(detail.RawStatus).CanInvoice() {
		return nil, fmt.Errorf("%w: appointment %d is %q", ErrNotCompleted, appointmentID, detail.RawStatus)
	}

	invoiceID, err := f.source.CreateInvoice(ctx, appointmentID)
	if err != nil {
		span.RecordError(err)
		if spaapi.IsStatus(err, http.StatusBadRequest) {
			return nil, fmt.Errorf("%w: appointment %d", ErrInvoiceExists, appointmentID)
		}
		return nil, err
	}
	return f.source.GetInvoice(ctx, invoiceID)
}

// Invoice fetches an invoice by id.
func (f *Flow) Invoice(ctx context.Context, id int) (*spaapi.Invoice, error) {
	return f.source.GetInvoice(ctx, id)
}

// SettleCash confirms a cash payment and returns the change due. The
// session's guard has already run, but the underpayment check repeats here
// so a raw API call can never settle short.
func (f *Flow) SettleCash(ctx context.Context, invoiceID int, session *CashSession) (spaapi.VND, error) {
	ctx, span := f.tracer.Start(ctx, "billing.settle_cash",
		trace.WithAttributes(attribute.Int("invoice.id", invoiceID)))
	defer span.End()

	if !session.CanConfirm() {
		return 0, ErrUnderpaid
	}
	inv, err := f.source.GetInvoice(ctx, invoiceID)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	if status.ParseInvoice(inv.RawStatus) == status.InvoicePaid {
		return 0, ErrAlreadyPaid
	}

	if err := f.source.RecordPayment(ctx, invoiceID, session.Tendered(), status.PaymentCash.WireLabel()); err != nil {
		span.RecordError(err)
		f.metrics.ObservePayment(string(status.PaymentCash), "failed")
		return 0, err
	}
	f.metrics.ObservePayment(string(status.PaymentCash), "paid")
	return session.Change(), nil
}

// StartQRPayment generates the MoMo payment link and starts the status
// poller. Events arrive on onEvent until a terminal state or Stop.
func (f *Flow) StartQRPayment(ctx context.Context, invoiceID int, onEvent func(Event)) (*spaapi.QRPayment, error) {
	ctx, span := f.tracer.Start(ctx, "billing.start_qr",
		trace.WithAttributes(attribute.Int("invoice.id", invoiceID)))
	defer span.End()

	inv, err := f.source.GetInvoice(ctx, invoiceID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if status.ParseInvoice(inv.RawStatus) == status.InvoicePaid {
		return nil, ErrAlreadyPaid
	}

	qr, err := f.source.GenerateQR(ctx, invoiceID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	f.pollers.Start(ctx, invoiceID, onEvent)
	return qr, nil
}

// StopQRPayment cancels the poller for the invoice. Closing the payment
// view calls this; it never mutates invoice state.
func (f *Flow) StopQRPayment(invoiceID int) {
	f.pollers.Stop(invoiceID)
}

// IsTerminalError reports whether err is one of billing's own rejections
// rather than a transport failure.
func IsTerminalError(err error) bool {
	return errors.Is(err, ErrNotCompleted) ||
		errors.Is(err, ErrInvoiceExists) ||
		errors.Is(err, ErrAlreadyPaid) ||
		errors.Is(err, ErrUnderpaid)
}
