package booking

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dangkhoa18052004/spa-portal/internal/observability/metrics"
	"github.com/dangkhoa18052004/spa-portal/internal/spaapi"
	"github.com/dangkhoa18052004/spa-portal/internal/status"
	"github.com/dangkhoa18052004/spa-portal/pkg/logging"
)

// cancelCutoff is how close to the start time a customer may still cancel.
const cancelCutoff = 4 * time.Hour

// SubmitSource is the slice of the backend client the submitter needs.
type SubmitSource interface {
	CreateAppointment(ctx context.Context, req spaapi.BookingRequest) (*spaapi.BookingResult, error)
	UpdateAppointment(ctx context.Context, id int, req spaapi.BookingRequest) (*spaapi.BookingResult, error)
	GetAppointment(ctx context.Context, id int) (*spaapi.AppointmentDetail, error)
	ConfirmAppointment(ctx context.Context, id int) error
	CompleteAppointment(ctx context.Context, id int) error
	CancelAppointment(ctx context.Context, id int, reason string) error
}

// Notifier sends the booking confirmation email.
type Notifier interface {
	SendBookingConfirmation(ctx context.Context, toEmail, toName string, detail ConfirmationDetail) error
}

// ConfirmationDetail is what the confirmation email renders.
type ConfirmationDetail struct {
	AppointmentID int
	StartsAt      time.Time
	Services      []spaapi.Service
	StaffName     string
	Total         spaapi.VND
}

// Outcome is a successful submission or transition. RefreshNeeded tells
// the session to reload the appointment list and statistics. OfferInvoice
// is set after completion so the UI can offer the invoice chain; declining
// it has no effect on the appointment.
type Outcome struct {
	AppointmentID int
	AssignedStaff int
	Message       string
	RefreshNeeded bool
	OfferInvoice  bool
}

// Submitter performs the booking submission and the status transitions.
type Submitter struct {
	source   SubmitSource
	notifier Notifier
	tracer   trace.Tracer
	logger   *logging.Logger
	metrics  *metrics.WorkflowMetrics
	now      func() time.Time
}

// NewSubmitter constructs a submitter. notifier may be nil when email is
// not configured.
func NewSubmitter(source SubmitSource, notifier Notifier, logger *logging.Logger, m *metrics.WorkflowMetrics) *Submitter {
	if source == nil {
		panic("booking: submit source cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Submitter{
		source:   source,
		notifier: notifier,
		tracer:   otel.Tracer("spaportal.internal.booking.submit"),
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// validate checks every hard precondition and reports them per field.
func validate(sel *Selection) *ValidationError {
	var fields []FieldError
	if sel.CustomerID() <= 0 {
		fields = append(fields, FieldError{Field: "customer", Message: "chọn khách hàng"})
	}
	if len(sel.ServiceIDs()) == 0 {
		fields = append(fields, FieldError{Field: "services", Message: "chọn ít nhất một dịch vụ"})
	}
	if !sel.HasSlot() {
		fields = append(fields, FieldError{Field: "datetime", Message: "chọn ngày và giờ"})
	}
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

// Submit sends the booking. It creates when the selection has no
// appointment id and updates otherwise. A 409 surfaces unchanged as a
// *spaapi.ConflictError so the caller can render each collision. A second
// Submit while one is outstanding returns ErrSubmitInFlight.
func (s *Submitter) Submit(ctx context.Context, sel *Selection, customer *spaapi.Customer) (*Outcome, error) {
	if !sel.beginSubmit() {
		return nil, ErrSubmitInFlight
	}
	defer sel.endSubmit()

	if ve := validate(sel); ve != nil {
		return nil, ve
	}
	startsAt, err := sel.StartsAt()
	if err != nil {
		return nil, &ValidationError{Fields: []FieldError{{Field: "datetime", Message: "ngày giờ không hợp lệ"}}}
	}

	ctx, span := s.tracer.Start(ctx, "booking.submit",
		trace.WithAttributes(
			attribute.Int("customer.id", sel.CustomerID()),
			attribute.Int("services.count", len(sel.ServiceIDs())),
			attribute.Bool("update", sel.AppointmentID() > 0),
		))
	defer span.End()

	req := spaapi.BookingRequest{
		CustomerID: sel.CustomerID(),
		ServiceIDs: sel.ServiceIDs(),
		StaffID:    sel.StaffID(),
		StartsAt:   spaapi.FormatStartsAt(startsAt),
		Note:       sel.note,
	}

	var result *spaapi.BookingResult
	if id := sel.AppointmentID(); id > 0 {
		result, err = s.source.UpdateAppointment(ctx, id, req)
	} else {
		result, err = s.source.CreateAppointment(ctx, req)
	}
	if err != nil {
		span.RecordError(err)
		if _, conflict := spaapi.AsConflict(err); conflict {
			s.metrics.ObserveBooking("conflict")
		} else {
			s.metrics.ObserveBooking("failed")
		}
		return nil, err
	}

	outcome := &Outcome{
		AppointmentID: result.AppointmentID,
		AssignedStaff: result.AssignedStaff,
		Message:       result.Message,
		RefreshNeeded: true,
	}
	s.metrics.ObserveBooking("created")
	s.sendConfirmation(ctx, sel, customer, outcome, startsAt)
	sel.Reset()
	return outcome, nil
}

// sendConfirmation emails the customer. Failures are logged and swallowed;
// the booking already succeeded.
func (s *Submitter) sendConfirmation(ctx context.Context, sel *Selection, customer *spaapi.Customer, outcome *Outcome, startsAt time.Time) {
	if s.notifier == nil || customer == nil || customer.Email == "" {
		return
	}
	detail := ConfirmationDetail{
		AppointmentID: outcome.AppointmentID,
		StartsAt:      startsAt,
		Services:      sel.SelectedServices(),
		Total:         sel.TotalPrice(),
	}
	if err := s.notifier.SendBookingConfirmation(ctx, customer.Email, customer.Name, detail); err != nil {
		s.logger.Warn("booking confirmation email failed",
			"appointment_id", outcome.AppointmentID, "error", err)
	}
}

// Confirm moves a pending appointment to confirmed.
func (s *Submitter) Confirm(ctx context.Context, id int) (*Outcome, error) {
	if err := s.source.ConfirmAppointment(ctx, id); err != nil {
		return nil, err
	}
	return &Outcome{AppointmentID: id, RefreshNeeded: true}, nil
}

// Complete marks the appointment done and offers the invoice chain.
func (s *Submitter) Complete(ctx context.Context, id int) (*Outcome, error) {
	if err := s.source.CompleteAppointment(ctx, id); err != nil {
		return nil, err
	}
	return &Outcome{AppointmentID: id, RefreshNeeded: true, OfferInvoice: true}, nil
}

// Cancel cancels with a mandatory reason.
func (s *Submitter) Cancel(ctx context.Context, id int, reason string) (*Outcome, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, ErrReasonRequired
	}
	if err := s.source.CancelAppointment(ctx, id, reason); err != nil {
		return nil, err
	}
	return &Outcome{AppointmentID: id, RefreshNeeded: true}, nil
}

// ValidateCustomerBooking enforces the self-service rule that bookings
// cannot start in the past.
func (s *Submitter) ValidateCustomerBooking(startsAt time.Time) error {
	if startsAt.Before(s.now()) {
		return ErrPastBooking
	}
	return nil
}

// CustomerCancel applies the self-service cancellation rules before
// forwarding: only pending or confirmed appointments, and not within the
// cutoff window of the start time.
func (s *Submitter) CustomerCancel(ctx context.Context, id int, reason string) (*Outcome, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, ErrReasonRequired
	}
	detail, err := s.source.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	st := status.ParseAppointment(detail.RawStatus)
	if st != status.AppointmentPending && st != status.AppointmentConfirmed {
		return nil, ErrCancelState
	}
	startsAt, err := time.ParseInLocation(spaapi.TimeLayout, detail.StartsAt, time.Local)
	if err == nil && s.now().After(startsAt.Add(-cancelCutoff)) {
		return nil, ErrCancelTooLate
	}
	if err := s.source.CancelAppointment(ctx, id, reason); err != nil {
		return nil, err
	}
	return &Outcome{AppointmentID: id, RefreshNeeded: true}, nil
}
