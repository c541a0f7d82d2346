// Package status defines the canonical appointment, invoice and payment
// states. The upstream spa backend mixes English codes with Vietnamese
// display text depending on the screen that wrote the row; everything in
// this service normalizes to the canonical value at the boundary and
// branches only on it. Display strings exist solely for presentation.
package status

import "strings"

// Appointment is the canonical appointment state.
type Appointment string

const (
	AppointmentUnknown    Appointment = ""
	AppointmentPending    Appointment = "pending"
	AppointmentConfirmed  Appointment = "confirmed"
	AppointmentInProgress Appointment = "in_progress"
	AppointmentCompleted  Appointment = "completed"
	AppointmentCancelled  Appointment = "cancelled"
)

// appointmentSynonyms maps every form the backend emits to the canonical
// value. Vietnamese labels are matched verbatim; codes case-insensitively.
var appointmentSynonyms = map[string]Appointment{
	"pending":        AppointmentPending,
	"chờ xác nhận":   AppointmentPending,
	"confirmed":      AppointmentConfirmed,
	"đã xác nhận":    AppointmentConfirmed,
	"in_progress":    AppointmentInProgress,
	"đang thực hiện": AppointmentInProgress,
	"completed":      AppointmentCompleted,
	"hoàn thành":     AppointmentCompleted,
	"đã hoàn thành":  AppointmentCompleted,
	"cancelled":      AppointmentCancelled,
	"đã hủy":         AppointmentCancelled,
}

// ParseAppointment normalizes a backend status string. Unrecognized input
// yields AppointmentUnknown; callers must treat that as "do not transition".
func ParseAppointment(raw string) Appointment {
	if s, ok := appointmentSynonyms[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s
	}
	return AppointmentUnknown
}

// Display returns the Vietnamese label shown in the UI.
func (s Appointment) Display() string {
	switch s {
	case AppointmentPending:
		return "Chờ xác nhận"
	case AppointmentConfirmed:
		return "Đã xác nhận"
	case AppointmentInProgress:
		return "Đang thực hiện"
	case AppointmentCompleted:
		return "Đã hoàn thành"
	case AppointmentCancelled:
		return "Đã hủy"
	default:
		return "Không xác định"
	}
}

// BadgeClass returns the UI badge style for the state.
func (s Appointment) BadgeClass() string {
	switch s {
	case AppointmentPending:
		return "warning"
	case AppointmentConfirmed:
		return "info"
	case AppointmentInProgress:
		return "primary"
	case AppointmentCompleted:
		return "success"
	case AppointmentCancelled:
		return "danger"
	default:
		return "secondary"
	}
}

// CanConfirm reports whether the confirm transition is offered.
func (s Appointment) CanConfirm() bool { return s == AppointmentPending }

// CanComplete reports whether the complete transition is offered.
func (s Appointment) CanComplete() bool { return s == AppointmentConfirmed || s == AppointmentInProgress }

// CanCancel reports whether cancellation is still possible. Terminal states
// cannot be cancelled.
func (s Appointment) CanCancel() bool {
	switch s {
	case AppointmentPending, AppointmentConfirmed, AppointmentInProgress:
		return true
	default:
		return false
	}
}

// CanInvoice reports whether an invoice may be created from the appointment.
func (s Appointment) CanInvoice() bool { return s == AppointmentCompleted }

// Invoice is the canonical invoice payment state.
type Invoice string

const (
	InvoiceUnknown Invoice = ""
	InvoiceUnpaid  Invoice = "unpaid"
	InvoicePaid    Invoice = "paid"
)

var invoiceSynonyms = map[string]Invoice{
	"unpaid":          InvoiceUnpaid,
	"chưa thanh toán": InvoiceUnpaid,
	"paid":            InvoicePaid,
	"đã thanh toán":   InvoicePaid,
}

// ParseInvoice normalizes a backend invoice status string.
func ParseInvoice(raw string) Invoice {
	if s, ok := invoiceSynonyms[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s
	}
	return InvoiceUnknown
}

// Display returns the Vietnamese label shown in the UI.
func (s Invoice) Display() string {
	switch s {
	case InvoiceUnpaid:
		return "Chưa thanh toán"
	case InvoicePaid:
		return "Đã thanh toán"
	default:
		return "Không xác định"
	}
}

// PaymentMethod is the canonical payment method.
type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentMomoQR PaymentMethod = "momo_qr"
)

// WireLabel returns the label the backend's record-payment endpoint expects.
// The upstream API predates the canonical enums and only understands the
// Vietnamese labels.
func (m PaymentMethod) WireLabel() string {
	switch m {
	case PaymentCash:
		return "Tiền mặt"
	case PaymentMomoQR:
		return "Momo QR"
	default:
		return string(m)
	}
}
