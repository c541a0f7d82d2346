package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/dangkhoa18052004/spa-portal/internal/booking"
	"github.com/dangkhoa18052004/spa-portal/pkg/logging"
)

// BookingMailer composes and sends the booking confirmation email.
type BookingMailer struct {
	sender EmailSender
	logger *logging.Logger
}

// NewBookingMailer wraps an email sender. A nil sender yields a mailer
// that drops everything, so callers never need a nil check.
func NewBookingMailer(sender EmailSender, logger *logging.Logger) *BookingMailer {
	if logger == nil {
		logger = logging.Default()
	}
	if sender == nil {
		sender = NewStubEmailSender(logger)
	}
	return &BookingMailer{sender: sender, logger: logger}
}

// SendBookingConfirmation emails the appointment summary to the customer.
func (m *BookingMailer) SendBookingConfirmation(ctx context.Context, toEmail, toName string, detail booking.ConfirmationDetail) error {
	var services []string
	for _, s := range detail.Services {
		services = append(services, s.Name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Xin chào %s,\n\n", toName)
	fmt.Fprintf(&b, "Lịch hẹn của bạn đã được đặt thành công.\n\n")
	fmt.Fprintf(&b, "Mã lịch hẹn: %d\n", detail.AppointmentID)
	fmt.Fprintf(&b, "Thời gian: %s\n", detail.StartsAt.Format("15:04 02/01/2006"))
	fmt.Fprintf(&b, "Dịch vụ: %s\n", strings.Join(services, ", "))
	if detail.StaffName != "" {
		fmt.Fprintf(&b, "Nhân viên: %s\n", detail.StaffName)
	}
	fmt.Fprintf(&b, "Tổng tiền: %d VND\n\n", int64(detail.Total))
	b.WriteString("Hẹn gặp bạn tại spa!\n")

	return m.sender.Send(ctx, EmailMessage{
		To:      toEmail,
		ToName:  toName,
		Subject: fmt.Sprintf("Xác nhận lịch hẹn #%d", detail.AppointmentID),
		Body:    b.String(),
	})
}
