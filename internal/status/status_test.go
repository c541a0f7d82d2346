package status

import "testing"

func TestParseAppointment_SynonymsCollapse(t *testing.T) {
	cases := []struct {
		raw  string
		want Appointment
	}{
		{"pending", AppointmentPending},
		{"Chờ xác nhận", AppointmentPending},
		{"confirmed", AppointmentConfirmed},
		{"Đã xác nhận", AppointmentConfirmed},
		{"in_progress", AppointmentInProgress},
		{"Đang thực hiện", AppointmentInProgress},
		{"completed", AppointmentCompleted},
		{"Đã hoàn thành", AppointmentCompleted},
		{"cancelled", AppointmentCancelled},
		{"Đã hủy", AppointmentCancelled},
		{"  CONFIRMED  ", AppointmentConfirmed},
		{"no-show", AppointmentUnknown},
		{"", AppointmentUnknown},
	}
	for _, tc := range cases {
		if got := ParseAppointment(tc.raw); got != tc.want {
			t.Errorf("ParseAppointment(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestAppointment_Transitions(t *testing.T) {
	if !AppointmentPending.CanConfirm() {
		t.Error("pending should be confirmable")
	}
	if AppointmentConfirmed.CanConfirm() {
		t.Error("confirmed should not be confirmable again")
	}
	if !AppointmentConfirmed.CanComplete() || !AppointmentInProgress.CanComplete() {
		t.Error("confirmed and in_progress should be completable")
	}
	if AppointmentPending.CanComplete() {
		t.Error("pending should not be completable")
	}
	for _, s := range []Appointment{AppointmentPending, AppointmentConfirmed, AppointmentInProgress} {
		if !s.CanCancel() {
			t.Errorf("%s should be cancellable", s)
		}
	}
	for _, s := range []Appointment{AppointmentCompleted, AppointmentCancelled, AppointmentUnknown} {
		if s.CanCancel() {
			t.Errorf("%s should not be cancellable", s)
		}
	}
	if !AppointmentCompleted.CanInvoice() {
		t.Error("completed should allow invoicing")
	}
	if AppointmentConfirmed.CanInvoice() {
		t.Error("confirmed should not allow invoicing")
	}
}

func TestAppointment_DisplayAndBadge(t *testing.T) {
	if got := AppointmentCompleted.Display(); got != "Đã hoàn thành" {
		t.Errorf("Display() = %q", got)
	}
	if got := AppointmentPending.BadgeClass(); got != "warning" {
		t.Errorf("BadgeClass() = %q", got)
	}
	if got := AppointmentUnknown.BadgeClass(); got != "secondary" {
		t.Errorf("unknown BadgeClass() = %q", got)
	}
}

func TestParseInvoice(t *testing.T) {
	if got := ParseInvoice("Đã thanh toán"); got != InvoicePaid {
		t.Errorf("ParseInvoice paid label = %q", got)
	}
	if got := ParseInvoice("Chưa thanh toán"); got != InvoiceUnpaid {
		t.Errorf("ParseInvoice unpaid label = %q", got)
	}
	if got := ParseInvoice("paid"); got != InvoicePaid {
		t.Errorf("ParseInvoice code = %q", got)
	}
	if got := ParseInvoice("refunded"); got != InvoiceUnknown {
		t.Errorf("ParseInvoice unknown = %q", got)
	}
}

func TestPaymentMethod_WireLabel(t *testing.T) {
	if got := PaymentCash.WireLabel(); got != "Tiền mặt" {
		t.Errorf("cash wire label = %q", got)
	}
	if got := PaymentMomoQR.WireLabel(); got != "Momo QR" {
		t.Errorf("qr wire label = %q", got)
	}
}
