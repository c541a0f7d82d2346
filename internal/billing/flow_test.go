package billing

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/dangkhoa18052004/spa-portal/internal/spaapi"
)

type fakeBillingSource struct {
	mu            sync.Mutex
	appointment   *spaapi.AppointmentDetail
	invoice       *spaapi.Invoice
	createErr     error
	recordErr     error
	qr            *spaapi.QRPayment
	qrErr         error
	recorded       []string
	recordedAmount spaapi.VND
}

func (f *fakeBillingSource) GetAppointment(ctx context.Context, id int) (*spaapi.AppointmentDetail, error) {
	if f.appointment == nil {
		return nil, spaapi.ErrNotFound
	}
	return f.appointment, nil
}

func (f *fakeBillingSource) CreateInvoice(ctx context.Context, appointmentID int) (int, error) {
	if f.createErr != nil {
		return 0, f.createErr
	}
	return f.invoice.ID, nil
}

func (f *fakeBillingSource) GetInvoice(ctx context.Context, id int) (*spaapi.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.invoice == nil {
		return nil, spaapi.ErrNotFound
	}
	inv := *f.invoice
	return &inv, nil
}

func (f *fakeBillingSource) RecordPayment(ctx context.Context, invoiceID int, amount spaapi.VND, method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return f.recordErr
	}
	f.recorded = append(f.recorded, method)
	f.recordedAmount = amount
	return nil
}

func (f *fakeBillingSource) GenerateQR(ctx context.Context, invoiceID int) (*spaapi.QRPayment, error) {
	return f.qr, f.qrErr
}

func (f *fakeBillingSource) setInvoiceStatus(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoice.RawStatus = s
}

func newTestFlow(src *fakeBillingSource) *Flow {
	pollers := NewPollerManager(src, 5*time.Millisecond, 60, nil, nil)
	return NewFlow(src, pollers, nil, nil)
}

func TestFlow_CreateInvoice_OnlyFromCompleted(t *testing.T) {
	src := &fakeBillingSource{
		appointment: &spaapi.AppointmentDetail{ID: 42, RawStatus: "confirmed"},
		invoice:     &spaapi.Invoice{ID: 9, Total: 150000, RawStatus: "Chưa thanh toán"},
	}
	flow := newTestFlow(src)

	if _, err := flow.CreateInvoice(context.Background(), 42); !errors.Is(err, ErrNotCompleted) {
		t.Fatalf("error = %v, want ErrNotCompleted", err)
	}

	src.appointment.RawStatus = "Hoàn thành"
	inv, err := flow.CreateInvoice(context.Background(), 42)
	if err != nil {
		t.Fatalf("CreateInvoice() error = %v", err)
	}
	if inv.ID != 9 || inv.Total != 150000 {
		t.Fatalf("invoice = %+v", inv)
	}
}

func TestFlow_CreateInvoice_Duplicate(t *testing.T) {
	src := &fakeBillingSource{
		appointment: &spaapi.AppointmentDetail{ID: 42, RawStatus: "completed"},
		invoice:     &spaapi.Invoice{ID: 9},
		createErr:   &spaapi.APIError{StatusCode: http.StatusBadRequest, Message: "Lịch hẹn này đã có hóa đơn"},
	}
	flow := newTestFlow(src)

	if _, err := flow.CreateInvoice(context.Background(), 42); !errors.Is(err, ErrInvoiceExists) {
		t.Fatalf("error = %v, want ErrInvoiceExists", err)
	}
}

func TestFlow_SettleCash(t *testing.T) {
	src := &fakeBillingSource{
		invoice: &spaapi.Invoice{ID: 9, Total: 150000, RawStatus: "Chưa thanh toán"},
	}
	flow := newTestFlow(src)

	session := NewCashSession(150000)
	session.SetTendered(200000)
	change, err := flow.SettleCash(context.Background(), 9, session)
	if err != nil {
		t.Fatalf("SettleCash() error = %v", err)
	}
	if change != 50000 {
		t.Fatalf("change = %d, want 50000", change)
	}
	if len(src.recorded) != 1 || src.recorded[0] != "Tiền mặt" {
		t.Fatalf("recorded methods = %v", src.recorded)
	}
	if src.recordedAmount != 200000 {
		t.Fatalf("recorded amount = %d, want the tendered 200000", src.recordedAmount)
	}
}

func TestFlow_SettleCash_Underpaid(t *testing.T) {
	src := &fakeBillingSource{
		invoice: &spaapi.Invoice{ID: 9, Total: 150000, RawStatus: "Chưa thanh toán"},
	}
	flow := newTestFlow(src)

	session := NewCashSession(150000)
	session.SetTendered(149999)
	if _, err := flow.SettleCash(context.Background(), 9, session); !errors.Is(err, ErrUnderpaid) {
		t.Fatalf("error = %v, want ErrUnderpaid", err)
	}
	if len(src.recorded) != 0 {
		t.Fatal("underpayment must never reach the backend")
	}
}

func TestFlow_SettleCash_AlreadyPaid(t *testing.T) {
	src := &fakeBillingSource{
		invoice: &spaapi.Invoice{ID: 9, Total: 150000, RawStatus: "Đã thanh toán"},
	}
	flow := newTestFlow(src)

	session := NewCashSession(150000)
	session.SetTendered(150000)
	if _, err := flow.SettleCash(context.Background(), 9, session); !errors.Is(err, ErrAlreadyPaid) {
		t.Fatalf("error = %v, want ErrAlreadyPaid", err)
	}
}

func TestFlow_StartQRPayment(t *testing.T) {
	src := &fakeBillingSource{
		invoice: &spaapi.Invoice{ID: 9, Total: 150000, RawStatus: "Chưa thanh toán"},
		qr:      &spaapi.QRPayment{PayURL: "https://momo.vn/pay/abc", QRCodeURL: "https://momo.vn/qr/abc"},
	}
	flow := newTestFlow(src)

	qr, err := flow.StartQRPayment(context.Background(), 9, nil)
	if err != nil {
		t.Fatalf("StartQRPayment() error = %v", err)
	}
	if qr.PayURL == "" {
		t.Fatal("expected a pay URL")
	}
	if !flow.pollers.Active(9) {
		t.Fatal("poller should be running")
	}
	flow.StopQRPayment(9)
	if flow.pollers.Active(9) {
		t.Fatal("poller should be stopped")
	}
}

func TestFlow_StartQRPayment_AlreadyPaid(t *testing.T) {
	src := &fakeBillingSource{
		invoice: &spaapi.Invoice{ID: 9, Total: 150000, RawStatus: "Đã thanh toán"},
	}
	flow := newTestFlow(src)

	if _, err := flow.StartQRPayment(context.Background(), 9, nil); !errors.Is(err, ErrAlreadyPaid) {
		t.Fatalf("error = %v, want ErrAlreadyPaid", err)
	}
}
