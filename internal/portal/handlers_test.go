package portal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	ws "github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/dangkhoa18052004/spa-portal/internal/billing"
	"github.com/dangkhoa18052004/spa-portal/internal/booking"
	"github.com/dangkhoa18052004/spa-portal/internal/catalog"
	"github.com/dangkhoa18052004/spa-portal/internal/http/middleware"
	"github.com/dangkhoa18052004/spa-portal/internal/spaapi"
	"github.com/dangkhoa18052004/spa-portal/pkg/logging"
)

const (
	servicesJSON = `[
		{"madv":1,"tendv":"Massage body","gia":150000,"thoiluong":60,"trangthai":true},
		{"madv":2,"tendv":"Chăm sóc da","gia":200000,"thoiluong":30,"trangthai":true},
		{"madv":3,"tendv":"Gói cũ","gia":100000,"thoiluong":45,"trangthai":false}
	]`
	staffJSON = `[
		{"manv":7,"hoten":"Trần Thị B","chuyenmon":"Massage","role":"staff","trangthai":true},
		{"manv":8,"hoten":"Quản trị","chuyenmon":"","role":"admin","trangthai":true}
	]`
	customersJSON = `[
		{"makh":3,"hoten":"Nguyễn Văn A","sdt":"0900000001","email":"a@example.com"}
	]`
)

// backendState drives the fake upstream API. Tests tweak fields before
// issuing requests.
type backendState struct {
	mu         sync.Mutex
	conflict   bool
	createReqs []spaapi.BookingRequest
	cancels    []string

	appointmentStatus   string
	appointmentStartsAt string

	// When set, the next available-staff request signals availEntered and
	// parks until availRelease closes. Lets a test edit the session while
	// the upstream call is in flight.
	availEntered chan struct{}
	availRelease chan struct{}

	invoiceStatus  string
	paidAfter      int // invoice reads paid from this GetInvoice call on; 0 = never
	invoiceReads   int
	payments       []string
	paymentAmounts []int64
}

func (s *backendState) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		path := r.URL.Path
		switch {
		case path == "/admin/services":
			io.WriteString(w, servicesJSON)
		case path == "/admin/staff/list-all":
			io.WriteString(w, staffJSON)
		case path == "/admin/customers/list":
			io.WriteString(w, customersJSON)
		case path == "/admin/staff/available":
			if s.availEntered != nil {
				entered, release := s.availEntered, s.availRelease
				s.availEntered = nil
				close(entered)
				s.mu.Unlock()
				<-release
				s.mu.Lock()
			}
			io.WriteString(w, `{"available_staff":[{"manv":7,"hoten":"Trần Thị B","chuyenmon":"Massage","role":"staff","trangthai":true}]}`)
		case path == "/admin/appointments" && r.Method == http.MethodPost:
			if s.conflict {
				w.WriteHeader(http.StatusConflict)
				io.WriteString(w, `{"msg":"Nhân viên đã có lịch hẹn trong khung giờ này","conflicts":[{"ngaygio":"09:00","ketthuc":"10:30","dichvu":"Massage body","khachhang":"Nguyễn Văn A"}]}`)
				return
			}
			var req spaapi.BookingRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			s.createReqs = append(s.createReqs, req)
			io.WriteString(w, `{"malh":42,"manv_assigned":7,"msg":"Đặt lịch thành công"}`)
		case path == "/admin/appointments/42":
			fmt.Fprintf(w, `{"appointment":{"malh":42,"ngaygio":%q,"trangthai":%q}}`,
				s.appointmentStartsAt, s.appointmentStatus)
		case strings.HasSuffix(path, "/cancel"):
			var body struct {
				Reason string `json:"reason"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			s.cancels = append(s.cancels, body.Reason)
			io.WriteString(w, `{"msg":"ok"}`)
		case strings.HasSuffix(path, "/confirm"), strings.HasSuffix(path, "/complete"):
			io.WriteString(w, `{"msg":"ok"}`)
		case path == "/admin/appointments/42/invoice":
			io.WriteString(w, `{"invoice_id":9,"msg":"ok"}`)
		case path == "/admin/invoices/9":
			s.invoiceReads++
			status := s.invoiceStatus
			if s.paidAfter > 0 && s.invoiceReads >= s.paidAfter {
				status = "Đã thanh toán"
			}
			fmt.Fprintf(w, `{"mahd":9,"malh":42,"tongtien":"150000.00","trangthai":%q}`, status)
		case path == "/admin/invoices/9/record-payment":
			var body struct {
				Amount int64  `json:"sotien"`
				Method string `json:"phuongthuc"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			s.payments = append(s.payments, body.Method)
			s.paymentAmounts = append(s.paymentAmounts, body.Amount)
			io.WriteString(w, `{"msg":"ok"}`)
		case path == "/admin/invoices/9/generate-qr":
			io.WriteString(w, `{"payUrl":"https://momo.vn/pay/abc","qrCodeUrl":"https://momo.vn/qr/abc.png"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"msg":"not found"}`)
		}
	}
}

type portalFixture struct {
	handler http.Handler
	backend *backendState
	pollers *billing.PollerManager
}

func newPortalFixture(t *testing.T) *portalFixture {
	t.Helper()

	state := &backendState{
		appointmentStatus:   "Đã xác nhận",
		appointmentStartsAt: "2024-06-01T09:00",
		invoiceStatus:       "Chưa thanh toán",
	}
	upstream := httptest.NewServer(state.handler())
	t.Cleanup(upstream.Close)

	logger := logging.NewWithWriter("error", io.Discard)
	api := spaapi.New(upstream.URL, 5*time.Second, logger)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cat := catalog.New(api, rdb, time.Minute, logger)

	checker := booking.NewChecker(api, logger, nil)
	submitter := booking.NewSubmitter(api, nil, logger, nil)
	pollers := billing.NewPollerManager(api, 10*time.Millisecond, 30, logger, nil)
	t.Cleanup(pollers.StopAll)
	flow := billing.NewFlow(api, pollers, logger, nil)

	sessions := NewSessionStore(time.Hour, logger)
	h := NewHandler(sessions, cat, api, checker, submitter, flow, nil, NewEventHub(), logger)

	return &portalFixture{
		handler: testAuth(h.Routes()),
		backend: state,
		pollers: pollers,
	}
}

// testAuth stands in for the JWT middleware. The user comes from request
// headers so tests can act as different principals.
func testAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := r.Header.Get("X-Test-User")
		if user == "" {
			user = "letan01"
		}
		role := r.Header.Get("X-Test-Role")
		if role == "" {
			role = "receptionist"
		}
		ctx := middleware.WithPrincipal(r.Context(), middleware.Principal{Username: user, Role: role})
		ctx = spaapi.WithToken(ctx, "portal-test-token")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (f *portalFixture) do(t *testing.T, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *portalFixture) openSession(t *testing.T) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/sessions", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("open session: status = %d, body %s", rec.Code, rec.Body)
	}
	var resp struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if resp.SessionID == "" {
		t.Fatal("open session: empty session_id")
	}
	return resp.SessionID
}

func TestOpenSession_LoadsCatalog(t *testing.T) {
	f := newPortalFixture(t)

	rec := f.do(t, http.MethodPost, "/sessions", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp struct {
		SessionID string           `json:"session_id"`
		Services  []spaapi.Service `json:"services"`
		Staff     []spaapi.Staff   `json:"staff"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Services) != 2 {
		t.Errorf("active services = %d, want 2", len(resp.Services))
	}
	if len(resp.Staff) != 1 || resp.Staff[0].ID != 7 {
		t.Errorf("bookable staff = %+v, want only id 7", resp.Staff)
	}
}

func TestSession_OwnerIsolation(t *testing.T) {
	f := newPortalFixture(t)
	sid := f.openSession(t)

	rec := f.do(t, http.MethodPost, "/sessions/"+sid+"/services/1/toggle", nil,
		"X-Test-User", "letan02")
	if rec.Code != http.StatusNotFound {
		t.Errorf("other owner status = %d, want 404", rec.Code)
	}
}

func TestToggleService_UpdatesTotals(t *testing.T) {
	f := newPortalFixture(t)
	sid := f.openSession(t)

	rec := f.do(t, http.MethodPost, "/sessions/"+sid+"/services/1/toggle", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	rec = f.do(t, http.MethodPost, "/sessions/"+sid+"/services/2/toggle", nil)
	var resp struct {
		ServiceIDs []int `json:"service_ids"`
		Duration   int   `json:"total_duration_min"`
		Price      int64 `json:"total_price"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.ServiceIDs) != 2 || resp.Duration != 90 || resp.Price != 350000 {
		t.Errorf("summary = %+v, want 2 services, 90 min, 350000", resp)
	}

	rec = f.do(t, http.MethodPost, "/sessions/"+sid+"/services/99/toggle", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown service status = %d, want 400", rec.Code)
	}
}

func TestAvailability_PromptWithoutSlot(t *testing.T) {
	f := newPortalFixture(t)
	sid := f.openSession(t)

	f.do(t, http.MethodPost, "/sessions/"+sid+"/services/1/toggle", nil)

	rec := f.do(t, http.MethodGet, "/sessions/"+sid+"/availability", nil)
	var resp struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.State != "prompt" {
		t.Errorf("state = %q, want prompt", resp.State)
	}
}

func TestAvailability_ListsCandidates(t *testing.T) {
	f := newPortalFixture(t)
	sid := f.openSession(t)

	f.do(t, http.MethodPost, "/sessions/"+sid+"/services/1/toggle", nil)
	f.do(t, http.MethodPut, "/sessions/"+sid+"/schedule",
		map[string]string{"date": "2024-06-01", "time": "09:00"})

	rec := f.do(t, http.MethodGet, "/sessions/"+sid+"/availability", nil)
	var resp struct {
		State string         `json:"state"`
		Staff []spaapi.Staff `json:"staff"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.State != "candidates" || len(resp.Staff) != 1 || resp.Staff[0].ID != 7 {
		t.Errorf("availability = %+v, want candidate staff 7", resp)
	}
}

func TestAvailability_StaleAfterScheduleChange(t *testing.T) {
	f := newPortalFixture(t)
	sid := f.openSession(t)

	f.do(t, http.MethodPost, "/sessions/"+sid+"/services/1/toggle", nil)
	f.do(t, http.MethodPut, "/sessions/"+sid+"/schedule",
		map[string]string{"date": "2024-06-01", "time": "09:00"})

	entered := make(chan struct{})
	release := make(chan struct{})
	f.backend.mu.Lock()
	f.backend.availEntered = entered
	f.backend.availRelease = release
	f.backend.mu.Unlock()

	type availResult struct {
		code  int
		state string
	}
	done := make(chan availResult, 1)
	go func() {
		rec := f.do(t, http.MethodGet, "/sessions/"+sid+"/availability", nil)
		var resp struct {
			State string `json:"state"`
		}
		_ = json.Unmarshal(rec.Body.Bytes(), &resp)
		done <- availResult{code: rec.Code, state: resp.State}
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("upstream never saw the availability request")
	}

	// The session must stay editable while the upstream call is in flight.
	rec := f.do(t, http.MethodPut, "/sessions/"+sid+"/schedule",
		map[string]string{"date": "2024-06-01", "time": "10:00"})
	if rec.Code != http.StatusOK {
		t.Fatalf("schedule change during availability check: status = %d, body %s", rec.Code, rec.Body)
	}
	close(release)

	select {
	case got := <-done:
		if got.code != http.StatusOK {
			t.Fatalf("availability status = %d", got.code)
		}
		if got.state != "stale" {
			t.Errorf("state = %q, want stale after the slot moved", got.state)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("availability request never returned")
	}
}

func TestSubmit_CreatesAppointment(t *testing.T) {
	f := newPortalFixture(t)
	sid := f.openSession(t)

	f.do(t, http.MethodPost, "/sessions/"+sid+"/services/1/toggle", nil)
	f.do(t, http.MethodPut, "/sessions/"+sid+"/schedule",
		map[string]string{"date": "2024-06-01", "time": "09:00"})

	rec := f.do(t, http.MethodPost, "/sessions/"+sid+"/submit",
		map[string]interface{}{"customer_id": 3})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp struct {
		AppointmentID int  `json:"appointment_id"`
		Refresh       bool `json:"refresh"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.AppointmentID != 42 || !resp.Refresh {
		t.Errorf("outcome = %+v, want appointment 42 with refresh", resp)
	}

	f.backend.mu.Lock()
	defer f.backend.mu.Unlock()
	if len(f.backend.createReqs) != 1 {
		t.Fatalf("upstream creates = %d, want 1", len(f.backend.createReqs))
	}
	req := f.backend.createReqs[0]
	if req.CustomerID != 3 || req.StartsAt != "2024-06-01T09:00" || req.StaffID != nil {
		t.Errorf("create request = %+v, want customer 3 at 2024-06-01T09:00 auto-assigned", req)
	}
}

func TestSubmit_MissingFields(t *testing.T) {
	f := newPortalFixture(t)
	sid := f.openSession(t)

	rec := f.do(t, http.MethodPost, "/sessions/"+sid+"/submit", map[string]interface{}{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp struct {
		Errors []booking.FieldError `json:"errors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	fields := map[string]bool{}
	for _, fe := range resp.Errors {
		fields[fe.Field] = true
	}
	for _, want := range []string{"customer", "services", "datetime"} {
		if !fields[want] {
			t.Errorf("missing field error for %q in %+v", want, resp.Errors)
		}
	}

	f.backend.mu.Lock()
	defer f.backend.mu.Unlock()
	if len(f.backend.createReqs) != 0 {
		t.Errorf("upstream creates = %d, want 0", len(f.backend.createReqs))
	}
}

func TestSubmit_ConflictRendersLines(t *testing.T) {
	f := newPortalFixture(t)
	sid := f.openSession(t)
	f.backend.conflict = true

	f.do(t, http.MethodPost, "/sessions/"+sid+"/services/1/toggle", nil)
	f.do(t, http.MethodPut, "/sessions/"+sid+"/schedule",
		map[string]string{"date": "2024-06-01", "time": "09:00"})

	rec := f.do(t, http.MethodPost, "/sessions/"+sid+"/submit",
		map[string]interface{}{"customer_id": 3})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp struct {
		Msg   string   `json:"msg"`
		Lines []string `json:"lines"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Msg != "Nhân viên đã có lịch hẹn trong khung giờ này" {
		t.Errorf("msg = %q", resp.Msg)
	}
	if len(resp.Lines) != 1 || resp.Lines[0] != "09:00 - 10:30: Massage body (Nguyễn Văn A)" {
		t.Errorf("lines = %+v", resp.Lines)
	}
}

func TestCancel_RequiresReason(t *testing.T) {
	f := newPortalFixture(t)

	rec := f.do(t, http.MethodPost, "/appointments/42/cancel",
		map[string]string{"reason": "   "})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/appointments/42/cancel",
		map[string]string{"reason": "Khách bận"})
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, body %s", rec.Code, rec.Body)
	}
	f.backend.mu.Lock()
	defer f.backend.mu.Unlock()
	if len(f.backend.cancels) != 1 || f.backend.cancels[0] != "Khách bận" {
		t.Errorf("upstream cancels = %+v", f.backend.cancels)
	}
}

func TestCustomerCancel_CutoffEnforced(t *testing.T) {
	f := newPortalFixture(t)

	// Starts two hours from now, inside the cutoff window.
	f.backend.appointmentStartsAt = spaapi.FormatStartsAt(time.Now().Add(2 * time.Hour))
	rec := f.do(t, http.MethodPost, "/appointments/42/cancel",
		map[string]string{"reason": "Đổi lịch"},
		"X-Test-User", "khach03", "X-Test-Role", "customer")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("late cancel status = %d, want 400", rec.Code)
	}

	f.backend.appointmentStartsAt = spaapi.FormatStartsAt(time.Now().Add(8 * time.Hour))
	rec = f.do(t, http.MethodPost, "/appointments/42/cancel",
		map[string]string{"reason": "Đổi lịch"},
		"X-Test-User", "khach03", "X-Test-Role", "customer")
	if rec.Code != http.StatusOK {
		t.Errorf("early cancel status = %d, body %s", rec.Code, rec.Body)
	}
}

func TestCreateInvoice_OnlyFromCompleted(t *testing.T) {
	f := newPortalFixture(t)

	rec := f.do(t, http.MethodPost, "/appointments/42/invoice", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("confirmed appointment status = %d, want 400", rec.Code)
	}

	f.backend.appointmentStatus = "Hoàn thành"
	rec = f.do(t, http.MethodPost, "/appointments/42/invoice", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "unpaid" {
		t.Errorf("invoice status = %q, want unpaid", resp.Status)
	}
}

func TestSettleCash(t *testing.T) {
	f := newPortalFixture(t)

	rec := f.do(t, http.MethodPost, "/invoices/9/cash",
		map[string]int64{"tendered": 100000})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("underpaid status = %d, want 400", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/invoices/9/cash",
		map[string]int64{"tendered": 200000})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp struct {
		Change int64 `json:"change"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Change != 50000 {
		t.Errorf("change = %d, want 50000", resp.Change)
	}

	f.backend.mu.Lock()
	defer f.backend.mu.Unlock()
	if len(f.backend.payments) != 1 || f.backend.payments[0] != "Tiền mặt" {
		t.Errorf("payments = %+v, want one cash payment", f.backend.payments)
	}
	if len(f.backend.paymentAmounts) != 1 || f.backend.paymentAmounts[0] != 200000 {
		t.Errorf("payment amounts = %+v, want the tendered 200000", f.backend.paymentAmounts)
	}
}

func TestQRPayment_StreamsUntilPaid(t *testing.T) {
	f := newPortalFixture(t)

	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/invoices/9/events"
	conn, _, err := ws.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Paid on the third poll.
	f.backend.mu.Lock()
	f.backend.paidAfter = 3
	f.backend.mu.Unlock()

	rec := f.do(t, http.MethodPost, "/invoices/9/qr", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start qr status = %d, body %s", rec.Code, rec.Body)
	}
	var qr struct {
		PayURL    string `json:"pay_url"`
		QRCodeURL string `json:"qr_code_url"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &qr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if qr.PayURL == "" || qr.QRCodeURL == "" {
		t.Errorf("qr payload = %+v, want both URLs", qr)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		var ev paymentEvent
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read event: %v", err)
		}
		if !ev.Terminal {
			if ev.State != "waiting" {
				t.Errorf("non-terminal state = %q, want waiting", ev.State)
			}
			continue
		}
		if ev.State != "paid" || ev.InvoiceID != 9 {
			t.Errorf("terminal event = %+v, want paid invoice 9", ev)
		}
		break
	}
}

func TestDismissQR_StopsPollerOnly(t *testing.T) {
	f := newPortalFixture(t)

	rec := f.do(t, http.MethodPost, "/invoices/9/qr", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start qr status = %d, body %s", rec.Code, rec.Body)
	}
	if !f.pollers.Active(9) {
		t.Fatal("poller not active after start")
	}

	rec = f.do(t, http.MethodDelete, "/invoices/9/qr", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("dismiss status = %d, want 204", rec.Code)
	}

	stopped := false
	for i := 0; i < 100; i++ {
		if !f.pollers.Active(9) {
			stopped = true
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !stopped {
		t.Error("poller still active after dismiss")
	}

	f.backend.mu.Lock()
	defer f.backend.mu.Unlock()
	if len(f.backend.payments) != 0 {
		t.Errorf("payments = %+v, dismissing must not touch the invoice", f.backend.payments)
	}
}
