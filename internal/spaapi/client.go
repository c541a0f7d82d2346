package spaapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dangkhoa18052004/spa-portal/pkg/logging"
)

const (
	defaultBaseURL = "http://localhost:5000/api"
	defaultTimeout = 15 * time.Second
)

type tokenKey struct{}

// WithToken returns a context carrying the caller's bearer token. Every
// client method reads the token from its context, so one client instance
// serves all signed-in users concurrently.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext extracts the bearer token placed by WithToken.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey{}).(string)
	return token, ok && token != ""
}

// Client talks to the spa management backend's REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *logging.Logger
}

// New constructs a backend client.
func New(baseURL string, timeout time.Duration, logger *logging.Logger) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
}

// ListServices returns the service catalog.
func (c *Client) ListServices(ctx context.Context) ([]Service, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/admin/services", nil, &raw); err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	services, err := flexibleList[Service](raw, "services")
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return services, nil
}

// ListStaff returns every employee, including non-bookable roles. Callers
// filter to the bookable ones.
func (c *Client) ListStaff(ctx context.Context) ([]Staff, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/admin/staff/list-all", nil, &raw); err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	staff, err := flexibleList[Staff](raw, "staff")
	if err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	return staff, nil
}

// ListCustomers returns the customer directory.
func (c *Client) ListCustomers(ctx context.Context) ([]Customer, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/admin/customers/list", nil, &raw); err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	customers, err := flexibleList[Customer](raw, "customers")
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	return customers, nil
}

// ListAvailableStaff returns the staff free for the whole span the given
// services occupy starting at startsAt.
func (c *Client) ListAvailableStaff(ctx context.Context, startsAt time.Time, serviceIDs []int) ([]Staff, error) {
	q := url.Values{}
	q.Set("ngaygio", FormatStartsAt(startsAt))
	q.Set("madv_list", joinIDs(serviceIDs))

	var wrapped struct {
		Staff []Staff `json:"available_staff"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/admin/staff/available?"+q.Encode(), nil, &wrapped); err != nil {
		return nil, fmt.Errorf("list available staff: %w", err)
	}
	return wrapped.Staff, nil
}

// CheckAvailability probes whether one staff member is free for the slot.
func (c *Client) CheckAvailability(ctx context.Context, staffID int, startsAt time.Time, serviceIDs []int) (*Availability, error) {
	body := map[string]interface{}{
		"manv":      staffID,
		"ngaygio":   FormatStartsAt(startsAt),
		"madv_list": serviceIDs,
	}
	var resp Availability
	if err := c.doJSON(ctx, http.MethodPost, "/admin/appointments/check-availability", body, &resp); err != nil {
		return nil, fmt.Errorf("check availability: %w", err)
	}
	return &resp, nil
}

// CreateAppointment books a new appointment. A 409 comes back as a
// *ConflictError listing the colliding slots.
func (c *Client) CreateAppointment(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	var resp BookingResult
	if err := c.doJSON(ctx, http.MethodPost, "/admin/appointments", req, &resp); err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	return &resp, nil
}

// UpdateAppointment reschedules or re-details an existing appointment.
func (c *Client) UpdateAppointment(ctx context.Context, id int, req BookingRequest) (*BookingResult, error) {
	var resp BookingResult
	if err := c.doJSON(ctx, http.MethodPut, "/admin/appointments/"+strconv.Itoa(id), req, &resp); err != nil {
		return nil, fmt.Errorf("update appointment %d: %w", id, err)
	}
	return &resp, nil
}

// ListAppointments returns appointment rows matching the filter.
func (c *Client) ListAppointments(ctx context.Context, f ListFilter) ([]AppointmentSummary, error) {
	q := url.Values{}
	if f.StartDate != "" {
		q.Set("start_date", f.StartDate)
	}
	if f.EndDate != "" {
		q.Set("end_date", f.EndDate)
	}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	path := "/admin/appointments"
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	rows, err := flexibleList[AppointmentSummary](raw, "appointments")
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return rows, nil
}

// GetAppointment returns the full record for one appointment.
func (c *Client) GetAppointment(ctx context.Context, id int) (*AppointmentDetail, error) {
	var wrapped struct {
		Appointment *AppointmentDetail `json:"appointment"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/admin/appointments/"+strconv.Itoa(id), nil, &wrapped); err != nil {
		return nil, fmt.Errorf("get appointment %d: %w", id, err)
	}
	if wrapped.Appointment == nil {
		return nil, fmt.Errorf("get appointment %d: %w", id, ErrNotFound)
	}
	return wrapped.Appointment, nil
}

// ConfirmAppointment moves a pending appointment to confirmed.
func (c *Client) ConfirmAppointment(ctx context.Context, id int) error {
	path := fmt.Sprintf("/admin/appointments/%d/confirm", id)
	if err := c.doJSON(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("confirm appointment %d: %w", id, err)
	}
	return nil
}

// CompleteAppointment marks a confirmed or in-progress appointment done.
func (c *Client) CompleteAppointment(ctx context.Context, id int) error {
	path := fmt.Sprintf("/admin/appointments/%d/complete", id)
	if err := c.doJSON(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("complete appointment %d: %w", id, err)
	}
	return nil
}

// CancelAppointment cancels with an optional free-text reason.
func (c *Client) CancelAppointment(ctx context.Context, id int, reason string) error {
	path := fmt.Sprintf("/admin/appointments/%d/cancel", id)
	body := map[string]string{"reason": reason}
	if err := c.doJSON(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("cancel appointment %d: %w", id, err)
	}
	return nil
}

// Statistics returns appointment counts per status for the filter range.
func (c *Client) Statistics(ctx context.Context, f ListFilter) (*Statistics, error) {
	q := url.Values{}
	if f.StartDate != "" {
		q.Set("start_date", f.StartDate)
	}
	if f.EndDate != "" {
		q.Set("end_date", f.EndDate)
	}
	path := "/admin/appointments/statistics"
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	var wrapped struct {
		Statistics *Statistics `json:"statistics"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &wrapped); err != nil {
		return nil, fmt.Errorf("appointment statistics: %w", err)
	}
	if wrapped.Statistics == nil {
		return &Statistics{}, nil
	}
	return wrapped.Statistics, nil
}

// CreateInvoice generates the invoice for a completed appointment and
// returns its id. The backend refuses duplicates with a 400.
func (c *Client) CreateInvoice(ctx context.Context, appointmentID int) (int, error) {
	path := fmt.Sprintf("/admin/appointments/%d/invoice", appointmentID)
	var resp struct {
		InvoiceID int    `json:"invoice_id"`
		Message   string `json:"msg"`
	}
	if err := c.doJSON(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return 0, fmt.Errorf("create invoice for appointment %d: %w", appointmentID, err)
	}
	return resp.InvoiceID, nil
}

// GetInvoice returns the invoice with its itemized lines.
func (c *Client) GetInvoice(ctx context.Context, id int) (*Invoice, error) {
	var resp Invoice
	if err := c.doJSON(ctx, http.MethodGet, "/admin/invoices/"+strconv.Itoa(id), nil, &resp); err != nil {
		return nil, fmt.Errorf("get invoice %d: %w", id, err)
	}
	return &resp, nil
}

// RecordPayment settles an invoice. The method label is the backend's wire
// value, for example "Tiền mặt".
func (c *Client) RecordPayment(ctx context.Context, invoiceID int, amount VND, method string) error {
	path := fmt.Sprintf("/admin/invoices/%d/record-payment", invoiceID)
	body := map[string]interface{}{
		"sotien":     amount,
		"phuongthuc": method,
	}
	if err := c.doJSON(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("record payment on invoice %d: %w", invoiceID, err)
	}
	return nil
}

// GenerateQR asks the backend for a MoMo payment link for the invoice.
func (c *Client) GenerateQR(ctx context.Context, invoiceID int) (*QRPayment, error) {
	path := fmt.Sprintf("/admin/invoices/%d/generate-qr", invoiceID)
	var resp QRPayment
	if err := c.doJSON(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("generate qr for invoice %d: %w", invoiceID, err)
	}
	return &resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	token, ok := TokenFromContext(ctx)
	if !ok {
		return ErrNoCredential
	}
	endpoint := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.errorFrom(resp.StatusCode, path, respBody)
	}

	if len(respBody) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorFrom maps a non-2xx response to the typed errors callers branch on.
func (c *Client) errorFrom(status int, path string, body []byte) error {
	var payload struct {
		Message   string     `json:"msg"`
		Conflicts []Conflict `json:"conflicts"`
	}
	_ = json.Unmarshal(body, &payload)

	msg := payload.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
		if len(msg) > 300 {
			msg = msg[:300]
		}
	}
	c.logger.Warn("spa API non-2xx response", "status", status, "path", path, "msg", msg)

	switch {
	case status == http.StatusConflict:
		return &ConflictError{Message: msg, Conflicts: payload.Conflicts}
	case status == http.StatusNotFound:
		return ErrNotFound
	default:
		return &APIError{StatusCode: status, Message: msg}
	}
}
