// Package spaapi is the REST client for the spa management backend. It
// covers the catalog, appointment and invoice endpoints the booking and
// payment workflow drives; everything else the backend offers is out of
// scope here.
package spaapi

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the wire format for appointment start timestamps: local
// date and minute precision, no zone. The backend parses exactly this.
const TimeLayout = "2006-01-02T15:04"

// VND is an amount in Vietnamese đồng. The backend serializes amounts
// inconsistently (raw numbers on some endpoints, decimal strings such as
// "150000.00" on others), so unmarshalling accepts both.
type VND int64

// UnmarshalJSON accepts numeric and quoted decimal representations.
func (v *VND) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*v = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("spaapi: invalid amount %q: %w", s, err)
	}
	*v = VND(f)
	return nil
}

// MarshalJSON writes the amount as a plain number.
func (v VND) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(v), 10)), nil
}

// Service is a billable spa offering.
type Service struct {
	ID          int    `json:"madv"`
	Name        string `json:"tendv"`
	Price       VND    `json:"gia"`
	DurationMin int    `json:"thoiluong"`
	Active      bool   `json:"trangthai"`
}

// Staff is an employee who can be assigned to appointments.
type Staff struct {
	ID        int    `json:"manv"`
	Name      string `json:"hoten"`
	Specialty string `json:"chuyenmon"`
	Role      string `json:"role"`
	Active    bool   `json:"trangthai"`
}

// Customer identifies a spa customer.
type Customer struct {
	ID    int    `json:"makh"`
	Name  string `json:"hoten"`
	Phone string `json:"sdt"`
	Email string `json:"email"`
}

// Conflict describes one appointment that collides with a requested slot.
type Conflict struct {
	StartsAt string `json:"ngaygio"`
	EndsAt   string `json:"ketthuc"`
	Service  string `json:"dichvu"`
	Customer string `json:"khachhang"`
}

// String formats the conflict the way the admin screen lists collisions.
func (c Conflict) String() string {
	return fmt.Sprintf("%s - %s: %s (%s)", c.StartsAt, c.EndsAt, c.Service, c.Customer)
}

// Availability is the result of a single staff availability probe.
type Availability struct {
	Available bool       `json:"available"`
	Message   string     `json:"message"`
	Conflicts []Conflict `json:"conflicts,omitempty"`
}

// BookingRequest is the create/update payload for an appointment. A nil
// StaffID means auto-assign: the backend picks a free staff member.
type BookingRequest struct {
	CustomerID int    `json:"makh"`
	ServiceIDs []int  `json:"madv_list"`
	StaffID    *int   `json:"manv"`
	StartsAt   string `json:"ngaygio"`
	Note       string `json:"ghichu,omitempty"`
}

// BookingResult is the backend's answer to a successful create/update.
type BookingResult struct {
	AppointmentID int    `json:"malh"`
	AssignedStaff int    `json:"manv_assigned"`
	Message       string `json:"msg"`
}

// AppointmentSummary is one row of the appointment list.
type AppointmentSummary struct {
	ID           int    `json:"malh"`
	StartsAt     string `json:"ngaygio"`
	CustomerName string `json:"khachhang_hoten"`
	ServiceName  string `json:"dichvu_ten"`
	StaffName    string `json:"nhanvien_hoten"`
	RawStatus    string `json:"trangthai"`
	Note         string `json:"ghichu,omitempty"`
}

// AppointmentDetail is the full appointment record.
type AppointmentDetail struct {
	ID        int       `json:"malh"`
	StartsAt  string    `json:"ngaygio"`
	Customer  *Customer `json:"khachhang"`
	Staff     *Staff    `json:"nhanvien"`
	Services  []Service `json:"services"`
	RawStatus string    `json:"trangthai"`
	Note      string    `json:"ghichu,omitempty"`
}

// Statistics summarizes appointment counts for a date range.
type Statistics struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Confirmed  int `json:"confirmed"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Cancelled  int `json:"cancelled"`
}

// InvoiceLine is one itemized row of an invoice.
type InvoiceLine struct {
	ServiceName string `json:"tendv"`
	Quantity    int    `json:"soluong"`
	UnitPrice   VND    `json:"dongia"`
	LineTotal   VND    `json:"thanhtien"`
}

// Invoice is the billing record generated from a completed appointment.
type Invoice struct {
	ID            int           `json:"mahd"`
	AppointmentID int           `json:"malh"`
	CustomerName  string        `json:"khachhang_hoten"`
	Total         VND           `json:"tongtien"`
	RawStatus     string        `json:"trangthai"`
	CreatedAt     string        `json:"ngaytao"`
	Lines         []InvoiceLine `json:"chitiet,omitempty"`
}

// QRPayment carries the MoMo payment link for QR rendering.
type QRPayment struct {
	PayURL    string `json:"payUrl"`
	QRCodeURL string `json:"qrCodeUrl"`
}

// ListFilter narrows appointment list and statistics queries. Zero values
// mean "no filter".
type ListFilter struct {
	StartDate string // YYYY-MM-DD
	EndDate   string // YYYY-MM-DD
	Status    string // raw backend status value
}

// FormatStartsAt renders a time in the wire layout.
func FormatStartsAt(t time.Time) string {
	return t.Format(TimeLayout)
}

// joinIDs renders a service id list as the comma-separated query value the
// availability endpoint expects.
func joinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

// flexibleList tolerates the backend's two list shapes: a bare JSON array,
// or an envelope {"success": true, "<key>": [...]}.
func flexibleList[T any](raw json.RawMessage, key string) ([]T, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var out []T
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	inner, ok := envelope[key]
	if !ok {
		return nil, fmt.Errorf("spaapi: response missing %q list", key)
	}
	var out []T
	if err := json.Unmarshal(inner, &out); err != nil {
		return nil, err
	}
	return out, nil
}
