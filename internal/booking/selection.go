// Package booking owns the appointment workflow: what the operator has
// selected, whether the slot is free, and the submission itself. All state
// here belongs to one portal session; nothing is shared across sessions.
package booking

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dangkhoa18052004/spa-portal/internal/spaapi"
)

// defaultDurationMin stands in for services without a stored duration.
const defaultDurationMin = 60

// Selection is the booking form state for one session. It is not safe for
// concurrent use; the owning session serializes access.
type Selection struct {
	services   map[int]spaapi.Service
	serviceIDs []int
	staffID    *int
	customerID int
	date       string // YYYY-MM-DD
	timeOfDay  string // HH:MM

	// appointmentID > 0 switches submission to an update.
	appointmentID int
	note          string

	sending atomic.Bool
}

// NewSelection starts an empty selection over the loaded active catalog.
// Only ids present in the catalog can be selected.
func NewSelection(catalog []spaapi.Service) *Selection {
	services := make(map[int]spaapi.Service, len(catalog))
	for _, s := range catalog {
		services[s.ID] = s
	}
	return &Selection{services: services}
}

// ToggleService adds the service on first toggle and removes it on the
// second. Insertion order is preserved and duplicates are impossible.
func (s *Selection) ToggleService(id int) error {
	if _, ok := s.services[id]; !ok {
		return fmt.Errorf("%w: service %d", ErrUnknownService, id)
	}
	for i, existing := range s.serviceIDs {
		if existing == id {
			s.serviceIDs = append(s.serviceIDs[:i], s.serviceIDs[i+1:]...)
			return nil
		}
	}
	s.serviceIDs = append(s.serviceIDs, id)
	return nil
}

// ToggleStaff selects one staff member. Toggling the current selection
// clears it; a cleared selection means auto-assign.
func (s *Selection) ToggleStaff(id int) {
	if s.staffID != nil && *s.staffID == id {
		s.staffID = nil
		return
	}
	s.staffID = &id
}

// StaffID returns the selected staff id, or nil for auto-assign.
func (s *Selection) StaffID() *int { return s.staffID }

// ServiceIDs returns the selected service ids in selection order.
func (s *Selection) ServiceIDs() []int {
	out := make([]int, len(s.serviceIDs))
	copy(out, s.serviceIDs)
	return out
}

// SelectedServices resolves the selection against the catalog, in order.
func (s *Selection) SelectedServices() []spaapi.Service {
	out := make([]spaapi.Service, 0, len(s.serviceIDs))
	for _, id := range s.serviceIDs {
		out = append(out, s.services[id])
	}
	return out
}

// TotalDuration sums the selected service durations, substituting the
// default for services without one.
func (s *Selection) TotalDuration() time.Duration {
	total := 0
	for _, id := range s.serviceIDs {
		d := s.services[id].DurationMin
		if d <= 0 {
			d = defaultDurationMin
		}
		total += d
	}
	return time.Duration(total) * time.Minute
}

// TotalPrice sums the selected service prices.
func (s *Selection) TotalPrice() spaapi.VND {
	var total spaapi.VND
	for _, id := range s.serviceIDs {
		total += s.services[id].Price
	}
	return total
}

func (s *Selection) SetCustomer(id int)       { s.customerID = id }
func (s *Selection) CustomerID() int          { return s.customerID }
func (s *Selection) SetDate(date string)      { s.date = date }
func (s *Selection) SetTime(timeOfDay string) { s.timeOfDay = timeOfDay }
func (s *Selection) SetNote(note string)      { s.note = note }

// SetAppointment loads an existing appointment id for editing.
func (s *Selection) SetAppointment(id int) { s.appointmentID = id }
func (s *Selection) AppointmentID() int    { return s.appointmentID }

// Key identifies the availability-relevant part of the selection: the
// ordered service ids plus date and time. Any change to those produces a
// different key, which is how stale availability responses are detected.
func (s *Selection) Key() string {
	ids := make([]string, len(s.serviceIDs))
	for i, id := range s.serviceIDs {
		ids[i] = strconv.Itoa(id)
	}
	return strings.Join(ids, ",") + "|" + s.date + "|" + s.timeOfDay
}

// Clone copies the selection so an availability probe can run without
// holding the owning session's lock. The catalog map is shared; it is
// read-only after construction. The in-flight submit flag is not carried
// over.
func (s *Selection) Clone() *Selection {
	ids := make([]int, len(s.serviceIDs))
	copy(ids, s.serviceIDs)
	clone := &Selection{
		services:      s.services,
		serviceIDs:    ids,
		customerID:    s.customerID,
		date:          s.date,
		timeOfDay:     s.timeOfDay,
		appointmentID: s.appointmentID,
		note:          s.note,
	}
	if s.staffID != nil {
		id := *s.staffID
		clone.staffID = &id
	}
	return clone
}

// StartsAt parses the chosen date and time in local time.
func (s *Selection) StartsAt() (time.Time, error) {
	if s.date == "" || s.timeOfDay == "" {
		return time.Time{}, ErrSlotNotChosen
	}
	t, err := time.ParseInLocation(spaapi.TimeLayout, s.date+"T"+s.timeOfDay, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrSlotNotChosen, err)
	}
	return t, nil
}

// HasSlot reports whether both date and time are set.
func (s *Selection) HasSlot() bool { return s.date != "" && s.timeOfDay != "" }

// beginSubmit flips the sending flag. A false return means a submission is
// already outstanding and this one must be dropped.
func (s *Selection) beginSubmit() bool { return s.sending.CompareAndSwap(false, true) }

func (s *Selection) endSubmit() { s.sending.Store(false) }

// Sending reports whether a submission is in flight.
func (s *Selection) Sending() bool { return s.sending.Load() }

// Reset clears everything except the catalog, returning the form to its
// initial state after a successful submission.
func (s *Selection) Reset() {
	s.serviceIDs = nil
	s.staffID = nil
	s.customerID = 0
	s.date = ""
	s.timeOfDay = ""
	s.appointmentID = 0
	s.note = ""
}
