package booking

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownService rejects service ids not in the active catalog.
	ErrUnknownService = errors.New("booking: service not in catalog")

	// ErrSlotNotChosen means date or time is missing.
	ErrSlotNotChosen = errors.New("booking: date and time not chosen")

	// ErrSubmitInFlight blocks a second submit while one is outstanding.
	ErrSubmitInFlight = errors.New("booking: submission already in progress")

	// ErrReasonRequired rejects a cancellation without a reason.
	ErrReasonRequired = errors.New("booking: cancellation reason required")

	// ErrPastBooking rejects customer bookings that start in the past.
	ErrPastBooking = errors.New("booking: start time is in the past")

	// ErrCancelState rejects customer cancellation of appointments that
	// are not pending or confirmed.
	ErrCancelState = errors.New("booking: appointment can no longer be cancelled")

	// ErrCancelTooLate rejects customer cancellation inside the cutoff
	// window before the start time.
	ErrCancelTooLate = errors.New("booking: too close to start time to cancel")
)

// FieldError ties a validation failure to the form field that caused it.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every failed precondition of a submission.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = fmt.Sprintf("%s: %s", f.Field, f.Message)
	}
	return "booking: invalid submission: " + strings.Join(msgs, "; ")
}

// AsValidation unwraps err into a ValidationError if it is one.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	ok := errors.As(err, &ve)
	return ve, ok
}
