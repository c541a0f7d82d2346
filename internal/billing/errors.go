package billing

import "errors"

var (
	// ErrNotCompleted rejects invoice creation for appointments that are
	// not completed yet.
	ErrNotCompleted = errors.New("billing: appointment not completed")

	// ErrInvoiceExists means the appointment already has an invoice.
	ErrInvoiceExists = errors.New("billing: invoice already exists")

	// ErrAlreadyPaid rejects payment attempts on a settled invoice.
	ErrAlreadyPaid = errors.New("billing: invoice already paid")

	// ErrUnderpaid rejects a cash confirmation with insufficient tender.
	ErrUnderpaid = errors.New("billing: tendered amount below total")
)
