package billing

import "github.com/dangkhoa18052004/spa-portal/internal/spaapi"

// CashSession tracks the tendered amount against an invoice total. The
// confirm action stays disabled until the tender covers the total, so an
// underpayment can never be submitted.
type CashSession struct {
	total    spaapi.VND
	tendered spaapi.VND
	entered  bool
}

// NewCashSession opens a cash payment for an invoice total.
func NewCashSession(total spaapi.VND) *CashSession {
	return &CashSession{total: total}
}

// SetTendered records what the customer handed over. Recomputed on every
// keystroke of the amount field.
func (s *CashSession) SetTendered(amount spaapi.VND) {
	s.tendered = amount
	s.entered = true
}

// Total returns the invoice total.
func (s *CashSession) Total() spaapi.VND { return s.total }

// Tendered returns what the customer handed over. This is the amount the
// backend records; it keeps the change visible on the invoice.
func (s *CashSession) Tendered() spaapi.VND { return s.tendered }

// Change returns tendered minus total, never negative.
func (s *CashSession) Change() spaapi.VND {
	if !s.entered || s.tendered < s.total {
		return 0
	}
	return s.tendered - s.total
}

// CanConfirm reports whether the confirm action is enabled.
func (s *CashSession) CanConfirm() bool {
	return s.entered && s.tendered >= s.total
}
