package billing

import (
	"testing"

	"github.com/dangkhoa18052004/spa-portal/internal/spaapi"
)

func TestCashSession_ChangeAndConfirm(t *testing.T) {
	cases := []struct {
		name       string
		tendered   int64
		wantChange int64
		canConfirm bool
	}{
		{"exact", 150000, 0, true},
		{"one short", 149999, 0, false},
		{"overpaid", 200000, 50000, true},
		{"zero", 0, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewCashSession(150000)
			s.SetTendered(spaapi.VND(tc.tendered))
			if got := int64(s.Change()); got != tc.wantChange {
				t.Fatalf("Change() = %d, want %d", got, tc.wantChange)
			}
			if got := s.CanConfirm(); got != tc.canConfirm {
				t.Fatalf("CanConfirm() = %v, want %v", got, tc.canConfirm)
			}
		})
	}
}

func TestCashSession_NothingEnteredYet(t *testing.T) {
	s := NewCashSession(150000)
	if s.CanConfirm() {
		t.Fatal("confirm must stay disabled before any amount is entered")
	}
	if s.Change() != 0 {
		t.Fatalf("Change() = %d, want 0", s.Change())
	}
}

func TestCashSession_Retype(t *testing.T) {
	s := NewCashSession(150000)
	s.SetTendered(100000)
	if s.CanConfirm() {
		t.Fatal("underpaid tender must not confirm")
	}
	s.SetTendered(160000)
	if !s.CanConfirm() || s.Change() != 10000 {
		t.Fatalf("after retype: confirm=%v change=%d", s.CanConfirm(), s.Change())
	}
}
