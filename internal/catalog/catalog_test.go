package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/dangkhoa18052004/spa-portal/internal/spaapi"
)

type fakeSource struct {
	services      []spaapi.Service
	staff         []spaapi.Staff
	customers     []spaapi.Customer
	err           error
	serviceCalls  int
	staffCalls    int
	customerCalls int
}

func (f *fakeSource) ListServices(ctx context.Context) ([]spaapi.Service, error) {
	f.serviceCalls++
	return f.services, f.err
}

func (f *fakeSource) ListStaff(ctx context.Context) ([]spaapi.Staff, error) {
	f.staffCalls++
	return f.staff, f.err
}

func (f *fakeSource) ListCustomers(ctx context.Context) ([]spaapi.Customer, error) {
	f.customerCalls++
	return f.customers, f.err
}

func newTestCache(t *testing.T, src *fakeSource) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(src, client, time.Minute, nil)
}

func TestCache_Services_ReadThrough(t *testing.T) {
	src := &fakeSource{services: []spaapi.Service{
		{ID: 1, Name: "Massage body", Price: 150000, DurationMin: 90, Active: true},
		{ID: 2, Name: "Tắm trắng", Price: 300000, DurationMin: 60, Active: false},
	}}
	cache := newTestCache(t, src)

	services, err := cache.Services(context.Background())
	if err != nil {
		t.Fatalf("Services() error = %v", err)
	}
	if len(services) != 1 || services[0].ID != 1 {
		t.Fatalf("services = %+v, want only the active one", services)
	}

	// Served from cache, no second upstream call.
	if _, err := cache.Services(context.Background()); err != nil {
		t.Fatalf("Services() second call error = %v", err)
	}
	if src.serviceCalls != 1 {
		t.Fatalf("upstream calls = %d, want 1", src.serviceCalls)
	}
}

func TestCache_Staff_FiltersRole(t *testing.T) {
	src := &fakeSource{staff: []spaapi.Staff{
		{ID: 1, Name: "Trần Thị B", Role: "staff", Active: true},
		{ID: 2, Name: "Lê Văn C", Role: "receptionist", Active: true},
		{ID: 3, Name: "Phạm Thị D", Role: "staff", Active: false},
	}}
	cache := newTestCache(t, src)

	staff, err := cache.Staff(context.Background())
	if err != nil {
		t.Fatalf("Staff() error = %v", err)
	}
	if len(staff) != 1 || staff[0].ID != 1 {
		t.Fatalf("staff = %+v, want only the active staff role", staff)
	}
}

func TestCache_Invalidate(t *testing.T) {
	src := &fakeSource{services: []spaapi.Service{{ID: 1, Name: "Massage body", Active: true}}}
	cache := newTestCache(t, src)

	if _, err := cache.Services(context.Background()); err != nil {
		t.Fatalf("Services() error = %v", err)
	}
	if err := cache.Invalidate(context.Background()); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if _, err := cache.Services(context.Background()); err != nil {
		t.Fatalf("Services() after invalidate error = %v", err)
	}
	if src.serviceCalls != 2 {
		t.Fatalf("upstream calls = %d, want 2 after invalidation", src.serviceCalls)
	}
}

func TestCache_UpstreamError(t *testing.T) {
	src := &fakeSource{err: errors.New("backend down")}
	cache := newTestCache(t, src)

	if _, err := cache.Services(context.Background()); err == nil {
		t.Fatal("expected error from upstream")
	}
}

func TestFilterServices(t *testing.T) {
	services := []spaapi.Service{
		{ID: 1, Name: "Massage body"},
		{ID: 2, Name: "Massage chân"},
		{ID: 3, Name: "Chăm sóc da"},
	}

	got := FilterServices(services, "MASSAGE")
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 for case-insensitive match", len(got))
	}

	if got := FilterServices(services, ""); len(got) != 3 {
		t.Fatalf("empty query should keep all, got %d", len(got))
	}

	if got := FilterServices(services, "  da "); len(got) != 1 || got[0].ID != 3 {
		t.Fatalf("trimmed query match = %+v", got)
	}

	if got := FilterServices(services, "xyz"); len(got) != 0 {
		t.Fatalf("no-match query should return empty, got %+v", got)
	}
}

func TestFilterStaff_MatchesSpecialty(t *testing.T) {
	staff := []spaapi.Staff{
		{ID: 1, Name: "Trần Thị B", Specialty: "Massage"},
		{ID: 2, Name: "Lê Văn C", Specialty: "Chăm sóc da"},
	}

	got := FilterStaff(staff, "massage")
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("staff = %+v, want specialty match", got)
	}
}

func TestFilterCustomers_MatchesPhone(t *testing.T) {
	customers := []spaapi.Customer{
		{ID: 1, Name: "Nguyễn Văn A", Phone: "0901234567"},
		{ID: 2, Name: "Trần Thị B", Phone: "0987654321"},
	}

	got := FilterCustomers(customers, "0901")
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("customers = %+v, want phone match", got)
	}
}
