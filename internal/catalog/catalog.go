// Package catalog serves the service and staff pickers. Catalog data
// changes rarely, so it is cached in Redis with a short TTL instead of
// hitting the backend on every keystroke of the picker search boxes.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dangkhoa18052004/spa-portal/internal/spaapi"
	"github.com/dangkhoa18052004/spa-portal/pkg/logging"
)

const defaultTTL = 5 * time.Minute

// Source is the slice of the backend client the catalog needs.
type Source interface {
	ListServices(ctx context.Context) ([]spaapi.Service, error)
	ListStaff(ctx context.Context) ([]spaapi.Staff, error)
	ListCustomers(ctx context.Context) ([]spaapi.Customer, error)
}

// Cache is a read-through Redis cache over the backend catalog endpoints.
type Cache struct {
	source Source
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
	logger *logging.Logger
}

// New constructs the catalog cache.
func New(source Source, rdb *redis.Client, ttl time.Duration, logger *logging.Logger) *Cache {
	if source == nil {
		panic("catalog: source cannot be nil")
	}
	if rdb == nil {
		panic("catalog: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Cache{
		source: source,
		redis:  rdb,
		ttl:    ttl,
		tracer: otel.Tracer("spaportal.internal.catalog"),
		logger: logger,
	}
}

func servicesKey() string  { return "catalog:services" }
func staffKey() string     { return "catalog:staff" }
func customersKey() string { return "catalog:customers" }

// Services returns active services, cached.
func (c *Cache) Services(ctx context.Context) ([]spaapi.Service, error) {
	ctx, span := c.tracer.Start(ctx, "catalog.services")
	defer span.End()

	var cached []spaapi.Service
	if ok := c.load(ctx, servicesKey(), &cached); ok {
		return cached, nil
	}

	services, err := c.source.ListServices(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("catalog: load services: %w", err)
	}
	active := services[:0:0]
	for _, s := range services {
		if s.Active {
			active = append(active, s)
		}
	}
	c.store(ctx, servicesKey(), active)
	return active, nil
}

// Staff returns bookable staff: the staff role only, active accounts only.
// Receptionists and managers never appear in the assignment picker.
func (c *Cache) Staff(ctx context.Context) ([]spaapi.Staff, error) {
	ctx, span := c.tracer.Start(ctx, "catalog.staff")
	defer span.End()

	var cached []spaapi.Staff
	if ok := c.load(ctx, staffKey(), &cached); ok {
		return cached, nil
	}

	all, err := c.source.ListStaff(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("catalog: load staff: %w", err)
	}
	bookable := all[:0:0]
	for _, s := range all {
		if s.Role == "staff" && s.Active {
			bookable = append(bookable, s)
		}
	}
	c.store(ctx, staffKey(), bookable)
	return bookable, nil
}

// Customers returns the customer directory, cached.
func (c *Cache) Customers(ctx context.Context) ([]spaapi.Customer, error) {
	ctx, span := c.tracer.Start(ctx, "catalog.customers")
	defer span.End()

	var cached []spaapi.Customer
	if ok := c.load(ctx, customersKey(), &cached); ok {
		return cached, nil
	}

	customers, err := c.source.ListCustomers(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("catalog: load customers: %w", err)
	}
	c.store(ctx, customersKey(), customers)
	return customers, nil
}

// Invalidate drops every cached catalog list. Admin screens call this
// after editing services or staff so pickers refresh immediately.
func (c *Cache) Invalidate(ctx context.Context) error {
	if err := c.redis.Del(ctx, servicesKey(), staffKey(), customersKey()).Err(); err != nil {
		return fmt.Errorf("catalog: invalidate: %w", err)
	}
	return nil
}

// load fills out from the cache. Cache failures are treated as misses so
// a Redis outage degrades to direct backend reads.
func (c *Cache) load(ctx context.Context, key string, out interface{}) bool {
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("catalog cache read failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Warn("catalog cache entry corrupt", "key", key, "error", err)
		return false
	}
	return true
}

func (c *Cache) store(ctx context.Context, key string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("catalog cache write failed", "key", key, "error", err)
	}
}

// FilterServices narrows services to those whose name contains the query,
// case-insensitively. An empty query keeps everything.
func FilterServices(services []spaapi.Service, query string) []spaapi.Service {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return services
	}
	out := make([]spaapi.Service, 0, len(services))
	for _, s := range services {
		if strings.Contains(strings.ToLower(s.Name), query) {
			out = append(out, s)
		}
	}
	return out
}

// FilterStaff matches against name and specialty.
func FilterStaff(staff []spaapi.Staff, query string) []spaapi.Staff {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return staff
	}
	out := make([]spaapi.Staff, 0, len(staff))
	for _, s := range staff {
		if strings.Contains(strings.ToLower(s.Name), query) ||
			strings.Contains(strings.ToLower(s.Specialty), query) {
			out = append(out, s)
		}
	}
	return out
}

// FilterCustomers matches against name and phone number.
func FilterCustomers(customers []spaapi.Customer, query string) []spaapi.Customer {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return customers
	}
	out := make([]spaapi.Customer, 0, len(customers))
	for _, c := range customers {
		if strings.Contains(strings.ToLower(c.Name), query) ||
			strings.Contains(c.Phone, query) {
			out = append(out, c)
		}
	}
	return out
}
