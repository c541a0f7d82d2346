package booking

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dangkhoa18052004/spa-portal/internal/observability/metrics"
	"github.com/dangkhoa18052004/spa-portal/internal/spaapi"
	"github.com/dangkhoa18052004/spa-portal/pkg/logging"
)

// CandidateState classifies an availability probe for the UI. A failed
// request and an empty candidate list look nothing alike to the operator
// and must never collapse into one state.
type CandidateState int

const (
	// StatePrompt means preconditions are unmet; no request was made.
	StatePrompt CandidateState = iota
	// StateCandidates means at least one staff member is free.
	StateCandidates
	// StateNoneFree means the backend answered and nobody is free.
	StateNoneFree
	// StateFailed means the request itself failed.
	StateFailed
)

func (s CandidateState) String() string {
	switch s {
	case StatePrompt:
		return "prompt"
	case StateCandidates:
		return "candidates"
	case StateNoneFree:
		return "none_free"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CandidateResult is one availability answer, stamped with the selection
// key it was computed for.
type CandidateResult struct {
	State CandidateState
	Staff []spaapi.Staff
	Key   string
}

// FreshFor reports whether the result still matches the selection. The
// session discards results whose key no longer matches; in-flight requests
// are never cancelled, their answers are just dropped on arrival.
func (r CandidateResult) FreshFor(sel *Selection) bool {
	return r.Key == sel.Key()
}

// AvailabilitySource is the slice of the backend client the checker needs.
type AvailabilitySource interface {
	ListAvailableStaff(ctx context.Context, startsAt time.Time, serviceIDs []int) ([]spaapi.Staff, error)
	CheckAvailability(ctx context.Context, staffID int, startsAt time.Time, serviceIDs []int) (*spaapi.Availability, error)
}

// Checker answers "who is free for this slot" questions.
type Checker struct {
	source  AvailabilitySource
	tracer  trace.Tracer
	logger  *logging.Logger
	metrics *metrics.WorkflowMetrics
}

// NewChecker constructs an availability checker.
func NewChecker(source AvailabilitySource, logger *logging.Logger, m *metrics.WorkflowMetrics) *Checker {
	if source == nil {
		panic("booking: availability source cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Checker{
		source:  source,
		tracer:  otel.Tracer("spaportal.internal.booking.availability"),
		logger:  logger,
		metrics: m,
	}
}

// Candidates lists the staff free for the whole combined slot. With an
// incomplete selection it returns the prompt state without any network
// traffic.
func (c *Checker) Candidates(ctx context.Context, sel *Selection) CandidateResult {
	key := sel.Key()
	if !sel.HasSlot() || len(sel.ServiceIDs()) == 0 {
		return CandidateResult{State: StatePrompt, Key: key}
	}

	ctx, span := c.tracer.Start(ctx, "booking.candidates",
		trace.WithAttributes(attribute.String("selection.key", key)))
	defer span.End()

	startsAt, err := sel.StartsAt()
	if err != nil {
		return CandidateResult{State: StatePrompt, Key: key}
	}

	staff, err := c.source.ListAvailableStaff(ctx, startsAt, sel.ServiceIDs())
	if err != nil {
		span.RecordError(err)
		c.logger.Warn("availability probe failed", "key", key, "error", err)
		c.metrics.ObserveAvailability(StateFailed.String())
		return CandidateResult{State: StateFailed, Key: key}
	}
	if len(staff) == 0 {
		c.metrics.ObserveAvailability(StateNoneFree.String())
		return CandidateResult{State: StateNoneFree, Key: key}
	}
	c.metrics.ObserveAvailability(StateCandidates.String())
	return CandidateResult{State: StateCandidates, Staff: staff, Key: key}
}

// CheckStaff probes a single staff member for the selected slot. Used just
// before submission when a staff member is explicitly chosen.
func (c *Checker) CheckStaff(ctx context.Context, sel *Selection, staffID int) (*spaapi.Availability, error) {
	startsAt, err := sel.StartsAt()
	if err != nil {
		return nil, err
	}
	ctx, span := c.tracer.Start(ctx, "booking.check_staff",
		trace.WithAttributes(attribute.Int("staff.id", staffID)))
	defer span.End()

	avail, err := c.source.CheckAvailability(ctx, staffID, startsAt, sel.ServiceIDs())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return avail, nil
}
