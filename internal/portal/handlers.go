package portal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dangkhoa18052004/spa-portal/internal/audit"
	"github.com/dangkhoa18052004/spa-portal/internal/billing"
	"github.com/dangkhoa18052004/spa-portal/internal/booking"
	"github.com/dangkhoa18052004/spa-portal/internal/catalog"
	"github.com/dangkhoa18052004/spa-portal/internal/http/middleware"
	"github.com/dangkhoa18052004/spa-portal/internal/spaapi"
	"github.com/dangkhoa18052004/spa-portal/internal/status"
	"github.com/dangkhoa18052004/spa-portal/pkg/logging"
)

// Handler serves the workflow endpoints the web UI drives.
type Handler struct {
	sessions  *SessionStore
	catalog   *catalog.Cache
	api       *spaapi.Client
	checker   *booking.Checker
	submitter *booking.Submitter
	flow      *billing.Flow
	trail     *audit.Trail
	hub       *EventHub
	logger    *logging.Logger
}

// NewHandler wires the workflow services into an HTTP handler. trail may
// be nil when the audit database is not configured.
func NewHandler(
	sessions *SessionStore,
	cat *catalog.Cache,
	api *spaapi.Client,
	checker *booking.Checker,
	submitter *booking.Submitter,
	flow *billing.Flow,
	trail *audit.Trail,
	hub *EventHub,
	logger *logging.Logger,
) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		sessions:  sessions,
		catalog:   cat,
		api:       api,
		checker:   checker,
		submitter: submitter,
		flow:      flow,
		trail:     trail,
		hub:       hub,
		logger:    logger,
	}
}

// Routes mounts every workflow endpoint. Auth middleware runs outside.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/sessions", h.openSession)
	r.Route("/sessions/{sid}", func(r chi.Router) {
		r.Delete("/", h.closeSession)
		r.Post("/services/{id}/toggle", h.toggleService)
		r.Post("/staff/{id}/toggle", h.toggleStaff)
		r.Put("/schedule", h.setSchedule)
		r.Get("/availability", h.availability)
		r.Get("/services", h.filterServices)
		r.Get("/staff", h.filterStaff)
		r.Get("/customers", h.filterCustomers)
		r.Post("/submit", h.submit)
	})

	r.Get("/appointments", h.listAppointments)
	r.Get("/appointments/statistics", h.statistics)
	r.Route("/appointments/{id}", func(r chi.Router) {
		r.Get("/", h.getAppointment)
		r.Post("/confirm", h.confirmAppointment)
		r.Post("/complete", h.completeAppointment)
		r.Post("/cancel", h.cancelAppointment)
		r.Post("/invoice", h.createInvoice)
	})

	r.Route("/invoices/{id}", func(r chi.Router) {
		r.Get("/", h.getInvoice)
		r.Post("/cash", h.settleCash)
		r.Post("/qr", h.startQR)
		r.Delete("/qr", h.dismissQR)
		r.Get("/events", h.invoiceEvents)
	})

	return r
}

// --- sessions ---

func (h *Handler) openSession(w http.ResponseWriter, r *http.Request) {
	services, err := h.catalog.Services(r.Context())
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	staff, err := h.catalog.Staff(r.Context())
	if err != nil {
		h.writeOpError(w, err)
		return
	}

	s := h.sessions.Create(h.actor(r), services)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"session_id": s.ID,
		"services":   services,
		"staff":      staff,
	})
}

func (h *Handler) closeSession(w http.ResponseWriter, r *http.Request) {
	if s, ok := h.session(w, r); ok {
		h.sessions.Delete(s.ID)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) toggleService(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid service id")
		return
	}

	var toggleErr error
	var summary map[string]interface{}
	s.With(func(sel *booking.Selection) {
		toggleErr = sel.ToggleService(id)
		summary = selectionSummary(sel)
	})
	if toggleErr != nil {
		writeError(w, http.StatusBadRequest, toggleErr.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) toggleStaff(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid staff id")
		return
	}

	var summary map[string]interface{}
	s.With(func(sel *booking.Selection) {
		sel.ToggleStaff(id)
		summary = selectionSummary(sel)
	})
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) setSchedule(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Date string `json:"date"`
		Time string `json:"time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var summary map[string]interface{}
	s.With(func(sel *booking.Selection) {
		sel.SetDate(req.Date)
		sel.SetTime(req.Time)
		summary = selectionSummary(sel)
	})
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	// Probe on a snapshot so the upstream call never blocks the session,
	// then check the answer against the live selection. Only the latest
	// key wins.
	var snapshot *booking.Selection
	s.With(func(sel *booking.Selection) {
		snapshot = sel.Clone()
	})

	result := h.checker.Candidates(r.Context(), snapshot)

	var fresh bool
	s.With(func(sel *booking.Selection) {
		fresh = result.FreshFor(sel)
	})
	if !fresh {
		// The selection moved on while the probe ran; the answer is stale
		// and the UI should re-query.
		writeJSON(w, http.StatusOK, map[string]interface{}{"state": "stale"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state": result.State.String(),
		"staff": result.Staff,
	})
}

func (h *Handler) filterServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.catalog.Services(r.Context())
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"services": catalog.FilterServices(services, r.URL.Query().Get("q")),
	})
}

func (h *Handler) filterStaff(w http.ResponseWriter, r *http.Request) {
	staff, err := h.catalog.Staff(r.Context())
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"staff": catalog.FilterStaff(staff, r.URL.Query().Get("q")),
	})
}

func (h *Handler) filterCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.catalog.Customers(r.Context())
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"customers": catalog.FilterCustomers(customers, r.URL.Query().Get("q")),
	})
}

// --- booking ---

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		CustomerID    int    `json:"customer_id"`
		AppointmentID int    `json:"appointment_id"`
		Note          string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	customer := h.lookupCustomer(r, req.CustomerID)

	var outcome *booking.Outcome
	var submitErr error
	var details audit.Details
	var isUpdate bool
	s.With(func(sel *booking.Selection) {
		if req.CustomerID > 0 {
			sel.SetCustomer(req.CustomerID)
		}
		if req.AppointmentID > 0 {
			sel.SetAppointment(req.AppointmentID)
		}
		if req.Note != "" {
			sel.SetNote(req.Note)
		}
		isUpdate = sel.AppointmentID() > 0
		details = audit.Details{
			CustomerID: sel.CustomerID(),
			ServiceIDs: sel.ServiceIDs(),
			StaffID:    sel.StaffID(),
		}
		if at, err := sel.StartsAt(); err == nil {
			details.StartsAt = spaapi.FormatStartsAt(at)
		}
		outcome, submitErr = h.submitter.Submit(r.Context(), sel, customer)
	})

	if submitErr != nil {
		if ce, ok := spaapi.AsConflict(submitErr); ok {
			details.ConflictCount = len(ce.Conflicts)
			h.audit(r, func() error { return h.trail.LogConflict(r.Context(), h.actor(r), details) })
		}
		h.writeOpError(w, submitErr)
		return
	}

	h.audit(r, func() error {
		return h.trail.LogBooking(r.Context(), h.actor(r), outcome.AppointmentID, details, isUpdate)
	})
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"appointment_id": outcome.AppointmentID,
		"assigned_staff": outcome.AssignedStaff,
		"msg":            outcome.Message,
		"refresh":        outcome.RefreshNeeded,
	})
}

func (h *Handler) listAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, err := h.api.ListAppointments(r.Context(), spaapi.ListFilter{
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
		Status:    q.Get("status"),
	})
	if err != nil {
		h.writeOpError(w, err)
		return
	}

	type row struct {
		spaapi.AppointmentSummary
		Status string `json:"status"`
		Label  string `json:"status_label"`
		Badge  string `json:"status_badge"`
	}
	out := make([]row, len(rows))
	for i, apt := range rows {
		st := status.ParseAppointment(apt.RawStatus)
		out[i] = row{AppointmentSummary: apt, Status: string(st), Label: st.Display(), Badge: st.BadgeClass()}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"appointments": out})
}

func (h *Handler) statistics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	stats, err := h.api.Statistics(r.Context(), spaapi.ListFilter{
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
	})
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"statistics": stats})
}

func (h *Handler) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	detail, err := h.api.GetAppointment(r.Context(), id)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	st := status.ParseAppointment(detail.RawStatus)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"appointment":  detail,
		"status":       string(st),
		"status_label": st.Display(),
		"can_confirm":  st.CanConfirm(),
		"can_complete": st.CanComplete(),
		"can_cancel":   st.CanCancel(),
		"can_invoice":  st.CanInvoice(),
	})
}

func (h *Handler) confirmAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	outcome, err := h.submitter.Confirm(r.Context(), id)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"refresh": outcome.RefreshNeeded})
}

func (h *Handler) completeAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	outcome, err := h.submitter.Complete(r.Context(), id)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"refresh":       outcome.RefreshNeeded,
		"offer_invoice": outcome.OfferInvoice,
	})
}

func (h *Handler) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var outcome *booking.Outcome
	var err error
	if p, ok := middleware.PrincipalFromContext(r.Context()); ok && p.Role == "customer" {
		outcome, err = h.submitter.CustomerCancel(r.Context(), id, req.Reason)
	} else {
		outcome, err = h.submitter.Cancel(r.Context(), id, req.Reason)
	}
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.audit(r, func() error { return h.trail.LogCancellation(r.Context(), h.actor(r), id, req.Reason) })
	writeJSON(w, http.StatusOK, map[string]interface{}{"refresh": outcome.RefreshNeeded})
}

// --- billing ---

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	inv, err := h.flow.CreateInvoice(r.Context(), id)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.audit(r, func() error {
		return h.trail.LogInvoiceCreated(r.Context(), h.actor(r), id, inv.ID, int64(inv.Total))
	})
	writeJSON(w, http.StatusCreated, invoiceView(inv))
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	inv, err := h.flow.Invoice(r.Context(), id)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invoiceView(inv))
}

func (h *Handler) settleCash(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Tendered int64 `json:"tendered"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	inv, err := h.flow.Invoice(r.Context(), id)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	session := billing.NewCashSession(inv.Total)
	session.SetTendered(spaapi.VND(req.Tendered))

	change, err := h.flow.SettleCash(r.Context(), id, session)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.audit(r, func() error {
		return h.trail.LogCashPayment(r.Context(), h.actor(r), id, int64(inv.Total), int64(change))
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"change":  int64(change),
		"status":  string(status.InvoicePaid),
		"refresh": true,
	})
}

func (h *Handler) startQR(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor := h.actor(r)
	qr, err := h.flow.StartQRPayment(r.Context(), id, func(ev billing.Event) {
		h.hub.Publish(ev)
		if ev.Terminal() {
			// The poller outlives the request, so the audit write cannot
			// ride on the request context.
			h.audit(r, func() error {
				return h.trail.LogQRResult(context.Background(), actor, ev.InvoiceID, ev.State == billing.PaymentPaid, ev.Attempt)
			})
		}
	})
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pay_url":     qr.PayURL,
		"qr_code_url": qr.QRCodeURL,
	})
}

func (h *Handler) dismissQR(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	// Dismissing only stops the poller; invoice state is untouched.
	h.flow.StopQRPayment(id)
	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ---

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	s, ok := h.sessions.Get(chi.URLParam(r, "sid"), h.actor(r))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
	}
	return s, ok
}

func (h *Handler) actor(r *http.Request) string {
	if p, ok := middleware.PrincipalFromContext(r.Context()); ok {
		return p.Username
	}
	return "unknown"
}

// lookupCustomer resolves the customer for the confirmation email. Lookup
// failures only cost the email, never the booking.
func (h *Handler) lookupCustomer(r *http.Request, id int) *spaapi.Customer {
	if id <= 0 {
		return nil
	}
	customers, err := h.catalog.Customers(r.Context())
	if err != nil {
		h.logger.Warn("customer lookup failed", "customer_id", id, "error", err)
		return nil
	}
	for i := range customers {
		if customers[i].ID == id {
			return &customers[i]
		}
	}
	return nil
}

// audit runs an audit write, logging instead of failing the request.
func (h *Handler) audit(r *http.Request, fn func() error) {
	if h.trail == nil {
		return
	}
	if err := fn(); err != nil {
		h.logger.Error("audit write failed", "path", r.URL.Path, "error", err)
	}
}

func (h *Handler) writeOpError(w http.ResponseWriter, err error) {
	if ve, ok := booking.AsValidation(err); ok {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"msg":    "dữ liệu chưa hợp lệ",
			"errors": ve.Fields,
		})
		return
	}
	if ce, ok := spaapi.AsConflict(err); ok {
		lines := make([]string, len(ce.Conflicts))
		for i, c := range ce.Conflicts {
			lines[i] = c.String()
		}
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"msg":       ce.Message,
			"conflicts": ce.Conflicts,
			"lines":     lines,
		})
		return
	}
	switch {
	case errors.Is(err, spaapi.ErrNoCredential):
		writeError(w, http.StatusUnauthorized, "not authenticated")
	case errors.Is(err, spaapi.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, booking.ErrSubmitInFlight):
		writeError(w, http.StatusTooManyRequests, "submission already in progress")
	case errors.Is(err, booking.ErrReasonRequired),
		errors.Is(err, booking.ErrCancelState),
		errors.Is(err, booking.ErrCancelTooLate),
		errors.Is(err, booking.ErrPastBooking),
		errors.Is(err, booking.ErrUnknownService):
		writeError(w, http.StatusBadRequest, err.Error())
	case billing.IsTerminalError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		var ae *spaapi.APIError
		if errors.As(err, &ae) {
			writeError(w, http.StatusBadGateway, ae.Message)
			return
		}
		h.logger.Error("unhandled operation error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func selectionSummary(sel *booking.Selection) map[string]interface{} {
	return map[string]interface{}{
		"service_ids":        sel.ServiceIDs(),
		"staff_id":           sel.StaffID(),
		"total_duration_min": int(sel.TotalDuration().Minutes()),
		"total_price":        int64(sel.TotalPrice()),
	}
}

func invoiceView(inv *spaapi.Invoice) map[string]interface{} {
	st := status.ParseInvoice(inv.RawStatus)
	return map[string]interface{}{
		"invoice":      inv,
		"status":       string(st),
		"status_label": st.Display(),
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"msg": msg})
}
