package portal

import (
	"net/http"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/dangkhoa18052004/spa-portal/internal/billing"
)

const wsWriteWait = 5 * time.Second

var upgrader = ws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser and API share an origin behind the same reverse proxy; CORS
	// policy is enforced on the REST surface.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// paymentEvent is the frame pushed to the payment dialog.
type paymentEvent struct {
	InvoiceID int    `json:"invoice_id"`
	State     string `json:"state"`
	Attempt   int    `json:"attempt"`
	Terminal  bool   `json:"terminal"`
}

// invoiceEvents streams QR payment progress for one invoice until a
// terminal event arrives or the client hangs up.
func (h *Handler) invoiceEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "invoice_id", id, "error", err)
		return
	}
	defer conn.Close()

	events, cancel := h.hub.Subscribe(id)
	defer cancel()

	h.logger.Info("payment stream opened", "invoice_id", id, "actor", h.actor(r))

	// The dialog never sends frames; the read loop only notices the close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case ev, open := <-events:
			if !open {
				return
			}
			if err := h.writeEvent(conn, ev); err != nil {
				h.logger.Debug("payment stream closed", "invoice_id", id, "error", err)
				return
			}
			if ev.Terminal() {
				deadline := time.Now().Add(wsWriteWait)
				_ = conn.WriteControl(ws.CloseMessage,
					ws.FormatCloseMessage(ws.CloseNormalClosure, ""), deadline)
				return
			}
		}
	}
}

func (h *Handler) writeEvent(conn *ws.Conn, ev billing.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(paymentEvent{
		InvoiceID: ev.InvoiceID,
		State:     ev.State.String(),
		Attempt:   ev.Attempt,
		Terminal:  ev.Terminal(),
	})
}
