package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"stockdash/internal/notify"
)

const (
	wsSendBuffer   = 64
	wsWriteTimeout = 5 * time.Second
	wsPingInterval = 30 * time.Second
)

// Hub streams notification events to connected browsers. Each connection
// subscribes to the notification manager; slow clients have events
// dropped by the manager rather than blocking it.
type Hub struct {
	notes   *notify.Manager
	log     *slog.Logger
	clients atomic.Int64
}

// NewHub creates a Hub fed by notes.
func NewHub(notes *notify.Manager, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Hub{notes: notes, log: log}
}

// Clients is the number of open connections.
func (h *Hub) Clients() int64 {
	return h.clients.Load()
}

// ServeHTTP upgrades the request and pushes events until either side
// closes. The first message is a snapshot of the visible notifications.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.log.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	h.clients.Add(1)
	defer h.clients.Add(-1)

	id, events := h.notes.Subscribe(wsSendBuffer)
	defer h.notes.Unsubscribe(id)

	// Browsers only listen; CloseRead discards inbound frames and cancels
	// ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	h.log.Debug("websocket client connected", "subscriber", id)
	for {
		select {
		case <-ctx.Done():
			h.log.Debug("websocket client disconnected", "subscriber", id)
			return
		case e, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := h.write(ctx, conn, e); err != nil {
				h.log.Debug("websocket write failed", "subscriber", id, "error", err)
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, e notify.Event) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, e)
}
