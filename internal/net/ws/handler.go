package ws

import (
	nethttp "net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/MurkesM/ARPG/internal/replication"
	"github.com/MurkesM/ARPG/internal/telemetry"
)

// Hub is the authority surface the handler needs.
type Hub interface {
	Attach(id string, sub replication.Subscriber)
	Detach(id string)
	Submit(req replication.Request)
}

// HandlerConfig tunes the observer endpoint.
type HandlerConfig struct {
	Logger     telemetry.Logger
	SendBuffer int
}

// Handler upgrades observer connections and bridges them to the authority.
type Handler struct {
	hub      Hub
	logger   telemetry.Logger
	buffer   int
	upgrader websocket.Upgrader
}

// NewHandler constructs the observer endpoint for hub.
func NewHandler(hub Hub, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.Nop()
	}
	return &Handler{
		hub:    hub,
		logger: logger,
		buffer: cfg.SendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *nethttp.Request) bool {
				return true
			},
		},
	}
}

// Handle serves one observer. An id query parameter names the observer;
// a fresh id is minted otherwise.
func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	observerID := r.URL.Query().Get("id")
	if observerID == "" {
		observerID = "observer-" + ulid.Make().String()
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("[ws] upgrade failed for %s: %v", observerID, err)
		return
	}

	sess := newSession(observerID, conn, h.buffer, h.logger)
	h.hub.Attach(observerID, sess)
	go sess.writePump()

	defer func() {
		h.hub.Detach(observerID)
		sess.close("disconnected")
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var env replication.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Printf("[ws] read from %s failed: %v", observerID, err)
			}
			return
		}
		if env.Type != replication.TypeRequest || env.Request == nil {
			h.logger.Printf("[ws] discarding %q message from %s", env.Type, observerID)
			continue
		}
		h.hub.Submit(*env.Request)
	}
}
