package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cortex-x/go-smartcard-bridge/internal/bridge"
	"github.com/cortex-x/go-smartcard-bridge/internal/codec"
	"github.com/cortex-x/go-smartcard-bridge/internal/domain"
	"github.com/cortex-x/go-smartcard-bridge/internal/infra/websocket"
	"github.com/cortex-x/go-smartcard-bridge/internal/logging"
	"github.com/cortex-x/go-smartcard-bridge/internal/subscription"
	gorilla "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const sseHeartbeat = 30 * time.Second

type Handler struct {
	endpoint *bridge.Endpoint
	hub      *websocket.Hub
	logger   logging.Logger
	upgrader gorilla.Upgrader
}

func NewHandler(endpoint *bridge.Endpoint, hub *websocket.Hub, logger logging.Logger) *Handler {
	return &Handler{
		endpoint: endpoint,
		hub:      hub,
		logger:   logger,
		upgrader: gorilla.Upgrader{
			Subprotocols: []string{codec.SubprotocolJSON, codec.SubprotocolCBOR},
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from any origin
				return true
			},
		},
	}
}

func (h *Handler) WebSocketHandler(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade error", "error", err.Error())
		return err
	}

	client := h.hub.RegisterClient(conn, codec.FormatForSubprotocol(conn.Subprotocol()))

	go client.WritePump()
	go client.ReadPump()

	return nil
}

func (h *Handler) GetState(c echo.Context) error {
	state, err := h.endpoint.GetState()
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrDriverUnavailable) {
			status = http.StatusServiceUnavailable
		}
		return c.JSON(status, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, state)
}

// Events streams one channel as server-sent events until the client goes away.
func (h *Handler) Events(c echo.Context) error {
	ch, err := subscription.ParseChannel(c.Param("channel"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}

	w := c.Response()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	sub := newSSESubscriber(16)
	var id string
	if ch == subscription.ChannelState {
		id = h.endpoint.Start(sub)
	} else {
		id = h.endpoint.StartDebug(sub)
	}
	defer h.endpoint.Detach(id)
	h.logger.Info("SSE client connected", "channel", ch.String(), "id", id)

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("SSE client disconnected", "channel", ch.String(), "id", id)
			return nil
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return nil
			}
			w.Flush()
		case data := <-sub.events:
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ch.String(), data); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

func (h *Handler) HealthCheck(c echo.Context) error {
	_, err := h.endpoint.GetState()
	return c.JSON(http.StatusOK, map[string]any{
		"status":      "healthy",
		"service":     "Smartcard Bridge",
		"driver":      err == nil,
		"clients":     h.hub.ClientCount(),
		"subscribers": h.endpoint.Subscribers(subscription.ChannelState) + h.endpoint.Subscribers(subscription.ChannelDebug),
	})
}

// sseSubscriber queues encoded payloads for one event stream.
type sseSubscriber struct {
	events chan []byte
}

func newSSESubscriber(buffer int) *sseSubscriber {
	return &sseSubscriber{events: make(chan []byte, buffer)}
}

func (s *sseSubscriber) Send(r subscription.Result) error {
	if !r.KeepCallback {
		return nil
	}
	data, err := codec.FormatJSON.Marshal(r.Payload)
	if err != nil {
		return err
	}
	select {
	case s.events <- data:
		return nil
	default:
		return errors.New("event stream buffer full")
	}
}
