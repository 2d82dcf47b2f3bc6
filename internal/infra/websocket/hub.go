package websocket

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cortex-x/go-smartcard-bridge/internal/codec"
	"github.com/cortex-x/go-smartcard-bridge/internal/logging"
	"github.com/cortex-x/go-smartcard-bridge/internal/subscription"
	"github.com/gorilla/websocket"
)

const (
	writeWait       = 10 * time.Second
	defaultPongWait = 60 * time.Second
	readLimit       = 4096
)

var (
	errClientClosed = errors.New("client closed")
	errSendFull     = errors.New("client send buffer full")
)

type clientSub struct {
	channel subscription.Channel
	id      string
}

type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	format codec.Format

	mu         sync.Mutex
	sendClosed bool
	leaveOnce  sync.Once

	subsMu   sync.Mutex
	subs     map[string]clientSub // keyed by callbackId
	released bool
}

type Hub struct {
	bridge     Bridge
	logger     logging.Logger
	sendBuffer int

	// A client that answers no ping within pongWait is dropped.
	pongWait   time.Duration
	pingPeriod time.Duration

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
}

func NewHub(bridge Bridge, logger logging.Logger, sendBuffer int) *Hub {
	if logger == nil {
		logger = logging.Nop()
	}
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Hub{
		bridge:     bridge,
		logger:     logger,
		sendBuffer: sendBuffer,
		pongWait:   defaultPongWait,
		pingPeriod: defaultPongWait * 9 / 10,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("Client registered", "clients", n, "format", client.format.String())

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client]
			delete(h.clients, client)
			n := len(h.clients)
			h.mu.Unlock()
			if ok {
				client.release()
				h.logger.Info("Client unregistered", "clients", n)
			}

		case <-h.done:
			h.mu.Lock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.clients = make(map[*Client]bool)
			h.mu.Unlock()
			for _, client := range clients {
				client.release()
			}
			return
		}
	}
}

// Stop ends Run and releases every connected client.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) RegisterClient(conn *websocket.Conn, format codec.Format) *Client {
	client := &Client{
		conn:   conn,
		send:   make(chan []byte, h.sendBuffer),
		hub:    h,
		format: format,
		subs:   make(map[string]clientSub),
	}
	select {
	case h.register <- client:
	case <-h.done:
		client.closeSend()
	}
	return client
}

func (h *Hub) unregisterClient(client *Client) {
	client.leaveOnce.Do(func() {
		select {
		case h.unregister <- client:
		case <-h.done:
		}
	})
}

// release detaches every subscription of the client, then closes its
// outbound queue so WritePump ends.
func (c *Client) release() {
	c.subsMu.Lock()
	subs := c.subs
	c.subs = make(map[string]clientSub)
	c.released = true
	c.subsMu.Unlock()

	for _, s := range subs {
		c.hub.bridge.Detach(s.id)
	}
	c.closeSend()
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

func (c *Client) enqueue(reply Reply) error {
	data, err := c.format.Marshal(reply)
	if err != nil {
		return fmt.Errorf("encode reply: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendClosed {
		return errClientClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		// a client that cannot keep up is dropped
		go c.hub.unregisterClient(c)
		return errSendFull
	}
}

func (c *Client) reply(r Reply) {
	if err := c.enqueue(r); err != nil {
		c.hub.logger.Warn("Failed to send reply", "callback_id", r.CallbackID, "error", err.Error())
	}
}

// callbackSubscriber delivers subscription results on one callbackId.
type callbackSubscriber struct {
	client     *Client
	callbackID string
}

func (s *callbackSubscriber) Send(r subscription.Result) error {
	return s.client.enqueue(Reply{
		CallbackID:   s.callbackID,
		Status:       string(r.Status),
		KeepCallback: r.KeepCallback,
		Payload:      r.Payload,
	})
}

func (c *Client) handle(cmd Command) {
	switch cmd.Action {
	case ActionGetState:
		state, err := c.hub.bridge.GetState()
		if err != nil {
			c.reply(errorReply(cmd.CallbackID, err.Error()))
			return
		}
		c.reply(Reply{CallbackID: cmd.CallbackID, Status: string(subscription.StatusOK), Payload: state})

	case ActionStart:
		c.subscribe(cmd, subscription.ChannelState, c.hub.bridge.Start)
	case ActionStartDebug:
		c.subscribe(cmd, subscription.ChannelDebug, c.hub.bridge.StartDebug)
	case ActionStop:
		c.unsubscribe(cmd, subscription.ChannelState, c.hub.bridge.Stop)
	case ActionStopDebug:
		c.unsubscribe(cmd, subscription.ChannelDebug, c.hub.bridge.StopDebug)

	default:
		c.reply(errorReply(cmd.CallbackID, fmt.Sprintf("unknown action %q", cmd.Action)))
	}
}

func (c *Client) subscribe(cmd Command, ch subscription.Channel, start func(subscription.Subscriber) string) {
	if cmd.CallbackID == "" {
		c.reply(errorReply("", cmd.Action+" requires a callbackId"))
		return
	}
	c.subsMu.Lock()
	_, dup := c.subs[cmd.CallbackID]
	c.subsMu.Unlock()
	if dup {
		c.reply(errorReply(cmd.CallbackID, "callbackId already in use"))
		return
	}

	id := start(&callbackSubscriber{client: c, callbackID: cmd.CallbackID})
	c.subsMu.Lock()
	released := c.released
	if !released {
		c.subs[cmd.CallbackID] = clientSub{channel: ch, id: id}
	}
	c.subsMu.Unlock()
	if released {
		c.hub.bridge.Detach(id)
	}
}

func (c *Client) unsubscribe(cmd Command, ch subscription.Channel, stop func(string) bool) {
	c.subsMu.Lock()
	var ids []string
	for callbackID, s := range c.subs {
		if s.channel != ch {
			continue
		}
		if cmd.Subscription != "" && callbackID != cmd.Subscription {
			continue
		}
		ids = append(ids, s.id)
		delete(c.subs, callbackID)
	}
	c.subsMu.Unlock()

	for _, id := range ids {
		stop(id)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(c.hub.pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	messageType := websocket.TextMessage
	if c.format.Binary() {
		messageType = websocket.BinaryMessage
	}
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(messageType, message); err != nil {
				c.writeFailed(err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.writeFailed(err)
				return
			}
		}
	}
}

func (c *Client) writeFailed(err error) {
	c.hub.logger.Warn("Error writing message", "error", err.Error())
	c.hub.unregisterClient(c)
	// keep draining until release closes the queue
	for range c.send {
	}
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregisterClient(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("WebSocket error", "error", err.Error())
			}
			break
		}

		var cmd Command
		if err := c.format.Unmarshal(data, &cmd); err != nil {
			c.reply(errorReply("", "malformed command"))
			continue
		}
		c.handle(cmd)
	}
}
