// Package subscription keeps the host-side subscribers of the state and
// debug channels and drives the native listener from their combined count.
//
// The listener is started when the first subscriber arrives on either
// channel and stopped when the last one leaves. Every other change in the
// counts leaves the listener alone, so there is at most one active native
// listener whatever the number of subscribers.
package subscription

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cortex-x/go-smartcard-bridge/internal/codec"
	"github.com/cortex-x/go-smartcard-bridge/internal/logging"
	"github.com/google/uuid"
)

var errClosed = errors.New("subscription closed")

// ErrUnknownChannel is returned by Subscribe for a Channel value that is
// neither ChannelState nor ChannelDebug.
var ErrUnknownChannel = errors.New("unknown channel")

type entry struct {
	id      string
	channel Channel
	sub     Subscriber

	mu     sync.Mutex
	closed bool
}

func (e *entry) deliver(r Result) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errClosed
	}
	return e.sub.Send(r)
}

// close marks the entry closed and optionally sends the terminal result.
// Deliveries already running finish before close returns.
func (e *entry) close(ack bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if !ack {
		return nil
	}
	return e.sub.Send(Result{Status: StatusOK, KeepCallback: false})
}

type Manager struct {
	mu       sync.Mutex
	listener Listener
	logger   logging.Logger
	subs     map[Channel]map[string]*entry
	running  map[Channel]bool
}

func NewManager(listener Listener, logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Nop()
	}
	m := &Manager{
		listener: listener,
		logger:   logger,
		subs:     make(map[Channel]map[string]*entry, len(channels)),
		running:  make(map[Channel]bool, len(channels)),
	}
	for _, ch := range channels {
		m.subs[ch] = make(map[string]*entry)
	}
	return m
}

// Subscribe registers sub on ch and returns its subscription ID.
func (m *Manager) Subscribe(ch Channel, sub Subscriber) (string, error) {
	if !ch.Valid() {
		return "", fmt.Errorf("%w: %d", ErrUnknownChannel, ch)
	}
	e := &entry{id: uuid.NewString(), channel: ch, sub: sub}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.subs[ch][e.id] = e
	subscribersGauge.WithLabelValues(ch.String()).Set(float64(len(m.subs[ch])))
	m.logger.Debug("Subscriber added", "channel", ch.String(), "id", e.id, "total", m.total())

	if m.total() == 1 {
		m.activate()
	}
	return e.id, nil
}

// Unsubscribe removes the subscription and sends it one terminal result.
// Unknown IDs, or IDs of the other channel, are ignored. Once Unsubscribe
// returns the subscriber gets nothing more.
func (m *Manager) Unsubscribe(ch Channel, id string) bool {
	e := m.remove(ch, id)
	if e == nil {
		return false
	}
	if err := e.close(true); err != nil {
		m.logger.Warn("Failed to acknowledge unsubscribe",
			"error", (&DeliveryError{Channel: ch, SubscriptionID: id, Err: err}).Error())
	}
	return true
}

// Detach removes a subscription without acknowledging it, for subscribers
// whose transport is already gone.
func (m *Manager) Detach(id string) bool {
	for _, ch := range channels {
		if e := m.remove(ch, id); e != nil {
			_ = e.close(false)
			return true
		}
	}
	return false
}

func (m *Manager) remove(ch Channel, id string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs, ok := m.subs[ch]
	if !ok {
		return nil
	}
	e, ok := subs[id]
	if !ok {
		return nil
	}
	delete(subs, id)
	subscribersGauge.WithLabelValues(ch.String()).Set(float64(len(subs)))
	m.logger.Debug("Subscriber removed", "channel", ch.String(), "id", id, "total", m.total())

	if m.total() == 0 {
		m.deactivate()
	}
	return e
}

// Publish sends payload to every subscriber of ch and returns how many
// accepted it. A failing subscriber does not affect the others.
func (m *Manager) Publish(ch Channel, payload codec.Map) int {
	m.mu.Lock()
	targets := make([]*entry, 0, len(m.subs[ch]))
	for _, e := range m.subs[ch] {
		targets = append(targets, e)
	}
	m.mu.Unlock()

	delivered := 0
	for _, e := range targets {
		err := e.deliver(Result{Status: StatusOK, Payload: payload, KeepCallback: true})
		if errors.Is(err, errClosed) {
			continue
		}
		recordDelivery(ch, err)
		if err != nil {
			m.logger.Warn("Delivery failed",
				"error", (&DeliveryError{Channel: ch, SubscriptionID: e.id, Err: err}).Error())
			continue
		}
		delivered++
	}
	return delivered
}

func (m *Manager) Count(ch Channel) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[ch])
}

// Total is the combined subscriber count of both channels.
func (m *Manager) Total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total()
}

// Active reports whether any native stream is running.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, running := range m.running {
		if running {
			return true
		}
	}
	return false
}

// Running reports whether the native stream of ch is running.
func (m *Manager) Running(ch Channel) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running[ch]
}

// Close detaches every subscriber and stops the listener.
func (m *Manager) Close() {
	m.mu.Lock()
	var all []*entry
	for _, ch := range channels {
		for id, e := range m.subs[ch] {
			all = append(all, e)
			delete(m.subs[ch], id)
		}
		subscribersGauge.WithLabelValues(ch.String()).Set(0)
	}
	m.deactivate()
	m.mu.Unlock()

	for _, e := range all {
		_ = e.close(false)
	}
}

func (m *Manager) total() int {
	n := 0
	for _, subs := range m.subs {
		n += len(subs)
	}
	return n
}

// activate and deactivate run with m.mu held.
func (m *Manager) activate() {
	if m.listener == nil {
		return
	}
	listenerTransitions.WithLabelValues("start").Inc()
	for _, ch := range channels {
		if err := m.listener.Start(ch); err != nil {
			listenerStartFailures.WithLabelValues(ch.String()).Inc()
			m.logger.Error("Failed to start native listener", "channel", ch.String(), "error", err.Error())
			continue
		}
		m.running[ch] = true
	}
	m.logger.Info("Native listener started")
}

func (m *Manager) deactivate() {
	if m.listener == nil {
		return
	}
	stopped := false
	for _, ch := range channels {
		if !m.running[ch] {
			continue
		}
		m.listener.Stop(ch)
		m.running[ch] = false
		stopped = true
	}
	if stopped {
		listenerTransitions.WithLabelValues("stop").Inc()
		m.logger.Info("Native listener stopped")
	}
}
