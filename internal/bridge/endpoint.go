// Package bridge is the boundary object between the card driver and host
// applications: it owns the latest card state, encodes driver events and
// hands them to the subscription manager.
package bridge

import (
	"sync"

	"github.com/cortex-x/go-smartcard-bridge/internal/codec"
	"github.com/cortex-x/go-smartcard-bridge/internal/domain"
	"github.com/cortex-x/go-smartcard-bridge/internal/logging"
	"github.com/cortex-x/go-smartcard-bridge/internal/subscription"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var stateChanges = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cardbridge_state_changes_total",
		Help: "Card state events received from the driver grouped by state",
	},
	[]string{"state"},
)

type Endpoint struct {
	driver  Driver
	encoder *codec.Encoder
	logger  logging.Logger
	subs    *subscription.Manager

	// stateMu makes "replace state, then fan out" atomic and keeps events
	// in driver order for every subscriber.
	stateMu sync.Mutex
	state   domain.CardState

	debugMu sync.Mutex
}

type Option func(*Endpoint)

func WithEncoder(e *codec.Encoder) Option {
	return func(ep *Endpoint) {
		ep.encoder = e
	}
}

func WithLogger(l logging.Logger) Option {
	return func(ep *Endpoint) {
		ep.logger = l
	}
}

// NewEndpoint creates an endpoint over driver. A nil driver is allowed: every
// state query then fails with domain.ErrDriverUnavailable.
func NewEndpoint(driver Driver, opts ...Option) *Endpoint {
	e := &Endpoint{
		driver:  driver,
		encoder: codec.NewEncoder(),
		logger:  logging.Nop(),
		state:   domain.Unknown{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if driver != nil {
		e.state = driver.CurrentState()
	}
	e.subs = subscription.NewManager(nativeListener{e}, e.logger)
	return e
}

// CurrentState returns the owned state. Unless the native state stream is
// running the owned copy is refreshed from the driver's cache first.
func (e *Endpoint) CurrentState() (domain.CardState, error) {
	if e.driver == nil {
		return nil, domain.ErrDriverUnavailable
	}
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if !e.subs.Running(subscription.ChannelState) {
		e.state = e.driver.CurrentState()
	}
	return e.state, nil
}

// refresh copies the driver's cached state. The driver updates its cache
// before calling the sink, so the cache is never older than the last event.
func (e *Endpoint) refresh() {
	if e.driver == nil {
		return
	}
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.state = e.driver.CurrentState()
}

// GetState is CurrentState encoded for the host.
func (e *Endpoint) GetState() (codec.Map, error) {
	state, err := e.CurrentState()
	if err != nil {
		return nil, err
	}
	return e.encoder.EncodeState(state), nil
}

// Start subscribes sub to state changes and returns the subscription ID.
func (e *Endpoint) Start(sub subscription.Subscriber) string {
	return e.subscribe(subscription.ChannelState, sub)
}

// Stop ends a state subscription. The subscriber receives one terminal
// result.
func (e *Endpoint) Stop(id string) bool {
	return e.subs.Unsubscribe(subscription.ChannelState, id)
}

func (e *Endpoint) StartDebug(sub subscription.Subscriber) string {
	return e.subscribe(subscription.ChannelDebug, sub)
}

// subscribe registers sub, then catches the owned state up with any driver
// change made while no state sink was installed. It runs outside the
// manager lock.
func (e *Endpoint) subscribe(ch subscription.Channel, sub subscription.Subscriber) string {
	id, err := e.subs.Subscribe(ch, sub)
	if err != nil {
		e.logger.Error("Failed to subscribe", "channel", ch.String(), "error", err.Error())
		return ""
	}
	e.refresh()
	return id
}

func (e *Endpoint) StopDebug(id string) bool {
	return e.subs.Unsubscribe(subscription.ChannelDebug, id)
}

// Detach drops a subscription of either channel without acknowledgement.
func (e *Endpoint) Detach(id string) bool {
	return e.subs.Detach(id)
}

func (e *Endpoint) Subscribers(ch subscription.Channel) int {
	return e.subs.Count(ch)
}

// OnDriverEvent replaces the owned state and delivers it to state
// subscribers.
func (e *Endpoint) OnDriverEvent(state domain.CardState) {
	if state == nil {
		state = domain.Unknown{}
	}
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	e.state = state
	stateChanges.WithLabelValues(codec.StateName(state.Kind())).Inc()
	e.logger.Debug("Card state changed", "state", state.Kind().String())

	if e.subs.Count(subscription.ChannelState) == 0 {
		return
	}
	e.subs.Publish(subscription.ChannelState, e.encoder.EncodeState(state))
}

// OnDriverDebug delivers a driver debug message to debug subscribers.
func (e *Endpoint) OnDriverDebug(message string) {
	e.debugMu.Lock()
	defer e.debugMu.Unlock()

	if e.subs.Count(subscription.ChannelDebug) == 0 {
		return
	}
	e.subs.Publish(subscription.ChannelDebug, codec.EncodeDebug(message))
}

// Close detaches all subscribers and stops the driver sinks.
func (e *Endpoint) Close() {
	e.subs.Close()
}

// nativeListener connects the subscription manager to the driver sinks.
type nativeListener struct {
	e *Endpoint
}

func (l nativeListener) Start(ch subscription.Channel) error {
	if l.e.driver == nil {
		return domain.ErrDriverUnavailable
	}
	switch ch {
	case subscription.ChannelState:
		return l.e.driver.StartStateUpdates(l.e.OnDriverEvent)
	case subscription.ChannelDebug:
		return l.e.driver.StartDebugMessages(l.e.OnDriverDebug)
	}
	return nil
}

func (l nativeListener) Stop(ch subscription.Channel) {
	if l.e.driver == nil {
		return
	}
	switch ch {
	case subscription.ChannelState:
		l.e.driver.StopStateUpdates()
	case subscription.ChannelDebug:
		l.e.driver.StopDebugMessages()
	}
}
