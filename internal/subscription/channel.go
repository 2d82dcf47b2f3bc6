package subscription

import (
	"fmt"

	"github.com/cortex-x/go-smartcard-bridge/internal/codec"
)

// Channel is one of the two event streams a host can subscribe to.
type Channel int

const (
	ChannelState Channel = iota
	ChannelDebug
)

var channels = []Channel{ChannelState, ChannelDebug}

func (c Channel) String() string {
	switch c {
	case ChannelState:
		return "state"
	case ChannelDebug:
		return "debug"
	}
	return fmt.Sprintf("Channel(%d)", int(c))
}

// Valid reports whether c is one of the known channels.
func (c Channel) Valid() bool {
	return c == ChannelState || c == ChannelDebug
}

func ParseChannel(s string) (Channel, error) {
	for _, c := range channels {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown channel %q", s)
}

type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Result is one message for a subscriber. KeepCallback is false only on the
// final result a subscriber will ever get.
type Result struct {
	Status       Status
	Payload      codec.Map
	KeepCallback bool
}

// Subscriber receives results for one subscription. Send must not block for
// long and must not call back into the Manager.
type Subscriber interface {
	Send(Result) error
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(Result) error

func (f SubscriberFunc) Send(r Result) error { return f(r) }

// Listener is the native side the Manager starts and stops.
type Listener interface {
	Start(ch Channel) error
	Stop(ch Channel)
}

// DeliveryError describes a result one subscriber could not accept.
type DeliveryError struct {
	Channel        Channel
	SubscriptionID string
	Err            error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s subscriber %s: %v", e.Channel, e.SubscriptionID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
