package websocket

import (
	"github.com/cortex-x/go-smartcard-bridge/internal/codec"
	"github.com/cortex-x/go-smartcard-bridge/internal/subscription"
)

// Actions a host can send.
const (
	ActionGetState   = "getState"
	ActionStart      = "start"
	ActionStop       = "stop"
	ActionStartDebug = "startDebug"
	ActionStopDebug  = "stopDebug"
)

// Command is one host request. Results for it carry the same CallbackID.
// Subscription optionally names the callbackId of the start/startDebug a
// stop refers to; when empty every subscription of the connection on that
// channel is stopped.
type Command struct {
	Action       string `json:"action"`
	CallbackID   string `json:"callbackId"`
	Subscription string `json:"subscription,omitempty"`
}

// Reply is one result sent to the host.
type Reply struct {
	CallbackID   string    `json:"callbackId"`
	Status       string    `json:"status"`
	KeepCallback bool      `json:"keepCallback"`
	Payload      codec.Map `json:"payload,omitempty"`
}

// Bridge is the endpoint the hub forwards commands to.
type Bridge interface {
	GetState() (codec.Map, error)
	Start(subscription.Subscriber) string
	Stop(id string) bool
	StartDebug(subscription.Subscriber) string
	StopDebug(id string) bool
	Detach(id string) bool
}

func errorReply(callbackID, message string) Reply {
	return Reply{
		CallbackID: callbackID,
		Status:     string(subscription.StatusError),
		Payload:    codec.Map{"message": message},
	}
}
