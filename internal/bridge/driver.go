package bridge

import "github.com/cortex-x/go-smartcard-bridge/internal/domain"

// Driver is the hardware side of the bridge. CurrentState must return a
// cached value and never touch the reader. The Start methods install a sink
// that the driver calls for every subsequent event; the Stop methods remove
// only their own sink. Sinks are called from the driver's own goroutine,
// never from inside a Start or Stop call.
type Driver interface {
	CurrentState() domain.CardState
	StartStateUpdates(func(domain.CardState)) error
	StopStateUpdates()
	StartDebugMessages(func(string)) error
	StopDebugMessages()
}
