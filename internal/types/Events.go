package types

import "time"

// Event kinds emitted by the vault for external monitoring.
const (
	EventDeposit           = "deposit"
	EventWithdrawRequested = "withdraw_requested"
	EventWithdrawCompleted = "withdraw_completed"
	EventWithdrawRefunded  = "withdraw_refunded"
	EventRateUpdated       = "rate_updated"
	EventConfigUpdated     = "config_updated"
	EventPaused            = "paused"
	EventUnpaused          = "unpaused"
)

// Event is a single vault notification. Attributes carry amounts and
// identities as strings so sinks can persist them without knowing the
// numeric types involved.
type Event struct {
	Kind       string            `json:"kind"`
	Timestamp  time.Time         `json:"timestamp"`
	Attributes map[string]string `json:"attributes"`
}

// EventSink receives vault events. Sinks must not block vault operations on
// failure; a sink that cannot record an event deals with that itself.
type EventSink interface {
	Emit(event Event)
}
