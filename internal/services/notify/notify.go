// Package notify carries the control-plane boundary: outbound trade and
// drift events, and the inbound pause/resume/emergency switches.
package notify

import "fmt"

// EventType labels an outbound notification.
type EventType string

const (
	EventOpen   EventType = "open"
	EventClose  EventType = "close"
	EventDrift  EventType = "drift"
	EventError  EventType = "error"
	EventReport EventType = "report"
)

// Event is one user-visible notification. Transport and formatting live
// behind the Notifier implementation.
type Event struct {
	Type   EventType
	Symbol string
	Text   string
}

// Notifier delivers events to the operator.
type Notifier interface {
	Notify(e Event)
}

// Status is the control-plane view of the bot's switches.
type Status struct {
	Paused        bool
	AutoTrading   bool
	EmergencyStop bool
}

func (s Status) String() string {
	return fmt.Sprintf("paused=%t auto=%t emergency=%t", s.Paused, s.AutoTrading, s.EmergencyStop)
}

// Controls is polled by the trading loops before any mutating call.
type Controls interface {
	ShouldTrade() bool
	Status() Status
}

// Nop discards all events and always allows trading. Used in tests and
// when no Telegram credentials are configured.
type Nop struct{}

func (Nop) Notify(Event) {}

func (Nop) ShouldTrade() bool { return true }

func (Nop) Status() Status { return Status{AutoTrading: true} }
