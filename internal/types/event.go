package types

import "time"

// EventType names a trade lifecycle event
type EventType string

const (
	EventTradeCreated   EventType = "trade.created"
	EventTradeAccepted  EventType = "trade.accepted"
	EventTradeRejected  EventType = "trade.rejected"
	EventTradeCompleted EventType = "trade.completed"
)

// EventForStatus maps the status a trade just entered to its event type
func EventForStatus(s Status) EventType {
	switch s {
	case StatusAccepted:
		return EventTradeAccepted
	case StatusRejected:
		return EventTradeRejected
	case StatusCompleted:
		return EventTradeCompleted
	default:
		return EventTradeCreated
	}
}

// TradeEvent is emitted after a trade is stored or changes status
type TradeEvent struct {
	Type       EventType `json:"type"`
	Trade      *Trade    `json:"trade"`
	OccurredAt time.Time `json:"occurredAt"`
}
