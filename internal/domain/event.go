package domain

import "time"

type OrderEventType string

const (
	EventOrderCreated              OrderEventType = "order.created"
	EventOrderCompleted            OrderEventType = "order.completed"
	EventOrderCancelled            OrderEventType = "order.cancelled"
	EventOrderSettlementIncomplete OrderEventType = "order.settlement_incomplete"
)

// OrderEvent is published when an order changes state.
type OrderEvent struct {
	Type       OrderEventType `json:"type"`
	OrderID    string         `json:"orderId"`
	Status     OrderStatus    `json:"status"`
	Step       string         `json:"step,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}
