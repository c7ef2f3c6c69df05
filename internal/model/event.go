package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderItem is the display summary of one line item.
type OrderItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// OrderEvent is emitted by the order source whenever an order is created.
// Two historical producers exist: the newer one sets business_id, the
// older one sets store_id. Both are first-class inputs.
type OrderEvent struct {
	OrderID      string          `json:"order_id"`
	BusinessID   string          `json:"business_id,omitempty"`
	StoreID      string          `json:"store_id,omitempty"`
	CustomerName string          `json:"customer_name"`
	Total        decimal.Decimal `json:"total"`
	Items        []OrderItem     `json:"items"`
}

// ResolveBusinessID returns the routing key for the event, preferring the
// specific business_id over the legacy store_id. ok is false when neither
// producer filled its field.
func (e OrderEvent) ResolveBusinessID() (string, bool) {
	if e.BusinessID != "" {
		return e.BusinessID, true
	}
	if e.StoreID != "" {
		return e.StoreID, true
	}
	return "", false
}

// PresenceStatus is the wire value of a presence toggle.
type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)

// PresenceEvent is emitted when a business toggles its accepting-orders
// flag.
type PresenceEvent struct {
	BusinessID string         `json:"business_id"`
	Status     PresenceStatus `json:"status"`
	ToggledAt  time.Time      `json:"toggled_at"`
}

// Accepting maps the wire status onto the subscription mirror flag.
func (e PresenceEvent) Accepting() bool { return e.Status == StatusOnline }
