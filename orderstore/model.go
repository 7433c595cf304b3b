// Package orderstore reads orders from either storage layout in batches.
package orderstore

import (
	"time"
)

// Record types shared by both storage layouts.
const (
	TypeOrder  = "shop_order"
	TypeRefund = "shop_order_refund"
)

// Logical order statuses (legacy rows store them with a "wc-" prefix).
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusOnHold     = "on-hold"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusRefunded   = "refunded"
)

// Kitchen status tags kept in the auxiliary _kitchen_status meta.
const (
	KitchenPlaced    = "placed"
	KitchenCooking   = "cooking"
	KitchenReady     = "ready"
	KitchenCompleted = "completed"
	KitchenCancelled = "cancelled"
)

// Order channel tags.
const (
	ChannelDineIn   = "dine-in"
	ChannelTakeaway = "takeaway"
	ChannelDelivery = "delivery"
)

// Kitchen stations a line item can be routed to.
const (
	StationFood     = "food"
	StationBeverage = "beverage"
)

// Order meta keys read by the dashboard.
const (
	MetaKitchenStatus  = "_kitchen_status"
	MetaTableNumber    = "_table_number"
	MetaTableID        = "_table_id"
	MetaAssignedWaiter = "_assigned_waiter"
	MetaOrderType      = "_order_type"
	MetaFoodReady      = "_food_ready"
	MetaBeverageReady  = "_beverage_ready"
)

// MetaWhitelist is the fixed set of keys FetchMeta loads.
var MetaWhitelist = []string{
	MetaKitchenStatus,
	MetaTableNumber,
	MetaTableID,
	MetaAssignedWaiter,
	MetaOrderType,
	MetaFoodReady,
	MetaBeverageReady,
}

// ReadyMetaKey returns the readiness meta key for a kitchen station.
func ReadyMetaKey(station string) string {
	return "_" + station + "_ready"
}

// Line item meta keys holding addon payloads.
const (
	ItemMetaAddons      = "_addons"
	ItemMetaAddonText   = "_addon_text"
	ItemMetaAddonPrefix = "_addon_"
)

// Order is the core record of an order or refund.
type Order struct {
	ID        int64
	Type      string
	Status    string
	Total     float64
	Number    string
	Key       string
	FirstName string
	LastName  string
	ParentID  int64
	CreatedAt time.Time
}

// IsOrder reports whether the record is a real order. Refunds and other
// records carry no order number and never reach the dashboard.
func (o Order) IsOrder() bool {
	return o.Type == TypeOrder && o.Number != ""
}

// ItemSummary is the per-order aggregate computed by the store.
type ItemSummary struct {
	Count   int
	Summary string
}

// LineItem is one order line with its raw addon meta.
type LineItem struct {
	ID        int64
	OrderID   int64
	Name      string
	Quantity  int
	LineTotal float64
	Station   string
	Meta      map[string]string
}

// Meta is the whitelisted meta of one order.
type Meta map[string]string

// Get returns the value for key or "".
func (m Meta) Get(key string) string {
	if m == nil {
		return ""
	}
	return m[key]
}
