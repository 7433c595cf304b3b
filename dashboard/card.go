package dashboard

import (
	"time"

	"github.com/goliatone/go-orders-master/addons"
	"github.com/goliatone/go-orders-master/filter"
	"github.com/goliatone/go-orders-master/orderstore"
)

// Status labels shown on cards.
const (
	LabelActive    = "active"
	LabelReady     = "ready"
	LabelCompleted = "completed"
)

var statusLabels = map[string]string{
	orderstore.StatusProcessing: LabelActive,
	orderstore.StatusPending:    LabelReady,
	orderstore.StatusCompleted:  LabelCompleted,
}

// StatusLabel maps an order status to its card label. Statuses outside the
// table fall back to the kitchen status tag, then to the raw status.
func StatusLabel(status, kitchenStatus string) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	if kitchenStatus != "" {
		return kitchenStatus
	}
	return status
}

// ItemCard is one line of an order card.
type ItemCard struct {
	ID         int64          `json:"id" msgpack:"id"`
	Name       string         `json:"name" msgpack:"name"`
	Quantity   int            `json:"quantity" msgpack:"quantity"`
	Station    string         `json:"station,omitempty" msgpack:"station,omitempty"`
	LineTotal  float64        `json:"line_total" msgpack:"line_total"`
	BasePrice  float64        `json:"base_price" msgpack:"base_price"`
	AddonTotal float64        `json:"addon_total" msgpack:"addon_total"`
	Addons     []addons.Entry `json:"addons,omitempty" msgpack:"addons,omitempty"`
}

// OrderCard is the denormalized dashboard view of one order.
type OrderCard struct {
	ID            int64           `json:"id" msgpack:"id"`
	Number        string          `json:"number" msgpack:"number"`
	Status        string          `json:"status" msgpack:"status"`
	StatusLabel   string          `json:"status_label" msgpack:"status_label"`
	KitchenStatus string          `json:"kitchen_status,omitempty" msgpack:"kitchen_status,omitempty"`
	Total         float64         `json:"total" msgpack:"total"`
	AddonTotal    float64         `json:"addon_total" msgpack:"addon_total"`
	CreatedAt     time.Time       `json:"created_at" msgpack:"created_at"`
	Customer      string          `json:"customer" msgpack:"customer"`
	TableNumber   string          `json:"table_number,omitempty" msgpack:"table_number,omitempty"`
	TableID       string          `json:"table_id,omitempty" msgpack:"table_id,omitempty"`
	Channel       string          `json:"channel,omitempty" msgpack:"channel,omitempty"`
	StaffID       int64           `json:"staff_id,omitempty" msgpack:"staff_id,omitempty"`
	StaffName     string          `json:"staff_name" msgpack:"staff_name"`
	ItemCount     int             `json:"item_count" msgpack:"item_count"`
	ItemSummary   string          `json:"item_summary" msgpack:"item_summary"`
	Readiness     map[string]bool `json:"readiness,omitempty" msgpack:"readiness,omitempty"`
	Items         []ItemCard      `json:"items" msgpack:"items"`
}

// Pagination describes the page a listing covers.
type Pagination struct {
	Page       int `json:"page" msgpack:"page"`
	PageSize   int `json:"page_size" msgpack:"page_size"`
	TotalPages int `json:"total_pages" msgpack:"total_pages"`
}

// Page is the response of a filtered card listing.
type Page struct {
	Orders     []OrderCard `json:"orders" msgpack:"orders"`
	TotalCount int         `json:"total_count" msgpack:"total_count"`
	Pagination Pagination  `json:"pagination" msgpack:"pagination"`
}

// Counts is the badge counter response.
type Counts struct {
	All       int `json:"all" msgpack:"all"`
	Active    int `json:"active" msgpack:"active"`
	Ready     int `json:"ready" msgpack:"ready"`
	Completed int `json:"completed" msgpack:"completed"`
}

func newCounts(m map[filter.Bucket]int) Counts {
	return Counts{
		All:       m[filter.BucketAll],
		Active:    m[filter.BucketActive],
		Ready:     m[filter.BucketReady],
		Completed: m[filter.BucketCompleted],
	}
}

// normalize undoes what a msgpack round trip changes: timestamps come back
// in the local zone and empty lists as nil. Collections omitted when empty
// are always nil, so fresh and cached pages compare equal.
func (p *Page) normalize() {
	if p.Orders == nil {
		p.Orders = []OrderCard{}
	}
	for i := range p.Orders {
		card := &p.Orders[i]
		card.CreatedAt = card.CreatedAt.UTC()
		if len(card.Readiness) == 0 {
			card.Readiness = nil
		}
		if card.Items == nil {
			card.Items = []ItemCard{}
		}
		for j := range card.Items {
			if len(card.Items[j].Addons) == 0 {
				card.Items[j].Addons = nil
			}
		}
	}
}

func newPagination(page, size, total int) Pagination {
	p := Pagination{Page: page, PageSize: size}
	if size > 0 {
		p.TotalPages = (total + size - 1) / size
	}
	return p
}
