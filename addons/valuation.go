package addons

import (
	"io"
	"math"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-orders-master/orderstore"
)

// ItemValuation is the addon breakdown of one line item.
type ItemValuation struct {
	ItemID            int64
	Kind              Kind
	Entries           []Entry
	AddonTotal        float64
	TotalWithQuantity float64
	BasePrice         float64
}

type orderValuation struct {
	addonTotal float64
	items      map[int64]ItemValuation
}

// Valuation holds the addon pricing of one materialization batch. It is
// rebuilt for every batch and never shared across requests. Reads are safe
// for concurrent use once Build has returned.
type Valuation struct {
	mu     sync.RWMutex
	orders map[int64]*orderValuation
	logger logrus.FieldLogger
}

// NewValuation returns an empty valuation. A nil logger discards output.
func NewValuation(logger logrus.FieldLogger) *Valuation {
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}
	return &Valuation{
		orders: map[int64]*orderValuation{},
		logger: logger.WithField("component", "addons"),
	}
}

// Build replaces the current batch with the valuation of items, keyed by
// order id. A malformed payload zeroes the addon cost of that item only.
func (v *Valuation) Build(items map[int64][]orderstore.LineItem) {
	orders := make(map[int64]*orderValuation, len(items))
	for orderID, lines := range items {
		ov := &orderValuation{items: make(map[int64]ItemValuation, len(lines))}
		for _, item := range lines {
			iv := v.valueItem(item)
			ov.items[item.ID] = iv
			ov.addonTotal += iv.TotalWithQuantity
		}
		ov.addonTotal = round2(ov.addonTotal)
		orders[orderID] = ov
	}

	v.mu.Lock()
	v.orders = orders
	v.mu.Unlock()

	v.logger.WithField("orders", len(orders)).Debug("addon valuation built")
}

func (v *Valuation) valueItem(item orderstore.LineItem) ItemValuation {
	enc := Decode(item)
	entries, err := enc.Entries()
	if err != nil {
		v.logger.WithError(err).WithFields(logrus.Fields{
			"order_id": item.OrderID,
			"item_id":  item.ID,
			"encoding": enc.Kind().String(),
		}).Warn("malformed addon payload, assuming no addon cost")
		entries = nil
	}

	var addonTotal float64
	for _, e := range entries {
		addonTotal += e.Price * float64(e.Quantity)
	}
	addonTotal = round2(addonTotal)

	qty := item.Quantity
	if qty <= 0 {
		qty = 1
	}
	withQty := round2(addonTotal * float64(qty))
	base := math.Max(0, (item.LineTotal-withQty)/float64(qty))

	return ItemValuation{
		ItemID:            item.ID,
		Kind:              enc.Kind(),
		Entries:           entries,
		AddonTotal:        addonTotal,
		TotalWithQuantity: withQty,
		BasePrice:         round2(base),
	}
}

// Item returns the valuation of one line item.
func (v *Valuation) Item(orderID, itemID int64) (ItemValuation, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	ov, ok := v.orders[orderID]
	if !ok {
		return ItemValuation{}, false
	}
	iv, ok := ov.items[itemID]
	return iv, ok
}

// OrderAddonTotal is the addon cost of the whole order, item quantities
// included. Orders outside the batch report 0.
func (v *Valuation) OrderAddonTotal(orderID int64) float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if ov, ok := v.orders[orderID]; ok {
		return ov.addonTotal
	}
	return 0
}

// ItemBasePrice is the unit price of the item without addons, never negative.
func (v *Valuation) ItemBasePrice(orderID, itemID int64) float64 {
	iv, _ := v.Item(orderID, itemID)
	return iv.BasePrice
}

// ItemAddonDetails lists the resolved addons of the item.
func (v *Valuation) ItemAddonDetails(orderID, itemID int64) []Entry {
	iv, _ := v.Item(orderID, itemID)
	return iv.Entries
}

// Len reports how many orders the current batch holds.
func (v *Valuation) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.orders)
}

// Reset drops the current batch.
func (v *Valuation) Reset() {
	v.mu.Lock()
	v.orders = map[int64]*orderValuation{}
	v.mu.Unlock()
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
