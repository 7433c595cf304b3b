package dashboard

import (
	"context"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-orders-master/addons"
	"github.com/goliatone/go-orders-master/orderstore"
)

// DefaultWorkers is the card construction fan-out when none is configured.
const DefaultWorkers = 4

// Store is the batched read side the materializer needs. Every method takes
// the whole id set and makes one round trip.
type Store interface {
	FetchOrders(ctx context.Context, ids []int64) (map[int64]orderstore.Order, error)
	FetchMeta(ctx context.Context, ids []int64) (map[int64]orderstore.Meta, error)
	FetchItemSummaries(ctx context.Context, ids []int64) (map[int64]orderstore.ItemSummary, error)
	FetchLineItems(ctx context.Context, ids []int64) (map[int64][]orderstore.LineItem, error)
	FetchDisplayNames(ctx context.Context, staffIDs []int64) (map[int64]string, error)
}

// Materializer assembles order cards from batched store reads.
type Materializer struct {
	store   Store
	workers int
	logger  logrus.FieldLogger
}

// MaterializerOption configures a Materializer.
type MaterializerOption func(*Materializer)

// WithWorkers sets the card construction fan-out.
func WithWorkers(n int) MaterializerOption {
	return func(m *Materializer) {
		if n > 0 {
			m.workers = n
		}
	}
}

// WithMaterializerLogger sets the logger.
func WithMaterializerLogger(logger logrus.FieldLogger) MaterializerOption {
	return func(m *Materializer) {
		if logger != nil {
			m.logger = logger.WithField("component", "materializer")
		}
	}
}

// NewMaterializer builds a Materializer over store.
func NewMaterializer(store Store, opts ...MaterializerOption) *Materializer {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	m := &Materializer{
		store:   store,
		workers: DefaultWorkers,
		logger:  discard.WithField("component", "materializer"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// batch is the read-only input of card construction.
type batch struct {
	orders    map[int64]orderstore.Order
	meta      map[int64]orderstore.Meta
	summaries map[int64]orderstore.ItemSummary
	items     map[int64][]orderstore.LineItem
	names     map[int64]string
	valuation *addons.Valuation
}

// Materialize returns one card per order id, in the order given. Unknown ids
// and records that are not orders, such as refunds, are skipped. valuation
// is rebuilt for the batch; nil allocates a private one. Any store error
// fails the whole call.
func (m *Materializer) Materialize(ctx context.Context, ids []int64, valuation *addons.Valuation) ([]OrderCard, error) {
	if valuation == nil {
		valuation = addons.NewValuation(m.logger)
	}
	if len(ids) == 0 {
		valuation.Reset()
		return []OrderCard{}, nil
	}

	orders, err := m.store.FetchOrders(ctx, ids)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{}, len(ids))
	keep := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if o, ok := orders[id]; ok && o.IsOrder() {
			keep = append(keep, id)
		}
	}
	if skipped := len(seen) - len(keep); skipped > 0 {
		m.logger.WithField("skipped", skipped).Debug("skipping non-order records")
	}
	if len(keep) == 0 {
		valuation.Reset()
		return []OrderCard{}, nil
	}

	b := batch{orders: orders, valuation: valuation}
	if b.meta, err = m.store.FetchMeta(ctx, keep); err != nil {
		return nil, err
	}
	if b.summaries, err = m.store.FetchItemSummaries(ctx, keep); err != nil {
		return nil, err
	}
	if b.items, err = m.store.FetchLineItems(ctx, keep); err != nil {
		return nil, err
	}
	if b.names, err = m.store.FetchDisplayNames(ctx, staffIDs(keep, b.meta)); err != nil {
		return nil, err
	}
	valuation.Build(b.items)

	cards := make([]OrderCard, len(keep))
	m.fanOut(len(keep), func(i int) {
		cards[i] = b.card(keep[i])
	})

	m.logger.WithField("orders", len(cards)).Debug("materialized order cards")
	return cards, nil
}

// fanOut runs fn for every index in [0, n) on the worker pool. The batch
// maps are never written during construction.
func (m *Materializer) fanOut(n int, fn func(i int)) {
	workers := min(m.workers, n)
	if workers <= 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				fn(i)
			}
		}()
	}
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}

func staffIDs(ids []int64, meta map[int64]orderstore.Meta) []int64 {
	var out []int64
	for _, id := range ids {
		if staff := parseStaffID(meta[id].Get(orderstore.MetaAssignedWaiter)); staff > 0 {
			out = append(out, staff)
		}
	}
	return out
}

func parseStaffID(s string) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

func (b batch) card(id int64) OrderCard {
	o := b.orders[id]
	meta := b.meta[id]
	summary := b.summaries[id]
	kitchen := meta.Get(orderstore.MetaKitchenStatus)
	staff := parseStaffID(meta.Get(orderstore.MetaAssignedWaiter))

	card := OrderCard{
		ID:            o.ID,
		Number:        o.Number,
		Status:        o.Status,
		StatusLabel:   StatusLabel(o.Status, kitchen),
		KitchenStatus: kitchen,
		Total:         o.Total,
		AddonTotal:    b.valuation.OrderAddonTotal(id),
		CreatedAt:     o.CreatedAt.UTC(),
		Customer:      strings.TrimSpace(o.FirstName + " " + o.LastName),
		TableNumber:   meta.Get(orderstore.MetaTableNumber),
		TableID:       meta.Get(orderstore.MetaTableID),
		Channel:       meta.Get(orderstore.MetaOrderType),
		StaffID:       staff,
		StaffName:     b.names[staff],
		ItemCount:     summary.Count,
		ItemSummary:   summary.Summary,
		Items:         []ItemCard{},
	}

	for _, item := range b.items[id] {
		iv, _ := b.valuation.Item(id, item.ID)
		card.Items = append(card.Items, ItemCard{
			ID:         item.ID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			Station:    item.Station,
			LineTotal:  item.LineTotal,
			BasePrice:  iv.BasePrice,
			AddonTotal: iv.AddonTotal,
			Addons:     iv.Entries,
		})
		if item.Station == "" {
			continue
		}
		if card.Readiness == nil {
			card.Readiness = map[string]bool{}
		}
		if _, ok := card.Readiness[item.Station]; !ok {
			card.Readiness[item.Station] = meta.Get(orderstore.ReadyMetaKey(item.Station)) == "yes"
		}
	}
	return card
}
