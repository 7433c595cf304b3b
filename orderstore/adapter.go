package orderstore

import (
	"context"
	"io"
	"sort"

	goerrors "github.com/goliatone/go-errors"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// ErrCodeBatch is the text code carried by every batched read failure.
const ErrCodeBatch = "ORDER_STORE_BATCH"

// summarySeparator joins the "qty × name" parts of an item summary.
const summarySeparator = ", "

// Adapter is the read-only batched view over the order store. Each Fetch
// method issues a single query for the whole id set; a store error fails the
// batch as a whole.
type Adapter struct {
	db      bun.IDB
	layout  Layout
	dialect dialect.Name
	logger  logrus.FieldLogger
}

// NewAdapter builds an Adapter over db using layout. A nil logger discards output.
func NewAdapter(db bun.IDB, layout Layout, logger logrus.FieldLogger) *Adapter {
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}
	return &Adapter{
		db:      db,
		layout:  layout,
		dialect: DialectOf(db),
		logger:  logger.WithField("component", "orderstore"),
	}
}

// DB returns the underlying database handle.
func (a *Adapter) DB() bun.IDB { return a.db }

// Layout returns the active storage layout.
func (a *Adapter) Layout() Layout { return a.layout }

// Dialect returns the SQL dialect of the store.
func (a *Adapter) Dialect() dialect.Name { return a.dialect }

// FetchOrders returns the core record of every id found, refunds included.
func (a *Adapter) FetchOrders(ctx context.Context, ids []int64) (map[int64]Order, error) {
	ids = uniqueIDs(ids)
	out := make(map[int64]Order, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	orders, err := a.layout.FetchOrders(ctx, a.db, ids)
	if err != nil {
		return nil, a.batchError(err, "fetch orders", len(ids))
	}
	for _, o := range orders {
		out[o.ID] = o
	}
	return out, nil
}

type metaRow struct {
	OrderID   int64  `bun:"order_id"`
	MetaKey   string `bun:"meta_key"`
	MetaValue string `bun:"meta_value"`
}

// FetchMeta returns the whitelisted meta for ids. Orders without any
// whitelisted key are absent from the map. Duplicate keys resolve to the
// most recently written row.
func (a *Adapter) FetchMeta(ctx context.Context, ids []int64) (map[int64]Meta, error) {
	ids = uniqueIDs(ids)
	out := make(map[int64]Meta, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	m := a.layout.Meta()
	var rows []metaRow
	err := a.db.NewSelect().
		TableExpr(m.Table+" AS m").
		ColumnExpr("m."+m.OrderID+" AS order_id").
		ColumnExpr("m."+m.Key+" AS meta_key").
		ColumnExpr("m."+m.Value+" AS meta_value").
		Where("m."+m.OrderID+" IN (?)", bun.In(ids)).
		Where("m."+m.Key+" IN (?)", bun.In(MetaWhitelist)).
		OrderExpr("m." + m.ID).
		Scan(ctx, &rows)
	if err != nil {
		return nil, a.batchError(err, "fetch meta", len(ids))
	}

	for _, r := range rows {
		meta, ok := out[r.OrderID]
		if !ok {
			meta = Meta{}
			out[r.OrderID] = meta
		}
		meta[r.MetaKey] = r.MetaValue
	}
	return out, nil
}

type summaryRow struct {
	OrderID   int64  `bun:"order_id"`
	ItemCount int    `bun:"item_count"`
	Summary   string `bun:"summary"`
}

// FetchItemSummaries returns, per order, the total item quantity and a
// "qty × name" summary concatenated by the store in item order.
func (a *Adapter) FetchItemSummaries(ctx context.Context, ids []int64) (map[int64]ItemSummary, error) {
	ids = uniqueIDs(ids)
	out := make(map[int64]ItemSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	part := Concat(a.dialect, TextCast(a.dialect, "i.quantity"), "' × '", "i.name")
	// SQLite's group_concat has no ORDER BY; the ordered subquery feeds it.
	query := `SELECT i.order_id AS order_id, SUM(i.quantity) AS item_count, ` +
		GroupConcat(a.dialect, part, "i.id", summarySeparator) + ` AS summary
FROM (SELECT id, order_id, name, quantity FROM order_items WHERE order_id IN (?) ORDER BY order_id, id) AS i
GROUP BY i.order_id`

	var rows []summaryRow
	if err := a.db.NewRaw(query, bun.In(ids)).Scan(ctx, &rows); err != nil {
		return nil, a.batchError(err, "fetch item summaries", len(ids))
	}
	for _, r := range rows {
		out[r.OrderID] = ItemSummary{Count: r.ItemCount, Summary: r.Summary}
	}
	return out, nil
}

type lineItemRow struct {
	ID        int64   `bun:"id"`
	OrderID   int64   `bun:"order_id"`
	Name      string  `bun:"name"`
	Quantity  int     `bun:"quantity"`
	LineTotal float64 `bun:"line_total"`
	Station   string  `bun:"station"`
	MetaKey   *string `bun:"meta_key"`
	MetaValue *string `bun:"meta_value"`
}

// FetchLineItems returns the items of every order with their raw item meta,
// ordered by item id.
func (a *Adapter) FetchLineItems(ctx context.Context, ids []int64) (map[int64][]LineItem, error) {
	ids = uniqueIDs(ids)
	out := make(map[int64][]LineItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows []lineItemRow
	err := a.db.NewSelect().
		TableExpr("order_items AS i").
		ColumnExpr("i.id, i.order_id, i.name, i.quantity, i.line_total, i.station").
		ColumnExpr("im.meta_key, im.meta_value").
		Join("LEFT JOIN order_itemmeta AS im ON im.item_id = i.id").
		Where("i.order_id IN (?)", bun.In(ids)).
		OrderExpr("i.order_id, i.id, im.id").
		Scan(ctx, &rows)
	if err != nil {
		return nil, a.batchError(err, "fetch line items", len(ids))
	}

	index := make(map[int64]int)
	for _, r := range rows {
		pos, seen := index[r.ID]
		if !seen {
			out[r.OrderID] = append(out[r.OrderID], LineItem{
				ID:        r.ID,
				OrderID:   r.OrderID,
				Name:      r.Name,
				Quantity:  r.Quantity,
				LineTotal: r.LineTotal,
				Station:   r.Station,
				Meta:      map[string]string{},
			})
			pos = len(out[r.OrderID]) - 1
			index[r.ID] = pos
		}
		if r.MetaKey != nil {
			value := ""
			if r.MetaValue != nil {
				value = *r.MetaValue
			}
			out[r.OrderID][pos].Meta[*r.MetaKey] = value
		}
	}
	return out, nil
}

// FetchDisplayNames resolves staff ids to display names. Ids are
// deduplicated; unknown ids are absent from the result.
func (a *Adapter) FetchDisplayNames(ctx context.Context, staffIDs []int64) (map[int64]string, error) {
	staffIDs = uniqueIDs(staffIDs)
	out := make(map[int64]string, len(staffIDs))
	if len(staffIDs) == 0 {
		return out, nil
	}

	var users []UserRow
	err := a.db.NewSelect().
		Model(&users).
		Column("id", "display_name").
		Where("u.id IN (?)", bun.In(staffIDs)).
		Scan(ctx)
	if err != nil {
		return nil, a.batchError(err, "fetch display names", len(staffIDs))
	}
	for _, u := range users {
		out[u.ID] = u.DisplayName
	}
	return out, nil
}

func (a *Adapter) batchError(err error, op string, size int) error {
	a.logger.WithError(err).WithFields(logrus.Fields{
		"operation":  op,
		"batch_size": size,
		"layout":     a.layout.Name(),
	}).Error("order store batch failed")

	return goerrors.Wrap(err, goerrors.CategoryExternal, "order store: "+op+" failed").
		WithTextCode(ErrCodeBatch).
		WithMetadata(map[string]any{
			"operation":  op,
			"batch_size": size,
		})
}

// uniqueIDs drops zero and duplicate ids and sorts the rest, so the same set
// always yields the same query.
func uniqueIDs(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
