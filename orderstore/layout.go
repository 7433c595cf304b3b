package orderstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// ErrCodeLayout is the text code of an unknown layout name.
const ErrCodeLayout = "ORDER_STORE_LAYOUT"

// Layout names accepted by LayoutByName.
const (
	LayoutLegacy      = "legacy"
	LayoutOrdersTable = "orders_table"
)

// Legacy meta keys carrying the core order fields.
const (
	legacyTotalKey     = "_order_total"
	legacyNumberKey    = "_order_number"
	legacyOrderKey     = "_order_key"
	legacyFirstNameKey = "_billing_first_name"
	legacyLastNameKey  = "_billing_last_name"

	legacyStatusPrefix = "wc-"
)

// OrderColumns names the record table and the columns the filter compiler
// reads. Columns are qualified with the "o" alias.
type OrderColumns struct {
	Table   string
	ID      string
	Type    string
	Status  string
	Created string
}

// MetaColumns names the order meta table.
type MetaColumns struct {
	Table   string
	ID      string
	OrderID string
	Key     string
	Value   string
}

// Layout hides where order records live. The legacy layout keeps one post
// per order with fields in a key/value meta table; the dedicated layout has
// an orders table with real columns. Both produce the same logical records.
type Layout interface {
	Name() string
	Models() []any
	Orders() OrderColumns
	Meta() MetaColumns
	// StoredStatus maps a logical status to its stored value.
	StoredStatus(status string) string
	// LogicalStatus reverses StoredStatus.
	LogicalStatus(stored string) string
	// TotalExpr is a numeric SQL expression for the total of order o.
	TotalExpr(d dialect.Name) string
	// TextMatch returns a predicate matching a lowercase LIKE pattern against
	// the customer names, order key and order number of o.
	TextMatch(pattern string) (string, []any)
	// FetchOrders loads core records for ids in one round trip.
	FetchOrders(ctx context.Context, db bun.IDB, ids []int64) ([]Order, error)
}

// LayoutByName returns the layout registered under name.
func LayoutByName(name string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case LayoutLegacy, "posts":
		return LegacyLayout{}, nil
	case LayoutOrdersTable, "hpos", "orders":
		return OrdersTableLayout{}, nil
	default:
		return nil, goerrors.New(fmt.Sprintf("unknown order storage layout %q", name), goerrors.CategoryValidation).
			WithTextCode(ErrCodeLayout).
			WithMetadata(map[string]any{"layout": name})
	}
}

// LegacyLayout stores orders as posts plus postmeta rows.
type LegacyLayout struct{}

func (LegacyLayout) Name() string { return LayoutLegacy }

func (LegacyLayout) Models() []any {
	return []any{(*PostRow)(nil), (*PostMetaRow)(nil)}
}

func (LegacyLayout) Orders() OrderColumns {
	return OrderColumns{
		Table:   "posts",
		ID:      "o.id",
		Type:    "o.post_type",
		Status:  "o.post_status",
		Created: "o.post_date_gmt",
	}
}

func (LegacyLayout) Meta() MetaColumns {
	return MetaColumns{Table: "postmeta", ID: "meta_id", OrderID: "post_id", Key: "meta_key", Value: "meta_value"}
}

func (LegacyLayout) StoredStatus(status string) string {
	if status == "" || strings.HasPrefix(status, legacyStatusPrefix) {
		return status
	}
	return legacyStatusPrefix + status
}

func (LegacyLayout) LogicalStatus(stored string) string {
	return strings.TrimPrefix(stored, legacyStatusPrefix)
}

func (LegacyLayout) TotalExpr(d dialect.Name) string {
	return "(SELECT " + NumericCast(d, "tm.meta_value") +
		" FROM postmeta AS tm WHERE tm.post_id = o.id AND tm.meta_key = '" + legacyTotalKey + "' LIMIT 1)"
}

func (LegacyLayout) TextMatch(pattern string) (string, []any) {
	keys := []string{legacyFirstNameKey, legacyLastNameKey, legacyOrderKey, legacyNumberKey}
	return "EXISTS (SELECT 1 FROM postmeta AS sm WHERE sm.post_id = o.id AND sm.meta_key IN (?) AND LOWER(sm.meta_value) LIKE ?)",
		[]any{bun.In(keys), pattern}
}

type legacyOrderRow struct {
	ID          int64          `bun:"id"`
	PostType    string         `bun:"post_type"`
	PostStatus  string         `bun:"post_status"`
	PostDateGMT time.Time      `bun:"post_date_gmt"`
	PostParent  int64          `bun:"post_parent"`
	Total       sql.NullString `bun:"order_total"`
	Number      sql.NullString `bun:"order_number"`
	Key         sql.NullString `bun:"order_key"`
	FirstName   sql.NullString `bun:"first_name"`
	LastName    sql.NullString `bun:"last_name"`
}

// FetchOrders pivots the core meta keys onto the post rows with one grouped query.
func (l LegacyLayout) FetchOrders(ctx context.Context, db bun.IDB, ids []int64) ([]Order, error) {
	var rows []legacyOrderRow
	err := db.NewRaw(`SELECT p.id, p.post_type, p.post_status, p.post_date_gmt, p.post_parent,
	MAX(CASE WHEN pm.meta_key = ? THEN pm.meta_value END) AS order_total,
	MAX(CASE WHEN pm.meta_key = ? THEN pm.meta_value END) AS order_number,
	MAX(CASE WHEN pm.meta_key = ? THEN pm.meta_value END) AS order_key,
	MAX(CASE WHEN pm.meta_key = ? THEN pm.meta_value END) AS first_name,
	MAX(CASE WHEN pm.meta_key = ? THEN pm.meta_value END) AS last_name
FROM posts AS p
LEFT JOIN postmeta AS pm ON pm.post_id = p.id
WHERE p.id IN (?)
GROUP BY p.id, p.post_type, p.post_status, p.post_date_gmt, p.post_parent
ORDER BY p.id`,
		legacyTotalKey, legacyNumberKey, legacyOrderKey, legacyFirstNameKey, legacyLastNameKey, bun.In(ids),
	).Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}

	orders := make([]Order, 0, len(rows))
	for _, r := range rows {
		orders = append(orders, Order{
			ID:        r.ID,
			Type:      r.PostType,
			Status:    l.LogicalStatus(r.PostStatus),
			Total:     parseAmount(r.Total.String),
			Number:    r.Number.String,
			Key:       r.Key.String,
			FirstName: r.FirstName.String,
			LastName:  r.LastName.String,
			ParentID:  r.PostParent,
			CreatedAt: r.PostDateGMT.UTC(),
		})
	}
	return orders, nil
}

// OrdersTableLayout stores orders in a dedicated table.
type OrdersTableLayout struct{}

func (OrdersTableLayout) Name() string { return LayoutOrdersTable }

func (OrdersTableLayout) Models() []any {
	return []any{(*OrderRow)(nil), (*OrderMetaRow)(nil)}
}

func (OrdersTableLayout) Orders() OrderColumns {
	return OrderColumns{
		Table:   "orders",
		ID:      "o.id",
		Type:    "o.type",
		Status:  "o.status",
		Created: "o.date_created_gmt",
	}
}

func (OrdersTableLayout) Meta() MetaColumns {
	return MetaColumns{Table: "orders_meta", ID: "id", OrderID: "order_id", Key: "meta_key", Value: "meta_value"}
}

func (OrdersTableLayout) StoredStatus(status string) string { return status }

func (OrdersTableLayout) LogicalStatus(stored string) string {
	return strings.TrimPrefix(stored, legacyStatusPrefix)
}

func (OrdersTableLayout) TotalExpr(dialect.Name) string { return "o.total_amount" }

func (OrdersTableLayout) TextMatch(pattern string) (string, []any) {
	return "(LOWER(o.billing_first_name) LIKE ? OR LOWER(o.billing_last_name) LIKE ? OR LOWER(o.order_key) LIKE ? OR LOWER(o.order_number) LIKE ?)",
		[]any{pattern, pattern, pattern, pattern}
}

func (l OrdersTableLayout) FetchOrders(ctx context.Context, db bun.IDB, ids []int64) ([]Order, error) {
	var rows []OrderRow
	err := db.NewSelect().
		Model(&rows).
		Where("o.id IN (?)", bun.In(ids)).
		Order("o.id").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	orders := make([]Order, 0, len(rows))
	for _, r := range rows {
		orders = append(orders, Order{
			ID:        r.ID,
			Type:      r.Type,
			Status:    l.LogicalStatus(r.Status),
			Total:     r.TotalAmount,
			Number:    r.OrderNumber,
			Key:       r.OrderKey,
			FirstName: r.BillingFirstName,
			LastName:  r.BillingLastName,
			ParentID:  r.ParentOrderID,
			CreatedAt: r.DateCreatedGMT.UTC(),
		})
	}
	return orders, nil
}

func parseAmount(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
