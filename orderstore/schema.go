package orderstore

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// ErrCodeSchema is the text code of schema creation failures.
const ErrCodeSchema = "ORDER_STORE_SCHEMA"

// PostRow is a legacy order record (one post per order).
type PostRow struct {
	bun.BaseModel `bun:"table:posts,alias:p"`

	ID          int64     `bun:"id,pk"`
	PostType    string    `bun:"post_type,notnull"`
	PostStatus  string    `bun:"post_status,notnull"`
	PostDateGMT time.Time `bun:"post_date_gmt,notnull"`
	PostParent  int64     `bun:"post_parent,notnull"`
}

// PostMetaRow is one legacy meta value.
type PostMetaRow struct {
	bun.BaseModel `bun:"table:postmeta,alias:pm"`

	MetaID    int64  `bun:"meta_id,pk,autoincrement"`
	PostID    int64  `bun:"post_id,notnull"`
	MetaKey   string `bun:"meta_key,notnull"`
	MetaValue string `bun:"meta_value"`
}

// OrderRow is a record in the dedicated orders table.
type OrderRow struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID               int64     `bun:"id,pk"`
	Type             string    `bun:"type,notnull"`
	Status           string    `bun:"status,notnull"`
	TotalAmount      float64   `bun:"total_amount,notnull"`
	OrderNumber      string    `bun:"order_number"`
	OrderKey         string    `bun:"order_key"`
	BillingFirstName string    `bun:"billing_first_name"`
	BillingLastName  string    `bun:"billing_last_name"`
	ParentOrderID    int64     `bun:"parent_order_id,notnull"`
	DateCreatedGMT   time.Time `bun:"date_created_gmt,notnull"`
}

// OrderMetaRow is one meta value in the dedicated layout.
type OrderMetaRow struct {
	bun.BaseModel `bun:"table:orders_meta,alias:om"`

	ID        int64  `bun:"id,pk,autoincrement"`
	OrderID   int64  `bun:"order_id,notnull"`
	MetaKey   string `bun:"meta_key,notnull"`
	MetaValue string `bun:"meta_value"`
}

// OrderItemRow is a line item; shared by both layouts.
type OrderItemRow struct {
	bun.BaseModel `bun:"table:order_items,alias:i"`

	ID        int64   `bun:"id,pk"`
	OrderID   int64   `bun:"order_id,notnull"`
	Name      string  `bun:"name,notnull"`
	Quantity  int     `bun:"quantity,notnull"`
	LineTotal float64 `bun:"line_total,notnull"`
	Station   string  `bun:"station"`
}

// OrderItemMetaRow carries addon payloads for a line item.
type OrderItemMetaRow struct {
	bun.BaseModel `bun:"table:order_itemmeta,alias:im"`

	ID        int64  `bun:"id,pk,autoincrement"`
	ItemID    int64  `bun:"item_id,notnull"`
	MetaKey   string `bun:"meta_key,notnull"`
	MetaValue string `bun:"meta_value"`
}

// UserRow holds staff display names.
type UserRow struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID          int64  `bun:"id,pk"`
	DisplayName string `bun:"display_name,notnull"`
}

func sharedModels() []any {
	return []any{
		(*OrderItemRow)(nil),
		(*OrderItemMetaRow)(nil),
		(*UserRow)(nil),
		(*DiningTable)(nil),
	}
}

// CreateSchema creates the tables for layout plus the shared tables. Existing
// tables are left alone. Production schemas belong to the order-write path;
// this exists for development databases and tests.
func CreateSchema(ctx context.Context, db bun.IDB, layout Layout) error {
	models := append(sharedModels(), layout.Models()...)
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryExternal, fmt.Sprintf("create table for %T", model)).
				WithTextCode(ErrCodeSchema).
				WithMetadata(map[string]any{"layout": layout.Name()})
		}
	}
	return nil
}
