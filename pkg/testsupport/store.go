package testsupport

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/goliatone/go-orders-master/orderstore"
)

//go:embed testdata/orders.json
var fixtures embed.FS

// Base is the creation time of the earliest seeded order.
var Base = time.Date(2026, 10, 1, 11, 0, 0, 0, time.UTC)

// Dataset is the order fixture seeded into either storage layout.
type Dataset struct {
	Users  []FixtureUser  `json:"users"`
	Tables []FixtureTable `json:"tables"`
	Orders []FixtureOrder `json:"orders"`
}

// FixtureUser is a staff member.
type FixtureUser struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
}

// FixtureTable is a dining table.
type FixtureTable struct {
	ID     string `json:"id"`
	Code   string `json:"code"`
	Name   string `json:"name"`
	Seats  int    `json:"seats"`
	Status string `json:"status"`
}

// FixtureOrder is one order or refund with its meta and items.
type FixtureOrder struct {
	ID        int64             `json:"id"`
	Type      string            `json:"type"`
	Status    string            `json:"status"`
	Total     float64           `json:"total"`
	Number    string            `json:"number"`
	Key       string            `json:"key"`
	FirstName string            `json:"first_name"`
	LastName  string            `json:"last_name"`
	ParentID  int64             `json:"parent_id"`
	CreatedAt time.Time         `json:"created_at"`
	Meta      map[string]string `json:"meta"`
	Items     []FixtureItem     `json:"items"`
}

// FixtureItem is a line item with raw item meta.
type FixtureItem struct {
	ID        int64             `json:"id"`
	Name      string            `json:"name"`
	Quantity  int               `json:"quantity"`
	LineTotal float64           `json:"line_total"`
	Station   string            `json:"station"`
	Meta      map[string]string `json:"meta"`
}

// Order returns the fixture order with id.
func (d Dataset) Order(id int64) (FixtureOrder, bool) {
	for _, o := range d.Orders {
		if o.ID == id {
			return o, true
		}
	}
	return FixtureOrder{}, false
}

// LoadDataset decodes the embedded order fixture.
func LoadDataset(t testing.TB) Dataset {
	t.Helper()

	data, err := fixtures.ReadFile("testdata/orders.json")
	if err != nil {
		t.Fatalf("failed to read order fixture: %v", err)
	}
	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		t.Fatalf("failed to decode order fixture: %v", err)
	}
	return ds
}

var dbSeq atomic.Int64

// NewSQLiteDB opens a private in-memory sqlite database closed at test end.
func NewSQLiteDB(t testing.TB) *bun.DB {
	t.Helper()

	name := fmt.Sprintf("file:orders_%d_%s?mode=memory&cache=shared", dbSeq.Add(1), sanitize(t.Name()))
	sqldb, err := sql.Open("sqlite3", name)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// NewStore opens a sqlite database, creates the schema for the named layout
// and seeds the fixture dataset into it.
func NewStore(t testing.TB, layoutName string) (*bun.DB, orderstore.Layout, Dataset) {
	t.Helper()

	layout, err := orderstore.LayoutByName(layoutName)
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	db := NewSQLiteDB(t)
	ctx := context.Background()
	if err := orderstore.CreateSchema(ctx, db, layout); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	ds := LoadDataset(t)
	if err := Seed(ctx, db, layout, ds); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return db, layout, ds
}

// Layouts lists every storage layout, for tests that must hold for both.
func Layouts() []string {
	return []string{orderstore.LayoutLegacy, orderstore.LayoutOrdersTable}
}

// Seed writes ds into db using the record shape of layout.
func Seed(ctx context.Context, db bun.IDB, layout orderstore.Layout, ds Dataset) error {
	var err error
	switch layout.Name() {
	case orderstore.LayoutLegacy:
		err = seedLegacy(ctx, db, ds.Orders)
	default:
		err = seedOrdersTable(ctx, db, ds.Orders)
	}
	if err != nil {
		return err
	}
	return seedShared(ctx, db, ds)
}

func seedLegacy(ctx context.Context, db bun.IDB, orders []FixtureOrder) error {
	if len(orders) == 0 {
		return nil
	}
	posts := make([]orderstore.PostRow, 0, len(orders))
	var meta []orderstore.PostMetaRow
	add := func(id int64, key, value string) {
		if value != "" {
			meta = append(meta, orderstore.PostMetaRow{PostID: id, MetaKey: key, MetaValue: value})
		}
	}

	for _, o := range orders {
		posts = append(posts, orderstore.PostRow{
			ID:          o.ID,
			PostType:    o.Type,
			PostStatus:  orderstore.LegacyLayout{}.StoredStatus(o.Status),
			PostDateGMT: o.CreatedAt.UTC(),
			PostParent:  o.ParentID,
		})
		add(o.ID, "_order_total", fmt.Sprintf("%.2f", o.Total))
		add(o.ID, "_order_number", o.Number)
		add(o.ID, "_order_key", o.Key)
		add(o.ID, "_billing_first_name", o.FirstName)
		add(o.ID, "_billing_last_name", o.LastName)
		for _, k := range sortedKeys(o.Meta) {
			add(o.ID, k, o.Meta[k])
		}
	}

	if _, err := db.NewInsert().Model(&posts).Exec(ctx); err != nil {
		return fmt.Errorf("insert posts: %w", err)
	}
	if len(meta) > 0 {
		if _, err := db.NewInsert().Model(&meta).Exec(ctx); err != nil {
			return fmt.Errorf("insert postmeta: %w", err)
		}
	}
	return nil
}

func seedOrdersTable(ctx context.Context, db bun.IDB, orders []FixtureOrder) error {
	if len(orders) == 0 {
		return nil
	}
	rows := make([]orderstore.OrderRow, 0, len(orders))
	var meta []orderstore.OrderMetaRow
	for _, o := range orders {
		rows = append(rows, orderstore.OrderRow{
			ID:               o.ID,
			Type:             o.Type,
			Status:           o.Status,
			TotalAmount:      o.Total,
			OrderNumber:      o.Number,
			OrderKey:         o.Key,
			BillingFirstName: o.FirstName,
			BillingLastName:  o.LastName,
			ParentOrderID:    o.ParentID,
			DateCreatedGMT:   o.CreatedAt.UTC(),
		})
		for _, k := range sortedKeys(o.Meta) {
			meta = append(meta, orderstore.OrderMetaRow{OrderID: o.ID, MetaKey: k, MetaValue: o.Meta[k]})
		}
	}

	if _, err := db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("insert orders: %w", err)
	}
	if len(meta) > 0 {
		if _, err := db.NewInsert().Model(&meta).Exec(ctx); err != nil {
			return fmt.Errorf("insert orders_meta: %w", err)
		}
	}
	return nil
}

func seedShared(ctx context.Context, db bun.IDB, ds Dataset) error {
	var items []orderstore.OrderItemRow
	var itemMeta []orderstore.OrderItemMetaRow
	for _, o := range ds.Orders {
		for _, it := range o.Items {
			items = append(items, orderstore.OrderItemRow{
				ID:        it.ID,
				OrderID:   o.ID,
				Name:      it.Name,
				Quantity:  it.Quantity,
				LineTotal: it.LineTotal,
				Station:   it.Station,
			})
			for _, k := range sortedKeys(it.Meta) {
				itemMeta = append(itemMeta, orderstore.OrderItemMetaRow{ItemID: it.ID, MetaKey: k, MetaValue: it.Meta[k]})
			}
		}
	}
	if len(items) > 0 {
		if _, err := db.NewInsert().Model(&items).Exec(ctx); err != nil {
			return fmt.Errorf("insert order_items: %w", err)
		}
	}
	if len(itemMeta) > 0 {
		if _, err := db.NewInsert().Model(&itemMeta).Exec(ctx); err != nil {
			return fmt.Errorf("insert order_itemmeta: %w", err)
		}
	}

	if len(ds.Users) > 0 {
		users := make([]orderstore.UserRow, 0, len(ds.Users))
		for _, u := range ds.Users {
			users = append(users, orderstore.UserRow{ID: u.ID, DisplayName: u.DisplayName})
		}
		if _, err := db.NewInsert().Model(&users).Exec(ctx); err != nil {
			return fmt.Errorf("insert users: %w", err)
		}
	}

	if len(ds.Tables) > 0 {
		tables := make([]*orderstore.DiningTable, 0, len(ds.Tables))
		for _, tb := range ds.Tables {
			id, err := uuid.Parse(tb.ID)
			if err != nil {
				return fmt.Errorf("table %s: %w", tb.Code, err)
			}
			tables = append(tables, &orderstore.DiningTable{
				ID:        id,
				Code:      tb.Code,
				Name:      tb.Name,
				Seats:     tb.Seats,
				Status:    tb.Status,
				CreatedAt: Base,
				UpdatedAt: Base,
			})
		}
		if _, err := db.NewInsert().Model(&tables).Exec(ctx); err != nil {
			return fmt.Errorf("insert dining_tables: %w", err)
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
}
