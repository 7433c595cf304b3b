package filter_test

import (
	"context"
	"errors"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-orders-master/filter"
	"github.com/goliatone/go-orders-master/orderstore"
	"github.com/goliatone/go-orders-master/pkg/testsupport"
)

func newCompiler(t *testing.T, layoutName string) *filter.Compiler {
	t.Helper()
	db, layout, _ := testsupport.NewStore(t, layoutName)
	tables := orderstore.NewTableIndex(orderstore.NewTableRepository(db))
	return filter.NewCompiler(db, layout, tables, nil)
}

func admin(r filter.Request) filter.Request {
	r.Role = filter.RoleAdmin
	return r
}

func TestCompiler_Compile(t *testing.T) {
	tests := []struct {
		name  string
		req   filter.Request
		want  []int64
		total int
	}{
		{name: "all newest first with id tie-break", req: admin(filter.Request{}), want: []int64{506, 505, 503, 502, 501, 507}, total: 6},
		{name: "active bucket", req: admin(filter.Request{Bucket: filter.BucketActive}), want: []int64{505, 501}, total: 2},
		{name: "ready bucket", req: admin(filter.Request{Bucket: filter.BucketReady}), want: []int64{502}, total: 1},
		{name: "completed bucket", req: admin(filter.Request{Bucket: filter.BucketCompleted}), want: []int64{503, 507}, total: 2},
		{name: "unknown bucket falls back to all", req: admin(filter.Request{Bucket: "archived"}), want: []int64{506, 505, 503, 502, 501, 507}, total: 6},
		{name: "second page", req: admin(filter.Request{Page: 2, PageSize: 4}), want: []int64{501, 507}, total: 6},
		{name: "page past the end", req: admin(filter.Request{Page: 9, PageSize: 4}), want: []int64{}, total: 6},
		{name: "huge page is still past the end", req: admin(filter.Request{Page: 1 << 62, PageSize: 20}), want: []int64{}, total: 6},

		{name: "search table label and linked table", req: admin(filter.Request{Search: "T07"}), want: []int64{502, 501, 507}, total: 3},
		{name: "search linked table name only", req: admin(filter.Request{Search: "terrace"}), want: []int64{502, 507}, total: 2},
		{name: "search customer name", req: admin(filter.Request{Search: "JANE"}), want: []int64{501, 507}, total: 2},
		{name: "search order key", req: admin(filter.Request{Search: "abc501"}), want: []int64{501}, total: 1},
		{name: "search order number", req: admin(filter.Request{Search: "501"}), want: []int64{501}, total: 1},
		{name: "search hash order number", req: admin(filter.Request{Search: "#501"}), want: []int64{501}, total: 1},
		{name: "search refund id finds nothing", req: admin(filter.Request{Search: "504"}), want: []int64{}, total: 0},
		{name: "search within bucket", req: admin(filter.Request{Bucket: filter.BucketCompleted, Search: "t07"}), want: []int64{507}, total: 1},

		{name: "amount equals within epsilon", req: admin(filter.Request{Amount: &filter.Amount{Op: filter.AmountEquals, Value: 45.004}}), want: []int64{502}, total: 1},
		{name: "amount less than", req: admin(filter.Request{Amount: &filter.Amount{Op: filter.AmountLessThan, Value: 20}}), want: []int64{505}, total: 1},
		{name: "amount greater than", req: admin(filter.Request{Amount: &filter.Amount{Op: filter.AmountGreaterThan, Value: 100}}), want: []int64{501, 507}, total: 2},
		{name: "amount reversed range is swapped", req: admin(filter.Request{Amount: &filter.Amount{Op: filter.AmountBetween, Min: 100, Max: 20}}), want: []int64{506, 503, 502}, total: 3},

		{name: "assigned waiter", req: admin(filter.Request{AssignedWaiter: 7}), want: []int64{505, 501}, total: 2},
		{name: "unassigned only", req: admin(filter.Request{UnassignedOnly: true}), want: []int64{506, 503}, total: 2},
		{name: "channel", req: admin(filter.Request{Channels: []string{"delivery"}}), want: []int64{505}, total: 1},
		{name: "channels", req: admin(filter.Request{Channels: []string{"takeaway", "Delivery", "takeaway"}}), want: []int64{505, 503}, total: 2},

		{name: "kitchen sees active only", req: filter.Request{Role: filter.RoleKitchen, Bucket: filter.BucketCompleted}, want: []int64{505, 501}, total: 2},
		{name: "staff sees own orders", req: filter.Request{Role: filter.RoleStaff, UserID: 8}, want: []int64{502, 507}, total: 2},
		{name: "staff scope intersects waiter filter", req: filter.Request{Role: filter.RoleStaff, UserID: 8, AssignedWaiter: 7}, want: []int64{}, total: 0},
		{name: "staff without identity sees nothing", req: filter.Request{Role: filter.RoleStaff}, want: []int64{}, total: 0},
	}

	for _, layoutName := range testsupport.Layouts() {
		t.Run(layoutName, func(t *testing.T) {
			compiler := newCompiler(t, layoutName)
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					res, err := compiler.Compile(context.Background(), tt.req)
					require.NoError(t, err)
					assert.Equal(t, tt.want, res.IDs)
					assert.Equal(t, tt.total, res.Total)
				})
			}
		})
	}
}

func TestCompiler_LayoutsAgree(t *testing.T) {
	legacy := newCompiler(t, orderstore.LayoutLegacy)
	table := newCompiler(t, orderstore.LayoutOrdersTable)
	ctx := context.Background()

	reqs := []filter.Request{
		admin(filter.Request{}),
		admin(filter.Request{Search: "o"}),
		admin(filter.Request{Search: "window"}),
		admin(filter.Request{Amount: &filter.Amount{Op: filter.AmountBetween, Min: 0, Max: 1000}}),
		{Role: filter.RoleStaff, UserID: 7, Search: "tom"},
	}
	for _, req := range reqs {
		a, err := legacy.Compile(ctx, req)
		require.NoError(t, err)
		b, err := table.Compile(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, a, b, "request %+v", req)
	}
}

func TestCompiler_Count(t *testing.T) {
	compiler := newCompiler(t, orderstore.LayoutLegacy)

	n, err := compiler.Count(context.Background(), admin(filter.Request{Bucket: filter.BucketCompleted, PageSize: 1}))
	require.NoError(t, err)
	assert.Equal(t, 2, n, "count ignores paging")
}

func TestCompiler_BucketCounts(t *testing.T) {
	tests := []struct {
		name string
		req  filter.Request
		want map[filter.Bucket]int
	}{
		{
			name: "admin",
			req:  admin(filter.Request{Search: "ignored", Bucket: filter.BucketReady}),
			want: map[filter.Bucket]int{filter.BucketAll: 6, filter.BucketActive: 2, filter.BucketReady: 1, filter.BucketCompleted: 2},
		},
		{
			name: "kitchen",
			req:  filter.Request{Role: filter.RoleKitchen},
			want: map[filter.Bucket]int{filter.BucketAll: 2, filter.BucketActive: 2, filter.BucketReady: 0, filter.BucketCompleted: 0},
		},
		{
			name: "staff",
			req:  filter.Request{Role: filter.RoleStaff, UserID: 8},
			want: map[filter.Bucket]int{filter.BucketAll: 2, filter.BucketActive: 0, filter.BucketReady: 1, filter.BucketCompleted: 1},
		},
	}

	for _, layoutName := range testsupport.Layouts() {
		t.Run(layoutName, func(t *testing.T) {
			compiler := newCompiler(t, layoutName)
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					counts, err := compiler.BucketCounts(context.Background(), tt.req)
					require.NoError(t, err)
					assert.Equal(t, tt.want, counts)
				})
			}
		})
	}
}

type failingTables struct{}

func (failingTables) MatchTableIDs(context.Context, string) ([]string, error) {
	return nil, errors.New("tables offline")
}

func TestCompiler_Errors(t *testing.T) {
	db, layout, _ := testsupport.NewStore(t, orderstore.LayoutOrdersTable)
	ctx := context.Background()

	compiler := filter.NewCompiler(db, layout, failingTables{}, nil)
	_, err := compiler.Compile(ctx, admin(filter.Request{Search: "terrace"}))
	require.Error(t, err)
	assert.True(t, goerrors.IsCategory(err, goerrors.CategoryExternal))

	_, err = compiler.Compile(ctx, admin(filter.Request{Search: "#502"}))
	assert.NoError(t, err, "order number search skips the table lookup")

	empty := filter.NewCompiler(testsupport.NewSQLiteDB(t), layout, nil, nil)
	_, err = empty.Compile(ctx, admin(filter.Request{}))
	var ferr *goerrors.Error
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, filter.ErrCodeQuery, ferr.TextCode)
}

type countingTables struct {
	inner filter.TableMatcher
	calls int
}

func (c *countingTables) MatchTableIDs(ctx context.Context, term string) ([]string, error) {
	c.calls++
	return c.inner.MatchTableIDs(ctx, term)
}

func TestCompiler_TableSearchRunsOncePerCompile(t *testing.T) {
	db, layout, _ := testsupport.NewStore(t, orderstore.LayoutOrdersTable)
	tables := &countingTables{inner: orderstore.NewTableIndex(orderstore.NewTableRepository(db))}
	compiler := filter.NewCompiler(db, layout, tables, nil)

	res, err := compiler.Compile(context.Background(), admin(filter.Request{Search: "terrace"}))
	require.NoError(t, err)
	assert.Equal(t, []int64{502, 507}, res.IDs)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, tables.calls)
}

func TestCompiler_WithoutTableMatcher(t *testing.T) {
	db, layout, _ := testsupport.NewStore(t, orderstore.LayoutLegacy)
	compiler := filter.NewCompiler(db, layout, nil, nil)

	res, err := compiler.Compile(context.Background(), admin(filter.Request{Search: "T07"}))
	require.NoError(t, err)
	assert.Equal(t, []int64{501, 507}, res.IDs)
}
