package di

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-orders-master/dashboard"
	"github.com/goliatone/go-orders-master/filter"
	"github.com/goliatone/go-orders-master/httpapi"
	"github.com/goliatone/go-orders-master/internal/config"
	"github.com/goliatone/go-orders-master/internal/logging"
	"github.com/goliatone/go-orders-master/orderstore"
	"github.com/goliatone/go-orders-master/pkg/testsupport"
	"github.com/goliatone/go-orders-master/responsecache"
)

func seededContainer(t testing.TB, layoutName string) *Container {
	t.Helper()
	db, _, _ := testsupport.NewStore(t, layoutName)

	cfg := config.Default()
	cfg.Layout = layoutName
	container, err := NewContainerWithDB(db, cfg, logging.Discard())
	require.NoError(t, err)
	return container
}

func ids(page dashboard.Page) []int64 {
	out := make([]int64, 0, len(page.Orders))
	for _, c := range page.Orders {
		out = append(out, c.ID)
	}
	return out
}

func TestEndToEnd_HTTPListing(t *testing.T) {
	for _, layoutName := range testsupport.Layouts() {
		t.Run(layoutName, func(t *testing.T) {
			container := seededContainer(t, layoutName)
			router := container.API().Router()

			get := func(target string, role string) *httptest.ResponseRecorder {
				req := httptest.NewRequest(http.MethodGet, target, nil)
				req.Header.Set(httpapi.HeaderRole, role)
				rec := httptest.NewRecorder()
				router.ServeHTTP(rec, req)
				return rec
			}

			rec := get("/orders?bucket=completed", "admin")
			require.Equal(t, http.StatusOK, rec.Code)
			var page dashboard.Page
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
			assert.Equal(t, []int64{503, 507}, ids(page))

			rec = get("/orders/counts", "kitchen")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `{"all":2,"active":2,"ready":0,"completed":0}`, rec.Body.String())

			rec = get("/cache/stats", "admin")
			var stats map[string]responsecache.Stats
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
			assert.Equal(t, int64(1), stats[responsecache.NamespaceOrders].Misses)
		})
	}
}

func TestEndToEnd_TableWriteInvalidatesDashboard(t *testing.T) {
	container := seededContainer(t, orderstore.LayoutOrdersTable)
	service := container.Service()
	ctx := context.Background()
	search := func(term string) []int64 {
		page, err := service.OrderCards(ctx, filter.Request{Role: filter.RoleAdmin, Search: term})
		require.NoError(t, err)
		return ids(page)
	}

	assert.Equal(t, []int64{502, 507}, search("Terrace"))
	assert.Empty(t, search("Garden"))

	table, err := container.Tables().GetByIdentifier(ctx, "T07")
	require.NoError(t, err)
	table.Name = "Garden 7"
	_, err = container.Tables().Update(ctx, table, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.WherePK()
	})
	require.NoError(t, err)

	assert.Empty(t, search("Terrace"), "the cached listing was purged by the table write")
	assert.Equal(t, []int64{502, 507}, search("Garden"))
}

func TestEndToEnd_EventPurgesCaches(t *testing.T) {
	container := seededContainer(t, orderstore.LayoutLegacy)
	ctx := context.Background()

	_, err := container.Service().OrderCards(ctx, filter.Request{Role: filter.RoleAdmin})
	require.NoError(t, err)
	_, err = container.Service().BucketCounts(ctx, filter.Request{Role: filter.RoleAdmin})
	require.NoError(t, err)

	err = container.Events().Handle(ctx, []byte(`{"type":"order.status_changed","order_id":501}`))
	require.NoError(t, err)

	stats := container.Responses().Stats()
	assert.Equal(t, int64(1), stats[responsecache.NamespaceOrders].Purged)
	assert.Equal(t, int64(1), stats[responsecache.NamespaceFilterCounts].Purged)

	require.Error(t, container.Events().Handle(ctx, []byte(`{"type":"order.deleted"}`)))
}

func TestEndToEnd_AdminPurge(t *testing.T) {
	container := seededContainer(t, orderstore.LayoutOrdersTable)
	router := container.API().Router()

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set(httpapi.HeaderRole, "manager")
	router.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodPost, "/cache/purge?target=orders", nil)
	req.Header.Set(httpapi.HeaderRole, "manager")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"target":"orders","removed":1}`, rec.Body.String())
}
