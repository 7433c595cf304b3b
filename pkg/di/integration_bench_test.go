package di

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-orders-master/dashboard"
	"github.com/goliatone/go-orders-master/filter"
	"github.com/goliatone/go-orders-master/orderstore"
	"github.com/goliatone/go-orders-master/responsecache"
)

func TestConcurrentOrderCards(t *testing.T) {
	container := seededContainer(t, orderstore.LayoutOrdersTable)
	service := container.Service()
	ctx := context.Background()

	want := map[filter.Bucket]dashboard.Page{}
	for _, b := range []filter.Bucket{filter.BucketAll, filter.BucketActive, filter.BucketReady, filter.BucketCompleted} {
		page, err := service.OrderCards(ctx, filter.Request{Role: filter.RoleAdmin, Bucket: b})
		require.NoError(t, err)
		want[b] = page
	}
	_, err := service.InvalidateAggregateCache(ctx)
	require.NoError(t, err)

	const goroutines = 16
	var wg sync.WaitGroup
	errs := make(chan error, goroutines*len(want))
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b, expected := range want {
				page, err := service.OrderCards(ctx, filter.Request{Role: filter.RoleAdmin, Bucket: b})
				if err != nil {
					errs <- err
					continue
				}
				if !assert.Equal(t, expected, page, "bucket %s", b) {
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent OrderCards failed: %v", err)
	}

	stats := container.Responses().Stats()[responsecache.NamespaceOrders]
	assert.Equal(t, int64(goroutines*len(want)+len(want)), stats.Hits+stats.Misses)
}

func TestConcurrentPurgeAndRead(t *testing.T) {
	container := seededContainer(t, orderstore.LayoutLegacy)
	service := container.Service()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				page, err := service.OrderCards(ctx, filter.Request{Role: filter.RoleAdmin})
				if assert.NoError(t, err) {
					assert.Len(t, page.Orders, 6)
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, err := service.InvalidateAll(ctx)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
}

func BenchmarkOrderCards_Cached(b *testing.B) {
	container := seededContainer(b, orderstore.LayoutOrdersTable)
	service := container.Service()
	ctx := context.Background()
	req := filter.Request{Role: filter.RoleAdmin}

	if _, err := service.OrderCards(ctx, req); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := service.OrderCards(ctx, req); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkOrderCards_Uncached(b *testing.B) {
	container := seededContainer(b, orderstore.LayoutOrdersTable)
	service := container.Service()
	ctx := context.Background()
	req := filter.Request{Role: filter.RoleAdmin}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := service.InvalidateAggregateCache(ctx); err != nil {
			b.Fatal(err)
		}
		if _, err := service.OrderCards(ctx, req); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkResponseKey(b *testing.B) {
	container := seededContainer(b, orderstore.LayoutOrdersTable)
	responses := container.Responses()
	req := filter.Request{
		Role:     filter.RoleStaff,
		UserID:   8,
		Bucket:   filter.BucketActive,
		Search:   "Jane",
		Amount:   &filter.Amount{Op: filter.AmountBetween, Min: 10, Max: 50},
		Channels: []string{"takeaway", "dine-in"},
	}.Normalize()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = responses.Key(responsecache.NamespaceOrders, req)
	}
}

func BenchmarkConcurrentOrderCards(b *testing.B) {
	container := seededContainer(b, orderstore.LayoutOrdersTable)
	service := container.Service()
	ctx := context.Background()
	buckets := []filter.Bucket{filter.BucketAll, filter.BucketActive, filter.BucketReady, filter.BucketCompleted}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if _, err := service.OrderCards(ctx, filter.Request{Role: filter.RoleAdmin, Bucket: buckets[i%len(buckets)]}); err != nil {
				b.Error(err)
				return
			}
			i++
		}
	})
}
