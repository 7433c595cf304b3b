package dashboard

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-orders-master/addons"
	"github.com/goliatone/go-orders-master/cache"
	"github.com/goliatone/go-orders-master/filter"
	"github.com/goliatone/go-orders-master/responsecache"
)

// Lister resolves requests to order ids and bucket counts.
type Lister interface {
	Compile(ctx context.Context, req filter.Request) (filter.Result, error)
	BucketCounts(ctx context.Context, req filter.Request) (map[filter.Bucket]int, error)
}

// Service is the dashboard read API: filtered order cards and badge counts,
// both behind the response cache, plus the invalidation hooks.
type Service struct {
	lister       Lister
	materializer *Materializer
	responses    *responsecache.Cache
	logger       logrus.FieldLogger

	mu        sync.Mutex
	valuation *addons.Valuation
}

// NewService wires the pipeline. A nil logger discards output.
func NewService(lister Lister, materializer *Materializer, responses *responsecache.Cache, logger logrus.FieldLogger) *Service {
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}
	return &Service{
		lister:       lister,
		materializer: materializer,
		responses:    responses,
		logger:       logger.WithField("component", "dashboard"),
	}
}

// OrderCards returns the page of order cards matching req.
func (s *Service) OrderCards(ctx context.Context, req filter.Request) (Page, error) {
	req = req.Normalize()
	key := s.responses.Key(responsecache.NamespaceOrders, req)
	ttl := s.responses.Policy().For(req)

	page, hit, err := responsecache.Fetch(ctx, s.responses, key, ttl, func(ctx context.Context) (Page, error) {
		return s.buildPage(ctx, req)
	})
	if err != nil {
		return Page{}, err
	}
	page.normalize()

	s.logger.WithFields(logrus.Fields{
		"bucket": req.Bucket,
		"role":   req.Role,
		"hit":    hit,
		"orders": len(page.Orders),
	}).Debug("order cards served")
	return page, nil
}

func (s *Service) buildPage(ctx context.Context, req filter.Request) (Page, error) {
	res, err := s.lister.Compile(ctx, req)
	if err != nil {
		return Page{}, err
	}

	valuation := addons.NewValuation(s.logger)
	cards, err := s.materializer.Materialize(ctx, res.IDs, valuation)
	if err != nil {
		return Page{}, err
	}
	s.mu.Lock()
	s.valuation = valuation
	s.mu.Unlock()

	return Page{
		Orders:     cards,
		TotalCount: res.Total,
		Pagination: newPagination(res.Page, res.PageSize, res.Total),
	}, nil
}

// BucketCounts returns the badge counters for the caller's role scope. They
// are cached apart from the card listings, keyed by role scope only.
func (s *Service) BucketCounts(ctx context.Context, req filter.Request) (Counts, error) {
	req = req.Normalize()
	scope := req.RoleScope()
	key := s.responses.Key(responsecache.ScopedNamespace(responsecache.NamespaceFilterCounts, scope), scope)

	counts, _, err := responsecache.Fetch(ctx, s.responses, key, s.responses.Policy().Active, func(ctx context.Context) (Counts, error) {
		m, err := s.lister.BucketCounts(ctx, req)
		if err != nil {
			return Counts{}, err
		}
		return newCounts(m), nil
	})
	return counts, err
}

// LastValuation returns the addon valuation of the most recent materialized
// batch, or nil.
func (s *Service) LastValuation() *addons.Valuation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.valuation
}

// InvalidateAggregateCache purges every cached card listing.
func (s *Service) InvalidateAggregateCache(ctx context.Context) (int, error) {
	return s.responses.Purge(ctx, responsecache.NamespaceOrders)
}

// InvalidateFilterCounts purges cached badge counts. An empty roleScope
// purges every scope, "staff" purges every staff member's counts and any
// other scope, such as "staff:8", purges exactly that scope.
func (s *Service) InvalidateFilterCounts(ctx context.Context, roleScope string) (int, error) {
	if roleScope == "" {
		return s.responses.Purge(ctx, responsecache.NamespaceFilterCounts)
	}
	prefix := responsecache.ScopedNamespace(responsecache.NamespaceFilterCounts, roleScope)
	if roleScope == string(filter.RoleStaff) {
		prefix += ":"
	} else {
		prefix += cache.KeySeparator
	}
	return s.responses.PurgePrefix(ctx, prefix)
}

// InvalidateAddonCache drops the last batch valuation. Valuations are rebuilt
// per batch, so this never affects later requests.
func (s *Service) InvalidateAddonCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.valuation != nil {
		s.valuation.Reset()
		s.valuation = nil
	}
}

// InvalidateAll runs every invalidation hook and reports how many cache
// entries were removed. Both purges run even when one fails.
func (s *Service) InvalidateAll(ctx context.Context) (int, error) {
	cards, errCards := s.InvalidateAggregateCache(ctx)
	counts, errCounts := s.InvalidateFilterCounts(ctx, "")
	s.InvalidateAddonCache()

	s.logger.WithFields(logrus.Fields{
		"cards":  cards,
		"counts": counts,
	}).Info("dashboard caches invalidated")
	return cards + counts, errors.Join(errCards, errCounts)
}
