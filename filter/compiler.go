package filter

import (
	"context"
	"io"
	"strconv"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"github.com/goliatone/go-orders-master/orderstore"
)

// ErrCodeQuery is the text code of compiler store failures.
const ErrCodeQuery = "ORDER_FILTER_QUERY"

// TableMatcher resolves a search term to the ids of matching dining tables,
// the first hop of the table search.
type TableMatcher interface {
	MatchTableIDs(ctx context.Context, term string) ([]string, error)
}

// Result is one page of matching order ids, newest first, with the total
// match count.
type Result struct {
	IDs      []int64 `json:"ids"`
	Total    int     `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
}

// Compiler turns a Request into predicates over the active storage layout.
// Both layouts yield the same ids for the same data.
type Compiler struct {
	db      bun.IDB
	layout  orderstore.Layout
	dialect dialect.Name
	tables  TableMatcher
	logger  logrus.FieldLogger
}

// NewCompiler builds a Compiler. tables may be nil, which disables the
// linked-table hop of the search. A nil logger discards output.
func NewCompiler(db bun.IDB, layout orderstore.Layout, tables TableMatcher, logger logrus.FieldLogger) *Compiler {
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}
	return &Compiler{
		db:      db,
		layout:  layout,
		dialect: orderstore.DialectOf(db),
		tables:  tables,
		logger:  logger.WithField("component", "filter"),
	}
}

// Compile returns the requested page of ids plus the total from a
// count-only pass. The search is resolved once and shared by both passes.
func (c *Compiler) Compile(ctx context.Context, req Request) (Result, error) {
	req = req.Normalize()
	res := Result{Page: req.Page, PageSize: req.PageSize, IDs: []int64{}}

	search, err := c.resolveSearch(ctx, req.Search)
	if err != nil {
		return res, err
	}

	cols := c.layout.Orders()
	var ids []int64
	err = c.query(req, true, search).
		ColumnExpr(cols.ID+" AS id").
		OrderExpr(cols.Created+" DESC").
		OrderExpr(cols.ID+" DESC").
		Limit(req.PageSize).
		Offset(req.Offset()).
		Scan(ctx, &ids)
	if err != nil {
		return res, c.queryError(err, "select ids", req)
	}
	if ids != nil {
		res.IDs = ids
	}

	total, err := c.count(ctx, req, search)
	if err != nil {
		return res, err
	}
	res.Total = total

	c.logger.WithFields(logrus.Fields{
		"bucket": req.Bucket,
		"role":   req.Role,
		"page":   req.Page,
		"offset": req.Offset(),
		"ids":    len(res.IDs),
		"total":  total,
	}).Debug("compiled order filter")
	return res, nil
}

// Count returns how many orders match req without loading them.
func (c *Compiler) Count(ctx context.Context, req Request) (int, error) {
	req = req.Normalize()
	search, err := c.resolveSearch(ctx, req.Search)
	if err != nil {
		return 0, err
	}
	return c.count(ctx, req, search)
}

func (c *Compiler) count(ctx context.Context, req Request, search searchPlan) (int, error) {
	n, err := c.query(req, true, search).Count(ctx)
	if err != nil {
		return 0, c.queryError(err, "count", req)
	}
	return n, nil
}

type statusCount struct {
	Status string `bun:"status"`
	N      int    `bun:"n"`
}

// BucketCounts returns the number of orders per bucket visible to the
// caller's role scope, in one grouped query. Search, amount, waiter and
// channel filters are ignored. BucketAll counts every visible order.
func (c *Compiler) BucketCounts(ctx context.Context, req Request) (map[Bucket]int, error) {
	req = req.Normalize()
	scope := Request{Role: req.Role, UserID: req.UserID, Bucket: req.Bucket}
	if req.Role != RoleKitchen {
		scope.Bucket = BucketAll
	}

	cols := c.layout.Orders()
	var rows []statusCount
	err := c.query(scope, false, searchPlan{}).
		ColumnExpr(cols.Status+" AS status").
		ColumnExpr("COUNT(*) AS n").
		GroupExpr(cols.Status).
		Scan(ctx, &rows)
	if err != nil {
		return nil, c.queryError(err, "bucket counts", req)
	}

	counts := make(map[Bucket]int, len(Buckets))
	for _, b := range Buckets {
		counts[b] = 0
	}
	for _, row := range rows {
		counts[BucketAll] += row.N
		if b := BucketOf(c.layout.LogicalStatus(row.Status)); b != BucketAll {
			counts[b] += row.N
		}
	}
	return counts, nil
}

// searchPlan is a search term resolved to its predicates. Resolving it may
// hit the dining-table index, so it is done once per request.
type searchPlan struct {
	term     string
	orderID  int64
	byNumber bool
	tableIDs []string
}

// resolveSearch classifies term as an order number or free text and, for
// free text, runs the first hop of the table search.
func (c *Compiler) resolveSearch(ctx context.Context, term string) (searchPlan, error) {
	plan := searchPlan{term: term}
	if term == "" {
		return plan, nil
	}
	if id, ok := OrderNumber(term); ok {
		plan.orderID, plan.byNumber = id, true
		return plan, nil
	}
	if c.tables != nil {
		ids, err := c.tables.MatchTableIDs(ctx, term)
		if err != nil {
			return plan, goerrors.Wrap(err, goerrors.CategoryExternal, "order filter: table search failed").
				WithTextCode(ErrCodeQuery)
		}
		plan.tableIDs = ids
	}
	return plan, nil
}

// query builds the filtered select over orders. withFilters adds the search,
// amount, waiter and channel predicates on top of the bucket and role scope.
func (c *Compiler) query(req Request, withFilters bool, search searchPlan) *bun.SelectQuery {
	cols := c.layout.Orders()
	q := c.db.NewSelect().
		TableExpr(cols.Table+" AS o").
		Where(cols.Type+" = ?", orderstore.TypeOrder)

	if statuses := req.Bucket.Statuses(); len(statuses) > 0 {
		stored := make([]string, 0, len(statuses))
		for _, s := range statuses {
			stored = append(stored, c.layout.StoredStatus(s))
		}
		q = q.Where(cols.Status+" IN (?)", bun.In(stored))
	}

	if req.Role == RoleStaff {
		q = q.Where(c.metaEquals("sw", orderstore.MetaAssignedWaiter), strconv.FormatInt(req.UserID, 10))
	}

	if !withFilters {
		return q
	}

	if req.AssignedWaiter > 0 {
		q = q.Where(c.metaEquals("aw", orderstore.MetaAssignedWaiter), strconv.FormatInt(req.AssignedWaiter, 10))
	}
	if req.UnassignedOnly {
		q = q.Where("NOT "+c.metaExists("ua", orderstore.MetaAssignedWaiter, "AND ua."+c.layout.Meta().Value+" NOT IN ('', '0')"))
	}
	if len(req.Channels) > 0 {
		q = q.Where(c.metaExists("ch", orderstore.MetaOrderType, "AND ch."+c.layout.Meta().Value+" IN (?)"), bun.In(req.Channels))
	}
	if req.Amount != nil {
		q = c.applyAmount(q, *req.Amount)
	}
	if search.term != "" {
		q = c.applySearch(q, search)
	}
	return q
}

func (c *Compiler) applyAmount(q *bun.SelectQuery, a Amount) *bun.SelectQuery {
	total := c.layout.TotalExpr(c.dialect)
	switch a.Op {
	case AmountEquals:
		return q.Where(total+" BETWEEN ? AND ?", a.Value-AmountEpsilon, a.Value+AmountEpsilon)
	case AmountLessThan:
		return q.Where(total+" < ?", a.Value)
	case AmountGreaterThan:
		return q.Where(total+" > ?", a.Value)
	case AmountBetween:
		return q.Where(total+" BETWEEN ? AND ?", a.Min, a.Max)
	default:
		return q
	}
}

// applySearch matches an order number exactly, or else any of: customer
// names, order key and number, the table label, or a link to a dining table
// whose code or name matches.
func (c *Compiler) applySearch(q *bun.SelectQuery, search searchPlan) *bun.SelectQuery {
	if search.byNumber {
		return q.Where(c.layout.Orders().ID+" = ?", search.orderID)
	}

	pattern := "%" + strings.ToLower(search.term) + "%"
	textSQL, textArgs := c.layout.TextMatch(pattern)
	metaValue := c.layout.Meta().Value

	return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
		q = q.Where(textSQL, textArgs...).
			WhereOr(c.metaExists("tn", orderstore.MetaTableNumber, "AND LOWER(tn."+metaValue+") LIKE ?"), pattern)
		if len(search.tableIDs) > 0 {
			q = q.WhereOr(c.metaExists("tl", orderstore.MetaTableID, "AND tl."+metaValue+" IN (?)"), bun.In(search.tableIDs))
		}
		return q
	})
}

// metaExists renders an EXISTS subquery on the order meta table for key, with
// extra appended to the inner WHERE.
func (c *Compiler) metaExists(alias, key, extra string) string {
	m := c.layout.Meta()
	s := "EXISTS (SELECT 1 FROM " + m.Table + " AS " + alias +
		" WHERE " + alias + "." + m.OrderID + " = o.id AND " + alias + "." + m.Key + " = '" + key + "'"
	if extra != "" {
		s += " " + extra
	}
	return s + ")"
}

func (c *Compiler) metaEquals(alias, key string) string {
	return c.metaExists(alias, key, "AND "+alias+"."+c.layout.Meta().Value+" = ?")
}

func (c *Compiler) queryError(err error, op string, req Request) error {
	c.logger.WithError(err).WithFields(logrus.Fields{
		"operation": op,
		"bucket":    req.Bucket,
		"layout":    c.layout.Name(),
	}).Error("order filter query failed")

	return goerrors.Wrap(err, goerrors.CategoryExternal, "order filter: "+op+" failed").
		WithTextCode(ErrCodeQuery).
		WithMetadata(map[string]any{"operation": op, "layout": c.layout.Name()})
}
