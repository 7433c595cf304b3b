package filter

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/goliatone/go-orders-master/orderstore"
)

// Role is the caller's role, supplied by the auth layer.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleKitchen Role = "kitchen"
	RoleStaff   Role = "staff"
)

// ParseRole maps a role name to a Role. Unknown names resolve to RoleStaff,
// the most restricted scope.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin, "manager", "administrator":
		return RoleAdmin
	case RoleKitchen, "chef":
		return RoleKitchen
	default:
		return RoleStaff
	}
}

// Bucket is a coarse status grouping.
type Bucket string

const (
	BucketAll       Bucket = "all"
	BucketActive    Bucket = "active"
	BucketReady     Bucket = "ready"
	BucketCompleted Bucket = "completed"
)

// Buckets lists every bucket in display order.
var Buckets = []Bucket{BucketAll, BucketActive, BucketReady, BucketCompleted}

var bucketStatuses = map[Bucket][]string{
	BucketActive:    {orderstore.StatusProcessing},
	BucketReady:     {orderstore.StatusPending},
	BucketCompleted: {orderstore.StatusCompleted},
}

// ParseBucket maps a bucket name to a Bucket, falling back to BucketAll.
func ParseBucket(s string) Bucket {
	b := Bucket(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := bucketStatuses[b]; ok {
		return b
	}
	return BucketAll
}

// Statuses returns the logical statuses of the bucket; nil for BucketAll.
func (b Bucket) Statuses() []string {
	return bucketStatuses[b]
}

// BucketOf returns the bucket a logical status belongs to, or BucketAll when
// it belongs to none of the narrower buckets.
func BucketOf(status string) Bucket {
	for b, statuses := range bucketStatuses {
		for _, s := range statuses {
			if s == status {
				return b
			}
		}
	}
	return BucketAll
}

// AmountOp compares the order total.
type AmountOp string

const (
	AmountEquals      AmountOp = "equals"
	AmountLessThan    AmountOp = "less_than"
	AmountGreaterThan AmountOp = "greater_than"
	AmountBetween     AmountOp = "between"
)

// AmountEpsilon is the tolerance of AmountEquals.
const AmountEpsilon = 0.01

// Amount filters on the order total. Value is used by every op except
// AmountBetween, which uses the inclusive Min..Max range.
type Amount struct {
	Op    AmountOp `json:"op"`
	Value float64  `json:"value,omitempty"`
	Min   float64  `json:"min,omitempty"`
	Max   float64  `json:"max,omitempty"`
}

// Paging defaults. MaxPage keeps the row offset inside int32.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	MaxPage         = math.MaxInt32 / MaxPageSize
)

// Request is a structured order listing request.
type Request struct {
	Role   Role  `json:"role"`
	UserID int64 `json:"user_id"`

	Bucket   Bucket `json:"bucket"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	Search   string `json:"search,omitempty"`

	Amount         *Amount  `json:"amount,omitempty"`
	AssignedWaiter int64    `json:"assigned_waiter,omitempty"`
	UnassignedOnly bool     `json:"unassigned_only,omitempty"`
	Channels       []string `json:"channels,omitempty"`
}

// Normalize corrects malformed input instead of rejecting it: unknown
// buckets become BucketAll, reversed amount ranges are swapped, paging is
// clamped and channels are sorted and deduplicated. Role scoping is applied
// here, so kitchen callers always land in BucketActive.
func (r Request) Normalize() Request {
	r.Role = ParseRole(string(r.Role))
	r.Bucket = ParseBucket(string(r.Bucket))
	if r.Role == RoleKitchen {
		r.Bucket = BucketActive
	}
	if r.Role != RoleStaff && r.UserID < 0 {
		r.UserID = 0
	}

	switch {
	case r.Page < 1:
		r.Page = 1
	case r.Page > MaxPage:
		r.Page = MaxPage
	}
	switch {
	case r.PageSize < 1:
		r.PageSize = DefaultPageSize
	case r.PageSize > MaxPageSize:
		r.PageSize = MaxPageSize
	}

	r.Search = strings.Join(strings.Fields(r.Search), " ")
	if r.AssignedWaiter < 0 {
		r.AssignedWaiter = 0
	}

	if r.Amount != nil {
		a := *r.Amount
		a.Op = AmountOp(strings.ToLower(strings.TrimSpace(string(a.Op))))
		switch a.Op {
		case AmountBetween:
			if a.Max < a.Min {
				a.Min, a.Max = a.Max, a.Min
			}
			a.Value = 0
		case AmountEquals, AmountLessThan, AmountGreaterThan:
			a.Min, a.Max = 0, 0
		default:
			a = Amount{}
		}
		if a.Op == "" {
			r.Amount = nil
		} else {
			r.Amount = &a
		}
	}

	r.Channels = normalizeChannels(r.Channels)
	return r
}

func normalizeChannels(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, c := range in {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

// Offset is the row offset of the requested page. Pages past MaxPage
// resolve to the offset of MaxPage.
func (r Request) Offset() int {
	page, size := r.Page, r.PageSize
	if page < 1 || size < 1 {
		return 0
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	if page > MaxPage {
		page = MaxPage
	}
	return (page - 1) * size
}

// CanonicalKey renders the normalized request as a stable string so two
// semantically equal requests share a cache key. Free text is quoted and
// amounts keep full precision, so distinct requests never render alike.
func (r Request) CanonicalKey() string {
	n := r.Normalize()

	var b strings.Builder
	fmt.Fprintf(&b, "role=%s|user=%d|bucket=%s|page=%d|size=%d|search=%s",
		n.Role, n.scopedUserID(), n.Bucket, n.Page, n.PageSize, strconv.Quote(strings.ToLower(n.Search)))
	if n.Amount != nil {
		fmt.Fprintf(&b, "|amount=%s:%s:%s:%s", n.Amount.Op,
			formatAmount(n.Amount.Value), formatAmount(n.Amount.Min), formatAmount(n.Amount.Max))
	}
	if n.AssignedWaiter > 0 {
		fmt.Fprintf(&b, "|waiter=%d", n.AssignedWaiter)
	}
	if n.UnassignedOnly {
		b.WriteString("|unassigned")
	}
	if len(n.Channels) > 0 {
		quoted := make([]string, len(n.Channels))
		for i, c := range n.Channels {
			quoted[i] = strconv.Quote(c)
		}
		b.WriteString("|channels=" + strings.Join(quoted, ","))
	}
	return b.String()
}

// RoleScope identifies the visibility scope of the caller, used to key
// counts that ignore every other filter.
func (r Request) RoleScope() string {
	n := r.Normalize()
	if n.Role == RoleStaff {
		return string(n.Role) + ":" + strconv.FormatInt(n.UserID, 10)
	}
	return string(n.Role)
}

// scopedUserID is the identity that changes results. Only staff results
// depend on who is asking.
func (r Request) scopedUserID() int64 {
	if r.Role == RoleStaff {
		return r.UserID
	}
	return 0
}

func formatAmount(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

var orderNumberPattern = regexp.MustCompile(`^#?(\d+)$`)

// OrderNumber reports whether search is an order number such as "501" or
// "#501".
func OrderNumber(search string) (int64, bool) {
	m := orderNumberPattern.FindStringSubmatch(strings.TrimSpace(search))
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
