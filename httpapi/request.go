package httpapi

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goliatone/go-orders-master/filter"
)

// Identity headers set by the upstream auth proxy.
const (
	HeaderRole   = "X-Role"
	HeaderUserID = "X-User-ID"
)

// RequestFromHTTP builds a listing request from the identity headers and
// the query string. Unparseable values are dropped, never rejected; the
// result still goes through filter.Request.Normalize downstream.
func RequestFromHTTP(r *http.Request) filter.Request {
	q := r.URL.Query()

	req := filter.Request{
		Role:     filter.Role(r.Header.Get(HeaderRole)),
		UserID:   parseInt(r.Header.Get(HeaderUserID)),
		Bucket:   filter.Bucket(q.Get("bucket")),
		Page:     int(parseInt(q.Get("page"))),
		PageSize: int(parseInt(first(q, "page_size", "per_page"))),
		Search:   first(q, "search", "q"),

		AssignedWaiter: parseInt(q.Get("waiter")),
		UnassignedOnly: parseBool(q.Get("unassigned")),
		Channels:       channels(q),
	}

	if op := q.Get("amount_op"); op != "" {
		req.Amount = &filter.Amount{
			Op:    filter.AmountOp(op),
			Value: parseFloat(q.Get("amount")),
			Min:   parseFloat(q.Get("amount_min")),
			Max:   parseFloat(q.Get("amount_max")),
		}
	}
	return req
}

func first(q url.Values, keys ...string) string {
	for _, k := range keys {
		if v := q.Get(k); v != "" {
			return v
		}
	}
	return ""
}

func channels(q url.Values) []string {
	var out []string
	for _, v := range q["channel"] {
		out = append(out, v)
	}
	for _, v := range q["channels"] {
		out = append(out, strings.Split(v, ",")...)
	}
	return out
}

func parseInt(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}
