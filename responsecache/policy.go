package responsecache

import (
	"time"

	"github.com/goliatone/go-orders-master/filter"
)

// TTLPolicy picks an entry lifetime from how volatile the requested view is.
type TTLPolicy struct {
	Search    time.Duration `envconfig:"SEARCH" default:"60s"`
	Completed time.Duration `envconfig:"COMPLETED" default:"300s"`
	Active    time.Duration `envconfig:"ACTIVE" default:"60s"`
	Ready     time.Duration `envconfig:"READY" default:"90s"`
	Default   time.Duration `envconfig:"DEFAULT" default:"120s"`
}

// DefaultTTLPolicy returns the stock lifetimes.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Search:    60 * time.Second,
		Completed: 300 * time.Second,
		Active:    60 * time.Second,
		Ready:     90 * time.Second,
		Default:   120 * time.Second,
	}
}

// For returns the TTL of req. A search never lives longer than the same
// request without one.
func (p TTLPolicy) For(req filter.Request) time.Duration {
	req = req.Normalize()
	base := p.forBucket(req.Bucket)
	if req.Search == "" {
		return base
	}
	return min(p.Search, base)
}

func (p TTLPolicy) forBucket(b filter.Bucket) time.Duration {
	switch b {
	case filter.BucketCompleted:
		return p.Completed
	case filter.BucketActive:
		return p.Active
	case filter.BucketReady:
		return p.Ready
	default:
		return p.Default
	}
}
