package safety

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter holds two independent token-bucket budgets (rate.Limiter),
// one for reads and one for writes, grounded on golang.org/x/time/rate
// (pulled into the stack the way giantswarm-muster and jordigilh-kubernaut
// use it for their own request throttling). Each direction is additionally
// bounded by an hourly bucket so a caller can't exhaust a whole hour's
// budget in its first burst-sized minute. The Safety Gate holds one
// RateLimiter, so every MCP session draws on the same buckets; there is no
// per-session accounting.
type RateLimiter struct {
	read  *rate.Limiter
	write *rate.Limiter

	readHourly  *rate.Limiter
	writeHourly *rate.Limiter
}

// NewRateLimiter builds a limiter from per-minute budgets and burst sizes,
// plus a per-hour ceiling for each direction. A zero rate disables that
// bucket's limiting (treated as unlimited).
func NewRateLimiter(readPerMinute, readBurst, writePerMinute, writeBurst, readPerHour, writePerHour int) *RateLimiter {
	return &RateLimiter{
		read:        newBucket(readPerMinute, readBurst),
		write:       newBucket(writePerMinute, writeBurst),
		readHourly:  newHourlyBucket(readPerHour),
		writeHourly: newHourlyBucket(writePerHour),
	}
}

func newBucket(perMinute, burst int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst)
}

// newHourlyBucket allows a burst equal to the full hourly rate: the hourly
// bucket exists to cap sustained throughput, not to further restrict the
// per-minute bucket's own burst behavior.
func newHourlyBucket(perHour int) *rate.Limiter {
	if perHour <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(float64(perHour)/3600.0), perHour)
}

// Allow consumes one token from the appropriate minute bucket and, only if
// that succeeds, the matching hourly bucket, returning false if either
// budget is exhausted. It never blocks.
func (l *RateLimiter) Allow(ctx context.Context, write bool) bool {
	if write {
		return l.write.Allow() && l.writeHourly.Allow()
	}
	return l.read.Allow() && l.readHourly.Allow()
}
