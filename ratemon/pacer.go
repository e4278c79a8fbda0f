package ratemon

import (
	"context"

	"golang.org/x/time/rate"
)

// Pacer spaces outbound search calls to stay under the API's secondary
// (burst) limits, independently of the quota tracked by Monitor.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer allows rps requests per second with the given burst.
// Non-positive arguments fall back to one request every two seconds.
func NewPacer(rps float64, burst int) *Pacer {
	if rps <= 0 {
		rps = 0.5
	}
	if burst <= 0 {
		burst = 1
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until the next call is allowed or ctx is cancelled.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}
