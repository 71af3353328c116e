package scraper

import (
	"context"

	"golang.org/x/time/rate"

	"jobmate/campaign-service/internal/model"
)

// RateLimited throttles calls to a source shared by concurrent campaign scans.
type RateLimited struct {
	Source
	limiter *rate.Limiter
}

// NewRateLimited allows perSecond fetches with the given burst. A
// non-positive rate returns src unchanged.
func NewRateLimited(src Source, perSecond float64, burst int) Source {
	if perSecond <= 0 {
		return src
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{Source: src, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// FetchPostings waits for a token, bounded by ctx.
func (r *RateLimited) FetchPostings(ctx context.Context, q Query) ([]model.JobPosting, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, &model.ExternalServiceError{Service: r.Name(), Op: "rate limit", Err: err}
	}
	return r.Source.FetchPostings(ctx, q)
}
