// Package scraper implements the job source adapters: fetching postings from
// external job boards, normalizing them into model.JobPosting, and the
// eligibility filters applied before scoring.
package scraper

import (
	"context"

	"jobmate/campaign-service/internal/model"
)

// Query is what a source needs from a campaign to search.
type Query struct {
	JobTitles    []string
	Locations    []string
	LocationMode model.LocationMode
	JobTypes     []model.JobType
}

// QueryFor derives the source query from a campaign.
func QueryFor(c *model.Campaign) Query {
	return Query{
		JobTitles:    c.JobTitles,
		Locations:    c.Locations,
		LocationMode: c.LocationMode,
		JobTypes:     c.JobTypes,
	}
}

// Source fetches postings from one job board. Implementations handle
// pagination and build the canonical (source, source id) key. Failures are
// reported as *model.ExternalServiceError; partial results may accompany an
// error.
type Source interface {
	Name() string
	FetchPostings(ctx context.Context, q Query) ([]model.JobPosting, error)
}

// dedupe keeps the first posting for every key.
func dedupe(in []model.JobPosting) []model.JobPosting {
	seen := make(map[model.PostingKey]bool, len(in))
	out := in[:0]
	for _, p := range in {
		if seen[p.Key] {
			continue
		}
		seen[p.Key] = true
		out = append(out, p)
	}
	return out
}
