// Package store holds the persistence layer: campaign and card repositories
// and the dedup store, in memory and on Postgres, plus a Redis seen-cache.
package store

import (
	"context"
	"time"

	"jobmate/campaign-service/internal/kanban"
	"jobmate/campaign-service/internal/model"
)

// CampaignRepository persists campaigns. Campaigns are archived, never deleted.
type CampaignRepository interface {
	CreateCampaign(ctx context.Context, c *model.Campaign) error
	UpdateCampaign(ctx context.Context, c *model.Campaign) error
	GetCampaign(ctx context.Context, id string) (*model.Campaign, error)
	// ListCampaigns returns the campaigns of userID, or every campaign when
	// userID is empty. Archived campaigns are included only if asked for.
	ListCampaigns(ctx context.Context, userID string, includeArchived bool) ([]model.Campaign, error)
	// ListDueCampaigns returns active, non-archived campaigns with
	// lastRun + interval <= now.
	ListDueCampaigns(ctx context.Context, now time.Time) ([]model.Campaign, error)
	// MarkRun advances lastRun without touching any other field, so a pause
	// issued during a scan is preserved.
	MarkRun(ctx context.Context, id string, at time.Time) error
}

// DedupStore tracks which (campaign, posting) pairs were already surfaced.
// It must be safe for concurrent use by parallel campaign scans.
type DedupStore interface {
	Seen(ctx context.Context, campaignID string, key model.PostingKey) (bool, error)
	// MarkSeen is idempotent.
	MarkSeen(ctx context.Context, campaignID string, key model.PostingKey) error
	ExistingCard(ctx context.Context, campaignID string, key model.PostingKey) (*kanban.ApplicationCard, bool, error)
}

// PostingRepository keeps the latest fetched copy of every job posting.
// Identity is the posting key; every other field is volatile and is
// refreshed when the posting is fetched again.
type PostingRepository interface {
	UpsertPostings(ctx context.Context, postings []model.JobPosting, fetchedAt time.Time) error
	GetPosting(ctx context.Context, key model.PostingKey) (*model.JobPosting, error)
}

// Store bundles every repository a backend provides.
type Store interface {
	CampaignRepository
	DedupStore
	PostingRepository
	kanban.Repository
	Close()
}

func campaignNotFound(id string) error { return &model.NotFoundError{Kind: "campaign", ID: id} }

func postingNotFound(key model.PostingKey) error {
	return &model.NotFoundError{Kind: "posting", ID: key.String()}
}

func cardNotFound(id string) error { return &model.NotFoundError{Kind: "card", ID: id} }

type seenKey struct {
	campaignID string
	key        model.PostingKey
}
