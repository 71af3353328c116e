// Package campaign implements the operator-facing campaign lifecycle:
// create, edit, pause, resume and archive. Campaigns are never hard-deleted.
package campaign

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"jobmate/campaign-service/internal/logger"
	"jobmate/campaign-service/internal/model"
	"jobmate/campaign-service/internal/store"
)

// Service validates and persists campaigns.
type Service struct {
	repo            store.CampaignRepository
	log             logger.Logger
	now             func() time.Time
	defaultInterval time.Duration
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithDefaultInterval sets the interval used when a spec leaves it unset.
func WithDefaultInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.defaultInterval = d
		}
	}
}

// NewService returns a Service backed by repo.
func NewService(repo store.CampaignRepository, log logger.Logger, opts ...Option) *Service {
	s := &Service{
		repo:            repo,
		log:             log.With(logger.String("component", "campaigns")),
		now:             func() time.Time { return time.Now().UTC() },
		defaultInterval: model.DefaultRunInterval,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create validates spec and stores a new active campaign for userID.
func (s *Service) Create(ctx context.Context, userID string, spec Spec) (*model.Campaign, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, &model.ValidationError{Field: "userId", Msg: "is required"}
	}
	clean, interval, err := spec.normalize(s.defaultInterval)
	if err != nil {
		return nil, err
	}

	now := s.now()
	c := &model.Campaign{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    model.CampaignActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	apply(c, clean, interval)

	if err := s.repo.CreateCampaign(ctx, c); err != nil {
		return nil, err
	}
	s.log.Info("campaign created",
		logger.String("campaign_id", c.ID),
		logger.String("user_id", userID),
		logger.Strings("job_titles", c.JobTitles),
	)
	return c, nil
}

// Update replaces the editable fields of an existing campaign. Status and
// lastRun are left alone.
func (s *Service) Update(ctx context.Context, id string, spec Spec) (*model.Campaign, error) {
	clean, interval, err := spec.normalize(s.defaultInterval)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, "updated", func(c *model.Campaign) error {
		apply(c, clean, interval)
		return nil
	})
}

// Pause stops scheduling. Pausing a paused campaign is a no-op.
func (s *Service) Pause(ctx context.Context, id string) (*model.Campaign, error) {
	return s.setStatus(ctx, id, model.CampaignPaused)
}

// Resume re-enables scheduling. The next tick picks the campaign up as soon
// as lastRun + interval has passed.
func (s *Service) Resume(ctx context.Context, id string) (*model.Campaign, error) {
	return s.setStatus(ctx, id, model.CampaignActive)
}

func (s *Service) setStatus(ctx context.Context, id string, status model.CampaignStatus) (*model.Campaign, error) {
	return s.mutate(ctx, id, string(status), func(c *model.Campaign) error {
		c.Status = status
		return nil
	})
}

// Archive soft-deletes the campaign. Its cards are kept. Archiving twice
// keeps the first archive time.
func (s *Service) Archive(ctx context.Context, id string) (*model.Campaign, error) {
	c, err := s.repo.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.IsArchived() {
		return c, nil
	}
	now := s.now()
	c.ArchivedAt = &now
	c.Status = model.CampaignPaused
	c.UpdatedAt = now
	if err := s.repo.UpdateCampaign(ctx, c); err != nil {
		return nil, err
	}
	s.log.Info("campaign archived", logger.String("campaign_id", id))
	return c, nil
}

// Get returns one campaign, archived or not.
func (s *Service) Get(ctx context.Context, id string) (*model.Campaign, error) {
	return s.repo.GetCampaign(ctx, id)
}

// List returns the campaigns of userID, or all campaigns when userID is empty.
func (s *Service) List(ctx context.Context, userID string, includeArchived bool) ([]model.Campaign, error) {
	return s.repo.ListCampaigns(ctx, userID, includeArchived)
}

func (s *Service) mutate(ctx context.Context, id, action string, fn func(*model.Campaign) error) (*model.Campaign, error) {
	c, err := s.repo.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.IsArchived() {
		return nil, &model.ValidationError{Field: "status", Msg: "campaign is archived"}
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	c.UpdatedAt = s.now()
	if err := s.repo.UpdateCampaign(ctx, c); err != nil {
		return nil, err
	}
	s.log.Info("campaign "+action, logger.String("campaign_id", id))
	return c, nil
}

func apply(c *model.Campaign, spec Spec, interval time.Duration) {
	c.JobTitles = spec.JobTitles
	c.Locations = spec.Locations
	c.LocationMode = spec.LocationMode
	c.JobTypes = spec.JobTypes
	c.Salary = spec.Salary
	c.Seniority = spec.Seniority
	c.Skills = spec.Skills
	c.ExcludeTerms = spec.ExcludeTerms
	c.MatchThreshold = spec.MatchThreshold
	c.Interval = interval
}
