// Package scheduler wires up the cron job that periodically scans every due
// campaign, and the bounded worker pool that runs those scans.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"jobmate/campaign-service/internal/kanban"
	"jobmate/campaign-service/internal/logger"
	"jobmate/campaign-service/internal/metrics"
	"jobmate/campaign-service/internal/model"
	"jobmate/campaign-service/internal/scraper"
	"jobmate/campaign-service/internal/store"
)

// Scorer rates a posting for a campaign.
type Scorer interface {
	Score(c *model.Campaign, p *model.JobPosting) model.MatchResult
}

// Pipeline is the part of the pipeline engine the scheduler drives.
type Pipeline interface {
	CreateLead(ctx context.Context, lead kanban.Lead) (*kanban.ApplicationCard, bool, error)
	Rescore(ctx context.Context, cardID string, match model.MatchResult) (*kanban.ApplicationCard, error)
}

// Config sizes the scheduler.
type Config struct {
	TickSpec      string        // cron spec, e.g. "@every 1m"
	Workers       int           // campaigns scanned in parallel
	SourceTimeout time.Duration // per source call
}

// Scheduler wraps robfig/cron and owns the scan loop. At most one scan per
// campaign runs at a time, whichever path started it.
type Scheduler struct {
	cron      *cron.Cron
	running   sync.Map // campaign id -> struct{}
	spec      string
	campaigns store.CampaignRepository
	worker    *Worker
	workers   int
	log       logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(s *Scheduler) { s.now = now } }

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
		s.worker.metrics = m
	}
}

// WithPostings keeps the latest copy of every fetched posting in repo.
func WithPostings(repo store.PostingRepository) Option {
	return func(s *Scheduler) { s.worker.postings = repo }
}

// New creates a Scheduler.
func New(
	cfg Config,
	campaigns store.CampaignRepository,
	dedup store.DedupStore,
	pipeline Pipeline,
	scorer Scorer,
	sources []scraper.Source,
	log logger.Logger,
	opts ...Option,
) *Scheduler {
	log = log.With(logger.String("component", "scheduler"))
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	cl := cronLogger{log: log}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		spec:      cfg.TickSpec,
		campaigns: campaigns,
		worker: &Worker{
			campaigns:     campaigns,
			dedup:         dedup,
			pipeline:      pipeline,
			scorer:        scorer,
			sources:       sources,
			sourceTimeout: cfg.SourceTimeout,
			log:           log,
		},
		workers: workers,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start registers the tick and starts cron. It also runs one pass
// immediately so due campaigns do not wait for the first tick. That pass goes
// through the same job chain, so it never overlaps a scheduled tick.
func (s *Scheduler) Start(ctx context.Context) error {
	id, err := s.cron.AddFunc(s.spec, func() {
		s.tick(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	initial := s.cron.Entry(id).WrappedJob

	s.cron.Start()
	s.log.Info("cron started", logger.String("spec", s.spec))

	go initial.Run()

	return nil
}

// Stop halts cron and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("cron stopped")
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.RunDueCampaigns(ctx, s.now()); err != nil {
		s.log.Error("scan cycle failed", logger.Error(err))
	}
}

// RunDueCampaigns scans every active campaign with lastRun + interval <= now
// on the bounded worker pool. A failing or panicking campaign is reported in
// its own ScanResult and never stops its siblings. The error is only set when
// the due campaigns cannot be listed.
func (s *Scheduler) RunDueCampaigns(ctx context.Context, now time.Time) ([]ScanResult, error) {
	due, err := s.campaigns.ListDueCampaigns(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list due campaigns: %w", err)
	}
	if len(due) == 0 {
		s.log.Debug("no due campaigns")
		return nil, nil
	}

	s.log.Info("scan cycle started", logger.Int("campaigns", len(due)))

	results := make([]ScanResult, len(due))
	var g errgroup.Group
	g.SetLimit(s.workers)
	for i := range due {
		g.Go(func() error {
			results[i] = s.run(ctx, &due[i], now, true)
			return nil
		})
	}
	_ = g.Wait()

	var failed, skipped int
	for _, r := range results {
		switch {
		case r.Skipped != "":
			skipped++
		case r.Err != nil:
			failed++
		}
	}
	s.log.Info("scan cycle complete",
		logger.Int("campaigns", len(results)),
		logger.Int("failed", failed),
		logger.Int("skipped", skipped),
	)
	return results, nil
}

// RunCampaign scans one campaign regardless of whether it is due. Paused or
// archived campaigns are skipped, as is a campaign whose scan is already
// running. Panics are turned into a *model.FatalSchedulerError on the result.
func (s *Scheduler) RunCampaign(ctx context.Context, c *model.Campaign, now time.Time) ScanResult {
	return s.run(ctx, c, now, false)
}

func (s *Scheduler) run(ctx context.Context, c *model.Campaign, now time.Time, requireDue bool) (res ScanResult) {
	res.CampaignID = c.ID
	if c.Status != model.CampaignActive || c.IsArchived() {
		res.Skipped = SkipInactive
		return res
	}
	if _, busy := s.running.LoadOrStore(c.ID, struct{}{}); busy {
		s.log.Info("campaign scan already running, skipped", logger.String("campaign_id", c.ID))
		res.Skipped = SkipInProgress
		return res
	}
	defer s.running.Delete(c.ID)

	if requireDue {
		// The due list may predate a scan that just finished.
		fresh, err := s.campaigns.GetCampaign(ctx, c.ID)
		if err == nil && !fresh.IsDue(now) {
			res.Skipped = SkipNotDue
			return res
		}
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.Err = &model.FatalSchedulerError{CampaignID: c.ID, Cause: fmt.Errorf("panic: %v", r)}
		}
		if res.Err != nil {
			s.log.Error("campaign scan failed",
				logger.String("campaign_id", c.ID),
				logger.Error(res.Err),
			)
		}
		s.metrics.ObserveScan(res.Outcome(), time.Since(start))
	}()

	s.worker.Run(ctx, c, now, &res)
	return res
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logger.Error(err))...)
}

func kvFields(kv []any) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, logger.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}
