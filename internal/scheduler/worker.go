package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"jobmate/campaign-service/internal/kanban"
	"jobmate/campaign-service/internal/logger"
	"jobmate/campaign-service/internal/metrics"
	"jobmate/campaign-service/internal/model"
	"jobmate/campaign-service/internal/scraper"
	"jobmate/campaign-service/internal/store"
)

// ScanResult summarises one campaign scan.
type ScanResult struct {
	CampaignID     string
	Fetched        int
	Filtered       int
	BelowThreshold int
	Created        int
	Updated        int
	WriteErrors    int
	SourceErrors   map[string]error
	// LastRunAdvanced is false when every source failed; the campaign is then
	// retried at the next tick.
	LastRunAdvanced bool
	// Err is a *model.FatalSchedulerError for an unexpected fault.
	Err error
	// Skipped is set when the scan never started.
	Skipped SkipReason
}

// SkipReason explains why a scan was not run.
type SkipReason string

const (
	SkipInactive   SkipReason = "inactive"
	SkipInProgress SkipReason = "in_progress"
	SkipNotDue     SkipReason = "not_due"
)

// Outcome labels the result for metrics.
func (r ScanResult) Outcome() string {
	switch {
	case r.Skipped != "":
		return "skipped"
	case r.Err != nil:
		return "fatal"
	case !r.LastRunAdvanced:
		return "all_sources_failed"
	case len(r.SourceErrors) > 0:
		return "partial"
	default:
		return "ok"
	}
}

// Worker runs the full scan cycle for a single campaign: fetch from every
// source, filter, score, then create or rescore cards.
type Worker struct {
	campaigns     store.CampaignRepository
	dedup         store.DedupStore
	postings      store.PostingRepository
	pipeline      Pipeline
	scorer        Scorer
	sources       []scraper.Source
	sourceTimeout time.Duration
	log           logger.Logger
	metrics       *metrics.Metrics
}

type match struct {
	posting *model.JobPosting
	result  model.MatchResult
}

// Run fills res. Source calls run concurrently; scoring and card writes for
// the campaign are serialized so its history stays ordered.
func (w *Worker) Run(ctx context.Context, c *model.Campaign, now time.Time, res *ScanResult) {
	log := w.log.With(logger.String("campaign_id", c.ID), logger.String("user_id", c.UserID))
	log.Info("campaign scan started", logger.Strings("titles", c.JobTitles))

	postings, succeeded := w.fetchAll(ctx, c, res, log)
	res.Fetched = len(postings)
	w.savePostings(ctx, postings, now, log)

	var matches []match
	for i := range postings {
		p := &postings[i]
		if reason := scraper.Eligible(c, p); reason != scraper.Accepted {
			res.Filtered++
			continue
		}
		result := w.scorer.Score(c, p)
		if result.Score < c.MatchThreshold {
			res.BelowThreshold++
			continue
		}
		matches = append(matches, match{posting: p, result: result})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].result.Score != matches[j].result.Score {
			return matches[i].result.Score > matches[j].result.Score
		}
		return matches[i].posting.PostedAt.After(matches[j].posting.PostedAt)
	})

	for _, m := range matches {
		created, err := w.record(ctx, c, m)
		switch {
		case err != nil:
			res.WriteErrors++
			log.Error("card write failed",
				logger.String("posting", m.posting.Key.String()),
				logger.Error(err),
			)
		case created:
			res.Created++
		default:
			res.Updated++
		}
	}

	if succeeded > 0 || len(w.sources) == 0 {
		if err := w.campaigns.MarkRun(ctx, c.ID, now); err != nil {
			res.Err = &model.FatalSchedulerError{CampaignID: c.ID, Cause: fmt.Errorf("mark run: %w", err)}
		} else {
			res.LastRunAdvanced = true
		}
	} else {
		log.Warn("every source failed, lastRun not advanced")
	}

	log.Info("campaign scan done",
		logger.Int("fetched", res.Fetched),
		logger.Int("filtered", res.Filtered),
		logger.Int("below_threshold", res.BelowThreshold),
		logger.Int("created", res.Created),
		logger.Int("updated", res.Updated),
		logger.Int("source_errors", len(res.SourceErrors)),
	)
}

// fetchAll calls every source concurrently, each with its own timeout. A
// source error or panic is recorded and skipped; partial postings returned
// alongside an error are kept.
func (w *Worker) fetchAll(ctx context.Context, c *model.Campaign, res *ScanResult, log logger.Logger) ([]model.JobPosting, int) {
	q := scraper.QueryFor(c)
	batches := make([][]model.JobPosting, len(w.sources))
	errs := make([]error, len(w.sources))

	var g errgroup.Group
	for i, src := range w.sources {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("source panic: %v", r)
				}
			}()
			sctx, cancel := w.sourceContext(ctx)
			defer cancel()
			batches[i], errs[i] = src.FetchPostings(sctx, q)
			return nil
		})
	}
	_ = g.Wait()

	var (
		postings  []model.JobPosting
		succeeded int
	)
	for i, src := range w.sources {
		postings = append(postings, batches[i]...)
		w.metrics.AddPostings(src.Name(), len(batches[i]))
		if errs[i] == nil {
			succeeded++
			continue
		}
		if res.SourceErrors == nil {
			res.SourceErrors = make(map[string]error)
		}
		res.SourceErrors[src.Name()] = errs[i]
		w.metrics.IncSourceError(src.Name())
		log.Warn("source failed, continuing",
			logger.String("source", src.Name()),
			logger.Bool("timeout", errors.Is(errs[i], context.DeadlineExceeded)),
			logger.Error(errs[i]),
		)
	}
	return uniquePostings(postings), succeeded
}

// savePostings refreshes the stored copy of every fetched posting. A failure
// is logged and never stops the scan.
func (w *Worker) savePostings(ctx context.Context, postings []model.JobPosting, now time.Time, log logger.Logger) {
	if w.postings == nil || len(postings) == 0 {
		return
	}
	if err := w.postings.UpsertPostings(ctx, postings, now); err != nil {
		log.Warn("posting upsert failed", logger.Int("postings", len(postings)), logger.Error(err))
	}
}

func (w *Worker) sourceContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.sourceTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, w.sourceTimeout)
}

// record creates a card for m, or rescores the one that already exists. The
// seen set short-circuits the card lookup for postings never surfaced before;
// the store's uniqueness guarantee still covers races.
func (w *Worker) record(ctx context.Context, c *model.Campaign, m match) (created bool, err error) {
	key := m.posting.Key
	seen, err := w.dedup.Seen(ctx, c.ID, key)
	if err != nil {
		return false, err
	}
	if seen {
		existing, found, err := w.dedup.ExistingCard(ctx, c.ID, key)
		if err != nil {
			return false, err
		}
		if found {
			_, err := w.pipeline.Rescore(ctx, existing.ID, m.result)
			return false, err
		}
	}

	_, created, err = w.pipeline.CreateLead(ctx, kanban.Lead{Campaign: c, Posting: m.posting, Match: m.result})
	if err != nil {
		return false, err
	}
	if err := w.dedup.MarkSeen(ctx, c.ID, key); err != nil {
		w.log.Warn("mark seen failed", logger.String("posting", key.String()), logger.Error(err))
	}
	return created, nil
}

func uniquePostings(in []model.JobPosting) []model.JobPosting {
	seen := make(map[model.PostingKey]bool, len(in))
	out := make([]model.JobPosting, 0, len(in))
	for _, p := range in {
		if seen[p.Key] {
			continue
		}
		seen[p.Key] = true
		out = append(out, p)
	}
	return out
}
