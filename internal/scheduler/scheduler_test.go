package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/campaign-service/internal/kanban"
	"jobmate/campaign-service/internal/logger"
	"jobmate/campaign-service/internal/matcher"
	"jobmate/campaign-service/internal/metrics"
	"jobmate/campaign-service/internal/model"
	"jobmate/campaign-service/internal/scheduler"
	"jobmate/campaign-service/internal/scraper"
	"jobmate/campaign-service/internal/store"
)

var now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

// fakeSource returns fixed postings, an error, or blocks until its context
// expires.
type fakeSource struct {
	name     string
	postings []model.JobPosting
	err      error
	hang     bool
	block    chan struct{}
	panicFor string
	calls    atomic.Int32
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) FetchPostings(ctx context.Context, q scraper.Query) ([]model.JobPosting, error) {
	f.calls.Add(1)
	if f.panicFor != "" && len(q.JobTitles) > 0 && q.JobTitles[0] == f.panicFor {
		panic("source exploded")
	}
	if f.block != nil {
		<-f.block
	}
	if f.hang {
		<-ctx.Done()
		return nil, &model.ExternalServiceError{Service: f.name, Op: "fetch", Err: ctx.Err()}
	}
	return f.postings, f.err
}

func posting(source, id string, remote bool, reqs ...string) model.JobPosting {
	return model.JobPosting{
		Key:          model.PostingKey{Source: source, SourceID: id},
		Title:        "Frontend engineer",
		Remote:       remote,
		Requirements: reqs,
		PostedAt:     now.Add(-time.Hour),
	}
}

type harness struct {
	store    *store.Memory
	pipeline *kanban.Service
	events   *recorder
	metrics  *metrics.Metrics
}

type recorder struct{ n atomic.Int32 }

func (r *recorder) Publish(kanban.PipelineEvent) { r.n.Add(1) }

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{store: store.NewMemory(), events: &recorder{}, metrics: metrics.New(prometheus.NewRegistry())}
	h.pipeline = kanban.NewService(h.store, h.events, logger.NewNop(), kanban.WithClock(func() time.Time { return now }))
	return h
}

func (h *harness) scheduler(sources []scraper.Source, scorer scheduler.Scorer) *scheduler.Scheduler {
	if scorer == nil {
		scorer = matcher.NewScorer(nil)
	}
	return scheduler.New(
		scheduler.Config{TickSpec: "@every 1h", Workers: 2, SourceTimeout: 50 * time.Millisecond},
		h.store, h.store, h.pipeline, scorer, sources, logger.NewNop(),
		scheduler.WithMetrics(h.metrics),
		scheduler.WithClock(func() time.Time { return now }),
		scheduler.WithPostings(h.store),
	)
}

func (h *harness) campaign(t *testing.T, id string, mutate ...func(*model.Campaign)) *model.Campaign {
	t.Helper()
	c := &model.Campaign{
		ID:             id,
		UserID:         "user-" + id,
		JobTitles:      []string{"frontend " + id},
		LocationMode:   model.LocationRemote,
		JobTypes:       []model.JobType{model.JobTypeFullTime},
		Skills:         []string{"React", "TypeScript"},
		MatchThreshold: 80,
		Status:         model.CampaignActive,
		CreatedAt:      now.Add(-24 * time.Hour),
	}
	for _, m := range mutate {
		m(c)
	}
	require.NoError(t, h.store.CreateCampaign(context.Background(), c))
	return c
}

func (h *harness) cards(t *testing.T, campaignID string) []kanban.ApplicationCard {
	t.Helper()
	cards, err := h.store.ListCards(context.Background(), kanban.CardFilter{CampaignID: campaignID})
	require.NoError(t, err)
	return cards
}

func TestRunDueCampaigns_ThresholdAndLocationGate(t *testing.T) {
	h := newHarness(t)
	h.campaign(t, "c1")
	src := &fakeSource{name: "board", postings: []model.JobPosting{
		posting("board", "A", true, "React", "TypeScript", "Node"),
		posting("board", "B", false, "React", "TypeScript", "Node"),
		posting("board", "C", true, "PHP"),
	}}

	results, err := h.scheduler([]scraper.Source{src}, nil).RunDueCampaigns(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, results, 1)
	r := results[0]
	assert.NoError(t, r.Err)
	assert.Equal(t, 3, r.Fetched)
	assert.Equal(t, 1, r.Created)
	assert.Equal(t, 2, r.BelowThreshold)
	assert.True(t, r.LastRunAdvanced)
	assert.Equal(t, "ok", r.Outcome())

	cards := h.cards(t, "c1")
	require.Len(t, cards, 1)
	assert.Equal(t, "A", cards[0].PostingKey.SourceID)
	assert.Equal(t, kanban.StatusNewLeads, cards[0].Status)
	assert.Equal(t, int32(1), h.events.n.Load())

	c, err := h.store.GetCampaign(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, now, c.LastRun)
}

func TestRunCampaign_RepeatedScansAreIdempotent(t *testing.T) {
	h := newHarness(t)
	c := h.campaign(t, "c1")
	src := &fakeSource{name: "board", postings: []model.JobPosting{posting("board", "A", true, "React", "TypeScript")}}
	s := h.scheduler([]scraper.Source{src}, nil)

	for i := 0; i < 3; i++ {
		r := s.RunCampaign(context.Background(), c, now)
		require.NoError(t, r.Err)
	}
	assert.Len(t, h.cards(t, "c1"), 1)

	// The user applies, the posting improves: the card is rescored, never duplicated.
	card := h.cards(t, "c1")[0]
	for _, to := range []kanban.Status{kanban.StatusReviewing, kanban.StatusApplied, kanban.StatusRejected} {
		_, err := h.pipeline.Transition(context.Background(), kanban.TransitionRequest{CardID: card.ID, To: to, Actor: "user"})
		require.NoError(t, err)
	}
	src.postings[0].Salary = &model.SalaryRange{Min: 1, Max: 2}
	r := s.RunCampaign(context.Background(), c, now)
	assert.Equal(t, 0, r.Created)
	assert.Equal(t, 1, r.Updated)

	cards := h.cards(t, "c1")
	require.Len(t, cards, 1)
	assert.Equal(t, kanban.StatusRejected, cards[0].Status)
	assert.NotNil(t, cards[0].ApplicationDate)
}

func TestRunDueCampaigns_OneSourceTimesOut(t *testing.T) {
	h := newHarness(t)
	h.campaign(t, "c1")
	sources := []scraper.Source{
		&fakeSource{name: "one", postings: []model.JobPosting{posting("one", "1", true, "React", "TypeScript")}},
		&fakeSource{name: "slow", hang: true},
		&fakeSource{name: "two", postings: []model.JobPosting{posting("two", "2", true, "React", "TypeScript")}},
	}

	results, err := h.scheduler(sources, nil).RunDueCampaigns(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, 2, r.Created)
	assert.True(t, r.LastRunAdvanced)
	require.Contains(t, r.SourceErrors, "slow")
	assert.ErrorIs(t, r.SourceErrors["slow"], context.DeadlineExceeded)
	assert.Equal(t, "partial", r.Outcome())
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.SourceErrorsTotal.WithLabelValues("slow")), 0)

	c, err := h.store.GetCampaign(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, now, c.LastRun)
}

func TestRunDueCampaigns_AllSourcesFailKeepsLastRun(t *testing.T) {
	h := newHarness(t)
	h.campaign(t, "c1")
	sources := []scraper.Source{
		&fakeSource{name: "a", err: errors.New("boom")},
		&fakeSource{name: "b", hang: true},
	}

	results, err := h.scheduler(sources, nil).RunDueCampaigns(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].LastRunAdvanced)
	assert.Equal(t, "all_sources_failed", results[0].Outcome())

	c, err := h.store.GetCampaign(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, c.LastRun.IsZero())

	due, err := h.store.ListDueCampaigns(context.Background(), now)
	require.NoError(t, err)
	assert.Len(t, due, 1, "campaign is retried at the next tick")
}

func TestRunDueCampaigns_SkipsPausedArchivedAndRecent(t *testing.T) {
	h := newHarness(t)
	h.campaign(t, "due")
	h.campaign(t, "paused", func(c *model.Campaign) { c.Status = model.CampaignPaused })
	h.campaign(t, "archived", func(c *model.Campaign) { at := now; c.ArchivedAt = &at })
	h.campaign(t, "recent", func(c *model.Campaign) { c.LastRun = now.Add(-time.Hour) })
	src := &fakeSource{name: "board"}

	results, err := h.scheduler([]scraper.Source{src}, nil).RunDueCampaigns(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "due", results[0].CampaignID)
	assert.Equal(t, int32(1), src.calls.Load())
}

type panickyScorer struct {
	inner    scheduler.Scorer
	campaign string
}

func (p panickyScorer) Score(c *model.Campaign, posting *model.JobPosting) model.MatchResult {
	if c.ID == p.campaign {
		panic("scorer bug")
	}
	return p.inner.Score(c, posting)
}

func TestRunDueCampaigns_PanicIsIsolated(t *testing.T) {
	h := newHarness(t)
	h.campaign(t, "bad")
	h.campaign(t, "good")
	h.campaign(t, "flaky-source")
	src := &fakeSource{
		name:     "board",
		postings: []model.JobPosting{posting("board", "A", true, "React", "TypeScript")},
		panicFor: "frontend flaky-source",
	}

	results, err := h.scheduler([]scraper.Source{src}, panickyScorer{inner: matcher.NewScorer(nil), campaign: "bad"}).
		RunDueCampaigns(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, results, 3)

	byID := make(map[string]scheduler.ScanResult)
	for _, r := range results {
		byID[r.CampaignID] = r
	}

	var fatal *model.FatalSchedulerError
	require.ErrorAs(t, byID["bad"].Err, &fatal)
	assert.Equal(t, "bad", fatal.CampaignID)
	assert.Equal(t, "fatal", byID["bad"].Outcome())

	assert.NoError(t, byID["good"].Err)
	assert.Equal(t, 1, byID["good"].Created)
	assert.Len(t, h.cards(t, "good"), 1)

	assert.NoError(t, byID["flaky-source"].Err)
	assert.Contains(t, byID["flaky-source"].SourceErrors, "board")
	assert.False(t, byID["flaky-source"].LastRunAdvanced)
}

func TestRunDueCampaigns_EligibilityFilters(t *testing.T) {
	h := newHarness(t)
	h.campaign(t, "c1", func(c *model.Campaign) { c.ExcludeTerms = []string{"blockchain"} })
	flagged := posting("board", "F", true, "React", "TypeScript")
	flagged.Description = "Join our Blockchain team"
	contract := posting("board", "K", true, "React", "TypeScript")
	contract.JobType = model.JobTypeContract

	src := &fakeSource{name: "board", postings: []model.JobPosting{flagged, contract}}
	results, err := h.scheduler([]scraper.Source{src}, nil).RunDueCampaigns(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, results[0].Filtered)
	assert.Empty(t, h.cards(t, "c1"))
}

func TestRunDueCampaigns_NoSourcesStillAdvances(t *testing.T) {
	h := newHarness(t)
	h.campaign(t, "c1")

	results, err := h.scheduler(nil, nil).RunDueCampaigns(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].LastRunAdvanced)
}

func TestScheduler_StartRunsImmediately(t *testing.T) {
	h := newHarness(t)
	h.campaign(t, "c1")
	src := &fakeSource{name: "board", postings: []model.JobPosting{posting("board", "A", true, "React", "TypeScript")}}
	s := h.scheduler([]scraper.Source{src}, nil)

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return len(h.cards(t, "c1")) == 1 }, 2*time.Second, 10*time.Millisecond)
	s.Stop()
}

func TestScheduler_StartRejectsBadSpec(t *testing.T) {
	h := newHarness(t)
	s := scheduler.New(scheduler.Config{TickSpec: "not a spec"}, h.store, h.store, h.pipeline,
		matcher.NewScorer(nil), nil, logger.NewNop())
	assert.Error(t, s.Start(context.Background()))
}

func TestRunCampaign_SkipsInactiveCampaigns(t *testing.T) {
	h := newHarness(t)
	paused := h.campaign(t, "paused", func(c *model.Campaign) { c.Status = model.CampaignPaused })
	archived := h.campaign(t, "archived", func(c *model.Campaign) {
		at := now.Add(-time.Hour)
		c.ArchivedAt = &at
	})
	src := &fakeSource{name: "board", postings: []model.JobPosting{posting("board", "A", true, "React", "TypeScript")}}
	s := h.scheduler([]scraper.Source{src}, nil)

	for _, c := range []*model.Campaign{paused, archived} {
		r := s.RunCampaign(context.Background(), c, now)
		assert.Equal(t, scheduler.SkipInactive, r.Skipped, c.ID)
		assert.Equal(t, "skipped", r.Outcome())
		assert.Empty(t, h.cards(t, c.ID))

		stored, err := h.store.GetCampaign(context.Background(), c.ID)
		require.NoError(t, err)
		assert.True(t, stored.LastRun.IsZero(), "lastRun must not advance for %s", c.ID)
	}
	assert.Zero(t, src.calls.Load())
}

func TestRunCampaign_OneScanPerCampaignAtATime(t *testing.T) {
	h := newHarness(t)
	c := h.campaign(t, "c1")
	src := &fakeSource{
		name:     "board",
		postings: []model.JobPosting{posting("board", "A", true, "React", "TypeScript")},
		block:    make(chan struct{}),
	}
	s := scheduler.New(
		scheduler.Config{TickSpec: "@every 1h", Workers: 2},
		h.store, h.store, h.pipeline, matcher.NewScorer(nil), []scraper.Source{src}, logger.NewNop(),
	)

	first := make(chan scheduler.ScanResult, 1)
	go func() { first <- s.RunCampaign(context.Background(), c, now) }()
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	second := s.RunCampaign(context.Background(), c, now)
	assert.Equal(t, scheduler.SkipInProgress, second.Skipped)

	due, err := s.RunDueCampaigns(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, scheduler.SkipInProgress, due[0].Skipped)

	close(src.block)
	r := <-first
	assert.Empty(t, r.Skipped)
	assert.Equal(t, 1, r.Created)
	assert.Equal(t, int32(1), src.calls.Load())

	again, err := s.RunDueCampaigns(context.Background(), now)
	require.NoError(t, err)
	assert.Empty(t, again, "the finished scan advanced lastRun")
}

// staleDue lists every active campaign as due, like a due list read just
// before another scan finished.
type staleDue struct{ *store.Memory }

func (s staleDue) ListDueCampaigns(ctx context.Context, _ time.Time) ([]model.Campaign, error) {
	return s.ListCampaigns(ctx, "", false)
}

func TestRunDueCampaigns_SkipsCampaignScannedSinceListing(t *testing.T) {
	h := newHarness(t)
	c := h.campaign(t, "c1")
	src := &fakeSource{name: "board"}
	s := scheduler.New(
		scheduler.Config{TickSpec: "@every 1h"},
		staleDue{h.store}, h.store, h.pipeline, matcher.NewScorer(nil), []scraper.Source{src}, logger.NewNop(),
	)
	require.NoError(t, h.store.MarkRun(context.Background(), c.ID, now))

	results, err := s.RunDueCampaigns(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, scheduler.SkipNotDue, results[0].Skipped)
	assert.Zero(t, src.calls.Load())

	r := s.RunCampaign(context.Background(), c, now)
	assert.Empty(t, r.Skipped, "scan-now ignores the interval")
	assert.True(t, r.LastRunAdvanced)
}

func TestRunCampaign_RefreshesStoredPostings(t *testing.T) {
	h := newHarness(t)
	c := h.campaign(t, "c1")
	first := posting("board", "A", true, "React", "TypeScript")
	first.Salary = &model.SalaryRange{Min: 50000, Max: 60000}
	ignored := posting("board", "B", true, "PHP")
	src := &fakeSource{name: "board", postings: []model.JobPosting{first, ignored}}
	s := h.scheduler([]scraper.Source{src}, nil)

	s.RunCampaign(context.Background(), c, now)
	stored, err := h.store.GetPosting(context.Background(), first.Key)
	require.NoError(t, err)
	assert.Equal(t, 60000, stored.Salary.Max)
	_, err = h.store.GetPosting(context.Background(), ignored.Key)
	assert.NoError(t, err, "below-threshold postings are stored too")

	refetched := first
	refetched.Title = "Senior frontend engineer"
	refetched.Salary = &model.SalaryRange{Min: 55000, Max: 70000}
	src.postings = []model.JobPosting{refetched}
	s.RunCampaign(context.Background(), c, now.Add(time.Hour))

	stored, err = h.store.GetPosting(context.Background(), first.Key)
	require.NoError(t, err)
	assert.Equal(t, "Senior frontend engineer", stored.Title)
	assert.Equal(t, 70000, stored.Salary.Max)
	assert.Equal(t, first.Key, stored.Key)
	assert.Len(t, h.cards(t, "c1"), 1, "a refreshed posting keeps its single card")
}
