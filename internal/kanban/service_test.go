package kanban_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/campaign-service/internal/kanban"
	"jobmate/campaign-service/internal/logger"
	"jobmate/campaign-service/internal/model"
	"jobmate/campaign-service/internal/store"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []kanban.PipelineEvent
}

func (p *recordingPublisher) Publish(ev kanban.PipelineEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) Events() []kanban.PipelineEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]kanban.PipelineEvent(nil), p.events...)
}

type fixture struct {
	svc   *kanban.Service
	repo  *store.Memory
	pub   *recordingPublisher
	clock *time.Time
	camp  *model.Campaign
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	f := &fixture{repo: store.NewMemory(), pub: &recordingPublisher{}, clock: &now}
	f.svc = kanban.NewService(f.repo, f.pub, logger.NewNop(),
		kanban.WithClock(func() time.Time { return *f.clock }))
	f.camp = &model.Campaign{ID: "camp-1", UserID: "user-1", MatchThreshold: 80, Status: model.CampaignActive}
	require.NoError(t, f.repo.CreateCampaign(context.Background(), f.camp))
	return f
}

func (f *fixture) tick(d time.Duration) { *f.clock = f.clock.Add(d) }

func (f *fixture) lead(t *testing.T, sourceID string, score int) *kanban.ApplicationCard {
	t.Helper()
	card, created, err := f.svc.CreateLead(context.Background(), kanban.Lead{
		Campaign: f.camp,
		Posting:  &model.JobPosting{Key: model.PostingKey{Source: "adzuna", SourceID: sourceID}, Title: "Frontend engineer"},
		Match:    model.MatchResult{Score: score, MatchedRequirements: []string{"react"}},
	})
	require.NoError(t, err)
	require.True(t, created)
	return card
}

func (f *fixture) move(t *testing.T, id string, to kanban.Status) *kanban.ApplicationCard {
	t.Helper()
	card, err := f.svc.Transition(context.Background(), kanban.TransitionRequest{CardID: id, To: to, Actor: "user-1"})
	require.NoError(t, err)
	return card
}

func TestCreateLead_StartsInNewLeadsAndEmits(t *testing.T) {
	f := newFixture(t)
	card := f.lead(t, "1", 85)

	assert.Equal(t, kanban.StatusNewLeads, card.Status)
	assert.Equal(t, "user-1", card.UserID)
	require.Len(t, card.History, 1)
	assert.Equal(t, kanban.ActorScheduler, card.History[0].Actor)

	events := f.pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, kanban.Status(""), events[0].From)
	assert.Equal(t, kanban.StatusNewLeads, events[0].To)
	assert.Equal(t, card.ID, events[0].CardID)
	assert.NotEmpty(t, events[0].ID)
}

func TestCreateLead_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	first := f.lead(t, "1", 85)

	for i := 0; i < 3; i++ {
		f.tick(time.Hour)
		card, created, err := f.svc.CreateLead(context.Background(), kanban.Lead{
			Campaign: f.camp,
			Posting:  &model.JobPosting{Key: first.PostingKey, Title: "Renamed title"},
			Match:    model.MatchResult{Score: 90 + i},
		})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, card.ID)
	}

	cards, err := f.svc.ListCards(context.Background(), kanban.CardFilter{CampaignID: f.camp.ID})
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, 92, cards[0].Score)
	assert.Len(t, cards[0].History, 1, "rescoring never touches status history")
	assert.Len(t, f.pub.Events(), 1, "only the creation emits an event")
}

func TestRescore_LeavesTerminalCardClosed(t *testing.T) {
	f := newFixture(t)
	card := f.lead(t, "1", 85)
	f.move(t, card.ID, kanban.StatusArchived)

	rescored, err := f.svc.Rescore(context.Background(), card.ID, model.MatchResult{Score: 99})
	require.NoError(t, err)
	assert.Equal(t, kanban.StatusArchived, rescored.Status)
	assert.Equal(t, 99, rescored.Score)
}

func TestTransition_HappyPath(t *testing.T) {
	f := newFixture(t)
	card := f.lead(t, "1", 85)

	f.tick(time.Minute)
	card = f.move(t, card.ID, kanban.StatusReviewing)
	f.tick(time.Minute)
	card = f.move(t, card.ID, kanban.StatusApplied)
	appliedAt := *f.clock
	require.NotNil(t, card.ApplicationDate)
	assert.Equal(t, appliedAt, *card.ApplicationDate)

	f.tick(time.Hour)
	card = f.move(t, card.ID, kanban.StatusInterviewing)

	assert.Equal(t, kanban.StatusInterviewing, card.Status)
	require.Len(t, card.History, 4)
	assert.Equal(t, kanban.StatusInterviewing, card.History[3].Status)
	assert.Equal(t, "user-1", card.History[3].Actor)

	events := f.pub.Events()
	require.Len(t, events, 4)
	last := events[3]
	assert.Equal(t, kanban.StatusApplied, last.From)
	assert.Equal(t, kanban.StatusInterviewing, last.To)
	assert.Equal(t, "camp-1", last.CampaignID)
}

func TestTransition_ApplicationDateIsPermanent(t *testing.T) {
	f := newFixture(t)
	card := f.lead(t, "1", 85)
	f.move(t, card.ID, kanban.StatusReviewing)
	card = f.move(t, card.ID, kanban.StatusApplied)
	appliedAt := *card.ApplicationDate

	f.tick(24 * time.Hour)
	card = f.move(t, card.ID, kanban.StatusApplied) // no-op
	assert.Equal(t, appliedAt, *card.ApplicationDate)

	f.tick(24 * time.Hour)
	card = f.move(t, card.ID, kanban.StatusRejected)
	require.NotNil(t, card.ApplicationDate)
	assert.Equal(t, appliedAt, *card.ApplicationDate)
	assert.True(t, card.HasApplied())
}

func TestTransition_NoOpDoesNotAppendHistory(t *testing.T) {
	f := newFixture(t)
	card := f.lead(t, "1", 85)
	f.move(t, card.ID, kanban.StatusReviewing)

	card = f.move(t, card.ID, kanban.StatusReviewing)
	assert.Len(t, card.History, 2)
	assert.Len(t, f.pub.Events(), 2)
}

func TestTransition_InvalidLeavesCardUnchanged(t *testing.T) {
	f := newFixture(t)
	card := f.lead(t, "1", 85)

	_, err := f.svc.Transition(context.Background(), kanban.TransitionRequest{
		CardID: card.ID, To: kanban.StatusOffer, Actor: "user-1",
	})
	var invalid *kanban.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, kanban.StatusNewLeads, invalid.From)
	assert.Equal(t, kanban.StatusOffer, invalid.To)
	assert.ErrorIs(t, err, kanban.ErrInvalidTransition)

	after, err := f.svc.GetCard(context.Background(), card.ID)
	require.NoError(t, err)
	assert.Equal(t, kanban.StatusNewLeads, after.Status)
	assert.Len(t, after.History, 1)
	assert.Len(t, f.pub.Events(), 1)
}

func TestTransition_FromTerminalIsInvalid(t *testing.T) {
	f := newFixture(t)
	card := f.lead(t, "1", 85)
	f.move(t, card.ID, kanban.StatusArchived)

	_, err := f.svc.Transition(context.Background(), kanban.TransitionRequest{
		CardID: card.ID, To: kanban.StatusReviewing, Actor: "user-1",
	})
	assert.ErrorIs(t, err, kanban.ErrInvalidTransition)
}

func TestTransition_Errors(t *testing.T) {
	f := newFixture(t)
	card := f.lead(t, "1", 85)
	ctx := context.Background()

	_, err := f.svc.Transition(ctx, kanban.TransitionRequest{CardID: "missing", To: kanban.StatusReviewing, Actor: "u"})
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = f.svc.Transition(ctx, kanban.TransitionRequest{CardID: card.ID, To: "hired", Actor: "u"})
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "toStatus", verr.Field)

	_, err = f.svc.Transition(ctx, kanban.TransitionRequest{CardID: card.ID, To: kanban.StatusReviewing})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "actor", verr.Field)
}

func TestTransition_StaleExpectedFromConflicts(t *testing.T) {
	f := newFixture(t)
	card := f.lead(t, "1", 85)
	f.move(t, card.ID, kanban.StatusReviewing)

	_, err := f.svc.Transition(context.Background(), kanban.TransitionRequest{
		CardID: card.ID, To: kanban.StatusArchived, ExpectedFrom: kanban.StatusNewLeads, Actor: "user-1",
	})
	var conflict *kanban.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, kanban.StatusReviewing, conflict.Actual)
}

func TestTransition_AlreadyAtTargetIgnoresExpectedFrom(t *testing.T) {
	f := newFixture(t)
	card := f.lead(t, "1", 85)
	f.move(t, card.ID, kanban.StatusReviewing)

	got, err := f.svc.Transition(context.Background(), kanban.TransitionRequest{
		CardID: card.ID, To: kanban.StatusReviewing, ExpectedFrom: kanban.StatusNewLeads, Actor: "user-1",
	})
	require.NoError(t, err)
	assert.Equal(t, kanban.StatusReviewing, got.Status)
	assert.Len(t, got.History, 2, "no entry for a move that already happened")
}

func TestTransition_ConcurrentMovesOneWins(t *testing.T) {
	for i := 0; i < 50; i++ {
		f := newFixture(t)
		card := f.lead(t, "1", 85)
		f.move(t, card.ID, kanban.StatusReviewing)

		var (
			wg    sync.WaitGroup
			start = make(chan struct{})
			errs  = make([]error, 2)
		)
		for j, to := range []kanban.Status{kanban.StatusApplied, kanban.StatusArchived} {
			wg.Add(1)
			go func(j int, to kanban.Status) {
				defer wg.Done()
				<-start
				_, errs[j] = f.svc.Transition(context.Background(), kanban.TransitionRequest{
					CardID: card.ID, To: to, ExpectedFrom: kanban.StatusReviewing, Actor: "user-1",
				})
			}(j, to)
		}
		close(start)
		wg.Wait()

		var ok, conflicts int
		for _, err := range errs {
			if err == nil {
				ok++
			} else if errors.Is(err, kanban.ErrConflict) {
				conflicts++
			}
		}
		require.Equal(t, 1, ok)
		require.Equal(t, 1, conflicts)

		final, err := f.svc.GetCard(context.Background(), card.ID)
		require.NoError(t, err)
		assert.Contains(t, []kanban.Status{kanban.StatusApplied, kanban.StatusArchived}, final.Status)
		assert.Len(t, final.History, 3)
		assert.Len(t, f.pub.Events(), 3)
	}
}

func TestListCards_RankedByScoreThenPostedDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for _, p := range []struct {
		id     string
		score  int
		posted time.Time
	}{
		{"old", 90, base},
		{"new", 90, base.Add(48 * time.Hour)},
		{"best", 95, base},
		{"low", 80, base.Add(96 * time.Hour)},
	} {
		_, _, err := f.svc.CreateLead(ctx, kanban.Lead{
			Campaign: f.camp,
			Posting:  &model.JobPosting{Key: model.PostingKey{Source: "s", SourceID: p.id}, PostedAt: p.posted},
			Match:    model.MatchResult{Score: p.score},
		})
		require.NoError(t, err)
	}

	cards, err := f.svc.ListCards(ctx, kanban.CardFilter{UserID: "user-1"})
	require.NoError(t, err)
	var order []string
	for _, c := range cards {
		order = append(order, c.PostingKey.SourceID)
	}
	assert.Equal(t, []string{"best", "new", "old", "low"}, order)

	_, err = f.svc.ListCards(ctx, kanban.CardFilter{Status: "bogus"})
	assert.Error(t, err)
}

func TestCardDetails_DoNotTouchStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	card := f.lead(t, "1", 85)

	_, err := f.svc.AddNote(ctx, card.ID, "recruiter seemed keen")
	require.NoError(t, err)
	_, err = f.svc.AddContact(ctx, card.ID, kanban.Contact{Name: "Grace", Role: "Recruiter"})
	require.NoError(t, err)
	deadline := f.clock.Add(7 * 24 * time.Hour)
	_, err = f.svc.SetImportantDates(ctx, card.ID, kanban.ImportantDates{ApplicationDeadline: &deadline})
	require.NoError(t, err)
	require.NoError(t, f.svc.AttachPrepKit(ctx, card.ID, "kit-123"))

	got, err := f.svc.GetCard(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, "recruiter seemed keen", got.Notes)
	assert.Len(t, got.Contacts, 1)
	assert.Equal(t, deadline, *got.Dates.ApplicationDeadline)
	assert.Equal(t, "kit-123", got.PrepKitRef)
	assert.Equal(t, kanban.StatusNewLeads, got.Status)
	assert.Len(t, got.History, 1)
	assert.Len(t, f.pub.Events(), 1)

	_, err = f.svc.AddContact(ctx, card.ID, kanban.Contact{})
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)
}
