package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"jobmate/campaign-service/internal/kanban"
	"jobmate/campaign-service/internal/model"
)

// Memory is an in-process Store. The cards-by-posting index plays the role of
// the (campaign_id, source, source_id) unique constraint.
type Memory struct {
	mu        sync.RWMutex
	campaigns map[string]*model.Campaign
	cards     map[string]*kanban.ApplicationCard
	byPosting map[seenKey]string
	seen      map[seenKey]struct{}
	postings  map[model.PostingKey]model.JobPosting
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		campaigns: make(map[string]*model.Campaign),
		cards:     make(map[string]*kanban.ApplicationCard),
		byPosting: make(map[seenKey]string),
		seen:      make(map[seenKey]struct{}),
		postings:  make(map[model.PostingKey]model.JobPosting),
	}
}

// Close is a no-op.
func (m *Memory) Close() {}

// ─── Campaigns ───────────────────────────────────────────────────────────────

func cloneCampaign(c *model.Campaign) *model.Campaign {
	out := *c
	out.JobTitles = append([]string(nil), c.JobTitles...)
	out.Locations = append([]string(nil), c.Locations...)
	out.JobTypes = append([]model.JobType(nil), c.JobTypes...)
	out.Seniority = append([]model.Seniority(nil), c.Seniority...)
	out.Skills = append([]string(nil), c.Skills...)
	out.ExcludeTerms = append([]string(nil), c.ExcludeTerms...)
	if c.ArchivedAt != nil {
		at := *c.ArchivedAt
		out.ArchivedAt = &at
	}
	return &out
}

func (m *Memory) CreateCampaign(_ context.Context, c *model.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.campaigns[c.ID] = cloneCampaign(c)
	return nil
}

func (m *Memory) UpdateCampaign(_ context.Context, c *model.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.campaigns[c.ID]
	if !ok {
		return campaignNotFound(c.ID)
	}
	updated := cloneCampaign(c)
	// lastRun belongs to the scheduler.
	updated.LastRun = existing.LastRun
	m.campaigns[c.ID] = updated
	return nil
}

func (m *Memory) GetCampaign(_ context.Context, id string) (*model.Campaign, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, campaignNotFound(id)
	}
	return cloneCampaign(c), nil
}

func (m *Memory) ListCampaigns(_ context.Context, userID string, includeArchived bool) ([]model.Campaign, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Campaign, 0, len(m.campaigns))
	for _, c := range m.campaigns {
		if userID != "" && c.UserID != userID {
			continue
		}
		if c.IsArchived() && !includeArchived {
			continue
		}
		out = append(out, *cloneCampaign(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ListDueCampaigns(_ context.Context, now time.Time) ([]model.Campaign, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Campaign
	for _, c := range m.campaigns {
		if c.IsDue(now) {
			out = append(out, *cloneCampaign(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastRun.Before(out[j].LastRun) })
	return out, nil
}

func (m *Memory) MarkRun(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return campaignNotFound(id)
	}
	c.LastRun = at
	return nil
}

// ─── Postings ────────────────────────────────────────────────────────────────

func clonePosting(p model.JobPosting) model.JobPosting {
	if p.Salary != nil {
		salary := *p.Salary
		p.Salary = &salary
	}
	p.Requirements = append([]string(nil), p.Requirements...)
	return p
}

func (m *Memory) UpsertPostings(_ context.Context, postings []model.JobPosting, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range postings {
		m.postings[p.Key] = clonePosting(p)
	}
	return nil
}

func (m *Memory) GetPosting(_ context.Context, key model.PostingKey) (*model.JobPosting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.postings[key]
	if !ok {
		return nil, postingNotFound(key)
	}
	out := clonePosting(p)
	return &out, nil
}

// ─── Dedup ───────────────────────────────────────────────────────────────────

func (m *Memory) Seen(_ context.Context, campaignID string, key model.PostingKey) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.seen[seenKey{campaignID, key}]
	return ok, nil
}

func (m *Memory) MarkSeen(_ context.Context, campaignID string, key model.PostingKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[seenKey{campaignID, key}] = struct{}{}
	return nil
}

func (m *Memory) ExistingCard(_ context.Context, campaignID string, key model.PostingKey) (*kanban.ApplicationCard, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byPosting[seenKey{campaignID, key}]
	if !ok {
		return nil, false, nil
	}
	return m.cards[id].Clone(), true, nil
}

// ─── Cards ───────────────────────────────────────────────────────────────────

func (m *Memory) GetCard(_ context.Context, id string) (*kanban.ApplicationCard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	card, ok := m.cards[id]
	if !ok {
		return nil, cardNotFound(id)
	}
	return card.Clone(), nil
}

func (m *Memory) InsertCard(_ context.Context, card *kanban.ApplicationCard) (*kanban.ApplicationCard, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.campaigns[card.CampaignID]; !ok {
		return nil, false, campaignNotFound(card.CampaignID)
	}
	k := seenKey{card.CampaignID, card.PostingKey}
	if id, ok := m.byPosting[k]; ok {
		return m.cards[id].Clone(), false, nil
	}
	stored := card.Clone()
	m.cards[stored.ID] = stored
	m.byPosting[k] = stored.ID
	return stored.Clone(), true, nil
}

func (m *Memory) CompareAndSetStatus(_ context.Context, id string, expected kanban.Status, upd kanban.StatusUpdate) (*kanban.ApplicationCard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	card, ok := m.cards[id]
	if !ok {
		return nil, cardNotFound(id)
	}
	if card.Status != expected {
		return nil, &kanban.ConflictError{CardID: id, Expected: expected, Actual: card.Status}
	}
	card.Status = upd.To
	card.History = append(card.History, upd.Entry)
	if card.ApplicationDate == nil && upd.ApplicationDate != nil {
		at := *upd.ApplicationDate
		card.ApplicationDate = &at
	}
	card.UpdatedAt = upd.At
	return card.Clone(), nil
}

// mutate applies fn to the stored card under the write lock.
func (m *Memory) mutate(id string, at time.Time, fn func(*kanban.ApplicationCard)) (*kanban.ApplicationCard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	card, ok := m.cards[id]
	if !ok {
		return nil, cardNotFound(id)
	}
	fn(card)
	card.UpdatedAt = at
	return card.Clone(), nil
}

func (m *Memory) UpdateScore(_ context.Context, id string, result model.MatchResult, at time.Time) (*kanban.ApplicationCard, error) {
	return m.mutate(id, at, func(c *kanban.ApplicationCard) {
		if c.Score != result.Score {
			c.ScoreHistory = append(c.ScoreHistory, kanban.ScoreEntry{Score: result.Score, At: at})
		}
		c.Score = result.Score
		c.Matched = append([]string(nil), result.MatchedRequirements...)
		c.Missing = append([]string(nil), result.MissingRequirements...)
	})
}

func (m *Memory) SetNotes(_ context.Context, id, notes string, at time.Time) (*kanban.ApplicationCard, error) {
	return m.mutate(id, at, func(c *kanban.ApplicationCard) { c.Notes = notes })
}

func (m *Memory) SetImportantDates(_ context.Context, id string, dates kanban.ImportantDates, at time.Time) (*kanban.ApplicationCard, error) {
	return m.mutate(id, at, func(c *kanban.ApplicationCard) {
		c.Dates = (&kanban.ApplicationCard{Dates: dates}).Clone().Dates
	})
}

func (m *Memory) AddContact(_ context.Context, id string, contact kanban.Contact, at time.Time) (*kanban.ApplicationCard, error) {
	return m.mutate(id, at, func(c *kanban.ApplicationCard) { c.Contacts = append(c.Contacts, contact) })
}

func (m *Memory) SetPrepKitRef(_ context.Context, id, ref string, at time.Time) error {
	_, err := m.mutate(id, at, func(c *kanban.ApplicationCard) { c.PrepKitRef = ref })
	return err
}

func (m *Memory) ListCards(_ context.Context, f kanban.CardFilter) ([]kanban.ApplicationCard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]kanban.ApplicationCard, 0)
	for _, c := range m.cards {
		if f.UserID != "" && c.UserID != f.UserID {
			continue
		}
		if f.CampaignID != "" && c.CampaignID != f.CampaignID {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		out = append(out, *c.Clone())
	}
	kanban.SortByRank(out)
	return out, nil
}
