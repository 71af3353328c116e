package kanban

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"jobmate/campaign-service/internal/logger"
	"jobmate/campaign-service/internal/metrics"
	"jobmate/campaign-service/internal/model"
)

// ─── Dependencies ────────────────────────────────────────────────────────────

// StatusUpdate is applied atomically by Repository.CompareAndSetStatus.
// ApplicationDate is only written when the stored value is still nil.
type StatusUpdate struct {
	To              Status
	Entry           HistoryEntry
	ApplicationDate *time.Time
	At              time.Time
}

// CardFilter narrows ListCards. Empty fields match everything.
type CardFilter struct {
	UserID     string
	CampaignID string
	Status     Status
}

// Repository is the card persistence the engine depends on.
// Lookups of unknown cards return a *model.NotFoundError.
type Repository interface {
	GetCard(ctx context.Context, id string) (*ApplicationCard, error)
	// InsertCard stores card unless a card already exists for the same
	// (CampaignID, PostingKey); in that case it returns the existing card
	// and created=false.
	InsertCard(ctx context.Context, card *ApplicationCard) (stored *ApplicationCard, created bool, err error)
	// CompareAndSetStatus applies upd only if the stored status still equals
	// expected, otherwise it returns a *ConflictError.
	CompareAndSetStatus(ctx context.Context, id string, expected Status, upd StatusUpdate) (*ApplicationCard, error)
	UpdateScore(ctx context.Context, id string, result model.MatchResult, at time.Time) (*ApplicationCard, error)
	SetNotes(ctx context.Context, id, notes string, at time.Time) (*ApplicationCard, error)
	SetImportantDates(ctx context.Context, id string, dates ImportantDates, at time.Time) (*ApplicationCard, error)
	AddContact(ctx context.Context, id string, contact Contact, at time.Time) (*ApplicationCard, error)
	SetPrepKitRef(ctx context.Context, id, ref string, at time.Time) error
	ListCards(ctx context.Context, filter CardFilter) ([]ApplicationCard, error)
}

// Publisher receives every PipelineEvent. Publish must not block.
type Publisher interface {
	Publish(event PipelineEvent)
}

// ─── Service ─────────────────────────────────────────────────────────────────

// Service is the pipeline engine. It owns card lifecycle, enforces the
// transition table and emits one PipelineEvent per status change. It is
// transport-agnostic.
type Service struct {
	repo    Repository
	pub     Publisher
	log     logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

// NewService returns a configured Service.
func NewService(repo Repository, pub Publisher, log logger.Logger, opts ...Option) *Service {
	s := &Service{
		repo: repo,
		pub:  pub,
		log:  log.With(logger.String("component", "pipeline")),
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ─── Lead ingestion ──────────────────────────────────────────────────────────

// Lead is a posting that crossed a campaign's threshold.
type Lead struct {
	Campaign *model.Campaign
	Posting  *model.JobPosting
	Match    model.MatchResult
}

// CreateLead creates a card in new-leads and emits its creation event. If a
// card already exists for the (campaign, posting) pair, nothing is created:
// the existing card is rescored instead and created is false.
func (s *Service) CreateLead(ctx context.Context, lead Lead) (card *ApplicationCard, created bool, err error) {
	now := s.now()
	candidate := &ApplicationCard{
		ID:         uuid.NewString(),
		CampaignID: lead.Campaign.ID,
		UserID:     lead.Campaign.UserID,
		PostingKey: lead.Posting.Key,
		Title:      lead.Posting.Title,
		Company:    lead.Posting.Company,
		URL:        lead.Posting.URL,
		PostedAt:   lead.Posting.PostedAt,
		Status:     StatusNewLeads,
		Score:      lead.Match.Score,
		Matched:    lead.Match.MatchedRequirements,
		Missing:    lead.Match.MissingRequirements,
		History:    []HistoryEntry{{Status: StatusNewLeads, At: now, Actor: ActorScheduler}},
		ScoreHistory: []ScoreEntry{
			{Score: lead.Match.Score, At: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	stored, created, err := s.repo.InsertCard(ctx, candidate)
	if err != nil {
		return nil, false, fmt.Errorf("insert card: %w", err)
	}
	if !created {
		rescored, err := s.Rescore(ctx, stored.ID, lead.Match)
		return rescored, false, err
	}

	s.metrics.IncCardsCreated()
	s.publish(PipelineEvent{
		CardID:     stored.ID,
		CampaignID: stored.CampaignID,
		UserID:     stored.UserID,
		To:         StatusNewLeads,
		At:         now,
		Actor:      ActorScheduler,
	})
	return stored, true, nil
}

// Rescore updates score and requirement sets in place. Status and status
// history are never touched, including for terminal cards.
func (s *Service) Rescore(ctx context.Context, cardID string, match model.MatchResult) (*ApplicationCard, error) {
	card, err := s.repo.UpdateScore(ctx, cardID, match, s.now())
	if err != nil {
		return nil, fmt.Errorf("rescore card %s: %w", cardID, err)
	}
	return card, nil
}

// ─── Transitions ─────────────────────────────────────────────────────────────

// TransitionRequest moves a card to To. When ExpectedFrom is set the move
// only happens if the card is still in that status.
type TransitionRequest struct {
	CardID       string
	To           Status
	ExpectedFrom Status
	Actor        string
}

// Transition moves a card through the pipeline.
//
//   - unknown card → *model.NotFoundError
//   - To == current status → success, no history entry, no event; this
//     wins over ExpectedFrom, so a stale ExpectedFrom naming a card already
//     at To is not a conflict
//   - ExpectedFrom set and stale → *ConflictError
//   - move not in the table → *InvalidTransitionError
//
// A legal move appends one history entry, records applicationDate on the
// first arrival in applied, and emits exactly one PipelineEvent.
func (s *Service) Transition(ctx context.Context, req TransitionRequest) (*ApplicationCard, error) {
	if req.CardID == "" {
		return nil, &model.ValidationError{Field: "cardId", Msg: "is required"}
	}
	if req.Actor == "" {
		return nil, &model.ValidationError{Field: "actor", Msg: "is required"}
	}
	if _, err := ParseStatus(string(req.To)); err != nil {
		return nil, &model.ValidationError{Field: "toStatus", Msg: err.Error()}
	}
	if req.ExpectedFrom != "" {
		if _, err := ParseStatus(string(req.ExpectedFrom)); err != nil {
			return nil, &model.ValidationError{Field: "expectedFrom", Msg: err.Error()}
		}
	}

	card, err := s.repo.GetCard(ctx, req.CardID)
	if err != nil {
		return nil, err
	}

	if card.Status == req.To {
		return card, nil
	}
	if req.ExpectedFrom != "" && req.ExpectedFrom != card.Status {
		return nil, &ConflictError{CardID: card.ID, Expected: req.ExpectedFrom, Actual: card.Status}
	}
	if !IsTransitionAllowed(card.Status, req.To) {
		return nil, &InvalidTransitionError{From: card.Status, To: req.To}
	}

	now := s.now()
	upd := StatusUpdate{
		To:    req.To,
		Entry: HistoryEntry{Status: req.To, At: now, Actor: req.Actor},
		At:    now,
	}
	if req.To == StatusApplied && card.ApplicationDate == nil {
		upd.ApplicationDate = &now
	}

	updated, err := s.repo.CompareAndSetStatus(ctx, card.ID, card.Status, upd)
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveTransition(string(req.To))
	s.log.Info("card moved",
		logger.String("card_id", card.ID),
		logger.String("from", string(card.Status)),
		logger.String("to", string(req.To)),
		logger.String("actor", req.Actor),
	)

	s.publish(PipelineEvent{
		CardID:     updated.ID,
		CampaignID: updated.CampaignID,
		UserID:     updated.UserID,
		From:       card.Status,
		To:         req.To,
		At:         now,
		Actor:      req.Actor,
	})
	return updated, nil
}

func (s *Service) publish(ev PipelineEvent) {
	if s.pub == nil {
		return
	}
	ev.ID = uuid.NewString()
	s.pub.Publish(ev)
}

// ─── Card details ────────────────────────────────────────────────────────────

// GetCard returns a single card.
func (s *Service) GetCard(ctx context.Context, id string) (*ApplicationCard, error) {
	return s.repo.GetCard(ctx, id)
}

// ListCards returns cards matching filter, best score first and, on equal
// score, newest posting first.
func (s *Service) ListCards(ctx context.Context, filter CardFilter) ([]ApplicationCard, error) {
	if filter.Status != "" {
		if _, err := ParseStatus(string(filter.Status)); err != nil {
			return nil, &model.ValidationError{Field: "status", Msg: err.Error()}
		}
	}
	cards, err := s.repo.ListCards(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	SortByRank(cards)
	return cards, nil
}

// AddNote sets or replaces the free-text note on a card.
func (s *Service) AddNote(ctx context.Context, id, note string) (*ApplicationCard, error) {
	const maxNoteLen = 10000
	if len(note) > maxNoteLen {
		return nil, &model.ValidationError{Field: "notes", Msg: fmt.Sprintf("must be at most %d bytes", maxNoteLen)}
	}
	return s.repo.SetNotes(ctx, id, note, s.now())
}

// SetImportantDates replaces the deadline and interview date of a card.
func (s *Service) SetImportantDates(ctx context.Context, id string, dates ImportantDates) (*ApplicationCard, error) {
	return s.repo.SetImportantDates(ctx, id, dates, s.now())
}

// AddContact appends a contact to a card.
func (s *Service) AddContact(ctx context.Context, id string, contact Contact) (*ApplicationCard, error) {
	if contact.Name == "" {
		return nil, &model.ValidationError{Field: "contact.name", Msg: "is required"}
	}
	return s.repo.AddContact(ctx, id, contact, s.now())
}

// AttachPrepKit records the artifact produced for an interviewing card.
func (s *Service) AttachPrepKit(ctx context.Context, id, ref string) error {
	return s.repo.SetPrepKitRef(ctx, id, ref, s.now())
}
