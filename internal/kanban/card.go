package kanban

import (
	"time"

	"jobmate/campaign-service/internal/model"
)

// Actors that are not a user.
const (
	ActorScheduler  = "system:scheduler"
	ActorAutomation = "system:automation"
)

// HistoryEntry records one status change.
type HistoryEntry struct {
	Status Status    `json:"status"`
	At     time.Time `json:"at"`
	Actor  string    `json:"actor"`
}

// ScoreEntry records a rescoring that changed the card's score.
type ScoreEntry struct {
	Score int       `json:"score"`
	At    time.Time `json:"at"`
}

// ImportantDates are optional user-maintained milestones.
type ImportantDates struct {
	ApplicationDeadline *time.Time `json:"applicationDeadline,omitempty"`
	InterviewDate       *time.Time `json:"interviewDate,omitempty"`
}

// Contact is a person linked to an application.
type Contact struct {
	Name  string `json:"name"`
	Role  string `json:"role,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// ApplicationCard tracks one campaign's pursuit of one job posting. Exactly
// one card exists per (CampaignID, PostingKey).
type ApplicationCard struct {
	ID              string           `json:"id"`
	CampaignID      string           `json:"campaignId"`
	UserID          string           `json:"userId"`
	PostingKey      model.PostingKey `json:"postingKey"`
	Title           string           `json:"title"`
	Company         string           `json:"company"`
	URL             string           `json:"url"`
	PostedAt        time.Time        `json:"postedAt"`
	Status          Status           `json:"status"`
	Score           int              `json:"score"`
	Matched         []string         `json:"matchedRequirements"`
	Missing         []string         `json:"missingRequirements"`
	History         []HistoryEntry   `json:"history"`
	ScoreHistory    []ScoreEntry     `json:"scoreHistory"`
	ApplicationDate *time.Time       `json:"applicationDate,omitempty"`
	Notes           string           `json:"notes"`
	Dates           ImportantDates   `json:"importantDates"`
	Contacts        []Contact        `json:"contacts"`
	PrepKitRef      string           `json:"prepKitRef,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// HasApplied reports whether the card ever reached applied.
func (c *ApplicationCard) HasApplied() bool { return c.ApplicationDate != nil }

// Clone returns a deep copy so stores never hand out shared slices.
func (c *ApplicationCard) Clone() *ApplicationCard {
	if c == nil {
		return nil
	}
	out := *c
	out.Matched = append([]string(nil), c.Matched...)
	out.Missing = append([]string(nil), c.Missing...)
	out.History = append([]HistoryEntry(nil), c.History...)
	out.ScoreHistory = append([]ScoreEntry(nil), c.ScoreHistory...)
	out.Contacts = append([]Contact(nil), c.Contacts...)
	out.ApplicationDate = cloneTime(c.ApplicationDate)
	out.Dates = ImportantDates{
		ApplicationDeadline: cloneTime(c.Dates.ApplicationDeadline),
		InterviewDate:       cloneTime(c.Dates.InterviewDate),
	}
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// PipelineEvent is an immutable fact emitted on a state transition. From is
// empty for the creation event.
type PipelineEvent struct {
	ID         string    `json:"id"`
	CardID     string    `json:"cardId"`
	CampaignID string    `json:"campaignId"`
	UserID     string    `json:"userId"`
	From       Status    `json:"from,omitempty"`
	To         Status    `json:"to"`
	At         time.Time `json:"at"`
	Actor      string    `json:"actor"`
}
