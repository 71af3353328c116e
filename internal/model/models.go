// Package model defines shared data structures for the campaign service.
package model

import (
	"fmt"
	"strings"
	"time"
)

// DefaultRunInterval is how often an active campaign is scanned unless the
// campaign overrides it.
const DefaultRunInterval = 4 * time.Hour

// LocationMode is the work-location preference of a campaign.
type LocationMode string

const (
	LocationRemote LocationMode = "remote"
	LocationOnsite LocationMode = "onsite"
	LocationHybrid LocationMode = "hybrid"
)

// JobType is the contract shape of a posting.
type JobType string

const (
	JobTypeFullTime   JobType = "fulltime"
	JobTypePartTime   JobType = "parttime"
	JobTypeContract   JobType = "contract"
	JobTypeInternship JobType = "internship"
)

// Seniority is the experience level a posting targets.
type Seniority string

const (
	SeniorityIntern    Seniority = "intern"
	SeniorityJunior    Seniority = "junior"
	SeniorityMid       Seniority = "mid"
	SenioritySenior    Seniority = "senior"
	SeniorityLead      Seniority = "lead"
	SeniorityPrincipal Seniority = "principal"
)

// CampaignStatus gates whether the scheduler may pick a campaign up.
type CampaignStatus string

const (
	CampaignActive CampaignStatus = "active"
	CampaignPaused CampaignStatus = "paused"
)

// SalaryRange is a yearly range. A zero Max means "not specified".
type SalaryRange struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// IsSet reports whether the range carries usable bounds.
func (r SalaryRange) IsSet() bool { return r.Max > 0 }

// Campaign is a saved, recurring job-search configuration.
type Campaign struct {
	ID             string         `json:"id"`
	UserID         string         `json:"userId"`
	JobTitles      []string       `json:"jobTitles"`
	Locations      []string       `json:"locations,omitempty"`
	LocationMode   LocationMode   `json:"locationMode"`
	JobTypes       []JobType      `json:"jobTypes"`
	Salary         SalaryRange    `json:"salary"`
	Seniority      []Seniority    `json:"seniority,omitempty"`
	Skills         []string       `json:"skills,omitempty"`
	ExcludeTerms   []string       `json:"excludeTerms,omitempty"`
	MatchThreshold int            `json:"matchThreshold"`
	Status         CampaignStatus `json:"status"`
	LastRun        time.Time      `json:"lastRun"`
	Interval       time.Duration  `json:"interval"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	ArchivedAt     *time.Time     `json:"archivedAt,omitempty"`
}

// RunInterval returns the campaign's interval, falling back to the default.
func (c *Campaign) RunInterval() time.Duration {
	if c.Interval <= 0 {
		return DefaultRunInterval
	}
	return c.Interval
}

// IsArchived reports whether the campaign was soft-deleted.
func (c *Campaign) IsArchived() bool { return c.ArchivedAt != nil }

// IsDue reports whether the scheduler may start a tick for the campaign at now.
// Paused and archived campaigns are never due; a campaign that never ran is.
func (c *Campaign) IsDue(now time.Time) bool {
	if c.Status != CampaignActive || c.IsArchived() {
		return false
	}
	if c.LastRun.IsZero() {
		return true
	}
	return !c.LastRun.Add(c.RunInterval()).After(now)
}

// AcceptsJobType reports whether t is in the campaign's job-type set.
// An unknown posting job type ("") is always accepted.
func (c *Campaign) AcceptsJobType(t JobType) bool {
	if t == "" || len(c.JobTypes) == 0 {
		return true
	}
	for _, jt := range c.JobTypes {
		if jt == t {
			return true
		}
	}
	return false
}

// AcceptsSeniority reports whether s passes the campaign's seniority filter.
// An empty filter means "any"; an unknown posting seniority is accepted.
func (c *Campaign) AcceptsSeniority(s Seniority) bool {
	if s == "" || len(c.Seniority) == 0 {
		return true
	}
	for _, want := range c.Seniority {
		if want == s {
			return true
		}
	}
	return false
}

// PostingKey is the identity of a job listing: (source, source-native id).
// Title and company text never participate in identity.
type PostingKey struct {
	Source   string `json:"source"`
	SourceID string `json:"sourceId"`
}

// String renders the key as "source:id".
func (k PostingKey) String() string {
	return k.Source + ":" + k.SourceID
}

// ParsePostingKey is the inverse of PostingKey.String.
func ParsePostingKey(s string) (PostingKey, error) {
	source, id, ok := strings.Cut(s, ":")
	if !ok || source == "" || id == "" {
		return PostingKey{}, fmt.Errorf("invalid posting key %q", s)
	}
	return PostingKey{Source: source, SourceID: id}, nil
}

// JobPosting is a normalised offer fetched from an external job board.
type JobPosting struct {
	Key          PostingKey   `json:"key"`
	Title        string       `json:"title"`
	Company      string       `json:"company"`
	Location     string       `json:"location"`
	Remote       bool         `json:"remote"`
	Hybrid       bool         `json:"hybrid"`
	Salary       *SalaryRange `json:"salary,omitempty"`
	PostedAt     time.Time    `json:"postedAt"`
	Description  string       `json:"description"`
	Requirements []string     `json:"requirements,omitempty"`
	JobType      JobType      `json:"jobType,omitempty"`
	Seniority    Seniority    `json:"seniority,omitempty"`
	URL          string       `json:"url"`
}

// WorkMode collapses the remote/hybrid flags into a LocationMode.
func (p *JobPosting) WorkMode() LocationMode {
	switch {
	case p.Hybrid:
		return LocationHybrid
	case p.Remote:
		return LocationRemote
	default:
		return LocationOnsite
	}
}

// MatchResult is the output of scoring a (Campaign, JobPosting) pair.
type MatchResult struct {
	Score               int      `json:"score"`
	MatchedRequirements []string `json:"matchedRequirements"`
	MissingRequirements []string `json:"missingRequirements"`
}
