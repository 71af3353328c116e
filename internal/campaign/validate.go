package campaign

import (
	"fmt"
	"strings"
	"time"

	"jobmate/campaign-service/internal/model"
)

// Limits enforced on every create and edit.
const (
	MaxJobTitles    = 5
	MaxSkills       = 50
	MaxExcludeTerms = 50
	MinThreshold    = 50
	MaxThreshold    = 95
	MinInterval     = 15 * time.Minute
)

var (
	locationModes = map[model.LocationMode]bool{
		model.LocationRemote: true,
		model.LocationOnsite: true,
		model.LocationHybrid: true,
	}
	jobTypes = map[model.JobType]bool{
		model.JobTypeFullTime:   true,
		model.JobTypePartTime:   true,
		model.JobTypeContract:   true,
		model.JobTypeInternship: true,
	}
	seniorities = map[model.Seniority]bool{
		model.SeniorityIntern:    true,
		model.SeniorityJunior:    true,
		model.SeniorityMid:       true,
		model.SenioritySenior:    true,
		model.SeniorityLead:      true,
		model.SeniorityPrincipal: true,
	}
)

// Spec is the user-editable part of a campaign.
type Spec struct {
	JobTitles       []string           `json:"jobTitles"`
	Locations       []string           `json:"locations"`
	LocationMode    model.LocationMode `json:"locationMode"`
	JobTypes        []model.JobType    `json:"jobTypes"`
	Salary          model.SalaryRange  `json:"salary"`
	Seniority       []model.Seniority  `json:"seniority"`
	Skills          []string           `json:"skills"`
	ExcludeTerms    []string           `json:"excludeTerms"`
	MatchThreshold  int                `json:"matchThreshold"`
	IntervalMinutes int                `json:"intervalMinutes"`
}

func invalid(field, format string, args ...any) error {
	return &model.ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// normalize validates s and returns a cleaned copy. defaultInterval is used
// when IntervalMinutes is zero.
func (s Spec) normalize(defaultInterval time.Duration) (Spec, time.Duration, error) {
	out := s

	for _, t := range s.JobTitles {
		if strings.TrimSpace(t) == "" {
			return Spec{}, 0, invalid("jobTitles", "job titles must not be blank")
		}
	}
	out.JobTitles = cleanList(s.JobTitles)
	if len(out.JobTitles) == 0 {
		return Spec{}, 0, invalid("jobTitles", "at least one job title is required")
	}
	if len(out.JobTitles) > MaxJobTitles {
		return Spec{}, 0, invalid("jobTitles", "at most %d job titles are allowed, got %d", MaxJobTitles, len(out.JobTitles))
	}

	out.Locations = cleanList(s.Locations)

	if !locationModes[s.LocationMode] {
		return Spec{}, 0, invalid("locationMode", "must be remote, onsite or hybrid, got %q", s.LocationMode)
	}

	if len(s.JobTypes) == 0 {
		return Spec{}, 0, invalid("jobTypes", "at least one job type is required")
	}
	out.JobTypes = nil
	seenType := make(map[model.JobType]bool, len(s.JobTypes))
	for _, jt := range s.JobTypes {
		if !jobTypes[jt] {
			return Spec{}, 0, invalid("jobTypes", "unknown job type %q", jt)
		}
		if !seenType[jt] {
			seenType[jt] = true
			out.JobTypes = append(out.JobTypes, jt)
		}
	}

	if s.Salary.Min < 0 || s.Salary.Max < 0 {
		return Spec{}, 0, invalid("salary", "bounds must not be negative")
	}
	if s.Salary.Min > s.Salary.Max {
		return Spec{}, 0, invalid("salary", "min %d is greater than max %d", s.Salary.Min, s.Salary.Max)
	}

	out.Seniority = nil
	seenLevel := make(map[model.Seniority]bool, len(s.Seniority))
	for _, lvl := range s.Seniority {
		if !seniorities[lvl] {
			return Spec{}, 0, invalid("seniority", "unknown seniority %q", lvl)
		}
		if !seenLevel[lvl] {
			seenLevel[lvl] = true
			out.Seniority = append(out.Seniority, lvl)
		}
	}

	out.Skills = cleanList(s.Skills)
	if len(out.Skills) > MaxSkills {
		return Spec{}, 0, invalid("skills", "at most %d skills are allowed, got %d", MaxSkills, len(out.Skills))
	}
	out.ExcludeTerms = cleanList(s.ExcludeTerms)
	if len(out.ExcludeTerms) > MaxExcludeTerms {
		return Spec{}, 0, invalid("excludeTerms", "at most %d exclusion terms are allowed, got %d", MaxExcludeTerms, len(out.ExcludeTerms))
	}

	if s.MatchThreshold < MinThreshold || s.MatchThreshold > MaxThreshold {
		return Spec{}, 0, invalid("matchThreshold", "must be between %d and %d, got %d", MinThreshold, MaxThreshold, s.MatchThreshold)
	}

	interval := defaultInterval
	if s.IntervalMinutes != 0 {
		interval = time.Duration(s.IntervalMinutes) * time.Minute
		if interval < MinInterval {
			return Spec{}, 0, invalid("intervalMinutes", "must be at least %d, got %d", int(MinInterval/time.Minute), s.IntervalMinutes)
		}
	}
	return out, interval, nil
}

// cleanList trims entries, drops blanks and removes case-insensitive
// duplicates, keeping the first spelling.
func cleanList(in []string) []string {
	var out []string
	seen := make(map[string]bool, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		k := strings.ToLower(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out
}
