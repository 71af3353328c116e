package scraper

import (
	"regexp"
	"strings"

	"jobmate/campaign-service/internal/model"
)

// ContainsRedFlag returns true if any red flag term appears (case-insensitive)
// anywhere in the combined title + company + description text.
func ContainsRedFlag(title, company, description string, redFlags []string) bool {
	if len(redFlags) == 0 {
		return false
	}
	combined := strings.ToLower(title + " " + company + " " + description)
	for _, flag := range redFlags {
		flag = strings.TrimSpace(flag)
		if flag == "" {
			continue
		}
		if strings.Contains(combined, strings.ToLower(flag)) {
			return true
		}
	}
	return false
}

// Rejection says why a posting was dropped before scoring.
type Rejection string

const (
	Accepted          Rejection = ""
	RejectedRedFlag   Rejection = "red_flag"
	RejectedJobType   Rejection = "job_type"
	RejectedSeniority Rejection = "seniority"
)

// Eligible applies the campaign's hard filters. Unknown posting attributes
// pass: only a known job type or seniority outside the campaign's set drops
// the posting.
func Eligible(c *model.Campaign, p *model.JobPosting) Rejection {
	if ContainsRedFlag(p.Title, p.Company, p.Description, c.ExcludeTerms) {
		return RejectedRedFlag
	}
	if !c.AcceptsJobType(p.JobType) {
		return RejectedJobType
	}
	if !c.AcceptsSeniority(p.Seniority) {
		return RejectedSeniority
	}
	return Accepted
}

var seniorityPatterns = []struct {
	level model.Seniority
	re    *regexp.Regexp
}{
	{model.SeniorityIntern, regexp.MustCompile(`\b(intern|internship|stagiaire|stage|alternance|apprenti)\b`)},
	{model.SeniorityPrincipal, regexp.MustCompile(`\b(principal|staff|distinguished)\b`)},
	{model.SeniorityLead, regexp.MustCompile(`\b(lead|head of|tech lead|manager)\b`)},
	{model.SenioritySenior, regexp.MustCompile(`\b(senior|sr|confirm\w*)\b`)},
	{model.SeniorityJunior, regexp.MustCompile(`\b(junior|jr|graduate|entry[- ]level|d[ée]butant)\b`)},
	{model.SeniorityMid, regexp.MustCompile(`\b(mid[- ]level|intermediate|medior)\b`)},
}

// InferSeniority guesses the level from a job title. It returns "" when the
// title says nothing, which every seniority filter accepts.
func InferSeniority(title string) model.Seniority {
	t := strings.ToLower(title)
	for _, p := range seniorityPatterns {
		if p.re.MatchString(t) {
			return p.level
		}
	}
	return ""
}

var (
	remotePattern = regexp.MustCompile(`\b(remote|full[- ]remote|télétravail|teletravail|work from home|wfh)\b`)
	hybridPattern = regexp.MustCompile(`\b(hybrid|hybride)\b`)
)

// inferWorkMode reads remote and hybrid hints from free text.
func inferWorkMode(text string) (remote, hybrid bool) {
	t := strings.ToLower(text)
	hybrid = hybridPattern.MatchString(t)
	remote = hybrid || remotePattern.MatchString(t)
	return remote, hybrid
}
