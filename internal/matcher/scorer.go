// Package matcher scores job postings against campaign profiles.
package matcher

import (
	"math"
	"strings"
	"unicode"

	"jobmate/campaign-service/internal/model"
)

const (
	exactWeight   = 1.0
	partialWeight = 0.5

	salaryAdjustment = 10
)

// Scorer computes MatchResults. It is pure and safe for concurrent use.
type Scorer struct {
	synonyms Synonyms
}

// NewScorer returns a Scorer using syn, or the built-in table when syn is nil.
func NewScorer(syn Synonyms) *Scorer {
	if syn == nil {
		syn = DefaultSynonyms()
	}
	return &Scorer{synonyms: syn}
}

type term struct {
	raw  string
	norm string
}

// Score rates posting p for campaign c on a 0–100 scale.
//
// Skill overlap gives the base score (exact 1.0, synonym or partial 0.5 per
// campaign skill). Location mode is a hard gate: an incompatible posting
// scores 0. When both sides state a salary range, the score moves by at most
// ±10. Without a requirement list the requirements are the skills named in
// the description, and a description naming none of them is zero overlap.
// The base is 100 only when the campaign lists no skills or the posting
// carries neither requirements nor a description.
func (s *Scorer) Score(c *model.Campaign, p *model.JobPosting) model.MatchResult {
	skills := terms(c.Skills)
	reqs := terms(p.Requirements)
	derived := false
	if len(reqs) == 0 && len(skills) > 0 && normalize(p.Description) != "" {
		reqs = mentionedIn(p.Description, skills)
		derived = true
	}

	result := model.MatchResult{
		MatchedRequirements: []string{},
		MissingRequirements: []string{},
	}

	base := 100.0
	if len(skills) > 0 && (len(reqs) > 0 || derived) {
		covered := make([]bool, len(reqs))
		var total float64
		for _, sk := range skills {
			w := 0.0
			for i, r := range reqs {
				rw := s.weight(sk, r)
				if rw > 0 {
					covered[i] = true
				}
				if rw > w {
					w = rw
				}
			}
			if w > 0 {
				result.MatchedRequirements = append(result.MatchedRequirements, sk.raw)
			}
			total += w
		}
		for i, r := range reqs {
			if !covered[i] {
				result.MissingRequirements = append(result.MissingRequirements, r.raw)
			}
		}
		base = 100 * total / float64(len(skills))
	}

	if !locationCompatible(c.LocationMode, p.WorkMode()) {
		result.Score = 0
		return result
	}

	score := int(math.Round(base)) + salaryDelta(c.Salary, p.Salary)
	result.Score = clamp(score, 0, 100)
	return result
}

func (s *Scorer) weight(skill, req term) float64 {
	switch {
	case skill.norm == req.norm:
		return exactWeight
	case s.synonyms.Canonical(skill.norm) == s.synonyms.Canonical(req.norm):
		return partialWeight
	case containsWords(req.norm, skill.norm) || containsWords(skill.norm, req.norm):
		return partialWeight
	default:
		return 0
	}
}

// locationCompatible applies the work-mode gate. A remote campaign rejects
// onsite-only postings, an onsite campaign rejects remote-only postings, and
// hybrid postings pass both.
func locationCompatible(want, got model.LocationMode) bool {
	switch want {
	case model.LocationRemote:
		return got != model.LocationOnsite
	case model.LocationOnsite:
		return got != model.LocationRemote
	default:
		return true
	}
}

// salaryDelta returns -10..+10 when both ranges are known, else 0.
func salaryDelta(want model.SalaryRange, got *model.SalaryRange) int {
	if !want.IsSet() || got == nil || !got.IsSet() || got.Min > got.Max {
		return 0
	}
	switch {
	case got.Max < want.Min:
		return -salaryAdjustment
	case got.Min >= want.Min:
		return salaryAdjustment
	}
	// partial overlap: share of the posting range at or above the floor
	fraction := float64(got.Max-want.Min) / float64(got.Max-got.Min)
	return int(math.Round(2*salaryAdjustment*fraction - salaryAdjustment))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// terms normalizes and de-duplicates phrases, keeping first occurrences.
func terms(in []string) []term {
	seen := make(map[string]bool, len(in))
	out := make([]term, 0, len(in))
	for _, raw := range in {
		n := normalize(raw)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, term{raw: strings.TrimSpace(raw), norm: n})
	}
	return out
}

// mentionedIn derives requirements from free text: the campaign skills that
// appear in it as whole words.
func mentionedIn(text string, skills []term) []term {
	body := normalize(text)
	if body == "" {
		return nil
	}
	var out []term
	for _, sk := range skills {
		if containsWords(body, sk.norm) {
			out = append(out, sk)
		}
	}
	return out
}

// normalize lowercases, keeps letters, digits and the symbols that carry
// meaning in skill names (+ # .), and collapses everything else to single
// spaces.
func normalize(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+' || r == '#' || r == '.':
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}
	return strings.TrimRight(b.String(), ".")
}

// containsWords reports whether needle occurs in haystack on word boundaries.
func containsWords(haystack, needle string) bool {
	if needle == "" || len(needle) > len(haystack) {
		return false
	}
	for i := 0; ; {
		j := strings.Index(haystack[i:], needle)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(needle)
		if (start == 0 || haystack[start-1] == ' ') && (end == len(haystack) || haystack[end] == ' ' || haystack[end] == '.') {
			return true
		}
		i = start + 1
	}
}
