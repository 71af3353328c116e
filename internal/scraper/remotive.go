package scraper

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"jobmate/campaign-service/internal/model"
)

const (
	// SourceRemotive is the source name used in posting keys.
	SourceRemotive = "remotive"

	remotiveDefaultBaseURL = "https://remotive.com"
	remotiveLimit          = 100
	remotiveDateLayout     = "2006-01-02T15:04:05"
)

// RemotiveSource queries the Remotive remote-jobs API. Every posting it
// returns is remote.
type RemotiveSource struct {
	client *resty.Client
}

// NewRemotiveSource builds a source against baseURL (the public API when empty).
func NewRemotiveSource(baseURL string) *RemotiveSource {
	if baseURL == "" {
		baseURL = remotiveDefaultBaseURL
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(httpTimeout).
		SetHeader("Accept", "application/json")
	return &RemotiveSource{client: client}
}

// Name implements Source.
func (r *RemotiveSource) Name() string { return SourceRemotive }

// FetchPostings runs one search per job title. Onsite-only campaigns are
// skipped: nothing here could pass their location gate.
func (r *RemotiveSource) FetchPostings(ctx context.Context, q Query) ([]model.JobPosting, error) {
	if q.LocationMode == model.LocationOnsite {
		return nil, nil
	}

	var postings []model.JobPosting
	for _, title := range q.JobTitles {
		batch, err := r.search(ctx, title)
		postings = append(postings, batch...)
		if err != nil {
			return dedupe(postings), &model.ExternalServiceError{
				Service: SourceRemotive,
				Op:      fmt.Sprintf("search %q", title),
				Err:     err,
			}
		}
	}
	return dedupe(postings), nil
}

func (r *RemotiveSource) search(ctx context.Context, title string) ([]model.JobPosting, error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"search": title,
			"limit":  strconv.Itoa(remotiveLimit),
		}).
		Get("/api/remote-jobs")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("remotive returned %d: %s", resp.StatusCode(), truncate(resp.String(), 200))
	}

	body := resp.Body()
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("remotive returned invalid JSON")
	}

	jobs := gjson.GetBytes(body, "jobs").Array()
	postings := make([]model.JobPosting, 0, len(jobs))
	for _, job := range jobs {
		id := job.Get("id").String()
		if id == "" {
			continue
		}
		postings = append(postings, remotivePosting(id, job))
	}
	return postings, nil
}

func remotivePosting(id string, job gjson.Result) model.JobPosting {
	title := job.Get("title").String()
	description := stripTags(job.Get("description").String())
	p := model.JobPosting{
		Key:         model.PostingKey{Source: SourceRemotive, SourceID: id},
		Title:       title,
		Company:     job.Get("company_name").String(),
		Location:    job.Get("candidate_required_location").String(),
		Remote:      true,
		Description: description,
		JobType:     remotiveJobType(job.Get("job_type").String()),
		Seniority:   InferSeniority(title),
		URL:         job.Get("url").String(),
		Salary:      ParseSalary(job.Get("salary").String()),
	}
	for _, tag := range job.Get("tags").Array() {
		if s := strings.TrimSpace(tag.String()); s != "" {
			p.Requirements = append(p.Requirements, s)
		}
	}
	if t, err := time.Parse(remotiveDateLayout, job.Get("publication_date").String()); err == nil {
		p.PostedAt = t.UTC()
	}
	return p
}

func remotiveJobType(s string) model.JobType {
	switch s {
	case "full_time":
		return model.JobTypeFullTime
	case "part_time":
		return model.JobTypePartTime
	case "contract", "freelance":
		return model.JobTypeContract
	case "internship":
		return model.JobTypeInternship
	default:
		return ""
	}
}

var (
	tagPattern    = regexp.MustCompile(`<[^>]*>`)
	amountPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(k)?`)
)

func stripTags(html string) string {
	return strings.Join(strings.Fields(tagPattern.ReplaceAllString(html, " ")), " ")
}

// ParseSalary reads free-text ranges such as "$50k - $70k" or
// "60,000-80,000 EUR". It returns nil for anything that does not look like a
// yearly amount.
func ParseSalary(text string) *model.SalaryRange {
	t := strings.ToLower(strings.ReplaceAll(text, ",", ""))
	matches := amountPattern.FindAllStringSubmatch(t, 2)
	if len(matches) == 0 {
		return nil
	}
	amounts := make([]int, 0, 2)
	for _, m := range matches {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return nil
		}
		if m[2] == "k" {
			v *= 1000
		}
		amounts = append(amounts, int(v))
	}
	r := &model.SalaryRange{Min: amounts[0], Max: amounts[0]}
	if len(amounts) == 2 {
		r.Max = amounts[1]
	}
	if r.Min > r.Max {
		r.Min, r.Max = r.Max, r.Min
	}
	if r.Min < 1000 {
		return nil
	}
	return r
}
