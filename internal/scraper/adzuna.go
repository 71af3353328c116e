package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"jobmate/campaign-service/internal/logger"
	"jobmate/campaign-service/internal/model"
)

const (
	adzunaBaseURL  = "https://api.adzuna.com/v1/api/jobs"
	adzunaPageSize = 50
	adzunaMaxPages = 3 // max 150 results per (title × location) pair
	httpTimeout    = 15 * time.Second

	// SourceAdzuna is the source name used in posting keys.
	SourceAdzuna = "adzuna"
)

// AdzunaSource fetches job offers from the Adzuna public API.
// If AppID or AppKey is empty, FetchPostings returns (nil, nil) and logs a
// warning, so an unconfigured source never blocks a campaign.
type AdzunaSource struct {
	AppID   string
	AppKey  string
	Country string // "fr", "gb", "us", …
	BaseURL string
	client  *http.Client
	log     logger.Logger
}

// NewAdzunaSource constructs a source with a shared HTTP client.
func NewAdzunaSource(appID, appKey, country string, log logger.Logger) *AdzunaSource {
	return &AdzunaSource{
		AppID:   appID,
		AppKey:  appKey,
		Country: country,
		BaseURL: adzunaBaseURL,
		client:  &http.Client{Timeout: httpTimeout},
		log:     log.With(logger.String("component", "adzuna")),
	}
}

// Name implements Source.
func (a *AdzunaSource) Name() string { return SourceAdzuna }

// adzunaResponse mirrors the top-level Adzuna JSON response.
type adzunaResponse struct {
	Results []adzunaResult `json:"results"`
	Count   int            `json:"count"`
}

// adzunaResult mirrors a single Adzuna job listing.
type adzunaResult struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Company      adzunaCompany  `json:"company"`
	Location     adzunaLocation `json:"location"`
	SalaryMin    float64        `json:"salary_min"`
	SalaryMax    float64        `json:"salary_max"`
	RedirectURL  string         `json:"redirect_url"`
	Created      string         `json:"created"`
	ContractTime string         `json:"contract_time"`
	ContractType string         `json:"contract_type"`
}

type adzunaCompany struct {
	DisplayName string `json:"display_name"`
}

type adzunaLocation struct {
	DisplayName string `json:"display_name"`
}

// FetchPostings searches every (title × location) pair. A failing pair aborts
// the fetch; postings gathered so far are returned with the error.
func (a *AdzunaSource) FetchPostings(ctx context.Context, q Query) ([]model.JobPosting, error) {
	if a.AppID == "" || a.AppKey == "" {
		a.log.Warn("adzuna credentials not set, skipping source")
		return nil, nil
	}

	locations := q.Locations
	if len(locations) == 0 {
		locations = []string{""}
	}

	var postings []model.JobPosting
	for _, title := range q.JobTitles {
		for _, location := range locations {
			batch, err := a.fetchAll(ctx, title, location)
			postings = append(postings, batch...)
			if err != nil {
				return dedupe(postings), &model.ExternalServiceError{
					Service: SourceAdzuna,
					Op:      fmt.Sprintf("search %q in %q", title, location),
					Err:     err,
				}
			}
		}
	}
	return dedupe(postings), nil
}

// fetchAll iterates through pages until no more results or adzunaMaxPages is
// reached.
func (a *AdzunaSource) fetchAll(ctx context.Context, title, location string) ([]model.JobPosting, error) {
	var results []model.JobPosting

	for page := 1; page <= adzunaMaxPages; page++ {
		batch, err := a.fetchPage(ctx, title, location, page)
		if err != nil {
			return results, fmt.Errorf("page %d: %w", page, err)
		}
		if len(batch) == 0 {
			break // No more results
		}
		results = append(results, batch...)
		if len(batch) < adzunaPageSize {
			break // Last page
		}
	}

	return results, nil
}

func (a *AdzunaSource) fetchPage(ctx context.Context, title, location string, page int) ([]model.JobPosting, error) {
	endpoint := fmt.Sprintf("%s/%s/search/%d", a.BaseURL, a.Country, page)

	params := url.Values{}
	params.Set("app_id", a.AppID)
	params.Set("app_key", a.AppKey)
	params.Set("results_per_page", strconv.Itoa(adzunaPageSize))
	params.Set("what", title)
	if location != "" {
		params.Set("where", location)
	}
	params.Set("content-type", "application/json")
	params.Set("sort_by", "date")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http GET: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("adzuna returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var apiResp adzunaResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}

	postings := make([]model.JobPosting, 0, len(apiResp.Results))
	for _, r := range apiResp.Results {
		if r.ID == "" {
			continue
		}
		postings = append(postings, r.toPosting())
	}
	return postings, nil
}

func (r adzunaResult) toPosting() model.JobPosting {
	remote, hybrid := inferWorkMode(r.Title + " " + r.Description + " " + r.Location.DisplayName)
	p := model.JobPosting{
		Key:         model.PostingKey{Source: SourceAdzuna, SourceID: r.ID},
		Title:       r.Title,
		Company:     r.Company.DisplayName,
		Location:    r.Location.DisplayName,
		Remote:      remote,
		Hybrid:      hybrid,
		Description: r.Description,
		JobType:     adzunaJobType(r.ContractTime, r.ContractType),
		Seniority:   InferSeniority(r.Title),
		URL:         r.RedirectURL,
	}
	if r.SalaryMax > 0 {
		p.Salary = &model.SalaryRange{Min: int(r.SalaryMin), Max: int(r.SalaryMax)}
	}
	if t, err := time.Parse(time.RFC3339, r.Created); err == nil {
		p.PostedAt = t.UTC()
	}
	return p
}

// adzunaJobType maps contract_time / contract_type. Unknown returns "".
func adzunaJobType(contractTime, contractType string) model.JobType {
	switch {
	case contractType == "contract":
		return model.JobTypeContract
	case contractTime == "part_time":
		return model.JobTypePartTime
	case contractTime == "full_time":
		return model.JobTypeFullTime
	default:
		return ""
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
