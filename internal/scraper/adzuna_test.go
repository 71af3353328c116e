package scraper_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/campaign-service/internal/logger"
	"jobmate/campaign-service/internal/model"
	"jobmate/campaign-service/internal/scraper"
)

func adzunaPage(n, offset int) map[string]any {
	results := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		results = append(results, map[string]any{
			"id":            strconv.Itoa(offset + i),
			"title":         "Senior Go Developer",
			"description":   "Hybrid role, 2 days remote",
			"company":       map[string]string{"display_name": "Acme"},
			"location":      map[string]string{"display_name": "Paris"},
			"salary_min":    55000.0,
			"salary_max":    65000.0,
			"redirect_url":  fmt.Sprintf("https://example.test/%d", offset+i),
			"created":       "2026-02-20T08:00:00Z",
			"contract_time": "full_time",
		})
	}
	return map[string]any{"results": results, "count": n}
}

func newAdzuna(t *testing.T, handler http.HandlerFunc) *scraper.AdzunaSource {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	src := scraper.NewAdzunaSource("id", "key", "fr", logger.NewNop())
	src.BaseURL = srv.URL
	return src
}

func TestAdzuna_PaginatesAndNormalizes(t *testing.T) {
	var calls atomic.Int32
	src := newAdzuna(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "id", r.URL.Query().Get("app_id"))
		assert.Equal(t, "Go developer", r.URL.Query().Get("what"))
		assert.Equal(t, "Paris", r.URL.Query().Get("where"))
		switch {
		case strings.HasSuffix(r.URL.Path, "/fr/search/1"):
			_ = json.NewEncoder(w).Encode(adzunaPage(50, 0))
		case strings.HasSuffix(r.URL.Path, "/fr/search/2"):
			_ = json.NewEncoder(w).Encode(adzunaPage(3, 50))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	postings, err := src.FetchPostings(context.Background(), scraper.Query{
		JobTitles: []string{"Go developer"},
		Locations: []string{"Paris"},
	})
	require.NoError(t, err)
	assert.Len(t, postings, 53)
	assert.Equal(t, int32(2), calls.Load(), "stops after a short page")

	p := postings[0]
	assert.Equal(t, model.PostingKey{Source: "adzuna", SourceID: "0"}, p.Key)
	assert.Equal(t, "Acme", p.Company)
	assert.True(t, p.Remote)
	assert.True(t, p.Hybrid)
	assert.Equal(t, model.JobTypeFullTime, p.JobType)
	assert.Equal(t, model.SenioritySenior, p.Seniority)
	require.NotNil(t, p.Salary)
	assert.Equal(t, 55000, p.Salary.Min)
	assert.Equal(t, time.Date(2026, 2, 20, 8, 0, 0, 0, time.UTC), p.PostedAt)
}

func TestAdzuna_DeduplicatesAcrossQueries(t *testing.T) {
	src := newAdzuna(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(adzunaPage(2, 0))
	})

	postings, err := src.FetchPostings(context.Background(), scraper.Query{
		JobTitles: []string{"Go developer", "Backend engineer"},
	})
	require.NoError(t, err)
	assert.Len(t, postings, 2)
}

func TestAdzuna_ErrorIsExternalService(t *testing.T) {
	src := newAdzuna(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})

	_, err := src.FetchPostings(context.Background(), scraper.Query{JobTitles: []string{"Go"}})
	var ext *model.ExternalServiceError
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, "adzuna", ext.Service)
	assert.Contains(t, err.Error(), "429")
}

func TestAdzuna_MissingCredentialsSkips(t *testing.T) {
	src := scraper.NewAdzunaSource("", "", "fr", logger.NewNop())
	postings, err := src.FetchPostings(context.Background(), scraper.Query{JobTitles: []string{"Go"}})
	require.NoError(t, err)
	assert.Empty(t, postings)
}
