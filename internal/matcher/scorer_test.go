package matcher_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/campaign-service/internal/matcher"
	"jobmate/campaign-service/internal/model"
)

func remoteCampaign(skills ...string) *model.Campaign {
	return &model.Campaign{
		LocationMode:   model.LocationRemote,
		Skills:         skills,
		MatchThreshold: 80,
	}
}

func TestScore_RemoteCampaignScenario(t *testing.T) {
	s := matcher.NewScorer(nil)
	c := remoteCampaign("React", "TypeScript")

	a := s.Score(c, &model.JobPosting{Remote: true, Requirements: []string{"React", "TypeScript", "Node"}})
	assert.GreaterOrEqual(t, a.Score, c.MatchThreshold)
	assert.Equal(t, 100, a.Score)
	assert.Equal(t, []string{"React", "TypeScript"}, a.MatchedRequirements)
	assert.Equal(t, []string{"Node"}, a.MissingRequirements)

	b := s.Score(c, &model.JobPosting{Requirements: []string{"React", "TypeScript", "Node"}})
	assert.Equal(t, 0, b.Score, "onsite-only posting is gated out regardless of overlap")
}

func TestScore_LocationGate(t *testing.T) {
	s := matcher.NewScorer(nil)
	onsite := &model.JobPosting{}
	remote := &model.JobPosting{Remote: true}
	hybrid := &model.JobPosting{Remote: true, Hybrid: true}

	cases := []struct {
		mode    model.LocationMode
		posting *model.JobPosting
		want    int
	}{
		{model.LocationRemote, onsite, 0},
		{model.LocationRemote, remote, 100},
		{model.LocationRemote, hybrid, 100},
		{model.LocationOnsite, onsite, 100},
		{model.LocationOnsite, remote, 0},
		{model.LocationOnsite, hybrid, 100},
		{model.LocationHybrid, onsite, 100},
		{model.LocationHybrid, remote, 100},
	}
	for _, tc := range cases {
		got := s.Score(&model.Campaign{LocationMode: tc.mode}, tc.posting)
		assert.Equal(t, tc.want, got.Score, "campaign %s vs posting %s", tc.mode, tc.posting.WorkMode())
	}
}

func TestScore_Weights(t *testing.T) {
	s := matcher.NewScorer(nil)

	t.Run("synonym counts half", func(t *testing.T) {
		got := s.Score(remoteCampaign("Golang", "Kubernetes"),
			&model.JobPosting{Remote: true, Requirements: []string{"Go", "Kubernetes"}})
		assert.Equal(t, 75, got.Score)
		assert.Equal(t, []string{"Golang", "Kubernetes"}, got.MatchedRequirements)
		assert.Empty(t, got.MissingRequirements)
	})

	t.Run("partial containment counts half", func(t *testing.T) {
		got := s.Score(remoteCampaign("React"),
			&model.JobPosting{Remote: true, Requirements: []string{"React Native"}})
		assert.Equal(t, 50, got.Score)
	})

	t.Run("no overlap", func(t *testing.T) {
		got := s.Score(remoteCampaign("Rust", "Elixir"),
			&model.JobPosting{Remote: true, Requirements: []string{"PHP"}})
		assert.Equal(t, 0, got.Score)
		assert.Empty(t, got.MatchedRequirements)
		assert.Equal(t, []string{"PHP"}, got.MissingRequirements)
	})

	t.Run("normalization", func(t *testing.T) {
		got := s.Score(remoteCampaign("  c++ ", "C#"),
			&model.JobPosting{Remote: true, Requirements: []string{"C++", "c#"}})
		assert.Equal(t, 100, got.Score)
	})
}

func TestScore_EmptyVocabularyUsesGatesOnly(t *testing.T) {
	s := matcher.NewScorer(nil)

	got := s.Score(remoteCampaign(), &model.JobPosting{Remote: true, Requirements: []string{"Go"}})
	assert.Equal(t, 100, got.Score)

	got = s.Score(remoteCampaign("Go"), &model.JobPosting{Remote: true})
	assert.Equal(t, 100, got.Score)

	got = s.Score(remoteCampaign(), &model.JobPosting{})
	assert.Equal(t, 0, got.Score)
}

func TestScore_RequirementsFromDescription(t *testing.T) {
	s := matcher.NewScorer(nil)
	got := s.Score(remoteCampaign("Go", "PostgreSQL", "Kafka"), &model.JobPosting{
		Remote:      true,
		Description: "You will build services in Go, backed by PostgreSQL.",
	})
	assert.Equal(t, 67, got.Score)
	assert.Equal(t, []string{"Go", "PostgreSQL"}, got.MatchedRequirements)
}

func TestScore_DescriptionWithoutSkillsIsZeroOverlap(t *testing.T) {
	s := matcher.NewScorer(nil)
	c := remoteCampaign("React", "TypeScript", "GraphQL", "AWS")

	none := s.Score(c, &model.JobPosting{Remote: true, Description: "Senior Java and COBOL mainframe engineer"})
	assert.Equal(t, 0, none.Score)
	assert.Empty(t, none.MatchedRequirements)

	one := s.Score(c, &model.JobPosting{Remote: true, Description: "Senior Java engineer, some React"})
	assert.Equal(t, 25, one.Score)
	assert.Greater(t, one.Score, none.Score, "mentioning more skills never lowers the score")

	blank := s.Score(c, &model.JobPosting{Remote: true, Description: "  \n "})
	assert.Equal(t, 100, blank.Score, "no requirements and no description leaves only the gates")
}

func TestScore_SalaryAdjustment(t *testing.T) {
	s := matcher.NewScorer(nil)
	c := &model.Campaign{LocationMode: model.LocationHybrid, Skills: []string{"Go", "SQL"}, Salary: model.SalaryRange{Min: 50000, Max: 70000}}
	half := []string{"Go"}

	cases := []struct {
		name   string
		salary *model.SalaryRange
		want   int
	}{
		{"absent", nil, 50},
		{"unset", &model.SalaryRange{}, 50},
		{"below floor", &model.SalaryRange{Min: 30000, Max: 40000}, 40},
		{"above floor", &model.SalaryRange{Min: 55000, Max: 80000}, 60},
		{"straddles floor", &model.SalaryRange{Min: 40000, Max: 60000}, 50},
		{"mostly above", &model.SalaryRange{Min: 45000, Max: 65000}, 55},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := s.Score(c, &model.JobPosting{Requirements: append(half, "SQL Server"), Salary: tc.salary})
			assert.Equal(t, tc.want+25, got.Score)
		})
	}

	noSalary := &model.Campaign{LocationMode: model.LocationHybrid}
	got := s.Score(noSalary, &model.JobPosting{Salary: &model.SalaryRange{Min: 1, Max: 2}})
	assert.Equal(t, 100, got.Score, "no campaign range means no adjustment")
}

func TestScore_ClampedAndDeterministic(t *testing.T) {
	s := matcher.NewScorer(nil)
	c := &model.Campaign{LocationMode: model.LocationHybrid, Skills: []string{"Go"}, Salary: model.SalaryRange{Min: 10, Max: 20}}
	p := &model.JobPosting{Requirements: []string{"Go", "Docker"}, Salary: &model.SalaryRange{Min: 30, Max: 40}}

	first := s.Score(c, p)
	assert.Equal(t, 100, first.Score)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, s.Score(c, p))
	}
}

func TestLoadSynonyms(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synonyms.yaml")
	require.NoError(t, os.WriteFile(path, []byte("frontend:\n  - front-end\n  - front end\n"), 0o600))

	table, err := matcher.LoadSynonyms(path)
	require.NoError(t, err)
	assert.Equal(t, "frontend", table.Canonical("front end"))
	assert.Equal(t, "go", table.Canonical("golang"), "built-in entries are kept")
	assert.Equal(t, "unknown", table.Canonical("unknown"))

	s := matcher.NewScorer(table)
	got := s.Score(remoteCampaign("Frontend"), &model.JobPosting{Remote: true, Requirements: []string{"Front-End"}})
	assert.Equal(t, 50, got.Score)

	_, err = matcher.LoadSynonyms(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
