package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobmate/campaign-service/internal/kanban"
	"jobmate/campaign-service/internal/model"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Postgres is a Store backed by a pgx pool. The unique constraint on
// application_cards (campaign_id, source, source_id) guarantees one card per
// posting even when scans race.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// NewPostgres wraps an open pool. The schema must already be applied.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Close closes the pool.
func (p *Postgres) Close() { p.pool.Close() }

// ─── Campaigns ───────────────────────────────────────────────────────────────

const campaignColumns = `id, user_id, job_titles, locations, location_mode, job_types,
	salary_min, salary_max, seniority, skills, exclude_terms, match_threshold,
	status, last_run, interval_seconds, created_at, updated_at, archived_at`

func scanCampaign(row pgx.Row) (*model.Campaign, error) {
	var (
		c        model.Campaign
		jobTypes []string
		levels   []string
		lastRun  *time.Time
		interval int64
	)
	err := row.Scan(
		&c.ID, &c.UserID, &c.JobTitles, &c.Locations, &c.LocationMode, &jobTypes,
		&c.Salary.Min, &c.Salary.Max, &levels, &c.Skills, &c.ExcludeTerms, &c.MatchThreshold,
		&c.Status, &lastRun, &interval, &c.CreatedAt, &c.UpdatedAt, &c.ArchivedAt,
	)
	if err != nil {
		return nil, err
	}
	for _, jt := range jobTypes {
		c.JobTypes = append(c.JobTypes, model.JobType(jt))
	}
	for _, s := range levels {
		c.Seniority = append(c.Seniority, model.Seniority(s))
	}
	if lastRun != nil {
		c.LastRun = *lastRun
	}
	c.Interval = time.Duration(interval) * time.Second
	return &c, nil
}

func jobTypeStrings(in []model.JobType) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}

func seniorityStrings(in []model.Seniority) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}

// nonNil keeps jsonb columns arrays: a nil slice would encode as null, and
// null || '[x]' yields [null, x].
func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (p *Postgres) CreateCampaign(ctx context.Context, c *model.Campaign) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO campaigns (`+campaignColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		c.ID, c.UserID, c.JobTitles, nonNil(c.Locations), string(c.LocationMode), jobTypeStrings(c.JobTypes),
		c.Salary.Min, c.Salary.Max, seniorityStrings(c.Seniority), nonNil(c.Skills), nonNil(c.ExcludeTerms),
		c.MatchThreshold, string(c.Status), nullableTime(c.LastRun), int64(c.RunInterval()/time.Second),
		c.CreatedAt, c.UpdatedAt, c.ArchivedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return &model.ValidationError{Field: "id", Msg: "campaign already exists"}
		}
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

func (p *Postgres) UpdateCampaign(ctx context.Context, c *model.Campaign) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE campaigns SET
			job_titles = $2, locations = $3, location_mode = $4, job_types = $5,
			salary_min = $6, salary_max = $7, seniority = $8, skills = $9,
			exclude_terms = $10, match_threshold = $11, status = $12,
			interval_seconds = $13, updated_at = $14, archived_at = $15
		WHERE id = $1`,
		c.ID, c.JobTitles, nonNil(c.Locations), string(c.LocationMode), jobTypeStrings(c.JobTypes),
		c.Salary.Min, c.Salary.Max, seniorityStrings(c.Seniority), nonNil(c.Skills),
		nonNil(c.ExcludeTerms), c.MatchThreshold, string(c.Status),
		int64(c.RunInterval()/time.Second), c.UpdatedAt, c.ArchivedAt,
	)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return campaignNotFound(c.ID)
	}
	return nil
}

func (p *Postgres) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	c, err := scanCampaign(p.pool.QueryRow(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, campaignNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (p *Postgres) queryCampaigns(ctx context.Context, sql string, args ...any) ([]model.Campaign, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query campaigns: %w", err)
	}
	defer rows.Close()

	var out []model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (p *Postgres) ListCampaigns(ctx context.Context, userID string, includeArchived bool) ([]model.Campaign, error) {
	return p.queryCampaigns(ctx, `
		SELECT `+campaignColumns+` FROM campaigns
		WHERE ($1 = '' OR user_id = $1) AND ($2 OR archived_at IS NULL)
		ORDER BY created_at`, userID, includeArchived)
}

func (p *Postgres) ListDueCampaigns(ctx context.Context, now time.Time) ([]model.Campaign, error) {
	return p.queryCampaigns(ctx, `
		SELECT `+campaignColumns+` FROM campaigns
		WHERE status = 'active' AND archived_at IS NULL
		  AND (last_run IS NULL OR last_run + make_interval(secs => interval_seconds) <= $1)
		ORDER BY last_run NULLS FIRST`, now)
}

func (p *Postgres) MarkRun(ctx context.Context, id string, at time.Time) error {
	tag, err := p.pool.Exec(ctx, `UPDATE campaigns SET last_run = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("mark run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return campaignNotFound(id)
	}
	return nil
}

// ─── Postings ────────────────────────────────────────────────────────────────

const postingColumns = `source, source_id, title, company, location, remote, hybrid,
	salary_min, salary_max, posted_at, description, requirements, job_type,
	seniority, url`

// UpsertPostings writes the batch in one round-trip. A known key keeps its
// identity and gets every other column refreshed.
func (p *Postgres) UpsertPostings(ctx context.Context, postings []model.JobPosting, fetchedAt time.Time) error {
	if len(postings) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, jp := range postings {
		var salaryMin, salaryMax *int
		if jp.Salary != nil {
			salaryMin, salaryMax = &jp.Salary.Min, &jp.Salary.Max
		}
		batch.Queue(`
			INSERT INTO job_postings (`+postingColumns+`, fetched_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			ON CONFLICT (source, source_id) DO UPDATE SET
				title = EXCLUDED.title, company = EXCLUDED.company,
				location = EXCLUDED.location, remote = EXCLUDED.remote, hybrid = EXCLUDED.hybrid,
				salary_min = EXCLUDED.salary_min, salary_max = EXCLUDED.salary_max,
				posted_at = EXCLUDED.posted_at, description = EXCLUDED.description,
				requirements = EXCLUDED.requirements, job_type = EXCLUDED.job_type,
				seniority = EXCLUDED.seniority, url = EXCLUDED.url,
				fetched_at = EXCLUDED.fetched_at`,
			jp.Key.Source, jp.Key.SourceID, jp.Title, jp.Company, jp.Location, jp.Remote, jp.Hybrid,
			salaryMin, salaryMax, nullableTime(jp.PostedAt), jp.Description, nonNil(jp.Requirements),
			string(jp.JobType), string(jp.Seniority), jp.URL, fetchedAt,
		)
	}
	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert postings: %w", err)
	}
	return nil
}

func (p *Postgres) GetPosting(ctx context.Context, key model.PostingKey) (*model.JobPosting, error) {
	var (
		jp                   model.JobPosting
		salaryMin, salaryMax *int
		postedAt             *time.Time
		jobType, seniority   string
	)
	err := p.pool.QueryRow(ctx, `
		SELECT `+postingColumns+` FROM job_postings WHERE source = $1 AND source_id = $2`,
		key.Source, key.SourceID,
	).Scan(&jp.Key.Source, &jp.Key.SourceID, &jp.Title, &jp.Company, &jp.Location, &jp.Remote, &jp.Hybrid,
		&salaryMin, &salaryMax, &postedAt, &jp.Description, &jp.Requirements, &jobType, &seniority, &jp.URL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, postingNotFound(key)
	}
	if err != nil {
		return nil, fmt.Errorf("get posting: %w", err)
	}
	if salaryMin != nil && salaryMax != nil {
		jp.Salary = &model.SalaryRange{Min: *salaryMin, Max: *salaryMax}
	}
	if postedAt != nil {
		jp.PostedAt = postedAt.UTC()
	}
	jp.JobType = model.JobType(jobType)
	jp.Seniority = model.Seniority(seniority)
	return &jp, nil
}

// ─── Dedup ───────────────────────────────────────────────────────────────────

func (p *Postgres) Seen(ctx context.Context, campaignID string, key model.PostingKey) (bool, error) {
	var seen bool
	err := p.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM seen_postings WHERE campaign_id = $1 AND source = $2 AND source_id = $3
		)`, campaignID, key.Source, key.SourceID).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("seen lookup: %w", err)
	}
	return seen, nil
}

func (p *Postgres) MarkSeen(ctx context.Context, campaignID string, key model.PostingKey) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO seen_postings (campaign_id, source, source_id)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`, campaignID, key.Source, key.SourceID)
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

func (p *Postgres) ExistingCard(ctx context.Context, campaignID string, key model.PostingKey) (*kanban.ApplicationCard, bool, error) {
	card, err := scanCard(p.pool.QueryRow(ctx, `
		SELECT `+cardColumns+` FROM application_cards
		WHERE campaign_id = $1 AND source = $2 AND source_id = $3`,
		campaignID, key.Source, key.SourceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("existing card: %w", err)
	}
	return card, true, nil
}

// ─── Cards ───────────────────────────────────────────────────────────────────

const cardColumns = `id, campaign_id, user_id, source, source_id, title, company, url,
	posted_at, status, score, matched, missing, history, score_history,
	application_date, notes, deadline, interview_date, contacts, prep_kit_ref,
	created_at, updated_at`

func scanCard(row pgx.Row) (*kanban.ApplicationCard, error) {
	var (
		c                                         kanban.ApplicationCard
		postedAt                                  *time.Time
		matched, missing, history, scores, people []byte
	)
	err := row.Scan(
		&c.ID, &c.CampaignID, &c.UserID, &c.PostingKey.Source, &c.PostingKey.SourceID,
		&c.Title, &c.Company, &c.URL, &postedAt, &c.Status, &c.Score,
		&matched, &missing, &history, &scores,
		&c.ApplicationDate, &c.Notes, &c.Dates.ApplicationDeadline, &c.Dates.InterviewDate,
		&people, &c.PrepKitRef, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if postedAt != nil {
		c.PostedAt = *postedAt
	}
	for _, f := range []struct {
		raw []byte
		dst any
	}{
		{matched, &c.Matched},
		{missing, &c.Missing},
		{history, &c.History},
		{scores, &c.ScoreHistory},
		{people, &c.Contacts},
	} {
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("decode card %s: %w", c.ID, err)
		}
	}
	return &c, nil
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// Only plain structs and slices are encoded here.
		panic(err)
	}
	return string(b)
}

func (p *Postgres) GetCard(ctx context.Context, id string) (*kanban.ApplicationCard, error) {
	c, err := scanCard(p.pool.QueryRow(ctx, `SELECT `+cardColumns+` FROM application_cards WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cardNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get card: %w", err)
	}
	return c, nil
}

func (p *Postgres) InsertCard(ctx context.Context, card *kanban.ApplicationCard) (*kanban.ApplicationCard, bool, error) {
	stored, err := scanCard(p.pool.QueryRow(ctx, `
		INSERT INTO application_cards (`+cardColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		        $16, $17, $18, $19, $20, $21, $22, $23)
		ON CONFLICT (campaign_id, source, source_id) DO NOTHING
		RETURNING `+cardColumns,
		card.ID, card.CampaignID, card.UserID, card.PostingKey.Source, card.PostingKey.SourceID,
		card.Title, card.Company, card.URL, nullableTime(card.PostedAt), string(card.Status), card.Score,
		mustJSON(nonNil(card.Matched)), mustJSON(nonNil(card.Missing)),
		mustJSON(nonNil(card.History)), mustJSON(nonNil(card.ScoreHistory)),
		card.ApplicationDate, card.Notes, card.Dates.ApplicationDeadline, card.Dates.InterviewDate,
		mustJSON(nonNil(card.Contacts)), card.PrepKitRef, card.CreatedAt, card.UpdatedAt,
	))
	if err == nil {
		return stored, true, nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return nil, false, campaignNotFound(card.CampaignID)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("insert card: %w", err)
	}

	// The constraint fired: another scan created the card first.
	existing, found, err := p.ExistingCard(ctx, card.CampaignID, card.PostingKey)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, fmt.Errorf("insert card: conflicting row for %s vanished", card.PostingKey)
	}
	return existing, false, nil
}

func (p *Postgres) CompareAndSetStatus(ctx context.Context, id string, expected kanban.Status, upd kanban.StatusUpdate) (*kanban.ApplicationCard, error) {
	card, err := scanCard(p.pool.QueryRow(ctx, `
		UPDATE application_cards SET
			status = $3,
			history = history || $4::jsonb,
			application_date = COALESCE(application_date, $5),
			updated_at = $6
		WHERE id = $1 AND status = $2
		RETURNING `+cardColumns,
		id, string(expected), string(upd.To), mustJSON([]kanban.HistoryEntry{upd.Entry}),
		upd.ApplicationDate, upd.At,
	))
	if err == nil {
		return card, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("transition card: %w", err)
	}

	var actual kanban.Status
	err = p.pool.QueryRow(ctx, `SELECT status FROM application_cards WHERE id = $1`, id).Scan(&actual)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cardNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("transition card: %w", err)
	}
	return nil, &kanban.ConflictError{CardID: id, Expected: expected, Actual: actual}
}

// updateCard runs a single-row UPDATE returning the card.
func (p *Postgres) updateCard(ctx context.Context, id, set string, args ...any) (*kanban.ApplicationCard, error) {
	card, err := scanCard(p.pool.QueryRow(ctx,
		`UPDATE application_cards SET `+set+` WHERE id = $1 RETURNING `+cardColumns,
		append([]any{id}, args...)...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cardNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("update card: %w", err)
	}
	return card, nil
}

func (p *Postgres) UpdateScore(ctx context.Context, id string, result model.MatchResult, at time.Time) (*kanban.ApplicationCard, error) {
	return p.updateCard(ctx, id, `
		score_history = CASE WHEN score <> $2 THEN score_history || $5::jsonb ELSE score_history END,
		score = $2, matched = $3, missing = $4, updated_at = $6`,
		result.Score,
		mustJSON(nonNil(result.MatchedRequirements)), mustJSON(nonNil(result.MissingRequirements)),
		mustJSON([]kanban.ScoreEntry{{Score: result.Score, At: at}}), at,
	)
}

func (p *Postgres) SetNotes(ctx context.Context, id, notes string, at time.Time) (*kanban.ApplicationCard, error) {
	return p.updateCard(ctx, id, `notes = $2, updated_at = $3`, notes, at)
}

func (p *Postgres) SetImportantDates(ctx context.Context, id string, dates kanban.ImportantDates, at time.Time) (*kanban.ApplicationCard, error) {
	return p.updateCard(ctx, id, `deadline = $2, interview_date = $3, updated_at = $4`,
		dates.ApplicationDeadline, dates.InterviewDate, at)
}

func (p *Postgres) AddContact(ctx context.Context, id string, contact kanban.Contact, at time.Time) (*kanban.ApplicationCard, error) {
	return p.updateCard(ctx, id, `contacts = contacts || $2::jsonb, updated_at = $3`,
		mustJSON([]kanban.Contact{contact}), at)
}

func (p *Postgres) SetPrepKitRef(ctx context.Context, id, ref string, at time.Time) error {
	_, err := p.updateCard(ctx, id, `prep_kit_ref = $2, updated_at = $3`, ref, at)
	return err
}

func (p *Postgres) ListCards(ctx context.Context, f kanban.CardFilter) ([]kanban.ApplicationCard, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+cardColumns+` FROM application_cards
		WHERE ($1 = '' OR user_id = $1)
		  AND ($2 = '' OR campaign_id::text = $2)
		  AND ($3 = '' OR status = $3)
		ORDER BY score DESC, posted_at DESC NULLS LAST`,
		f.UserID, f.CampaignID, string(f.Status))
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	out := make([]kanban.ApplicationCard, 0)
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
