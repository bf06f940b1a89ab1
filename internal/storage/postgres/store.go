package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/crawler"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/scoring"
)

const foreignKeyViolation = "23503"

const rawColumns = `r.id, r.upwork_job_id, r.url, r.title, r.description, r.budget, r.job_type,
	r.experience_level, r.duration, r.project_type, r.client, r.skills, r.connects_required,
	r.posted_at, r.fetched_at`

const processedColumns = `p.id, p.clean_text, p.extracted_skills, p.metadata, p.embedding_similarity,
	p.budget_score, p.client_score, p.skills_score, p.relevance_score::float8, p.processed_at`

// sortColumns maps view sort orders to ORDER BY expressions.
var sortColumns = map[string]string{
	crawler.SortRelevance: "p.relevance_score",
	crawler.SortDate:      "p.processed_at",
	crawler.SortBudget:    "p.budget_score",
	crawler.SortClient:    "p.client_score",
}

// Store implements the raw, processed and profile stores on one pool.
type Store struct {
	db DB
}

// NewStore wraps a pool (a *pgxpool.Pool or a pgxmock pool in tests).
func NewStore(db DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{db: db}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}

// InsertPosting inserts a raw posting. A known upwork_job_id yields ErrAlreadyKnown.
func (s *Store) InsertPosting(ctx context.Context, p crawler.Posting) error {
	budget, err := json.Marshal(p.Budget)
	if err != nil {
		return fmt.Errorf("marshal budget: %w", err)
	}
	client, err := json.Marshal(p.Client)
	if err != nil {
		return fmt.Errorf("marshal client: %w", err)
	}
	tag, err := s.db.Exec(ctx, `
INSERT INTO jobs_raw (
	id, upwork_job_id, url, title, description, budget, job_type, experience_level,
	duration, project_type, client, client_country, client_spend, client_hire_rate,
	skills, connects_required, posted_at, fetched_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18
) ON CONFLICT (upwork_job_id) DO NOTHING`,
		p.ID,
		p.SourceID,
		p.URL,
		p.Title,
		p.Description,
		budget,
		p.JobType,
		p.ExperienceLevel,
		p.Duration,
		p.ProjectType,
		client,
		p.Client.Country,
		p.Client.TotalSpend,
		p.Client.HireRatePercent,
		nonNil(p.Skills),
		p.ConnectsRequired,
		p.PostedAt,
		p.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("insert posting: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return crawler.ErrAlreadyKnown
	}
	return nil
}

// DeletePostingBySourceID removes a posting; its processed row goes with it.
func (s *Store) DeletePostingBySourceID(ctx context.Context, sourceID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM jobs_raw WHERE upwork_job_id = $1`, sourceID); err != nil {
		return fmt.Errorf("delete posting: %w", err)
	}
	return nil
}

// GetPosting fetches a raw posting by id.
func (s *Store) GetPosting(ctx context.Context, id string) (crawler.Posting, error) {
	row := s.db.QueryRow(ctx, `SELECT `+rawColumns+` FROM jobs_raw r WHERE r.id = $1`, id)
	p, err := scanPosting(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.Posting{}, crawler.ErrNotFound
		}
		return crawler.Posting{}, fmt.Errorf("get posting: %w", err)
	}
	return p, nil
}

// ListUnprocessed returns postings with a description and no processed row,
// oldest first. A limit <= 0 means no limit.
func (s *Store) ListUnprocessed(ctx context.Context, limit int) ([]crawler.Posting, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+rawColumns+`
FROM jobs_raw r
LEFT JOIN jobs_processed p ON p.id = r.id
WHERE p.id IS NULL AND btrim(r.description) <> ''
ORDER BY r.fetched_at, r.id
LIMIT NULLIF($1::int, 0)`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed postings: %w", err)
	}
	defer rows.Close()

	var out []crawler.Posting
	for rows.Next() {
		p, err := scanPosting(rows)
		if err != nil {
			return nil, fmt.Errorf("scan posting row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list unprocessed postings: %w", err)
	}
	return out, nil
}

// InsertResult stores a processed result. An existing row is never
// overwritten; the conflict is reported as ErrAlreadyKnown.
func (s *Store) InsertResult(ctx context.Context, r crawler.ProcessedResult) error {
	metadata, err := json.Marshal(r.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	var vec any
	if len(r.Embedding) > 0 {
		vec = pgvector.NewVector(r.Embedding)
	}
	tag, err := s.db.Exec(ctx, `
INSERT INTO jobs_processed (
	id, clean_text, extracted_skills, metadata, embedding, embedding_similarity,
	budget_score, client_score, skills_score, relevance_score, processed_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
) ON CONFLICT (id) DO NOTHING`,
		r.ID,
		r.CleanText,
		nonNil(r.ExtractedSkills),
		metadata,
		vec,
		r.EmbeddingSimilarity,
		r.BudgetScore,
		r.ClientScore,
		r.SkillsScore,
		r.RelevanceScore,
		r.ProcessedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return crawler.ErrNotFound
		}
		return fmt.Errorf("insert result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return crawler.ErrAlreadyKnown
	}
	return nil
}

// ListJobs returns the id-joined view filtered and sorted per filter.
func (s *Store) ListJobs(ctx context.Context, filter crawler.ViewFilter) ([]crawler.JobView, error) {
	query, args := buildViewQuery(filter)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []crawler.JobView
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return out, nil
}

// GetJob returns one joined row.
func (s *Store) GetJob(ctx context.Context, id string) (crawler.JobView, error) {
	row := s.db.QueryRow(ctx, `SELECT `+processedColumns+`, `+rawColumns+`
FROM jobs_processed p
JOIN jobs_raw r ON r.id = p.id
WHERE p.id = $1`, id)
	v, err := scanView(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.JobView{}, crawler.ErrNotFound
		}
		return crawler.JobView{}, fmt.Errorf("get job: %w", err)
	}
	return v, nil
}

// Stats summarizes the processed table.
func (s *Store) Stats(ctx context.Context) (crawler.ViewStats, error) {
	var stats crawler.ViewStats
	err := s.db.QueryRow(ctx, `
SELECT count(*)::int,
	count(*) FILTER (WHERE relevance_score >= $1)::int,
	coalesce(round(avg(relevance_score), 2), 0)::float8
FROM jobs_processed`, scoring.HighScoreThreshold).Scan(&stats.Total, &stats.HighScore, &stats.AvgRelevance)
	if err != nil {
		return crawler.ViewStats{}, fmt.Errorf("job stats: %w", err)
	}
	return stats, nil
}

// GetProfile returns the profile singleton or ErrNotFound.
func (s *Store) GetProfile(ctx context.Context) (crawler.Profile, error) {
	var p crawler.Profile
	err := s.db.QueryRow(ctx, `
SELECT skills, min_budget, preferred_countries, updated_at
FROM user_preferences WHERE id = 1`).Scan(&p.Skills, &p.MinBudget, &p.PreferredCountries, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.Profile{}, crawler.ErrNotFound
		}
		return crawler.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// UpsertProfile replaces the profile singleton.
func (s *Store) UpsertProfile(ctx context.Context, p crawler.Profile) error {
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, `
INSERT INTO user_preferences (id, skills, min_budget, preferred_countries, updated_at)
VALUES (1, $1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET
	skills = EXCLUDED.skills,
	min_budget = EXCLUDED.min_budget,
	preferred_countries = EXCLUDED.preferred_countries,
	updated_at = EXCLUDED.updated_at`,
		nonNil(p.Skills), p.MinBudget, nonNil(p.PreferredCountries), updatedAt)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func buildViewQuery(f crawler.ViewFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.MinScore != nil {
		add("p.relevance_score >= $%d", *f.MinScore)
	}
	if f.MaxScore != nil {
		add("p.relevance_score <= $%d", *f.MaxScore)
	}
	if f.JobType != "" {
		add("lower(r.job_type) = lower($%d)", f.JobType)
	}
	if f.ExperienceLevel != "" {
		add("lower(r.experience_level) = lower($%d)", f.ExperienceLevel)
	}

	var b strings.Builder
	b.WriteString("SELECT " + processedColumns + ", " + rawColumns + "\nFROM jobs_processed p\nJOIN jobs_raw r ON r.id = p.id")
	if len(where) > 0 {
		b.WriteString("\nWHERE " + strings.Join(where, " AND "))
	}
	order, ok := sortColumns[f.Sort]
	if !ok {
		order = sortColumns[crawler.SortRelevance]
	}
	b.WriteString("\nORDER BY " + order + " DESC, p.processed_at DESC, p.id")

	limit := f.Limit
	if limit <= 0 {
		limit = crawler.DefaultViewLimit
	}
	args = append(args, limit)
	fmt.Fprintf(&b, "\nLIMIT $%d", len(args))
	return b.String(), args
}

func scanPosting(row pgx.Row) (crawler.Posting, error) {
	var (
		p              crawler.Posting
		budget, client []byte
	)
	if err := row.Scan(postingDest(&p, &budget, &client)...); err != nil {
		return crawler.Posting{}, err
	}
	if err := decodePostingJSON(&p, budget, client); err != nil {
		return crawler.Posting{}, err
	}
	return p, nil
}

func scanView(row pgx.Row) (crawler.JobView, error) {
	var (
		v                        crawler.JobView
		metadata, budget, client []byte
	)
	dest := []any{
		&v.ID,
		&v.CleanText,
		&v.ExtractedSkills,
		&metadata,
		&v.EmbeddingSimilarity,
		&v.BudgetScore,
		&v.ClientScore,
		&v.SkillsScore,
		&v.RelevanceScore,
		&v.ProcessedAt,
	}
	dest = append(dest, postingDest(&v.Posting, &budget, &client)...)
	if err := row.Scan(dest...); err != nil {
		return crawler.JobView{}, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &v.Metadata); err != nil {
			return crawler.JobView{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if err := decodePostingJSON(&v.Posting, budget, client); err != nil {
		return crawler.JobView{}, err
	}
	return v, nil
}

func postingDest(p *crawler.Posting, budget, client *[]byte) []any {
	return []any{
		&p.ID,
		&p.SourceID,
		&p.URL,
		&p.Title,
		&p.Description,
		budget,
		&p.JobType,
		&p.ExperienceLevel,
		&p.Duration,
		&p.ProjectType,
		client,
		&p.Skills,
		&p.ConnectsRequired,
		&p.PostedAt,
		&p.FetchedAt,
	}
}

func decodePostingJSON(p *crawler.Posting, budget, client []byte) error {
	if len(budget) > 0 {
		if err := json.Unmarshal(budget, &p.Budget); err != nil {
			return fmt.Errorf("decode budget: %w", err)
		}
	}
	if len(client) > 0 {
		if err := json.Unmarshal(client, &p.Client); err != nil {
			return fmt.Errorf("decode client: %w", err)
		}
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
