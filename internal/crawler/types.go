package crawler

import (
	"strings"
	"time"
)

// BudgetKind tags which variant a Budget holds.
type BudgetKind string

// Budget variants. The zero value means the posting advertised no budget.
const (
	BudgetAbsent BudgetKind = ""
	BudgetFixed  BudgetKind = "fixed"
	BudgetHourly BudgetKind = "hourly"
)

// Budget is a tagged union: fixed{Amount}, hourly{HourlyMin, HourlyMax} or absent.
type Budget struct {
	Kind      BudgetKind `json:"type"`
	Amount    float64    `json:"amount,omitempty"`
	HourlyMin float64    `json:"hourly_min,omitempty"`
	HourlyMax float64    `json:"hourly_max,omitempty"`
}

// FixedBudget builds a fixed-price budget.
func FixedBudget(amount float64) Budget {
	return Budget{Kind: BudgetFixed, Amount: amount}
}

// HourlyBudget builds an hourly budget range.
func HourlyBudget(minRate, maxRate float64) Budget {
	return Budget{Kind: BudgetHourly, HourlyMin: minRate, HourlyMax: maxRate}
}

// IsAbsent reports whether no budget was extracted.
func (b Budget) IsAbsent() bool {
	return b.Kind == BudgetAbsent
}

// Client is the best-effort metadata about the buyer behind a posting.
// Zero values mean the field was not found on the page; the numeric fields are
// pointers so a real zero stays distinct from a missing value.
type Client struct {
	Name            string   `json:"name,omitempty"`
	Country         string   `json:"country,omitempty"`
	TotalSpend      *float64 `json:"total_spent,omitempty"`
	HireRatePercent *float64 `json:"hire_rate,omitempty"`
	JobsPosted      int      `json:"jobs_posted,omitempty"`
	PaymentVerified bool     `json:"verified"`
}

// IsEmpty reports whether nothing at all was extracted for the client.
func (c Client) IsEmpty() bool {
	return c == Client{}
}

// PostingDetails is what the detail extractor recovers from one posting page.
type PostingDetails struct {
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	Budget           Budget   `json:"budget"`
	JobType          string   `json:"job_type,omitempty"`
	ExperienceLevel  string   `json:"experience_level,omitempty"`
	Duration         string   `json:"duration,omitempty"`
	ProjectType      string   `json:"project_type,omitempty"`
	Skills           []string `json:"skills"`
	ConnectsRequired *int     `json:"connects_required,omitempty"`
	Client           Client   `json:"client"`
}

// Posting is one row of the raw store. An empty Description marks a posting
// that was discovered but not yet detail-scraped.
type Posting struct {
	ID       string `json:"id"`
	SourceID string `json:"upwork_job_id"`
	URL      string `json:"url"`
	PostingDetails
	PostedAt  time.Time `json:"posted_at"`
	FetchedAt time.Time `json:"fetched_at"`
}

// HasDescription reports whether the posting passed the detail-scrape stage.
func (p Posting) HasDescription() bool {
	return strings.TrimSpace(p.Description) != ""
}

// Scores are the outputs of the scoring engine, each on a 0-100 scale.
type Scores struct {
	EmbeddingSimilarity float64 `json:"embedding_similarity"`
	BudgetScore         float64 `json:"budget_score"`
	ClientScore         float64 `json:"client_score"`
	SkillsScore         float64 `json:"skills_score"`
	RelevanceScore      float64 `json:"relevance_score"`
}

// ProcessingMetadata is stored next to every processed result.
type ProcessingMetadata struct {
	OriginalDescriptionLength int       `json:"original_description_length"`
	ProcessingTimestamp       time.Time `json:"processing_timestamp"`
	Model                     string    `json:"model"`
}

// ProcessedResult is one row of the processed store, keyed by Posting.ID.
type ProcessedResult struct {
	ID              string             `json:"id"`
	CleanText       string             `json:"clean_text"`
	ExtractedSkills []string           `json:"extracted_skills"`
	Metadata        ProcessingMetadata `json:"metadata"`
	Embedding       []float32          `json:"-"`
	Scores
	ProcessedAt time.Time `json:"processed_at"`
}

// Profile is the singleton describing what the user is looking for.
type Profile struct {
	Skills             []string  `json:"skills"`
	MinBudget          float64   `json:"min_budget"`
	PreferredCountries []string  `json:"preferred_countries"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// EmbeddingText is the text embedded to represent the profile.
func (p Profile) EmbeddingText() string {
	return strings.Join(p.Skills, ", ")
}

// JobView joins a processed result with its raw posting for read-only consumers.
type JobView struct {
	ProcessedResult
	Posting Posting `json:"jobs_raw"`
}

// Sort orders accepted by ViewFilter.
const (
	SortRelevance = "relevance"
	SortDate      = "date"
	SortBudget    = "budget"
	SortClient    = "client"
)

// ViewFilter narrows the joined jobs view.
type ViewFilter struct {
	MinScore        *float64
	MaxScore        *float64
	JobType         string
	ExperienceLevel string
	Sort            string
	Limit           int
}

// DefaultViewLimit caps the joined view when no limit is given.
const DefaultViewLimit = 100

// ViewStats summarizes the processed store.
type ViewStats struct {
	Total        int     `json:"total"`
	HighScore    int     `json:"high_score"`
	AvgRelevance float64 `json:"avg_relevance"`
}

// FetchRequest describes one page fetch.
type FetchRequest struct {
	URL       string
	SessionID string
	Timeout   time.Duration
}

// FetchResponse carries the rendered page.
type FetchResponse struct {
	URL        string
	StatusCode int
	Body       string
	Duration   time.Duration
}

// CrawlResult summarizes one crawl run.
type CrawlResult struct {
	Query          string   `json:"query,omitempty"`
	Discovered     int      `json:"discovered"`
	Scraped        int      `json:"jobsScraped"`
	Known          int      `json:"known"`
	Errors         []string `json:"errors"`
	BudgetGapRatio float64  `json:"budget_gap_ratio"`
	Success        bool     `json:"success"`
}

// Ptr returns a pointer to v, for the optional numeric fields.
func Ptr[T any](v T) *T {
	return &v
}
