package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/crawler"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/scoring"
)

// JobStore provides in-memory raw, processed and profile stores for
// development and tests.
type JobStore struct {
	mu       sync.RWMutex
	postings map[string]crawler.Posting
	bySource map[string]string
	order    []string
	results  map[string]crawler.ProcessedResult
	profile  *crawler.Profile
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		postings: make(map[string]crawler.Posting),
		bySource: make(map[string]string),
		results:  make(map[string]crawler.ProcessedResult),
	}
}

// InsertPosting stores a new posting. A known source id yields ErrAlreadyKnown.
func (s *JobStore) InsertPosting(_ context.Context, posting crawler.Posting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.bySource[posting.SourceID]; exists {
		return crawler.ErrAlreadyKnown
	}
	if _, exists := s.postings[posting.ID]; exists {
		return crawler.ErrAlreadyKnown
	}
	posting.Skills = append([]string(nil), posting.Skills...)
	s.postings[posting.ID] = posting
	s.bySource[posting.SourceID] = posting.ID
	s.order = append(s.order, posting.ID)
	return nil
}

// DeletePostingBySourceID removes a posting and its result. Unknown ids are ignored.
func (s *JobStore) DeletePostingBySourceID(_ context.Context, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.bySource[sourceID]
	if !ok {
		return nil
	}
	delete(s.bySource, sourceID)
	delete(s.postings, id)
	delete(s.results, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// GetPosting fetches a posting by id.
func (s *JobStore) GetPosting(_ context.Context, id string) (crawler.Posting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.postings[id]
	if !ok {
		return crawler.Posting{}, crawler.ErrNotFound
	}
	return p, nil
}

// ListUnprocessed returns postings with a description and no result, in
// insertion order.
func (s *JobStore) ListUnprocessed(_ context.Context, limit int) ([]crawler.Posting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []crawler.Posting
	for _, id := range s.order {
		p := s.postings[id]
		if !p.HasDescription() {
			continue
		}
		if _, done := s.results[id]; done {
			continue
		}
		out = append(out, p)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// InsertResult stores a processed result; an existing one is never replaced.
func (s *JobStore) InsertResult(_ context.Context, result crawler.ProcessedResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.postings[result.ID]; !ok {
		return crawler.ErrNotFound
	}
	if _, exists := s.results[result.ID]; exists {
		return crawler.ErrAlreadyKnown
	}
	result.ExtractedSkills = append([]string(nil), result.ExtractedSkills...)
	result.Embedding = append([]float32(nil), result.Embedding...)
	s.results[result.ID] = result
	return nil
}

// ListJobs returns the id-joined view filtered and sorted per filter.
func (s *JobStore) ListJobs(_ context.Context, filter crawler.ViewFilter) ([]crawler.JobView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []crawler.JobView
	for id, result := range s.results {
		posting := s.postings[id]
		if !matches(filter, posting, result) {
			continue
		}
		out = append(out, crawler.JobView{ProcessedResult: result, Posting: posting})
	}
	sortViews(out, filter.Sort)
	limit := filter.Limit
	if limit <= 0 {
		limit = crawler.DefaultViewLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetJob returns one joined row.
func (s *JobStore) GetJob(_ context.Context, id string) (crawler.JobView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[id]
	if !ok {
		return crawler.JobView{}, crawler.ErrNotFound
	}
	return crawler.JobView{ProcessedResult: result, Posting: s.postings[id]}, nil
}

// Stats summarizes processed results.
func (s *JobStore) Stats(_ context.Context) (crawler.ViewStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats crawler.ViewStats
	var sum float64
	for _, r := range s.results {
		stats.Total++
		sum += r.RelevanceScore
		if r.RelevanceScore >= scoring.HighScoreThreshold {
			stats.HighScore++
		}
	}
	if stats.Total > 0 {
		stats.AvgRelevance = math.Round(sum/float64(stats.Total)*100) / 100
	}
	return stats, nil
}

// GetProfile returns the stored profile or ErrNotFound.
func (s *JobStore) GetProfile(_ context.Context) (crawler.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return crawler.Profile{}, crawler.ErrNotFound
	}
	return copyProfile(*s.profile), nil
}

// UpsertProfile replaces the profile singleton.
func (s *JobStore) UpsertProfile(_ context.Context, profile crawler.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := copyProfile(profile)
	s.profile = &p
	return nil
}

func copyProfile(p crawler.Profile) crawler.Profile {
	p.Skills = append([]string(nil), p.Skills...)
	p.PreferredCountries = append([]string(nil), p.PreferredCountries...)
	return p
}

func matches(f crawler.ViewFilter, p crawler.Posting, r crawler.ProcessedResult) bool {
	if f.MinScore != nil && r.RelevanceScore < *f.MinScore {
		return false
	}
	if f.MaxScore != nil && r.RelevanceScore > *f.MaxScore {
		return false
	}
	if f.JobType != "" && !strings.EqualFold(p.JobType, f.JobType) {
		return false
	}
	if f.ExperienceLevel != "" && !strings.EqualFold(p.ExperienceLevel, f.ExperienceLevel) {
		return false
	}
	return true
}

func sortViews(views []crawler.JobView, order string) {
	key := func(v crawler.JobView) float64 {
		switch order {
		case crawler.SortBudget:
			return v.BudgetScore
		case crawler.SortClient:
			return v.ClientScore
		case crawler.SortDate:
			return float64(v.ProcessedAt.UnixNano())
		default:
			return v.RelevanceScore
		}
	}
	sort.SliceStable(views, func(i, j int) bool {
		ki, kj := key(views[i]), key(views[j])
		if ki != kj {
			return ki > kj
		}
		if !views[i].ProcessedAt.Equal(views[j].ProcessedAt) {
			return views[i].ProcessedAt.After(views[j].ProcessedAt)
		}
		return views[i].ID < views[j].ID
	})
}
