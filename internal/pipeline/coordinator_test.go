package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/crawler"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/notifier"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/storage/memory"
)

type fakeEmbedder struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (f *fakeEmbedder) Model() string { return "test-model" }

// Embed returns [1 0] for everything except texts mentioning "wide", which
// get a three-element vector, and texts listed in fail.
func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	if err, ok := f.fail[text]; ok {
		return nil, err
	}
	if strings.Contains(text, "wide") {
		return []float32{1, 0, 0}, nil
	}
	return []float32{1, 0}, nil
}

func (f *fakeEmbedder) count(text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == text {
			n++
		}
	}
	return n
}

type flakyRecipient struct {
	mu   sync.Mutex
	sent []notifier.Alert
	err  error
}

func (r *flakyRecipient) Channel() string { return "test" }
func (r *flakyRecipient) Target() string  { return "chat" }

func (r *flakyRecipient) Send(_ context.Context, alert notifier.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, alert)
	return nil
}

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Unix(1_700_000_000, 0).UTC() }

type harness struct {
	store    *memory.JobStore
	embedder *fakeEmbedder
	pauses   []time.Duration
	coord    *Coordinator
}

var profile = crawler.Profile{Skills: []string{"React", "Node.js"}, MinBudget: 1000}

func newHarness(t *testing.T, alerter Alerter) *harness {
	t.Helper()
	h := &harness{store: memory.NewJobStore(), embedder: &fakeEmbedder{fail: map[string]error{}}}
	coord, err := New(Config{ItemDelay: 2 * time.Second}, Deps{
		Postings: h.store,
		Results:  h.store,
		Profiles: h.store,
		Embedder: h.embedder,
		Alerter:  alerter,
		Clock:    fixedClock{},
		Pause: func(_ context.Context, d time.Duration) {
			h.pauses = append(h.pauses, d)
		},
	}, zap.NewNop())
	require.NoError(t, err)
	h.coord = coord
	return h
}

func (h *harness) add(t *testing.T, id, description string) {
	t.Helper()
	require.NoError(t, h.store.InsertPosting(context.Background(), crawler.Posting{
		ID:       id,
		SourceID: "~0" + id,
		URL:      "https://www.upwork.com/jobs/~0" + id,
		PostingDetails: crawler.PostingDetails{
			Title:       "Job " + id,
			Description: description,
			Budget:      crawler.FixedBudget(2000),
			Skills:      []string{"React", "Node.js"},
			Client:      crawler.Client{TotalSpend: crawler.Ptr(120_000.0), HireRatePercent: crawler.Ptr(90.0), PaymentVerified: true},
		},
	}))
}

func TestRunScoresAndAlerts(t *testing.T) {
	t.Parallel()

	recipient := &flakyRecipient{}
	h := newHarness(t, notifier.New(65, []notifier.Recipient{recipient}, zap.NewNop()))
	require.NoError(t, h.store.UpsertProfile(context.Background(), profile))
	h.add(t, "1", "<p>React &amp; Node.js dashboard</p>")
	h.add(t, "2", "Another React build")

	result, err := h.coord.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, result.Processed)
	require.Equal(t, 2, result.Alerts)
	require.Empty(t, result.Errors)
	require.Equal(t, []time.Duration{2 * time.Second}, h.pauses, "no pause after the last item")
	require.Equal(t, 1, h.embedder.count("React, Node.js"), "profile embedded once per run")

	view, err := h.store.GetJob(context.Background(), "1")
	require.NoError(t, err)
	require.Equal(t, "React & Node.js dashboard", view.CleanText)
	require.Equal(t, []string{"React", "Node.js", "Node", "JS"}, view.ExtractedSkills)
	require.InDelta(t, 100, view.RelevanceScore, 0.001)
	require.Equal(t, "test-model", view.Metadata.Model)
	require.Equal(t, len("<p>React &amp; Node.js dashboard</p>"), view.Metadata.OriginalDescriptionLength)
	require.Len(t, recipient.sent, 2)
	require.Equal(t, "~01", recipient.sent[0].SourceID)
}

func TestRunSkipsProcessedPostings(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	require.NoError(t, h.store.UpsertProfile(context.Background(), profile))
	h.add(t, "1", "React work")

	first, err := h.coord.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, first.Processed)

	second, err := h.coord.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, second.Processed)
	require.Zero(t, second.Failed)
	require.Equal(t, 1, h.embedder.count("React work"))
}

func TestRunIgnoresPostingsWithoutDescription(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	require.NoError(t, h.store.UpsertProfile(context.Background(), profile))
	h.add(t, "1", "   ")

	result, err := h.coord.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, result.Processed)
	require.Empty(t, h.pauses)
}

func TestNotifierFailureDoesNotFailItem(t *testing.T) {
	t.Parallel()

	recipient := &flakyRecipient{err: errors.New("telegram down")}
	h := newHarness(t, notifier.New(65, []notifier.Recipient{recipient}, zap.NewNop()))
	require.NoError(t, h.store.UpsertProfile(context.Background(), profile))
	h.add(t, "1", "React work")

	result, err := h.coord.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)
	require.Zero(t, result.Alerts)
	require.Zero(t, result.Failed)

	_, err = h.store.GetJob(context.Background(), "1")
	require.NoError(t, err)
}

func TestMissingProfileAbortsRun(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.add(t, "1", "React work")

	_, err := h.coord.Run(context.Background())
	require.ErrorIs(t, err, crawler.ErrProfileMissing)

	require.NoError(t, h.store.UpsertProfile(context.Background(), crawler.Profile{}))
	_, err = h.coord.Run(context.Background())
	require.ErrorIs(t, err, crawler.ErrProfileMissing)
	require.Empty(t, h.embedder.calls)
}

func TestProfileEmbeddingFailureAbortsRun(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	require.NoError(t, h.store.UpsertProfile(context.Background(), profile))
	h.embedder.fail["React, Node.js"] = errors.New("model loading")
	h.add(t, "1", "React work")

	_, err := h.coord.Run(context.Background())
	require.ErrorContains(t, err, "embed profile: model loading")
}

func TestItemFailuresAreIsolated(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	require.NoError(t, h.store.UpsertProfile(context.Background(), profile))
	h.embedder.fail["broken text"] = errors.New("503")
	h.add(t, "1", "broken text")
	h.add(t, "2", "wide vector text")
	h.add(t, "3", "React work")

	result, err := h.coord.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)
	require.Equal(t, 2, result.Failed)
	require.Len(t, result.Errors, 2)
	require.Equal(t, "Failed to process ~01: embed posting: 503", result.Errors[0])
	require.Contains(t, result.Errors[1], "Failed to process ~02: similarity:")
	require.Len(t, h.pauses, 2)

	pending, err := h.store.ListUnprocessed(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, pending, 2, "failed items stay eligible for the next run")
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	require.NoError(t, h.store.UpsertProfile(context.Background(), profile))
	h.add(t, "1", "React work")
	h.add(t, "2", "More React work")

	ctx, cancel := context.WithCancel(context.Background())
	coord, err := New(Config{}, Deps{
		Postings: h.store,
		Results:  h.store,
		Profiles: h.store,
		Embedder: h.embedder,
		Clock:    fixedClock{},
		Pause:    func(context.Context, time.Duration) { cancel() },
	}, nil)
	require.NoError(t, err)

	result, err := coord.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)
	require.Len(t, result.Errors, 1)
	require.Contains(t, result.Errors[0], "processing interrupted")
}

func TestNewValidatesDeps(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, Deps{}, nil)
	require.Error(t, err)
}
