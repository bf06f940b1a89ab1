package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/crawler"
)

type recordingRecipient struct {
	channel string
	err     error

	mu     sync.Mutex
	alerts []Alert
}

func (r *recordingRecipient) Channel() string { return r.channel }
func (r *recordingRecipient) Target() string  { return "test" }

func (r *recordingRecipient) Send(_ context.Context, alert Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert)
	return r.err
}

func scored(score float64) Alert {
	return Alert{SourceID: "01abc", Title: "Go API", Scores: crawler.Scores{RelevanceScore: score}}
}

func TestNotifyThreshold(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		score float64
		want  int
	}{
		{name: "well above", score: 84, want: 1},
		{name: "exactly at threshold", score: 65, want: 1},
		{name: "just below", score: 64.99, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := &recordingRecipient{channel: "test-threshold"}
			n := New(DefaultThreshold, []Recipient{r}, zap.NewNop())
			require.Equal(t, tt.want, n.Notify(context.Background(), scored(tt.score)))
			require.Len(t, r.alerts, tt.want)
		})
	}
}

func TestNotifyIsolatesRecipientFailures(t *testing.T) {
	t.Parallel()

	failing := &recordingRecipient{channel: "test-fanout-broken", err: errors.New("chat not found")}
	healthy := &recordingRecipient{channel: "test-fanout-ok"}
	n := New(70, []Recipient{failing, healthy}, zap.NewNop())

	sent := n.Notify(context.Background(), scored(90))
	require.Equal(t, 1, sent)
	require.Len(t, failing.alerts, 1)
	require.Len(t, healthy.alerts, 1)
}

func TestNotifyWithoutRecipients(t *testing.T) {
	t.Parallel()

	n := New(50, nil, nil)
	require.InDelta(t, 50, n.Threshold(), 0.001)
	require.Zero(t, n.Notify(context.Background(), scored(99)))
}

func TestNewAlertCapsSkills(t *testing.T) {
	t.Parallel()

	posting := crawler.Posting{
		ID:       "id-1",
		SourceID: "01abc",
		URL:      "https://www.upwork.com/jobs/~01abc",
		PostingDetails: crawler.PostingDetails{
			Title:  "Go API",
			Budget: crawler.FixedBudget(900),
			Skills: []string{"Go", "gRPC", "Postgres", "Redis", "Docker", "Kubernetes"},
			Client: crawler.Client{Country: "Canada"},
		},
	}
	at := time.Unix(1_700_000_000, 0)
	alert := NewAlert(posting, crawler.Scores{RelevanceScore: 81.5}, at)
	require.Equal(t, []string{"Go", "gRPC", "Postgres", "Redis", "Docker"}, alert.Skills)
	require.Equal(t, "Canada", alert.Country)
	require.InDelta(t, 81.5, alert.Score(), 0.001)
	require.Equal(t, at, alert.CreatedAt)
	require.Len(t, posting.Skills, 6, "posting skills are not truncated in place")
}

func TestNewThresholdDefaults(t *testing.T) {
	t.Parallel()

	require.InDelta(t, DefaultThreshold, New(-1, nil, nil).Threshold(), 0.001)

	everything := New(0, nil, nil)
	require.InDelta(t, 0, everything.Threshold(), 0.001)
	require.True(t, everything.ShouldAlert(0))
}
