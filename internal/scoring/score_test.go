package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/crawler"
)

func TestScoreEndToEnd(t *testing.T) {
	t.Parallel()

	posting := crawler.Posting{PostingDetails: crawler.PostingDetails{
		Budget: crawler.FixedBudget(10_000),
		Skills: []string{"React", "Node"},
		Client: crawler.Client{TotalSpend: crawler.Ptr(120_000.0), HireRatePercent: crawler.Ptr(95.0), PaymentVerified: true},
	}}
	profile := crawler.Profile{Skills: []string{"react"}, MinBudget: 5_000}

	got := Score(posting, 80, profile)
	require.Equal(t, crawler.Scores{
		EmbeddingSimilarity: 80,
		BudgetScore:         100,
		ClientScore:         100,
		SkillsScore:         60,
		RelevanceScore:      84,
	}, got)
}

func TestScoreIsDeterministic(t *testing.T) {
	t.Parallel()

	posting := crawler.Posting{PostingDetails: crawler.PostingDetails{
		Budget: crawler.HourlyBudget(25, 47.5),
		Skills: []string{"Go", "Kubernetes", "Terraform"},
		Client: crawler.Client{TotalSpend: crawler.Ptr(7_300.0), HireRatePercent: crawler.Ptr(71.0)},
	}}
	profile := crawler.Profile{Skills: []string{"go", "k8s"}, MinBudget: 4_000}

	first := Score(posting, 73.456789, profile)
	for i := 0; i < 50; i++ {
		require.Equal(t, first, Score(posting, 73.456789, profile))
	}
	require.InDelta(t, 73.46, first.EmbeddingSimilarity, 1e-9)
}

func TestScoreRoundsFromUnroundedInputs(t *testing.T) {
	t.Parallel()

	posting := crawler.Posting{PostingDetails: crawler.PostingDetails{
		Skills: []string{"a", "b", "c"},
	}}
	profile := crawler.Profile{Skills: []string{"a"}}

	got := Score(posting, 66.666666, profile)
	// skills = 1/3 * 120 = 40; relevance = 0.6*66.666666 + 0.2*50 + 0.1*50 + 0.1*40
	want := math.Round((0.6*66.666666+10+5+4)*100) / 100
	require.InDelta(t, want, got.RelevanceScore, 1e-9)
	require.InDelta(t, 40, got.SkillsScore, 1e-9)
}

func TestBudgetScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		budget crawler.Budget
		min    float64
		want   float64
	}{
		{name: "absent", budget: crawler.Budget{}, min: 1000, want: 50},
		{name: "zero amount", budget: crawler.FixedBudget(0), min: 1000, want: 50},
		{name: "hourly without max", budget: crawler.HourlyBudget(20, 0), min: 1000, want: 50},
		{name: "double", budget: crawler.FixedBudget(2000), min: 1000, want: 100},
		{name: "one and a half", budget: crawler.FixedBudget(1500), min: 1000, want: 90},
		{name: "meets", budget: crawler.FixedBudget(1000), min: 1000, want: 80},
		{name: "seventy percent", budget: crawler.FixedBudget(700), min: 1000, want: 60},
		{name: "half", budget: crawler.FixedBudget(500), min: 1000, want: 40},
		{name: "forty percent", budget: crawler.FixedBudget(400), min: 1000, want: 20},
		{name: "hourly monthly estimate", budget: crawler.HourlyBudget(30, 50), min: 4000, want: 100},
		{name: "hourly below", budget: crawler.HourlyBudget(10, 20), min: 5000, want: 40},
		{name: "zero minimum", budget: crawler.FixedBudget(1), min: 0, want: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.InDelta(t, tt.want, BudgetScore(tt.budget, tt.min), 1e-9)
		})
	}
}

func TestClientScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		client crawler.Client
		want   float64
	}{
		{name: "unknown client", client: crawler.Client{}, want: 50},
		{name: "small spend", client: crawler.Client{TotalSpend: crawler.Ptr(999.0)}, want: 50},
		{name: "1k", client: crawler.Client{TotalSpend: crawler.Ptr(1_000.0)}, want: 60},
		{name: "5k", client: crawler.Client{TotalSpend: crawler.Ptr(5_000.0)}, want: 65},
		{name: "10k", client: crawler.Client{TotalSpend: crawler.Ptr(10_000.0)}, want: 70},
		{name: "50k", client: crawler.Client{TotalSpend: crawler.Ptr(50_000.0)}, want: 75},
		{name: "hire rate 50", client: crawler.Client{HireRatePercent: crawler.Ptr(50.0)}, want: 55},
		{name: "hire rate 70", client: crawler.Client{HireRatePercent: crawler.Ptr(70.0)}, want: 60},
		{name: "hire rate 80", client: crawler.Client{HireRatePercent: crawler.Ptr(80.0)}, want: 65},
		{name: "verified", client: crawler.Client{PaymentVerified: true}, want: 60},
		{name: "capped", client: crawler.Client{TotalSpend: crawler.Ptr(1e6), HireRatePercent: crawler.Ptr(100.0), PaymentVerified: true}, want: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.InDelta(t, tt.want, ClientScore(tt.client), 1e-9)
		})
	}
}

func TestSkillsScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		posting []string
		profile []string
		want    float64
	}{
		{name: "no posting skills", posting: nil, profile: []string{"go"}, want: 50},
		{name: "no profile skills", posting: []string{"Go"}, profile: nil, want: 50},
		{name: "half overlap boosted", posting: []string{"React", "Node"}, profile: []string{"react"}, want: 60},
		{name: "substring either way", posting: []string{"React Native"}, profile: []string{"react"}, want: 100},
		{name: "profile contains posting", posting: []string{"SQL"}, profile: []string{"PostgreSQL"}, want: 100},
		{name: "none", posting: []string{"PHP", "Laravel"}, profile: []string{"go"}, want: 0},
		{name: "four of five", posting: []string{"Go", "Rust", "Zig", "C", "Java"}, profile: []string{"go", "rust", "zig", "c"}, want: 96},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.InDelta(t, tt.want, SkillsScore(tt.posting, tt.profile), 1e-9)
		})
	}
}
