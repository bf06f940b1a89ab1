package scoring

import (
	"math"
	"strings"

	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/crawler"
)

// Relevance weights.
const (
	SimilarityWeight = 0.60
	BudgetWeight     = 0.20
	ClientWeight     = 0.10
	SkillsWeight     = 0.10
)

const (
	neutralScore       = 50.0
	hoursPerMonth      = 160.0
	skillsOverlapBoost = 1.2
)

// HighScoreThreshold marks a relevance score as high in aggregate views.
const HighScoreThreshold = 70.0

// Score combines similarity (0-100) with the budget, client and skills
// heuristics. Every field is rounded to two decimals; relevance is computed
// from the unrounded inputs.
func Score(posting crawler.Posting, similarity float64, profile crawler.Profile) crawler.Scores {
	budget := BudgetScore(posting.Budget, profile.MinBudget)
	client := ClientScore(posting.Client)
	skills := SkillsScore(posting.Skills, profile.Skills)
	return crawler.Scores{
		EmbeddingSimilarity: round2(similarity),
		BudgetScore:         round2(budget),
		ClientScore:         round2(client),
		SkillsScore:         round2(skills),
		RelevanceScore:      round2(Relevance(similarity, budget, client, skills)),
	}
}

// Relevance is the fixed weighted blend of the four sub-scores.
func Relevance(similarity, budget, client, skills float64) float64 {
	return SimilarityWeight*similarity +
		BudgetWeight*budget +
		ClientWeight*client +
		SkillsWeight*skills
}

// EstimateBudget returns the comparable amount of b: the fixed amount, or the
// hourly maximum over a 160 hour month. Absent budgets estimate to 0.
func EstimateBudget(b crawler.Budget) float64 {
	switch b.Kind {
	case crawler.BudgetFixed:
		return b.Amount
	case crawler.BudgetHourly:
		return b.HourlyMax * hoursPerMonth
	case crawler.BudgetAbsent:
		return 0
	default:
		return 0
	}
}

// BudgetScore tiers the estimated budget against the profile minimum.
func BudgetScore(b crawler.Budget, minBudget float64) float64 {
	amount := EstimateBudget(b)
	if amount == 0 {
		return neutralScore
	}
	switch {
	case amount >= minBudget*2:
		return 100
	case amount >= minBudget*1.5:
		return 90
	case amount >= minBudget:
		return 80
	case amount >= minBudget*0.7:
		return 60
	case amount >= minBudget*0.5:
		return 40
	default:
		return 20
	}
}

// ClientScore starts at 50 and adds spend, hire-rate and verification bonuses.
func ClientScore(c crawler.Client) float64 {
	score := neutralScore
	spend, hireRate := orZero(c.TotalSpend), orZero(c.HireRatePercent)
	switch {
	case spend >= 100_000:
		score += 30
	case spend >= 50_000:
		score += 25
	case spend >= 10_000:
		score += 20
	case spend >= 5_000:
		score += 15
	case spend >= 1_000:
		score += 10
	}
	switch {
	case hireRate >= 90:
		score += 20
	case hireRate >= 80:
		score += 15
	case hireRate >= 70:
		score += 10
	case hireRate >= 50:
		score += 5
	}
	if c.PaymentVerified {
		score += 10
	}
	return math.Min(100, score)
}

func orZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// SkillsScore is the share of posting skills that overlap a profile skill
// (substring either way, case-insensitive), boosted by 1.2 and capped at 100.
func SkillsScore(postingSkills, profileSkills []string) float64 {
	if len(postingSkills) == 0 || len(profileSkills) == 0 {
		return neutralScore
	}
	wanted := make([]string, len(profileSkills))
	for i, s := range profileSkills {
		wanted[i] = strings.ToLower(s)
	}
	matches := 0
	for _, s := range postingSkills {
		skill := strings.ToLower(s)
		for _, w := range wanted {
			if strings.Contains(skill, w) || strings.Contains(w, skill) {
				matches++
				break
			}
		}
	}
	pct := float64(matches) / float64(len(postingSkills)) * 100
	return math.Min(100, pct*skillsOverlapBoost)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
