package normalize

import (
	"regexp"
	"strings"
)

// Vocabulary is the ordered list of skills ExtractSkills looks for.
var Vocabulary = []string{
	"React", "Next.js", "Next", "Node.js", "Node", "TypeScript", "JavaScript", "JS",
	"Python", "Django", "FastAPI", "Flask",
	"PostgreSQL", "MySQL", "MongoDB", "Redis", "SQL",
	"AWS", "Azure", "GCP", "Docker", "Kubernetes",
	"GraphQL", "REST API", "API",
	"HTML", "CSS", "Tailwind", "Bootstrap", "SCSS", "Sass",
	"Vue", "Vue.js", "Angular", "Svelte",
	"Express", "NestJS", "Prisma", "Supabase", "Firebase",
	"Git", "GitHub", "GitLab", "CI/CD",
	"TDD", "Testing", "Jest", "Cypress", "Playwright",
	"Figma", "UI/UX", "Design",
	"Stripe", "Payment", "E-commerce",
	"Vercel", "Netlify", "Heroku",
	"Redux", "Zustand", "Context API",
	"Webpack", "Vite", "ESBuild",
}

type skillMatcher struct {
	name    string
	pattern *regexp.Regexp
}

// SkillExtractor matches a vocabulary on word boundaries, case-insensitively.
type SkillExtractor struct {
	matchers []skillMatcher
}

// NewSkillExtractor compiles vocab. Duplicate entries are matched once.
func NewSkillExtractor(vocab []string) *SkillExtractor {
	seen := make(map[string]struct{}, len(vocab))
	matchers := make([]skillMatcher, 0, len(vocab))
	for _, skill := range vocab {
		skill = strings.TrimSpace(skill)
		if skill == "" {
			continue
		}
		if _, dup := seen[skill]; dup {
			continue
		}
		seen[skill] = struct{}{}
		matchers = append(matchers, skillMatcher{
			name:    skill,
			pattern: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(skill) + `\b`),
		})
	}
	return &SkillExtractor{matchers: matchers}
}

var defaultExtractor = NewSkillExtractor(Vocabulary)

// ExtractSkills returns the default vocabulary entries found in text.
func ExtractSkills(text string) []string {
	return defaultExtractor.Extract(text)
}

// Extract returns matched skills in vocabulary order and spelling.
func (e *SkillExtractor) Extract(text string) []string {
	found := []string{}
	if text == "" {
		return found
	}
	for _, m := range e.matchers {
		if m.pattern.MatchString(text) {
			found = append(found, m.name)
		}
	}
	return found
}
