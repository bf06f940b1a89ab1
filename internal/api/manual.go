package api

import (
	"time"

	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/crawler"
)

// ManualSourceID identifies the sample posting inserted by POST /v1/jobs/manual.
const ManualSourceID = "manual_test_001"

const manualDescription = `We are a fast-growing SaaS startup looking for an experienced Full-Stack Developer to join our team for a long-term engagement.

Required skills:
- 5+ years of professional experience with React and Next.js
- Strong expertise in TypeScript
- Experience with Node.js backend development
- Proficiency with PostgreSQL and Prisma ORM
- Experience with RESTful APIs and GraphQL
- Familiarity with AWS (EC2, S3, RDS)
- Understanding of modern CI/CD practices and Git workflows

Nice to have:
- Experience with Docker and Kubernetes
- Background in Tailwind CSS and modern design systems
- Experience with automated testing (Jest, Cypress)

Our tech stack: Next.js 14, React 18, TypeScript, Node.js, PostgreSQL, Prisma, AWS, Docker, GitHub Actions.`

// manualPosting builds the sample posting used to exercise processing
// without touching the target site.
func manualPosting(id string, now time.Time) crawler.Posting {
	return crawler.Posting{
		ID:       id,
		SourceID: ManualSourceID,
		URL:      "https://www.upwork.com/jobs/manual-test-job",
		PostingDetails: crawler.PostingDetails{
			Title:           "Senior Full-Stack Developer - Next.js & React (Long-term SaaS Project)",
			Description:     manualDescription,
			Budget:          crawler.HourlyBudget(60, 90),
			JobType:         "Contract to hire",
			ExperienceLevel: "Expert",
			Skills: []string{
				"Next.js", "React", "TypeScript", "Node.js", "PostgreSQL", "Prisma", "AWS",
				"GraphQL", "Docker", "Git", "RESTful API", "Tailwind CSS", "Jest", "CI/CD",
			},
			ConnectsRequired: crawler.Ptr(16),
			Client: crawler.Client{
				Name:            "TechStartup Solutions Inc",
				Country:         "United States",
				TotalSpend:      crawler.Ptr(75000.0),
				HireRatePercent: crawler.Ptr(92.0),
				JobsPosted:      18,
				PaymentVerified: true,
			},
		},
		PostedAt:  now,
		FetchedAt: now,
	}
}
