package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/crawler"
)

const (
	minDescriptionLen = 20
	maxSkillLen       = 100

	descriptionSelector = `div[data-test="Description"]`
	hourlyRateMarker    = `[data-cy="clock-timelog"]`
	fixedPriceMarker    = `[data-cy="fixed-price"]`
)

var (
	summaryPrefix    = regexp.MustCompile(`^Summary\s+`)
	dollarPattern    = regexp.MustCompile(`\$(\d+(?:\.\d+)?)`)
	fixedPattern     = regexp.MustCompile(`\$([0-9,]+(?:\.\d{2})?)`)
	connectsPattern  = regexp.MustCompile(`(?i)(\d+)\s+Connects?`)
	spendPattern     = regexp.MustCompile(`\$([0-9,]+(?:\.\d+)?)([KkMm]?)\b`)
	hiresPattern     = regexp.MustCompile(`(?i)(\d+)\s+hires?`)
	jobsPostedRegexp = regexp.MustCompile(`(?i)(\d+)\s+jobs?\s+posted`)
	hireRatePattern  = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)%\s+hire\s+rate`)
)

var titleRules = []Rule[string]{
	{Name: "title.primary-heading", Extract: headingText("h1.m-0")},
	{Name: "title.h4-heading", Extract: headingText("h1.h4")},
	{Name: "title.any-heading", Extract: headingText("h1")},
}

var descriptionRules = []Rule[string]{
	{Name: "description.multiline", Extract: descriptionText(descriptionSelector+" p.multiline-text", false)},
	{Name: "description.paragraphs", Extract: descriptionText(descriptionSelector+" p", false)},
	{Name: "description.section", Extract: descriptionText(descriptionSelector, true)},
}

// skillSources are both collected; visible chips first, then the overflow popover.
var skillSources = []struct {
	name     string
	selector string
	keep     func(string) bool
}{
	{
		name:     "skills.visible-chips",
		selector: ".air3-badge-highlight .air3-line-clamp",
		keep: func(s string) bool {
			return !strings.Contains(s, "+") && !strings.Contains(s, "more")
		},
	},
	{
		name:     "skills.popover-chips",
		selector: ".air3-popover .air3-line-clamp",
		keep:     func(string) bool { return true },
	},
}

var connectsRules = []Rule[int]{
	{Name: "connects.page-text", Extract: func(doc *goquery.Document) (int, bool) {
		return firstInt(connectsPattern, doc.Find("body").Text())
	}},
}

var countryRules = []Rule[string]{
	{Name: "client.country.location-label", Extract: func(doc *goquery.Document) (string, bool) {
		c := collapseSpace(doc.Find(`li[data-qa="client-location"] strong`).First().Text())
		return c, c != ""
	}},
}

var spendRules = []Rule[float64]{
	{Name: "client.spend.label", Extract: func(doc *goquery.Document) (float64, bool) {
		return parseSpend(doc.Find(`[data-qa="client-spend"]`).Text())
	}},
}

var hiresRules = []Rule[int]{
	{Name: "client.hires.label", Extract: func(doc *goquery.Document) (int, bool) {
		return firstInt(hiresPattern, doc.Find(`[data-qa="client-hires"]`).Text())
	}},
	{Name: "client.hires.posting-stats", Extract: func(doc *goquery.Document) (int, bool) {
		return firstInt(jobsPostedRegexp, doc.Find(`[data-qa="client-job-posting-stats"]`).Text())
	}},
	{Name: "client.hires.about-text", Extract: func(doc *goquery.Document) (int, bool) {
		return firstInt(jobsPostedRegexp, aboutClientText(doc))
	}},
}

var hireRateRules = []Rule[float64]{
	{Name: "client.hire-rate.posting-stats", Extract: func(doc *goquery.Document) (float64, bool) {
		return firstFloat(hireRatePattern, doc.Find(`[data-qa="client-job-posting-stats"]`).Text())
	}},
	{Name: "client.hire-rate.about-text", Extract: func(doc *goquery.Document) (float64, bool) {
		return firstFloat(hireRatePattern, aboutClientText(doc))
	}},
}

// verifiedRules are OR-ed: any match marks the client as verified.
var verifiedRules = []Rule[bool]{
	{Name: "client.verified.phrase", Extract: func(doc *goquery.Document) (bool, bool) {
		text := doc.Find("body").Text()
		ok := strings.Contains(text, "Payment verified") || strings.Contains(text, "Payment method verified")
		return ok, ok
	}},
	{Name: "client.verified.marker", Extract: func(doc *goquery.Document) (bool, bool) {
		ok := doc.Find(`.payment-verified, [data-test="payment-verified"]`).Length() > 0
		return ok, ok
	}},
}

// DetailExtractor implements crawler.DetailParser.
type DetailExtractor struct{}

// NewDetailExtractor returns a DetailExtractor.
func NewDetailExtractor() *DetailExtractor {
	return &DetailExtractor{}
}

// ParseDetail extracts posting details. Missing fields stay empty.
func (e *DetailExtractor) ParseDetail(html string) (crawler.PostingDetails, error) {
	details, _, err := e.Extract(html)
	return details, err
}

// Extract is ParseDetail plus a record of which rule produced each field.
func (e *DetailExtractor) Extract(html string) (crawler.PostingDetails, Trace, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return crawler.PostingDetails{}, nil, fmt.Errorf("parse detail html: %w", err)
	}
	trace := Trace{}
	var d crawler.PostingDetails

	d.Title, trace["title"] = firstMatch(doc, titleRules)
	d.Description, trace["description"] = firstMatch(doc, descriptionRules)
	d.Skills, trace["skills"] = extractSkills(doc)
	applyFeatures(doc, &d, trace)
	d.ConnectsRequired, trace["connects"] = optionalMatch(doc, connectsRules)

	d.Client.Country, trace["client.country"] = firstMatch(doc, countryRules)
	d.Client.TotalSpend, trace["client.spend"] = optionalMatch(doc, spendRules)
	d.Client.JobsPosted, trace["client.hires"] = firstMatch(doc, hiresRules)
	d.Client.HireRatePercent, trace["client.hire_rate"] = optionalMatch(doc, hireRateRules)
	for _, r := range verifiedRules {
		if v, ok := r.Extract(doc); ok && v {
			d.Client.PaymentVerified = true
			trace["client.verified"] = r.Name
			break
		}
	}

	for field, rule := range trace {
		if rule == "" {
			delete(trace, field)
		}
	}
	return d, trace, nil
}

func headingText(selector string) func(*goquery.Document) (string, bool) {
	return func(doc *goquery.Document) (string, bool) {
		t := collapseSpace(doc.Find(selector).First().Text())
		return t, t != ""
	}
}

func descriptionText(selector string, stripLabel bool) func(*goquery.Document) (string, bool) {
	return func(doc *goquery.Document) (string, bool) {
		t := strings.TrimSpace(doc.Find(selector).Text())
		if stripLabel {
			t = summaryPrefix.ReplaceAllString(t, "")
		}
		return t, textLen(t) >= minDescriptionLen
	}
}

func extractSkills(doc *goquery.Document) ([]string, string) {
	section := sectionByHeading(doc, "section", "h5", "Skills and Expertise")
	if section.Length() == 0 {
		return nil, ""
	}
	var (
		skills []string
		seen   = make(map[string]struct{})
		used   []string
	)
	for _, src := range skillSources {
		matched := false
		section.Find(src.selector).Each(func(_ int, s *goquery.Selection) {
			skill := strings.TrimSpace(s.Text())
			if n := textLen(skill); n == 0 || n >= maxSkillLen || !src.keep(skill) {
				return
			}
			if _, dup := seen[skill]; dup {
				return
			}
			seen[skill] = struct{}{}
			skills = append(skills, skill)
			matched = true
		})
		if matched {
			used = append(used, src.name)
		}
	}
	return skills, strings.Join(used, "+")
}

// applyFeatures walks the label/value feature list. Later items win, as on the page.
func applyFeatures(doc *goquery.Document, d *crawler.PostingDetails, trace Trace) {
	doc.Find("ul.features li").Each(func(_ int, li *goquery.Selection) {
		label := strings.TrimSpace(li.Find(".description").Text())
		value := strings.TrimSpace(li.Find("strong").First().Text())
		switch label {
		case "Experience Level":
			d.ExperienceLevel = value
			trace["experience_level"] = "features.experience-level"
		case "Duration":
			d.Duration = value
			trace["duration"] = "features.duration"
		case "Project Type":
			d.ProjectType = value
			trace["project_type"] = "features.project-type"
		case "Hourly":
			applyHourly(li, value, d, trace)
		case "Fixed-price", "Fixed Price", "Budget":
			applyFixed(li, d, trace)
		}
	})
}

func applyHourly(li *goquery.Selection, value string, d *crawler.PostingDetails, trace Trace) {
	if li.Find(hourlyRateMarker).Length() > 0 {
		d.JobType = "hourly"
		trace["job_type"] = "features.hourly-rate"
		matches := dollarPattern.FindAllStringSubmatch(li.Text(), -1)
		if len(matches) < 2 {
			return
		}
		lo, okLo := parseAmount(matches[0][1])
		hi, okHi := parseAmount(matches[1][1])
		if okLo && okHi {
			d.Budget = crawler.HourlyBudget(lo, hi)
			trace["budget"] = "features.hourly-rate"
		}
		return
	}
	if strings.Contains(value, "hrs/week") || strings.Contains(value, "Less than") || strings.Contains(value, "More than") {
		d.JobType = "hourly"
		trace["job_type"] = "features.hourly-commitment"
	}
}

func applyFixed(li *goquery.Selection, d *crawler.PostingDetails, trace Trace) {
	d.JobType = "fixed"
	trace["job_type"] = "features.fixed-price"
	if li.Find(fixedPriceMarker).Length() == 0 {
		return
	}
	m := fixedPattern.FindStringSubmatch(li.Find("strong").Text())
	if m == nil {
		return
	}
	if amount, ok := parseAmount(m[1]); ok {
		d.Budget = crawler.FixedBudget(amount)
		trace["budget"] = "features.fixed-price"
	}
}

func aboutClientText(doc *goquery.Document) string {
	h := doc.Find("h5").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(s.Text(), "About the client")
	}).First()
	if h.Length() == 0 {
		return ""
	}
	return h.Parent().Text()
}

// parseSpend reads "$12K total spent" style amounts, applying K/M multipliers.
func parseSpend(text string) (float64, bool) {
	m := spendPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, ok := parseAmount(m[1])
	if !ok {
		return 0, false
	}
	switch strings.ToUpper(m[2]) {
	case "K":
		v *= 1_000
	case "M":
		v *= 1_000_000
	}
	return v, true
}

func firstInt(re *regexp.Regexp, text string) (int, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func firstFloat(re *regexp.Regexp, text string) (float64, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
