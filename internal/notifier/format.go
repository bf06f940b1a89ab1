package notifier

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/crawler"
)

// FormatBudget renders a budget for humans.
func FormatBudget(b crawler.Budget) string {
	switch b.Kind {
	case crawler.BudgetFixed:
		return "$" + number(b.Amount) + " (Fixed)"
	case crawler.BudgetHourly:
		return "$" + number(b.HourlyMin) + "-$" + number(b.HourlyMax) + "/hr"
	case crawler.BudgetAbsent:
		return "Not specified"
	default:
		return "Not specified"
	}
}

// FormatHTML renders alert as a Telegram HTML message.
func FormatHTML(alert Alert) string {
	country := alert.Country
	if country == "" {
		country = "Unknown"
	}
	skills := "None"
	if len(alert.Skills) > 0 {
		skills = strings.Join(alert.Skills, ", ")
	}
	var b strings.Builder
	b.WriteString("<b>HIGH-SCORE JOB ALERT</b>\n\n")
	fmt.Fprintf(&b, "<b>Score:</b> %s/100\n", number(alert.Score()))
	fmt.Fprintf(&b, "<b>Title:</b> %s\n", html.EscapeString(alert.Title))
	fmt.Fprintf(&b, "<b>Budget:</b> %s\n", html.EscapeString(FormatBudget(alert.Budget)))
	fmt.Fprintf(&b, "<b>Location:</b> %s\n", html.EscapeString(country))
	fmt.Fprintf(&b, "<b>Skills:</b> %s\n\n", html.EscapeString(skills))
	fmt.Fprintf(&b, `<a href="%s">View on Upwork</a>`, html.EscapeString(alert.URL))
	return b.String()
}

func number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
