// Package notifier formats high-score alerts and fans them out to recipients.
// Delivery is best-effort: failures are logged and counted, never returned.
package notifier

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/crawler"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/metrics"
)

// DefaultThreshold is the relevance score at or above which alerts fire.
const DefaultThreshold = 65.0

const maxAlertSkills = 5

// Alert is the payload delivered to recipients.
type Alert struct {
	PostingID string         `json:"id"`
	SourceID  string         `json:"upwork_job_id"`
	Title     string         `json:"title"`
	URL       string         `json:"url"`
	Budget    crawler.Budget `json:"budget"`
	Country   string         `json:"client_country,omitempty"`
	Skills    []string       `json:"skills"`
	Scores    crawler.Scores `json:"scores"`
	CreatedAt time.Time      `json:"created_at"`
}

// Score is the relevance score that triggered the alert.
func (a Alert) Score() float64 {
	return a.Scores.RelevanceScore
}

// NewAlert builds the alert for a scored posting.
func NewAlert(posting crawler.Posting, scores crawler.Scores, at time.Time) Alert {
	skills := posting.Skills
	if len(skills) > maxAlertSkills {
		skills = skills[:maxAlertSkills]
	}
	return Alert{
		PostingID: posting.ID,
		SourceID:  posting.SourceID,
		Title:     posting.Title,
		URL:       posting.URL,
		Budget:    posting.Budget,
		Country:   posting.Client.Country,
		Skills:    append([]string(nil), skills...),
		Scores:    scores,
		CreatedAt: at,
	}
}

// Recipient delivers one alert to one destination.
type Recipient interface {
	// Channel names the delivery mechanism, used as a metrics label.
	Channel() string
	// Target identifies the destination within the channel, for logs.
	Target() string
	Send(ctx context.Context, alert Alert) error
}

// Notifier applies the threshold and fans out to every recipient.
type Notifier struct {
	threshold  float64
	recipients []Recipient
	logger     *zap.Logger
}

// New builds a Notifier. A negative threshold selects DefaultThreshold; zero
// alerts on every scored posting.
func New(threshold float64, recipients []Recipient, logger *zap.Logger) *Notifier {
	if threshold < 0 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{threshold: threshold, recipients: recipients, logger: logger}
}

// Threshold returns the configured threshold.
func (n *Notifier) Threshold() float64 {
	return n.threshold
}

// ShouldAlert reports whether score reaches the threshold.
func (n *Notifier) ShouldAlert(score float64) bool {
	return score >= n.threshold
}

// Notify delivers alert to every recipient when its score reaches the
// threshold and returns how many deliveries succeeded.
func (n *Notifier) Notify(ctx context.Context, alert Alert) int {
	if !n.ShouldAlert(alert.Score()) {
		return 0
	}
	if len(n.recipients) == 0 {
		n.logger.Debug("no alert recipients configured", zap.String("source_id", alert.SourceID))
		return 0
	}
	sent := 0
	for _, r := range n.recipients {
		if err := r.Send(ctx, alert); err != nil {
			metrics.ObserveAlert(r.Channel(), "failed")
			n.logger.Warn("alert delivery failed",
				zap.String("channel", r.Channel()),
				zap.String("target", r.Target()),
				zap.String("source_id", alert.SourceID),
				zap.Error(err),
			)
			continue
		}
		metrics.ObserveAlert(r.Channel(), "sent")
		sent++
	}
	n.logger.Info("alert delivered",
		zap.String("source_id", alert.SourceID),
		zap.Float64("score", alert.Score()),
		zap.Int("sent", sent),
		zap.Int("recipients", len(n.recipients)),
	)
	return sent
}
