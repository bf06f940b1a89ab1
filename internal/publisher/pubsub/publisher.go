// Package pubsub publishes alerts as JSON to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"cloud.google.com/go/pubsub"

	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/notifier"
)

// Result is the pending outcome of a publish.
type Result interface {
	Get(ctx context.Context) (string, error)
}

// Topic is the subset of *pubsub.Topic used by Publisher.
type Topic interface {
	ID() string
	Publish(ctx context.Context, msg *pubsub.Message) Result
}

type topicAdapter struct {
	topic *pubsub.Topic
}

func (a topicAdapter) ID() string { return a.topic.ID() }

func (a topicAdapter) Publish(ctx context.Context, msg *pubsub.Message) Result {
	return a.topic.Publish(ctx, msg)
}

// WrapTopic adapts a client topic.
func WrapTopic(topic *pubsub.Topic) Topic {
	return topicAdapter{topic: topic}
}

// Publisher implements notifier.Recipient.
type Publisher struct {
	topic Topic
}

// New creates a Publisher for topic.
func New(topic Topic) *Publisher {
	return &Publisher{topic: topic}
}

// NewClient opens a Pub/Sub client for projectID.
func NewClient(ctx context.Context, projectID string) (*pubsub.Client, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	return client, nil
}

// Channel implements notifier.Recipient.
func (p *Publisher) Channel() string { return "pubsub" }

// Target implements notifier.Recipient.
func (p *Publisher) Target() string {
	if p.topic == nil {
		return ""
	}
	return p.topic.ID()
}

// Send publishes alert and waits for the server acknowledgement.
func (p *Publisher) Send(ctx context.Context, alert notifier.Alert) error {
	_, err := p.Publish(ctx, alert)
	return err
}

// Publish marshals alert to JSON and returns the server message id.
func (p *Publisher) Publish(ctx context.Context, alert notifier.Alert) (string, error) {
	if p.topic == nil {
		return "", fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(alert)
	if err != nil {
		return "", fmt.Errorf("marshal alert: %w", err)
	}
	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"upwork_job_id":   alert.SourceID,
			"relevance_score": strconv.FormatFloat(alert.Score(), 'f', 2, 64),
		},
	}
	id, err := p.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish alert: %w", err)
	}
	return id, nil
}
