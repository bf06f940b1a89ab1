package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"cloud.google.com/go/pubsub"
	"github.com/stretchr/testify/require"

	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/crawler"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/notifier"
)

type fakeResult struct {
	id  string
	err error
}

func (r fakeResult) Get(context.Context) (string, error) { return r.id, r.err }

type fakeTopic struct {
	msgs []*pubsub.Message
	err  error
}

func (f *fakeTopic) ID() string { return "job-alerts" }

func (f *fakeTopic) Publish(_ context.Context, msg *pubsub.Message) Result {
	f.msgs = append(f.msgs, msg)
	return fakeResult{id: "msg-1", err: f.err}
}

func TestPublishEncodesAlert(t *testing.T) {
	t.Parallel()

	topic := &fakeTopic{}
	pub := New(topic)
	alert := notifier.Alert{SourceID: "01abc", Title: "Go API", Scores: crawler.Scores{RelevanceScore: 84}}

	id, err := pub.Publish(context.Background(), alert)
	require.NoError(t, err)
	require.Equal(t, "msg-1", id)
	require.Len(t, topic.msgs, 1)
	require.Equal(t, "01abc", topic.msgs[0].Attributes["upwork_job_id"])
	require.Equal(t, "84.00", topic.msgs[0].Attributes["relevance_score"])

	var decoded notifier.Alert
	require.NoError(t, json.Unmarshal(topic.msgs[0].Data, &decoded))
	require.Equal(t, "Go API", decoded.Title)

	require.Equal(t, "pubsub", pub.Channel())
	require.Equal(t, "job-alerts", pub.Target())
}

func TestPublishErrors(t *testing.T) {
	t.Parallel()

	err := New(&fakeTopic{err: errors.New("deadline")}).Send(context.Background(), notifier.Alert{})
	require.ErrorContains(t, err, "publish alert: deadline")

	_, err = New(nil).Publish(context.Background(), notifier.Alert{})
	require.Error(t, err)
}
