package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/notifier"
)

func TestPublisherKeepsRecentAlerts(t *testing.T) {
	t.Parallel()

	pub := New(2)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, pub.Send(context.Background(), notifier.Alert{SourceID: id}))
	}

	recent := pub.Recent()
	require.Len(t, recent, 2)
	require.Equal(t, "c", recent[0].SourceID)
	require.Equal(t, "b", recent[1].SourceID)

	recent[0].SourceID = "modified"
	require.Equal(t, "c", pub.Recent()[0].SourceID, "Recent returns a copy")
}

func TestPublisherDefaults(t *testing.T) {
	t.Parallel()

	pub := New(0)
	require.Equal(t, DefaultCapacity, pub.capacity)
	require.Equal(t, "memory", pub.Channel())
	require.Empty(t, pub.Recent())
}
