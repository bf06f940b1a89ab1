package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "postings/01abc/1700000000.html", "text/html", payload)
	require.NoError(t, err)
	require.Equal(t, "memory://postings/01abc/1700000000.html", uri)

	payload[0] = 'C'
	stored, ok := store.Object("postings/01abc/1700000000.html")
	require.True(t, ok)
	require.Equal(t, "content", string(stored))

	_, ok = store.Object("missing")
	require.False(t, ok)
}
