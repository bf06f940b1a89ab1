package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSourceID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
		want string
	}{
		{name: "tilde fragment", url: "https://www.upwork.com/jobs/Build-dashboard_~01abc123/", want: "01abc123"},
		{name: "tilde with query", url: "https://www.upwork.com/jobs/~02xyz?source=rss", want: "02xyz"},
		{name: "last segment", url: "https://example.com/postings/4711?ref=1", want: "4711"},
		{name: "trailing slash", url: "https://example.com/postings/", want: "unknown"},
		{name: "empty", url: "", want: "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, SourceID(tt.url))
		})
	}
}

func TestPostingKey(t *testing.T) {
	t.Parallel()

	key, err := PostingKey("HTTPS://WWW.Upwork.com/jobs/~01abc/?referrer=search#top")
	require.NoError(t, err)
	require.Equal(t, "https://www.upwork.com/jobs/~01abc/", key)

	_, err = PostingKey("http://[::1")
	require.Error(t, err)
}

func TestSearchURL(t *testing.T) {
	t.Parallel()

	got := SearchURL("https://www.upwork.com/", "nx/search/jobs/", "nextjs react", 2, 50)
	require.Equal(t, "https://www.upwork.com/nx/search/jobs/?page=2&per_page=50&q=nextjs+react", got)
}

func TestPagesFor(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0, PagesFor(0, 50))
	require.Equal(t, 0, PagesFor(10, 0))
	require.Equal(t, 1, PagesFor(20, 50))
	require.Equal(t, 1, PagesFor(50, 50))
	require.Equal(t, 2, PagesFor(51, 50))
}

func TestArchivePath(t *testing.T) {
	t.Parallel()

	require.Equal(t, "postings/01abc/1700000000.html", archivePath("/postings/", "01abc", 1_700_000_000))
	require.Equal(t, "01abc/5.html", archivePath("", "01abc", 5))
}
