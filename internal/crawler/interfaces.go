package crawler

import (
	"context"
	"time"
)

// PostingStore is the raw store. InsertPosting returns ErrAlreadyKnown when the
// source id is already present.
type PostingStore interface {
	InsertPosting(ctx context.Context, posting Posting) error
	DeletePostingBySourceID(ctx context.Context, sourceID string) error
	GetPosting(ctx context.Context, id string) (Posting, error)
	// ListUnprocessed returns postings with a description and no processed
	// result, in insertion order.
	ListUnprocessed(ctx context.Context, limit int) ([]Posting, error)
}

// ResultStore is the processed store. InsertResult returns ErrAlreadyKnown when
// a result for the id already exists and never overwrites it.
type ResultStore interface {
	InsertResult(ctx context.Context, result ProcessedResult) error
	ListJobs(ctx context.Context, filter ViewFilter) ([]JobView, error)
	GetJob(ctx context.Context, id string) (JobView, error)
	Stats(ctx context.Context) (ViewStats, error)
}

// ProfileStore persists the user profile singleton.
type ProfileStore interface {
	GetProfile(ctx context.Context) (Profile, error)
	UpsertProfile(ctx context.Context, profile Profile) error
}

// Fetcher returns rendered HTML for a URL. Session methods are no-ops for
// fetchers that have no notion of a reusable browser session.
type Fetcher interface {
	CreateSession(ctx context.Context, sessionID string) error
	DestroySession(ctx context.Context, sessionID string) error
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// HealthChecker is implemented by fetchers that can report readiness.
type HealthChecker interface {
	Health(ctx context.Context) bool
}

// ChallengeDetector recognizes bot-challenge interstitials served in place of
// the requested page.
type ChallengeDetector interface {
	IsChallenge(resp FetchResponse) bool
}

// ListingParser turns a search results page into posting URLs.
type ListingParser interface {
	ParseListing(html string) ([]string, error)
}

// DetailParser turns a posting page into structured details.
type DetailParser interface {
	ParseDetail(html string) (PostingDetails, error)
}

// BlobStore archives raw page snapshots and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Hasher computes digests for cache keys.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces surrogate ids.
type IDGenerator interface {
	NewID() (string, error)
}

// PauseFunc blocks for d or until ctx is done.
type PauseFunc func(ctx context.Context, d time.Duration)
