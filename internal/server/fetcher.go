package server

import (
	"context"
	"fmt"

	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/crawler"
)

type waiter interface {
	Wait(ctx context.Context, targetURL string) error
}

// limitedFetcher applies the rate limit floor to fetchers that do not wait on
// a limiter themselves.
type limitedFetcher struct {
	crawler.Fetcher
	limiter waiter
}

func (f *limitedFetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	if err := f.limiter.Wait(ctx, request.URL); err != nil {
		return crawler.FetchResponse{}, fmt.Errorf("rate limit wait: %w", err)
	}
	resp, err := f.Fetcher.Fetch(ctx, request)
	if err != nil {
		return resp, fmt.Errorf("fetch %s: %w", request.URL, err)
	}
	return resp, nil
}
