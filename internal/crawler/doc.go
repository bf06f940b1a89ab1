// Package crawler holds the posting domain model and the crawl orchestrator
// that walks search result pages, fetches each posting through a Fetcher and
// persists what the extractors recover.
package crawler
