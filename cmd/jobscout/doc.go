// Package main hosts the job scout service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes the run trigger (/api/cron/run-pipeline), the read-only jobs view,
//     profile updates, recent alerts, health and metrics. The trigger is guarded by a shared secret or, when no
//     secret is configured, a trusted user agent.
//   - Dispatcher: one run at a time, process-wide. A run crawls search results, scrapes each new posting and then
//     processes every stored posting that has no result yet. The optional cron scheduler and the HTTP trigger share
//     the same guard, so runs never overlap.
//   - Fetch pipeline: pages come through the bypass solver service, a direct Colly fetch, or a local Chromedp browser.
//     Every fetch waits on a per-host token bucket first, and bot-challenge interstitials are rejected by a heuristic
//     detector.
//   - Persistence & fanout: postings, results and the profile live in Postgres (pgx, pgvector) or in memory. Detail
//     pages may be archived to memory, local disk or GCS. High-score alerts go to Telegram chats, a Pub/Sub topic and
//     an in-memory recent-alerts log.
//
// Quick checklist:
//   - Configure env vars: JOBSCOUT_AUTH_CRON_SECRET, JOBSCOUT_BYPASS_URL, JOBSCOUT_EMBEDDING_URL,
//     JOBSCOUT_EMBEDDING_API_TOKEN, JOBSCOUT_DATABASE_DSN, JOBSCOUT_TELEGRAM_BOT_TOKEN, JOBSCOUT_TELEGRAM_CHAT_IDS.
//     A .env file in the working directory is loaded first.
//   - Serve: go run ./cmd/jobscout -config config.yaml
//   - One run: go run ./cmd/jobscout -once -query "nextjs react" -max 10
//   - Schema only: go run ./cmd/jobscout -migrate
package main
