package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/config"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/server"
)

type options struct {
	configPath string
	once       bool
	query      string
	maxItems   int
	migrate    bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("jobscout", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "Path to config file")
	fs.BoolVar(&opts.once, "once", false, "Run one crawl and processing pass, print the summary and exit")
	fs.StringVar(&opts.query, "query", "", "Search query for -once (default: a random configured query)")
	fs.IntVar(&opts.maxItems, "max", 0, "Maximum postings to scrape for -once (default: crawler.max_jobs_per_run)")
	fs.BoolVar(&opts.migrate, "migrate", false, "Apply the database schema and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, fmt.Errorf("parse flags: %w", err)
	}
	if opts.maxItems < 0 {
		return options{}, fmt.Errorf("-max must be >= 0")
	}
	return opts, nil
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "load config failed: %v\n", err)
		return 1
	}

	if opts.migrate {
		if err := server.Migrate(ctx, &cfg); err != nil {
			fmt.Fprintf(stderr, "migrate failed: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, "schema applied")
		return 0
	}

	app, err := server.Build(ctx, &cfg)
	if err != nil {
		fmt.Fprintf(stderr, "failed to build application: %v\n", err)
		return 1
	}

	if !opts.once {
		if err := app.Run(ctx); err != nil {
			fmt.Fprintf(stderr, "application run failed: %v\n", err)
			return 1
		}
		return 0
	}

	defer func() {
		if err := app.Close(); err != nil {
			fmt.Fprintf(stderr, "shutdown failed: %v\n", err)
		}
	}()
	summary, runErr := app.RunOnce(ctx, opts.query, opts.maxItems)
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		fmt.Fprintf(stderr, "write summary failed: %v\n", err)
		return 1
	}
	if runErr != nil {
		return 1
	}
	return 0
}
