package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"stakelend/config"
	"stakelend/observability/logging"
	"stakelend/services/lending/index"
)

var exportNow = time.Now

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("lend-export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		cfgPath string
		dsn     string
		outDir  string
		since   string
		until   string
	)
	fs.StringVar(&cfgPath, "config", "config.toml", "node config used to resolve the index DSN")
	fs.StringVar(&dsn, "dsn", "", "index DSN (overrides --config)")
	fs.StringVar(&outDir, "out", "exports", "directory receiving the parquet files")
	fs.StringVar(&since, "since", "", "window start: RFC3339 time or a duration before --until (e.g. 24h)")
	fs.StringVar(&until, "until", "", "window end as RFC3339 time (default now)")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	end := exportNow().UTC()
	if strings.TrimSpace(until) != "" {
		parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(until))
		if err != nil {
			fmt.Fprintf(stderr, "Error: invalid --until: %v\n", err)
			return 1
		}
		end = parsed.UTC()
	}
	start, err := parseSince(since, end)
	if err != nil {
		fmt.Fprintf(stderr, "Error: invalid --since: %v\n", err)
		return 1
	}

	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error: load config: %v\n", err)
			return 1
		}
		dsn = cfg.ResolvedIndexDSN()
	}

	logger := logging.Setup("lend-export", os.Getenv("LEND_ENV"))
	db, err := index.Open(dsn)
	if err != nil {
		fmt.Fprintf(stderr, "Error: open index: %v\n", err)
		return 1
	}
	store, err := index.NewStore(db, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	result, err := store.Export(context.Background(), outDir, start, end)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Wrote %d loans to %s\n", result.Loans, result.LoansPath)
	fmt.Fprintf(stdout, "Wrote %d activity rows to %s\n", result.Activities, result.ActivityPath)
	return 0
}

// parseSince accepts an RFC3339 time or a duration counted back from end.
func parseSince(raw string, end time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		if d <= 0 {
			return time.Time{}, fmt.Errorf("duration must be positive")
		}
		return end.Add(-d), nil
	}
	return time.Parse(time.RFC3339, raw)
}
