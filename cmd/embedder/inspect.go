package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mattjoyce/embedder/internal/inspect"
	"github.com/mattjoyce/embedder/internal/storage"
)

func runInspect(args []string) int {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	dbPath := fs.String("db", "", "Journal database path (default: journal.path from config)")
	configPath := fs.String("config", "", "Path to configuration file or directory")
	session := fs.String("session", "", "Limit the report to one session id")
	limit := fs.Int("limit", inspect.DefaultRecent, "Recent rows to list")
	jsonOut := fs.Bool("json", false, "Output JSON report")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	path := *dbPath
	if path == "" {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			return 1
		}
		path = cfg.Journal.Path
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintf(os.Stderr, "Journal not found at %s: %v\n", path, err)
		return 1
	}

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open journal: %v\n", err)
		return 1
	}
	defer db.Close()

	opts := inspect.Options{Session: *session, Recent: *limit}
	var out string
	if *jsonOut {
		out, err = inspect.BuildJSONReport(ctx, db, opts)
	} else {
		out, err = inspect.BuildReport(ctx, db, opts)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Inspect failed: %v\n", err)
		return 1
	}
	fmt.Print(out)
	if *jsonOut {
		fmt.Println()
	}
	return 0
}
