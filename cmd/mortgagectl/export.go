package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"lendchain/services/mortgaged/journal"
)

func runExport(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dsn := fs.String("journal", "", "journal DSN (sqlite path or postgres URL)")
	out := fs.String("out", "events.parquet", "output parquet file")
	mortgageID := fs.Uint64("mortgage", 0, "only events of this mortgage")
	eventType := fs.String("type", "", "only events of this type")
	after := fs.Uint64("after", 0, "only events after this sequence")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(*dsn) == "" {
		fmt.Fprintln(stderr, "Error: --journal is required")
		return 1
	}
	db, err := journal.Open(*dsn)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	filter := journal.Filter{Type: *eventType, After: *after}
	if *mortgageID != 0 {
		filter.MortgageID = mortgageID
	}

	file, err := os.Create(*out)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	n, err := journal.New(db).ExportParquet(context.Background(), file, filter)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: export: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "exported %d events to %s\n", n, *out)
	return 0
}
