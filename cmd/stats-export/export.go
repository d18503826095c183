package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"operadoras/internal/core"
	"operadoras/internal/export"
)

type aggregateLister interface {
	ListAggregates(ctx context.Context) ([]core.AggregatedRecord, error)
}

type sheetWriter interface {
	WriteAggregates(ctx context.Context, records []core.AggregatedRecord) (string, error)
}

type options struct {
	csvPath string
	zipPath string
	local   bool
	noSheet bool
	sheet   sheetWriter
}

// run fetches the aggregates once and writes every configured target.
func run(ctx context.Context, src aggregateLister, opts options) (int, error) {
	if opts.csvPath == "" && opts.zipPath == "" && opts.sheet == nil {
		return 0, core.E(core.KindValidation, "export", "no output configured: use -csv, -zip or GOOGLE_SPREADSHEET_ID")
	}

	records, err := src.ListAggregates(ctx)
	if err != nil {
		return 0, err
	}

	if opts.csvPath != "" {
		if err := writeFile(opts.csvPath, func(f *os.File) error { return export.WriteCSV(f, records) }); err != nil {
			return 0, err
		}
	}
	if opts.zipPath != "" {
		entry := strings.TrimSuffix(filepath.Base(opts.zipPath), filepath.Ext(opts.zipPath)) + ".csv"
		if err := writeFile(opts.zipPath, func(f *os.File) error { return export.WriteZip(f, entry, records) }); err != nil {
			return 0, err
		}
	}
	if opts.sheet != nil {
		if _, err := opts.sheet.WriteAggregates(ctx, records); err != nil {
			return 0, core.Wrap(core.KindUnavailable, "export to sheet", err)
		}
	}
	return len(records), nil
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
