// Command stats-export fetches the per-company expense statistics and writes
// them to a CSV file, a zip archive and/or a Google Sheets tab.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"operadoras/internal/cli"
	"operadoras/internal/client"
	"operadoras/internal/config"
	"operadoras/internal/core"
	"operadoras/internal/export/sheets"
	applog "operadoras/internal/log"
	"operadoras/internal/service"
)

func main() {
	var opts options
	flag.StringVar(&opts.csvPath, "csv", "", "write the statistics to this CSV file")
	flag.StringVar(&opts.zipPath, "zip", "", "write the statistics CSV into this zip archive")
	flag.BoolVar(&opts.local, "local", false, "compute from the configured data backend instead of the API")
	flag.BoolVar(&opts.noSheet, "no-sheet", false, "skip the Google Sheets upload")
	flag.Parse()

	cli.LoadEnvFile()
	validate := (*config.Config).ValidateClient
	if opts.local {
		validate = (*config.Config).Validate
	}
	cfg := cli.LoadAndValidateConfig(validate)
	logger := cli.SetupLogger(cfg, applog.ComponentExport, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var source client.Source
	if opts.local {
		res, err := cli.OpenBackend(ctx, cfg, logger.WithComponent(applog.ComponentBackend).Logger, nil)
		if err != nil {
			logger.Error("Failed to initialize data backend", "error", err, "backend", cfg.DataBackend)
			os.Exit(1)
		}
		defer res.Cleanup()
		source = service.New(res.Store, service.Options{
			MaxPageSize: cfg.MaxPageSize,
			Logger:      logger.WithComponent(applog.ComponentService).Logger,
		})
	} else {
		httpSource, err := client.NewHTTPSource(cfg.APIBaseURL, cfg.APITimeout, logger.WithComponent(applog.ComponentClient).Logger)
		if err != nil {
			logger.Error("Invalid API configuration", "error", err)
			os.Exit(1)
		}
		source = httpSource
	}

	if !opts.noSheet && cfg.GoogleSpreadsheetID != "" {
		creds, err := sheets.CredentialsFromEnv(ctx)
		if err != nil {
			logger.Error("Google Sheets credentials unavailable", "error", err)
			os.Exit(1)
		}
		sheetClient, err := sheets.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName, logger.Logger, creds...)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		opts.sheet = sheetClient
	} else if !opts.noSheet {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	n, err := run(ctx, client.NewFacade(source, cfg.MaxPageSize), opts)
	if err != nil {
		logger.LogError(ctx, "Export failed", err, string(core.KindOf(err)), applog.OpExport)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "exported %d records\n", n)
}
