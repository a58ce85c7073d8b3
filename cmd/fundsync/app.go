package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/jetpo/fundsync/internal/config"
	"github.com/jetpo/fundsync/internal/database"
	"github.com/jetpo/fundsync/internal/domain"
	"github.com/jetpo/fundsync/internal/export"
	"github.com/jetpo/fundsync/internal/gemelnet"
	"github.com/jetpo/fundsync/internal/ingest"
	"github.com/jetpo/fundsync/internal/normalize"
	"github.com/jetpo/fundsync/internal/store"
	"github.com/jetpo/fundsync/internal/worker"
)

// exitUsage is the process status for invalid arguments.
const exitUsage = 2

type app struct {
	cfg    config.Config
	stdout io.Writer
}

func (a *app) cli() *cli.App {
	return &cli.App{
		Name:  "fundsync",
		Usage: "import Gemelnet provident fund data into a relational store",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Usage: "enable debug logging"},
			&cli.StringFlag{Name: "database-url", Usage: "postgres:// or sqlite:// URL", DefaultText: "$DATABASE_URL"},
		},
		Before: func(c *cli.Context) error {
			setupLogging(c.Bool("verbose"))
			return nil
		},
		Writer: a.stdout,
		Commands: []*cli.Command{
			{
				Name:  "import",
				Usage: "fetch the feed and upsert companies, funds and monthly snapshots",
				Flags: []cli.Flag{
					sourceFlag(),
					&cli.IntFlag{Name: "limit", Usage: "stop each mode after this many rows (0 = all)"},
				},
				Action: a.importAction,
			},
			{
				Name:   "migrate",
				Usage:  "apply pending PostgreSQL migrations",
				Action: a.migrateAction,
			},
			{
				Name:  "stats",
				Usage: "print statistics about the stored data",
				Flags: []cli.Flag{
					topFlag(),
					&cli.BoolFlag{Name: "raw", Usage: "print plain markdown"},
				},
				Action: a.statsAction,
			},
			{
				Name:   "export",
				Usage:  "write the statistics report to an XLSX file or Google Sheet",
				Flags:  append([]cli.Flag{topFlag()}, destinationFlags()...),
				Action: a.exportAction,
			},
			{
				Name:  "schedule",
				Usage: "import now and then on an interval until interrupted",
				Flags: append([]cli.Flag{
					sourceFlag(),
					&cli.DurationFlag{Name: "interval", Value: a.cfg.SyncInterval, Usage: "time between imports"},
					topFlag(),
				}, destinationFlags()...),
				Action: a.scheduleAction,
			},
		},
	}
}

func sourceFlag() cli.Flag {
	return &cli.StringFlag{Name: "source", Value: string(domain.SourceBoth), Usage: "recent, historical or both"}
}

func topFlag() cli.Flag {
	return &cli.IntFlag{Name: "top", Value: 10, Usage: "entries per ranking"}
}

func destinationFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "xlsx", Usage: "write the report to this workbook"},
		&cli.BoolFlag{Name: "sheet", Usage: "write the report to the configured Google Sheet"},
	}
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func parseSource(c *cli.Context) (domain.Source, error) {
	source, err := domain.ParseSource(c.String("source"))
	if err != nil {
		return "", cli.Exit(err.Error(), exitUsage)
	}
	return source, nil
}

func (a *app) databaseURL(c *cli.Context) string {
	if u := c.String("database-url"); u != "" {
		return u
	}
	return a.cfg.DatabaseURL
}

// openStore opens the backend named by the database URL. PostgreSQL is migrated first.
func (a *app) openStore(c *cli.Context) (store.Store, error) {
	url := a.databaseURL(c)
	backend, err := store.BackendFor(url)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("database: %v", err), exitUsage)
	}

	switch backend {
	case store.BackendPostgres:
		pool, err := database.Connect(c.Context, url)
		if err != nil {
			return nil, err
		}
		if _, err := runMigrations(c.Context, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return store.NewPgStore(pool), nil
	default:
		st, err := store.OpenSQLite(c.Context, url)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
}

func runMigrations(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("opening embedded migrations: %w", err)
	}
	return database.RunMigrations(ctx, pool, sub)
}

func (a *app) newImporter(st store.Store) (*ingest.Importer, error) {
	fields, err := normalize.LoadFieldMap(a.cfg.FieldMapFile)
	if err != nil {
		return nil, err
	}
	normalizer := normalize.New(
		normalize.WithFieldMap(fields),
		normalize.WithYearRange(a.cfg.PeriodMinYear, a.cfg.PeriodMaxYear),
	)
	client := gemelnet.NewClient(gemelnet.Options{
		BaseURL:              a.cfg.FeedURL,
		RecentResourceID:     a.cfg.RecentResourceID,
		HistoricalResourceID: a.cfg.HistoricalResourceID,
		PageSize:             a.cfg.FeedPageSize,
		MaxRetries:           a.cfg.FeedRetryMax,
		BaseDelay:            a.cfg.FeedRetryBaseDelay,
		Timeout:              a.cfg.FeedTimeout,
		Paths: gemelnet.Paths{
			Success: a.cfg.FeedSuccessPath,
			Records: a.cfg.FeedRecordsPath,
			Total:   a.cfg.FeedTotalPath,
		},
	})
	return ingest.NewImporter(client, normalizer, st, ingest.WithStaleAfter(a.cfg.StaleAfterMonths)), nil
}

// writers builds the report destinations selected by --xlsx and --sheet.
func (a *app) writers(c *cli.Context) ([]export.Writer, error) {
	var writers []export.Writer
	if path := c.String("xlsx"); path != "" {
		writers = append(writers, &export.XLSXWriter{Path: path})
	}
	if c.Bool("sheet") {
		if a.cfg.SheetsSpreadsheetID == "" || a.cfg.GoogleCredentials == "" {
			return nil, cli.Exit("--sheet needs SHEETS_SPREADSHEET_ID and GOOGLE_CREDENTIALS_JSON", exitUsage)
		}
		w, err := export.NewSheetsWriter(c.Context, a.cfg.SheetsSpreadsheetID, a.cfg.GoogleCredentials)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}
	return writers, nil
}

func (a *app) importAction(c *cli.Context) error {
	source, err := parseSource(c)
	if err != nil {
		return err
	}
	st, err := a.openStore(c)
	if err != nil {
		return err
	}
	defer st.Close()

	importer, err := a.newImporter(st)
	if err != nil {
		return err
	}
	summary, err := importer.Import(c.Context, source, c.Int("limit"))
	if summary != nil {
		printSummary(a.stdout, summary)
	}
	return err
}

func (a *app) migrateAction(c *cli.Context) error {
	url := a.databaseURL(c)
	backend, err := store.BackendFor(url)
	if err != nil {
		return cli.Exit(fmt.Sprintf("database: %v", err), exitUsage)
	}
	if backend == store.BackendSQLite {
		st, err := store.OpenSQLite(c.Context, url)
		if err != nil {
			return err
		}
		st.Close()
		fmt.Fprintln(a.stdout, "sqlite schema is up to date")
		return nil
	}

	pool, err := database.Connect(c.Context, url)
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := runMigrations(c.Context, pool)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Fprintln(a.stdout, "no pending migrations")
	}
	for _, f := range applied {
		fmt.Fprintf(a.stdout, "applied %s\n", f)
	}
	return nil
}

func (a *app) statsAction(c *cli.Context) error {
	st, err := a.openStore(c)
	if err != nil {
		return err
	}
	defer st.Close()

	report, err := export.NewService(st, c.Int("top")).Report(c.Context, nil)
	if err != nil {
		return err
	}
	w := &export.TerminalWriter{Out: a.stdout, Raw: c.Bool("raw") || !a.isTerminal()}
	return w.Write(c.Context, report)
}

func (a *app) exportAction(c *cli.Context) error {
	writers, err := a.writers(c)
	if err != nil {
		return err
	}
	if len(writers) == 0 {
		return cli.Exit("export: one of --xlsx or --sheet is required", exitUsage)
	}
	st, err := a.openStore(c)
	if err != nil {
		return err
	}
	defer st.Close()

	return export.NewService(st, c.Int("top"), writers...).Export(c.Context, nil)
}

func (a *app) scheduleAction(c *cli.Context) error {
	source, err := parseSource(c)
	if err != nil {
		return err
	}
	interval := c.Duration("interval")
	if interval <= 0 {
		return cli.Exit("schedule: --interval must be positive", exitUsage)
	}
	writers, err := a.writers(c)
	if err != nil {
		return err
	}
	st, err := a.openStore(c)
	if err != nil {
		return err
	}
	defer st.Close()

	importer, err := a.newImporter(st)
	if err != nil {
		return err
	}
	var hook worker.AfterSyncHook
	if len(writers) > 0 {
		hook = export.NewService(st, c.Int("top"), writers...)
	}
	worker.NewSyncWorker(importer, source, interval, hook).Run(c.Context)
	return nil
}

func (a *app) isTerminal() bool {
	f, ok := a.stdout.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

func printSummary(w io.Writer, s *ingest.Summary) {
	fmt.Fprintf(w, "run %s (%s): %s in %s\n", s.RunID, s.Source, s.State, s.Duration.Round(time.Millisecond))
	for _, m := range s.Modes {
		status := "complete"
		if !m.Complete {
			status = fmt.Sprintf("stopped at offset %d", m.LastOffset)
		}
		fmt.Fprintf(w, "  %-10s rows=%d created=%d updated=%d skipped=%d failed=%d (%s)\n",
			m.Mode, m.Rows, m.Created, m.Updated, m.Skipped, m.Failed, status)
	}
	fmt.Fprintf(w, "  %-10s rows=%d created=%d updated=%d skipped=%d failed=%d\n",
		"total", s.Total.Rows, s.Total.Created, s.Total.Updated, s.Total.Skipped, s.Total.Failed)
	fmt.Fprintf(w, "  companies created=%d updated=%d, funds created=%d updated=%d\n",
		s.Total.CompaniesCreated, s.Total.CompaniesUpdated, s.Total.FundsCreated, s.Total.FundsUpdated)
	if s.Deactivated > 0 || s.Reactivated > 0 {
		fmt.Fprintf(w, "  funds deactivated=%d reactivated=%d\n", s.Deactivated, s.Reactivated)
	}
}
