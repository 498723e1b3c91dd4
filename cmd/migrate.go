package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"hiring-data-sync/internal/application"
	"hiring-data-sync/internal/display"
	"hiring-data-sync/internal/migration"
)

func createMigrateCommand() *cobra.Command {
	var (
		table   string
		source  string
		all     bool
		workers int
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Bulk-load CSV sources in independent batches",
		Long: `Migrate reads a CSV source and loads it in batches of up to 1000 rows.
Each batch commits on its own; a rejected batch is reported and the
migration continues with the next one.

Sources are read from the configured migration storage (./raw_data by
default, or the raw_data/ prefix of S3_BUCKET_NAME).`,
		Example: `  hiring-data-sync migrate --table jobs
  hiring-data-sync migrate --table jobs --source archive/jobs-2021.csv
  hiring-data-sync migrate --all --workers 4`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if !all && table == "" {
				return fmt.Errorf("either --table or --all is required")
			}
			if all && source != "" {
				return fmt.Errorf("--source applies to a single --table")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, func(ctx context.Context, app *application.Application, printer *display.Printer) error {
				progress := newBatchProgress(printer)
				opts := application.MigrateOptions{Workers: workers, OnBatch: progress.update}

				var (
					results []*migration.Result
					err     error
				)
				if all {
					results, err = app.MigrateAll(ctx, opts)
				} else {
					var res *migration.Result
					res, err = app.Migrate(ctx, table, source, opts)
					if res != nil {
						results = append(results, res)
					}
				}
				progress.finish()

				if len(results) > 0 {
					if perr := printer.MigrationResults(results); perr != nil && err == nil {
						err = perr
					}
				}
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&table, "table", "t", "", "table to migrate")
	cmd.Flags().StringVar(&source, "source", "", "source file key (default is the configured file for the table)")
	cmd.Flags().BoolVar(&all, "all", false, "migrate every table with a configured source, in dependency order")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "batches loaded concurrently (default from config)")
	cmd.MarkFlagsMutuallyExclusive("table", "all")
	return cmd
}

// batchProgress keeps one progress bar per migrated table
type batchProgress struct {
	printer *display.Printer
	bars    map[string]*display.ProgressBar
	order   []string
}

func newBatchProgress(printer *display.Printer) *batchProgress {
	return &batchProgress{printer: printer, bars: make(map[string]*display.ProgressBar)}
}

// update is the loader callback; calls are serialized by the loader
func (p *batchProgress) update(r migration.BatchReport) {
	bar, ok := p.bars[r.Table]
	if !ok {
		// a new table means the previous one is done
		if n := len(p.order); n > 0 {
			p.bars[p.order[n-1]].Finish("")
		}
		bar = p.printer.NewProgressBar(0, r.Table)
		p.bars[r.Table] = bar
		p.order = append(p.order, r.Table)
	}
	bar.Add(r.Size, r.Err != nil)
}

func (p *batchProgress) finish() {
	for _, table := range p.order {
		p.bars[table].Finish("")
	}
}
