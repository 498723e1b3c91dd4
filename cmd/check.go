package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"hiring-data-sync/internal/application"
	"hiring-data-sync/internal/display"
	apperrors "hiring-data-sync/internal/errors"
)

func createCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check the store connection and the live table definitions",
		Long: `Check connects to the store, prints the server version and compares each
table with the definition ingestion, snapshots and restores expect.

It exits non-zero when a table is missing or differs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, func(ctx context.Context, app *application.Application, printer *display.Printer) error {
				report, err := app.Check(ctx)
				if err != nil {
					return err
				}
				if err := printCheck(printer, report); err != nil {
					return err
				}
				if drifted := report.Drifted(); len(drifted) > 0 {
					return apperrors.NewSchemaDriftError(
						fmt.Sprintf("live tables differ from their expected definition: %s", strings.Join(drifted, ", ")), drifted)
				}
				return nil
			})
		},
	}
}

func printCheck(printer *display.Printer, report *application.CheckReport) error {
	switch printer.Config().OutputFormat {
	case display.FormatJSON, display.FormatYAML:
		return printer.Data(report)
	case display.FormatCompact:
		printer.Compact("server_version", report.ServerVersion, "database", report.Database)
		for _, t := range report.Tables {
			printer.Compact("table", t.Table, "matches", t.Matches)
		}
		return nil
	}

	printer.Success(fmt.Sprintf("Connected to MySQL %s at %s/%s", report.ServerVersion, report.Host, report.Database))
	t := printer.NewTable("Table", "Status", "Details")
	for _, tc := range report.Tables {
		switch {
		case tc.Error != "":
			t.AddRow(tc.Table, "unreadable", tc.Error)
		case tc.Matches:
			t.AddRow(tc.Table, "ok", "")
		default:
			t.AddRow(tc.Table, "drift", "columns: "+strings.Join(tc.Differences, ", "))
		}
	}
	return t.RenderTo(printer.Out())
}
