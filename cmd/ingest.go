package cmd

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"hiring-data-sync/internal/application"
	"hiring-data-sync/internal/display"
	apperrors "hiring-data-sync/internal/errors"
)

func createIngestCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a JSON request of records in one transaction",
		Long: `Ingest validates every record of a request and inserts them in one
transaction. A request holds 1 to 1000 records across the tables:

  {"departments": [{"id": 1, "name": "Supply Chain"}],
   "jobs": [{"id": 1, "name": "Recruiter"}],
   "hired_employees": [{"id": 1, "name": "Harold Vogt", "datetime": "2021-11-07T02:48:42Z",
                        "department_id": 1, "job_id": 1}]}

If any record is rejected nothing is written.`,
		Example: `  hiring-data-sync ingest --file request.json
  cat request.json | hiring-data-sync ingest`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, func(ctx context.Context, app *application.Application, printer *display.Printer) error {
				data, err := readRequest(cmd, file)
				if err != nil {
					return err
				}
				res, err := app.Ingest(ctx, data)
				if err != nil {
					return err
				}
				return printer.IngestResult(res)
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "request file, - reads stdin")
	return cmd
}

func readRequest(cmd *cobra.Command, file string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if file == "" || file == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, apperrors.NewConfigurationError("cannot read ingestion request", err)
	}
	return data, nil
}
